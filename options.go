package timelinesync

import (
	"errors"

	"github.com/c0deZ3R0/timeline-sync-kit/feed"
	"github.com/c0deZ3R0/timeline-sync-kit/logging"
	"github.com/c0deZ3R0/timeline-sync-kit/render"
)

// errSessionClosed rejects operations on a session after Close.
var errSessionClosed = errors.New("session is closed")

// errNoAssetStore means UploadResource was called without Options.Assets.
var errNoAssetStore = errors.New("no asset store configured")

// DefaultMaxTime is the project duration bound in milliseconds used until
// the remote project document says otherwise.
const DefaultMaxTime int64 = 30_000

// DefaultBackground is the canvas color used until the remote project
// document says otherwise.
const DefaultBackground = "#111111"

// Alerter surfaces blocking, user-facing failure notifications. Remote write
// failures and merge conflicts are reported here rather than silently
// retried; the user must re-attempt the action.
type Alerter interface {
	Alert(msg string)
}

// AlertFunc adapts a plain function to the Alerter interface.
type AlertFunc func(msg string)

func (f AlertFunc) Alert(msg string) { f(msg) }

type noopAlerter struct{}

func (noopAlerter) Alert(string) {}

// Options configures a sync session.
type Options struct {
	// Remote is the remote document store the session reconciles against.
	// Required.
	Remote feed.DocumentStore

	// Assets is the binary asset store used by the Upload helpers.
	// Optional; uploads fail when unset.
	Assets feed.AssetStore

	// Surface is the rendering sink rebuilt on every canonical state
	// change. Optional; rendering is skipped when unset.
	Surface render.Surface

	// UserID identifies the local editor for presence and the
	// edit-persons trail.
	UserID string

	// Alerter receives blocking user-facing notifications. Defaults to a
	// no-op.
	Alerter Alerter

	// Metrics receives observability hooks. Defaults to a no-op collector.
	Metrics MetricsCollector

	// Logger for structured logging. Defaults to logging.Default().
	Logger *logging.Logger

	// MaxTime is the initial project duration bound in milliseconds.
	// Defaults to DefaultMaxTime.
	MaxTime int64
}

func (o Options) withDefaults() Options {
	if o.Alerter == nil {
		o.Alerter = noopAlerter{}
	}
	if o.Metrics == nil {
		o.Metrics = &NoOpMetricsCollector{}
	}
	if o.Logger == nil {
		o.Logger = logging.Default()
	}
	if o.MaxTime <= 0 {
		o.MaxTime = DefaultMaxTime
	}
	return o
}
