// Package feed defines the normalized change-event shapes emitted by the
// remote change feed and the contracts the reconciler requires of its
// external collaborators: the remote document store, the change
// subscription, and the binary asset store.
//
// The feed is a pure translation layer. Delivery order per logical id is not
// guaranteed to be FIFO across network retries, so every inbound event
// carries the current full state of its record, never a delta.
package feed

import (
	"context"
	"io"

	"github.com/c0deZ3R0/timeline-sync-kit/element"
)

// ChangeKind classifies an inbound change notification.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// ElementChange is a normalized element notification. Element carries the
// record's current full state with the store-assigned identifier attached as
// UID. For ChangeRemoved it is the last state the store held.
type ElementChange struct {
	Kind    ChangeKind
	Element element.Element
}

// AnimationChange is a normalized animation notification.
type AnimationChange struct {
	Kind      ChangeKind
	Animation element.Animation
}

// ProjectChange reports an update to one of the project's scalar properties.
// Nil pointers mean the property did not change.
type ProjectChange struct {
	Background *string
	MaxTime    *int64
}

// AssetSlot names one of the project's asset URL registries.
type AssetSlot string

const (
	AssetVideos AssetSlot = "videos"
	AssetAudios AssetSlot = "audios"
	AssetImages AssetSlot = "images"
)

// AssetChange reports a URL registered in one of the asset slots.
type AssetChange struct {
	Slot AssetSlot
	URL  string
}

// Handler receives normalized events. Callbacks left nil are skipped.
// Errors returned by a callback are isolated per event: one malformed or
// rejected event must not abort delivery of the rest of a batch.
type Handler struct {
	OnElement   func(ElementChange) error
	OnAnimation func(AnimationChange) error
	OnProject   func(ProjectChange) error
	OnAsset     func(AssetChange) error
}

// Subscription is a handle on an active change feed. Unsubscribe is
// idempotent and stops delivery synchronously from the caller's perspective:
// no event is delivered after Unsubscribe returns, except in-flight network
// callbacks already scheduled, which consumers must tolerate as no-ops.
type Subscription interface {
	Unsubscribe() error
}

// DocumentStore is the remote document store contract, keyed by project. It
// supports create, full replace, field-level partial update, delete, and a
// change subscription yielding the current full value per change.
type DocumentStore interface {
	// CreateElement persists a new element record and returns the
	// store-assigned identifier.
	CreateElement(ctx context.Context, projectID string, el element.Element) (uid string, err error)

	// PutElement replaces the record identified by el.UID with el's full
	// persisted projection, creating it if the uid is unknown.
	PutElement(ctx context.Context, projectID string, el element.Element) error

	// UpdateElementFields applies a field-level partial update to the
	// record identified by uid.
	UpdateElementFields(ctx context.Context, projectID, uid string, fields map[string]any) error

	// DeleteElement removes the record identified by uid.
	DeleteElement(ctx context.Context, projectID, uid string) error

	CreateAnimation(ctx context.Context, projectID string, a element.Animation) (uid string, err error)
	PutAnimation(ctx context.Context, projectID string, a element.Animation) error
	DeleteAnimation(ctx context.Context, projectID, uid string) error

	// SetBackground and SetMaxTime partially update the two scalar fields
	// on the project document.
	SetBackground(ctx context.Context, projectID, color string) error
	SetMaxTime(ctx context.Context, projectID string, maxTime int64) error

	// AddAssetURL registers a retrieval URL in the named asset slot.
	AddAssetURL(ctx context.Context, projectID string, slot AssetSlot, url string) error

	// Subscribe starts a collection-scoped change feed for the project.
	// The handler observes every element, animation, project-scalar, and
	// asset change, including the subscriber's own writes. The existing
	// contents of the collections are delivered first as Added events, so
	// subscribing doubles as the initial load.
	Subscribe(ctx context.Context, projectID string, h Handler) (Subscription, error)

	// Close releases the store connection.
	Close() error
}

// AssetStore is the binary asset store contract: it accepts an upload of a
// named blob under a folder path and returns a stable retrieval URL. The
// reconciler only stores and relays these URLs, never blob bytes.
type AssetStore interface {
	Upload(ctx context.Context, folder, name string, r io.Reader) (url string, err error)
}
