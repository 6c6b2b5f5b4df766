package wsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	stdSync "sync"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/c0deZ3R0/timeline-sync-kit/element"
	syncErrors "github.com/c0deZ3R0/timeline-sync-kit/errors"
	"github.com/c0deZ3R0/timeline-sync-kit/feed"
	"github.com/c0deZ3R0/timeline-sync-kit/logging"
)

// Client consumes a relay's change stream and replays it into a
// feed.Handler. It covers the subscription half of the store contract for
// sessions that observe a project over the network.
type Client struct {
	baseURL string
	log     *logging.Logger
}

// NewClient creates a client for the relay at baseURL (ws:// or wss://).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		log:     logging.WithComponent(logging.Component("wsfeed-client")),
	}
}

type clientSubscription struct {
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
	once   stdSync.Once
}

// Subscribe dials the relay and delivers the project's change stream to h
// until Unsubscribe. The initial replay arrives through the same stream, so
// subscribing doubles as the initial load.
func (c *Client) Subscribe(ctx context.Context, projectID string, h feed.Handler) (feed.Subscription, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, syncErrors.NewNetworkError(syncErrors.OpSubscribe, err)
	}
	q := u.Query()
	q.Set("project", projectID)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, syncErrors.NewNetworkError(syncErrors.OpSubscribe,
			fmt.Errorf("dial %s: %w", u.String(), err))
	}

	readCtx, cancel := context.WithCancel(context.Background())
	sub := &clientSubscription{
		conn:   conn,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.readLoop(readCtx, conn, h, sub.done)
	return sub, nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, h feed.Handler, done chan struct{}) {
	defer close(done)
	for {
		var env Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			if ctx.Err() == nil {
				c.log.Warn("change stream closed", slog.String("error", err.Error()))
			}
			return
		}
		// Per-event isolation: a malformed envelope is logged and skipped.
		if err := c.dispatch(env, h); err != nil {
			c.log.Warn("skipping undecodable envelope",
				slog.String("entity", env.Entity), slog.String("error", err.Error()))
		}
	}
}

func (c *Client) dispatch(env Envelope, h feed.Handler) error {
	switch env.Entity {
	case "element":
		if h.OnElement == nil {
			return nil
		}
		var el element.Element
		if err := json.Unmarshal(env.Element, &el); err != nil {
			return err
		}
		return h.OnElement(feed.ElementChange{Kind: env.Kind, Element: el})
	case "animation":
		if h.OnAnimation == nil {
			return nil
		}
		var a element.Animation
		if err := json.Unmarshal(env.Animation, &a); err != nil {
			return err
		}
		return h.OnAnimation(feed.AnimationChange{Kind: env.Kind, Animation: a})
	case "project":
		if h.OnProject == nil || env.Project == nil {
			return nil
		}
		return h.OnProject(feed.ProjectChange{
			Background: env.Project.Background,
			MaxTime:    env.Project.MaxTime,
		})
	case "asset":
		if h.OnAsset == nil || env.Asset == nil {
			return nil
		}
		return h.OnAsset(feed.AssetChange{Slot: env.Asset.Slot, URL: env.Asset.URL})
	default:
		return fmt.Errorf("unknown entity %q", env.Entity)
	}
}

// Unsubscribe closes the stream and waits for the read loop to exit. It is
// idempotent.
func (s *clientSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.cancel()
		s.conn.Close(websocket.StatusNormalClosure, "unsubscribed")
	})
	<-s.done
	return nil
}
