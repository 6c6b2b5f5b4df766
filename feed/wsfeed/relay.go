// Package wsfeed streams change-feed events over WebSocket. The Relay side
// bridges a document store's subscription onto a socket per connected
// client; the Client side dials a relay and replays the stream into a
// feed.Handler. Only the read path crosses the socket: writes go to the
// backing store directly.
package wsfeed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/c0deZ3R0/timeline-sync-kit/element"
	"github.com/c0deZ3R0/timeline-sync-kit/feed"
	"github.com/c0deZ3R0/timeline-sync-kit/logging"
)

// Envelope is the wire shape of one change event. Exactly one of the
// payload fields is set, keyed by Entity.
type Envelope struct {
	Entity    string          `json:"entity"` // element | animation | project | asset
	Kind      feed.ChangeKind `json:"kind,omitempty"`
	Element   json.RawMessage `json:"element,omitempty"`
	Animation json.RawMessage `json:"animation,omitempty"`
	Project   *projectPayload `json:"project,omitempty"`
	Asset     *assetPayload   `json:"asset,omitempty"`
}

type projectPayload struct {
	Background *string `json:"background,omitempty"`
	MaxTime    *int64  `json:"maxTime,omitempty"`
}

type assetPayload struct {
	Slot feed.AssetSlot `json:"slot"`
	URL  string         `json:"url"`
}

const writeTimeout = 10 * time.Second

// Relay serves a document store's change feed over WebSocket. Each accepted
// connection gets its own store subscription scoped to the project named in
// the request query.
type Relay struct {
	store feed.DocumentStore
	log   *logging.Logger
}

// NewRelay creates a relay over the given store.
func NewRelay(store feed.DocumentStore) *Relay {
	return &Relay{
		store: store,
		log:   logging.WithComponent(logging.Component("wsfeed-relay")),
	}
}

// ServeHTTP upgrades the request and streams the project's change feed
// until the client disconnects. The project is named by the "project" query
// parameter.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	projectID := req.URL.Query().Get("project")
	if projectID == "" {
		http.Error(w, "missing project parameter", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, req, nil)
	if err != nil {
		r.log.Warn("websocket accept failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "relay shutting down")

	ctx := req.Context()
	send := func(env Envelope) error {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		return wsjson.Write(wctx, conn, env)
	}

	sub, err := r.store.Subscribe(ctx, projectID, feed.Handler{
		OnElement: func(ev feed.ElementChange) error {
			doc, err := element.MarshalPersisted(ev.Element)
			if err != nil {
				return err
			}
			return send(Envelope{Entity: "element", Kind: ev.Kind, Element: doc})
		},
		OnAnimation: func(ev feed.AnimationChange) error {
			doc, err := element.MarshalPersistedAnimation(ev.Animation)
			if err != nil {
				return err
			}
			return send(Envelope{Entity: "animation", Kind: ev.Kind, Animation: doc})
		},
		OnProject: func(ev feed.ProjectChange) error {
			return send(Envelope{Entity: "project", Project: &projectPayload{
				Background: ev.Background,
				MaxTime:    ev.MaxTime,
			}})
		},
		OnAsset: func(ev feed.AssetChange) error {
			return send(Envelope{Entity: "asset", Asset: &assetPayload{
				Slot: ev.Slot,
				URL:  ev.URL,
			}})
		},
	})
	if err != nil {
		r.log.Warn("feed subscribe failed",
			slog.String("project", projectID), slog.String("error", err.Error()))
		conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer sub.Unsubscribe()

	// Block until the client goes away; reads only surface control frames
	// and disconnects, the relay never expects data from the client.
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}
