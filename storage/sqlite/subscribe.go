package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	stdSync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/c0deZ3R0/timeline-sync-kit/element"
	syncErrors "github.com/c0deZ3R0/timeline-sync-kit/errors"
	"github.com/c0deZ3R0/timeline-sync-kit/feed"
)

type subscription struct {
	id        string
	store     *Store
	projectID string
	handler   feed.Handler
	lastSeq   int64

	stopOnce stdSync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Subscribe replays the project's current contents as Added events, then
// polls the change log for everything appended after the replay snapshot.
func (s *Store) Subscribe(ctx context.Context, projectID string, h feed.Handler) (feed.Subscription, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrStoreClosed
	}
	s.mu.Unlock()

	// The snapshot sequence is read before the replay queries; changes that
	// land in between are delivered twice at worst, never dropped. Consumers
	// treat redundant full-state events as no-ops.
	var lastSeq sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(seq) FROM changes WHERE project_id = ?`, projectID).Scan(&lastSeq); err != nil {
		return nil, syncErrors.WrapOpComponent(err, syncErrors.OpSubscribe, storeComponent)
	}

	if err := s.replay(ctx, projectID, h); err != nil {
		return nil, err
	}

	sub := &subscription{
		id:        uuid.NewString(),
		store:     s,
		projectID: projectID,
		handler:   h,
		lastSeq:   lastSeq.Int64,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrStoreClosed
	}
	s.subs[sub.id] = sub
	s.mu.Unlock()

	go sub.poll()
	return sub, nil
}

func (s *Store) replay(ctx context.Context, projectID string, h feed.Handler) error {
	if h.OnProject != nil {
		var background string
		var maxTime int64
		err := s.db.QueryRowContext(ctx,
			`SELECT background, max_time FROM projects WHERE id = ?`, projectID).
			Scan(&background, &maxTime)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return syncErrors.WrapOpComponent(err, syncErrors.OpSubscribe, storeComponent)
		}
		if err == nil {
			pc := feed.ProjectChange{}
			if background != "" {
				pc.Background = &background
			}
			if maxTime != 0 {
				pc.MaxTime = &maxTime
			}
			if pc.Background != nil || pc.MaxTime != nil {
				_ = h.OnProject(pc)
			}
		}
	}

	if h.OnAsset != nil {
		rows, err := s.db.QueryContext(ctx,
			`SELECT slot, url FROM assets WHERE project_id = ?`, projectID)
		if err != nil {
			return syncErrors.WrapOpComponent(err, syncErrors.OpSubscribe, storeComponent)
		}
		for rows.Next() {
			var slot, url string
			if err := rows.Scan(&slot, &url); err != nil {
				rows.Close()
				return syncErrors.WrapOpComponent(err, syncErrors.OpSubscribe, storeComponent)
			}
			_ = h.OnAsset(feed.AssetChange{Slot: feed.AssetSlot(slot), URL: url})
		}
		if err := rows.Close(); err != nil {
			return syncErrors.WrapOpComponent(err, syncErrors.OpSubscribe, storeComponent)
		}
	}

	if h.OnElement != nil {
		rows, err := s.db.QueryContext(ctx,
			`SELECT doc FROM elements WHERE project_id = ?`, projectID)
		if err != nil {
			return syncErrors.WrapOpComponent(err, syncErrors.OpSubscribe, storeComponent)
		}
		for rows.Next() {
			var raw string
			if err := rows.Scan(&raw); err != nil {
				rows.Close()
				return syncErrors.WrapOpComponent(err, syncErrors.OpSubscribe, storeComponent)
			}
			var el element.Element
			if err := json.Unmarshal([]byte(raw), &el); err != nil {
				s.log.Warn("skipping undecodable element record", slog.String("error", err.Error()))
				continue
			}
			_ = h.OnElement(feed.ElementChange{Kind: feed.ChangeAdded, Element: el})
		}
		if err := rows.Close(); err != nil {
			return syncErrors.WrapOpComponent(err, syncErrors.OpSubscribe, storeComponent)
		}
	}

	if h.OnAnimation != nil {
		rows, err := s.db.QueryContext(ctx,
			`SELECT doc FROM animations WHERE project_id = ?`, projectID)
		if err != nil {
			return syncErrors.WrapOpComponent(err, syncErrors.OpSubscribe, storeComponent)
		}
		for rows.Next() {
			var raw string
			if err := rows.Scan(&raw); err != nil {
				rows.Close()
				return syncErrors.WrapOpComponent(err, syncErrors.OpSubscribe, storeComponent)
			}
			var a element.Animation
			if err := json.Unmarshal([]byte(raw), &a); err != nil {
				s.log.Warn("skipping undecodable animation record", slog.String("error", err.Error()))
				continue
			}
			_ = h.OnAnimation(feed.AnimationChange{Kind: feed.ChangeAdded, Animation: a})
		}
		if err := rows.Close(); err != nil {
			return syncErrors.WrapOpComponent(err, syncErrors.OpSubscribe, storeComponent)
		}
	}
	return nil
}

func (sub *subscription) poll() {
	defer close(sub.doneCh)
	ticker := time.NewTicker(sub.store.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sub.stopCh:
			return
		case <-ticker.C:
			if err := sub.drain(); err != nil {
				sub.store.log.Warn("change log poll failed", slog.String("error", err.Error()))
			}
		}
	}
}

// drain delivers all change-log rows appended since the last poll.
func (sub *subscription) drain() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows, err := sub.store.db.QueryContext(ctx, `
		SELECT seq, entity, kind, doc FROM changes
		WHERE project_id = ? AND seq > ?
		ORDER BY seq ASC`, sub.projectID, sub.lastSeq)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		var entity, kind, doc string
		if err := rows.Scan(&seq, &entity, &kind, &doc); err != nil {
			return err
		}
		sub.lastSeq = seq
		// Per-event isolation: a handler rejection or undecodable row must
		// not block later changes.
		sub.dispatch(entity, kind, doc)
	}
	return rows.Err()
}

func (sub *subscription) dispatch(entity, kind, doc string) {
	switch entity {
	case "element":
		if sub.handler.OnElement == nil {
			return
		}
		var el element.Element
		if err := json.Unmarshal([]byte(doc), &el); err != nil {
			sub.store.log.Warn("skipping undecodable element change", slog.String("error", err.Error()))
			return
		}
		_ = sub.handler.OnElement(feed.ElementChange{Kind: feed.ChangeKind(kind), Element: el})
	case "animation":
		if sub.handler.OnAnimation == nil {
			return
		}
		var a element.Animation
		if err := json.Unmarshal([]byte(doc), &a); err != nil {
			sub.store.log.Warn("skipping undecodable animation change", slog.String("error", err.Error()))
			return
		}
		_ = sub.handler.OnAnimation(feed.AnimationChange{Kind: feed.ChangeKind(kind), Animation: a})
	case "project":
		if sub.handler.OnProject == nil {
			return
		}
		var payload struct {
			Background *string `json:"background"`
			MaxTime    *int64  `json:"maxTime"`
		}
		if err := json.Unmarshal([]byte(doc), &payload); err != nil {
			sub.store.log.Warn("skipping undecodable project change", slog.String("error", err.Error()))
			return
		}
		_ = sub.handler.OnProject(feed.ProjectChange{Background: payload.Background, MaxTime: payload.MaxTime})
	case "asset":
		if sub.handler.OnAsset == nil {
			return
		}
		var payload struct {
			Slot string `json:"slot"`
			URL  string `json:"url"`
		}
		if err := json.Unmarshal([]byte(doc), &payload); err != nil {
			sub.store.log.Warn("skipping undecodable asset change", slog.String("error", err.Error()))
			return
		}
		_ = sub.handler.OnAsset(feed.AssetChange{Slot: feed.AssetSlot(payload.Slot), URL: payload.URL})
	}
}

// Unsubscribe stops the poller and waits for it to exit, so no event is
// delivered after it returns. It is idempotent.
func (sub *subscription) Unsubscribe() error {
	sub.stop()
	sub.store.mu.Lock()
	delete(sub.store.subs, sub.id)
	sub.store.mu.Unlock()
	return nil
}

func (sub *subscription) stop() {
	sub.stopOnce.Do(func() { close(sub.stopCh) })
	<-sub.doneCh
}
