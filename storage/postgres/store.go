// Package postgres provides a PostgreSQL-backed implementation of the remote
// document store contract. Writes append to a sequenced change log and raise
// a NOTIFY, so subscriptions deliver changes without polling; every session
// connected to the database observes every other session's edits.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	stdSync "sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/c0deZ3R0/timeline-sync-kit/element"
	syncErrors "github.com/c0deZ3R0/timeline-sync-kit/errors"
	"github.com/c0deZ3R0/timeline-sync-kit/feed"
	"github.com/c0deZ3R0/timeline-sync-kit/logging"
)

const (
	storeComponent = "storage/postgres"

	// notifyChannel is the single LISTEN/NOTIFY channel all projects share.
	// The payload names the project; listeners filter and then read the
	// change log, so a lost notification only delays delivery until the
	// next one.
	notifyChannel = "timeline_changes"
)

// ErrStoreClosed is returned for any operation after Close.
var ErrStoreClosed = errors.New("store is closed")

// Config holds configuration options for the PostgreSQL document store.
type Config struct {
	// ConnectionString is the lib/pq connection string.
	ConnectionString string

	// Listener reconnect backoff bounds. Defaults: 10s min, 1m max.
	ReconnectMinInterval time.Duration
	ReconnectMaxInterval time.Duration

	// Connection pool settings.
	// Defaults: MaxOpen=25, MaxIdle=5, Lifetime=1h
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c *Config) setDefaults() {
	if c.ReconnectMinInterval == 0 {
		c.ReconnectMinInterval = 10 * time.Second
	}
	if c.ReconnectMaxInterval == 0 {
		c.ReconnectMaxInterval = time.Minute
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
}

// DefaultConfig returns a Config with production pool and reconnect
// settings.
func DefaultConfig(connectionString string) *Config {
	config := &Config{ConnectionString: connectionString}
	config.setDefaults()
	return config
}

// Store is a PostgreSQL-backed feed.DocumentStore.
type Store struct {
	db      *sql.DB
	log     *logging.Logger
	connStr string
	config  *Config

	mu     stdSync.Mutex
	closed bool
	subs   map[string]*subscription
}

var _ feed.DocumentStore = (*Store)(nil)

// New connects to the database named by config and prepares the schema.
func New(config *Config) (*Store, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	config.setDefaults()
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("ConnectionString is required")
	}

	db, err := sql.Open("postgres", config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres database: %w", err)
	}

	store := &Store{
		db:      db,
		log:     logging.WithComponent(logging.Component(storeComponent)),
		connStr: config.ConnectionString,
		config:  config,
		subs:    make(map[string]*subscription),
	}
	if err := store.setupSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to setup database schema: %w", err)
	}
	return store, nil
}

func (s *Store) setupSchema() error {
	query := `
    CREATE TABLE IF NOT EXISTS elements (
        uid         TEXT PRIMARY KEY,
        project_id  TEXT NOT NULL,
        doc         JSONB NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_elements_project ON elements (project_id);

    CREATE TABLE IF NOT EXISTS animations (
        uid         TEXT PRIMARY KEY,
        project_id  TEXT NOT NULL,
        doc         JSONB NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_animations_project ON animations (project_id);

    CREATE TABLE IF NOT EXISTS projects (
        id          TEXT PRIMARY KEY,
        background  TEXT NOT NULL DEFAULT '',
        max_time    BIGINT NOT NULL DEFAULT 0
    );

    CREATE TABLE IF NOT EXISTS assets (
        project_id  TEXT NOT NULL,
        slot        TEXT NOT NULL,
        url         TEXT NOT NULL,
        UNIQUE (project_id, slot, url)
    );

    CREATE TABLE IF NOT EXISTS changes (
        seq         BIGSERIAL PRIMARY KEY,
        project_id  TEXT NOT NULL,
        entity      TEXT NOT NULL,
        kind        TEXT NOT NULL,
        doc         JSONB NOT NULL,
        created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE INDEX IF NOT EXISTS idx_changes_project ON changes (project_id, seq);
    `
	_, err := s.db.Exec(query)
	return err
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// CreateElement persists a new element record and returns the store-assigned
// identifier.
func (s *Store) CreateElement(ctx context.Context, projectID string, el element.Element) (string, error) {
	if s.isClosed() {
		return "", ErrStoreClosed
	}
	uid := uuid.NewString()
	el.UID = uid
	doc, err := element.MarshalPersisted(el)
	if err != nil {
		return "", syncErrors.NewStorageError(syncErrors.OpRemoteWrite, err)
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO elements (uid, project_id, doc) VALUES ($1, $2, $3)`,
			uid, projectID, string(doc)); err != nil {
			return err
		}
		return s.appendChange(ctx, tx, projectID, "element", string(feed.ChangeAdded), doc)
	})
	if err != nil {
		return "", syncErrors.NewStorageError(syncErrors.OpRemoteWrite, err)
	}
	return uid, nil
}

// PutElement replaces the record identified by el.UID, creating it when the
// uid is unknown.
func (s *Store) PutElement(ctx context.Context, projectID string, el element.Element) error {
	if s.isClosed() {
		return ErrStoreClosed
	}
	if el.UID == "" {
		return syncErrors.NewMissingUIDError(syncErrors.OpRemoteWrite, el.ID)
	}
	doc, err := element.MarshalPersisted(el)
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpRemoteWrite, err)
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var inserted bool
		err := tx.QueryRowContext(ctx, `
			INSERT INTO elements (uid, project_id, doc) VALUES ($1, $2, $3)
			ON CONFLICT (uid) DO UPDATE SET doc = excluded.doc
			RETURNING (xmax = 0)`,
			el.UID, projectID, string(doc)).Scan(&inserted)
		if err != nil {
			return err
		}
		kind := feed.ChangeModified
		if inserted {
			kind = feed.ChangeAdded
		}
		return s.appendChange(ctx, tx, projectID, "element", string(kind), doc)
	})
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpRemoteWrite, err)
	}
	return nil
}

// UpdateElementFields applies a field-level partial update to the record
// identified by uid. The row is locked for the read-modify-write.
func (s *Store) UpdateElementFields(ctx context.Context, projectID, uid string, fields map[string]any) error {
	if s.isClosed() {
		return ErrStoreClosed
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var raw string
		err := tx.QueryRowContext(ctx,
			`SELECT doc FROM elements WHERE uid = $1 AND project_id = $2 FOR UPDATE`,
			uid, projectID).Scan(&raw)
		if err != nil {
			return err
		}
		var current element.Element
		if err := json.Unmarshal([]byte(raw), &current); err != nil {
			return err
		}
		updated, err := element.OverlayFields(current, fields)
		if err != nil {
			return err
		}
		updated.UID = uid
		doc, err := element.MarshalPersisted(updated)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE elements SET doc = $1 WHERE uid = $2 AND project_id = $3`,
			string(doc), uid, projectID); err != nil {
			return err
		}
		return s.appendChange(ctx, tx, projectID, "element", string(feed.ChangeModified), doc)
	})
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpRemoteWrite, err)
	}
	return nil
}

// DeleteElement removes the record identified by uid. The change-log entry
// carries the record's last state.
func (s *Store) DeleteElement(ctx context.Context, projectID, uid string) error {
	if s.isClosed() {
		return ErrStoreClosed
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var raw string
		err := tx.QueryRowContext(ctx,
			`DELETE FROM elements WHERE uid = $1 AND project_id = $2 RETURNING doc`,
			uid, projectID).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		return s.appendChange(ctx, tx, projectID, "element", string(feed.ChangeRemoved), []byte(raw))
	})
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpRemoteWrite, err)
	}
	return nil
}

// CreateAnimation persists a new animation record.
func (s *Store) CreateAnimation(ctx context.Context, projectID string, a element.Animation) (string, error) {
	if s.isClosed() {
		return "", ErrStoreClosed
	}
	uid := uuid.NewString()
	a.UID = uid
	doc, err := element.MarshalPersistedAnimation(a)
	if err != nil {
		return "", syncErrors.NewStorageError(syncErrors.OpRemoteWrite, err)
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO animations (uid, project_id, doc) VALUES ($1, $2, $3)`,
			uid, projectID, string(doc)); err != nil {
			return err
		}
		return s.appendChange(ctx, tx, projectID, "animation", string(feed.ChangeAdded), doc)
	})
	if err != nil {
		return "", syncErrors.NewStorageError(syncErrors.OpRemoteWrite, err)
	}
	return uid, nil
}

// PutAnimation replaces the record identified by a.UID.
func (s *Store) PutAnimation(ctx context.Context, projectID string, a element.Animation) error {
	if s.isClosed() {
		return ErrStoreClosed
	}
	if a.UID == "" {
		return syncErrors.NewMissingUIDError(syncErrors.OpRemoteWrite, a.ID)
	}
	doc, err := element.MarshalPersistedAnimation(a)
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpRemoteWrite, err)
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var inserted bool
		err := tx.QueryRowContext(ctx, `
			INSERT INTO animations (uid, project_id, doc) VALUES ($1, $2, $3)
			ON CONFLICT (uid) DO UPDATE SET doc = excluded.doc
			RETURNING (xmax = 0)`,
			a.UID, projectID, string(doc)).Scan(&inserted)
		if err != nil {
			return err
		}
		kind := feed.ChangeModified
		if inserted {
			kind = feed.ChangeAdded
		}
		return s.appendChange(ctx, tx, projectID, "animation", string(kind), doc)
	})
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpRemoteWrite, err)
	}
	return nil
}

// DeleteAnimation removes the record identified by uid.
func (s *Store) DeleteAnimation(ctx context.Context, projectID, uid string) error {
	if s.isClosed() {
		return ErrStoreClosed
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var raw string
		err := tx.QueryRowContext(ctx,
			`DELETE FROM animations WHERE uid = $1 AND project_id = $2 RETURNING doc`,
			uid, projectID).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		return s.appendChange(ctx, tx, projectID, "animation", string(feed.ChangeRemoved), []byte(raw))
	})
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpRemoteWrite, err)
	}
	return nil
}

// SetBackground partially updates the project's background color.
func (s *Store) SetBackground(ctx context.Context, projectID, color string) error {
	if s.isClosed() {
		return ErrStoreClosed
	}
	doc, _ := json.Marshal(map[string]any{"background": color})
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projects (id, background) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET background = excluded.background`,
			projectID, color); err != nil {
			return err
		}
		return s.appendChange(ctx, tx, projectID, "project", string(feed.ChangeModified), doc)
	})
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpRemoteWrite, err)
	}
	return nil
}

// SetMaxTime partially updates the project's duration bound.
func (s *Store) SetMaxTime(ctx context.Context, projectID string, maxTime int64) error {
	if s.isClosed() {
		return ErrStoreClosed
	}
	doc, _ := json.Marshal(map[string]any{"maxTime": maxTime})
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projects (id, max_time) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET max_time = excluded.max_time`,
			projectID, maxTime); err != nil {
			return err
		}
		return s.appendChange(ctx, tx, projectID, "project", string(feed.ChangeModified), doc)
	})
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpRemoteWrite, err)
	}
	return nil
}

// AddAssetURL registers a retrieval URL in the named asset slot. Duplicate
// registrations are silently ignored.
func (s *Store) AddAssetURL(ctx context.Context, projectID string, slot feed.AssetSlot, url string) error {
	if s.isClosed() {
		return ErrStoreClosed
	}
	doc, _ := json.Marshal(map[string]any{"slot": string(slot), "url": url})
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO assets (project_id, slot, url) VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING`,
			projectID, string(slot), url)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return nil
		}
		return s.appendChange(ctx, tx, projectID, "asset", string(feed.ChangeAdded), doc)
	})
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpRemoteWrite, err)
	}
	return nil
}

// Close stops all subscriptions and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	return s.db.Close()
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// appendChange records the change and raises the NOTIFY inside the same
// transaction, so listeners never observe a notification before the row is
// visible.
func (s *Store) appendChange(ctx context.Context, tx *sql.Tx, projectID, entity, kind string, doc []byte) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO changes (project_id, entity, kind, doc) VALUES ($1, $2, $3, $4)`,
		projectID, entity, kind, string(doc)); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, projectID)
	return err
}
