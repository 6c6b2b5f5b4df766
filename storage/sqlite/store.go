// Package sqlite provides a SQLite-backed implementation of the remote
// document store contract. Changes are appended to a sequenced change log
// and subscriptions poll the log, so several processes sharing one database
// file observe each other's edits.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	stdSync "sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/c0deZ3R0/timeline-sync-kit/element"
	syncErrors "github.com/c0deZ3R0/timeline-sync-kit/errors"
	"github.com/c0deZ3R0/timeline-sync-kit/feed"
	"github.com/c0deZ3R0/timeline-sync-kit/logging"
)

const storeComponent = "storage/sqlite"

// ErrStoreClosed is returned for any operation after Close.
var ErrStoreClosed = errors.New("store is closed")

// Config holds configuration options for the SQLite document store.
type Config struct {
	// DataSourceName is the connection string for the SQLite database.
	DataSourceName string

	// EnableWAL enables Write-Ahead Logging mode for better concurrency.
	// Recommended when several sessions share one database file; enabled
	// by default. When true, "?_journal_mode=WAL" is appended to
	// DataSourceName unless a journal mode is already set.
	EnableWAL bool

	// PollInterval is how often subscriptions poll the change log.
	// Defaults to 250ms.
	PollInterval time.Duration

	// Connection pool settings.
	// Defaults: MaxOpen=25, MaxIdle=5, Lifetime=1h, IdleTime=5m
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func (c *Config) setDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = 250 * time.Millisecond
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
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.EnableWAL && !strings.Contains(c.DataSourceName, "_journal_mode=") {
		sep := "?"
		if strings.Contains(c.DataSourceName, "?") {
			sep = "&"
		}
		c.DataSourceName += sep + "_journal_mode=WAL"
	}
}

// DefaultConfig returns a Config with WAL mode enabled and production pool
// settings.
func DefaultConfig(dataSourceName string) *Config {
	config := &Config{
		DataSourceName: dataSourceName,
		EnableWAL:      true,
	}
	config.setDefaults()
	return config
}

// Store is a SQLite-backed feed.DocumentStore.
type Store struct {
	db           *sql.DB
	log          *logging.Logger
	pollInterval time.Duration

	mu     stdSync.Mutex
	closed bool
	subs   map[string]*subscription
}

var _ feed.DocumentStore = (*Store)(nil)

// New opens (or creates) the database named by config and prepares the
// schema. A nil config is rejected.
func New(config *Config) (*Store, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	config.setDefaults()
	if config.DataSourceName == "" {
		return nil, fmt.Errorf("DataSourceName is required")
	}

	db, err := sql.Open("sqlite3", config.DataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}

	store := &Store{
		db:           db,
		log:          logging.WithComponent(logging.Component(storeComponent)),
		pollInterval: config.PollInterval,
		subs:         make(map[string]*subscription),
	}
	if err := store.setupSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to setup database schema: %w", err)
	}
	return store, nil
}

// NewWithDataSource opens a store with default configuration.
func NewWithDataSource(dataSourceName string) (*Store, error) {
	return New(DefaultConfig(dataSourceName))
}

func (s *Store) setupSchema() error {
	query := `
    CREATE TABLE IF NOT EXISTS elements (
        uid         TEXT PRIMARY KEY,
        project_id  TEXT NOT NULL,
        doc         TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_elements_project ON elements (project_id);

    CREATE TABLE IF NOT EXISTS animations (
        uid         TEXT PRIMARY KEY,
        project_id  TEXT NOT NULL,
        doc         TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_animations_project ON animations (project_id);

    CREATE TABLE IF NOT EXISTS projects (
        id          TEXT PRIMARY KEY,
        background  TEXT NOT NULL DEFAULT '',
        max_time    INTEGER NOT NULL DEFAULT 0
    );

    CREATE TABLE IF NOT EXISTS assets (
        project_id  TEXT NOT NULL,
        slot        TEXT NOT NULL,
        url         TEXT NOT NULL,
        UNIQUE (project_id, slot, url)
    );

    CREATE TABLE IF NOT EXISTS changes (
        seq         INTEGER PRIMARY KEY AUTOINCREMENT,
        project_id  TEXT NOT NULL,
        entity      TEXT NOT NULL,
        kind        TEXT NOT NULL,
        doc         TEXT NOT NULL,
        created_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP
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
			`INSERT INTO elements (uid, project_id, doc) VALUES (?, ?, ?)`,
			uid, projectID, string(doc)); err != nil {
			return err
		}
		return appendChange(ctx, tx, projectID, "element", string(feed.ChangeAdded), doc)
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
		res, err := tx.ExecContext(ctx,
			`UPDATE elements SET doc = ? WHERE uid = ? AND project_id = ?`,
			string(doc), el.UID, projectID)
		if err != nil {
			return err
		}
		kind := feed.ChangeModified
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO elements (uid, project_id, doc) VALUES (?, ?, ?)`,
				el.UID, projectID, string(doc)); err != nil {
				return err
			}
			kind = feed.ChangeAdded
		}
		return appendChange(ctx, tx, projectID, "element", string(kind), doc)
	})
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpRemoteWrite, err)
	}
	return nil
}

// UpdateElementFields applies a field-level partial update to the record
// identified by uid.
func (s *Store) UpdateElementFields(ctx context.Context, projectID, uid string, fields map[string]any) error {
	if s.isClosed() {
		return ErrStoreClosed
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var raw string
		err := tx.QueryRowContext(ctx,
			`SELECT doc FROM elements WHERE uid = ? AND project_id = ?`,
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
			`UPDATE elements SET doc = ? WHERE uid = ? AND project_id = ?`,
			string(doc), uid, projectID); err != nil {
			return err
		}
		return appendChange(ctx, tx, projectID, "element", string(feed.ChangeModified), doc)
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
			`SELECT doc FROM elements WHERE uid = ? AND project_id = ?`,
			uid, projectID).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM elements WHERE uid = ? AND project_id = ?`,
			uid, projectID); err != nil {
			return err
		}
		return appendChange(ctx, tx, projectID, "element", string(feed.ChangeRemoved), []byte(raw))
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
			`INSERT INTO animations (uid, project_id, doc) VALUES (?, ?, ?)`,
			uid, projectID, string(doc)); err != nil {
			return err
		}
		return appendChange(ctx, tx, projectID, "animation", string(feed.ChangeAdded), doc)
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
		res, err := tx.ExecContext(ctx,
			`UPDATE animations SET doc = ? WHERE uid = ? AND project_id = ?`,
			string(doc), a.UID, projectID)
		if err != nil {
			return err
		}
		kind := feed.ChangeModified
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO animations (uid, project_id, doc) VALUES (?, ?, ?)`,
				a.UID, projectID, string(doc)); err != nil {
				return err
			}
			kind = feed.ChangeAdded
		}
		return appendChange(ctx, tx, projectID, "animation", string(kind), doc)
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
			`SELECT doc FROM animations WHERE uid = ? AND project_id = ?`,
			uid, projectID).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM animations WHERE uid = ? AND project_id = ?`,
			uid, projectID); err != nil {
			return err
		}
		return appendChange(ctx, tx, projectID, "animation", string(feed.ChangeRemoved), []byte(raw))
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
			INSERT INTO projects (id, background) VALUES (?, ?)
			ON CONFLICT (id) DO UPDATE SET background = excluded.background`,
			projectID, color); err != nil {
			return err
		}
		return appendChange(ctx, tx, projectID, "project", string(feed.ChangeModified), doc)
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
			INSERT INTO projects (id, max_time) VALUES (?, ?)
			ON CONFLICT (id) DO UPDATE SET max_time = excluded.max_time`,
			projectID, maxTime); err != nil {
			return err
		}
		return appendChange(ctx, tx, projectID, "project", string(feed.ChangeModified), doc)
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
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO assets (project_id, slot, url) VALUES (?, ?, ?)`,
			projectID, string(slot), url)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return nil
		}
		return appendChange(ctx, tx, projectID, "asset", string(feed.ChangeAdded), doc)
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

func appendChange(ctx context.Context, tx *sql.Tx, projectID, entity, kind string, doc []byte) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO changes (project_id, entity, kind, doc) VALUES (?, ?, ?, ?)`,
		projectID, entity, kind, string(doc))
	return err
}
