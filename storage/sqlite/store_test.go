package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/timeline-sync-kit/element"
	"github.com/c0deZ3R0/timeline-sync-kit/feed"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "timeline.db")
	s, err := New(&Config{DataSourceName: dsn, EnableWAL: true, PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testElement(id string) element.Element {
	return element.Element{
		ID:   id,
		Name: "Text " + id,
		Kind: element.KindText,
		Placement: element.Placement{
			Width: 100, Height: 40, ScaleX: 1, ScaleY: 1,
		},
		TimeFrame:  element.TimeFrame{Start: 0, End: 1000},
		Properties: element.TextProps{Text: "hello", FontSize: 16, FontWeight: 400},
	}
}

// collector buffers events delivered by a polling subscription.
type collector struct {
	mu       sync.Mutex
	elements []feed.ElementChange
	projects []feed.ProjectChange
	assets   []feed.AssetChange
}

func (c *collector) handler() feed.Handler {
	return feed.Handler{
		OnElement: func(ev feed.ElementChange) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.elements = append(c.elements, ev)
			return nil
		},
		OnProject: func(ev feed.ProjectChange) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.projects = append(c.projects, ev)
			return nil
		},
		OnAsset: func(ev feed.AssetChange) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.assets = append(c.assets, ev)
			return nil
		},
	}
}

func (c *collector) elementCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.elements)
}

func (c *collector) lastElement() (feed.ElementChange, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.elements) == 0 {
		return feed.ElementChange{}, false
	}
	return c.elements[len(c.elements)-1], true
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
	_, err = New(&Config{})
	assert.Error(t, err)
}

func TestElementRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	uid, err := s.CreateElement(ctx, "p1", testElement("e1"))
	require.NoError(t, err)
	require.NotEmpty(t, uid)

	var c collector
	sub, err := s.Subscribe(ctx, "p1", c.handler())
	require.NoError(t, err)
	defer sub.Unsubscribe()

	// Initial replay delivers the existing record.
	waitFor(t, func() bool { return c.elementCount() >= 1 })
	ev, _ := c.lastElement()
	assert.Equal(t, feed.ChangeAdded, ev.Kind)
	assert.Equal(t, "e1", ev.Element.ID)
	assert.Equal(t, uid, ev.Element.UID)

	updated := testElement("e1")
	updated.UID = uid
	updated.Placement.X = 42
	require.NoError(t, s.PutElement(ctx, "p1", updated))

	waitFor(t, func() bool {
		ev, ok := c.lastElement()
		return ok && ev.Kind == feed.ChangeModified && ev.Element.Placement.X == 42
	})

	require.NoError(t, s.DeleteElement(ctx, "p1", uid))
	waitFor(t, func() bool {
		ev, ok := c.lastElement()
		return ok && ev.Kind == feed.ChangeRemoved
	})
	ev, _ = c.lastElement()
	// Removal carries the record's last state.
	assert.Equal(t, 42.0, ev.Element.Placement.X)
}

func TestUpdateElementFieldsPatches(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	uid, err := s.CreateElement(ctx, "p1", testElement("e1"))
	require.NoError(t, err)

	require.NoError(t, s.UpdateElementFields(ctx, "p1", uid, map[string]any{"order": 5}))

	var c collector
	sub, err := s.Subscribe(ctx, "p1", c.handler())
	require.NoError(t, err)
	defer sub.Unsubscribe()

	waitFor(t, func() bool { return c.elementCount() >= 1 })
	ev, _ := c.lastElement()
	assert.Equal(t, 5, ev.Element.Order)
	assert.Equal(t, int64(1000), ev.Element.TimeFrame.End)
}

func TestUpdateElementFieldsUnknownUID(t *testing.T) {
	s := testStore(t)
	err := s.UpdateElementFields(context.Background(), "p1", "missing", map[string]any{"order": 1})
	assert.Error(t, err)
}

func TestProjectScalarsAndAssets(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetBackground(ctx, "p1", "#abcdef"))
	require.NoError(t, s.SetMaxTime(ctx, "p1", 60_000))
	require.NoError(t, s.AddAssetURL(ctx, "p1", feed.AssetVideos, "mem://v1"))
	// Duplicate asset registration is ignored.
	require.NoError(t, s.AddAssetURL(ctx, "p1", feed.AssetVideos, "mem://v1"))

	var c collector
	sub, err := s.Subscribe(ctx, "p1", c.handler())
	require.NoError(t, err)
	defer sub.Unsubscribe()

	waitFor(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.projects) >= 1 && len(c.assets) >= 1
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotNil(t, c.projects[0].Background)
	assert.Equal(t, "#abcdef", *c.projects[0].Background)
	require.NotNil(t, c.projects[0].MaxTime)
	assert.Equal(t, int64(60_000), *c.projects[0].MaxTime)
	assert.Len(t, c.assets, 1)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	var c collector
	sub, err := s.Subscribe(ctx, "p1", c.handler())
	require.NoError(t, err)

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe())

	_, err = s.CreateElement(ctx, "p1", testElement("e1"))
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, c.elementCount())
}

func TestWritesRejectedAfterClose(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.CreateElement(context.Background(), "p1", testElement("e1"))
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestProjectsIsolated(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	var c collector
	sub, err := s.Subscribe(ctx, "p2", c.handler())
	require.NoError(t, err)
	defer sub.Unsubscribe()

	_, err = s.CreateElement(ctx, "p1", testElement("e1"))
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, c.elementCount())
}
