package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/timeline-sync-kit/element"
	"github.com/c0deZ3R0/timeline-sync-kit/feed"
)

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

type eventLog struct {
	elements []feed.ElementChange
	projects []feed.ProjectChange
	assets   []feed.AssetChange
}

func (l *eventLog) handler() feed.Handler {
	return feed.Handler{
		OnElement: func(ev feed.ElementChange) error {
			l.elements = append(l.elements, ev)
			return nil
		},
		OnProject: func(ev feed.ProjectChange) error {
			l.projects = append(l.projects, ev)
			return nil
		},
		OnAsset: func(ev feed.AssetChange) error {
			l.assets = append(l.assets, ev)
			return nil
		},
	}
}

func TestCreateElementAssignsUIDAndNotifies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	var log eventLog
	sub, err := s.Subscribe(ctx, "p1", log.handler())
	require.NoError(t, err)
	defer sub.Unsubscribe()

	uid, err := s.CreateElement(ctx, "p1", testElement("e1"))
	require.NoError(t, err)
	assert.NotEmpty(t, uid)

	require.Len(t, log.elements, 1)
	assert.Equal(t, feed.ChangeAdded, log.elements[0].Kind)
	assert.Equal(t, uid, log.elements[0].Element.UID)
	assert.Equal(t, "e1", log.elements[0].Element.ID)
}

func TestPutElementUpsertsByUID(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	uid, err := s.CreateElement(ctx, "p1", testElement("e1"))
	require.NoError(t, err)

	var log eventLog
	sub, err := s.Subscribe(ctx, "p1", log.handler())
	require.NoError(t, err)
	defer sub.Unsubscribe()
	log.elements = nil // drop initial replay

	updated := testElement("e1")
	updated.UID = uid
	updated.Placement.X = 42
	require.NoError(t, s.PutElement(ctx, "p1", updated))

	require.Len(t, log.elements, 1)
	assert.Equal(t, feed.ChangeModified, log.elements[0].Kind)
	assert.Equal(t, 42.0, log.elements[0].Element.Placement.X)

	// Unknown uid creates instead.
	fresh := testElement("e2")
	fresh.UID = "uid-unknown"
	require.NoError(t, s.PutElement(ctx, "p1", fresh))
	require.Len(t, log.elements, 2)
	assert.Equal(t, feed.ChangeAdded, log.elements[1].Kind)
}

func TestPutElementRequiresUID(t *testing.T) {
	s := NewStore()
	err := s.PutElement(context.Background(), "p1", testElement("e1"))
	assert.Error(t, err)
}

func TestUpdateElementFieldsPatchesSingleField(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	uid, err := s.CreateElement(ctx, "p1", testElement("e1"))
	require.NoError(t, err)

	var log eventLog
	sub, err := s.Subscribe(ctx, "p1", log.handler())
	require.NoError(t, err)
	defer sub.Unsubscribe()
	log.elements = nil

	require.NoError(t, s.UpdateElementFields(ctx, "p1", uid, map[string]any{"order": 7}))

	require.Len(t, log.elements, 1)
	got := log.elements[0].Element
	assert.Equal(t, 7, got.Order)
	// Untouched fields survive the patch.
	assert.Equal(t, element.KindText, got.Kind)
	assert.Equal(t, int64(1000), got.TimeFrame.End)
	props, ok := got.Properties.(element.TextProps)
	require.True(t, ok)
	assert.Equal(t, "hello", props.Text)
}

func TestUpdateElementFieldsUnknownUID(t *testing.T) {
	s := NewStore()
	err := s.UpdateElementFields(context.Background(), "p1", "nope", map[string]any{"order": 1})
	assert.Error(t, err)
}

func TestDeleteElementEmitsLastState(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	uid, err := s.CreateElement(ctx, "p1", testElement("e1"))
	require.NoError(t, err)

	var log eventLog
	sub, err := s.Subscribe(ctx, "p1", log.handler())
	require.NoError(t, err)
	defer sub.Unsubscribe()
	log.elements = nil

	require.NoError(t, s.DeleteElement(ctx, "p1", uid))
	require.Len(t, log.elements, 1)
	assert.Equal(t, feed.ChangeRemoved, log.elements[0].Kind)
	assert.Equal(t, "e1", log.elements[0].Element.ID)

	// Deleting again is a no-op.
	require.NoError(t, s.DeleteElement(ctx, "p1", uid))
	assert.Len(t, log.elements, 1)
}

func TestSubscribeReplaysExistingState(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_, err := s.CreateElement(ctx, "p1", testElement("e1"))
	require.NoError(t, err)
	_, err = s.CreateElement(ctx, "p1", testElement("e2"))
	require.NoError(t, err)
	require.NoError(t, s.SetBackground(ctx, "p1", "#abcdef"))
	require.NoError(t, s.AddAssetURL(ctx, "p1", feed.AssetVideos, "mem://v1"))

	var log eventLog
	sub, err := s.Subscribe(ctx, "p1", log.handler())
	require.NoError(t, err)
	defer sub.Unsubscribe()

	assert.Len(t, log.elements, 2)
	for _, ev := range log.elements {
		assert.Equal(t, feed.ChangeAdded, ev.Kind)
	}
	require.NotEmpty(t, log.projects)
	require.NotNil(t, log.projects[0].Background)
	assert.Equal(t, "#abcdef", *log.projects[0].Background)
	require.Len(t, log.assets, 1)
	assert.Equal(t, "mem://v1", log.assets[0].URL)
}

func TestUnsubscribeStopsDeliveryAndIsIdempotent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	var log eventLog
	sub, err := s.Subscribe(ctx, "p1", log.handler())
	require.NoError(t, err)

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe())

	_, err = s.CreateElement(ctx, "p1", testElement("e1"))
	require.NoError(t, err)
	assert.Empty(t, log.elements)
}

func TestProjectsAreIsolated(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	var log eventLog
	sub, err := s.Subscribe(ctx, "p2", log.handler())
	require.NoError(t, err)
	defer sub.Unsubscribe()

	_, err = s.CreateElement(ctx, "p1", testElement("e1"))
	require.NoError(t, err)
	assert.Empty(t, log.elements)
}

func TestStoreRejectsWritesAfterClose(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.CreateElement(context.Background(), "p1", testElement("e1"))
	assert.Error(t, err)
}

func TestHandleStrippedBeforeStorage(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	el := testElement("e1")
	el.RenderHandle = struct{ name string }{"canvas"}

	var log eventLog
	sub, err := s.Subscribe(ctx, "p1", log.handler())
	require.NoError(t, err)
	defer sub.Unsubscribe()

	_, err = s.CreateElement(ctx, "p1", el)
	require.NoError(t, err)
	require.Len(t, log.elements, 1)
	assert.Nil(t, log.elements[0].Element.RenderHandle)
}

func TestAssetUpload(t *testing.T) {
	a := NewAssets()
	url, err := a.Upload(context.Background(), "videos", "clip.mp4", strings.NewReader("abc"))
	require.NoError(t, err)
	assert.Equal(t, "mem://videos/clip.mp4", url)

	data, ok := a.Get(url)
	require.True(t, ok)
	assert.Equal(t, []byte("abc"), data)
}
