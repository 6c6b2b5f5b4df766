package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/timeline-sync-kit/element"
)

func base() element.Element {
	return element.Element{
		UID:  "u-1",
		ID:   "e-1",
		Name: "Media(video) 1",
		Kind: element.KindVideo,
		Placement: element.Placement{
			Width: 160, Height: 100, ScaleX: 1, ScaleY: 1,
		},
		TimeFrame: element.TimeFrame{Start: 0, End: 1000},
		Properties: element.VideoProps{
			Src:      "v.mp4",
			SourceID: "video-e-1",
			Effect:   element.Effect{Kind: element.EffectNone},
		},
	}
}

func TestIdenticalSnapshotsYieldEmptyDelta(t *testing.T) {
	d, err := Elements(base(), base())
	require.NoError(t, err)
	assert.True(t, d.Empty())
}

func TestRenderHandleNeverAppearsInDelta(t *testing.T) {
	a := base()
	b := base()
	b.RenderHandle = struct{ live bool }{true}
	props := b.Properties.(element.VideoProps)
	props.MediaHandle = struct{}{}
	b.Properties = props

	d, err := Elements(a, b)
	require.NoError(t, err)
	assert.True(t, d.Empty(), "handles must be structurally invisible, got %v", d.Fields())
}

func TestSingleFieldDeltaCarriesBValue(t *testing.T) {
	a := base()
	b := base()
	b.Placement.X = 42

	d, err := Elements(a, b)
	require.NoError(t, err)
	require.True(t, d.Has(FieldPlacement))
	assert.Len(t, d, 1)
	assert.Equal(t, 42.0, d[FieldPlacement].(element.Placement).X)
}

func TestMultiFieldDelta(t *testing.T) {
	a := base()
	b := base()
	b.Order = 5
	b.TimeFrame.End = 2000
	b.Name = "renamed"
	props := b.Properties.(element.VideoProps)
	props.Effect = element.Effect{Kind: element.EffectSepia}
	b.Properties = props
	b.EditPersonsID = []string{"bob"}

	d, err := Elements(a, b)
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{FieldOrder, FieldTimeFrame, FieldName, FieldProperties, FieldEditors},
		d.Fields())
}

func TestCopyThenDiffIsEmptyForEveryKind(t *testing.T) {
	for _, el := range []element.Element{
		element.NewVideo("v.mp4", 0, 1.5, 2000),
		element.NewImage("i.png", 1, 1.0, 30_000),
		element.NewAudio("a.mp3", 2, 9000),
		element.NewText(element.TextOptions{Text: "hi", FontSize: 12, FontWeight: 700}, 3, 30_000),
	} {
		dup, err := element.Copy(el)
		require.NoError(t, err, "kind %s", el.Kind)

		d, err := Elements(el, dup)
		require.NoError(t, err, "kind %s", el.Kind)
		assert.True(t, d.Empty(), "kind %s: %v", el.Kind, d.Fields())
	}
}

func TestUnsupportedKindFails(t *testing.T) {
	a := base()
	a.Kind = "hologram"
	a.Properties = nil

	_, err := Elements(a, base())
	assert.Error(t, err)
}

func TestFieldEqual(t *testing.T) {
	a := base()
	b := base()
	assert.True(t, FieldEqual(FieldPlacement, a, b))

	b.Placement.Y = 9
	assert.False(t, FieldEqual(FieldPlacement, a, b))
	assert.True(t, FieldEqual(FieldTimeFrame, a, b))
}

func TestAnimations(t *testing.T) {
	a := element.NewAnimation(element.AnimationFadeIn, "e-1", 500, element.AnimationProps{})
	b := a
	assert.False(t, Animations(a, b))

	b.Duration = 800
	assert.True(t, Animations(a, b))
}
