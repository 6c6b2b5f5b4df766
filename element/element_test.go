package element

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncErrors "github.com/c0deZ3R0/timeline-sync-kit/errors"
)

func sampleText() Element {
	return Element{
		UID:   "u-1",
		ID:    "e-text",
		Name:  "Text 1",
		Kind:  KindText,
		Order: 2,
		Placement: Placement{
			X: 10, Y: 20, Width: 100, Height: 50, ScaleX: 1, ScaleY: 1,
		},
		TimeFrame:     TimeFrame{Start: 0, End: 4000},
		EditPersonsID: []string{"alice"},
		Properties: TextProps{
			Text:       "hello",
			FontSize:   24,
			FontWeight: 400,
			SplitCache: []TextFragment{{Char: "h", Left: 10}, {Char: "e", Left: 22}},
		},
	}
}

func TestCopyIsValueIndependent(t *testing.T) {
	orig := sampleText()
	orig.RenderHandle = struct{ name string }{"live"}

	dup, err := Copy(orig)
	require.NoError(t, err)

	assert.Nil(t, dup.RenderHandle, "render handle must not survive a copy")

	// Mutating the copy's slices must not leak into the original.
	dup.EditPersonsID[0] = "mallory"
	props := dup.Properties.(TextProps)
	props.SplitCache[0].Char = "X"

	assert.Equal(t, "alice", orig.EditPersonsID[0])
	assert.Equal(t, "h", orig.Properties.(TextProps).SplitCache[0].Char)
}

func TestCopyDropsMediaHandle(t *testing.T) {
	el := NewVideo("https://cdn/v.mp4", 0, 16.0/9.0, 5000)
	props := el.Properties.(VideoProps)
	props.MediaHandle = struct{}{}
	el.Properties = props

	dup, err := Copy(el)
	require.NoError(t, err)
	assert.Nil(t, dup.Properties.(VideoProps).MediaHandle)
	assert.Equal(t, "https://cdn/v.mp4", dup.Properties.(VideoProps).Src)
}

func TestCopyUnsupportedKind(t *testing.T) {
	el := sampleText()
	el.Kind = "hologram"
	el.Properties = nil

	_, err := Copy(el)
	require.Error(t, err)
	assert.True(t, syncErrors.IsUnsupportedKind(err))
}

func TestTimeFrameClamp(t *testing.T) {
	tf := TimeFrame{Start: -50, End: 31_000}.Clamp(30_000)
	assert.Equal(t, int64(0), tf.Start)
	assert.Equal(t, int64(30_000), tf.End)

	// Values already inside the bounds are untouched.
	tf = TimeFrame{Start: 100, End: 900}.Clamp(30_000)
	assert.Equal(t, TimeFrame{Start: 100, End: 900}, tf)
}

func TestPlacementValidate(t *testing.T) {
	good := Placement{Width: 10, Height: 10, ScaleX: 1, ScaleY: 1}
	assert.NoError(t, good.Validate())

	bad := good
	bad.X = math.NaN()
	assert.Error(t, bad.Validate())

	bad = good
	bad.Width = -1
	assert.Error(t, bad.Validate())
}

func TestElementJSONRoundTrip(t *testing.T) {
	for _, el := range []Element{
		NewVideo("v.mp4", 0, 1.5, 2000),
		NewImage("i.png", 1, 1.0, 30_000),
		NewAudio("a.mp3", 2, 9000),
		NewText(TextOptions{Text: "hi", FontSize: 12, FontWeight: 700}, 3, 30_000),
	} {
		raw, err := json.Marshal(el)
		require.NoError(t, err, "kind %s", el.Kind)

		var decoded Element
		require.NoError(t, json.Unmarshal(raw, &decoded), "kind %s", el.Kind)
		assert.Equal(t, el.Kind, decoded.Properties.Kind())
		assert.Equal(t, el, decoded, "kind %s", el.Kind)
	}
}

func TestStripAbsent(t *testing.T) {
	in := map[string]any{
		"keep": "x",
		"drop": nil,
		"nested": map[string]any{
			"drop": nil,
			"list": []any{map[string]any{"drop": nil, "keep": 1.0}},
		},
	}
	out := StripAbsent(in).(map[string]any)

	assert.Equal(t, "x", out["keep"])
	_, dropped := out["drop"]
	assert.False(t, dropped)
	nested := out["nested"].(map[string]any)
	_, dropped = nested["drop"]
	assert.False(t, dropped)
	entry := nested["list"].([]any)[0].(map[string]any)
	assert.Equal(t, map[string]any{"keep": 1.0}, entry)
}

func TestMarshalPersistedExcludesHandles(t *testing.T) {
	el := sampleText()
	el.RenderHandle = struct{ x int }{1}

	raw, err := MarshalPersisted(el)
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	_, hasHandle := generic["RenderHandle"]
	assert.False(t, hasHandle)
	assert.Equal(t, "e-text", generic["id"])
}

func TestNewIDIsUniqueAndSortable(t *testing.T) {
	a, b := NewID(), NewID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 26)
	assert.LessOrEqual(t, a, b, "ids should be creation-ordered")
}
