package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/timeline-sync-kit/element"
)

func original() element.Element {
	return element.Element{
		UID:  "u-1",
		ID:   "e1",
		Name: "Media(video) 1",
		Kind: element.KindVideo,
		Placement: element.Placement{
			X: 0, Y: 0, Width: 160, Height: 100, ScaleX: 1, ScaleY: 1,
		},
		TimeFrame: element.TimeFrame{Start: 0, End: 1000},
		Properties: element.VideoProps{
			Src:      "v.mp4",
			SourceID: "video-e1",
			Effect:   element.Effect{Kind: element.EffectNone},
		},
	}
}

func TestDisjointFieldMergeSucceeds(t *testing.T) {
	o := original()

	local := o
	local.Placement.X = 50

	remote := o
	remote.TimeFrame.End = 2000

	res, err := Update(o, local, remote)
	require.NoError(t, err)
	require.False(t, res.Conflict)
	assert.True(t, res.Repersist)

	assert.Equal(t, 50.0, res.Merged.Placement.X, "local placement change must survive")
	assert.Equal(t, int64(2000), res.Merged.TimeFrame.End, "remote timeFrame change must survive")
	assert.Equal(t, o.Order, res.Merged.Order)
	assert.Equal(t, o.Properties, res.Merged.Properties)
}

func TestSameFieldConflictingMergeFails(t *testing.T) {
	o := original()

	local := o
	local.Placement.X = 10

	remote := o
	remote.Placement.X = 20

	res, err := Update(o, local, remote)
	require.NoError(t, err)
	assert.True(t, res.Conflict, "divergent same-field edits must not silently pick a side")
}

func TestSameFieldConvergedMergeSucceeds(t *testing.T) {
	o := original()

	local := o
	local.Placement.X = 33

	remote := o
	remote.Placement.X = 33

	res, err := Update(o, local, remote)
	require.NoError(t, err)
	require.False(t, res.Conflict)
	assert.Equal(t, 33.0, res.Merged.Placement.X)
}

func TestBothSidesUntouchedKeepsOriginal(t *testing.T) {
	o := original()
	res, err := Update(o, o, o)
	require.NoError(t, err)
	require.False(t, res.Conflict)
	assert.Equal(t, o.Placement, res.Merged.Placement)
	assert.Equal(t, o.TimeFrame, res.Merged.TimeFrame)
}

func TestPropertiesMerge(t *testing.T) {
	o := original()

	// Local edits the effect, remote retimes: disjoint, merges.
	local := o
	lp := local.Properties.(element.VideoProps)
	lp.Effect = element.Effect{Kind: element.EffectSepia}
	local.Properties = lp

	remote := o
	remote.TimeFrame.Start = 250

	res, err := Update(o, local, remote)
	require.NoError(t, err)
	require.False(t, res.Conflict)
	assert.Equal(t, element.EffectSepia, res.Merged.Properties.(element.VideoProps).Effect.Kind)
	assert.Equal(t, int64(250), res.Merged.TimeFrame.Start)

	// Both edit the effect differently: conflict.
	remote = o
	rp := remote.Properties.(element.VideoProps)
	rp.Effect = element.Effect{Kind: element.EffectInvert}
	remote.Properties = rp

	res, err = Update(o, local, remote)
	require.NoError(t, err)
	assert.True(t, res.Conflict)
}

func TestEditorsListMerge(t *testing.T) {
	o := original()
	o.EditPersonsID = []string{"alice"}

	local := o
	local.EditPersonsID = []string{"alice", "bob"}

	remote := o

	res, err := Update(o, local, remote)
	require.NoError(t, err)
	require.False(t, res.Conflict)
	assert.Equal(t, []string{"alice", "bob"}, res.Merged.EditPersonsID)
}

func TestDeleteWins(t *testing.T) {
	o := original()

	local := o
	local.Placement.X = 999
	local.Name = "heavily edited"

	remote := o
	remote.TimeFrame.End = 500

	res, err := Delete(o, local, remote)
	require.NoError(t, err)
	assert.False(t, res.Conflict, "the delete path never conflicts")
	assert.True(t, res.Repersist)
	assert.Equal(t, remote.TimeFrame, res.Merged.TimeFrame)
	assert.Equal(t, 0.0, res.Merged.Placement.X, "local edits are discarded")
	assert.Equal(t, o.Name, res.Merged.Name)
}

func TestResolveDispatch(t *testing.T) {
	o := original()

	local := o
	local.Placement.X = 5

	remote := o
	remote.Placement.X = 6

	res, err := Resolve(ChangeDeleted, o, local, remote)
	require.NoError(t, err)
	assert.False(t, res.Conflict)

	res, err = Resolve(ChangeUpdated, o, local, remote)
	require.NoError(t, err)
	assert.True(t, res.Conflict)
}

func TestMergeDoesNotAliasInputs(t *testing.T) {
	o := original()
	o.EditPersonsID = []string{"alice"}

	local := o
	local.EditPersonsID = []string{"alice", "bob"}

	res, err := Update(o, local, o)
	require.NoError(t, err)

	res.Merged.EditPersonsID[0] = "mallory"
	assert.Equal(t, "alice", local.EditPersonsID[0])
}
