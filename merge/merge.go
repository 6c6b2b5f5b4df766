// Package merge implements the pragmatic per-field three-way merge used when
// a locally edited element diverged from its remote replica. Full CRDT or OT
// semantics are deliberately out of scope: concurrent edits on a flat set of
// timeline elements usually touch disjoint fields, and when both editors
// touch the same field differently the engine degrades to an explicit,
// user-visible fork instead of silently losing one side.
package merge

import (
	"github.com/c0deZ3R0/timeline-sync-kit/diff"
	"github.com/c0deZ3R0/timeline-sync-kit/element"
	syncErrors "github.com/c0deZ3R0/timeline-sync-kit/errors"
)

// ChangeKind classifies the pending remote change being reconciled.
type ChangeKind string

const (
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

// Result is the outcome of a resolution attempt. Conflict is a normal,
// expected outcome, not an error: the reconciler responds by forking the
// local branch onto the conflict shelf.
type Result struct {
	// Merged is the resolved element, valid only when Conflict is false.
	Merged element.Element

	// Conflict is true when both sides changed the same field differently
	// and no automatic resolution exists.
	Conflict bool

	// Repersist is true when the merged element must be written back to the
	// remote store (always for the delete-wins path, and after every
	// successful update merge so collaborators converge).
	Repersist bool
}

// Update merges a diverged element. original is the last canonical value the
// local session agreed on, local the value under local edit when divergence
// was noticed, remote the latest value seen on the feed.
//
// Fields untouched by both sides keep original's value. Fields touched by
// one side take that side's value. Fields touched by both sides merge only
// when both converged on the same value; otherwise the whole merge fails and
// no partial result is returned.
func Update(original, local, remote element.Element) (Result, error) {
	deltaLocal, err := diff.Elements(original, local)
	if err != nil {
		return Result{}, syncErrors.WrapOpComponent(err, syncErrors.OpMerge, "merge")
	}
	deltaRemote, err := diff.Elements(original, remote)
	if err != nil {
		return Result{}, syncErrors.WrapOpComponent(err, syncErrors.OpMerge, "merge")
	}

	merged, err := element.Copy(original)
	if err != nil {
		return Result{}, syncErrors.WrapOpComponent(err, syncErrors.OpMerge, "merge")
	}

	for _, field := range diff.MergeableFields {
		localTouched := deltaLocal.Has(field)
		remoteTouched := deltaRemote.Has(field)

		switch {
		case !localTouched && !remoteTouched:
			// Keep original's value.
		case localTouched && !remoteTouched:
			setField(&merged, field, local)
		case !localTouched && remoteTouched:
			setField(&merged, field, remote)
		default:
			// Both sides touched the field. Converged changes apply
			// cleanly; anything else is a conflict for the whole element.
			if !diff.FieldEqual(field, local, remote) {
				return Result{Conflict: true}, nil
			}
			setField(&merged, field, local)
		}
	}

	return Result{Merged: merged, Repersist: true}, nil
}

// Delete resolves a divergence whose remote side is a removal: the remote
// delete always wins. The remote snapshot carried by the removal event is
// re-persisted as the element's state, discarding local edits in flight.
// This path never produces a conflict.
func Delete(original, local, remote element.Element) (Result, error) {
	restored, err := element.Copy(remote)
	if err != nil {
		return Result{}, syncErrors.WrapOpComponent(err, syncErrors.OpMerge, "merge")
	}
	return Result{Merged: restored, Repersist: true}, nil
}

// Resolve dispatches on the pending change kind.
func Resolve(kind ChangeKind, original, local, remote element.Element) (Result, error) {
	if kind == ChangeDeleted {
		return Delete(original, local, remote)
	}
	return Update(original, local, remote)
}

func setField(dst *element.Element, field string, src element.Element) {
	switch field {
	case diff.FieldOrder:
		dst.Order = src.Order
	case diff.FieldPlacement:
		dst.Placement = src.Placement
	case diff.FieldTimeFrame:
		dst.TimeFrame = src.TimeFrame
	case diff.FieldEditors:
		dst.EditPersonsID = append([]string(nil), src.EditPersonsID...)
	case diff.FieldProperties:
		// src has already passed through diff's sanitizing copy upstream,
		// but copy again so the merged element never aliases live state.
		dst.Properties = element.MustCopy(src).Properties
	}
}
