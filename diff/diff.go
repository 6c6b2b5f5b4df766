// Package diff computes field-level structural deltas between element
// snapshots. The reconciler uses it to suppress self-feedback from the remote
// feed and the merge resolver uses it to find which sides of a divergence
// touched which fields.
package diff

import (
	"github.com/google/go-cmp/cmp"

	"github.com/c0deZ3R0/timeline-sync-kit/element"
	syncErrors "github.com/c0deZ3R0/timeline-sync-kit/errors"
)

// Field names of the comparable top-level element fields. Live handles are
// excluded at the type level: Compare works on sanitized copies, so a render
// or media handle can never appear in a delta.
const (
	FieldUID        = "uid"
	FieldConflictID = "conflictId"
	FieldName       = "name"
	FieldKind       = "type"
	FieldOrder      = "order"
	FieldPlacement  = "placement"
	FieldTimeFrame  = "timeFrame"
	FieldProperties = "properties"
	FieldEditors    = "editPersonsId"
)

// MergeableFields are the independently-mergeable top-level fields the
// three-way resolver walks, in a stable order.
var MergeableFields = []string{FieldOrder, FieldPlacement, FieldTimeFrame, FieldEditors, FieldProperties}

// Delta maps the names of differing top-level fields to the value taken from
// the second operand.
type Delta map[string]any

// Empty reports whether no fields differ.
func (d Delta) Empty() bool { return len(d) == 0 }

// Has reports whether the named field differs.
func (d Delta) Has(field string) bool {
	_, ok := d[field]
	return ok
}

// Fields returns the differing field names in unspecified order.
func (d Delta) Fields() []string {
	out := make([]string, 0, len(d))
	for f := range d {
		out = append(out, f)
	}
	return out
}

// Elements computes the structural delta between two element snapshots. Both
// are sanitized first, so render and media handles never participate. The
// value recorded per differing field is b's.
func Elements(a, b element.Element) (Delta, error) {
	ca, err := element.Copy(a)
	if err != nil {
		return nil, syncErrors.WrapOpComponent(err, syncErrors.OpDiff, "diff")
	}
	cb, err := element.Copy(b)
	if err != nil {
		return nil, syncErrors.WrapOpComponent(err, syncErrors.OpDiff, "diff")
	}

	d := Delta{}
	if ca.UID != cb.UID {
		d[FieldUID] = cb.UID
	}
	if ca.ConflictID != cb.ConflictID {
		d[FieldConflictID] = cb.ConflictID
	}
	if ca.Name != cb.Name {
		d[FieldName] = cb.Name
	}
	if ca.Kind != cb.Kind {
		d[FieldKind] = cb.Kind
	}
	if ca.Order != cb.Order {
		d[FieldOrder] = cb.Order
	}
	if ca.Placement != cb.Placement {
		d[FieldPlacement] = cb.Placement
	}
	if ca.TimeFrame != cb.TimeFrame {
		d[FieldTimeFrame] = cb.TimeFrame
	}
	if !cmp.Equal(ca.Properties, cb.Properties) {
		d[FieldProperties] = cb.Properties
	}
	if !equalStrings(ca.EditPersonsID, cb.EditPersonsID) {
		d[FieldEditors] = cb.EditPersonsID
	}
	return d, nil
}

// FieldEqual reports whether the named mergeable field holds structurally
// equal values in the two sanitized snapshots.
func FieldEqual(field string, a, b element.Element) bool {
	switch field {
	case FieldOrder:
		return a.Order == b.Order
	case FieldPlacement:
		return a.Placement == b.Placement
	case FieldTimeFrame:
		return a.TimeFrame == b.TimeFrame
	case FieldEditors:
		return equalStrings(a.EditPersonsID, b.EditPersonsID)
	case FieldProperties:
		return cmp.Equal(a.Properties, b.Properties)
	default:
		return false
	}
}

// Animations reports whether two animation records differ. Animations merge
// last-writer-wins, so callers only need the boolean.
func Animations(a, b element.Animation) bool {
	return !cmp.Equal(a, b)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
