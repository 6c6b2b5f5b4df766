package element

import (
	syncErrors "github.com/c0deZ3R0/timeline-sync-kit/errors"
)

// Copy produces a value-independent duplicate of el. The render handle and
// any kind-specific live media handle are deliberately dropped; placement,
// time frame, the edit-persons list, and all serializable kind-specific
// properties are deep-copied.
func Copy(el Element) (Element, error) {
	out := el
	out.RenderHandle = nil

	if el.EditPersonsID != nil {
		out.EditPersonsID = make([]string, len(el.EditPersonsID))
		copy(out.EditPersonsID, el.EditPersonsID)
	}

	switch p := el.Properties.(type) {
	case VideoProps:
		p.MediaHandle = nil
		out.Properties = p
	case ImageProps:
		p.MediaHandle = nil
		out.Properties = p
	case AudioProps:
		out.Properties = p
	case TextProps:
		if p.SplitCache != nil {
			cache := make([]TextFragment, len(p.SplitCache))
			copy(cache, p.SplitCache)
			p.SplitCache = cache
		}
		out.Properties = p
	case nil:
		// Elements decoded from a sparse remote record may carry no
		// properties; the kind still has to be one we understand.
		if !el.Kind.Valid() {
			return Element{}, syncErrors.NewUnsupportedKindError(syncErrors.OpCopy, string(el.Kind))
		}
	default:
		return Element{}, syncErrors.NewUnsupportedKindError(syncErrors.OpCopy, string(el.Kind))
	}

	return out, nil
}

// MustCopy is Copy for elements already known to be well-formed. It panics on
// an unsupported kind, which indicates a bug in the caller.
func MustCopy(el Element) Element {
	out, err := Copy(el)
	if err != nil {
		panic(err)
	}
	return out
}

// CopyAnimation duplicates an animation. Animations carry only plain data, so
// a shallow copy is value-independent.
func CopyAnimation(a Animation) Animation {
	return a
}
