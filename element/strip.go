package element

import "encoding/json"

// StripAbsent recursively removes keys whose value is the absent sentinel
// (JSON null) from a decoded JSON value. It is applied to every record before
// it is written remotely, so the document store never sees explicit absence
// markers.
func StripAbsent(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if inner == nil {
				continue
			}
			out[k] = StripAbsent(inner)
		}
		return out
	case []any:
		out := make([]any, 0, len(val))
		for _, inner := range val {
			out = append(out, StripAbsent(inner))
		}
		return out
	default:
		return v
	}
}

// MarshalPersisted renders el as the record shape written to the remote
// store: live handles are excluded by the type's serializable projection and
// absent values are stripped.
func MarshalPersisted(el Element) ([]byte, error) {
	raw, err := json.Marshal(el)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(StripAbsent(generic))
}

// MarshalPersistedAnimation is MarshalPersisted for animation records.
func MarshalPersistedAnimation(a Animation) ([]byte, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(StripAbsent(generic))
}

// OverlayFields merges a field-level partial update into el through its
// persisted JSON projection, the way a document store applies a patch. Keys
// name top-level persisted fields; values replace the current field value
// wholesale.
func OverlayFields(el Element, fields map[string]any) (Element, error) {
	raw, err := MarshalPersisted(el)
	if err != nil {
		return Element{}, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Element{}, err
	}
	for k, v := range fields {
		normalized, err := normalizeJSON(v)
		if err != nil {
			return Element{}, err
		}
		doc[k] = normalized
	}
	patched, err := json.Marshal(StripAbsent(doc))
	if err != nil {
		return Element{}, err
	}
	var out Element
	if err := json.Unmarshal(patched, &out); err != nil {
		return Element{}, err
	}
	return out, nil
}

// normalizeJSON round-trips a value through JSON so typed patch values and
// decoded documents compare and merge uniformly.
func normalizeJSON(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
