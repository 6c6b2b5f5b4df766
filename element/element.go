// Package element defines the editable timeline entities and the pure
// operations on them that every other component depends on: safe copying,
// validation, and the serializable projection used for persistence and
// diffing.
package element

import (
	"encoding/json"
	"fmt"
	"math"

	syncErrors "github.com/c0deZ3R0/timeline-sync-kit/errors"
)

// Kind identifies the variant of a timeline element. The set is closed;
// every operation that switches on Kind fails with an UNSUPPORTED_KIND
// error for anything else.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	KindImage Kind = "image"
	KindText  Kind = "text"
)

// Valid reports whether k is one of the closed variant set.
func (k Kind) Valid() bool {
	switch k {
	case KindVideo, KindAudio, KindImage, KindText:
		return true
	}
	return false
}

// EffectKind identifies a visual effect applied to video and image elements.
type EffectKind string

const (
	EffectNone          EffectKind = "none"
	EffectBlackAndWhite EffectKind = "blackAndWhite"
	EffectSepia         EffectKind = "sepia"
	EffectInvert        EffectKind = "invert"
	EffectSaturate      EffectKind = "saturate"
)

// Effect is the visual effect value carried by video and image properties.
type Effect struct {
	Kind EffectKind `json:"type"`
}

// Placement is the geometry of an element on the rendering surface.
type Placement struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation float64 `json:"rotation"`
	ScaleX   float64 `json:"scaleX"`
	ScaleY   float64 `json:"scaleY"`
}

// Validate rejects NaN geometry and negative sizes.
func (p Placement) Validate() error {
	for name, v := range map[string]float64{
		"x": p.X, "y": p.Y, "width": p.Width, "height": p.Height,
		"rotation": p.Rotation, "scaleX": p.ScaleX, "scaleY": p.ScaleY,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return syncErrors.NewValidationError(syncErrors.OpUpdateElement,
				fmt.Errorf("placement.%s is not a finite number", name))
		}
	}
	if p.Width < 0 || p.Height < 0 {
		return syncErrors.NewValidationError(syncErrors.OpUpdateElement,
			fmt.Errorf("placement size must be non-negative, got %gx%g", p.Width, p.Height))
	}
	return nil
}

// TimeFrame is the visible interval of an element in integer milliseconds.
type TimeFrame struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Clamp returns t constrained to [0, maxTime]. The start < end invariant is
// the caller's to enforce; Clamp only bounds both edges.
func (t TimeFrame) Clamp(maxTime int64) TimeFrame {
	if t.Start < 0 {
		t.Start = 0
	}
	if t.End > maxTime {
		t.End = maxTime
	}
	return t
}

// Validate enforces 0 <= start < end <= maxTime.
func (t TimeFrame) Validate(maxTime int64) error {
	if t.Start < 0 || t.End > maxTime || t.Start >= t.End {
		return syncErrors.NewValidationError(syncErrors.OpUpdateElement,
			fmt.Errorf("time frame [%d, %d] outside [0, %d] or empty", t.Start, t.End, maxTime))
	}
	return nil
}

// TextFragment is one entry of a text element's character-split cache. It is
// plain data: the split cache is persisted and deep-copied, unlike the live
// render objects it is derived from.
type TextFragment struct {
	Char       string  `json:"char"`
	Left       float64 `json:"left"`
	Top        float64 `json:"top"`
	FontSize   float64 `json:"fontSize"`
	FontWeight float64 `json:"fontWeight"`
	ScaleX     float64 `json:"scaleX"`
	ScaleY     float64 `json:"scaleY"`
}

// Properties is the kind-specific payload of an element. Exactly one concrete
// type exists per Kind; the diff and merge engines compare it as a single
// sub-value.
type Properties interface {
	Kind() Kind
}

// VideoProps carries the payload of a video element. MediaHandle is the live
// playback handle: owned by the rendering cycle, never persisted, diffed, or
// copied.
type VideoProps struct {
	Src         string `json:"src"`
	SourceID    string `json:"elementId"`
	Effect      Effect `json:"effect"`
	MediaHandle any    `json:"-"`
}

func (VideoProps) Kind() Kind { return KindVideo }

// ImageProps carries the payload of an image element.
type ImageProps struct {
	Src         string `json:"src"`
	SourceID    string `json:"elementId"`
	Effect      Effect `json:"effect"`
	MediaHandle any    `json:"-"`
}

func (ImageProps) Kind() Kind { return KindImage }

// AudioProps carries the payload of an audio element.
type AudioProps struct {
	Src      string `json:"src"`
	SourceID string `json:"elementId"`
}

func (AudioProps) Kind() Kind { return KindAudio }

// TextProps carries the payload of a text element. SplitCache duplicates the
// per-character layout as plain data so character animations survive a copy.
type TextProps struct {
	Text       string         `json:"text"`
	FontSize   float64        `json:"fontSize"`
	FontWeight float64        `json:"fontWeight"`
	SplitCache []TextFragment `json:"splittedTexts"`
}

func (TextProps) Kind() Kind { return KindText }

// Element is the unit of editable content on a timeline.
//
// ID is the stable logical identity assigned at creation and used for all
// local operations. UID is the remote store's identifier, empty until the
// first successful create. ConflictID is set only on forked conflict copies
// and points back at the original's ID.
//
// RenderHandle is exclusively owned by the reconciler's rendering refresh
// cycle. It is excluded from persistence, copying, and diffing.
type Element struct {
	UID           string     `json:"uid,omitempty"`
	ID            string     `json:"id"`
	ConflictID    string     `json:"conflictId,omitempty"`
	Name          string     `json:"name"`
	Kind          Kind       `json:"type"`
	Order         int        `json:"order"`
	Placement     Placement  `json:"placement"`
	TimeFrame     TimeFrame  `json:"timeFrame"`
	Properties    Properties `json:"properties"`
	EditPersonsID []string   `json:"editPersonsId,omitempty"`
	RenderHandle  any        `json:"-"`
}

// UnmarshalJSON decodes an element, selecting the concrete Properties type
// from the "type" tag.
func (e *Element) UnmarshalJSON(data []byte) error {
	type alias Element
	aux := struct {
		*alias
		Properties json.RawMessage `json:"properties"`
	}{alias: (*alias)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if len(aux.Properties) == 0 {
		e.Properties = nil
		return nil
	}

	var err error
	switch e.Kind {
	case KindVideo:
		var p VideoProps
		err = json.Unmarshal(aux.Properties, &p)
		e.Properties = p
	case KindImage:
		var p ImageProps
		err = json.Unmarshal(aux.Properties, &p)
		e.Properties = p
	case KindAudio:
		var p AudioProps
		err = json.Unmarshal(aux.Properties, &p)
		e.Properties = p
	case KindText:
		var p TextProps
		err = json.Unmarshal(aux.Properties, &p)
		e.Properties = p
	default:
		return syncErrors.NewUnsupportedKindError(syncErrors.OpCopy, string(e.Kind))
	}
	return err
}
