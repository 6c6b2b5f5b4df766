package element

import "fmt"

// NewVideo builds a video element for a media source with the given intrinsic
// aspect ratio and duration. Placement starts at the origin with a height of
// 100 units, width derived from the aspect ratio.
func NewVideo(src string, index int, aspectRatio float64, durationMs int64) Element {
	id := NewID()
	return Element{
		ID:    id,
		Name:  fmt.Sprintf("Media(video) %d", index+1),
		Kind:  KindVideo,
		Order: index,
		Placement: Placement{
			Width:  100 * aspectRatio,
			Height: 100,
			ScaleX: 1,
			ScaleY: 1,
		},
		TimeFrame: TimeFrame{Start: 0, End: durationMs},
		Properties: VideoProps{
			Src:      src,
			SourceID: "video-" + id,
			Effect:   Effect{Kind: EffectNone},
		},
	}
}

// NewImage builds an image element spanning the full project duration.
func NewImage(src string, index int, aspectRatio float64, maxTime int64) Element {
	id := NewID()
	return Element{
		ID:    id,
		Name:  fmt.Sprintf("Media(image) %d", index+1),
		Kind:  KindImage,
		Order: index,
		Placement: Placement{
			Width:  100 * aspectRatio,
			Height: 100,
			ScaleX: 1,
			ScaleY: 1,
		},
		TimeFrame: TimeFrame{Start: 0, End: maxTime},
		Properties: ImageProps{
			Src:      src,
			SourceID: "image-" + id,
			Effect:   Effect{Kind: EffectNone},
		},
	}
}

// NewAudio builds an audio element for a source with the given duration.
func NewAudio(src string, index int, durationMs int64) Element {
	id := NewID()
	return Element{
		ID:    id,
		Name:  fmt.Sprintf("Media(audio) %d", index+1),
		Kind:  KindAudio,
		Order: index,
		Placement: Placement{
			Width:  100,
			Height: 100,
			ScaleX: 1,
			ScaleY: 1,
		},
		TimeFrame: TimeFrame{Start: 0, End: durationMs},
		Properties: AudioProps{
			Src:      src,
			SourceID: "audio-" + id,
		},
	}
}

// TextOptions configures NewText.
type TextOptions struct {
	Text       string
	FontSize   float64
	FontWeight float64
}

// NewText builds a text element spanning the full project duration.
func NewText(opts TextOptions, index int, maxTime int64) Element {
	id := NewID()
	return Element{
		ID:    id,
		Name:  fmt.Sprintf("Text %d", index+1),
		Kind:  KindText,
		Order: index,
		Placement: Placement{
			Width:  100,
			Height: 100,
			ScaleX: 1,
			ScaleY: 1,
		},
		TimeFrame: TimeFrame{Start: 0, End: maxTime},
		Properties: TextProps{
			Text:       opts.Text,
			FontSize:   opts.FontSize,
			FontWeight: opts.FontWeight,
			SplitCache: []TextFragment{},
		},
	}
}

// NewAnimation builds an animation bound to the target element.
func NewAnimation(kind AnimationKind, targetID string, durationMs int64, props AnimationProps) Animation {
	return Animation{
		ID:         NewID(),
		TargetID:   targetID,
		Kind:       kind,
		Duration:   durationMs,
		Properties: props,
	}
}
