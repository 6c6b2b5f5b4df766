package element

// AnimationKind identifies the variant of an animation. Like element kinds
// the set is closed, but animations have no conflict handling: the last
// writer wins.
type AnimationKind string

const (
	AnimationFadeIn   AnimationKind = "fadeIn"
	AnimationFadeOut  AnimationKind = "fadeOut"
	AnimationSlideIn  AnimationKind = "slideIn"
	AnimationSlideOut AnimationKind = "slideOut"
	AnimationBreathe  AnimationKind = "breathe"
)

// Valid reports whether k is one of the closed animation kinds.
func (k AnimationKind) Valid() bool {
	switch k {
	case AnimationFadeIn, AnimationFadeOut, AnimationSlideIn, AnimationSlideOut, AnimationBreathe:
		return true
	}
	return false
}

// SlideDirection is the entry/exit edge for slide animations.
type SlideDirection string

const (
	SlideLeft   SlideDirection = "left"
	SlideRight  SlideDirection = "right"
	SlideTop    SlideDirection = "top"
	SlideBottom SlideDirection = "bottom"
)

// SlideTextMode selects whole-object versus per-character slide for text
// elements.
type SlideTextMode string

const (
	SlideTextNone      SlideTextMode = "none"
	SlideTextCharacter SlideTextMode = "character"
)

// AnimationProps carries the kind-specific knobs. Only the slide kinds use
// them; fades and breathe leave the zero value.
type AnimationProps struct {
	Direction   SlideDirection `json:"direction,omitempty"`
	UseClipPath bool           `json:"useClipPath,omitempty"`
	TextMode    SlideTextMode  `json:"textType,omitempty"`
}

// Animation is a secondary entity bound to an element by TargetID. Its
// lifecycle mirrors Element (created, updated, and removed through the same
// remote-feed-driven path) but merges are last-writer-wins.
type Animation struct {
	UID        string         `json:"uid,omitempty"`
	ID         string         `json:"id"`
	TargetID   string         `json:"targetId"`
	Kind       AnimationKind  `json:"type"`
	Duration   int64          `json:"duration"`
	Properties AnimationProps `json:"properties"`
}
