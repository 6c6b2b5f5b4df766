// Package render defines the rendering surface contract the reconciler
// drives. The surface is a display sink rebuilt wholesale on every canonical
// state change (remove all, re-add all) rather than incrementally patched:
// an intentional simplicity-over-performance tradeoff for collections of
// tens of elements.
package render

import "github.com/c0deZ3R0/timeline-sync-kit/element"

// Object is the display-side description of one timeline element. Conflict
// copies appear as objects of their own, interleaved with canonical elements
// by order.
type Object struct {
	ElementID  string
	Kind       element.Kind
	Name       string
	Order      int
	Placement  element.Placement
	TimeFrame  element.TimeFrame
	Conflicted bool
	// LastEditor is the most recent entry of the element's editor list,
	// used for collaborative-presence highlighting.
	LastEditor string
	// LastEditorOnline is true when LastEditor is in the current online
	// user set.
	LastEditorOnline bool
}

// Surface is the display sink. Implementations own the visual objects; the
// reconciler only describes what should exist. UI-driven interactions
// (drag, resize, selection) must funnel back through the reconciler's update
// entry points, never mutate canonical state directly.
type Surface interface {
	// Add creates a visual object for the description.
	Add(obj Object)

	// RemoveAll clears every visual object before a rebuild.
	RemoveAll()

	// RenderAll flushes the rebuilt scene to the display.
	RenderAll()
}
