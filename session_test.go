package timelinesync

import (
	"context"
	"testing"

	"github.com/c0deZ3R0/timeline-sync-kit/element"
	"github.com/c0deZ3R0/timeline-sync-kit/storage/memory"
)

// Two live sessions collaborating through a shared in-memory replica: every
// write one session makes arrives at the other through the change feed.
func TestTwoSessionsConverge(t *testing.T) {
	ctx := context.Background()
	shared := memory.NewStore()
	defer shared.Close()

	open := func(user string) *Store {
		s := New(Options{Remote: shared, UserID: user})
		if err := s.Open(ctx, "proj-1"); err != nil {
			t.Fatalf("Open(%s) error = %v", user, err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	}
	alice := open("alice")
	bob := open("bob")

	el := element.Element{
		ID:   element.NewID(),
		Name: "Shared text",
		Kind: element.KindText,
		Placement: element.Placement{
			Width: 100, Height: 40, ScaleX: 1, ScaleY: 1,
		},
		TimeFrame:  element.TimeFrame{Start: 0, End: 1000},
		Properties: element.TextProps{Text: "hi", FontSize: 16, FontWeight: 400},
	}
	if err := alice.AddElement(ctx, el); err != nil {
		t.Fatalf("AddElement() error = %v", err)
	}
	if err := alice.Deselect(ctx); err != nil {
		t.Fatalf("Deselect() error = %v", err)
	}

	bobView, ok := bob.Element(el.ID)
	if !ok {
		t.Fatal("element did not propagate to the second session")
	}
	if bobView.UID == "" {
		t.Error("propagated element lacks the store-assigned uid")
	}

	// Bob edits, Alice sees it.
	bobView.Placement.X = 25
	if err := bob.UpdateElement(ctx, bobView); err != nil {
		t.Fatalf("UpdateElement() error = %v", err)
	}
	aliceView, _ := alice.Element(el.ID)
	if aliceView.Placement.X != 25 {
		t.Errorf("alice sees X = %v, want 25", aliceView.Placement.X)
	}

	// Bob deletes, Alice's canonical state follows.
	if err := bob.RemoveElement(ctx, el.ID); err != nil {
		t.Fatalf("RemoveElement() error = %v", err)
	}
	if _, ok := alice.Element(el.ID); ok {
		t.Error("deletion did not propagate to the other session")
	}
}

// A session joining late receives the full existing state via the
// subscription's initial replay.
func TestLateJoinerReceivesExistingState(t *testing.T) {
	ctx := context.Background()
	shared := memory.NewStore()
	defer shared.Close()

	alice := New(Options{Remote: shared, UserID: "alice"})
	if err := alice.Open(ctx, "proj-1"); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer alice.Close()

	el := element.Element{
		ID:         element.NewID(),
		Name:       "Early element",
		Kind:       element.KindText,
		Placement:  element.Placement{Width: 10, Height: 10, ScaleX: 1, ScaleY: 1},
		TimeFrame:  element.TimeFrame{Start: 0, End: 500},
		Properties: element.TextProps{Text: "x", FontSize: 12, FontWeight: 400},
	}
	if err := alice.AddElement(ctx, el); err != nil {
		t.Fatalf("AddElement() error = %v", err)
	}
	if err := alice.SetBackground(ctx, "#333333"); err != nil {
		t.Fatalf("SetBackground() error = %v", err)
	}

	bob := New(Options{Remote: shared, UserID: "bob"})
	if err := bob.Open(ctx, "proj-1"); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer bob.Close()

	if _, ok := bob.Element(el.ID); !ok {
		t.Error("late joiner missing replayed element")
	}
	if bob.Background() != "#333333" {
		t.Errorf("late joiner Background() = %q, want #333333", bob.Background())
	}
}

// The full conflict round trip across two live sessions: divergence,
// shelf fork, then resolution by deleting the original.
func TestTwoSessionConflictRoundTrip(t *testing.T) {
	ctx := context.Background()
	shared := memory.NewStore()
	defer shared.Close()

	alice := New(Options{Remote: shared, UserID: "alice"})
	if err := alice.Open(ctx, "proj-1"); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer alice.Close()
	bob := New(Options{Remote: shared, UserID: "bob"})
	if err := bob.Open(ctx, "proj-1"); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer bob.Close()

	el := element.Element{
		ID:         element.NewID(),
		Name:       "Contested",
		Kind:       element.KindText,
		Placement:  element.Placement{Width: 10, Height: 10, ScaleX: 1, ScaleY: 1},
		TimeFrame:  element.TimeFrame{Start: 0, End: 500},
		Properties: element.TextProps{Text: "x", FontSize: 12, FontWeight: 400},
	}
	if err := alice.AddElement(ctx, el); err != nil {
		t.Fatalf("AddElement() error = %v", err)
	}
	if err := alice.Deselect(ctx); err != nil {
		t.Fatalf("Deselect() error = %v", err)
	}

	// Alice starts editing; Bob writes a conflicting value that reaches
	// Alice through the feed while her element stays selected.
	alice.SelectElement(ctx, el.ID)
	aliceView, _ := alice.Element(el.ID)
	aliceView.Placement.X = 50
	if err := alice.UpdateElement(ctx, aliceView); err != nil {
		t.Fatalf("UpdateElement(alice) error = %v", err)
	}

	bobView, _ := bob.Element(el.ID)
	bobView.Placement.X = 99
	if err := bob.UpdateElement(ctx, bobView); err != nil {
		t.Fatalf("UpdateElement(bob) error = %v", err)
	}

	if !alice.HasPendingMerge(el.ID) {
		t.Fatal("bob's write must be deferred while alice has the element selected")
	}
	if err := alice.Deselect(ctx); err != nil {
		t.Fatalf("Deselect() error = %v", err)
	}

	conflicts := alice.Conflicts()
	if len(conflicts) != 1 {
		t.Fatalf("shelf entries = %d, want 1", len(conflicts))
	}
	canonical, _ := alice.Element(el.ID)
	if canonical.Placement.X != 99 {
		t.Errorf("canonical X = %v, want bob's 99", canonical.Placement.X)
	}

	// Alice resolves by deleting the original: her fork's data is promoted
	// and written through, so Bob converges on X=50.
	if err := alice.RemoveElement(ctx, el.ID); err != nil {
		t.Fatalf("RemoveElement() error = %v", err)
	}
	resolved, _ := alice.Element(el.ID)
	if resolved.Placement.X != 50 {
		t.Errorf("alice resolved X = %v, want 50", resolved.Placement.X)
	}
	bobFinal, _ := bob.Element(el.ID)
	if bobFinal.Placement.X != 50 {
		t.Errorf("bob converged X = %v, want 50", bobFinal.Placement.X)
	}
}
