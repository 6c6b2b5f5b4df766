// Command timeline-sync-demo runs two editing sessions against a shared
// in-memory replica and walks them through the collaboration flows: live
// propagation, a clean three-way merge of disjoint concurrent edits, and a
// same-field conflict resolved through the conflict shelf.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	timelinesync "github.com/c0deZ3R0/timeline-sync-kit"
	"github.com/c0deZ3R0/timeline-sync-kit/element"
	"github.com/c0deZ3R0/timeline-sync-kit/logging"
	"github.com/c0deZ3R0/timeline-sync-kit/render"
	"github.com/c0deZ3R0/timeline-sync-kit/storage/memory"
)

func main() {
	logging.Init(logging.GetConfigFromEnv())
	ctx := context.Background()

	if err := run(ctx); err != nil {
		logging.Error("demo failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	shared := memory.NewStore()
	defer shared.Close()

	alice, err := openSession(ctx, shared, "alice")
	if err != nil {
		return err
	}
	defer alice.Close()
	bob, err := openSession(ctx, shared, "bob")
	if err != nil {
		return err
	}
	defer bob.Close()

	logging.Info("two sessions connected", slog.String("project", "demo-project"))

	// Alice creates an element; it reaches Bob through the feed.
	el := element.NewText(element.TextOptions{Text: "Title card", FontSize: 32, FontWeight: 600}, 0, alice.MaxTime())
	if err := alice.AddElement(ctx, el); err != nil {
		return err
	}
	if err := alice.Deselect(ctx); err != nil {
		return err
	}
	fmt.Printf("alice created %q; bob sees %d element(s)\n", el.Name, len(bob.Elements()))

	// Disjoint concurrent edits merge cleanly: Alice moves the element
	// while Bob extends its duration.
	alice.SelectElement(ctx, el.ID)
	moved, _ := alice.Element(el.ID)
	moved.Placement.X = 120
	if err := alice.UpdateElement(ctx, moved); err != nil {
		return err
	}

	bobView, _ := bob.Element(el.ID)
	bobView.TimeFrame.End = 5000
	if err := bob.UpdateElement(ctx, bobView); err != nil {
		return err
	}

	if err := alice.Deselect(ctx); err != nil {
		return err
	}
	merged, _ := alice.Element(el.ID)
	fmt.Printf("merged cleanly: x=%.0f end=%dms\n", merged.Placement.X, merged.TimeFrame.End)

	// Same-field concurrent edits conflict: both sessions move the element.
	alice.SelectElement(ctx, el.ID)
	mine, _ := alice.Element(el.ID)
	mine.Placement.X = 200
	if err := alice.UpdateElement(ctx, mine); err != nil {
		return err
	}
	theirs, _ := bob.Element(el.ID)
	theirs.Placement.X = 300
	if err := bob.UpdateElement(ctx, theirs); err != nil {
		return err
	}
	if err := alice.Deselect(ctx); err != nil {
		return err
	}

	conflicts := alice.Conflicts()
	fmt.Printf("conflict forked: %d shelf entry, canonical x=%.0f\n", len(conflicts), mustX(alice, el.ID))

	// Alice keeps her branch by deleting the shadowed original; both
	// sessions converge on it.
	if err := alice.RemoveElement(ctx, el.ID); err != nil {
		return err
	}
	fmt.Printf("resolved: alice x=%.0f, bob x=%.0f\n", mustX(alice, el.ID), mustX(bob, el.ID))
	return nil
}

func openSession(ctx context.Context, shared *memory.Store, user string) (*timelinesync.Store, error) {
	s := timelinesync.New(timelinesync.Options{
		Remote:  shared,
		Assets:  memory.NewAssets(),
		Surface: render.NewFakeSurface(),
		UserID:  user,
		Alerter: timelinesync.AlertFunc(func(msg string) {
			fmt.Printf("[%s] alert: %s\n", user, msg)
		}),
	})
	if err := s.Open(ctx, "demo-project"); err != nil {
		return nil, err
	}
	return s, nil
}

func mustX(s *timelinesync.Store, id string) float64 {
	el, _ := s.Element(id)
	return el.Placement.X
}
