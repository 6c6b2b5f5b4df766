package timelinesync

import (
	"context"
	"log/slog"
	"sort"

	"github.com/c0deZ3R0/timeline-sync-kit/diff"
	syncErrors "github.com/c0deZ3R0/timeline-sync-kit/errors"
)

// ReorderElements moves the element with the given id to the target display
// position, then reassigns contiguous order values 0..N-1 across the whole
// collection. Only elements whose order actually changed are written
// remotely, and only the order field, so concurrent edits to other fields
// of the same elements are not clobbered.
func (s *Store) ReorderElements(ctx context.Context, id string, position int) error {
	s.mu.Lock()
	if s.projectID == "" {
		s.mu.Unlock()
		err := syncErrors.NewMissingProjectError(syncErrors.OpUpdateElement)
		s.log.LogError(ctx, err, "reorder without project context")
		return err
	}

	idx := make([]int, len(s.elements))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return s.elements[idx[a]].Order < s.elements[idx[b]].Order
	})

	moving := -1
	for pos, i := range idx {
		if s.elements[i].ID == id {
			moving = pos
			break
		}
	}
	if moving < 0 {
		s.mu.Unlock()
		return nil
	}
	if position < 0 {
		position = 0
	}
	if position >= len(idx) {
		position = len(idx) - 1
	}

	moved := idx[moving]
	idx = append(idx[:moving], idx[moving+1:]...)
	idx = append(idx[:position], append([]int{moved}, idx[position:]...)...)

	type write struct {
		uid   string
		order int
	}
	var writes []write
	for pos, i := range idx {
		if s.elements[i].Order == pos {
			continue
		}
		s.elements[i].Order = pos
		if s.elements[i].UID == "" {
			s.log.LogError(ctx, syncErrors.NewMissingUIDError(syncErrors.OpUpdateElement, s.elements[i].ID),
				"skipping order write")
			continue
		}
		writes = append(writes, write{uid: s.elements[i].UID, order: pos})
	}
	s.nextOrder = len(idx)
	projectID := s.projectID
	s.mu.Unlock()
	s.refresh()

	var firstErr error
	for _, w := range writes {
		err := s.opts.Remote.UpdateElementFields(ctx, projectID, w.uid, map[string]any{
			diff.FieldOrder: w.order,
		})
		s.metrics.RecordRemoteWrite(string(syncErrors.OpUpdateElement), err)
		if err != nil {
			s.log.LogError(ctx, err, "order write failed", slog.String("uid", w.uid))
			if firstErr == nil {
				firstErr = syncErrors.NewRemoteWriteError(syncErrors.OpUpdateElement, err)
			}
		}
	}
	if firstErr != nil {
		s.opts.Alerter.Alert("Error synchronizing data.")
	}
	return firstErr
}
