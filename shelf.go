package timelinesync

import (
	"strings"

	"github.com/google/uuid"

	"github.com/c0deZ3R0/timeline-sync-kit/element"
)

const conflictNameSuffix = " (conflict)"

// forkConflict places the local branch of a failed merge on the conflict
// shelf under a synthetic id and advances the canonical slot to the remote
// value. Both versions stay visible and editable until the user deletes one.
// A repeated divergence for the same element updates the existing shelf
// entry in place rather than stacking forks.
func (s *Store) forkConflict(local, remote element.Element) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fork := element.MustCopy(local)
	if shelfID, ok := s.shelfIDForLocked(local.ID); ok {
		fork.ID = shelfID
		fork.ConflictID = local.ID
		fork.Name = s.conflicts[shelfID].Name
		s.conflicts[shelfID] = fork
	} else {
		fork.ID = uuid.NewString()
		fork.ConflictID = local.ID
		fork.Name = local.Name + conflictNameSuffix
		s.conflicts[fork.ID] = fork
	}

	if i := s.indexOfLocked(local.ID); i >= 0 {
		s.elements[i] = element.MustCopy(remote)
	}
}

// shelfEntryForLocked finds the shelf fork shadowing the given canonical
// element id, returning a copy of the fork and its shelf key.
func (s *Store) shelfEntryForLocked(elementID string) (element.Element, string, bool) {
	for shelfID, fork := range s.conflicts {
		if fork.ConflictID == elementID {
			return element.MustCopy(fork), shelfID, true
		}
	}
	return element.Element{}, "", false
}

func (s *Store) shelfIDForLocked(elementID string) (string, bool) {
	for shelfID, fork := range s.conflicts {
		if fork.ConflictID == elementID {
			return shelfID, true
		}
	}
	return "", false
}

// Conflicts returns copies of all shelf entries.
func (s *Store) Conflicts() []element.Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]element.Element, 0, len(s.conflicts))
	for _, fork := range s.conflicts {
		out = append(out, element.MustCopy(fork))
	}
	return out
}

// HasConflict reports whether a shelf entry shadows the given element.
func (s *Store) HasConflict(elementID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.shelfIDForLocked(elementID)
	return ok
}

func trimConflictSuffix(name string) string {
	return strings.TrimSuffix(name, conflictNameSuffix)
}
