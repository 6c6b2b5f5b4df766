package timelinesync

import (
	"context"
	"log/slog"

	"github.com/c0deZ3R0/timeline-sync-kit/diff"
	"github.com/c0deZ3R0/timeline-sync-kit/element"
	"github.com/c0deZ3R0/timeline-sync-kit/feed"
	"github.com/c0deZ3R0/timeline-sync-kit/merge"
)

// applyElementChange routes a remote element event into canonical state.
// Events from a superseded subscription generation are dropped: Unsubscribe
// stops new deliveries synchronously but an in-flight callback may still
// land after Close or a project switch.
func (s *Store) applyElementChange(gen uint64, ev feed.ElementChange) error {
	s.mu.Lock()
	if gen != s.subGen {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	switch ev.Kind {
	case feed.ChangeAdded:
		return s.remoteElementAdded(ev.Element)
	case feed.ChangeModified:
		return s.remoteElementModified(ev.Element)
	case feed.ChangeRemoved:
		s.remoteElementRemoved(ev.Element)
		return nil
	}
	return nil
}

func (s *Store) remoteElementAdded(el element.Element) error {
	s.mu.Lock()
	if i := s.indexOfLocked(el.ID); i >= 0 {
		// Our own create echoed back: adopt the remote identifier, keep
		// local state.
		if s.elements[i].UID == "" {
			s.elements[i].UID = el.UID
		}
		s.mu.Unlock()
		return nil
	}
	copied, err := element.Copy(el)
	if err != nil {
		s.mu.Unlock()
		s.log.Warn("dropping remote element with unsupported kind",
			slog.String("element_id", el.ID), slog.String("kind", string(el.Kind)))
		return err
	}
	copied.TimeFrame = copied.TimeFrame.Clamp(s.maxTime)
	s.elements = append(s.elements, copied)
	if copied.Order >= s.nextOrder {
		s.nextOrder = copied.Order + 1
	}
	s.mu.Unlock()
	s.refresh()
	return nil
}

func (s *Store) remoteElementModified(el element.Element) error {
	s.mu.Lock()
	// An update for the element under local active edit is deferred: the
	// merge ancestor is the canonical snapshot taken at selection, and the
	// newest remote value keeps overwriting the pending target. Resolution
	// happens at deselect.
	if s.selectedID == el.ID {
		if i := s.indexOfLocked(el.ID); i >= 0 {
			d, err := diff.Elements(s.elements[i], el)
			if err != nil {
				s.mu.Unlock()
				return err
			}
			if d.Empty() {
				// Our own write round-tripped through the feed; nothing to
				// defer.
				s.metrics.RecordSuppressedNoOp()
				s.mu.Unlock()
				return nil
			}
			pm, ok := s.pending[el.ID]
			if !ok {
				pm = pendingMerge{from: s.mergeAncestorLocked(i)}
			}
			pm.to = element.MustCopy(el)
			pm.kind = merge.ChangeUpdated
			s.pending[el.ID] = pm
			s.metrics.RecordPendingMerges(len(s.pending))
			s.mu.Unlock()
			return nil
		}
	}
	s.mu.Unlock()

	changed, err := s.updateElement(context.Background(), el, false)
	if changed {
		s.refresh()
	}
	return err
}

// remoteElementRemoved applies a remote deletion. If the element is under
// local active edit the deletion is deferred like a modification; at
// deselect the resolver discards the local edits and re-persists the last
// remote snapshot, so the deleting session's intent prevails over unsaved
// edits. If a conflict fork shadows the element, the fork is promoted onto
// the element's identity locally; the next write re-creates the record.
func (s *Store) remoteElementRemoved(el element.Element) {
	s.mu.Lock()
	if s.selectedID == el.ID {
		if i := s.indexOfLocked(el.ID); i >= 0 {
			pm, ok := s.pending[el.ID]
			if !ok {
				pm = pendingMerge{from: s.mergeAncestorLocked(i)}
			}
			pm.to = element.MustCopy(el)
			pm.kind = merge.ChangeDeleted
			s.pending[el.ID] = pm
			s.metrics.RecordPendingMerges(len(s.pending))
			s.mu.Unlock()
			return
		}
	}

	if survivor, shelfID, ok := s.shelfEntryForLocked(el.ID); ok {
		survivor.ID = el.ID
		survivor.Name = trimConflictSuffix(survivor.Name)
		survivor.UID = el.UID
		survivor.ConflictID = ""
		delete(s.conflicts, shelfID)
		if i := s.indexOfLocked(el.ID); i >= 0 {
			s.elements[i] = survivor
		} else {
			s.elements = append(s.elements, survivor)
		}
		s.mu.Unlock()
		s.refresh()
		return
	}

	s.removeLocalLocked(el.ID)
	s.mu.Unlock()
	s.refresh()
}

func (s *Store) applyAnimationChange(gen uint64, ev feed.AnimationChange) error {
	s.mu.Lock()
	if gen != s.subGen {
		s.mu.Unlock()
		return nil
	}

	switch ev.Kind {
	case feed.ChangeAdded, feed.ChangeModified:
		// Animations reconcile last-write-wins: whole-record replace, no
		// merge window.
		a := element.CopyAnimation(ev.Animation)
		if i := s.animationIndexLocked(a.ID); i >= 0 {
			if !diff.Animations(s.animations[i], a) {
				// Own write echoed back.
				s.metrics.RecordSuppressedNoOp()
				s.mu.Unlock()
				return nil
			}
			s.animations[i] = a
		} else {
			s.animations = append(s.animations, a)
		}
	case feed.ChangeRemoved:
		i := s.animationIndexLocked(ev.Animation.ID)
		if i < 0 {
			s.mu.Unlock()
			return nil
		}
		s.animations = append(s.animations[:i], s.animations[i+1:]...)
	}
	s.mu.Unlock()
	s.refresh()
	return nil
}

func (s *Store) applyProjectChange(gen uint64, ev feed.ProjectChange) error {
	s.mu.Lock()
	if gen != s.subGen {
		s.mu.Unlock()
		return nil
	}
	if ev.Background != nil {
		s.background = *ev.Background
	}
	if ev.MaxTime != nil {
		s.maxTime = *ev.MaxTime
	}
	s.mu.Unlock()
	s.refresh()
	return nil
}

func (s *Store) applyAssetChange(gen uint64, ev feed.AssetChange) error {
	s.mu.Lock()
	if gen != s.subGen {
		s.mu.Unlock()
		return nil
	}
	switch ev.Slot {
	case feed.AssetVideos:
		s.videos = appendURL(s.videos, ev.URL)
	case feed.AssetAudios:
		s.audios = appendURL(s.audios, ev.URL)
	case feed.AssetImages:
		s.images = appendURL(s.images, ev.URL)
	}
	s.mu.Unlock()
	return nil
}

func appendURL(urls []string, url string) []string {
	for _, u := range urls {
		if u == url {
			return urls
		}
	}
	return append(urls, url)
}

// mergeAncestorLocked picks the three-way merge ancestor for the element at
// index i: the canonical snapshot taken at selection, falling back to the
// current canonical value if the selection predates this session's tracking.
func (s *Store) mergeAncestorLocked(i int) element.Element {
	if s.selectedBase != nil && s.selectedBase.ID == s.elements[i].ID {
		return element.MustCopy(*s.selectedBase)
	}
	return element.MustCopy(s.elements[i])
}

func (s *Store) animationIndexLocked(id string) int {
	for i := range s.animations {
		if s.animations[i].ID == id {
			return i
		}
	}
	return -1
}
