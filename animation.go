package timelinesync

import (
	"context"

	"github.com/c0deZ3R0/timeline-sync-kit/element"
	syncErrors "github.com/c0deZ3R0/timeline-sync-kit/errors"
)

// Animations returns copies of all animations, keyed to elements by
// TargetID.
func (s *Store) Animations() []element.Animation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]element.Animation, 0, len(s.animations))
	for _, a := range s.animations {
		out = append(out, element.CopyAnimation(a))
	}
	return out
}

// AddAnimation attaches an animation and persists it. Animations reconcile
// last-write-wins, so there is no merge window and no conflict path.
func (s *Store) AddAnimation(ctx context.Context, a element.Animation) error {
	s.mu.Lock()
	if i := s.animationIndexLocked(a.ID); i >= 0 {
		s.mu.Unlock()
		return nil
	}
	s.animations = append(s.animations, element.CopyAnimation(a))
	projectID := s.projectID
	s.mu.Unlock()
	s.refresh()

	if projectID == "" {
		err := syncErrors.NewMissingProjectError(syncErrors.OpAddAnimation)
		s.log.LogError(ctx, err, "skipping animation write")
		return nil
	}
	uid, err := s.opts.Remote.CreateAnimation(ctx, projectID, a)
	s.metrics.RecordRemoteWrite(string(syncErrors.OpAddAnimation), err)
	if err != nil {
		s.remoteWriteFailed(ctx, syncErrors.OpAddAnimation, err)
		return syncErrors.NewRemoteWriteError(syncErrors.OpAddAnimation, err)
	}
	s.mu.Lock()
	if i := s.animationIndexLocked(a.ID); i >= 0 {
		s.animations[i].UID = uid
	}
	s.mu.Unlock()
	return nil
}

// UpdateAnimation replaces an animation wholesale and persists it.
func (s *Store) UpdateAnimation(ctx context.Context, a element.Animation) error {
	s.mu.Lock()
	i := s.animationIndexLocked(a.ID)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	if a.UID == "" {
		a.UID = s.animations[i].UID
	}
	s.animations[i] = element.CopyAnimation(a)
	projectID := s.projectID
	s.mu.Unlock()
	s.refresh()

	if projectID == "" || a.UID == "" {
		s.log.LogError(ctx, syncErrors.NewMissingUIDError(syncErrors.OpUpdateAnimation, a.ID), "skipping animation write")
		return nil
	}
	err := s.opts.Remote.PutAnimation(ctx, projectID, a)
	s.metrics.RecordRemoteWrite(string(syncErrors.OpUpdateAnimation), err)
	if err != nil {
		s.remoteWriteFailed(ctx, syncErrors.OpUpdateAnimation, err)
		return syncErrors.NewRemoteWriteError(syncErrors.OpUpdateAnimation, err)
	}
	return nil
}

// RemoveAnimation detaches an animation locally and deletes it remotely.
func (s *Store) RemoveAnimation(ctx context.Context, id string) error {
	s.mu.Lock()
	i := s.animationIndexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	uid := s.animations[i].UID
	s.animations = append(s.animations[:i], s.animations[i+1:]...)
	projectID := s.projectID
	s.mu.Unlock()
	s.refresh()

	if projectID == "" || uid == "" {
		return nil
	}
	err := s.opts.Remote.DeleteAnimation(ctx, projectID, uid)
	s.metrics.RecordRemoteWrite(string(syncErrors.OpRemoveAnimation), err)
	if err != nil {
		s.remoteWriteFailed(ctx, syncErrors.OpRemoveAnimation, err)
		return syncErrors.NewRemoteWriteError(syncErrors.OpRemoveAnimation, err)
	}
	return nil
}
