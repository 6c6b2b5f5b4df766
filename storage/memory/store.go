// Package memory provides an in-memory implementation of the remote document
// store contract with synchronous subscriber fan-out. It backs the test
// suites and lets several reconciler sessions in one process collaborate
// against a shared replica, which is how the multi-session scenarios are
// exercised without a network.
package memory

import (
	"context"
	"fmt"
	stdSync "sync"

	"github.com/google/uuid"

	"github.com/c0deZ3R0/timeline-sync-kit/element"
	syncErrors "github.com/c0deZ3R0/timeline-sync-kit/errors"
	"github.com/c0deZ3R0/timeline-sync-kit/feed"
)

const defaultMaxTime = 30_000

// Store is an in-memory feed.DocumentStore.
type Store struct {
	mu       stdSync.Mutex
	projects map[string]*project
	closed   bool
}

type project struct {
	elements   map[string]element.Element   // keyed by uid
	animations map[string]element.Animation // keyed by uid
	background string
	maxTime    int64
	assets     map[feed.AssetSlot][]string
	subs       map[string]*subscription
}

type subscription struct {
	id      string
	handler feed.Handler
	store   *Store
	proj    string
}

// NewStore creates an empty in-memory document store.
func NewStore() *Store {
	return &Store{projects: make(map[string]*project)}
}

func (s *Store) project(id string) *project {
	p, ok := s.projects[id]
	if !ok {
		p = &project{
			elements:   make(map[string]element.Element),
			animations: make(map[string]element.Animation),
			maxTime:    defaultMaxTime,
			assets:     make(map[feed.AssetSlot][]string),
			subs:       make(map[string]*subscription),
		}
		s.projects[id] = p
	}
	return p
}

func (s *Store) subscribers(projectID string) []*subscription {
	p := s.projects[projectID]
	if p == nil {
		return nil
	}
	out := make([]*subscription, 0, len(p.subs))
	for _, sub := range p.subs {
		out = append(out, sub)
	}
	return out
}

// CreateElement persists a new element record and returns the store-assigned
// identifier.
func (s *Store) CreateElement(ctx context.Context, projectID string, el element.Element) (string, error) {
	stored, err := sanitize(el)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", errClosed()
	}
	uid := uuid.NewString()
	stored.UID = uid
	s.project(projectID).elements[uid] = stored
	subs := s.subscribers(projectID)
	s.mu.Unlock()

	emitElement(subs, feed.ElementChange{Kind: feed.ChangeAdded, Element: stored})
	return uid, nil
}

// PutElement replaces the record identified by el.UID, creating it when the
// uid is unknown.
func (s *Store) PutElement(ctx context.Context, projectID string, el element.Element) error {
	if el.UID == "" {
		return syncErrors.NewMissingUIDError(syncErrors.OpRemoteWrite, el.ID)
	}
	stored, err := sanitize(el)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errClosed()
	}
	p := s.project(projectID)
	_, existed := p.elements[el.UID]
	p.elements[el.UID] = stored
	subs := s.subscribers(projectID)
	s.mu.Unlock()

	kind := feed.ChangeModified
	if !existed {
		kind = feed.ChangeAdded
	}
	emitElement(subs, feed.ElementChange{Kind: kind, Element: stored})
	return nil
}

// UpdateElementFields applies a field-level partial update to the record
// identified by uid.
func (s *Store) UpdateElementFields(ctx context.Context, projectID, uid string, fields map[string]any) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errClosed()
	}
	p := s.project(projectID)
	current, ok := p.elements[uid]
	if !ok {
		s.mu.Unlock()
		return syncErrors.NewStorageError(syncErrors.OpRemoteWrite,
			fmt.Errorf("element %q not found", uid))
	}

	updated, err := element.OverlayFields(current, fields)
	if err != nil {
		s.mu.Unlock()
		return syncErrors.NewStorageError(syncErrors.OpRemoteWrite, err)
	}
	updated.UID = uid
	p.elements[uid] = updated
	subs := s.subscribers(projectID)
	s.mu.Unlock()

	emitElement(subs, feed.ElementChange{Kind: feed.ChangeModified, Element: updated})
	return nil
}

// DeleteElement removes the record identified by uid. The removal event
// carries the record's last state.
func (s *Store) DeleteElement(ctx context.Context, projectID, uid string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errClosed()
	}
	p := s.project(projectID)
	last, ok := p.elements[uid]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	delete(p.elements, uid)
	subs := s.subscribers(projectID)
	s.mu.Unlock()

	emitElement(subs, feed.ElementChange{Kind: feed.ChangeRemoved, Element: last})
	return nil
}

// CreateAnimation persists a new animation record.
func (s *Store) CreateAnimation(ctx context.Context, projectID string, a element.Animation) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", errClosed()
	}
	uid := uuid.NewString()
	a.UID = uid
	s.project(projectID).animations[uid] = a
	subs := s.subscribers(projectID)
	s.mu.Unlock()

	emitAnimation(subs, feed.AnimationChange{Kind: feed.ChangeAdded, Animation: a})
	return uid, nil
}

// PutAnimation replaces the record identified by a.UID.
func (s *Store) PutAnimation(ctx context.Context, projectID string, a element.Animation) error {
	if a.UID == "" {
		return syncErrors.NewMissingUIDError(syncErrors.OpRemoteWrite, a.ID)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errClosed()
	}
	p := s.project(projectID)
	_, existed := p.animations[a.UID]
	p.animations[a.UID] = a
	subs := s.subscribers(projectID)
	s.mu.Unlock()

	kind := feed.ChangeModified
	if !existed {
		kind = feed.ChangeAdded
	}
	emitAnimation(subs, feed.AnimationChange{Kind: kind, Animation: a})
	return nil
}

// DeleteAnimation removes the record identified by uid.
func (s *Store) DeleteAnimation(ctx context.Context, projectID, uid string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errClosed()
	}
	p := s.project(projectID)
	last, ok := p.animations[uid]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	delete(p.animations, uid)
	subs := s.subscribers(projectID)
	s.mu.Unlock()

	emitAnimation(subs, feed.AnimationChange{Kind: feed.ChangeRemoved, Animation: last})
	return nil
}

// SetBackground partially updates the project's background color.
func (s *Store) SetBackground(ctx context.Context, projectID, color string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errClosed()
	}
	s.project(projectID).background = color
	subs := s.subscribers(projectID)
	s.mu.Unlock()

	emitProject(subs, feed.ProjectChange{Background: &color})
	return nil
}

// SetMaxTime partially updates the project's duration bound.
func (s *Store) SetMaxTime(ctx context.Context, projectID string, maxTime int64) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errClosed()
	}
	s.project(projectID).maxTime = maxTime
	subs := s.subscribers(projectID)
	s.mu.Unlock()

	emitProject(subs, feed.ProjectChange{MaxTime: &maxTime})
	return nil
}

// AddAssetURL registers a retrieval URL in the named asset slot.
func (s *Store) AddAssetURL(ctx context.Context, projectID string, slot feed.AssetSlot, url string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errClosed()
	}
	p := s.project(projectID)
	p.assets[slot] = append(p.assets[slot], url)
	subs := s.subscribers(projectID)
	s.mu.Unlock()

	emitAsset(subs, feed.AssetChange{Slot: slot, URL: url})
	return nil
}

// Subscribe registers a change handler for the project. Existing records are
// replayed as Added events before Subscribe returns, then live changes are
// delivered synchronously with each write.
func (s *Store) Subscribe(ctx context.Context, projectID string, h feed.Handler) (feed.Subscription, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errClosed()
	}
	p := s.project(projectID)
	sub := &subscription{
		id:      uuid.NewString(),
		handler: h,
		store:   s,
		proj:    projectID,
	}
	p.subs[sub.id] = sub

	replayEls := make([]element.Element, 0, len(p.elements))
	for _, el := range p.elements {
		replayEls = append(replayEls, el)
	}
	replayAnims := make([]element.Animation, 0, len(p.animations))
	for _, a := range p.animations {
		replayAnims = append(replayAnims, a)
	}
	background := p.background
	maxTime := p.maxTime
	assets := make(map[feed.AssetSlot][]string, len(p.assets))
	for slot, urls := range p.assets {
		assets[slot] = append([]string(nil), urls...)
	}
	s.mu.Unlock()

	one := []*subscription{sub}
	if background != "" || maxTime != 0 {
		pc := feed.ProjectChange{MaxTime: &maxTime}
		if background != "" {
			pc.Background = &background
		}
		emitProject(one, pc)
	}
	for slot, urls := range assets {
		for _, url := range urls {
			emitAsset(one, feed.AssetChange{Slot: slot, URL: url})
		}
	}
	for _, el := range replayEls {
		emitElement(one, feed.ElementChange{Kind: feed.ChangeAdded, Element: el})
	}
	for _, a := range replayAnims {
		emitAnimation(one, feed.AnimationChange{Kind: feed.ChangeAdded, Animation: a})
	}

	return sub, nil
}

// Close shuts down the store and drops all subscriptions.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, p := range s.projects {
		p.subs = make(map[string]*subscription)
	}
	return nil
}

// Unsubscribe removes the subscription. It is idempotent, and no event is
// delivered through the handler after it returns.
func (sub *subscription) Unsubscribe() error {
	sub.store.mu.Lock()
	defer sub.store.mu.Unlock()
	if p, ok := sub.store.projects[sub.proj]; ok {
		delete(p.subs, sub.id)
	}
	return nil
}

// sanitize strips live handles and verifies the kind before a record enters
// the store.
func sanitize(el element.Element) (element.Element, error) {
	stored, err := element.Copy(el)
	if err != nil {
		return element.Element{}, syncErrors.WrapOpComponent(err, syncErrors.OpRemoteWrite, "memory")
	}
	return stored, nil
}

func errClosed() error {
	return syncErrors.NewStorageError(syncErrors.OpRemoteWrite, fmt.Errorf("store is closed"))
}

func emitElement(subs []*subscription, ev feed.ElementChange) {
	for _, sub := range subs {
		if sub.handler.OnElement == nil {
			continue
		}
		// Per-event isolation: a rejected event must not block the rest.
		_ = sub.handler.OnElement(ev)
	}
}

func emitAnimation(subs []*subscription, ev feed.AnimationChange) {
	for _, sub := range subs {
		if sub.handler.OnAnimation == nil {
			continue
		}
		_ = sub.handler.OnAnimation(ev)
	}
}

func emitProject(subs []*subscription, ev feed.ProjectChange) {
	for _, sub := range subs {
		if sub.handler.OnProject == nil {
			continue
		}
		_ = sub.handler.OnProject(ev)
	}
}

func emitAsset(subs []*subscription, ev feed.AssetChange) {
	for _, sub := range subs {
		if sub.handler.OnAsset == nil {
			continue
		}
		_ = sub.handler.OnAsset(ev)
	}
}

var _ feed.DocumentStore = (*Store)(nil)
