// Package timelinesync reconciles a locally-held, in-memory timeline of
// editable elements against a continuously-updated remote replica. It
// detects and resolves field-level conflicts between concurrent editing
// sessions and keeps exactly one canonical state visible to the user.
//
// The Store is the sole mutator of canonical state. Remote changes arrive
// through the feed subscription; local edits arrive through the exported
// methods; both funnel into a single update entry point that decides, per
// element, whether to apply, defer, or fork.
package timelinesync

import (
	"context"
	"log/slog"
	"sort"
	stdSync "sync"

	"github.com/c0deZ3R0/timeline-sync-kit/diff"
	"github.com/c0deZ3R0/timeline-sync-kit/element"
	syncErrors "github.com/c0deZ3R0/timeline-sync-kit/errors"
	"github.com/c0deZ3R0/timeline-sync-kit/feed"
	"github.com/c0deZ3R0/timeline-sync-kit/logging"
	"github.com/c0deZ3R0/timeline-sync-kit/merge"
	"github.com/c0deZ3R0/timeline-sync-kit/render"
)

// pendingMerge is a captured remote update deferred because the affected
// element is under local active edit. from is the local snapshot at the
// moment of divergence; to is the latest remote snapshot.
type pendingMerge struct {
	from element.Element
	to   element.Element
	kind merge.ChangeKind
}

// Store holds the canonical element collection and orchestrates
// reconciliation. All reconciliation logic runs under one lock: the
// concurrency being managed is distributed (multiple sessions editing one
// remote replica), not local multi-threading.
type Store struct {
	mu      stdSync.Mutex
	opts    Options
	log     *logging.Logger
	metrics MetricsCollector

	projectID string

	elements   []element.Element
	animations []element.Animation
	conflicts  map[string]element.Element // shelf: synthetic id -> fork

	selectedID   string
	selectedBase *element.Element // canonical snapshot at selection, merge ancestor
	pending      map[string]pendingMerge

	background  string
	maxTime     int64
	onlineUsers []string

	videos []string
	audios []string
	images []string

	nextOrder int

	sub    feed.Subscription
	subGen uint64
	closed bool

	refreshFns []func()
}

// New creates a sync session over the given collaborators. The session is
// inert until Open binds it to a project.
func New(opts Options) *Store {
	opts = opts.withDefaults()
	return &Store{
		opts:       opts,
		log:        opts.Logger.WithComponent(logging.Component("store")),
		metrics:    opts.Metrics,
		conflicts:  make(map[string]element.Element),
		pending:    make(map[string]pendingMerge),
		background: DefaultBackground,
		maxTime:    opts.MaxTime,
	}
}

// Open binds the session to a project and subscribes to its change feed.
// Existing remote records are replayed through the feed as Added events, so
// the canonical collection is populated when Open returns (for synchronous
// stores) or as events arrive.
func (s *Store) Open(ctx context.Context, projectID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return syncErrors.New(syncErrors.OpSubscribe, errSessionClosed)
	}
	if s.sub != nil {
		// Switching projects tears down the previous feed first.
		s.unsubscribeLocked()
	}
	s.projectID = projectID
	s.log = s.opts.Logger.WithComponent(logging.Component("store")).WithProject(projectID)
	s.subGen++
	gen := s.subGen
	remote := s.opts.Remote
	s.mu.Unlock()

	sub, err := remote.Subscribe(ctx, projectID, feed.Handler{
		OnElement:   func(ev feed.ElementChange) error { return s.applyElementChange(gen, ev) },
		OnAnimation: func(ev feed.AnimationChange) error { return s.applyAnimationChange(gen, ev) },
		OnProject:   func(ev feed.ProjectChange) error { return s.applyProjectChange(gen, ev) },
		OnAsset:     func(ev feed.AssetChange) error { return s.applyAssetChange(gen, ev) },
	})
	if err != nil {
		return syncErrors.WrapOpComponentCode(err, syncErrors.OpSubscribe, "feed", syncErrors.ErrCodeNetworkFailure)
	}

	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
	return nil
}

// Close tears down the feed subscription. In-flight feed callbacks that
// complete after Close are ignored via the subscription generation check.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.unsubscribeLocked()
	return nil
}

func (s *Store) unsubscribeLocked() {
	s.subGen++ // invalidates callbacks from the old feed
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			s.log.Warn("unsubscribe failed", slog.String("error", err.Error()))
		}
		s.sub = nil
	}
}

// OnRefresh registers a callback invoked after every canonical state change,
// once the rendering surface has been rebuilt.
func (s *Store) OnRefresh(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshFns = append(s.refreshFns, fn)
}

// SetOnlineUsers replaces the set of currently-online user identifiers used
// for last-editor highlighting, then refreshes the display.
func (s *Store) SetOnlineUsers(users []string) {
	s.mu.Lock()
	s.onlineUsers = append([]string(nil), users...)
	s.mu.Unlock()
	s.refresh()
}

// AddElement appends a new element to the canonical collection, persists it
// remotely, and selects it. The local apply is optimistic: a remote write
// failure is surfaced as an alert and local state is kept.
func (s *Store) AddElement(ctx context.Context, el element.Element) error {
	s.mu.Lock()
	if s.projectID == "" {
		s.mu.Unlock()
		err := syncErrors.NewMissingProjectError(syncErrors.OpAddElement)
		s.log.LogError(ctx, err, "add element without project context")
		return err
	}
	if s.indexOfLocked(el.ID) >= 0 {
		s.mu.Unlock()
		return nil
	}
	el.Order = s.nextOrderLocked()
	el.TimeFrame = el.TimeFrame.Clamp(s.maxTime)
	s.elements = append(s.elements, el)
	projectID := s.projectID
	s.mu.Unlock()

	uid, err := s.opts.Remote.CreateElement(ctx, projectID, el)
	s.metrics.RecordRemoteWrite(string(syncErrors.OpAddElement), err)
	if err != nil {
		s.remoteWriteFailed(ctx, syncErrors.OpAddElement, err)
	} else {
		s.mu.Lock()
		if i := s.indexOfLocked(el.ID); i >= 0 {
			s.elements[i].UID = uid
		}
		s.mu.Unlock()
	}

	s.SelectElement(ctx, el.ID)
	return err
}

// UpdateElement is the single canonical update entry point for local edits.
// Conflict-shelf entries are mutated in place without a remote write; while
// a pending merge exists for the element the edit stays local (the merge
// re-persists); otherwise the element is written remotely and the canonical
// entry replaced.
func (s *Store) UpdateElement(ctx context.Context, el element.Element) error {
	changed, err := s.updateElement(ctx, el, true)
	if changed {
		s.refresh()
	}
	return err
}

// UpdateElementTimeFrame applies a partial time-frame change, clamped to
// [0, maxTime], through the update entry point.
func (s *Store) UpdateElementTimeFrame(ctx context.Context, id string, patch TimeFramePatch) error {
	s.mu.Lock()
	el, ok := s.lookupLocked(id)
	if !ok {
		s.mu.Unlock()
		return nil
	}
	tf := el.TimeFrame
	if patch.Start != nil {
		tf.Start = *patch.Start
	}
	if patch.End != nil {
		tf.End = *patch.End
	}
	el.TimeFrame = tf.Clamp(s.maxTime)
	s.mu.Unlock()

	return s.UpdateElement(ctx, el)
}

// TimeFramePatch is a partial time-frame update; nil edges keep the current
// value.
type TimeFramePatch struct {
	Start *int64
	End   *int64
}

// UpdateEffect replaces the visual effect of a video or image element
// through the update entry point. Other kinds are ignored.
func (s *Store) UpdateEffect(ctx context.Context, id string, effect element.Effect) error {
	s.mu.Lock()
	el, ok := s.lookupLocked(id)
	if !ok {
		s.mu.Unlock()
		return nil
	}
	switch p := el.Properties.(type) {
	case element.VideoProps:
		p.Effect = effect
		el.Properties = p
	case element.ImageProps:
		p.Effect = effect
		el.Properties = p
	default:
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	return s.UpdateElement(ctx, el)
}

// updateElement implements the update entry point for both local and
// remote-sourced changes. It reports whether canonical state changed.
func (s *Store) updateElement(ctx context.Context, el element.Element, localChange bool) (bool, error) {
	s.mu.Lock()

	// Shelf entries are locally-only scratch state until resolved by
	// deletion: mutate in place, never write remotely.
	if _, ok := s.conflicts[el.ID]; ok {
		s.conflicts[el.ID] = element.MustCopy(el)
		s.mu.Unlock()
		return true, nil
	}

	i := s.indexOfLocked(el.ID)

	var writeErr error
	if _, hasPending := s.pending[el.ID]; !hasPending {
		if !localChange {
			if i < 0 {
				s.mu.Unlock()
				return false, nil
			}
			d, err := diff.Elements(s.elements[i], el)
			if err != nil {
				s.mu.Unlock()
				return false, err
			}
			if d.Empty() {
				// Our own write round-tripped through the feed.
				s.metrics.RecordSuppressedNoOp()
				s.mu.Unlock()
				return false, nil
			}
		} else {
			projectID := s.projectID
			s.mu.Unlock()
			writeErr = s.writeElement(ctx, projectID, el)
			s.mu.Lock()
			// Re-resolve: state may have moved while the write was out.
			i = s.indexOfLocked(el.ID)
		}
	}

	if i >= 0 {
		s.elements[i] = element.MustCopy(el)
	} else {
		s.elements = append(s.elements, element.MustCopy(el))
	}
	s.mu.Unlock()
	return true, writeErr
}

// writeElement pushes el's full persisted projection to the remote store.
// A missing project context or remote identifier is a programming-invariant
// violation: logged, write skipped, local state untouched.
func (s *Store) writeElement(ctx context.Context, projectID string, el element.Element) error {
	if projectID == "" {
		s.log.LogError(ctx, syncErrors.NewMissingProjectError(syncErrors.OpUpdateElement), "skipping remote write")
		return nil
	}
	if el.UID == "" {
		s.log.LogError(ctx, syncErrors.NewMissingUIDError(syncErrors.OpUpdateElement, el.ID), "skipping remote write")
		return nil
	}

	err := s.opts.Remote.PutElement(ctx, projectID, el)
	s.metrics.RecordRemoteWrite(string(syncErrors.OpUpdateElement), err)
	if err != nil {
		s.remoteWriteFailed(ctx, syncErrors.OpUpdateElement, err)
		return syncErrors.NewRemoteWriteError(syncErrors.OpUpdateElement, err)
	}
	return nil
}

// RemoveElement deletes an element. Deleting a conflict-shelf entry discards
// the forked branch; deleting an original that is shadowed by a conflict
// promotes the shelf entry's data onto the original's identity instead of
// deleting anything remotely.
func (s *Store) RemoveElement(ctx context.Context, id string) error {
	if id == "" {
		err := syncErrors.NewUndefinedIDError(syncErrors.OpRemoveElement)
		s.opts.Alerter.Alert("Element ID is undefined")
		s.log.LogError(ctx, err, "remove element")
		return err
	}

	s.mu.Lock()
	if _, ok := s.conflicts[id]; ok {
		delete(s.conflicts, id)
		s.mu.Unlock()
		s.refresh()
		return nil
	}

	i := s.indexOfLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	target := s.elements[i]
	if target.UID == "" {
		s.mu.Unlock()
		return nil
	}
	if s.projectID == "" {
		s.mu.Unlock()
		err := syncErrors.NewMissingProjectError(syncErrors.OpRemoveElement)
		s.log.LogError(ctx, err, "remove element without project context")
		return err
	}

	// "Delete the current value, keep the other branch" is the recovery
	// gesture: promote the surviving fork instead of deleting.
	if survivor, shelfID, ok := s.shelfEntryForLocked(id); ok {
		survivor.ID = target.ID
		survivor.UID = target.UID
		survivor.Name = target.Name
		survivor.ConflictID = ""
		delete(s.conflicts, shelfID)
		s.mu.Unlock()
		return s.UpdateElement(ctx, survivor)
	}

	projectID := s.projectID
	s.mu.Unlock()

	err := s.opts.Remote.DeleteElement(ctx, projectID, target.UID)
	s.metrics.RecordRemoteWrite(string(syncErrors.OpRemoveElement), err)
	if err != nil {
		s.remoteWriteFailed(ctx, syncErrors.OpRemoveElement, err)
		return syncErrors.NewRemoteWriteError(syncErrors.OpRemoveElement, err)
	}

	s.mu.Lock()
	s.removeLocalLocked(id)
	s.mu.Unlock()
	s.refresh()
	return nil
}

// SelectElement marks the element as under local active edit and records the
// local user on its edit-persons trail. The canonical value at selection is
// snapshotted as the merge ancestor: if a remote change arrives while the
// element stays selected, the three-way merge at deselect runs against this
// snapshot, so local edits made during the session count as local changes.
func (s *Store) SelectElement(ctx context.Context, id string) {
	s.mu.Lock()
	i := s.indexOfLocked(id)
	if i < 0 {
		if _, ok := s.conflicts[id]; !ok {
			s.mu.Unlock()
			return
		}
		// Shelf entries are selectable for editing but carry no presence
		// trail updates and no merge window.
		s.selectedID = id
		s.selectedBase = nil
		s.mu.Unlock()
		s.refresh()
		return
	}

	s.selectedID = id
	var trail []string
	user := s.opts.UserID
	if user != "" {
		eps := s.elements[i].EditPersonsID
		if len(eps) == 0 || eps[len(eps)-1] != user {
			trail = append(append([]string(nil), eps...), user)
			s.elements[i].EditPersonsID = trail
		}
	}
	// Snapshot after the trail append so the trail itself never reads as a
	// local divergence during merge.
	base := element.MustCopy(s.elements[i])
	s.selectedBase = &base
	uid := s.elements[i].UID
	projectID := s.projectID
	s.mu.Unlock()

	if trail != nil && uid != "" && projectID != "" {
		err := s.opts.Remote.UpdateElementFields(ctx, projectID, uid, map[string]any{
			"editPersonsId": trail,
		})
		s.metrics.RecordRemoteWrite(string(syncErrors.OpUpdateElement), err)
		if err != nil {
			s.log.LogError(ctx, err, "edit-persons trail write failed",
				slog.String("element_id", id))
		}
	}
	s.refresh()
}

// Deselect releases the active edit. Any deferred remote update captured
// while the element was selected is resolved now: a clean three-way merge
// replaces canonical state and is re-persisted; a failed merge forks the
// local branch onto the conflict shelf and advances the canonical slot to
// the remote value, keeping both versions visible and editable.
func (s *Store) Deselect(ctx context.Context) error {
	s.mu.Lock()
	id := s.selectedID
	s.selectedID = ""
	s.selectedBase = nil
	if id == "" {
		s.mu.Unlock()
		return nil
	}

	pm, hasPending := s.pending[id]
	if !hasPending {
		s.mu.Unlock()
		s.refresh()
		return nil
	}
	delete(s.pending, id)
	s.metrics.RecordPendingMerges(len(s.pending))

	i := s.indexOfLocked(id)
	if i < 0 {
		s.mu.Unlock()
		s.refresh()
		return nil
	}
	local := s.elements[i]
	s.mu.Unlock()

	res, err := merge.Resolve(pm.kind, pm.from, local, pm.to)
	if err != nil {
		s.log.LogError(ctx, err, "merge resolution failed", slog.String("element_id", id))
		s.refresh()
		return err
	}

	if res.Conflict {
		s.metrics.RecordMergeOutcome(MergeOutcomeConflict)
		s.forkConflict(local, pm.to)
		s.opts.Alerter.Alert("There is a conflict with the element. Review the conflict track and delete one of the versions to synchronize.")
		s.refresh()
		return nil
	}

	if pm.kind == merge.ChangeDeleted {
		s.metrics.RecordMergeOutcome(MergeOutcomeDeleteWins)
	} else {
		s.metrics.RecordMergeOutcome(MergeOutcomeMerged)
	}
	return s.UpdateElement(ctx, res.Merged)
}

// SelectedID returns the id of the element under local active edit, or "".
func (s *Store) SelectedID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedID
}

// HasPendingMerge reports whether a deferred remote update is held for the
// element.
func (s *Store) HasPendingMerge(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[id]
	return ok
}

// SetBackground updates the project background color. Remote-sourced values
// arrive through the feed; this is the local write-through path.
func (s *Store) SetBackground(ctx context.Context, color string) error {
	s.mu.Lock()
	s.background = color
	projectID := s.projectID
	s.mu.Unlock()
	s.refresh()

	if projectID == "" {
		err := syncErrors.NewMissingProjectError(syncErrors.OpSetBackground)
		s.log.LogError(ctx, err, "skipping background write")
		return nil
	}
	err := s.opts.Remote.SetBackground(ctx, projectID, color)
	s.metrics.RecordRemoteWrite(string(syncErrors.OpSetBackground), err)
	if err != nil {
		s.log.LogError(ctx, err, "background write failed")
	}
	return err
}

// SetMaxTime updates the project duration bound.
func (s *Store) SetMaxTime(ctx context.Context, maxTime int64) error {
	s.mu.Lock()
	s.maxTime = maxTime
	projectID := s.projectID
	s.mu.Unlock()

	if projectID == "" {
		err := syncErrors.NewMissingProjectError(syncErrors.OpSetMaxTime)
		s.log.LogError(ctx, err, "skipping max-time write")
		return nil
	}
	err := s.opts.Remote.SetMaxTime(ctx, projectID, maxTime)
	s.metrics.RecordRemoteWrite(string(syncErrors.OpSetMaxTime), err)
	if err != nil {
		s.log.LogError(ctx, err, "max-time write failed")
	}
	return err
}

// Background returns the current project background color.
func (s *Store) Background() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.background
}

// MaxTime returns the current project duration bound in milliseconds.
func (s *Store) MaxTime() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxTime
}

// Elements returns the canonical collection ordered by timeline display
// order. The returned elements are copies.
func (s *Store) Elements() []element.Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]element.Element, 0, len(s.elements))
	for _, el := range s.elements {
		out = append(out, element.MustCopy(el))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Element returns a copy of the canonical element with the given id.
func (s *Store) Element(id string) (element.Element, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.lookupLocked(id)
	return el, ok
}

// refresh rebuilds the rendering surface wholesale from canonical and shelf
// state, then notifies refresh subscribers. The lock is released before any
// collaborator is invoked, so callbacks may re-enter the store.
func (s *Store) refresh() {
	s.mu.Lock()
	objs := s.renderObjectsLocked()
	fns := append([]func(){}, s.refreshFns...)
	surface := s.opts.Surface
	s.mu.Unlock()

	if surface != nil {
		surface.RemoveAll()
		for _, obj := range objs {
			surface.Add(obj)
		}
		surface.RenderAll()
	}
	s.metrics.RecordRenderRefresh()
	for _, fn := range fns {
		fn()
	}
}

func (s *Store) renderObjectsLocked() []render.Object {
	online := make(map[string]bool, len(s.onlineUsers))
	for _, u := range s.onlineUsers {
		online[u] = true
	}

	objs := make([]render.Object, 0, len(s.elements)+len(s.conflicts))
	appendObj := func(el element.Element, conflicted bool) {
		obj := render.Object{
			ElementID:  el.ID,
			Kind:       el.Kind,
			Name:       el.Name,
			Order:      el.Order,
			Placement:  el.Placement,
			TimeFrame:  el.TimeFrame,
			Conflicted: conflicted,
		}
		if n := len(el.EditPersonsID); n > 0 {
			obj.LastEditor = el.EditPersonsID[n-1]
			obj.LastEditorOnline = online[obj.LastEditor]
		}
		objs = append(objs, obj)
	}
	for _, el := range s.elements {
		appendObj(el, false)
	}
	for _, el := range s.conflicts {
		appendObj(el, true)
	}
	sort.SliceStable(objs, func(i, j int) bool { return objs[i].Order < objs[j].Order })
	return objs
}

func (s *Store) remoteWriteFailed(ctx context.Context, op syncErrors.Operation, err error) {
	s.opts.Alerter.Alert("Error synchronizing data.")
	s.log.LogError(ctx, syncErrors.NewRemoteWriteError(op, err), "remote write failed")
}

func (s *Store) indexOfLocked(id string) int {
	for i := range s.elements {
		if s.elements[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) lookupLocked(id string) (element.Element, bool) {
	if i := s.indexOfLocked(id); i >= 0 {
		return element.MustCopy(s.elements[i]), true
	}
	if el, ok := s.conflicts[id]; ok {
		return element.MustCopy(el), true
	}
	return element.Element{}, false
}

func (s *Store) removeLocalLocked(id string) {
	if i := s.indexOfLocked(id); i >= 0 {
		s.elements = append(s.elements[:i], s.elements[i+1:]...)
	}
	if s.selectedID == id {
		s.selectedID = ""
		s.selectedBase = nil
	}
	delete(s.pending, id)
}

func (s *Store) nextOrderLocked() int {
	order := s.nextOrder
	for _, el := range s.elements {
		if el.Order >= order {
			order = el.Order + 1
		}
	}
	s.nextOrder = order + 1
	return order
}
