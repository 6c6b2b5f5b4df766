package timelinesync

import (
	"context"
	"fmt"
	"sync"

	"github.com/c0deZ3R0/timeline-sync-kit/element"
	"github.com/c0deZ3R0/timeline-sync-kit/feed"
)

// fakeRemote is a scriptable feed.DocumentStore for exercising the store's
// write and event paths in isolation. Tests push events through emit* and
// inspect the recorded writes.
type fakeRemote struct {
	mu sync.Mutex

	nextUID int
	handler feed.Handler

	creates      []element.Element
	puts         []element.Element
	fieldUpdates []fieldUpdate
	deletes      []string

	createErr error
	putErr    error
	deleteErr error
	fieldsErr error
}

type fieldUpdate struct {
	uid    string
	fields map[string]any
}

func newFakeRemote() *fakeRemote { return &fakeRemote{} }

func (f *fakeRemote) CreateElement(_ context.Context, _ string, el element.Element) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextUID++
	uid := fmt.Sprintf("uid-%d", f.nextUID)
	f.creates = append(f.creates, el)
	return uid, nil
}

func (f *fakeRemote) PutElement(_ context.Context, _ string, el element.Element) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.puts = append(f.puts, el)
	return nil
}

func (f *fakeRemote) UpdateElementFields(_ context.Context, _, uid string, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fieldsErr != nil {
		return f.fieldsErr
	}
	f.fieldUpdates = append(f.fieldUpdates, fieldUpdate{uid: uid, fields: fields})
	return nil
}

func (f *fakeRemote) DeleteElement(_ context.Context, _, uid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletes = append(f.deletes, uid)
	return nil
}

func (f *fakeRemote) CreateAnimation(_ context.Context, _ string, _ element.Animation) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextUID++
	return fmt.Sprintf("uid-%d", f.nextUID), nil
}

func (f *fakeRemote) PutAnimation(context.Context, string, element.Animation) error { return nil }
func (f *fakeRemote) DeleteAnimation(context.Context, string, string) error         { return nil }
func (f *fakeRemote) SetBackground(context.Context, string, string) error           { return nil }
func (f *fakeRemote) SetMaxTime(context.Context, string, int64) error               { return nil }
func (f *fakeRemote) AddAssetURL(context.Context, string, feed.AssetSlot, string) error {
	return nil
}
func (f *fakeRemote) Close() error { return nil }

func (f *fakeRemote) Subscribe(_ context.Context, _ string, h feed.Handler) (feed.Subscription, error) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
	return fakeSubscription{}, nil
}

type fakeSubscription struct{}

func (fakeSubscription) Unsubscribe() error { return nil }

func (f *fakeRemote) emitElement(kind feed.ChangeKind, el element.Element) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h.OnElement != nil {
		_ = h.OnElement(feed.ElementChange{Kind: kind, Element: el})
	}
}

func (f *fakeRemote) emitProject(background *string, maxTime *int64) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h.OnProject != nil {
		_ = h.OnProject(feed.ProjectChange{Background: background, MaxTime: maxTime})
	}
}

func (f *fakeRemote) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.puts)
}

func (f *fakeRemote) fieldUpdateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fieldUpdates)
}

// spyMetrics counts collector callbacks.
type spyMetrics struct {
	mu            sync.Mutex
	mergeOutcomes map[string]int
	suppressed    int
	refreshes     int
	writes        int
	writeErrs     int
}

func newSpyMetrics() *spyMetrics {
	return &spyMetrics{mergeOutcomes: make(map[string]int)}
}

func (m *spyMetrics) RecordMergeOutcome(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mergeOutcomes[outcome]++
}

func (m *spyMetrics) RecordRemoteWrite(_ string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if err != nil {
		m.writeErrs++
	}
}

func (m *spyMetrics) RecordSuppressedNoOp() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suppressed++
}

func (m *spyMetrics) RecordRenderRefresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes++
}

func (m *spyMetrics) RecordPendingMerges(int) {}

func (m *spyMetrics) suppressedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suppressed
}

func (m *spyMetrics) refreshCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshes
}

func (m *spyMetrics) outcomeCount(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mergeOutcomes[outcome]
}

// recordingAlerter captures blocking user notifications.
type recordingAlerter struct {
	mu   sync.Mutex
	msgs []string
}

func (a *recordingAlerter) Alert(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.msgs = append(a.msgs, msg)
}

func (a *recordingAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.msgs)
}
