package render

import stdSync "sync"

// FakeSurface is a recording Surface for tests. It retains the objects of
// the most recent rebuild and counts render flushes.
type FakeSurface struct {
	mu      stdSync.Mutex
	objects []Object
	renders int
}

// NewFakeSurface creates an empty recording surface.
func NewFakeSurface() *FakeSurface {
	return &FakeSurface{}
}

func (f *FakeSurface) Add(obj Object) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects = append(f.objects, obj)
}

func (f *FakeSurface) RemoveAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects = nil
}

func (f *FakeSurface) RenderAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renders++
}

// Objects returns the objects of the most recent rebuild in add order.
func (f *FakeSurface) Objects() []Object {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Object, len(f.objects))
	copy(out, f.objects)
	return out
}

// Renders returns how many times RenderAll has been called.
func (f *FakeSurface) Renders() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.renders
}
