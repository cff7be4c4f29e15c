package light

import (
	"sync"
	"sync/atomic"
)

// Buffer is a chunk's light data with an optional read snapshot.
//
// While buffering, the first write copies the live plane into a snapshot and
// readers keep seeing that snapshot until End. mu only guards the choice of
// snapshot vs live; writes to the live plane never take it.
type Buffer struct {
	live Plane

	mu        sync.RWMutex
	snap      *Plane
	buffering atomic.Bool

	snapshots atomic.Uint64
}

func NewBuffer() *Buffer { return &Buffer{} }

// Get is safe for concurrent callers during a buffered write.
func (b *Buffer) Get(i int) (Level, Tint) {
	b.mu.RLock()
	p := b.snap
	if p == nil {
		p = &b.live
	}
	l, t := p.At(i)
	b.mu.RUnlock()
	return l, t
}

// View runs fn against one consistent plane.
func (b *Buffer) View(fn func(r Reader)) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.snap != nil {
		fn(b.snap)
		return
	}
	fn(&b.live)
}

// Live reads the plane being written. Only the writer should rely on it.
func (b *Buffer) Live(i int) (Level, Tint) {
	return b.live.At(i)
}

func (b *Buffer) Set(i int, l Level, t Tint) {
	if b.buffering.Load() {
		b.ensureSnapshot()
	}
	b.live.set(i, l, t)
}

func (b *Buffer) ensureSnapshot() {
	b.mu.RLock()
	has := b.snap != nil
	b.mu.RUnlock()
	if has {
		return
	}
	b.mu.Lock()
	if b.snap == nil && b.buffering.Load() {
		b.snap = b.live.clone()
		b.snapshots.Add(1)
	}
	b.mu.Unlock()
}

// Begin enters buffering mode. The snapshot itself is taken lazily.
func (b *Buffer) Begin() {
	b.buffering.Store(true)
}

// End discards the snapshot; reads resume from the live plane.
func (b *Buffer) End() {
	b.mu.Lock()
	b.snap = nil
	b.buffering.Store(false)
	b.mu.Unlock()
}

func (b *Buffer) Buffering() bool { return b.buffering.Load() }

// Snapshots is the number of snapshots taken over the buffer's lifetime.
func (b *Buffer) Snapshots() uint64 { return b.snapshots.Load() }

func (b *Buffer) Plane() *Plane { return &b.live }

// Compact releases empty storage. Writer only, outside buffering.
func (b *Buffer) Compact() {
	if b.buffering.Load() {
		return
	}
	b.live.Compact()
}

func (b *Buffer) Check() error { return b.live.Check() }

// Release drops all storage when the owning chunk is unloaded.
func (b *Buffer) Release() {
	b.mu.Lock()
	b.snap = nil
	b.buffering.Store(false)
	b.live.level.w.Store(nil)
	b.live.tint.w.Store(nil)
	b.live.hasData.Store(false)
	b.mu.Unlock()
}
