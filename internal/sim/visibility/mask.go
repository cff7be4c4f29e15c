package visibility

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"voxelsight.ai/internal/sim/lattice"
)

type maskBuf struct {
	mu   sync.RWMutex
	keys map[lattice.Key]struct{}
	pass uint64
}

// Mask is the double-buffered visible set. Readers always see the buffer of
// the last committed pass; a pass writes the other one and flips on Commit.
type Mask struct {
	active atomic.Uint32
	bufs   [2]maskBuf

	writer sync.Mutex // one pass at a time
	passes atomic.Uint64
	flips  atomic.Uint64
}

func NewMask() *Mask {
	m := &Mask{}
	for i := range m.bufs {
		m.bufs[i].keys = map[lattice.Key]struct{}{}
	}
	return m
}

// Pass is an in-progress write to the standby buffer.
type Pass struct {
	m   *Mask
	buf *maskBuf
	idx uint32
	n   uint64
}

// Begin locks and clears the standby buffer. The caller must Commit.
func (m *Mask) Begin() *Pass {
	m.writer.Lock()
	idx := 1 - m.active.Load()
	b := &m.bufs[idx]
	b.mu.Lock()
	clear(b.keys)
	n := m.passes.Add(1)
	b.pass = n
	return &Pass{m: m, buf: b, idx: idx, n: n}
}

func (p *Pass) Mark(k lattice.Key) {
	p.buf.keys[k] = struct{}{}
}

func (p *Pass) Marked(k lattice.Key) bool {
	_, ok := p.buf.keys[k]
	return ok
}

func (p *Pass) Len() int { return len(p.buf.keys) }

func (p *Pass) Number() uint64 { return p.n }

// Commit publishes the pass. It is the only place the selector flips.
func (p *Pass) Commit() {
	p.buf.mu.Unlock()
	p.m.active.Store(p.idx)
	p.m.flips.Add(1)
	p.m.writer.Unlock()
}

// read runs fn against the active buffer without ever waiting on the writer.
func (m *Mask) read(fn func(b *maskBuf)) {
	for {
		idx := m.active.Load()
		b := &m.bufs[idx]
		if !b.mu.TryRLock() {
			runtime.Gosched()
			continue
		}
		if m.active.Load() != idx {
			b.mu.RUnlock()
			continue
		}
		fn(b)
		b.mu.RUnlock()
		return
	}
}

// IsVisible reports k's state in the last committed pass.
func (m *Mask) IsVisible(k lattice.Key) bool {
	var ok bool
	m.read(func(b *maskBuf) { _, ok = b.keys[k] })
	return ok
}

// Snapshot returns the last committed pass number and its keys, sorted.
func (m *Mask) Snapshot() (uint64, []lattice.Key) {
	var (
		pass uint64
		keys []lattice.Key
	)
	m.read(func(b *maskBuf) {
		pass = b.pass
		keys = make([]lattice.Key, 0, len(b.keys))
		for k := range b.keys {
			keys = append(keys, k)
		}
	})
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return pass, keys
}

func (m *Mask) PassNumber() uint64 {
	var n uint64
	m.read(func(b *maskBuf) { n = b.pass })
	return n
}

func (m *Mask) Len() int {
	var n int
	m.read(func(b *maskBuf) { n = len(b.keys) })
	return n
}

// Flips counts selector flips; it equals the number of committed passes.
func (m *Mask) Flips() uint64 { return m.flips.Load() }

// MarkAllBoth writes keys into both buffers (occlusion disabled).
func (m *Mask) MarkAllBoth(keys []lattice.Key) {
	for i := 0; i < 2; i++ {
		p := m.Begin()
		for _, k := range keys {
			p.Mark(k)
		}
		p.Commit()
	}
}

// Forget removes an unloaded chunk from both buffers.
func (m *Mask) Forget(k lattice.Key) {
	m.writer.Lock()
	defer m.writer.Unlock()
	for i := range m.bufs {
		b := &m.bufs[i]
		b.mu.Lock()
		delete(b.keys, k)
		b.mu.Unlock()
	}
}
