package light

import (
	"errors"
	"fmt"
	"sync/atomic"

	"voxelsight.ai/internal/sim/lattice"
)

var ErrInconsistent = errors.New("light plane inconsistent")

const wordsPerColumn = lattice.ChunkVolume / 4

type words [wordsPerColumn]atomic.Uint32

// column stores one byte per voxel, four voxels per word. A nil pointer is an
// all-zero column.
type column struct {
	w atomic.Pointer[words]
}

func (c *column) get(i int) uint8 {
	w := c.w.Load()
	if w == nil {
		return 0
	}
	return uint8(w[i>>2].Load() >> ((i & 3) * 8))
}

func (c *column) set(i int, v uint8) {
	w := c.w.Load()
	if w == nil {
		if v == 0 {
			return
		}
		c.w.CompareAndSwap(nil, new(words))
		w = c.w.Load()
	}
	shift := uint((i & 3) * 8)
	p := &w[i>>2]
	for {
		old := p.Load()
		nw := old&^(0xFF<<shift) | uint32(v)<<shift
		if old == nw || p.CompareAndSwap(old, nw) {
			return
		}
	}
}

func (c *column) zero() bool {
	w := c.w.Load()
	if w == nil {
		return true
	}
	for i := range w {
		if w[i].Load() != 0 {
			return false
		}
	}
	return true
}

func (c *column) copyFrom(src *column) {
	sw := src.w.Load()
	if sw == nil {
		c.w.Store(nil)
		return
	}
	dw := new(words)
	for i := range sw {
		dw[i].Store(sw[i].Load())
	}
	c.w.Store(dw)
}

// Plane is one chunk's light data, decomposed into a level column and a tint
// column.
type Plane struct {
	level   column
	tint    column
	hasData atomic.Bool
}

// Reader is a read-only view over a plane.
type Reader interface {
	At(i int) (Level, Tint)
}

func (p *Plane) At(i int) (Level, Tint) {
	return Level(p.level.get(i)), Tint(p.tint.get(i))
}

func (p *Plane) set(i int, l Level, t Tint) {
	if l != 0 || t != 0 {
		p.hasData.Store(true)
	}
	p.level.set(i, uint8(l))
	p.tint.set(i, uint8(t))
}

func (p *Plane) clone() *Plane {
	out := &Plane{}
	out.level.copyFrom(&p.level)
	out.tint.copyFrom(&p.tint)
	out.hasData.Store(p.hasData.Load())
	return out
}

// HasData reports whether any voxel was ever lit since the last compaction.
func (p *Plane) HasData() bool { return p.hasData.Load() }

// Compact releases all-zero columns. It must not run concurrently with writes.
func (p *Plane) Compact() {
	if p.level.zero() && p.tint.zero() {
		p.level.w.Store(nil)
		p.tint.w.Store(nil)
		p.hasData.Store(false)
	}
}

// Check reports a plane that claims data but has no column storage.
func (p *Plane) Check() error {
	if p.hasData.Load() && p.level.w.Load() == nil && p.tint.w.Load() == nil {
		return ErrInconsistent
	}
	return nil
}

// Restore loads flat byte columns produced by Export. hasData must agree with
// the columns.
func (p *Plane) Restore(levels, tints []byte, hasData bool) error {
	if !hasData {
		if len(levels) != 0 || len(tints) != 0 {
			return fmt.Errorf("%w: columns present on an empty plane", ErrInconsistent)
		}
		p.level.w.Store(nil)
		p.tint.w.Store(nil)
		p.hasData.Store(false)
		return nil
	}
	if len(levels) == 0 {
		return fmt.Errorf("%w: plane reports data but columns are empty", ErrInconsistent)
	}
	if len(levels) != lattice.ChunkVolume || len(tints) != lattice.ChunkVolume {
		return fmt.Errorf("%w: column length %d/%d", ErrInconsistent, len(levels), len(tints))
	}
	p.level.w.Store(nil)
	p.tint.w.Store(nil)
	p.hasData.Store(false)
	for i := range levels {
		p.set(i, Level(levels[i]), Tint(tints[i]))
	}
	return nil
}

// Export copies the plane into flat byte columns (nil when empty).
func (p *Plane) Export() (levels, tints []byte) {
	if !p.HasData() {
		return nil, nil
	}
	levels = make([]byte, lattice.ChunkVolume)
	tints = make([]byte, lattice.ChunkVolume)
	for i := range levels {
		l, t := p.At(i)
		levels[i], tints[i] = byte(l), byte(t)
	}
	return levels, tints
}
