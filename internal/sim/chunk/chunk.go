package chunk

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"voxelsight.ai/internal/sim/catalogs"
	"voxelsight.ai/internal/sim/lattice"
	"voxelsight.ai/internal/sim/light"
)

var (
	ErrInconsistent = light.ErrInconsistent
	ErrNotLoaded    = errors.New("chunk not loaded")
)

// Chunk is one 32x32x32 cell of the lattice.
//
// mu guards blocks, solid and the traversability fields. Light has its own
// synchronization inside light.Buffer.
type Chunk struct {
	Coord lattice.Coord
	Key   lattice.Key

	mu     sync.RWMutex
	blocks []uint16 // len = ChunkVolume; nil while packed empty
	solid  int
	rev    uint64

	relation   lattice.Relation
	graphStale bool
	graphBuilt bool

	light *light.Buffer

	// changes is the owning store's change counter; nil for a detached chunk.
	changes *atomic.Uint64

	dirty bool
	hash  [32]byte
}

func New(c lattice.Coord) (*Chunk, error) {
	k, ok := lattice.KeyOf(c)
	if !ok {
		return nil, fmt.Errorf("%w: %s", lattice.ErrOutOfRange, c)
	}
	return &Chunk{
		Coord:      c,
		Key:        k,
		relation:   lattice.RelationAll,
		graphStale: true,
		light:      light.NewBuffer(),
		dirty:      true,
	}, nil
}

// Fill replaces the voxel array. blocks is copied; a nil slice is an empty chunk.
func (c *Chunk) Fill(blocks []uint16) error {
	if blocks != nil && len(blocks) != lattice.ChunkVolume {
		return fmt.Errorf("%w: %s has %d voxels", ErrInconsistent, c.Coord, len(blocks))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.solid = 0
	c.blocks = nil
	for _, b := range blocks {
		if b != catalogs.AirID {
			c.solid++
		}
	}
	if c.solid > 0 {
		c.blocks = make([]uint16, lattice.ChunkVolume)
		copy(c.blocks, blocks)
	}
	c.rev++
	c.graphStale = true
	c.dirty = true
	return nil
}

func (c *Chunk) Block(i int) uint16 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.blocks == nil {
		return catalogs.AirID
	}
	return c.blocks[i]
}

// SetBlock writes voxel i and returns the previous id.
func (c *Chunk) SetBlock(i int, id uint16) (uint16, error) {
	if uint(i) >= lattice.ChunkVolume {
		return 0, fmt.Errorf("voxel index %d out of range", i)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.blocks == nil {
		if c.solid != 0 {
			return 0, fmt.Errorf("%w: %s reports %d solid voxels without storage", ErrInconsistent, c.Coord, c.solid)
		}
		if id == catalogs.AirID {
			return catalogs.AirID, nil
		}
		c.blocks = make([]uint16, lattice.ChunkVolume)
	}
	old := c.blocks[i]
	if old == id {
		return old, nil
	}
	c.blocks[i] = id
	c.rev++
	switch {
	case old == catalogs.AirID:
		c.solid++
	case id == catalogs.AirID:
		c.solid--
	}
	c.dirty = true
	return old, nil
}

func (c *Chunk) Empty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.solid == 0
}

// Pack drops the voxel array of a chunk that became empty.
func (c *Chunk) Pack() {
	c.mu.Lock()
	if c.solid == 0 {
		c.blocks = nil
	}
	c.mu.Unlock()
}

// Voxels runs fn with the raw voxel array under the read lock. blocks is nil
// for an empty chunk and must not be retained. rev identifies the contents.
func (c *Chunk) Voxels(fn func(blocks []uint16, rev uint64) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.checkLocked(); err != nil {
		return err
	}
	return fn(c.blocks, c.rev)
}

// Copy returns a copy of the voxel array (nil when empty).
func (c *Chunk) Copy() []uint16 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.blocks == nil {
		return nil
	}
	out := make([]uint16, len(c.blocks))
	copy(out, c.blocks)
	return out
}

func (c *Chunk) Check() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.checkLocked(); err != nil {
		return err
	}
	return c.light.Check()
}

func (c *Chunk) checkLocked() error {
	if c.solid > 0 && len(c.blocks) != lattice.ChunkVolume {
		return fmt.Errorf("%w: %s has %d solid voxels and %d stored", ErrInconsistent, c.Coord, c.solid, len(c.blocks))
	}
	return nil
}

// Relation is RelationAll until the first graph build.
func (c *Chunk) Relation() lattice.Relation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.relation
}

// SetRelation stores a relation computed from revision rev. The stale flag is
// only cleared when no write happened since.
func (c *Chunk) SetRelation(r lattice.Relation, rev uint64) (current bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r != c.relation && c.changes != nil {
		c.changes.Add(1)
	}
	c.relation = r
	c.graphBuilt = true
	if rev != c.rev {
		c.graphStale = true
		return false
	}
	c.graphStale = false
	return true
}

func (c *Chunk) MarkGraphStale() {
	c.mu.Lock()
	c.graphStale = true
	c.mu.Unlock()
}

func (c *Chunk) GraphStale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.graphStale
}

func (c *Chunk) GraphBuilt() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.graphBuilt
}

func (c *Chunk) Light() *light.Buffer { return c.light }

// Digest hashes the voxel array; it is cached until the next write.
func (c *Chunk) Digest() [32]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dirty || c.hash == ([32]byte{}) {
		h := sha256.New()
		var tmp [2]byte
		for i := 0; i < lattice.ChunkVolume; i++ {
			var v uint16
			if c.blocks != nil {
				v = c.blocks[i]
			}
			binary.LittleEndian.PutUint16(tmp[:], v)
			h.Write(tmp[:])
		}
		copy(c.hash[:], h.Sum(nil))
		c.dirty = false
	}
	return c.hash
}

func (c *Chunk) release() {
	c.mu.Lock()
	c.blocks = nil
	c.solid = 0
	c.mu.Unlock()
	c.light.Release()
}
