package traverse

import (
	"github.com/gammazero/deque"

	"voxelsight.ai/internal/sim/catalogs"
	"voxelsight.ai/internal/sim/chunk"
	"voxelsight.ai/internal/sim/lattice"
)

// Builder derives which pairs of chunk faces are joined by open voxels.
// Its scratch state is reused across builds; a Builder is not safe for
// concurrent use.
type Builder struct {
	catalog *catalogs.BlockCatalog

	stamp []uint64
	iter  uint64
	queue deque.Deque[int32]
}

func NewBuilder(catalog *catalogs.BlockCatalog) *Builder {
	return &Builder{
		catalog: catalog,
		stamp:   make([]uint64, lattice.ChunkVolume),
	}
}

// Build recomputes the chunk's relation and stores it on the chunk.
func (b *Builder) Build(ch *chunk.Chunk) (lattice.Relation, error) {
	var (
		rel lattice.Relation
		rev uint64
	)
	err := ch.Voxels(func(blocks []uint16, r uint64) error {
		rev = r
		if blocks == nil {
			rel = lattice.RelationAll
			return nil
		}
		rel = b.Compute(blocks)
		return nil
	})
	if err != nil {
		return lattice.RelationNone, err
	}
	ch.SetRelation(rel, rev)
	return rel, nil
}

// Compute runs the flood fill over a full voxel array.
func (b *Builder) Compute(blocks []uint16) lattice.Relation {
	b.next()
	iter := b.iter
	rel := lattice.RelationNone

	for start := range blocks {
		if b.stamp[start] == iter {
			continue
		}
		b.stamp[start] = iter
		if b.catalog.FullyOpaque(blocks[start]) {
			continue
		}

		var exited lattice.FaceSet
		b.queue.PushBack(int32(start))
		for b.queue.Len() > 0 {
			cur := int(b.queue.PopFront())
			sides := b.catalog.Sides(blocks[cur])
			x, y, z := lattice.Unindex(cur)
			for f := lattice.Face(0); f < lattice.NumFaces; f++ {
				if sides.Has(f) {
					continue
				}
				o := f.Offset()
				nx, ny, nz := x+o[0], y+o[1], z+o[2]
				if !lattice.InChunk(nx, ny, nz) {
					exited = exited.With(f)
					continue
				}
				n := lattice.Index(nx, ny, nz)
				if b.stamp[n] == iter {
					continue
				}
				if b.catalog.SideOpaque(blocks[n], f.Opposite()) {
					continue
				}
				b.stamp[n] = iter
				b.queue.PushBack(int32(n))
			}
		}
		rel = rel.ConnectAll(exited)
	}
	return rel
}

func (b *Builder) next() {
	b.iter++
	if b.iter == 0 {
		clear(b.stamp)
		b.iter = 1
	}
}

// OpacityChanged reports whether replacing from with to can change a relation.
// Light-only changes never can.
func OpacityChanged(catalog *catalogs.BlockCatalog, from, to uint16) bool {
	return catalog.Sides(from) != catalog.Sides(to)
}
