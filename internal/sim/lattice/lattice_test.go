package lattice

import "testing"

func TestKeyRoundTrip(t *testing.T) {
	cases := []Coord{
		{},
		{X: 1, Y: 2, Z: 3},
		{X: -1, Y: -1, Z: -1},
		{X: xzBias - 1, Y: yBias - 1, Z: xzBias - 1, Dim: MaxDimension},
		{X: -xzBias, Y: -yBias, Z: -xzBias},
		{X: 12345, Y: -7, Z: -999999, Dim: 3},
	}
	for _, c := range cases {
		k, ok := KeyOf(c)
		if !ok {
			t.Fatalf("KeyOf(%v): out of range", c)
		}
		if got := k.Coord(); got != c {
			t.Fatalf("round trip %v: got %v", c, got)
		}
	}
}

func TestKeyRejectsOutOfRange(t *testing.T) {
	for _, c := range []Coord{
		{X: xzBias},
		{Z: -xzBias - 1},
		{Y: yBias},
		{Dim: MaxDimension + 1},
	} {
		if _, ok := KeyOf(c); ok {
			t.Fatalf("expected %v to be out of range", c)
		}
	}
}

func TestKeyDimensionsDoNotAlias(t *testing.T) {
	seen := map[Key]Coord{}
	for dim := Dimension(0); dim <= MaxDimension; dim++ {
		for _, c := range []Coord{{X: 0, Y: 0, Z: 0}, {X: -1, Y: 5, Z: 9}, {X: 4, Y: -2, Z: -4}} {
			c.Dim = dim
			k := MustKey(c)
			if prev, ok := seen[k]; ok {
				t.Fatalf("key collision: %v and %v", prev, c)
			}
			seen[k] = c
		}
	}
}

func TestKeyInjectiveNeighbourhood(t *testing.T) {
	seen := map[Key]struct{}{}
	for x := -4; x <= 4; x++ {
		for y := -4; y <= 4; y++ {
			for z := -4; z <= 4; z++ {
				k := MustKey(Coord{X: x, Y: y, Z: z})
				if _, dup := seen[k]; dup {
					t.Fatalf("duplicate key for (%d,%d,%d)", x, y, z)
				}
				seen[k] = struct{}{}
			}
		}
	}
}

func TestIndexRoundTrip(t *testing.T) {
	for i := 0; i < ChunkVolume; i += 37 {
		x, y, z := Unindex(i)
		if !InChunk(x, y, z) {
			t.Fatalf("index %d unpacked out of chunk: %d,%d,%d", i, x, y, z)
		}
		if got := Index(x, y, z); got != i {
			t.Fatalf("Index(Unindex(%d)) = %d", i, got)
		}
	}
}

func TestBlockPosChunkNegative(t *testing.T) {
	p := BlockPos{X: -1, Y: -33, Z: 32}
	c := p.Chunk(2)
	if c != (Coord{X: -1, Y: -2, Z: 1, Dim: 2}) {
		t.Fatalf("unexpected chunk: %v", c)
	}
	x, y, z := Unindex(p.Local())
	if x != 31 || y != 31 || z != 0 {
		t.Fatalf("unexpected local: %d,%d,%d", x, y, z)
	}
	if got := BlockAt(c, p.Local()); got != p {
		t.Fatalf("BlockAt: got %v want %v", got, p)
	}
}

func TestRelationSymmetric(t *testing.T) {
	var r Relation
	r = r.Connect(North, Up).Connect(West, East)
	for a := Face(0); a < NumFaces; a++ {
		for b := Face(0); b < NumFaces; b++ {
			if r.Connected(a, b) != r.Connected(b, a) {
				t.Fatalf("asymmetric pair %s/%s", a, b)
			}
		}
	}
	if !r.Connected(Up, North) || !r.Connected(East, West) {
		t.Fatalf("expected connected pairs missing: %b", r)
	}
	if r.Pairs() != 2 {
		t.Fatalf("pairs: got %d want 2", r.Pairs())
	}
	if r.Connected(North, North) {
		t.Fatalf("same-face pair reported connected")
	}
}

func TestRelationAllHasFifteenPairs(t *testing.T) {
	if RelationAll.Pairs() != 15 {
		t.Fatalf("RelationAll pairs: %d", RelationAll.Pairs())
	}
	if got := RelationNone.ConnectAll(AllFaces); got != RelationAll {
		t.Fatalf("ConnectAll(AllFaces) = %b", got)
	}
}

func TestNeighbors26(t *testing.T) {
	c := Coord{X: 3, Y: -1, Z: 2, Dim: 1}
	ns := Neighbors26(c)
	if len(ns) != 26 {
		t.Fatalf("len: %d", len(ns))
	}
	for _, n := range ns {
		if n == c || n.Dim != c.Dim {
			t.Fatalf("unexpected neighbour %v", n)
		}
		if d := n.Manhattan(c); d < 1 || d > 3 {
			t.Fatalf("neighbour %v too far: %d", n, d)
		}
	}
}

func TestFaceOpposite(t *testing.T) {
	for f := Face(0); f < NumFaces; f++ {
		o := f.Offset()
		p := f.Opposite().Offset()
		if o[0]+p[0] != 0 || o[1]+p[1] != 0 || o[2]+p[2] != 0 {
			t.Fatalf("%s and %s are not opposite", f, f.Opposite())
		}
		if f.Opposite().Opposite() != f {
			t.Fatalf("double opposite of %s", f)
		}
	}
}
