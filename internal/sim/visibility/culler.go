package visibility

import (
	"math"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"voxelsight.ai/internal/sim/lattice"
	"voxelsight.ai/internal/sim/mathx"
)

// Relations is the culler's view of the loaded chunks. Generation must move
// whenever a chunk is loaded or unloaded or a relation changes.
type Relations interface {
	Relation(k lattice.Key) (r lattice.Relation, loaded bool)
	Keys() []lattice.Key
	Len() int
	Generation() uint64
}

type Config struct {
	ViewDistance          int
	MinChunkY, MaxChunkY  int
	Dimension             lattice.Dimension
	Occlusion             bool
	MinChunksForOcclusion int
	BacklogSlack          int
	GraceDistance         int
}

type Result struct {
	Skipped      bool
	OcclusionOff bool
	Rays         int
	Aborted      int
	Visible      int
	Center       lattice.Coord
	Pass         uint64
	Duration     time.Duration
}

// jitter samples a target chunk at one of three points.
var jitter = [3]mgl64.Vec3{
	{0.5, 0.5, 0.5},
	{0.2, 0.5, 0.8},
	{0.8, 0.5, 0.2},
}

const eps = 1e-9

// Culler marches rays outward over the loaded chunks each pass and records
// the reachable set in a Mask. Tick must not be called concurrently.
type Culler struct {
	mask *Mask
	rel  Relations

	cfgMu      sync.Mutex
	cfg        Config
	cfgChanged bool

	shells      [][]Offset
	shellsFor   int
	ran         bool
	lastCenter  lattice.Coord
	lastBacklog int
	lastOff     bool
	lastGen     uint64
}

func NewCuller(cfg Config, mask *Mask, rel Relations) *Culler {
	return &Culler{cfg: cfg, mask: mask, rel: rel, cfgChanged: true, shellsFor: -1}
}

func (c *Culler) Config() Config {
	c.cfgMu.Lock()
	defer c.cfgMu.Unlock()
	return c.cfg
}

// SetConfig applies on the next Tick and forces a full pass.
func (c *Culler) SetConfig(cfg Config) {
	c.cfgMu.Lock()
	c.cfg = cfg
	c.cfgChanged = true
	c.cfgMu.Unlock()
}

// Update edits the config in place. A full pass is forced only when fn
// actually changed something.
func (c *Culler) Update(fn func(cfg *Config)) {
	c.cfgMu.Lock()
	before := c.cfg
	fn(&c.cfg)
	if c.cfg != before {
		c.cfgChanged = true
	}
	c.cfgMu.Unlock()
}

func (c *Culler) takeConfig() (Config, bool) {
	c.cfgMu.Lock()
	defer c.cfgMu.Unlock()
	changed := c.cfgChanged
	c.cfgChanged = false
	return c.cfg, changed
}

// ChunkOf converts a world position to its chunk coordinate. ok is false for
// non-finite positions.
func ChunkOf(p mgl64.Vec3, dim lattice.Dimension) (lattice.Coord, bool) {
	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return lattice.Coord{}, false
		}
	}
	return lattice.Coord{
		X:   int(math.Floor(p[0] / lattice.ChunkSize)),
		Y:   int(math.Floor(p[1] / lattice.ChunkSize)),
		Z:   int(math.Floor(p[2] / lattice.ChunkSize)),
		Dim: dim,
	}, true
}

// Tick runs one cull pass for an observer at world position observer.
// backlog is the current regen queue length.
func (c *Culler) Tick(observer mgl64.Vec3, backlog int) Result {
	start := time.Now()
	cfg, changed := c.takeConfig()
	center, ok := ChunkOf(observer, cfg.Dimension)
	if !ok {
		return Result{Skipped: true, Center: c.lastCenter, Pass: c.mask.PassNumber()}
	}

	// Read before the pass so a change made during it triggers the next one.
	gen := c.rel.Generation()
	stale := !c.ran || changed || gen != c.lastGen

	loaded := c.rel.Len()
	if !cfg.Occlusion || loaded < cfg.MinChunksForOcclusion {
		if !stale && c.lastOff {
			return Result{Skipped: true, OcclusionOff: true, Center: center, Pass: c.mask.PassNumber()}
		}
		keys := c.rel.Keys()
		c.mask.MarkAllBoth(keys)
		c.remember(center, backlog, true, gen)
		return Result{
			OcclusionOff: true,
			Visible:      len(keys),
			Center:       center,
			Pass:         c.mask.PassNumber(),
			Duration:     time.Since(start),
		}
	}

	if !stale && !c.lastOff && center == c.lastCenter &&
		mathx.AbsInt(backlog-c.lastBacklog) <= cfg.BacklogSlack &&
		!(backlog == 0 && c.lastBacklog != 0) {
		return Result{Skipped: true, Center: center, Pass: c.mask.PassNumber()}
	}

	if c.shellsFor != cfg.ViewDistance {
		c.shells = Shells(cfg.ViewDistance)
		c.shellsFor = cfg.ViewDistance
	}

	res := Result{Center: center}
	pass := c.mask.Begin()
	for _, n := range lattice.Neighbors26(center) {
		if k, ok := lattice.KeyOf(n); ok {
			pass.Mark(k)
		}
	}
	if k, ok := lattice.KeyOf(center); ok {
		pass.Mark(k)
	}

	origin := observer.Mul(1.0 / lattice.ChunkSize)
	above := center.Y > cfg.MaxChunkY
	for _, ring := range c.shells {
		for _, off := range ring {
			for y := cfg.MinChunkY; y <= cfg.MaxChunkY; y++ {
				target := lattice.Coord{X: center.X + off.DX, Y: y, Z: center.Z + off.DZ, Dim: center.Dim}
				if target == center {
					continue
				}
				v := jitter[mathx.Mod(off.DX+off.DZ+y, len(jitter))]
				tp := mgl64.Vec3{float64(target.X), float64(target.Y), float64(target.Z)}.Add(v)
				res.Rays++
				if !c.march(pass, cfg, origin, tp, center, target, above) {
					res.Aborted++
				}
			}
		}
	}
	res.Visible = pass.Len()
	res.Pass = pass.Number()
	pass.Commit()

	c.remember(center, backlog, false, gen)
	res.Duration = time.Since(start)
	return res
}

func (c *Culler) remember(center lattice.Coord, backlog int, off bool, gen uint64) {
	c.ran = true
	c.lastCenter = center
	c.lastBacklog = backlog
	c.lastOff = off
	c.lastGen = gen
}

// march walks one ray from origin toward tp (both in chunk units). It returns
// false when the ray geometry is degenerate.
func (c *Culler) march(pass *Pass, cfg Config, origin, tp mgl64.Vec3, start, target lattice.Coord, above bool) bool {
	dir := tp.Sub(origin)
	if !finite(dir) || dir.Len() < eps {
		return false
	}
	cur := start
	pos := origin
	entry := lattice.Face(lattice.NumFaces) // none
	maxSteps := start.Manhattan(target) + 3

	for step := 0; step <= maxSteps; step++ {
		exit, t, ok := exitFace(cur, pos, dir, entry)
		if !ok {
			return false
		}

		if cur != start {
			inRange := cur.Y >= cfg.MinChunkY && cur.Y <= cfg.MaxChunkY
			if !inRange && !above {
				return true
			}
			if inRange {
				k, ok := lattice.KeyOf(cur)
				if !ok {
					return true
				}
				rel, loaded := c.rel.Relation(k)
				if !loaded {
					return true
				}
				pass.Mark(k)
				if cur == target {
					return true
				}
				if !rel.Connected(entry, exit) && cur.Manhattan(start) > cfg.GraceDistance {
					return true
				}
			}
		}

		pos = pos.Add(dir.Mul(t))
		cur = cur.Step(exit)
		entry = exit.Opposite()
	}
	return true
}

// exitFace finds the face through which a ray at pos leaves chunk cur: the
// nearest non-negative, in-bounds intersection with the six face planes.
func exitFace(cur lattice.Coord, pos, dir mgl64.Vec3, entry lattice.Face) (lattice.Face, float64, bool) {
	lo := mgl64.Vec3{float64(cur.X), float64(cur.Y), float64(cur.Z)}
	hi := lo.Add(mgl64.Vec3{1, 1, 1})

	best, bestT, found := lattice.Face(0), math.Inf(1), false
	for f := lattice.Face(0); f < lattice.NumFaces; f++ {
		if f == entry {
			continue
		}
		o := f.Offset()
		n := mgl64.Vec3{float64(o[0]), float64(o[1]), float64(o[2])}
		denom := dir.Dot(n)
		if denom <= eps {
			continue
		}
		plane := lo
		if o[0]+o[1]+o[2] > 0 {
			plane = hi
		}
		t := plane.Sub(pos).Dot(n) / denom
		if math.IsNaN(t) || t < -eps {
			continue
		}
		hit := pos.Add(dir.Mul(t))
		if !inBounds(hit, lo, hi, axisOf(o)) {
			continue
		}
		if t < bestT {
			best, bestT, found = f, t, true
		}
	}
	if !found {
		return 0, 0, false
	}
	if bestT < 0 {
		bestT = 0
	}
	return best, bestT, true
}

func axisOf(o [3]int) int {
	for i, v := range o {
		if v != 0 {
			return i
		}
	}
	return 0
}

func inBounds(p, lo, hi mgl64.Vec3, skip int) bool {
	const slack = 1e-6
	for i := 0; i < 3; i++ {
		if i == skip {
			continue
		}
		if p[i] < lo[i]-slack || p[i] > hi[i]+slack {
			return false
		}
	}
	return true
}

func finite(v mgl64.Vec3) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
