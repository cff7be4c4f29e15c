package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"voxelsight.ai/internal/sim/lattice"
	"voxelsight.ai/internal/sim/light"
)

const AirID uint16 = 0

// BlockDef is one entry of blocks.json.
type BlockDef struct {
	ID string `json:"id"`
	// Opaque lists the opaque sides ("north", "east", ...) or "all".
	Opaque     []string `json:"opaque,omitempty"`
	Emission   [3]int   `json:"emission,omitempty"` // hue, saturation, value (0..15)
	Absorption int      `json:"absorption,omitempty"`
}

type blockProps struct {
	sides      lattice.FaceSet
	emission   light.HSV
	absorption uint8
}

// BlockCatalog is the block opacity table queried by id.
type BlockCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]BlockDef
	PaletteDigest string
	DefsDigest    string

	props []blockProps
}

func Load(configDir string) (*BlockCatalog, error) {
	return LoadBlocks(filepath.Join(configDir, "blocks.json"))
}

func LoadBlocks(path string) (*BlockCatalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := parseBlocks(raw)
	if err != nil {
		return nil, fmt.Errorf("blocks.json: %w", err)
	}
	return c, nil
}

func parseBlocks(raw []byte) (*BlockCatalog, error) {
	var defs []BlockDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, err
	}
	return build(defs, sha256Hex(raw))
}

func build(defs []BlockDef, digest string) (*BlockCatalog, error) {
	out := &BlockCatalog{
		Defs:       map[string]BlockDef{},
		DefsDigest: digest,
	}
	for _, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("empty id")
		}
		if _, dup := out.Defs[d.ID]; dup {
			return nil, fmt.Errorf("duplicate id %q", d.ID)
		}
		out.Defs[d.ID] = d
	}
	if _, ok := out.Defs["AIR"]; !ok {
		return nil, fmt.Errorf("missing AIR")
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		if id != "AIR" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	ids = append([]string{"AIR"}, ids...)

	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	out.props = make([]blockProps, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
		p, err := propsOf(out.Defs[id])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", id, err)
		}
		out.props[i] = p
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return out, nil
}

func propsOf(d BlockDef) (blockProps, error) {
	var p blockProps
	for _, s := range d.Opaque {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "all" {
			p.sides = lattice.AllFaces
			continue
		}
		f, ok := faceByName(s)
		if !ok {
			return p, fmt.Errorf("unknown side %q", s)
		}
		p.sides = p.sides.With(f)
	}
	p.emission = light.HSV{H: band(d.Emission[0]), S: band(d.Emission[1]), V: band(d.Emission[2])}
	p.absorption = band(d.Absorption)
	return p, nil
}

func faceByName(s string) (lattice.Face, bool) {
	for f := lattice.Face(0); f < lattice.NumFaces; f++ {
		if f.String() == s {
			return f, true
		}
	}
	return 0, false
}

// band clamps to the 4-bit light band.
func band(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > light.MaxLevel {
		return light.MaxLevel
	}
	return uint8(v)
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Unknown ids behave like AIR.
func (c *BlockCatalog) prop(id uint16) blockProps {
	if c == nil || int(id) >= len(c.props) {
		return blockProps{}
	}
	return c.props[id]
}

func (c *BlockCatalog) Sides(id uint16) lattice.FaceSet { return c.prop(id).sides }

func (c *BlockCatalog) SideOpaque(id uint16, f lattice.Face) bool {
	return c.prop(id).sides.Has(f)
}

func (c *BlockCatalog) FullyOpaque(id uint16) bool {
	return c.prop(id).sides == lattice.AllFaces
}

func (c *BlockCatalog) Emission(id uint16) light.HSV { return c.prop(id).emission }

func (c *BlockCatalog) Absorption(id uint16) uint8 { return c.prop(id).absorption }

func (c *BlockCatalog) ID(name string) (uint16, bool) {
	id, ok := c.Index[name]
	return id, ok
}

// MustID is for tests and built-in tables.
func (c *BlockCatalog) MustID(name string) uint16 {
	id, ok := c.Index[name]
	if !ok {
		panic("catalogs: unknown block " + name)
	}
	return id
}

func (c *BlockCatalog) Len() int { return len(c.Palette) }
