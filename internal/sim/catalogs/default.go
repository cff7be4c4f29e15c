package catalogs

var defaultDefs = []BlockDef{
	{ID: "AIR"},
	{ID: "STONE", Opaque: []string{"all"}, Absorption: 15},
	{ID: "DIRT", Opaque: []string{"all"}, Absorption: 15},
	{ID: "GRASS", Opaque: []string{"all"}, Absorption: 15},
	{ID: "SAND", Opaque: []string{"all"}, Absorption: 15},
	{ID: "GLASS", Absorption: 0},
	{ID: "LEAVES", Absorption: 2},
	{ID: "WATER", Absorption: 3},
	// Bottom slab: only the lower face is sealed.
	{ID: "SLAB", Opaque: []string{"down"}, Absorption: 1},
	{ID: "TORCH", Emission: [3]int{2, 8, 14}},
	{ID: "LAMP_RED", Opaque: []string{"all"}, Emission: [3]int{0, 15, 15}, Absorption: 15},
	{ID: "LAMP_BLUE", Opaque: []string{"all"}, Emission: [3]int{10, 15, 12}, Absorption: 15},
}

// Default returns the built-in block table.
func Default() *BlockCatalog {
	c, err := build(defaultDefs, "builtin")
	if err != nil {
		panic(err)
	}
	return c
}
