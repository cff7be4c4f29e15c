package observerproto

// Version is the observer protocol version.
const Version = "0.1"

const (
	TypeSubscribe   = "SUBSCRIBE"
	TypeVisible     = "VISIBLE"
	TypeChunkVoxels = "CHUNK_VOXELS"

	EncodingRLE = "UVARINT_RLE_B64"
)

// Client -> Server. First message on the observer WS connection; re-send to
// move the camera or change settings.
type SubscribeMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Position        [3]float64 `json:"position"`
	ViewDistance    int        `json:"view_distance,omitempty"`
	Occlusion       *bool      `json:"occlusion,omitempty"`
	MaxChunks       int        `json:"max_chunks,omitempty"`

	// Voxels asks for CHUNK_VOXELS of chunks that become visible.
	Voxels bool `json:"voxels,omitempty"`
}

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldID         string      `json:"world_id"`
	Pass            uint64      `json:"pass"`
	WorldParams     WorldParams `json:"world_params"`
	BlockPalette    []string    `json:"block_palette"`
}

type WorldParams struct {
	ChunkSize    [3]int `json:"chunk_size"`
	Dimension    int    `json:"dimension"`
	ViewDistance int    `json:"view_distance"`
	MinChunkY    int    `json:"min_chunk_y"`
	MaxChunkY    int    `json:"max_chunk_y"`
	Occlusion    bool   `json:"occlusion"`
}

// Server -> Client. Sent after each committed cull pass.
type VisibleMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Pass            uint64   `json:"pass"`
	Center          [3]int   `json:"center"`
	Chunks          [][3]int `json:"chunks"`
	Truncated       bool     `json:"truncated,omitempty"`
}

// Server -> Client. Voxels of one chunk, x fastest then z then y.
type ChunkVoxelsMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Chunk           [3]int `json:"chunk"`
	Encoding        string `json:"encoding"`
	Data            string `json:"data"`
}
