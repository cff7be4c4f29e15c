package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"voxelsight.ai/internal/sim/chunk"
	"voxelsight.ai/internal/sim/encoding"
	"voxelsight.ai/internal/sim/lattice"
	"voxelsight.ai/internal/sim/light"
)

const Version = 1

type Header struct {
	Version   int    `json:"version"`
	WorldID   string `json:"world_id"`
	Dimension int    `json:"dimension"`
	Seed      int64  `json:"seed"`
	Chunks    int    `json:"chunks"`
}

// ChunksV1 holds voxels and committed light of a set of chunks. Visibility
// state is never persisted; it is recomputed after load.
type ChunksV1 struct {
	Header Header    `json:"header"`
	Chunks []ChunkV1 `json:"chunks"`
}

type ChunkV1 struct {
	X, Y, Z int
	// RLE holds varint (id, run) pairs covering exactly one chunk volume.
	RLE []byte

	HasLight    bool
	LightLevels []byte
	LightTints  []byte
}

func (c ChunkV1) Coord(dim lattice.Dimension) lattice.Coord {
	return lattice.Coord{X: c.X, Y: c.Y, Z: c.Z, Dim: dim}
}

// Voxels decodes the voxel array. A length mismatch is a consistency fault.
func (c ChunkV1) Voxels() ([]uint16, error) {
	out, err := encoding.DecodeRLE(c.RLE, lattice.ChunkVolume)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk (%d,%d,%d): %v", chunk.ErrInconsistent, c.X, c.Y, c.Z, err)
	}
	return out, nil
}

// EncodeChunk captures one chunk. Light is read through the committed view.
func EncodeChunk(ch *chunk.Chunk) ChunkV1 {
	out := ChunkV1{X: ch.Coord.X, Y: ch.Coord.Y, Z: ch.Coord.Z}
	if blocks := ch.Copy(); blocks != nil {
		out.RLE = encoding.AppendRLE(nil, blocks)
	} else {
		out.RLE = encoding.AirRun(lattice.ChunkVolume)
	}
	buf := ch.Light()
	if !buf.Plane().HasData() {
		return out
	}
	out.HasLight = true
	out.LightLevels = make([]byte, lattice.ChunkVolume)
	out.LightTints = make([]byte, lattice.ChunkVolume)
	buf.View(func(r light.Reader) {
		for i := range out.LightLevels {
			l, t := r.At(i)
			out.LightLevels[i], out.LightTints[i] = byte(l), byte(t)
		}
	})
	return out
}

// Export captures every loaded chunk in key order.
func Export(worldID string, dim lattice.Dimension, seed int64, store *chunk.Store) ChunksV1 {
	snap := ChunksV1{Header: Header{Version: Version, WorldID: worldID, Dimension: int(dim), Seed: seed}}
	for _, k := range store.Keys() {
		ch := store.Get(k)
		if ch == nil {
			continue
		}
		snap.Chunks = append(snap.Chunks, EncodeChunk(ch))
	}
	snap.Header.Chunks = len(snap.Chunks)
	return snap
}

func WriteChunks(path string, snap ChunksV1) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	snap.Header.Version = Version
	snap.Header.Chunks = len(snap.Chunks)
	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

// ReadHeader returns the JSON header line without decoding the chunks.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func ReadChunks(path string) (ChunksV1, error) {
	var snap ChunksV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}
