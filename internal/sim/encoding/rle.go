package encoding

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrLength = errors.New("rle: decoded length mismatch")

// AppendRLE appends ids as varint (id, run) pairs. A nil slice of length n is
// encoded as a single AIR run by the caller passing AirRun.
func AppendRLE(dst []byte, ids []uint16) []byte {
	var tmp [binary.MaxVarintLen64]byte
	for i := 0; i < len(ids); {
		b := ids[i]
		run := 1
		for j := i + 1; j < len(ids) && ids[j] == b; j++ {
			run++
		}
		n := binary.PutUvarint(tmp[:], uint64(b))
		dst = append(dst, tmp[:n]...)
		n = binary.PutUvarint(tmp[:], uint64(run))
		dst = append(dst, tmp[:n]...)
		i += run
	}
	return dst
}

// AirRun encodes n voxels of id 0.
func AirRun(n int) []byte {
	var tmp [2 * binary.MaxVarintLen64]byte
	k := binary.PutUvarint(tmp[:], 0)
	k += binary.PutUvarint(tmp[k:], uint64(n))
	return append([]byte(nil), tmp[:k]...)
}

// DecodeRLE decodes exactly n ids. Runs that overflow n or leave it short
// are rejected.
func DecodeRLE(raw []byte, n int) ([]uint16, error) {
	out := make([]uint16, n)
	pos := 0
	for i := 0; i < len(raw); {
		b, k := binary.Uvarint(raw[i:])
		if k <= 0 {
			return nil, fmt.Errorf("rle: bad varint at %d", i)
		}
		i += k
		run, k := binary.Uvarint(raw[i:])
		if k <= 0 {
			return nil, fmt.Errorf("rle: bad varint at %d", i)
		}
		i += k
		if b > 0xFFFF {
			return nil, fmt.Errorf("rle: block id too large: %d", b)
		}
		if run == 0 || run > uint64(n-pos) {
			return nil, fmt.Errorf("%w: run %d at %d of %d", ErrLength, run, pos, n)
		}
		if b != 0 {
			for j := 0; j < int(run); j++ {
				out[pos+j] = uint16(b)
			}
		}
		pos += int(run)
	}
	if pos != n {
		return nil, fmt.Errorf("%w: got %d want %d", ErrLength, pos, n)
	}
	return out, nil
}

// EncodeRLEString is AppendRLE in base64, for JSON payloads.
func EncodeRLEString(ids []uint16) string {
	return base64.StdEncoding.EncodeToString(AppendRLE(nil, ids))
}

func DecodeRLEString(b64 string, n int) ([]uint16, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	return DecodeRLE(raw, n)
}
