package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"voxelsight.ai/internal/sim/world"
)

const segmentLayout = "2006-01-02-15"

// Stream is one named pass log. Records land in <dir>/<name>-<hour>.jsonl.zst,
// one zstd segment per UTC hour.
type Stream struct {
	dir  string
	name string
	now  func() time.Time

	mu      sync.Mutex
	segment string
	file    *os.File
	zw      *zstd.Encoder
	buf     *bufio.Writer
	enc     *json.Encoder
	records uint64
}

func OpenStream(dir, name string) *Stream {
	return &Stream{dir: dir, name: name, now: time.Now}
}

// Append writes v as one JSON line and flushes it through the compressor.
func (s *Stream) Append(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg := s.now().UTC().Format(segmentLayout)
	if seg != s.segment {
		if err := s.openSegmentLocked(seg); err != nil {
			return fmt.Errorf("%s: open segment %s: %w", s.name, seg, err)
		}
	}
	if err := s.enc.Encode(v); err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.records++
	return nil
}

// Records is the number of lines appended since the stream was opened.
func (s *Stream) Records() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeSegmentLocked()
}

func (s *Stream) openSegmentLocked(seg string) error {
	if err := s.closeSegmentLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(segmentPath(s.dir, s.name, seg), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	s.file, s.zw = f, zw
	s.buf = bufio.NewWriterSize(zw, 64*1024)
	s.enc = json.NewEncoder(s.buf)
	s.segment = seg
	return nil
}

func (s *Stream) closeSegmentLocked() error {
	if s.file == nil {
		return nil
	}
	flushErr := s.buf.Flush()
	zErr := s.zw.Close()
	fErr := s.file.Close()
	s.file, s.zw, s.buf, s.enc = nil, nil, nil, nil
	s.segment = ""
	for _, err := range []error{flushErr, zErr, fErr} {
		if err != nil {
			return err
		}
	}
	return nil
}

func segmentPath(dir, name, seg string) string {
	return filepath.Join(dir, name+"-"+seg+".jsonl.zst")
}

// Segments lists the segment files of stream name in dir, oldest first.
// Files whose hour suffix does not parse are ignored.
func Segments(dir, name string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	prefix := name + "-"
	var out []string
	for _, e := range ents {
		n := e.Name()
		if e.IsDir() || !strings.HasPrefix(n, prefix) || !strings.HasSuffix(n, ".jsonl.zst") {
			continue
		}
		seg := strings.TrimSuffix(strings.TrimPrefix(n, prefix), ".jsonl.zst")
		if _, err := time.Parse(segmentLayout, seg); err != nil {
			continue
		}
		out = append(out, filepath.Join(dir, n))
	}
	// The hour layout sorts lexically in time order.
	sort.Strings(out)
	return out, nil
}

// PassLogger records cull passes under <world>/cull and light batches under
// <world>/light.
type PassLogger struct {
	passes *Stream
	lights *Stream
}

func NewPassLogger(worldDir string) *PassLogger {
	return &PassLogger{
		passes: OpenStream(filepath.Join(worldDir, "cull"), "cull"),
		lights: OpenStream(filepath.Join(worldDir, "light"), "light"),
	}
}

func (l *PassLogger) WriteCullPass(e world.CullPassEntry) error     { return l.passes.Append(e) }
func (l *PassLogger) WriteLightBatch(e world.LightBatchEntry) error { return l.lights.Append(e) }

// Written reports how many cull passes and light batches were logged.
func (l *PassLogger) Written() (passes, lights uint64) {
	return l.passes.Records(), l.lights.Records()
}

func (l *PassLogger) Close() error {
	pErr := l.passes.Close()
	if err := l.lights.Close(); err != nil && pErr == nil {
		return err
	}
	return pErr
}

// ReadJSONL hands every line of one segment to fn, stopping at the first error.
func ReadJSONL(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for line := 1; sc.Scan(); line++ {
		if err := fn(sc.Bytes()); err != nil {
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), line, err)
		}
	}
	return sc.Err()
}
