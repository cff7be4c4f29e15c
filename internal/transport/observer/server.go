package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"voxelsight.ai/internal/observerproto"
	"voxelsight.ai/internal/sim/dirty"
	"voxelsight.ai/internal/sim/encoding"
	"voxelsight.ai/internal/sim/lattice"
	"voxelsight.ai/internal/sim/visibility"
	"voxelsight.ai/internal/sim/world"
)

type Options struct {
	// SubscribePerSec and SubscribeBurst throttle camera updates per connection.
	SubscribePerSec float64
	SubscribeBurst  int
	// Poll is how often a connection checks for a new pass.
	Poll time.Duration
}

type Server struct {
	world *world.World
	log   *log.Logger
	opts  Options

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	conns    atomic.Int64

	// revs counts voxel-level dirty flushes per chunk; gen bumps on any.
	revMu sync.Mutex
	revs  map[lattice.Key]uint64
	gen   atomic.Uint64
}

func NewServer(w *world.World, logger *log.Logger, opts Options) *Server {
	if opts.SubscribePerSec <= 0 {
		opts.SubscribePerSec = 20
	}
	if opts.SubscribeBurst <= 0 {
		opts.SubscribeBurst = 5
	}
	if opts.Poll <= 0 {
		opts.Poll = 50 * time.Millisecond
	}
	return &Server{
		world: w,
		log:   logger,
		opts:  opts,
		revs:  map[lattice.Key]uint64{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// ChunksDirty implements dirty.Sink. Chunks flushed with a non edge-only mark
// are re-sent to subscribers that already hold their voxels.
func (s *Server) ChunksDirty(entries []dirty.Entry) {
	bumped := false
	s.revMu.Lock()
	for _, e := range entries {
		if e.EdgeOnly {
			continue
		}
		s.revs[e.Key]++
		bumped = true
	}
	s.revMu.Unlock()
	if bumped {
		s.gen.Add(1)
	}
}

func (s *Server) rev(k lattice.Key) uint64 {
	s.revMu.Lock()
	defer s.revMu.Unlock()
	return s.revs[k]
}

// Connections is the number of open observer sockets.
func (s *Server) Connections() int64 { return s.conns.Load() }

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		cfg := s.world.Config()
		live := s.world.CullConfig()
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			WorldID:         cfg.ID,
			Pass:            s.world.PassNumber(),
			WorldParams: observerproto.WorldParams{
				ChunkSize:    [3]int{lattice.ChunkSize, lattice.ChunkSize, lattice.ChunkSize},
				Dimension:    int(cfg.Dimension),
				ViewDistance: live.ViewDistance,
				MinChunkY:    live.MinChunkY,
				MaxChunkY:    live.MaxChunkY,
				Occlusion:    live.Occlusion,
			},
			BlockPalette: s.world.Catalog().Palette,
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

type subscription struct {
	maxChunks int
	voxels    bool
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil || !validSubscribe(sub) {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		s.conns.Add(1)
		defer s.conns.Add(-1)

		var cur atomic.Pointer[subscription]
		cur.Store(s.apply(sub))
		if s.log != nil {
			s.log.Printf("observer %s: subscribed at %v", sid, sub.Position)
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		writeErr := make(chan error, 1)
		go func() { writeErr <- s.writeLoop(ctx, conn, &cur) }()

		limiter := rate.NewLimiter(rate.Limit(s.opts.SubscribePerSec), s.opts.SubscribeBurst)
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var sub observerproto.SubscribeMsg
			if err := json.Unmarshal(msg, &sub); err != nil || !validSubscribe(sub) {
				continue
			}
			if !limiter.Allow() {
				// Dropped; the client sends its position again.
				continue
			}
			cur.Store(s.apply(sub))
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func validSubscribe(sub observerproto.SubscribeMsg) bool {
	return sub.Type == observerproto.TypeSubscribe && sub.ProtocolVersion == observerproto.Version
}

// apply pushes camera settings into the world and returns the stream settings.
func (s *Server) apply(sub observerproto.SubscribeMsg) *subscription {
	s.world.SetObserver(mgl64.Vec3{sub.Position[0], sub.Position[1], sub.Position[2]})
	if sub.ViewDistance > 0 {
		vd := sub.ViewDistance
		if vd > 64 {
			vd = 64
		}
		s.world.SetViewDistance(vd)
	}
	if sub.Occlusion != nil {
		s.world.SetOcclusion(*sub.Occlusion)
	}
	maxChunks := sub.MaxChunks
	if maxChunks <= 0 || maxChunks > 65536 {
		maxChunks = 65536
	}
	return &subscription{maxChunks: maxChunks, voxels: sub.Voxels}
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, cur *atomic.Pointer[subscription]) error {
	ticker := time.NewTicker(s.opts.Poll)
	defer ticker.Stop()

	var last, lastGen uint64
	var coords []lattice.Coord
	// sent holds the chunk revision each key was last sent at, plus one.
	sent := map[lattice.Key]uint64{}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		gen := s.gen.Load()
		if s.world.PassNumber() == last && gen == lastGen {
			continue
		}
		sub := cur.Load()
		if s.world.PassNumber() != last {
			var (
				pass uint64
				msg  observerproto.VisibleMsg
			)
			pass, coords = s.world.Visible()
			last = pass
			msg = observerproto.VisibleMsg{
				Type:            observerproto.TypeVisible,
				ProtocolVersion: observerproto.Version,
				Pass:            pass,
				Chunks:          make([][3]int, 0, len(coords)),
			}
			if c, ok := visibility.ChunkOf(s.world.Observer(), s.world.Dimension()); ok {
				msg.Center = [3]int{c.X, c.Y, c.Z}
			}
			if len(coords) > sub.maxChunks {
				coords = coords[:sub.maxChunks]
				msg.Truncated = true
			}
			for _, c := range coords {
				msg.Chunks = append(msg.Chunks, [3]int{c.X, c.Y, c.Z})
			}
			if err := writeJSON(conn, msg); err != nil {
				return err
			}
		}
		lastGen = gen
		if !sub.voxels {
			continue
		}
		for _, c := range coords {
			k, ok := lattice.KeyOf(c)
			if !ok {
				continue
			}
			rev := s.rev(k) + 1
			if sent[k] == rev {
				continue
			}
			ch := s.world.Chunks().Get(k)
			if ch == nil {
				continue
			}
			blocks := ch.Copy()
			if blocks == nil {
				blocks = make([]uint16, lattice.ChunkVolume)
			}
			vm := observerproto.ChunkVoxelsMsg{
				Type:            observerproto.TypeChunkVoxels,
				ProtocolVersion: observerproto.Version,
				Chunk:           [3]int{c.X, c.Y, c.Z},
				Encoding:        observerproto.EncodingRLE,
				Data:            encoding.EncodeRLEString(blocks),
			}
			if err := writeJSON(conn, vm); err != nil {
				return err
			}
			sent[k] = rev
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
