package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelsight.ai/internal/persistence/snapshot"
	"voxelsight.ai/internal/sim/catalogs"
	"voxelsight.ai/internal/sim/tuning"
	"voxelsight.ai/internal/sim/world"
)

// SQLiteIndex is a queryable secondary index of cull passes, light batches
// and snapshots. Writes are queued and applied by one goroutine; when the
// queue is full they are dropped and counted.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropPass     atomic.Uint64
	dropLight    atomic.Uint64
	dropSnapshot atomic.Uint64
	written      atomic.Uint64
	failed       atomic.Uint64
}

type reqKind int

const (
	reqPass reqKind = iota + 1
	reqLight
	reqSnapshot
)

type req struct {
	kind reqKind

	pass     world.CullPassEntry
	light    world.LightBatchEntry
	snapshot snapshotRow
}

type snapshotRow struct {
	Path       string
	WorldID    string
	Dimension  int
	Seed       int64
	Chunks     int
	RecordedAt string
}

type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropPassTotal     uint64 `json:"drop_pass_total"`
	DropLightTotal    uint64 `json:"drop_light_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
	WrittenTotal      uint64 `json:"written_total"`
	FailedTotal       uint64 `json:"failed_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS cull_passes (
			world TEXT NOT NULL,
			pass INTEGER NOT NULL,
			at TEXT NOT NULL,
			cx INTEGER NOT NULL,
			cy INTEGER NOT NULL,
			cz INTEGER NOT NULL,
			dim INTEGER NOT NULL,
			occlusion_off INTEGER NOT NULL,
			rays INTEGER NOT NULL,
			aborted INTEGER NOT NULL,
			visible INTEGER NOT NULL,
			loaded INTEGER NOT NULL,
			backlog INTEGER NOT NULL,
			duration_us INTEGER NOT NULL,
			PRIMARY KEY (world, pass)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_cull_passes_center ON cull_passes(world, cx, cz, cy);`,
		`CREATE TABLE IF NOT EXISTS light_batches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			world TEXT NOT NULL,
			at TEXT NOT NULL,
			tasks INTEGER NOT NULL,
			touched INTEGER NOT NULL,
			pending INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			path TEXT PRIMARY KEY,
			world TEXT NOT NULL,
			dim INTEGER NOT NULL,
			seed INTEGER NOT NULL,
			chunks INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		// JSONL logs remain the source of truth.
		drops.Add(1)
	}
}

func (s *SQLiteIndex) WriteCullPass(e world.CullPassEntry) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqPass, pass: e}, &s.dropPass)
	return nil
}

func (s *SQLiteIndex) WriteLightBatch(e world.LightBatchEntry) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqLight, light: e}, &s.dropLight)
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.ChunksV1) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: snapshotRow{
		Path:       path,
		WorldID:    snap.Header.WorldID,
		Dimension:  snap.Header.Dimension,
		Seed:       snap.Header.Seed,
		Chunks:     len(snap.Chunks),
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}}, &s.dropSnapshot)
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropPassTotal:     s.dropPass.Load(),
		DropLightTotal:    s.dropLight.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		WrittenTotal:      s.written.Load(),
		FailedTotal:       s.failed.Load(),
	}
}

// UpsertCatalogs records the block definitions and the tuning in effect.
func (s *SQLiteIndex) UpsertCatalogs(blocksPath string, cat *catalogs.BlockCatalog, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if blocksPath != "" {
		if b, err := os.ReadFile(blocksPath); err == nil && len(b) > 0 {
			rows = append(rows, kv{name: "blocks_defs", digest: cat.DefsDigest, json: b})
		}
	}
	if b, _ := json.Marshal(cat.Palette); len(b) > 0 {
		rows = append(rows, kv{name: "blocks_palette", digest: cat.DefsDigest, json: b})
	}
	if b, _ := json.Marshal(tune); len(b) > 0 {
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertPass, _ := s.db.Prepare(`INSERT OR REPLACE INTO cull_passes(world,pass,at,cx,cy,cz,dim,occlusion_off,rays,aborted,visible,loaded,backlog,duration_us) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertLight, _ := s.db.Prepare(`INSERT INTO light_batches(world,at,tasks,touched,pending) VALUES(?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(path,world,dim,seed,chunks,recorded_at) VALUES(?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertPass, insertLight, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 1000
		commitMaxWait = time.Second
	)
	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.failed.Add(uint64(opCount))
		} else {
			s.written.Add(uint64(opCount))
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil {
			s.failed.Add(1)
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			s.failed.Add(1)
			return
		}
		opCount++
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			s.failed.Add(1)
			continue
		}
		switch r.kind {
		case reqPass:
			p := r.pass
			off := 0
			if p.OcclusionOff {
				off = 1
			}
			exec(insertPass, p.World, int64(p.Pass), p.Time,
				p.Center[0], p.Center[1], p.Center[2], p.Center[3],
				off, p.Rays, p.Aborted, p.Visible, p.Loaded, p.Backlog, p.DurationUS)
		case reqLight:
			l := r.light
			exec(insertLight, l.World, l.Time, l.Tasks, l.Touched, l.Pending)
		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, sn.Path, sn.WorldID, sn.Dimension, sn.Seed, sn.Chunks, sn.RecordedAt)
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}
	commit()
}

// PassSummary is one row of RecentPasses.
type PassSummary struct {
	Pass       uint64
	Center     [4]int
	Visible    int
	Rays       int
	Aborted    int
	DurationUS int64
}

// RecentPasses returns the latest committed passes of a world, newest first.
func (s *SQLiteIndex) RecentPasses(ctx context.Context, worldID string, limit int) ([]PassSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT pass,cx,cy,cz,dim,visible,rays,aborted,duration_us FROM cull_passes WHERE world=? ORDER BY pass DESC LIMIT ?`,
		worldID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PassSummary
	for rows.Next() {
		var p PassSummary
		var pass int64
		if err := rows.Scan(&pass, &p.Center[0], &p.Center[1], &p.Center[2], &p.Center[3], &p.Visible, &p.Rays, &p.Aborted, &p.DurationUS); err != nil {
			return nil, err
		}
		p.Pass = uint64(pass)
		out = append(out, p)
	}
	return out, rows.Err()
}
