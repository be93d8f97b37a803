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
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mrskaggs/cline-ai-sub002/internal/persistence/snapshot"
	"github.com/mrskaggs/cline-ai-sub002/internal/plan/room"
	"github.com/mrskaggs/cline-ai-sub002/internal/protocol"
)

// SQLiteIndex is a queryable secondary index over planner history. Writes
// are queued to a single writer goroutine and dropped when the queue is full;
// the JSONL logs remain the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick     atomic.Uint64
	dropEvent    atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqEvent
	reqSnapshot
	reqFlush
)

type req struct {
	kind reqKind

	tick     protocol.TickSummary
	event    room.Event
	snapshot SnapshotRow
	done     chan struct{}
}

type SnapshotRow struct {
	Tick      uint64
	Path      string
	Seed      int64
	Rooms     int
	Buildings int
	Roads     int
}

type Stats struct {
	QueueDepth        int
	QueueCapacity     int
	DropTickTotal     uint64
	DropEventTotal    uint64
	DropSnapshotTotal uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, 65536)
}

func openSQLite(path string, queue int) (*SQLiteIndex, error) {
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

	s := &SQLiteIndex{db: db, ch: make(chan req, queue)}
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
		`CREATE TABLE IF NOT EXISTS configs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			rooms INTEGER NOT NULL,
			replans INTEGER NOT NULL,
			requested INTEGER NOT NULL,
			road_requests INTEGER NOT NULL,
			rebuilds INTEGER NOT NULL,
			errors INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			room TEXT NOT NULL,
			kind TEXT NOT NULL,
			count INTEGER NOT NULL,
			code TEXT,
			detail TEXT,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_room_tick ON events(room, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_events_kind_tick ON events(kind, tick);`,
		`CREATE TABLE IF NOT EXISTS replans (
			tick INTEGER NOT NULL,
			room TEXT NOT NULL,
			reason TEXT NOT NULL,
			buildings INTEGER NOT NULL,
			PRIMARY KEY (tick, room)
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			rooms INTEGER NOT NULL,
			buildings INTEGER NOT NULL,
			roads INTEGER NOT NULL
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

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTickTotal:     s.dropTick.Load(),
		DropEventTotal:    s.dropEvent.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func (s *SQLiteIndex) WriteTick(sum protocol.TickSummary) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqTick, tick: sum}, &s.dropTick)
	return nil
}

// Emit implements room.EventSink.
func (s *SQLiteIndex) Emit(ev room.Event) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqEvent, event: ev}, &s.dropEvent)
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil {
		return
	}
	b, r := snap.Counts()
	row := SnapshotRow{
		Tick:      snap.Header.Tick,
		Path:      path,
		Seed:      snap.Header.Seed,
		Rooms:     len(snap.Header.Rooms),
		Buildings: b,
		Roads:     r,
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: row}, &s.dropSnapshot)
}

// Flush blocks until every write queued before it is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpsertConfig stores the effective configuration under name with a content
// digest, so history rows can be matched to the settings that produced them.
func (s *SQLiteIndex) UpsertConfig(name string, v any) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO configs(name,digest,json,updated_at) VALUES(?,?,?,?)`,
		name, hex.EncodeToString(sum[:]), string(b), now); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,rooms,replans,requested,road_requests,rebuilds,errors,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(tick,seq,room,kind,count,code,detail) VALUES(?,?,?,?,?,?,?)`)
	insertReplan, _ := s.db.Prepare(`INSERT OR REPLACE INTO replans(tick,room,reason,buildings) VALUES(?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,seed,rooms,buildings,roads) VALUES(?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertEvent, insertReplan, insertSnapshot} {
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
		commitMaxWait = 2 * time.Second

		lastEventTick uint64
		eventSeq      int
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
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil {
			return true
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			t := r.tick
			var replans, requested, roadReq, rebuilds, errs int
			for _, rt := range t.Rooms {
				if rt.Replanned {
					replans++
				}
				if rt.Code != "" {
					errs++
				}
				requested += rt.Requested
				roadReq += rt.RoadRequests
				rebuilds += rt.Rebuilds
			}
			raw, _ := json.Marshal(t)
			exec(insertTick, int64(t.Tick), len(t.Rooms), replans, requested, roadReq, rebuilds, errs, string(raw))

		case reqEvent:
			ev := r.event
			if ev.Tick != lastEventTick {
				lastEventTick = ev.Tick
				eventSeq = 0
			}
			seq := eventSeq
			eventSeq++
			if !exec(insertEvent, int64(ev.Tick), seq, ev.Room, ev.Kind, ev.Count, ev.Code, ev.Detail) {
				continue
			}
			if ev.Kind == room.EventReplan {
				exec(insertReplan, int64(ev.Tick), ev.Room, ev.Detail, ev.Count)
			}

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.Seed, sn.Rooms, sn.Buildings, sn.Roads)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}

// EventRow is one indexed planning event.
type EventRow struct {
	Tick   uint64
	Room   string
	Kind   string
	Count  int
	Code   string
	Detail string
}

type EventFilter struct {
	Room  string
	Kind  string
	Limit int
}

// Events returns the newest events matching f, newest first.
func (s *SQLiteIndex) Events(ctx context.Context, f EventFilter) ([]EventRow, error) {
	var (
		where []string
		args  []any
	)
	if f.Room != "" {
		where = append(where, "room = ?")
		args = append(args, f.Room)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	q := `SELECT tick, room, kind, count, COALESCE(code,''), COALESCE(detail,'') FROM events`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY tick DESC, seq DESC LIMIT ?"
	args = append(args, limitOr(f.Limit, 100))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EventRow
	for rows.Next() {
		var r EventRow
		var tick int64
		if err := rows.Scan(&tick, &r.Room, &r.Kind, &r.Count, &r.Code, &r.Detail); err != nil {
			return nil, err
		}
		r.Tick = uint64(tick)
		out = append(out, r)
	}
	return out, rows.Err()
}

type ReplanRow struct {
	Tick      uint64
	Room      string
	Reason    string
	Buildings int
}

func (s *SQLiteIndex) Replans(ctx context.Context, limit int) ([]ReplanRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tick, room, reason, buildings FROM replans ORDER BY tick DESC, room LIMIT ?`, limitOr(limit, 100))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ReplanRow
	for rows.Next() {
		var r ReplanRow
		var tick int64
		if err := rows.Scan(&tick, &r.Room, &r.Reason, &r.Buildings); err != nil {
			return nil, err
		}
		r.Tick = uint64(tick)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) Snapshots(ctx context.Context, limit int) ([]SnapshotRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tick, path, seed, rooms, buildings, roads FROM snapshots ORDER BY tick DESC LIMIT ?`, limitOr(limit, 100))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SnapshotRow
	for rows.Next() {
		var r SnapshotRow
		var tick int64
		if err := rows.Scan(&tick, &r.Path, &r.Seed, &r.Rooms, &r.Buildings, &r.Roads); err != nil {
			return nil, err
		}
		r.Tick = uint64(tick)
		out = append(out, r)
	}
	return out, rows.Err()
}

func limitOr(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
