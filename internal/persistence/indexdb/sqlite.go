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

	"flowsculpt.ai/internal/persistence/snapshot"
	"flowsculpt.ai/internal/sim/controller"
	"flowsculpt.ai/internal/sim/tuning"
)

// SQLiteIndex is a queryable secondary index of the frame log and
// snapshots. Writes are asynchronous and dropped under backpressure; the
// JSONL frame log stays the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type reqKind int

const (
	reqFrame reqKind = iota + 1
	reqSnapshot
)

type req struct {
	kind reqKind

	frame    controller.FrameLogEntry
	snapshot snapshotRow
}

type snapshotRow struct {
	Frame        uint64
	Path         string
	X            int
	Y            int
	LatticeFrame uint64
	Omega        float64
	Stat         string
	Stacks       int
	UndoDepth    int
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
		// A few minutes of frames at 30 Hz.
		ch: make(chan req, 8192),
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
		`CREATE TABLE IF NOT EXISTS tuning (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS frames (
			frame INTEGER PRIMARY KEY,
			lattice_frame INTEGER NOT NULL,
			steps INTEGER NOT NULL,
			commands INTEGER NOT NULL,
			rejected INTEGER NOT NULL,
			barrier_cells INTEGER NOT NULL,
			digest TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS commands (
			frame INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (frame, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_commands_kind_frame ON commands(kind, frame);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			frame INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			lattice_frame INTEGER NOT NULL,
			omega REAL NOT NULL,
			stat TEXT NOT NULL,
			stacks INTEGER NOT NULL,
			undo_depth INTEGER NOT NULL,
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

// Dropped is the number of writes discarded because the writer fell behind.
func (s *SQLiteIndex) Dropped() uint64 { return s.dropped.Load() }

func (s *SQLiteIndex) WriteFrame(entry controller.FrameLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	s.enqueue(req{kind: reqFrame, frame: entry})
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: snapshotRow{
		Frame:        snap.Header.Frame,
		Path:         path,
		X:            snap.Header.X,
		Y:            snap.Header.Y,
		LatticeFrame: snap.LatticeFrame,
		Omega:        snap.Omega,
		Stat:         snap.Stat,
		Stacks:       len(snap.Stacks),
		UndoDepth:    len(snap.Undo),
	}})
}

func (s *SQLiteIndex) enqueue(r req) {
	select {
	case s.ch <- r:
	default:
		s.dropped.Add(1)
	}
}

// UpsertTuning stores the tuning actually applied, as canonical JSON, and
// the schema version. It runs synchronously.
func (s *SQLiteIndex) UpsertTuning(simID string, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
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
	if simID != "" {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('sim_id',?)`, simID); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO tuning(name,digest,json,updated_at) VALUES(?,?,?,?)`,
		"tuning", hex.EncodeToString(sum[:]), string(b), now); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertFrame, _ := s.db.Prepare(`INSERT OR REPLACE INTO frames(frame,lattice_frame,steps,commands,rejected,barrier_cells,digest) VALUES(?,?,?,?,?,?,?)`)
	insertCommand, _ := s.db.Prepare(`INSERT OR REPLACE INTO commands(frame,seq,kind,x,y,raw_json) VALUES(?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(frame,path,x,y,lattice_frame,omega,stat,stacks,undo_depth,recorded_at) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertFrame, insertCommand, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
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

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqFrame:
			f := r.frame
			if insertFrame == nil || insertCommand == nil {
				continue
			}
			if _, err := tx.Stmt(insertFrame).Exec(
				int64(f.Frame),
				int64(f.LatticeFrame),
				f.Steps,
				len(f.Commands),
				f.Rejected,
				f.BarrierCells,
				f.Digest,
			); err != nil {
				rollback()
				continue
			}
			opCount++
			for i, c := range f.Commands {
				raw, _ := json.Marshal(c)
				if _, err := tx.Stmt(insertCommand).Exec(int64(f.Frame), i, string(c.Kind), c.X, c.Y, string(raw)); err != nil {
					rollback()
					break
				}
				opCount++
			}

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot == nil {
				continue
			}
			if _, err := tx.Stmt(insertSnapshot).Exec(
				int64(sn.Frame),
				sn.Path,
				sn.X,
				sn.Y,
				int64(sn.LatticeFrame),
				sn.Omega,
				sn.Stat,
				sn.Stacks,
				sn.UndoDepth,
				time.Now().UTC().Format(time.RFC3339Nano),
			); err != nil {
				rollback()
				continue
			}
			opCount++
			// Snapshots are rare and worth having durable right away.
			commit()
			continue
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
