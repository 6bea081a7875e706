package indexdb

import (
	"database/sql"
	"path/filepath"
	"testing"

	"flowsculpt.ai/internal/persistence/snapshot"
	"flowsculpt.ai/internal/sim/controller"
	"flowsculpt.ai/internal/sim/tuning"
)

func openTemp(t *testing.T) (*SQLiteIndex, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "index", "sim.sqlite")
	idx, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return idx, dbPath
}

func reopen(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteIndex_WriteFrame(t *testing.T) {
	idx, path := openTemp(t)
	entry := controller.FrameLogEntry{
		Frame:        12,
		LatticeFrame: 180,
		Steps:        15,
		Commands: []controller.Command{
			{Kind: controller.KindPointerDown, X: 4, Y: 5},
			{Kind: controller.KindPointerUp},
		},
		Rejected:     1,
		BarrierCells: 9,
		Digest:       "abc",
	}
	if err := idx.WriteFrame(entry); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Writes after close are ignored.
	if err := idx.WriteFrame(entry); err != nil {
		t.Fatalf("write after close: %v", err)
	}

	db := reopen(t, path)
	var (
		latticeFrame, commands, rejected, cells int
		digest                                  string
	)
	row := db.QueryRow(`SELECT lattice_frame,commands,rejected,barrier_cells,digest FROM frames WHERE frame = ?`, 12)
	if err := row.Scan(&latticeFrame, &commands, &rejected, &cells, &digest); err != nil {
		t.Fatalf("scan frames: %v", err)
	}
	if latticeFrame != 180 || commands != 2 || rejected != 1 || cells != 9 || digest != "abc" {
		t.Fatalf("frame row mismatch: %d %d %d %d %q", latticeFrame, commands, rejected, cells, digest)
	}

	var kind string
	var x, y int
	if err := db.QueryRow(`SELECT kind,x,y FROM commands WHERE frame = ? AND seq = 0`, 12).Scan(&kind, &x, &y); err != nil {
		t.Fatalf("scan commands: %v", err)
	}
	if kind != "POINTER_DOWN" || x != 4 || y != 5 {
		t.Fatalf("command row mismatch: %s (%d,%d)", kind, x, y)
	}
}

func TestSQLiteIndex_RecordSnapshotAndTuning(t *testing.T) {
	idx, path := openTemp(t)
	snap := snapshot.SnapshotV1{
		Header:       snapshot.Header{Version: snapshot.Version, SimID: "sim_1", Frame: 9000, X: 200, Y: 80},
		Omega:        1.25,
		LatticeFrame: 135000,
		Stat:         "curl",
		Stacks:       []snapshot.StackV1{{X: 1, Y: 1, Values: []bool{true}}},
		Undo:         []snapshot.UndoV1{{Kind: 3}},
	}
	idx.RecordSnapshot("/data/snapshots/9000.snap.zst", snap)
	if err := idx.UpsertTuning("sim_1", tuning.Defaults()); err != nil {
		t.Fatalf("tuning: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db := reopen(t, path)
	var (
		p          string
		x, y       int
		omega      float64
		undoDepth  int
		simID, raw string
	)
	if err := db.QueryRow(`SELECT path,x,y,omega,undo_depth FROM snapshots WHERE frame = ?`, 9000).Scan(&p, &x, &y, &omega, &undoDepth); err != nil {
		t.Fatalf("scan snapshots: %v", err)
	}
	if p != "/data/snapshots/9000.snap.zst" || x != 200 || y != 80 || omega != 1.25 || undoDepth != 1 {
		t.Fatalf("snapshot row mismatch: %q %d %d %v %d", p, x, y, omega, undoDepth)
	}
	if err := db.QueryRow(`SELECT value FROM meta WHERE key = 'sim_id'`).Scan(&simID); err != nil || simID != "sim_1" {
		t.Fatalf("meta sim_id: %q %v", simID, err)
	}
	if err := db.QueryRow(`SELECT json FROM tuning WHERE name = 'tuning'`).Scan(&raw); err != nil || raw == "" {
		t.Fatalf("tuning row: %q %v", raw, err)
	}
}

func TestSQLiteIndex_NilIsNoop(t *testing.T) {
	var idx *SQLiteIndex
	if err := idx.WriteFrame(controller.FrameLogEntry{Frame: 1}); err != nil {
		t.Fatalf("nil write: %v", err)
	}
	idx.RecordSnapshot("x", snapshot.SnapshotV1{})
	if err := idx.UpsertTuning("", tuning.Defaults()); err != nil {
		t.Fatalf("nil tuning: %v", err)
	}
}
