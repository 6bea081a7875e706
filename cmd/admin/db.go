package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	simID := fs.String("sim", "", "sim id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	from := fs.Uint64("from", 0, "first frame (frames, commands)")
	limit := fs.Int("limit", 20, "result limit")
	kind := fs.String("kind", "", "command kind filter (commands)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*simID) == "" {
			fmt.Fprintln(os.Stderr, "missing -sim or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "sims", *simID, "index", "index.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if *limit <= 0 {
		*limit = 20
	}
	opts := queryOpts{From: *from, Limit: *limit, Kind: strings.TrimSpace(*kind)}
	if err := runQuery(db, q, opts, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if strings.HasPrefix(err.Error(), "unknown query") {
			fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-sim SIM|-db PATH] [-from F] [-limit N] [-kind K] snapshots|frames|commands|tuning")
			os.Exit(2)
		}
		os.Exit(1)
	}
}

type queryOpts struct {
	From  uint64
	Limit int
	Kind  string
}

func runQuery(db *sql.DB, q string, opts queryOpts, w io.Writer) error {
	switch q {
	case "snapshots":
		rows, err := db.Query(`SELECT frame,path,x,y,lattice_frame,omega,stat,stacks,undo_depth,recorded_at FROM snapshots ORDER BY frame DESC LIMIT ?`, opts.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Frame        int64   `json:"frame"`
				Path         string  `json:"path"`
				X            int     `json:"x"`
				Y            int     `json:"y"`
				LatticeFrame int64   `json:"lattice_frame"`
				Omega        float64 `json:"omega"`
				Stat         string  `json:"stat"`
				Stacks       int     `json:"stacks"`
				UndoDepth    int     `json:"undo_depth"`
				RecordedAt   string  `json:"recorded_at"`
			}
			if err := rows.Scan(&r.Frame, &r.Path, &r.X, &r.Y, &r.LatticeFrame, &r.Omega, &r.Stat, &r.Stacks, &r.UndoDepth, &r.RecordedAt); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			printJSON(w, r)
		}
		return rows.Err()

	case "frames":
		rows, err := db.Query(`SELECT frame,lattice_frame,steps,commands,rejected,barrier_cells,digest FROM frames WHERE frame>=? ORDER BY frame LIMIT ?`, int64(opts.From), opts.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Frame        int64  `json:"frame"`
				LatticeFrame int64  `json:"lattice_frame"`
				Steps        int    `json:"steps"`
				Commands     int    `json:"commands"`
				Rejected     int    `json:"rejected"`
				BarrierCells int    `json:"barrier_cells"`
				Digest       string `json:"digest"`
			}
			if err := rows.Scan(&r.Frame, &r.LatticeFrame, &r.Steps, &r.Commands, &r.Rejected, &r.BarrierCells, &r.Digest); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			printJSON(w, r)
		}
		return rows.Err()

	case "commands":
		query := `SELECT frame,seq,kind,x,y,raw_json FROM commands WHERE frame>=? ORDER BY frame,seq LIMIT ?`
		args := []any{int64(opts.From), opts.Limit}
		if opts.Kind != "" {
			query = `SELECT frame,seq,kind,x,y,raw_json FROM commands WHERE kind=? AND frame>=? ORDER BY frame,seq LIMIT ?`
			args = []any{opts.Kind, int64(opts.From), opts.Limit}
		}
		rows, err := db.Query(query, args...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Frame   int64           `json:"frame"`
				Seq     int             `json:"seq"`
				Kind    string          `json:"kind"`
				X       int             `json:"x"`
				Y       int             `json:"y"`
				Command json.RawMessage `json:"command"`
			}
			var raw string
			if err := rows.Scan(&r.Frame, &r.Seq, &r.Kind, &r.X, &r.Y, &raw); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.Command = json.RawMessage(raw)
			printJSON(w, r)
		}
		return rows.Err()

	case "tuning":
		var r struct {
			Digest    string          `json:"digest"`
			UpdatedAt string          `json:"updated_at"`
			Tuning    json.RawMessage `json:"tuning"`
		}
		var raw string
		row := db.QueryRow(`SELECT digest,json,updated_at FROM tuning WHERE name='tuning'`)
		if err := row.Scan(&r.Digest, &raw, &r.UpdatedAt); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		r.Tuning = json.RawMessage(raw)
		printJSON(w, r)
		return nil

	default:
		return fmt.Errorf("unknown query: %s", q)
	}
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
