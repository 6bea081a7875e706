package main

import (
	"flag"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"flowsculpt.ai/internal/persistence/snapshot"
	"flowsculpt.ai/internal/sim/barrier"
	"flowsculpt.ai/internal/sim/encoding"
	"flowsculpt.ai/internal/sim/obstacle"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "mask":
			maskCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	simID := fs.String("sim", "", "sim id (optional; lists its snapshots)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "sims")
	if *simID != "" {
		base = filepath.Join(base, *simID, "snapshots")
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

// maskCmd renders a snapshot's barrier as a PNG that tuning.obstacle.image
// accepts, so a sculpted scene can seed a fresh simulation.
func maskCmd(args []string) {
	fs := flag.NewFlagSet("mask", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	simID := fs.String("sim", "", "sim id (used when -snapshot is empty)")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	outPath := fs.String("out", "", "output png path (default: <snapshot>.png)")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		if strings.TrimSpace(*simID) == "" {
			fmt.Fprintln(os.Stderr, "missing -snapshot or -sim")
			os.Exit(2)
		}
		path = snapshot.Latest(filepath.Join(*dataDir, "sims", *simID, "snapshots"))
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run server until it writes one")
		os.Exit(2)
	}
	out := strings.TrimSpace(*outPath)
	if out == "" {
		out = strings.TrimSuffix(path, ".snap.zst") + ".png"
	}

	cells, err := writeMask(path, out)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mask:", err)
		os.Exit(1)
	}
	fmt.Printf("mask ok: snapshot=%s cells=%d out=%s\n", filepath.Base(path), cells, out)
}

func writeMask(snapPath, out string) (int, error) {
	snap, err := snapshot.ReadSnapshot(snapPath)
	if err != nil {
		return 0, err
	}
	x, y := snap.Header.X, snap.Header.Y
	mask, err := encoding.DecodeMask(snap.Barrier, x*y)
	if err != nil {
		return 0, err
	}
	b := barrier.NewBlob()
	for i, set := range mask {
		if set {
			b.Set(barrier.Cell{X: i % x, Y: i / x}, true)
		}
	}

	f, err := os.Create(out)
	if err != nil {
		return 0, err
	}
	if err := png.Encode(f, obstacle.Mask(b, x, y)); err != nil {
		_ = f.Close()
		return 0, err
	}
	return b.Len(), f.Close()
}
