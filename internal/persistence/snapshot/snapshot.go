package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	SimID   string `json:"sim_id"`
	Frame   uint64 `json:"frame"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	// Lattice.
	Omega        float64   `json:"omega"`
	LatticeFrame uint64    `json:"lattice_frame"`
	F0           []float64 `json:"-"`
	F1           []float64 `json:"-"`
	// Barrier is the RLE-encoded mask (see sim/encoding).
	Barrier string `json:"barrier"`

	// Controller parameters, captured for resume.
	TickRateHz    int    `json:"tick_rate_hz"`
	StepsPerFrame int    `json:"steps_per_frame"`
	Stat          string `json:"stat"`
	Paused        bool   `json:"paused,omitempty"`
	DrawMode      string `json:"draw_mode"`
	Thick         bool   `json:"thick,omitempty"`
	// InitialFlow is what a reset to equilibrium without arguments uses.
	InitialFlow FlowV1 `json:"initial_flow"`

	// Edit history.
	Stacks []StackV1 `json:"stacks,omitempty"`
	Undo   []UndoV1  `json:"undo,omitempty"`
}

type FlowV1 struct {
	UX  float64 `json:"ux"`
	UY  float64 `json:"uy"`
	Rho float64 `json:"rho"`
}

type StackV1 struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Values []bool `json:"values"`
}

type UndoV1 struct {
	Kind   uint8     `json:"kind"`
	Points []PointV1 `json:"points"`
}

type PointV1 struct {
	X       int  `json:"x"`
	Y       int  `json:"y"`
	Present bool `json:"present"`
}

// FileName is the on-disk name for a snapshot taken at frame.
func FileName(frame uint64) string { return fmt.Sprintf("%d.snap.zst", frame) }

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

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
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
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

	// The gob body repeats the header; the JSON line is for tooling.
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

// ReadHeader decodes only the JSON header line.
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
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}

// Latest returns the highest-frame snapshot in dir, or "" if there is none.
func Latest(dir string) string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestFrame uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		frame, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || frame > bestFrame {
			bestFrame = frame
			best = filepath.Join(dir, name)
		}
	}
	return best
}
