package lattice

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
)

// State is a deep copy of everything needed to resume stepping.
type State struct {
	X       int
	Y       int
	Omega   float64
	Frame   uint64
	F0      []float64
	F1      []float64
	Barrier []bool
}

// Export copies the lattice. Staged mask edits are not included.
func (l *Lattice) Export() State {
	st := State{
		X:       l.x,
		Y:       l.y,
		Omega:   l.omega,
		Frame:   l.frame,
		F0:      make([]float64, len(l.f[0])),
		F1:      make([]float64, len(l.f[1])),
		Barrier: l.BarrierMask(),
	}
	copy(st.F0, l.f[0])
	copy(st.F1, l.f[1])
	return st
}

// Import replaces the lattice contents with st. Dimensions must match.
func (l *Lattice) Import(st State) error {
	if st.X != l.x || st.Y != l.y {
		return fmt.Errorf("%w: state is %dx%d, lattice is %dx%d", ErrInvalidDimensions, st.X, st.Y, l.x, l.y)
	}
	if len(st.F0) != Q*l.n || len(st.F1) != Q*l.n || len(st.Barrier) != l.n {
		return fmt.Errorf("%w: f0=%d f1=%d barrier=%d", ErrFieldLength, len(st.F0), len(st.F1), len(st.Barrier))
	}
	if err := l.SetOmega(st.Omega); err != nil {
		return err
	}
	copy(l.f[0], st.F0)
	copy(l.f[1], st.F1)
	copy(l.barrier, st.Barrier)
	l.frame = st.Frame
	l.mu.Lock()
	l.staged = nil
	l.mu.Unlock()
	return nil
}

// Digest hashes frame, dimensions, omega, mask and the current buffer.
// Two lattices stepped through the same inputs produce the same digest.
func (l *Lattice) Digest() string {
	h := sha256.New()
	var tmp [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(tmp[:], v)
		h.Write(tmp[:])
	}
	put(l.frame)
	put(uint64(l.x))
	put(uint64(l.y))
	put(math.Float64bits(l.omega))

	mask := make([]byte, l.n)
	for c, b := range l.barrier {
		if b {
			mask[c] = 1
		}
	}
	h.Write(mask)

	buf := make([]byte, 8*len(l.current()))
	for i, v := range l.current() {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	h.Write(buf)
	return hex.EncodeToString(h.Sum(nil))
}
