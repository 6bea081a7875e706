// Package lattice implements a D2Q9 lattice-Boltzmann stepper with
// half-way bounce-back on a boolean barrier mask.
//
// Distributions are double-buffered. The buffer selected by Frame()%2 is
// current; collide relaxes it in place and stream pulls from it into the
// other buffer, so readers and writers never share a buffer within a phase.
// The grid wraps periodically on both axes.
//
// A Lattice is owned by one goroutine. The only method safe to call from
// elsewhere is SetBarrierMask, which stages edits for the next Step.
package lattice

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"flowsculpt.ai/internal/sim/barrier"
)

var (
	ErrInvalidDimensions = errors.New("invalid lattice dimensions")
	ErrOmegaRange        = errors.New("omega must be in (0, 2)")
	ErrFieldLength       = errors.New("field length mismatch")
	ErrMaskIndex         = errors.New("barrier mask index out of range")
)

type Config struct {
	X     int
	Y     int
	Omega float64
	// Workers is the number of row bands processed in parallel.
	// Zero means runtime.NumCPU().
	Workers int
}

type Lattice struct {
	x, y, n int
	omega   float64
	workers int

	// f[parity][dir*n+cell]
	f       [2][]float64
	barrier []bool
	frame   uint64

	mu     sync.Mutex
	staged []barrier.MaskEdit

	// Scratch for derived fields: velocity/density in the origin buffers,
	// the selected statistic in out.
	ux, uy, rho []float64
	out         []float64
}

func ValidateOmega(omega float64) error {
	if !(omega > 0 && omega < 2) {
		return fmt.Errorf("%w: got %v", ErrOmegaRange, omega)
	}
	return nil
}

// OmegaForViscosity converts kinematic viscosity to the relaxation rate.
func OmegaForViscosity(nu float64) float64 { return 1 / (3*nu + 0.5) }

// New allocates a lattice at rest (rho=1, u=0) with an empty barrier mask.
func New(cfg Config) (*Lattice, error) {
	if cfg.X <= 0 || cfg.Y <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, cfg.X, cfg.Y)
	}
	if err := ValidateOmega(cfg.Omega); err != nil {
		return nil, err
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > cfg.Y {
		workers = cfg.Y
	}
	n := cfg.X * cfg.Y
	l := &Lattice{
		x:       cfg.X,
		y:       cfg.Y,
		n:       n,
		omega:   cfg.Omega,
		workers: workers,
		barrier: make([]bool, n),
		ux:      make([]float64, n),
		uy:      make([]float64, n),
		rho:     make([]float64, n),
		out:     make([]float64, n),
	}
	l.f[0] = make([]float64, Q*n)
	l.f[1] = make([]float64, Q*n)
	l.ResetToEquilibrium(0, 0, 1)
	return l, nil
}

func (l *Lattice) Width() int     { return l.x }
func (l *Lattice) Height() int    { return l.y }
func (l *Lattice) Omega() float64 { return l.omega }
func (l *Lattice) Workers() int   { return l.workers }
func (l *Lattice) Frame() uint64  { return l.frame }
func (l *Lattice) Parity() int    { return int(l.frame & 1) }

func (l *Lattice) current() []float64 { return l.f[l.frame&1] }

func (l *Lattice) SetOmega(omega float64) error {
	if err := ValidateOmega(omega); err != nil {
		return err
	}
	l.omega = omega
	return nil
}

// ResetToEquilibrium seeds both buffers of every cell with the equilibrium
// for (ux, uy, rho). The barrier mask and frame counter are kept.
func (l *Lattice) ResetToEquilibrium(ux, uy, rho float64) {
	eq := Equilibrium(ux, uy, rho)
	for p := 0; p < 2; p++ {
		buf := l.f[p]
		for i := 0; i < Q; i++ {
			row := buf[i*l.n : (i+1)*l.n]
			for c := range row {
				row[c] = eq[i]
			}
		}
	}
}

// InitFromFields seeds both buffers from per-cell macroscopic fields.
func (l *Lattice) InitFromFields(ux, uy, rho []float64) error {
	if len(ux) != l.n || len(uy) != l.n || len(rho) != l.n {
		return fmt.Errorf("%w: want %d cells, got ux=%d uy=%d rho=%d", ErrFieldLength, l.n, len(ux), len(uy), len(rho))
	}
	for c := 0; c < l.n; c++ {
		eq := Equilibrium(ux[c], uy[c], rho[c])
		for i := 0; i < Q; i++ {
			l.f[0][i*l.n+c] = eq[i]
			l.f[1][i*l.n+c] = eq[i]
		}
	}
	return nil
}

// SetBarrierMask stages edits to be committed atomically at the start of
// the next Step. It is safe to call from any goroutine. Within one batch and
// across batches staged before a Step, later edits win.
func (l *Lattice) SetBarrierMask(edits []barrier.MaskEdit) error {
	for _, e := range edits {
		if e.Index < 0 || e.Index >= l.n {
			return fmt.Errorf("%w: %d not in [0,%d)", ErrMaskIndex, e.Index, l.n)
		}
	}
	l.mu.Lock()
	l.staged = append(l.staged, edits...)
	l.mu.Unlock()
	return nil
}

// PendingEdits is the number of staged, uncommitted mask edits.
func (l *Lattice) PendingEdits() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.staged)
}

func (l *Lattice) commitBarrier() {
	l.mu.Lock()
	staged := l.staged
	l.staged = nil
	l.mu.Unlock()
	for _, e := range staged {
		l.barrier[e.Index] = e.Barrier
	}
}

// Step commits staged mask edits, then runs n collide+stream sub-steps.
// Step(0) only commits the mask.
func (l *Lattice) Step(n int) {
	l.commitBarrier()
	for s := 0; s < n; s++ {
		cur, next := l.f[l.frame&1], l.f[(l.frame+1)&1]
		l.rows(func(y0, y1 int) { l.collideRows(cur, y0, y1) })
		l.rows(func(y0, y1 int) { l.streamRows(cur, next, cardinalDirs[:], y0, y1) })
		l.rows(func(y0, y1 int) { l.streamRows(cur, next, cornerDirs[:], y0, y1) })
		l.frame++
	}
}

// rows splits [0,Y) into one band per worker and waits for all of them.
func (l *Lattice) rows(fn func(y0, y1 int)) {
	if l.workers <= 1 {
		fn(0, l.y)
		return
	}
	band := l.y / l.workers
	var wg sync.WaitGroup
	for w := 0; w < l.workers; w++ {
		y0 := w * band
		y1 := y0 + band
		if w == l.workers-1 {
			y1 = l.y
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(y0, y1)
		}()
	}
	wg.Wait()
}

func (l *Lattice) collideRows(f []float64, y0, y1 int) {
	n, omega := l.n, l.omega
	var cell [Q]float64
	for c := y0 * l.x; c < y1*l.x; c++ {
		if l.barrier[c] {
			continue
		}
		for i := 0; i < Q; i++ {
			cell[i] = f[i*n+c]
		}
		rho, ux, uy := Moments(cell)
		if rho <= 0 {
			continue
		}
		eq := Equilibrium(ux, uy, rho)
		for i := 0; i < Q; i++ {
			f[i*n+c] = cell[i] + omega*(eq[i]-cell[i])
		}
	}
}

// streamRows pulls each listed direction into next. A packet whose source
// is a barrier is replaced by the receiving cell's reversed packet; barrier
// cells carry their own packets over unchanged.
func (l *Lattice) streamRows(cur, next []float64, dirs []int, y0, y1 int) {
	n := l.n
	for y := y0; y < y1; y++ {
		for x := 0; x < l.x; x++ {
			c := x + y*l.x
			if l.barrier[c] {
				for _, i := range dirs {
					next[i*n+c] = cur[i*n+c]
				}
				continue
			}
			for _, i := range dirs {
				sx := wrap(x-ex[i], l.x)
				sy := wrap(y-ey[i], l.y)
				s := sx + sy*l.x
				if l.barrier[s] {
					next[i*n+c] = cur[opposite(i)*n+c]
				} else {
					next[i*n+c] = cur[i*n+s]
				}
			}
		}
	}
}

func wrap(v, size int) int {
	if v < 0 {
		return v + size
	}
	if v >= size {
		return v - size
	}
	return v
}

// Barrier reports the committed mask value at (x, y).
func (l *Lattice) Barrier(x, y int) bool {
	if x < 0 || x >= l.x || y < 0 || y >= l.y {
		return false
	}
	return l.barrier[x+y*l.x]
}

// BarrierMask returns a copy of the committed mask.
func (l *Lattice) BarrierMask() []bool {
	out := make([]bool, l.n)
	copy(out, l.barrier)
	return out
}

func (l *Lattice) BarrierCount() int {
	count := 0
	for _, b := range l.barrier {
		if b {
			count++
		}
	}
	return count
}

// Packets returns the current-parity distribution of one cell.
func (l *Lattice) Packets(x, y int) [Q]float64 {
	var out [Q]float64
	c := x + y*l.x
	f := l.current()
	for i := 0; i < Q; i++ {
		out[i] = f[i*l.n+c]
	}
	return out
}

// Mass is the sum of all current-parity packets.
func (l *Lattice) Mass() float64 {
	var m float64
	for _, v := range l.current() {
		m += v
	}
	return m
}
