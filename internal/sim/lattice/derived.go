package lattice

import (
	"fmt"
	"math"
	"strings"
)

// Stat selects the scalar derived from the distributions after a frame.
type Stat uint8

const (
	StatCurl Stat = iota
	StatSpeed
	StatDensity
	StatVelocityX
	StatVelocityY
)

func (s Stat) String() string {
	switch s {
	case StatCurl:
		return "curl"
	case StatSpeed:
		return "speed"
	case StatDensity:
		return "density"
	case StatVelocityX:
		return "ux"
	case StatVelocityY:
		return "uy"
	default:
		return fmt.Sprintf("stat(%d)", uint8(s))
	}
}

func ParseStat(s string) (Stat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "curl":
		return StatCurl, nil
	case "speed":
		return StatSpeed, nil
	case "density", "rho":
		return StatDensity, nil
	case "ux", "velocity_x":
		return StatVelocityX, nil
	case "uy", "velocity_y":
		return StatVelocityY, nil
	default:
		return StatCurl, fmt.Errorf("unknown stat %q", s)
	}
}

// ScalarField is one derived statistic per cell, row-major. Barrier cells
// hold zero. Values is a copy owned by the caller.
type ScalarField struct {
	X      int
	Y      int
	Frame  uint64
	Stat   Stat
	Values []float64
	Min    float64
	Max    float64
}

func (s ScalarField) At(x, y int) float64 { return s.Values[x+y*s.X] }

// ComputeDerivedField reconstructs density and velocity from the current
// buffer into the origin scratch, then writes the selected statistic into
// the output scratch and returns a copy of it.
func (l *Lattice) ComputeDerivedField(stat Stat) ScalarField {
	f := l.current()
	l.rows(func(y0, y1 int) {
		var cell [Q]float64
		for c := y0 * l.x; c < y1*l.x; c++ {
			if l.barrier[c] {
				l.rho[c], l.ux[c], l.uy[c] = 0, 0, 0
				continue
			}
			for i := 0; i < Q; i++ {
				cell[i] = f[i*l.n+c]
			}
			l.rho[c], l.ux[c], l.uy[c] = Moments(cell)
		}
	})
	l.rows(func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < l.x; x++ {
				c := x + y*l.x
				if l.barrier[c] {
					l.out[c] = 0
					continue
				}
				l.out[c] = l.statAt(stat, x, y, c)
			}
		}
	})

	out := ScalarField{
		X:      l.x,
		Y:      l.y,
		Frame:  l.frame,
		Stat:   stat,
		Values: make([]float64, l.n),
		Min:    math.Inf(1),
		Max:    math.Inf(-1),
	}
	copy(out.Values, l.out)
	for c, v := range out.Values {
		if l.barrier[c] {
			continue
		}
		out.Min = math.Min(out.Min, v)
		out.Max = math.Max(out.Max, v)
	}
	if out.Min > out.Max {
		out.Min, out.Max = 0, 0
	}
	return out
}

func (l *Lattice) statAt(stat Stat, x, y, c int) float64 {
	switch stat {
	case StatSpeed:
		return math.Hypot(l.ux[c], l.uy[c])
	case StatDensity:
		return l.rho[c]
	case StatVelocityX:
		return l.ux[c]
	case StatVelocityY:
		return l.uy[c]
	default:
		east := wrap(x+1, l.x) + y*l.x
		west := wrap(x-1, l.x) + y*l.x
		north := x + wrap(y+1, l.y)*l.x
		south := x + wrap(y-1, l.y)*l.x
		return (l.uy[east] - l.uy[west]) - (l.ux[north] - l.ux[south])
	}
}
