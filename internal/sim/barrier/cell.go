package barrier

import (
	"errors"
	"fmt"
)

// ErrOutOfBounds is wrapped by every constructor that rejects a coordinate
// outside the grid.
var ErrOutOfBounds = errors.New("point out of bounds")

// Cell is one lattice site. Y grows northwards.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (c Cell) In(width, height int) bool {
	return c.X >= 0 && c.X < width && c.Y >= 0 && c.Y < height
}

// Index is the row-major offset used by the barrier mask.
func (c Cell) Index(width int) int { return c.X + c.Y*width }

func (c Cell) String() string { return fmt.Sprintf("(%d,%d)", c.X, c.Y) }

func less(a, b Cell) bool {
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.X < b.X
}

// Point is a signed cell: Present=true places a barrier, false erases one.
type Point struct {
	Cell
	Present bool `json:"present"`
}

// Source is anything that can be expanded into signed points.
type Source interface {
	Points() []Point
}

// MaskEdit is a flattened point ready for the lattice barrier mask.
type MaskEdit struct {
	Index   int
	Barrier bool
}

// Clamp pulls c inside [0,width)×[0,height), clamping each axis to its own bound.
func Clamp(c Cell, width, height int) Cell {
	return Cell{X: clampInt(c.X, 0, width-1), Y: clampInt(c.Y, 0, height-1)}
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func checkBounds(c Cell, width, height int) error {
	if !c.In(width, height) {
		return fmt.Errorf("%w: %s outside [0,%d)x[0,%d)", ErrOutOfBounds, c, width, height)
	}
	return nil
}
