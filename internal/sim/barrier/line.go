package barrier

import "fmt"

// Line is a rasterized segment between two in-bounds endpoints. Every
// diagonal step is bridged by both orthogonal neighbours, so the cell set is
// 4-connected and streaming cannot leak through it.
type Line struct {
	From  Cell
	To    Cell
	Thick bool

	cells []Cell
}

// NewLine rasterizes a one-cell-wide line.
func NewLine(from, to Cell, width, height int) (*Line, error) {
	if err := lineBounds(from, to, width, height); err != nil {
		return nil, err
	}
	l := &Line{From: from, To: to}
	seen := map[Cell]struct{}{}
	l.cells = appendRaster(l.cells, seen, from, to)
	return l, nil
}

// NewThickLine rasterizes a line three cells wide: the centre line plus one
// parallel copy on each side of the minor axis. A side copy whose endpoints
// fall outside the grid is dropped.
func NewThickLine(from, to Cell, width, height int) (*Line, error) {
	if err := lineBounds(from, to, width, height); err != nil {
		return nil, err
	}
	l := &Line{From: from, To: to, Thick: true}
	seen := map[Cell]struct{}{}
	l.cells = appendRaster(l.cells, seen, from, to)

	off := Cell{Y: 1}
	if abs(to.Y-from.Y) > abs(to.X-from.X) {
		off = Cell{X: 1}
	}
	for _, sign := range [2]int{-1, 1} {
		a := Cell{X: from.X + sign*off.X, Y: from.Y + sign*off.Y}
		b := Cell{X: to.X + sign*off.X, Y: to.Y + sign*off.Y}
		if !a.In(width, height) || !b.In(width, height) {
			continue
		}
		l.cells = appendRaster(l.cells, seen, a, b)
	}
	return l, nil
}

func lineBounds(from, to Cell, width, height int) error {
	if !from.In(width, height) || !to.In(width, height) {
		return fmt.Errorf("%w: line %s -> %s outside [0,%d)x[0,%d)", ErrOutOfBounds, from, to, width, height)
	}
	return nil
}

// Cells returns the rasterized cells in drawing order.
func (l *Line) Cells() []Cell {
	out := make([]Cell, len(l.cells))
	copy(out, l.cells)
	return out
}

func (l *Line) Len() int { return len(l.cells) }

// Points returns every cell as a present point.
func (l *Line) Points() []Point {
	out := make([]Point, len(l.cells))
	for i, c := range l.cells {
		out[i] = Point{Cell: c, Present: true}
	}
	return out
}

// appendRaster walks a→b with integer Bresenham. Each diagonal hop
// prev→next also emits (next.x, prev.y) and (prev.x, next.y).
func appendRaster(dst []Cell, seen map[Cell]struct{}, a, b Cell) []Cell {
	add := func(c Cell) {
		if _, ok := seen[c]; ok {
			return
		}
		seen[c] = struct{}{}
		dst = append(dst, c)
	}

	dx := abs(b.X - a.X)
	dy := -abs(b.Y - a.Y)
	sx, sy := 1, 1
	if b.X < a.X {
		sx = -1
	}
	if b.Y < a.Y {
		sy = -1
	}
	e := dx + dy

	cur := a
	add(cur)
	for cur != b {
		prev := cur
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			cur.X += sx
		}
		if e2 <= dx {
			e += dx
			cur.Y += sy
		}
		if prev.X != cur.X && prev.Y != cur.Y {
			add(Cell{X: cur.X, Y: prev.Y})
			add(Cell{X: prev.X, Y: cur.Y})
		}
		add(cur)
	}
	return dst
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
