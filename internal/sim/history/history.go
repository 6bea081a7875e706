// Package history records committed barrier edits and undoes them in
// reverse order. Each touched cell keeps a stack of presence values, one
// entry per committed shape; the visible value of a cell is the top of its
// stack, or false when the stack is empty.
//
// History is not safe for concurrent use. It is owned by the sculpting
// session, which runs on the controller goroutine.
package history

import (
	"io"
	"sort"

	"github.com/sirupsen/logrus"

	"flowsculpt.ai/internal/sim/barrier"
)

// Entry is one committed undo unit with its points frozen at commit time.
type Entry struct {
	Kind   barrier.ShapeKind
	Points []barrier.Point
}

type History struct {
	stacks map[barrier.Cell][]bool
	undo   []Entry
	log    logrus.FieldLogger
}

func New(log logrus.FieldLogger) *History {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &History{stacks: map[barrier.Cell][]bool{}, log: log}
}

// Commit pushes every point of s onto its cell stack and s onto the undo
// stack. Empty shapes are ignored and reported as false.
func (h *History) Commit(s barrier.Shape) bool {
	pts := barrier.BlobOf(s).Points()
	if len(pts) == 0 {
		return false
	}
	for _, p := range pts {
		h.stacks[p.Cell] = append(h.stacks[p.Cell], p.Present)
	}
	h.undo = append(h.undo, Entry{Kind: s.Kind, Points: pts})
	return true
}

// Undo pops the most recent shape and returns, for every cell it touched,
// the value that is now visible. It returns false when nothing is left.
func (h *History) Undo() (*barrier.Blob, bool) {
	if len(h.undo) == 0 {
		h.log.Warn("undo requested with empty history")
		return nil, false
	}
	e := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]

	out := barrier.NewBlob()
	for _, p := range e.Points {
		st := h.stacks[p.Cell]
		if len(st) == 0 {
			h.log.WithFields(logrus.Fields{"x": p.X, "y": p.Y}).Warn("history pop with no entry")
			out.Set(p.Cell, false)
			continue
		}
		st = st[:len(st)-1]
		if len(st) == 0 {
			delete(h.stacks, p.Cell)
			out.Set(p.Cell, false)
			continue
		}
		h.stacks[p.Cell] = st
		out.Set(p.Cell, st[len(st)-1])
	}
	return out, true
}

// Top is the currently visible value for c.
func (h *History) Top(c barrier.Cell) bool {
	st := h.stacks[c]
	if len(st) == 0 {
		return false
	}
	return st[len(st)-1]
}

// Depth is the number of undoable shapes.
func (h *History) Depth() int { return len(h.undo) }

// Cells is the number of cells with a non-empty stack.
func (h *History) Cells() int { return len(h.stacks) }

func (h *History) Clear() {
	clear(h.stacks)
	h.undo = h.undo[:0]
}

// Stack is the exported form of one cell stack, bottom first.
type Stack struct {
	Cell   barrier.Cell
	Values []bool
}

// State is a deep copy of a history, ordered deterministically.
type State struct {
	Stacks []Stack
	Undo   []Entry
}

func (h *History) Export() State {
	var st State
	for c, vals := range h.stacks {
		st.Stacks = append(st.Stacks, Stack{Cell: c, Values: append([]bool(nil), vals...)})
	}
	sort.Slice(st.Stacks, func(i, j int) bool {
		a, b := st.Stacks[i].Cell, st.Stacks[j].Cell
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	for _, e := range h.undo {
		st.Undo = append(st.Undo, Entry{Kind: e.Kind, Points: append([]barrier.Point(nil), e.Points...)})
	}
	return st
}

// Import replaces the history with st.
func (h *History) Import(st State) {
	h.Clear()
	for _, s := range st.Stacks {
		if len(s.Values) == 0 {
			continue
		}
		h.stacks[s.Cell] = append([]bool(nil), s.Values...)
	}
	for _, e := range st.Undo {
		h.undo = append(h.undo, Entry{Kind: e.Kind, Points: append([]barrier.Point(nil), e.Points...)})
	}
}
