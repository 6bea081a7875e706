package controller

import (
	"errors"
	"fmt"
	"math"

	"flowsculpt.ai/internal/sim/barrier"
	"flowsculpt.ai/internal/sim/lattice"
	"flowsculpt.ai/internal/sim/sculpt"
)

type Kind string

const (
	KindPointerDown      Kind = "POINTER_DOWN"
	KindPointerMove      Kind = "POINTER_MOVE"
	KindPointerUp        Kind = "POINTER_UP"
	KindSetMode          Kind = "SET_MODE"
	KindSetLineWidth     Kind = "SET_LINE_WIDTH"
	KindUndo             Kind = "UNDO"
	KindClearBarrier     Kind = "CLEAR_BARRIER"
	KindTogglePause      Kind = "TOGGLE_PAUSE"
	KindSetPaused        Kind = "SET_PAUSED"
	KindSetViscosity     Kind = "SET_VISCOSITY"
	KindSetStepsPerFrame Kind = "SET_STEPS_PER_FRAME"
	KindSetStat          Kind = "SET_STAT"
	KindResetEquilibrium Kind = "RESET_EQUILIBRIUM"
)

// Kinds lists every command kind, in the order clients usually document them.
var Kinds = []Kind{
	KindPointerDown, KindPointerMove, KindPointerUp, KindSetMode, KindSetLineWidth,
	KindUndo, KindClearBarrier, KindTogglePause, KindSetPaused, KindSetViscosity,
	KindSetStepsPerFrame, KindSetStat, KindResetEquilibrium,
}

// MaxStepsPerFrame bounds SET_STEPS_PER_FRAME.
const MaxStepsPerFrame = 1000

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrBadArgument    = errors.New("bad command argument")
)

// Flow is a uniform macroscopic state used by RESET_EQUILIBRIUM.
type Flow struct {
	UX  float64 `json:"ux"`
	UY  float64 `json:"uy"`
	Rho float64 `json:"rho"`
}

// Command is one user input. Only the fields relevant to Kind are read.
// Commands are recorded verbatim in the frame log and replayed from it.
type Command struct {
	Kind Kind `json:"kind"`

	// Pointer position in grid cells; clamped to the grid.
	X int `json:"x,omitempty"`
	Y int `json:"y,omitempty"`

	// Mode is draw, erase or line. On POINTER_DOWN it overrides the
	// current mode for that gesture only.
	Mode string `json:"mode,omitempty"`

	// Value carries viscosity, steps per frame or line width.
	Value float64 `json:"value,omitempty"`
	On    bool    `json:"on,omitempty"`
	Stat  string  `json:"stat,omitempty"`
	Flow  *Flow   `json:"flow,omitempty"`
}

func (c Command) point() barrier.Cell { return barrier.Cell{X: c.X, Y: c.Y} }

// apply runs one command against controller state. Mask edits are joined
// into edits and staged by the caller once per frame.
func (c *Controller) apply(cmd Command, edits *barrier.Blob) error {
	switch cmd.Kind {
	case KindPointerDown:
		mode := c.drawMode
		if cmd.Mode != "" {
			m, err := sculpt.ParseMode(cmd.Mode)
			if err != nil {
				return err
			}
			mode = m
		}
		prev, err := c.sess.BeginGesture(mode)
		if err != nil {
			return err
		}
		edits.Join(prev)
		return c.sess.ExtendGesture(c.clamp(cmd.point()))

	case KindPointerMove:
		if !c.sess.Active() {
			return nil
		}
		return c.sess.ExtendGesture(c.clamp(cmd.point()))

	case KindPointerUp:
		if !c.sess.Active() {
			return nil
		}
		edits.Join(c.sess.EndGesture())
		return nil

	case KindSetMode:
		m, err := sculpt.ParseMode(cmd.Mode)
		if err != nil {
			return err
		}
		c.drawMode = m
		return nil

	case KindSetLineWidth:
		switch cmd.Value {
		case 1:
			c.sess.SetThick(false)
		case 3:
			c.sess.SetThick(true)
		default:
			return fmt.Errorf("%w: line width %v (want 1 or 3)", ErrBadArgument, cmd.Value)
		}
		return nil

	case KindUndo:
		if b, ok := c.sess.Undo(); ok {
			edits.Join(b)
		}
		return nil

	case KindClearBarrier:
		c.sess.ClearAll()
		for _, p := range edits.Points() {
			edits.Set(p.Cell, false)
		}
		mask := c.lat.BarrierMask()
		w := c.lat.Width()
		for i, on := range mask {
			if on {
				edits.Set(barrier.Cell{X: i % w, Y: i / w}, false)
			}
		}
		return nil

	case KindTogglePause:
		c.paused = !c.paused
		return nil

	case KindSetPaused:
		c.paused = cmd.On
		return nil

	case KindSetViscosity:
		if cmd.Value <= 0 || math.IsNaN(cmd.Value) || math.IsInf(cmd.Value, 0) {
			return fmt.Errorf("%w: viscosity %v", ErrBadArgument, cmd.Value)
		}
		return c.lat.SetOmega(lattice.OmegaForViscosity(cmd.Value))

	case KindSetStepsPerFrame:
		n := int(cmd.Value)
		if float64(n) != cmd.Value || n < 0 || n > MaxStepsPerFrame {
			return fmt.Errorf("%w: steps per frame %v (want 0..%d)", ErrBadArgument, cmd.Value, MaxStepsPerFrame)
		}
		c.stepsPerFrame = n
		return nil

	case KindSetStat:
		st, err := lattice.ParseStat(cmd.Stat)
		if err != nil {
			return err
		}
		c.stat = st
		return nil

	case KindResetEquilibrium:
		f := c.cfg.InitialFlow
		if cmd.Flow != nil {
			f = *cmd.Flow
		}
		if !(f.Rho > 0) {
			return fmt.Errorf("%w: rho %v", ErrBadArgument, f.Rho)
		}
		c.lat.ResetToEquilibrium(f.UX, f.UY, f.Rho)
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Kind)
	}
}

func (c *Controller) clamp(p barrier.Cell) barrier.Cell {
	return barrier.Clamp(p, c.lat.Width(), c.lat.Height())
}
