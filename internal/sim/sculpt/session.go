// Package sculpt turns pointer gestures into barrier edits. A Session owns
// the in-progress stroke and the edit history; it must be driven from a
// single goroutine.
package sculpt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"flowsculpt.ai/internal/sim/barrier"
	"flowsculpt.ai/internal/sim/history"
)

var (
	ErrNoGesture   = errors.New("no gesture in progress")
	ErrInvalidMode = errors.New("invalid sculpt mode")
)

type Mode uint8

const (
	ModeInactive Mode = iota
	ModeDraw
	ModeErase
	ModeLine
)

func (m Mode) String() string {
	switch m {
	case ModeInactive:
		return "inactive"
	case ModeDraw:
		return "draw"
	case ModeErase:
		return "erase"
	case ModeLine:
		return "line"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "draw":
		return ModeDraw, nil
	case "erase":
		return ModeErase, nil
	case "line":
		return ModeLine, nil
	default:
		return ModeInactive, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

type Config struct {
	Width  int
	Height int
	// Thick selects 3-cell-wide strokes and lines.
	Thick bool
}

type Session struct {
	cfg  Config
	hist *history.History
	log  logrus.FieldLogger

	mode Mode

	// Draw/Erase gesture state.
	curve      *barrier.Curve
	collection *barrier.CurveCollection

	// Line gesture state. The anchor survives a plain click so that two
	// clicks in a row make a line.
	anchor    barrier.Cell
	hasAnchor bool
	end       barrier.Cell
	hasEnd    bool
}

func New(cfg Config, hist *history.History, log logrus.FieldLogger) *Session {
	if hist == nil {
		hist = history.New(log)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Session{cfg: cfg, hist: hist, log: log}
}

func (s *Session) History() *history.History { return s.hist }

// SetThick switches between 1- and 3-cell strokes. A draw or erase stroke
// in progress keeps its width; a pending line picks up the new one.
func (s *Session) SetThick(thick bool) { s.cfg.Thick = thick }

func (s *Session) Thick() bool { return s.cfg.Thick }

// Mode is the mode of the gesture in progress, or ModeInactive.
func (s *Session) Mode() Mode { return s.mode }

func (s *Session) Active() bool { return s.mode != ModeInactive }

// PendingAnchor reports a line start point waiting for its second click.
func (s *Session) PendingAnchor() (barrier.Cell, bool) { return s.anchor, s.hasAnchor }

// BeginGesture starts a gesture. A gesture already in progress is ended
// first and its edits are returned.
func (s *Session) BeginGesture(mode Mode) (*barrier.Blob, error) {
	if mode == ModeInactive || mode > ModeLine {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMode, mode)
	}
	var prev *barrier.Blob
	if s.Active() {
		prev = s.EndGesture()
	}
	s.mode = mode
	switch mode {
	case ModeDraw, ModeErase:
		s.curve = barrier.NewCurve(mode == ModeDraw, s.cfg.Thick)
		s.collection = &barrier.CurveCollection{}
		s.hasAnchor = false
	case ModeLine:
		s.hasEnd = false
	}
	return prev, nil
}

// ExtendGesture feeds one pointer position into the gesture.
func (s *Session) ExtendGesture(p barrier.Cell) error {
	switch s.mode {
	case ModeDraw, ModeErase:
		return s.curve.Extend(p, s.cfg.Width, s.cfg.Height)
	case ModeLine:
		if !p.In(s.cfg.Width, s.cfg.Height) {
			return fmt.Errorf("%w: %s", barrier.ErrOutOfBounds, p)
		}
		if !s.hasAnchor {
			s.anchor, s.hasAnchor = p, true
			return nil
		}
		s.end, s.hasEnd = p, true
		return nil
	default:
		return ErrNoGesture
	}
}

// Flush moves the cells drawn since the previous flush into the gesture's
// collection and returns them for the barrier mask. Line gestures only
// produce edits on EndGesture.
func (s *Session) Flush() *barrier.Blob {
	if s.mode != ModeDraw && s.mode != ModeErase {
		return nil
	}
	if s.curve.IsEmpty() {
		return nil
	}
	out := barrier.BlobOf(s.curve)
	s.collection.AddCurve(s.curve)
	s.curve = barrier.ContinueCurve(s.curve)
	return out
}

// EndGesture commits the gesture to history and returns the edits of the
// whole gesture. Reapplying cells already flushed is harmless.
func (s *Session) EndGesture() *barrier.Blob {
	mode := s.mode
	s.mode = ModeInactive
	switch mode {
	case ModeDraw, ModeErase:
		s.collection.AddCurve(s.curve)
		cc := s.collection
		s.curve, s.collection = nil, nil
		if cc.IsEmpty() {
			return nil
		}
		s.hist.Commit(barrier.CollectionShape(cc))
		return barrier.BlobOf(cc)
	case ModeLine:
		if !s.hasAnchor || !s.hasEnd || s.end == s.anchor {
			s.hasEnd = false
			return nil
		}
		l, err := s.newLine(s.anchor, s.end)
		s.hasAnchor, s.hasEnd = false, false
		if err != nil {
			s.log.WithError(err).Warn("line rejected")
			return nil
		}
		s.hist.Commit(barrier.LineShape(l))
		return barrier.BlobOf(l)
	default:
		return nil
	}
}

func (s *Session) newLine(a, b barrier.Cell) (*barrier.Line, error) {
	if s.cfg.Thick {
		return barrier.NewThickLine(a, b, s.cfg.Width, s.cfg.Height)
	}
	return barrier.NewLine(a, b, s.cfg.Width, s.cfg.Height)
}

// Undo reverts the in-progress gesture if there is one, otherwise the most
// recent committed shape. The returned blob holds the values to write back
// into the mask. It reports false when there was nothing to undo.
func (s *Session) Undo() (*barrier.Blob, bool) {
	switch {
	case s.mode == ModeDraw || s.mode == ModeErase:
		live := barrier.NewBlob()
		live.Join(s.collection)
		live.Join(s.curve)
		s.mode = ModeInactive
		s.curve, s.collection = nil, nil
		return s.restore(live), true
	case s.hasAnchor:
		// A pending line start has no mask edits yet.
		s.mode = ModeInactive
		s.hasAnchor, s.hasEnd = false, false
		return barrier.NewBlob(), true
	}
	return s.hist.Undo()
}

// restore maps every cell of live back to its committed value.
func (s *Session) restore(live *barrier.Blob) *barrier.Blob {
	out := barrier.NewBlob()
	for _, p := range live.Points() {
		out.Set(p.Cell, s.hist.Top(p.Cell))
	}
	return out
}

// ClearAll drops the gesture in progress and the whole history.
func (s *Session) ClearAll() {
	s.mode = ModeInactive
	s.curve, s.collection = nil, nil
	s.hasAnchor, s.hasEnd = false, false
	s.hist.Clear()
}
