package barrier

// Curve accumulates the segments of one continuous drag. A curve is either a
// draw curve (all points present) or an erase curve (all points absent).
type Curve struct {
	present bool
	thick   bool

	last    Cell
	started bool
	blob    Blob
}

// NewCurve starts a curve. thick selects 3-wide segments.
func NewCurve(present, thick bool) *Curve {
	return &Curve{present: present, thick: thick}
}

// ContinueCurve starts a new curve whose first segment is drawn from the
// last point of prev, so consecutive curves of one gesture stay connected.
func ContinueCurve(prev *Curve) *Curve {
	c := NewCurve(prev.present, prev.thick)
	c.last, c.started = prev.last, prev.started
	return c
}

func (c *Curve) Present() bool { return c.present }

// AddSegment rasterizes the previous point → p as barrier. The first call on
// a fresh curve marks a single cell.
func (c *Curve) AddSegment(p Cell, width, height int) error {
	return c.segment(p, true, width, height)
}

// EraseSegment is AddSegment with erase semantics.
func (c *Curve) EraseSegment(p Cell, width, height int) error {
	return c.segment(p, false, width, height)
}

// Extend adds a segment with the curve's own polarity.
func (c *Curve) Extend(p Cell, width, height int) error {
	return c.segment(p, c.present, width, height)
}

func (c *Curve) segment(p Cell, present bool, width, height int) error {
	if err := checkBounds(p, width, height); err != nil {
		return err
	}
	from := p
	if c.started {
		from = c.last
	}
	var (
		l   *Line
		err error
	)
	if c.thick {
		l, err = NewThickLine(from, p, width, height)
	} else {
		l, err = NewLine(from, p, width, height)
	}
	if err != nil {
		return err
	}
	for _, cell := range l.cells {
		c.blob.Set(cell, present)
	}
	c.last, c.started = p, true
	return nil
}

// Last reports the most recent point and whether the curve has any.
func (c *Curve) Last() (Cell, bool) { return c.last, c.started }

func (c *Curve) IsEmpty() bool { return c.blob.IsEmpty() }

// Empty drops the accumulated cells but keeps the last point.
func (c *Curve) Empty() { c.blob.Empty() }

func (c *Curve) Points() []Point { return c.blob.Points() }

// CurveCollection groups the curves of one pointer-down → pointer-up
// gesture. It is committed to history as a single undo unit.
type CurveCollection struct {
	curves []*Curve
}

func (cc *CurveCollection) AddCurve(c *Curve) {
	if c == nil || c.IsEmpty() {
		return
	}
	cc.curves = append(cc.curves, c)
}

func (cc *CurveCollection) Curves() []*Curve { return cc.curves }

func (cc *CurveCollection) IsEmpty() bool {
	for _, c := range cc.curves {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}

// Points joins the curves in order, so later curves win on shared cells.
func (cc *CurveCollection) Points() []Point {
	var b Blob
	for _, c := range cc.curves {
		b.Join(&c.blob)
	}
	return b.Points()
}
