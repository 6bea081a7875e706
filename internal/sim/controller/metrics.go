package controller

// Metrics is a point-in-time summary of the loop, refreshed after every
// frame. It is safe to read from any goroutine.
type Metrics struct {
	ID            string  `json:"id"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	Frame         uint64  `json:"frame"`
	LatticeFrame  uint64  `json:"lattice_frame"`
	Paused        bool    `json:"paused"`
	StepsPerFrame int     `json:"steps_per_frame"`
	Stat          string  `json:"stat"`
	DrawMode      string  `json:"draw_mode"`
	LineWidth     int     `json:"line_width"`
	Omega         float64 `json:"omega"`
	Viscosity     float64 `json:"viscosity"`
	LastStepMS    float64 `json:"last_step_ms"`
	BarrierCells  int     `json:"barrier_cells"`
	UndoDepth     int     `json:"undo_depth"`
	Gesture       string  `json:"gesture"`

	QueueDepth  int    `json:"queue_depth"`
	Subscribers int    `json:"subscribers"`
	Dropped     uint64 `json:"dropped_inputs"`
	Rejected    uint64 `json:"rejected_inputs"`
}

func (c *Controller) Metrics() Metrics {
	c.metricsMu.RLock()
	m := c.metrics
	c.metricsMu.RUnlock()
	m.QueueDepth = len(c.inbox)
	m.Subscribers = c.subscriberCount()
	m.Dropped = c.dropped.Load()
	m.Rejected = c.rejected.Load()
	return m
}

// publishMetrics runs on the loop goroutine.
func (c *Controller) publishMetrics(stepMS float64) {
	omega := c.lat.Omega()
	width := 1
	if c.sess.Thick() {
		width = 3
	}
	m := Metrics{
		ID:            c.cfg.ID,
		Width:         c.lat.Width(),
		Height:        c.lat.Height(),
		Frame:         c.frame.Load(),
		LatticeFrame:  c.lat.Frame(),
		Paused:        c.paused,
		StepsPerFrame: c.stepsPerFrame,
		Stat:          c.stat.String(),
		DrawMode:      c.drawMode.String(),
		LineWidth:     width,
		Omega:         omega,
		Viscosity:     (1/omega - 0.5) / 3,
		LastStepMS:    stepMS,
		BarrierCells:  c.lat.BarrierCount(),
		UndoDepth:     c.sess.History().Depth(),
		Gesture:       c.sess.Mode().String(),
	}
	c.metricsMu.Lock()
	c.metrics = m
	c.metricsMu.Unlock()
}
