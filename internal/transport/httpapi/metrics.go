package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

// metrics writes the minimal Prometheus exposition format.
func (h *handlers) metrics(c *gin.Context) {
	c.Header("Content-Type", "text/plain; version=0.0.4")
	c.Status(http.StatusOK)
	rw := c.Writer
	m := h.sim.Metrics()
	id := h.sim.ID()

	fmt.Fprintf(rw, "# HELP flowsculpt_frame Completed frames.\n")
	fmt.Fprintf(rw, "# TYPE flowsculpt_frame counter\n")
	fmt.Fprintf(rw, "flowsculpt_frame{sim=%q} %d\n", id, m.Frame)

	fmt.Fprintf(rw, "# HELP flowsculpt_lattice_steps Completed collide+stream steps.\n")
	fmt.Fprintf(rw, "# TYPE flowsculpt_lattice_steps counter\n")
	fmt.Fprintf(rw, "flowsculpt_lattice_steps{sim=%q} %d\n", id, m.LatticeFrame)

	fmt.Fprintf(rw, "# HELP flowsculpt_paused Whether stepping is paused.\n")
	fmt.Fprintf(rw, "# TYPE flowsculpt_paused gauge\n")
	fmt.Fprintf(rw, "flowsculpt_paused{sim=%q} %d\n", id, boolGauge(m.Paused))

	fmt.Fprintf(rw, "# HELP flowsculpt_steps_per_frame Steps run per frame.\n")
	fmt.Fprintf(rw, "# TYPE flowsculpt_steps_per_frame gauge\n")
	fmt.Fprintf(rw, "flowsculpt_steps_per_frame{sim=%q} %d\n", id, m.StepsPerFrame)

	fmt.Fprintf(rw, "# HELP flowsculpt_viscosity Kinematic viscosity.\n")
	fmt.Fprintf(rw, "# TYPE flowsculpt_viscosity gauge\n")
	fmt.Fprintf(rw, "flowsculpt_viscosity{sim=%q} %.6f\n", id, m.Viscosity)

	fmt.Fprintf(rw, "# HELP flowsculpt_frame_ms Last frame duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE flowsculpt_frame_ms gauge\n")
	fmt.Fprintf(rw, "flowsculpt_frame_ms{sim=%q} %.3f\n", id, m.LastStepMS)

	fmt.Fprintf(rw, "# HELP flowsculpt_barrier_cells Barrier cells in the mask.\n")
	fmt.Fprintf(rw, "# TYPE flowsculpt_barrier_cells gauge\n")
	fmt.Fprintf(rw, "flowsculpt_barrier_cells{sim=%q} %d\n", id, m.BarrierCells)

	fmt.Fprintf(rw, "# HELP flowsculpt_undo_depth Committed shapes that can be undone.\n")
	fmt.Fprintf(rw, "# TYPE flowsculpt_undo_depth gauge\n")
	fmt.Fprintf(rw, "flowsculpt_undo_depth{sim=%q} %d\n", id, m.UndoDepth)

	fmt.Fprintf(rw, "# HELP flowsculpt_queue_depth Input queue backlog.\n")
	fmt.Fprintf(rw, "# TYPE flowsculpt_queue_depth gauge\n")
	fmt.Fprintf(rw, "flowsculpt_queue_depth{sim=%q} %d\n", id, m.QueueDepth)

	fmt.Fprintf(rw, "# HELP flowsculpt_subscribers Frame subscribers.\n")
	fmt.Fprintf(rw, "# TYPE flowsculpt_subscribers gauge\n")
	fmt.Fprintf(rw, "flowsculpt_subscribers{sim=%q} %d\n", id, m.Subscribers)

	fmt.Fprintf(rw, "# HELP flowsculpt_inputs_total Inputs not applied, by reason.\n")
	fmt.Fprintf(rw, "# TYPE flowsculpt_inputs_total counter\n")
	fmt.Fprintf(rw, "flowsculpt_inputs_total{sim=%q,result=%q} %d\n", id, "dropped", m.Dropped)
	fmt.Fprintf(rw, "flowsculpt_inputs_total{sim=%q,result=%q} %d\n", id, "rejected", m.Rejected)

	if h.opts.ExtraMetrics != nil {
		h.opts.ExtraMetrics(rw)
	}
}
