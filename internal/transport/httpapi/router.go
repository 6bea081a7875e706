// Package httpapi exposes health, metrics and control endpoints for a
// running simulation.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"flowsculpt.ai/internal/protocol"
	"flowsculpt.ai/internal/sim/controller"
	"flowsculpt.ai/internal/sim/lattice"
	"flowsculpt.ai/internal/sim/sculpt"
)

// Simulation is the part of controller.Controller the API needs.
type Simulation interface {
	ID() string
	Metrics() controller.Metrics
	OnInput(cmd controller.Command) error
	RequestSnapshot(ctx context.Context) (uint64, error)
}

type Options struct {
	// Stream, when set, is mounted at GET /v1/stream.
	Stream http.Handler
	// ExtraMetrics appends Prometheus lines to /metrics.
	ExtraMetrics func(w io.Writer)
	// SnapshotTimeout bounds POST /v1/snapshot (default 5s).
	SnapshotTimeout time.Duration
}

type handlers struct {
	sim  Simulation
	opts Options
	log  logrus.FieldLogger
}

func NewRouter(sim Simulation, opts Options, log logrus.FieldLogger) *gin.Engine {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	if opts.SnapshotTimeout <= 0 {
		opts.SnapshotTimeout = 5 * time.Second
	}
	h := &handlers{sim: sim, opts: opts, log: log}

	r := gin.New()
	r.Use(gin.Recovery(), accessLog(log))

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", h.metrics)

	v1 := r.Group("/v1")
	v1.GET("/state", h.state)
	v1.POST("/undo", h.undo)
	v1.POST("/clear", h.clear)
	v1.POST("/pause", h.pause)
	v1.POST("/viscosity", h.viscosity)
	v1.POST("/steps", h.steps)
	v1.POST("/stat", h.stat)
	v1.POST("/equilibrium", h.equilibrium)
	v1.POST("/mode", h.mode)
	v1.POST("/snapshot", h.snapshot)
	if opts.Stream != nil {
		v1.GET("/stream", gin.WrapH(opts.Stream))
	}
	return r
}

func accessLog(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"status": c.Writer.Status(),
			"ms":     float64(time.Since(start).Microseconds()) / 1000.0,
		}).Debug("http request")
	}
}

func errorResponse(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"ok": false, "code": code, "error": message})
}

// enqueue queues cmd and answers 202 with the frame it will land after.
func (h *handlers) enqueue(c *gin.Context, cmds ...controller.Command) {
	for _, cmd := range cmds {
		if err := h.sim.OnInput(cmd); err != nil {
			switch {
			case errors.Is(err, controller.ErrQueueFull):
				errorResponse(c, http.StatusServiceUnavailable, protocol.ErrQueueFull, err.Error())
			case errors.Is(err, controller.ErrStopped):
				errorResponse(c, http.StatusServiceUnavailable, protocol.ErrUnavailable, err.Error())
			default:
				h.log.WithError(err).Error("enqueue failed")
				errorResponse(c, http.StatusInternalServerError, protocol.ErrInternal, "unexpected error")
			}
			return
		}
	}
	c.JSON(http.StatusAccepted, gin.H{"ok": true, "frame": h.sim.Metrics().Frame + 1})
}

func (h *handlers) state(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sim_id": h.sim.ID(), "metrics": h.sim.Metrics()})
}

func (h *handlers) undo(c *gin.Context) {
	var body struct {
		Count int `json:"count"`
	}
	if !bindOptional(c, &body) {
		return
	}
	n := body.Count
	if n <= 0 {
		n = 1
	}
	if n > 64 {
		errorResponse(c, http.StatusBadRequest, protocol.ErrBadRequest, "count must be at most 64")
		return
	}
	cmds := make([]controller.Command, n)
	for i := range cmds {
		cmds[i] = controller.Command{Kind: controller.KindUndo}
	}
	h.enqueue(c, cmds...)
}

func (h *handlers) clear(c *gin.Context) {
	h.enqueue(c, controller.Command{Kind: controller.KindClearBarrier})
}

func (h *handlers) pause(c *gin.Context) {
	var body struct {
		Paused *bool `json:"paused"`
	}
	if !bindOptional(c, &body) {
		return
	}
	if body.Paused == nil {
		h.enqueue(c, controller.Command{Kind: controller.KindTogglePause})
		return
	}
	h.enqueue(c, controller.Command{Kind: controller.KindSetPaused, On: *body.Paused})
}

func (h *handlers) viscosity(c *gin.Context) {
	var body struct {
		Value float64 `json:"value" binding:"required"`
	}
	if !bindRequired(c, &body) {
		return
	}
	if body.Value <= 0 {
		errorResponse(c, http.StatusBadRequest, protocol.ErrBadRequest, "viscosity must be > 0")
		return
	}
	if err := lattice.ValidateOmega(lattice.OmegaForViscosity(body.Value)); err != nil {
		errorResponse(c, http.StatusBadRequest, protocol.ErrBadRequest, err.Error())
		return
	}
	h.enqueue(c, controller.Command{Kind: controller.KindSetViscosity, Value: body.Value})
}

func (h *handlers) steps(c *gin.Context) {
	var body struct {
		Value *int `json:"value" binding:"required"`
	}
	if !bindRequired(c, &body) {
		return
	}
	if *body.Value < 0 || *body.Value > controller.MaxStepsPerFrame {
		errorResponse(c, http.StatusBadRequest, protocol.ErrBadRequest, fmt.Sprintf("steps must be in 0..%d", controller.MaxStepsPerFrame))
		return
	}
	h.enqueue(c, controller.Command{Kind: controller.KindSetStepsPerFrame, Value: float64(*body.Value)})
}

func (h *handlers) stat(c *gin.Context) {
	var body struct {
		Stat string `json:"stat" binding:"required"`
	}
	if !bindRequired(c, &body) {
		return
	}
	if _, err := lattice.ParseStat(body.Stat); err != nil {
		errorResponse(c, http.StatusBadRequest, protocol.ErrBadRequest, err.Error())
		return
	}
	h.enqueue(c, controller.Command{Kind: controller.KindSetStat, Stat: body.Stat})
}

func (h *handlers) equilibrium(c *gin.Context) {
	var body struct {
		UX  float64  `json:"ux"`
		UY  float64  `json:"uy"`
		Rho *float64 `json:"rho"`
	}
	if !bindOptional(c, &body) {
		return
	}
	cmd := controller.Command{Kind: controller.KindResetEquilibrium}
	if body.Rho != nil {
		if *body.Rho <= 0 {
			errorResponse(c, http.StatusBadRequest, protocol.ErrBadRequest, "rho must be > 0")
			return
		}
		cmd.Flow = &controller.Flow{UX: body.UX, UY: body.UY, Rho: *body.Rho}
	}
	h.enqueue(c, cmd)
}

func (h *handlers) mode(c *gin.Context) {
	var body struct {
		Mode      string `json:"mode"`
		LineWidth int    `json:"line_width"`
	}
	if !bindRequired(c, &body) {
		return
	}
	var cmds []controller.Command
	if body.Mode != "" {
		if _, err := sculpt.ParseMode(body.Mode); err != nil {
			errorResponse(c, http.StatusBadRequest, protocol.ErrBadRequest, err.Error())
			return
		}
		cmds = append(cmds, controller.Command{Kind: controller.KindSetMode, Mode: body.Mode})
	}
	if body.LineWidth != 0 {
		if body.LineWidth != 1 && body.LineWidth != 3 {
			errorResponse(c, http.StatusBadRequest, protocol.ErrBadRequest, "line_width must be 1 or 3")
			return
		}
		cmds = append(cmds, controller.Command{Kind: controller.KindSetLineWidth, Value: float64(body.LineWidth)})
	}
	if len(cmds) == 0 {
		errorResponse(c, http.StatusBadRequest, protocol.ErrBadRequest, "mode or line_width required")
		return
	}
	h.enqueue(c, cmds...)
}

func (h *handlers) snapshot(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.opts.SnapshotTimeout)
	defer cancel()
	frame, err := h.sim.RequestSnapshot(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "code": protocol.ErrUnavailable, "frame": frame, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "frame": frame})
}

func bindRequired(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		errorResponse(c, http.StatusBadRequest, protocol.ErrBadRequest, err.Error())
		return false
	}
	return true
}

// bindOptional accepts an empty body.
func bindOptional(c *gin.Context, v any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return bindRequired(c, v)
}
