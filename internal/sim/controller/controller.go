// Package controller runs the interactive simulation loop. A Controller
// owns the lattice and the sculpting session; both are touched only from
// the goroutine that calls Run, OnFrameTick or StepOnce.
package controller

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"flowsculpt.ai/internal/persistence/snapshot"
	"flowsculpt.ai/internal/sim/barrier"
	"flowsculpt.ai/internal/sim/lattice"
	"flowsculpt.ai/internal/sim/sculpt"
)

var (
	ErrQueueFull = errors.New("input queue full")
	ErrStopped   = errors.New("controller stopped")
)

type Config struct {
	ID            string
	TickRateHz    int
	StepsPerFrame int
	InboxSize     int
	Stat          lattice.Stat
	DrawMode      sculpt.Mode
	InitialFlow   Flow

	// SnapshotEveryFrames sends a snapshot to the sink every N frames
	// (0 disables). The snapshot waits for the first frame with no
	// gesture in progress.
	SnapshotEveryFrames int
}

type FrameLogger interface {
	WriteFrame(entry FrameLogEntry) error
}

// FrameLogEntry records the inputs of one frame and the resulting digest.
type FrameLogEntry struct {
	Frame        uint64    `json:"frame"`
	LatticeFrame uint64    `json:"lattice_frame"`
	Steps        int       `json:"steps"`
	Commands     []Command `json:"commands,omitempty"`
	Rejected     int       `json:"rejected,omitempty"`
	BarrierCells int       `json:"barrier_cells"`
	Digest       string    `json:"digest"`
}

type Controller struct {
	cfg  Config
	lat  *lattice.Lattice
	sess *sculpt.Session
	log  logrus.FieldLogger

	frame atomic.Uint64

	// Loop-owned interaction state.
	drawMode      sculpt.Mode
	stat          lattice.Stat
	paused        bool
	stepsPerFrame int
	snapshotDue   bool

	inbox    chan Command
	snapReqs chan snapshotReq
	stop     chan struct{}
	stopOnce sync.Once

	// Optional (may be nil). Implemented in internal/persistence/*.
	frameLogger  FrameLogger
	snapshotSink chan<- snapshot.SnapshotV1

	subsMu  sync.Mutex
	subs    map[uint64]*Subscription
	nextSub uint64

	metricsMu sync.RWMutex
	metrics   Metrics
	dropped   atomic.Uint64
	rejected  atomic.Uint64
}

func New(cfg Config, lat *lattice.Lattice, sess *sculpt.Session, log logrus.FieldLogger) *Controller {
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 30
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 1024
	}
	if cfg.DrawMode == sculpt.ModeInactive {
		cfg.DrawMode = sculpt.ModeDraw
	}
	if cfg.InitialFlow.Rho == 0 {
		cfg.InitialFlow.Rho = 1
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	if sess == nil {
		sess = sculpt.New(sculpt.Config{Width: lat.Width(), Height: lat.Height()}, nil, log)
	}
	c := &Controller{
		cfg:           cfg,
		lat:           lat,
		sess:          sess,
		log:           log,
		drawMode:      cfg.DrawMode,
		stat:          cfg.Stat,
		stepsPerFrame: cfg.StepsPerFrame,
		inbox:         make(chan Command, cfg.InboxSize),
		snapReqs:      make(chan snapshotReq, 16),
		stop:          make(chan struct{}),
		subs:          map[uint64]*Subscription{},
	}
	c.publishMetrics(0)
	return c
}

func (c *Controller) SetFrameLogger(l FrameLogger) { c.frameLogger = l }

func (c *Controller) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { c.snapshotSink = ch }

func (c *Controller) ID() string { return c.cfg.ID }

func (c *Controller) TickRateHz() int { return c.cfg.TickRateHz }

func (c *Controller) Width() int { return c.lat.Width() }

func (c *Controller) Height() int { return c.lat.Height() }

// Frame is the number of completed frames.
func (c *Controller) Frame() uint64 { return c.frame.Load() }

// OnInput queues a command for the next frame. It never blocks.
func (c *Controller) OnInput(cmd Command) error {
	select {
	case <-c.stop:
		return ErrStopped
	default:
	}
	select {
	case c.inbox <- cmd:
		return nil
	default:
		c.dropped.Add(1)
		return ErrQueueFull
	}
}

func (c *Controller) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(c.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pending []Command
	var pendingSnap []snapshotReq

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stop:
			return nil
		case cmd := <-c.inbox:
			pending = append(pending, cmd)
		case req := <-c.snapReqs:
			pendingSnap = append(pendingSnap, req)
		case <-ticker.C:
			c.stepInternal(pending)
			pendingSnap = c.handleSnapshotRequests(pendingSnap)
			pending = pending[:0]
		}
	}
}

func (c *Controller) Stop() { c.stopOnce.Do(func() { close(c.stop) }) }

// OnFrameTick drains queued input and advances one frame. It is for hosts
// that drive their own clock and must not be mixed with Run.
func (c *Controller) OnFrameTick() {
	var pending []Command
	var pendingSnap []snapshotReq
drain:
	for {
		select {
		case cmd := <-c.inbox:
			pending = append(pending, cmd)
		case req := <-c.snapReqs:
			pendingSnap = append(pendingSnap, req)
		default:
			break drain
		}
	}
	c.stepInternal(pending)
	for _, r := range c.handleSnapshotRequests(pendingSnap) {
		// Still mid-gesture; retry next tick.
		select {
		case c.snapReqs <- r:
		default:
			c.respondSnapshot(r, 0, errSnapshotBusy)
		}
	}
}

// StepOnce advances one frame with cmds using the same ordering as Run.
// It is intended for deterministic replays and tests.
func (c *Controller) StepOnce(cmds []Command) (frame uint64, digest string) {
	c.stepInternal(cmds)
	return c.frame.Load(), c.lat.Digest()
}

// SeedObstacle commits b as one undoable shape and applies it to the
// lattice without advancing a frame. Call it before Run starts.
func (c *Controller) SeedObstacle(b *barrier.Blob) error {
	if b.IsEmpty() {
		return nil
	}
	if !c.sess.History().Commit(barrier.BlobShape(b)) {
		return nil
	}
	if err := c.lat.SetBarrierMask(b.Flatten(c.lat.Width())); err != nil {
		return err
	}
	c.lat.Step(0)
	c.publishMetrics(0)
	return nil
}

// StateDigest hashes the lattice state.
func (c *Controller) StateDigest() string { return c.lat.Digest() }

func (c *Controller) stepInternal(cmds []Command) {
	start := time.Now()
	nowFrame := c.frame.Load() + 1

	edits := barrier.NewBlob()
	rejected := 0
	for _, cmd := range cmds {
		if err := c.apply(cmd, edits); err != nil {
			rejected++
			c.log.WithError(err).WithFields(logrus.Fields{
				"frame": nowFrame,
				"kind":  cmd.Kind,
			}).Debug("command rejected")
		}
	}
	edits.Join(c.sess.Flush())
	if !edits.IsEmpty() {
		if err := c.lat.SetBarrierMask(edits.Flatten(c.lat.Width())); err != nil {
			// Commands are clamped to the grid, so this is a bug.
			c.log.WithError(err).WithField("frame", nowFrame).Error("barrier edit rejected")
		}
	}
	if rejected > 0 {
		c.rejected.Add(uint64(rejected))
	}

	steps := c.stepsPerFrame
	if c.paused {
		steps = 0
	}
	c.lat.Step(steps)
	c.frame.Store(nowFrame)

	c.publishFrame(nowFrame)

	if c.frameLogger != nil {
		entry := FrameLogEntry{
			Frame:        nowFrame,
			LatticeFrame: c.lat.Frame(),
			Steps:        steps,
			Commands:     append([]Command(nil), cmds...),
			Rejected:     rejected,
			BarrierCells: c.lat.BarrierCount(),
			Digest:       c.lat.Digest(),
		}
		if err := c.frameLogger.WriteFrame(entry); err != nil {
			c.log.WithError(err).WithField("frame", nowFrame).Warn("frame log write failed")
		}
	}

	if c.snapshotSink != nil && c.cfg.SnapshotEveryFrames > 0 && nowFrame%uint64(c.cfg.SnapshotEveryFrames) == 0 {
		c.snapshotDue = true
	}
	if c.snapshotDue && c.idle() {
		c.snapshotDue = false
		select {
		case c.snapshotSink <- c.ExportSnapshot():
		default:
			// Drop snapshot if sink is backed up.
			c.log.WithField("frame", nowFrame).Warn("snapshot sink full, dropped")
		}
	}

	c.publishMetrics(float64(time.Since(start).Microseconds()) / 1000.0)
}

// idle reports whether no gesture or pending line anchor would be lost by
// a snapshot taken now.
func (c *Controller) idle() bool {
	_, anchored := c.sess.PendingAnchor()
	return !c.sess.Active() && !anchored
}
