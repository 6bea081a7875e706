package controller

import (
	"context"
	"errors"
	"fmt"

	"flowsculpt.ai/internal/persistence/snapshot"
	"flowsculpt.ai/internal/sim/barrier"
	"flowsculpt.ai/internal/sim/encoding"
	"flowsculpt.ai/internal/sim/history"
	"flowsculpt.ai/internal/sim/lattice"
	"flowsculpt.ai/internal/sim/sculpt"
)

var (
	ErrNoSnapshotSink = errors.New("snapshot sink not configured")
	ErrSnapshotDrop   = errors.New("snapshot sink full")
	errSnapshotBusy   = errors.New("snapshot request backlog full")
)

type snapshotReq struct {
	Resp chan snapshotResp
}

type snapshotResp struct {
	Frame uint64
	Err   error
}

// RequestSnapshot asks the loop goroutine to send a snapshot to the sink.
// It is safe to call from other goroutines (e.g. HTTP handlers). The
// snapshot is taken at the first frame with no gesture in progress.
func (c *Controller) RequestSnapshot(ctx context.Context) (frame uint64, err error) {
	req := snapshotReq{Resp: make(chan snapshotResp, 1)}
	select {
	case c.snapReqs <- req:
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-c.stop:
		return 0, ErrStopped
	}
	select {
	case r := <-req.Resp:
		return r.Frame, r.Err
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-c.stop:
		return 0, ErrStopped
	}
}

// handleSnapshotRequests answers reqs and returns those that have to wait
// for the current gesture to end.
func (c *Controller) handleSnapshotRequests(reqs []snapshotReq) []snapshotReq {
	if len(reqs) == 0 {
		return reqs
	}
	if c.snapshotSink == nil {
		for _, r := range reqs {
			c.respondSnapshot(r, 0, ErrNoSnapshotSink)
		}
		return reqs[:0]
	}
	if !c.idle() {
		return reqs
	}
	snap := c.ExportSnapshot()
	var err error
	select {
	case c.snapshotSink <- snap:
	default:
		err = ErrSnapshotDrop
	}
	for _, r := range reqs {
		c.respondSnapshot(r, snap.Header.Frame, err)
	}
	return reqs[:0]
}

func (c *Controller) respondSnapshot(r snapshotReq, frame uint64, err error) {
	if r.Resp == nil {
		return
	}
	select {
	case r.Resp <- snapshotResp{Frame: frame, Err: err}:
	default:
		// Client timed out; don't block the loop.
	}
}

// ExportSnapshot captures lattice, history and controller parameters. An
// in-progress gesture is not included.
func (c *Controller) ExportSnapshot() snapshot.SnapshotV1 {
	st := c.lat.Export()
	hs := c.sess.History().Export()

	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			SimID:   c.cfg.ID,
			Frame:   c.frame.Load(),
			X:       st.X,
			Y:       st.Y,
		},
		Omega:         st.Omega,
		LatticeFrame:  st.Frame,
		F0:            st.F0,
		F1:            st.F1,
		Barrier:       encoding.EncodeMask(st.Barrier),
		TickRateHz:    c.cfg.TickRateHz,
		StepsPerFrame: c.stepsPerFrame,
		Stat:          c.stat.String(),
		Paused:        c.paused,
		DrawMode:      c.drawMode.String(),
		Thick:         c.sess.Thick(),
		InitialFlow:   snapshot.FlowV1{UX: c.cfg.InitialFlow.UX, UY: c.cfg.InitialFlow.UY, Rho: c.cfg.InitialFlow.Rho},
	}
	for _, s := range hs.Stacks {
		snap.Stacks = append(snap.Stacks, snapshot.StackV1{X: s.Cell.X, Y: s.Cell.Y, Values: s.Values})
	}
	for _, e := range hs.Undo {
		u := snapshot.UndoV1{Kind: uint8(e.Kind), Points: make([]snapshot.PointV1, 0, len(e.Points))}
		for _, p := range e.Points {
			u.Points = append(u.Points, snapshot.PointV1{X: p.X, Y: p.Y, Present: p.Present})
		}
		snap.Undo = append(snap.Undo, u)
	}
	return snap
}

// ImportSnapshot replaces the controller state with snap. Grid dimensions
// must match the lattice. Call it before Run starts or from the loop
// goroutine.
func (c *Controller) ImportSnapshot(snap snapshot.SnapshotV1) error {
	n := snap.Header.X * snap.Header.Y
	mask, err := encoding.DecodeMask(snap.Barrier, n)
	if err != nil {
		return fmt.Errorf("barrier: %w", err)
	}
	stat, err := lattice.ParseStat(snap.Stat)
	if err != nil {
		return err
	}
	mode, err := sculpt.ParseMode(snap.DrawMode)
	if err != nil {
		return err
	}
	if snap.StepsPerFrame < 0 || snap.StepsPerFrame > MaxStepsPerFrame {
		return fmt.Errorf("%w: steps per frame %d", ErrBadArgument, snap.StepsPerFrame)
	}
	err = c.lat.Import(lattice.State{
		X:       snap.Header.X,
		Y:       snap.Header.Y,
		Omega:   snap.Omega,
		Frame:   snap.LatticeFrame,
		F0:      snap.F0,
		F1:      snap.F1,
		Barrier: mask,
	})
	if err != nil {
		return err
	}

	var hs history.State
	for _, s := range snap.Stacks {
		hs.Stacks = append(hs.Stacks, history.Stack{Cell: barrier.Cell{X: s.X, Y: s.Y}, Values: s.Values})
	}
	for _, u := range snap.Undo {
		e := history.Entry{Kind: barrier.ShapeKind(u.Kind), Points: make([]barrier.Point, 0, len(u.Points))}
		for _, p := range u.Points {
			e.Points = append(e.Points, barrier.Point{Cell: barrier.Cell{X: p.X, Y: p.Y}, Present: p.Present})
		}
		hs.Undo = append(hs.Undo, e)
	}
	c.sess.ClearAll()
	c.sess.History().Import(hs)
	c.sess.SetThick(snap.Thick)

	if snap.InitialFlow.Rho > 0 {
		c.cfg.InitialFlow = Flow{UX: snap.InitialFlow.UX, UY: snap.InitialFlow.UY, Rho: snap.InitialFlow.Rho}
	}
	c.frame.Store(snap.Header.Frame)
	c.stat = stat
	c.drawMode = mode
	c.paused = snap.Paused
	c.stepsPerFrame = snap.StepsPerFrame
	c.snapshotDue = false
	c.publishMetrics(0)
	return nil
}
