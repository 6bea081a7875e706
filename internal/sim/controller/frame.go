package controller

import (
	"flowsculpt.ai/internal/sim/lattice"
)

// Frame is what observers receive after each completed frame. It is shared
// between subscribers and must be treated as read-only.
type Frame struct {
	Number       uint64
	LatticeFrame uint64
	Paused       bool
	Field        lattice.ScalarField
	// Mask is the committed barrier mask, row-major from the south edge.
	Mask []bool
}

type SubscribeOptions struct {
	// Stat overrides the controller's statistic for this subscriber.
	// "" follows the controller.
	Stat string
	// EveryN delivers one frame in N (0 and 1 deliver every frame).
	EveryN int
	// Buffer is the channel capacity; the oldest frame is dropped when full.
	Buffer int
}

type Subscription struct {
	ID uint64
	C  <-chan *Frame

	ch     chan *Frame
	follow bool
	stat   lattice.Stat
	every  uint64
}

// Subscribe registers an observer. It is safe to call from any goroutine.
func (c *Controller) Subscribe(opts SubscribeOptions) (*Subscription, error) {
	s := &Subscription{follow: opts.Stat == "", every: 1}
	if !s.follow {
		st, err := lattice.ParseStat(opts.Stat)
		if err != nil {
			return nil, err
		}
		s.stat = st
	}
	if opts.EveryN > 1 {
		s.every = uint64(opts.EveryN)
	}
	buf := opts.Buffer
	if buf <= 0 {
		buf = 2
	}
	s.ch = make(chan *Frame, buf)
	s.C = s.ch

	c.subsMu.Lock()
	c.nextSub++
	s.ID = c.nextSub
	c.subs[s.ID] = s
	c.subsMu.Unlock()
	return s, nil
}

// Unsubscribe removes an observer. Its channel is not closed; readers stop
// by their own means.
func (c *Controller) Unsubscribe(id uint64) {
	c.subsMu.Lock()
	delete(c.subs, id)
	c.subsMu.Unlock()
}

func (c *Controller) subscriberCount() int {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	return len(c.subs)
}

// publishFrame computes each requested statistic once and fans the frame
// out to subscribers.
func (c *Controller) publishFrame(nowFrame uint64) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	if len(c.subs) == 0 {
		return
	}

	var mask []bool
	byStat := map[lattice.Stat]*Frame{}
	for _, s := range c.subs {
		if nowFrame%s.every != 0 {
			continue
		}
		st := s.stat
		if s.follow {
			st = c.stat
		}
		f := byStat[st]
		if f == nil {
			if mask == nil {
				mask = c.lat.BarrierMask()
			}
			f = &Frame{
				Number:       nowFrame,
				LatticeFrame: c.lat.Frame(),
				Paused:       c.paused,
				Field:        c.lat.ComputeDerivedField(st),
				Mask:         mask,
			}
			byStat[st] = f
		}
		sendLatest(s.ch, f)
	}
}

// sendLatest delivers v, dropping the oldest queued value if ch is full.
func sendLatest[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
