// Package stream serves the live simulation over a websocket: frames out,
// user input in.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"flowsculpt.ai/internal/protocol"
	"flowsculpt.ai/internal/sim/controller"
	"flowsculpt.ai/internal/sim/encoding"
)

// Simulation is the part of controller.Controller the stream needs.
type Simulation interface {
	ID() string
	Width() int
	Height() int
	TickRateHz() int
	Metrics() controller.Metrics
	Subscribe(opts controller.SubscribeOptions) (*controller.Subscription, error)
	Unsubscribe(id uint64)
	OnInput(cmd controller.Command) error
}

type Config struct {
	// AllowRemote accepts non-loopback clients.
	AllowRemote bool
	// ReadOnly rejects INPUT messages.
	ReadOnly bool
}

type Server struct {
	sim Simulation
	cfg Config
	log logrus.FieldLogger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	active   atomic.Int64
}

func NewServer(sim Simulation, cfg Config, log logrus.FieldLogger) *Server {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Server{
		sim: sim,
		cfg: cfg,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 256 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Active is the number of connected sessions.
func (s *Server) Active() int64 { return s.active.Load() }

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.cfg.AllowRemote && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil || base.Type != protocol.TypeSubscribe {
			closeWith(conn, websocket.ClosePolicyViolation, "expected SUBSCRIBE")
			return
		}
		if base.ProtocolVersion != protocol.Version {
			writeJSON(conn, protocol.NewError(protocol.ErrProtoVersion, "want protocol_version "+protocol.Version))
			closeWith(conn, websocket.ClosePolicyViolation, "protocol version")
			return
		}
		if err := protocol.ValidateSubscribe(msg); err != nil {
			writeJSON(conn, protocol.NewError(protocol.ErrProtoBadRequest, err.Error()))
			closeWith(conn, websocket.ClosePolicyViolation, "bad subscribe")
			return
		}
		var sub protocol.SubscribeMsg
		_ = json.Unmarshal(msg, &sub)
		normalizeSubscribe(&sub)

		subscription, err := s.sim.Subscribe(controller.SubscribeOptions{Stat: sub.Stat, EveryN: sub.EveryNFrames, Buffer: 2})
		if err != nil {
			writeJSON(conn, protocol.NewError(protocol.ErrBadRequest, err.Error()))
			closeWith(conn, websocket.ClosePolicyViolation, "bad subscribe")
			return
		}
		defer s.sim.Unsubscribe(subscription.ID)

		sid := fmt.Sprintf("S%d", s.nextID.Add(1))
		log := s.log.WithField("session", sid)
		s.active.Add(1)
		defer s.active.Add(-1)

		m := s.sim.Metrics()
		writeJSON(conn, protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			SimID:           s.sim.ID(),
			SessionID:       sid,
			Grid:            protocol.GridParams{X: s.sim.Width(), Y: s.sim.Height()},
			TickRateHz:      s.sim.TickRateHz(),
			StepsPerFrame:   m.StepsPerFrame,
			Stat:            sub.Stat,
			EveryNFrames:    sub.EveryNFrames,
			Encoding:        protocol.Encodings{Field: protocol.FieldEncoding, Barrier: protocol.BarrierEncoding},
		})
		log.WithFields(logrus.Fields{"stat": sub.Stat, "every": sub.EveryNFrames}).Info("stream subscribed")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		replies := make(chan []byte, 16)

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				var b []byte
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case f := <-subscription.C:
					b = encodeFrame(f, sub.NoField)
				case b = <-replies:
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					writeErr <- err
					cancel()
					return
				}
			}
		}()

		reply := func(code, message string) {
			b, _ := json.Marshal(protocol.NewError(code, message))
			select {
			case replies <- b:
			default:
				// Client is not reading; drop.
			}
		}

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				reply(protocol.ErrProtoBadRequest, "bad json")
				continue
			}
			switch base.Type {
			case protocol.TypeInput:
				if err := s.handleInput(msg); err != nil {
					log.WithError(err).Debug("input rejected")
					reply(inputErrorCode(err), err.Error())
				}
			case protocol.TypeSubscribe:
				reply(protocol.ErrBadRequest, "already subscribed")
			default:
				reply(protocol.ErrProtoBadRequest, "unknown message type")
			}
		}

		cancel()
		closeWith(conn, websocket.CloseNormalClosure, "bye")

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		log.Info("stream closed")
	}
}

var errReadOnly = errors.New("stream is read-only")

type schemaError struct{ err error }

func (e schemaError) Error() string { return e.err.Error() }

func (s *Server) handleInput(msg []byte) error {
	if s.cfg.ReadOnly {
		return errReadOnly
	}
	if err := protocol.ValidateInput(msg); err != nil {
		return schemaError{err}
	}
	var in protocol.InputMsg
	if err := json.Unmarshal(msg, &in); err != nil {
		return schemaError{err}
	}
	for _, c := range in.Commands {
		if err := s.sim.OnInput(ToCommand(c)); err != nil {
			return err
		}
	}
	return nil
}

func inputErrorCode(err error) string {
	var se schemaError
	switch {
	case errors.As(err, &se):
		return protocol.ErrProtoBadRequest
	case errors.Is(err, controller.ErrQueueFull):
		return protocol.ErrQueueFull
	case errors.Is(err, controller.ErrStopped), errors.Is(err, errReadOnly):
		return protocol.ErrUnavailable
	default:
		return protocol.ErrInternal
	}
}

// ToCommand converts a wire command. It does no validation.
func ToCommand(c protocol.InputCommand) controller.Command {
	cmd := controller.Command{
		Kind:  controller.Kind(c.Kind),
		X:     c.X,
		Y:     c.Y,
		Mode:  c.Mode,
		Value: c.Value,
		On:    c.On,
		Stat:  c.Stat,
	}
	if c.Flow != nil {
		cmd.Flow = &controller.Flow{UX: c.Flow.UX, UY: c.Flow.UY, Rho: c.Flow.Rho}
	}
	return cmd
}

func encodeFrame(f *controller.Frame, noField bool) []byte {
	msg := protocol.FrameMsg{
		Type:            protocol.TypeFrame,
		ProtocolVersion: protocol.Version,
		Frame:           f.Number,
		LatticeFrame:    f.LatticeFrame,
		Paused:          f.Paused,
		Stat:            f.Field.Stat.String(),
		Min:             f.Field.Min,
		Max:             f.Field.Max,
		Barrier:         encoding.EncodeMask(f.Mask),
	}
	if !noField {
		msg.Field = encoding.EncodeField(f.Field.Values)
	}
	b, _ := json.Marshal(msg)
	return b
}

func normalizeSubscribe(sub *protocol.SubscribeMsg) {
	if sub.EveryNFrames <= 0 {
		sub.EveryNFrames = 1
	}
}

func writeJSON(conn *websocket.Conn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_ = conn.WriteMessage(websocket.TextMessage, b)
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
