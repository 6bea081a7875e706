package protocol_test

import (
	"testing"

	"flowsculpt.ai/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	ok := []string{
		`{"type":"INPUT","protocol_version":"1.0","commands":[{"kind":"POINTER_DOWN","x":3,"y":4,"mode":"erase"},{"kind":"POINTER_UP"}]}`,
		`{"type":"INPUT","commands":[{"kind":"SET_VISCOSITY","value":0.02}]}`,
		`{"type":"INPUT","commands":[{"kind":"RESET_EQUILIBRIUM","flow":{"ux":0.1,"uy":0,"rho":1}}]}`,
		`{"type":"INPUT","commands":[{"kind":"SET_STAT","stat":"speed"},{"kind":"UNDO"}]}`,
	}
	for _, s := range ok {
		if err := protocol.ValidateInput([]byte(s)); err != nil {
			t.Fatalf("validate %s: %v", s, err)
		}
	}

	bad := []string{
		`{"type":"INPUT","commands":[]}`,
		`{"type":"INPUT","commands":[{"kind":"TELEPORT"}]}`,
		`{"type":"INPUT","commands":[{"kind":"POINTER_MOVE","x":1}]}`,
		`{"type":"INPUT","commands":[{"kind":"SET_MODE","mode":"spray"}]}`,
		`{"type":"INPUT","commands":[{"kind":"UNDO","extra":1}]}`,
		`{"type":"INPUT","commands":[{"kind":"POINTER_DOWN","x":1.5,"y":2}]}`,
		`{"type":"INPUT","commands":[{"kind":"RESET_EQUILIBRIUM","flow":{"ux":0,"uy":0,"rho":0}}]}`,
		`{"type":"FRAME","commands":[{"kind":"UNDO"}]}`,
		`not json`,
	}
	for _, s := range bad {
		if err := protocol.ValidateInput([]byte(s)); err == nil {
			t.Fatalf("expected rejection: %s", s)
		}
	}
}

func TestSchemas_Subscribe(t *testing.T) {
	if err := protocol.ValidateSubscribe([]byte(`{"type":"SUBSCRIBE","protocol_version":"1.0","stat":"density","every_n_frames":2}`)); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := protocol.ValidateSubscribe([]byte(`{"type":"SUBSCRIBE","protocol_version":"1.0","every_n_frames":-1}`)); err == nil {
		t.Fatalf("expected negative every_n_frames rejected")
	}
	if err := protocol.ValidateSubscribe([]byte(`{"type":"SUBSCRIBE"}`)); err == nil {
		t.Fatalf("expected missing protocol_version rejected")
	}
}

func TestDecodeBase(t *testing.T) {
	m, err := protocol.DecodeBase([]byte(`{"type":"INPUT","protocol_version":"1.0","commands":[]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Type != protocol.TypeInput || m.ProtocolVersion != protocol.Version {
		t.Fatalf("base: %+v", m)
	}
}
