package protocol

// SUBSCRIBE (client -> server)
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// Stat is curl, speed, density, ux or uy; empty follows the simulation.
	Stat         string `json:"stat,omitempty"`
	EveryNFrames int    `json:"every_n_frames,omitempty"`
	// NoField skips the scalar field and sends only the barrier mask.
	NoField bool `json:"no_field,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	SimID           string     `json:"sim_id"`
	SessionID       string     `json:"session_id"`
	Grid            GridParams `json:"grid"`
	TickRateHz      int        `json:"tick_rate_hz"`
	StepsPerFrame   int        `json:"steps_per_frame"`
	Stat            string     `json:"stat,omitempty"`
	EveryNFrames    int        `json:"every_n_frames"`
	Encoding        Encodings  `json:"encoding"`
}

type GridParams struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type Encodings struct {
	Field   string `json:"field"`
	Barrier string `json:"barrier"`
}

// FRAME (server -> client)
type FrameMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Frame           uint64  `json:"frame"`
	LatticeFrame    uint64  `json:"lattice_frame"`
	Paused          bool    `json:"paused,omitempty"`
	Stat            string  `json:"stat"`
	Min             float64 `json:"min"`
	Max             float64 `json:"max"`
	// Field is row-major from the south edge, see WelcomeMsg.Encoding.
	Field   string `json:"field,omitempty"`
	Barrier string `json:"barrier"`
}

// INPUT (client -> server)
type InputMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Commands        []InputCommand `json:"commands"`
}

type InputCommand struct {
	Kind  string     `json:"kind"`
	X     int        `json:"x,omitempty"`
	Y     int        `json:"y,omitempty"`
	Mode  string     `json:"mode,omitempty"`
	Value float64    `json:"value,omitempty"`
	On    bool       `json:"on,omitempty"`
	Stat  string     `json:"stat,omitempty"`
	Flow  *InputFlow `json:"flow,omitempty"`
}

type InputFlow struct {
	UX  float64 `json:"ux"`
	UY  float64 `json:"uy"`
	Rho float64 `json:"rho"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewError(code, message string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: code, Message: message}
}
