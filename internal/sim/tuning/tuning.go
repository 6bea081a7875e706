package tuning

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	Grid Grid `yaml:"grid" json:"grid"`

	// Viscosity is the kinematic viscosity; omega = 1/(3*viscosity + 0.5).
	Viscosity     float64 `yaml:"viscosity" json:"viscosity"`
	TickRateHz    int     `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	StepsPerFrame int     `yaml:"steps_per_frame" json:"steps_per_frame"`
	Workers       int     `yaml:"workers" json:"workers"`
	InboxSize     int     `yaml:"inbox_size" json:"inbox_size"`

	// LineWidth is 1 or 3 cells.
	LineWidth int    `yaml:"line_width" json:"line_width"`
	Stat      string `yaml:"stat" json:"stat"`

	InitialFlow Flow     `yaml:"initial_flow" json:"initial_flow"`
	Obstacle    Obstacle `yaml:"obstacle" json:"obstacle"`

	SnapshotEveryFrames int `yaml:"snapshot_every_frames" json:"snapshot_every_frames"`
}

type Grid struct {
	X int `yaml:"x" json:"x"`
	Y int `yaml:"y" json:"y"`
}

type Flow struct {
	UX  float64 `yaml:"ux" json:"ux"`
	UY  float64 `yaml:"uy" json:"uy"`
	Rho float64 `yaml:"rho" json:"rho"`
}

type Obstacle struct {
	// Preset is one of none, walls, chevron, circle, square, airfoil.
	Preset string `yaml:"preset" json:"preset"`
	// Image, when set, is a PNG whose dark pixels become barrier cells.
	Image     string  `yaml:"image" json:"image,omitempty"`
	Threshold float64 `yaml:"threshold" json:"threshold,omitempty"`
}

func Defaults() Tuning {
	return Tuning{
		Grid:                Grid{X: 200, Y: 200},
		Viscosity:           0.1,
		TickRateHz:          30,
		StepsPerFrame:       15,
		InboxSize:           1024,
		LineWidth:           1,
		Stat:                "curl",
		InitialFlow:         Flow{UX: 0.1, UY: 0, Rho: 1},
		Obstacle:            Obstacle{Preset: "chevron", Threshold: 0.5},
		SnapshotEveryFrames: 9000,
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Omega() float64 { return 1 / (3*t.Viscosity + 0.5) }

func (t Tuning) Thick() bool { return t.LineWidth == 3 }

func (t Tuning) Validate() error {
	var errs []error
	if t.Grid.X <= 0 || t.Grid.Y <= 0 {
		errs = append(errs, fmt.Errorf("grid must be positive, got %dx%d", t.Grid.X, t.Grid.Y))
	}
	if om := t.Omega(); !(om > 0 && om < 2) {
		errs = append(errs, fmt.Errorf("viscosity %v gives omega %v outside (0,2)", t.Viscosity, om))
	}
	if t.TickRateHz <= 0 {
		errs = append(errs, fmt.Errorf("tick_rate_hz must be > 0"))
	}
	if t.StepsPerFrame < 0 {
		errs = append(errs, fmt.Errorf("steps_per_frame must be >= 0"))
	}
	if t.LineWidth != 1 && t.LineWidth != 3 {
		errs = append(errs, fmt.Errorf("line_width must be 1 or 3, got %d", t.LineWidth))
	}
	if t.InitialFlow.Rho <= 0 {
		errs = append(errs, fmt.Errorf("initial_flow.rho must be > 0"))
	}
	if t.Obstacle.Threshold < 0 || t.Obstacle.Threshold > 1 {
		errs = append(errs, fmt.Errorf("obstacle.threshold must be in [0,1]"))
	}
	return errors.Join(errs...)
}

// EnvPrefix namespaces the environment overrides read by ApplyEnv.
const EnvPrefix = "FLOWSCULPT_"

// ApplyEnv overrides fields from FLOWSCULPT_* environment variables, e.g.
// FLOWSCULPT_GRID_X or FLOWSCULPT_VISCOSITY. lookup is usually os.LookupEnv.
func (t *Tuning) ApplyEnv(lookup func(string) (string, bool)) error {
	ints := map[string]*int{
		"GRID_X":                &t.Grid.X,
		"GRID_Y":                &t.Grid.Y,
		"TICK_RATE_HZ":          &t.TickRateHz,
		"STEPS_PER_FRAME":       &t.StepsPerFrame,
		"WORKERS":               &t.Workers,
		"INBOX_SIZE":            &t.InboxSize,
		"LINE_WIDTH":            &t.LineWidth,
		"SNAPSHOT_EVERY_FRAMES": &t.SnapshotEveryFrames,
	}
	floats := map[string]*float64{
		"VISCOSITY":          &t.Viscosity,
		"INITIAL_UX":         &t.InitialFlow.UX,
		"INITIAL_UY":         &t.InitialFlow.UY,
		"INITIAL_RHO":        &t.InitialFlow.Rho,
		"OBSTACLE_THRESHOLD": &t.Obstacle.Threshold,
	}
	strs := map[string]*string{
		"STAT":            &t.Stat,
		"OBSTACLE_PRESET": &t.Obstacle.Preset,
		"OBSTACLE_IMAGE":  &t.Obstacle.Image,
	}

	for k, dst := range ints {
		if v, ok := lookup(EnvPrefix + k); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, k, err)
			}
			*dst = n
		}
	}
	for k, dst := range floats {
		if v, ok := lookup(EnvPrefix + k); ok && strings.TrimSpace(v) != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, k, err)
			}
			*dst = f
		}
	}
	for k, dst := range strs {
		if v, ok := lookup(EnvPrefix + k); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	return t.Validate()
}
