package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults_Valid(t *testing.T) {
	d := Defaults()
	if err := d.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if got := d.Omega(); got < 1.24 || got > 1.26 {
		t.Fatalf("omega for viscosity 0.1: got %v want 1.25", got)
	}
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	body := "grid:\n  x: 64\n  y: 32\nsteps_per_frame: 4\nline_width: 3\nobstacle:\n  preset: walls\n"
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tu, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tu.Grid.X != 64 || tu.Grid.Y != 32 || tu.StepsPerFrame != 4 || !tu.Thick() {
		t.Fatalf("unexpected tuning: %+v", tu)
	}
	if tu.TickRateHz != 30 || tu.Viscosity != 0.1 {
		t.Fatalf("defaults lost: %+v", tu)
	}
	if tu.Obstacle.Preset != "walls" || tu.Obstacle.Threshold != 0.5 {
		t.Fatalf("obstacle: %+v", tu.Obstacle)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(p, []byte("viscosity: -0.2\nline_width: 2\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := Load(filepath.Join(dir, "missing.yaml")); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"FLOWSCULPT_GRID_X":          "120",
		"FLOWSCULPT_VISCOSITY":       "0.02",
		"FLOWSCULPT_OBSTACLE_PRESET": " circle ",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	tu := Defaults()
	if err := tu.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if tu.Grid.X != 120 || tu.Viscosity != 0.02 || tu.Obstacle.Preset != "circle" {
		t.Fatalf("env not applied: %+v", tu)
	}

	env["FLOWSCULPT_STEPS_PER_FRAME"] = "many"
	if err := tu.ApplyEnv(lookup); err == nil {
		t.Fatalf("expected parse error")
	}
}
