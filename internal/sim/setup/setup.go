// Package setup turns a tuning into a ready-to-run controller.
package setup

import (
	"strings"

	"github.com/sirupsen/logrus"

	"flowsculpt.ai/internal/logging"
	"flowsculpt.ai/internal/sim/barrier"
	"flowsculpt.ai/internal/sim/controller"
	"flowsculpt.ai/internal/sim/history"
	"flowsculpt.ai/internal/sim/lattice"
	"flowsculpt.ai/internal/sim/obstacle"
	"flowsculpt.ai/internal/sim/sculpt"
	"flowsculpt.ai/internal/sim/tuning"
)

// NewController builds the lattice at equilibrium with the initial flow and
// a controller around it. No obstacle is placed; see Seed.
func NewController(id string, tune tuning.Tuning, logger logrus.FieldLogger) (*controller.Controller, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	lat, err := lattice.New(lattice.Config{
		X:       tune.Grid.X,
		Y:       tune.Grid.Y,
		Omega:   tune.Omega(),
		Workers: tune.Workers,
	})
	if err != nil {
		return nil, err
	}
	flow := controller.Flow{UX: tune.InitialFlow.UX, UY: tune.InitialFlow.UY, Rho: tune.InitialFlow.Rho}
	lat.ResetToEquilibrium(flow.UX, flow.UY, flow.Rho)

	stat, err := lattice.ParseStat(tune.Stat)
	if err != nil {
		return nil, err
	}
	sessLog := logger.WithField("component", "sculpt")
	sess := sculpt.New(sculpt.Config{Width: tune.Grid.X, Height: tune.Grid.Y, Thick: tune.Thick()}, history.New(sessLog), sessLog)

	return controller.New(controller.Config{
		ID:                  id,
		TickRateHz:          tune.TickRateHz,
		StepsPerFrame:       tune.StepsPerFrame,
		InboxSize:           tune.InboxSize,
		Stat:                stat,
		DrawMode:            sculpt.ModeDraw,
		InitialFlow:         flow,
		SnapshotEveryFrames: tune.SnapshotEveryFrames,
	}, lat, sess, logger.WithField("component", "controller")), nil
}

// Obstacle renders the configured image, or the preset when no image is set.
func Obstacle(tune tuning.Tuning) (*barrier.Blob, error) {
	if img := strings.TrimSpace(tune.Obstacle.Image); img != "" {
		src, err := obstacle.LoadImage(img)
		if err != nil {
			return nil, err
		}
		return obstacle.FromImage(src, tune.Grid.X, tune.Grid.Y, tune.Obstacle.Threshold), nil
	}
	return obstacle.Preset(tune.Obstacle.Preset, tune.Grid.X, tune.Grid.Y)
}

// Seed places the configured obstacle as the first undoable shape.
func Seed(ctrl *controller.Controller, tune tuning.Tuning) error {
	b, err := Obstacle(tune)
	if err != nil {
		return err
	}
	return ctrl.SeedObstacle(b)
}
