package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"flowsculpt.ai/internal/logging"
	"flowsculpt.ai/internal/sim/controller"
	"flowsculpt.ai/internal/sim/setup"
	"flowsculpt.ai/internal/sim/tuning"
)

func main() {
	var (
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		gridX      = flag.Int("x", 0, "grid width (overrides tuning)")
		gridY      = flag.Int("y", 0, "grid height (overrides tuning)")
		logFile    = flag.String("log_file", "", "write logs here (the terminal is taken by the viewer)")
		logLevel   = flag.String("log_level", "info", "log level")
	)
	flag.Parse()

	_ = godotenv.Load()

	logger := logging.Discard()
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintln(os.Stderr, "open log file:", err)
			os.Exit(1)
		}
		defer f.Close()
		logger, _ = logging.NewWithOutput(f, *logLevel, "text")
	}

	tune, err := loadTuning(*configDir, *tuningPath, *gridX, *gridY)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tuning:", err)
		os.Exit(1)
	}

	ctrl, err := setup.NewController("viewer", tune, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "controller:", err)
		os.Exit(1)
	}
	if err := setup.Seed(ctrl, tune); err != nil {
		fmt.Fprintln(os.Stderr, "obstacle:", err)
		os.Exit(1)
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintln(os.Stderr, "screen:", err)
		os.Exit(1)
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintln(os.Stderr, "screen:", err)
		os.Exit(1)
	}
	screen.EnableMouse(tcell.MouseDragEvents)
	screen.HideCursor()

	err = run(screen, ctrl, logger)
	screen.Fini()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadTuning(configDir, path string, x, y int) (tuning.Tuning, error) {
	if strings.TrimSpace(path) == "" {
		path = filepath.Join(configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return tune, err
		}
		tune = tuning.Defaults()
	}
	if x > 0 {
		tune.Grid.X = x
	}
	if y > 0 {
		tune.Grid.Y = y
	}
	if err := tune.ApplyEnv(os.LookupEnv); err != nil {
		return tune, err
	}
	return tune, nil
}

// run drives the controller on its own ticker and redraws on every frame
// until the user quits.
func run(screen tcell.Screen, ctrl *controller.Controller, log logrus.FieldLogger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := ctrl.Subscribe(controller.SubscribeOptions{Buffer: 1})
	if err != nil {
		return err
	}
	defer ctrl.Unsubscribe(sub.ID)

	runErr := make(chan error, 1)
	go func() { runErr <- ctrl.Run(ctx) }()

	events := make(chan tcell.Event, 100)
	quit := make(chan struct{})
	go screen.ChannelEvents(events, quit)
	defer close(quit)

	v := newView(screen, ctrl)
	v.draw()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !v.handleEvent(ev) {
				return nil
			}
			v.draw()
		case f := <-sub.C:
			v.frame = f
			v.draw()
		case err := <-runErr:
			log.WithError(err).Error("controller stopped")
			return err
		}
	}
}
