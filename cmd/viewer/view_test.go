package main

import (
	"strings"
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowsculpt.ai/internal/sim/controller"
	"flowsculpt.ai/internal/sim/setup"
	"flowsculpt.ai/internal/sim/tuning"
)

func newTestView(t *testing.T, cols, rows int) (*view, *controller.Controller, tcell.SimulationScreen) {
	t.Helper()
	tune := tuning.Defaults()
	tune.Grid = tuning.Grid{X: 40, Y: 40}
	tune.StepsPerFrame = 1
	tune.Obstacle.Preset = "none"
	ctrl, err := setup.NewController("viewer_test", tune, nil)
	require.NoError(t, err)

	screen := tcell.NewSimulationScreen("UTF-8")
	require.NoError(t, screen.Init())
	t.Cleanup(screen.Fini)
	screen.SetSize(cols, rows)
	return newView(screen, ctrl), ctrl, screen
}

func rowText(s tcell.SimulationScreen, row int) string {
	cols, _ := s.Size()
	var b strings.Builder
	for x := 0; x < cols; x++ {
		r, _, _, _ := s.GetContent(x, row)
		b.WriteRune(r)
	}
	return b.String()
}

func TestLayout_Scale(t *testing.T) {
	v, _, _ := newTestView(t, 40, 21)
	assert.Equal(t, 1, v.scale)

	v2, _, screen := newTestView(t, 15, 8)
	assert.Equal(t, 3, v2.scale)
	screen.SetSize(40, 21)
	v2.handleEvent(tcell.NewEventResize(40, 21))
	assert.Equal(t, 1, v2.scale)
}

func TestMouseDrag_DrawsAndKeysUndo(t *testing.T) {
	v, ctrl, _ := newTestView(t, 40, 21)

	assert.True(t, v.handleEvent(tcell.NewEventMouse(5, 10, tcell.Button1, tcell.ModNone)))
	v.handleEvent(tcell.NewEventMouse(9, 10, tcell.Button1, tcell.ModNone))
	v.handleEvent(tcell.NewEventMouse(9, 10, tcell.ButtonNone, tcell.ModNone))
	ctrl.OnFrameTick()

	m := ctrl.Metrics()
	// Row 10 is grid y = 39 - 20.
	assert.Equal(t, 5, m.BarrierCells)
	assert.Equal(t, 1, m.UndoDepth)

	v.handleEvent(tcell.NewEventKey(tcell.KeyRune, 'u', tcell.ModNone))
	ctrl.OnFrameTick()
	assert.Zero(t, ctrl.Metrics().BarrierCells)
}

func TestRightDrag_Erases(t *testing.T) {
	v, ctrl, _ := newTestView(t, 40, 21)
	v.handleEvent(tcell.NewEventMouse(5, 10, tcell.Button1, tcell.ModNone))
	v.handleEvent(tcell.NewEventMouse(9, 10, tcell.Button1, tcell.ModNone))
	v.handleEvent(tcell.NewEventMouse(9, 10, tcell.ButtonNone, tcell.ModNone))
	v.handleEvent(tcell.NewEventMouse(7, 10, tcell.Button2, tcell.ModNone))
	v.handleEvent(tcell.NewEventMouse(7, 10, tcell.ButtonNone, tcell.ModNone))
	ctrl.OnFrameTick()

	assert.Equal(t, 4, ctrl.Metrics().BarrierCells)
	assert.Equal(t, "draw", ctrl.Metrics().DrawMode)
}

func TestKeys_ChangeSettings(t *testing.T) {
	v, ctrl, _ := newTestView(t, 40, 21)
	for _, r := range []rune{'l', 'w', ' ', 's', '+', '+'} {
		require.True(t, v.handleEvent(tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone)))
	}
	ctrl.OnFrameTick()

	m := ctrl.Metrics()
	assert.Equal(t, "line", m.DrawMode)
	assert.Equal(t, 3, m.LineWidth)
	assert.True(t, m.Paused)
	assert.Equal(t, "speed", m.Stat)
	// Both presses read the same metrics before the frame ran.
	assert.Equal(t, 2, m.StepsPerFrame)

	assert.False(t, v.handleEvent(tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone)))
	assert.False(t, v.handleEvent(tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone)))
}

func TestDraw_RendersFieldBarrierAndStatus(t *testing.T) {
	v, ctrl, screen := newTestView(t, 40, 21)
	sub, err := ctrl.Subscribe(controller.SubscribeOptions{Stat: "density"})
	require.NoError(t, err)

	// Grid (0, 39) is the top half of terminal cell (0, 0).
	v.handleEvent(tcell.NewEventMouse(0, 0, tcell.Button1, tcell.ModNone))
	v.handleEvent(tcell.NewEventMouse(0, 0, tcell.ButtonNone, tcell.ModNone))
	ctrl.OnFrameTick()
	v.frame = <-sub.C
	v.draw()

	r, _, style, _ := screen.GetContent(0, 0)
	assert.Equal(t, '▀', r)
	fg, bg, _ := style.Decompose()
	assert.Equal(t, colorBarrier, fg)
	assert.NotEqual(t, colorBarrier, bg)

	_, _, style, _ = screen.GetContent(20, 5)
	fg, _, _ = style.Decompose()
	assert.NotEqual(t, colorBarrier, fg)

	assert.Contains(t, rowText(screen, 20), "frame 1")
}

func TestShadeAndNormalizer(t *testing.T) {
	assert.Equal(t, tcell.NewRGBColor(20, 40, 160), shade(0))
	assert.Equal(t, tcell.NewRGBColor(235, 70, 30), shade(1))
	assert.Equal(t, shade(1), shade(7))

	curl := normalizer("curl", -0.2, 0.1)
	assert.InDelta(t, 0.5, curl(0), 1e-12)
	assert.InDelta(t, 0.0, curl(-0.2), 1e-12)

	speed := normalizer("speed", 0.1, 0.3)
	assert.InDelta(t, 0.5, speed(0.2), 1e-12)
	assert.InDelta(t, 0.5, normalizer("density", 1, 1)(1), 1e-12)

	assert.Equal(t, "speed", nextStat("curl"))
	assert.Equal(t, "curl", nextStat("uy"))
	assert.Equal(t, "curl", nextStat("bogus"))
}
