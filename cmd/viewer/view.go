package main

import (
	"fmt"
	"math"

	"github.com/gdamore/tcell/v2"

	"flowsculpt.ai/internal/sim/controller"
)

// simulation is the part of controller.Controller the viewer drives.
type simulation interface {
	Width() int
	Height() int
	Metrics() controller.Metrics
	OnInput(cmd controller.Command) error
}

var statCycle = []string{"curl", "speed", "density", "ux", "uy"}

var (
	colorLow     = [3]float64{20, 40, 160}
	colorHigh    = [3]float64{235, 70, 30}
	colorBarrier = tcell.NewRGBColor(235, 235, 235)
)

const helpLine = "[d]raw [e]rase [l]ine [w]idth [u]ndo [c]lear [space]pause [s]tat [+/-]steps [v/V]isc [r]eset [q]uit"

// view draws frames with half-block cells (two grid rows per terminal row)
// and turns mouse and key input into commands. Grid y grows upwards, so the
// bottom terminal row shows y = 0.
type view struct {
	screen tcell.Screen
	sim    simulation

	frame *controller.Frame
	scale int

	// Mouse gesture in progress.
	down bool
	// Last command error, shown on the status line until the next input.
	status string
}

func newView(screen tcell.Screen, sim simulation) *view {
	v := &view{screen: screen, sim: sim}
	v.layout()
	return v
}

// layout picks the smallest integer scale that fits the grid above the
// status line.
func (v *view) layout() {
	cols, rows := v.screen.Size()
	rows--
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	sx := (v.sim.Width() + cols - 1) / cols
	sy := (v.sim.Height() + 2*rows - 1) / (2 * rows)
	v.scale = max(1, sx, sy)
}

// toGrid maps a terminal cell to the grid cell drawn in its top half.
func (v *view) toGrid(sx, sy int) (x, y int) {
	return sx * v.scale, v.sim.Height() - 1 - 2*sy*v.scale
}

func (v *view) send(cmds ...controller.Command) {
	v.status = ""
	for _, cmd := range cmds {
		if err := v.sim.OnInput(cmd); err != nil {
			v.status = err.Error()
			return
		}
	}
}

// handleEvent applies one terminal event; it reports false when the viewer
// should exit.
func (v *view) handleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		return v.handleKey(ev)
	case *tcell.EventMouse:
		v.handleMouse(ev)
	case *tcell.EventResize:
		v.layout()
		v.screen.Sync()
	}
	return true
}

func (v *view) handleMouse(ev *tcell.EventMouse) {
	x, y := v.toGrid(ev.Position())
	buttons := ev.Buttons()
	pressed := buttons&(tcell.Button1|tcell.Button2) != 0
	switch {
	case pressed && !v.down:
		v.down = true
		cmd := controller.Command{Kind: controller.KindPointerDown, X: x, Y: y}
		if buttons&tcell.Button2 != 0 {
			// Right drag erases regardless of the selected mode.
			cmd.Mode = "erase"
		}
		v.send(cmd)
	case pressed:
		v.send(controller.Command{Kind: controller.KindPointerMove, X: x, Y: y})
	case v.down:
		v.down = false
		v.send(controller.Command{Kind: controller.KindPointerUp, X: x, Y: y})
	}
}

func (v *view) handleKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return false
	case tcell.KeyRune:
	default:
		return true
	}

	m := v.sim.Metrics()
	switch ev.Rune() {
	case 'q':
		return false
	case 'd':
		v.send(controller.Command{Kind: controller.KindSetMode, Mode: "draw"})
	case 'e':
		v.send(controller.Command{Kind: controller.KindSetMode, Mode: "erase"})
	case 'l':
		v.send(controller.Command{Kind: controller.KindSetMode, Mode: "line"})
	case 'w':
		width := 3.0
		if m.LineWidth == 3 {
			width = 1
		}
		v.send(controller.Command{Kind: controller.KindSetLineWidth, Value: width})
	case 'u':
		v.send(controller.Command{Kind: controller.KindUndo})
	case 'c':
		v.send(controller.Command{Kind: controller.KindClearBarrier})
	case ' ':
		v.send(controller.Command{Kind: controller.KindTogglePause})
	case 's':
		v.send(controller.Command{Kind: controller.KindSetStat, Stat: nextStat(m.Stat)})
	case '+', '=':
		n := min(m.StepsPerFrame+1, controller.MaxStepsPerFrame)
		v.send(controller.Command{Kind: controller.KindSetStepsPerFrame, Value: float64(n)})
	case '-':
		n := max(m.StepsPerFrame-1, 0)
		v.send(controller.Command{Kind: controller.KindSetStepsPerFrame, Value: float64(n)})
	case 'v':
		v.send(controller.Command{Kind: controller.KindSetViscosity, Value: m.Viscosity * 0.8})
	case 'V':
		v.send(controller.Command{Kind: controller.KindSetViscosity, Value: m.Viscosity * 1.25})
	case 'r':
		v.send(controller.Command{Kind: controller.KindResetEquilibrium})
	}
	return true
}

func nextStat(cur string) string {
	for i, s := range statCycle {
		if s == cur {
			return statCycle[(i+1)%len(statCycle)]
		}
	}
	return statCycle[0]
}

// shade maps t in [0,1] between the low and high colors.
func shade(t float64) tcell.Color {
	if math.IsNaN(t) {
		t = 0.5
	}
	t = math.Max(0, math.Min(1, t))
	var c [3]int32
	for i := range c {
		c[i] = int32(math.Round(colorLow[i] + (colorHigh[i]-colorLow[i])*t))
	}
	return tcell.NewRGBColor(c[0], c[1], c[2])
}

// normalizer returns the shade position of a value. Curl and velocity
// components are signed and centred on zero.
func normalizer(stat string, lo, hi float64) func(float64) float64 {
	switch stat {
	case "curl", "ux", "uy":
		m := math.Max(math.Abs(lo), math.Abs(hi))
		if m == 0 {
			return func(float64) float64 { return 0.5 }
		}
		return func(v float64) float64 { return 0.5 + 0.5*v/m }
	default:
		if hi <= lo {
			return func(float64) float64 { return 0.5 }
		}
		return func(v float64) float64 { return (v - lo) / (hi - lo) }
	}
}

func (v *view) colorAt(norm func(float64) float64, x, y int) tcell.Color {
	f := v.frame
	if x < 0 || y < 0 || x >= f.Field.X || y >= f.Field.Y {
		return tcell.ColorBlack
	}
	i := x + y*f.Field.X
	if i < len(f.Mask) && f.Mask[i] {
		return colorBarrier
	}
	return shade(norm(f.Field.Values[i]))
}

func (v *view) draw() {
	v.screen.Clear()
	cols, rows := v.screen.Size()
	if v.frame != nil {
		f := v.frame
		norm := normalizer(f.Field.Stat.String(), f.Field.Min, f.Field.Max)
		for sy := 0; sy < rows-1; sy++ {
			for sx := 0; sx < cols; sx++ {
				x, y := v.toGrid(sx, sy)
				if x >= f.Field.X || y < 0 {
					continue
				}
				top := v.colorAt(norm, x, y)
				bottom := v.colorAt(norm, x, y-v.scale)
				v.screen.SetContent(sx, sy, '▀', nil, tcell.StyleDefault.Foreground(top).Background(bottom))
			}
		}
	}
	v.drawStatus(cols, rows-1)
	v.screen.Show()
}

func (v *view) statusText() string {
	m := v.sim.Metrics()
	run := "running"
	if m.Paused {
		run = "paused"
	}
	s := fmt.Sprintf("frame %d  %s  steps %d  stat %s  mode %s  width %d  visc %.4f  cells %d  undo %d  ",
		m.Frame, run, m.StepsPerFrame, m.Stat, m.DrawMode, m.LineWidth, m.Viscosity, m.BarrierCells, m.UndoDepth)
	if v.status != "" {
		return s + "error: " + v.status
	}
	return s + helpLine
}

func (v *view) drawStatus(cols, row int) {
	style := tcell.StyleDefault.Reverse(true)
	if v.status != "" {
		style = style.Foreground(tcell.ColorRed)
	}
	x := 0
	for _, r := range v.statusText() {
		if x >= cols {
			break
		}
		v.screen.SetContent(x, row, r, nil, style)
		x++
	}
	for ; x < cols; x++ {
		v.screen.SetContent(x, row, ' ', nil, style)
	}
}
