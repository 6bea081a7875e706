// Package obstacle builds initial barrier layouts: named presets and
// obstacles traced from images.
package obstacle

import (
	"fmt"
	"image"
	"image/color"
	_ "image/png"
	"math"
	"os"
	"strings"

	xdraw "golang.org/x/image/draw"

	"flowsculpt.ai/internal/sim/barrier"
)

// Presets lists the names accepted by Preset.
var Presets = []string{"none", "walls", "chevron", "circle", "square", "airfoil"}

// Preset returns the barrier cells of a named layout.
func Preset(name string, width, height int) (*barrier.Blob, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return barrier.NewBlob(), nil
	case "walls":
		return Walls(width, height), nil
	case "chevron":
		return Chevron(width, height), nil
	case "circle":
		return Circle(width, height), nil
	case "square":
		return Square(width, height), nil
	case "airfoil":
		return Airfoil(width, height), nil
	default:
		return nil, fmt.Errorf("unknown obstacle preset %q (want one of %s)", name, strings.Join(Presets, ", "))
	}
}

// Walls closes the top and bottom rows so the flow runs in a channel.
func Walls(width, height int) *barrier.Blob {
	b := barrier.NewBlob()
	for x := 0; x < width; x++ {
		b.Set(barrier.Cell{X: x, Y: 0}, true)
		b.Set(barrier.Cell{X: x, Y: height - 1}, true)
	}
	return b
}

// Chevron is the default scene: channel walls plus a 3-cell-thick ">"
// pointing upstream, its tip at (width/3, height/2).
func Chevron(width, height int) *barrier.Blob {
	b := Walls(width, height)
	size := min(width/5, height/5)
	tipX, tipY := width/3, height/2
	set := func(x, y int) {
		c := barrier.Cell{X: x, Y: y}
		if c.In(width, height) {
			b.Set(c, true)
		}
	}
	for i := 0; i < size; i++ {
		for k := 0; k < 3; k++ {
			set(tipX-i-k, tipY+i)
			set(tipX-i-k, tipY-i)
		}
	}
	return b
}

// Circle is a disc of radius 0.2*min(width, height) at the centre.
func Circle(width, height int) *barrier.Blob {
	b := barrier.NewBlob()
	r := 0.2 * float64(min(width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dx, dy := float64(width/2-x), float64(height/2-y)
			if math.Sqrt(dx*dx+dy*dy) < r {
				b.Set(barrier.Cell{X: x, Y: y}, true)
			}
		}
	}
	return b
}

// Square is a centred square with half-side 0.2*min(width, height).
func Square(width, height int) *barrier.Blob {
	b := barrier.NewBlob()
	size := int(0.2 * float64(min(width, height)))
	cx, cy := width/2, height/2
	for y := cy - size; y <= cy+size; y++ {
		for x := cx - size; x <= cx+size; x++ {
			c := barrier.Cell{X: x, Y: y}
			if c.In(width, height) {
				b.Set(c, true)
			}
		}
	}
	return b
}

// Airfoil is a cambered NACA 4-digit profile spanning the grid width.
func Airfoil(width, height int) *barrier.Blob {
	b := barrier.NewBlob()
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if nacaAirfoil(x, y, width, height) {
				b.Set(barrier.Cell{X: x, Y: y}, true)
			}
		}
	}
	return b
}

func nacaAirfoil(x, y, width, height int) bool {
	xn := float64(x)/float64(width) - 0.001
	yn := float64(y)/float64(height) - 0.5
	if xn < 0 || xn > 1 {
		return false
	}

	const (
		m     = 0.02 // camber
		p     = 0.5  // camber position
		t     = 0.3  // thickness
		scale = 0.8
	)
	var yc, dyc float64
	if xn < p {
		yc = (m / (p * p)) * (2*p*xn - xn*xn)
		dyc = (2 * m / (p * p)) * (p - xn)
	} else {
		yc = (m / ((1 - p) * (1 - p))) * ((1 - 2*p) + 2*p*xn - xn*xn)
		dyc = (2 * m / ((1 - p) * (1 - p))) * (p - xn)
	}
	yt := 5 * t * (0.2969*math.Sqrt(xn) - 0.1260*xn - 0.3516*xn*xn + 0.2843*xn*xn*xn - 0.1015*xn*xn*xn*xn)
	half := scale * yt * math.Cos(math.Atan(dyc))
	return yn >= yc-half && yn <= yc+half
}

// LoadImage decodes an image file (PNG is registered).
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// FromImage fits img into the grid, keeping its aspect ratio and centring
// it, and marks every cell whose luminance is below threshold (0..1) as
// barrier. Image row 0 is the top of the grid. Transparent pixels are flow.
func FromImage(img image.Image, width, height int, threshold float64) *barrier.Blob {
	b := barrier.NewBlob()
	sb := img.Bounds()
	if sb.Empty() || width <= 0 || height <= 0 {
		return b
	}

	scale := math.Min(float64(width)/float64(sb.Dx()), float64(height)/float64(sb.Dy()))
	tw := max(1, int(float64(sb.Dx())*scale))
	th := max(1, int(float64(sb.Dy())*scale))
	ox, oy := (width-tw)/2, (height-th)/2

	dst := image.NewGray(image.Rect(0, 0, width, height))
	xdraw.Draw(dst, dst.Bounds(), image.White, image.Point{}, xdraw.Src)
	xdraw.NearestNeighbor.Scale(dst, image.Rect(ox, oy, ox+tw, oy+th), img, sb, xdraw.Over, nil)

	cut := uint8(math.Round(threshold * 255))
	for row := 0; row < height; row++ {
		for x := 0; x < width; x++ {
			if dst.GrayAt(x, row).Y < cut {
				b.Set(barrier.Cell{X: x, Y: height - 1 - row}, true)
			}
		}
	}
	return b
}

// Mask renders a blob's present cells to a grayscale image, barrier black,
// for previews. Row 0 is the top of the grid.
func Mask(b *barrier.Blob, width, height int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	xdraw.Draw(img, img.Bounds(), image.White, image.Point{}, xdraw.Src)
	for _, p := range b.Points() {
		if p.Present && p.In(width, height) {
			img.SetGray(p.X, height-1-p.Y, color.Gray{Y: 0})
		}
	}
	return img
}
