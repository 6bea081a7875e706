package lattice

// Direction indices. The order is fixed: it is the packet layout of the
// distribution buffers and the snapshot format.
const (
	NW = iota
	N
	NE
	W
	O
	E
	SW
	S
	SE

	Q = 9
)

// Lattice velocities; Y grows northwards.
var (
	ex = [Q]int{-1, 0, 1, -1, 0, 1, -1, 0, 1}
	ey = [Q]int{1, 1, 1, 0, 0, 0, -1, -1, -1}
)

const (
	w0 = 4.0 / 9.0
	w1 = 1.0 / 9.0
	w2 = 1.0 / 36.0
)

var weights = [Q]float64{w2, w1, w2, w1, w0, w1, w2, w1, w2}

// Direction layout pairs each direction with its reverse at 8-i.
func opposite(i int) int { return Q - 1 - i }

var (
	cardinalDirs = [...]int{N, W, O, E, S}
	cornerDirs   = [...]int{NW, NE, SW, SE}
)

// Equilibrium is the D2Q9 equilibrium distribution for density rho moving
// with velocity (ux, uy):
//
//	f_i = w_i rho (1 + 3 u·e_i + 4.5 (u·e_i)² - 1.5 |u|²)
func Equilibrium(ux, uy, rho float64) [Q]float64 {
	var f [Q]float64
	u2 := 1.5 * (ux*ux + uy*uy)
	for i := 0; i < Q; i++ {
		eu := float64(ex[i])*ux + float64(ey[i])*uy
		f[i] = weights[i] * rho * (1 + 3*eu + 4.5*eu*eu - u2)
	}
	return f
}

// Moments returns density and velocity of one cell's packets.
func Moments(f [Q]float64) (rho, ux, uy float64) {
	for i := 0; i < Q; i++ {
		rho += f[i]
		ux += f[i] * float64(ex[i])
		uy += f[i] * float64(ey[i])
	}
	if rho > 0 {
		ux /= rho
		uy /= rho
	} else {
		ux, uy = 0, 0
	}
	return rho, ux, uy
}

func DirectionName(i int) string {
	switch i {
	case NW:
		return "northwest"
	case N:
		return "north"
	case NE:
		return "northeast"
	case W:
		return "west"
	case O:
		return "origin"
	case E:
		return "east"
	case SW:
		return "southwest"
	case S:
		return "south"
	case SE:
		return "southeast"
	default:
		return "out of bounds"
	}
}
