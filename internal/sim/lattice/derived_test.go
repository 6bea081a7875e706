package lattice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowsculpt.ai/internal/sim/barrier"
)

func TestComputeDerivedField_UniformFlow(t *testing.T) {
	l := newLattice(t, 10, 6, 2)
	l.ResetToEquilibrium(0.1, 0, 1)
	require.NoError(t, l.SetBarrierMask([]barrier.MaskEdit{edit(l, 4, 3, true)}))
	l.Step(0)

	speed := l.ComputeDerivedField(StatSpeed)
	assert.Equal(t, StatSpeed, speed.Stat)
	assert.Len(t, speed.Values, 60)
	assert.InDelta(t, 0.1, speed.At(0, 0), 1e-12)
	assert.Equal(t, 0.0, speed.At(4, 3), "barrier cells hold zero")
	assert.InDelta(t, 0.1, speed.Min, 1e-12)
	assert.InDelta(t, 0.1, speed.Max, 1e-12)

	rho := l.ComputeDerivedField(StatDensity)
	assert.InDelta(t, 1.0, rho.At(9, 5), 1e-12)

	ux := l.ComputeDerivedField(StatVelocityX)
	uy := l.ComputeDerivedField(StatVelocityY)
	assert.InDelta(t, 0.1, ux.At(2, 2), 1e-12)
	assert.InDelta(t, 0.0, uy.At(2, 2), 1e-12)

	curl := l.ComputeDerivedField(StatCurl)
	assert.InDelta(t, 0.0, curl.At(7, 1), 1e-12)
}

func TestComputeDerivedField_CurlOfShear(t *testing.T) {
	const x, y = 6, 8
	l := newLattice(t, x, y, 1)
	ux := make([]float64, x*y)
	uy := make([]float64, x*y)
	rho := make([]float64, x*y)
	for j := 0; j < y; j++ {
		for i := 0; i < x; i++ {
			ux[i+j*x] = 0.01 * float64(j)
			rho[i+j*x] = 1
		}
	}
	require.NoError(t, l.InitFromFields(ux, uy, rho))

	curl := l.ComputeDerivedField(StatCurl)
	// d(ux)/dy over two cells is 0.02; curl = -(ux[y+1] - ux[y-1]).
	assert.InDelta(t, -0.02, curl.At(3, 4), 1e-12)
}

func TestComputeDerivedField_ReturnsCopy(t *testing.T) {
	l := newLattice(t, 4, 4, 1)
	a := l.ComputeDerivedField(StatDensity)
	a.Values[0] = 42
	b := l.ComputeDerivedField(StatDensity)
	assert.InDelta(t, 1.0, b.Values[0], 1e-12)
}

func TestParseStat(t *testing.T) {
	for in, want := range map[string]Stat{"": StatCurl, "Curl": StatCurl, "speed": StatSpeed, "rho": StatDensity, "ux": StatVelocityX, "velocity_y": StatVelocityY} {
		got, err := ParseStat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseStat("vorticity2")
	assert.Error(t, err)
	assert.Equal(t, "uy", StatVelocityY.String())
}
