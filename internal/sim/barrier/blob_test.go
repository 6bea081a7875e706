package barrier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlob_JoinLastWriteWins(t *testing.T) {
	b := NewBlob()
	b.Insert(Point{Cell: Cell{1, 1}, Present: true})

	other := NewBlob()
	other.Insert(Point{Cell: Cell{1, 1}, Present: false})
	other.Insert(Point{Cell: Cell{2, 1}, Present: true})
	b.Join(other)

	require.Equal(t, 2, b.Len())
	v, ok := b.Get(Cell{1, 1})
	assert.True(t, ok)
	assert.False(t, v)
	v, _ = b.Get(Cell{2, 1})
	assert.True(t, v)
}

func TestBlob_ZeroValueAndEmpty(t *testing.T) {
	var b Blob
	assert.True(t, b.IsEmpty())
	b.Set(Cell{0, 0}, true)
	assert.False(t, b.IsEmpty())
	b.Empty()
	assert.True(t, b.IsEmpty())

	var nilBlob *Blob
	assert.True(t, nilBlob.IsEmpty())
	assert.Nil(t, nilBlob.Points())
	b.Join(nilBlob)
	assert.True(t, b.IsEmpty())
}

func TestBlob_NegateAndFlatten(t *testing.T) {
	b := NewBlob()
	b.Set(Cell{2, 0}, true)
	b.Set(Cell{0, 1}, false)

	n := b.Negate()
	v, _ := n.Get(Cell{2, 0})
	assert.False(t, v)
	v, _ = n.Get(Cell{0, 1})
	assert.True(t, v)
	// Negate leaves the receiver alone.
	v, _ = b.Get(Cell{2, 0})
	assert.True(t, v)

	assert.Equal(t, []MaskEdit{{Index: 2, Barrier: true}, {Index: 4, Barrier: false}}, b.Flatten(4))
}

func TestBlob_JoinShapes(t *testing.T) {
	l, err := NewLine(Cell{0, 0}, Cell{3, 0}, 4, 4)
	require.NoError(t, err)

	b := BlobOf(l)
	assert.Equal(t, 4, b.Len())

	erase := NewCurve(false, false)
	require.NoError(t, erase.EraseSegment(Cell{1, 0}, 4, 4))
	b.Join(CurveShape(erase))

	v, ok := b.Get(Cell{1, 0})
	assert.True(t, ok)
	assert.False(t, v)
	assert.Equal(t, 4, b.Len())
}
