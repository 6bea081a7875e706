package barrier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurve_FirstSegmentIsSingleCell(t *testing.T) {
	c := NewCurve(true, false)
	assert.True(t, c.IsEmpty())

	require.NoError(t, c.AddSegment(Cell{4, 4}, 10, 10))
	assert.Equal(t, []Point{{Cell: Cell{4, 4}, Present: true}}, c.Points())

	last, ok := c.Last()
	assert.True(t, ok)
	assert.Equal(t, Cell{4, 4}, last)
}

func TestCurve_SegmentsConnect(t *testing.T) {
	c := NewCurve(true, false)
	require.NoError(t, c.AddSegment(Cell{0, 0}, 10, 10))
	require.NoError(t, c.AddSegment(Cell{3, 0}, 10, 10))
	require.NoError(t, c.AddSegment(Cell{3, 3}, 10, 10))

	var cells []Cell
	for _, p := range c.Points() {
		assert.True(t, p.Present)
		cells = append(cells, p.Cell)
	}
	assert.Len(t, cells, 7)
	assert.True(t, adjacent4(cells))
}

func TestCurve_EraseSegmentAndBounds(t *testing.T) {
	c := NewCurve(false, false)
	require.NoError(t, c.EraseSegment(Cell{1, 1}, 4, 4))
	require.NoError(t, c.EraseSegment(Cell{1, 3}, 4, 4))
	for _, p := range c.Points() {
		assert.False(t, p.Present)
	}

	err := c.EraseSegment(Cell{4, 0}, 4, 4)
	assert.ErrorIs(t, err, ErrOutOfBounds)
	last, _ := c.Last()
	assert.Equal(t, Cell{1, 3}, last, "failed segment must not move the pen")
}

func TestContinueCurve_KeepsPen(t *testing.T) {
	c := NewCurve(true, false)
	require.NoError(t, c.AddSegment(Cell{2, 2}, 10, 10))

	next := ContinueCurve(c)
	assert.True(t, next.IsEmpty())
	require.NoError(t, next.Extend(Cell{4, 2}, 10, 10))
	assert.Len(t, next.Points(), 3)
}

func TestCurveCollection_LaterCurveWins(t *testing.T) {
	draw := NewCurve(true, false)
	require.NoError(t, draw.AddSegment(Cell{0, 0}, 5, 5))
	require.NoError(t, draw.AddSegment(Cell{2, 0}, 5, 5))

	erase := NewCurve(false, false)
	require.NoError(t, erase.EraseSegment(Cell{1, 0}, 5, 5))

	var cc CurveCollection
	assert.True(t, cc.IsEmpty())
	cc.AddCurve(draw)
	cc.AddCurve(erase)
	cc.AddCurve(NewCurve(true, false))
	assert.Len(t, cc.Curves(), 2)

	b := BlobOf(CollectionShape(&cc))
	v, _ := b.Get(Cell{1, 0})
	assert.False(t, v)
	v, _ = b.Get(Cell{2, 0})
	assert.True(t, v)
}
