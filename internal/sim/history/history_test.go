package history

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowsculpt.ai/internal/sim/barrier"
)

func point(x, y int, present bool) barrier.Point {
	return barrier.Point{Cell: barrier.Cell{X: x, Y: y}, Present: present}
}

func blobShape(pts ...barrier.Point) barrier.Shape {
	b := barrier.NewBlob()
	for _, p := range pts {
		b.Insert(p)
	}
	return barrier.BlobShape(b)
}

func TestUndo_RestoresPreCommitValues(t *testing.T) {
	h := New(nil)
	l, err := barrier.NewLine(barrier.Cell{X: 0, Y: 0}, barrier.Cell{X: 3, Y: 0}, 5, 5)
	require.NoError(t, err)
	require.True(t, h.Commit(barrier.LineShape(l)))
	assert.Equal(t, 1, h.Depth())
	assert.True(t, h.Top(barrier.Cell{X: 2, Y: 0}))

	restored, ok := h.Undo()
	require.True(t, ok)
	require.Equal(t, 4, restored.Len())
	for _, p := range restored.Points() {
		assert.False(t, p.Present, "cell %s", p.Cell)
	}
	assert.Equal(t, 0, h.Cells())

	again, ok := h.Undo()
	assert.False(t, ok)
	assert.Nil(t, again)
}

func TestUndo_WalksBackThroughStack(t *testing.T) {
	h := New(nil)
	h.Commit(blobShape(point(1, 1, true)))
	h.Commit(blobShape(point(1, 1, false)))
	h.Commit(blobShape(point(1, 1, true)))

	want := []bool{false, true, false}
	for i, w := range want {
		b, ok := h.Undo()
		require.True(t, ok, "undo %d", i)
		v, present := b.Get(barrier.Cell{X: 1, Y: 1})
		require.True(t, present)
		assert.Equal(t, w, v, "undo %d", i)
	}
	_, ok := h.Undo()
	assert.False(t, ok)
}

func TestUndo_OutputSortedByCell(t *testing.T) {
	h := New(nil)
	h.Commit(blobShape(point(3, 2, true), point(0, 0, true), point(1, 2, true)))
	b, ok := h.Undo()
	require.True(t, ok)
	pts := b.Points()
	require.Len(t, pts, 3)
	assert.Equal(t, barrier.Cell{X: 0, Y: 0}, pts[0].Cell)
	assert.Equal(t, barrier.Cell{X: 1, Y: 2}, pts[1].Cell)
	assert.Equal(t, barrier.Cell{X: 3, Y: 2}, pts[2].Cell)
}

func TestCommit_IgnoresEmptyShape(t *testing.T) {
	h := New(nil)
	assert.False(t, h.Commit(blobShape()))
	assert.Equal(t, 0, h.Depth())
}

func TestUndo_WarnsOnEmptyHistory(t *testing.T) {
	logger, hook := test.NewNullLogger()
	h := New(logger)
	_, ok := h.Undo()
	assert.False(t, ok)
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestExportImport_PreservesUndoOrder(t *testing.T) {
	h := New(nil)
	h.Commit(blobShape(point(0, 0, true)))
	h.Commit(blobShape(point(0, 0, false), point(1, 0, true)))

	st := h.Export()
	require.Len(t, st.Stacks, 2)
	require.Len(t, st.Undo, 2)

	h2 := New(nil)
	h2.Import(st)
	assert.Equal(t, 2, h2.Depth())

	b, ok := h2.Undo()
	require.True(t, ok)
	v, _ := b.Get(barrier.Cell{X: 0, Y: 0})
	assert.True(t, v)
	v, _ = b.Get(barrier.Cell{X: 1, Y: 0})
	assert.False(t, v)
}

func TestClear(t *testing.T) {
	h := New(nil)
	h.Commit(blobShape(point(0, 0, true)))
	h.Clear()
	assert.Equal(t, 0, h.Depth())
	assert.Equal(t, 0, h.Cells())
	assert.False(t, h.Top(barrier.Cell{}))
}
