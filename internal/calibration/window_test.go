package calibration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow_PushEvictsOldest(t *testing.T) {
	w := NewWindow(3)
	for _, v := range []int{10, 20, 30, 40, 50} {
		w.Push(v)
		assert.LessOrEqual(t, w.Len(), w.Capacity())
	}
	assert.Equal(t, []int{30, 40, 50}, w.Values())
}

func TestWindow_Stats(t *testing.T) {
	w := NewWindow(3)
	_, ok := w.Average()
	assert.False(t, ok)
	_, ok = w.Min()
	assert.False(t, ok)
	_, ok = w.Max()
	assert.False(t, ok)

	w.Push(100)
	w.Push(103)
	avg, ok := w.Average()
	require.True(t, ok)
	assert.Equal(t, 101, avg, "average truncates")

	lo, _ := w.Min()
	hi, _ := w.Max()
	assert.Equal(t, 100, lo)
	assert.Equal(t, 103, hi)
}

func TestWindow_SetCapacity(t *testing.T) {
	w := NewWindow(2)
	w.Push(1)
	w.Push(2)

	w.SetCapacity(3)
	w.Push(3)
	assert.Equal(t, []int{1, 2, 3}, w.Values())

	w.SetCapacity(2)
	assert.Equal(t, []int{2, 3}, w.Values())
	w.Push(4)
	assert.Equal(t, []int{3, 4}, w.Values())

	w.SetCapacity(0)
	assert.Equal(t, 1, w.Capacity())
	assert.Equal(t, []int{4}, w.Values())
}

func TestWindow_Clear(t *testing.T) {
	w := NewWindow(2)
	w.Push(5)
	w.Push(6)
	w.Push(7)
	w.Clear()
	assert.Equal(t, 0, w.Len())
	assert.Equal(t, 2, w.Capacity())
	w.Push(8)
	assert.Equal(t, []int{8}, w.Values())
}
