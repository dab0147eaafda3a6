package calibration

// Window is a fixed-capacity FIFO of positions. Pushing past capacity evicts the oldest entry.
type Window struct {
	buf      []int
	start    int
	size     int
	capacity int
}

// NewWindow creates a window holding at most capacity entries (minimum 1)
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]int, capacity), capacity: capacity}
}

// Push appends v, evicting the oldest entry when full
func (w *Window) Push(v int) {
	if w.size == w.capacity {
		w.buf[w.start] = v
		w.start = (w.start + 1) % w.capacity
		return
	}
	w.buf[(w.start+w.size)%w.capacity] = v
	w.size++
}

// SetCapacity resizes the window, keeping the newest entries
func (w *Window) SetCapacity(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	if capacity == w.capacity {
		return
	}
	values := w.Values()
	if len(values) > capacity {
		values = values[len(values)-capacity:]
	}
	w.buf = make([]int, capacity)
	copy(w.buf, values)
	w.start = 0
	w.size = len(values)
	w.capacity = capacity
}

// Values returns the entries oldest first
func (w *Window) Values() []int {
	out := make([]int, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(w.start+i)%w.capacity]
	}
	return out
}

func (w *Window) Len() int      { return w.size }
func (w *Window) Capacity() int { return w.capacity }

// Clear empties the window without changing its capacity
func (w *Window) Clear() {
	w.start = 0
	w.size = 0
}

// Average returns the truncated integer mean; ok is false when empty
func (w *Window) Average() (int, bool) {
	if w.size == 0 {
		return 0, false
	}
	sum := 0
	for _, v := range w.Values() {
		sum += v
	}
	return sum / w.size, true
}

// Min returns the smallest entry; ok is false when empty
func (w *Window) Min() (int, bool) {
	if w.size == 0 {
		return 0, false
	}
	values := w.Values()
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m, true
}

// Max returns the largest entry; ok is false when empty
func (w *Window) Max() (int, bool) {
	if w.size == 0 {
		return 0, false
	}
	values := w.Values()
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m, true
}
