package indicator

// Window is a fixed-capacity FIFO of the most recent samples.
type Window struct {
	size int
	data []float64
}

func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{size: size, data: make([]float64, 0, size)}
}

// Push appends v, evicting the oldest sample once the window is full.
func (w *Window) Push(v float64) {
	if len(w.data) == w.size {
		copy(w.data, w.data[1:])
		w.data = w.data[:w.size-1]
	}
	w.data = append(w.data, v)
}

func (w *Window) Len() int   { return len(w.data) }
func (w *Window) Cap() int   { return w.size }
func (w *Window) Full() bool { return len(w.data) == w.size }

// Values returns a copy, oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, len(w.data))
	copy(out, w.data)
	return out
}
