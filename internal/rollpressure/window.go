package rollpressure

// window is a fixed-capacity ring buffer of positioning ratios for one market.
type window struct {
	data []float64
	head int
	size int
}

func newWindow(capacity int) *window {
	if capacity < 1 {
		capacity = 1
	}
	return &window{data: make([]float64, capacity)}
}

// push appends v, evicting the oldest value once the buffer is full.
func (w *window) push(v float64) {
	w.data[w.head] = v
	w.head = (w.head + 1) % len(w.data)
	if w.size < len(w.data) {
		w.size++
	}
}

// rank returns the inclusive percentile rank of v: the share of buffered
// values less than or equal to v. It returns NaN on an empty buffer.
func (w *window) rank(v float64) float64 {
	if w.size == 0 {
		return nan()
	}
	start := (w.head - w.size + len(w.data)) % len(w.data)
	count := 0
	for i := 0; i < w.size; i++ {
		if w.data[(start+i)%len(w.data)] <= v {
			count++
		}
	}
	return float64(count) / float64(w.size)
}
