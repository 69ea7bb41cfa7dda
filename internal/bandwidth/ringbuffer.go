package bandwidth

// ringBuffer holds a sliding window of rate samples.
type ringBuffer struct {
	data     []float64
	head     int
	capacity int
	isFull   bool
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{
		data:     make([]float64, size),
		capacity: size,
	}
}

// Add inserts a new value, overwriting the oldest if full.
func (r *ringBuffer) Add(val float64) {
	r.data[r.head] = val
	r.head = (r.head + 1) % r.capacity
	if r.head == 0 {
		r.isFull = true
	}
}

// Snapshot returns the data ordered from oldest to newest.
func (r *ringBuffer) Snapshot() []float64 {
	result := make([]float64, 0, r.capacity)
	if r.isFull {
		result = append(result, r.data[r.head:]...)
		result = append(result, r.data[:r.head]...)
	} else {
		result = append(result, r.data[:r.head]...)
	}
	return result
}

// Len returns the number of samples currently held.
func (r *ringBuffer) Len() int {
	if r.isFull {
		return r.capacity
	}
	return r.head
}
