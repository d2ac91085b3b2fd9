package apu

// RingBuffer is a fixed-capacity circular buffer of signed 16-bit samples.
// Every channel owns two of these with identical capacity and write cursor:
// one for sample history and one for edge markers, so a reader can locate
// the waveform period that produced any given sample.
type RingBuffer struct {
	buffer []int16
	index  int
}

func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{
		buffer: make([]int16, capacity),
	}
}

// Push writes a sample at the current cursor and advances it, wrapping
// modulo capacity.
func (r *RingBuffer) Push(sample int16) {
	r.buffer[r.index] = sample
	r.index = (r.index + 1) % len(r.buffer)
}

// At returns the sample at the given absolute position, wrapped modulo
// capacity. Negative positions count back from the write cursor's cycle.
func (r *RingBuffer) At(pos int) int16 {
	n := len(r.buffer)
	return r.buffer[((pos%n)+n)%n]
}

// Index is the position the next Push will write to.
func (r *RingBuffer) Index() int {
	return r.index
}

func (r *RingBuffer) Len() int {
	return len(r.buffer)
}
