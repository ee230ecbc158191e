package audio

import "sync"

// defaultBufferLimit bounds buffered playback audio to roughly five seconds
// at the output rate. Overflow discards the oldest audio first.
const defaultBufferLimit = OutputSampleRate * 2 * 5

// FrameBuffer is a byte-oriented jitter buffer between bursty network
// delivery and the fixed playback cadence. Safe for one writer and one
// reader concurrently.
type FrameBuffer struct {
	mu    sync.Mutex
	data  []byte
	start int
	limit int
}

// NewFrameBuffer creates a buffer holding at most limit bytes. A limit of
// zero or less uses the default.
func NewFrameBuffer(limit int) *FrameBuffer {
	if limit <= 0 {
		limit = defaultBufferLimit
	}
	return &FrameBuffer{limit: limit}
}

// Append queues PCM bytes. When the limit is exceeded the oldest bytes are
// dropped so playback skips ahead rather than falling further behind.
func (b *FrameBuffer) Append(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = append(b.data, pcm...)
	if buffered := len(b.data) - b.start; buffered > b.limit {
		b.start += buffered - b.limit
	}
	b.compact()
}

// ReadBlock fills dst from the head of the buffer and zero-fills whatever
// it cannot cover. It returns the number of buffered bytes consumed.
func (b *FrameBuffer) ReadBlock(dst []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := copy(dst, b.data[b.start:])
	b.start += n
	b.compact()
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
	return n
}

// Buffered returns the number of queued bytes.
func (b *FrameBuffer) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data) - b.start
}

// Flush discards all queued bytes.
func (b *FrameBuffer) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = b.data[:0]
	b.start = 0
}

// compact reclaims consumed head space once it dominates the backing array.
func (b *FrameBuffer) compact() {
	if b.start == 0 {
		return
	}
	if b.start == len(b.data) {
		b.data = b.data[:0]
		b.start = 0
		return
	}
	if b.start > b.limit {
		n := copy(b.data, b.data[b.start:])
		b.data = b.data[:n]
		b.start = 0
	}
}
