package adapters

import "sync"

// defaultOutputLimit is how much target output a session keeps.
const defaultOutputLimit = 64 << 10

// OutputBuffer keeps the most recent bytes written to it. Offsets count
// every byte ever written, so a reader can resume where it left off even
// after older output was discarded.
type OutputBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
	total int64
}

// NewOutputBuffer returns a buffer retaining at most limit bytes.
func NewOutputBuffer(limit int) *OutputBuffer {
	return &OutputBuffer{limit: limit}
}

func (b *OutputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total += int64(len(p))
	if len(p) >= b.limit {
		b.buf = append(b.buf[:0], p[len(p)-b.limit:]...)
		return len(p), nil
	}
	if over := len(b.buf) + len(p) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// ReadFrom returns the retained output at or after offset and the offset
// to pass next time. Output discarded before offset is skipped.
func (b *OutputBuffer) ReadFrom(offset int64) (string, int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := b.total - int64(len(b.buf))
	if offset < start {
		offset = start
	}
	if offset > b.total {
		offset = b.total
	}
	return string(b.buf[offset-start:]), b.total
}

// Tail returns at most the last n retained bytes.
func (b *OutputBuffer) Tail(n int) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.buf) <= n {
		return string(b.buf)
	}
	return string(b.buf[len(b.buf)-n:])
}
