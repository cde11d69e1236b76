package blizzard

import (
	"fmt"
	"sync"
)

// ErrBufferTooLarge is the underlying cause of an ERROR_INTERNAL failure
// emitted when a reassembling stream exceeds its configured cap.
var ErrBufferTooLarge = fmt.Errorf("blizzard: buffer exceeds configured size cap")

// streamBuffer accumulates BUFFER_RESPONSE frames per id until a
// zero-length terminator arrives. Sizing is a policy decision, not a
// protocol rule: maxSize of 0 means unbounded.
type streamBuffer struct {
	mu      sync.Mutex
	streams map[uint32][]byte
	maxSize int
}

func newStreamBuffer(maxSize int) *streamBuffer {
	return &streamBuffer{streams: make(map[uint32][]byte), maxSize: maxSize}
}

// append adds data to the buffer for id, creating the entry on first
// arrival. Returns ErrBufferTooLarge (and discards the partial buffer) if
// the cap is exceeded.
func (b *streamBuffer) append(id uint32, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf := append(b.streams[id], data...)
	if b.maxSize > 0 && len(buf) > b.maxSize {
		delete(b.streams, id)
		return ErrBufferTooLarge
	}
	b.streams[id] = buf
	return nil
}

// complete removes and returns the accumulated buffer for id. ok is false
// if no entry exists — the terminator arrived for a stream id nothing
// opened.
func (b *streamBuffer) complete(id uint32) (data []byte, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok = b.streams[id]
	delete(b.streams, id)
	return data, ok
}
