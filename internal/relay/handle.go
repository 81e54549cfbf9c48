package relay

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// sendBufferSize bounds the number of frames queued for a single stream.
// A stream that falls this far behind is treated as dead and deregistered
// rather than allowed to accumulate backlog.
const sendBufferSize = 64

var (
	// ErrHandleClosed is returned by Deliver after the handle has been closed.
	ErrHandleClosed = errors.New("stream handle is closed")
	// ErrSlowConsumer is returned by Deliver when the handle's outbound
	// buffer is full.
	ErrSlowConsumer = errors.New("stream handle buffer is full")
)

// Handle represents one open server-to-client stream. The dispatcher
// enqueues frames through Deliver; exactly one goroutine (the connection's
// lifecycle controller) drains Frames and writes to the transport, which
// preserves per-stream ordering.
type Handle struct {
	ID  string
	Key string

	frames    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewHandle creates a Handle registered under the given recipient key.
func NewHandle(key string) *Handle {
	return &Handle{
		ID:     uuid.New().String(),
		Key:    key,
		frames: make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// Deliver enqueues a frame for the stream's writer without blocking. It
// returns ErrHandleClosed if the handle was closed and ErrSlowConsumer if
// the outbound buffer is full; the caller is expected to drop the handle
// in either case.
func (h *Handle) Deliver(frame []byte) error {
	select {
	case <-h.done:
		return ErrHandleClosed
	default:
	}

	select {
	case h.frames <- frame:
		return nil
	case <-h.done:
		return ErrHandleClosed
	default:
		return ErrSlowConsumer
	}
}

// Frames is the outbound frame queue, drained by the stream's owner.
func (h *Handle) Frames() <-chan []byte {
	return h.frames
}

// Done is closed when the handle is closed, signalling the stream's owner
// to end the connection.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Close marks the handle dead. Safe to call multiple times; it does not
// interrupt an in-progress write, it prevents new frames from being queued.
func (h *Handle) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
	})
}
