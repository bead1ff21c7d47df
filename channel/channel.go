// Package channel defines the abstract carrier contract consumed by the
// transport engines (transport/datagram, transport/reliable), plus a
// handful of concrete and decorator implementations: an in-memory Pipe for
// tests, a Duplicating wrapper for property tests, and a Dedup wrapper. The
// optional AES-GCM carrier codec lives in channel/carrier.
package channel

import "errors"

// ErrClosed is returned by Pipe.Emit once the pipe has been closed.
var ErrClosed = errors.New("channel: closed")

// Channel is a half-duplex carrier over one metadata field. Implementations
// must not block for more than a small bounded interval, must tolerate Emit
// being called faster than the carrier's physical rate limit (by coalescing
// or dropping intermediate writes), and are neither ordered nor lossless:
// Poll may return frames out of order, may never return a frame that was
// emitted, and may return the same frame more than once.
type Channel interface {
	// Emit writes frame into the carrier field. Non-blocking.
	Emit(frame []byte) error

	// Poll returns at most one new frame, or ok=false if nothing has
	// changed since the previous call. Non-blocking.
	Poll() ([]byte, bool)

	// MaxBytes is the maximum size of a single frame this channel can carry.
	MaxBytes() int
}
