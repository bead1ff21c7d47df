package channel

import "sync"

// Pipe is a lossless, ordered, in-memory Channel used by engine tests and by
// the loopback demo in cmd/microchand. Frames emitted are returned by Poll in
// FIFO order, one per call.
type Pipe struct {
	mu       sync.Mutex
	queue    [][]byte
	maxBytes int
	closed   bool
}

// NewPipe creates a Pipe with the given MaxBytes.
func NewPipe(maxBytes int) *Pipe {
	return &Pipe{maxBytes: maxBytes}
}

func (p *Pipe) Emit(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	p.queue = append(p.queue, cp)
	return nil
}

func (p *Pipe) Poll() ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return nil, false
	}
	frame := p.queue[0]
	p.queue = p.queue[1:]
	return frame, true
}

func (p *Pipe) MaxBytes() int { return p.maxBytes }

// Close marks the pipe closed; further Emit calls fail.
func (p *Pipe) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

// Duplicating wraps a Channel so that every frame it ever yields from Poll is
// returned exactly twice, simulating a carrier that re-delivers writes. Used
// to test exactly-once delivery over a duplicating channel.
type Duplicating struct {
	inner   Channel
	pending [][]byte
}

// NewDuplicating wraps inner so every polled frame repeats once.
func NewDuplicating(inner Channel) *Duplicating {
	return &Duplicating{inner: inner}
}

func (d *Duplicating) Emit(frame []byte) error { return d.inner.Emit(frame) }

func (d *Duplicating) Poll() ([]byte, bool) {
	if len(d.pending) > 0 {
		frame := d.pending[0]
		d.pending = d.pending[1:]
		return frame, true
	}
	frame, ok := d.inner.Poll()
	if !ok {
		return nil, false
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	d.pending = append(d.pending, cp)
	return frame, true
}

func (d *Duplicating) MaxBytes() int { return d.inner.MaxBytes() }
