package channel

import "bytes"

// Dedup wraps a Channel so a Poll that would return byte-identical
// consecutive frames only returns the first one, the way the original
// MicroChannel.receive() dropped a frame whose wrapping sequence number
// matched the last one it accepted before the frame ever reached a
// transport engine. Frame-layer dedup here is content-based rather than
// seq-based since a raw Channel frame carries no sequence field of its own;
// it complements, rather than replaces, the seq-aware dedup transport/reliable
// performs on decoded packets.
type Dedup struct {
	inner    Channel
	lastSeen []byte
	everSeen bool
}

// NewDedup wraps inner so immediate repeats are suppressed.
func NewDedup(inner Channel) *Dedup {
	return &Dedup{inner: inner}
}

func (d *Dedup) Emit(frame []byte) error { return d.inner.Emit(frame) }

func (d *Dedup) Poll() ([]byte, bool) {
	for {
		frame, ok := d.inner.Poll()
		if !ok {
			return nil, false
		}
		if d.everSeen && bytes.Equal(frame, d.lastSeen) {
			continue
		}
		d.everSeen = true
		d.lastSeen = append(d.lastSeen[:0], frame...)
		return frame, true
	}
}

func (d *Dedup) MaxBytes() int { return d.inner.MaxBytes() }
