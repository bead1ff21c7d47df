// Package datagram implements the best-effort, connectionless transport
// engine: fragmentation above MTU, greedy-prefix reassembly with a
// per-message read cursor, and expiry of stalled reassemblies.
//
// Fragmentation and reassembly use a fragments map, a reassembly buffer
// per (channel_id, frag_id), and a periodic sweep of stalled entries, all
// addressed through the channel.Channel contract and the wire.Header codec.
package datagram

import (
	"sync"
	"time"

	"github.com/localrivet/microchan/channel"
	"github.com/localrivet/microchan/logx"
	"github.com/localrivet/microchan/wire"
)

// Option configures an Engine.
type Option func(*Engine)

// WithMTU overrides the default MTU (wire.DefaultMTU).
func WithMTU(mtu int) Option {
	return func(e *Engine) {
		if mtu >= wire.MinMTU {
			e.mtu = mtu
		}
	}
}

// WithFragmentTimeout overrides how long an incomplete reassembly is kept
// before being aged out.
func WithFragmentTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.fragmentTimeout = d
		}
	}
}

// WithLogger attaches a logger; the zero value is logx.NewDefaultLogger().
func WithLogger(l logx.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

type reassemblyKey struct {
	channelID uint16
	fragID    uint32
}

type reassemblyBuffer struct {
	slices map[uint16][]byte // frag_offset -> payload
	cursor int               // bytes already returned to the caller
	expiry time.Time
}

// Engine is the datagram (UDP-like) transport. One Engine may be used
// concurrently across goroutines and across many channel_ids; it holds no
// state tied to a particular channel.Channel beyond the reassembly buffers,
// which are keyed by (channel_id, frag_id).
type Engine struct {
	mtu             int
	fragmentTimeout time.Duration
	logger          logx.Logger

	mu         sync.Mutex
	reassembly map[reassemblyKey]*reassemblyBuffer
	sendSeq    map[uint16]uint16 // per channel_id next_send_seq
}

// New creates an Engine with wire.DefaultMTU and wire.FragmentTimeout unless
// overridden by options.
func New(opts ...Option) *Engine {
	e := &Engine{
		mtu:             wire.DefaultMTU,
		fragmentTimeout: wire.FragmentTimeout,
		logger:          logx.NewDefaultLogger(),
		reassembly:      make(map[reassemblyKey]*reassemblyBuffer),
		sendSeq:         make(map[uint16]uint16),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) nextSeq(channelID uint16) uint16 {
	seq := e.sendSeq[channelID]
	e.sendSeq[channelID] = seq + 1
	return seq
}

// Send fragments payload as needed and emits one or more frames onto ch. An
// empty payload is a no-op.
func (e *Engine) Send(ch channel.Channel, channelID uint16, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(payload) <= e.mtu {
		seq := e.nextSeq(channelID)
		h := wire.Header{
			Version:       wire.Version,
			ChannelID:     channelID,
			SeqNo:         seq,
			PayloadLength: uint16(len(payload)),
		}
		return e.emit(ch, h, payload)
	}

	fragID := wire.NewFragID()
	sliceSize := e.mtu - wire.FragHeaderSize
	for offset := 0; offset < len(payload); offset += sliceSize {
		end := offset + sliceSize
		if end > len(payload) {
			end = len(payload)
		}
		slice := payload[offset:end]

		seq := e.nextSeq(channelID)
		h := wire.Header{
			Version:       wire.Version,
			Flags:         wire.FlagFRAG,
			ChannelID:     channelID,
			SeqNo:         seq,
			PayloadLength: uint16(len(slice)),
			FragID:        fragID,
			FragOffset:    uint16(offset),
		}
		if err := e.emit(ch, h, slice); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) emit(ch channel.Channel, h wire.Header, payload []byte) error {
	encoded, err := h.Encode()
	if err != nil {
		return err
	}
	frame := append(encoded, payload...)
	return ch.Emit(frame)
}

// Recv polls ch for one frame and returns the next reassembled payload
// bytes, if any. For a non-fragmented packet this is the packet's own
// payload. For a fragmented message, Recv performs a greedy-prefix
// reassembly and returns only the bytes past what a previous Recv on this
// (channel_id, frag_id) already returned — repeated calls never re-yield
// the same bytes twice.
func (e *Engine) Recv(ch channel.Channel, channelID uint16) ([]byte, bool) {
	e.mu.Lock()
	e.sweepExpired()
	e.mu.Unlock()

	frame, ok := ch.Poll()
	if !ok {
		return nil, false
	}

	h, consumed, err := wire.Decode(frame)
	if err != nil {
		e.logger.Debug("datagram: discarding frame: %v", err)
		return nil, false
	}
	payload := frame[consumed:]

	if !h.IsFrag() {
		return payload, true
	}

	return e.insertAndReassemble(channelID, h, payload)
}

func (e *Engine) insertAndReassemble(channelID uint16, h wire.Header, payload []byte) ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := reassemblyKey{channelID: channelID, fragID: h.FragID}
	buf, ok := e.reassembly[key]
	if !ok {
		buf = &reassemblyBuffer{slices: make(map[uint16][]byte)}
		e.reassembly[key] = buf
	}
	buf.slices[h.FragOffset] = payload
	buf.expiry = time.Now().Add(e.fragmentTimeout)

	prefix := reassemblePrefix(buf.slices)
	if len(prefix) <= buf.cursor {
		return nil, false
	}
	fresh := prefix[buf.cursor:]
	buf.cursor = len(prefix)
	return fresh, true
}

// reassemblePrefix concatenates contiguous slices starting at offset 0.
func reassemblePrefix(slices map[uint16][]byte) []byte {
	var prefix []byte
	offset := uint16(0)
	for {
		slice, ok := slices[offset]
		if !ok {
			break
		}
		prefix = append(prefix, slice...)
		next := offset + uint16(len(slice))
		if next <= offset { // overflow guard; offsets are bounded by payload <= 64KiB in practice
			break
		}
		offset = next
	}
	return prefix
}

// sweepExpired drops reassembly buffers whose expiry has passed. Called
// before every Recv, per spec.
func (e *Engine) sweepExpired() {
	now := time.Now()
	for key, buf := range e.reassembly {
		if !buf.expiry.IsZero() && now.After(buf.expiry) {
			delete(e.reassembly, key)
		}
	}
}
