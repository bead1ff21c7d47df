// Package reliable implements the connection-oriented transport engine: a
// three-way handshake, stop-and-wait acknowledgement, exponential-backoff
// retransmission, and FIN/ACK teardown.
//
// It uses a pending message table and a ticker-driven retransmit worker
// with exponential backoff and ack-by-sequence bookkeeping, addressed by
// wire.Header (channel_id, seq_no) pairs over a channel.Channel.
package reliable

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/localrivet/microchan/channel"
	"github.com/localrivet/microchan/logx"
	"github.com/localrivet/microchan/wire"
)

// Errors surfaced to callers.
var (
	ErrConnectionTimeout = errors.New("reliable: connection timed out")
	ErrSendTimeout       = errors.New("reliable: send timed out")
	ErrCloseTimeout      = errors.New("reliable: close timed out")
)

// Option configures an Engine.
type Option func(*Engine)

func WithMTU(mtu int) Option {
	return func(e *Engine) {
		if mtu >= wire.MinMTU {
			e.mtu = mtu
		}
	}
}

func WithInitialTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.initialTimeout = d
		}
	}
}

func WithBackoffFactor(f float64) Option {
	return func(e *Engine) {
		if f >= 1 {
			e.backoffFactor = f
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

func WithFragmentTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.fragmentTimeout = d
		}
	}
}

func WithLogger(l logx.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

type connState struct {
	established bool
	nextSendSeq uint16
	lastRecvSeq uint16

	// hasDelivered/deliveredSeq dedup single-packet (non-fragmented) data
	// deliveries: a channel may redeliver the same frame, but the ack is
	// re-sent every time while the payload is only handed to the caller
	// once per distinct seq_no.
	hasDelivered bool
	deliveredSeq uint16
}

type pendingKey struct {
	channelID uint16
	seq       uint16
}

type pendingEntry struct {
	ch             channel.Channel
	encoded        []byte
	currentTimeout time.Duration
	retries        int
	lastSend       time.Time
}

type reassemblyKey struct {
	channelID uint16
	fragID    uint32
}

type reassemblyBuffer struct {
	slices map[uint16][]byte
	cursor int
	expiry time.Time
}

// Engine is the reliable (TCP-like) transport. All state is keyed by
// channel_id; the underlying channel.Channel is borrowed per call rather
// than owned by the Engine, so it never holds a lock across a call into
// the channel.
type Engine struct {
	mtu             int
	initialTimeout  time.Duration
	backoffFactor   float64
	maxRetries      int
	fragmentTimeout time.Duration
	logger          logx.Logger

	mu         sync.Mutex
	conns      map[uint16]*connState
	pending    map[pendingKey]*pendingEntry
	waiters    map[pendingKey]chan error
	reassembly map[reassemblyKey]*reassemblyBuffer

	tickerOnce sync.Once
	stop       chan struct{}
}

// New creates an Engine with the default tunables unless overridden.
func New(opts ...Option) *Engine {
	e := &Engine{
		mtu:             wire.DefaultMTU,
		initialTimeout:  wire.InitialTimeout,
		backoffFactor:   wire.BackoffFactor,
		maxRetries:      wire.MaxRetries,
		fragmentTimeout: wire.FragmentTimeout,
		logger:          logx.NewDefaultLogger(),
		conns:           make(map[uint16]*connState),
		pending:         make(map[pendingKey]*pendingEntry),
		waiters:         make(map[pendingKey]chan error),
		reassembly:      make(map[reassemblyKey]*reassemblyBuffer),
		stop:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Established reports whether channelID has completed its handshake.
func (e *Engine) Established(channelID uint16) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	cs, ok := e.conns[channelID]
	return ok && cs.established
}

// NextSendSeq reports the next sequence number that will be assigned on
// channelID.
func (e *Engine) NextSendSeq(channelID uint16) uint16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connFor(channelID).nextSendSeq
}

// PendingCount reports how many unacknowledged packets are outstanding
// across all channels, for tests that assert on retransmission bookkeeping.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Shutdown stops the retransmission ticker. Safe to call even if the ticker
// was never started.
func (e *Engine) Shutdown() {
	// Consume tickerOnce so a later send cannot start the ticker.
	e.tickerOnce.Do(func() {})
	e.mu.Lock()
	defer e.mu.Unlock()
	select {
	case <-e.stop:
	default:
		close(e.stop)
	}
}

func (e *Engine) startTicker() {
	e.tickerOnce.Do(func() {
		go e.retransmissionLoop()
	})
}

func (e *Engine) connFor(channelID uint16) *connState {
	cs, ok := e.conns[channelID]
	if !ok {
		cs = &connState{}
		e.conns[channelID] = cs
	}
	return cs
}

// registerPending stores the encoded frame for retransmission and returns a
// waiter channel the caller blocks on.
func (e *Engine) registerPending(channelID, seq uint16, ch channel.Channel, encoded []byte) chan error {
	key := pendingKey{channelID: channelID, seq: seq}
	e.pending[key] = &pendingEntry{
		ch:             ch,
		encoded:        encoded,
		currentTimeout: e.initialTimeout,
		lastSend:       time.Now(),
	}
	waiter := make(chan error, 1)
	e.waiters[key] = waiter
	return waiter
}

func (e *Engine) cleanupPending(channelID, seq uint16) {
	key := pendingKey{channelID: channelID, seq: seq}
	delete(e.pending, key)
	delete(e.waiters, key)
}

// Connect performs the three-way handshake on channelID over ch. It is a
// no-op if channelID is already established.
func (e *Engine) Connect(ch channel.Channel, channelID uint16) error {
	e.mu.Lock()
	cs := e.connFor(channelID)
	if cs.established {
		e.mu.Unlock()
		return nil
	}

	seq := cs.nextSendSeq
	h := wire.Header{Version: wire.Version, Flags: wire.FlagSYN, ChannelID: channelID, SeqNo: seq}
	encoded, err := h.Encode()
	if err != nil {
		e.mu.Unlock()
		return err
	}
	waiter := e.registerPending(channelID, seq, ch, encoded)
	e.mu.Unlock()

	e.startTicker()
	if err := ch.Emit(encoded); err != nil {
		e.mu.Lock()
		e.cleanupPending(channelID, seq)
		e.mu.Unlock()
		return fmt.Errorf("reliable: connect channel %d: %w", channelID, err)
	}

	if werr := <-waiter; werr != nil {
		e.mu.Lock()
		e.cleanupPending(channelID, seq)
		e.resetChannelLocked(channelID)
		e.mu.Unlock()
		e.logger.Warn("reliable: connect channel %d timed out", channelID)
		return ErrConnectionTimeout
	}

	e.mu.Lock()
	e.cleanupPending(channelID, seq)
	cs.established = true
	cs.nextSendSeq = seq + 1
	e.mu.Unlock()
	return nil
}

// Send transmits payload on channelID, connecting first if necessary.
// Payloads larger than the configured MTU are fragmented. An empty payload
// is a no-op.
func (e *Engine) Send(ch channel.Channel, channelID uint16, payload []byte) error {
	e.mu.Lock()
	cs := e.connFor(channelID)
	established := cs.established
	e.mu.Unlock()

	if !established {
		if err := e.Connect(ch, channelID); err != nil {
			return err
		}
	}

	if len(payload) == 0 {
		return nil
	}
	if len(payload) <= e.mtu {
		return e.sendSingle(ch, channelID, payload)
	}
	return e.sendFragmented(ch, channelID, payload)
}

func (e *Engine) sendSingle(ch channel.Channel, channelID uint16, payload []byte) error {
	e.mu.Lock()
	cs := e.connFor(channelID)
	seq := cs.nextSendSeq
	h := wire.Header{Version: wire.Version, ChannelID: channelID, SeqNo: seq, PayloadLength: uint16(len(payload))}
	encoded, err := h.Encode()
	if err != nil {
		e.mu.Unlock()
		return err
	}
	frame := append(encoded, payload...)
	waiter := e.registerPending(channelID, seq, ch, frame)
	e.mu.Unlock()

	e.startTicker()
	if err := ch.Emit(frame); err != nil {
		e.mu.Lock()
		e.cleanupPending(channelID, seq)
		e.mu.Unlock()
		return fmt.Errorf("reliable: send channel %d seq %d: %w", channelID, seq, err)
	}

	if werr := <-waiter; werr != nil {
		e.mu.Lock()
		e.cleanupPending(channelID, seq)
		e.resetChannelLocked(channelID)
		e.mu.Unlock()
		e.logger.Warn("reliable: send channel %d seq %d timed out", channelID, seq)
		return ErrSendTimeout
	}

	e.mu.Lock()
	e.cleanupPending(channelID, seq)
	cs.nextSendSeq = seq + 1
	e.mu.Unlock()
	return nil
}

func (e *Engine) sendFragmented(ch channel.Channel, channelID uint16, payload []byte) error {
	fragID := wire.NewFragID()
	sliceSize := e.mtu - wire.FragHeaderSize

	for offset := 0; offset < len(payload); offset += sliceSize {
		end := offset + sliceSize
		if end > len(payload) {
			end = len(payload)
		}
		slice := payload[offset:end]

		e.mu.Lock()
		cs := e.connFor(channelID)
		seq := cs.nextSendSeq
		h := wire.Header{
			Version:       wire.Version,
			Flags:         wire.FlagFRAG,
			ChannelID:     channelID,
			SeqNo:         seq,
			PayloadLength: uint16(len(slice)),
			FragID:        fragID,
			FragOffset:    uint16(offset),
		}
		encoded, err := h.Encode()
		if err != nil {
			e.mu.Unlock()
			return err
		}
		frame := append(encoded, slice...)
		waiter := e.registerPending(channelID, seq, ch, frame)
		e.mu.Unlock()

		e.startTicker()
		if err := ch.Emit(frame); err != nil {
			e.mu.Lock()
			e.cleanupPending(channelID, seq)
			e.mu.Unlock()
			return fmt.Errorf("reliable: send fragment channel %d seq %d: %w", channelID, seq, err)
		}

		if werr := <-waiter; werr != nil {
			e.mu.Lock()
			e.cleanupPending(channelID, seq)
			e.resetChannelLocked(channelID)
			e.mu.Unlock()
			e.logger.Warn("reliable: fragment channel %d seq %d timed out", channelID, seq)
			return ErrSendTimeout
		}

		e.mu.Lock()
		cs.nextSendSeq = seq + 1
		e.cleanupPending(channelID, seq)
		e.mu.Unlock()
	}
	return nil
}

// Close performs the FIN/ACK teardown on channelID.
func (e *Engine) Close(ch channel.Channel, channelID uint16) error {
	e.mu.Lock()
	cs := e.connFor(channelID)
	if !cs.established {
		e.mu.Unlock()
		return nil
	}
	seq := cs.nextSendSeq
	h := wire.Header{Version: wire.Version, Flags: wire.FlagFIN, ChannelID: channelID, SeqNo: seq}
	encoded, err := h.Encode()
	if err != nil {
		e.mu.Unlock()
		return err
	}
	waiter := e.registerPending(channelID, seq, ch, encoded)
	e.mu.Unlock()

	e.startTicker()
	if err := ch.Emit(encoded); err != nil {
		e.mu.Lock()
		e.cleanupPending(channelID, seq)
		e.mu.Unlock()
		return fmt.Errorf("reliable: close channel %d: %w", channelID, err)
	}

	if werr := <-waiter; werr != nil {
		e.mu.Lock()
		e.cleanupPending(channelID, seq)
		cs.established = false
		e.mu.Unlock()
		e.logger.Warn("reliable: close channel %d timed out", channelID)
		return ErrCloseTimeout
	}

	e.mu.Lock()
	e.cleanupPending(channelID, seq)
	cs.nextSendSeq = seq + 1
	cs.established = false
	e.mu.Unlock()
	return nil
}

// Recv pulls and processes one raw frame from ch for channelID. It returns
// the next chunk of reassembled application payload, if any; control frames
// (SYN/FIN/ACK/RST) are handled internally and never surfaced to the caller.
func (e *Engine) Recv(ch channel.Channel, channelID uint16) ([]byte, bool) {
	frame, ok := ch.Poll()
	if !ok {
		return nil, false
	}

	h, consumed, err := wire.Decode(frame)
	if err != nil {
		e.logger.Debug("reliable: discarding frame on channel %d: %v", channelID, err)
		return nil, false
	}
	payload := frame[consumed:]

	var reply *wire.Header
	var result []byte
	var resultOK bool

	e.mu.Lock()
	now := time.Now()
	for key, buf := range e.reassembly {
		if now.After(buf.expiry) {
			delete(e.reassembly, key)
		}
	}
	switch {
	case h.IsRst():
		e.resetChannelLocked(channelID)
		e.logger.Info("reliable: RST received on channel %d", channelID)

	case h.IsSyn() && !h.IsAck():
		cs := e.connFor(channelID)
		cs.established = true
		cs.lastRecvSeq = h.SeqNo
		reply = &wire.Header{Version: wire.Version, Flags: wire.FlagSynAck, ChannelID: channelID, SeqNo: h.SeqNo}

	case h.IsFin() && !h.IsAck():
		cs := e.connFor(channelID)
		reply = &wire.Header{Version: wire.Version, Flags: wire.FlagFinAck, ChannelID: channelID, SeqNo: h.SeqNo}
		cs.established = false
		cs.lastRecvSeq = h.SeqNo

	case h.IsAck():
		key := pendingKey{channelID: channelID, seq: h.SeqNo}
		if waiter, ok := e.waiters[key]; ok {
			delete(e.waiters, key)
			select {
			case waiter <- nil:
			default:
			}
		}

	default:
		// Any remaining packet carries a payload: ack it and hand the
		// bytes back.
		cs := e.connFor(channelID)
		cs.lastRecvSeq = h.SeqNo
		reply = &wire.Header{Version: wire.Version, Flags: wire.FlagACK, ChannelID: channelID, SeqNo: h.SeqNo}

		if !h.IsFrag() {
			duplicate := cs.hasDelivered && h.SeqNo == cs.deliveredSeq
			cs.hasDelivered = true
			cs.deliveredSeq = h.SeqNo
			if !duplicate {
				result, resultOK = payload, true
			}
		} else {
			result, resultOK = e.insertAndReassembleLocked(channelID, h, payload)
		}
	}
	e.mu.Unlock()

	if reply != nil {
		e.emit(ch, *reply)
	}
	return result, resultOK
}

func (e *Engine) emit(ch channel.Channel, h wire.Header) {
	encoded, err := h.Encode()
	if err != nil {
		e.logger.Debug("reliable: failed to encode control frame: %v", err)
		return
	}
	if err := ch.Emit(encoded); err != nil {
		e.logger.Debug("reliable: failed to emit control frame: %v", err)
	}
}

func (e *Engine) insertAndReassembleLocked(channelID uint16, h wire.Header, payload []byte) ([]byte, bool) {
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
		if next <= offset {
			break
		}
		offset = next
	}
	return prefix
}

// resetChannelLocked clears all state keyed on channelID: connection state,
// pending entries, waiters, and reassembly buffers. Caller must hold e.mu.
func (e *Engine) resetChannelLocked(channelID uint16) {
	delete(e.conns, channelID)
	for key, waiter := range e.waiters {
		if key.channelID != channelID {
			continue
		}
		select {
		case waiter <- ErrConnectionTimeout:
		default:
		}
		delete(e.waiters, key)
		delete(e.pending, key)
	}
	for key := range e.reassembly {
		if key.channelID == channelID {
			delete(e.reassembly, key)
		}
	}
}

// retransmissionLoop is the single long-lived cooperative task driving
// retransmission: it wakes every 100ms and, for every pending entry, either
// re-emits it (incrementing retries and backing off) or, once retries are
// exhausted, releases its waiter with failure.
func (e *Engine) retransmissionLoop() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.retransmitDue()
		}
	}
}

type dueRetransmit struct {
	ch      channel.Channel
	encoded []byte
	key     pendingKey
}

func (e *Engine) retransmitDue() {
	e.mu.Lock()

	now := time.Now()
	var due []dueRetransmit
	for key, entry := range e.pending {
		if entry.retries >= e.maxRetries {
			if waiter, ok := e.waiters[key]; ok {
				select {
				case waiter <- fmt.Errorf("reliable: channel %d seq %d: retries exhausted", key.channelID, key.seq):
				default:
				}
				delete(e.waiters, key)
			}
			delete(e.pending, key)
			continue
		}
		if now.Sub(entry.lastSend) > entry.currentTimeout {
			due = append(due, dueRetransmit{ch: entry.ch, encoded: entry.encoded, key: key})
			entry.retries++
			entry.currentTimeout = time.Duration(float64(entry.currentTimeout) * e.backoffFactor)
			entry.lastSend = now
		}
	}
	e.mu.Unlock()

	for _, d := range due {
		if err := d.ch.Emit(d.encoded); err != nil {
			e.logger.Debug("reliable: retransmit channel %d seq %d: %v", d.key.channelID, d.key.seq, err)
		}
	}
}
