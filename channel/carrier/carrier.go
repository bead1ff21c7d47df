// Package carrier implements an optional authenticated-encryption frame
// codec: a channel.Channel decorator that wraps plaintext payloads with
// AES-GCM, a CRC16 trailer, and a fixed 3-byte sigil before handing the
// result to an inner carrier channel, and reverses the process on Poll.
//
// It is grounded on the original backchannel_encode.py MicroChannel/Packet
// pair (AES-GCM with a seq-derived nonce, CRC-CCITT-FALSE trailer, base64url
// framing), adapted to Go's standard crypto/cipher AEAD interface and to the
// channel.Channel contract so it composes with any other carrier.
package carrier

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/localrivet/microchan/channel"
	"github.com/localrivet/microchan/crc16"
)

// Sigil is the fixed header marking a carrier-codec frame. It is three bytes
// in UTF-8 (U+2139 INFORMATION SOURCE), chosen so it renders as a single
// glyph on human-visible carriers without the 4-byte inflation of an
// emoji-range codepoint.
const Sigil = "ℹ"

// PayloadBytes is the maximum plaintext payload carried per frame. A full
// 26-byte payload becomes a 64-byte frame: the 3-byte sigil, 2 sequence
// digits, and 59 base64url characters for 42 bytes of ciphertext and GCM
// tag plus the 2-byte CRC. Emit does not check the frame against the inner
// channel's MaxBytes.
const PayloadBytes = 26

// KeyBytes is the required AES-256-GCM key length.
const KeyBytes = 32

// nonceWindow is the number of frames that may be sent under one key before
// the seq-derived nonce would repeat. Reusing a seq with a new plaintext
// under the same key is forbidden, so the codec refuses to encrypt a 101st
// frame rather than wrap the nonce.
const nonceWindow = 100

var (
	ErrBadKeyLength         = errors.New("carrier: key must be 32 bytes")
	ErrPayloadTooLarge      = errors.New("carrier: payload too large for carrier frame")
	ErrNonceWindowExhausted = errors.New("carrier: sequence window exhausted, rotate key")
)

// Codec wraps an inner channel.Channel, encrypting outbound payloads and
// decrypting/verifying inbound ones. It implements channel.Channel itself so
// it can be used anywhere a Channel is expected.
type Codec struct {
	inner channel.Channel
	aead  cipher.AEAD

	txSeq int // last sent seq 0..99, wrapping; -1 before the first frame
	sent  int // frames sent under this key; guards nonceWindow

	rxSeq int // last accepted rx seq, -1 if none yet
}

// New wraps inner with the AES-GCM carrier codec using key (must be 32
// bytes, i.e. AES-256).
func New(inner channel.Channel, key []byte) (*Codec, error) {
	if len(key) != KeyBytes {
		return nil, ErrBadKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("carrier: new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("carrier: new gcm: %w", err)
	}
	return &Codec{inner: inner, aead: aead, txSeq: -1, rxSeq: -1}, nil
}

// NewRandomKey generates a fresh 32-byte AES-256-GCM key.
func NewRandomKey() ([]byte, error) {
	key := make([]byte, KeyBytes)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("carrier: generate key: %w", err)
	}
	return key, nil
}

func nonceFor(seq int) []byte {
	nonce := make([]byte, 12)
	binary.BigEndian.PutUint32(nonce[8:], uint32(seq))
	return nonce
}

// Emit encrypts payload and writes a carrier frame to the inner channel.
func (c *Codec) Emit(payload []byte) error {
	if len(payload) > PayloadBytes {
		return fmt.Errorf("carrier: emit %d bytes: %w", len(payload), ErrPayloadTooLarge)
	}
	if c.sent >= nonceWindow {
		return ErrNonceWindowExhausted
	}

	seq := (c.txSeq + 1) % nonceWindow
	nonce := nonceFor(seq)
	ciphertext := c.aead.Seal(nil, nonce, payload, nil)

	var crcBuf [2]byte
	binary.BigEndian.PutUint16(crcBuf[:], crc16.Checksum(payload))
	body := append(ciphertext, crcBuf[:]...)

	frame := Sigil + fmt.Sprintf("%02d", seq) + base64.RawURLEncoding.EncodeToString(body)

	c.txSeq = seq
	c.sent++
	return c.inner.Emit([]byte(frame))
}

// Poll reads one frame from the inner channel and decodes it. Non-protocol
// payloads (missing sigil), truncated frames, decryption failures, and CRC
// mismatches are all discarded silently — the codec assumes a lossy,
// possibly non-protocol-sharing carrier and never surfaces these as errors.
func (c *Codec) Poll() ([]byte, bool) {
	raw, ok := c.inner.Poll()
	if !ok {
		return nil, false
	}

	sigilLen := len(Sigil)
	if len(raw) < sigilLen+2 || !bytes.HasPrefix(raw, []byte(Sigil)) {
		return nil, false
	}

	seqDigits := raw[sigilLen : sigilLen+2]
	var seq int
	if _, err := fmt.Sscanf(string(seqDigits), "%02d", &seq); err != nil || seq < 0 || seq >= nonceWindow {
		return nil, false
	}

	body, err := base64.RawURLEncoding.DecodeString(string(raw[sigilLen+2:]))
	if err != nil || len(body) < 2 {
		return nil, false
	}

	ciphertext, crcTrailer := body[:len(body)-2], body[len(body)-2:]
	nonce := nonceFor(seq)
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, false
	}

	wantCRC := binary.BigEndian.Uint16(crcTrailer)
	if crc16.Checksum(plaintext) != wantCRC {
		return nil, false
	}

	if seq == c.rxSeq {
		return nil, false // duplicate delivery of the same sequence
	}
	c.rxSeq = seq

	return plaintext, true
}

// MaxBytes is the usable plaintext payload size (PayloadBytes), not the
// inner channel's frame size; the encoded frame is larger than this by the
// codec's framing overhead.
func (c *Codec) MaxBytes() int { return PayloadBytes }
