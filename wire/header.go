package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Decode errors. Decode and CRC errors are always local and silent at the
// transport layer: callers should discard the frame and keep polling rather
// than treat these as fatal.
var (
	ErrTruncatedHeader    = errors.New("wire: truncated header")
	ErrUnsupportedVersion = errors.New("wire: unsupported version")
	ErrMalformedFlags     = errors.New("wire: malformed flags")
)

// Header is the fixed base header plus the optional fragment extension.
type Header struct {
	Version       uint8
	Flags         uint8
	ChannelID     uint16
	SeqNo         uint16
	PayloadLength uint16

	// FragID and FragOffset are only meaningful when IsFrag() is true.
	FragID     uint32
	FragOffset uint16
}

func (h Header) IsSyn() bool  { return h.Flags&FlagSYN != 0 }
func (h Header) IsAck() bool  { return h.Flags&FlagACK != 0 }
func (h Header) IsFin() bool  { return h.Flags&FlagFIN != 0 }
func (h Header) IsRst() bool  { return h.Flags&FlagRST != 0 }
func (h Header) IsFrag() bool { return h.Flags&FlagFRAG != 0 }

// Encode serializes h to its wire form. Whether the fragment fields were
// populated cannot be told from their zero values, so encoding never fails
// on missing or unexpected fragment fields: it trusts IsFrag() and emits
// whatever FragID/FragOffset currently hold when FRAG is set, and omits them
// otherwise. The only encode-time failure is a SYN+FIN combination, which
// returns ErrMalformedFlags.
func (h Header) Encode() ([]byte, error) {
	if h.Flags&FlagSYN != 0 && h.Flags&FlagFIN != 0 {
		return nil, fmt.Errorf("wire: encode channel %d seq %d: %w", h.ChannelID, h.SeqNo, ErrMalformedFlags)
	}

	buf := make([]byte, HeaderSize, HeaderSize+FragHeaderSize)
	buf[0] = h.Version
	buf[1] = h.Flags
	binary.BigEndian.PutUint16(buf[2:4], h.ChannelID)
	binary.BigEndian.PutUint16(buf[4:6], h.SeqNo)
	binary.BigEndian.PutUint16(buf[6:8], h.PayloadLength)

	if h.IsFrag() {
		ext := make([]byte, FragHeaderSize)
		binary.BigEndian.PutUint32(ext[0:4], h.FragID)
		binary.BigEndian.PutUint16(ext[4:6], h.FragOffset)
		buf = append(buf, ext...)
	}

	return buf, nil
}

// Decode parses a Header from data, returning the header and the number of
// bytes consumed (8 or 14). It never panics on short or adversarial input.
func Decode(data []byte) (Header, int, error) {
	if len(data) < HeaderSize {
		return Header{}, 0, fmt.Errorf("wire: decode %d bytes: %w", len(data), ErrTruncatedHeader)
	}

	h := Header{
		Version:       data[0],
		Flags:         data[1],
		ChannelID:     binary.BigEndian.Uint16(data[2:4]),
		SeqNo:         binary.BigEndian.Uint16(data[4:6]),
		PayloadLength: binary.BigEndian.Uint16(data[6:8]),
	}

	if h.Version != Version {
		return Header{}, 0, fmt.Errorf("wire: decode version %#x: %w", h.Version, ErrUnsupportedVersion)
	}
	if h.Flags&FlagSYN != 0 && h.Flags&FlagFIN != 0 {
		return Header{}, 0, fmt.Errorf("wire: decode channel %d: %w", h.ChannelID, ErrMalformedFlags)
	}

	consumed := HeaderSize
	if h.IsFrag() {
		if len(data) < HeaderSize+FragHeaderSize {
			return Header{}, 0, fmt.Errorf("wire: decode fragment ext %d bytes: %w", len(data), ErrTruncatedHeader)
		}
		h.FragID = binary.BigEndian.Uint32(data[HeaderSize : HeaderSize+4])
		h.FragOffset = binary.BigEndian.Uint16(data[HeaderSize+4 : HeaderSize+6])
		consumed = HeaderSize + FragHeaderSize
	}

	return h, consumed, nil
}
