package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	cases := []Header{
		{Version: Version, Flags: 0, ChannelID: 0, SeqNo: 0, PayloadLength: 5},
		{Version: Version, Flags: FlagSYN, ChannelID: 7, SeqNo: 42, PayloadLength: 0},
		{Version: Version, Flags: FlagSynAck, ChannelID: 1, SeqNo: 65535, PayloadLength: 0},
		{Version: Version, Flags: FlagFIN, ChannelID: 1, SeqNo: 1, PayloadLength: 0},
		{Version: Version, Flags: FlagRST, ChannelID: 9, SeqNo: 3, PayloadLength: 0},
		{Version: Version, Flags: FlagFRAG, ChannelID: 2, SeqNo: 10, PayloadLength: 94, FragID: 0xdeadbeef, FragOffset: 188},
	}

	for _, h := range cases {
		encoded, err := h.Encode()
		if err != nil {
			t.Fatalf("Encode(%+v): %v", h, err)
		}

		wantSize := HeaderSize
		if h.IsFrag() {
			wantSize += FragHeaderSize
		}
		if len(encoded) != wantSize {
			t.Fatalf("Encode(%+v) produced %d bytes, want %d", h, len(encoded), wantSize)
		}

		decoded, consumed, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode(Encode(%+v)): %v", h, err)
		}
		if consumed != wantSize {
			t.Errorf("consumed = %d, want %d", consumed, wantSize)
		}
		if decoded != h {
			t.Errorf("round-trip mismatch: got %+v, want %+v", decoded, h)
		}
	}
}

func TestTruncationSafety(t *testing.T) {
	h := Header{Version: Version, Flags: FlagFRAG, ChannelID: 1, SeqNo: 2, PayloadLength: 3, FragID: 99, FragOffset: 5}
	encoded, err := h.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	for k := 0; k < len(encoded); k++ {
		_, _, err := Decode(encoded[:k])
		if !errors.Is(err, ErrTruncatedHeader) {
			t.Fatalf("Decode(encoded[:%d]) = %v, want ErrTruncatedHeader", k, err)
		}
	}
}

func TestDecodeUnsupportedVersion(t *testing.T) {
	h := Header{Version: 0x02, Flags: 0, ChannelID: 0, SeqNo: 0, PayloadLength: 0}
	encoded, err := h.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	_, _, err = Decode(encoded)
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("Decode() = %v, want ErrUnsupportedVersion", err)
	}
}

func TestEncodeRejectsSynFin(t *testing.T) {
	h := Header{Version: Version, Flags: FlagSYN | FlagFIN}
	if _, err := h.Encode(); !errors.Is(err, ErrMalformedFlags) {
		t.Fatalf("Encode() = %v, want ErrMalformedFlags", err)
	}
}

func TestDecodeRejectsSynFin(t *testing.T) {
	// Hand-build the bytes since Encode refuses to produce this combination.
	raw := []byte{Version, FlagSYN | FlagFIN, 0, 0, 0, 0, 0, 0}
	_, _, err := Decode(raw)
	if !errors.Is(err, ErrMalformedFlags) {
		t.Fatalf("Decode() = %v, want ErrMalformedFlags", err)
	}
}

// A single-packet datagram header.
func TestScenarioS1Header(t *testing.T) {
	h := Header{Version: Version, Flags: 0, ChannelID: 0, SeqNo: 0, PayloadLength: 5}
	encoded, err := h.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x05}
	if !bytes.Equal(encoded, want) {
		t.Fatalf("Encode() = % x, want % x", encoded, want)
	}
}
