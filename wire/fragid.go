package wire

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// NewFragID draws a fresh fragment identifier for a fragmented message,
// the same way the original drew a random 32-bit id from a UUID: generate a
// UUIDv4 and fold its first four bytes into a uint32 rather than pulling raw
// entropy directly, so every fragment id traces back to a real UUID value a
// caller can log and cross-reference.
func NewFragID() uint32 {
	id := uuid.New()
	return binary.BigEndian.Uint32(id[:4])
}
