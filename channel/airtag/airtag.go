// Package airtag implements a channel.Channel over an AirTag/Find My
// accessory's display-name field, the way the original backchannel stub did:
// one vendor rename call per write, rate-limited because a real vendor API
// throttles (or bans) callers who rename the same device more than roughly
// once every ten seconds.
//
// The vendor call itself is abstracted behind DeviceAPI so tests, and any
// caller without a real iCloud session, can inject a fake.
package airtag

import (
	"errors"
	"sync"
	"time"
)

// MaxFieldChars is the carrier's field-size constraint: the smallest
// supported carrier in the original stack.
const MaxFieldChars = 32

// DefaultMinWriteInterval is the default spacing enforced between vendor
// rename calls.
const DefaultMinWriteInterval = 10 * time.Second

// ErrFrameTooLarge is returned when a frame would not fit the device's
// display-name field.
var ErrFrameTooLarge = errors.New("airtag: frame exceeds display-name field size")

// DeviceAPI is the vendor surface this channel drives; a real implementation
// wraps something like pyicloud's device-rename endpoint.
type DeviceAPI interface {
	SetDisplayName(deviceID, name string) error
	DisplayName(deviceID string) (string, error)
}

// Channel implements channel.Channel over one AirTag's display name.
type Channel struct {
	deviceID         string
	api              DeviceAPI
	minWriteInterval time.Duration

	mu        sync.Mutex
	lastWrite time.Time
	lastRead  string
	everRead  bool
}

// Option configures a Channel.
type Option func(*Channel)

// WithMinWriteInterval overrides DefaultMinWriteInterval.
func WithMinWriteInterval(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.minWriteInterval = d
		}
	}
}

// New creates a Channel that renames deviceID through api.
func New(deviceID string, api DeviceAPI, opts ...Option) *Channel {
	c := &Channel{
		deviceID:         deviceID,
		api:              api,
		minWriteInterval: DefaultMinWriteInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Emit renames the device to frame. Calls arriving faster than
// minWriteInterval are silently dropped (the channel contract tolerates
// this): the most recent Emit within a throttle window simply never reaches
// the vendor API, matching a real carrier's own rate limiting.
func (c *Channel) Emit(frame []byte) error {
	if len(frame) > MaxFieldChars {
		return ErrFrameTooLarge
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastWrite.IsZero() && time.Since(c.lastWrite) < c.minWriteInterval {
		return nil
	}
	c.lastWrite = time.Now()
	return c.api.SetDisplayName(c.deviceID, string(frame))
}

// Poll reads the device's current display name and returns it if it has
// changed since the last Poll.
func (c *Channel) Poll() ([]byte, bool) {
	name, err := c.api.DisplayName(c.deviceID)
	if err != nil {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.everRead && name == c.lastRead {
		return nil, false
	}
	c.everRead = true
	c.lastRead = name
	return []byte(name), true
}

// MaxBytes is the display-name field's character budget.
func (c *Channel) MaxBytes() int { return MaxFieldChars }
