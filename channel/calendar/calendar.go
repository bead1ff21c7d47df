// Package calendar implements a channel.Channel over a shared calendar
// event's title field, alongside device-rename strings and SSID fields as
// other examples of low-bandwidth metadata carriers. It follows the same
// shape as channel/airtag (a rate-limited vendor write, a polled read)
// against an abstracted EventAPI rather than a specific calendar provider.
package calendar

import (
	"errors"
	"sync"
	"time"
)

// MaxTitleBytes bounds a calendar event title the way most providers do.
const MaxTitleBytes = 255

// DefaultMinWriteInterval is the default spacing enforced between title
// updates, well above most calendar providers' API rate limits.
const DefaultMinWriteInterval = 5 * time.Second

// ErrFrameTooLarge is returned when a frame would not fit the title field.
var ErrFrameTooLarge = errors.New("calendar: frame exceeds title field size")

// EventAPI is the vendor surface this channel drives.
type EventAPI interface {
	SetTitle(eventID, title string) error
	Title(eventID string) (string, error)
}

// Channel implements channel.Channel over one calendar event's title.
type Channel struct {
	eventID          string
	api              EventAPI
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

// New creates a Channel that retitles eventID through api.
func New(eventID string, api EventAPI, opts ...Option) *Channel {
	c := &Channel{
		eventID:          eventID,
		api:              api,
		minWriteInterval: DefaultMinWriteInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Emit retitles the event to frame, subject to the write throttle.
func (c *Channel) Emit(frame []byte) error {
	if len(frame) > MaxTitleBytes {
		return ErrFrameTooLarge
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastWrite.IsZero() && time.Since(c.lastWrite) < c.minWriteInterval {
		return nil
	}
	c.lastWrite = time.Now()
	return c.api.SetTitle(c.eventID, string(frame))
}

// Poll reads the event's current title and returns it if it has changed.
func (c *Channel) Poll() ([]byte, bool) {
	title, err := c.api.Title(c.eventID)
	if err != nil {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.everRead && title == c.lastRead {
		return nil, false
	}
	c.everRead = true
	c.lastRead = title
	return []byte(title), true
}

// MaxBytes is the title field's byte budget.
func (c *Channel) MaxBytes() int { return MaxTitleBytes }
