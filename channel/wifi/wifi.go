// Package wifi implements a channel.Channel over a host access point's SSID
// field, read-modify-write style via hostapd_cli, the way the original
// backchannel stub drove it with subprocess calls.
package wifi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// MaxSSIDBytes is the 802.11 SSID field size.
const MaxSSIDBytes = 32

// ErrFrameTooLarge is returned when a frame would not fit in the SSID field.
var ErrFrameTooLarge = errors.New("wifi: frame exceeds SSID field size")

// Runner executes an external command and returns its combined stdout. It
// exists so tests can stub out hostapd_cli.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// execRunner shells out via os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("wifi: %s %v: %w", name, args, err)
	}
	return out.String(), nil
}

// Channel drives an access point's SSID through hostapd_cli, treating a
// change in SSID as an inbound frame and a write as "set ssid; reload".
type Channel struct {
	iface   string
	runner  Runner
	timeout time.Duration

	mu       sync.Mutex
	lastSeen string
	everSeen bool
}

// Option configures a Channel.
type Option func(*Channel)

// WithRunner overrides the default os/exec-backed Runner.
func WithRunner(r Runner) Option {
	return func(c *Channel) { c.runner = r }
}

// WithTimeout bounds each hostapd_cli invocation.
func WithTimeout(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates a Channel controlling the access point on the named
// interface (the hostapd_cli -i argument).
func New(iface string, opts ...Option) *Channel {
	c := &Channel{
		iface:   iface,
		runner:  execRunner{},
		timeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Emit sets the access point's SSID to frame and reloads hostapd's
// configuration so the new SSID is broadcast.
func (c *Channel) Emit(frame []byte) error {
	if len(frame) > MaxSSIDBytes {
		return ErrFrameTooLarge
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if _, err := c.runner.Run(ctx, "hostapd_cli", "-i", c.iface, "set", "ssid", string(frame)); err != nil {
		return err
	}
	if _, err := c.runner.Run(ctx, "hostapd_cli", "-i", c.iface, "reload"); err != nil {
		return err
	}
	return nil
}

// Poll reads the access point's current SSID from hostapd_cli status output
// and returns it if it has changed since the last Poll.
func (c *Channel) Poll() ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	out, err := c.runner.Run(ctx, "hostapd_cli", "-i", c.iface, "status")
	if err != nil {
		return nil, false
	}

	ssid, ok := parseSSID(out)
	if !ok {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.everSeen && ssid == c.lastSeen {
		return nil, false
	}
	c.everSeen = true
	c.lastSeen = ssid
	return []byte(ssid), true
}

// MaxBytes is the SSID field's byte budget.
func (c *Channel) MaxBytes() int { return MaxSSIDBytes }

// parseSSID extracts the "ssid=..." line from hostapd_cli status output.
func parseSSID(status string) (string, bool) {
	for _, line := range strings.Split(status, "\n") {
		if strings.HasPrefix(line, "ssid=") {
			return strings.TrimPrefix(line, "ssid="), true
		}
	}
	return "", false
}
