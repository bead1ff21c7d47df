package config

import (
	"fmt"
	"time"
)

// Duration wraps time.Duration so YAML values like "5s" decode the way a
// reader of the file would expect, instead of yaml.v3's default of treating
// time.Duration as a bare int64 of nanoseconds.
type Duration time.Duration

// UnmarshalYAML accepts either a duration string ("5s") or a bare integer
// number of nanoseconds.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var asString string
	if err := unmarshal(&asString); err == nil {
		parsed, err := time.ParseDuration(asString)
		if err != nil {
			return fmt.Errorf("config: invalid duration %q: %w", asString, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var asNanos int64
	if err := unmarshal(&asNanos); err != nil {
		return fmt.Errorf("config: duration must be a string or integer nanoseconds: %w", err)
	}
	*d = Duration(asNanos)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }
