package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// ChannelSpec is the carrier-selection section of a config file: a type tag
// plus a free-form params blob whose shape depends on that type.
type ChannelSpec struct {
	Type   string         `yaml:"type"`
	Params map[string]any `yaml:"params"`
}

// AirTagConfig configures a channel/airtag.Channel.
type AirTagConfig struct {
	DeviceID         string        `mapstructure:"device_id"`
	MinWriteInterval time.Duration `mapstructure:"min_write_interval"`
}

// WifiConfig configures a channel/wifi.Channel.
type WifiConfig struct {
	Interface string        `mapstructure:"interface"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// CalendarConfig configures a channel/calendar.Channel.
type CalendarConfig struct {
	EventID          string        `mapstructure:"event_id"`
	MinWriteInterval time.Duration `mapstructure:"min_write_interval"`
}

// LoadChannelConfig decodes spec.Params into the typed config matching
// spec.Type, using mapstructure instead of a hand-rolled type switch over
// every field the way a JSON-struct-per-type decoder would need. Supported
// types: "airtag", "wifi", "calendar".
func LoadChannelConfig(spec ChannelSpec) (any, error) {
	decodeInto := func(out any) error {
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
			WeaklyTypedInput: true,
			Result:           out,
		})
		if err != nil {
			return fmt.Errorf("config: building decoder: %w", err)
		}
		return decoder.Decode(spec.Params)
	}

	switch spec.Type {
	case "airtag":
		var cfg AirTagConfig
		if err := decodeInto(&cfg); err != nil {
			return nil, fmt.Errorf("config: decoding airtag params: %w", err)
		}
		return cfg, nil
	case "wifi":
		var cfg WifiConfig
		if err := decodeInto(&cfg); err != nil {
			return nil, fmt.Errorf("config: decoding wifi params: %w", err)
		}
		return cfg, nil
	case "calendar":
		var cfg CalendarConfig
		if err := decodeInto(&cfg); err != nil {
			return nil, fmt.Errorf("config: decoding calendar params: %w", err)
		}
		return cfg, nil
	default:
		return nil, fmt.Errorf("config: unknown channel type %q", spec.Type)
	}
}
