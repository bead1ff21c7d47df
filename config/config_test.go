package config

import (
	"testing"
	"time"

	"github.com/localrivet/microchan/wire"
)

func TestNewAppliesDefaults(t *testing.T) {
	c := New()
	if c.MTU != wire.DefaultMTU {
		t.Fatalf("got MTU %d, want default %d", c.MTU, wire.DefaultMTU)
	}
	if c.InitialTimeout != wire.InitialTimeout {
		t.Fatalf("got InitialTimeout %v, want default %v", c.InitialTimeout, wire.InitialTimeout)
	}
}

func TestNewAppliesOptions(t *testing.T) {
	c := New(WithMTU(100), WithMaxRetries(3))
	if c.MTU != 100 {
		t.Fatalf("got MTU %d, want 100", c.MTU)
	}
	if c.MaxRetries != 3 {
		t.Fatalf("got MaxRetries %d, want 3", c.MaxRetries)
	}
	if c.BackoffFactor != wire.BackoffFactor {
		t.Fatalf("unset field should keep default, got %v", c.BackoffFactor)
	}
}

func TestLoadChannelConfigAirTag(t *testing.T) {
	spec := ChannelSpec{
		Type: "airtag",
		Params: map[string]any{
			"device_id":          "AABBCC",
			"min_write_interval": "10s",
		},
	}
	decoded, err := LoadChannelConfig(spec)
	if err != nil {
		t.Fatalf("LoadChannelConfig: %v", err)
	}
	cfg, ok := decoded.(AirTagConfig)
	if !ok {
		t.Fatalf("expected AirTagConfig, got %T", decoded)
	}
	if cfg.DeviceID != "AABBCC" {
		t.Fatalf("got device id %q", cfg.DeviceID)
	}
	if cfg.MinWriteInterval != 10*time.Second {
		t.Fatalf("got interval %v, want 10s", cfg.MinWriteInterval)
	}
}

func TestLoadChannelConfigWifi(t *testing.T) {
	spec := ChannelSpec{
		Type: "wifi",
		Params: map[string]any{
			"interface": "wlan0",
			"timeout":   "2s",
		},
	}
	decoded, err := LoadChannelConfig(spec)
	if err != nil {
		t.Fatalf("LoadChannelConfig: %v", err)
	}
	cfg, ok := decoded.(WifiConfig)
	if !ok {
		t.Fatalf("expected WifiConfig, got %T", decoded)
	}
	if cfg.Interface != "wlan0" {
		t.Fatalf("got interface %q", cfg.Interface)
	}
}

func TestLoadChannelConfigUnknownType(t *testing.T) {
	_, err := LoadChannelConfig(ChannelSpec{Type: "carrier-pigeon"})
	if err == nil {
		t.Fatalf("expected error for unknown channel type")
	}
}

func TestDurationUnmarshalYAML(t *testing.T) {
	var d Duration
	err := d.UnmarshalYAML(func(v interface{}) error {
		*(v.(*string)) = "1500ms"
		return nil
	})
	if err != nil {
		t.Fatalf("UnmarshalYAML: %v", err)
	}
	if d.Duration() != 1500*time.Millisecond {
		t.Fatalf("got %v, want 1500ms", d.Duration())
	}
}
