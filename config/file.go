package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TransportSpec is the YAML-facing mirror of Config; durations are parsed
// from strings like "5s" via the Duration wrapper type.
type TransportSpec struct {
	MTU             int      `yaml:"mtu"`
	InitialTimeout  Duration `yaml:"initial_timeout"`
	BackoffFactor   float64  `yaml:"backoff_factor"`
	MaxRetries      int      `yaml:"max_retries"`
	FragmentTimeout Duration `yaml:"fragment_timeout"`
}

// ToOptions converts a TransportSpec into Config options, skipping any field
// left at its zero value so unset fields fall back to protocol defaults.
func (s TransportSpec) ToOptions() []Option {
	var opts []Option
	if s.MTU != 0 {
		opts = append(opts, WithMTU(s.MTU))
	}
	if s.InitialTimeout != 0 {
		opts = append(opts, WithInitialTimeout(s.InitialTimeout.Duration()))
	}
	if s.BackoffFactor != 0 {
		opts = append(opts, WithBackoffFactor(s.BackoffFactor))
	}
	if s.MaxRetries != 0 {
		opts = append(opts, WithMaxRetries(s.MaxRetries))
	}
	if s.FragmentTimeout != 0 {
		opts = append(opts, WithFragmentTimeout(s.FragmentTimeout.Duration()))
	}
	return opts
}

// AppConfig is the top-level shape of a microchand config file.
type AppConfig struct {
	ServerName  string        `yaml:"server_name"`
	LoggerLevel string        `yaml:"logger_level"`
	Mode        string        `yaml:"mode"` // "datagram" or "reliable"
	Transport   TransportSpec `yaml:"transport"`
	Channel     ChannelSpec   `yaml:"channel"`
}

// LoadFile reads and parses a YAML config file at path.
func LoadFile(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &cfg, nil
}
