// Package config holds the tunable protocol constants as a functional-option
// struct, plus a YAML file loader and a mapstructure-based decoder for the
// carrier-specific config blob.
package config

import (
	"time"

	"github.com/localrivet/microchan/wire"
)

// Config holds the tunables shared by the datagram and reliable engines.
// The transport/reliable.Option set mirrors these fields one-for-one;
// transport/datagram.Option covers only MTU and FragmentTimeout. Config
// exists so a single config file section can configure either engine
// without duplicating the option list.
type Config struct {
	MTU             int
	InitialTimeout  time.Duration
	BackoffFactor   float64
	MaxRetries      int
	FragmentTimeout time.Duration
}

// Option configures a Config.
type Option func(*Config)

// WithMTU overrides wire.DefaultMTU.
func WithMTU(mtu int) Option {
	return func(c *Config) { c.MTU = mtu }
}

// WithInitialTimeout overrides wire.InitialTimeout.
func WithInitialTimeout(d time.Duration) Option {
	return func(c *Config) { c.InitialTimeout = d }
}

// WithBackoffFactor overrides wire.BackoffFactor.
func WithBackoffFactor(f float64) Option {
	return func(c *Config) { c.BackoffFactor = f }
}

// WithMaxRetries overrides wire.MaxRetries.
func WithMaxRetries(n int) Option {
	return func(c *Config) { c.MaxRetries = n }
}

// WithFragmentTimeout overrides wire.FragmentTimeout.
func WithFragmentTimeout(d time.Duration) Option {
	return func(c *Config) { c.FragmentTimeout = d }
}

// New builds a Config from the protocol defaults, overridden by opts.
func New(opts ...Option) Config {
	c := Config{
		MTU:             wire.DefaultMTU,
		InitialTimeout:  wire.InitialTimeout,
		BackoffFactor:   wire.BackoffFactor,
		MaxRetries:      wire.MaxRetries,
		FragmentTimeout: wire.FragmentTimeout,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
