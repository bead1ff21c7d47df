// Command microchand is a demo binary wiring a carrier channel.Channel to a
// datagram or reliable transport engine: it loads a transport and channel
// configuration from a YAML file, then drives a simple stdin/stdout pipe —
// lines typed on stdin are sent over the configured channel, and whatever
// the engine receives is printed to stdout.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/localrivet/microchan/channel"
	"github.com/localrivet/microchan/channel/airtag"
	"github.com/localrivet/microchan/channel/calendar"
	"github.com/localrivet/microchan/channel/wifi"
	"github.com/localrivet/microchan/config"
	"github.com/localrivet/microchan/logx"
	"github.com/localrivet/microchan/transport/datagram"
	"github.com/localrivet/microchan/transport/reliable"
)

// memoryVendor is a trivial in-process stand-in for a real AirTag or
// calendar vendor API, so the demo runs without external hardware or
// accounts. It simply stores the last-written string.
type memoryVendor struct {
	value string
}

func (m *memoryVendor) SetDisplayName(_, name string) error { m.value = name; return nil }
func (m *memoryVendor) DisplayName(_ string) (string, error) { return m.value, nil }
func (m *memoryVendor) SetTitle(_, title string) error       { m.value = title; return nil }
func (m *memoryVendor) Title(_ string) (string, error)       { return m.value, nil }

func buildChannel(spec config.ChannelSpec) (channel.Channel, error) {
	if spec.Type == "loop" {
		return channel.NewPipe(1 << 16), nil
	}

	decoded, err := config.LoadChannelConfig(spec)
	if err != nil {
		return nil, err
	}

	switch cfg := decoded.(type) {
	case config.AirTagConfig:
		return airtag.New(cfg.DeviceID, &memoryVendor{}, airtag.WithMinWriteInterval(cfg.MinWriteInterval)), nil
	case config.WifiConfig:
		opts := []wifi.Option{}
		if cfg.Timeout > 0 {
			opts = append(opts, wifi.WithTimeout(cfg.Timeout))
		}
		return wifi.New(cfg.Interface, opts...), nil
	case config.CalendarConfig:
		return calendar.New(cfg.EventID, &memoryVendor{}, calendar.WithMinWriteInterval(cfg.MinWriteInterval)), nil
	default:
		return nil, fmt.Errorf("microchand: unsupported channel type %q", spec.Type)
	}
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	channelID := flag.Uint("channel", 0, "channel_id to send/receive on")
	flag.Parse()

	if *configPath == "" {
		log.Fatal("microchand: -config is required")
	}

	appCfg, err := config.LoadFile(*configPath)
	if err != nil {
		log.Fatalf("microchand: %v", err)
	}

	logger := logx.NewLogger(appCfg.LoggerLevel)
	logger.Info("loaded config from %s (mode=%s, channel=%s)", *configPath, appCfg.Mode, appCfg.Channel.Type)

	ch, err := buildChannel(appCfg.Channel)
	if err != nil {
		log.Fatalf("microchand: building channel: %v", err)
	}

	tunables := config.New(appCfg.Transport.ToOptions()...)
	id := uint16(*channelID)

	switch appCfg.Mode {
	case "reliable":
		engine := reliable.New(
			reliable.WithMTU(tunables.MTU),
			reliable.WithInitialTimeout(tunables.InitialTimeout),
			reliable.WithBackoffFactor(tunables.BackoffFactor),
			reliable.WithMaxRetries(tunables.MaxRetries),
			reliable.WithFragmentTimeout(tunables.FragmentTimeout),
			reliable.WithLogger(logger),
		)
		defer engine.Shutdown()
		runDemo(logger, ch, id,
			func(payload []byte) error { return engine.Send(ch, id, payload) },
			func() ([]byte, bool) { return engine.Recv(ch, id) },
		)
	default:
		engine := datagram.New(
			datagram.WithMTU(tunables.MTU),
			datagram.WithFragmentTimeout(tunables.FragmentTimeout),
			datagram.WithLogger(logger),
		)
		runDemo(logger, ch, id,
			func(payload []byte) error { return engine.Send(ch, id, payload) },
			func() ([]byte, bool) { return engine.Recv(ch, id) },
		)
	}
}

// runDemo pumps stdin lines to send and prints whatever comes back, until
// stdin closes.
func runDemo(logger logx.Logger, ch channel.Channel, id uint16, send func([]byte) error, recv func() ([]byte, bool)) {
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
			}
			if payload, ok := recv(); ok {
				fmt.Printf("<< %s\n", payload)
			}
		}
	}()
	defer close(done)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := send([]byte(line)); err != nil {
			logger.Error("send failed: %v", err)
		}
	}
}
