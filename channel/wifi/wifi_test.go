package wifi

import (
	"context"
	"strings"
	"testing"
)

type fakeRunner struct {
	status   string
	calls    []string
	failNext bool
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	f.calls = append(f.calls, strings.Join(append([]string{name}, args...), " "))
	if len(args) >= 1 && args[len(args)-1] == "status" {
		return f.status, nil
	}
	if len(args) >= 2 && args[len(args)-2] == "set" {
		return "OK", nil
	}
	return "OK", nil
}

func TestEmitSetsAndReloads(t *testing.T) {
	r := &fakeRunner{}
	c := New("wlan0", WithRunner(r))

	if err := c.Emit([]byte("new-network-name")); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(r.calls) != 2 {
		t.Fatalf("expected set+reload calls, got %v", r.calls)
	}
	if !strings.Contains(r.calls[0], "set ssid new-network-name") {
		t.Fatalf("unexpected first call: %s", r.calls[0])
	}
	if !strings.Contains(r.calls[1], "reload") {
		t.Fatalf("unexpected second call: %s", r.calls[1])
	}
}

func TestEmitRejectsOversizedFrame(t *testing.T) {
	c := New("wlan0", WithRunner(&fakeRunner{}))
	oversized := make([]byte, MaxSSIDBytes+1)
	if err := c.Emit(oversized); err != ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestPollParsesSSIDAndDedupsUnchanged(t *testing.T) {
	r := &fakeRunner{status: "state=ENABLED\nssid=my-network\nchannel=6\n"}
	c := New("wlan0", WithRunner(r))

	frame, ok := c.Poll()
	if !ok || string(frame) != "my-network" {
		t.Fatalf("got %q, %v; want my-network, true", frame, ok)
	}

	_, ok = c.Poll()
	if ok {
		t.Fatalf("expected no change on repeated poll")
	}

	r.status = "state=ENABLED\nssid=renamed\nchannel=6\n"
	frame, ok = c.Poll()
	if !ok || string(frame) != "renamed" {
		t.Fatalf("got %q, %v; want renamed, true", frame, ok)
	}
}

func TestParseSSIDMissingLine(t *testing.T) {
	if _, ok := parseSSID("state=ENABLED\nchannel=6\n"); ok {
		t.Fatalf("expected no ssid parsed")
	}
}
