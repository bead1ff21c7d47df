package wschannel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRoundTripClientToServer(t *testing.T) {
	server := NewServerChannel()
	mux := http.NewServeMux()
	mux.HandleFunc("/", UpgradeHandler(server))
	httpServer := httptest.NewServer(mux)
	defer httpServer.Close()
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := DialClient(ctx, wsURL)
	if err != nil {
		t.Fatalf("DialClient: %v", err)
	}
	defer client.Close()

	if err := client.Emit([]byte("ping")); err != nil {
		t.Fatalf("client Emit: %v", err)
	}

	var frame []byte
	var ok bool
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		frame, ok = server.Poll()
		if ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !ok || string(frame) != "ping" {
		t.Fatalf("server did not receive frame: got %q, %v", frame, ok)
	}

	if err := server.Emit([]byte("pong")); err != nil {
		t.Fatalf("server Emit: %v", err)
	}

	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		frame, ok = client.Poll()
		if ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !ok || string(frame) != "pong" {
		t.Fatalf("client did not receive frame: got %q, %v", frame, ok)
	}
}

func TestEmitRejectsOversizedFrame(t *testing.T) {
	c := NewServerChannel()
	oversized := make([]byte, defaultMaxBytes+1)
	if err := c.Emit(oversized); err != ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestEmitBeforeConnectFails(t *testing.T) {
	c := NewServerChannel()
	if err := c.Emit([]byte("hi")); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}
