// Package wschannel implements channel.Channel over a WebSocket connection,
// for demos and testing where a real low-bandwidth carrier field isn't
// available. It uses the gobwas/ws + gobwas/ws/wsutil pairing, a drop-oldest
// buffered read loop, and a client/server mode split driven off the dial
// address.
package wschannel

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// ErrNotConnected is returned by Emit before a client connection completes.
var ErrNotConnected = errors.New("wschannel: not connected")

// ErrFrameTooLarge is returned when a frame exceeds MaxBytes.
var ErrFrameTooLarge = errors.New("wschannel: frame exceeds max size")

const defaultMaxBytes = 1 << 16
const readBuffer = 64

// Channel carries frames as binary WebSocket messages. One Channel serves
// one connection; a server Channel accepts exactly one peer and ignores
// subsequent upgrade attempts, since the underlying transport contract
// models a single half-duplex carrier.
type Channel struct {
	maxBytes int
	isClient bool

	mu   sync.Mutex
	conn net.Conn

	incoming chan []byte
	errCh    chan error
	done     chan struct{}
}

func newChannel(isClient bool) *Channel {
	return &Channel{
		maxBytes: defaultMaxBytes,
		isClient: isClient,
		incoming: make(chan []byte, readBuffer),
		errCh:    make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// DialClient connects to a ws:// or wss:// server and returns a Channel
// bound to that connection.
func DialClient(ctx context.Context, addr string) (*Channel, error) {
	if !strings.HasPrefix(addr, "ws://") && !strings.HasPrefix(addr, "wss://") {
		return nil, errors.New("wschannel: addr must be ws:// or wss://")
	}
	conn, _, _, err := ws.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	c := newChannel(true)
	c.conn = conn
	go c.readLoop()
	return c, nil
}

// UpgradeHandler returns an http.HandlerFunc that upgrades the first
// incoming request to a WebSocket and binds it as this Channel's peer.
// Subsequent upgrade attempts are rejected.
func UpgradeHandler(c *Channel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}

		c.mu.Lock()
		if c.conn != nil {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		c.mu.Unlock()

		go c.readLoop()
	}
}

// NewServerChannel creates an unbound Channel; pair it with UpgradeHandler
// registered on an *http.ServeMux to accept the first client.
func NewServerChannel() *Channel {
	return newChannel(false)
}

func (c *Channel) readLoop() {
	defer func() {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		var msg []byte
		var op ws.OpCode
		var err error
		if c.isClient {
			msg, op, err = wsutil.ReadServerData(conn)
		} else {
			msg, op, err = wsutil.ReadClientData(conn)
		}
		if err != nil {
			select {
			case c.errCh <- err:
			default:
			}
			return
		}
		if op == ws.OpClose {
			return
		}
		if op != ws.OpBinary && op != ws.OpText {
			continue
		}

		select {
		case c.incoming <- msg:
		default:
			// drop the oldest buffered frame to make room for the new one.
			select {
			case <-c.incoming:
			default:
			}
			c.incoming <- msg
		}
	}
}

// Emit writes frame as a binary WebSocket message.
func (c *Channel) Emit(frame []byte) error {
	if len(frame) > c.maxBytes {
		return ErrFrameTooLarge
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	if c.isClient {
		return wsutil.WriteClientMessage(conn, ws.OpBinary, frame)
	}
	return wsutil.WriteServerMessage(conn, ws.OpBinary, frame)
}

// Poll returns the next buffered frame, if any, without blocking.
func (c *Channel) Poll() ([]byte, bool) {
	select {
	case msg := <-c.incoming:
		return msg, true
	default:
		return nil, false
	}
}

// MaxBytes is the configured maximum frame size.
func (c *Channel) MaxBytes() int { return c.maxBytes }

// Close tears down the underlying connection.
func (c *Channel) Close() error {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}
