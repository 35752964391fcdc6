package sio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Errors returned by Conn.
var (
	ErrClosed         = errors.New("sio: connection closed by server")
	ErrConnectRefused = errors.New("sio: namespace connect refused")
	ErrHandshake      = errors.New("sio: handshake failed")
)

// Message is one server-pushed event.
type Message struct {
	Event string
	Data  json.RawMessage
}

// Endpoint turns a server base URL into the Socket.IO WebSocket endpoint.
func Endpoint(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing socket url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("socket url %q: unsupported scheme %q", base, u.Scheme)
	}
	u.Path = "/socket.io/"
	u.RawQuery = url.Values{"EIO": {"4"}, "transport": {"websocket"}}.Encode()
	return u.String(), nil
}

// Conn is a connected Socket.IO client on the default namespace. Emit may
// be called concurrently with Read; Read must have a single caller.
type Conn struct {
	ws        *websocket.Conn
	handshake Handshake
	sid       string

	wmu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// Dial connects to base (an http(s) or ws(s) URL of the server) and
// completes the Engine.IO and namespace handshakes.
func Dial(ctx context.Context, base string, header http.Header) (*Conn, error) {
	endpoint, err := Endpoint(base)
	if err != nil {
		return nil, err
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", endpoint, err)
	}

	c := &Conn{ws: ws}
	if err := c.handshakeWith(ctx); err != nil {
		_ = ws.Close()
		return nil, err
	}
	return c, nil
}

func (c *Conn) handshakeWith(ctx context.Context) error {
	if dl, ok := ctx.Deadline(); ok {
		_ = c.ws.SetReadDeadline(dl)
		defer func() { _ = c.ws.SetReadDeadline(time.Time{}) }()
	}

	f, err := c.readFrame()
	if err != nil {
		return fmt.Errorf("%w: reading open packet: %v", ErrHandshake, err)
	}
	if f.Kind != KindOpen {
		return fmt.Errorf("%w: expected open packet, got %s", ErrHandshake, f.Kind)
	}
	c.handshake = *f.Open

	if err := c.write(ctx, connectPacket); err != nil {
		return fmt.Errorf("%w: sending connect: %v", ErrHandshake, err)
	}

	for {
		f, err := c.readFrame()
		if err != nil {
			return fmt.Errorf("%w: awaiting connect ack: %v", ErrHandshake, err)
		}
		switch f.Kind {
		case KindConnect:
			var ack struct {
				SID string `json:"sid"`
			}
			_ = json.Unmarshal(f.Data, &ack)
			c.sid = ack.SID
			return nil
		case KindConnectError:
			return fmt.Errorf("%w: %s", ErrConnectRefused, f.Data)
		case KindPing:
			if err := c.write(ctx, pongPacket); err != nil {
				return fmt.Errorf("%w: answering ping: %v", ErrHandshake, err)
			}
		case KindClose:
			return fmt.Errorf("%w: %v", ErrHandshake, ErrClosed)
		}
	}
}

// Handshake returns the Engine.IO session parameters.
func (c *Conn) Handshake() Handshake { return c.handshake }

// SID returns the namespace session ID assigned by the server.
func (c *Conn) SID() string { return c.sid }

// Emit sends an event with one JSON argument.
func (c *Conn) Emit(ctx context.Context, event string, payload any) error {
	msg, err := EncodeEvent(event, payload)
	if err != nil {
		return err
	}
	return c.write(ctx, msg)
}

// Read blocks until the next event, answering heartbeats on the way. A
// server disconnect returns ErrClosed. Close unblocks a pending Read.
func (c *Conn) Read(ctx context.Context) (Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Message{}, err
		}
		if d := c.liveness(); d > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(d))
		}

		f, err := c.readFrame()
		if errors.Is(err, ErrUnsupported) || errors.Is(err, ErrMalformed) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Message{}, ctxErr
			}
			return Message{}, err
		}

		switch f.Kind {
		case KindEvent:
			return Message{Event: f.Event, Data: f.Data}, nil
		case KindPing:
			if err := c.write(ctx, pongPacket); err != nil {
				return Message{}, fmt.Errorf("answering ping: %w", err)
			}
		case KindDisconnect, KindClose:
			return Message{}, ErrClosed
		}
	}
}

// Close sends a namespace disconnect and closes the socket. It is safe to
// call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.wmu.Lock()
		_ = c.ws.SetWriteDeadline(time.Now().Add(time.Second))
		_ = c.ws.WriteMessage(websocket.TextMessage, closePacket)
		c.wmu.Unlock()
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// liveness is how long the server may stay silent before the connection
// counts as lost.
func (c *Conn) liveness() time.Duration {
	return time.Duration(c.handshake.PingInterval+c.handshake.PingTimeout) * time.Millisecond
}

func (c *Conn) readFrame() (Frame, error) {
	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			return Frame{}, err
		}
		if typ != websocket.TextMessage {
			continue
		}
		return Decode(data)
	}
}

func (c *Conn) write(ctx context.Context, msg []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	deadline := time.Now().Add(10 * time.Second)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = c.ws.SetWriteDeadline(deadline)
	return c.ws.WriteMessage(websocket.TextMessage, msg)
}
