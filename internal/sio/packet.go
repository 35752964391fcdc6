// Package sio is a minimal Socket.IO v5 client speaking Engine.IO v4 over
// the WebSocket transport. It covers the default namespace, text events
// and the heartbeat. Acks and binary attachments are rejected.
package sio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind classifies a decoded frame.
type Kind int

const (
	KindOpen Kind = iota + 1
	KindClose
	KindPing
	KindPong
	KindNoop
	KindConnect
	KindDisconnect
	KindEvent
	KindConnectError
)

func (k Kind) String() string {
	switch k {
	case KindOpen:
		return "open"
	case KindClose:
		return "close"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	case KindNoop:
		return "noop"
	case KindConnect:
		return "connect"
	case KindDisconnect:
		return "disconnect"
	case KindEvent:
		return "event"
	case KindConnectError:
		return "connect_error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Engine.IO packet types.
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
	eioNoop    = '6'
)

// Socket.IO packet types, carried inside an Engine.IO message.
const (
	sioConnect      = '0'
	sioDisconnect   = '1'
	sioEvent        = '2'
	sioConnectError = '4'
)

// Errors returned by Decode.
var (
	ErrEmptyFrame  = errors.New("sio: empty frame")
	ErrUnsupported = errors.New("sio: unsupported packet")
	ErrMalformed   = errors.New("sio: malformed packet")
)

// Handshake is the payload of the Engine.IO open packet. Intervals are in
// milliseconds.
type Handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload"`
}

// Frame is one decoded WebSocket message.
type Frame struct {
	Kind Kind
	// Open is set for KindOpen.
	Open *Handshake
	// Event is the event name for KindEvent.
	Event string
	// Data is the first event argument for KindEvent, or the raw payload of
	// KindConnect and KindConnectError.
	Data json.RawMessage
}

// Decode parses one Engine.IO text frame.
func Decode(msg []byte) (Frame, error) {
	if len(msg) == 0 {
		return Frame{}, ErrEmptyFrame
	}
	switch msg[0] {
	case eioOpen:
		var hs Handshake
		if err := json.Unmarshal(msg[1:], &hs); err != nil {
			return Frame{}, fmt.Errorf("%w: open payload: %v", ErrMalformed, err)
		}
		return Frame{Kind: KindOpen, Open: &hs}, nil
	case eioClose:
		return Frame{Kind: KindClose}, nil
	case eioPing:
		return Frame{Kind: KindPing}, nil
	case eioPong:
		return Frame{Kind: KindPong}, nil
	case eioNoop:
		return Frame{Kind: KindNoop}, nil
	case eioMessage:
		return decodeSocket(msg[1:])
	default:
		return Frame{}, fmt.Errorf("%w: engine type %q", ErrUnsupported, msg[0])
	}
}

func decodeSocket(p []byte) (Frame, error) {
	if len(p) == 0 {
		return Frame{}, fmt.Errorf("%w: empty socket packet", ErrMalformed)
	}
	typ, rest := p[0], skipNamespace(p[1:])
	switch typ {
	case sioConnect:
		return Frame{Kind: KindConnect, Data: json.RawMessage(rest)}, nil
	case sioDisconnect:
		return Frame{Kind: KindDisconnect}, nil
	case sioConnectError:
		return Frame{Kind: KindConnectError, Data: json.RawMessage(rest)}, nil
	case sioEvent:
		rest = bytes.TrimLeft(rest, "0123456789") // ack id
		var args []json.RawMessage
		if err := json.Unmarshal(rest, &args); err != nil || len(args) == 0 {
			return Frame{}, fmt.Errorf("%w: event arguments", ErrMalformed)
		}
		var name string
		if err := json.Unmarshal(args[0], &name); err != nil {
			return Frame{}, fmt.Errorf("%w: event name", ErrMalformed)
		}
		f := Frame{Kind: KindEvent, Event: name}
		if len(args) > 1 {
			f.Data = args[1]
		}
		return f, nil
	default:
		return Frame{}, fmt.Errorf("%w: socket type %q", ErrUnsupported, typ)
	}
}

// skipNamespace drops a leading "/nsp," prefix.
func skipNamespace(p []byte) []byte {
	if len(p) == 0 || p[0] != '/' {
		return p
	}
	if i := bytes.IndexByte(p, ','); i >= 0 {
		return p[i+1:]
	}
	return nil
}

// EncodeEvent renders 42["name",payload]. A nil payload sends the name only.
func EncodeEvent(name string, payload any) ([]byte, error) {
	args := []any{name}
	if payload != nil {
		args = append(args, payload)
	}
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", name, err)
	}
	return append([]byte{eioMessage, sioEvent}, body...), nil
}

var (
	connectPacket = []byte{eioMessage, sioConnect}
	pongPacket    = []byte{eioPong}
	closePacket   = []byte{eioMessage, sioDisconnect}
)
