package sio_test

import (
	"errors"
	"testing"

	"github.com/jensholdgaard/cricket-auction/internal/sio"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		wantKind  sio.Kind
		wantEvent string
		wantData  string
		wantErr   error
	}{
		{name: "ping", in: "2", wantKind: sio.KindPing},
		{name: "pong", in: "3", wantKind: sio.KindPong},
		{name: "close", in: "1", wantKind: sio.KindClose},
		{name: "noop", in: "6", wantKind: sio.KindNoop},
		{name: "connect ack", in: `40{"sid":"abc"}`, wantKind: sio.KindConnect, wantData: `{"sid":"abc"}`},
		{name: "disconnect", in: "41", wantKind: sio.KindDisconnect},
		{name: "connect error", in: `44{"message":"unauthorized"}`, wantKind: sio.KindConnectError, wantData: `{"message":"unauthorized"}`},
		{
			name:      "event with payload",
			in:        `42["bid:placed",{"amount":500,"teamId":"mi"}]`,
			wantKind:  sio.KindEvent,
			wantEvent: "bid:placed",
			wantData:  `{"amount":500,"teamId":"mi"}`,
		},
		{name: "event without payload", in: `42["auction:started"]`, wantKind: sio.KindEvent, wantEvent: "auction:started"},
		{
			name:      "event on namespace with ack id",
			in:        `42/admin,17["player:sold",{"soldPrice":900}]`,
			wantKind:  sio.KindEvent,
			wantEvent: "player:sold",
			wantData:  `{"soldPrice":900}`,
		},
		{name: "empty", in: "", wantErr: sio.ErrEmptyFrame},
		{name: "upgrade packet", in: "5", wantErr: sio.ErrUnsupported},
		{name: "binary event", in: `451-["x",{"_placeholder":true,"num":0}]`, wantErr: sio.ErrUnsupported},
		{name: "event not an array", in: `42{"x":1}`, wantErr: sio.ErrMalformed},
		{name: "event name not a string", in: `42[7,{}]`, wantErr: sio.ErrMalformed},
		{name: "bad open payload", in: `0{nope`, wantErr: sio.ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := sio.Decode([]byte(tt.in))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Decode(%q) error = %v, want %v", tt.in, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode(%q) error = %v", tt.in, err)
			}
			if f.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", f.Kind, tt.wantKind)
			}
			if f.Event != tt.wantEvent {
				t.Errorf("Event = %q, want %q", f.Event, tt.wantEvent)
			}
			if string(f.Data) != tt.wantData {
				t.Errorf("Data = %s, want %s", f.Data, tt.wantData)
			}
		})
	}
}

func TestDecode_Open(t *testing.T) {
	f, err := sio.Decode([]byte(`0{"sid":"s1","upgrades":[],"pingInterval":25000,"pingTimeout":20000,"maxPayload":1000000}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if f.Kind != sio.KindOpen || f.Open == nil {
		t.Fatalf("frame = %+v, want open", f)
	}
	if f.Open.SID != "s1" || f.Open.PingInterval != 25000 || f.Open.PingTimeout != 20000 {
		t.Errorf("handshake = %+v", f.Open)
	}
}

func TestEncodeEvent(t *testing.T) {
	got, err := sio.EncodeEvent("join:auction", map[string]string{"tournamentId": "t1"})
	if err != nil {
		t.Fatalf("EncodeEvent() error = %v", err)
	}
	if want := `42["join:auction",{"tournamentId":"t1"}]`; string(got) != want {
		t.Errorf("EncodeEvent() = %s, want %s", got, want)
	}

	got, err = sio.EncodeEvent("leave:auction", nil)
	if err != nil {
		t.Fatalf("EncodeEvent() error = %v", err)
	}
	if want := `42["leave:auction"]`; string(got) != want {
		t.Errorf("EncodeEvent(nil) = %s, want %s", got, want)
	}
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "http://localhost:5000", want: "ws://localhost:5000/socket.io/?EIO=4&transport=websocket"},
		{in: "https://auction.example.com/api", want: "wss://auction.example.com/socket.io/?EIO=4&transport=websocket"},
		{in: "wss://auction.example.com", want: "wss://auction.example.com/socket.io/?EIO=4&transport=websocket"},
		{in: "ftp://nope", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := sio.Endpoint(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Endpoint() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Endpoint() = %q, want %q", got, tt.want)
			}
		})
	}
}
