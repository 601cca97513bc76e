package transport

import (
	"context"
	"encoding/json"
)

// ConnectionState describes the push channel from the client's perspective.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
)

// PushEvent is one decoded message from the push channel.
type PushEvent struct {
	Name    string
	Payload json.RawMessage
}

// Handler receives push events and connection-state changes. Implementations
// must not block; the transport delivers callbacks serially.
type Handler interface {
	HandleEvent(event PushEvent)
	HandleConnectionState(state ConnectionState)
}

// PushTransport is the injected send/receive/subscribe capability. The wire
// implementation (websocket or otherwise) lives outside this module.
type PushTransport interface {
	Connect(ctx context.Context, handler Handler) error
	Close() error
}
