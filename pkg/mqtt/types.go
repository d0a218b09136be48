package mqtt

import (
	"context"
	"errors"
)

// ErrNotConnected is returned by operations that need a live session.
var ErrNotConnected = errors.New("mqtt: not connected")

// MessageHandler defines the callback function for processing received MQTT messages.
//
// Handlers run on the session's receive path: a handler that blocks stops the
// client from reading further packets until it returns.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Client defines the interface for a generic MQTT client.
// It abstracts the underlying paho implementation details.
//
// A Client owns at most one broker session at a time. It never reconnects on
// its own: when the session ends, Done is closed and the owner decides whether
// and when to call Connect again.
type Client interface {
	// Connect dials the broker and performs the MQTT handshake. It blocks until
	// the session is established or fails, and may be called again once the
	// previous session has ended.
	Connect(ctx context.Context) error

	// Disconnect cleanly closes the current session.
	Disconnect(ctx context.Context)

	// Publish sends a message to the specified topic.
	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error

	// Subscribe registers a handler for a specific topic filter.
	// Registered filters are subscribed again by every subsequent Connect.
	Subscribe(ctx context.Context, topic string, qos int, handler MessageHandler) error

	// Unsubscribe removes the handler and sends an UNSUBSCRIBE packet.
	Unsubscribe(ctx context.Context, topic string) error

	// IsConnected returns true if the client currently holds a live session.
	IsConnected() bool

	// Done is closed when the current session ends. Err reports why.
	Done() <-chan struct{}

	// Err returns the reason the last session ended, or nil.
	Err() error
}
