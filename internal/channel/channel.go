// Package channel provides the message channels that carry relay frames:
// a Channel interface with two reliability classes, an inbound dispatch
// queue drained on the caller's goroutine, and WebSocket and WebRTC
// implementations.
package channel

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by Send on a channel that is not connected.
	ErrNotConnected = errors.New("channel not connected")

	// ErrAlreadyConnected is returned by Connect on a live channel.
	ErrAlreadyConnected = errors.New("channel already connected")
)

// Reliability is the delivery class of a frame.
type Reliability uint8

const (
	// Reliable frames are delivered in order and retransmitted if lost.
	Reliable Reliability = iota
	// Unreliable frames are best-effort and may arrive out of order.
	Unreliable
)

func (r Reliability) String() string {
	switch r {
	case Reliable:
		return "reliable"
	case Unreliable:
		return "unreliable"
	}
	return fmt.Sprintf("Reliability(%d)", uint8(r))
}

// Valid reports whether r is one of the defined classes.
func (r Reliability) Valid() bool { return r <= Unreliable }

// Message is one inbound frame together with the class it arrived on.
type Message struct {
	Frame       []byte
	Reliability Reliability
}

// Channel is a connection to the relay. Inbound frames and the disconnect
// notification are queued by the implementation's I/O goroutines and only
// delivered to the registered handlers from DispatchPending, so handlers
// always run on the goroutine that pumps the channel.
type Channel interface {
	// Connect dials the relay at address:port, over TLS if secure is set.
	Connect(ctx context.Context, address string, port uint16, secure bool) error

	// Send hands one frame to the relay using the given delivery class.
	Send(frame []byte, r Reliability) error

	// OnMessage registers the inbound frame handler.
	OnMessage(fn func(Message))

	// OnDisconnected registers the handler run once when the relay connection is lost.
	OnDisconnected(fn func())

	// DispatchPending runs the queued inbound work and returns how many
	// tasks were run.
	DispatchPending() int

	// Pending signals whenever new inbound work is queued.
	Pending() <-chan struct{}

	// Connected reports whether the relay connection is up.
	Connected() bool

	// Disconnect closes the relay connection.
	Disconnect() error
}
