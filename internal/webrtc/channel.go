package webrtc

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"
)

const (
	HighWaterMark = 256 * 1024 // pause sending when bufferedAmount exceeds this
	LowWaterMark  = 64 * 1024  // resume sending when bufferedAmount drops below this
)

// ErrCongested is returned by TrySend while the send buffer is above HighWaterMark.
var ErrCongested = errors.New("data channel congested")

// DataChannel wraps a pion DataChannel with send backpressure.
type DataChannel struct {
	raw       *webrtc.DataChannel
	sendReady chan struct{}
}

// NewDataChannel wraps raw and arms its buffered-amount-low notification.
func NewDataChannel(raw *webrtc.DataChannel) *DataChannel {
	ch := &DataChannel{
		raw:       raw,
		sendReady: make(chan struct{}, 1),
	}

	raw.SetBufferedAmountLowThreshold(uint64(LowWaterMark))
	raw.OnBufferedAmountLow(func() {
		select {
		case ch.sendReady <- struct{}{}:
		default:
		}
	})

	return ch
}

func (c *DataChannel) congested() bool {
	return c.raw.BufferedAmount() > uint64(HighWaterMark)
}

// Send writes data, blocking while the buffer is above HighWaterMark until
// it drains or ctx is done.
func (c *DataChannel) Send(ctx context.Context, data []byte) error {
	if c.congested() {
		select {
		case <-c.sendReady:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return c.raw.Send(data)
}

// TrySend writes data unless the buffer is above HighWaterMark.
func (c *DataChannel) TrySend(data []byte) error {
	if c.congested() {
		return ErrCongested
	}
	return c.raw.Send(data)
}

// OnFrame registers the handler for inbound binary messages.
func (c *DataChannel) OnFrame(fn func([]byte)) {
	c.raw.OnMessage(func(msg webrtc.DataChannelMessage) {
		if msg.IsString {
			return
		}
		fn(msg.Data)
	})
}

// OnOpen / OnClose / Raw proxy the underlying channel.
func (c *DataChannel) OnOpen(fn func())         { c.raw.OnOpen(fn) }
func (c *DataChannel) OnClose(fn func())        { c.raw.OnClose(fn) }
func (c *DataChannel) Raw() *webrtc.DataChannel { return c.raw }
