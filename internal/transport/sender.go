package transport

import (
	"fmt"

	"github.com/1ureka/darkrelay/internal/channel"
	"github.com/1ureka/darkrelay/internal/protocol"
)

const (
	// MaxPacketSize is the payload size callers should stay under on
	// either channel.
	MaxPacketSize = 1000

	// MaxBatchRecipients bounds the recipient list of one SendData frame.
	MaxBatchRecipients = 10
)

// Channel IDs exposed to callers.
const (
	ChannelReliable   = 0
	ChannelUnreliable = 1
)

// reliabilityOf maps a caller channel ID to its delivery class.
func reliabilityOf(channelID int) (channel.Reliability, error) {
	switch channelID {
	case ChannelReliable:
		return channel.Reliable, nil
	case ChannelUnreliable:
		return channel.Unreliable, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrInvalidChannel, channelID)
}

// channelIDOf maps the class a frame arrived on back to a caller channel ID.
func channelIDOf(r channel.Reliability) int {
	if r == channel.Unreliable {
		return ChannelUnreliable
	}
	return ChannelReliable
}

// BatchRecipients splits ids into consecutive batches of at most
// MaxBatchRecipients, keeping their order.
func BatchRecipients(ids []uint16) [][]uint16 {
	var batches [][]uint16
	for len(ids) > MaxBatchRecipients {
		batches = append(batches, ids[:MaxBatchRecipients:MaxBatchRecipients])
		ids = ids[MaxBatchRecipients:]
	}
	if len(ids) > 0 {
		batches = append(batches, ids)
	}
	return batches
}

// sendLocked encodes msg and hands it to the channel. t.mu must be held.
func (t *Transport) sendLocked(msg protocol.Message, r channel.Reliability) error {
	frame := protocol.Encode(msg)
	if err := t.ch.Send(frame, r); err != nil {
		return fmt.Errorf("send %s: %w", msg.Kind(), err)
	}
	t.log.Debug("sent %s (%d bytes, %s)", msg.Kind(), len(frame), r)
	return nil
}
