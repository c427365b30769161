package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/1ureka/darkrelay/internal/signaling"
	"github.com/1ureka/darkrelay/internal/util"
	"github.com/1ureka/darkrelay/internal/webrtc"
)

// SignalPath is the relay's WebRTC signaling endpoint.
const SignalPath = "/signal"

var errPeerClosed = errors.New("peer connection closed")

// RTCChannel carries relay frames over two WebRTC DataChannels: reliable
// frames on an ordered reliable channel, unreliable frames on an unordered
// channel without retransmission. The frames travel without a class prefix.
type RTCChannel struct {
	handlers
	dispatcher *Dispatcher
	log        util.Logger

	mu   sync.Mutex // guards peer
	peer *webrtc.Peer

	connected atomic.Bool
}

// NewRTCChannel creates an unconnected WebRTC channel.
func NewRTCChannel() *RTCChannel {
	return &RTCChannel{
		dispatcher: NewDispatcher(),
		log:        util.NewLogger("rtc", ""),
	}
}

// Connect signals with the relay and blocks until both DataChannels are open.
func (c *RTCChannel) Connect(ctx context.Context, address string, port uint16, secure bool) error {
	if c.connected.Load() {
		return ErrAlreadyConnected
	}

	log := util.NewLogger("rtc", util.NewConnTag())
	target := relayURL(address, port, secure, SignalPath)

	peer, err := webrtc.NewPeer()
	if err != nil {
		return fmt.Errorf("failed to create peer connection: %w", err)
	}

	conn, err := signaling.Dial(ctx, target)
	if err != nil {
		peer.Close()
		return err
	}
	defer conn.Close()
	log.Debug("signaling with relay %s", target)

	peer.OnMessage(func(data []byte, reliable bool) {
		msg := Message{Frame: data, Reliability: Unreliable}
		if reliable {
			msg.Reliability = Reliable
		}
		util.Stats.AddRecv(len(data))
		c.dispatcher.Enqueue(func() { c.message(msg) })
	})
	peer.OnClosed(func() { _ = c.lost(peer) })

	sigCtx, cancel := untilClosed(ctx, peer.Closed())
	defer cancel()

	if err := signaling.Exchange(sigCtx, conn, peer.PeerConnection(), peer.Ready()); err != nil {
		peer.Close()
		if errors.Is(context.Cause(sigCtx), errPeerClosed) {
			return fmt.Errorf("signaling aborted: %w", errPeerClosed)
		}
		return err
	}

	if err := c.attach(peer, log); err != nil {
		peer.Close()
		return err
	}

	log.Info("data channels open to relay %s:%d", address, port)
	return nil
}

// untilClosed returns a copy of ctx that is also cancelled, with cause
// errPeerClosed, once closed is closed.
func untilClosed(ctx context.Context, closed <-chan struct{}) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(ctx)
	go func() {
		select {
		case <-closed:
			cancel(errPeerClosed)
		case <-ctx.Done():
		}
	}()
	return ctx, func() { cancel(context.Canceled) }
}

// attach makes peer the current connection unless it has already closed.
// A closure after attach is handled by lost, which waits on c.mu.
func (c *RTCChannel) attach(peer *webrtc.Peer, log util.Logger) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-peer.Closed():
		return errPeerClosed
	default:
	}

	c.peer = peer
	c.log = log
	c.connected.Store(true)
	return nil
}

// lost tears down peer if it is still the current connection and queues a
// single disconnect notification.
func (c *RTCChannel) lost(peer *webrtc.Peer) error {
	c.mu.Lock()
	current := c.peer == peer
	if current {
		c.peer = nil
	}
	log := c.log
	c.mu.Unlock()

	if !current {
		return nil
	}

	err := peer.Close()
	c.connected.Store(false)
	log.Info("relay connection closed")
	c.dispatcher.Enqueue(c.disconnected)
	return err
}

// Send writes one frame on the DataChannel for r. Reliable frames wait out
// send backpressure; unreliable frames are dropped while congested.
func (c *RTCChannel) Send(frame []byte, r Reliability) error {
	c.mu.Lock()
	peer, log := c.peer, c.log
	c.mu.Unlock()
	if peer == nil {
		return ErrNotConnected
	}

	if r == Unreliable {
		if err := peer.Channel(false).TrySend(frame); err != nil {
			log.Debug("dropped unreliable frame: %v", err)
			util.Stats.AddDropped()
			return nil
		}
		util.Stats.AddSent(len(frame))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := peer.Channel(true).Send(ctx, frame); err != nil {
		return fmt.Errorf("failed to send %s frame: %w", r, err)
	}
	util.Stats.AddSent(len(frame))
	return nil
}

func (c *RTCChannel) DispatchPending() int    { return c.dispatcher.Execute() }
func (c *RTCChannel) Pending() <-chan struct{} { return c.dispatcher.Signal() }
func (c *RTCChannel) Connected() bool          { return c.connected.Load() }

// Disconnect closes the DataChannels and the PeerConnection.
func (c *RTCChannel) Disconnect() error {
	c.mu.Lock()
	peer := c.peer
	c.mu.Unlock()
	if peer == nil {
		return nil
	}
	return c.lost(peer)
}
