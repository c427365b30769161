// Package webrtc provides the PeerConnection and the pair of pre-negotiated
// DataChannels that carry relay frames.
package webrtc

import (
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"go.uber.org/multierr"
)

// STUN servers for ICE candidate gathering.
var stunServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// DataChannel IDs agreed with the relay out of band.
const (
	ReliableID   uint16 = 0
	UnreliableID uint16 = 1
)

// NewPeerConnection creates a PeerConnection configured with Google STUN servers.
func NewPeerConnection() (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: stunServers},
		},
	}
	return webrtc.NewPeerConnection(config)
}

// newNegotiatedChannel creates a DataChannel both ends open with the same
// ID, so no in-band DCEP handshake is needed. Unreliable channels are
// unordered and never retransmit.
func newNegotiatedChannel(pc *webrtc.PeerConnection, label string, id uint16, reliable bool) (*webrtc.DataChannel, error) {
	negotiated := true
	init := &webrtc.DataChannelInit{
		Negotiated: &negotiated,
		ID:         &id,
	}
	if !reliable {
		ordered := false
		var maxRetransmits uint16
		init.Ordered = &ordered
		init.MaxRetransmits = &maxRetransmits
	}
	return pc.CreateDataChannel(label, init)
}

// Peer owns the PeerConnection to the relay and its two DataChannels.
type Peer struct {
	pc         *webrtc.PeerConnection
	reliable   *DataChannel
	unreliable *DataChannel

	opened    atomic.Int32
	ready     chan struct{}
	readyOnce sync.Once

	mu        sync.RWMutex
	onMessage func(data []byte, reliable bool)
	onClosed  func()
	closeOnce sync.Once
	done      chan struct{}
}

// NewPeer creates the PeerConnection and both DataChannels. The channels
// open once signaling completes; Ready is closed when both are open.
func NewPeer() (*Peer, error) {
	pc, err := NewPeerConnection()
	if err != nil {
		return nil, err
	}

	p := &Peer{pc: pc, ready: make(chan struct{}), done: make(chan struct{})}

	rawReliable, err := newNegotiatedChannel(pc, "reliable", ReliableID, true)
	if err != nil {
		pc.Close()
		return nil, err
	}
	rawUnreliable, err := newNegotiatedChannel(pc, "unreliable", UnreliableID, false)
	if err != nil {
		pc.Close()
		return nil, err
	}

	p.reliable = NewDataChannel(rawReliable)
	p.unreliable = NewDataChannel(rawUnreliable)
	p.watch(p.reliable, true)
	p.watch(p.unreliable, false)

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			p.closed()
		}
	})

	return p, nil
}

func (p *Peer) watch(dc *DataChannel, reliable bool) {
	dc.OnOpen(func() {
		if p.opened.Add(1) == 2 {
			p.readyOnce.Do(func() { close(p.ready) })
		}
	})
	dc.OnClose(p.closed)
	dc.OnFrame(func(data []byte) {
		p.mu.RLock()
		fn := p.onMessage
		p.mu.RUnlock()
		if fn != nil {
			fn(data, reliable)
		}
	})
}

func (p *Peer) closed() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.mu.RLock()
		fn := p.onClosed
		p.mu.RUnlock()
		if fn != nil {
			fn()
		}
	})
}

// OnMessage registers the inbound frame handler. reliable tells which
// DataChannel the frame arrived on.
func (p *Peer) OnMessage(fn func(data []byte, reliable bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onMessage = fn
}

// OnClosed registers a handler run once when either DataChannel closes or
// the PeerConnection fails. Closed is closed just before it runs.
func (p *Peer) OnClosed(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClosed = fn
}

// Channel returns the DataChannel for the given class.
func (p *Peer) Channel(reliable bool) *DataChannel {
	if reliable {
		return p.reliable
	}
	return p.unreliable
}

func (p *Peer) Ready() <-chan struct{}                 { return p.ready }
func (p *Peer) Closed() <-chan struct{}                { return p.done }
func (p *Peer) PeerConnection() *webrtc.PeerConnection { return p.pc }

// Close closes both DataChannels and the PeerConnection.
func (p *Peer) Close() error {
	return multierr.Combine(
		p.reliable.Raw().Close(),
		p.unreliable.Raw().Close(),
		p.pc.Close(),
	)
}
