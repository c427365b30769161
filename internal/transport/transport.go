// Package transport implements the relay session: authentication, hosting
// and joining rooms, translating relay peer IDs to local handles, and
// multiplexing application payloads over a single relay channel.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/1ureka/darkrelay/internal/channel"
	"github.com/1ureka/darkrelay/internal/config"
	"github.com/1ureka/darkrelay/internal/protocol"
	"github.com/1ureka/darkrelay/internal/util"
)

// Scheme is the URI scheme of ServerURI.
const Scheme = "darkrelay"

// Transport is one relay session. Inbound frames are handled only while the
// channel's queue is drained, either by Run, Poll or a bounded wait inside
// ServerStart, ClientConnect or RequestServerList.
//
// All session state is guarded by a single mutex. Events raised while
// handling a frame are delivered to the sink after the mutex is released.
type Transport struct {
	cfg   config.Config
	ch    channel.Channel
	sink  EventSink
	clock clock.Clock
	log   util.Logger

	// dispatching counts inbound handlers in progress. A bounded wait
	// started from inside one, through a sink callback, must not drain the
	// queue again.
	dispatching atomic.Int32

	mu         sync.Mutex
	state      sessionState
	dir        directory
	linkDown   bool               // the channel reported a disconnect since Start
	cancelList context.CancelFunc // pending RequestServerList wait
}

// Option configures a Transport.
type Option func(*Transport)

// WithClock sets the clock the bounded waits sleep on.
func WithClock(c clock.Clock) Option {
	return func(t *Transport) { t.clock = c }
}

// New creates a Transport over ch and registers its handlers on ch.
// A nil sink discards events.
func New(cfg config.Config, ch channel.Channel, sink EventSink, opts ...Option) *Transport {
	if sink == nil {
		sink = nopSink{}
	}
	t := &Transport{
		cfg:   cfg,
		ch:    ch,
		sink:  sink,
		clock: clock.New(),
		log:   util.NewLogger("relay", ""),
		state: newSessionState(),
	}
	for _, opt := range opts {
		opt(t)
	}

	ch.OnMessage(t.handleMessage)
	ch.OnDisconnected(t.handleDisconnected)
	return t
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Start connects the channel to the configured relay.
func (t *Transport) Start(ctx context.Context) error {
	if err := t.ch.Connect(ctx, t.cfg.RelayAddress, t.cfg.RelayPort, t.cfg.Secure); err != nil {
		return fmt.Errorf("failed to connect to relay %s:%d: %w", t.cfg.RelayAddress, t.cfg.RelayPort, err)
	}

	t.mu.Lock()
	t.linkDown = false
	t.mu.Unlock()

	t.log.Info("connected to relay %s:%d over %s", t.cfg.RelayAddress, t.cfg.RelayPort, t.cfg.Channel)
	return nil
}

// Run drains inbound work whenever the channel signals it, until ctx is
// done or the relay connection is lost.
func (t *Transport) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.ch.Pending():
		}

		t.Poll()

		t.mu.Lock()
		down := t.linkDown
		t.mu.Unlock()
		if down {
			return fmt.Errorf("%w: relay connection lost", ErrNotAvailable)
		}
	}
}

// Poll handles every inbound frame queued so far and returns how many
// queued tasks ran.
func (t *Transport) Poll() int {
	return t.ch.DispatchPending()
}

// Close cancels a pending server list request and disconnects the channel.
// The disconnect is reported through the usual events on the next Poll.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.cancelList != nil {
		t.cancelList()
		t.cancelList = nil
	}
	t.mu.Unlock()

	return t.ch.Disconnect()
}

// Available reports whether the relay connection is up.
func (t *Transport) Available() bool {
	return t.ch.Connected()
}

// Authenticated reports whether the relay accepted this session.
func (t *Transport) Authenticated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.authenticated
}

// ---------------------------------------------------------------------------
// Inbound
// ---------------------------------------------------------------------------

func (t *Transport) handleMessage(msg channel.Message) {
	t.dispatching.Add(1)
	defer t.dispatching.Add(-1)

	m, err := protocol.Decode(msg.Frame)
	if err != nil {
		t.log.Debug("dropping frame: %v", err)
		util.Stats.AddDropped()
		return
	}

	t.mu.Lock()
	events := t.applyLocked(m, msg.Reliability)
	t.mu.Unlock()

	t.emit(events)
}

// applyLocked advances the session for one inbound message and returns the
// events it raised. t.mu must be held.
func (t *Transport) applyLocked(m protocol.Message, r channel.Reliability) []Event {
	s := &t.state

	switch m := m.(type) {
	case *protocol.AuthenticationRequest:
		t.log.Debug("relay requested authentication")
		if err := t.sendLocked(&protocol.AuthenticationResponse{Password: t.cfg.RelayPassword}, channel.Reliable); err != nil {
			t.log.Warn("failed to answer authentication request: %v", err)
		}

	case *protocol.Authenticated:
		if !s.authenticated {
			t.log.Info("authenticated with relay")
		}
		s.authenticated = true

	case *protocol.RoomCreated:
		if s.role != RoleServer {
			t.log.Debug("ignoring RoomCreated(%d) while %s", m.RoomID, s.role)
			return nil
		}
		s.roomID = m.RoomID
		s.hasRoom = true
		s.connected = true
		t.log.Info("room %d created", m.RoomID)

	case *protocol.ServerJoined:
		switch s.role {
		case RoleClient:
			if s.connected {
				t.log.Debug("ignoring repeated ServerJoined(%d)", m.PeerID)
				return nil
			}
			s.connected = true
			s.selfID = m.PeerID
			t.log.Info("joined room as peer %d", m.PeerID)
			return []Event{{Type: EventClientConnected}}

		case RoleServer:
			h := s.nextHandle
			if err := s.peers.Add(m.PeerID, h); err != nil {
				t.log.Warn("ignoring join: %v", err)
				return nil
			}
			s.allocHandle()
			t.log.Info("peer %d joined as handle %d", m.PeerID, h)
			return []Event{{Type: EventServerConnected, Handle: h}}
		}
		t.log.Debug("ignoring ServerJoined(%d) while %s", m.PeerID, s.role)

	case *protocol.PlayerDisconnected:
		if s.role != RoleServer {
			return nil
		}
		h, ok := s.peers.RemoveByRelayID(m.PeerID)
		if !ok {
			t.log.Debug("ignoring disconnect of unknown peer %d", m.PeerID)
			return nil
		}
		t.log.Info("peer %d (handle %d) left", m.PeerID, h)
		return []Event{{Type: EventServerDisconnected, Handle: h}}

	case *protocol.ServerLeft:
		if s.role != RoleClient {
			return nil
		}
		s.reset()
		t.log.Info("left room")
		return []Event{{Type: EventClientDisconnected}}

	case *protocol.GetData:
		channelID := channelIDOf(r)
		switch s.role {
		case RoleServer:
			h, ok := s.peers.Handle(m.SenderID)
			if !ok {
				t.log.Debug("dropping data from unknown peer %d", m.SenderID)
				util.Stats.AddDropped()
				return nil
			}
			return []Event{{Type: EventServerData, Handle: h, Payload: m.Payload, ChannelID: channelID}}
		case RoleClient:
			return []Event{{Type: EventClientData, Payload: m.Payload, ChannelID: channelID}}
		}
		util.Stats.AddDropped()

	case *protocol.ServerListResponse:
		rooms := make([]RoomInfo, len(m.Rooms))
		for i, room := range m.Rooms {
			rooms[i] = RoomInfo{
				Name:           room.Name,
				CurrentPlayers: int(room.CurrentPlayers),
				MaxPlayers:     int(room.MaxPlayers),
				RoomID:         room.RoomID,
				ExtraData:      room.ExtraData,
			}
		}
		t.dir.Replace(rooms)
		t.log.Debug("directory updated: %d rooms", len(rooms))
		return []Event{{Type: EventDirectoryUpdated, Rooms: t.dir.Snapshot()}}

	default:
		t.log.Debug("ignoring unexpected %s from relay", m.Kind())
	}
	return nil
}

func (t *Transport) handleDisconnected() {
	t.dispatching.Add(1)
	defer t.dispatching.Add(-1)

	t.mu.Lock()
	s := &t.state
	s.authenticated = false
	t.linkDown = true
	if t.cancelList != nil {
		t.cancelList()
		t.cancelList = nil
	}

	var events []Event
	switch s.role {
	case RoleClient:
		events = append(events, Event{Type: EventClientDisconnected})
	case RoleServer:
		for _, h := range s.peers.Handles() {
			events = append(events, Event{Type: EventServerDisconnected, Handle: h})
		}
	}
	s.reset()
	t.mu.Unlock()

	t.log.Warn("relay connection lost")
	t.emit(events)
}

func (t *Transport) emit(events []Event) {
	for _, e := range events {
		e.deliver(t.sink)
	}
}

// ---------------------------------------------------------------------------
// Bounded waits
// ---------------------------------------------------------------------------

// awaitAuthentication waits for the relay to accept the session.
func (t *Transport) awaitAuthentication(ctx context.Context) error {
	err := t.pollUntil(ctx, authWait, func() bool {
		return t.state.authenticated || t.linkDown
	})
	if errors.Is(err, errWaitExpired) {
		t.log.Error("Failed to authenticate in time with backend! Make sure your secret key and IP/port are correct.")
		return fmt.Errorf("%w after %s", ErrAuthTimeout, authWait.ceiling())
	}
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.state.authenticated {
		return fmt.Errorf("%w: lost while authenticating", ErrNotAvailable)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// ClientConnect joins the room whose ID is the decimal string target. It
// waits for authentication, sends the join request and returns; the join
// completes when ClientConnected fires.
func (t *Transport) ClientConnect(ctx context.Context, target string) error {
	if !t.Available() {
		return ErrNotAvailable
	}
	roomID, err := strconv.ParseUint(target, 10, 16)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}

	t.mu.Lock()
	role := t.state.role
	t.mu.Unlock()
	if role != RoleNone {
		return fmt.Errorf("%w: current role is %s", ErrBusy, role)
	}

	if err := t.awaitAuthentication(ctx); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.state.beginClient(); err != nil {
		return err
	}
	if err := t.sendLocked(&protocol.JoinServer{RoomID: uint16(roomID)}, channel.Reliable); err != nil {
		t.state.reset()
		return err
	}
	t.log.Info("joining room %d", roomID)
	return nil
}

// ClientConnectURI joins the room named by a darkrelay://<roomID> URI.
func (t *Transport) ClientConnectURI(ctx context.Context, u *url.URL) error {
	if u == nil || u.Scheme != Scheme {
		return fmt.Errorf("%w: expected %s://<room ID>", ErrInvalidTarget, Scheme)
	}
	return t.ClientConnect(ctx, u.Hostname())
}

// ClientConnected reports whether the relay confirmed our join.
func (t *Transport) ClientConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.role == RoleClient && t.state.connected
}

// ClientPeerID returns the relay ID assigned to us in the joined room.
func (t *Transport) ClientPeerID() (uint16, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.role != RoleClient || !t.state.connected {
		return 0, false
	}
	return t.state.selfID, true
}

// ClientDisconnect leaves the room without waiting for the relay's reply.
// No ClientDisconnected event is raised.
func (t *Transport) ClientDisconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.role != RoleClient {
		return fmt.Errorf("%w: not a client", ErrWrongRole)
	}
	t.state.reset()
	t.log.Info("leaving room")
	return t.sendLocked(&protocol.LeaveRoom{}, channel.Reliable)
}

// ClientSend sends payload to the host on the given channel.
func (t *Transport) ClientSend(channelID int, payload []byte) error {
	r, err := reliabilityOf(channelID)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.role != RoleClient {
		return fmt.Errorf("%w: not a client", ErrWrongRole)
	}
	return t.sendLocked(&protocol.SendData{Payload: payload}, r)
}

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

// ServerStart creates a room on the relay and blocks until the relay
// confirms it. An authentication timeout leaves the session idle; a room
// creation timeout leaves it in the server role until ServerStop.
func (t *Transport) ServerStart(ctx context.Context) error {
	if !t.Available() {
		t.log.Warn("Not connected to relay, server failed to start!")
		return ErrNotAvailable
	}

	t.mu.Lock()
	role := t.state.role
	t.mu.Unlock()
	if role != RoleNone {
		return fmt.Errorf("%w: current role is %s", ErrBusy, role)
	}

	if err := t.awaitAuthentication(ctx); err != nil {
		return err
	}

	t.mu.Lock()
	if err := t.state.beginServer(); err != nil {
		t.mu.Unlock()
		return err
	}
	err := t.sendLocked(&protocol.CreateRoom{
		MaxPlayers: int32(t.cfg.MaxServerPlayers),
		Name:       t.cfg.ServerName,
		Listed:     t.cfg.ShowOnServerList,
		ExtraData:  t.cfg.ExtraServerData,
	}, channel.Reliable)
	if err != nil {
		t.state.reset()
		t.mu.Unlock()
		return err
	}
	t.mu.Unlock()

	err = t.pollUntil(ctx, roomWait, func() bool {
		return t.state.role != RoleServer || t.state.connected
	})
	if errors.Is(err, errWaitExpired) {
		t.log.Error("Failed to create the server on the relay. Are you connected? Double check the secret key and IP/port.")
		return fmt.Errorf("%w after %s", ErrRoomTimeout, roomWait.ceiling())
	}
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.role != RoleServer {
		return fmt.Errorf("%w: lost while creating room", ErrNotAvailable)
	}
	return nil
}

// ServerStop leaves the hosted room. No ServerDisconnected events are raised.
func (t *Transport) ServerStop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.role != RoleServer {
		return fmt.Errorf("%w: not hosting", ErrWrongRole)
	}
	t.state.reset()
	t.log.Info("stopping server")
	return t.sendLocked(&protocol.LeaveRoom{}, channel.Reliable)
}

// ServerActive reports whether the session is in the server role.
func (t *Transport) ServerActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.role == RoleServer
}

// ServerSend sends payload to every peer in handles. Recipients are split
// into frames of at most MaxBatchRecipients. If any handle is unknown
// nothing is sent.
func (t *Transport) ServerSend(handles []PeerHandle, channelID int, payload []byte) error {
	r, err := reliabilityOf(channelID)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.role != RoleServer {
		return fmt.Errorf("%w: not hosting", ErrWrongRole)
	}

	ids := make([]uint16, 0, len(handles))
	for _, h := range handles {
		id, ok := t.state.peers.RelayID(h)
		if !ok {
			return fmt.Errorf("%w: %d", ErrUnknownPeer, h)
		}
		ids = append(ids, id)
	}

	for _, batch := range BatchRecipients(ids) {
		if err := t.sendLocked(&protocol.SendData{Payload: payload, Recipients: batch}, r); err != nil {
			return err
		}
	}
	return nil
}

// ServerDisconnect asks the relay to kick the peer behind h. The mapping is
// dropped when the relay reports the peer gone.
func (t *Transport) ServerDisconnect(h PeerHandle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.role != RoleServer {
		return fmt.Errorf("%w: not hosting", ErrWrongRole)
	}
	id, ok := t.state.peers.RelayID(h)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPeer, h)
	}
	t.log.Info("kicking peer %d (handle %d)", id, h)
	return t.sendLocked(&protocol.KickPlayer{PeerID: id}, channel.Reliable)
}

// ServerClientAddress returns the relay peer ID behind h as a string.
func (t *Transport) ServerClientAddress(h PeerHandle) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.state.peers.RelayID(h)
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownPeer, h)
	}
	return strconv.Itoa(int(id)), nil
}

// MaxPacketSize returns the payload limit for channelID. It is the same for
// both channels.
func (t *Transport) MaxPacketSize(channelID int) int {
	return MaxPacketSize
}

// UpdateServerData replaces the hosted room's metadata and capacity.
func (t *Transport) UpdateServerData(data string, maxPlayers int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.role != RoleServer {
		return fmt.Errorf("%w: not hosting", ErrWrongRole)
	}
	return t.sendLocked(&protocol.UpdateRoomData{Data: data, MaxPlayers: int32(maxPlayers)}, channel.Reliable)
}

// ServerURI returns darkrelay://<roomID> for the hosted room.
func (t *Transport) ServerURI() (*url.URL, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.role != RoleServer || !t.state.hasRoom {
		return nil, ErrNoRoom
	}
	return &url.URL{Scheme: Scheme, Host: strconv.Itoa(int(t.state.roomID))}, nil
}

// ---------------------------------------------------------------------------
// Directory
// ---------------------------------------------------------------------------

// RequestServerList asks the relay for its room listing once the session
// is authenticated, waiting for that in the background. A new call
// supersedes a request still waiting. DirectoryUpdated fires when the
// listing arrives.
func (t *Transport) RequestServerList() {
	ctx, cancel := context.WithCancel(context.Background())

	t.mu.Lock()
	if t.cancelList != nil {
		t.cancelList()
	}
	t.cancelList = cancel
	t.mu.Unlock()

	go t.requestServerList(ctx, cancel)
}

func (t *Transport) requestServerList(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()

	err := t.pollUntil(ctx, directoryWait, func() bool {
		return t.state.authenticated
	})
	if errors.Is(err, errWaitExpired) {
		t.log.Warn("server list request gave up waiting for authentication after %s", directoryWait.ceiling())
		return
	}
	if err != nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	if err := t.sendLocked(&protocol.RequestServers{}, channel.Reliable); err != nil {
		t.log.Warn("failed to request server list: %v", err)
	}
}

// Directory returns the last room listing received.
func (t *Transport) Directory() []RoomInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dir.Snapshot()
}
