package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/darkrelay/internal/channel"
	"github.com/1ureka/darkrelay/internal/config"
	"github.com/1ureka/darkrelay/internal/protocol"
)

// Compile-time interface check.
var _ channel.Channel = (*fakeChannel)(nil)

type sentFrame struct {
	msg         protocol.Message
	reliability channel.Reliability
}

// fakeChannel is an in-memory relay link. Frames sent by the Transport are
// decoded and recorded; frames from the "relay" are queued with Deliver and
// only reach the Transport when it drains the queue. An optional responder
// plays the relay's side by queuing replies to sent messages.
type fakeChannel struct {
	dispatcher *channel.Dispatcher

	mu             sync.Mutex
	connected      bool
	sent           []sentFrame
	onMessage      func(channel.Message)
	onDisconnected func()
	respond        func(protocol.Message) []protocol.Message

	dispatches atomic.Int64
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{dispatcher: channel.NewDispatcher(), connected: true}
}

func (f *fakeChannel) Connect(ctx context.Context, address string, port uint16, secure bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connected {
		return channel.ErrAlreadyConnected
	}
	f.connected = true
	return nil
}

func (f *fakeChannel) Send(frame []byte, r channel.Reliability) error {
	msg, err := protocol.Decode(frame)
	if err != nil {
		return err
	}

	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return channel.ErrNotConnected
	}
	f.sent = append(f.sent, sentFrame{msg: msg, reliability: r})
	respond := f.respond
	f.mu.Unlock()

	if respond != nil {
		for _, reply := range respond(msg) {
			f.Deliver(reply, channel.Reliable)
		}
	}
	return nil
}

func (f *fakeChannel) OnMessage(fn func(channel.Message)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onMessage = fn
}

func (f *fakeChannel) OnDisconnected(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onDisconnected = fn
}

func (f *fakeChannel) DispatchPending() int {
	f.dispatches.Add(1)
	return f.dispatcher.Execute()
}

func (f *fakeChannel) Pending() <-chan struct{} { return f.dispatcher.Signal() }

func (f *fakeChannel) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeChannel) Disconnect() error {
	f.Drop()
	return nil
}

// Deliver queues msg as if the relay had sent it on class r.
func (f *fakeChannel) Deliver(msg protocol.Message, r channel.Reliability) {
	f.DeliverRaw(protocol.Encode(msg), r)
}

// DeliverRaw queues an arbitrary frame.
func (f *fakeChannel) DeliverRaw(frame []byte, r channel.Reliability) {
	f.dispatcher.Enqueue(func() {
		f.mu.Lock()
		fn := f.onMessage
		f.mu.Unlock()
		fn(channel.Message{Frame: frame, Reliability: r})
	})
}

// Drop simulates losing the relay connection.
func (f *fakeChannel) Drop() {
	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return
	}
	f.connected = false
	f.mu.Unlock()

	f.dispatcher.Enqueue(func() {
		f.mu.Lock()
		fn := f.onDisconnected
		f.mu.Unlock()
		fn()
	})
}

func (f *fakeChannel) setResponder(fn func(protocol.Message) []protocol.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respond = fn
}

// sentOf returns the recorded frames of the given kind.
func (f *fakeChannel) sentOf(kind protocol.Kind) []sentFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentFrame
	for _, s := range f.sent {
		if s.msg.Kind() == kind {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeChannel) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// recordingSink stores every event it receives.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) add(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) ClientConnected()    { s.add(Event{Type: EventClientConnected}) }
func (s *recordingSink) ClientDisconnected() { s.add(Event{Type: EventClientDisconnected}) }

func (s *recordingSink) ClientDataReceived(payload []byte, channelID int) {
	s.add(Event{Type: EventClientData, Payload: payload, ChannelID: channelID})
}

func (s *recordingSink) ServerConnected(h PeerHandle) {
	s.add(Event{Type: EventServerConnected, Handle: h})
}

func (s *recordingSink) ServerDisconnected(h PeerHandle) {
	s.add(Event{Type: EventServerDisconnected, Handle: h})
}

func (s *recordingSink) ServerDataReceived(h PeerHandle, payload []byte, channelID int) {
	s.add(Event{Type: EventServerData, Handle: h, Payload: payload, ChannelID: channelID})
}

func (s *recordingSink) DirectoryUpdated(rooms []RoomInfo) {
	s.add(Event{Type: EventDirectoryUpdated, Rooms: rooms})
}

func (s *recordingSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func (s *recordingSink) ofType(typ EventType) []Event {
	var out []Event
	for _, e := range s.all() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// harness bundles a Transport with its fake relay link, sink and clock.
type harness struct {
	tr    *Transport
	ch    *fakeChannel
	sink  *recordingSink
	clock *clock.Mock
}

const testPassword = "hunter2"

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.RelayPassword = testPassword

	h := &harness{
		ch:    newFakeChannel(),
		sink:  &recordingSink{},
		clock: clock.NewMock(),
	}
	h.tr = New(cfg, h.ch, h.sink, WithClock(h.clock))
	return h
}

// deliver queues msgs from the relay and drains them.
func (h *harness) deliver(msgs ...protocol.Message) {
	for _, m := range msgs {
		h.ch.Deliver(m, channel.Reliable)
	}
	h.tr.Poll()
}

func (h *harness) authenticate() {
	h.deliver(&protocol.Authenticated{})
}

// host authenticates and creates room 7.
func (h *harness) host(t *testing.T) {
	t.Helper()
	h.ch.setResponder(func(m protocol.Message) []protocol.Message {
		if _, ok := m.(*protocol.CreateRoom); ok {
			return []protocol.Message{&protocol.RoomCreated{RoomID: 7}}
		}
		return nil
	})
	h.authenticate()
	require.NoError(t, h.tr.ServerStart(context.Background()))
	h.ch.setResponder(nil)
}

// join makes relay peers ids join the hosted room and returns their handles.
func (h *harness) join(t *testing.T, ids ...uint16) []PeerHandle {
	t.Helper()
	before := len(h.sink.ofType(EventServerConnected))
	for _, id := range ids {
		h.deliver(&protocol.ServerJoined{PeerID: id})
	}
	connected := h.sink.ofType(EventServerConnected)[before:]
	require.Len(t, connected, len(ids))

	handles := make([]PeerHandle, len(connected))
	for i, e := range connected {
		handles[i] = e.Handle
	}
	return handles
}

// runClocked runs fn while advancing the mock clock by step until fn returns.
func runClocked(t *testing.T, mock *clock.Mock, step time.Duration, fn func() error) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- fn() }()

	deadline := time.After(20 * time.Second)
	for {
		select {
		case err := <-done:
			return err
		case <-deadline:
			t.Fatal("operation did not finish")
			return nil
		default:
			mock.Add(step)
		}
	}
}
