package transport

import (
	"fmt"
	"sync"

	"github.com/1ureka/darkrelay/internal/util"
)

// EventSink receives session events. Calls are made without any internal
// lock held, one at a time and in the order the events occurred, so a sink
// may call back into the Transport. A bounded wait started from a sink,
// such as ClientConnect, does not handle further inbound frames until the
// sink returns; it succeeds only if its condition already holds, and
// otherwise ends at its ceiling or when its ctx is done.
type EventSink interface {
	ClientConnected()
	ClientDisconnected()
	ClientDataReceived(payload []byte, channelID int)
	ServerConnected(h PeerHandle)
	ServerDisconnected(h PeerHandle)
	ServerDataReceived(h PeerHandle, payload []byte, channelID int)
	DirectoryUpdated(rooms []RoomInfo)
}

// EventType identifies an Event.
type EventType int

const (
	EventClientConnected EventType = iota
	EventClientDisconnected
	EventClientData
	EventServerConnected
	EventServerDisconnected
	EventServerData
	EventDirectoryUpdated
)

var eventNames = [...]string{
	EventClientConnected:    "ClientConnected",
	EventClientDisconnected: "ClientDisconnected",
	EventClientData:         "ClientData",
	EventServerConnected:    "ServerConnected",
	EventServerDisconnected: "ServerDisconnected",
	EventServerData:         "ServerData",
	EventDirectoryUpdated:   "DirectoryUpdated",
}

func (e EventType) String() string {
	if e >= 0 && int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("EventType(%d)", int(e))
}

// Event is one session event. Only the fields relevant to Type are set.
type Event struct {
	Type      EventType
	Handle    PeerHandle
	Payload   []byte
	ChannelID int
	Rooms     []RoomInfo
}

// deliver invokes the sink method matching e.
func (e Event) deliver(sink EventSink) {
	switch e.Type {
	case EventClientConnected:
		sink.ClientConnected()
	case EventClientDisconnected:
		sink.ClientDisconnected()
	case EventClientData:
		sink.ClientDataReceived(e.Payload, e.ChannelID)
	case EventServerConnected:
		sink.ServerConnected(e.Handle)
	case EventServerDisconnected:
		sink.ServerDisconnected(e.Handle)
	case EventServerData:
		sink.ServerDataReceived(e.Handle, e.Payload, e.ChannelID)
	case EventDirectoryUpdated:
		sink.DirectoryUpdated(e.Rooms)
	}
}

// droppable reports whether e may be discarded under backlog. Only data
// events are; connection and directory events always get through.
func (e Event) droppable() bool {
	return e.Type == EventClientData || e.Type == EventServerData
}

// EventQueue is an EventSink that forwards events, in order, to a channel.
// While more than size events wait to be received, new data events are
// dropped with a warning. Other events are always queued.
type EventQueue struct {
	out  chan Event
	wake chan struct{}
	done chan struct{}
	size int

	mu      sync.Mutex
	backlog []Event

	closeOnce sync.Once
}

// NewEventQueue creates a queue holding up to size pending data events.
// Close stops its forwarding goroutine.
func NewEventQueue(size int) *EventQueue {
	q := &EventQueue{
		out:  make(chan Event),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		size: size,
	}
	go q.forward()
	return q
}

// Events returns the channel events are delivered on.
func (q *EventQueue) Events() <-chan Event { return q.out }

// Close stops delivery. Events pushed afterwards are discarded.
func (q *EventQueue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

func (q *EventQueue) push(e Event) {
	q.mu.Lock()
	select {
	case <-q.done:
		q.mu.Unlock()
		return
	default:
	}
	if e.droppable() && len(q.backlog) >= q.size {
		q.mu.Unlock()
		util.LogWarning("event queue full, dropping %s", e.Type)
		return
	}
	q.backlog = append(q.backlog, e)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *EventQueue) forward() {
	for {
		q.mu.Lock()
		if len(q.backlog) == 0 {
			q.mu.Unlock()
			select {
			case <-q.wake:
				continue
			case <-q.done:
				return
			}
		}
		e := q.backlog[0]
		q.backlog[0] = Event{}
		q.backlog = q.backlog[1:]
		q.mu.Unlock()

		select {
		case q.out <- e:
		case <-q.done:
			return
		}
	}
}

func (q *EventQueue) ClientConnected()    { q.push(Event{Type: EventClientConnected}) }
func (q *EventQueue) ClientDisconnected() { q.push(Event{Type: EventClientDisconnected}) }

func (q *EventQueue) ClientDataReceived(payload []byte, channelID int) {
	q.push(Event{Type: EventClientData, Payload: payload, ChannelID: channelID})
}

func (q *EventQueue) ServerConnected(h PeerHandle) {
	q.push(Event{Type: EventServerConnected, Handle: h})
}

func (q *EventQueue) ServerDisconnected(h PeerHandle) {
	q.push(Event{Type: EventServerDisconnected, Handle: h})
}

func (q *EventQueue) ServerDataReceived(h PeerHandle, payload []byte, channelID int) {
	q.push(Event{Type: EventServerData, Handle: h, Payload: payload, ChannelID: channelID})
}

func (q *EventQueue) DirectoryUpdated(rooms []RoomInfo) {
	q.push(Event{Type: EventDirectoryUpdated, Rooms: rooms})
}

type nopSink struct{}

func (nopSink) ClientConnected()                           {}
func (nopSink) ClientDisconnected()                        {}
func (nopSink) ClientDataReceived([]byte, int)             {}
func (nopSink) ServerConnected(PeerHandle)                 {}
func (nopSink) ServerDisconnected(PeerHandle)              {}
func (nopSink) ServerDataReceived(PeerHandle, []byte, int) {}
func (nopSink) DirectoryUpdated([]RoomInfo)                {}
