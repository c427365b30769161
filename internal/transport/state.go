package transport

import "fmt"

// Role is the part the local session plays in a room.
type Role int

const (
	RoleNone Role = iota
	RoleClient
	RoleServer
)

func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RoleClient:
		return "client"
	case RoleServer:
		return "server"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// sessionState is the relay session as seen locally. Role only moves
// None→Client, None→Server and back to None through reset.
type sessionState struct {
	authenticated bool
	role          Role
	connected     bool // room joined (client) or created (server)

	roomID  uint16
	hasRoom bool
	selfID  uint16 // relay ID assigned to us when joining as client

	nextHandle PeerHandle
	peers      *peerMap
}

func newSessionState() sessionState {
	return sessionState{nextHandle: 1, peers: newPeerMap()}
}

func (s *sessionState) beginClient() error {
	if s.role != RoleNone {
		return fmt.Errorf("%w: current role is %s", ErrBusy, s.role)
	}
	s.role = RoleClient
	s.connected = false
	return nil
}

func (s *sessionState) beginServer() error {
	if s.role != RoleNone {
		return fmt.Errorf("%w: current role is %s", ErrBusy, s.role)
	}
	s.role = RoleServer
	s.connected = false
	s.hasRoom = false
	s.nextHandle = 1
	return nil
}

// reset returns to RoleNone. The peer map is always cleared because the
// relay recycles peer IDs across rooms.
func (s *sessionState) reset() {
	s.role = RoleNone
	s.connected = false
	s.roomID = 0
	s.hasRoom = false
	s.selfID = 0
	s.nextHandle = 1
	s.peers.Clear()
}

// allocHandle returns the next unused peer handle.
func (s *sessionState) allocHandle() PeerHandle {
	h := s.nextHandle
	s.nextHandle++
	return h
}
