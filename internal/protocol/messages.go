package protocol

import "fmt"

// ---------------------------------------------------------------------------
// Authentication
// ---------------------------------------------------------------------------

// AuthenticationRequest is sent by the relay, at will, to ask for the password.
type AuthenticationRequest struct{}

func (*AuthenticationRequest) Kind() Kind           { return KindAuthenticationRequest }
func (*AuthenticationRequest) encode(*writer)       {}
func (*AuthenticationRequest) decode(*reader) error { return nil }

// AuthenticationResponse carries the configured relay password (possibly empty).
type AuthenticationResponse struct {
	Password string
}

func (*AuthenticationResponse) Kind() Kind { return KindAuthenticationResponse }

func (m *AuthenticationResponse) encode(w *writer) { w.string(m.Password) }

func (m *AuthenticationResponse) decode(r *reader) (err error) {
	m.Password, err = r.string()
	return err
}

// Authenticated is sent by the relay once the password was accepted.
type Authenticated struct{}

func (*Authenticated) Kind() Kind           { return KindAuthenticated }
func (*Authenticated) encode(*writer)       {}
func (*Authenticated) decode(*reader) error { return nil }

// ---------------------------------------------------------------------------
// Rooms
// ---------------------------------------------------------------------------

// CreateRoom asks the relay to open a room hosted by this session.
type CreateRoom struct {
	MaxPlayers int32
	Name       string
	Listed     bool
	ExtraData  string
}

func (*CreateRoom) Kind() Kind { return KindCreateRoom }

func (m *CreateRoom) encode(w *writer) {
	w.int32(m.MaxPlayers)
	w.string(m.Name)
	w.bool(m.Listed)
	w.string(m.ExtraData)
}

func (m *CreateRoom) decode(r *reader) (err error) {
	if m.MaxPlayers, err = r.int32(); err != nil {
		return err
	}
	if m.Name, err = r.string(); err != nil {
		return err
	}
	if m.Listed, err = r.bool(); err != nil {
		return err
	}
	m.ExtraData, err = r.string()
	return err
}

// RoomCreated confirms CreateRoom and carries the new room's ID.
type RoomCreated struct {
	RoomID uint16
}

func (*RoomCreated) Kind() Kind { return KindRoomCreated }

func (m *RoomCreated) encode(w *writer) { w.uint16(m.RoomID) }

func (m *RoomCreated) decode(r *reader) (err error) {
	m.RoomID, err = r.uint16()
	return err
}

// JoinServer asks the relay to join the room with the given ID.
type JoinServer struct {
	RoomID uint16
}

func (*JoinServer) Kind() Kind { return KindJoinServer }

func (m *JoinServer) encode(w *writer) { w.uint16(m.RoomID) }

func (m *JoinServer) decode(r *reader) (err error) {
	m.RoomID, err = r.uint16()
	return err
}

// ServerJoined announces a peer's assigned ID: the local client's own on a
// successful join, or a newly joined peer's when hosting.
type ServerJoined struct {
	PeerID uint16
}

func (*ServerJoined) Kind() Kind { return KindServerJoined }

func (m *ServerJoined) encode(w *writer) { w.uint16(m.PeerID) }

func (m *ServerJoined) decode(r *reader) (err error) {
	m.PeerID, err = r.uint16()
	return err
}

// LeaveRoom leaves (or, when hosting, closes) the current room.
type LeaveRoom struct{}

func (*LeaveRoom) Kind() Kind           { return KindLeaveRoom }
func (*LeaveRoom) encode(*writer)       {}
func (*LeaveRoom) decode(*reader) error { return nil }

// ServerLeft tells a client that it is no longer in the room.
type ServerLeft struct{}

func (*ServerLeft) Kind() Kind           { return KindServerLeft }
func (*ServerLeft) encode(*writer)       {}
func (*ServerLeft) decode(*reader) error { return nil }

// PlayerDisconnected tells the host that a peer left its room.
type PlayerDisconnected struct {
	PeerID uint16
}

func (*PlayerDisconnected) Kind() Kind { return KindPlayerDisconnected }

func (m *PlayerDisconnected) encode(w *writer) { w.uint16(m.PeerID) }

func (m *PlayerDisconnected) decode(r *reader) (err error) {
	m.PeerID, err = r.uint16()
	return err
}

// KickPlayer asks the relay to remove a peer from the hosted room.
type KickPlayer struct {
	PeerID uint16
}

func (*KickPlayer) Kind() Kind { return KindKickPlayer }

func (m *KickPlayer) encode(w *writer) { w.uint16(m.PeerID) }

func (m *KickPlayer) decode(r *reader) (err error) {
	m.PeerID, err = r.uint16()
	return err
}

// UpdateRoomData replaces the hosted room's metadata and capacity.
type UpdateRoomData struct {
	Data       string
	MaxPlayers int32
}

func (*UpdateRoomData) Kind() Kind { return KindUpdateRoomData }

func (m *UpdateRoomData) encode(w *writer) {
	w.string(m.Data)
	w.int32(m.MaxPlayers)
}

func (m *UpdateRoomData) decode(r *reader) (err error) {
	if m.Data, err = r.string(); err != nil {
		return err
	}
	m.MaxPlayers, err = r.int32()
	return err
}

// ---------------------------------------------------------------------------
// Data
// ---------------------------------------------------------------------------

// SendData carries an application payload to the relay. Recipients is only
// written on the server-role path; a nil slice omits the array entirely.
type SendData struct {
	Payload    []byte
	Recipients []uint16
}

func (*SendData) Kind() Kind { return KindSendData }

func (m *SendData) encode(w *writer) {
	w.int32(int32(len(m.Payload)))
	w.blob(m.Payload)
	if m.Recipients != nil {
		w.uint16s(m.Recipients)
	}
}

func (m *SendData) decode(r *reader) (err error) {
	if m.Payload, err = readSizedBlob(r); err != nil {
		return err
	}
	if r.remaining() == 0 {
		return nil
	}
	m.Recipients, err = r.uint16s()
	return err
}

// GetData carries a payload relayed from another peer.
type GetData struct {
	Payload  []byte
	SenderID uint16
}

func (*GetData) Kind() Kind { return KindGetData }

func (m *GetData) encode(w *writer) {
	w.int32(int32(len(m.Payload)))
	w.blob(m.Payload)
	w.uint16(m.SenderID)
}

func (m *GetData) decode(r *reader) (err error) {
	if m.Payload, err = readSizedBlob(r); err != nil {
		return err
	}
	m.SenderID, err = r.uint16()
	return err
}

// readSizedBlob reads the data layout shared by SendData and GetData: an
// explicit int32 length followed by a length-prefixed blob of that size.
func readSizedBlob(r *reader) ([]byte, error) {
	n, err := r.int32()
	if err != nil {
		return nil, err
	}
	b, err := r.blob()
	if err != nil {
		return nil, err
	}
	if int(n) != len(b) {
		return nil, fmt.Errorf("%w: data length %d does not match blob length %d", ErrMalformed, n, len(b))
	}
	return b, nil
}

// ---------------------------------------------------------------------------
// Directory
// ---------------------------------------------------------------------------

// RequestServers asks the relay for the list of listed rooms.
type RequestServers struct{}

func (*RequestServers) Kind() Kind           { return KindRequestServers }
func (*RequestServers) encode(*writer)       {}
func (*RequestServers) decode(*reader) error { return nil }

// RoomEntry is one room in a ServerListResponse.
type RoomEntry struct {
	Name           string
	CurrentPlayers int32
	MaxPlayers     int32
	RoomID         uint16
	ExtraData      string
}

// ServerListResponse is the relay's full listing of discoverable rooms.
type ServerListResponse struct {
	Rooms []RoomEntry
}

func (*ServerListResponse) Kind() Kind { return KindServerListResponse }

func (m *ServerListResponse) encode(w *writer) {
	w.int32(int32(len(m.Rooms)))
	for _, room := range m.Rooms {
		w.string(room.Name)
		w.int32(room.CurrentPlayers)
		w.int32(room.MaxPlayers)
		w.uint16(room.RoomID)
		w.string(room.ExtraData)
	}
}

// minRoomEntrySize is the encoded size of a RoomEntry with empty strings.
const minRoomEntrySize = 4 + 4 + 4 + 2 + 4

func (m *ServerListResponse) decode(r *reader) error {
	count, err := r.length(minRoomEntrySize)
	if err != nil {
		return err
	}

	m.Rooms = make([]RoomEntry, count)
	for i := range m.Rooms {
		room := &m.Rooms[i]
		if room.Name, err = r.string(); err != nil {
			return err
		}
		if room.CurrentPlayers, err = r.int32(); err != nil {
			return err
		}
		if room.MaxPlayers, err = r.int32(); err != nil {
			return err
		}
		if room.RoomID, err = r.uint16(); err != nil {
			return err
		}
		if room.ExtraData, err = r.string(); err != nil {
			return err
		}
	}
	return nil
}
