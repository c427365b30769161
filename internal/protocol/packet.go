// Package protocol defines the relay wire format: message kinds, the
// primitive field encodings and the typed messages exchanged with the relay.
package protocol

import "fmt"

// Kind is the 16-bit tag that prefixes every frame.
type Kind uint16

// Message kinds. The numbering is fixed by the relay; tags 0, 1 and 4
// belonged to retired ID requests and decode as unknown.
const (
	KindJoinServer             Kind = 2
	KindSendData               Kind = 3
	KindServerJoined           Kind = 5
	KindGetData                Kind = 6
	KindCreateRoom             Kind = 7
	KindServerLeft             Kind = 8
	KindPlayerDisconnected     Kind = 9
	KindRoomCreated            Kind = 10
	KindLeaveRoom              Kind = 11
	KindKickPlayer             Kind = 12
	KindAuthenticationRequest  Kind = 13
	KindAuthenticationResponse Kind = 14
	KindRequestServers         Kind = 15
	KindServerListResponse     Kind = 16
	KindAuthenticated          Kind = 17
	KindUpdateRoomData         Kind = 18
)

// TagSize is the size of the kind prefix on every frame.
const TagSize = 2

var kindNames = map[Kind]string{
	KindJoinServer:             "JoinServer",
	KindSendData:               "SendData",
	KindServerJoined:           "ServerJoined",
	KindGetData:                "GetData",
	KindCreateRoom:             "CreateRoom",
	KindServerLeft:             "ServerLeft",
	KindPlayerDisconnected:     "PlayerDisconnected",
	KindRoomCreated:            "RoomCreated",
	KindLeaveRoom:              "LeaveRoom",
	KindKickPlayer:             "KickPlayer",
	KindAuthenticationRequest:  "AuthenticationRequest",
	KindAuthenticationResponse: "AuthenticationResponse",
	KindRequestServers:         "RequestServers",
	KindServerListResponse:     "ServerListResponse",
	KindAuthenticated:          "Authenticated",
	KindUpdateRoomData:         "UpdateRoomData",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint16(k))
}

// Message is implemented by every typed protocol message.
type Message interface {
	Kind() Kind
	encode(w *writer)
	decode(r *reader) error
}

// newMessage returns an empty message for kind, or nil if the kind is unknown.
func newMessage(kind Kind) Message {
	switch kind {
	case KindAuthenticationRequest:
		return &AuthenticationRequest{}
	case KindAuthenticationResponse:
		return &AuthenticationResponse{}
	case KindAuthenticated:
		return &Authenticated{}
	case KindCreateRoom:
		return &CreateRoom{}
	case KindRoomCreated:
		return &RoomCreated{}
	case KindJoinServer:
		return &JoinServer{}
	case KindServerJoined:
		return &ServerJoined{}
	case KindLeaveRoom:
		return &LeaveRoom{}
	case KindServerLeft:
		return &ServerLeft{}
	case KindPlayerDisconnected:
		return &PlayerDisconnected{}
	case KindKickPlayer:
		return &KickPlayer{}
	case KindSendData:
		return &SendData{}
	case KindGetData:
		return &GetData{}
	case KindRequestServers:
		return &RequestServers{}
	case KindServerListResponse:
		return &ServerListResponse{}
	case KindUpdateRoomData:
		return &UpdateRoomData{}
	}
	return nil
}
