package protocol

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frame assembles a raw frame from a kind and pre-encoded field chunks.
func frame(kind Kind, parts ...[]byte) []byte {
	out := binary.BigEndian.AppendUint16(nil, uint16(kind))
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func u16(v uint16) []byte { return binary.BigEndian.AppendUint16(nil, v) }
func i32(v int32) []byte  { return binary.BigEndian.AppendUint32(nil, uint32(v)) }
func str(s string) []byte { return append(i32(int32(len(s))), s...) }

// TestDecodeEncodeRoundTrip verifies that decoding a well-formed frame and
// encoding the result reproduces the original bytes for every kind.
func TestDecodeEncodeRoundTrip(t *testing.T) {
	testCases := []struct {
		name  string
		frame []byte
	}{
		{"AuthenticationRequest", frame(KindAuthenticationRequest)},
		{"AuthenticationResponse", frame(KindAuthenticationResponse, str("s3cret"))},
		{"AuthenticationResponse empty password", frame(KindAuthenticationResponse, str(""))},
		{"Authenticated", frame(KindAuthenticated)},
		{"CreateRoom", frame(KindCreateRoom, i32(10), str("My awesome server!"), []byte{1}, str("Cool Map 1"))},
		{"CreateRoom unlisted", frame(KindCreateRoom, i32(2), str(""), []byte{0}, str(""))},
		{"RoomCreated", frame(KindRoomCreated, u16(513))},
		{"JoinServer", frame(KindJoinServer, u16(5))},
		{"ServerJoined", frame(KindServerJoined, u16(42))},
		{"LeaveRoom", frame(KindLeaveRoom)},
		{"ServerLeft", frame(KindServerLeft)},
		{"PlayerDisconnected", frame(KindPlayerDisconnected, u16(7))},
		{"KickPlayer", frame(KindKickPlayer, u16(65535))},
		{"SendData client", frame(KindSendData, i32(3), i32(3), []byte{1, 2, 3})},
		{"SendData server", frame(KindSendData, i32(2), i32(2), []byte{9, 8}, i32(2), u16(1), u16(300))},
		{"SendData server no recipients", frame(KindSendData, i32(1), i32(1), []byte{0}, i32(0))},
		{"SendData empty payload", frame(KindSendData, i32(0), i32(0))},
		{"GetData", frame(KindGetData, i32(3), i32(3), []byte{1, 2, 3}, u16(7))},
		{"RequestServers", frame(KindRequestServers)},
		{"ServerListResponse empty", frame(KindServerListResponse, i32(0))},
		{"ServerListResponse", frame(KindServerListResponse, i32(2),
			str("alpha"), i32(1), i32(8), u16(3), str("map-a"),
			str("βeta"), i32(4), i32(4), u16(9), str(""),
		)},
		{"UpdateRoomData", frame(KindUpdateRoomData, str("Cool Map 2"), i32(16))},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := Decode(tc.frame)
			require.NoError(t, err)
			assert.Equal(t, tc.frame, Encode(msg))
		})
	}
}

// TestDecodeFields spot-checks that decoded values land in the right fields.
func TestDecodeFields(t *testing.T) {
	msg, err := Decode(frame(KindCreateRoom, i32(10), str("lobby"), []byte{1}, str("extra")))
	require.NoError(t, err)
	assert.Equal(t, &CreateRoom{MaxPlayers: 10, Name: "lobby", Listed: true, ExtraData: "extra"}, msg)

	msg, err = Decode(frame(KindGetData, i32(2), i32(2), []byte{4, 5}, u16(12)))
	require.NoError(t, err)
	assert.Equal(t, &GetData{Payload: []byte{4, 5}, SenderID: 12}, msg)

	msg, err = Decode(frame(KindSendData, i32(1), i32(1), []byte{4}))
	require.NoError(t, err)
	assert.Nil(t, msg.(*SendData).Recipients)

	msg, err = Decode(frame(KindServerListResponse, i32(1), str("room"), i32(2), i32(6), u16(77), str("data")))
	require.NoError(t, err)
	assert.Equal(t, []RoomEntry{{Name: "room", CurrentPlayers: 2, MaxPlayers: 6, RoomID: 77, ExtraData: "data"}},
		msg.(*ServerListResponse).Rooms)
}

// TestEncodeLayout pins the byte layout of the server-role SendData frame.
func TestEncodeLayout(t *testing.T) {
	got := Encode(&SendData{Payload: []byte{0xAA}, Recipients: []uint16{1, 2}})
	want := []byte{
		0x00, 0x03,                                     // kind
		0x00, 0x00, 0x00, 0x01,                         // length
		0x00, 0x00, 0x00, 0x01, 0xAA,                   // blob
		0x00, 0x00, 0x00, 0x02, 0x00, 0x01, 0x00, 0x02, // recipients
	}
	assert.Equal(t, want, got)
}

// TestDecodeUnknownKind verifies that retired and unassigned tags are reported
// as unknown rather than malformed.
func TestDecodeUnknownKind(t *testing.T) {
	for _, kind := range []Kind{0, 1, 4, 19, 0xFFFF} {
		_, err := Decode(frame(kind, u16(1)))
		assert.ErrorIs(t, err, ErrUnknownKind, "kind %d", kind)
	}
}

// TestDecodeTruncated verifies that every strict prefix of a frame with a
// body fails with ErrMalformed instead of panicking.
func TestDecodeTruncated(t *testing.T) {
	messages := []Message{
		&AuthenticationResponse{Password: "pw"},
		&CreateRoom{MaxPlayers: 4, Name: "n", Listed: true, ExtraData: "x"},
		&RoomCreated{RoomID: 1},
		&JoinServer{RoomID: 1},
		&ServerJoined{PeerID: 1},
		&PlayerDisconnected{PeerID: 1},
		&KickPlayer{PeerID: 1},
		&SendData{Payload: []byte{1, 2, 3}},
		&GetData{Payload: []byte{1, 2, 3}, SenderID: 2},
		&ServerListResponse{Rooms: []RoomEntry{{Name: "a", RoomID: 1, ExtraData: "b"}}},
		&UpdateRoomData{Data: "d", MaxPlayers: 3},
	}

	for _, msg := range messages {
		full := Encode(msg)
		for n := 0; n < len(full); n++ {
			_, err := Decode(full[:n])
			assert.ErrorIs(t, err, ErrMalformed, "%s truncated to %d bytes", msg.Kind(), n)
		}
	}
}

// TestDecodeRejectsBadLengths covers hostile length prefixes.
func TestDecodeRejectsBadLengths(t *testing.T) {
	testCases := []struct {
		name  string
		frame []byte
	}{
		{"negative string length", frame(KindAuthenticationResponse, i32(-1))},
		{"huge room count", frame(KindServerListResponse, i32(1<<30))},
		{"data length mismatch", frame(KindGetData, i32(5), i32(1), []byte{1}, u16(1))},
		{"huge recipient count", frame(KindSendData, i32(0), i32(0), i32(1<<20))},
		{"invalid bool", frame(KindCreateRoom, i32(1), str(""), []byte{2}, str(""))},
		{"invalid utf-8", frame(KindAuthenticationResponse, i32(1), []byte{0xFF})},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.frame)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

// TestDecodeRejectsTrailingBytes verifies that a complete body followed by
// extra bytes is malformed, so every accepted frame re-encodes to itself.
func TestDecodeRejectsTrailingBytes(t *testing.T) {
	messages := []Message{
		&AuthenticationRequest{},
		&Authenticated{},
		&RoomCreated{RoomID: 1},
		&GetData{Payload: []byte{1, 2, 3}, SenderID: 2},
		&SendData{Payload: []byte{1}, Recipients: []uint16{4, 5}},
		&ServerListResponse{},
	}

	for _, msg := range messages {
		_, err := Decode(append(Encode(msg), 0xAB))
		assert.ErrorIs(t, err, ErrMalformed, "%s with a trailing byte", msg.Kind())
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "ServerListResponse", KindServerListResponse.String())
	assert.Equal(t, "Kind(4)", Kind(4).String())
}
