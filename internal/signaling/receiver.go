package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/darkrelay/internal/util"
)

// receiver applies the relay's answer and ICE candidates to pc.
type receiver struct {
	pc   *webrtc.PeerConnection
	conn *websocket.Conn
}

// watch reads signaling messages until the socket fails or the relay sends
// something that cannot be applied.
func (r *receiver) watch() error {
	for {
		var msg Message
		if err := r.conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("failed to read signaling message: %w", err)
		}

		switch msg.Type {
		case MsgTypeAnswer:
			if err := r.pc.SetRemoteDescription(webrtc.SessionDescription{
				Type: webrtc.SDPTypeAnswer, SDP: msg.SDP,
			}); err != nil {
				return fmt.Errorf("SetRemoteDescription: %w", err)
			}

		case MsgTypeCandidate:
			var init webrtc.ICECandidateInit
			if err := json.Unmarshal([]byte(msg.Candidate), &init); err != nil {
				return fmt.Errorf("failed to parse ICE candidate: %w", err)
			}
			if err := r.pc.AddICECandidate(init); err != nil {
				return fmt.Errorf("AddICECandidate: %w", err)
			}

		default:
			util.LogDebug("[signal] ignoring %q message", msg.Type)
		}
	}
}
