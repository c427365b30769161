package signaling

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/darkrelay/internal/util"
)

// Exchange runs the offering side of the SDP/ICE exchange over conn:
//  1. Trickle local ICE candidates to the relay
//  2. Send the offer
//  3. Apply the answer and remote candidates as they arrive
//  4. Return once ready closes, the socket fails or ctx is done
//
// The caller owns conn and pc; Exchange closes neither.
func Exchange(ctx context.Context, conn *websocket.Conn, pc *webrtc.PeerConnection, ready <-chan struct{}) error {
	s := &sender{pc: pc, conn: conn}
	r := &receiver{pc: pc, conn: conn}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		if err := s.sendCandidate(c); err != nil {
			select {
			case <-ready:
			default:
				util.LogDebug("[signal] failed to send candidate: %v", err)
			}
		}
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.watch()
	}()

	if err := s.sendOffer(); err != nil {
		return fmt.Errorf("failed to send offer: %w", err)
	}

	select {
	case <-ready:
		return nil

	case err := <-errCh:
		// The relay may hang up right after the channels open.
		select {
		case <-ready:
			return nil
		default:
			return fmt.Errorf("signaling failed: %w", err)
		}

	case <-ctx.Done():
		return ctx.Err()
	}
}
