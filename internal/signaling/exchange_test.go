package signaling

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newSignalServer serves handle on /signal and returns its ws:// URL.
func newSignalServer(t *testing.T, handle func(conn *websocket.Conn)) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/signal", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/signal"
}

// answeringRelay answers the first offer with a real PeerConnection and then
// keeps reading until the socket closes.
func answeringRelay(t *testing.T) func(conn *websocket.Conn) {
	return func(conn *websocket.Conn) {
		pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
		if err != nil {
			t.Errorf("relay peer: %v", err)
			return
		}
		defer pc.Close()

		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type != MsgTypeOffer {
				continue
			}
			if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: msg.SDP}); err != nil {
				t.Errorf("relay SetRemoteDescription: %v", err)
				return
			}
			answer, err := pc.CreateAnswer(nil)
			if err != nil {
				t.Errorf("relay CreateAnswer: %v", err)
				return
			}
			if err := pc.SetLocalDescription(answer); err != nil {
				t.Errorf("relay SetLocalDescription: %v", err)
				return
			}
			if err := conn.WriteJSON(Message{Type: MsgTypeAnswer, SDP: answer.SDP}); err != nil {
				return
			}
		}
	}
}

func newOfferingPeer(t *testing.T) *webrtc.PeerConnection {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	_, err = pc.CreateDataChannel("reliable", nil)
	require.NoError(t, err)
	return pc
}

func TestExchangeAppliesAnswer(t *testing.T) {
	url := newSignalServer(t, answeringRelay(t))
	pc := newOfferingPeer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := Dial(ctx, url)
	require.NoError(t, err)
	defer conn.Close()

	ready := make(chan struct{})
	errCh := make(chan error, 1)
	go func() { errCh <- Exchange(ctx, conn, pc, ready) }()

	require.Eventually(t, func() bool {
		return pc.RemoteDescription() != nil
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, webrtc.SDPTypeAnswer, pc.RemoteDescription().Type)
	assert.Equal(t, webrtc.SDPTypeOffer, pc.LocalDescription().Type)

	close(ready)
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Exchange did not return after ready")
	}
}

func TestExchangeRelayHangsUp(t *testing.T) {
	url := newSignalServer(t, func(conn *websocket.Conn) {})
	pc := newOfferingPeer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := Dial(ctx, url)
	require.NoError(t, err)
	defer conn.Close()

	err = Exchange(ctx, conn, pc, make(chan struct{}))
	require.Error(t, err)
}

func TestExchangeContextCancelled(t *testing.T) {
	url := newSignalServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	pc := newOfferingPeer(t)

	conn, err := Dial(context.Background(), url)
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err = Exchange(ctx, conn, pc, make(chan struct{}))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := Dial(ctx, "ws://127.0.0.1:9/signal")
	assert.Error(t, err)
}
