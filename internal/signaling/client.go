package signaling

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
)

// Dial opens the signaling WebSocket at url, e.g.
//
//	wss://relay.example.com:4296/signal
func Dial(ctx context.Context, url string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to signaling endpoint: %w", err)
	}
	return conn, nil
}
