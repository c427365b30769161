package channel

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/darkrelay/internal/util"
)

const (
	// RelayPath is the WebSocket endpoint of the relay.
	RelayPath = "/relay"

	maxMessageSize = 64 * 1024
	writeTimeout   = 10 * time.Second
)

// WebSocketChannel carries relay frames over a single WebSocket. Every
// binary message is one frame prefixed by a byte holding its Reliability,
// so the relay can keep the class when forwarding. The socket itself is
// ordered and reliable for both classes.
type WebSocketChannel struct {
	handlers
	dispatcher *Dispatcher
	dialer     *websocket.Dialer
	log        util.Logger

	mu   sync.Mutex // guards conn
	conn *websocket.Conn

	writeMu   sync.Mutex // serializes writes to conn
	connected atomic.Bool
}

// NewWebSocketChannel creates an unconnected WebSocket channel.
func NewWebSocketChannel() *WebSocketChannel {
	return &WebSocketChannel{
		dispatcher: NewDispatcher(),
		dialer:     websocket.DefaultDialer,
		log:        util.NewLogger("ws", ""),
	}
}

// relayURL builds the ws(s):// URL for the relay endpoint at path.
func relayURL(address string, port uint16, secure bool, path string) string {
	scheme := "ws"
	if secure {
		scheme = "wss"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(address, strconv.Itoa(int(port))),
		Path:   path,
	}
	return u.String()
}

// Connect dials the relay and starts the read loop.
func (c *WebSocketChannel) Connect(ctx context.Context, address string, port uint16, secure bool) error {
	if c.connected.Load() {
		return ErrAlreadyConnected
	}

	target := relayURL(address, port, secure, RelayPath)
	conn, _, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to relay %s: %w", target, err)
	}
	conn.SetReadLimit(maxMessageSize)

	c.mu.Lock()
	c.conn = conn
	c.log = util.NewLogger("ws", util.NewConnTag())
	c.mu.Unlock()
	c.connected.Store(true)

	c.log.Info("connected to relay %s", target)
	go c.readLoop(conn)
	return nil
}

// readLoop queues every inbound frame until the socket fails, then queues a
// single disconnect notification.
func (c *WebSocketChannel) readLoop(conn *websocket.Conn) {
	defer c.lost(conn)

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("relay read error: %v", err)
			}
			return
		}
		if typ != websocket.BinaryMessage || len(data) < 1 {
			util.Stats.AddDropped()
			continue
		}

		msg := Message{Frame: data[1:], Reliability: Reliability(data[0])}
		if !msg.Reliability.Valid() {
			c.log.Debug("dropping frame with unknown reliability class %d", data[0])
			util.Stats.AddDropped()
			continue
		}

		util.Stats.AddRecv(len(msg.Frame))
		c.dispatcher.Enqueue(func() { c.message(msg) })
	}
}

// lost tears down conn if it is still the current connection.
func (c *WebSocketChannel) lost(conn *websocket.Conn) {
	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
	}
	c.mu.Unlock()

	conn.Close()
	if !current {
		return
	}

	c.connected.Store(false)
	c.log.Info("relay connection closed")
	c.dispatcher.Enqueue(c.disconnected)
}

// Send writes one frame, prefixed with its reliability class.
func (c *WebSocketChannel) Send(frame []byte, r Reliability) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	buf := make([]byte, 1+len(frame))
	buf[0] = byte(r)
	copy(buf[1:], frame)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.BinaryMessage, buf); err != nil {
		return fmt.Errorf("failed to send %s frame: %w", r, err)
	}

	util.Stats.AddSent(len(frame))
	return nil
}

func (c *WebSocketChannel) DispatchPending() int    { return c.dispatcher.Execute() }
func (c *WebSocketChannel) Pending() <-chan struct{} { return c.dispatcher.Signal() }
func (c *WebSocketChannel) Connected() bool          { return c.connected.Load() }

// Disconnect sends a close message and closes the socket. The read loop then
// queues the disconnect notification.
func (c *WebSocketChannel) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	err := conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	c.lost(conn)
	return err
}
