package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// client is one WebSocket connection. The NATS consumer goroutine only
// ever enqueues into send; the writePump goroutine is the sole writer on
// the socket, which is what makes cross-context delivery safe.
type client struct {
	id       uuid.UUID
	conn     *websocket.Conn
	send     chan []byte
	userID   string
	deviceID string

	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, userID, deviceID string, sendBuffer int) *client {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &client{
		id:       uuid.New(),
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		userID:   userID,
		deviceID: deviceID,
		done:     make(chan struct{}),
	}
}

// enqueue hands a message to the client's writePump without blocking.
// A full buffer means the client cannot keep up; delivery is best
// effort per connection, so the send is reported failed and the caller
// disconnects this client only.
func (c *client) enqueue(data []byte) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close marks the client terminal and closes the socket. Idempotent.
func (c *client) close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		_ = c.conn.Close()
	})
}

// writePump drains the send channel onto the socket and keeps the
// connection alive with pings. It is the only goroutine writing to the
// connection. Exits on write error or close.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// readPump drains incoming frames. Clients may send frames (chat input
// arrives through the chat collaborator, not this socket), so reads are
// discarded; the pump exists to process pongs and detect disconnects.
func (c *client) readPump(onClose func(*client)) {
	defer func() {
		c.close()
		onClose(c)
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
