package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // game clients connect from app webviews, not browsers
	},
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 8192
	sendBufferSize = 256
)

// Client is one websocket connection. userID is empty until the connection
// identifies itself with add_user (or reclaims a seat via get_previous_room).
type Client struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	userID string

	closeOnce sync.Once
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// UserID returns the identity bound by add_user, or ""
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Client) setUserID(id string) {
	c.mu.Lock()
	c.userID = id
	c.mu.Unlock()
}

// enqueue hands a pre-encoded frame to the write pump. Never blocks: a slow
// consumer loses messages rather than stalling the room.
func (c *Client) enqueue(frame []byte) {
	select {
	case c.send <- frame:
	default:
		log.Printf("[WS] send buffer full for user %q, dropping frame", c.UserID())
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// sendError reports a malformed or unprocessable event back to the sender
func (c *Client) sendError(message string) {
	frame, err := encodeFrame(EvError, ErrorPayload{Message: message})
	if err != nil {
		return
	}
	c.enqueue(frame)
}

// readPump pulls frames off the wire and hands them to the dispatcher. Runs
// until the connection drops; the dispatcher's disconnect hook fires on exit.
func (c *Client) readPump(d *Dispatcher) {
	defer func() {
		d.HandleDisconnect(c)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] read error for user %q: %v", c.UserID(), err)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			log.Printf("[WS] unparseable frame from user %q: %v", c.UserID(), err)
			c.sendError("invalid frame")
			continue
		}
		d.Dispatch(c, frame)
	}
}

// writePump serializes all writes to the connection and keeps it alive with
// pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Printf("[WS] write error for user %q: %v", c.UserID(), err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HandleWebSocket upgrades the request and starts the connection pumps
func HandleWebSocket(d *Dispatcher, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] upgrade failed: %v", err)
		return
	}
	c := newClient(conn)
	go c.writePump()
	go c.readPump(d)
}
