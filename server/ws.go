package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// overlays are pasted into broadcast software with no predictable origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsClient owns one websocket connection and its outbound queue
type wsClient struct {
	conn   *websocket.Conn
	send   chan []byte
	fields log.Fields

	mu     sync.Mutex
	closed bool
}

func newWSClient(conn *websocket.Conn, fields log.Fields) *wsClient {
	return &wsClient{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		fields: fields,
	}
}

// enqueue marshals msg and queues it. A client that cannot keep up is dropped.
func (c *wsClient) enqueue(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.WithFields(c.fields).WithError(err).Error("Failed to encode websocket message")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		log.WithFields(c.fields).Warn("Websocket client too slow, disconnecting")
		c.closeLocked()
	}
}

func (c *wsClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *wsClient) closeLocked() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump blocks until the connection fails, passing each message to handle
func (c *wsClient) readPump(handle func(msg []byte)) {
	defer func() {
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithFields(c.fields).WithError(err).Warn("Websocket read error")
			} else {
				log.WithFields(c.fields).Debug("Websocket client disconnected")
			}
			return
		}

		func(msg []byte) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(c.fields).WithField("panic", r).Error("Recovered from panic in websocket handler")
				}
			}()
			handle(msg)
		}(message)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.WithFields(c.fields).WithError(err).Debug("Websocket write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
