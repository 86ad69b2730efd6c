package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendQueueSize  = 32
)

var (
	errSessionClosed = errors.New("session closed")
	errSendQueueFull = errors.New("send queue full")
)

// Client adapts one websocket connection to the Session interface.
// Writes go through a buffered queue drained by WritePump, so Send
// never blocks a broadcast.
type Client struct {
	conn *websocket.Conn
	log  *zap.Logger
	send chan []byte
	done chan struct{}
	once sync.Once
}

func NewClient(conn *websocket.Conn, log *zap.Logger) *Client {
	return &Client{
		conn: conn,
		log:  log,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
}

// Send queues a message for delivery. A full queue fails immediately:
// a client that stopped draining gets detached, not waited on.
func (c *Client) Send(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errSessionClosed
	case c.send <- data:
		return nil
	default:
		return errSendQueueFull
	}
}

// Close is idempotent and safe from any goroutine. It sends a close
// frame, then tears down the connection, which unblocks both pumps.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		deadline := time.Now().Add(writeWait)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = c.conn.Close()
	})
}

// WritePump owns all data writes on the connection: it drains the send
// queue and keeps the peer alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// ReadPump feeds inbound frames to handle until the connection dies.
// It blocks; the caller runs it on the request goroutine.
func (c *Client) ReadPump(handle func(data []byte)) {
	defer c.Close()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				c.log.Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		handle(data)
	}
}
