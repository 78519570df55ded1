package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn wraps one device's websocket connection. All writes funnel through a
// single writer goroutine so concurrent senders never race on the socket.
type Conn struct {
	conn      *websocket.Conn
	writeCh   chan []byte
	deviceID  string
	writeWait time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	mu        sync.RWMutex
}

// NewConn wraps an upgraded websocket connection and starts its writer.
func NewConn(ws *websocket.Conn, bufferSize int, writeWait time.Duration) *Conn {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if writeWait <= 0 {
		writeWait = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		conn:      ws,
		writeCh:   make(chan []byte, bufferSize),
		writeWait: writeWait,
		ctx:       ctx,
		cancel:    cancel,
	}
	go c.writeLoop()
	return c
}

func (c *Conn) writeLoop() {
	for {
		select {
		case data, ok := <-c.writeCh:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON serializes v and queues it for the writer goroutine. It fails
// fast on a closed connection and times out rather than blocking a caller on
// a stalled socket.
func (c *Conn) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(c.writeWait):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close shuts the socket down exactly once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// SetDeviceID records the identity learned from the handshake.
func (c *Conn) SetDeviceID(deviceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deviceID = deviceID
}

// DeviceID returns the identity bound to this connection.
func (c *Conn) DeviceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deviceID
}
