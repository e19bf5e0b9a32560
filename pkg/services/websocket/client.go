package websocket

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var errClientClosed = errors.New("client closed")

// client is the realtime.Channel of one WebSocket. Frames are queued on a
// buffered channel and written by a single writePump goroutine.
type client struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	opts      Options
}

func newClient(id string, conn *websocket.Conn, opts Options) *client {
	return &client{
		id:   id,
		conn: conn,
		send: make(chan []byte, opts.SendBuffer),
		done: make(chan struct{}),
		opts: opts,
	}
}

// Send queues a frame. With the buffer full it waits for space until ctx ends
func (c *client) Send(ctx context.Context, payload []byte) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}

	// Buffer space wins over a done ctx.
	select {
	case c.send <- payload:
		return nil
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return errClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the write pump, which then closes the socket
func (c *client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// writePump drains the send queue and keeps the connection alive with pings
func (c *client) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("[WS] Write to %s failed: %v", c.id, err)
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
