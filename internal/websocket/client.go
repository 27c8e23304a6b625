package websocket

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// Client is the server side of one browser tab's socket.
type Client struct {
	id      string
	conn    *websocket.Conn
	manager *Manager
	send    chan []byte
}

func newClient(id string, conn *websocket.Conn, manager *Manager) *Client {
	return &Client{
		id:      id,
		conn:    conn,
		manager: manager,
		send:    make(chan []byte, manager.opts.SendBufferSize),
	}
}

func (c *Client) ID() string {
	return c.id
}

// Send queues a frame for the write pump without blocking. Only the manager
// loop calls it, so it never races with the channel being closed.
func (c *Client) Send(data []byte) error {
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.manager.unregister <- c:
		case <-c.manager.done:
		}
		c.conn.Close()
	}()

	if c.manager.opts.MaxMessageSize > 0 {
		c.conn.SetReadLimit(c.manager.opts.MaxMessageSize)
	}
	c.conn.SetReadDeadline(time.Now().Add(c.manager.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.manager.opts.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read error", "clientId", c.id, "error", err)
			}
			return
		}

		select {
		case c.manager.inbound <- &ClientMessage{Client: c, Message: message}:
		case <-c.manager.done:
			return
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(c.manager.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.manager.opts.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.manager.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
