// Package notesync is a Go client for the note relay's websocket endpoint.
//
// A Client keeps one connection open, reconnecting with exponential backoff,
// and tracks a single active note. The active note is joined again after
// every reconnect. Updates from other editors of the active note are
// delivered on Updates; they are snapshots for display and never replace the
// caller's own buffer.
package notesync

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrNoActiveNote = errors.New("no active note")
	ErrNotConnected = errors.New("not connected")
)

const (
	eventJoinNote      = "join-note"
	eventLeaveNote     = "leave-note"
	eventUpdateNote    = "update-note"
	eventReceiveUpdate = "receive-update"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Update is a content snapshot pushed by another editor of the open note.
type Update struct {
	NoteID  string `json:"noteId"`
	Content string `json:"content"`
}

type Option func(*Client)

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithBackoff bounds the delay between reconnect attempts.
func WithBackoff(initial, limit time.Duration) Option {
	return func(c *Client) {
		c.minBackoff = initial
		c.maxBackoff = limit
	}
}

func WithUpdateBuffer(n int) Option {
	return func(c *Client) { c.bufferSize = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

type Client struct {
	url        string
	dialer     *websocket.Dialer
	minBackoff time.Duration
	maxBackoff time.Duration
	bufferSize int
	log        *slog.Logger

	updates chan Update
	stop    chan struct{}
	once    sync.Once

	// mu guards conn and active, and serializes writes on conn.
	mu     sync.Mutex
	conn   *websocket.Conn
	active string
}

// New returns a client for the websocket endpoint at url, e.g.
// "ws://localhost:8080/ws". Nothing is dialed until Run is called.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:        url,
		dialer:     websocket.DefaultDialer,
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
		bufferSize: 64,
		log:        slog.Default(),
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.updates = make(chan Update, c.bufferSize)
	return c
}

// Updates is closed when Run returns. Callers must keep draining it while
// Run is active or the connection stalls.
func (c *Client) Updates() <-chan Update {
	return c.updates
}

// Run connects and keeps the connection alive until ctx is cancelled or
// Close is called. It must be called at most once.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.updates)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	backoff := c.minBackoff
	for {
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err == nil {
			backoff = c.minBackoff
			c.serve(ctx, conn)
		} else if ctx.Err() == nil {
			c.log.Debug("notesync dial failed", "url", c.url, "error", err, "retry_in", backoff)
		}

		if ctx.Err() != nil {
			select {
			case <-c.stop:
				return nil
			default:
				return ctx.Err()
			}
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			continue
		}
		backoff = min(backoff*2, c.maxBackoff)
	}
}

// serve owns conn until it fails or ctx ends.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	if c.active != "" {
		if err := c.write(eventJoinNote, c.active); err != nil {
			c.log.Warn("notesync rejoin failed", "noteId", c.active, "error", err)
		}
	}
	c.mu.Unlock()

	closed := make(chan struct{})
	defer close(closed)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-closed:
		}
	}()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.log.Info("notesync connection lost", "error", err)
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil || f.Event != eventReceiveUpdate {
			continue
		}
		var u Update
		if err := json.Unmarshal(f.Data, &u); err != nil {
			continue
		}

		c.mu.Lock()
		current := c.active
		c.mu.Unlock()
		if u.NoteID != current {
			continue
		}

		select {
		case c.updates <- u:
		case <-ctx.Done():
			return
		}
	}
}

// Open makes noteID the active note, leaving the previous one. When offline
// the join is sent once the connection is back.
func (c *Client) Open(noteID string) error {
	if noteID == "" {
		return ErrNoActiveNote
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == noteID {
		return nil
	}
	previous := c.active
	c.active = noteID

	if c.conn == nil {
		return nil
	}
	if previous != "" {
		if err := c.write(eventLeaveNote, previous); err != nil {
			return err
		}
	}
	return c.write(eventJoinNote, noteID)
}

// Emit sends the full current content of the active note.
func (c *Client) Emit(content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == "" {
		return ErrNoActiveNote
	}
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.write(eventUpdateNote, Update{NoteID: c.active, Content: content})
}

// Leave ends the edit session without closing the connection.
func (c *Client) Leave() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	previous := c.active
	c.active = ""
	if previous == "" || c.conn == nil {
		return nil
	}
	return c.write(eventLeaveNote, previous)
}

// Close leaves the active note and stops Run.
func (c *Client) Close() error {
	err := c.Leave()
	c.once.Do(func() { close(c.stop) })
	return err
}

// write must be called with mu held.
func (c *Client) write(event string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(frame{Event: event, Data: raw})
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}
