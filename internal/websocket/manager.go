package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	ErrManagerStopped = errors.New("websocket manager stopped")
	ErrSendBufferFull = errors.New("send buffer full")

	errEmptyData = errors.New("message has no data")
)

type Options struct {
	MaxConnections int
	SendBufferSize int
	MaxMessageSize int64
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxConnections: 1000,
		SendBufferSize: 256,
		MaxMessageSize: 1 << 20,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
	}
}

type ClientMessage struct {
	Client  *Client
	Message []byte
}

// Manager owns the registry and serializes every event that touches it:
// connects, disconnects, inbound frames and read-only queries are handled one
// at a time by Run.
type Manager struct {
	registry *Registry
	relay    *Relay
	clients  map[string]*Client
	validate *validator.Validate
	opts     Options

	register   chan *Client
	unregister chan *Client
	inbound    chan *ClientMessage
	queries    chan func()
	done       chan struct{}
}

func NewManager(opts Options) *Manager {
	registry := NewRegistry()
	return &Manager{
		registry:   registry,
		relay:      NewRelay(registry),
		clients:    make(map[string]*Client),
		validate:   validator.New(),
		opts:       opts,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan *ClientMessage),
		queries:    make(chan func()),
		done:       make(chan struct{}),
	}
}

// Run dispatches events until ctx is cancelled, then closes every client.
func (m *Manager) Run(ctx context.Context) error {
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return nil

		case client := <-m.register:
			m.registerClient(client)

		case client := <-m.unregister:
			m.unregisterClient(client)

		case clientMsg := <-m.inbound:
			m.processMessage(clientMsg)

		case query := <-m.queries:
			query()
		}
	}
}

// Attach registers an upgraded connection and starts its pumps.
func (m *Manager) Attach(conn *websocket.Conn) (*Client, error) {
	client := newClient(uuid.New().String(), conn, m)

	select {
	case m.register <- client:
	case <-m.done:
		return nil, ErrManagerStopped
	}

	go client.WritePump()
	go client.ReadPump()

	return client, nil
}

func (m *Manager) RoomSize(ctx context.Context, noteID string) (int, error) {
	var size int
	err := m.query(ctx, func() {
		size = m.registry.RoomSize(noteID)
	})
	return size, err
}

// Stats reports the number of rooms and connected clients, including clients
// that have not joined any room yet.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := m.query(ctx, func() {
		stats = m.registry.Stats()
		stats.Connections = len(m.clients)
	})
	return stats, err
}

func (m *Manager) query(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	run := func() {
		fn()
		close(finished)
	}

	select {
	case m.queries <- run:
	case <-m.done:
		return ErrManagerStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) registerClient(client *Client) {
	if m.opts.MaxConnections > 0 && len(m.clients) >= m.opts.MaxConnections {
		slog.Warn("max connections reached, rejecting client", "clientId", client.id, "max", m.opts.MaxConnections)
		close(client.send)
		return
	}

	m.clients[client.id] = client
	slog.Info("client connected", "clientId", client.id, "remote", client.conn.RemoteAddr().String(), "clients", len(m.clients))
}

func (m *Manager) unregisterClient(client *Client) {
	if _, ok := m.clients[client.id]; !ok {
		return
	}

	rooms := m.registry.LeaveAll(client)
	delete(m.clients, client.id)
	close(client.send)

	slog.Info("client disconnected", "clientId", client.id, "rooms", len(rooms), "clients", len(m.clients))
}

func (m *Manager) shutdown() {
	for id, client := range m.clients {
		m.registry.LeaveAll(client)
		close(client.send)
		delete(m.clients, id)
	}
	slog.Info("websocket manager stopped")
}

func (m *Manager) processMessage(clientMsg *ClientMessage) {
	client := clientMsg.Client
	if _, ok := m.clients[client.id]; !ok {
		return
	}

	var msg Message
	if err := json.Unmarshal(clientMsg.Message, &msg); err != nil {
		slog.Warn("invalid message", "clientId", client.id, "error", err)
		return
	}

	switch msg.Event {
	case EventJoinNote:
		noteID, err := m.noteID(&msg)
		if err != nil {
			slog.Warn("invalid join-note", "clientId", client.id, "error", err)
			return
		}
		if m.registry.Join(client, noteID) {
			slog.Debug("client joined note", "clientId", client.id, "noteId", noteID, "members", m.registry.RoomSize(noteID))
		}

	case EventLeaveNote:
		noteID, err := m.noteID(&msg)
		if err != nil {
			slog.Warn("invalid leave-note", "clientId", client.id, "error", err)
			return
		}
		if m.registry.Leave(client, noteID) {
			slog.Debug("client left note", "clientId", client.id, "noteId", noteID)
		}

	case EventUpdateNote:
		var update NoteUpdate
		if err := msg.UnmarshalData(&update); err != nil {
			slog.Warn("invalid update-note", "clientId", client.id, "error", err)
			return
		}
		if err := m.validate.Struct(update); err != nil {
			slog.Warn("invalid update-note", "clientId", client.id, "error", err)
			return
		}
		delivered := m.relay.Publish(client, update.NoteID, update.Content)
		slog.Debug("note update relayed", "clientId", client.id, "noteId", update.NoteID, "recipients", delivered)

	case EventPing:
		pong, err := Encode(EventPong, nil)
		if err != nil {
			return
		}
		if err := client.Send(pong); err != nil {
			slog.Debug("pong dropped", "clientId", client.id, "error", err)
		}

	default:
		slog.Warn("unknown event", "clientId", client.id, "event", msg.Event)
	}
}

func (m *Manager) noteID(msg *Message) (string, error) {
	var noteID string
	if err := msg.UnmarshalData(&noteID); err != nil {
		return "", err
	}
	if err := m.validate.Var(noteID, "required,max=128"); err != nil {
		return "", err
	}
	return noteID, nil
}
