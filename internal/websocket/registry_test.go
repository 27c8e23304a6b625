package websocket

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConn struct {
	id       string
	received [][]byte
	sendErr  error
	mu       sync.Mutex
}

func (m *mockConn) ID() string { return m.id }

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.received = append(m.received, data)
	return nil
}

func (m *mockConn) getReceived() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.received
}

var errClosed = errors.New("connection closed")

func TestRegistry_Join(t *testing.T) {
	r := NewRegistry()
	a := &mockConn{id: "a"}

	assert.True(t, r.Join(a, "note-1"))
	assert.False(t, r.Join(a, "note-1"), "second join is a no-op")
	assert.Equal(t, 1, r.RoomSize("note-1"))
	assert.Equal(t, []string{"note-1"}, r.RoomsOf("a"))

	assert.True(t, r.Join(a, "never-persisted"), "unknown note ids are accepted")
	assert.ElementsMatch(t, []string{"note-1", "never-persisted"}, r.RoomsOf("a"))
}

func TestRegistry_Leave(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(r *Registry, a, b *mockConn)
		leaveNote  string
		wantLeft   bool
		wantRooms  int
		wantRoomsA []string
	}{
		{
			name: "leave joined room",
			setup: func(r *Registry, a, b *mockConn) {
				r.Join(a, "n1")
				r.Join(b, "n1")
			},
			leaveNote:  "n1",
			wantLeft:   true,
			wantRooms:  1,
			wantRoomsA: []string{},
		},
		{
			name: "last member removes room",
			setup: func(r *Registry, a, b *mockConn) {
				r.Join(a, "n1")
			},
			leaveNote:  "n1",
			wantLeft:   true,
			wantRooms:  0,
			wantRoomsA: []string{},
		},
		{
			name: "not a member",
			setup: func(r *Registry, a, b *mockConn) {
				r.Join(b, "n1")
			},
			leaveNote:  "n1",
			wantLeft:   false,
			wantRooms:  1,
			wantRoomsA: []string{},
		},
		{
			name:       "unknown room",
			setup:      func(r *Registry, a, b *mockConn) {},
			leaveNote:  "missing",
			wantLeft:   false,
			wantRooms:  0,
			wantRoomsA: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			a, b := &mockConn{id: "a"}, &mockConn{id: "b"}
			tt.setup(r, a, b)

			assert.Equal(t, tt.wantLeft, r.Leave(a, tt.leaveNote))
			assert.Equal(t, tt.wantRooms, r.Stats().Rooms)
			assert.Equal(t, tt.wantRoomsA, r.RoomsOf("a"))
		})
	}
}

func TestRegistry_LeaveAll(t *testing.T) {
	r := NewRegistry()
	a, b := &mockConn{id: "a"}, &mockConn{id: "b"}

	r.Join(a, "n1")
	r.Join(a, "n2")
	r.Join(b, "n2")

	left := r.LeaveAll(a)
	assert.ElementsMatch(t, []string{"n1", "n2"}, left)

	assert.Empty(t, r.RoomsOf("a"))
	assert.Equal(t, 0, r.RoomSize("n1"))
	require.Len(t, r.Members("n2"), 1)
	assert.Equal(t, "b", r.Members("n2")[0].ID())
	assert.Equal(t, Stats{Rooms: 1, Connections: 1}, r.Stats())

	assert.Empty(t, r.LeaveAll(a), "second disconnect is a no-op")
}

func TestRegistry_IndependentInstances(t *testing.T) {
	r1, r2 := NewRegistry(), NewRegistry()
	r1.Join(&mockConn{id: "a"}, "n1")

	assert.Equal(t, 1, r1.RoomSize("n1"))
	assert.Equal(t, 0, r2.RoomSize("n1"))
}
