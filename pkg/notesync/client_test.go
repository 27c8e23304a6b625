package notesync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"collabnotes-server/internal/websocket"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 3 * time.Second

type relayServer struct {
	current atomic.Pointer[websocket.Manager]
	stop    atomic.Pointer[context.CancelFunc]
	srv     *httptest.Server
}

func newRelayServer(t *testing.T) *relayServer {
	t.Helper()

	rs := &relayServer{}
	upgrader := ws.Upgrader{}
	rs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if _, err := rs.current.Load().Attach(conn); err != nil {
			conn.Close()
		}
	}))
	rs.restart()

	t.Cleanup(func() {
		(*rs.stop.Load())()
		rs.srv.Close()
	})
	return rs
}

// restart swaps in a fresh manager, dropping every connection held by the old one.
func (rs *relayServer) restart() {
	m := websocket.NewManager(websocket.DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)

	old := rs.stop.Swap(&cancel)
	rs.current.Store(m)
	if old != nil {
		(*old)()
	}
}

func (rs *relayServer) url() string {
	return "ws" + strings.TrimPrefix(rs.srv.URL, "http")
}

// roomSize runs inside require.Eventually, so it reports errors as -1
// instead of failing from another goroutine.
func (rs *relayServer) roomSize(t *testing.T, noteID string) int {
	n, err := rs.current.Load().RoomSize(context.Background(), noteID)
	if err != nil {
		t.Logf("room size %s: %v", noteID, err)
		return -1
	}
	return n
}

func runClient(t *testing.T, rs *relayServer) *Client {
	t.Helper()

	c := New(rs.url(), WithBackoff(10*time.Millisecond, 50*time.Millisecond))
	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	t.Cleanup(func() {
		c.Close()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(waitFor):
			t.Error("client did not stop")
		}
	})
	return c
}

func nextUpdate(t *testing.T, c *Client) Update {
	t.Helper()
	select {
	case u, ok := <-c.Updates():
		require.True(t, ok, "updates closed")
		return u
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for update")
		return Update{}
	}
}

func TestClient_RelaysBetweenEditors(t *testing.T) {
	rs := newRelayServer(t)
	a := runClient(t, rs)
	b := runClient(t, rs)

	require.NoError(t, a.Open("note-42"))
	require.NoError(t, b.Open("note-42"))
	require.Eventually(t, func() bool { return rs.roomSize(t, "note-42") == 2 }, waitFor, 10*time.Millisecond)

	require.NoError(t, a.Emit("<p>Hello</p>"))
	assert.Equal(t, Update{NoteID: "note-42", Content: "<p>Hello</p>"}, nextUpdate(t, b))

	require.NoError(t, b.Emit("<p>Hello back</p>"))
	assert.Equal(t, Update{NoteID: "note-42", Content: "<p>Hello back</p>"}, nextUpdate(t, a))
}

func TestClient_OpenLeavesPreviousNote(t *testing.T) {
	rs := newRelayServer(t)
	a := runClient(t, rs)
	b := runClient(t, rs)
	c := runClient(t, rs)

	require.NoError(t, a.Open("x"))
	require.NoError(t, b.Open("x"))
	require.NoError(t, c.Open("y"))
	require.Eventually(t, func() bool { return rs.roomSize(t, "x") == 2 }, waitFor, 10*time.Millisecond)

	require.NoError(t, b.Open("y"))
	require.Eventually(t, func() bool {
		return rs.roomSize(t, "x") == 1 && rs.roomSize(t, "y") == 2
	}, waitFor, 10*time.Millisecond)

	require.NoError(t, a.Emit("for x"))
	require.NoError(t, c.Emit("for y"))
	assert.Equal(t, Update{NoteID: "y", Content: "for y"}, nextUpdate(t, b))
}

func TestClient_LeaveEmptiesRoom(t *testing.T) {
	rs := newRelayServer(t)
	a := runClient(t, rs)

	require.NoError(t, a.Open("note-1"))
	require.Eventually(t, func() bool { return rs.roomSize(t, "note-1") == 1 }, waitFor, 10*time.Millisecond)

	require.NoError(t, a.Leave())
	require.Eventually(t, func() bool { return rs.roomSize(t, "note-1") == 0 }, waitFor, 10*time.Millisecond)
	assert.ErrorIs(t, a.Emit("late"), ErrNoActiveNote)
}

func TestClient_RejoinsAfterReconnect(t *testing.T) {
	rs := newRelayServer(t)
	a := runClient(t, rs)
	b := runClient(t, rs)

	require.NoError(t, a.Open("note-42"))
	require.NoError(t, b.Open("note-42"))
	require.Eventually(t, func() bool { return rs.roomSize(t, "note-42") == 2 }, waitFor, 10*time.Millisecond)

	rs.restart()
	require.Eventually(t, func() bool { return rs.roomSize(t, "note-42") == 2 }, waitFor, 10*time.Millisecond)

	require.NoError(t, a.Emit("after restart"))
	assert.Equal(t, Update{NoteID: "note-42", Content: "after restart"}, nextUpdate(t, b))
}

func TestClient_ErrorsWithoutSession(t *testing.T) {
	c := New("ws://127.0.0.1:0/ws")

	assert.ErrorIs(t, c.Emit("x"), ErrNoActiveNote)
	assert.ErrorIs(t, c.Open(""), ErrNoActiveNote)

	require.NoError(t, c.Open("note-1"))
	assert.ErrorIs(t, c.Emit("x"), ErrNotConnected)
	assert.NoError(t, c.Leave())
}

func TestClient_CloseStopsRun(t *testing.T) {
	rs := newRelayServer(t)
	c := New(rs.url(), WithBackoff(10*time.Millisecond, 50*time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	require.NoError(t, c.Open("note-1"))
	require.Eventually(t, func() bool { return rs.roomSize(t, "note-1") == 1 }, waitFor, 10*time.Millisecond)

	require.NoError(t, c.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Run did not return after Close")
	}

	_, ok := <-c.Updates()
	assert.False(t, ok)
	require.Eventually(t, func() bool { return rs.roomSize(t, "note-1") == 0 }, waitFor, 10*time.Millisecond)
}

func TestClient_RunStopsOnContext(t *testing.T) {
	c := New("ws://127.0.0.1:1/ws", WithBackoff(5*time.Millisecond, 10*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
