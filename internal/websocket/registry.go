package websocket

// Connection is one live client transport as seen by the registry and the
// relay. Implementations must not block in Send.
type Connection interface {
	ID() string
	Send(data []byte) error
}

type Stats struct {
	Rooms       int `json:"rooms"`
	Connections int `json:"connections"`
}

// Registry maps note ids to the connections currently in that note's room,
// with the inverse index kept alongside so a disconnect only touches the rooms
// the connection actually joined.
//
// A Registry is not safe for concurrent use. The Manager owns it and only
// touches it from its Run loop.
type Registry struct {
	rooms       map[string]map[string]Connection
	memberships map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:       make(map[string]map[string]Connection),
		memberships: make(map[string]map[string]struct{}),
	}
}

// Join adds conn to the room for noteID, creating the room on demand. It
// reports whether conn was newly added.
func (r *Registry) Join(conn Connection, noteID string) bool {
	room, ok := r.rooms[noteID]
	if !ok {
		room = make(map[string]Connection)
		r.rooms[noteID] = room
	}
	if _, member := room[conn.ID()]; member {
		return false
	}
	room[conn.ID()] = conn

	joined, ok := r.memberships[conn.ID()]
	if !ok {
		joined = make(map[string]struct{})
		r.memberships[conn.ID()] = joined
	}
	joined[noteID] = struct{}{}
	return true
}

// Leave removes conn from the room for noteID. It reports whether conn was a
// member.
func (r *Registry) Leave(conn Connection, noteID string) bool {
	return r.leave(conn.ID(), noteID)
}

// LeaveAll removes conn from every room it joined and returns those rooms.
func (r *Registry) LeaveAll(conn Connection) []string {
	joined := r.memberships[conn.ID()]
	left := make([]string, 0, len(joined))
	for noteID := range joined {
		r.leave(conn.ID(), noteID)
		left = append(left, noteID)
	}
	delete(r.memberships, conn.ID())
	return left
}

func (r *Registry) leave(connID, noteID string) bool {
	room, ok := r.rooms[noteID]
	if !ok {
		return false
	}
	if _, member := room[connID]; !member {
		return false
	}

	delete(room, connID)
	if len(room) == 0 {
		delete(r.rooms, noteID)
	}

	if joined, ok := r.memberships[connID]; ok {
		delete(joined, noteID)
		if len(joined) == 0 {
			delete(r.memberships, connID)
		}
	}
	return true
}

// Members returns a snapshot of the connections in the room for noteID.
func (r *Registry) Members(noteID string) []Connection {
	room := r.rooms[noteID]
	members := make([]Connection, 0, len(room))
	for _, conn := range room {
		members = append(members, conn)
	}
	return members
}

func (r *Registry) RoomsOf(connID string) []string {
	joined := r.memberships[connID]
	rooms := make([]string, 0, len(joined))
	for noteID := range joined {
		rooms = append(rooms, noteID)
	}
	return rooms
}

func (r *Registry) RoomSize(noteID string) int {
	return len(r.rooms[noteID])
}

// Stats counts non-empty rooms and connections that are in at least one room.
func (r *Registry) Stats() Stats {
	return Stats{
		Rooms:       len(r.rooms),
		Connections: len(r.memberships),
	}
}
