package websocket

import (
	"log/slog"
)

// Relay fans update snapshots out to the other members of a note's room. It
// reads membership through the Registry and never mutates it.
type Relay struct {
	registry *Registry
}

func NewRelay(registry *Registry) *Relay {
	return &Relay{registry: registry}
}

// Publish delivers {noteID, content} to every member of the room except
// sender and returns how many recipients accepted it. An empty room, or one
// holding only the sender, drops the update.
func (r *Relay) Publish(sender Connection, noteID, content string) int {
	members := r.registry.Members(noteID)
	if len(members) == 0 || (len(members) == 1 && members[0].ID() == sender.ID()) {
		return 0
	}

	frame, err := Encode(EventReceiveUpdate, &NoteUpdate{NoteID: noteID, Content: content})
	if err != nil {
		slog.Warn("encode update failed", "noteId", noteID, "error", err)
		return 0
	}

	delivered := 0
	for _, conn := range members {
		if conn.ID() == sender.ID() {
			continue
		}
		if err := conn.Send(frame); err != nil {
			slog.Debug("update dropped for recipient", "noteId", noteID, "clientId", conn.ID(), "error", err)
			continue
		}
		delivered++
	}
	return delivered
}
