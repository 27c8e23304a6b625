package websocket

import (
	"encoding/json"
)

type EventName string

const (
	EventJoinNote      EventName = "join-note"
	EventLeaveNote     EventName = "leave-note"
	EventUpdateNote    EventName = "update-note"
	EventReceiveUpdate EventName = "receive-update"
	EventPing          EventName = "ping"
	EventPong          EventName = "pong"
)

// Message is the frame exchanged in both directions over the socket.
type Message struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NoteUpdate is a full content snapshot of a note. It is advisory only and
// carries no author or version.
type NoteUpdate struct {
	NoteID  string `json:"noteId" validate:"required,max=128"`
	Content string `json:"content"`
}

func NewMessage(event EventName, data interface{}) (*Message, error) {
	var raw json.RawMessage
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = bytes
	}

	return &Message{
		Event: event,
		Data:  raw,
	}, nil
}

// Encode marshals an event into a single wire frame.
func Encode(event EventName, data interface{}) ([]byte, error) {
	msg, err := NewMessage(event, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

func (m *Message) UnmarshalData(v interface{}) error {
	if m.Data == nil {
		return errEmptyData
	}
	return json.Unmarshal(m.Data, v)
}
