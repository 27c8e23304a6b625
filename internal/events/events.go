// Package events publishes note lifecycle events for downstream consumers.
// Delivery is best effort; a lost event never fails the request that caused it.
package events

import (
	"context"
	"time"
)

type NoteEventType string

const (
	NoteCreated NoteEventType = "note.created"
	NoteUpdated NoteEventType = "note.updated"
	NoteDeleted NoteEventType = "note.deleted"
)

type NoteEvent struct {
	Type       NoteEventType `json:"type"`
	NoteID     string        `json:"note_id"`
	Title      string        `json:"title,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, evt NoteEvent) error
	Close() error
}

type nopPublisher struct{}

func NewNopPublisher() Publisher {
	return nopPublisher{}
}

func (nopPublisher) Publish(context.Context, NoteEvent) error { return nil }
func (nopPublisher) Close() error                             { return nil }
