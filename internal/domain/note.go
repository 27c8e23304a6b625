package domain

import "time"

type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	// Timestamp is stamped on every save.
	Timestamp time.Time `json:"timestamp"`
}

type CreateNoteRequest struct {
	Title   string `json:"title" validate:"required,max=100"`
	Content string `json:"content" validate:"required"`
}

// UpdateNoteRequest replaces both title and content; the last save wins.
type UpdateNoteRequest struct {
	Title   string `json:"title" validate:"required,max=100"`
	Content string `json:"content" validate:"required"`
}

type ListNotesQuery struct {
	Limit  int `validate:"min=1,max=100"`
	Offset int `validate:"min=0"`
}

const DefaultListLimit = 10

type NoteListResponse struct {
	Notes      []*Note `json:"notes"`
	TotalCount int     `json:"total_count"`
}

type NoteEditorsResponse struct {
	NoteID  string `json:"note_id"`
	Editors int    `json:"editors"`
}
