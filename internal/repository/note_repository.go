package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"collabnotes-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

var ErrNotFound = errors.New("not found")

type NoteRepository interface {
	Create(ctx context.Context, note *domain.Note) error
	FindByID(ctx context.Context, id string) (*domain.Note, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Note, error)
	Count(ctx context.Context) (int, error)
	Update(ctx context.Context, note *domain.Note) error
	Delete(ctx context.Context, id string) error
}

const (
	noteDocType = "note"

	noteCountDesignDoc = "_design/note-counts"
	noteCountView      = "all"
)

// noteCountViews reduces to the number of note documents without reading them.
var noteCountViews = map[string]interface{}{
	noteCountView: map[string]string{
		"map":    `function (doc) { if (doc.doc_type === "note") { emit(doc._id, null); } }`,
		"reduce": "_count",
	},
}

type noteDocument struct {
	ID        string    `json:"_id"`
	Rev       string    `json:"_rev,omitempty"`
	DocType   string    `json:"doc_type"`
	NoteID    string    `json:"note_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Timestamp time.Time `json:"timestamp"`
}

func (d *noteDocument) toNote() *domain.Note {
	return &domain.Note{
		ID:        d.NoteID,
		Title:     d.Title,
		Content:   d.Content,
		CreatedAt: d.CreatedAt,
		Timestamp: d.Timestamp,
	}
}

type noteRepository struct {
	client *kivik.Client
	dbName string
}

func NewNoteRepository(client *kivik.Client, dbName string) NoteRepository {
	return &noteRepository{
		client: client,
		dbName: dbName,
	}
}

// EnsureNoteIndexes creates the Mango index List sorts on and the view
// Count reduces over. Both calls are safe to repeat.
func EnsureNoteIndexes(ctx context.Context, client *kivik.Client, dbName string) error {
	db := client.DB(dbName)

	index := map[string]interface{}{
		"fields": []string{"doc_type", "created_at"},
	}
	if err := db.CreateIndex(ctx, "notes", "by-created-at", index); err != nil {
		return fmt.Errorf("failed to create note index: %w", err)
	}

	design := map[string]interface{}{
		"_id":      noteCountDesignDoc,
		"language": "javascript",
		"views":    noteCountViews,
	}
	rev, err := db.GetRev(ctx, noteCountDesignDoc)
	switch {
	case err == nil:
		design["_rev"] = rev
	case !notFound(err):
		return fmt.Errorf("failed to read note count view: %w", err)
	}
	if _, err := db.Put(ctx, noteCountDesignDoc, design); err != nil {
		return fmt.Errorf("failed to create note count view: %w", err)
	}
	return nil
}

func docID(id string) string {
	return fmt.Sprintf("note:%s", id)
}

func notFound(err error) bool {
	return kivik.HTTPStatus(err) == http.StatusNotFound
}

func (r *noteRepository) Create(ctx context.Context, note *domain.Note) error {
	db := r.client.DB(r.dbName)

	doc := &noteDocument{
		ID:        docID(note.ID),
		DocType:   noteDocType,
		NoteID:    note.ID,
		Title:     note.Title,
		Content:   note.Content,
		CreatedAt: note.CreatedAt,
		Timestamp: note.Timestamp,
	}
	if _, err := db.Put(ctx, doc.ID, doc); err != nil {
		return fmt.Errorf("failed to create note: %w", err)
	}

	return nil
}

func (r *noteRepository) FindByID(ctx context.Context, id string) (*domain.Note, error) {
	doc, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc.toNote(), nil
}

func (r *noteRepository) get(ctx context.Context, id string) (*noteDocument, error) {
	db := r.client.DB(r.dbName)

	var doc noteDocument
	if err := db.Get(ctx, docID(id)).ScanDoc(&doc); err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find note: %w", err)
	}
	if doc.DocType != noteDocType {
		return nil, ErrNotFound
	}

	return &doc, nil
}

func (r *noteRepository) List(ctx context.Context, limit, offset int) ([]*domain.Note, error) {
	db := r.client.DB(r.dbName)

	query := map[string]interface{}{
		"selector": map[string]interface{}{"doc_type": noteDocType},
		"sort": []map[string]string{
			{"doc_type": "asc"},
			{"created_at": "asc"},
		},
		"limit": limit,
		"skip":  offset,
	}

	rows := db.Find(ctx, query)
	defer rows.Close()

	notes := make([]*domain.Note, 0, limit)
	for rows.Next() {
		var doc noteDocument
		if err := rows.ScanDoc(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode note: %w", err)
		}
		notes = append(notes, doc.toNote())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}

	return notes, nil
}

func (r *noteRepository) Count(ctx context.Context) (int, error) {
	db := r.client.DB(r.dbName)

	rows := db.Query(ctx, noteCountDesignDoc, noteCountView, kivik.Param("reduce", true))
	defer rows.Close()

	count := 0
	if rows.Next() {
		if err := rows.ScanValue(&count); err != nil {
			return 0, fmt.Errorf("failed to count notes: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to count notes: %w", err)
	}

	return count, nil
}

func (r *noteRepository) Update(ctx context.Context, note *domain.Note) error {
	db := r.client.DB(r.dbName)

	existing, err := r.get(ctx, note.ID)
	if err != nil {
		return err
	}

	existing.Title = note.Title
	existing.Content = note.Content
	existing.Timestamp = note.Timestamp

	if _, err := db.Put(ctx, existing.ID, existing); err != nil {
		return fmt.Errorf("failed to update note: %w", err)
	}

	return nil
}

func (r *noteRepository) Delete(ctx context.Context, id string) error {
	db := r.client.DB(r.dbName)

	existing, err := r.get(ctx, id)
	if err != nil {
		return err
	}

	if _, err := db.Delete(ctx, existing.ID, existing.Rev); err != nil {
		if notFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete note: %w", err)
	}

	return nil
}
