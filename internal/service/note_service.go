package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"collabnotes-server/internal/domain"
	"collabnotes-server/internal/events"
	"collabnotes-server/internal/repository"

	"github.com/google/uuid"
)

// NoteService is the CRUD side of the application. It never talks to the
// realtime relay: live edits are advisory and only saves reach the store.
type NoteService struct {
	repo      repository.NoteRepository
	publisher events.Publisher
	now       func() time.Time
}

func NewNoteService(repo repository.NoteRepository, publisher events.Publisher) *NoteService {
	if publisher == nil {
		publisher = events.NewNopPublisher()
	}
	return &NoteService{
		repo:      repo,
		publisher: publisher,
		now:       time.Now,
	}
}

func (s *NoteService) Create(ctx context.Context, req *domain.CreateNoteRequest) (*domain.Note, error) {
	now := s.now().UTC()

	note := &domain.Note{
		ID:        uuid.New().String(),
		Title:     req.Title,
		Content:   req.Content,
		CreatedAt: now,
		Timestamp: now,
	}

	if err := s.repo.Create(ctx, note); err != nil {
		return nil, err
	}

	s.publish(ctx, events.NoteCreated, note)
	return note, nil
}

func (s *NoteService) List(ctx context.Context, query domain.ListNotesQuery) (*domain.NoteListResponse, error) {
	notes, err := s.repo.List(ctx, query.Limit, query.Offset)
	if err != nil {
		return nil, err
	}

	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, err
	}

	if notes == nil {
		notes = []*domain.Note{}
	}
	return &domain.NoteListResponse{Notes: notes, TotalCount: total}, nil
}

func (s *NoteService) GetByID(ctx context.Context, noteID string) (*domain.Note, error) {
	note, err := s.repo.FindByID(ctx, noteID)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return note, nil
}

func (s *NoteService) Update(ctx context.Context, noteID string, req *domain.UpdateNoteRequest) (*domain.Note, error) {
	note, err := s.repo.FindByID(ctx, noteID)
	if err != nil {
		return nil, mapNotFound(err)
	}

	note.Title = req.Title
	note.Content = req.Content
	note.Timestamp = s.now().UTC()

	if err := s.repo.Update(ctx, note); err != nil {
		return nil, mapNotFound(err)
	}

	s.publish(ctx, events.NoteUpdated, note)
	return note, nil
}

func (s *NoteService) Delete(ctx context.Context, noteID string) error {
	if err := s.repo.Delete(ctx, noteID); err != nil {
		return mapNotFound(err)
	}

	s.publish(ctx, events.NoteDeleted, &domain.Note{ID: noteID})
	return nil
}

func (s *NoteService) publish(ctx context.Context, typ events.NoteEventType, note *domain.Note) {
	evt := events.NoteEvent{
		Type:       typ,
		NoteID:     note.ID,
		Title:      note.Title,
		OccurredAt: s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		slog.Warn("note event not published", "type", typ, "noteId", note.ID, "error", err)
	}
}

func mapNotFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNoteNotFound
	}
	return err
}
