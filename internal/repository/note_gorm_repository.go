package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"collabnotes-server/internal/domain"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

type noteRecord struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Title     string    `gorm:"size:100;not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"index"`
	Timestamp time.Time
}

func (noteRecord) TableName() string {
	return "notes"
}

func (n *noteRecord) toNote() *domain.Note {
	return &domain.Note{
		ID:        n.ID,
		Title:     n.Title,
		Content:   n.Content,
		CreatedAt: n.CreatedAt,
		Timestamp: n.Timestamp,
	}
}

// OpenMySQL connects gorm to MySQL and migrates the notes table.
func OpenMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql: %w", err)
	}
	if err := db.AutoMigrate(&noteRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate notes table: %w", err)
	}
	return db, nil
}

type gormNoteRepository struct {
	db *gorm.DB
}

func NewGormNoteRepository(db *gorm.DB) NoteRepository {
	return &gormNoteRepository{db: db}
}

func (r *gormNoteRepository) Create(ctx context.Context, note *domain.Note) error {
	record := &noteRecord{
		ID:        note.ID,
		Title:     note.Title,
		Content:   note.Content,
		CreatedAt: note.CreatedAt,
		Timestamp: note.Timestamp,
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create note: %w", err)
	}
	return nil
}

func (r *gormNoteRepository) FindByID(ctx context.Context, id string) (*domain.Note, error) {
	var record noteRecord
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find note: %w", err)
	}
	return record.toNote(), nil
}

func (r *gormNoteRepository) List(ctx context.Context, limit, offset int) ([]*domain.Note, error) {
	var records []noteRecord
	err := r.db.WithContext(ctx).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}

	notes := make([]*domain.Note, 0, len(records))
	for i := range records {
		notes = append(notes, records[i].toNote())
	}
	return notes, nil
}

func (r *gormNoteRepository) Count(ctx context.Context) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&noteRecord{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count notes: %w", err)
	}
	return int(count), nil
}

func (r *gormNoteRepository) Update(ctx context.Context, note *domain.Note) error {
	result := r.db.WithContext(ctx).
		Model(&noteRecord{}).
		Where("id = ?", note.ID).
		Updates(map[string]interface{}{
			"title":     note.Title,
			"content":   note.Content,
			"timestamp": note.Timestamp,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update note: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// MySQL reports changed rows, not matched rows, so an identical save
	// affects nothing. Only a missing row is not found.
	var count int64
	if err := r.db.WithContext(ctx).Model(&noteRecord{}).Where("id = ?", note.ID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to update note: %w", err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormNoteRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&noteRecord{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete note: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
