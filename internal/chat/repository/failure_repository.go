package repository

import (
	"context"
	"encoding/json"

	"case_chat_service/internal/chat/domain"

	"gorm.io/gorm"
)

// FailureRepository failed bridge events awaiting retry
type FailureRepository interface {
	AutoMigrate() error
	Record(ctx context.Context, ev domain.CaseEvent, cause error) error
	ListPending(ctx context.Context, maxAttempts, limit int) ([]domain.CaseEventFailure, error)
	MarkResolved(ctx context.Context, id uint) error
	MarkFailed(ctx context.Context, id uint, cause error) error
}

type gormFailureRepository struct {
	db *gorm.DB
}

// NewGormFailureRepository create gorm backed FailureRepository
func NewGormFailureRepository(db *gorm.DB) FailureRepository {
	return &gormFailureRepository{db: db}
}

func (r *gormFailureRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&domain.CaseEventFailure{})
}

func (r *gormFailureRepository) Record(ctx context.Context, ev domain.CaseEvent, cause error) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(&domain.CaseEventFailure{
		EventID:   ev.EventID,
		CaseID:    ev.CaseID,
		Payload:   string(payload),
		Attempts:  1,
		LastError: cause.Error(),
	}).Error
}

func (r *gormFailureRepository) ListPending(ctx context.Context, maxAttempts, limit int) ([]domain.CaseEventFailure, error) {
	var rows []domain.CaseEventFailure
	err := r.db.WithContext(ctx).
		Where("resolved = ? AND attempts < ?", false, maxAttempts).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *gormFailureRepository) MarkResolved(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).
		Model(&domain.CaseEventFailure{}).
		Where("id = ?", id).
		Update("resolved", true).Error
}

func (r *gormFailureRepository) MarkFailed(ctx context.Context, id uint, cause error) error {
	return r.db.WithContext(ctx).
		Model(&domain.CaseEventFailure{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": cause.Error(),
		}).Error
}
