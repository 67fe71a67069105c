package repository

import (
	"context"

	domain "course-checkout/internal/domain/registration"
	interfaces "course-checkout/internal/interfaces/infrastructure"

	"gorm.io/gorm"
)

type ReconciliationRepository struct {
	db *gorm.DB
}

func NewReconciliationRepository(db *gorm.DB) interfaces.ReconciliationRepository {
	return &ReconciliationRepository{
		db: db,
	}
}

func (r *ReconciliationRepository) Create(ctx context.Context, failure *domain.ReconciliationFailure) error {
	return r.db.WithContext(ctx).Create(failure).Error
}

// List returns failures newest first
func (r *ReconciliationRepository) List(ctx context.Context, limit, offset int) ([]*domain.ReconciliationFailure, error) {
	var failures []*domain.ReconciliationFailure
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&failures).Error
	if err != nil {
		return nil, err
	}
	return failures, nil
}
