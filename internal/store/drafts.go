package store

import (
	"context"
	"errors"
	"time"

	"github.com/suPer8Hu/cookingpapa/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Draft returns the user's reservation draft, or nil when there is none or
// it was last touched more than maxAge ago.
func (s *Store) Draft(ctx context.Context, userID string, maxAge time.Duration) (*models.ReservationDraft, error) {
	var d models.ReservationDraft
	err := s.withRetry(ctx, "get_draft", func(db *gorm.DB) error {
		return db.First(&d, "user_id = ?", userID).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if maxAge > 0 && now().Sub(d.UpdatedAt) > maxAge {
		return nil, nil
	}
	return &d, nil
}

// SaveDraft replaces the user's draft.
func (s *Store) SaveDraft(ctx context.Context, d *models.ReservationDraft) error {
	d.UpdatedAt = now()
	return s.withRetry(ctx, "save_draft", func(db *gorm.DB) error {
		return db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"date", "time", "party_size", "special_requests", "updated_at"}),
		}).Create(d).Error
	})
}

func (s *Store) ClearDraft(ctx context.Context, userID string) error {
	return s.withRetry(ctx, "clear_draft", func(db *gorm.DB) error {
		return db.Where("user_id = ?", userID).Delete(&models.ReservationDraft{}).Error
	})
}
