package store

import (
	"context"
	"errors"
	"strings"

	"github.com/suPer8Hu/cookingpapa/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LogSupportRequest records a PENDING request for human follow-up.
func (s *Store) LogSupportRequest(ctx context.Context, userID, userName, requestType, message string) (uint64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, errors.New("store: user id required")
	}
	var id uint64
	err := s.withRetry(ctx, "log_support_request", func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			if err := touchUser(tx, userID, userName, 0); err != nil {
				return err
			}
			req := &models.SupportRequest{
				UserID:   userID,
				UserName: userName,
				Type:     requestType,
				Message:  message,
				Status:   models.SupportPending,
			}
			if err := tx.Create(req).Error; err != nil {
				return err
			}
			id = req.ID
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("support request logged", zap.Uint64("request_id", id), zap.String("user_id", userID), zap.String("type", requestType))
	return id, nil
}

// ListSupportRequests returns requests oldest first. An empty status lists all.
func (s *Store) ListSupportRequests(ctx context.Context, status models.SupportStatus, limit int) ([]models.SupportRequest, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []models.SupportRequest
	err := s.withRetry(ctx, "list_support_requests", func(db *gorm.DB) error {
		out = out[:0]
		q := db.Order("created_at ASC").Order("id ASC").Limit(limit)
		if status != "" {
			q = q.Where("status = ?", status)
		}
		return q.Find(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ResolveSupportRequest closes a PENDING request.
func (s *Store) ResolveSupportRequest(ctx context.Context, id uint64, resolvedBy, notes string) (*models.SupportRequest, error) {
	var req models.SupportRequest
	err := s.withRetry(ctx, "resolve_support_request", func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			if err := tx.First(&req, "id = ?", id).Error; err != nil {
				return err
			}
			if req.Status == models.SupportResolved {
				return ErrAlreadyResolved
			}
			ts := now()
			res := tx.Model(&models.SupportRequest{}).
				Where("id = ? AND status = ?", id, models.SupportPending).
				Updates(map[string]any{
					"status":      models.SupportResolved,
					"resolved_at": ts,
					"resolved_by": resolvedBy,
					"notes":       notes,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrAlreadyResolved
			}
			req.Status = models.SupportResolved
			req.ResolvedAt = &ts
			req.ResolvedBy = resolvedBy
			req.Notes = notes
			return nil
		})
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.log.Info("support request resolved", zap.Uint64("request_id", id), zap.String("resolved_by", resolvedBy))
	return &req, nil
}
