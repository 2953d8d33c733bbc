package store

import (
	"context"
	"errors"

	"github.com/suPer8Hu/cookingpapa/internal/models"
	"gorm.io/gorm"
)

func (s *Store) GetJob(ctx context.Context, id string) (*models.MessageJob, error) {
	var j models.MessageJob
	err := s.withRetry(ctx, "get_job", func(db *gorm.DB) error {
		return db.First(&j, "id = ?", id).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *Store) jobByKey(ctx context.Context, userID, key string) (*models.MessageJob, error) {
	var j models.MessageJob
	err := s.withRetry(ctx, "get_job_by_key", func(db *gorm.DB) error {
		return db.Where("user_id = ? AND idempotency_key = ?", userID, key).First(&j).Error
	})
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// CreateJobOrGetExisting creates job, unless (user_id, idempotency_key)
// already exists, in which case the existing job is returned with
// created=false.
func (s *Store) CreateJobOrGetExisting(ctx context.Context, job *models.MessageJob) (*models.MessageJob, bool, error) {
	if job.Status == "" {
		job.Status = models.JobQueued
	}
	if job.IdempotencyKey != nil && *job.IdempotencyKey == "" {
		job.IdempotencyKey = nil
	}

	err := s.withRetry(ctx, "create_job", func(db *gorm.DB) error {
		return db.Create(job).Error
	})
	if err == nil {
		return job, true, nil
	}
	if job.IdempotencyKey == nil {
		return nil, false, err
	}

	existing, getErr := s.jobByKey(ctx, job.UserID, *job.IdempotencyKey)
	if getErr == nil {
		return existing, false, nil
	}
	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	return nil, false, getErr
}

// MarkJobRunning moves a queued job to running. It reports false when the
// job was not queued, so redelivered messages are skipped.
func (s *Store) MarkJobRunning(ctx context.Context, id string) (bool, error) {
	var affected int64
	err := s.withRetry(ctx, "mark_job_running", func(db *gorm.DB) error {
		res := db.Model(&models.MessageJob{}).
			Where("id = ? AND status = ?", id, models.JobQueued).
			Update("status", models.JobRunning)
		affected = res.RowsAffected
		return res.Error
	})
	return affected == 1, err
}

func (s *Store) MarkJobSucceeded(ctx context.Context, id, response, state string) error {
	return s.withRetry(ctx, "mark_job_succeeded", func(db *gorm.DB) error {
		return db.Model(&models.MessageJob{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"status":   models.JobSucceeded,
				"response": response,
				"state":    state,
				"error":    nil,
			}).Error
	})
}

func (s *Store) MarkJobFailed(ctx context.Context, id, errMsg string) error {
	return s.withRetry(ctx, "mark_job_failed", func(db *gorm.DB) error {
		return db.Model(&models.MessageJob{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"status":   models.JobFailed,
				"error":    errMsg,
				"response": nil,
			}).Error
	})
}
