// Package worker runs queued message jobs through the assistant.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/suPer8Hu/cookingpapa/internal/assistant"
	"github.com/suPer8Hu/cookingpapa/internal/models"
	"github.com/suPer8Hu/cookingpapa/internal/store"
	"go.uber.org/zap"
)

// JobStore is the part of the session store the worker uses.
type JobStore interface {
	GetJob(ctx context.Context, id string) (*models.MessageJob, error)
	MarkJobRunning(ctx context.Context, id string) (bool, error)
	MarkJobSucceeded(ctx context.Context, id, response, state string) error
	MarkJobFailed(ctx context.Context, id, errMsg string) error
}

type MessageHandler interface {
	HandleMessage(ctx context.Context, in assistant.Inbound) (assistant.Reply, error)
}

// PermanentError marks a failure that a redelivery cannot fix.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func permanent(err error) error { return &PermanentError{Err: err} }

// IsPermanent reports whether err should go straight to the dead-letter queue.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

type Processor struct {
	jobs      JobStore
	assistant MessageHandler
	log       *zap.Logger
}

func NewProcessor(jobs JobStore, h MessageHandler, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{jobs: jobs, assistant: h, log: log}
}

// Process handles one job id. A job that is no longer queued was picked up
// by an earlier delivery and is skipped. Once a job is running, every
// failure is permanent so the message is never answered twice.
func (p *Processor) Process(ctx context.Context, jobID string) error {
	start := time.Now()
	log := p.log.With(zap.String("job_id", jobID))

	j, err := p.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return permanent(err)
		}
		return fmt.Errorf("get job: %w", err)
	}

	started, err := p.jobs.MarkJobRunning(ctx, jobID)
	if err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	if !started {
		log.Info("job already taken, skipping", zap.String("status", string(j.Status)))
		return nil
	}

	reply, err := p.assistant.HandleMessage(ctx, assistant.Inbound{
		UserID:   j.UserID,
		UserName: j.UserName,
		Text:     j.Text,
	})
	if err != nil {
		if markErr := p.jobs.MarkJobFailed(ctx, jobID, err.Error()); markErr != nil {
			log.Error("mark job failed", zap.Error(markErr))
		}
		return permanent(err)
	}

	if err := p.jobs.MarkJobSucceeded(ctx, jobID, reply.Text, string(reply.State)); err != nil {
		return permanent(fmt.Errorf("mark succeeded: %w", err))
	}

	cost := time.Since(start)
	if cost > 2*time.Second {
		log.Info("job_timing", zap.Duration("total", cost), zap.String("category", reply.Category))
	}
	return nil
}
