package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/cookingpapa/internal/assistant"
	"github.com/suPer8Hu/cookingpapa/internal/common"
	"github.com/suPer8Hu/cookingpapa/internal/httpapi/middleware"
	"github.com/suPer8Hu/cookingpapa/internal/store"
	"go.uber.org/zap"
)

// MessageHandler answers one inbound chat message.
type MessageHandler interface {
	HandleMessage(ctx context.Context, in assistant.Inbound) (assistant.Reply, error)
}

type StatusSummarizer interface {
	StatusSummary(ctx context.Context, userID string) (string, error)
}

// JobPublisher enqueues an accepted message job for the worker.
type JobPublisher interface {
	PublishJob(ctx context.Context, jobID string) error
}

type Handler struct {
	Store        *store.Store
	Assistant    MessageHandler
	Reservations StatusSummarizer
	// Jobs is nil when async intake is disabled.
	Jobs JobPublisher
	// Limiter throttles inbound messages per user.
	Limiter *middleware.RateLimiter
	Log     *zap.Logger
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

func (h *Handler) logger(c *gin.Context) *zap.Logger {
	log := h.Log
	if log == nil {
		log = zap.NewNop()
	}
	return log.With(zap.String("request_id", middleware.RequestIDFrom(c)))
}

// allow reports whether userID still has message budget.
func (h *Handler) allow(userID string) bool {
	return h.Limiter == nil || h.Limiter.Allow("user:"+userID)
}
