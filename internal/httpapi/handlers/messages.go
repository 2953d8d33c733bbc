package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/cookingpapa/internal/assistant"
	"github.com/suPer8Hu/cookingpapa/internal/common"
	"github.com/suPer8Hu/cookingpapa/internal/models"
	"github.com/suPer8Hu/cookingpapa/internal/store"
	"go.uber.org/zap"
)

const maxMessageLen = 4000

type sendMessageReq struct {
	UserID   string `json:"user_id" binding:"required"`
	UserName string `json:"user_name"`
	Text     string `json:"text" binding:"required"`
}

func (r *sendMessageReq) normalize() bool {
	r.UserID = strings.TrimSpace(r.UserID)
	r.UserName = strings.TrimSpace(r.UserName)
	r.Text = strings.TrimSpace(r.Text)
	return r.UserID != "" && r.Text != "" && len(r.UserID) <= 64 && len(r.Text) <= maxMessageLen
}

// SendMessage answers a message synchronously.
func (h *Handler) SendMessage(c *gin.Context) {
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if !req.normalize() {
		common.Fail(c, http.StatusBadRequest, 10002, "user_id and text required")
		return
	}
	if !h.allow(req.UserID) {
		common.Abort(c, common.ErrRateLimited)
		return
	}

	reply, err := h.Assistant.HandleMessage(c.Request.Context(), assistant.Inbound{
		UserID:   req.UserID,
		UserName: req.UserName,
		Text:     req.Text,
	})
	if err != nil {
		if errors.Is(err, assistant.ErrEmptyMessage) {
			common.Fail(c, http.StatusBadRequest, 10002, "user_id and text required")
			return
		}
		h.logger(c).Error("handle message failed", zap.String("user_id", req.UserID), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.OK(c, reply)
}

// SendMessageAsync accepts a message for the worker and returns its job id.
// The Idempotency-Key header (the channel's message id) makes redeliveries
// return the original job.
func (h *Handler) SendMessageAsync(c *gin.Context) {
	if h.Jobs == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "async intake disabled")
		return
	}
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if !req.normalize() {
		common.Fail(c, http.StatusBadRequest, 10002, "user_id and text required")
		return
	}

	idempoKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(idempoKey) > 128 {
		common.Fail(c, http.StatusBadRequest, 10003, "idempotency key too long")
		return
	}
	var idempoKeyPtr *string
	if idempoKey != "" {
		idempoKeyPtr = &idempoKey
	}
	if !h.allow(req.UserID) {
		common.Abort(c, common.ErrRateLimited)
		return
	}

	log := h.logger(c).With(zap.String("user_id", req.UserID))
	ctx := c.Request.Context()

	jobID, err := common.NewULID()
	if err != nil {
		log.Error("new job id failed", zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	j, created, err := h.Store.CreateJobOrGetExisting(ctx, &models.MessageJob{
		ID:             jobID,
		UserID:         req.UserID,
		UserName:       req.UserName,
		Text:           req.Text,
		IdempotencyKey: idempoKeyPtr,
		Status:         models.JobQueued,
	})
	if err != nil {
		log.Error("create job failed", zap.String("job_id", jobID), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	// enqueue only when a new job was created
	if created {
		if err := h.Jobs.PublishJob(ctx, j.ID); err != nil {
			log.Error("publish job failed", zap.String("job_id", j.ID), zap.Error(err))
			_ = h.Store.MarkJobFailed(ctx, j.ID, "enqueue failed")
			common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
			return
		}
	}

	common.OK(c, gin.H{"job_id": j.ID, "created": created})
}

// GetMessageJob reports a job's progress to the user that submitted it.
func (h *Handler) GetMessageJob(c *gin.Context) {
	jobID := c.Param("job_id")
	userID := strings.TrimSpace(c.Query("user_id"))
	if jobID == "" || userID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "job_id and user_id required")
		return
	}

	j, err := h.Store.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "job not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	if j.UserID != userID {
		// hide existence
		common.Fail(c, http.StatusNotFound, 40402, "job not found")
		return
	}

	common.OK(c, gin.H{
		"job": gin.H{
			"id":         j.ID,
			"status":     j.Status,
			"state":      j.State,
			"response":   j.Response,
			"error":      j.Error,
			"created_at": j.CreatedAt,
			"updated_at": j.UpdatedAt,
		},
	})
}
