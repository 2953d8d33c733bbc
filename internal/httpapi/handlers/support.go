package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/cookingpapa/internal/common"
	"github.com/suPer8Hu/cookingpapa/internal/httpapi/middleware"
	"github.com/suPer8Hu/cookingpapa/internal/models"
	"github.com/suPer8Hu/cookingpapa/internal/store"
	"go.uber.org/zap"
)

func staffID(c *gin.Context) string {
	return middleware.StaffFrom(c)
}

// ListSupportRequests lists escalations, PENDING by default (staff).
func (h *Handler) ListSupportRequests(c *gin.Context) {
	status := models.SupportStatus(strings.ToUpper(c.DefaultQuery("status", string(models.SupportPending))))
	switch status {
	case models.SupportPending, models.SupportResolved:
	case "ALL":
		status = ""
	default:
		common.Fail(c, http.StatusBadRequest, 10006, "invalid status")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	list, err := h.Store.ListSupportRequests(c.Request.Context(), status, limit)
	if err != nil {
		h.logger(c).Error("list support requests failed", zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, gin.H{"support_requests": list})
}

type resolveReq struct {
	Notes string `json:"notes"`
}

// ResolveSupportRequest closes a PENDING escalation in the caller's name.
func (h *Handler) ResolveSupportRequest(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10005, "invalid support request id")
		return
	}
	var req resolveReq
	_ = c.ShouldBindJSON(&req) // allow empty body

	resolved, err := h.Store.ResolveSupportRequest(c.Request.Context(), id, staffID(c), strings.TrimSpace(req.Notes))
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			common.Fail(c, http.StatusNotFound, 40404, "support request not found")
		case errors.Is(err, store.ErrAlreadyResolved):
			common.Fail(c, http.StatusConflict, 40901, "support request already resolved")
		default:
			h.logger(c).Error("resolve support request failed", zap.Uint64("request_id", id), zap.Error(err))
			common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		}
		return
	}
	common.OK(c, resolved)
}

// UserHistory lists a user's newest logged turns (staff).
func (h *Handler) UserHistory(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("id"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	ctx := c.Request.Context()

	u, err := h.Store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "user not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	turns, err := h.Store.UserHistory(ctx, userID, limit)
	if err != nil {
		h.logger(c).Error("user history failed", zap.String("user_id", userID), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, gin.H{"user": u, "turns": turns})
}
