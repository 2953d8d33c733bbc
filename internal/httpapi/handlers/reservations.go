package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/cookingpapa/internal/common"
	"github.com/suPer8Hu/cookingpapa/internal/models"
	"github.com/suPer8Hu/cookingpapa/internal/store"
	"go.uber.org/zap"
)

// ListReservations lists the active reservations of one day (staff).
func (h *Handler) ListReservations(c *gin.Context) {
	date := strings.TrimSpace(c.Query("date"))
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "date must be YYYY-MM-DD")
		return
	}

	list, err := h.Store.ReservationsOn(c.Request.Context(), date)
	if err != nil {
		h.logger(c).Error("list reservations failed", zap.String("date", date), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, gin.H{"date": date, "reservations": list})
}

type setStatusReq struct {
	Status models.ReservationStatus `json:"status" binding:"required"`
}

// SetReservationStatus confirms or cancels a reservation (staff).
func (h *Handler) SetReservationStatus(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10005, "invalid reservation id")
		return
	}
	var req setStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	ctx := c.Request.Context()
	if err := h.Store.SetReservationStatus(ctx, id, req.Status); err != nil {
		switch {
		case errors.Is(err, store.ErrInvalidStatus):
			common.Fail(c, http.StatusBadRequest, 10006, "invalid status")
		case errors.Is(err, store.ErrNotFound):
			common.Fail(c, http.StatusNotFound, 40403, "reservation not found")
		default:
			h.logger(c).Error("set reservation status failed", zap.Uint64("reservation_id", id), zap.Error(err))
			common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		}
		return
	}

	r, err := h.Store.GetReservation(ctx, id)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	h.logger(c).Info("staff updated reservation",
		zap.Uint64("reservation_id", id),
		zap.String("status", string(req.Status)),
		zap.String("staff_id", staffID(c)),
	)
	common.OK(c, r)
}

// UserReservations returns a user's reservations together with the same
// summary text the chat flow sends.
func (h *Handler) UserReservations(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("id"))
	ctx := c.Request.Context()

	list, err := h.Store.UserReservations(ctx, userID)
	if err != nil {
		h.logger(c).Error("user reservations failed", zap.String("user_id", userID), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	data := gin.H{"reservations": list}
	if h.Reservations != nil {
		summary, err := h.Reservations.StatusSummary(ctx, userID)
		if err != nil {
			h.logger(c).Warn("status summary failed", zap.String("user_id", userID), zap.Error(err))
		} else {
			data["summary"] = summary
		}
	}
	common.OK(c, data)
}
