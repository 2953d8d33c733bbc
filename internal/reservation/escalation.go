package reservation

import (
	"context"
	"fmt"
	"time"

	"github.com/suPer8Hu/cookingpapa/internal/models"
	"github.com/suPer8Hu/cookingpapa/internal/store/rabbitmq"
	"go.uber.org/zap"
)

type SupportLogger interface {
	LogSupportRequest(ctx context.Context, userID, userName, requestType, message string) (uint64, error)
}

// Notifier announces new support requests. Optional.
type Notifier interface {
	PublishEscalation(ctx context.Context, msg rabbitmq.EscalationMessage) error
}

// Escalation is one case handed to staff.
type Escalation struct {
	UserID   string
	UserName string
	Type     string
	Message  string
}

// Escalator records escalations in the support queue and, when a notifier
// is set, announces them. A failed announcement does not fail the escalation.
type Escalator struct {
	store  SupportLogger
	notify Notifier
	log    *zap.Logger
}

func NewEscalator(s SupportLogger, n Notifier, log *zap.Logger) *Escalator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Escalator{store: s, notify: n, log: log}
}

func (e *Escalator) Escalate(ctx context.Context, esc Escalation) (uint64, error) {
	id, err := e.store.LogSupportRequest(ctx, esc.UserID, esc.UserName, esc.Type, esc.Message)
	if err != nil {
		return 0, fmt.Errorf("log support request: %w", err)
	}
	e.log.Info("escalated to staff",
		zap.Uint64("request_id", id),
		zap.String("user_id", esc.UserID),
		zap.String("type", esc.Type),
	)
	if e.notify != nil {
		msg := rabbitmq.EscalationMessage{
			RequestID: id,
			UserID:    esc.UserID,
			UserName:  esc.UserName,
			Type:      esc.Type,
			Message:   esc.Message,
			CreatedAt: time.Now().UTC(),
		}
		if err := e.notify.PublishEscalation(ctx, msg); err != nil {
			e.log.Warn("escalation notify failed", zap.Uint64("request_id", id), zap.Error(err))
		}
	}
	return id, nil
}

func supportTypeFor(reason Reason) string {
	switch reason {
	case ReasonPartyTooLarge:
		return models.SupportPartySize
	case ReasonSlotFull:
		return models.SupportCapacity
	}
	return ""
}

func slotEscalationText(date, clock string, party int) string {
	return fmt.Sprintf("特殊訂位請求 - 日期：%s, 時間：%s, 人數：%d", date, clock, party)
}
