// Package assistant routes inbound chat messages: reservation messages go to
// the reservation flow, everything else to the answerer. Every handled
// message is logged as a turn.
package assistant

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/suPer8Hu/cookingpapa/internal/ai"
	"github.com/suPer8Hu/cookingpapa/internal/common"
	"github.com/suPer8Hu/cookingpapa/internal/models"
	"github.com/suPer8Hu/cookingpapa/internal/reservation"
	"github.com/suPer8Hu/cookingpapa/internal/store"
	"go.uber.org/zap"
)

var ErrEmptyMessage = errors.New("assistant: user id and text are required")

const msgAnswerFailed = "唔好意思，我暫時未能回答你嘅問題，請稍後再試，或直接致電餐廳查詢。"

type Classifier interface {
	Classify(ctx context.Context, text string) (ai.Classification, error)
}

type Reservations interface {
	Handle(ctx context.Context, req reservation.Request) reservation.Result
	StatusSummary(ctx context.Context, userID string) (string, error)
}

// TurnLog is the part of the session store the router uses.
type TurnLog interface {
	RecentTurns(ctx context.Context, userID string, window time.Duration, limit int) ([]store.HistoryEntry, error)
	AppendTurn(ctx context.Context, in store.TurnInput) (uint64, error)
}

type Inbound struct {
	UserID   string
	UserName string
	Text     string
}

type Reply struct {
	Text          string            `json:"text"`
	Category      string            `json:"category"`
	State         reservation.State `json:"state,omitempty"`
	ReservationID uint64            `json:"reservation_id,omitempty"`
	TurnID        uint64            `json:"turn_id,omitempty"`
}

type Options struct {
	HistoryWindow time.Duration
	HistoryLimit  int
	// FollowUpConfidence is the classifier confidence below which a message
	// that follows a reservation turn stays in the reservation flow.
	FollowUpConfidence float64
}

type Service struct {
	classifier   Classifier
	reservations Reservations
	answerer     Answerer
	turns        TurnLog
	opts         Options
	log          *zap.Logger
	users        *common.KeyedMutex
}

func NewService(classifier Classifier, reservations Reservations, answerer Answerer, turns TurnLog, opts Options, log *zap.Logger) *Service {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = time.Hour
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 20
	}
	if opts.FollowUpConfidence <= 0 {
		opts.FollowUpConfidence = 0.6
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		classifier:   classifier,
		reservations: reservations,
		answerer:     answerer,
		turns:        turns,
		opts:         opts,
		log:          log,
		users:        common.NewKeyedMutex(),
	}
}

// HandleMessage answers one inbound message. It fails only on invalid input;
// downstream failures become apologetic replies. A failed turn write is
// logged and the reply is still returned. Messages from the same user are
// handled one at a time, from history load through the turn write.
func (s *Service) HandleMessage(ctx context.Context, in Inbound) (Reply, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.Text = strings.TrimSpace(in.Text)
	if in.UserID == "" || in.Text == "" {
		return Reply{}, ErrEmptyMessage
	}
	unlock := s.users.Lock(in.UserID)
	defer unlock()

	log := s.log.With(zap.String("user_id", in.UserID))

	history, err := s.turns.RecentTurns(ctx, in.UserID, s.opts.HistoryWindow, s.opts.HistoryLimit)
	if err != nil {
		log.Warn("load history failed", zap.Error(err))
		history = nil
	}

	cls, err := s.classifier.Classify(ctx, in.Text)
	if err != nil {
		log.Warn("classification failed", zap.Error(err))
		cls = ai.FallbackClassification()
	}
	category := cls.Category
	if category != models.CategoryReservation && s.continuesReservation(history, cls) {
		log.Debug("keeping message in reservation flow", zap.String("classified", category), zap.Float64("confidence", cls.Confidence))
		category = models.CategoryReservation
	}

	reply := Reply{Category: category}
	meta := map[string]any{"classification": cls}
	var turnCtx string

	switch {
	case category == models.CategoryReservation && isStatusQuery(in.Text):
		text, err := s.reservations.StatusSummary(ctx, in.UserID)
		if err != nil {
			log.Error("status summary failed", zap.Error(err))
			text = msgAnswerFailed
		}
		reply.Text = text
		turnCtx = "reservation_status"

	case category == models.CategoryReservation:
		res := s.reservations.Handle(ctx, reservation.Request{UserID: in.UserID, UserName: in.UserName, Message: in.Text})
		reply.Text = res.Response
		reply.State = res.State
		turnCtx = "state=" + string(res.State)
		if res.Extraction != nil {
			meta["extraction"] = res.Extraction
		}
		if res.Reservation != nil {
			reply.ReservationID = res.Reservation.ID
			meta["reservation_id"] = res.Reservation.ID
		}
		if res.Reason != reservation.ReasonNone {
			meta["reject_reason"] = res.Reason
		}
		if res.EscalationID != 0 {
			meta["support_request_id"] = res.EscalationID
		}

	default:
		text, err := s.answerer.Answer(ctx, category, in.Text, history)
		if err != nil {
			log.Warn("answer failed", zap.String("category", category), zap.Error(err))
			text = msgAnswerFailed
		}
		reply.Text = text
		turnCtx = "answer"
	}

	id, err := s.turns.AppendTurn(ctx, store.TurnInput{
		UserID:   in.UserID,
		UserName: in.UserName,
		Message:  in.Text,
		Response: reply.Text,
		Category: category,
		Context:  turnCtx,
		Metadata: meta,
	})
	if err != nil {
		log.Error("append turn failed", zap.Error(err))
	} else {
		reply.TurnID = id
	}

	log.Info("message handled",
		zap.String("category", category),
		zap.String("state", string(reply.State)),
		zap.Uint64("turn_id", reply.TurnID),
	)
	return reply, nil
}

// continuesReservation reports whether a weakly classified message is an
// answer inside an open reservation dialogue.
func (s *Service) continuesReservation(history []store.HistoryEntry, cls ai.Classification) bool {
	if cls.Category != models.CategoryOthers && cls.Confidence >= s.opts.FollowUpConfidence {
		return false
	}
	for i := len(history) - 1; i >= 0; i-- {
		if !history[i].IsUser {
			return history[i].Category == models.CategoryReservation
		}
	}
	return false
}

var statusKeywords = []string{"查詢訂位", "查询订位", "我的訂位", "訂位記錄", "訂位狀態", "my reservation", "booking status"}

func isStatusQuery(text string) bool {
	lc := strings.ToLower(text)
	for _, k := range statusKeywords {
		if strings.Contains(lc, k) {
			return true
		}
	}
	return false
}
