package reservation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/suPer8Hu/cookingpapa/internal/common"
	"github.com/suPer8Hu/cookingpapa/internal/models"
	"github.com/suPer8Hu/cookingpapa/internal/store"
	"go.uber.org/zap"
)

type State string

const (
	StateCollecting State = "COLLECTING"
	StateValidating State = "VALIDATING"
	StateRejected   State = "REJECTED"
	StateConfirmed  State = "CONFIRMED"
	StateError      State = "ERROR"
)

// Session is the part of the session store the orchestrator drives.
type Session interface {
	Booker
	RecentTurns(ctx context.Context, userID string, window time.Duration, limit int) ([]store.HistoryEntry, error)
	UserReservations(ctx context.Context, userID string) ([]models.Reservation, error)
}

// DraftStore holds at most one reservation draft per user.
type DraftStore interface {
	Draft(ctx context.Context, userID string, maxAge time.Duration) (*models.ReservationDraft, error)
	SaveDraft(ctx context.Context, d *models.ReservationDraft) error
	ClearDraft(ctx context.Context, userID string) error
}

type Options struct {
	HistoryWindow     time.Duration
	HistoryLimit      int
	ExtractionTimeout time.Duration
}

type Request struct {
	UserID   string
	UserName string
	Message  string
}

type Result struct {
	State        State
	Reason       Reason
	Response     string
	Reservation  *models.Reservation
	Extraction   *Extraction
	EscalationID uint64
}

type Orchestrator struct {
	session   Session
	drafts    DraftStore
	extractor Extractor
	validator *Validator
	escalator *Escalator
	opts      Options
	users     *common.KeyedMutex
	log       *zap.Logger
}

func NewOrchestrator(session Session, drafts DraftStore, extractor Extractor, validator *Validator, escalator *Escalator, opts Options, log *zap.Logger) *Orchestrator {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = time.Hour
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 20
	}
	if opts.ExtractionTimeout <= 0 {
		opts.ExtractionTimeout = 20 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		session:   session,
		drafts:    drafts,
		extractor: extractor,
		validator: validator,
		escalator: escalator,
		opts:      opts,
		users:     common.NewKeyedMutex(),
		log:       log,
	}
}

// Handle runs one reservation message to a terminal state. Messages from the
// same user are handled one at a time. The response is always user-facing
// text; failures are logged and answered with an apology.
func (o *Orchestrator) Handle(ctx context.Context, req Request) Result {
	unlock := o.users.Lock(req.UserID)
	defer unlock()

	log := o.log.With(zap.String("user_id", req.UserID))

	history, err := o.session.RecentTurns(ctx, req.UserID, o.opts.HistoryWindow, o.opts.HistoryLimit)
	if err != nil {
		log.Error("load history failed", zap.Error(err))
		return errorResult(nil)
	}

	draft, err := o.drafts.Draft(ctx, req.UserID, o.opts.HistoryWindow)
	if err != nil {
		log.Warn("load draft failed, continuing without it", zap.Error(err))
		draft = nil
	}

	var ext *Extraction
	if isNegation(req.Message) && askedSpecialRequests(history) {
		ext = negationExtraction(draft, history)
		if ext != nil {
			log.Info("special requests declined, using stored draft")
		}
	}
	if ext == nil {
		var failed bool
		ext, failed = o.extract(ctx, req, history)
		if failed {
			res := Result{State: StateCollecting, Response: ext.FollowUpQuestion, Extraction: ext}
			id, err := o.escalator.Escalate(ctx, Escalation{
				UserID:   req.UserID,
				UserName: req.UserName,
				Type:     models.SupportExtraction,
				Message:  "訂位信息提取失敗 - 訊息：" + req.Message,
			})
			if err != nil {
				log.Error("escalate extraction failure", zap.Error(err))
			}
			res.EscalationID = id
			return res
		}
	}

	info := mergeDraft(draft, ext.ExtractedInfo)

	if !ext.HasCompleteInfo {
		o.saveDraft(ctx, log, req.UserID, draft, ext.ExtractedInfo)
		q := strings.TrimSpace(ext.FollowUpQuestion)
		if q == "" {
			q = followUpFor(info.missing())
		}
		return Result{State: StateCollecting, Response: q, Extraction: ext}
	}

	if missing := info.missing(); len(missing) > 0 {
		log.Error("extraction reported complete info with missing fields", zap.Strings("missing", missing))
		return errorResult(ext)
	}

	return o.validateAndBook(ctx, log, req, ext, info)
}

func (o *Orchestrator) validateAndBook(ctx context.Context, log *zap.Logger, req Request, ext *Extraction, info ExtractedInfo) Result {
	log = log.With(zap.String("date", info.Date), zap.String("time", info.Time), zap.Int("party_size", info.PartySize))

	decision, err := o.validator.Validate(ctx, info.Date, info.Time, info.PartySize)
	if err != nil {
		log.Error("validate failed", zap.Error(err))
		return errorResult(ext)
	}
	if !decision.Accepted {
		return o.reject(ctx, log, req, ext, info, decision)
	}

	clock, _ := models.NormalizeClock(info.Time)
	r := &models.Reservation{
		UserID:          req.UserID,
		UserName:        req.UserName,
		Date:            strings.TrimSpace(info.Date),
		Time:            clock,
		PartySize:       info.PartySize,
		SpecialRequests: cleanSpecial(info.SpecialRequests),
	}
	err = o.session.BookReservation(ctx, r, capacityOf(o.validator.Rules()))
	switch {
	case errors.Is(err, store.ErrSlotFull):
		return o.reject(ctx, log, req, ext, info, reject(ReasonSlotFull, msgSlotFull, true))
	case errors.Is(err, store.ErrInvalidSlot):
		return o.reject(ctx, log, req, ext, info, reject(ReasonInvalid, msgInvalidSlot, false))
	case err != nil:
		log.Error("book reservation failed", zap.Error(err))
		return errorResult(ext)
	}

	o.clearDraft(ctx, log, req.UserID)
	return Result{
		State:       StateConfirmed,
		Response:    confirmationMessage(r),
		Reservation: r,
		Extraction:  ext,
	}
}

func (o *Orchestrator) reject(ctx context.Context, log *zap.Logger, req Request, ext *Extraction, info ExtractedInfo, d Decision) Result {
	log.Info("reservation rejected", zap.String("reason", string(d.Reason)), zap.Bool("escalate", d.Escalate))
	res := Result{State: StateRejected, Reason: d.Reason, Response: d.Message, Extraction: ext}
	if d.Escalate {
		id, err := o.escalator.Escalate(ctx, Escalation{
			UserID:   req.UserID,
			UserName: req.UserName,
			Type:     supportTypeFor(d.Reason),
			Message:  slotEscalationText(info.Date, info.Time, info.PartySize),
		})
		if err != nil {
			log.Error("escalation failed", zap.Error(err))
		}
		res.EscalationID = id
	}
	o.clearDraft(ctx, log, req.UserID)
	return res
}

// extract calls the extractor under the extraction deadline. failed is true
// when the fallback extraction was substituted.
func (o *Orchestrator) extract(ctx context.Context, req Request, history []store.HistoryEntry) (ext *Extraction, failed bool) {
	cctx, cancel := context.WithTimeout(ctx, o.opts.ExtractionTimeout)
	defer cancel()

	ext, err := o.extractor.Extract(cctx, req.Message, history)
	if err != nil || ext == nil {
		o.log.Warn("extraction failed", zap.String("user_id", req.UserID), zap.Error(err))
		return fallbackExtraction(), true
	}
	return ext, false
}

// StatusSummary lists the user's reservations as a reply.
func (o *Orchestrator) StatusSummary(ctx context.Context, userID string) (string, error) {
	list, err := o.session.UserReservations(ctx, userID)
	if err != nil {
		return "", err
	}
	return statusSummary(list), nil
}

// negationExtraction completes a booking from the draft, or from the last
// summary in history, once the user declines special requests. It returns
// nil when date, time and party size cannot all be recovered.
func negationExtraction(draft *models.ReservationDraft, history []store.HistoryEntry) *Extraction {
	info := ExtractedInfo{}
	if draft != nil {
		info = ExtractedInfo{Date: draft.Date, Time: draft.Time, PartySize: draft.PartySize}
	}
	if !draft.Complete() {
		fromText := summaryFields(history)
		if info.Date == "" {
			info.Date = fromText.Date
		}
		if info.Time == "" {
			info.Time = fromText.Time
		}
		if info.PartySize <= 0 {
			info.PartySize = fromText.PartySize
		}
	}
	if len(info.missing()) > 0 {
		return nil
	}
	info.SpecialRequests = nil
	return &Extraction{
		HasCompleteInfo: true,
		ExtractedInfo:   info,
		MissingInfo:     []string{},
		PreviousInfo: PreviousInfo{
			Found: true,
			Items: []string{FieldDate, FieldTime, FieldPartySize},
		},
	}
}

// mergeDraft fills fields the extraction left empty from the draft.
func mergeDraft(d *models.ReservationDraft, e ExtractedInfo) ExtractedInfo {
	if d == nil || conflictsWith(d, e) {
		return e
	}
	if strings.TrimSpace(e.Date) == "" {
		e.Date = d.Date
	}
	if strings.TrimSpace(e.Time) == "" {
		e.Time = d.Time
	}
	if e.PartySize <= 0 {
		e.PartySize = d.PartySize
	}
	if e.SpecialRequests == nil {
		e.SpecialRequests = d.SpecialRequests
	}
	return e
}

// conflictsWith reports whether the extraction names a different date, time
// or party size than the draft holds.
func conflictsWith(d *models.ReservationDraft, e ExtractedInfo) bool {
	if e.Date != "" && d.Date != "" && strings.TrimSpace(e.Date) != d.Date {
		return true
	}
	if e.Time != "" && d.Time != "" {
		a, errA := models.NormalizeClock(e.Time)
		if errA != nil || a != d.Time {
			return true
		}
	}
	return e.PartySize > 0 && d.PartySize > 0 && e.PartySize != d.PartySize
}

func (o *Orchestrator) saveDraft(ctx context.Context, log *zap.Logger, userID string, prev *models.ReservationDraft, e ExtractedInfo) {
	merged := mergeDraft(prev, e)
	d := &models.ReservationDraft{
		UserID:          userID,
		Date:            strings.TrimSpace(merged.Date),
		PartySize:       merged.PartySize,
		SpecialRequests: cleanSpecial(merged.SpecialRequests),
	}
	if merged.Time != "" {
		if c, err := models.NormalizeClock(merged.Time); err == nil {
			d.Time = c
		}
	}
	if d.Date == "" && d.Time == "" && d.PartySize <= 0 && d.SpecialRequests == nil {
		return
	}
	if err := o.drafts.SaveDraft(ctx, d); err != nil {
		log.Warn("save draft failed", zap.Error(err))
	}
}

func (o *Orchestrator) clearDraft(ctx context.Context, log *zap.Logger, userID string) {
	if err := o.drafts.ClearDraft(ctx, userID); err != nil {
		log.Warn("clear draft failed", zap.Error(err))
	}
}

func cleanSpecial(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" || isNegation(v) {
		return nil
	}
	return &v
}

func errorResult(ext *Extraction) Result {
	return Result{State: StateError, Response: msgGenericError, Extraction: ext}
}
