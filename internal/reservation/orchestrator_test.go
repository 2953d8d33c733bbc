package reservation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/suPer8Hu/cookingpapa/internal/db"
	"github.com/suPer8Hu/cookingpapa/internal/models"
	"github.com/suPer8Hu/cookingpapa/internal/store"
	"github.com/suPer8Hu/cookingpapa/internal/store/rabbitmq"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type scriptedExtractor struct {
	mu    sync.Mutex
	fn    func(message string, history []store.HistoryEntry) (*Extraction, error)
	calls int
}

func (e *scriptedExtractor) Extract(ctx context.Context, message string, history []store.HistoryEntry) (*Extraction, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	return e.fn(message, history)
}

func complete(date, clock string, party int) func(string, []store.HistoryEntry) (*Extraction, error) {
	return func(string, []store.HistoryEntry) (*Extraction, error) {
		return &Extraction{
			HasCompleteInfo: true,
			ExtractedInfo:   ExtractedInfo{Date: date, Time: clock, PartySize: party},
		}, nil
	}
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []rabbitmq.EscalationMessage
}

func (n *recordingNotifier) PublishEscalation(ctx context.Context, msg rabbitmq.EscalationMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return nil
}

type harness struct {
	o      *Orchestrator
	st     *store.Store
	gdb    *gorm.DB
	ext    *scriptedExtractor
	notify *recordingNotifier
}

func newHarness(t *testing.T, fn func(string, []store.HistoryEntry) (*Extraction, error)) *harness {
	t.Helper()
	gdb, err := db.Open("sqlite", filepath.Join(t.TempDir(), "orch.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := store.Migrate(context.Background(), gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st := store.New(gdb, store.Options{RetryAttempts: 3, RetryBackoff: time.Millisecond}, zap.NewNop())
	t.Cleanup(func() { _ = st.Close() })

	rules := DefaultRules()
	ext := &scriptedExtractor{fn: fn}
	notify := &recordingNotifier{}
	o := NewOrchestrator(
		st,
		st,
		ext,
		NewValidator(rules, NewConflictCounter(st, rules.Tolerance)),
		NewEscalator(st, notify, zap.NewNop()),
		Options{HistoryWindow: time.Hour, HistoryLimit: 20, ExtractionTimeout: time.Second},
		zap.NewNop(),
	)
	return &harness{o: o, st: st, gdb: gdb, ext: ext, notify: notify}
}

func (h *harness) count(t *testing.T, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	q := h.gdb.Model(model)
	if where != "" {
		q = q.Where(where, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestHandle_BooksCompleteRequest(t *testing.T) {
	h := newHarness(t, complete("2025-06-01", "12:00", 4))
	ctx := context.Background()

	res := h.o.Handle(ctx, Request{UserID: "u1", UserName: "Amy", Message: "訂 2025-06-01 12:00 4人"})
	if res.State != StateConfirmed {
		t.Fatalf("expected CONFIRMED, got %s (%q)", res.State, res.Response)
	}
	for _, want := range []string{"2025-06-01", "12:00", "4人", "特別要求：無"} {
		if !strings.Contains(res.Response, want) {
			t.Fatalf("response %q missing %q", res.Response, want)
		}
	}

	var rows []models.Reservation
	if err := h.gdb.Find(&rows).Error; err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 reservation, got %d", len(rows))
	}
	if rows[0].Status != models.ReservationPending || rows[0].PartySize != 4 || rows[0].UserID != "u1" {
		t.Fatalf("unexpected row %+v", rows[0])
	}
	if n := h.count(t, &models.SupportRequest{}, ""); n != 0 {
		t.Fatalf("expected no support requests, got %d", n)
	}
}

func TestHandle_OversizedPartyEscalatesOnce(t *testing.T) {
	h := newHarness(t, complete("2025-06-01", "19:00", 12))

	res := h.o.Handle(context.Background(), Request{UserID: "u2", UserName: "Bo", Message: "我想訂12位"})
	if res.State != StateRejected || res.Reason != ReasonPartyTooLarge {
		t.Fatalf("expected party-size rejection, got %s/%s", res.State, res.Reason)
	}
	if !strings.Contains(res.Response, "12人") {
		t.Fatalf("unexpected response %q", res.Response)
	}
	if n := h.count(t, &models.SupportRequest{}, "request_type = ?", models.SupportPartySize); n != 1 {
		t.Fatalf("expected exactly 1 party-size support request, got %d", n)
	}
	if n := h.count(t, &models.SupportRequest{}, ""); n != 1 {
		t.Fatalf("expected exactly 1 support request overall, got %d", n)
	}
	if n := h.count(t, &models.Reservation{}, ""); n != 0 {
		t.Fatalf("rejected request must not be stored, got %d", n)
	}
	if len(h.notify.msgs) != 1 || h.notify.msgs[0].Type != models.SupportPartySize {
		t.Fatalf("expected one escalation notice, got %+v", h.notify.msgs)
	}
}

func TestHandle_OutsideHoursDoesNotEscalate(t *testing.T) {
	h := newHarness(t, complete("2025-06-01", "16:00", 2))

	res := h.o.Handle(context.Background(), Request{UserID: "u3", Message: "4點訂位"})
	if res.State != StateRejected || res.Reason != ReasonOutsideHours {
		t.Fatalf("expected outside-hours rejection, got %s/%s", res.State, res.Reason)
	}
	if n := h.count(t, &models.SupportRequest{}, ""); n != 0 {
		t.Fatalf("outside-hours rejection must not escalate, got %d", n)
	}
}

func TestHandle_CollectingSavesDraftAndAsksFollowUp(t *testing.T) {
	h := newHarness(t, func(string, []store.HistoryEntry) (*Extraction, error) {
		return &Extraction{
			ExtractedInfo:    ExtractedInfo{Date: "2025-06-01", PartySize: 4},
			MissingInfo:      []string{FieldTime},
			FollowUpQuestion: "請問幾點？",
		}, nil
	})
	ctx := context.Background()

	res := h.o.Handle(ctx, Request{UserID: "u4", Message: "6月1號4位"})
	if res.State != StateCollecting || res.Response != "請問幾點？" {
		t.Fatalf("expected follow-up verbatim, got %s %q", res.State, res.Response)
	}
	if n := h.count(t, &models.Reservation{}, ""); n != 0 {
		t.Fatalf("collecting must not persist a reservation, got %d", n)
	}
	d, err := h.st.Draft(ctx, "u4", time.Hour)
	if err != nil || d == nil {
		t.Fatalf("expected draft, got %+v err=%v", d, err)
	}
	if d.Date != "2025-06-01" || d.PartySize != 4 || d.Time != "" {
		t.Fatalf("unexpected draft %+v", d)
	}

	// the time arrives alone; the draft supplies the rest
	h.ext.fn = func(string, []store.HistoryEntry) (*Extraction, error) {
		return &Extraction{HasCompleteInfo: true, ExtractedInfo: ExtractedInfo{Time: "19:00"}}, nil
	}
	res = h.o.Handle(ctx, Request{UserID: "u4", Message: "7點"})
	if res.State != StateConfirmed {
		t.Fatalf("expected CONFIRMED from draft, got %s %q", res.State, res.Response)
	}
	if res.Reservation.Date != "2025-06-01" || res.Reservation.PartySize != 4 || res.Reservation.Time != "19:00" {
		t.Fatalf("unexpected reservation %+v", res.Reservation)
	}
	if d, _ := h.st.Draft(ctx, "u4", time.Hour); d != nil {
		t.Fatalf("draft must be cleared after booking, got %+v", d)
	}
}

func TestHandle_ConflictingExtractionReplacesDraft(t *testing.T) {
	h := newHarness(t, func(string, []store.HistoryEntry) (*Extraction, error) {
		return &Extraction{ExtractedInfo: ExtractedInfo{Date: "2025-06-01", PartySize: 4}, FollowUpQuestion: "幾點？"}, nil
	})
	ctx := context.Background()
	h.o.Handle(ctx, Request{UserID: "u5", Message: "6月1號4位"})

	h.ext.fn = func(string, []store.HistoryEntry) (*Extraction, error) {
		return &Extraction{ExtractedInfo: ExtractedInfo{Date: "2025-06-02"}, FollowUpQuestion: "幾多位？幾點？"}, nil
	}
	h.o.Handle(ctx, Request{UserID: "u5", Message: "改做6月2號"})

	d, err := h.st.Draft(ctx, "u5", time.Hour)
	if err != nil || d == nil {
		t.Fatalf("expected draft, got %+v err=%v", d, err)
	}
	if d.Date != "2025-06-02" || d.PartySize != 0 {
		t.Fatalf("conflicting extraction must replace the draft, got %+v", d)
	}
}

func TestHandle_NegationAfterSpecialRequestQuestion(t *testing.T) {
	h := newHarness(t, func(string, []store.HistoryEntry) (*Extraction, error) {
		return &Extraction{
			ExtractedInfo:    ExtractedInfo{Date: "2025-06-01", Time: "19:00", PartySize: 2},
			FollowUpQuestion: "請問有沒有特別要求？",
		}, nil
	})
	ctx := context.Background()

	first := h.o.Handle(ctx, Request{UserID: "u6", Message: "6月1號7點2位"})
	if first.State != StateCollecting {
		t.Fatalf("expected COLLECTING, got %s", first.State)
	}
	if _, err := h.st.AppendTurn(ctx, store.TurnInput{UserID: "u6", Message: "6月1號7點2位", Response: first.Response, Category: models.CategoryReservation}); err != nil {
		t.Fatalf("append turn: %v", err)
	}

	h.ext.fn = func(string, []store.HistoryEntry) (*Extraction, error) {
		return &Extraction{FollowUpQuestion: "請問有沒有特別要求？"}, nil
	}
	before := h.ext.calls
	res := h.o.Handle(ctx, Request{UserID: "u6", Message: "無"})
	if res.State != StateConfirmed {
		t.Fatalf("expected CONFIRMED, got %s %q", res.State, res.Response)
	}
	if h.ext.calls != before {
		t.Fatal("negation must not call the extractor")
	}
	if res.Reservation.SpecialRequests != nil {
		t.Fatalf("special requests must be absent, got %q", *res.Reservation.SpecialRequests)
	}
	if res.Extraction == nil || !res.Extraction.PreviousInfo.Found {
		t.Fatalf("expected recovered extraction, got %+v", res.Extraction)
	}
}

func TestHandle_NegationRecoversFromSummaryText(t *testing.T) {
	h := newHarness(t, func(string, []store.HistoryEntry) (*Extraction, error) {
		return nil, errors.New("extractor must not be called")
	})
	ctx := context.Background()

	summary := "確認一下：\n日期：2025-06-01\n時間：12:30\n人數：3人\n請問有沒有特別要求？"
	if _, err := h.st.AppendTurn(ctx, store.TurnInput{UserID: "u7", Message: "6月1號12點半3位", Response: summary}); err != nil {
		t.Fatalf("append turn: %v", err)
	}

	res := h.o.Handle(ctx, Request{UserID: "u7", Message: "不用"})
	if res.State != StateConfirmed {
		t.Fatalf("expected CONFIRMED, got %s %q", res.State, res.Response)
	}
	if res.Reservation.Time != "12:30" || res.Reservation.PartySize != 3 {
		t.Fatalf("unexpected reservation %+v", res.Reservation)
	}
	if h.ext.calls != 0 {
		t.Fatalf("extractor called %d times", h.ext.calls)
	}
}

func TestHandle_NegationAfterConfirmationDoesNotRebook(t *testing.T) {
	h := newHarness(t, complete("2025-06-01", "12:00", 4))
	ctx := context.Background()

	res := h.o.Handle(ctx, Request{UserID: "u8", Message: "訂 2025-06-01 12:00 4人"})
	if _, err := h.st.AppendTurn(ctx, store.TurnInput{UserID: "u8", Message: "訂 2025-06-01 12:00 4人", Response: res.Response}); err != nil {
		t.Fatalf("append: %v", err)
	}

	h.ext.fn = func(string, []store.HistoryEntry) (*Extraction, error) {
		return &Extraction{FollowUpQuestion: "請問還有甚麼可以幫到您？"}, nil
	}
	res = h.o.Handle(ctx, Request{UserID: "u8", Message: "無"})
	if res.State != StateCollecting {
		t.Fatalf("expected COLLECTING, got %s", res.State)
	}
	if n := h.count(t, &models.Reservation{}, ""); n != 1 {
		t.Fatalf("expected 1 reservation, got %d", n)
	}
}

func TestHandle_SpecialRequestFollowUpAfterBookingDoesNotRebook(t *testing.T) {
	h := newHarness(t, complete("2025-06-01", "12:00", 4))
	ctx := context.Background()

	turn := func(msg string) Result {
		res := h.o.Handle(ctx, Request{UserID: "u8b", Message: msg})
		if _, err := h.st.AppendTurn(ctx, store.TurnInput{UserID: "u8b", Message: msg, Response: res.Response}); err != nil {
			t.Fatalf("append: %v", err)
		}
		return res
	}

	if res := turn("訂 2025-06-01 12:00 4人"); res.State != StateConfirmed {
		t.Fatalf("expected CONFIRMED, got %s", res.State)
	}

	h.ext.fn = func(string, []store.HistoryEntry) (*Extraction, error) {
		return &Extraction{FollowUpQuestion: "請問有甚麼特別要求？"}, nil
	}
	turn("我想加個特別要求")

	res := turn("無")
	if res.State == StateConfirmed {
		t.Fatalf("negation after a confirmed booking must not book again: %q", res.Response)
	}
	if n := h.count(t, &models.Reservation{}, ""); n != 1 {
		t.Fatalf("expected 1 reservation, got %d", n)
	}
}

func TestHandle_ExtractionFailureFallsBack(t *testing.T) {
	h := newHarness(t, func(string, []store.HistoryEntry) (*Extraction, error) {
		return nil, errors.New("upstream 500")
	})

	res := h.o.Handle(context.Background(), Request{UserID: "u9", Message: "訂位"})
	if res.State != StateCollecting || res.Response != msgExtractionFailed {
		t.Fatalf("expected fallback follow-up, got %s %q", res.State, res.Response)
	}
	if res.Extraction == nil || !res.Extraction.NeedsHuman || res.Extraction.HasCompleteInfo {
		t.Fatalf("unexpected fallback extraction %+v", res.Extraction)
	}
	if n := h.count(t, &models.SupportRequest{}, "request_type = ?", models.SupportExtraction); n != 1 {
		t.Fatalf("expected 1 extraction escalation, got %d", n)
	}
}

func TestHandle_ExtractionTimeout(t *testing.T) {
	h := newHarness(t, nil)
	h.o.opts.ExtractionTimeout = 20 * time.Millisecond
	h.o.extractor = extractorFunc(func(ctx context.Context, _ string, _ []store.HistoryEntry) (*Extraction, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	res := h.o.Handle(context.Background(), Request{UserID: "u10", Message: "訂位"})
	if res.State != StateCollecting || res.Response != msgExtractionFailed {
		t.Fatalf("expected fallback after timeout, got %s %q", res.State, res.Response)
	}
}

type extractorFunc func(ctx context.Context, message string, history []store.HistoryEntry) (*Extraction, error)

func (f extractorFunc) Extract(ctx context.Context, message string, history []store.HistoryEntry) (*Extraction, error) {
	return f(ctx, message, history)
}

func TestHandle_MalformedCompleteExtractionIsError(t *testing.T) {
	h := newHarness(t, func(string, []store.HistoryEntry) (*Extraction, error) {
		return &Extraction{HasCompleteInfo: true, ExtractedInfo: ExtractedInfo{Date: "2025-06-01"}}, nil
	})
	res := h.o.Handle(context.Background(), Request{UserID: "u11", Message: "訂位"})
	if res.State != StateError || res.Response != msgGenericError {
		t.Fatalf("expected ERROR, got %s %q", res.State, res.Response)
	}
}

func TestHandle_ConcurrentRequestsRespectCeiling(t *testing.T) {
	h := newHarness(t, complete("2025-06-01", "19:00", 2))
	ctx := context.Background()

	const n = 8
	results := make([]Result, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = h.o.Handle(ctx, Request{UserID: fmt.Sprintf("c%d", i), Message: "19:00 2位"})
		}(i)
	}
	wg.Wait()

	confirmed := 0
	for _, r := range results {
		switch r.State {
		case StateConfirmed:
			confirmed++
		case StateRejected:
			if r.Reason != ReasonSlotFull {
				t.Fatalf("unexpected rejection %s", r.Reason)
			}
		default:
			t.Fatalf("unexpected state %s: %q", r.State, r.Response)
		}
	}
	if confirmed != 3 {
		t.Fatalf("expected 3 confirmed, got %d", confirmed)
	}
	live := h.count(t, &models.Reservation{}, "status <> ?", models.ReservationCancelled)
	if live != 3 {
		t.Fatalf("expected 3 live reservations, got %d", live)
	}
	if esc := h.count(t, &models.SupportRequest{}, "request_type = ?", models.SupportCapacity); esc != n-3 {
		t.Fatalf("expected %d capacity escalations, got %d", n-3, esc)
	}
}

func TestStatusSummary(t *testing.T) {
	h := newHarness(t, complete("2025-06-01", "12:00", 4))
	ctx := context.Background()

	text, err := h.o.StatusSummary(ctx, "u12")
	if err != nil || text != msgNoReservations {
		t.Fatalf("expected empty summary, got %q err=%v", text, err)
	}

	h.o.Handle(ctx, Request{UserID: "u12", Message: "訂 2025-06-01 12:00 4人"})
	text, err = h.o.StatusSummary(ctx, "u12")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	for _, want := range []string{"您的訂位記錄", "日期：2025-06-01", "人數：4人", "狀態：待確認"} {
		if !strings.Contains(text, want) {
			t.Fatalf("summary %q missing %q", text, want)
		}
	}
}
