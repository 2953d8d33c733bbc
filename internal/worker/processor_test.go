package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/suPer8Hu/cookingpapa/internal/assistant"
	"github.com/suPer8Hu/cookingpapa/internal/db"
	"github.com/suPer8Hu/cookingpapa/internal/models"
	"github.com/suPer8Hu/cookingpapa/internal/reservation"
	"github.com/suPer8Hu/cookingpapa/internal/store"
	"go.uber.org/zap"
)

type countingAssistant struct {
	calls int
	err   error
}

func (a *countingAssistant) HandleMessage(ctx context.Context, in assistant.Inbound) (assistant.Reply, error) {
	a.calls++
	if a.err != nil {
		return assistant.Reply{}, a.err
	}
	return assistant.Reply{Text: "ok " + in.Text, State: reservation.StateConfirmed}, nil
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	gdb, err := db.Open("sqlite", filepath.Join(t.TempDir(), "worker.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := store.Migrate(context.Background(), gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s := store.New(gdb, store.Options{RetryBackoff: time.Millisecond}, zap.NewNop())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func queueJob(t *testing.T, s *store.Store, id string) {
	t.Helper()
	_, _, err := s.CreateJobOrGetExisting(context.Background(), &models.MessageJob{
		ID: id, UserID: "u1", UserName: "Amy", Text: "訂位", Status: models.JobQueued,
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
}

func TestProcess_SucceedsOnce(t *testing.T) {
	s := openStore(t)
	queueJob(t, s, "01JOB000000000000000000001")
	a := &countingAssistant{}
	p := NewProcessor(s, a, zap.NewNop())

	if err := p.Process(context.Background(), "01JOB000000000000000000001"); err != nil {
		t.Fatalf("process: %v", err)
	}
	// redelivery
	if err := p.Process(context.Background(), "01JOB000000000000000000001"); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if a.calls != 1 {
		t.Fatalf("assistant called %d times, want 1", a.calls)
	}

	j, err := s.GetJob(context.Background(), "01JOB000000000000000000001")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if j.Status != models.JobSucceeded || j.Response == nil || *j.Response != "ok 訂位" || j.State != string(reservation.StateConfirmed) {
		t.Fatalf("job=%+v", j)
	}
}

func TestProcess_FailureIsPermanent(t *testing.T) {
	s := openStore(t)
	queueJob(t, s, "01JOB000000000000000000002")
	p := NewProcessor(s, &countingAssistant{err: assistant.ErrEmptyMessage}, zap.NewNop())

	err := p.Process(context.Background(), "01JOB000000000000000000002")
	if !IsPermanent(err) || !errors.Is(err, assistant.ErrEmptyMessage) {
		t.Fatalf("err=%v", err)
	}
	j, _ := s.GetJob(context.Background(), "01JOB000000000000000000002")
	if j.Status != models.JobFailed || j.Error == nil {
		t.Fatalf("job=%+v", j)
	}
}

func TestProcess_UnknownJob(t *testing.T) {
	p := NewProcessor(openStore(t), &countingAssistant{}, zap.NewNop())
	if err := p.Process(context.Background(), "missing"); !IsPermanent(err) {
		t.Fatalf("err=%v, want permanent", err)
	}
}

func TestProcess_DetachedFromShutdownSignal(t *testing.T) {
	s := openStore(t)
	queueJob(t, s, "01JOB000000000000000000003")
	p := NewProcessor(s, &countingAssistant{}, zap.NewNop())

	signalled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Process(context.WithoutCancel(signalled), "01JOB000000000000000000003"); err != nil {
		t.Fatalf("process: %v", err)
	}
	j, _ := s.GetJob(context.Background(), "01JOB000000000000000000003")
	if j.Status != models.JobSucceeded {
		t.Fatalf("job=%+v", j)
	}
}
