package reservation

import (
	"context"
	"time"

	"github.com/suPer8Hu/cookingpapa/internal/models"
	"github.com/suPer8Hu/cookingpapa/internal/store"
)

// ConflictCounter reports how many live reservations sit within the
// tolerance of a slot.
type ConflictCounter interface {
	CountConflicts(ctx context.Context, date, clock string) (int, error)
}

// SlotCounter is the subset of the session store the counter reads.
type SlotCounter interface {
	CountConflicts(ctx context.Context, date, clock string, tolerance time.Duration) (int, error)
}

type storeCounter struct {
	s         SlotCounter
	tolerance time.Duration
}

// NewConflictCounter counts against the session store with a fixed tolerance.
// The count is a pre-check; the binding check happens in BookReservation.
func NewConflictCounter(s SlotCounter, tolerance time.Duration) ConflictCounter {
	return &storeCounter{s: s, tolerance: tolerance}
}

func (c *storeCounter) CountConflicts(ctx context.Context, date, clock string) (int, error) {
	return c.s.CountConflicts(ctx, date, clock, c.tolerance)
}

func capacityOf(r Rules) store.Capacity {
	return store.Capacity{MaxConcurrent: r.MaxConcurrent, Tolerance: r.Tolerance}
}

// Booker persists a reservation, enforcing capacity atomically.
type Booker interface {
	BookReservation(ctx context.Context, r *models.Reservation, limit store.Capacity) error
}
