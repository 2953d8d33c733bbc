package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/suPer8Hu/cookingpapa/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Capacity is the booking ceiling checked inside the insert transaction.
type Capacity struct {
	MaxConcurrent int
	Tolerance     time.Duration
}

// CountConflicts counts non-cancelled reservations on date whose time is
// strictly closer than tolerance to clock.
func (s *Store) CountConflicts(ctx context.Context, date, clock string, tolerance time.Duration) (int, error) {
	target, err := models.ClockSeconds(clock)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidSlot, err)
	}
	var times []string
	err = s.withRetry(ctx, "count_conflicts", func(db *gorm.DB) error {
		times = times[:0]
		return activeTimesOn(db, date).Pluck("reservation_time", &times).Error
	})
	if err != nil {
		return 0, err
	}
	return countWithin(times, target, tolerance), nil
}

func activeTimesOn(db *gorm.DB, date string) *gorm.DB {
	return db.Model(&models.Reservation{}).
		Where("reservation_date = ? AND status <> ?", date, models.ReservationCancelled)
}

func countWithin(times []string, target int, tolerance time.Duration) int {
	limit := int(tolerance / time.Second)
	n := 0
	for _, t := range times {
		sec, err := models.ClockSeconds(t)
		if err != nil {
			continue
		}
		d := sec - target
		if d < 0 {
			d = -d
		}
		if d < limit {
			n++
		}
	}
	return n
}

// BookReservation inserts r as PENDING_CONFIRMATION unless the slot already
// holds limit.MaxConcurrent reservations within limit.Tolerance, in which case it
// returns ErrSlotFull. Bookings for the same date are serialised in-process,
// and the recount runs in the insert transaction under a locking read where
// the dialect supports one.
func (s *Store) BookReservation(ctx context.Context, r *models.Reservation, limit Capacity) error {
	if _, err := models.ParseSlot(r.Date, r.Time); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSlot, err)
	}
	clock, _ := models.NormalizeClock(r.Time)
	r.Time = clock
	target, _ := models.ClockSeconds(clock)

	unlock := s.dates.Lock(r.Date)
	defer unlock()

	err := s.withRetry(ctx, "book_reservation", func(db *gorm.DB) error {
		r.ID = 0
		return db.Transaction(func(tx *gorm.DB) error {
			if err := touchUser(tx, r.UserID, r.UserName, 0); err != nil {
				return err
			}

			q := activeTimesOn(tx, r.Date)
			if tx.Dialector.Name() != "sqlite" {
				q = q.Clauses(clause.Locking{Strength: "UPDATE"})
			}
			var times []string
			if err := q.Pluck("reservation_time", &times).Error; err != nil {
				return err
			}
			if limit.MaxConcurrent > 0 && countWithin(times, target, limit.Tolerance) >= limit.MaxConcurrent {
				return ErrSlotFull
			}

			r.Status = models.ReservationPending
			return tx.Create(r).Error
		})
	})
	if err != nil {
		if errors.Is(err, ErrSlotFull) {
			s.log.Info("slot full at insert", zap.String("date", r.Date), zap.String("time", r.Time))
		}
		return err
	}
	s.log.Info("reservation booked",
		zap.Uint64("reservation_id", r.ID),
		zap.String("user_id", r.UserID),
		zap.String("date", r.Date),
		zap.String("time", r.Time),
		zap.Int("party_size", r.PartySize),
	)
	return nil
}

// ReservationsOn lists every reservation on date, ordered by time.
func (s *Store) ReservationsOn(ctx context.Context, date string) ([]models.Reservation, error) {
	var out []models.Reservation
	err := s.withRetry(ctx, "reservations_on", func(db *gorm.DB) error {
		out = out[:0]
		return db.Where("reservation_date = ?", date).
			Order("reservation_time ASC").Order("id ASC").
			Find(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UserReservations lists a user's reservations, newest slot first.
func (s *Store) UserReservations(ctx context.Context, userID string) ([]models.Reservation, error) {
	var out []models.Reservation
	err := s.withRetry(ctx, "user_reservations", func(db *gorm.DB) error {
		out = out[:0]
		return db.Where("user_id = ?", userID).
			Order("reservation_date DESC").Order("reservation_time DESC").Order("id DESC").
			Find(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetReservation(ctx context.Context, id uint64) (*models.Reservation, error) {
	var r models.Reservation
	err := s.withRetry(ctx, "get_reservation", func(db *gorm.DB) error {
		return db.First(&r, "id = ?", id).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// SetReservationStatus is the only mutation a reservation ever receives.
func (s *Store) SetReservationStatus(ctx context.Context, id uint64, status models.ReservationStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	var affected int64
	err := s.withRetry(ctx, "set_reservation_status", func(db *gorm.DB) error {
		res := db.Model(&models.Reservation{}).
			Where("id = ?", id).
			Updates(map[string]any{"status": status, "updated_at": now()})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	s.log.Info("reservation status changed", zap.Uint64("reservation_id", id), zap.String("status", string(status)))
	return nil
}
