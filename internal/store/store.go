// Package store is the durable session store: users, the append-only turn
// log, reservations, support requests, reservation drafts and message jobs.
// Every operation goes through a bounded retry on transient lock contention.
package store

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/suPer8Hu/cookingpapa/internal/common"
	"github.com/suPer8Hu/cookingpapa/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound        = errors.New("store: not found")
	ErrSlotFull        = errors.New("store: time slot is fully booked")
	ErrInvalidSlot     = errors.New("store: invalid reservation date or time")
	ErrInvalidStatus   = errors.New("store: invalid status")
	ErrAlreadyResolved = errors.New("store: support request already resolved")
)

type Options struct {
	// RetryAttempts is the total number of tries for an operation that hits
	// a busy/locked database.
	RetryAttempts int
	// RetryBackoff is the wait before the second try; later waits double.
	RetryBackoff time.Duration
}

func (o Options) withDefaults() Options {
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = time.Second
	}
	return o
}

type Store struct {
	db    *gorm.DB
	opts  Options
	log   *zap.Logger
	dates *common.KeyedMutex
}

func New(db *gorm.DB, opts Options, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		db:    db,
		opts:  opts.withDefaults(),
		log:   log,
		dates: common.NewKeyedMutex(),
	}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate creates the schema and seeds the fixed category set.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(
		&models.User{},
		&models.Category{},
		&models.Turn{},
		&models.Reservation{},
		&models.SupportRequest{},
		&models.ReservationDraft{},
		&models.MessageJob{},
	); err != nil {
		return err
	}
	cats := make([]models.Category, len(models.DefaultCategories))
	copy(cats, models.DefaultCategories)
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(&cats).Error
}

// withRetry runs fn, retrying while the database reports lock contention.
// Other errors are returned at once.
func (s *Store) withRetry(ctx context.Context, op string, fn func(db *gorm.DB) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(s.db.WithContext(ctx))
		if err == nil || !IsTransient(err) || attempt >= s.opts.RetryAttempts {
			break
		}
		wait := s.backoff(attempt)
		s.log.Warn("storage busy, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	if err != nil && IsTransient(err) {
		s.log.Error("storage busy, giving up", zap.String("op", op), zap.Int("attempts", s.opts.RetryAttempts), zap.Error(err))
	}
	return err
}

// backoff doubles per attempt with up to 25% jitter.
func (s *Store) backoff(attempt int) time.Duration {
	d := s.opts.RetryBackoff << (attempt - 1)
	if j := int64(d / 4); j > 0 {
		d += time.Duration(rand.Int63n(j))
	}
	return d
}

// IsTransient reports whether err is lock contention worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		// lock wait timeout, deadlock
		return myErr.Number == 1205 || myErr.Number == 1213
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "sqlite_locked")
}

func now() time.Time { return time.Now().UTC() }
