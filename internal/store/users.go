package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/suPer8Hu/cookingpapa/internal/models"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// HistoryEntry is one side of a logged turn.
type HistoryEntry struct {
	Content   string    `json:"content"`
	IsUser    bool      `json:"is_user"`
	Timestamp time.Time `json:"timestamp"`
	Category  string    `json:"category,omitempty"`
}

type TurnInput struct {
	UserID   string
	UserName string
	Message  string
	Response string
	Category string // empty or unknown = uncategorized
	Context  string
	Metadata map[string]any
}

// EnsureUser creates the user if absent and advances last_seen. A non-empty
// name replaces the stored one; the turn counter is untouched.
func (s *Store) EnsureUser(ctx context.Context, id, name string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("store: user id required")
	}
	return s.withRetry(ctx, "ensure_user", func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			return touchUser(tx, id, name, 0)
		})
	})
}

// touchUser is the create-if-absent + stats update shared by every write
// that references a user. It must run inside the caller's transaction.
func touchUser(tx *gorm.DB, id, name string, turns int) error {
	ts := now()
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.User{ID: id, Name: strings.TrimSpace(name), LastSeen: ts}).Error; err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	updates := map[string]any{"last_seen": ts}
	if turns > 0 {
		updates["turn_count"] = gorm.Expr("turn_count + ?", turns)
	}
	if n := strings.TrimSpace(name); n != "" {
		updates["name"] = n
	}
	return tx.Model(&models.User{}).Where("id = ?", id).Updates(updates).Error
}

// GetUser returns ErrNotFound for unknown ids.
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.withRetry(ctx, "get_user", func(db *gorm.DB) error {
		return db.First(&u, "id = ?", id).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// AppendTurn inserts a new turn row. User upsert, stats update and the
// insert commit together.
func (s *Store) AppendTurn(ctx context.Context, in TurnInput) (uint64, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return 0, errors.New("store: user id required")
	}

	var meta datatypes.JSON
	if len(in.Metadata) > 0 {
		b, err := json.Marshal(in.Metadata)
		if err != nil {
			return 0, fmt.Errorf("encode turn metadata: %w", err)
		}
		meta = datatypes.JSON(b)
	}

	var id uint64
	err := s.withRetry(ctx, "append_turn", func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			if err := touchUser(tx, in.UserID, in.UserName, 1); err != nil {
				return err
			}
			turn := &models.Turn{
				UserID:     in.UserID,
				UserName:   in.UserName,
				Message:    in.Message,
				Response:   in.Response,
				CategoryID: s.categoryID(tx, in.Category),
				Context:    in.Context,
				Metadata:   meta,
			}
			if err := tx.Create(turn).Error; err != nil {
				return fmt.Errorf("insert turn: %w", err)
			}
			id = turn.ID
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	s.log.Debug("turn appended", zap.Uint64("turn_id", id), zap.String("user_id", in.UserID), zap.String("category", in.Category))
	return id, nil
}

// categoryID resolves a category name; any miss or lookup failure yields nil.
func (s *Store) categoryID(tx *gorm.DB, name string) *uint {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	var cat models.Category
	res := tx.Where("name = ?", name).Limit(1).Find(&cat)
	if res.Error != nil {
		s.log.Warn("category lookup failed", zap.String("category", name), zap.Error(res.Error))
		return nil
	}
	if res.RowsAffected == 0 {
		return nil
	}
	return &cat.ID
}

// RecentTurns returns the user's turns inside the trailing window, oldest
// first, each split into a user entry and an assistant entry. Blank sides
// are dropped. At most limit turns are read (the newest ones).
func (s *Store) RecentTurns(ctx context.Context, userID string, window time.Duration, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	since := now().Add(-window)

	var desc []models.Turn
	err := s.withRetry(ctx, "recent_turns", func(db *gorm.DB) error {
		desc = desc[:0]
		return db.Preload("Category").
			Where("user_id = ? AND created_at >= ?", userID, since).
			Order("created_at DESC").Order("id DESC").
			Limit(limit).
			Find(&desc).Error
	})
	if err != nil {
		return nil, err
	}

	out := make([]HistoryEntry, 0, len(desc)*2)
	for i := len(desc) - 1; i >= 0; i-- {
		t := desc[i]
		var cat string
		if t.Category != nil {
			cat = t.Category.Name
		}
		if strings.TrimSpace(t.Message) != "" {
			out = append(out, HistoryEntry{Content: t.Message, IsUser: true, Timestamp: t.CreatedAt, Category: cat})
		}
		if strings.TrimSpace(t.Response) != "" {
			out = append(out, HistoryEntry{Content: t.Response, IsUser: false, Timestamp: t.CreatedAt, Category: cat})
		}
	}
	return out, nil
}

// UserHistory returns the newest turns first.
func (s *Store) UserHistory(ctx context.Context, userID string, limit int) ([]models.Turn, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	var turns []models.Turn
	err := s.withRetry(ctx, "user_history", func(db *gorm.DB) error {
		turns = turns[:0]
		return db.Preload("Category").
			Where("user_id = ?", userID).
			Order("created_at DESC").Order("id DESC").
			Limit(limit).
			Find(&turns).Error
	})
	if err != nil {
		return nil, err
	}
	return turns, nil
}
