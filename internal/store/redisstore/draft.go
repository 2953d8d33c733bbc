package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/suPer8Hu/cookingpapa/internal/models"
)

// DraftCache keeps reservation drafts under a TTL, one key per user.
type DraftCache struct {
	s   *Store
	ttl time.Duration
}

func NewDraftCache(s *Store, ttl time.Duration) *DraftCache {
	return &DraftCache{s: s, ttl: ttl}
}

// Draft returns nil when no draft is cached or it is older than maxAge.
func (c *DraftCache) Draft(ctx context.Context, userID string, maxAge time.Duration) (*models.ReservationDraft, error) {
	data, err := c.s.Rdb.Get(ctx, draftKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d, err := decodeDraft(data)
	if err != nil {
		return nil, err
	}
	if expired(d, maxAge, time.Now()) {
		return nil, nil
	}
	return d, nil
}

func (c *DraftCache) SaveDraft(ctx context.Context, d *models.ReservationDraft) error {
	d.UpdatedAt = time.Now().UTC()
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return c.s.Rdb.Set(ctx, draftKey(d.UserID), b, c.ttl).Err()
}

func (c *DraftCache) ClearDraft(ctx context.Context, userID string) error {
	return c.s.Rdb.Del(ctx, draftKey(userID)).Err()
}

func decodeDraft(data []byte) (*models.ReservationDraft, error) {
	var d models.ReservationDraft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func expired(d *models.ReservationDraft, maxAge time.Duration, now time.Time) bool {
	return maxAge > 0 && now.Sub(d.UpdatedAt) > maxAge
}
