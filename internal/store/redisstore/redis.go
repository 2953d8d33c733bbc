// Package redisstore keeps short-lived conversation state in Redis.
package redisstore

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const draftPrefix = "cookingpapa:draft:"

type Store struct {
	Rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{
		Rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.Rdb.Close()
}

func draftKey(userID string) string {
	return draftPrefix + userID
}
