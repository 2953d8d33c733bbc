// Package app assembles the concierge from configuration. The HTTP server
// and the job worker share it.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/suPer8Hu/cookingpapa/internal/ai"
	"github.com/suPer8Hu/cookingpapa/internal/assistant"
	"github.com/suPer8Hu/cookingpapa/internal/config"
	"github.com/suPer8Hu/cookingpapa/internal/db"
	"github.com/suPer8Hu/cookingpapa/internal/reservation"
	"github.com/suPer8Hu/cookingpapa/internal/store"
	"github.com/suPer8Hu/cookingpapa/internal/store/rabbitmq"
	"github.com/suPer8Hu/cookingpapa/internal/store/redisstore"
	"go.uber.org/zap"
)

type App struct {
	Store        *store.Store
	Orchestrator *reservation.Orchestrator
	Assistant    *assistant.Service
	// Publisher is nil when RabbitMQ is unreachable.
	Publisher *rabbitmq.Publisher

	closers []func() error
}

// Build opens storage, connects the model provider and wires the reservation
// flow behind the assistant router. RabbitMQ is optional: without it
// escalations are only stored and async intake is off.
func Build(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	a := &App{}

	gdb, err := db.Open(cfg.DBDriver, cfg.DBDSN, log)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := store.Migrate(ctx, gdb); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	a.Store = store.New(gdb, store.Options{
		RetryAttempts: cfg.Store.RetryAttempts,
		RetryBackoff:  cfg.Store.RetryBackoff,
	}, log)
	a.closers = append(a.closers, a.Store.Close)

	drafts, err := a.draftStore(ctx, cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	provider, err := ai.NewRegistryFromConfig(cfg).Get(ctx, cfg.AIProvider, "")
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("ai provider: %w", err)
	}

	rules, err := reservation.NewRules(cfg.Booking)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("booking rules: %w", err)
	}

	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue, cfg.EscalationQueue)
	if err != nil {
		log.Warn("rabbitmq unavailable, async intake and escalation events disabled", zap.Error(err))
	} else {
		a.Publisher = pub
		a.closers = append(a.closers, pub.Close)
	}

	var notifier reservation.Notifier
	if a.Publisher != nil {
		notifier = a.Publisher
	}

	a.Orchestrator = reservation.NewOrchestrator(
		a.Store,
		drafts,
		ai.NewExtractor(provider, log),
		reservation.NewValidator(rules, reservation.NewConflictCounter(a.Store, rules.Tolerance)),
		reservation.NewEscalator(a.Store, notifier, log),
		reservation.Options{
			HistoryWindow:     cfg.HistoryWindow,
			HistoryLimit:      cfg.HistoryLimit,
			ExtractionTimeout: cfg.ExtractionTimeout,
		},
		log,
	)

	reference, err := restaurantInfo(cfg.RestaurantInfoFile)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Assistant = assistant.NewService(
		ai.NewClassifier(provider, log),
		a.Orchestrator,
		assistant.NewChatAnswerer(provider, reference, cfg.ChatContextWindowSize),
		a.Store,
		assistant.Options{
			HistoryWindow: cfg.HistoryWindow,
			HistoryLimit:  cfg.HistoryLimit,
		},
		log,
	)
	return a, nil
}

func (a *App) draftStore(ctx context.Context, cfg config.Config, log *zap.Logger) (reservation.DraftStore, error) {
	switch cfg.DraftBackend {
	case "", "db":
		return a.Store, nil
	case "redis":
		rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := rds.Ping(ctx); err != nil {
			_ = rds.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		a.closers = append(a.closers, rds.Close)
		log.Info("reservation drafts kept in redis", zap.String("addr", cfg.RedisAddr))
		return redisstore.NewDraftCache(rds, cfg.HistoryWindow), nil
	default:
		return nil, fmt.Errorf("unsupported DRAFT_BACKEND=%q", cfg.DraftBackend)
	}
}

func restaurantInfo(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read restaurant info: %w", err)
	}
	return string(b), nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}
