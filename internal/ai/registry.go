package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/suPer8Hu/cookingpapa/internal/config"
)

type ProviderFactory func(ctx context.Context, model string) (Provider, error)

type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

// NewRegistryFromConfig registers the ollama and openrouter backends. An
// empty model passed to Get falls back to the configured one.
func NewRegistryFromConfig(cfg config.Config) *Registry {
	r := NewRegistry()
	r.Register("ollama", func(ctx context.Context, model string) (Provider, error) {
		if model == "" {
			model = cfg.OllamaModel
		}
		return NewOllamaProvider(cfg.OllamaBaseURL, model), nil
	})
	r.Register("openrouter", func(ctx context.Context, model string) (Provider, error) {
		if cfg.OpenRouterAPIKey == "" {
			return nil, fmt.Errorf("openrouter: OPENROUTER_API_KEY is not set")
		}
		if model == "" {
			model = cfg.OpenRouterModel
		}
		return NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, model, cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
	})
	return r
}

func (r *Registry) Register(name string, f ProviderFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Get(ctx context.Context, name string, model string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai provider: %s", name)
	}
	return f(ctx, model)
}
