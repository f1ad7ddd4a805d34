package extraction

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/briangormanly/momento/config"
)

// Registry resolves and caches the configured extraction provider (C6), and
// always keeps a local heuristic provider available as the pipeline's
// fallback target.
type Registry struct {
	cfg       config.ExtractionConfig
	log       *logrus.Entry
	instances map[string]Provider
}

func NewRegistry(cfg config.ExtractionConfig, log *logrus.Entry) *Registry {
	return &Registry{cfg: cfg, log: log.WithField("component", "provider_registry"), instances: make(map[string]Provider)}
}

// ExtractionProvider returns the provider configured as primary, building
// and caching it on first use.
func (r *Registry) ExtractionProvider() Provider {
	key := strings.ToLower(r.cfg.Provider)
	if key == "" {
		key = "local"
	}
	if p, ok := r.instances[key]; ok {
		return p
	}
	p := r.build(key)
	r.instances[key] = p
	return p
}

// FallbackLocal returns the always-available local heuristic provider.
func (r *Registry) FallbackLocal() Provider {
	if p, ok := r.instances["local"]; ok {
		return p
	}
	p := NewLocalProvider(r.log)
	r.instances["local"] = p
	return p
}

func (r *Registry) build(key string) Provider {
	switch key {
	case "ollama":
		return NewOllamaProvider(r.cfg.Ollama, r.log)
	case "openai":
		return NewOpenAIProvider(r.cfg.OpenAI, r.log)
	case "anthropic":
		return NewAnthropicProvider(r.cfg.Anthropic, r.log)
	case "local":
		return NewLocalProvider(r.log)
	default:
		r.log.WithField("provider", key).Warn("unknown provider; defaulting to local heuristic")
		return NewLocalProvider(r.log)
	}
}
