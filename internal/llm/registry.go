package llm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/soyeahso/mirror/internal/config"
	"github.com/soyeahso/mirror/internal/logging"
)

// Registry manages LLM provider clients and resolves provider names to clients.
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]Client // provider name → client
	aliases  map[string]string // model alias → provider name
	fallback string            // default provider name
	log      *logging.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		clients: make(map[string]Client),
		aliases: make(map[string]string),
		log:     log.Sub("llm.registry"),
	}
}

// Register adds a client under the given provider name.
func (r *Registry) Register(name string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
	r.log.Info().Str("provider", name).Msg("registered LLM provider")
}

// Alias maps a model name to a provider, e.g. Alias("gpt-4o", "openai").
func (r *Registry) Alias(model, provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[model] = provider
}

// SetFallback sets the default provider used when no name or alias matches.
func (r *Registry) SetFallback(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = provider
}

// Resolve returns the Client for the given provider name or model.
// Resolution order: exact provider name → alias → fallback.
func (r *Registry) Resolve(name string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.clients[name]; ok {
		return c, nil
	}

	if provider, ok := r.aliases[name]; ok {
		if c, ok := r.clients[provider]; ok {
			return c, nil
		}
	}

	if r.fallback != "" {
		if c, ok := r.clients[r.fallback]; ok {
			return c, nil
		}
	}

	return nil, fmt.Errorf("no LLM provider for %q", name)
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for n := range r.clients {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewRegistryFromConfig registers the configured provider. An openai provider
// without an API key is left unregistered so the caller can report it.
func NewRegistryFromConfig(cfg config.LLMConfig, log *logging.Logger) *Registry {
	reg := NewRegistry(log)

	switch cfg.Provider {
	case "openai":
		if cfg.APIKey == "" {
			reg.log.Warn().Msg("openai provider has no API key; completions disabled")
			return reg
		}
		reg.Register("openai", NewOpenAIClient(cfg.APIKey, cfg.Endpoint, cfg.Model, nil))
		reg.Alias(cfg.Model, "openai")
		reg.SetFallback("openai")

	case "ollama":
		reg.Register("ollama", NewOllamaAPIClient(cfg.Endpoint, cfg.Model))
		reg.Alias(cfg.Model, "ollama")
		reg.SetFallback("ollama")

	default:
		reg.log.Warn().Str("provider", cfg.Provider).Msg("unknown LLM provider")
	}

	return reg
}
