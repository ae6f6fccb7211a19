package llm

import (
	"fmt"

	"github.com/jstrand/ldgen/internal/config"
)

// Registry holds the constructed provider instances keyed by name. It is an
// explicitly built, read-only snapshot passed to whoever needs a provider;
// there is no ambient global.
type Registry struct {
	providers map[string]Provider
	active    string
}

// NewRegistry constructs one provider per configured upstream.
func NewRegistry(cfg config.ProviderConfig, limits RateLimitStore) *Registry {
	return &Registry{
		providers: map[string]Provider{
			"openai": NewOpenAI(cfg.OpenAI, limits),
			"claude": NewClaude(cfg.Claude, limits),
		},
		active: cfg.Active,
	}
}

// Active returns the configured provider.
func (r *Registry) Active() (Provider, error) {
	return r.Get(r.active)
}

// Get returns the provider with the given name.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return p, nil
}
