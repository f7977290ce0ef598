package registry

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/goblinos/overmind"
)

// Registry is the provider catalog. Registration order is preserved and
// drives candidate ordering everywhere downstream.
type Registry struct {
	mutex sync.RWMutex

	// Insertion-ordered provider list.
	providers []*overmind.ProviderConfig

	// ID -> index into providers.
	index map[string]int

	logger *zap.SugaredLogger
}

func New(logger *zap.SugaredLogger) *Registry {
	return &Registry{
		index:  make(map[string]int),
		logger: logger,
	}
}

// NewFromConfigs builds a registry seeded with the given providers.
// Duplicate IDs overwrite in place, keeping the original position.
func NewFromConfigs(configs []*overmind.ProviderConfig, logger *zap.SugaredLogger) *Registry {
	registry := New(logger)
	for _, config := range configs {
		registry.Register(config)
	}
	return registry
}

// Register adds or replaces a provider. Replacement keeps the original
// insertion position.
func (r *Registry) Register(config *overmind.ProviderConfig) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if position, exists := r.index[config.ID]; exists {
		r.providers[position] = config
		r.logger.Infow("provider replaced", "provider", config.ID)
		return
	}
	r.index[config.ID] = len(r.providers)
	r.providers = append(r.providers, config)
	r.logger.Infow("provider registered", "provider", config.ID, "kind", config.Kind)
}

// Get returns the provider with the given ID.
func (r *Registry) Get(id string) (*overmind.ProviderConfig, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	position, exists := r.index[id]
	if !exists {
		return nil, false
	}
	return r.providers[position], true
}

// All returns every registered provider in insertion order, active or not.
func (r *Registry) All() []*overmind.ProviderConfig {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	providers := make([]*overmind.ProviderConfig, len(r.providers))
	copy(providers, r.providers)
	return providers
}

// ByCapability returns active providers advertising the capability, in
// insertion order. Providers whose credential cannot be resolved are
// excluded with a warning rather than failing the lookup.
func (r *Registry) ByCapability(capability string) []*overmind.ProviderConfig {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var matched []*overmind.ProviderConfig
	for _, provider := range r.providers {
		if !provider.IsActive || !provider.HasCapability(capability) {
			continue
		}
		if _, err := r.credential(provider); err != nil {
			r.logger.Warnw("excluding provider without credential",
				"provider", provider.ID, "error", err)
			continue
		}
		matched = append(matched, provider)
	}
	return matched
}

// Credential resolves the provider's API key from its environment variable.
// Self-hosted providers resolve to an empty credential.
func (r *Registry) Credential(id string) (string, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	position, exists := r.index[id]
	if !exists {
		return "", fmt.Errorf("provider %s not found", id)
	}
	return r.credential(r.providers[position])
}

func (r *Registry) credential(provider *overmind.ProviderConfig) (string, error) {
	if provider.SelfHosted {
		return "", nil
	}
	if provider.APIKeyEnv == "" {
		return "", fmt.Errorf("provider %s has no api_key_env configured", provider.ID)
	}
	key, ok := os.LookupEnv(provider.APIKeyEnv)
	if !ok || key == "" {
		return "", fmt.Errorf("environment variable %s is not set", provider.APIKeyEnv)
	}
	return key, nil
}

// SetActive toggles a provider without removing it from the catalog.
func (r *Registry) SetActive(id string, active bool) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	position, exists := r.index[id]
	if !exists {
		return fmt.Errorf("provider %s not found", id)
	}
	r.providers[position].IsActive = active
	return nil
}
