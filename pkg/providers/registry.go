package providers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// PluginRegistry holds the authenticated providers that remediation commands and
// condition checks are routed to
type PluginRegistry struct {
	providers map[string]CloudProvider
	mu        sync.RWMutex
	logger    *logrus.Logger
}

// NewPluginRegistry creates a new plugin registry
func NewPluginRegistry(logger *logrus.Logger) *PluginRegistry {
	if logger == nil {
		logger = logrus.New()
	}
	return &PluginRegistry{
		providers: make(map[string]CloudProvider),
		logger:    logger,
	}
}

// Register registers a new cloud provider plugin
func (r *PluginRegistry) Register(provider CloudProvider) error {
	if provider == nil {
		return fmt.Errorf("provider cannot be nil")
	}

	name := provider.Name()
	if name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %s already registered", name)
	}

	r.providers[name] = provider
	r.logger.WithField("provider", name).Debug("Registered provider")

	return nil
}

// Unregister removes a provider from the registry
func (r *PluginRegistry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; !exists {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}

	delete(r.providers, name)
	r.logger.WithField("provider", name).Debug("Unregistered provider")

	return nil
}

// Get retrieves a provider by name
func (r *PluginRegistry) Get(name string) (CloudProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}

	return provider, nil
}

// List returns a list of all registered provider names
func (r *PluginRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// Count returns the number of registered providers
func (r *PluginRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.providers)
}

// GetProviderInfo returns detailed information about all providers, sorted by name
func (r *PluginRegistry) GetProviderInfo() []ProviderInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info := make([]ProviderInfo, 0, len(r.providers))
	for name, provider := range r.providers {
		info = append(info, ProviderInfo{
			Name:            name,
			Description:     provider.Description(),
			ResourceTypes:   provider.GetSupportedResourceTypes(),
			Actions:         provider.Actions(),
			IsAuthenticated: provider.IsAuthenticated(),
		})
	}
	sort.Slice(info, func(i, j int) bool { return info[i].Name < info[j].Name })

	return info
}

// ProviderInfo holds information about a registered provider
type ProviderInfo struct {
	Name            string   `json:"name" yaml:"name"`
	Description     string   `json:"description" yaml:"description"`
	ResourceTypes   []string `json:"resource_types" yaml:"resource_types"`
	Actions         []string `json:"actions" yaml:"actions"`
	IsAuthenticated bool     `json:"is_authenticated" yaml:"is_authenticated"`
}
