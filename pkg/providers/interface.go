package providers

import (
	"context"

	"github.com/Tsahi-Elkayam/orbyte/pkg/config"
	"github.com/Tsahi-Elkayam/orbyte/pkg/models"
	"github.com/Tsahi-Elkayam/orbyte/pkg/types"
)

// CloudProvider defines the interface that all cloud provider plugins must implement.
// Besides reading live state, a provider exposes named remediation actions that
// playbook commands dispatch to.
type CloudProvider interface {
	// Provider metadata
	Name() string
	Description() string
	SupportedRegions() []string

	// Authentication
	Authenticate(ctx context.Context, config config.ProviderConfig) error
	IsAuthenticated() bool

	// Live resource state
	GetResources(ctx context.Context, filters types.ResourceFilters) ([]models.Resource, error)
	GetResourcesByType(ctx context.Context, resourceType string, filters types.ResourceFilters) ([]models.Resource, error)
	GetResource(ctx context.Context, ref types.ResourceRef) (*models.Resource, error)

	// Remediation
	Actions() []string
	PerformAction(ctx context.Context, action string, args []string) error

	// Utility methods
	ValidateConfig(config config.ProviderConfig) error
	GetSupportedResourceTypes() []string
}

// ProviderResult holds the result of a provider operation
type ProviderResult struct {
	Provider  string
	Resources []models.Resource
	Error     error
}
