package providers

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Tsahi-Elkayam/orbyte/pkg/config"
	"github.com/Tsahi-Elkayam/orbyte/pkg/providers/aws"
)

// ProviderFactory creates authenticated provider instances from configuration
type ProviderFactory struct {
	logger *logrus.Logger
}

// NewProviderFactory creates a new provider factory
func NewProviderFactory(logger *logrus.Logger) *ProviderFactory {
	if logger == nil {
		logger = logrus.New()
	}
	return &ProviderFactory{logger: logger}
}

// CreateProvider creates a provider instance with the given configuration
func (f *ProviderFactory) CreateProvider(ctx context.Context, name string, cfg config.ProviderConfig) (CloudProvider, error) {
	f.logger.WithField("provider", name).Debug("Creating provider")

	switch name {
	case "aws":
		return f.createAWSProvider(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
}

// BuildRegistry creates every enabled provider and registers it. A provider that
// fails to authenticate is logged and skipped so the rest stay usable.
func (f *ProviderFactory) BuildRegistry(ctx context.Context, cfg *config.Config) *PluginRegistry {
	registry := NewPluginRegistry(f.logger)

	for name, providerCfg := range cfg.GetEnabledProviders() {
		provider, err := f.CreateProvider(ctx, name, providerCfg)
		if err != nil {
			f.logger.WithError(err).WithField("provider", name).Warn("Failed to create provider")
			continue
		}
		if err := registry.Register(provider); err != nil {
			f.logger.WithError(err).WithField("provider", name).Warn("Failed to register provider")
		}
	}

	return registry
}

// createAWSProvider creates an AWS provider instance
func (f *ProviderFactory) createAWSProvider(ctx context.Context, cfg config.ProviderConfig) (CloudProvider, error) {
	awsConfig, ok := cfg.(*config.AWSConfig)
	if !ok {
		return nil, fmt.Errorf("%w: expected AWS configuration", ErrInvalidConfiguration)
	}

	provider, err := aws.NewAWSProvider(awsConfig, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS provider: %w", err)
	}

	if err := provider.Authenticate(ctx, awsConfig); err != nil {
		return nil, NewAuthenticationError("aws", "could not authenticate", err)
	}

	return provider, nil
}

// GetSupportedProviders returns a list of supported provider names
func (f *ProviderFactory) GetSupportedProviders() []string {
	return []string{"aws"}
}
