package evidence

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Tsahi-Elkayam/orbyte/pkg/providers"
	"github.com/Tsahi-Elkayam/orbyte/pkg/store"
	"github.com/Tsahi-Elkayam/orbyte/pkg/types"
)

// CollectSummary reports what one collection pass did
type CollectSummary struct {
	Providers []string          `json:"providers" yaml:"providers"`
	Resources int               `json:"resources" yaml:"resources"`
	Records   int               `json:"records" yaml:"records"`
	Failed    map[string]string `json:"failed,omitempty" yaml:"failed,omitempty"`
}

// Collector lists resources from every registered provider, maps their facts to
// evidence records and appends them to the evidence store.
type Collector struct {
	registry *providers.PluginRegistry
	store    store.EvidenceStore
	mapper   *Mapper
	logger   *logrus.Logger
}

// CollectorOption configures a Collector
type CollectorOption func(*Collector)

// WithMapper overrides the default mapper
func WithMapper(mapper *Mapper) CollectorOption {
	return func(c *Collector) {
		if mapper != nil {
			c.mapper = mapper
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *logrus.Logger) CollectorOption {
	return func(c *Collector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCollector creates a Collector
func NewCollector(registry *providers.PluginRegistry, evidence store.EvidenceStore, opts ...CollectorOption) *Collector {
	c := &Collector{
		registry: registry,
		store:    evidence,
		mapper:   NewMapper(),
		logger:   logrus.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect queries all providers concurrently. A failing provider is recorded in the
// summary and does not stop the others; only a store failure aborts the pass.
func (c *Collector) Collect(ctx context.Context, filters types.ResourceFilters) (*CollectSummary, error) {
	names := c.registry.List()
	results := make([]providers.ProviderResult, len(names))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for idx, name := range names {
		idx, name := idx, name
		g.Go(func() error {
			result := providers.ProviderResult{Provider: name}
			provider, err := c.registry.Get(name)
			if err == nil {
				result.Resources, err = provider.GetResources(gctx, filters)
			}
			result.Error = err

			mu.Lock()
			results[idx] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	summary := &CollectSummary{Providers: names, Failed: map[string]string{}}
	for _, result := range results {
		log := c.logger.WithField("provider", result.Provider)
		if result.Error != nil {
			log.WithError(result.Error).Warn("Failed to collect resources")
			summary.Failed[result.Provider] = result.Error.Error()
			continue
		}

		for _, resource := range result.Resources {
			ref := types.ResourceRef{Provider: result.Provider, Type: resource.Type, ID: resource.ID}
			records := c.mapper.MapResource(ref.String(), resource)
			if len(records) == 0 {
				continue
			}
			if err := c.store.AddEvidence(ctx, records); err != nil {
				return summary, fmt.Errorf("store evidence for %s: %w", ref, err)
			}
			summary.Records += len(records)
		}
		summary.Resources += len(result.Resources)

		log.WithField("resources", len(result.Resources)).Info("Collected evidence")
	}

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}
