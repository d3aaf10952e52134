// Package app assembles the stores, calculators, providers and playbook engine
// from configuration. The CLI and the HTTP server share it.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Tsahi-Elkayam/orbyte/pkg/catalog"
	"github.com/Tsahi-Elkayam/orbyte/pkg/config"
	"github.com/Tsahi-Elkayam/orbyte/pkg/evidence"
	"github.com/Tsahi-Elkayam/orbyte/pkg/playbook"
	"github.com/Tsahi-Elkayam/orbyte/pkg/producer"
	"github.com/Tsahi-Elkayam/orbyte/pkg/providers"
	"github.com/Tsahi-Elkayam/orbyte/pkg/remediation"
	"github.com/Tsahi-Elkayam/orbyte/pkg/scoring"
	"github.com/Tsahi-Elkayam/orbyte/pkg/store"
	"github.com/Tsahi-Elkayam/orbyte/pkg/store/memory"
	"github.com/Tsahi-Elkayam/orbyte/pkg/store/sqlite"
)

// App holds the wired components. Provider-backed components are built on first use
// so commands that only read the store never authenticate.
type App struct {
	Config     *config.Config
	Logger     *logrus.Logger
	Store      store.Store
	Catalog    *catalog.Catalog
	Calculator *scoring.Calculator

	producer producer.TextProducer

	once       sync.Once
	registry   *providers.PluginRegistry
	dispatcher *remediation.Dispatcher
	inspector  *remediation.Inspector
}

// Option overrides a component, mostly for tests
type Option func(*App)

// WithStore uses st instead of opening the configured store
func WithStore(st store.Store) Option {
	return func(a *App) {
		a.Store = st
	}
}

// WithRegistry uses registry instead of creating providers from configuration
func WithRegistry(registry *providers.PluginRegistry) Option {
	return func(a *App) {
		if registry != nil {
			a.registry = registry
		}
	}
}

// WithProducer uses p instead of the configured text producer
func WithProducer(p producer.TextProducer) Option {
	return func(a *App) {
		a.producer = p
	}
}

// New wires an App from cfg. The control catalog is seeded into the store every time
// so scoring can resolve control names.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = logrus.New()
	}
	a := &App{Config: cfg, Logger: logger}
	for _, opt := range opts {
		opt(a)
	}

	if a.Store == nil {
		st, err := OpenStore(cfg.Store, logger)
		if err != nil {
			return nil, err
		}
		a.Store = st
	}

	cat, err := catalog.Load(cfg.Scoring.CatalogFile)
	if err != nil {
		a.Store.Close()
		return nil, err
	}
	if err := cat.Seed(ctx, a.Store); err != nil {
		a.Store.Close()
		return nil, err
	}
	a.Catalog = cat

	a.Calculator = scoring.NewCalculator(a.Store, a.Store,
		scoring.WithLogger(logger),
		scoring.WithBaseline(cfg.Scoring.BaselineKg),
		scoring.WithWindowDays(cfg.Scoring.WindowDays),
		scoring.WithQueryTimeout(cfg.Store.QueryTimeout),
	)

	if a.producer == nil {
		p, err := producer.New(cfg.Producer, logger)
		if err != nil {
			a.Store.Close()
			return nil, err
		}
		a.producer = p
	}

	return a, nil
}

// OpenStore opens the store selected by configuration
func OpenStore(cfg config.StoreConfig, logger *logrus.Logger) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		return memory.New(), nil
	case "sqlite", "":
		st, err := sqlite.Open(cfg.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store %s: %w", cfg.Path, err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
}

// Close releases the store
func (a *App) Close() error {
	return a.Store.Close()
}

func (a *App) wireProviders(ctx context.Context) {
	a.once.Do(func() {
		if a.registry == nil {
			a.registry = providers.NewProviderFactory(a.Logger).BuildRegistry(ctx, a.Config)
		}
		a.dispatcher = remediation.NewDispatcher(a.registry,
			remediation.WithDryRun(a.Config.Executor.DryRun),
			remediation.WithDispatcherLogger(a.Logger),
		)
		a.inspector = remediation.NewInspector(a.registry,
			remediation.WithScorer(a.Calculator),
			remediation.WithInspectorLogger(a.Logger),
		)
	})
}

// Registry returns the provider registry, creating and authenticating providers on first use
func (a *App) Registry(ctx context.Context) *providers.PluginRegistry {
	a.wireProviders(ctx)
	return a.registry
}

// Inspector returns the condition evaluator
func (a *App) Inspector(ctx context.Context) *remediation.Inspector {
	a.wireProviders(ctx)
	return a.inspector
}

// Builder returns a playbook builder using the configured producer and parser
func (a *App) Builder() (*playbook.Builder, error) {
	parser, ok := playbook.ParserByName(a.Config.Executor.Parser)
	if !ok {
		return nil, fmt.Errorf("unknown step parser: %s", a.Config.Executor.Parser)
	}
	return playbook.NewBuilder(a.producer,
		playbook.WithParser(parser),
		playbook.WithGenerateTimeout(a.Config.Producer.Timeout),
		playbook.WithBuilderLogger(a.Logger),
	), nil
}

// Executor returns a playbook executor dispatching to the provider registry
func (a *App) Executor(ctx context.Context) (*playbook.Executor, error) {
	mode, err := playbook.ParseRollbackMode(a.Config.Executor.RollbackMode)
	if err != nil {
		return nil, err
	}
	a.wireProviders(ctx)
	return playbook.NewExecutor(a.dispatcher, a.inspector,
		playbook.WithCallTimeout(a.Config.Executor.CallTimeout),
		playbook.WithRollbackMode(mode),
		playbook.WithConcurrentPreconditions(a.Config.Executor.ConcurrentPreconditions),
		playbook.WithExecutorLogger(a.Logger),
	), nil
}

// Collector returns an evidence collector over the provider registry
func (a *App) Collector(ctx context.Context) *evidence.Collector {
	a.wireProviders(ctx)
	return evidence.NewCollector(a.registry, a.Store, evidence.WithLogger(a.Logger))
}
