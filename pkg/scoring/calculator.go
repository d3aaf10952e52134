package scoring

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Tsahi-Elkayam/orbyte/pkg/store"
)

const (
	// DefaultBaselineKg is the monthly emissions of a medium-sized organisation
	DefaultBaselineKg = 1000.0

	// DefaultWindowDays is the look-back used by score, regions and opportunities
	DefaultWindowDays = 30
)

// Calculator derives compliance and sustainability signals from store query results.
// It holds no mutable state and is safe for concurrent use.
type Calculator struct {
	evidence     store.EvidenceStore
	metrics      store.MetricStore
	logger       *logrus.Logger
	now          func() time.Time
	baselineKg   float64
	windowDays   int
	queryTimeout time.Duration
}

// Option configures a Calculator
type Option func(*Calculator)

// WithClock overrides the timestamp source used for look-back windows (tests).
func WithClock(clock func() time.Time) Option {
	return func(c *Calculator) {
		if clock != nil {
			c.now = clock
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Calculator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBaseline overrides the monthly emissions baseline in kg CO2
func WithBaseline(kg float64) Option {
	return func(c *Calculator) {
		if kg > 0 {
			c.baselineKg = kg
		}
	}
}

// WithWindowDays overrides the look-back window
func WithWindowDays(days int) Option {
	return func(c *Calculator) {
		if days > 0 {
			c.windowDays = days
		}
	}
}

// WithQueryTimeout bounds every store query
func WithQueryTimeout(d time.Duration) Option {
	return func(c *Calculator) {
		c.queryTimeout = d
	}
}

// NewCalculator creates a new Calculator over the given stores
func NewCalculator(evidence store.EvidenceStore, metrics store.MetricStore, opts ...Option) *Calculator {
	c := &Calculator{
		evidence:   evidence,
		metrics:    metrics,
		logger:     logrus.New(),
		now:        time.Now,
		baselineKg: DefaultBaselineKg,
		windowDays: DefaultWindowDays,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Calculator) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.queryTimeout > 0 {
		return context.WithTimeout(ctx, c.queryTimeout)
	}
	return context.WithCancel(ctx)
}
