package playbook

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Tsahi-Elkayam/orbyte/pkg/models"
	"github.com/Tsahi-Elkayam/orbyte/pkg/producer"
)

// descriptionLimit is the number of characters of prose kept as the description
const descriptionLimit = 200

// BuildRequest carries everything needed to build a playbook
type BuildRequest struct {
	Issue          string                  `json:"issue"`
	Category       models.PlaybookCategory `json:"category"`
	Context        map[string]interface{}  `json:"context,omitempty"`
	Preconditions  []string                `json:"preconditions,omitempty"`
	Postconditions []string                `json:"postconditions,omitempty"`
}

// Builder turns remediation prose into a structured Playbook
type Builder struct {
	producer producer.TextProducer
	parser   StepParser
	ids      IDGenerator
	logger   *logrus.Logger
	now      func() time.Time
	timeout  time.Duration
}

// BuilderOption configures a Builder
type BuilderOption func(*Builder)

// WithParser overrides the step parsing strategy
func WithParser(parser StepParser) BuilderOption {
	return func(b *Builder) {
		if parser != nil {
			b.parser = parser
		}
	}
}

// WithIDGenerator overrides the playbook identifier source
func WithIDGenerator(ids IDGenerator) BuilderOption {
	return func(b *Builder) {
		if ids != nil {
			b.ids = ids
		}
	}
}

// WithBuilderLogger sets the logger
func WithBuilderLogger(logger *logrus.Logger) BuilderOption {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithBuilderClock overrides the created-at timestamp source (tests).
func WithBuilderClock(clock func() time.Time) BuilderOption {
	return func(b *Builder) {
		if clock != nil {
			b.now = clock
		}
	}
}

// WithGenerateTimeout bounds the call to the text producer
func WithGenerateTimeout(d time.Duration) BuilderOption {
	return func(b *Builder) {
		b.timeout = d
	}
}

// NewBuilder creates a new Builder
func NewBuilder(p producer.TextProducer, opts ...BuilderOption) *Builder {
	b := &Builder{
		producer: p,
		parser:   NumberedLineParser{},
		ids:      UUIDGenerator{},
		logger:   logrus.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build obtains remediation prose for the issue and parses it into a playbook.
// A producer failure is returned as ErrProducerUnavailable and no playbook is built.
func (b *Builder) Build(ctx context.Context, req BuildRequest) (*models.Playbook, error) {
	category, err := models.ParseCategory(string(req.Category))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, req.Category)
	}

	gctx := ctx
	if b.timeout > 0 {
		var cancel context.CancelFunc
		gctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	prose, err := b.producer.Generate(gctx, req.Issue, req.Context)
	if err != nil {
		b.logger.WithError(err).WithField("issue", req.Issue).Warn("Remediation text producer failed")
		return nil, fmt.Errorf("%w: %w", ErrProducerUnavailable, err)
	}

	steps := b.parser.Parse(prose)
	for i := range steps {
		steps[i].ID = fmt.Sprintf("step-%d", i+1)
	}
	if steps == nil {
		steps = []models.PlaybookStep{}
	}

	pb := &models.Playbook{
		ID:             b.ids.NewID(),
		Name:           "Remediation for: " + req.Issue,
		Description:    truncateRunes(prose, descriptionLimit),
		Category:       category,
		Steps:          steps,
		Preconditions:  copyStrings(req.Preconditions),
		Postconditions: copyStrings(req.Postconditions),
		CreatedAt:      b.now(),
	}

	b.logger.WithFields(logrus.Fields{
		"playbook_id": pb.ID,
		"category":    pb.Category,
		"steps":       len(pb.Steps),
	}).Info("Built remediation playbook")

	return pb, nil
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func copyStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
