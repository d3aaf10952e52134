package remediation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/sirupsen/logrus"

	"github.com/Tsahi-Elkayam/orbyte/pkg/models"
	"github.com/Tsahi-Elkayam/orbyte/pkg/providers"
	"github.com/Tsahi-Elkayam/orbyte/pkg/types"
)

// ErrScoringUnavailable is returned by score functions when no Scorer is configured
var ErrScoringUnavailable = errors.New("scoring not configured")

// Scorer is the part of the scoring calculator that conditions can query
type Scorer interface {
	ComplianceScore(ctx context.Context, framework models.Framework, resourceID string) (float64, error)
	IdentifyGaps(ctx context.Context, framework models.Framework) ([]string, error)
	SustainabilityScore(ctx context.Context) (float64, error)
}

// Inspector evaluates precondition, validation and postcondition expressions against
// live provider state and stored scores. Expressions must produce a boolean, e.g.
//
//	state("aws:ec2/i-0abc") == "stopped"
//	encrypted("aws:s3/logs") && compliance("NIST_800_53") >= 80
type Inspector struct {
	registry *providers.PluginRegistry
	scorer   Scorer
	logger   *logrus.Logger
	programs sync.Map // expression -> *vm.Program
}

// InspectorOption configures an Inspector
type InspectorOption func(*Inspector)

// WithScorer enables the compliance, gaps and sustainability functions
func WithScorer(scorer Scorer) InspectorOption {
	return func(i *Inspector) {
		i.scorer = scorer
	}
}

// WithInspectorLogger sets the logger
func WithInspectorLogger(logger *logrus.Logger) InspectorOption {
	return func(i *Inspector) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// NewInspector creates an Inspector over the given registry
func NewInspector(registry *providers.PluginRegistry, opts ...InspectorOption) *Inspector {
	i := &Inspector{
		registry: registry,
		logger:   logrus.New(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Check compiles (once per distinct expression) and evaluates an expression
func (i *Inspector) Check(ctx context.Context, expression string) (bool, error) {
	if strings.TrimSpace(expression) == "" {
		return false, fmt.Errorf("empty condition")
	}

	program, err := i.compile(expression)
	if err != nil {
		return false, err
	}

	out, err := expr.Run(program, i.env(ctx))
	if err != nil {
		return false, fmt.Errorf("evaluate condition %q: %w", expression, err)
	}

	result, _ := out.(bool)
	i.logger.WithFields(logrus.Fields{
		"condition": expression,
		"result":    result,
	}).Debug("Condition evaluated")
	return result, nil
}

// Validate reports whether an expression compiles to a boolean, without evaluating it
func (i *Inspector) Validate(expression string) error {
	_, err := i.compile(expression)
	return err
}

func (i *Inspector) compile(expression string) (*vm.Program, error) {
	if cached, ok := i.programs.Load(expression); ok {
		return cached.(*vm.Program), nil
	}

	program, err := expr.Compile(expression, expr.Env(i.env(context.Background())), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile condition %q: %w", expression, err)
	}
	i.programs.Store(expression, program)
	return program, nil
}

// env binds the condition functions to the caller's context
func (i *Inspector) env(ctx context.Context) map[string]interface{} {
	return map[string]interface{}{
		"exists": func(ref string) (bool, error) {
			_, err := i.resource(ctx, ref)
			if providers.IsNotFound(err) {
				return false, nil
			}
			return err == nil, err
		},
		"state": func(ref string) (string, error) {
			r, err := i.resource(ctx, ref)
			if err != nil {
				return "", err
			}
			return r.Status.State, nil
		},
		"healthy": func(ref string) (bool, error) {
			r, err := i.resource(ctx, ref)
			if err != nil {
				return false, err
			}
			return r.Status.Health == string(models.HealthHealthy), nil
		},
		"encrypted": func(ref string) (bool, error) {
			r, err := i.resource(ctx, ref)
			if err != nil {
				return false, err
			}
			return r.BoolMetadata("encryption_enabled"), nil
		},
		"fact": func(ref, key string) (interface{}, error) {
			r, err := i.resource(ctx, ref)
			if err != nil {
				return nil, err
			}
			value, _ := r.GetMetadata(key)
			return value, nil
		},
		"compliance": func(framework string) (float64, error) {
			return i.complianceScore(ctx, framework, "")
		},
		"resource_compliance": func(framework, resourceID string) (float64, error) {
			return i.complianceScore(ctx, framework, resourceID)
		},
		"gaps": func(framework string) ([]string, error) {
			if i.scorer == nil {
				return nil, ErrScoringUnavailable
			}
			fw, err := models.ParseFramework(framework)
			if err != nil {
				return nil, err
			}
			return i.scorer.IdentifyGaps(ctx, fw)
		},
		"sustainability": func() (float64, error) {
			if i.scorer == nil {
				return 0, ErrScoringUnavailable
			}
			return i.scorer.SustainabilityScore(ctx)
		},
	}
}

func (i *Inspector) resource(ctx context.Context, s string) (*models.Resource, error) {
	ref, err := types.ParseResourceRef(s)
	if err != nil {
		return nil, err
	}
	provider, err := i.registry.Get(ref.Provider)
	if err != nil {
		return nil, err
	}
	return provider.GetResource(ctx, ref)
}

func (i *Inspector) complianceScore(ctx context.Context, framework, resourceID string) (float64, error) {
	if i.scorer == nil {
		return 0, ErrScoringUnavailable
	}
	fw, err := models.ParseFramework(framework)
	if err != nil {
		return 0, err
	}
	return i.scorer.ComplianceScore(ctx, fw, resourceID)
}
