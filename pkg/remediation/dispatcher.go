// Package remediation connects playbook steps to live cloud providers: the
// Dispatcher runs step commands and the Inspector evaluates conditions.
package remediation

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Tsahi-Elkayam/orbyte/pkg/providers"
)

// Command is a parsed step command of the form "<provider>:<action> [args...]"
type Command struct {
	Provider string
	Action   string
	Args     []string
}

// ParseCommand parses a step or rollback command
func ParseCommand(s string) (Command, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("%w: empty command", providers.ErrInvalidCommand)
	}

	provider, action, ok := strings.Cut(fields[0], ":")
	if !ok || provider == "" || action == "" {
		return Command{}, fmt.Errorf("%w: %q is not <provider>:<action>", providers.ErrInvalidCommand, fields[0])
	}

	return Command{Provider: provider, Action: action, Args: fields[1:]}, nil
}

// String returns the command in its textual form
func (c Command) String() string {
	return strings.TrimSpace(c.Provider + ":" + c.Action + " " + strings.Join(c.Args, " "))
}

// Dispatcher routes step commands to registered providers
type Dispatcher struct {
	registry *providers.PluginRegistry
	logger   *logrus.Logger
	dryRun   bool
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithDryRun validates and logs commands without performing them
func WithDryRun(enabled bool) DispatcherOption {
	return func(d *Dispatcher) {
		d.dryRun = enabled
	}
}

// WithDispatcherLogger sets the logger
func WithDispatcherLogger(logger *logrus.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher creates a Dispatcher over the given registry
func NewDispatcher(registry *providers.PluginRegistry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		logger:   logrus.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run parses and performs a command. Unknown providers and actions are rejected
// before anything is touched, in dry-run mode too.
func (d *Dispatcher) Run(ctx context.Context, command string) error {
	cmd, err := ParseCommand(command)
	if err != nil {
		return err
	}

	provider, err := d.registry.Get(cmd.Provider)
	if err != nil {
		return err
	}
	if !supports(provider, cmd.Action) {
		return fmt.Errorf("%w: %s has no action %s", providers.ErrUnsupportedOperation, cmd.Provider, cmd.Action)
	}

	log := d.logger.WithFields(logrus.Fields{
		"provider": cmd.Provider,
		"action":   cmd.Action,
		"args":     cmd.Args,
	})

	if d.dryRun {
		log.Info("Dry run, command not performed")
		return nil
	}

	log.Debug("Dispatching command")
	if err := provider.PerformAction(ctx, cmd.Action, cmd.Args); err != nil {
		return providers.NewActionError(cmd.Provider, cmd.Action, cmd.Args, err)
	}
	return nil
}

func supports(provider providers.CloudProvider, action string) bool {
	for _, a := range provider.Actions() {
		if a == action {
			return true
		}
	}
	return false
}
