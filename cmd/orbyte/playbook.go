package orbyte

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Tsahi-Elkayam/orbyte/pkg/models"
	"github.com/Tsahi-Elkayam/orbyte/pkg/playbook"
)

// BuildOptions holds options for the playbook build command
type BuildOptions struct {
	Issue          string
	Category       string
	Context        []string
	Preconditions  []string
	Postconditions []string
	Save           string
}

// NewPlaybookCommand creates the playbook command
func NewPlaybookCommand(logger *logrus.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "playbook",
		Short: "Build and execute remediation playbooks",
		Long: `Build remediation playbooks from an issue description and execute them
against the configured cloud providers.

Step commands use the form "<provider>:<action> args...", for example
"aws:s3-enable-encryption my-bucket". Conditions are expressions such as
encrypted("aws:s3/my-bucket") or resource_compliance("NIST_800_53", "my-bucket") >= 80.

Examples:
  # Build a playbook and save it for review
  orbyte playbook build --issue "Bucket logs is unencrypted" --category COMPLIANCE \
    --context bucket=logs --precondition 'exists("aws:s3/logs")' \
    --postcondition 'encrypted("aws:s3/logs")' --save logs.yaml

  # Walk the playbook without touching the account
  orbyte playbook execute logs.yaml --dry-run

  # Execute, compensating completed steps on failure
  orbyte playbook execute logs.yaml --rollback-mode compensate`,
	}

	cmd.AddCommand(newPlaybookBuildCommand(logger))
	cmd.AddCommand(newPlaybookExecuteCommand(logger))

	return cmd
}

func newPlaybookBuildCommand(logger *logrus.Logger) *cobra.Command {
	opts := &BuildOptions{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a playbook from an issue description",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := parseBuildRequest(opts)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer a.Close()

			builder, err := a.Builder()
			if err != nil {
				return err
			}

			pb, err := builder.Build(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("failed to build playbook: %w", err)
			}

			if opts.Save != "" {
				if err := savePlaybook(pb, opts.Save); err != nil {
					return err
				}
				logger.WithFields(logrus.Fields{"playbook": pb.ID, "path": opts.Save}).Info("Saved playbook")
			}

			return render(cmd.OutOrStdout(), output, pb, func(w io.Writer) error {
				printPlaybook(w, pb)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.Issue, "issue", "", "Issue to remediate (required)")
	cmd.Flags().StringVar(&opts.Category, "category", string(models.CategoryCompliance),
		"Playbook category (COMPLIANCE, SUSTAINABILITY, SECURITY)")
	cmd.Flags().StringSliceVar(&opts.Context, "context", []string{},
		"Context for the remediation text (format: key=value)")
	cmd.Flags().StringArrayVar(&opts.Preconditions, "precondition", []string{},
		"Condition that must hold before execution (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Postconditions, "postcondition", []string{},
		"Condition that must hold after execution (repeatable)")
	cmd.Flags().StringVar(&opts.Save, "save", "", "Write the playbook to this file (.json or .yaml)")
	_ = cmd.MarkFlagRequired("issue")

	return cmd
}

func newPlaybookExecuteCommand(logger *logrus.Logger) *cobra.Command {
	var dryRun bool
	var rollbackMode string

	cmd := &cobra.Command{
		Use:   "execute PLAYBOOK_FILE",
		Short: "Execute a saved playbook",
		Long: `Execute a saved playbook. The command exits non-zero when the playbook fails;
the execution report is printed either way.

Interrupting with Ctrl-C stops before the next step; the step in flight finishes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pb, err := loadPlaybook(args[0])
			if err != nil {
				return err
			}

			cfg := GetGlobalConfig()
			if cfg == nil {
				return fmt.Errorf("configuration not loaded")
			}
			if cmd.Flags().Changed("dry-run") {
				cfg.Executor.DryRun = dryRun
			}
			if rollbackMode != "" {
				if _, err := playbook.ParseRollbackMode(rollbackMode); err != nil {
					return err
				}
				cfg.Executor.RollbackMode = rollbackMode
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			executor, err := a.Executor(ctx)
			if err != nil {
				return err
			}

			report := executor.Execute(ctx, pb)
			if err := render(cmd.OutOrStdout(), output, report, func(w io.Writer) error {
				printReport(w, report, cfg.Executor.DryRun)
				return nil
			}); err != nil {
				return err
			}

			if !report.Success {
				return fmt.Errorf("playbook %s failed in state %s", pb.ID, report.State)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log provider actions instead of performing them")
	cmd.Flags().StringVar(&rollbackMode, "rollback-mode", "", "Rollback mode (local, compensate; default from config)")

	return cmd
}

// parseBuildRequest parses command line options into a build request
func parseBuildRequest(opts *BuildOptions) (playbook.BuildRequest, error) {
	req := playbook.BuildRequest{
		Issue:          strings.TrimSpace(opts.Issue),
		Preconditions:  opts.Preconditions,
		Postconditions: opts.Postconditions,
	}
	if req.Issue == "" {
		return req, fmt.Errorf("issue must not be empty")
	}

	category, err := models.ParseCategory(opts.Category)
	if err != nil {
		return req, err
	}
	req.Category = category

	if len(opts.Context) > 0 {
		req.Context = make(map[string]interface{}, len(opts.Context))
		for _, pair := range opts.Context {
			parts := strings.SplitN(pair, "=", 2)
			if len(parts) != 2 || parts[0] == "" {
				return req, fmt.Errorf("invalid context format: %s (expected key=value)", pair)
			}
			req.Context[parts[0]] = parts[1]
		}
	}

	return req, nil
}

// loadPlaybook reads a playbook from a JSON or YAML file
func loadPlaybook(path string) (*models.Playbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read playbook: %w", err)
	}

	var pb models.Playbook
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &pb)
	default:
		err = yaml.Unmarshal(data, &pb)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse playbook %s: %w", path, err)
	}
	return &pb, nil
}

// savePlaybook writes a playbook as JSON or YAML depending on the file extension
func savePlaybook(pb *models.Playbook, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = NewJSONEncoder(f).Encode(pb)
	default:
		err = NewYAMLEncoder(f).Encode(pb)
	}
	if err != nil {
		return fmt.Errorf("failed to write playbook: %w", err)
	}
	return nil
}

func printPlaybook(w io.Writer, pb *models.Playbook) {
	fmt.Fprintf(w, "📘 %s\n", pb.Name)
	fmt.Fprintf(w, "   ID: %s\n", pb.ID)
	fmt.Fprintf(w, "   Category: %s\n", pb.Category)
	if pb.Description != "" {
		fmt.Fprintf(w, "   Description: %s\n", pb.Description)
	}

	if len(pb.Preconditions) > 0 {
		fmt.Fprintf(w, "\n🔒 Preconditions:\n")
		for _, c := range pb.Preconditions {
			fmt.Fprintf(w, "   • %s\n", c)
		}
	}

	fmt.Fprintf(w, "\n🪜 Steps:\n")
	for _, step := range pb.Steps {
		fmt.Fprintf(w, "   %s  %s\n", step.ID, step.Action)
		if step.Command != "" {
			fmt.Fprintf(w, "        command:  %s\n", step.Command)
		} else {
			fmt.Fprintf(w, "        (manual, no command)\n")
		}
		if step.Validation != "" {
			fmt.Fprintf(w, "        validate: %s\n", step.Validation)
		}
		if step.Rollback != "" {
			fmt.Fprintf(w, "        rollback: %s\n", step.Rollback)
		}
	}

	if len(pb.Postconditions) > 0 {
		fmt.Fprintf(w, "\n🎯 Postconditions:\n")
		for _, c := range pb.Postconditions {
			fmt.Fprintf(w, "   • %s\n", c)
		}
	}
}

func printReport(w io.Writer, report models.ExecutionReport, dryRun bool) {
	status := "✅ Playbook completed"
	if !report.Success {
		status = "❌ Playbook failed"
	}
	if dryRun {
		status += " (dry run)"
	}
	fmt.Fprintf(w, "%s: %s\n", status, report.PlaybookID)
	fmt.Fprintf(w, "   State: %s\n", report.State)
	fmt.Fprintf(w, "   Steps completed: %d\n", report.StepsCompleted)
	fmt.Fprintf(w, "   Duration: %s\n", report.FinishedAt.Sub(report.StartedAt))

	if len(report.Steps) > 0 {
		fmt.Fprintf(w, "\n%-12s %-12s %-12s %s\n", "STEP", "OUTCOME", "DURATION", "MESSAGE")
		for _, step := range report.Steps {
			fmt.Fprintf(w, "%-12s %-12s %-12s %s\n", step.StepID, step.Outcome, step.Duration, step.Message)
		}
	}

	if len(report.RolledBack) > 0 {
		fmt.Fprintf(w, "\n↩️  Rolled back: %s\n", strings.Join(report.RolledBack, ", "))
	}

	if len(report.Errors) > 0 {
		fmt.Fprintf(w, "\n⚠️  Errors:\n")
		for _, e := range report.Errors {
			fmt.Fprintf(w, "   • %s\n", e)
		}
	}
}
