package orbyte

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Tsahi-Elkayam/orbyte/pkg/models"
)

// NewComplianceCommand creates the compliance command
func NewComplianceCommand(logger *logrus.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compliance",
		Short: "Score stored evidence against compliance frameworks",
		Long: `Score stored evidence against NIST_800_53, SOC_2 or ISO_27001.

Scores use the latest evidence record per resource and control.

Examples:
  # Framework-wide score
  orbyte compliance score NIST_800_53

  # Score a single resource
  orbyte compliance score SOC_2 --resource-id aws:object_storage/logs

  # Controls with at least one open gap
  orbyte compliance gaps ISO_27001 -o json`,
	}

	cmd.AddCommand(newComplianceScoreCommand(logger))
	cmd.AddCommand(newComplianceGapsCommand(logger))

	return cmd
}

// ComplianceScoreResult is the output of compliance score
type ComplianceScoreResult struct {
	Framework  models.Framework `json:"framework" yaml:"framework"`
	ResourceID string           `json:"resource_id,omitempty" yaml:"resource_id,omitempty"`
	Score      float64          `json:"score" yaml:"score"`
}

// ComplianceGapsResult is the output of compliance gaps
type ComplianceGapsResult struct {
	Framework models.Framework `json:"framework" yaml:"framework"`
	Gaps      []string         `json:"gaps" yaml:"gaps"`
}

func newComplianceScoreCommand(logger *logrus.Logger) *cobra.Command {
	var resourceID string

	cmd := &cobra.Command{
		Use:   "score FRAMEWORK",
		Short: "Show the compliance percentage for a framework",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			framework, err := models.ParseFramework(args[0])
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer a.Close()

			score, err := a.Calculator.ComplianceScore(cmd.Context(), framework, resourceID)
			if err != nil {
				return fmt.Errorf("failed to score %s: %w", framework, err)
			}

			result := ComplianceScoreResult{Framework: framework, ResourceID: resourceID, Score: score}
			return render(cmd.OutOrStdout(), output, result, func(w io.Writer) error {
				printComplianceScore(w, result)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&resourceID, "resource-id", "", "Restrict the score to one resource")

	return cmd
}

func newComplianceGapsCommand(logger *logrus.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gaps FRAMEWORK",
		Short: "List controls with open gaps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			framework, err := models.ParseFramework(args[0])
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer a.Close()

			gaps, err := a.Calculator.IdentifyGaps(cmd.Context(), framework)
			if err != nil {
				return fmt.Errorf("failed to identify gaps for %s: %w", framework, err)
			}
			if gaps == nil {
				gaps = []string{}
			}

			result := ComplianceGapsResult{Framework: framework, Gaps: gaps}
			return render(cmd.OutOrStdout(), output, result, func(w io.Writer) error {
				printComplianceGaps(w, result)
				return nil
			})
		},
	}

	return cmd
}

func printComplianceScore(w io.Writer, result ComplianceScoreResult) {
	scope := "all resources"
	if result.ResourceID != "" {
		scope = result.ResourceID
	}
	fmt.Fprintf(w, "📋 %s compliance (%s): %.1f%%\n", result.Framework, scope, result.Score)
}

func printComplianceGaps(w io.Writer, result ComplianceGapsResult) {
	if len(result.Gaps) == 0 {
		fmt.Fprintf(w, "✅ No open gaps for %s\n", result.Framework)
		return
	}
	fmt.Fprintf(w, "⚠️  %d control(s) with open gaps in %s:\n", len(result.Gaps), result.Framework)
	for _, gap := range result.Gaps {
		fmt.Fprintf(w, "   • %s\n", gap)
	}
}
