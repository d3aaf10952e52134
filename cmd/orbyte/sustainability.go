package orbyte

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Tsahi-Elkayam/orbyte/pkg/models"
)

const defaultEmissionsWindow = 30 * 24 * time.Hour

// NewSustainabilityCommand creates the sustainability command
func NewSustainabilityCommand(logger *logrus.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sustainability",
		Aliases: []string{"carbon"},
		Short:   "Emissions totals, savings opportunities and regional breakdowns",
		Long: `Report on stored energy and emissions metrics.

Examples:
  # Emissions over the last 30 days
  orbyte sustainability emissions

  # Emissions over an explicit window
  orbyte sustainability emissions --start 2024-01-01 --end 2024-01-31

  # Savings opportunities from the latest metric per resource
  orbyte sustainability opportunities

  # Share of emissions per region
  orbyte sustainability regions -o yaml`,
	}

	cmd.AddCommand(newEmissionsCommand(logger))
	cmd.AddCommand(newOpportunitiesCommand(logger))
	cmd.AddCommand(newSustainabilityScoreCommand(logger))
	cmd.AddCommand(newRegionsCommand(logger))

	return cmd
}

// EmissionsResult is the output of sustainability emissions
type EmissionsResult struct {
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`

	models.EmissionsTotals `yaml:",inline"`
}

// RegionShare is one row of sustainability regions
type RegionShare struct {
	Region  string  `json:"region" yaml:"region"`
	Percent float64 `json:"percent" yaml:"percent"`
}

func newEmissionsCommand(logger *logrus.Logger) *cobra.Command {
	var startFlag, endFlag string

	cmd := &cobra.Command{
		Use:   "emissions",
		Short: "Total energy and emissions over a time window",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := parseWindow(startFlag, endFlag, time.Now())
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer a.Close()

			totals, err := a.Calculator.CalculateEmissions(cmd.Context(), start, end)
			if err != nil {
				return fmt.Errorf("failed to calculate emissions: %w", err)
			}

			result := EmissionsResult{Start: start, End: end, EmissionsTotals: totals}
			return render(cmd.OutOrStdout(), output, result, func(w io.Writer) error {
				fmt.Fprintf(w, "🌍 Emissions %s to %s\n", start.Format(time.RFC3339), end.Format(time.RFC3339))
				fmt.Fprintf(w, "   Energy: %.2f kWh\n", totals.TotalEnergyKWh)
				fmt.Fprintf(w, "   Emissions: %.2f kg CO2e\n", totals.TotalEmissionsKg)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&startFlag, "start", "", "Window start (YYYY-MM-DD or RFC3339, default: 30 days before end)")
	cmd.Flags().StringVar(&endFlag, "end", "", "Window end (YYYY-MM-DD or RFC3339, default: now)")

	return cmd
}

func newOpportunitiesCommand(logger *logrus.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "opportunities",
		Short: "List emission savings opportunities",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer a.Close()

			opportunities, err := a.Calculator.IdentifySavingsOpportunities(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to identify savings opportunities: %w", err)
			}
			if opportunities == nil {
				opportunities = []models.SavingsOpportunity{}
			}

			return render(cmd.OutOrStdout(), output, opportunities, func(w io.Writer) error {
				printOpportunities(w, opportunities)
				return nil
			})
		},
	}

	return cmd
}

func newSustainabilityScoreCommand(logger *logrus.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Show the sustainability score (0-100)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer a.Close()

			score, err := a.Calculator.SustainabilityScore(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to calculate sustainability score: %w", err)
			}

			result := map[string]float64{"score": score}
			return render(cmd.OutOrStdout(), output, result, func(w io.Writer) error {
				fmt.Fprintf(w, "🌱 Sustainability score: %.1f / 100\n", score)
				return nil
			})
		},
	}

	return cmd
}

func newRegionsCommand(logger *logrus.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regions",
		Short: "Show each region's share of emissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer a.Close()

			shares, err := a.Calculator.RegionalEmissions(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to calculate regional emissions: %w", err)
			}

			rows := sortRegionShares(shares)
			return render(cmd.OutOrStdout(), output, rows, func(w io.Writer) error {
				printRegionShares(w, rows)
				return nil
			})
		},
	}

	return cmd
}

// parseWindow resolves the emissions window flags against now
func parseWindow(startFlag, endFlag string, now time.Time) (time.Time, time.Time, error) {
	end := now
	if endFlag != "" {
		t, err := parseTimeFlag(endFlag)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end: %w", err)
		}
		end = t
	}

	start := end.Add(-defaultEmissionsWindow)
	if startFlag != "" {
		t, err := parseTimeFlag(startFlag)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start: %w", err)
		}
		start = t
	}

	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("start %s is after end %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return start, end, nil
}

func parseTimeFlag(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s (expected YYYY-MM-DD or RFC3339)", value)
	}
	return t, nil
}

// sortRegionShares orders regions by descending share, then name
func sortRegionShares(shares map[string]float64) []RegionShare {
	rows := make([]RegionShare, 0, len(shares))
	for region, percent := range shares {
		rows = append(rows, RegionShare{Region: region, Percent: percent})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Percent != rows[j].Percent {
			return rows[i].Percent > rows[j].Percent
		}
		return rows[i].Region < rows[j].Region
	})
	return rows
}

func printOpportunities(w io.Writer, opportunities []models.SavingsOpportunity) {
	if len(opportunities) == 0 {
		fmt.Fprintf(w, "✅ No savings opportunities found\n")
		return
	}

	fmt.Fprintf(w, "%-32s %-16s %-10s %-14s %s\n", "RESOURCE", "TYPE", "SAVINGS", "REDUCTION KG", "DESCRIPTION")
	for _, o := range opportunities {
		fmt.Fprintf(w, "%-32s %-16s %-10s %-14.2f %s\n",
			truncateString(o.ResourceID, 32),
			o.Kind,
			fmt.Sprintf("%.0f%%", o.PotentialSavingsPercent),
			o.EstimatedEmissionsReductionKg,
			o.Description,
		)
	}
}

func printRegionShares(w io.Writer, rows []RegionShare) {
	if len(rows) == 0 {
		fmt.Fprintf(w, "ℹ️  No emissions recorded in the scoring window\n")
		return
	}

	fmt.Fprintf(w, "%-20s %s\n", "REGION", "SHARE")
	for _, row := range rows {
		fmt.Fprintf(w, "%-20s %.1f%%\n", row.Region, row.Percent)
	}
}

// truncateString truncates a string to maxLen characters
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
