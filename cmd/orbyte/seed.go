package orbyte

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Tsahi-Elkayam/orbyte/pkg/evidence"
)

// SeedResult is the output of seed
type SeedResult struct {
	Evidence int `json:"evidence" yaml:"evidence"`
	Metrics  int `json:"metrics" yaml:"metrics"`
}

// NewSeedCommand creates the seed command
func NewSeedCommand(logger *logrus.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load sample evidence and metrics into the store",
		Long: `Load a small sample data set into the configured store: evidence for three
resources across all frameworks and one hour-old metric per sample region.

Seeding twice appends a second copy; scores use the latest record so they are unchanged.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer a.Close()

			records, metrics, err := evidence.Seed(cmd.Context(), a.Store, a.Store, time.Now())
			if err != nil {
				return fmt.Errorf("failed to seed store: %w", err)
			}
			logger.WithFields(logrus.Fields{"evidence": records, "metrics": metrics}).Debug("Seeded store")

			result := SeedResult{Evidence: records, Metrics: metrics}
			return render(cmd.OutOrStdout(), output, result, func(w io.Writer) error {
				fmt.Fprintf(w, "✅ Seeded %d evidence records and %d metrics into %s store\n",
					records, metrics, a.Config.Store.Driver)
				return nil
			})
		},
	}

	return cmd
}
