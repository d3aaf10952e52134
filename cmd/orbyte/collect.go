package orbyte

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Tsahi-Elkayam/orbyte/pkg/evidence"
	"github.com/Tsahi-Elkayam/orbyte/pkg/providers"
	"github.com/Tsahi-Elkayam/orbyte/pkg/types"
)

// CollectOptions holds options for the collect command
type CollectOptions struct {
	Regions       []string
	ResourceTypes []string
	Tags          []string
	Status        []string
}

// NewCollectCommand creates the collect command
func NewCollectCommand(logger *logrus.Logger) *cobra.Command {
	opts := &CollectOptions{}

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Record compliance evidence from cloud providers",
		Long: `Discover resources across the enabled cloud providers and record one evidence
record per applicable control for each resource.

A provider that fails is reported and skipped; evidence from the others is kept.

Examples:
  # Collect from every enabled provider
  orbyte collect

  # Only buckets in two regions
  orbyte collect --type s3 --region us-east-1,eu-west-1

  # Only production resources
  orbyte collect --tag Environment=prod`,
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := parseCollectFilters(opts)
			if err != nil {
				return fmt.Errorf("failed to parse filters: %w", err)
			}
			logger.Debugf("Using filters: %+v", filters)

			cfg := GetGlobalConfig()
			if cfg != nil && !cfg.HasEnabledProviders() {
				fmt.Fprintf(cmd.OutOrStdout(), "⚠️  No cloud providers are enabled in configuration.\n")
				fmt.Fprintf(cmd.OutOrStdout(), "💡 Run 'orbyte config init' to create a configuration file,\n")
				fmt.Fprintf(cmd.OutOrStdout(), "   or set AWS_PROFILE environment variable to use AWS.\n")
				return nil
			}

			a, err := newApp(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.Collector(cmd.Context()).Collect(cmd.Context(), filters)
			if err != nil {
				return fmt.Errorf("failed to collect evidence: %w", err)
			}

			return render(cmd.OutOrStdout(), output, summary, func(w io.Writer) error {
				printCollectSummary(w, summary)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Regions, "region", "r", []string{},
		"Regions to query (comma-separated)")
	cmd.Flags().StringSliceVarP(&opts.ResourceTypes, "type", "t", []string{},
		"Resource types to filter (ec2,s3,iam,rds)")
	cmd.Flags().StringSliceVar(&opts.Tags, "tag", []string{},
		"Tags to filter by (format: key=value)")
	cmd.Flags().StringSliceVarP(&opts.Status, "status", "s", []string{},
		"Resource states to filter by (running,available,...)")

	return cmd
}

// NewProvidersCommand creates the providers command
func NewProvidersCommand(logger *logrus.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List enabled cloud providers and their actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer a.Close()

			info := a.Registry(cmd.Context()).GetProviderInfo()
			return render(cmd.OutOrStdout(), output, info, func(w io.Writer) error {
				printProviders(w, info)
				return nil
			})
		},
	}

	return cmd
}

// parseCollectFilters parses command line options into resource filters
func parseCollectFilters(opts *CollectOptions) (types.ResourceFilters, error) {
	filters := types.ResourceFilters{
		Regions:       opts.Regions,
		ResourceTypes: opts.ResourceTypes,
		Status:        opts.Status,
		Tags:          make(map[string]string),
	}

	for _, tagStr := range opts.Tags {
		parts := strings.SplitN(tagStr, "=", 2)
		if len(parts) != 2 {
			return filters, fmt.Errorf("invalid tag format: %s (expected key=value)", tagStr)
		}
		filters.Tags[parts[0]] = parts[1]
	}

	return filters, nil
}

func printCollectSummary(w io.Writer, summary *evidence.CollectSummary) {
	fmt.Fprintf(w, "🔍 Queried %d provider(s): %s\n", len(summary.Providers), strings.Join(summary.Providers, ", "))
	fmt.Fprintf(w, "📦 Resources: %d\n", summary.Resources)
	fmt.Fprintf(w, "🧾 Evidence records: %d\n", summary.Records)

	if len(summary.Failed) > 0 {
		names := make([]string, 0, len(summary.Failed))
		for name := range summary.Failed {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Fprintf(w, "\n❌ Failed providers:\n")
		for _, name := range names {
			fmt.Fprintf(w, "   %s: %s\n", name, summary.Failed[name])
		}
	}
}

func printProviders(w io.Writer, info []providers.ProviderInfo) {
	if len(info) == 0 {
		fmt.Fprintf(w, "⚠️  No providers are registered\n")
		return
	}

	for _, p := range info {
		status := "⚪ not authenticated"
		if p.IsAuthenticated {
			status = "✅ authenticated"
		}
		fmt.Fprintf(w, "🔌 %s (%s)\n", p.Name, status)
		if p.Description != "" {
			fmt.Fprintf(w, "   %s\n", p.Description)
		}
		fmt.Fprintf(w, "   Resource types: %s\n", strings.Join(p.ResourceTypes, ", "))
		fmt.Fprintf(w, "   Actions: %s\n", strings.Join(p.Actions, ", "))
	}
}
