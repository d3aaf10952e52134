package orbyte

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Tsahi-Elkayam/orbyte/internal/app"
	"github.com/Tsahi-Elkayam/orbyte/pkg/config"
	"github.com/Tsahi-Elkayam/orbyte/pkg/utils"
)

var (
	cfgFile string
	verbose bool
	output  string
	version = "dev" // This will be set during build

	// Global configuration instance
	globalConfig *config.Config
)

// NewRootCommand creates the root command for the Orbyte CLI
func NewRootCommand(logger *logrus.Logger) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "orbyte",
		Short: "Compliance scoring, sustainability signals and remediation playbooks",
		Long: `Orbyte scores cloud resources against compliance frameworks, estimates
carbon emissions and savings opportunities, and turns remediation advice into
playbooks it can execute against your cloud accounts.

Built-in defaults work out of the box; a config file only overrides what you change.

Configuration priority (highest to lowest):
  1. Command line flags
  2. Environment variables (ORBYTE_* or AWS_*)
  3. Configuration file (~/.orbyte.yaml)
  4. Built-in defaults`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.DefaultLoader.SetLogger(logger)

			var err error
			globalConfig, err = config.DefaultLoader.LoadConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			utils.ApplyConfig(logger, globalConfig.Logging, verbose)
			if output == "" {
				output = globalConfig.Output.Format
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			printWelcomeMessage(cmd.OutOrStdout())
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: searches for .orbyte.yaml in ., ~, /etc/orbyte)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"verbose output (overrides config log level)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "",
		"Output format (table, json, yaml; default from config)")

	// Add subcommands
	rootCmd.AddCommand(NewComplianceCommand(logger))
	rootCmd.AddCommand(NewSustainabilityCommand(logger))
	rootCmd.AddCommand(NewPlaybookCommand(logger))
	rootCmd.AddCommand(NewCollectCommand(logger))
	rootCmd.AddCommand(NewProvidersCommand(logger))
	rootCmd.AddCommand(NewSeedCommand(logger))
	rootCmd.AddCommand(NewServeCommand(logger))
	rootCmd.AddCommand(NewConfigCommand(logger))

	return rootCmd
}

// printWelcomeMessage prints a helpful welcome message
func printWelcomeMessage(w io.Writer) {
	fmt.Fprintf(w, `
Orbyte %s

QUICK START:
   orbyte seed                                  # Load sample evidence and metrics
   orbyte compliance score NIST_800_53          # Framework compliance percentage
   orbyte compliance gaps SOC_2                 # Controls with open gaps
   orbyte sustainability opportunities          # Emission savings opportunities

REMEDIATION:
   orbyte collect                               # Record evidence from cloud providers
   orbyte playbook build --issue "..." --category COMPLIANCE --save pb.yaml
   orbyte playbook execute pb.yaml --dry-run

CONFIGURATION:
   orbyte config show                           # View current config
   orbyte config init                           # Create config file
   orbyte serve                                 # Start the HTTP API

`, version)

	if globalConfig != nil {
		fmt.Fprintf(w, "CURRENT STATUS:\n")
		fmt.Fprintf(w, "   Store: %s (%s)\n", globalConfig.Store.Driver, globalConfig.Store.Path)
		fmt.Fprintf(w, "   Producer: %s\n", globalConfig.Producer.Type)
		fmt.Fprintf(w, "   Rollback mode: %s\n", globalConfig.Executor.RollbackMode)
		if config.DefaultLoader.ConfigExists(cfgFile) {
			fmt.Fprintf(w, "   Config file: found\n")
		} else {
			fmt.Fprintf(w, "   Config file: none (using built-in defaults)\n")
		}
	}
	fmt.Fprintln(w)
}

// GetGlobalConfig returns the global configuration instance
func GetGlobalConfig() *config.Config {
	return globalConfig
}

// newApp wires the application from the loaded configuration
func newApp(ctx context.Context, logger *logrus.Logger, opts ...app.Option) (*app.App, error) {
	cfg := GetGlobalConfig()
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return app.New(ctx, cfg, logger, opts...)
}

// JSONEncoder provides JSON encoding
type JSONEncoder struct {
	encoder *json.Encoder
}

// NewJSONEncoder creates a new JSON encoder
func NewJSONEncoder(w io.Writer) *JSONEncoder {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return &JSONEncoder{encoder: encoder}
}

// Encode encodes the given value as JSON
func (e *JSONEncoder) Encode(v interface{}) error {
	return e.encoder.Encode(v)
}

// YAMLEncoder provides YAML encoding
type YAMLEncoder struct {
	encoder *yaml.Encoder
}

// NewYAMLEncoder creates a new YAML encoder
func NewYAMLEncoder(w io.Writer) *YAMLEncoder {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	return &YAMLEncoder{encoder: encoder}
}

// Encode encodes the given value as YAML
func (e *YAMLEncoder) Encode(v interface{}) error {
	if err := e.encoder.Encode(v); err != nil {
		return err
	}
	return e.encoder.Close()
}

// render writes v as JSON or YAML, or calls table for the table format
func render(w io.Writer, format string, v interface{}, table func(io.Writer) error) error {
	switch strings.ToLower(format) {
	case "json":
		return NewJSONEncoder(w).Encode(v)
	case "yaml":
		return NewYAMLEncoder(w).Encode(v)
	case "table", "":
		return table(w)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}
