package orbyte

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Tsahi-Elkayam/orbyte/pkg/config"
)

// NewConfigCommand creates the config management command
func NewConfigCommand(logger *logrus.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage Orbyte configuration",
		Long: `Manage Orbyte configuration files and settings.

Orbyte uses built-in defaults that work out of the box. You only need to
create a config file if you want to override specific settings.

Examples:
  # Show current effective configuration
  orbyte config show

  # Show where Orbyte looks for config files
  orbyte config path

  # Generate an example config file to customize
  orbyte config init

  # Validate your current configuration
  orbyte config validate`,
	}

	cmd.AddCommand(NewConfigShowCommand(logger))
	cmd.AddCommand(NewConfigInitCommand(logger))
	cmd.AddCommand(NewConfigPathCommand(logger))
	cmd.AddCommand(NewConfigValidateCommand(logger))

	return cmd
}

// NewConfigShowCommand shows the current effective configuration
func NewConfigShowCommand(logger *logrus.Logger) *cobra.Command {
	var showDefaults bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show current effective configuration",
		Long: `Show the configuration Orbyte is using after merging built-in defaults,
the configuration file and environment variable overrides.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := GetGlobalConfig()
			if cfg == nil {
				return fmt.Errorf("configuration not loaded")
			}
			return render(cmd.OutOrStdout(), output, cfg, func(w io.Writer) error {
				showConfigTable(w, cfg, showDefaults)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&showDefaults, "show-defaults", false, "Show all settings including defaults")

	return cmd
}

// NewConfigInitCommand creates a new configuration file
func NewConfigInitCommand(logger *logrus.Logger) *cobra.Command {
	var configFile string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate an example configuration file",
		Long: `Generate an example configuration file with common settings.

All settings are optional; Orbyte uses defaults for anything not specified.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if configFile == "" {
				configFile = config.DefaultLoader.GetConfigPath()
			}

			if !force && fileExists(configFile) {
				fmt.Fprintf(w, "⚠️  Config file already exists: %s\n", configFile)
				fmt.Fprintf(w, "Use --force to overwrite, or specify a different path with --file\n")
				return nil
			}

			if err := config.DefaultLoader.GenerateExampleConfig(configFile); err != nil {
				return fmt.Errorf("failed to generate config file: %w", err)
			}
			logger.WithField("path", configFile).Debug("Wrote example configuration")

			fmt.Fprintf(w, "✅ Generated example configuration file: %s\n\n", configFile)
			fmt.Fprintf(w, "🎯 NEXT STEPS:\n")
			fmt.Fprintf(w, "   1. Uncomment and modify only the settings you want to change\n")
			fmt.Fprintf(w, "   2. Point producer.type at your remediation text source\n")
			fmt.Fprintf(w, "   3. Run 'orbyte config validate' to check for errors\n")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "file", "f", "", "Config file path (default: ~/.orbyte.yaml)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")

	return cmd
}

// NewConfigPathCommand shows configuration file paths and search locations
func NewConfigPathCommand(logger *logrus.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Show configuration file locations",
		Long:  `Show where Orbyte looks for configuration files and which ones exist.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "🗂️  Orbyte Configuration Paths\n")
			fmt.Fprintf(w, "==============================\n\n")
			fmt.Fprintf(w, "📝 Default config path: %s\n\n", config.DefaultLoader.GetConfigPath())

			fmt.Fprintf(w, "🔍 Search locations (in order of priority):\n")
			foundAny := false
			i := 1
			for _, dir := range config.DefaultLoader.ConfigPaths() {
				for _, name := range []string{".orbyte.yaml", ".orbyte.yml"} {
					path := filepath.Join(dir, name)
					status := "❌ not found"
					if fileExists(path) {
						status = "✅ found"
						foundAny = true
					}
					fmt.Fprintf(w, "   %d. %s\n      %s\n", i, path, status)
					i++
				}
			}

			fmt.Fprintln(w)
			if !foundAny {
				fmt.Fprintf(w, "💡 No config file found - Orbyte is using built-in defaults.\n")
				fmt.Fprintf(w, "   Run 'orbyte config init' to create one.\n")
			} else {
				fmt.Fprintf(w, "✅ Orbyte uses the first file found in the order above.\n")
			}

			fmt.Fprintf(w, "\n🔧 Environment variables that override config:\n")
			for _, name := range []string{
				"AWS_PROFILE",
				"AWS_REGION",
				"ORBYTE_STORE_DRIVER",
				"ORBYTE_STORE_PATH",
				"ORBYTE_PRODUCER_TYPE",
				"ORBYTE_PRODUCER_ENDPOINT",
				"ORBYTE_EXECUTOR_ROLLBACK_MODE",
				"ORBYTE_EXECUTOR_DRY_RUN",
				"ORBYTE_OUTPUT_FORMAT",
				"ORBYTE_LOG_LEVEL",
			} {
				status := "not set"
				if value := os.Getenv(name); value != "" {
					status = "= " + value
				}
				fmt.Fprintf(w, "   %s (%s)\n", name, status)
			}

			return nil
		},
	}

	return cmd
}

// NewConfigValidateCommand validates the configuration
func NewConfigValidateCommand(logger *logrus.Logger) *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		Long:  `Validate the current configuration for errors and warnings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if configFile == "" {
				configFile = cfgFile
			}
			cfg, err := config.DefaultLoader.LoadConfig(configFile)
			if err != nil {
				fmt.Fprintf(w, "❌ Configuration validation failed:\n   %v\n", err)
				return err
			}

			fmt.Fprintf(w, "✅ Configuration is valid!\n\n")

			fmt.Fprintf(w, "🔌 Provider Status:\n")
			for name, providerConfig := range cfg.Providers {
				if providerConfig.IsEnabled() {
					regions := providerConfig.GetRegions()
					fmt.Fprintf(w, "   ✅ %s: enabled (%d regions: %v)\n", name, len(regions), regions)
				} else {
					fmt.Fprintf(w, "   ⚪ %s: disabled\n", name)
				}
			}

			fmt.Fprintf(w, "\n⚙️  Configuration Summary:\n")
			fmt.Fprintf(w, "   💾 Store: %s (%s)\n", cfg.Store.Driver, cfg.Store.Path)
			fmt.Fprintf(w, "   ✍️  Producer: %s\n", cfg.Producer.Type)
			fmt.Fprintf(w, "   ▶️  Executor: %s rollback, %s parser, dry run %v\n",
				cfg.Executor.RollbackMode, cfg.Executor.Parser, cfg.Executor.DryRun)
			fmt.Fprintf(w, "   📝 Logging: %s level, %s format\n", cfg.Logging.Level, cfg.Logging.Format)

			if warnings := validateConfigWarnings(cfg); len(warnings) > 0 {
				fmt.Fprintf(w, "\n⚠️  Warnings:\n")
				for _, warning := range warnings {
					fmt.Fprintf(w, "   • %s\n", warning)
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "file", "f", "", "Config file to validate (default: auto-detect)")

	return cmd
}

// showConfigTable displays configuration in a readable format
func showConfigTable(w io.Writer, cfg *config.Config, showDefaults bool) {
	fmt.Fprintf(w, "🌍 Orbyte Configuration\n")
	fmt.Fprintf(w, "=======================\n\n")

	fmt.Fprintf(w, "🔌 Providers:\n")
	hasEnabledProvider := false
	for name, providerConfig := range cfg.Providers {
		status := "⚪ disabled"
		if providerConfig.IsEnabled() {
			status = "✅ enabled"
			hasEnabledProvider = true
		}
		fmt.Fprintf(w, "   %s: %s\n", name, status)

		if showDefaults || providerConfig.IsEnabled() {
			if awsConfig, ok := providerConfig.(*config.AWSConfig); ok {
				fmt.Fprintf(w, "      Profile: %s\n", awsConfig.Profile)
				fmt.Fprintf(w, "      Region: %s\n", awsConfig.Region)
				if len(awsConfig.Regions) > 0 {
					fmt.Fprintf(w, "      Regions: %v\n", awsConfig.Regions)
				}
				if awsConfig.RoleARN != "" {
					fmt.Fprintf(w, "      Role ARN: %s\n", awsConfig.RoleARN)
				}
			}
		}
	}
	if !hasEnabledProvider {
		fmt.Fprintf(w, "   ⚠️  No providers are enabled\n")
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "💾 Store:\n")
	fmt.Fprintf(w, "   Driver: %s\n", cfg.Store.Driver)
	if cfg.Store.Driver == "sqlite" || showDefaults {
		fmt.Fprintf(w, "   Path: %s\n", cfg.Store.Path)
	}
	fmt.Fprintf(w, "   Query timeout: %v\n\n", cfg.Store.QueryTimeout)

	fmt.Fprintf(w, "✍️  Producer:\n")
	fmt.Fprintf(w, "   Type: %s\n", cfg.Producer.Type)
	if cfg.Producer.Endpoint != "" || showDefaults {
		fmt.Fprintf(w, "   Endpoint: %s\n", cfg.Producer.Endpoint)
		fmt.Fprintf(w, "   Model: %s\n", cfg.Producer.Model)
	}
	if cfg.Producer.Path != "" {
		fmt.Fprintf(w, "   Path: %s\n", cfg.Producer.Path)
	}
	fmt.Fprintf(w, "   Timeout: %v\n\n", cfg.Producer.Timeout)

	fmt.Fprintf(w, "▶️  Executor:\n")
	fmt.Fprintf(w, "   Call timeout: %v\n", cfg.Executor.CallTimeout)
	fmt.Fprintf(w, "   Rollback mode: %s\n", cfg.Executor.RollbackMode)
	fmt.Fprintf(w, "   Parser: %s\n", cfg.Executor.Parser)
	fmt.Fprintf(w, "   Dry run: %v\n", cfg.Executor.DryRun)
	if showDefaults {
		fmt.Fprintf(w, "   Concurrent preconditions: %v\n", cfg.Executor.ConcurrentPreconditions)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "📈 Scoring:\n")
	fmt.Fprintf(w, "   Baseline: %.0f kg CO2e\n", cfg.Scoring.BaselineKg)
	fmt.Fprintf(w, "   Window: %d days\n", cfg.Scoring.WindowDays)
	if cfg.Scoring.CatalogFile != "" {
		fmt.Fprintf(w, "   Catalog: %s\n", cfg.Scoring.CatalogFile)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "🌐 Server:\n")
	fmt.Fprintf(w, "   Address: %s\n\n", cfg.Server.Address)

	fmt.Fprintf(w, "📝 Logging:\n")
	fmt.Fprintf(w, "   Level: %s\n", cfg.Logging.Level)
	fmt.Fprintf(w, "   Format: %s\n", cfg.Logging.Format)
	if cfg.Logging.File != "" {
		fmt.Fprintf(w, "   File: %s\n", cfg.Logging.File)
	}
}

// validateConfigWarnings returns configuration warnings
func validateConfigWarnings(cfg *config.Config) []string {
	var warnings []string

	if !cfg.HasEnabledProviders() {
		warnings = append(warnings, "No cloud providers are enabled - collect and execute will have nothing to act on")
	}

	if awsConfig, ok := cfg.Providers["aws"].(*config.AWSConfig); ok && awsConfig.IsEnabled() {
		if awsConfig.AccessKeyID != "" && awsConfig.SecretAccessKey != "" {
			warnings = append(warnings, "Static AWS credentials found in config - consider using AWS profiles or IAM roles")
		}
	}

	if cfg.Store.Driver == "memory" {
		warnings = append(warnings, "Memory store selected - evidence and metrics are lost when the command exits")
	}

	if cfg.Producer.Type == "http" && cfg.Producer.APIKey == "" {
		warnings = append(warnings, "HTTP producer has no api_key set")
	}

	if cfg.Executor.CallTimeout == 0 {
		warnings = append(warnings, "Executor call_timeout is 0 - provider calls are not bounded")
	}

	return warnings
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
