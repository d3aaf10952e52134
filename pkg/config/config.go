package config

import (
	"fmt"
	"time"
)

// Config represents the main application configuration
type Config struct {
	Providers map[string]ProviderConfig `yaml:"providers" json:"providers"`
	Store     StoreConfig               `yaml:"store" json:"store"`
	Producer  ProducerConfig            `yaml:"producer" json:"producer"`
	Executor  ExecutorConfig            `yaml:"executor" json:"executor"`
	Server    ServerConfig              `yaml:"server" json:"server"`
	Scoring   ScoringConfig             `yaml:"scoring" json:"scoring"`
	Output    OutputConfig              `yaml:"output" json:"output"`
	Logging   LoggingConfig             `yaml:"logging" json:"logging"`
}

// ProviderConfig is the interface for all provider configurations
type ProviderConfig interface {
	GetProvider() string
	GetName() string
	IsEnabled() bool
	GetRegions() []string
	Validate() error
}

// BaseProviderConfig contains common provider configuration fields
type BaseProviderConfig struct {
	Enabled bool     `yaml:"enabled" json:"enabled"`
	Regions []string `yaml:"regions" json:"regions"`
}

// GetRegions returns the configured regions
func (c *BaseProviderConfig) GetRegions() []string {
	return c.Regions
}

// IsEnabled returns whether the provider is enabled
func (c *BaseProviderConfig) IsEnabled() bool {
	return c.Enabled
}

// AWSConfig represents AWS provider configuration
type AWSConfig struct {
	BaseProviderConfig `yaml:",inline"`
	Profile            string `yaml:"profile" json:"profile"`
	Region             string `yaml:"region" json:"region"`
	AccessKeyID        string `yaml:"access_key_id" json:"access_key_id"`
	SecretAccessKey    string `yaml:"secret_access_key" json:"secret_access_key"`
	SessionToken       string `yaml:"session_token" json:"session_token"`
	RoleARN            string `yaml:"role_arn" json:"role_arn"`
	ExternalID         string `yaml:"external_id" json:"external_id"`
	MFASerial          string `yaml:"mfa_serial" json:"mfa_serial"`
	DurationSeconds    int32  `yaml:"duration_seconds" json:"duration_seconds"`
}

// GetProvider returns the provider name
func (c *AWSConfig) GetProvider() string {
	return "aws"
}

// GetName returns the provider name
func (c *AWSConfig) GetName() string {
	return "aws"
}

// Validate validates the AWS configuration and fills region defaults
func (c *AWSConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Region == "" && len(c.Regions) == 0 {
		return fmt.Errorf("AWS provider requires at least one region to be specified")
	}
	if c.Region == "" {
		c.Region = c.Regions[0]
	}
	if len(c.Regions) == 0 {
		c.Regions = []string{c.Region}
	}

	if c.RoleARN != "" {
		if c.DurationSeconds <= 0 {
			c.DurationSeconds = 3600
		}
		if c.DurationSeconds < 900 || c.DurationSeconds > 43200 {
			return fmt.Errorf("duration_seconds must be between 900 and 43200 seconds")
		}
	}

	return nil
}

// StoreConfig selects the evidence/metrics store
type StoreConfig struct {
	Driver       string        `yaml:"driver" json:"driver"` // sqlite, memory
	Path         string        `yaml:"path" json:"path"`
	QueryTimeout time.Duration `yaml:"query_timeout" json:"query_timeout"`
}

// ProducerConfig selects the remediation text producer
type ProducerConfig struct {
	Type     string        `yaml:"type" json:"type"` // http, file, template
	Endpoint string        `yaml:"endpoint" json:"endpoint"`
	APIKey   string        `yaml:"api_key" json:"-"`
	Model    string        `yaml:"model" json:"model"`
	Path     string        `yaml:"path" json:"path"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
}

// ExecutorConfig tunes playbook building and execution
type ExecutorConfig struct {
	CallTimeout             time.Duration `yaml:"call_timeout" json:"call_timeout"`
	RollbackMode            string        `yaml:"rollback_mode" json:"rollback_mode"` // local, compensate
	ConcurrentPreconditions bool          `yaml:"concurrent_preconditions" json:"concurrent_preconditions"`
	Parser                  string        `yaml:"parser" json:"parser"` // numbered, annotated
	DryRun                  bool          `yaml:"dry_run" json:"dry_run"`
}

// ServerConfig represents the HTTP API configuration
type ServerConfig struct {
	Address         string        `yaml:"address" json:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// ScoringConfig tunes the calculators
type ScoringConfig struct {
	BaselineKg  float64 `yaml:"baseline_kg" json:"baseline_kg"`
	WindowDays  int     `yaml:"window_days" json:"window_days"`
	CatalogFile string  `yaml:"catalog_file" json:"catalog_file"`
}

// OutputConfig represents output configuration
type OutputConfig struct {
	Format   string `yaml:"format" json:"format"` // table, json, yaml
	Colors   bool   `yaml:"colors" json:"colors"`
	NoHeader bool   `yaml:"no_header" json:"no_header"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`   // trace, debug, info, warn, error, fatal, panic
	Format string `yaml:"format" json:"format"` // text, json
	Color  bool   `yaml:"color" json:"color"`
	File   string `yaml:"file" json:"file"`
}

// DefaultConfig returns a default configuration that works without a config file
func DefaultConfig() *Config {
	return &Config{
		Providers: map[string]ProviderConfig{
			"aws": &AWSConfig{
				BaseProviderConfig: BaseProviderConfig{
					Enabled: true,
					Regions: []string{"us-east-1"},
				},
				Profile:         "default",
				Region:          "us-east-1",
				DurationSeconds: 3600,
			},
		},
		Store: StoreConfig{
			Driver:       "sqlite",
			Path:         "orbyte.db",
			QueryTimeout: 10 * time.Second,
		},
		Producer: ProducerConfig{
			Type:    "template",
			Model:   "gemini-pro",
			Timeout: 60 * time.Second,
		},
		Executor: ExecutorConfig{
			CallTimeout:  30 * time.Second,
			RollbackMode: "local",
			Parser:       "numbered",
		},
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    2 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Scoring: ScoringConfig{
			BaselineKg: 1000,
			WindowDays: 30,
		},
		Output: OutputConfig{
			Format: "table",
			Colors: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Color:  true,
		},
	}
}

// Validate validates the entire configuration
func (c *Config) Validate() error {
	for name, providerConfig := range c.Providers {
		if providerConfig.IsEnabled() {
			if err := providerConfig.Validate(); err != nil {
				return fmt.Errorf("invalid configuration for provider %s: %w", name, err)
			}
		}
	}

	if err := oneOf("store driver", c.Store.Driver, "sqlite", "memory"); err != nil {
		return err
	}
	if c.Store.Driver == "sqlite" && c.Store.Path == "" {
		return fmt.Errorf("store path is required for the sqlite driver")
	}

	if err := oneOf("producer type", c.Producer.Type, "http", "file", "template"); err != nil {
		return err
	}
	if c.Producer.Type == "http" && c.Producer.Endpoint == "" {
		return fmt.Errorf("producer endpoint is required for the http producer")
	}
	if c.Producer.Type == "file" && c.Producer.Path == "" {
		return fmt.Errorf("producer path is required for the file producer")
	}

	if err := oneOf("rollback mode", c.Executor.RollbackMode, "local", "compensate"); err != nil {
		return err
	}
	if err := oneOf("parser", c.Executor.Parser, "numbered", "annotated"); err != nil {
		return err
	}
	if c.Executor.CallTimeout < 0 {
		return fmt.Errorf("executor call_timeout must not be negative")
	}

	if c.Scoring.BaselineKg <= 0 {
		return fmt.Errorf("scoring baseline_kg must be positive")
	}
	if c.Scoring.WindowDays <= 0 {
		return fmt.Errorf("scoring window_days must be positive")
	}

	if err := oneOf("output format", c.Output.Format, "table", "json", "yaml"); err != nil {
		return err
	}
	if err := oneOf("logging level", c.Logging.Level, "trace", "debug", "info", "warn", "error", "fatal", "panic"); err != nil {
		return err
	}

	return nil
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of: %v", field, allowed)
}

// GetEnabledProviders returns a map of enabled providers
func (c *Config) GetEnabledProviders() map[string]ProviderConfig {
	enabled := make(map[string]ProviderConfig)
	for name, config := range c.Providers {
		if config.IsEnabled() {
			enabled[name] = config
		}
	}
	return enabled
}

// HasEnabledProviders returns true if at least one provider is enabled
func (c *Config) HasEnabledProviders() bool {
	return len(c.GetEnabledProviders()) > 0
}

// GetSummary returns a human-readable summary of the configuration
func (c *Config) GetSummary() map[string]interface{} {
	summary := make(map[string]interface{})

	providerSummary := make(map[string]interface{})
	for name, config := range c.Providers {
		providerSummary[name] = map[string]interface{}{
			"enabled": config.IsEnabled(),
			"regions": len(config.GetRegions()),
		}
	}
	summary["providers"] = providerSummary

	summary["store"] = map[string]interface{}{
		"driver": c.Store.Driver,
		"path":   c.Store.Path,
	}
	summary["producer"] = map[string]interface{}{
		"type":     c.Producer.Type,
		"endpoint": c.Producer.Endpoint,
	}
	summary["executor"] = map[string]interface{}{
		"call_timeout":             c.Executor.CallTimeout.String(),
		"rollback_mode":            c.Executor.RollbackMode,
		"concurrent_preconditions": c.Executor.ConcurrentPreconditions,
		"dry_run":                  c.Executor.DryRun,
	}
	summary["server"] = map[string]interface{}{
		"address": c.Server.Address,
	}
	summary["output"] = map[string]interface{}{
		"format": c.Output.Format,
		"colors": c.Output.Colors,
	}
	summary["logging"] = map[string]interface{}{
		"level":  c.Logging.Level,
		"format": c.Logging.Format,
	}

	return summary
}
