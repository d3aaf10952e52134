package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every Orbyte environment variable
const EnvPrefix = "ORBYTE"

// Loader handles configuration loading from various sources
type Loader struct {
	configPaths []string
	configName  string
	configType  string
	logger      *logrus.Logger
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	homeDir, _ := os.UserHomeDir()
	return &Loader{
		configPaths: []string{
			".",
			homeDir,
			"/etc/orbyte",
		},
		configName: ".orbyte",
		configType: "yaml",
		logger:     logrus.StandardLogger(),
	}
}

// SetLogger sets the logger used to report where configuration came from
func (l *Loader) SetLogger(logger *logrus.Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// LoadConfig loads configuration, merging defaults, the config file and environment overrides
func (l *Loader) LoadConfig(configFile string) (*Config, error) {
	config := DefaultConfig()

	v := viper.New()
	v.SetConfigType(l.configType)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(l.configName)
		for _, path := range l.configPaths {
			v.AddConfigPath(path)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	l.bindEnvironmentVariables(v)

	configFileExists := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		l.logger.Debug("No config file found, using built-in defaults")
	} else {
		configFileExists = true
		l.logger.Debugf("Using config file: %s", v.ConfigFileUsed())
	}

	if configFileExists || l.hasRelevantEnvVars() {
		if err := l.mergeWithDefaults(v, config); err != nil {
			return nil, fmt.Errorf("failed to merge configuration: %w", err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// mergeWithDefaults merges user configuration with defaults, preserving defaults unless explicitly overridden
func (l *Loader) mergeWithDefaults(v *viper.Viper, defaultConfig *Config) error {
	var userConfig map[string]interface{}
	if err := v.Unmarshal(&userConfig); err != nil {
		return fmt.Errorf("failed to unmarshal user config: %w", err)
	}

	if providers, exists := userConfig["providers"]; exists {
		if providerMap, ok := providers.(map[string]interface{}); ok {
			if err := l.mergeProviders(providerMap, defaultConfig); err != nil {
				return fmt.Errorf("failed to merge providers: %w", err)
			}
		}
	}

	sections := []struct {
		key    string
		target interface{}
	}{
		{"store", &defaultConfig.Store},
		{"producer", &defaultConfig.Producer},
		{"executor", &defaultConfig.Executor},
		{"server", &defaultConfig.Server},
		{"scoring", &defaultConfig.Scoring},
		{"output", &defaultConfig.Output},
		{"logging", &defaultConfig.Logging},
	}
	for _, section := range sections {
		data, exists := userConfig[section.key]
		if !exists {
			continue
		}
		if err := l.mergeStruct(data, section.target); err != nil {
			return fmt.Errorf("failed to merge %s config: %w", section.key, err)
		}
	}

	return nil
}

// mergeProviders merges provider configurations with defaults
func (l *Loader) mergeProviders(userProviders map[string]interface{}, defaultConfig *Config) error {
	awsData, exists := userProviders["aws"]
	if !exists {
		return nil
	}

	defaultAWS, ok := defaultConfig.Providers["aws"].(*AWSConfig)
	if !ok {
		return fmt.Errorf("default AWS config is not of correct type")
	}

	mergedAWS := *defaultAWS
	mergedAWS.Regions = append([]string(nil), defaultAWS.Regions...)

	if err := l.mergeStruct(awsData, &mergedAWS); err != nil {
		return fmt.Errorf("failed to merge AWS config: %w", err)
	}

	// user regions replace the defaults instead of extending them
	if awsMap, ok := awsData.(map[string]interface{}); ok {
		if regionList, ok := awsMap["regions"].([]interface{}); ok {
			var regions []string
			for _, region := range regionList {
				if regionStr, ok := region.(string); ok {
					regions = append(regions, regionStr)
				}
			}
			if len(regions) > 0 {
				mergedAWS.Regions = regions
			}
		}
	}

	defaultConfig.Providers["aws"] = &mergedAWS
	return nil
}

// mergeStruct merges data into a target struct, overriding only the fields present in data
func (l *Loader) mergeStruct(data interface{}, target interface{}) error {
	dataBytes, err := yaml.Marshal(normalizeScalars(data))
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	return yaml.Unmarshal(dataBytes, target)
}

// normalizeScalars re-resolves string leaves so that environment values such as
// "true" or "42" decode into bool and numeric fields.
func normalizeScalars(data interface{}) interface{} {
	switch value := data.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(value))
		for k, v := range value {
			out[k] = normalizeScalars(v)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(value))
		for i, v := range value {
			out[i] = normalizeScalars(v)
		}
		return out
	case string:
		var resolved interface{}
		if err := yaml.Unmarshal([]byte(value), &resolved); err == nil {
			switch resolved.(type) {
			case bool, int, int64, uint64, float64:
				return resolved
			}
		}
		return value
	default:
		return data
	}
}

// hasRelevantEnvVars checks if any Orbyte or AWS environment variables are set
func (l *Loader) hasRelevantEnvVars() bool {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, EnvPrefix+"_") {
			return true
		}
	}

	for _, envVar := range []string{"AWS_PROFILE", "AWS_REGION", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY"} {
		if os.Getenv(envVar) != "" {
			return true
		}
	}

	return false
}

// bindEnvironmentVariables binds environment variables to viper
func (l *Loader) bindEnvironmentVariables(v *viper.Viper) {
	// AWS configuration
	v.BindEnv("providers.aws.enabled", "ORBYTE_AWS_ENABLED")
	v.BindEnv("providers.aws.profile", "ORBYTE_AWS_PROFILE", "AWS_PROFILE")
	v.BindEnv("providers.aws.region", "ORBYTE_AWS_REGION", "AWS_REGION", "AWS_DEFAULT_REGION")
	v.BindEnv("providers.aws.access_key_id", "ORBYTE_AWS_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID")
	v.BindEnv("providers.aws.secret_access_key", "ORBYTE_AWS_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY")
	v.BindEnv("providers.aws.session_token", "ORBYTE_AWS_SESSION_TOKEN", "AWS_SESSION_TOKEN")
	v.BindEnv("providers.aws.role_arn", "ORBYTE_AWS_ROLE_ARN")
	v.BindEnv("providers.aws.external_id", "ORBYTE_AWS_EXTERNAL_ID")
	v.BindEnv("providers.aws.mfa_serial", "ORBYTE_AWS_MFA_SERIAL")
	v.BindEnv("providers.aws.duration_seconds", "ORBYTE_AWS_DURATION_SECONDS")

	// Store configuration
	v.BindEnv("store.driver", "ORBYTE_STORE_DRIVER")
	v.BindEnv("store.path", "ORBYTE_STORE_PATH")
	v.BindEnv("store.query_timeout", "ORBYTE_STORE_QUERY_TIMEOUT")

	// Producer configuration
	v.BindEnv("producer.type", "ORBYTE_PRODUCER_TYPE")
	v.BindEnv("producer.endpoint", "ORBYTE_PRODUCER_ENDPOINT")
	v.BindEnv("producer.api_key", "ORBYTE_PRODUCER_API_KEY")
	v.BindEnv("producer.model", "ORBYTE_PRODUCER_MODEL")
	v.BindEnv("producer.path", "ORBYTE_PRODUCER_PATH")
	v.BindEnv("producer.timeout", "ORBYTE_PRODUCER_TIMEOUT")

	// Executor configuration
	v.BindEnv("executor.call_timeout", "ORBYTE_EXECUTOR_CALL_TIMEOUT")
	v.BindEnv("executor.rollback_mode", "ORBYTE_EXECUTOR_ROLLBACK_MODE")
	v.BindEnv("executor.concurrent_preconditions", "ORBYTE_EXECUTOR_CONCURRENT_PRECONDITIONS")
	v.BindEnv("executor.parser", "ORBYTE_EXECUTOR_PARSER")
	v.BindEnv("executor.dry_run", "ORBYTE_EXECUTOR_DRY_RUN")

	// Server configuration
	v.BindEnv("server.address", "ORBYTE_SERVER_ADDRESS")
	v.BindEnv("server.read_timeout", "ORBYTE_SERVER_READ_TIMEOUT")
	v.BindEnv("server.write_timeout", "ORBYTE_SERVER_WRITE_TIMEOUT")

	// Scoring configuration
	v.BindEnv("scoring.baseline_kg", "ORBYTE_SCORING_BASELINE_KG")
	v.BindEnv("scoring.window_days", "ORBYTE_SCORING_WINDOW_DAYS")
	v.BindEnv("scoring.catalog_file", "ORBYTE_SCORING_CATALOG_FILE")

	// Output configuration
	v.BindEnv("output.format", "ORBYTE_OUTPUT_FORMAT")
	v.BindEnv("output.colors", "ORBYTE_OUTPUT_COLORS")
	v.BindEnv("output.no_header", "ORBYTE_OUTPUT_NO_HEADER")

	// Logging configuration
	v.BindEnv("logging.level", "ORBYTE_LOG_LEVEL")
	v.BindEnv("logging.format", "ORBYTE_LOG_FORMAT")
	v.BindEnv("logging.color", "ORBYTE_LOG_COLOR")
	v.BindEnv("logging.file", "ORBYTE_LOG_FILE")
}

// SaveConfig saves configuration to a file
func (l *Loader) SaveConfig(config *Config, filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateExampleConfig writes an example configuration file with comments
func (l *Loader) GenerateExampleConfig(filePath string) error {
	yamlContent := `# Orbyte configuration file
# Only specify the settings you want to change; everything else uses built-in defaults.

providers:
  aws:
    enabled: true
    profile: "default"
    # access_key_id: "your_access_key"
    # secret_access_key: "your_secret_key"
    # role_arn: "arn:aws:iam::123456789012:role/OrbyteRemediation"
    # external_id: "optional_external_id"
    region: "us-east-1"
    regions:
      - "us-east-1"

# Evidence and metrics store
store:
  driver: "sqlite"   # sqlite or memory
  path: "orbyte.db"
  query_timeout: "10s"

# Remediation text producer
producer:
  type: "template"   # http, file or template
  # endpoint: "https://llm.internal.example.com/v1/generate"
  # api_key: "..."
  # path: "./playbooks/encryption.txt"
  model: "gemini-pro"
  timeout: "60s"

# Playbook execution
executor:
  call_timeout: "30s"
  rollback_mode: "local"   # local or compensate
  concurrent_preconditions: false
  parser: "numbered"       # numbered or annotated
  dry_run: false

# server:
#   address: ":8080"

# scoring:
#   baseline_kg: 1000
#   window_days: 30
#   catalog_file: "./controls.yaml"

# output:
#   format: "table"  # table, json, yaml

# logging:
#   level: "info"
#   format: "text"
#   # file: "/var/log/orbyte.log"

# Environment variables override this file, for example:
# export ORBYTE_STORE_PATH=/var/lib/orbyte/orbyte.db
# export ORBYTE_EXECUTOR_DRY_RUN=true
# export ORBYTE_LOG_LEVEL=debug
`

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return os.WriteFile(filePath, []byte(yamlContent), 0644)
}

// GetConfigPath returns the default path to the configuration file
func (l *Loader) GetConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, l.configName+".yaml")
}

// ConfigPaths returns the directories searched for a config file
func (l *Loader) ConfigPaths() []string {
	return append([]string(nil), l.configPaths...)
}

// ConfigExists checks if a configuration file exists
func (l *Loader) ConfigExists(configFile string) bool {
	if configFile != "" {
		_, err := os.Stat(configFile)
		return err == nil
	}

	for _, path := range l.configPaths {
		for _, ext := range []string{".yaml", ".yml"} {
			if _, err := os.Stat(filepath.Join(path, l.configName+ext)); err == nil {
				return true
			}
		}
	}

	return false
}

// DefaultLoader is the global configuration loader
var DefaultLoader = NewLoader()
