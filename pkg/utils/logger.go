package utils

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Tsahi-Elkayam/orbyte/pkg/config"
)

const timestampFormat = "2006-01-02 15:04:05"

// NewLogger creates a logger configured from ORBYTE_LOG_* environment variables.
// Logs go to stderr so command output on stdout stays machine readable.
func NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(getLogLevel())
	applyFormat(logger, isJSONFormat(), isColorEnabled())
	return logger
}

// getLogLevel determines log level from environment
func getLogLevel() logrus.Level {
	level, err := logrus.ParseLevel(strings.ToLower(os.Getenv("ORBYTE_LOG_LEVEL")))
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// isJSONFormat checks if JSON log format is requested
func isJSONFormat() bool {
	return strings.ToLower(os.Getenv("ORBYTE_LOG_FORMAT")) == "json"
}

// isColorEnabled checks if colored output is enabled
func isColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return strings.ToLower(os.Getenv("ORBYTE_LOG_COLOR")) != "false"
}

// ApplyConfig reconfigures an existing logger from the logging section of the config.
// verbose forces debug level.
func ApplyConfig(logger *logrus.Logger, cfg config.LoggingConfig, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	}

	applyFormat(logger, cfg.Format == "json", cfg.Color)

	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			logger.Warnf("Failed to open log file %s: %v", cfg.File, err)
			return
		}
		logger.SetOutput(file)
	}
}

// NewLoggerWithConfig creates a logger with specific configuration
func NewLoggerWithConfig(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.InfoLevel)
	ApplyConfig(logger, cfg, false)
	return logger
}

func applyFormat(logger *logrus.Logger, json, color bool) {
	if json {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
		})
		return
	}
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: timestampFormat,
		DisableColors:   !color,
	})
}
