package utils

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsahi-Elkayam/orbyte/pkg/config"
)

func TestNewLogger_Environment(t *testing.T) {
	t.Setenv("ORBYTE_LOG_LEVEL", "warn")
	t.Setenv("ORBYTE_LOG_FORMAT", "json")

	logger := NewLogger()
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	_, ok := logger.Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok)
}

func TestNewLogger_Defaults(t *testing.T) {
	t.Setenv("ORBYTE_LOG_LEVEL", "nonsense")
	t.Setenv("ORBYTE_LOG_FORMAT", "")

	logger := NewLogger()
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	_, ok := logger.Formatter.(*logrus.TextFormatter)
	assert.True(t, ok)
}

func TestApplyConfig(t *testing.T) {
	logger := logrus.New()

	ApplyConfig(logger, config.LoggingConfig{Level: "error", Format: "text"}, false)
	assert.Equal(t, logrus.ErrorLevel, logger.GetLevel())

	ApplyConfig(logger, config.LoggingConfig{Level: "error"}, true)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestNewLoggerWithConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orbyte.log")
	logger := NewLoggerWithConfig(config.LoggingConfig{Level: "debug", Format: "json", File: path})
	require.NotNil(t, logger)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.FileExists(t, path)
}
