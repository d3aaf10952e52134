package remediation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsahi-Elkayam/orbyte/pkg/models"
	"github.com/Tsahi-Elkayam/orbyte/pkg/providers"
	"github.com/Tsahi-Elkayam/orbyte/pkg/scoring"
	"github.com/Tsahi-Elkayam/orbyte/pkg/store/memory"
	"github.com/Tsahi-Elkayam/orbyte/test/mocks"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newRegistry(t *testing.T) (*providers.PluginRegistry, *mocks.MockAWSProvider) {
	t.Helper()
	mock := mocks.NewMockAWSProvider()
	mock.SetAuthenticated(true)
	mock.AddResource("ec2", mocks.CreateMockEC2Instance("i-123", "web", "us-east-1", models.StateRunning))
	mock.AddResource("s3", mocks.CreateMockS3Bucket("logs", "us-east-1", false, true))
	mock.AddResource("iam-user", mocks.CreateMockIAMUser("ci-bot", "restrictive", false))

	registry := providers.NewPluginRegistry(quietLogger())
	require.NoError(t, registry.Register(mock))
	return registry, mock
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input   string
		want    Command
		wantErr bool
	}{
		{input: "aws:ec2-stop i-123", want: Command{Provider: "aws", Action: "ec2-stop", Args: []string{"i-123"}}},
		{input: "  aws:s3-enable-logging  logs   audit ", want: Command{Provider: "aws", Action: "s3-enable-logging", Args: []string{"logs", "audit"}}},
		{input: "aws:noop", want: Command{Provider: "aws", Action: "noop", Args: []string{}}},
		{input: "", wantErr: true},
		{input: "ec2-stop i-123", wantErr: true},
		{input: ":ec2-stop", wantErr: true},
		{input: "aws: i-123", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cmd, err := ParseCommand(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, providers.ErrInvalidCommand)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd)
		})
	}

	assert.Equal(t, "aws:ec2-stop i-123", Command{Provider: "aws", Action: "ec2-stop", Args: []string{"i-123"}}.String())
}

func TestDispatcher_Run(t *testing.T) {
	registry, mock := newRegistry(t)
	d := NewDispatcher(registry, WithDispatcherLogger(quietLogger()))
	ctx := context.Background()

	require.NoError(t, d.Run(ctx, "aws:ec2-stop i-123"))
	assert.Equal(t, []string{"ec2-stop [i-123]"}, mock.Performed())

	err := d.Run(ctx, "gcp:compute-stop vm-1")
	assert.ErrorIs(t, err, providers.ErrProviderNotFound)

	err = d.Run(ctx, "aws:ec2-terminate i-123")
	assert.ErrorIs(t, err, providers.ErrUnsupportedOperation)
	assert.True(t, providers.IsUnsupported(err))

	mock.SetError("s3-enable-encryption", errors.New("access denied"))
	err = d.Run(ctx, "aws:s3-enable-encryption logs")
	var actionErr *providers.ActionError
	require.ErrorAs(t, err, &actionErr)
	assert.Equal(t, "s3-enable-encryption", actionErr.Action)
	assert.Contains(t, err.Error(), "access denied")
}

func TestDispatcher_DryRun(t *testing.T) {
	registry, mock := newRegistry(t)
	d := NewDispatcher(registry, WithDryRun(true), WithDispatcherLogger(quietLogger()))

	require.NoError(t, d.Run(context.Background(), "aws:ec2-stop i-123"))
	assert.Empty(t, mock.Performed())

	err := d.Run(context.Background(), "aws:unknown i-123")
	assert.ErrorIs(t, err, providers.ErrUnsupportedOperation)
}

func newScorer(t *testing.T) *scoring.Calculator {
	t.Helper()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	st := memory.New()
	require.NoError(t, st.AddEvidence(context.Background(), []models.EvidenceRecord{
		{ResourceID: "r1", Framework: models.FrameworkNIST800_53, ControlID: "SC-28", Status: models.StatusCompliant, AssessedAt: now},
		{ResourceID: "r1", Framework: models.FrameworkNIST800_53, ControlID: "AC-3", Status: models.StatusNonCompliant, AssessedAt: now},
	}))
	return scoring.NewCalculator(st, st, scoring.WithClock(func() time.Time { return now }), scoring.WithLogger(quietLogger()))
}

func TestInspector_Check(t *testing.T) {
	registry, _ := newRegistry(t)
	inspector := NewInspector(registry, WithScorer(newScorer(t)), WithInspectorLogger(quietLogger()))

	tests := []struct {
		expression string
		want       bool
	}{
		{`state("aws:ec2/i-123") == "running"`, true},
		{`state("aws:ec2/i-123") == "stopped"`, false},
		{`healthy("aws:ec2/i-123")`, true},
		{`exists("aws:ec2/i-999")`, false},
		{`exists("aws:s3/logs") && !encrypted("aws:s3/logs")`, true},
		{`fact("aws:s3/logs", "logging_enabled") == true`, true},
		{`fact("aws:iam-user/ci-bot", "iam_policy") == "restrictive"`, true},
		{`compliance("NIST_800_53") == 50`, true},
		{`resource_compliance("nist", "r1") >= 50`, true},
		{`len(gaps("NIST_800_53")) == 1`, true},
		{`sustainability() == 100`, true},
	}

	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			got, err := inspector.Check(context.Background(), tt.expression)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInspector_HelpConditions(t *testing.T) {
	ctx := context.Background()
	registry, mock := newRegistry(t)
	mock.AddResource("s3", mocks.CreateMockS3Bucket("my-bucket", "us-east-1", true, true))

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	st := memory.New()
	require.NoError(t, st.AddEvidence(ctx, []models.EvidenceRecord{
		{ResourceID: "my-bucket", Framework: models.FrameworkNIST800_53, ControlID: "SC-28", Status: models.StatusCompliant, AssessedAt: now},
	}))
	scorer := scoring.NewCalculator(st, st, scoring.WithClock(func() time.Time { return now }), scoring.WithLogger(quietLogger()))
	inspector := NewInspector(registry, WithScorer(scorer), WithInspectorLogger(quietLogger()))

	for _, expression := range []string{
		`encrypted("aws:s3/my-bucket")`,
		`resource_compliance("NIST_800_53", "my-bucket") >= 80`,
		`exists("aws:s3/logs")`,
	} {
		t.Run(expression, func(t *testing.T) {
			require.NoError(t, inspector.Validate(expression))
			ok, err := inspector.Check(ctx, expression)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}

	t.Run("framework must come first", func(t *testing.T) {
		_, err := inspector.Check(ctx, `resource_compliance("my-bucket", "NIST_800_53") >= 80`)
		assert.ErrorContains(t, err, "unknown framework")
	})
}

func TestInspector_Errors(t *testing.T) {
	registry, mock := newRegistry(t)
	inspector := NewInspector(registry, WithInspectorLogger(quietLogger()))
	ctx := context.Background()

	tests := []struct {
		name       string
		expression string
		contains   string
	}{
		{name: "empty", expression: "  ", contains: "empty condition"},
		{name: "not boolean", expression: `state("aws:ec2/i-123")`, contains: "compile condition"},
		{name: "syntax", expression: `state(`, contains: "compile condition"},
		{name: "unknown function", expression: `running("aws:ec2/i-123")`, contains: "compile condition"},
		{name: "bad reference", expression: `healthy("i-123")`, contains: "invalid resource reference"},
		{name: "unknown provider", expression: `healthy("gcp:vm/x")`, contains: "provider not found"},
		{name: "missing resource", expression: `healthy("aws:ec2/i-999")`, contains: "resource not found"},
		{name: "no scorer", expression: `compliance("SOC_2") > 0`, contains: "scoring not configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := inspector.Check(ctx, tt.expression)
			require.Error(t, err)
			assert.False(t, ok)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}

	t.Run("provider failure surfaces from exists", func(t *testing.T) {
		mock.SetError("GetResource", errors.New("throttled"))
		_, err := inspector.Check(ctx, `exists("aws:ec2/i-123")`)
		assert.ErrorContains(t, err, "throttled")
	})
}

func TestInspector_ObservesActions(t *testing.T) {
	registry, _ := newRegistry(t)
	d := NewDispatcher(registry, WithDispatcherLogger(quietLogger()))
	inspector := NewInspector(registry, WithInspectorLogger(quietLogger()))
	ctx := context.Background()

	ok, err := inspector.Check(ctx, `encrypted("aws:s3/logs")`)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, d.Run(ctx, "aws:s3-enable-encryption logs"))

	ok, err = inspector.Check(ctx, `encrypted("aws:s3/logs")`)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, inspector.Validate(`encrypted("aws:s3/logs")`))
}
