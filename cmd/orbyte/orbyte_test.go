package orbyte

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsahi-Elkayam/orbyte/pkg/evidence"
	"github.com/Tsahi-Elkayam/orbyte/pkg/models"
	"github.com/Tsahi-Elkayam/orbyte/pkg/types"
)

func TestParseCollectFilters(t *testing.T) {
	tests := []struct {
		name    string
		opts    *CollectOptions
		want    types.ResourceFilters
		wantErr bool
	}{
		{
			name: "basic filters",
			opts: &CollectOptions{
				Regions:       []string{"us-east-1", "us-west-2"},
				ResourceTypes: []string{"ec2", "s3"},
				Status:        []string{"running", "available"},
			},
			want: types.ResourceFilters{
				Regions:       []string{"us-east-1", "us-west-2"},
				ResourceTypes: []string{"ec2", "s3"},
				Status:        []string{"running", "available"},
				Tags:          map[string]string{},
			},
		},
		{
			name: "with tags",
			opts: &CollectOptions{
				Tags: []string{"Environment=production", "Team=backend", "Expr=a=b"},
			},
			want: types.ResourceFilters{
				Tags: map[string]string{
					"Environment": "production",
					"Team":        "backend",
					"Expr":        "a=b",
				},
			},
		},
		{
			name:    "invalid tag format",
			opts:    &CollectOptions{Tags: []string{"invalid-tag-format"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCollectFilters(tt.opts)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want.Regions, got.Regions)
			assert.Equal(t, tt.want.ResourceTypes, got.ResourceTypes)
			assert.Equal(t, tt.want.Status, got.Status)
			assert.Equal(t, tt.want.Tags, got.Tags)
		})
	}
}

func TestParseBuildRequest(t *testing.T) {
	tests := []struct {
		name    string
		opts    *BuildOptions
		want    models.PlaybookCategory
		context map[string]interface{}
		wantErr string
	}{
		{
			name: "category and context",
			opts: &BuildOptions{
				Issue:    "  Bucket logs is unencrypted ",
				Category: "security",
				Context:  []string{"bucket=logs", "query=a=b"},
			},
			want:    models.CategorySecurity,
			context: map[string]interface{}{"bucket": "logs", "query": "a=b"},
		},
		{
			name: "no context",
			opts: &BuildOptions{Issue: "High emissions", Category: "SUSTAINABILITY"},
			want: models.CategorySustainability,
		},
		{
			name:    "blank issue",
			opts:    &BuildOptions{Issue: "   ", Category: "COMPLIANCE"},
			wantErr: "issue must not be empty",
		},
		{
			name:    "unknown category",
			opts:    &BuildOptions{Issue: "x", Category: "COST"},
			wantErr: "unknown playbook category",
		},
		{
			name:    "bad context pair",
			opts:    &BuildOptions{Issue: "x", Category: "COMPLIANCE", Context: []string{"=logs"}},
			wantErr: "invalid context format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := parseBuildRequest(tt.opts)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, req.Category)
			assert.Equal(t, tt.context, req.Context)
			assert.NotContains(t, req.Issue, "  ")
		})
	}
}

func TestParseWindow(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		start     string
		end       string
		wantStart time.Time
		wantEnd   time.Time
		wantErr   bool
	}{
		{
			name:      "defaults to thirty days before now",
			wantStart: now.Add(-30 * 24 * time.Hour),
			wantEnd:   now,
		},
		{
			name:      "dates",
			start:     "2024-01-01",
			end:       "2024-01-31",
			wantStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "rfc3339 end only",
			end:       "2024-02-01T10:00:00Z",
			wantStart: time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			name:    "start after end",
			start:   "2024-02-01",
			end:     "2024-01-01",
			wantErr: true,
		},
		{
			name:    "invalid start",
			start:   "yesterday",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := parseWindow(tt.start, tt.end, now)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.True(t, tt.wantStart.Equal(start), "start %s", start)
			assert.True(t, tt.wantEnd.Equal(end), "end %s", end)
		})
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{name: "short string", input: "hello", maxLen: 10, want: "hello"},
		{name: "exact length", input: "hello", maxLen: 5, want: "hello"},
		{name: "long string", input: "this is a very long string that needs to be truncated", maxLen: 20, want: "this is a very lo..."},
		{name: "very short max length", input: "hello", maxLen: 3, want: "hel"},
		{name: "empty string", input: "", maxLen: 10, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncateString(tt.input, tt.maxLen))
		})
	}
}

func TestSortRegionShares(t *testing.T) {
	rows := sortRegionShares(map[string]float64{
		"europe-west1": 5.8,
		"asia-east1":   64.4,
		"us-central1":  29.8,
		"us-east1":     5.8,
	})

	require.Len(t, rows, 4)
	assert.Equal(t, "asia-east1", rows[0].Region)
	assert.Equal(t, "us-central1", rows[1].Region)
	assert.Equal(t, "europe-west1", rows[2].Region)
	assert.Equal(t, "us-east1", rows[3].Region)

	assert.Empty(t, sortRegionShares(nil))
}

func TestRender(t *testing.T) {
	value := ComplianceScoreResult{Framework: models.FrameworkSOC2, Score: 50}
	table := func(w io.Writer) error {
		printComplianceScore(w, value)
		return nil
	}

	tests := []struct {
		format  string
		want    string
		wantErr bool
	}{
		{format: "json", want: `"score": 50`},
		{format: "yaml", want: "framework: SOC_2"},
		{format: "table", want: "SOC_2 compliance (all resources): 50.0%"},
		{format: "", want: "SOC_2 compliance"},
		{format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			err := render(&buf, tt.format, value, table)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestPlaybookFiles(t *testing.T) {
	pb := &models.Playbook{
		ID:       "pb-1",
		Name:     "Remediate: bucket",
		Category: models.CategoryCompliance,
		Steps: []models.PlaybookStep{
			{ID: "step-1", Action: "Enable encryption", Command: "aws:s3-enable-encryption logs", Rollback: "aws:s3-disable-encryption logs"},
			{ID: "step-2", Action: "Tell the owners"},
		},
		Preconditions: []string{`exists("aws:s3/logs")`},
		CreatedAt:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	for _, name := range []string{"pb.yaml", "pb.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, savePlaybook(pb, path))

			loaded, err := loadPlaybook(path)
			require.NoError(t, err)
			assert.Equal(t, pb.Steps, loaded.Steps)
			assert.Equal(t, pb.Preconditions, loaded.Preconditions)
			assert.True(t, pb.CreatedAt.Equal(loaded.CreatedAt))
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := loadPlaybook(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestPrintReport(t *testing.T) {
	report := models.ExecutionReport{
		PlaybookID:     "pb-1",
		Success:        false,
		StepsCompleted: 1,
		State:          models.StateFailed,
		Errors:         []string{"Step step-2 failed: access denied"},
		RolledBack:     []string{"step-2", "step-1"},
		Steps: []models.StepResult{
			{StepID: "step-1", Outcome: models.OutcomeCompleted},
			{StepID: "step-2", Outcome: models.OutcomeExecutionFailed, Message: "access denied"},
		},
	}

	var buf bytes.Buffer
	printReport(&buf, report, true)
	out := buf.String()

	assert.Contains(t, out, "Playbook failed (dry run): pb-1")
	assert.Contains(t, out, "State: FAILED")
	assert.Contains(t, out, "Rolled back: step-2, step-1")
	assert.Contains(t, out, "Step step-2 failed: access denied")
}

func TestPrintCollectSummary(t *testing.T) {
	var buf bytes.Buffer
	printCollectSummary(&buf, &evidence.CollectSummary{
		Providers: []string{"aws", "gcp"},
		Resources: 3,
		Records:   5,
		Failed:    map[string]string{"gcp": "quota exceeded"},
	})

	out := buf.String()
	assert.Contains(t, out, "Queried 2 provider(s): aws, gcp")
	assert.Contains(t, out, "Evidence records: 5")
	assert.Contains(t, out, "gcp: quota exceeded")
}

func TestCommandCreation(t *testing.T) {
	logger := logrus.New()
	root := NewRootCommand(logger)

	assert.Equal(t, "orbyte", root.Use)
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	outputFlag := root.PersistentFlags().Lookup("output")
	require.NotNil(t, outputFlag)
	assert.Equal(t, "o", outputFlag.Shorthand)

	for _, path := range [][]string{
		{"compliance", "score"},
		{"compliance", "gaps"},
		{"sustainability", "emissions"},
		{"sustainability", "opportunities"},
		{"sustainability", "score"},
		{"sustainability", "regions"},
		{"playbook", "build"},
		{"playbook", "execute"},
		{"collect"},
		{"providers"},
		{"seed"},
		{"serve"},
		{"config", "show"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.NotEmpty(t, cmd.Short, path)
	}

	collect, _, err := root.Find([]string{"collect"})
	require.NoError(t, err)
	typeFlag := collect.Flags().Lookup("type")
	require.NotNil(t, typeFlag)
	assert.Equal(t, "t", typeFlag.Shorthand)

	execute, _, err := root.Find([]string{"playbook", "execute"})
	require.NoError(t, err)
	assert.NotNil(t, execute.Flags().Lookup("dry-run"))
	assert.NotNil(t, execute.Flags().Lookup("rollback-mode"))
}

// writeTestConfig writes a config using a sqlite store in a temp dir and no providers
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "orbyte.yaml")
	content := `providers:
  aws:
    enabled: false
store:
  driver: sqlite
  path: ` + filepath.Join(dir, "orbyte.db") + `
producer:
  type: template
logging:
  level: error
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func runCLI(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	root := NewRootCommand(logger)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", configPath}, args...))

	err := root.Execute()
	return out.String(), err
}

func TestCLIEndToEnd(t *testing.T) {
	configPath := writeTestConfig(t)

	out, err := runCLI(t, configPath, "seed", "-o", "json")
	require.NoError(t, err)
	var seeded SeedResult
	require.NoError(t, json.Unmarshal([]byte(out), &seeded))
	assert.Equal(t, SeedResult{Evidence: 7, Metrics: 3}, seeded)

	out, err = runCLI(t, configPath, "compliance", "score", "NIST_800_53", "-o", "json")
	require.NoError(t, err)
	var score ComplianceScoreResult
	require.NoError(t, json.Unmarshal([]byte(out), &score))
	assert.Equal(t, 75.0, score.Score)

	out, err = runCLI(t, configPath, "compliance", "score", "nist", "--resource-id", "project-123/compute-instance-1")
	require.NoError(t, err)
	assert.Contains(t, out, "100.0%")

	out, err = runCLI(t, configPath, "compliance", "gaps", "SOC_2", "-o", "json")
	require.NoError(t, err)
	var gaps ComplianceGapsResult
	require.NoError(t, json.Unmarshal([]byte(out), &gaps))
	assert.Equal(t, []string{"CC6.1: Logical and Physical Access Controls"}, gaps.Gaps)

	out, err = runCLI(t, configPath, "sustainability", "emissions", "-o", "json")
	require.NoError(t, err)
	var emissions EmissionsResult
	require.NoError(t, json.Unmarshal([]byte(out), &emissions))
	assert.InDelta(t, 62.3, emissions.TotalEmissionsKg, 1e-9)

	out, err = runCLI(t, configPath, "sustainability", "regions")
	require.NoError(t, err)
	assert.Contains(t, out, "asia-east1")

	out, err = runCLI(t, configPath, "sustainability", "opportunities")
	require.NoError(t, err)
	assert.Contains(t, out, string(models.OpportunityMigrateRegion))

	_, err = runCLI(t, configPath, "compliance", "score", "PCI")
	assert.Error(t, err)
}

func TestCLIPlaybookBuildAndExecute(t *testing.T) {
	configPath := writeTestConfig(t)
	pbPath := filepath.Join(t.TempDir(), "pb.yaml")

	out, err := runCLI(t, configPath, "playbook", "build",
		"--issue", "Bucket logs is unencrypted",
		"--context", "bucket=logs",
		"--postcondition", `1 + 1 == 2`,
		"--save", pbPath,
	)
	require.NoError(t, err)
	assert.Contains(t, out, "step-1")

	loaded, err := loadPlaybook(pbPath)
	require.NoError(t, err)
	assert.Len(t, loaded.Steps, 4)

	out, err = runCLI(t, configPath, "playbook", "execute", pbPath, "--dry-run", "-o", "json")
	require.NoError(t, err)
	var report models.ExecutionReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.Success)
	assert.Equal(t, 4, report.StepsCompleted)
	assert.Equal(t, models.StateCompleted, report.State)
	assert.Empty(t, report.Errors)

	_, err = runCLI(t, configPath, "playbook", "execute", pbPath, "--rollback-mode", "sideways")
	assert.Error(t, err)
}
