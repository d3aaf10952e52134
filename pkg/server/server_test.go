package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Tsahi-Elkayam/orbyte/pkg/config"
	"github.com/Tsahi-Elkayam/orbyte/pkg/models"
	"github.com/Tsahi-Elkayam/orbyte/pkg/playbook"
	"github.com/Tsahi-Elkayam/orbyte/pkg/providers"
)

type mockCompliance struct {
	mock.Mock
}

func (m *mockCompliance) ComplianceScore(ctx context.Context, framework models.Framework, resourceID string) (float64, error) {
	args := m.Called(ctx, framework, resourceID)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockCompliance) IdentifyGaps(ctx context.Context, framework models.Framework) ([]string, error) {
	args := m.Called(ctx, framework)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type mockSustainability struct {
	mock.Mock
}

func (m *mockSustainability) CalculateEmissions(ctx context.Context, start, end time.Time) (models.EmissionsTotals, error) {
	args := m.Called(ctx, start, end)
	return args.Get(0).(models.EmissionsTotals), args.Error(1)
}

func (m *mockSustainability) IdentifySavingsOpportunities(ctx context.Context) ([]models.SavingsOpportunity, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.SavingsOpportunity), args.Error(1)
}

func (m *mockSustainability) SustainabilityScore(ctx context.Context) (float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockSustainability) RegionalEmissions(ctx context.Context) (map[string]float64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]float64), args.Error(1)
}

type mockBuilder struct {
	mock.Mock
}

func (m *mockBuilder) Build(ctx context.Context, req playbook.BuildRequest) (*models.Playbook, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Playbook), args.Error(1)
}

type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) Execute(ctx context.Context, pb *models.Playbook) models.ExecutionReport {
	args := m.Called(ctx, pb)
	return args.Get(0).(models.ExecutionReport)
}

type staticProviders []providers.ProviderInfo

func (s staticProviders) GetProviderInfo() []providers.ProviderInfo {
	return s
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestComplianceRoutes(t *testing.T) {
	tests := []struct {
		name           string
		target         string
		setupMock      func(*mockCompliance)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:   "framework score",
			target: "/api/v1/compliance/NIST_800_53/score",
			setupMock: func(m *mockCompliance) {
				m.On("ComplianceScore", mock.Anything, models.FrameworkNIST800_53, "").Return(50.0, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"framework":"NIST_800_53","score":50}`,
		},
		{
			name:   "resource score with alias",
			target: "/api/v1/compliance/soc2/score?resource_id=r1",
			setupMock: func(m *mockCompliance) {
				m.On("ComplianceScore", mock.Anything, models.FrameworkSOC2, "r1").Return(100.0, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"framework":"SOC_2","resource_id":"r1","score":100}`,
		},
		{
			name:           "unknown framework",
			target:         "/api/v1/compliance/PCI/score",
			setupMock:      func(m *mockCompliance) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"unknown framework: PCI"}`,
		},
		{
			name:   "gaps",
			target: "/api/v1/compliance/ISO_27001/gaps",
			setupMock: func(m *mockCompliance) {
				m.On("IdentifyGaps", mock.Anything, models.FrameworkISO27001).Return([]string{"A.9.1.1: Access Control Policy"}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"framework":"ISO_27001","gaps":["A.9.1.1: Access Control Policy"]}`,
		},
		{
			name:   "no gaps is an empty list",
			target: "/api/v1/compliance/ISO_27001/gaps",
			setupMock: func(m *mockCompliance) {
				m.On("IdentifyGaps", mock.Anything, models.FrameworkISO27001).Return(nil, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"framework":"ISO_27001","gaps":[]}`,
		},
		{
			name:   "store failure",
			target: "/api/v1/compliance/NIST_800_53/gaps",
			setupMock: func(m *mockCompliance) {
				m.On("IdentifyGaps", mock.Anything, models.FrameworkNIST800_53).Return(nil, errors.New("database is locked"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"error":"database is locked"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compliance := new(mockCompliance)
			tt.setupMock(compliance)
			srv := New(config.ServerConfig{}, Dependencies{Compliance: compliance}, quietLogger())

			rec := do(t, srv, http.MethodGet, tt.target, "")

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.JSONEq(t, tt.expectedBody, rec.Body.String())
			compliance.AssertExpectations(t)
		})
	}
}

func TestSustainabilityRoutes(t *testing.T) {
	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	sustainability := new(mockSustainability)
	sustainability.On("CalculateEmissions", mock.Anything, start, end).
		Return(models.EmissionsTotals{TotalEmissionsKg: 18.6, TotalEnergyKWh: 45.2}, nil)
	sustainability.On("IdentifySavingsOpportunities", mock.Anything).Return(nil, nil)
	sustainability.On("SustainabilityScore", mock.Anything).Return(98.14, nil)
	sustainability.On("RegionalEmissions", mock.Anything).Return(map[string]float64{"us-central1": 100}, nil)

	srv := New(config.ServerConfig{}, Dependencies{Sustainability: sustainability}, quietLogger())

	rec := do(t, srv, http.MethodGet, "/api/v1/sustainability/emissions?start=2024-02-01T00:00:00Z&end=2024-03-01T00:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var emissions EmissionsResponse
	decode(t, rec, &emissions)
	assert.Equal(t, 18.6, emissions.TotalEmissionsKg)
	assert.Equal(t, 45.2, emissions.TotalEnergyKWh)
	assert.True(t, start.Equal(emissions.Start))

	rec = do(t, srv, http.MethodGet, "/api/v1/sustainability/opportunities", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"opportunities":[]}`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/api/v1/sustainability/score", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"score":98.14}`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/api/v1/sustainability/regions", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"regions":{"us-central1":100}}`, rec.Body.String())

	sustainability.AssertExpectations(t)
}

func TestEmissionsRejectsBadWindow(t *testing.T) {
	sustainability := new(mockSustainability)
	srv := New(config.ServerConfig{}, Dependencies{Sustainability: sustainability}, quietLogger())

	for _, query := range []string{
		"start=yesterday",
		"end=2024-13-01",
		"start=2024-03-02T00:00:00Z&end=2024-03-01T00:00:00Z",
	} {
		t.Run(query, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, "/api/v1/sustainability/emissions?"+query, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	sustainability.AssertNotCalled(t, "CalculateEmissions", mock.Anything, mock.Anything, mock.Anything)
}

func TestBuildPlaybook(t *testing.T) {
	built := &models.Playbook{ID: "pb-1", Name: "Unencrypted bucket", Category: models.CategoryCompliance, Steps: []models.PlaybookStep{}}

	tests := []struct {
		name           string
		body           string
		buildErr       error
		expectedStatus int
	}{
		{name: "built", body: `{"issue":"Unencrypted bucket","category":"COMPLIANCE"}`, expectedStatus: http.StatusOK},
		{name: "producer down", body: `{"issue":"Unencrypted bucket","category":"COMPLIANCE"}`, buildErr: fmt.Errorf("%w: timeout", playbook.ErrProducerUnavailable), expectedStatus: http.StatusBadGateway},
		{name: "bad category", body: `{"issue":"Unencrypted bucket","category":"COST"}`, buildErr: playbook.ErrInvalidCategory, expectedStatus: http.StatusBadRequest},
		{name: "malformed body", body: `{"issue":`, expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			builder := new(mockBuilder)
			if tt.buildErr != nil {
				builder.On("Build", mock.Anything, mock.Anything).Return(nil, tt.buildErr)
			} else {
				builder.On("Build", mock.Anything, mock.Anything).Return(built, nil)
			}
			srv := New(config.ServerConfig{}, Dependencies{Builder: builder}, quietLogger())

			rec := do(t, srv, http.MethodPost, "/api/v1/playbooks", tt.body)
			assert.Equal(t, tt.expectedStatus, rec.Code)

			if tt.expectedStatus == http.StatusOK {
				var pb models.Playbook
				decode(t, rec, &pb)
				assert.Equal(t, "pb-1", pb.ID)
				builder.AssertCalled(t, "Build", mock.Anything, playbook.BuildRequest{Issue: "Unencrypted bucket", Category: models.CategoryCompliance})
			}
		})
	}
}

func TestExecutePlaybook(t *testing.T) {
	executor := new(mockExecutor)
	executor.On("Execute", mock.Anything, mock.MatchedBy(func(pb *models.Playbook) bool {
		return pb.ID == "pb-1" && len(pb.Steps) == 1
	})).Return(models.ExecutionReport{
		PlaybookID: "pb-1",
		Success:    false,
		Errors:     []string{"Step step-1 execution failed: access denied"},
		State:      models.StateFailed,
	})
	srv := New(config.ServerConfig{}, Dependencies{Executor: executor}, quietLogger())

	rec := do(t, srv, http.MethodPost, "/api/v1/playbooks/execute",
		`{"id":"pb-1","steps":[{"id":"step-1","action":"Stop","command":"aws:ec2-stop i-1"}]}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	var report models.ExecutionReport
	decode(t, rec, &report)
	assert.False(t, report.Success)
	assert.Equal(t, models.StateFailed, report.State)
	assert.Equal(t, []string{"Step step-1 execution failed: access denied"}, report.Errors)
	executor.AssertExpectations(t)

	rec = do(t, srv, http.MethodPost, "/api/v1/playbooks/execute", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoutesMountedByDependency(t *testing.T) {
	srv := New(config.ServerConfig{}, Dependencies{
		Providers: staticProviders{{Name: "aws", Actions: []string{"ec2-stop"}, IsAuthenticated: true}},
	}, quietLogger())

	rec := do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/v1/providers", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ec2-stop"`)

	rec = do(t, srv, http.MethodGet, "/api/v1/compliance/NIST_800_53/score", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/v1/playbooks", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	srv := New(config.ServerConfig{Address: "127.0.0.1:0", ShutdownTimeout: time.Second}, Dependencies{}, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
