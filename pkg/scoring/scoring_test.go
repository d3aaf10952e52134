package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsahi-Elkayam/orbyte/pkg/catalog"
	"github.com/Tsahi-Elkayam/orbyte/pkg/models"
	"github.com/Tsahi-Elkayam/orbyte/pkg/store/memory"
	"github.com/Tsahi-Elkayam/orbyte/pkg/types"
)

var fixedNow = time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

func newCalculator(t *testing.T, s *memory.Store) *Calculator {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewCalculator(s, s, WithClock(func() time.Time { return fixedNow }), WithLogger(logger))
}

func evidence(resource, control string, status models.ComplianceStatus, at time.Time) models.EvidenceRecord {
	return models.EvidenceRecord{
		ResourceID: resource,
		Framework:  models.FrameworkNIST800_53,
		ControlID:  control,
		Status:     status,
		AssessedAt: at,
	}
}

func TestComplianceScore(t *testing.T) {
	ctx := context.Background()
	day := 24 * time.Hour

	t.Run("no evidence scores exactly zero", func(t *testing.T) {
		c := newCalculator(t, memory.New())
		score, err := c.ComplianceScore(ctx, models.FrameworkNIST800_53, "")
		require.NoError(t, err)
		assert.Equal(t, 0.0, score)
	})

	s := memory.New()
	require.NoError(t, s.AddEvidence(ctx, []models.EvidenceRecord{
		evidence("bucket-a", "SC-28", models.StatusNonCompliant, fixedNow.Add(-2*day)),
		evidence("bucket-a", "SC-28", models.StatusCompliant, fixedNow.Add(-day)),
		evidence("bucket-a", "AC-3", models.StatusCompliant, fixedNow.Add(-day)),
		evidence("bucket-b", "SC-28", models.StatusPartial, fixedNow.Add(-day)),
		evidence("bucket-b", "AC-3", models.StatusNonCompliant, fixedNow.Add(-day)),
	}))
	c := newCalculator(t, s)

	tests := []struct {
		name       string
		resourceID string
		want       float64
	}{
		{name: "latest record per control wins", resourceID: "bucket-a", want: 100},
		{name: "all resources", resourceID: "", want: 50},
		{name: "no compliant controls", resourceID: "bucket-b", want: 0},
		{name: "unknown resource", resourceID: "missing", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, err := c.ComplianceScore(ctx, models.FrameworkNIST800_53, tt.resourceID)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, score, 1e-9)
		})
	}
}

func TestIdentifyGaps(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, catalog.Default().Seed(ctx, s))

	require.NoError(t, s.AddEvidence(ctx, []models.EvidenceRecord{
		evidence("bucket-a", "SC-28", models.StatusNonCompliant, fixedNow.Add(-2*time.Hour)),
		evidence("bucket-a", "SC-28", models.StatusCompliant, fixedNow.Add(-time.Hour)),
		evidence("bucket-b", "SC-28", models.StatusCompliant, fixedNow),
		evidence("bucket-b", "AC-3", models.StatusPartial, fixedNow),
		evidence("bucket-c", "AC-3", models.StatusNonCompliant, fixedNow),
		evidence("bucket-c", "XX-1", models.StatusNonCompliant, fixedNow),
		evidence("bucket-c", "AU-2", models.StatusNotApplicable, fixedNow),
	}))

	gaps, err := newCalculator(t, s).IdentifyGaps(ctx, models.FrameworkNIST800_53)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"AC-3: Access Enforcement",
		"XX-1: XX-1",
	}, gaps)

	gaps, err = newCalculator(t, s).IdentifyGaps(ctx, models.FrameworkSOC2)
	require.NoError(t, err)
	assert.Empty(t, gaps)
	assert.NotNil(t, gaps)
}

func TestCalculateEmissions(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.AddMetrics(ctx, []models.MetricRecord{
		{ResourceID: "vm-1", EnergyKWh: 45.2, EmissionsKg: 18.6, Timestamp: start},
		{ResourceID: "vm-2", EnergyKWh: 10, EmissionsKg: 4, Timestamp: end},
		{ResourceID: "vm-3", EnergyKWh: 99, EmissionsKg: 99, Timestamp: end.Add(time.Second)},
	}))
	c := newCalculator(t, s)

	totals, err := c.CalculateEmissions(ctx, start, end)
	require.NoError(t, err)
	assert.InDelta(t, 22.6, totals.TotalEmissionsKg, 1e-9)
	assert.InDelta(t, 55.2, totals.TotalEnergyKWh, 1e-9)

	totals, err = c.CalculateEmissions(ctx, start.AddDate(-1, 0, 0), start.AddDate(-1, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, models.EmissionsTotals{}, totals)

	totals, err = c.CalculateEmissions(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, models.EmissionsTotals{}, totals)

	totals, err = c.CalculateEmissions(ctx, end, start)
	require.NoError(t, err)
	assert.Equal(t, models.EmissionsTotals{}, totals)
}

func TestIdentifySavingsOpportunities(t *testing.T) {
	ctx := context.Background()

	t.Run("idle rule", func(t *testing.T) {
		s := memory.New()
		require.NoError(t, s.AddMetrics(ctx, []models.MetricRecord{
			{ResourceID: "vm-idle", Region: "us-central1", IdleHours: 800, Utilization: 0.05, EmissionsKg: 10, Timestamp: fixedNow},
		}))

		opps, err := newCalculator(t, s).IdentifySavingsOpportunities(ctx)
		require.NoError(t, err)
		require.Len(t, opps, 1)
		assert.Equal(t, models.OpportunityShutdownIdle, opps[0].Kind)
		assert.Equal(t, 1.0, opps[0].PotentialSavingsPercent)
		assert.InDelta(t, 3.0, opps[0].EstimatedEmissionsReductionKg, 1e-9)
	})

	t.Run("region rule", func(t *testing.T) {
		s := memory.New()
		require.NoError(t, s.AddMetrics(ctx, []models.MetricRecord{
			{ResourceID: "vm-asia", Region: "asia-east1", Utilization: 0.8, EmissionsKg: 20, Timestamp: fixedNow},
		}))

		opps, err := newCalculator(t, s).IdentifySavingsOpportunities(ctx)
		require.NoError(t, err)
		require.Len(t, opps, 1)
		assert.Equal(t, models.OpportunityMigrateRegion, opps[0].Kind)
		assert.Equal(t, 52.0, opps[0].PotentialSavingsPercent)
		assert.InDelta(t, 10.4, opps[0].EstimatedEmissionsReductionKg, 1e-9)
		assert.Equal(t, "europe-west1", opps[0].TargetRegion)
	})

	t.Run("rules are additive and sorted", func(t *testing.T) {
		s := memory.New()
		require.NoError(t, s.AddMetrics(ctx, []models.MetricRecord{
			{ResourceID: "vm-z", Region: "asia-southeast1", IdleHours: 900, Utilization: 0.01, EmissionsKg: 10, Timestamp: fixedNow},
			{ResourceID: "vm-a", Region: "asia-east1", IdleHours: 1000, Utilization: 0.02, EmissionsKg: 10, Timestamp: fixedNow},
		}))

		opps, err := newCalculator(t, s).IdentifySavingsOpportunities(ctx)
		require.NoError(t, err)
		require.Len(t, opps, 4)
		assert.Equal(t, "vm-a", opps[0].ResourceID)
		assert.Equal(t, models.OpportunityMigrateRegion, opps[0].Kind)
		assert.Equal(t, models.OpportunityShutdownIdle, opps[1].Kind)
		assert.Equal(t, "vm-z", opps[2].ResourceID)
	})

	t.Run("thresholds and unknown regions", func(t *testing.T) {
		s := memory.New()
		require.NoError(t, s.AddMetrics(ctx, []models.MetricRecord{
			{ResourceID: "exactly-720", Region: "us-east1", IdleHours: 720, Utilization: 0.0, EmissionsKg: 10, Timestamp: fixedNow},
			{ResourceID: "busy", Region: "us-east1", IdleHours: 800, Utilization: 0.10, EmissionsKg: 10, Timestamp: fixedNow},
			{ResourceID: "mars", Region: "mars-north1", Utilization: 0.5, EmissionsKg: 10, Timestamp: fixedNow},
			{ResourceID: "stale", Region: "asia-east1", Utilization: 0.5, EmissionsKg: 10, Timestamp: fixedNow.AddDate(0, 0, -31)},
		}))

		opps, err := newCalculator(t, s).IdentifySavingsOpportunities(ctx)
		require.NoError(t, err)
		assert.Empty(t, opps)
	})

	t.Run("latest sample per resource", func(t *testing.T) {
		s := memory.New()
		require.NoError(t, s.AddMetrics(ctx, []models.MetricRecord{
			{ResourceID: "vm-1", Region: "us-east1", IdleHours: 800, Utilization: 0.01, EmissionsKg: 10, Timestamp: fixedNow.Add(-time.Hour)},
			{ResourceID: "vm-1", Region: "us-east1", IdleHours: 0, Utilization: 0.9, EmissionsKg: 10, Timestamp: fixedNow},
		}))

		opps, err := newCalculator(t, s).IdentifySavingsOpportunities(ctx)
		require.NoError(t, err)
		assert.Empty(t, opps)
	})
}

func TestSustainabilityScore(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		emissions []float64
		want      float64
	}{
		{name: "no emissions", want: 100},
		{name: "quarter of baseline", emissions: []float64{100, 150}, want: 75},
		{name: "over baseline clamps at zero", emissions: []float64{1500}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := memory.New()
			for i, e := range tt.emissions {
				require.NoError(t, s.AddMetrics(ctx, []models.MetricRecord{
					{ResourceID: "vm", EmissionsKg: e, Timestamp: fixedNow.Add(-time.Duration(i) * time.Hour)},
				}))
			}
			score, err := newCalculator(t, s).SustainabilityScore(ctx)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, score, 1e-9)
		})
	}

	t.Run("custom baseline", func(t *testing.T) {
		s := memory.New()
		require.NoError(t, s.AddMetrics(ctx, []models.MetricRecord{{ResourceID: "vm", EmissionsKg: 50, Timestamp: fixedNow}}))
		c := NewCalculator(s, s, WithClock(func() time.Time { return fixedNow }), WithBaseline(100))
		score, err := c.SustainabilityScore(ctx)
		require.NoError(t, err)
		assert.InDelta(t, 50, score, 1e-9)
	})
}

func TestRegionalEmissions(t *testing.T) {
	ctx := context.Background()

	t.Run("zero total yields empty map", func(t *testing.T) {
		s := memory.New()
		require.NoError(t, s.AddMetrics(ctx, []models.MetricRecord{{ResourceID: "vm", Region: "us-east1", Timestamp: fixedNow}}))
		regions, err := newCalculator(t, s).RegionalEmissions(ctx)
		require.NoError(t, err)
		assert.Empty(t, regions)
	})

	t.Run("shares of total", func(t *testing.T) {
		s := memory.New()
		require.NoError(t, s.AddMetrics(ctx, []models.MetricRecord{
			{ResourceID: "a", Region: "us-east1", EmissionsKg: 30, Timestamp: fixedNow},
			{ResourceID: "b", Region: "us-east1", EmissionsKg: 10, Timestamp: fixedNow},
			{ResourceID: "c", Region: "asia-east1", EmissionsKg: 60, Timestamp: fixedNow},
			{ResourceID: "d", Region: "asia-east1", EmissionsKg: 500, Timestamp: fixedNow.AddDate(0, 0, -40)},
		}))
		regions, err := newCalculator(t, s).RegionalEmissions(ctx)
		require.NoError(t, err)
		require.Len(t, regions, 2)
		assert.InDelta(t, 40, regions["us-east1"], 1e-9)
		assert.InDelta(t, 60, regions["asia-east1"], 1e-9)
	})
}

type failingStore struct {
	*memory.Store
	err error
}

func (f failingStore) QueryEvidence(context.Context, types.EvidenceQuery) ([]models.EvidenceRecord, error) {
	return nil, f.err
}

func (f failingStore) QueryMetrics(context.Context, types.MetricQuery) ([]models.MetricRecord, error) {
	return nil, f.err
}

func TestCalculator_StoreErrors(t *testing.T) {
	boom := errors.New("store offline")
	s := failingStore{Store: memory.New(), err: boom}
	c := NewCalculator(s, s)
	ctx := context.Background()

	_, err := c.ComplianceScore(ctx, models.FrameworkSOC2, "")
	assert.ErrorIs(t, err, boom)

	_, err = c.IdentifyGaps(ctx, models.FrameworkSOC2)
	assert.ErrorIs(t, err, boom)

	_, err = c.SustainabilityScore(ctx)
	assert.ErrorIs(t, err, boom)

	_, err = c.RegionalEmissions(ctx)
	assert.ErrorIs(t, err, boom)
}

func TestCarbonTable(t *testing.T) {
	v, ok := CarbonIntensity("asia-east1")
	require.True(t, ok)
	assert.Equal(t, 0.570, v)

	_, ok = CarbonIntensity("unknown-region")
	assert.False(t, ok)

	assert.True(t, IsHighCarbonRegion("asia-southeast1"))
	assert.False(t, IsHighCarbonRegion("us-east1"))
	assert.Len(t, KnownRegions(), 7)
}
