package evidence

import (
	"context"
	"fmt"
	"time"

	"github.com/Tsahi-Elkayam/orbyte/pkg/models"
	"github.com/Tsahi-Elkayam/orbyte/pkg/store"
)

// sampleResource is a demo resource with the facts an assessment observed on it
type sampleResource struct {
	id    string
	kind  models.ResourceType
	facts map[string]interface{}
}

var sampleResources = []sampleResource{
	{
		id:   "project-123/compute-instance-1",
		kind: models.ResourceTypeVirtualMachine,
		facts: map[string]interface{}{
			FactEncryptionEnabled: true,
			FactIAMPolicy:         "restrictive",
		},
	},
	{
		id:   "project-123/audit-logs",
		kind: models.ResourceTypeObjectStorage,
		facts: map[string]interface{}{
			FactEncryptionEnabled: true,
			FactLoggingEnabled:    false,
			FactAccessControls:    true,
		},
	},
	{
		id:   "project-123/orders-db",
		kind: models.ResourceTypeDatabase,
		facts: map[string]interface{}{
			FactEncryptionEnabled: false,
			FactLoggingEnabled:    true,
		},
	},
}

// SampleEvidence returns demo evidence records assessed at now
func SampleEvidence(now time.Time) []models.EvidenceRecord {
	mapper := NewMapper(WithMapperClock(func() time.Time { return now }))

	var records []models.EvidenceRecord
	for _, r := range sampleResources {
		records = append(records, mapper.MapFacts(r.id, r.kind, r.facts)...)
	}
	return records
}

// SampleMetrics returns demo metric samples taken an hour before now
func SampleMetrics(now time.Time) []models.MetricRecord {
	ts := now.Add(-time.Hour)
	return []models.MetricRecord{
		{
			ResourceID:   "project-123/compute-instance-1",
			ResourceType: "compute.instance",
			Region:       "us-central1",
			EnergyKWh:    45.2,
			EmissionsKg:  18.6,
			Utilization:  0.35,
			IdleHours:    120,
			Timestamp:    ts,
		},
		{
			ResourceID:   "project-123/batch-worker-2",
			ResourceType: "compute.instance",
			Region:       "asia-east1",
			EnergyKWh:    80.5,
			EmissionsKg:  40.1,
			Utilization:  0.04,
			IdleHours:    600,
			Timestamp:    ts,
		},
		{
			ResourceID:   "project-123/orders-db",
			ResourceType: "sql.instance",
			Region:       "europe-west1",
			EnergyKWh:    30.0,
			EmissionsKg:  3.6,
			Utilization:  0.62,
			IdleHours:    0,
			Timestamp:    ts,
		},
	}
}

// Seed writes the sample evidence and metrics and returns how many of each were added
func Seed(ctx context.Context, evidence store.EvidenceStore, metrics store.MetricStore, now time.Time) (int, int, error) {
	records := SampleEvidence(now)
	if err := evidence.AddEvidence(ctx, records); err != nil {
		return 0, 0, fmt.Errorf("seed evidence: %w", err)
	}

	samples := SampleMetrics(now)
	if err := metrics.AddMetrics(ctx, samples); err != nil {
		return len(records), 0, fmt.Errorf("seed metrics: %w", err)
	}
	return len(records), len(samples), nil
}
