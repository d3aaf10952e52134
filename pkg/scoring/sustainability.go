package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Tsahi-Elkayam/orbyte/pkg/models"
	"github.com/Tsahi-Elkayam/orbyte/pkg/types"
)

const (
	idleHoursThreshold   = 720 // 30 days x 24h
	idleUtilizationLimit = 0.10
	idleReductionFactor  = 0.30

	// Flat signal for idle shutdowns, not derived from the metric.
	idleSavingsPercent = 1
)

// CalculateEmissions sums emissions and energy of samples inside [start, end].
// Zero bounds are a real window, not a request for every sample.
func (c *Calculator) CalculateEmissions(ctx context.Context, start, end time.Time) (models.EmissionsTotals, error) {
	window := types.TimeRange{Start: start, End: end}
	records, err := c.queryMetrics(ctx, window)
	if err != nil {
		return models.EmissionsTotals{}, err
	}

	var totals models.EmissionsTotals
	for _, record := range records {
		if !window.Contains(record.Timestamp) {
			continue
		}
		totals.TotalEmissionsKg += record.EmissionsKg
		totals.TotalEnergyKWh += record.EnergyKWh
	}
	return totals, nil
}

// IdentifySavingsOpportunities applies the idle and region rules to the latest
// sample of each resource in the look-back window (WithWindowDays, 30 days by
// default). A resource with no sample inside the window yields no opportunity,
// however idle its older samples were. Rules are additive; results are sorted
// by resource id then kind.
func (c *Calculator) IdentifySavingsOpportunities(ctx context.Context) ([]models.SavingsOpportunity, error) {
	records, err := c.queryMetrics(ctx, c.window())
	if err != nil {
		return nil, err
	}

	opportunities := []models.SavingsOpportunity{}
	for _, record := range latestMetrics(records) {
		if opp, ok := idleOpportunity(record); ok {
			opportunities = append(opportunities, opp)
		}
		if opp, ok := regionOpportunity(record); ok {
			opportunities = append(opportunities, opp)
		}
	}

	sort.SliceStable(opportunities, func(i, j int) bool {
		if opportunities[i].ResourceID != opportunities[j].ResourceID {
			return opportunities[i].ResourceID < opportunities[j].ResourceID
		}
		return opportunities[i].Kind < opportunities[j].Kind
	})

	c.logger.WithField("count", len(opportunities)).Debug("Identified savings opportunities")
	return opportunities, nil
}

// SustainabilityScore maps emissions of the look-back window onto [0, 100]
// against the monthly baseline.
func (c *Calculator) SustainabilityScore(ctx context.Context) (float64, error) {
	window := c.window()
	totals, err := c.CalculateEmissions(ctx, window.Start, window.End)
	if err != nil {
		return 0, err
	}

	score := 100 - totals.TotalEmissionsKg/c.baselineKg*100
	score = math.Min(100, math.Max(0, score))

	c.logger.WithFields(logrus.Fields{
		"emissions_kg": totals.TotalEmissionsKg,
		"baseline_kg":  c.baselineKg,
		"score":        score,
	}).Debug("Computed sustainability score")

	return score, nil
}

// RegionalEmissions returns each region's share of look-back emissions in percent.
// A zero grand total yields an empty map.
func (c *Calculator) RegionalEmissions(ctx context.Context) (map[string]float64, error) {
	records, err := c.queryMetrics(ctx, c.window())
	if err != nil {
		return nil, err
	}

	byRegion := make(map[string]float64)
	total := 0.0
	for _, record := range records {
		byRegion[record.Region] += record.EmissionsKg
		total += record.EmissionsKg
	}

	percentages := make(map[string]float64)
	if total == 0 {
		return percentages, nil
	}
	for region, emissions := range byRegion {
		percentages[region] = emissions / total * 100
	}
	return percentages, nil
}

func (c *Calculator) window() types.TimeRange {
	return types.LastDays(c.now(), c.windowDays)
}

func (c *Calculator) queryMetrics(ctx context.Context, window types.TimeRange) ([]models.MetricRecord, error) {
	qctx, cancel := c.queryContext(ctx)
	defer cancel()

	records, err := c.metrics.QueryMetrics(qctx, types.MetricQuery{Window: window})
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	return records, nil
}

// latestMetrics keeps the newest sample per resource, in first-seen order
func latestMetrics(records []models.MetricRecord) []models.MetricRecord {
	index := make(map[string]int)
	var latest []models.MetricRecord
	for _, record := range records {
		if i, ok := index[record.ResourceID]; ok {
			if !record.Timestamp.Before(latest[i].Timestamp) {
				latest[i] = record
			}
			continue
		}
		index[record.ResourceID] = len(latest)
		latest = append(latest, record)
	}
	return latest
}

func idleOpportunity(record models.MetricRecord) (models.SavingsOpportunity, bool) {
	if record.IdleHours <= idleHoursThreshold || record.Utilization >= idleUtilizationLimit {
		return models.SavingsOpportunity{}, false
	}
	return models.SavingsOpportunity{
		ResourceID:                    record.ResourceID,
		Kind:                          models.OpportunityShutdownIdle,
		PotentialSavingsPercent:       idleSavingsPercent,
		EstimatedEmissionsReductionKg: record.EmissionsKg * idleReductionFactor,
		Description:                   fmt.Sprintf("Shutdown unused instance: %s", record.ResourceID),
	}, true
}

func regionOpportunity(record models.MetricRecord) (models.SavingsOpportunity, bool) {
	current, ok := CarbonIntensity(record.Region)
	if !ok || current <= HighIntensityThreshold || !IsHighCarbonRegion(record.Region) {
		return models.SavingsOpportunity{}, false
	}
	target, ok := CarbonIntensity(TargetRegion)
	if !ok {
		return models.SavingsOpportunity{}, false
	}

	percent := math.Round((current - target) / current * 100)
	return models.SavingsOpportunity{
		ResourceID:                    record.ResourceID,
		Kind:                          models.OpportunityMigrateRegion,
		PotentialSavingsPercent:       percent,
		EstimatedEmissionsReductionKg: record.EmissionsKg * percent / 100,
		Description:                   fmt.Sprintf("Migrate to greener region: %s", TargetRegion),
		TargetRegion:                  TargetRegion,
	}, true
}
