package scoring

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/Tsahi-Elkayam/orbyte/pkg/models"
	"github.com/Tsahi-Elkayam/orbyte/pkg/types"
)

// ComplianceScore returns the percentage of compliant controls for a framework,
// optionally restricted to one resource. Only the latest record per resource and
// control counts. No matching evidence yields exactly 0.
func (c *Calculator) ComplianceScore(ctx context.Context, framework models.Framework, resourceID string) (float64, error) {
	records, err := c.latestEvidence(ctx, types.EvidenceQuery{Framework: framework, ResourceID: resourceID})
	if err != nil {
		return 0, err
	}

	total := len(records)
	if total == 0 {
		return 0, nil
	}

	compliant := 0
	for _, record := range records {
		if record.Status == models.StatusCompliant {
			compliant++
		}
	}

	score := float64(compliant) / float64(total) * 100
	c.logger.WithFields(logrus.Fields{
		"framework":   framework,
		"resource_id": resourceID,
		"evaluated":   total,
		"compliant":   compliant,
	}).Debug("Computed compliance score")

	return score, nil
}

// IdentifyGaps lists "<control_id>: <control_name>" for every control whose latest
// status on any resource is NON_COMPLIANT or PARTIAL, sorted by control id.
func (c *Calculator) IdentifyGaps(ctx context.Context, framework models.Framework) ([]string, error) {
	records, err := c.latestEvidence(ctx, types.EvidenceQuery{Framework: framework})
	if err != nil {
		return nil, err
	}

	gapControls := make(map[string]bool)
	for _, record := range records {
		if record.Status.IsGap() {
			gapControls[record.ControlID] = true
		}
	}
	if len(gapControls) == 0 {
		return []string{}, nil
	}

	names, err := c.controlNames(ctx, framework)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(gapControls))
	for id := range gapControls {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	gaps := make([]string, 0, len(ids))
	for _, id := range ids {
		name, ok := names[id]
		if !ok || name == "" {
			name = id
		}
		gaps = append(gaps, fmt.Sprintf("%s: %s", id, name))
	}

	return gaps, nil
}

// latestEvidence keeps the most recent record per resource and control. On equal
// timestamps the record returned later by the store wins.
func (c *Calculator) latestEvidence(ctx context.Context, q types.EvidenceQuery) ([]models.EvidenceRecord, error) {
	qctx, cancel := c.queryContext(ctx)
	defer cancel()

	records, err := c.evidence.QueryEvidence(qctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query evidence: %w", err)
	}

	index := make(map[string]int)
	var latest []models.EvidenceRecord
	for _, record := range records {
		key := record.Key()
		if i, ok := index[key]; ok {
			if !record.AssessedAt.Before(latest[i].AssessedAt) {
				latest[i] = record
			}
			continue
		}
		index[key] = len(latest)
		latest = append(latest, record)
	}

	return latest, nil
}

func (c *Calculator) controlNames(ctx context.Context, framework models.Framework) (map[string]string, error) {
	qctx, cancel := c.queryContext(ctx)
	defer cancel()

	controls, err := c.evidence.Controls(qctx, framework)
	if err != nil {
		return nil, fmt.Errorf("failed to load controls: %w", err)
	}

	names := make(map[string]string, len(controls))
	for _, control := range controls {
		names[control.ControlID] = control.Name
	}
	return names, nil
}
