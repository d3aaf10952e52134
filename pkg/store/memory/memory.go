package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Tsahi-Elkayam/orbyte/pkg/models"
	"github.com/Tsahi-Elkayam/orbyte/pkg/store"
	"github.com/Tsahi-Elkayam/orbyte/pkg/types"
)

// Store keeps evidence, metrics and controls in process memory.
// Query results are returned in insertion order.
type Store struct {
	evidence []models.EvidenceRecord
	metrics  []models.MetricRecord
	controls map[models.Framework]map[string]models.Control
	closed   bool
	mu       sync.RWMutex
}

// New creates an empty in-memory store
func New() *Store {
	return &Store{
		controls: make(map[models.Framework]map[string]models.Control),
	}
}

// QueryEvidence returns evidence records matching the query
func (s *Store) QueryEvidence(ctx context.Context, q types.EvidenceQuery) ([]models.EvidenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result []models.EvidenceRecord
	for _, record := range s.evidence {
		if q.Framework != "" && record.Framework != q.Framework {
			continue
		}
		if q.ResourceID != "" && record.ResourceID != q.ResourceID {
			continue
		}
		if !q.Window.IsZero() && !q.Window.Contains(record.AssessedAt) {
			continue
		}
		record.Gaps = append([]string(nil), record.Gaps...)
		result = append(result, record)
	}
	return result, nil
}

// AddEvidence appends evidence records
func (s *Store) AddEvidence(ctx context.Context, records []models.EvidenceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrStoreClosed
	}
	for _, record := range records {
		record.Gaps = append([]string(nil), record.Gaps...)
		s.evidence = append(s.evidence, record)
	}
	return nil
}

// Controls returns the controls of a framework sorted by control id
func (s *Store) Controls(ctx context.Context, framework models.Framework) ([]models.Control, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrStoreClosed
	}

	byID := s.controls[framework]
	controls := make([]models.Control, 0, len(byID))
	for _, control := range byID {
		controls = append(controls, control)
	}
	sort.Slice(controls, func(i, j int) bool {
		return controls[i].ControlID < controls[j].ControlID
	})
	return controls, nil
}

// UpsertControls inserts or replaces controls keyed by framework and control id
func (s *Store) UpsertControls(ctx context.Context, controls []models.Control) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrStoreClosed
	}
	for _, control := range controls {
		if s.controls[control.Framework] == nil {
			s.controls[control.Framework] = make(map[string]models.Control)
		}
		s.controls[control.Framework][control.ControlID] = control
	}
	return nil
}

// QueryMetrics returns metric records matching the query
func (s *Store) QueryMetrics(ctx context.Context, q types.MetricQuery) ([]models.MetricRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result []models.MetricRecord
	for _, record := range s.metrics {
		if q.ResourceID != "" && record.ResourceID != q.ResourceID {
			continue
		}
		if q.Region != "" && record.Region != q.Region {
			continue
		}
		if !q.Window.IsZero() && !q.Window.Contains(record.Timestamp) {
			continue
		}
		result = append(result, record)
	}
	return result, nil
}

// AddMetrics appends metric records
func (s *Store) AddMetrics(ctx context.Context, records []models.MetricRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrStoreClosed
	}
	s.metrics = append(s.metrics, records...)
	return nil
}

// Close marks the store closed
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ store.Store = (*Store)(nil)
