package store

import (
	"context"
	"errors"

	"github.com/Tsahi-Elkayam/orbyte/pkg/models"
	"github.com/Tsahi-Elkayam/orbyte/pkg/types"
)

// ErrStoreClosed is returned when a store is used after Close
var ErrStoreClosed = errors.New("store is closed")

// EvidenceStore is the queryable source of compliance evidence and control reference data
type EvidenceStore interface {
	QueryEvidence(ctx context.Context, q types.EvidenceQuery) ([]models.EvidenceRecord, error)
	AddEvidence(ctx context.Context, records []models.EvidenceRecord) error
	Controls(ctx context.Context, framework models.Framework) ([]models.Control, error)
	UpsertControls(ctx context.Context, controls []models.Control) error
}

// MetricStore is the append-only source of energy and emissions samples
type MetricStore interface {
	QueryMetrics(ctx context.Context, q types.MetricQuery) ([]models.MetricRecord, error)
	AddMetrics(ctx context.Context, records []models.MetricRecord) error
}

// Store combines both data sources
type Store interface {
	EvidenceStore
	MetricStore
	Close() error
}
