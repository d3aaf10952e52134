package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/Tsahi-Elkayam/orbyte/pkg/models"
	"github.com/Tsahi-Elkayam/orbyte/pkg/store"
	"github.com/Tsahi-Elkayam/orbyte/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS controls (
	framework TEXT NOT NULL,
	control_id TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT,
	evidence_requirements TEXT,
	PRIMARY KEY (framework, control_id)
);

CREATE TABLE IF NOT EXISTS evidence (
	resource_id TEXT NOT NULL,
	framework TEXT NOT NULL,
	control_id TEXT NOT NULL,
	status TEXT NOT NULL,
	evidence_count INTEGER NOT NULL DEFAULT 0,
	assessed_at INTEGER NOT NULL,
	gaps TEXT
);

CREATE INDEX IF NOT EXISTS idx_evidence_framework ON evidence(framework, resource_id);

CREATE TABLE IF NOT EXISTS metrics (
	resource_id TEXT NOT NULL,
	resource_type TEXT,
	region TEXT,
	energy_kwh REAL NOT NULL DEFAULT 0,
	emissions_kg_co2 REAL NOT NULL DEFAULT 0,
	utilization REAL NOT NULL DEFAULT 0,
	idle_hours REAL NOT NULL DEFAULT 0,
	ts INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_metrics_ts ON metrics(ts);
`

// Store persists evidence, metrics and controls in SQLite.
// Timestamps are stored as UTC unix nanoseconds so range filters compare numerically.
type Store struct {
	DBPath string
	db     *sql.DB
	logger *logrus.Logger
}

// Open opens or creates the database file and ensures the schema exists
func Open(path string, logger *logrus.Logger) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve store path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return nil, fmt.Errorf("ensure store dir: %w", err)
		}
		dsn = absPath
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	s := New(db, logger)
	s.DBPath = dsn
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection. The schema is not touched; call Migrate for that.
func New(db *sql.DB, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{db: db, logger: logger}
}

// Migrate creates the tables and indexes if they are missing
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create store schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// QueryEvidence returns evidence rows matching the query in insertion order
func (s *Store) QueryEvidence(ctx context.Context, q types.EvidenceQuery) ([]models.EvidenceRecord, error) {
	var where []string
	var args []interface{}
	if q.Framework != "" {
		where = append(where, "framework = ?")
		args = append(args, string(q.Framework))
	}
	if q.ResourceID != "" {
		where = append(where, "resource_id = ?")
		args = append(args, q.ResourceID)
	}
	if !q.Window.IsZero() {
		where = append(where, "assessed_at BETWEEN ? AND ?")
		args = append(args, toUnix(q.Window.Start), toUnix(q.Window.End))
	}

	query := "SELECT resource_id, framework, control_id, status, evidence_count, assessed_at, gaps FROM evidence"
	query += whereClause(where) + " ORDER BY rowid"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query evidence: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Warnf("Failed to close evidence rows: %v", err)
		}
	}()

	var records []models.EvidenceRecord
	for rows.Next() {
		var (
			record     models.EvidenceRecord
			framework  string
			status     string
			assessedAt int64
			gaps       sql.NullString
		)
		if err := rows.Scan(&record.ResourceID, &framework, &record.ControlID, &status,
			&record.EvidenceCount, &assessedAt, &gaps); err != nil {
			return nil, fmt.Errorf("scan evidence row: %w", err)
		}
		record.Framework = models.Framework(framework)
		record.Status = models.ComplianceStatus(status)
		record.AssessedAt = fromUnix(assessedAt)
		if gaps.Valid && gaps.String != "" {
			if err := json.Unmarshal([]byte(gaps.String), &record.Gaps); err != nil {
				return nil, fmt.Errorf("decode evidence gaps for %s: %w", record.ResourceID, err)
			}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evidence rows: %w", err)
	}

	return records, nil
}

// AddEvidence inserts evidence records in a single transaction
func (s *Store) AddEvidence(ctx context.Context, records []models.EvidenceRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO evidence (resource_id, framework, control_id, status, evidence_count, assessed_at, gaps)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		gaps, err := json.Marshal(record.Gaps)
		if err != nil {
			return fmt.Errorf("marshal gaps: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			record.ResourceID,
			string(record.Framework),
			record.ControlID,
			string(record.Status),
			record.EvidenceCount,
			toUnix(record.AssessedAt),
			string(gaps),
		); err != nil {
			return fmt.Errorf("insert evidence: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.Debugf("Stored %d evidence records", len(records))
	return nil
}

// Controls returns the controls of a framework sorted by control id
func (s *Store) Controls(ctx context.Context, framework models.Framework) ([]models.Control, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT framework, control_id, name, description, evidence_requirements
		FROM controls WHERE framework = ? ORDER BY control_id`, string(framework))
	if err != nil {
		return nil, fmt.Errorf("query controls: %w", err)
	}
	defer rows.Close()

	var controls []models.Control
	for rows.Next() {
		var (
			control      models.Control
			fw           string
			description  sql.NullString
			requirements sql.NullString
		)
		if err := rows.Scan(&fw, &control.ControlID, &control.Name, &description, &requirements); err != nil {
			return nil, fmt.Errorf("scan control row: %w", err)
		}
		control.Framework = models.Framework(fw)
		control.Description = description.String
		if requirements.Valid && requirements.String != "" {
			if err := json.Unmarshal([]byte(requirements.String), &control.EvidenceRequirements); err != nil {
				return nil, fmt.Errorf("decode evidence requirements for %s: %w", control.ControlID, err)
			}
		}
		controls = append(controls, control)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate control rows: %w", err)
	}

	return controls, nil
}

// UpsertControls inserts or replaces control reference data
func (s *Store) UpsertControls(ctx context.Context, controls []models.Control) error {
	if len(controls) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, control := range controls {
		requirements, err := json.Marshal(control.EvidenceRequirements)
		if err != nil {
			return fmt.Errorf("marshal evidence requirements: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO controls (framework, control_id, name, description, evidence_requirements)
			VALUES (?, ?, ?, ?, ?)`,
			string(control.Framework), control.ControlID, control.Name, control.Description, string(requirements),
		); err != nil {
			return fmt.Errorf("upsert control %s: %w", control.ControlID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// QueryMetrics returns metric rows matching the query in insertion order
func (s *Store) QueryMetrics(ctx context.Context, q types.MetricQuery) ([]models.MetricRecord, error) {
	var where []string
	var args []interface{}
	if q.ResourceID != "" {
		where = append(where, "resource_id = ?")
		args = append(args, q.ResourceID)
	}
	if q.Region != "" {
		where = append(where, "region = ?")
		args = append(args, q.Region)
	}
	if !q.Window.IsZero() {
		where = append(where, "ts BETWEEN ? AND ?")
		args = append(args, toUnix(q.Window.Start), toUnix(q.Window.End))
	}

	query := "SELECT resource_id, resource_type, region, energy_kwh, emissions_kg_co2, utilization, idle_hours, ts FROM metrics"
	query += whereClause(where) + " ORDER BY rowid"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var records []models.MetricRecord
	for rows.Next() {
		var (
			record       models.MetricRecord
			resourceType sql.NullString
			region       sql.NullString
			ts           int64
		)
		if err := rows.Scan(&record.ResourceID, &resourceType, &region, &record.EnergyKWh,
			&record.EmissionsKg, &record.Utilization, &record.IdleHours, &ts); err != nil {
			return nil, fmt.Errorf("scan metric row: %w", err)
		}
		record.ResourceType = resourceType.String
		record.Region = region.String
		record.Timestamp = fromUnix(ts)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metric rows: %w", err)
	}

	return records, nil
}

// AddMetrics appends metric samples in a single transaction
func (s *Store) AddMetrics(ctx context.Context, records []models.MetricRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO metrics (resource_id, resource_type, region, energy_kwh, emissions_kg_co2, utilization, idle_hours, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		if _, err := stmt.ExecContext(ctx,
			record.ResourceID,
			record.ResourceType,
			record.Region,
			record.EnergyKWh,
			record.EmissionsKg,
			record.Utilization,
			record.IdleHours,
			toUnix(record.Timestamp),
		); err != nil {
			return fmt.Errorf("insert metric: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.Debugf("Stored %d metric records", len(records))
	return nil
}

func whereClause(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}

func toUnix(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

var _ store.Store = (*Store)(nil)
