package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"CostPull/internal/domain/models"
	domrepo "CostPull/internal/domain/repository"
	pkgch "CostPull/pkg/clickhouse"
)

// CHAnomalyStore persists the anomaly log. Status updates come from outside
// the pipeline, so rows carry a ReplacingMergeTree version to let an external
// resolver overwrite status.
type CHAnomalyStore struct {
	db    *sql.DB
	table string
}

func NewCHAnomalyStore(ch *pkgch.Client, database string) *CHAnomalyStore {
	return &CHAnomalyStore{db: ch.DB(), table: database + ".anomalies"}
}

func (s *CHAnomalyStore) Init(ctx context.Context) error {
	ddl := fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            id         String,
            ts         DateTime,
            provider   LowCardinality(String),
            service    LowCardinality(String),
            actual     Float64,
            expected   Float64,
            score      Float64,
            severity   LowCardinality(String),
            status     LowCardinality(String),
            method     LowCardinality(String),
            created_at DateTime
        ) ENGINE = ReplacingMergeTree(created_at)
        PARTITION BY toYYYYMM(ts)
        ORDER BY (provider, service, ts, id)
    `, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init anomaly table: %w", err)
	}
	return nil
}

func (s *CHAnomalyStore) Insert(ctx context.Context, a models.Anomaly) error {
	q := fmt.Sprintf(
		"INSERT INTO %s (id, ts, provider, service, actual, expected, score, severity, status, method, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		s.table,
	)
	_, err := s.db.ExecContext(ctx, q,
		a.ID, a.Timestamp, a.Provider, a.Service, a.Actual, a.Expected,
		a.Score, string(a.Severity), string(a.Status), a.Method, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert anomaly: %w", err)
	}
	return nil
}

func (s *CHAnomalyStore) Open(ctx context.Context, provider string) ([]models.Anomaly, error) {
	q := fmt.Sprintf("SELECT id, ts, provider, service, actual, expected, score, severity, status, method, created_at FROM %s FINAL WHERE status = 'open'", s.table)
	args := []interface{}{}
	if provider != "" {
		q += " AND provider = ?"
		args = append(args, provider)
	}
	q += " ORDER BY ts DESC"
	return s.query(ctx, q, args...)
}

func (s *CHAnomalyStore) Query(ctx context.Context, provider, severity string, since time.Time) ([]models.Anomaly, error) {
	q := fmt.Sprintf("SELECT id, ts, provider, service, actual, expected, score, severity, status, method, created_at FROM %s FINAL WHERE ts >= ?", s.table)
	args := []interface{}{since}
	if provider != "" {
		q += " AND provider = ?"
		args = append(args, provider)
	}
	if severity != "" {
		q += " AND severity = ?"
		args = append(args, severity)
	}
	q += " ORDER BY ts DESC"
	return s.query(ctx, q, args...)
}

func (s *CHAnomalyStore) query(ctx context.Context, q string, args ...interface{}) ([]models.Anomaly, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query anomalies: %w", err)
	}
	defer rows.Close()

	out := make([]models.Anomaly, 0, 64)
	for rows.Next() {
		var a models.Anomaly
		var severity, status string
		if err := rows.Scan(&a.ID, &a.Timestamp, &a.Provider, &a.Service, &a.Actual, &a.Expected, &a.Score, &severity, &status, &a.Method, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan anomaly: %w", err)
		}
		a.Severity = models.AnomalySeverity(severity)
		a.Status = models.AnomalyStatus(status)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *CHAnomalyStore) Close() error { return nil }

var _ domrepo.AnomalyStore = (*CHAnomalyStore)(nil)
