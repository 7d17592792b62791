package repository

import (
	"context"
	"database/sql"
	"fmt"

	"CostPull/internal/domain/models"
	domrepo "CostPull/internal/domain/repository"
	pkgch "CostPull/pkg/clickhouse"
)

// CHRunStore persists collection runs and the quality-metrics log.
type CHRunStore struct {
	db           *sql.DB
	runsTable    string
	qualityTable string
}

func NewCHRunStore(ch *pkgch.Client, database string) *CHRunStore {
	return &CHRunStore{
		db:           ch.DB(),
		runsTable:    database + ".collection_runs",
		qualityTable: database + ".quality_scores",
	}
}

func (s *CHRunStore) Init(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`
            CREATE TABLE IF NOT EXISTS %s (
                provider      LowCardinality(String),
                window_start  DateTime,
                window_end    DateTime,
                status        LowCardinality(String),
                fetched_count UInt32,
                started_at    DateTime,
                completed_at  DateTime,
                error         String,
                quality_score Float64
            ) ENGINE = MergeTree
            PARTITION BY toYYYYMM(started_at)
            ORDER BY (provider, started_at)
        `, s.runsTable),
		fmt.Sprintf(`
            CREATE TABLE IF NOT EXISTS %s (
                provider     LowCardinality(String),
                run_at       DateTime,
                freshness    Float64,
                completeness Float64,
                availability Float64,
                overall      Float64
            ) ENGINE = MergeTree
            PARTITION BY toYYYYMM(run_at)
            ORDER BY (provider, run_at)
        `, s.qualityTable),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init run store: %w", err)
		}
	}
	return nil
}

func (s *CHRunStore) RecordRun(ctx context.Context, run models.CollectionRun) error {
	q := fmt.Sprintf(
		"INSERT INTO %s (provider, window_start, window_end, status, fetched_count, started_at, completed_at, error, quality_score) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		s.runsTable,
	)
	_, err := s.db.ExecContext(ctx, q,
		run.Provider, run.WindowStart, run.WindowEnd, string(run.Status),
		run.FetchedCount, run.StartedAt, run.CompletedAt, run.Error, run.QualityScore,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

func (s *CHRunStore) RecordQuality(ctx context.Context, score models.QualityScore) error {
	q := fmt.Sprintf(
		"INSERT INTO %s (provider, run_at, freshness, completeness, availability, overall) VALUES (?, ?, ?, ?, ?, ?)",
		s.qualityTable,
	)
	_, err := s.db.ExecContext(ctx, q,
		score.Provider, score.RunAt, score.Freshness, score.Completeness, score.Availability, score.Overall,
	)
	if err != nil {
		return fmt.Errorf("record quality: %w", err)
	}
	return nil
}

func (s *CHRunStore) LastRuns(ctx context.Context, provider string, n int) ([]models.CollectionRun, error) {
	q := fmt.Sprintf(`
        SELECT provider, window_start, window_end, status, fetched_count, started_at, completed_at, error, quality_score
        FROM %s
        WHERE provider = ?
        ORDER BY started_at DESC
        LIMIT ?
    `, s.runsTable)
	rows, err := s.db.QueryContext(ctx, q, provider, n)
	if err != nil {
		return nil, fmt.Errorf("last runs: %w", err)
	}
	defer rows.Close()

	out := make([]models.CollectionRun, 0, n)
	for rows.Next() {
		var r models.CollectionRun
		var status string
		if err := rows.Scan(&r.Provider, &r.WindowStart, &r.WindowEnd, &status, &r.FetchedCount, &r.StartedAt, &r.CompletedAt, &r.Error, &r.QualityScore); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Status = models.RunStatus(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *CHRunStore) RecentQuality(ctx context.Context, provider string, n int) ([]models.QualityScore, error) {
	q := fmt.Sprintf(`
        SELECT provider, run_at, freshness, completeness, availability, overall
        FROM %s
        WHERE provider = ?
        ORDER BY run_at DESC
        LIMIT ?
    `, s.qualityTable)
	rows, err := s.db.QueryContext(ctx, q, provider, n)
	if err != nil {
		return nil, fmt.Errorf("recent quality: %w", err)
	}
	defer rows.Close()

	out := make([]models.QualityScore, 0, n)
	for rows.Next() {
		var sc models.QualityScore
		if err := rows.Scan(&sc.Provider, &sc.RunAt, &sc.Freshness, &sc.Completeness, &sc.Availability, &sc.Overall); err != nil {
			return nil, fmt.Errorf("scan quality: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *CHRunStore) Close() error { return nil }

var _ domrepo.RunStore = (*CHRunStore)(nil)
