package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"CostPull/internal/domain/models"
	domrepo "CostPull/internal/domain/repository"
	pkgch "CostPull/pkg/clickhouse"
	applogger "CostPull/pkg/logger"
	"CostPull/pkg/util"
)

// CHCostStore implements CostStore backed by ClickHouse. The table is a
// ReplacingMergeTree partitioned by usage month and ordered by the natural
// key, so re-inserting the same key replaces the row: idempotent upsert both
// within and across collection runs.
type CHCostStore struct {
	db      *sql.DB
	table   string
	l       *applogger.Logger
	sweepMu sync.Mutex // sweep and partition-affecting writes are exclusive
}

func NewCHCostStore(ch *pkgch.Client, database string) *CHCostStore {
	return &CHCostStore{db: ch.DB(), table: database + ".cost_records"}
}

// SetLogger injects a structured logger.
func (s *CHCostStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHCostStore) Init(ctx context.Context) error {
	ddl := fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            provider       LowCardinality(String),
            account_id     String,
            service        LowCardinality(String),
            resource_id    String,
            cost           Float64,
            currency       LowCardinality(String),
            usage_date     Date,
            usage_quantity Float64,
            usage_unit     LowCardinality(String),
            region         LowCardinality(String),
            tags           Map(String, String),
            billing_period String,
            inserted_at    DateTime DEFAULT now()
        ) ENGINE = ReplacingMergeTree(inserted_at)
        PARTITION BY toYYYYMM(usage_date)
        ORDER BY (provider, resource_id, service, usage_date)
    `, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init cost table: %w", err)
	}
	return nil
}

func (s *CHCostStore) UpsertBatch(ctx context.Context, records []models.CostRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	start := time.Now()
	// Chunked multi-row VALUES insert to reduce round-trips.
	const chunkSize = 2000
	for lo := 0; lo < len(records); lo += chunkSize {
		hi := lo + chunkSize
		if hi > len(records) {
			hi = len(records)
		}

		values := make([]string, 0, hi-lo)
		args := make([]interface{}, 0, (hi-lo)*12)
		for _, r := range records[lo:hi] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				r.Provider, r.AccountID, r.Service, r.ResourceID,
				r.Cost, r.Currency, r.UsageDate, r.UsageQuantity,
				r.UsageUnit, r.Region, r.Tags, r.BillingPeriod,
			)
		}
		q := fmt.Sprintf(
			"INSERT INTO %s (provider, account_id, service, resource_id, cost, currency, usage_date, usage_quantity, usage_unit, region, tags, billing_period) VALUES %s",
			s.table, strings.Join(values, ","),
		)
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse upsert batch error",
					applogger.Int("records", hi-lo),
					applogger.Error(err),
				)
			}
			return fmt.Errorf("upsert batch: %w", err)
		}
	}
	if s.l != nil {
		s.l.Debug("clickhouse upsert ok",
			applogger.Int("records", len(records)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return nil
}

var groupByColumns = map[string]string{
	"provider": "provider",
	"service":  "service",
	"region":   "region",
}

func (s *CHCostStore) Summary(ctx context.Context, providers []string, start, end time.Time, groupBy []string, gran models.Granularity) ([]models.CostSummaryRow, error) {
	bucketExpr := "toStartOfDay(toDateTime(usage_date))"
	if gran == models.GranularityMonthly {
		bucketExpr = "toStartOfMonth(toDateTime(usage_date))"
	}

	dims := make([]string, 0, len(groupBy))
	for _, g := range groupBy {
		col, ok := groupByColumns[g]
		if !ok {
			return nil, fmt.Errorf("unsupported group_by dimension %q", g)
		}
		dims = append(dims, col)
	}

	selectCols := append([]string{bucketExpr + " AS bucket"}, dims...)
	groupCols := append([]string{"bucket"}, dims...)

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s, sum(cost) AS total, any(currency) AS currency, count() AS records FROM %s FINAL WHERE usage_date >= ? AND usage_date < ?",
		strings.Join(selectCols, ", "), s.table)
	args := []interface{}{start, end}
	if len(providers) > 0 {
		fmt.Fprintf(&sb, " AND provider IN (%s)", placeholders(len(providers)))
		for _, p := range providers {
			args = append(args, p)
		}
	}
	fmt.Fprintf(&sb, " GROUP BY %s ORDER BY bucket ASC", strings.Join(groupCols, ", "))

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse summary query error", applogger.Error(err))
		}
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	out := make([]models.CostSummaryRow, 0, 256)
	for rows.Next() {
		var r models.CostSummaryRow
		dest := []interface{}{&r.Bucket}
		for _, g := range groupBy {
			switch g {
			case "provider":
				dest = append(dest, &r.Provider)
			case "service":
				dest = append(dest, &r.Service)
			case "region":
				dest = append(dest, &r.Region)
			}
		}
		dest = append(dest, &r.Total, &r.Currency, &r.Records)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *CHCostStore) DailyHistory(ctx context.Context, provider, service string, start, end time.Time) ([]models.DailyPoint, error) {
	q := fmt.Sprintf(`
        SELECT toDateTime(usage_date) AS day, sum(cost), sum(usage_quantity)
        FROM %s FINAL
        WHERE provider = ? AND service = ? AND usage_date >= ? AND usage_date < ?
        GROUP BY day
        ORDER BY day ASC
    `, s.table)
	rows, err := s.db.QueryContext(ctx, q, provider, service, start, end)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse daily history query error",
				applogger.String("provider", provider),
				applogger.String("service", service),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("daily history: %w", err)
	}
	defer rows.Close()

	out := make([]models.DailyPoint, 0, 128)
	for rows.Next() {
		var p models.DailyPoint
		if err := rows.Scan(&p.Date, &p.Cost, &p.Quantity); err != nil {
			return nil, fmt.Errorf("scan daily point: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *CHCostStore) Services(ctx context.Context, provider string, since time.Time) ([]string, error) {
	q := fmt.Sprintf("SELECT DISTINCT service FROM %s WHERE provider = ? AND usage_date >= ? ORDER BY service", s.table)
	rows, err := s.db.QueryContext(ctx, q, provider, since)
	if err != nil {
		return nil, fmt.Errorf("services: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var svc string
		if err := rows.Scan(&svc); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

// SweepRetention drops whole partitions past the horizon. Holding sweepMu
// keeps the sweep exclusive with batch writes.
func (s *CHCostStore) SweepRetention(ctx context.Context, horizon time.Duration) (int, error) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	cutoff := util.MonthOf(time.Now().Add(-horizon))

	q := fmt.Sprintf("SELECT DISTINCT toYYYYMM(usage_date) FROM %s WHERE usage_date < ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list partitions: %w", err)
	}
	var partitions []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan partition: %w", err)
		}
		partitions = append(partitions, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	dropped := 0
	for _, p := range partitions {
		stmt := fmt.Sprintf("ALTER TABLE %s DROP PARTITION %s", s.table, p)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return dropped, fmt.Errorf("drop partition %s: %w", p, err)
		}
		dropped++
		if s.l != nil {
			s.l.Info("retention partition dropped", applogger.String("partition", p))
		}
	}
	return dropped, nil
}

func (s *CHCostStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHCostStore) Close() error { return nil } // pool owned by pkg/clickhouse client

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

var _ domrepo.CostStore = (*CHCostStore)(nil)
