package usecase

import (
	"context"
	"sync"
	"time"

	"CostPull/internal/domain/models"
	"CostPull/internal/domain/repository"
	"CostPull/internal/providers"
	"CostPull/internal/services/anomaly"
	"CostPull/internal/services/quality"
	"CostPull/pkg/config"
	"CostPull/pkg/logger"
)

// invalidator drops cached answers for a provider after a fresh batch lands.
type invalidator interface {
	InvalidateProvider(ctx context.Context, provider string) error
}

// Scheduler drives collection cycles: one bounded task per enabled provider
// per tick, at most one in-flight fetch per provider, failures isolated per
// provider.
type Scheduler struct {
	cfg        *config.Config
	registry   *providers.Registry
	normalizer *Normalizer
	costs      repository.CostStore
	runs       repository.RunStore
	scorer     *quality.Scorer
	detector   *anomaly.Detector
	events     repository.EventPublisher
	metrics    repository.Metrics
	queries    invalidator

	inflight map[string]*sync.Mutex

	stop chan struct{}
	done chan struct{}
	wg   sync.WaitGroup

	log *logger.Logger
}

func NewScheduler(
	cfg *config.Config,
	registry *providers.Registry,
	normalizer *Normalizer,
	costs repository.CostStore,
	runs repository.RunStore,
	scorer *quality.Scorer,
	detector *anomaly.Detector,
	events repository.EventPublisher,
	metrics repository.Metrics,
	queries invalidator,
) *Scheduler {
	inflight := make(map[string]*sync.Mutex)
	for _, name := range registry.Names() {
		inflight[name] = &sync.Mutex{}
	}
	return &Scheduler{
		cfg:        cfg,
		registry:   registry,
		normalizer: normalizer,
		costs:      costs,
		runs:       runs,
		scorer:     scorer,
		detector:   detector,
		events:     events,
		metrics:    metrics,
		queries:    queries,
		inflight:   inflight,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// SetLogger injects a structured logger.
func (s *Scheduler) SetLogger(log *logger.Logger) { s.log = log }

// Start launches the ticker loop. The first cycle runs immediately.
func (s *Scheduler) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.Collection.Cadence)
		defer ticker.Stop()

		s.runCycle()
		for {
			select {
			case <-ticker.C:
				s.runCycle()
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop halts the ticker and drains in-flight tasks, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	close(s.stop)
	<-s.done

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runCycle fans out one task per provider. The cycle does not wait for
// tasks: a slow provider never delays its siblings or the next tick.
func (s *Scheduler) runCycle() {
	now := time.Now().UTC()
	window := models.Window{Start: now.Add(-s.cfg.Collection.Window), End: now}

	for _, name := range s.registry.Names() {
		adapter, ok := s.registry.Get(name)
		if !ok {
			continue
		}
		s.wg.Add(1)
		go func(name string, adapter providers.Adapter) {
			defer s.wg.Done()
			s.collect(name, adapter, window)
		}(name, adapter)
	}
}

// collect runs one provider's fetch-normalize-store-score pass. A previous
// fetch still in flight turns this cycle into a recorded skip.
func (s *Scheduler) collect(name string, adapter providers.Adapter, window models.Window) {
	mu := s.inflight[name]
	if !mu.TryLock() {
		s.recordRun(models.CollectionRun{
			Provider:    name,
			WindowStart: window.Start,
			WindowEnd:   window.End,
			Status:      models.RunStatusSkipped,
			StartedAt:   time.Now().UTC(),
			CompletedAt: time.Now().UTC(),
		})
		if s.log != nil {
			s.log.Warn("collection skipped, previous fetch still running", logger.String("provider", name))
		}
		return
	}
	defer mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Collection.TaskTimeout)
	defer cancel()

	started := time.Now().UTC()
	run := models.CollectionRun{
		Provider:    name,
		WindowStart: window.Start,
		WindowEnd:   window.End,
		StartedAt:   started,
	}

	raw, err := adapter.FetchCostData(ctx, window)
	if err != nil {
		run.Status = models.RunStatusFailed
		run.Error = err.Error()
		run.CompletedAt = time.Now().UTC()
		s.metrics.RecordError(providers.ErrorKind(err))
		s.finishRun(ctx, run)
		if s.log != nil {
			s.log.Error("collection failed", logger.String("provider", name), logger.Error(err))
		}
		return
	}

	records, skipped := s.normalizer.Normalize(name, raw)
	if skipped > 0 && s.log != nil {
		s.log.Warn("malformed usage items skipped",
			logger.String("provider", name),
			logger.Int("skipped", skipped))
	}

	if err := s.costs.UpsertBatch(ctx, records); err != nil {
		run.Status = models.RunStatusFailed
		run.Error = err.Error()
		run.CompletedAt = time.Now().UTC()
		s.metrics.RecordError("storage")
		s.finishRun(ctx, run)
		return
	}

	run.Status = models.RunStatusSuccess
	run.FetchedCount = len(records)
	run.CompletedAt = time.Now().UTC()
	s.metrics.RecordFetched(name, len(records))
	s.metrics.RecordRunDuration(name, time.Since(started).Seconds())

	score := s.finishRun(ctx, run)
	run.QualityScore = score.Overall

	if err := s.queries.InvalidateProvider(ctx, name); err != nil && s.log != nil {
		s.log.Warn("cache invalidation failed", logger.String("provider", name), logger.Error(err))
	}
	if err := s.events.PublishBatchStored(ctx, name, window, len(records)); err != nil && s.log != nil {
		s.log.Warn("batch event publish failed", logger.String("provider", name), logger.Error(err))
	}

	s.detectBatch(ctx, name, records)

	if s.log != nil {
		s.log.Info("collection completed",
			logger.String("provider", name),
			logger.Int("records", len(records)),
			logger.Duration("duration_ms", time.Since(started)))
	}
}

// finishRun persists the run and scores it. Returns the quality score so
// successful runs can carry it.
func (s *Scheduler) finishRun(ctx context.Context, run models.CollectionRun) models.QualityScore {
	score, err := s.scorer.Score(ctx, run, s.cfg.Providers[run.Provider].ExpectedBaseline)
	if err != nil && s.log != nil {
		s.log.Warn("quality scoring failed", logger.String("provider", run.Provider), logger.Error(err))
	}
	run.QualityScore = score.Overall
	s.recordRun(run)
	return score
}

func (s *Scheduler) recordRun(run models.CollectionRun) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.runs.RecordRun(ctx, run); err != nil && s.log != nil {
		s.log.Error("recording collection run failed", logger.String("provider", run.Provider), logger.Error(err))
	}
}

// detectBatch runs anomaly detection for each service touched by the batch,
// publishing flagged points downstream.
func (s *Scheduler) detectBatch(ctx context.Context, provider string, records []models.CostRecord) {
	latestByService := make(map[string]map[time.Time]*models.DailyPoint)
	for _, r := range records {
		days, ok := latestByService[r.Service]
		if !ok {
			days = make(map[time.Time]*models.DailyPoint)
			latestByService[r.Service] = days
		}
		if p, ok := days[r.UsageDate]; ok {
			p.Cost += r.Cost
			p.Quantity += r.UsageQuantity
		} else {
			days[r.UsageDate] = &models.DailyPoint{Date: r.UsageDate, Cost: r.Cost, Quantity: r.UsageQuantity}
		}
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -90)
	for service, days := range latestByService {
		history, err := s.costs.DailyHistory(ctx, provider, service, start, end)
		if err != nil {
			continue
		}
		latest := make([]models.DailyPoint, 0, len(days))
		for _, p := range days {
			latest = append(latest, *p)
		}
		found, err := s.detector.Detect(ctx, provider, service, history, latest...)
		if err != nil {
			if s.log != nil {
				s.log.Warn("anomaly detection failed",
					logger.String("provider", provider),
					logger.String("service", service),
					logger.Error(err))
			}
			continue
		}
		for _, a := range found {
			if err := s.events.PublishAnomaly(ctx, a); err != nil && s.log != nil {
				s.log.Warn("anomaly event publish failed", logger.String("provider", provider), logger.Error(err))
			}
		}
	}
}
