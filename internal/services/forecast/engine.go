package forecast

import (
	"context"
	"math"
	"sync"
	"time"

	"CostPull/internal/domain/models"
	"CostPull/internal/domain/repository"
	"CostPull/pkg/logger"
	"CostPull/pkg/queue"
)

const (
	historyDays = 90

	// RetrainMessageType routes retrain requests on the job queue.
	RetrainMessageType = "forecast.retrain"
)

// RetrainRequest is the payload carried on the retrain queue.
type RetrainRequest struct {
	Provider string `json:"provider"`
	Service  string `json:"service"`
}

// qualityGate reports whether a provider's history is currently too
// unreliable to train on.
type qualityGate interface {
	Excluded(ctx context.Context, provider string) (bool, error)
}

type entry struct {
	mu    sync.Mutex // serializes training per key
	model tierModel
	meta  models.ForecastModel
}

// Engine owns the per-(provider, service) model registry and the training
// cascade. Training never runs on the collection path: callers request a
// retrain, which either lands on the job queue or a background goroutine.
type Engine struct {
	store repository.CostStore
	gate  qualityGate
	jobs  queue.QueueService // nil → in-process background training

	retrainInterval time.Duration
	driftFactor     float64

	mu       sync.RWMutex
	registry map[string]*entry

	log *logger.Logger
}

func NewEngine(store repository.CostStore, gate qualityGate, retrainInterval time.Duration, driftFactor float64) *Engine {
	if retrainInterval <= 0 {
		retrainInterval = 24 * time.Hour
	}
	if driftFactor <= 1 {
		driftFactor = 1.5
	}
	return &Engine{
		store:           store,
		gate:            gate,
		retrainInterval: retrainInterval,
		driftFactor:     driftFactor,
		registry:        make(map[string]*entry),
	}
}

// SetLogger injects a structured logger.
func (e *Engine) SetLogger(log *logger.Logger) { e.log = log }

// SetQueue routes retrain requests through a job queue instead of
// in-process goroutines.
func (e *Engine) SetQueue(q queue.QueueService) { e.jobs = q }

func key(provider, service string) string { return provider + "|" + service }

func (e *Engine) entryFor(provider, service string) *entry {
	k := key(provider, service)
	e.mu.RLock()
	en, ok := e.registry[k]
	e.mu.RUnlock()
	if ok {
		return en
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if en, ok = e.registry[k]; ok {
		return en
	}
	en = &entry{meta: models.ForecastModel{
		Provider: provider,
		Service:  service,
		State:    models.ModelUntrained,
	}}
	e.registry[k] = en
	return en
}

// Train fits the cascade for one key. Distinct keys train in parallel; the
// per-entry mutex keeps at most one training run per key.
func (e *Engine) Train(ctx context.Context, provider, service string) error {
	en := e.entryFor(provider, service)
	en.mu.Lock()
	defer en.mu.Unlock()

	if en.meta.State == models.ModelReady || en.meta.State == models.ModelStale {
		en.meta.State = models.ModelRetraining
	} else {
		en.meta.State = models.ModelTraining
	}

	history, err := e.loadHistory(ctx, provider, service)
	if err != nil {
		en.meta.State = models.ModelDegraded
		return err
	}

	excluded := false
	if e.gate != nil {
		if ex, gerr := e.gate.Excluded(ctx, provider); gerr == nil {
			excluded = ex
		}
	}

	model, acc := e.selectTier(history, excluded)
	en.model = model
	en.meta.Tier = model.Tier()
	en.meta.TrainedAt = time.Now().UTC()
	en.meta.MAE = acc.MAE
	en.meta.RMSE = acc.RMSE
	en.meta.SampleCount = len(history)
	if model.Tier() == models.TierHeuristic && len(history) < minMinimalPoints {
		en.meta.State = models.ModelDegraded
	} else {
		en.meta.State = models.ModelReady
	}

	if e.log != nil {
		e.log.Info("forecast model trained",
			logger.String("provider", provider),
			logger.String("service", service),
			logger.String("tier", string(en.meta.Tier)),
			logger.Int("samples", len(history)))
	}
	return nil
}

// selectTier walks the cascade in order and returns the first viable tier,
// trained on the full series, with its held-out accuracy. A quality
// exclusion forces the heuristic so a degraded source cannot pollute the
// better tiers.
func (e *Engine) selectTier(history []models.DailyPoint, excluded bool) (tierModel, accuracy) {
	if !excluded {
		candidates := []func() tierModel{
			func() tierModel { return newSeasonalModel() },
			func() tierModel { return newRegressionModel() },
			func() tierModel { return newMinimalModel() },
		}
		for _, build := range candidates {
			acc, err := backtest(build, history)
			if err != nil {
				continue
			}
			model := build()
			if err := model.Train(history); err != nil {
				continue
			}
			return model, acc
		}
	}

	h := newHeuristicModel()
	acc, _ := backtest(func() tierModel { return newHeuristicModel() }, history)
	_ = h.Train(history) // heuristic training cannot fail
	return h, acc
}

func (e *Engine) loadHistory(ctx context.Context, provider, service string) ([]models.DailyPoint, error) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -historyDays)
	return e.store.DailyHistory(ctx, provider, service, start, end)
}

// Predict never fails: untrained or degraded keys answer from the heuristic,
// zero history answers from the global prior at floor confidence.
func (e *Engine) Predict(ctx context.Context, provider, service string, horizonDays int) models.Prediction {
	if horizonDays < 1 {
		horizonDays = 1
	}
	en := e.entryFor(provider, service)

	en.mu.Lock()
	model := en.model
	meta := en.meta
	en.mu.Unlock()

	if model == nil {
		history, err := e.loadHistory(ctx, provider, service)
		if err != nil {
			history = nil
		}
		h := newHeuristicModel()
		_ = h.Train(history)
		model = h
		meta.Tier = models.TierHeuristic
		meta.SampleCount = len(history)
		// First query on a cold key also kicks off real training.
		e.RequestRetrain(ctx, provider, service)
	}

	points := model.Forecast(horizonDays)
	return models.Prediction{
		Provider:    provider,
		Service:     service,
		Tier:        model.Tier(),
		Points:      points,
		Confidence:  e.confidence(meta, points),
		GeneratedAt: time.Now().UTC(),
	}
}

// confidence blends backtest accuracy relative to the spend level, sample
// count, and model age, clamped to [0.5, 0.99]. Heuristic forecasts are
// capped at 0.6.
func (e *Engine) confidence(meta models.ForecastModel, points []models.PredictionPoint) float64 {
	var level float64
	for _, p := range points {
		level += p.Point
	}
	if len(points) > 0 {
		level /= float64(len(points))
	}

	conf := 0.95
	if level > 0 && meta.MAE > 0 {
		conf -= 0.4 * math.Min(meta.MAE/level, 1)
	}
	conf -= 0.15 * (1 - math.Min(float64(meta.SampleCount)/60.0, 1))
	if !meta.TrainedAt.IsZero() {
		age := time.Since(meta.TrainedAt)
		if age > e.retrainInterval {
			conf -= 0.05
		}
	}

	if meta.Tier == models.TierHeuristic || meta.Tier == "" {
		conf = math.Min(conf, heuristicConfidenceCap)
	}
	return math.Min(math.Max(conf, 0.5), 0.99)
}

// RequestRetrain schedules training off the calling path.
func (e *Engine) RequestRetrain(ctx context.Context, provider, service string) {
	if e.jobs != nil {
		if err := e.jobs.PublishMessage(ctx, RetrainMessageType, RetrainRequest{Provider: provider, Service: service}); err == nil {
			return
		}
		// Queue failure degrades to in-process training.
	}
	go func() {
		trainCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := e.Train(trainCtx, provider, service); err != nil && e.log != nil {
			e.log.Warn("background training failed",
				logger.String("provider", provider),
				logger.String("service", service),
				logger.Error(err))
		}
	}()
}

// Sweep walks the registry applying the retrain triggers: age past the
// retrain interval marks a model stale, and a fresh backtest drifting past
// the configured factor of the stored accuracy does the same. Stale keys
// are queued for retraining.
func (e *Engine) Sweep(ctx context.Context) {
	e.mu.RLock()
	entries := make([]*entry, 0, len(e.registry))
	for _, en := range e.registry {
		entries = append(entries, en)
	}
	e.mu.RUnlock()

	for _, en := range entries {
		en.mu.Lock()
		provider, service := en.meta.Provider, en.meta.Service
		stale := false
		if en.meta.State == models.ModelReady {
			if time.Since(en.meta.TrainedAt) > e.retrainInterval {
				stale = true
			} else if en.meta.MAE > 0 {
				if fresh, ok := e.freshAccuracy(ctx, en); ok && fresh.MAE > e.driftFactor*en.meta.MAE {
					stale = true
				}
			}
		}
		if stale {
			en.meta.State = models.ModelStale
		}
		en.mu.Unlock()

		if stale {
			e.RequestRetrain(ctx, provider, service)
		}
	}
}

func (e *Engine) freshAccuracy(ctx context.Context, en *entry) (accuracy, bool) {
	history, err := e.loadHistory(ctx, en.meta.Provider, en.meta.Service)
	if err != nil || len(history) < minMinimalPoints {
		return accuracy{}, false
	}
	build, ok := builderFor(en.meta.Tier)
	if !ok {
		return accuracy{}, false
	}
	acc, err := backtest(build, history)
	if err != nil {
		return accuracy{}, false
	}
	return acc, true
}

func builderFor(tier models.ModelTier) (func() tierModel, bool) {
	switch tier {
	case models.TierSeasonal:
		return func() tierModel { return newSeasonalModel() }, true
	case models.TierRegression:
		return func() tierModel { return newRegressionModel() }, true
	case models.TierMinimal:
		return func() tierModel { return newMinimalModel() }, true
	case models.TierHeuristic:
		return func() tierModel { return newHeuristicModel() }, true
	}
	return nil, false
}

// Models snapshots the registry metadata, used by the health surface.
func (e *Engine) Models() []models.ForecastModel {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.ForecastModel, 0, len(e.registry))
	for _, en := range e.registry {
		en.mu.Lock()
		out = append(out, en.meta)
		en.mu.Unlock()
	}
	return out
}

// RetrainJob adapts the engine to the job queue worker pool.
type RetrainJob struct {
	engine *Engine
}

func NewRetrainJob(engine *Engine) *RetrainJob { return &RetrainJob{engine: engine} }

func (j *RetrainJob) Name() string { return "forecast-retrain" }
func (j *RetrainJob) Type() string { return RetrainMessageType }

func (j *RetrainJob) Handle(ctx context.Context, payload interface{}) error {
	req, err := queue.ParsePayload[RetrainRequest](payload)
	if err != nil {
		return err
	}
	return j.engine.Train(ctx, req.Provider, req.Service)
}
