package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"CostPull/internal/domain/models"
	"CostPull/internal/domain/repository"
	"CostPull/internal/providers"
	"CostPull/internal/services/advisor"
	"CostPull/internal/services/forecast"
	"CostPull/internal/services/quality"
	"CostPull/pkg/cache"
	"CostPull/pkg/config"
	xhttp "CostPull/pkg/http"
	"CostPull/pkg/logger"
	"CostPull/pkg/util"
)

// credentialCheckTimeout bounds each provider's credential check inside
// the health report so one slow backend cannot stall the whole response.
const credentialCheckTimeout = 5 * time.Second

// QueryService is the read boundary: every answer is the best available
// data with freshness and confidence indicators, cached per provider TTL.
type QueryService struct {
	cfg       *config.Config
	cache     cache.Service
	registry  *providers.Registry
	costs     repository.CostStore
	runs      repository.RunStore
	anomalies repository.AnomalyStore
	engine    *forecast.Engine
	scorer    *quality.Scorer
	advisor   *advisor.Synthesizer

	log *logger.Logger
}

func NewQueryService(
	cfg *config.Config,
	cacheSvc cache.Service,
	registry *providers.Registry,
	costs repository.CostStore,
	runs repository.RunStore,
	anomalies repository.AnomalyStore,
	engine *forecast.Engine,
	scorer *quality.Scorer,
	synthesizer *advisor.Synthesizer,
) *QueryService {
	return &QueryService{
		cfg:       cfg,
		cache:     cacheSvc,
		registry:  registry,
		costs:     costs,
		runs:      runs,
		anomalies: anomalies,
		engine:    engine,
		scorer:    scorer,
		advisor:   synthesizer,
	}
}

// SetLogger injects a structured logger.
func (s *QueryService) SetLogger(log *logger.Logger) { s.log = log }

// resolveProviders validates the requested provider keys against config;
// empty means all enabled providers.
func (s *QueryService) resolveProviders(csv string) ([]string, error) {
	if strings.TrimSpace(csv) == "" {
		return s.cfg.ProviderNames(), nil
	}
	known := make(map[string]struct{})
	for _, name := range s.cfg.ProviderNames() {
		known[name] = struct{}{}
	}
	var out []string
	for _, p := range strings.Split(csv, ",") {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		if _, ok := known[p]; !ok {
			return nil, xhttp.BadRequestErrorf("unknown provider %q", p)
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// cacheTTL is the minimum configured TTL across the queried providers, so a
// multi-provider answer is never staler than its freshest source allows.
func (s *QueryService) cacheTTL(providerNames []string) time.Duration {
	ttl := time.Duration(0)
	for _, name := range providerNames {
		pc, ok := s.cfg.Providers[name]
		if !ok {
			continue
		}
		if ttl == 0 || pc.CacheTTL < ttl {
			ttl = pc.CacheTTL
		}
	}
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	return ttl
}

func queryKey(kind string, providerNames []string, params ...interface{}) string {
	hashed := cache.HashKey(cache.GenerateKeyWithParams(kind, params...))
	return fmt.Sprintf("query:%s:%s:%s", kind, strings.Join(providerNames, ","), hashed)
}

// cachedOr serves from cache while unexpired, otherwise loads and writes
// the result back. Cache failures degrade to direct reads.
func cachedOr[T any](ctx context.Context, s *QueryService, key string, ttl time.Duration, load func() (T, error)) (T, bool, error) {
	var cached T
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, true, nil
	}
	value, err := load()
	if err != nil {
		return value, false, err
	}
	if err := s.cache.Set(ctx, key, value, ttl); err != nil && s.log != nil {
		s.log.Warn("response cache write failed", logger.String("key", key), logger.Error(err))
	}
	return value, false, nil
}

// GetCostSummary aggregates spend over a range, grouped by the requested
// dimensions.
func (s *QueryService) GetCostSummary(ctx context.Context, req models.CostSummaryRequest) (*models.CostSummary, error) {
	providerNames, err := s.resolveProviders(req.Providers)
	if err != nil {
		return nil, err
	}
	start, err := parseDay(req.Start, "start")
	if err != nil {
		return nil, err
	}
	end, err := parseDay(req.End, "end")
	if err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, xhttp.BadRequestError("end must be after start")
	}
	groupBy := splitCSV(req.GroupBy)
	gran := models.Granularity(req.Granularity)

	key := queryKey("summary", providerNames, req.Start, req.End, req.GroupBy, req.Granularity)
	summary, hit, err := cachedOr(ctx, s, key, s.cacheTTL(providerNames), func() (models.CostSummary, error) {
		rows, qerr := s.costs.Summary(ctx, providerNames, start, end, groupBy, gran)
		if qerr != nil {
			return models.CostSummary{}, qerr
		}
		var total float64
		for _, r := range rows {
			total += r.Total
		}
		return models.CostSummary{
			Rows:      rows,
			Total:     total,
			Start:     start,
			End:       end,
			Freshness: models.FreshnessLive,
			FetchedAt: time.Now().UTC(),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	if hit {
		summary.Freshness = models.FreshnessCached
	}
	return &summary, nil
}

// GetForecast predicts per-day cost for one (provider, service) key. It
// never fails for a known provider: worst case is the heuristic tier.
func (s *QueryService) GetForecast(ctx context.Context, req models.ForecastRequest) (*models.Prediction, error) {
	providerNames, err := s.resolveProviders(req.Provider)
	if err != nil {
		return nil, err
	}
	horizonDays := req.HorizonHours / 24
	if horizonDays < 1 {
		horizonDays = 1
	}

	key := queryKey("forecast", providerNames, req.Service, horizonDays)
	pred, _, err := cachedOr(ctx, s, key, s.cacheTTL(providerNames), func() (models.Prediction, error) {
		return s.engine.Predict(ctx, providerNames[0], req.Service, horizonDays), nil
	})
	if err != nil {
		return nil, err
	}
	return &pred, nil
}

// GetAnomalies lists anomalies filtered by provider, severity, and recency.
func (s *QueryService) GetAnomalies(ctx context.Context, req models.AnomaliesRequest) ([]models.Anomaly, error) {
	providerNames, err := s.resolveProviders(req.Provider)
	if err != nil {
		return nil, err
	}
	since := time.Now().UTC().AddDate(0, 0, -req.DaysBack)

	key := queryKey("anomalies", providerNames, req.Severity, req.DaysBack)
	out, _, err := cachedOr(ctx, s, key, s.cacheTTL(providerNames), func() ([]models.Anomaly, error) {
		merged := make([]models.Anomaly, 0)
		for _, provider := range providerNames {
			batch, qerr := s.anomalies.Query(ctx, provider, req.Severity, since)
			if qerr != nil {
				return nil, qerr
			}
			merged = append(merged, batch...)
		}
		sort.Slice(merged, func(i, j int) bool { return merged[i].Timestamp.After(merged[j].Timestamp) })
		return merged, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetRecommendations returns the ranked advisory list across all enabled
// providers.
func (s *QueryService) GetRecommendations(ctx context.Context) ([]models.Recommendation, error) {
	providerNames := s.cfg.ProviderNames()
	key := queryKey("recommendations", providerNames)
	out, _, err := cachedOr(ctx, s, key, s.cacheTTL(providerNames), func() ([]models.Recommendation, error) {
		return s.advisor.Synthesize(ctx, providerNames)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetPipelineHealth reports per-provider run state, rolling quality, and
// infrastructure health. Never cached: operators want the live view.
func (s *QueryService) GetPipelineHealth(ctx context.Context) (*models.PipelineHealth, error) {
	health := &models.PipelineHealth{GeneratedAt: time.Now().UTC()}

	for _, provider := range s.cfg.ProviderNames() {
		ph := models.ProviderHealth{Provider: provider}
		if runs, err := s.runs.LastRuns(ctx, provider, 1); err == nil && len(runs) > 0 {
			ph.LastRun = &runs[0]
		}
		if mean, n, err := s.scorer.RollingQuality(ctx, provider); err == nil && n > 0 {
			ph.RollingQuality = mean
			if excluded, eerr := s.scorer.Excluded(ctx, provider); eerr == nil {
				ph.Excluded = excluded
			}
		}
		if s.registry != nil {
			if adapter, ok := s.registry.Get(provider); ok {
				cctx, cancel := context.WithTimeout(ctx, credentialCheckTimeout)
				if valid, verr := adapter.ValidateCredentials(cctx); verr == nil {
					ph.CredentialsOK = &valid
				}
				cancel()
			}
		}
		health.Providers = append(health.Providers, ph)
	}

	health.StorageOK = s.costs.Health(ctx) == nil
	_, cacheErr := s.cache.Exists(ctx, "health-probe")
	health.CacheOK = cacheErr == nil
	if s.log != nil {
		health.RecentErrors = s.log.RecentErrors()
	}
	return health, nil
}

// InvalidateProvider drops cached answers that include a provider, called
// after each successful collection so reads see the new batch.
func (s *QueryService) InvalidateProvider(ctx context.Context, provider string) error {
	return s.cache.DeleteByPattern(ctx, "query:*"+provider+"*")
}

func parseDay(value, field string) (time.Time, error) {
	t, ok := util.ParseTime(value)
	if !ok {
		return time.Time{}, xhttp.BadRequestErrorf("invalid %s date %q", field, value)
	}
	return t.UTC(), nil
}

func splitCSV(csv string) []string {
	var out []string
	for _, v := range strings.Split(csv, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
