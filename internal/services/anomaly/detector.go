package anomaly

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"CostPull/internal/domain/models"
	"CostPull/internal/domain/repository"
	"CostPull/pkg/logger"
)

const (
	criticalSigma = 4.0
	forestTrees   = 50
	forestSample  = 64
	// forestThreshold flags scores above it; isolation scores live in (0, 1]
	// and ~0.5 is the expected value for inliers.
	forestThreshold = 0.65
)

// Detector flags cost outliers per (provider, service) day series. Small
// samples use a rolling z-score, larger ones an isolation-forest-style
// multivariate score over (cost, usage quantity).
type Detector struct {
	store   repository.AnomalyStore
	metrics repository.Metrics

	sigmaThreshold   float64
	highSigma        float64
	multivariateMinN int

	log *logger.Logger
}

func NewDetector(store repository.AnomalyStore, metrics repository.Metrics, sigmaThreshold, highSigma float64, multivariateMinN int) *Detector {
	if sigmaThreshold <= 0 {
		sigmaThreshold = 2.5
	}
	if highSigma <= sigmaThreshold {
		highSigma = sigmaThreshold + 0.5
	}
	if multivariateMinN <= 0 {
		multivariateMinN = 50
	}
	return &Detector{
		store:            store,
		metrics:          metrics,
		sigmaThreshold:   sigmaThreshold,
		highSigma:        highSigma,
		multivariateMinN: multivariateMinN,
	}
}

// SetLogger injects a structured logger.
func (d *Detector) SetLogger(log *logger.Logger) { d.log = log }

// Detect scores the latest points of a key's history, persists new
// anomalies, and returns them. Points whose day bucket already has an open
// anomaly are suppressed.
func (d *Detector) Detect(ctx context.Context, provider, service string, history []models.DailyPoint, latest ...models.DailyPoint) ([]models.Anomaly, error) {
	if len(latest) == 0 || len(history) < 3 {
		return nil, nil
	}

	var found []models.Anomaly
	if len(history) < d.multivariateMinN {
		found = d.zscore(provider, service, history, latest)
	} else {
		found = d.outlierForest(provider, service, history, latest)
	}
	if len(found) == 0 {
		return nil, nil
	}

	open, err := d.store.Open(ctx, provider)
	if err != nil {
		return nil, err
	}
	openBuckets := make(map[string]struct{}, len(open))
	for _, a := range open {
		openBuckets[a.DayBucket()] = struct{}{}
	}

	kept := found[:0]
	for _, a := range found {
		if _, dup := openBuckets[a.DayBucket()]; dup {
			continue
		}
		if err := d.store.Insert(ctx, a); err != nil {
			return kept, err
		}
		kept = append(kept, a)
		if d.log != nil {
			d.log.Warn("cost anomaly detected",
				logger.String("provider", a.Provider),
				logger.String("service", a.Service),
				logger.String("severity", string(a.Severity)),
				logger.Any("actual", a.Actual),
				logger.Any("expected", a.Expected))
		}
	}
	d.metrics.RecordOpenAnomalies(provider, len(openBuckets)+len(kept))
	return kept, nil
}

// zscore flags points beyond the sigma threshold of the rolling mean.
func (d *Detector) zscore(provider, service string, history, latest []models.DailyPoint) []models.Anomaly {
	mean, stddev := meanStddev(history)
	if stddev == 0 {
		return nil
	}

	var out []models.Anomaly
	for _, p := range latest {
		sigmas := math.Abs(p.Cost-mean) / stddev
		if sigmas < d.sigmaThreshold {
			continue
		}
		out = append(out, d.newAnomaly(provider, service, p, mean, sigmas, "zscore", d.severityFor(sigmas)))
	}
	return out
}

func (d *Detector) severityFor(sigmas float64) models.AnomalySeverity {
	switch {
	case sigmas >= criticalSigma:
		return models.SeverityCritical
	case sigmas >= d.highSigma:
		return models.SeverityHigh
	default:
		return models.SeverityLow
	}
}

// outlierForest scores (cost, quantity) jointly with random axis-parallel
// splits; points isolated in few splits score high.
func (d *Detector) outlierForest(provider, service string, history, latest []models.DailyPoint) []models.Anomaly {
	points := make([][2]float64, len(history))
	for i, p := range history {
		points[i] = [2]float64{p.Cost, p.Quantity}
	}
	forest := buildForest(points, forestTrees, forestSample)
	mean, _ := meanStddev(history)

	var out []models.Anomaly
	for _, p := range latest {
		score := forest.score([2]float64{p.Cost, p.Quantity})
		if score < forestThreshold {
			continue
		}
		sev := models.SeverityLow
		if score >= 0.75 {
			sev = models.SeverityHigh
		}
		if score >= 0.85 {
			sev = models.SeverityCritical
		}
		out = append(out, d.newAnomaly(provider, service, p, mean, score, "outlier_forest", sev))
	}
	return out
}

func (d *Detector) newAnomaly(provider, service string, p models.DailyPoint, expected, score float64, method string, sev models.AnomalySeverity) models.Anomaly {
	return models.Anomaly{
		ID:        uuid.NewString(),
		Timestamp: p.Date,
		Provider:  provider,
		Service:   service,
		Actual:    p.Cost,
		Expected:  expected,
		Score:     score,
		Severity:  sev,
		Status:    models.AnomalyOpen,
		Method:    method,
		CreatedAt: time.Now().UTC(),
	}
}

func meanStddev(history []models.DailyPoint) (float64, float64) {
	if len(history) == 0 {
		return 0, 0
	}
	var sum float64
	for _, p := range history {
		sum += p.Cost
	}
	mean := sum / float64(len(history))
	var ss float64
	for _, p := range history {
		ss += (p.Cost - mean) * (p.Cost - mean)
	}
	if len(history) < 2 {
		return mean, 0
	}
	return mean, math.Sqrt(ss / float64(len(history)-1))
}

// isolation forest over 2-d points

type forestNode struct {
	axis  int
	split float64
	left  *forestNode
	right *forestNode
	size  int
}

type isolationForest struct {
	trees      []*forestNode
	sampleSize int
}

func buildForest(points [][2]float64, trees, sampleSize int) *isolationForest {
	if sampleSize > len(points) {
		sampleSize = len(points)
	}
	rng := rand.New(rand.NewSource(42)) // deterministic scoring across runs
	f := &isolationForest{sampleSize: sampleSize}
	maxDepth := int(math.Ceil(math.Log2(float64(sampleSize)))) + 1
	for t := 0; t < trees; t++ {
		sample := make([][2]float64, sampleSize)
		for i := range sample {
			sample[i] = points[rng.Intn(len(points))]
		}
		f.trees = append(f.trees, buildTree(sample, 0, maxDepth, rng))
	}
	return f
}

func buildTree(points [][2]float64, depth, maxDepth int, rng *rand.Rand) *forestNode {
	if len(points) <= 1 || depth >= maxDepth {
		return &forestNode{size: len(points)}
	}
	axis := rng.Intn(2)
	lo, hi := points[0][axis], points[0][axis]
	for _, p := range points {
		if p[axis] < lo {
			lo = p[axis]
		}
		if p[axis] > hi {
			hi = p[axis]
		}
	}
	if hi == lo {
		return &forestNode{size: len(points)}
	}
	split := lo + rng.Float64()*(hi-lo)
	var left, right [][2]float64
	for _, p := range points {
		if p[axis] < split {
			left = append(left, p)
		} else {
			right = append(right, p)
		}
	}
	return &forestNode{
		axis:  axis,
		split: split,
		left:  buildTree(left, depth+1, maxDepth, rng),
		right: buildTree(right, depth+1, maxDepth, rng),
		size:  len(points),
	}
}

func pathLength(n *forestNode, p [2]float64, depth float64) float64 {
	if n.left == nil {
		return depth + avgPathLength(n.size)
	}
	if p[n.axis] < n.split {
		return pathLength(n.left, p, depth+1)
	}
	return pathLength(n.right, p, depth+1)
}

// avgPathLength is the expected unsuccessful-search depth of a BST of n
// nodes, the standard isolation forest normalizer.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	h := math.Log(float64(n-1)) + 0.5772156649
	return 2*h - 2*float64(n-1)/float64(n)
}

func (f *isolationForest) score(p [2]float64) float64 {
	if len(f.trees) == 0 {
		return 0
	}
	var sum float64
	for _, t := range f.trees {
		sum += pathLength(t, p, 0)
	}
	avg := sum / float64(len(f.trees))
	c := avgPathLength(f.sampleSize)
	if c == 0 {
		return 0
	}
	return math.Pow(2, -avg/c)
}
