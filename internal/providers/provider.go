package providers

import (
	"context"
	"fmt"
	"sort"

	"CostPull/internal/domain/models"
	"CostPull/pkg/config"
)

// Adapter is the capability set every billing source must implement. Adapters
// are mutually isolated: a failure in one never aborts another, and fetching
// the same window twice returns the same logical record set.
type Adapter interface {
	Name() string
	FetchCostData(ctx context.Context, window models.Window) ([]models.RawUsage, error)
	ListRecommendations(ctx context.Context) ([]models.ProviderRecommendation, error)
	ValidateCredentials(ctx context.Context) (bool, error)
}

// Registry holds the configured adapters keyed by provider name.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds adapters for every enabled provider in config. Unknown
// provider keys are rejected so misconfiguration fails at startup, not
// mid-cycle.
func NewRegistry(cfg *config.Config, retry *RetryPolicy) (*Registry, error) {
	limiter := NewLimiter()
	adapters := make(map[string]Adapter, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		if !pc.Enabled {
			continue
		}
		switch name {
		case "aws":
			adapters[name] = NewAWSAdapter(pc, retry, limiter)
		case "azure":
			adapters[name] = NewAzureAdapter(pc, retry, limiter)
		case "gcp":
			adapters[name] = NewGCPAdapter(pc, retry, limiter)
		default:
			return nil, fmt.Errorf("unknown provider %q", name)
		}
	}
	return &Registry{adapters: adapters}, nil
}

// NewStaticRegistry wraps pre-built adapters, keyed by their Name.
func NewStaticRegistry(adapters ...Adapter) *Registry {
	m := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Name()] = a
	}
	return &Registry{adapters: m}
}

// Get returns the adapter for a provider key.
func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

// Names returns registered provider keys, sorted for deterministic cycles.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every registered adapter.
func (r *Registry) All() []Adapter {
	all := make([]Adapter, 0, len(r.adapters))
	for _, name := range r.Names() {
		all = append(all, r.adapters[name])
	}
	return all
}
