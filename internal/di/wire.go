//go:build wireinject
// +build wireinject

package di

import (
	"CostPull/pkg/config"
	"CostPull/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideCacheService,
		ProvideRetrainQueue,
		ProvideEventPublisher,

		// Stores
		ProvideCostStore,
		ProvideRunStore,
		ProvideAnomalyStore,

		// Adapters
		ProvideRetryPolicy,
		ProvideRegistry,

		// Services
		ProvideScorer,
		ProvideEngine,
		ProvideDetector,
		ProvideSynthesizer,

		// Use cases
		ProvideQueryService,
		ProvideScheduler,

		// HTTP
		ProvideHandler,

		// Application
		ProvideApp,
	)
	return &server.App{}, nil
}
