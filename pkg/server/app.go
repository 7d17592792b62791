package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"CostPull/internal/domain/repository"
	"CostPull/internal/services/forecast"
	"CostPull/internal/usecase"
	pkgch "CostPull/pkg/clickhouse"
	"CostPull/pkg/config"
	xhttp "CostPull/pkg/http"
	applogger "CostPull/pkg/logger"
	"CostPull/pkg/queue"
)

// App owns the application lifecycle: schema init, scheduler, HTTP server,
// retention sweeper, and graceful shutdown.
type App struct {
	cfg          *config.Config
	log          *applogger.Logger
	chClient     *pkgch.Client
	costs        repository.CostStore
	runs         repository.RunStore
	anomalies    repository.AnomalyStore
	events       repository.EventPublisher
	retrainQueue *queue.RedisQueue
	engine       *forecast.Engine
	scheduler    *usecase.Scheduler
	handler      xhttp.Handler

	httpServer *xhttp.Server
	stopMaint  chan struct{}
}

func NewApp(
	cfg *config.Config,
	log *applogger.Logger,
	chClient *pkgch.Client,
	costs repository.CostStore,
	runs repository.RunStore,
	anomalies repository.AnomalyStore,
	events repository.EventPublisher,
	retrainQueue *queue.RedisQueue,
	engine *forecast.Engine,
	scheduler *usecase.Scheduler,
	handler xhttp.Handler,
) *App {
	return &App{
		cfg:          cfg,
		log:          log,
		chClient:     chClient,
		costs:        costs,
		runs:         runs,
		anomalies:    anomalies,
		events:       events,
		retrainQueue: retrainQueue,
		engine:       engine,
		scheduler:    scheduler,
		handler:      handler,
		stopMaint:    make(chan struct{}),
	}
}

// Run starts everything and blocks until interrupted.
func (a *App) Run() error {
	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.initStores(initCtx); err != nil {
		return err
	}

	if a.retrainQueue != nil {
		if err := a.retrainQueue.Start(); err != nil {
			return err
		}
		a.log.Info("retrain queue started", applogger.Int("workers", a.cfg.Forecast.QueueWorkers))
	}

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithServerLogger(a.log),
	)
	if err := a.httpServer.Start(); err != nil {
		return err
	}
	a.log.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	a.scheduler.Start()
	a.log.Info("collection scheduler started",
		applogger.Duration("cadence_ms", a.cfg.Collection.Cadence))

	go a.maintenanceLoop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown()
}

func (a *App) initStores(ctx context.Context) error {
	if err := a.costs.Init(ctx); err != nil {
		return err
	}
	if err := a.runs.Init(ctx); err != nil {
		return err
	}
	return a.anomalies.Init(ctx)
}

// maintenanceLoop runs the retention sweep and the forecast staleness sweep
// on their configured intervals.
func (a *App) maintenanceLoop() {
	retention := time.NewTicker(a.cfg.Retention.SweepInterval)
	defer retention.Stop()
	staleness := time.NewTicker(time.Hour)
	defer staleness.Stop()

	for {
		select {
		case <-retention.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			dropped, err := a.costs.SweepRetention(ctx, a.cfg.Retention.Horizon)
			cancel()
			if err != nil {
				a.log.Error("retention sweep failed", applogger.Error(err))
			} else if dropped > 0 {
				a.log.Info("retention sweep dropped partitions", applogger.Int("partitions", dropped))
			}
		case <-staleness.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			a.engine.Sweep(ctx)
			cancel()
		case <-a.stopMaint:
			return
		}
	}
}

// shutdown stops components in dependency order: no new work, drain, then
// close clients.
func (a *App) shutdown() error {
	close(a.stopMaint)

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.scheduler.Stop(ctx); err != nil {
		a.log.Warn("scheduler stop error", applogger.Error(err))
	}
	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Warn("http shutdown error", applogger.Error(err))
	}
	if a.retrainQueue != nil {
		if err := a.retrainQueue.Stop(ctx); err != nil {
			a.log.Warn("retrain queue stop error", applogger.Error(err))
		}
	}
	if err := a.events.Close(); err != nil {
		a.log.Warn("event publisher close error", applogger.Error(err))
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
