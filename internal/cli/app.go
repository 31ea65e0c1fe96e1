package cli

import (
	"context"
	"fmt"

	"ledger/internal/backend"
	"ledger/internal/cache"
	"ledger/internal/config"
	"ledger/internal/ledger"
	"ledger/internal/log"
	"ledger/internal/services"
	"ledger/internal/worker"
)

// App is the wired ledger: store, notification pipeline and services.
type App struct {
	Config     *config.Config
	Backend    *backend.BackendResult
	Ledger     *ledger.Service
	Settings   *services.SettingsProvider
	Reports    *services.ReportService
	Budgets    *services.BudgetService
	Categories *services.CategoryService
	Worker     *worker.ChangeWorker
	Caches     *cache.Manager
	Logger     *log.Logger

	unsubscribe []func()
}

// NewApp opens the configured backend and builds the services on top of it.
// The report cache is invalidated by every change published in process.
func NewApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	if logger == nil {
		logger = log.Default()
	}
	floor, err := ledger.ParseFloorPolicy(cfg.WithdrawFloorTypes)
	if err != nil {
		return nil, fmt.Errorf("parse withdraw floor types: %w", err)
	}
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}

	reportCache := cache.NewLRUCache[any](cfg.ReportCacheSize, cfg.ReportCacheTTL)
	settings := services.NewSettingsProvider(res.Store, res.Notifier, logger)
	a := &App{
		Config:   cfg,
		Backend:  res,
		Settings: settings,
		Ledger: ledger.New(res.Store,
			ledger.WithNotifier(res.Notifier),
			ledger.WithFloorPolicy(floor),
			ledger.WithLogger(logger)),
		Reports:    services.NewReportService(res.Store, settings, reportCache, logger),
		Budgets:    services.NewBudgetService(res.Store, res.Notifier, logger),
		Categories: services.NewCategoryService(res.Store, res.Notifier, logger),
		Caches:     cache.NewManager(logger),
		Logger:     logger,
	}
	a.Worker = worker.NewChangeWorker(a.Reports, a.Budgets, logger)
	a.Caches.Register(reportCache)
	a.unsubscribe = append(a.unsubscribe, res.Local.Subscribe(a.Reports.HandleChange))
	return a, nil
}

// EvaluateBudgetsInProcess makes the change worker react to local changes.
// Binaries without a broker use it to keep budget warnings flowing.
func (a *App) EvaluateBudgetsInProcess() {
	a.unsubscribe = append(a.unsubscribe, a.Backend.Local.Subscribe(a.Worker.Handle))
}

func (a *App) Close() error {
	for _, u := range a.unsubscribe {
		u()
	}
	a.unsubscribe = nil
	if a.Backend == nil || a.Backend.Cleanup == nil {
		return nil
	}
	if err := a.Backend.Cleanup(); err != nil {
		return fmt.Errorf("close backend: %w", err)
	}
	return nil
}
