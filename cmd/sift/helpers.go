package main

import (
	"context"
	"fmt"

	"github.com/spendworth/sift/internal/config"
	"github.com/spendworth/sift/internal/engine"
	"github.com/spendworth/sift/internal/feedback"
	"github.com/spendworth/sift/internal/monitor"
	"github.com/spendworth/sift/internal/retrain"
	"github.com/spendworth/sift/internal/storage"
)

// app bundles the wired services behind the CLI commands.
type app struct {
	settings     *config.Settings
	store        *storage.SQLiteStore
	ledger       *feedback.Ledger
	monitor      *monitor.Monitor
	orchestrator *engine.Orchestrator
	decisions    *retrain.Engine
	runner       *retrain.Runner
}

// initApp wires the full service graph from configuration and runs
// migrations.
func initApp(ctx context.Context) (*app, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStore(settings.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	ledger, err := feedback.NewLedger(settings.FeedbackDir())
	if err != nil {
		return nil, err
	}
	mon, err := monitor.NewMonitor(settings.MetricsDir())
	if err != nil {
		return nil, err
	}

	return &app{
		settings:     settings,
		store:        store,
		ledger:       ledger,
		monitor:      mon,
		orchestrator: engine.NewOrchestrator(store, store, ledger),
		decisions:    retrain.NewEngine(ledger, store),
		runner:       retrain.NewRunner(ledger, store, store),
	}, nil
}

// Close releases held resources.
func (a *app) Close() error {
	return a.store.Close()
}

func newDashboardBuilder(a *app) *engine.DashboardBuilder {
	return engine.NewDashboardBuilder(a.ledger, a.monitor, a.decisions)
}
