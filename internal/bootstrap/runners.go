package bootstrap

import (
	"context"
	"time"
)

// RunCaseConsumer subscribes the case processor to the dispatcher and blocks
// until ctx is done and in-flight runs have finished.
func (a *App) RunCaseConsumer(ctx context.Context) error {
	a.Logger.Info("case_consumer_started", "dispatch_mode", a.Config.DispatchMode, "concurrency", a.Config.WorkerConcurrency)
	err := a.Dispatcher.SubscribeCaseCreated(ctx, a.ProcessUC.ProcessByID)
	a.Logger.Info("case_consumer_stopped")
	return err
}

// RunStaleSweeper fails abandoned cases on every tick until ctx is done.
func (a *App) RunStaleSweeper(ctx context.Context) error {
	interval := a.Config.StaleSweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := a.SweepUC.SweepStale(ctx)
			if err != nil {
				a.Logger.Warn("stale_sweep_failed", "error", err)
				continue
			}
			a.PipelineMetrics.CasesSwept(n)
		}
	}
}
