package trading

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/khannoor710/TelegramSignalTrader/internal/broker"
)

const defaultSyncInterval = 30 * time.Second

// Reconciler runs the order-book sweep on a fixed interval as a
// background task, independent of request-triggered execution.
type Reconciler struct {
	orch     *Orchestrator
	interval time.Duration
	log      *slog.Logger

	// OnSweep, when set, observes the outcome of every sweep. Set it
	// before Run.
	OnSweep func(res SyncResult, took time.Duration, err error)
}

// NewReconciler creates a reconciler. interval <= 0 uses the default.
func NewReconciler(orch *Orchestrator, interval time.Duration, log *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = defaultSyncInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{orch: orch, interval: interval, log: log}
}

// Run sweeps until ctx is cancelled. Each trade's update commits on its
// own, so cancellation between trades never leaves a torn sweep.
func (r *Reconciler) Run(ctx context.Context) {
	r.log.Info("reconciler started", "interval", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("reconciler stopped")
			return
		case <-ticker.C:
			start := time.Now()
			res, err := r.orch.Sync(ctx)
			if r.OnSweep != nil {
				r.OnSweep(res, time.Since(start), err)
			}
			if err != nil {
				if errors.Is(err, broker.ErrNotLoggedIn) {
					// Nothing to reconcile without a session.
					continue
				}
				r.log.Error("sync sweep failed", "error", err)
				continue
			}
			if res.Checked > 0 {
				r.log.Info("sync sweep", "checked", res.Checked, "updated", res.Updated, "errors", res.Errors)
			}
		}
	}
}
