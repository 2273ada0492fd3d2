// internal/watchdog/runner.go
package watchdog

import (
	"context"

	"go.uber.org/zap"
)

// Run starts the ticker loop and emits TickResult on out when out is not
// nil. One goroutine per link. No overlap: a recovery sequence blocks the
// loop until it completes.
func (w *Watchdog) Run(ctx context.Context, out chan<- TickResult) {
	ticker := w.clock.Ticker(w.cfg.Period)
	defer ticker.Stop()

	w.log.Info("watchdog started",
		zap.Duration("period", w.cfg.Period),
		zap.Duration("grace", w.cfg.GraceWindow),
		zap.Int("max_attempts", w.cfg.MaxRecoveryAttempts),
	)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("watchdog stopped")
			return
		case <-ticker.C:
			res := w.TickOnce()
			if res.Action == ActionGiveUp {
				w.log.Warn("link unrecoverable this mount cycle",
					zap.Int("attempts", res.Link.RecoveryAttempts))
			}
			if out == nil {
				continue
			}
			select {
			case out <- res:
			case <-ctx.Done():
				return
			}
		}
	}
}
