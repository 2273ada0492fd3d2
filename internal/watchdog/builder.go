// internal/watchdog/builder.go
package watchdog

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	cfg "github.com/tamzrod/ncm-linkd/internal/config"
)

// Build constructs a Watchdog from the normalized link config.
func Build(lc cfg.LinkConfig, l Link, clk clock.Clock, log *zap.Logger) (*Watchdog, error) {
	return New(
		Config{
			Period:              cfg.Millis(lc.WatchdogPeriodMs),
			GraceWindow:         cfg.Millis(lc.GraceWindowMs),
			MaxRecoveryAttempts: lc.MaxRecoveryAttempts,
		},
		l,
		clk,
		log,
	)
}
