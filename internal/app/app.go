// Package app assembles the daemon from its components with fx.
package app

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	cfg "github.com/tamzrod/ncm-linkd/internal/config"
)

// Options returns the full module graph for a validated and normalized
// config.
func Options(c *cfg.Config) fx.Option {
	return fx.Options(
		fx.Supply(c),
		fx.Provide(func() clock.Clock { return clock.New() }),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		DiagnosticsModule(),
		LinkModule(),
		HTTPModule(),
		MirrorModule(),
	)
}

// New builds the application. Extra options are appended, which lets
// callers decorate providers.
func New(c *cfg.Config, extra ...fx.Option) (*fx.App, error) {
	if c == nil {
		return nil, fmt.Errorf("app: nil config")
	}
	app := fx.New(append([]fx.Option{Options(c)}, extra...)...)
	if err := app.Err(); err != nil {
		return nil, err
	}
	return app, nil
}

// goHook runs fn in a goroutine between start and stop. Stop cancels the
// context and waits for fn to return.
func goHook(lc fx.Lifecycle, fn func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				fn(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
