package app

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cfg "github.com/tamzrod/ncm-linkd/internal/config"
	"github.com/tamzrod/ncm-linkd/internal/driver/sim"
	"github.com/tamzrod/ncm-linkd/internal/eventlog"
	"github.com/tamzrod/ncm-linkd/internal/httpapi"
	"github.com/tamzrod/ncm-linkd/internal/link"
	"github.com/tamzrod/ncm-linkd/internal/logging"
	"github.com/tamzrod/ncm-linkd/internal/logstream"
	"github.com/tamzrod/ncm-linkd/internal/metrics"
	"github.com/tamzrod/ncm-linkd/internal/status"
	"github.com/tamzrod/ncm-linkd/internal/watchdog"
	"github.com/tamzrod/ncm-linkd/internal/writer"
)

// ---- DIAGNOSTICS ----

// DiagnosticsModule provides the log ring, the logger teed into it, the
// event log and the metrics registry.
func DiagnosticsModule() fx.Option {
	return fx.Module("diagnostics",
		fx.Provide(
			newLogStream,
			newLogger,
			newEventLog,
			newRegistry,
			newLinkMetrics,
		),
		fx.Invoke(func(lc fx.Lifecycle, log *zap.Logger) {
			lc.Append(fx.Hook{OnStop: func(context.Context) error {
				_ = log.Sync()
				return nil
			}})
		}),
	)
}

func newLogStream(c *cfg.Config) *logstream.Stream {
	d := c.Diagnostics
	return logstream.New(logstream.Options{
		Capacity:   d.LogLines,
		LineMax:    d.LogLineMax,
		MaxReaders: d.LogReaders,
		HotWait:    cfg.Millis(d.LogHotLockMs),
		Wait:       cfg.Millis(d.LogLockMs),
		DumpWait:   cfg.Millis(d.LogDumpLockMs),
	})
}

func newLogger(c *cfg.Config, ring *logstream.Stream) (*zap.Logger, error) {
	return logging.New(logging.FromConfig(c.Log, ring))
}

func newEventLog(c *cfg.Config, clk clock.Clock) *eventlog.Log {
	d := c.Diagnostics
	return eventlog.New(eventlog.Options{
		Capacity:  d.EventCapacity,
		DetailMax: d.EventDetailMax,
		LockWait:  cfg.Millis(d.EventLockMs),
		Clock:     clk,
	})
}

func newRegistry(events *eventlog.Log) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	for _, col := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.NewEvents(events),
	} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("app: register collector: %w", err)
		}
	}
	return reg, nil
}

func newLinkMetrics(reg *prometheus.Registry) *metrics.Link {
	return metrics.NewLink(reg)
}

// ---- LINK ----

// LinkModule provides the driver, the link controller and the watchdog.
func LinkModule() fx.Option {
	return fx.Module("link",
		fx.Provide(
			newDriver,
			func(d *sim.Driver) link.Driver { return d },
			newController,
			newWatchdog,
		),
		fx.Invoke(startDriver, startWatchdog),
	)
}

func newDriver(c *cfg.Config, clk clock.Clock, log *zap.Logger) (*sim.Driver, error) {
	if c.Driver.Kind != cfg.DriverSim {
		return nil, fmt.Errorf("app: driver %q not linked into this build", c.Driver.Kind)
	}
	s := c.Driver.Sim
	return sim.New(sim.Options{
		RemountOnReconnect: s.RemountOnReconnect,
		MountAtStart:       s.MountAtStart,
		StackReadyDelay:    cfg.Millis(s.StackReadyDelayMs),
		Clock:              clk,
		Log:                log.Named("sim"),
	}), nil
}

// LinkConfig maps the normalized link section onto controller timing.
func LinkConfig(lc cfg.LinkConfig) link.Config {
	return link.Config{
		KickSettle:          cfg.Millis(lc.KickSettleMs),
		GraceWindow:         cfg.Millis(lc.GraceWindowMs),
		Detach:              cfg.Millis(lc.DetachMs),
		Settle:              cfg.Millis(lc.SettleMs),
		MaxRecoveryAttempts: lc.MaxRecoveryAttempts,
		BackoffFloor:        cfg.Millis(lc.BackoffFloorMs),
		BackoffCeiling:      cfg.Millis(lc.BackoffCeilingMs),
		TxAttempts:          lc.TxAttempts,
		TxRetryDelay:        cfg.Millis(lc.TxRetryDelayMs),
		TxTimeout:           cfg.Millis(lc.TxTimeoutMs),
	}
}

func newController(c *cfg.Config, drv link.Driver, events *eventlog.Log, m *metrics.Link, clk clock.Clock, log *zap.Logger) *link.Controller {
	return link.New(LinkConfig(c.Link), drv, events,
		link.WithClock(clk),
		link.WithLogger(log.Named("link")),
		link.WithObserver(m),
	)
}

func newWatchdog(c *cfg.Config, ctl *link.Controller, clk clock.Clock, log *zap.Logger) (*watchdog.Watchdog, error) {
	return watchdog.Build(c.Link, ctl, clk, log.Named("watchdog"))
}

func startDriver(lc fx.Lifecycle, d *sim.Driver, ctl *link.Controller) {
	d.Attach(ctl, ctl)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return d.Start() },
		OnStop:  func(context.Context) error { return d.Stop() },
	})
}

func startWatchdog(lc fx.Lifecycle, w *watchdog.Watchdog) {
	goHook(lc, func(ctx context.Context) { w.Run(ctx, nil) })
}

// ---- HTTP ----

// HTTPModule provides the diagnostic HTTP server.
func HTTPModule() fx.Option {
	return fx.Module("httpapi",
		fx.Provide(newServer),
		fx.Invoke(startServer),
	)
}

func newServer(c *cfg.Config, events *eventlog.Log, logs *logstream.Stream, ctl *link.Controller, reg *prometheus.Registry, clk clock.Clock, log *zap.Logger) *httpapi.Server {
	opts := httpapi.Options{
		Addr:           c.HTTP.Addr,
		SSEPoll:        cfg.Millis(c.HTTP.SSEPollMs),
		KeepalivePolls: c.HTTP.SSEKeepalivePolls,
		Clock:          clk,
		Log:            log.Named("httpapi"),
	}
	if c.HTTP.Metrics == nil || *c.HTTP.Metrics {
		opts.Gatherer = reg
	}
	return httpapi.New(events, logs, ctl, opts)
}

func startServer(lc fx.Lifecycle, s *httpapi.Server) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return s.Start() },
		OnStop:  s.Stop,
	})
}

// ---- STATUS MIRROR ----

// MirrorModule runs the optional Modbus status mirror.
func MirrorModule() fx.Option {
	return fx.Module("mirror",
		fx.Invoke(startMirror),
	)
}

func startMirror(lc fx.Lifecycle, c *cfg.Config, ctl *link.Controller, events *eventlog.Log, clk clock.Clock, log *zap.Logger) error {
	src := func() status.Snapshot {
		return status.FromLink(ctl.Snapshot(), events.Mask(), clk.Now())
	}
	m, closer, err := writer.BuildMirror(c.StatusMirror, src, clk, log.Named("mirror"))
	if err != nil {
		return err
	}
	if m == nil {
		return nil
	}
	// Hooks stop in reverse: the loop ends before the client closes.
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return closer() }})
	goHook(lc, m.Run)
	return nil
}
