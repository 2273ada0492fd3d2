// internal/config/validate.go
package config

import (
	"fmt"
	"strings"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
// Zero values are accepted everywhere a default exists.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}

	// ------------------------------------------------------------
	// LINK TIMING
	// ------------------------------------------------------------

	l := cfg.Link
	nonNegative := []struct {
		key string
		v   int
	}{
		{"link.kick_settle_ms", l.KickSettleMs},
		{"link.grace_window_ms", l.GraceWindowMs},
		{"link.detach_ms", l.DetachMs},
		{"link.settle_ms", l.SettleMs},
		{"link.watchdog_period_ms", l.WatchdogPeriodMs},
		{"link.max_recovery_attempts", l.MaxRecoveryAttempts},
		{"link.backoff_floor_ms", l.BackoffFloorMs},
		{"link.backoff_ceiling_ms", l.BackoffCeilingMs},
		{"link.tx_attempts", l.TxAttempts},
		{"link.tx_retry_delay_ms", l.TxRetryDelayMs},
		{"link.tx_timeout_ms", l.TxTimeoutMs},

		{"diagnostics.event_capacity", cfg.Diagnostics.EventCapacity},
		{"diagnostics.event_detail_max", cfg.Diagnostics.EventDetailMax},
		{"diagnostics.event_lock_ms", cfg.Diagnostics.EventLockMs},
		{"diagnostics.log_lines", cfg.Diagnostics.LogLines},
		{"diagnostics.log_line_max", cfg.Diagnostics.LogLineMax},
		{"diagnostics.log_readers", cfg.Diagnostics.LogReaders},
		{"diagnostics.log_hot_lock_ms", cfg.Diagnostics.LogHotLockMs},
		{"diagnostics.log_lock_ms", cfg.Diagnostics.LogLockMs},
		{"diagnostics.log_dump_lock_ms", cfg.Diagnostics.LogDumpLockMs},

		{"http.sse_poll_ms", cfg.HTTP.SSEPollMs},
		{"http.sse_keepalive_polls", cfg.HTTP.SSEKeepalivePolls},
	}
	for _, f := range nonNegative {
		if f.v < 0 {
			return fmt.Errorf("%s must be >= 0 (got %d)", f.key, f.v)
		}
	}

	if l.BackoffFloorMs > 0 && l.BackoffCeilingMs > 0 && l.BackoffCeilingMs < l.BackoffFloorMs {
		return fmt.Errorf(
			"link.backoff_ceiling_ms (%d) must be >= link.backoff_floor_ms (%d)",
			l.BackoffCeilingMs,
			l.BackoffFloorMs,
		)
	}

	// ------------------------------------------------------------
	// LOGGING
	// ------------------------------------------------------------

	switch strings.ToLower(cfg.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q: must be debug, info, warn or error", cfg.Log.Level)
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "", "console", "json":
	default:
		return fmt.Errorf("log.format %q: must be console or json", cfg.Log.Format)
	}

	// ------------------------------------------------------------
	// DRIVER
	// ------------------------------------------------------------

	switch cfg.Driver.Kind {
	case "", DriverSim:
	default:
		return fmt.Errorf("driver.kind %q: unsupported (available: %s)", cfg.Driver.Kind, DriverSim)
	}
	if cfg.Driver.Sim.StackReadyDelayMs < 0 {
		return fmt.Errorf("driver.sim.stack_ready_delay_ms must be >= 0")
	}

	// ------------------------------------------------------------
	// STATUS MIRROR (OPT-IN)
	// ------------------------------------------------------------

	if sm := cfg.StatusMirror; sm != nil {
		if sm.Endpoint == "" {
			return fmt.Errorf("status_mirror: endpoint is required")
		}
		if sm.IntervalMs < 0 || sm.TimeoutMs < 0 {
			return fmt.Errorf("status_mirror: interval_ms and timeout_ms must be >= 0")
		}
		// device_name sanity (ASCII only)
		for i := 0; i < len(sm.DeviceName); i++ {
			if sm.DeviceName[i] > 0x7F {
				return fmt.Errorf("status_mirror: device_name must contain ASCII characters only")
			}
		}
	}

	return nil
}
