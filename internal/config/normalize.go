// internal/config/normalize.go
package config

// DriverSim selects the in-process simulated driver.
const DriverSim = "sim"

// Defaults. These are the fixed constants of the link subsystem; a config
// file may override them at startup only.
const (
	DefaultKickSettleMs        = 100
	DefaultGraceWindowMs       = 10000
	DefaultDetachMs            = 1000
	DefaultSettleMs            = 1000
	DefaultWatchdogPeriodMs    = 1000
	DefaultMaxRecoveryAttempts = 3
	DefaultBackoffFloorMs      = 5000
	DefaultBackoffCeilingMs    = 60000
	DefaultTxAttempts          = 3
	DefaultTxRetryDelayMs      = 5
	DefaultTxTimeoutMs         = 100

	DefaultEventCapacity  = 30
	DefaultEventDetailMax = 63
	DefaultEventLockMs    = 50

	DefaultLogLines      = 100
	DefaultLogLineMax    = 255
	DefaultLogReaders    = 4
	DefaultLogHotLockMs  = 10
	DefaultLogLockMs     = 100
	DefaultLogDumpLockMs = 500

	DefaultHTTPAddr          = ":8080"
	DefaultSSEPollMs         = 50
	DefaultSSEKeepalivePolls = 100

	DefaultMirrorIntervalMs = 1000
	DefaultMirrorTimeoutMs  = 2000

	// DeviceNameMaxChars matches status.DeviceNameMaxChars.
	DeviceNameMaxChars = 16
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	l := &cfg.Link
	def(&l.KickSettleMs, DefaultKickSettleMs)
	def(&l.GraceWindowMs, DefaultGraceWindowMs)
	def(&l.DetachMs, DefaultDetachMs)
	def(&l.SettleMs, DefaultSettleMs)
	def(&l.WatchdogPeriodMs, DefaultWatchdogPeriodMs)
	def(&l.MaxRecoveryAttempts, DefaultMaxRecoveryAttempts)
	def(&l.BackoffFloorMs, DefaultBackoffFloorMs)
	def(&l.BackoffCeilingMs, DefaultBackoffCeilingMs)
	def(&l.TxAttempts, DefaultTxAttempts)
	def(&l.TxRetryDelayMs, DefaultTxRetryDelayMs)
	def(&l.TxTimeoutMs, DefaultTxTimeoutMs)

	// Ceiling below floor only happens when one side was defaulted.
	if l.BackoffCeilingMs < l.BackoffFloorMs {
		l.BackoffCeilingMs = l.BackoffFloorMs
	}

	d := &cfg.Diagnostics
	def(&d.EventCapacity, DefaultEventCapacity)
	def(&d.EventDetailMax, DefaultEventDetailMax)
	def(&d.EventLockMs, DefaultEventLockMs)
	def(&d.LogLines, DefaultLogLines)
	def(&d.LogLineMax, DefaultLogLineMax)
	def(&d.LogReaders, DefaultLogReaders)
	def(&d.LogHotLockMs, DefaultLogHotLockMs)
	def(&d.LogLockMs, DefaultLogLockMs)
	def(&d.LogDumpLockMs, DefaultLogDumpLockMs)

	h := &cfg.HTTP
	if h.Addr == "" {
		h.Addr = DefaultHTTPAddr
	}
	def(&h.SSEPollMs, DefaultSSEPollMs)
	def(&h.SSEKeepalivePolls, DefaultSSEKeepalivePolls)
	if h.Metrics == nil {
		on := true
		h.Metrics = &on
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}

	if cfg.Driver.Kind == "" {
		cfg.Driver.Kind = DriverSim
	}

	// ------------------------------------------------------------
	// STATUS MIRROR NORMALIZATION (OPT-IN)
	// ------------------------------------------------------------

	if sm := cfg.StatusMirror; sm != nil {
		def(&sm.IntervalMs, DefaultMirrorIntervalMs)
		def(&sm.TimeoutMs, DefaultMirrorTimeoutMs)

		// Normalize device_name:
		// - ASCII already validated
		// - Truncate to max 16 characters
		if len(sm.DeviceName) > DeviceNameMaxChars {
			sm.DeviceName = sm.DeviceName[:DeviceNameMaxChars]
		}
	}
}

func def(v *int, d int) {
	if *v == 0 {
		*v = d
	}
}
