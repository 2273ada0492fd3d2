// internal/config/config.go
package config

type Config struct {
	Link         LinkConfig          `yaml:"link"`
	Diagnostics  DiagnosticsConfig   `yaml:"diagnostics"`
	HTTP         HTTPConfig          `yaml:"http"`
	Log          LogConfig           `yaml:"log"`
	Driver       DriverConfig        `yaml:"driver"`
	StatusMirror *StatusMirrorConfig `yaml:"status_mirror"`
}

// ---- LINK TIMING ----

// LinkConfig holds the link controller and watchdog timing.
// All durations are milliseconds; zero means "use default" (see Normalize).
type LinkConfig struct {
	KickSettleMs     int `yaml:"kick_settle_ms"`
	GraceWindowMs    int `yaml:"grace_window_ms" env:"GRACE_WINDOW_MS"`
	DetachMs         int `yaml:"detach_ms"`
	SettleMs         int `yaml:"settle_ms"`
	WatchdogPeriodMs int `yaml:"watchdog_period_ms"`

	MaxRecoveryAttempts int `yaml:"max_recovery_attempts" env:"MAX_RECOVERY_ATTEMPTS"`
	BackoffFloorMs      int `yaml:"backoff_floor_ms"`
	BackoffCeilingMs    int `yaml:"backoff_ceiling_ms"`

	TxAttempts     int `yaml:"tx_attempts"`
	TxRetryDelayMs int `yaml:"tx_retry_delay_ms"`
	TxTimeoutMs    int `yaml:"tx_timeout_ms"`
}

// ---- DIAGNOSTIC BUFFERS ----

type DiagnosticsConfig struct {
	EventCapacity  int `yaml:"event_capacity"`
	EventDetailMax int `yaml:"event_detail_max"`
	EventLockMs    int `yaml:"event_lock_ms"`

	LogLines      int `yaml:"log_lines"`
	LogLineMax    int `yaml:"log_line_max"`
	LogReaders    int `yaml:"log_readers"`
	LogHotLockMs  int `yaml:"log_hot_lock_ms"`  // append / read
	LogLockMs     int `yaml:"log_lock_ms"`      // alloc / free / count
	LogDumpLockMs int `yaml:"log_dump_lock_ms"` // dump
}

// ---- HTTP ----

type HTTPConfig struct {
	Addr              string `yaml:"addr" env:"HTTP_ADDR"`
	SSEPollMs         int    `yaml:"sse_poll_ms"`
	SSEKeepalivePolls int    `yaml:"sse_keepalive_polls"`
	Metrics           *bool  `yaml:"metrics"`
}

// ---- LOGGING ----

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`   // debug | info | warn | error
	Format string `yaml:"format" env:"LOG_FORMAT"` // console | json
}

// ---- DRIVER ----

type DriverConfig struct {
	Kind string    `yaml:"kind" env:"DRIVER"`
	Sim  SimConfig `yaml:"sim"`
}

// SimConfig configures the in-process simulated driver.
type SimConfig struct {
	RemountOnReconnect bool `yaml:"remount_on_reconnect"`
	StackReadyDelayMs  int  `yaml:"stack_ready_delay_ms"`
	MountAtStart       bool `yaml:"mount_at_start"`
}

// ---- STATUS MIRROR (OPT-IN) ----

type StatusMirrorConfig struct {
	Endpoint   string `yaml:"endpoint"`
	UnitID     uint8  `yaml:"unit_id"`
	BaseSlot   uint16 `yaml:"base_slot"`
	DeviceName string `yaml:"device_name"`
	IntervalMs int    `yaml:"interval_ms"`
	TimeoutMs  int    `yaml:"timeout_ms"`
}
