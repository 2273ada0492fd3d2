package link

import "time"

// Config holds the link timing. Values are fixed for the process lifetime.
type Config struct {
	KickSettle  time.Duration // link down -> link up pause in a kick
	GraceWindow time.Duration // silence tolerated after mount
	Detach      time.Duration // forced disconnect -> reconnect
	Settle      time.Duration // reconnect -> kick

	MaxRecoveryAttempts int
	BackoffFloor        time.Duration
	BackoffCeiling      time.Duration

	TxAttempts   int
	TxRetryDelay time.Duration
	TxTimeout    time.Duration
}

// DefaultConfig returns the stock timing.
func DefaultConfig() Config {
	return Config{
		KickSettle:          100 * time.Millisecond,
		GraceWindow:         10 * time.Second,
		Detach:              time.Second,
		Settle:              time.Second,
		MaxRecoveryAttempts: 3,
		BackoffFloor:        5 * time.Second,
		BackoffCeiling:      time.Minute,
		TxAttempts:          3,
		TxRetryDelay:        5 * time.Millisecond,
		TxTimeout:           100 * time.Millisecond,
	}
}
