// internal/watchdog/watchdog.go
package watchdog

import (
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/tamzrod/ncm-linkd/internal/link"
)

// Link is the part of the link controller the watchdog drives.
type Link interface {
	Snapshot() link.Snapshot
	Kick(reason string) bool
	Recover() bool
	GiveUp() bool
}

// Config is the runtime config the watchdog needs.
type Config struct {
	Period              time.Duration
	GraceWindow         time.Duration
	MaxRecoveryAttempts int
}

// Watchdog is a clock-driven stall detector. It holds no link state of
// its own; every decision is taken from a fresh snapshot.
type Watchdog struct {
	cfg   Config
	link  Link
	clock clock.Clock
	log   *zap.Logger
}

// New creates a watchdog with immutable config.
func New(cfg Config, l Link, clk clock.Clock, log *zap.Logger) (*Watchdog, error) {
	if l == nil {
		return nil, errors.New("watchdog: link required")
	}
	if cfg.Period <= 0 {
		return nil, errors.New("watchdog: period must be > 0")
	}
	if cfg.GraceWindow < 0 {
		return nil, errors.New("watchdog: grace window must be >= 0")
	}
	if cfg.MaxRecoveryAttempts < 0 {
		return nil, errors.New("watchdog: max recovery attempts must be >= 0")
	}
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Watchdog{cfg: cfg, link: l, clock: clk, log: log}, nil
}

// TickOnce performs exactly one watchdog cycle: the late-stack kick, then
// the stall check.
func (w *Watchdog) TickOnce() TickResult {
	res := TickResult{At: w.clock.Now()}

	if needsKick(w.link.Snapshot()) {
		res.Kicked = w.link.Kick("watchdog")
		if res.Kicked {
			w.log.Info("link was held down with stack ready, kicked")
		}
	}

	s := w.link.Snapshot()
	switch a := Decide(s, w.cfg, w.clock.Now()); a {
	case ActionRecover:
		if w.link.Recover() {
			res.Action = ActionRecover
		}
	case ActionGiveUp:
		if w.link.GiveUp() {
			res.Action = ActionGiveUp
		} else {
			res.Action = ActionExhausted
		}
	case ActionBackoff:
		w.log.Debug("no traffic, waiting out backoff",
			zap.Int("attempts", s.RecoveryAttempts),
			zap.Duration("backoff", s.Backoff),
		)
		res.Action = a
	default:
		res.Action = a
	}

	res.Link = w.link.Snapshot()
	return res
}

// needsKick covers a stack that became ready after the mount, or a kick
// that raced an unmount.
func needsKick(s link.Snapshot) bool {
	return s.StackReady && s.Mounted && !s.Suspended && !s.LinkUp &&
		!s.Recovering && !s.Kicking
}

// Decide is the stall check on one snapshot. It has no side effects.
func Decide(s link.Snapshot, cfg Config, now time.Time) Action {
	if !s.StackReady || !s.Mounted || s.Suspended || s.Recovering || !s.LastRxAt.IsZero() {
		return ActionNone
	}
	if s.MountedAt.IsZero() || now.Sub(s.MountedAt) <= cfg.GraceWindow {
		return ActionGrace
	}
	if s.RecoveryAttempts >= cfg.MaxRecoveryAttempts {
		if s.Exhausted {
			return ActionExhausted
		}
		return ActionGiveUp
	}
	if !s.LastAttemptAt.IsZero() && now.Sub(s.LastAttemptAt) <= s.Backoff {
		return ActionBackoff
	}
	return ActionRecover
}
