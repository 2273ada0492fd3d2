// internal/watchdog/types.go
package watchdog

import (
	"time"

	"github.com/tamzrod/ncm-linkd/internal/link"
)

// Action is what the stall check decided on one tick.
type Action int

const (
	ActionNone      Action = iota // not mounted, not ready, or traffic seen
	ActionGrace                   // silent, still inside the grace window
	ActionBackoff                 // silent, waiting out the backoff interval
	ActionRecover                 // recovery sequence executed
	ActionGiveUp                  // attempts exhausted, recorded this tick
	ActionExhausted               // attempts exhausted earlier this mount cycle
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionGrace:
		return "grace"
	case ActionBackoff:
		return "backoff"
	case ActionRecover:
		return "recover"
	case ActionGiveUp:
		return "give_up"
	case ActionExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// TickResult is produced by one watchdog tick.
type TickResult struct {
	At time.Time

	// Kicked is true when the tick raised a link that was held down
	// while the device was mounted and the stack ready.
	Kicked bool
	Action Action

	// Link is the session as it stood after the tick.
	Link link.Snapshot
}
