package link

import "time"

// State is the externally visible link state, derived from the session
// flags.
type State int

const (
	StateUnmounted      State = iota
	StateMountedPending       // mounted, link held down
	StateLinkUp
	StateSuspended
	StateRecovering // forced re-enumeration in progress
)

func (s State) String() string {
	switch s {
	case StateUnmounted:
		return "unmounted"
	case StateMountedPending:
		return "mounted_pending"
	case StateLinkUp:
		return "link_up"
	case StateSuspended:
		return "suspended"
	case StateRecovering:
		return "recovering"
	default:
		return "unknown"
	}
}

// Counters are the traffic totals since process start.
type Counters struct {
	RxFrames   uint64
	RxBytes    uint64
	TxFrames   uint64
	TxBytes    uint64
	TxFailures uint64
}

// session is the single link record. Every field is guarded by
// Controller.mu. Zero time.Time means "none".
type session struct {
	mounted    bool
	linkUp     bool
	suspended  bool
	stackReady bool

	mountedAt time.Time
	lastRxAt  time.Time

	attempts      int
	backoff       time.Duration
	lastAttemptAt time.Time
	exhausted     bool

	firstRx bool
	firstTx bool
	// dhcpSeen has one bit per DHCP event type recorded this mount cycle.
	dhcpSeen uint32

	recovering bool
	// remount is set when a recovery ended with the device detached; a
	// mount within Controller.remountWindow is the re-enumeration it
	// provoked.
	remount bool
	kicking bool

	counters Counters
}

// eligible is the precondition for a raised link.
func (s *session) eligible() bool {
	return s.mounted && s.stackReady && !s.suspended
}

func (s *session) state() State {
	switch {
	case s.recovering:
		return StateRecovering
	case !s.mounted:
		return StateUnmounted
	case s.suspended:
		return StateSuspended
	case s.linkUp:
		return StateLinkUp
	default:
		return StateMountedPending
	}
}

// Snapshot is a copy of the session, safe to retain.
type Snapshot struct {
	State      State
	Mounted    bool
	LinkUp     bool
	Suspended  bool
	StackReady bool
	Recovering bool
	Kicking    bool

	MountedAt     time.Time // zero when unmounted
	LastRxAt      time.Time // zero until the first frame this mount cycle
	LastAttemptAt time.Time // zero until the first recovery attempt

	RecoveryAttempts int
	Backoff          time.Duration
	Exhausted        bool

	FirstRxSeen bool
	FirstTxSeen bool

	Counters Counters
}

func (s *session) snapshot() Snapshot {
	return Snapshot{
		State:            s.state(),
		Mounted:          s.mounted,
		LinkUp:           s.linkUp,
		Suspended:        s.suspended,
		StackReady:       s.stackReady,
		Recovering:       s.recovering,
		Kicking:          s.kicking,
		MountedAt:        s.mountedAt,
		LastRxAt:         s.lastRxAt,
		LastAttemptAt:    s.lastAttemptAt,
		RecoveryAttempts: s.attempts,
		Backoff:          s.backoff,
		Exhausted:        s.exhausted,
		FirstRxSeen:      s.firstRx,
		FirstTxSeen:      s.firstTx,
		Counters:         s.counters,
	}
}
