// internal/status/snapshot.go
package status

import (
	"math"
	"time"

	"github.com/tamzrod/ncm-linkd/internal/link"
)

// Snapshot represents exactly what the writer is allowed to deliver.
// It contains no logic and no memory of the past beyond current state.
type Snapshot struct {
	State             uint16
	RecoveryAttempts  uint16
	SecondsSinceMount uint16
	Flags             uint16
	EventMask         uint16
}

// FromLink projects a link snapshot and the event occurrence mask onto the
// register view. Counters saturate at 65535.
func FromLink(ls link.Snapshot, eventMask uint32, now time.Time) Snapshot {
	s := Snapshot{
		State:            stateCode(ls.State),
		RecoveryAttempts: sat16(int64(ls.RecoveryAttempts)),
		EventMask:        uint16(eventMask & math.MaxUint16),
	}
	if !ls.MountedAt.IsZero() && now.After(ls.MountedAt) {
		s.SecondsSinceMount = sat16(int64(now.Sub(ls.MountedAt) / time.Second))
	}

	flags := []struct {
		on  bool
		bit uint16
	}{
		{ls.Mounted, FlagMounted},
		{ls.LinkUp, FlagLinkUp},
		{ls.Suspended, FlagSuspended},
		{ls.StackReady, FlagStackReady},
		{ls.Recovering, FlagRecovering},
		{ls.Exhausted, FlagExhausted},
		{ls.FirstRxSeen, FlagFirstRx},
		{ls.FirstTxSeen, FlagFirstTx},
	}
	for _, f := range flags {
		if f.on {
			s.Flags |= f.bit
		}
	}
	return s
}

func stateCode(st link.State) uint16 {
	switch st {
	case link.StateUnmounted:
		return StateUnmounted
	case link.StateMountedPending:
		return StateMountedPending
	case link.StateLinkUp:
		return StateLinkUp
	case link.StateSuspended:
		return StateSuspended
	case link.StateRecovering:
		return StateRecovering
	default:
		return StateUnknown
	}
}

func sat16(v int64) uint16 {
	if v < 0 {
		return 0
	}
	if v > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(v)
}
