// internal/writer/status_writer.go
package writer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tamzrod/ncm-linkd/internal/status"
)

// StatusWriter is the delivery-only contract for link status.
// It receives a snapshot and writes it verbatim.
// No logic, no interpretation.
type StatusWriter interface {
	WriteStatus(s status.Snapshot) error
}

// liveSlotNames labels the live slots in error messages.
var liveSlotNames = [status.SlotLiveEnd + 1]string{
	status.SlotLinkState:         "link_state",
	status.SlotRecoveryAttempts:  "recovery_attempts",
	status.SlotSecondsSinceMount: "seconds_since_mount",
	status.SlotLinkFlags:         "link_flags",
	status.SlotEventMask:         "event_mask",
}

// linkStatusWriter writes the status block into holding registers.
type linkStatusWriter struct {
	plan *StatusPlan
	cli  endpointClient

	needFull bool
	last     []uint16 // live slots as last written
	nameRegs []uint16
}

// NewStatusWriter builds a status writer for plan. A nil plan disables
// the mirror.
func NewStatusWriter(plan *StatusPlan, cli endpointClient) (*linkStatusWriter, bool) {
	if plan == nil {
		return nil, false
	}
	return &linkStatusWriter{
		plan:     plan,
		cli:      cli,
		needFull: true, // full re-assert on first successful write
		last:     make([]uint16, status.SlotLiveEnd+1),
		nameRegs: status.EncodeDeviceName(plan.DeviceName),
	}, true
}

// WriteStatus delivers a link status snapshot into status memory.
// On any write failure, the next call re-asserts the full block.
func (sw *linkStatusWriter) WriteStatus(s status.Snapshot) error {
	if sw == nil || sw.plan == nil {
		return errors.New("status writer: disabled")
	}
	if sw.cli == nil {
		return fmt.Errorf("status writer: missing client for endpoint %s", sw.plan.Endpoint)
	}

	regs := status.Encode(s)
	baseAddr := sw.baseAddr()

	// ------------------------------------------------------------
	// Full block write (identity re-assert)
	// ------------------------------------------------------------
	if sw.needFull {
		copy(regs[status.SlotDeviceNameStart:status.SlotDeviceNameEnd+1], sw.nameRegs)

		if err := sw.cli.WriteRegisters(sw.plan.UnitID, baseAddr, regs); err != nil {
			sw.needFull = true
			return fmt.Errorf("status writer: full block write failed: %w", err)
		}

		sw.needFull = false
		copy(sw.last, regs[:status.SlotLiveEnd+1])
		return nil
	}

	// ------------------------------------------------------------
	// Incremental: one write per changed live slot
	// ------------------------------------------------------------
	var errs []string
	for slot := 0; slot <= status.SlotLiveEnd; slot++ {
		if sw.last[slot] == regs[slot] {
			continue
		}
		if err := sw.cli.WriteRegisters(
			sw.plan.UnitID,
			baseAddr+uint16(slot),
			[]uint16{regs[slot]},
		); err != nil {
			errs = append(errs, fmt.Sprintf("slot%d %s write failed: %v", slot, liveSlotNames[slot], err))
			continue
		}
		sw.last[slot] = regs[slot]
	}

	if len(errs) > 0 {
		// Any partial failure introduces doubt: re-assert on next call.
		sw.needFull = true
		return errors.New("status writer: " + strings.Join(errs, " | "))
	}

	return nil
}

func (sw *linkStatusWriter) baseAddr() uint16 {
	// Each device owns a fixed SlotsPerDevice block.
	return sw.plan.BaseSlot * status.SlotsPerDevice
}
