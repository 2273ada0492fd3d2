// internal/writer/status_writer_test.go
package writer

import (
	"errors"
	"testing"

	"github.com/tamzrod/ncm-linkd/internal/status"
)

// ---- fake endpoint client ----

type writeCall struct {
	unitID uint8
	addr   uint16
	regs   []uint16
}

type fakeEndpointClient struct {
	writes []writeCall
	fail   int // fail the next n writes
}

func (f *fakeEndpointClient) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	if f.fail > 0 {
		f.fail--
		return errors.New("endpoint down")
	}
	f.writes = append(f.writes, writeCall{
		unitID: unitID,
		addr:   addr,
		regs:   append([]uint16(nil), regs...),
	})
	return nil
}

func (f *fakeEndpointClient) last() writeCall {
	return f.writes[len(f.writes)-1]
}

func testPlan() *StatusPlan {
	return &StatusPlan{
		Endpoint:   "status-endpoint",
		UnitID:     1,
		BaseSlot:   2,
		DeviceName: "NCM-01",
	}
}

// ---- tests ----

func TestDeviceNameWrittenOnFullAssertOnly(t *testing.T) {
	cli := &fakeEndpointClient{}
	plan := testPlan()

	sw, enabled := NewStatusWriter(plan, cli)
	if !enabled {
		t.Fatalf("status writer should be enabled")
	}

	// ---- first write: FULL ASSERT ----
	first := status.Snapshot{State: status.StateMountedPending, Flags: status.FlagMounted}
	if err := sw.WriteStatus(first); err != nil {
		t.Fatalf("initial full assert failed: %v", err)
	}

	w := cli.last()
	if len(w.regs) != status.SlotsPerDevice {
		t.Fatalf("expected full block write (%d regs), got %d", status.SlotsPerDevice, len(w.regs))
	}
	if w.addr != plan.BaseSlot*status.SlotsPerDevice {
		t.Fatalf("full block addr=%d", w.addr)
	}
	if w.unitID != plan.UnitID {
		t.Fatalf("unit id=%d", w.unitID)
	}

	// Verify device name encoding EXACTLY
	expectedNameRegs := status.EncodeDeviceName(plan.DeviceName)
	for i := 0; i < status.SlotDeviceNameSlots; i++ {
		slot := status.SlotDeviceNameStart + i
		if w.regs[slot] != expectedNameRegs[i] {
			t.Fatalf("device name slot %d mismatch: got=%d want=%d", slot, w.regs[slot], expectedNameRegs[i])
		}
	}

	// ---- second write: INCREMENTAL ONLY ----
	second := first
	second.State = status.StateLinkUp
	second.Flags |= status.FlagLinkUp | status.FlagStackReady

	if err := sw.WriteStatus(second); err != nil {
		t.Fatalf("incremental write failed: %v", err)
	}
	if len(cli.writes) != 3 {
		t.Fatalf("expected 2 single-slot writes after the full block, got %d writes total", len(cli.writes))
	}
	for _, w := range cli.writes[1:] {
		if len(w.regs) != 1 {
			t.Fatalf("device name should not be rewritten on incremental update")
		}
	}
}

func TestIncrementalWritesOnlyChangedSlots(t *testing.T) {
	cli := &fakeEndpointClient{}
	plan := testPlan()
	sw, _ := NewStatusWriter(plan, cli)

	base := status.Snapshot{State: status.StateLinkUp, SecondsSinceMount: 10}
	if err := sw.WriteStatus(base); err != nil {
		t.Fatalf("full write: %v", err)
	}

	next := base
	next.SecondsSinceMount = 11
	if err := sw.WriteStatus(next); err != nil {
		t.Fatalf("incremental write: %v", err)
	}

	expectedAddr := plan.BaseSlot*status.SlotsPerDevice + status.SlotSecondsSinceMount
	w := cli.last()
	if w.addr != expectedAddr {
		t.Fatalf("unexpected write addr: got=%d want=%d", w.addr, expectedAddr)
	}
	if len(w.regs) != 1 || w.regs[0] != 11 {
		t.Fatalf("unexpected regs %v", w.regs)
	}

	// unchanged snapshot: no writes
	n := len(cli.writes)
	if err := sw.WriteStatus(next); err != nil {
		t.Fatalf("no-op write: %v", err)
	}
	if len(cli.writes) != n {
		t.Fatalf("unchanged snapshot produced %d writes", len(cli.writes)-n)
	}
}

func TestFailureForcesFullReassert(t *testing.T) {
	cli := &fakeEndpointClient{}
	sw, _ := NewStatusWriter(testPlan(), cli)

	s := status.Snapshot{State: status.StateLinkUp}
	if err := sw.WriteStatus(s); err != nil {
		t.Fatalf("full write: %v", err)
	}

	s.RecoveryAttempts = 1
	cli.fail = 1
	if err := sw.WriteStatus(s); err == nil {
		t.Fatalf("expected incremental failure")
	}

	if err := sw.WriteStatus(s); err != nil {
		t.Fatalf("re-assert: %v", err)
	}
	if got := len(cli.last().regs); got != status.SlotsPerDevice {
		t.Fatalf("expected full block after failure, got %d regs", got)
	}
	if cli.last().regs[status.SlotRecoveryAttempts] != 1 {
		t.Fatalf("re-assert lost the pending value")
	}
}

func TestFullWriteFailureRetriesFull(t *testing.T) {
	cli := &fakeEndpointClient{fail: 1}
	sw, _ := NewStatusWriter(testPlan(), cli)

	if err := sw.WriteStatus(status.Snapshot{}); err == nil {
		t.Fatalf("expected error")
	}
	if err := sw.WriteStatus(status.Snapshot{}); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(cli.writes) != 1 || len(cli.writes[0].regs) != status.SlotsPerDevice {
		t.Fatalf("expected one full block write, got %+v", cli.writes)
	}
}

func TestDisabledWriter(t *testing.T) {
	if _, enabled := NewStatusWriter(nil, &fakeEndpointClient{}); enabled {
		t.Fatalf("nil plan must disable the writer")
	}

	sw, _ := NewStatusWriter(testPlan(), nil)
	if err := sw.WriteStatus(status.Snapshot{}); err == nil {
		t.Fatalf("expected error for missing client")
	}
}
