package link

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/ncm-linkd/internal/eventlog"
)

type fakeDriver struct {
	mu          sync.Mutex
	signals     []bool
	disconnects int
	reconnects  int
	sent        int
	sendErrs    []error // consumed one per SendFrame call

	onDisconnect func()
	onReconnect  func()
}

func (d *fakeDriver) SetLinkSignal(up bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.signals = append(d.signals, up)
}

func (d *fakeDriver) ForceDisconnect() error {
	d.mu.Lock()
	d.disconnects++
	hook := d.onDisconnect
	d.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (d *fakeDriver) ForceReconnect() error {
	d.mu.Lock()
	d.reconnects++
	hook := d.onReconnect
	d.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (d *fakeDriver) SendFrame(frame []byte, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent++
	if len(d.sendErrs) > 0 {
		err := d.sendErrs[0]
		d.sendErrs = d.sendErrs[1:]
		return err
	}
	return nil
}

func (d *fakeDriver) takeSignals() []bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.signals
	d.signals = nil
	return out
}

type countingObserver struct {
	mu        sync.Mutex
	links     []bool
	states    []State
	rx, tx    int
	failures  int
	recovered int
}

func (o *countingObserver) LinkChanged(up bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.links = append(o.links, up)
}

func (o *countingObserver) StateChanged(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, s)
}

func (o *countingObserver) FrameReceived(int) { o.mu.Lock(); o.rx++; o.mu.Unlock() }
func (o *countingObserver) FrameSent(int)     { o.mu.Lock(); o.tx++; o.mu.Unlock() }
func (o *countingObserver) SendFailed()       { o.mu.Lock(); o.failures++; o.mu.Unlock() }
func (o *countingObserver) RecoveryAttempted() {
	o.mu.Lock()
	o.recovered++
	o.mu.Unlock()
}

// testConfig has no pacing delays so every sequence completes inline.
func testConfig() Config {
	return Config{
		GraceWindow:         10 * time.Second,
		MaxRecoveryAttempts: 3,
		BackoffFloor:        5 * time.Second,
		BackoffCeiling:      time.Minute,
		TxAttempts:          3,
	}
}

type harness struct {
	ctl    *Controller
	drv    *fakeDriver
	events *eventlog.Log
	clock  *clock.Mock
	obs    *countingObserver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mock := clock.NewMock()
	events := eventlog.New(eventlog.Options{Clock: mock})
	drv := &fakeDriver{}
	obs := &countingObserver{}
	ctl := New(testConfig(), drv, events, WithClock(mock), WithObserver(obs))
	return &harness{ctl: ctl, drv: drv, events: events, clock: mock, obs: obs}
}

func assertInvariant(t *testing.T, s Snapshot) {
	t.Helper()
	if s.LinkUp {
		assert.True(t, s.Mounted, "link up while unmounted")
		assert.True(t, s.StackReady, "link up before stack ready")
		assert.False(t, s.Suspended, "link up while suspended")
	}
}

func TestMountThenStackReadyRaisesLink(t *testing.T) {
	h := newHarness(t)

	h.ctl.OnMount()
	s := h.ctl.Snapshot()
	assert.Equal(t, StateMountedPending, s.State)
	assert.False(t, s.LinkUp)
	assert.Equal(t, h.clock.Now(), s.MountedAt)

	h.ctl.OnStackReady()
	s = h.ctl.Snapshot()
	assert.Equal(t, StateLinkUp, s.State)
	assert.True(t, s.LinkUp)

	recs := h.events.Records()
	require.Len(t, recs, 3)
	assert.Equal(t, eventlog.USBMounted, recs[0].Type)
	assert.Equal(t, eventlog.NetifReady, recs[1].Type)
	assert.Equal(t, eventlog.NCMLinkUp, recs[2].Type)
	assert.Equal(t, "stack_ready_kick_up", recs[2].Detail)

	assert.Equal(t, []bool{true}, h.obs.links)
	assert.Equal(t, []State{StateMountedPending, StateLinkUp}, h.obs.states)
}

func TestStackReadyBeforeMountWaitsForMount(t *testing.T) {
	h := newHarness(t)

	h.ctl.OnStackReady()
	assert.False(t, h.ctl.Snapshot().LinkUp)
	assert.Empty(t, h.drv.takeSignals())

	h.ctl.OnMount()
	assert.False(t, h.ctl.Snapshot().LinkUp, "mount alone holds the link down")

	require.True(t, h.ctl.Kick("watchdog"))
	assert.True(t, h.ctl.Snapshot().LinkUp)
}

func TestOnStackReadyIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.ctl.OnMount()
	h.drv.takeSignals()

	h.ctl.OnStackReady()
	h.ctl.OnStackReady()

	assert.Equal(t, []bool{false, true}, h.drv.takeSignals(), "exactly one down/up pair")
	assert.Equal(t, 1, countType(h.events.Records(), eventlog.NetifReady))
	assert.Equal(t, 1, countType(h.events.Records(), eventlog.NCMLinkUp))
}

func TestSetLinkRefusesUpWhenIneligible(t *testing.T) {
	h := newHarness(t)

	assert.False(t, h.ctl.SetLink(true, "manual"))
	assert.Empty(t, h.drv.takeSignals())

	h.ctl.OnMount()
	assert.False(t, h.ctl.SetLink(true, "manual"), "stack not ready")

	h.ctl.OnStackReady()
	h.ctl.OnSuspend(true)
	assert.False(t, h.ctl.SetLink(true, "manual"), "suspended")
	assertInvariant(t, h.ctl.Snapshot())

	assert.True(t, h.ctl.SetLink(false, "manual"), "down is always forwarded")
}

func TestSuspendResume(t *testing.T) {
	h := newHarness(t)
	h.ctl.OnMount()
	h.ctl.OnStackReady()

	h.ctl.OnSuspend(true)
	s := h.ctl.Snapshot()
	assert.Equal(t, StateSuspended, s.State)
	assert.False(t, s.LinkUp)

	h.ctl.OnResume()
	s = h.ctl.Snapshot()
	assert.Equal(t, StateLinkUp, s.State)

	recs := h.events.Records()
	last := recs[len(recs)-1]
	assert.Equal(t, eventlog.NCMLinkUp, last.Type)
	assert.Equal(t, "resume_kick_up", last.Detail)
	assert.True(t, h.events.Has(eventlog.USBResumed))

	var suspended eventlog.Record
	for _, r := range recs {
		if r.Type == eventlog.USBSuspended {
			suspended = r
		}
	}
	assert.Equal(t, "remote_wakeup=true", suspended.Detail)
}

func TestResumeWithoutStackReturnsToPending(t *testing.T) {
	h := newHarness(t)
	h.ctl.OnMount()
	h.ctl.OnSuspend(false)

	h.ctl.OnResume()
	s := h.ctl.Snapshot()
	assert.Equal(t, StateMountedPending, s.State)
	assert.False(t, h.events.Has(eventlog.USBResumed))
}

func TestUnmountClearsCycle(t *testing.T) {
	h := newHarness(t)
	h.ctl.OnMount()
	h.ctl.OnStackReady()
	h.ctl.OnReceive(make([]byte, 60))

	h.ctl.OnUnmount()
	s := h.ctl.Snapshot()
	assert.Equal(t, StateUnmounted, s.State)
	assert.False(t, s.LinkUp)
	assert.True(t, s.MountedAt.IsZero())
	assert.True(t, s.LastRxAt.IsZero())
	assert.False(t, s.FirstRxSeen)
	assert.True(t, h.events.Has(eventlog.USBUnmounted))
}

func TestReceiveRecordsFirstRxOncePerMount(t *testing.T) {
	h := newHarness(t)
	h.ctl.OnMount()

	h.clock.Add(time.Second)
	h.ctl.OnReceive(make([]byte, 42))
	h.ctl.OnReceive(make([]byte, 42))

	s := h.ctl.Snapshot()
	assert.Equal(t, h.clock.Now(), s.LastRxAt)
	assert.Equal(t, uint64(2), s.Counters.RxFrames)
	assert.Equal(t, uint64(84), s.Counters.RxBytes)
	assert.Equal(t, 1, countType(h.events.Records(), eventlog.FirstRX))
	assert.Equal(t, 2, h.obs.rx)

	h.ctl.OnUnmount()
	h.ctl.OnMount()
	h.ctl.OnReceive(make([]byte, 10))
	assert.Equal(t, 2, countType(h.events.Records(), eventlog.FirstRX))
}

func TestReceiveShortFramesAreIgnoredByClassifier(t *testing.T) {
	h := newHarness(t)
	h.ctl.OnMount()

	for _, n := range []int{0, 1, 13, 14, 33, 41} {
		h.ctl.OnReceive(make([]byte, n))
	}
	for _, typ := range []eventlog.Type{eventlog.DHCPDiscoverRX, eventlog.DHCPRequestRX} {
		assert.False(t, h.events.Has(typ))
	}
	assert.Equal(t, uint64(6), h.ctl.Snapshot().Counters.RxFrames)
}

func TestTransmitRefusedUntilLinkUp(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.ctl.OnTransmit(make([]byte, 60)))
	h.ctl.OnMount()
	require.NoError(t, h.ctl.OnTransmit(make([]byte, 60)))
	assert.Zero(t, h.drv.sent)

	h.ctl.OnStackReady()
	require.NoError(t, h.ctl.OnTransmit(make([]byte, 60)))
	assert.Equal(t, 1, h.drv.sent)
	assert.True(t, h.events.Has(eventlog.FirstTX))
	assert.Equal(t, uint64(1), h.ctl.Snapshot().Counters.TxFrames)
}

func TestTransmitRetriesThenSucceeds(t *testing.T) {
	h := newHarness(t)
	h.ctl.OnMount()
	h.ctl.OnStackReady()

	busy := errors.New("busy")
	h.drv.sendErrs = []error{busy, busy}
	require.NoError(t, h.ctl.OnTransmit(make([]byte, 60)))
	assert.Equal(t, 3, h.drv.sent)
	assert.Zero(t, h.ctl.Snapshot().Counters.TxFailures)
}

func TestTransmitGivesUpAfterAttempts(t *testing.T) {
	h := newHarness(t)
	h.ctl.OnMount()
	h.ctl.OnStackReady()

	busy := errors.New("busy")
	h.drv.sendErrs = []error{busy, busy, busy, busy}
	err := h.ctl.OnTransmit(make([]byte, 60))
	require.ErrorIs(t, err, ErrSendFailed)
	require.ErrorIs(t, err, busy)
	assert.Equal(t, 3, h.drv.sent)
	assert.False(t, h.events.Has(eventlog.FirstTX))

	s := h.ctl.Snapshot()
	assert.Equal(t, uint64(1), s.Counters.TxFailures)
	assert.Zero(t, s.Counters.TxFrames)
	assert.Equal(t, 1, h.obs.failures)
}

func TestRecoveryScenario(t *testing.T) {
	h := newHarness(t)
	h.ctl.OnMount()
	h.ctl.OnStackReady()

	h.clock.Add(11 * time.Second)
	require.True(t, h.ctl.Recover())

	s := h.ctl.Snapshot()
	assert.Equal(t, 1, s.RecoveryAttempts)
	assert.Equal(t, 1, h.drv.disconnects)
	assert.Equal(t, 1, h.drv.reconnects)
	assert.True(t, s.LinkUp, "recovery ends with a kick")
	assert.Equal(t, h.clock.Now(), s.MountedAt, "grace window restarts")
	assert.Equal(t, h.clock.Now(), s.LastAttemptAt)
	assert.Equal(t, 10*time.Second, s.Backoff)

	recs := h.events.Records()
	var order []eventlog.Type
	for _, r := range recs {
		switch r.Type {
		case eventlog.USBMounted, eventlog.NCMLinkUp, eventlog.RecoveryAttempt:
			order = append(order, r.Type)
		}
	}
	require.GreaterOrEqual(t, len(order), 3)
	assert.Equal(t, []eventlog.Type{eventlog.USBMounted, eventlog.NCMLinkUp, eventlog.RecoveryAttempt}, order[:3])
	assert.Equal(t, "stack_ready_kick_up", findFirst(recs, eventlog.NCMLinkUp).Detail)
	assert.Equal(t, "attempt=1/3", findFirst(recs, eventlog.RecoveryAttempt).Detail)
	assert.Equal(t, 1, h.obs.recovered)
}

func TestRecoverRefusedAfterTraffic(t *testing.T) {
	h := newHarness(t)
	h.ctl.OnMount()
	h.ctl.OnStackReady()
	h.ctl.OnReceive(make([]byte, 60))

	assert.False(t, h.ctl.Recover())
	assert.Zero(t, h.drv.disconnects)
}

func TestRecoveryRemountKeepsAttempts(t *testing.T) {
	h := newHarness(t)
	h.drv.onDisconnect = h.ctl.OnUnmount
	h.drv.onReconnect = h.ctl.OnMount

	h.ctl.OnMount()
	h.ctl.OnStackReady()

	require.True(t, h.ctl.Recover())
	s := h.ctl.Snapshot()
	assert.Equal(t, 1, s.RecoveryAttempts, "re-enumeration mount keeps the counter")
	assert.True(t, s.LinkUp)
	assertInvariant(t, s)

	h.ctl.OnUnmount()
	h.ctl.OnMount()
	assert.Zero(t, h.ctl.Snapshot().RecoveryAttempts, "a fresh mount cycle resets it")
}

func TestUnmountDuringRecoveryWins(t *testing.T) {
	h := newHarness(t)
	h.drv.onDisconnect = h.ctl.OnUnmount

	h.ctl.OnMount()
	h.ctl.OnStackReady()
	h.drv.takeSignals()

	require.True(t, h.ctl.Recover())
	s := h.ctl.Snapshot()
	assert.Equal(t, StateUnmounted, s.State)
	assert.False(t, s.LinkUp)
	assert.True(t, s.MountedAt.IsZero())
	assert.Equal(t, 1, s.RecoveryAttempts)
	for _, up := range h.drv.takeSignals() {
		assert.False(t, up, "no kick after the device detached")
	}

	// The device comes back on its own: the mount still belongs to the
	// recovery cycle.
	h.ctl.OnMount()
	assert.Equal(t, 1, h.ctl.Snapshot().RecoveryAttempts)
}

func TestLateReplugAfterDetachedRecoveryStartsFresh(t *testing.T) {
	h := newHarness(t)
	h.ctl.OnMount()
	h.ctl.OnStackReady()

	require.True(t, h.ctl.Recover())
	require.True(t, h.ctl.Recover())
	h.drv.onDisconnect = h.ctl.OnUnmount
	require.True(t, h.ctl.Recover())
	require.Equal(t, 3, h.ctl.Snapshot().RecoveryAttempts)

	// The user replugs long after the last attempt.
	h.clock.Add(time.Hour)
	h.ctl.OnMount()

	s := h.ctl.Snapshot()
	assert.Zero(t, s.RecoveryAttempts)
	assert.Equal(t, 5*time.Second, s.Backoff)
	assert.False(t, s.Exhausted)

	h.drv.onDisconnect = nil
	assert.True(t, h.ctl.Recover(), "a fresh mount cycle may recover again")
}

func TestReplugWithinRemountWindowKeepsAttempts(t *testing.T) {
	h := newHarness(t)
	h.drv.onDisconnect = h.ctl.OnUnmount
	h.ctl.OnMount()
	h.ctl.OnStackReady()

	require.True(t, h.ctl.Recover())
	h.clock.Add(9 * time.Second)
	h.ctl.OnMount()
	assert.Equal(t, 1, h.ctl.Snapshot().RecoveryAttempts)

	// The latch is spent: the next cycle resets.
	h.ctl.OnUnmount()
	h.ctl.OnMount()
	assert.Zero(t, h.ctl.Snapshot().RecoveryAttempts)
}

func TestRecoverStopsAtMaxAttempts(t *testing.T) {
	h := newHarness(t)
	h.ctl.OnMount()
	h.ctl.OnStackReady()

	for i := 0; i < 3; i++ {
		require.True(t, h.ctl.Recover(), "attempt %d", i+1)
	}
	assert.False(t, h.ctl.Recover())
	assert.Equal(t, 3, h.ctl.Snapshot().RecoveryAttempts)
	assert.Equal(t, 40*time.Second, h.ctl.Snapshot().Backoff)

	assert.True(t, h.ctl.GiveUp())
	assert.False(t, h.ctl.GiveUp(), "exhaustion is recorded once per mount cycle")
	assert.Equal(t, 1, countType(h.events.Records(), eventlog.RecoveryExhausted))
	assert.True(t, h.ctl.Snapshot().Exhausted)
}

func TestBackoffCappedAtCeiling(t *testing.T) {
	assert.Equal(t, 5*time.Second, nextBackoff(0, 5*time.Second, time.Minute))
	assert.Equal(t, 10*time.Second, nextBackoff(5*time.Second, 5*time.Second, time.Minute))
	assert.Equal(t, time.Minute, nextBackoff(40*time.Second, 5*time.Second, time.Minute))
	assert.Equal(t, 80*time.Second, nextBackoff(40*time.Second, 5*time.Second, 0))
}

func TestInvariantUnderInterleavedSignals(t *testing.T) {
	h := newHarness(t)
	steps := []func(){
		h.ctl.OnMount,
		h.ctl.OnStackReady,
		func() { h.ctl.OnSuspend(false) },
		h.ctl.OnResume,
		h.ctl.OnUnmount,
		h.ctl.OnResume,
		h.ctl.OnStackReady,
		h.ctl.OnMount,
		func() { h.ctl.SetLink(true, "manual") },
		func() { h.ctl.Kick("watchdog") },
		func() { h.ctl.OnSuspend(true) },
		func() { h.ctl.SetLink(true, "manual") },
		func() { h.ctl.Kick("watchdog") },
		h.ctl.OnResume,
		func() { h.ctl.Recover() },
	}
	for _, step := range steps {
		step()
		assertInvariant(t, h.ctl.Snapshot())
	}
}

func TestConcurrentSignalsKeepInvariant(t *testing.T) {
	h := newHarness(t)
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				switch (g + i) % 6 {
				case 0:
					h.ctl.OnMount()
				case 1:
					h.ctl.OnStackReady()
				case 2:
					h.ctl.OnSuspend(false)
				case 3:
					h.ctl.OnResume()
				case 4:
					h.ctl.OnReceive(make([]byte, 20))
				case 5:
					h.ctl.OnUnmount()
				}
				assertInvariant(t, h.ctl.Snapshot())
			}
		}(g)
	}
	wg.Wait()
}

func TestAddressAssigned(t *testing.T) {
	h := newHarness(t)
	h.ctl.OnAddressAssigned("192.168.7.2")
	r := findFirst(h.events.Records(), eventlog.DHCPAssigned)
	assert.Equal(t, "192.168.7.2", r.Detail)
}

func countType(recs []eventlog.Record, typ eventlog.Type) int {
	n := 0
	for _, r := range recs {
		if r.Type == typ {
			n++
		}
	}
	return n
}

func findFirst(recs []eventlog.Record, typ eventlog.Type) eventlog.Record {
	for _, r := range recs {
		if r.Type == typ {
			return r
		}
	}
	return eventlog.Record{}
}

func TestObserverDropsStaleView(t *testing.T) {
	h := newHarness(t)

	h.ctl.publish(1, mark{state: StateLinkUp, up: true})
	h.ctl.publish(3, mark{state: StateMountedPending, up: false})
	h.ctl.publish(2, mark{state: StateLinkUp, up: true})

	assert.Equal(t, []bool{true, false}, h.obs.links)
	assert.Equal(t, []State{StateLinkUp, StateMountedPending}, h.obs.states)
}

func TestObserverSettlesOnFinalLinkState(t *testing.T) {
	h := newHarness(t)
	h.ctl.OnMount()
	h.ctl.OnStackReady()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				h.ctl.SetLink((i+g)%2 == 0, "toggle")
			}
		}(g)
	}
	wg.Wait()

	h.obs.mu.Lock()
	defer h.obs.mu.Unlock()
	require.NotEmpty(t, h.obs.links)
	assert.Equal(t, h.ctl.Snapshot().LinkUp, h.obs.links[len(h.obs.links)-1])
}
