// Package sim is an in-process USB NCM driver. It implements the
// link.Driver primitives without hardware so the daemon can run, and be
// exercised, on any host.
package sim

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/tamzrod/ncm-linkd/internal/link"
)

var (
	// ErrNotAttached means the driver has no link core to deliver to.
	ErrNotAttached = errors.New("sim: not attached")

	// ErrLinkDown means a frame was offered while the link signal is down.
	ErrLinkDown = errors.New("sim: link signal down")

	// ErrDetached means a frame was offered while the device is off the bus.
	ErrDetached = errors.New("sim: detached from bus")
)

// Options configures the simulated driver.
type Options struct {
	// RemountOnReconnect delivers OnUnmount from ForceDisconnect and
	// OnMount from ForceReconnect, like a host that re-enumerates.
	RemountOnReconnect bool

	// MountAtStart delivers OnMount from Start.
	MountAtStart bool

	// StackReadyDelay is the pause between Start and OnStackReady.
	StackReadyDelay time.Duration

	Clock clock.Clock
	Log   *zap.Logger
}

// Driver is the simulated device. Safe for concurrent use.
type Driver struct {
	opts  Options
	clock clock.Clock
	log   *zap.Logger

	mu       sync.Mutex
	signals  link.Signals
	stack    link.StackSignals
	onBus    bool
	linkUp   bool
	sent     uint64
	timer    *clock.Timer
	detaches int
}

var _ link.Driver = (*Driver)(nil)

// New returns a driver that is attached to the bus but not yet bound to a
// link core.
func New(opts Options) *Driver {
	d := &Driver{opts: opts, clock: opts.Clock, log: opts.Log, onBus: true}
	if d.clock == nil {
		d.clock = clock.New()
	}
	if d.log == nil {
		d.log = zap.NewNop()
	}
	return d
}

// Attach binds the callbacks. It must be called before Start.
func (d *Driver) Attach(sig link.Signals, stack link.StackSignals) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.signals = sig
	d.stack = stack
}

// Start delivers the initial mount and schedules stack readiness.
func (d *Driver) Start() error {
	d.mu.Lock()
	sig, stack := d.signals, d.stack
	d.mu.Unlock()
	if sig == nil || stack == nil {
		return ErrNotAttached
	}

	if d.opts.MountAtStart {
		d.log.Info("sim: device mounted")
		sig.OnMount()
	}

	if d.opts.StackReadyDelay <= 0 {
		stack.OnStackReady()
		return nil
	}
	d.mu.Lock()
	d.timer = d.clock.AfterFunc(d.opts.StackReadyDelay, stack.OnStackReady)
	d.mu.Unlock()
	return nil
}

// Stop cancels a pending stack-ready callback.
func (d *Driver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	return nil
}

func (d *Driver) SetLinkSignal(up bool) {
	d.mu.Lock()
	changed := d.linkUp != up
	d.linkUp = up
	d.mu.Unlock()
	if changed {
		d.log.Debug("sim: link signal", zap.Bool("up", up))
	}
}

func (d *Driver) ForceDisconnect() error {
	d.mu.Lock()
	d.onBus = false
	d.linkUp = false
	d.detaches++
	sig := d.signals
	d.mu.Unlock()

	d.log.Info("sim: forced disconnect")
	if d.opts.RemountOnReconnect && sig != nil {
		sig.OnUnmount()
	}
	return nil
}

func (d *Driver) ForceReconnect() error {
	d.mu.Lock()
	d.onBus = true
	sig := d.signals
	d.mu.Unlock()

	d.log.Info("sim: forced reconnect")
	if d.opts.RemountOnReconnect && sig != nil {
		sig.OnMount()
	}
	return nil
}

func (d *Driver) SendFrame(frame []byte, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case !d.onBus:
		return ErrDetached
	case !d.linkUp:
		return ErrLinkDown
	}
	d.sent++
	return nil
}

// Inject delivers a frame as if the host had sent it.
func (d *Driver) Inject(frame []byte) error {
	d.mu.Lock()
	sig, onBus := d.signals, d.onBus
	d.mu.Unlock()
	if sig == nil {
		return ErrNotAttached
	}
	if !onBus {
		return ErrDetached
	}
	sig.OnReceive(frame)
	return nil
}

// Stats reports frames accepted and forced detaches so far.
func (d *Driver) Stats() (sent uint64, detaches int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sent, d.detaches
}
