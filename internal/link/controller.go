package link

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/gopacket/layers"
	"go.uber.org/zap"

	"github.com/tamzrod/ncm-linkd/internal/eventlog"
)

// ErrSendFailed is returned by OnTransmit when every attempt failed.
var ErrSendFailed = errors.New("link: send failed")

// Controller owns the link session and is the only code that changes
// the link signal.
type Controller struct {
	mu   sync.Mutex
	sess session
	seq  uint64 // transitions applied, guarded by mu

	// pubMu orders observer notifications; pub is the last view sent.
	pubMu  sync.Mutex
	pubSeq uint64
	pub    mark

	cfg    Config
	drv    Driver
	events *eventlog.Log
	clock  clock.Clock
	log    *zap.Logger
	obs    Observer

	rx *classifier
	tx *classifier
}

var (
	_ Signals      = (*Controller)(nil)
	_ StackSignals = (*Controller)(nil)
)

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the time source. Default is the wall clock.
func WithClock(c clock.Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithLogger sets the logger. Default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(ctl *Controller) { ctl.log = l }
}

// WithObserver registers a traffic and transition observer.
func WithObserver(o Observer) Option {
	return func(ctl *Controller) { ctl.obs = o }
}

// New builds a controller in the Unmounted state.
func New(cfg Config, drv Driver, events *eventlog.Log, opts ...Option) *Controller {
	c := &Controller{
		cfg:    cfg,
		drv:    drv,
		events: events,
		clock:  clock.New(),
		log:    zap.NewNop(),
		obs:    nopObserver{},
		rx:     newClassifier(),
		tx:     newClassifier(),
	}
	for _, o := range opts {
		o(c)
	}
	c.sess.backoff = cfg.BackoffFloor
	return c
}

// Config returns the timing the controller was built with.
func (c *Controller) Config() Config { return c.cfg }

// Snapshot returns a copy of the session.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.snapshot()
}

// ---- transition bookkeeping ----

type mark struct {
	state State
	up    bool
}

func (c *Controller) markLocked() mark {
	return mark{state: c.sess.state(), up: c.sess.linkUp}
}

// publish forwards the post-transition view to the observer, outside the
// session lock. A view older than the last one published is dropped so
// the observer always settles on the newest transition.
func (c *Controller) publish(seq uint64, after mark) {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	if seq <= c.pubSeq {
		return
	}
	c.pubSeq = seq
	if c.pub.up != after.up {
		c.obs.LinkChanged(after.up)
	}
	if c.pub.state != after.state {
		c.obs.StateChanged(after.state)
	}
	c.pub = after
}

// update runs fn under the session lock and publishes the resulting
// view.
func (c *Controller) update(fn func()) {
	c.mu.Lock()
	fn()
	c.seq++
	seq, after := c.seq, c.markLocked()
	c.mu.Unlock()
	c.publish(seq, after)
}

// remountWindow bounds how long after a recovery that left the device
// detached a mount still counts as its re-enumeration.
func (c *Controller) remountWindow() time.Duration {
	return c.cfg.Detach + c.cfg.Settle + c.cfg.GraceWindow
}

func (c *Controller) pause(d time.Duration) {
	if d <= 0 {
		return
	}
	c.clock.Sleep(d)
}

// ---- link signal ----

// SetLink drives the link signal. Raising it is refused unless the device
// is mounted, the stack is ready and the bus is not suspended.
func (c *Controller) SetLink(up bool, reason string) bool {
	var ok bool
	c.update(func() { ok = c.setLinkLocked(up, reason) })
	return ok
}

func (c *Controller) setLinkLocked(up bool, reason string) bool {
	s := &c.sess
	if up && !s.eligible() {
		c.log.Debug("link up refused",
			zap.String("reason", reason),
			zap.Bool("mounted", s.mounted),
			zap.Bool("stack_ready", s.stackReady),
			zap.Bool("suspended", s.suspended),
		)
		return false
	}

	c.drv.SetLinkSignal(up)
	was := s.linkUp
	s.linkUp = up

	switch {
	case up && !was:
		c.events.Record(eventlog.NCMLinkUp, reason)
		c.log.Info("link up", zap.String("reason", reason))
	case !up && was:
		c.log.Info("link down", zap.String("reason", reason))
	}
	return true
}

// ---- kick ----

// Kick runs the kick sequence: link down, settle, link up. It returns
// false when a kick or recovery is already running or the link is not
// eligible to come up.
func (c *Controller) Kick(reason string) bool {
	var started bool
	c.update(func() { started = c.startKickLocked(reason) })
	if started {
		c.finishKick(reason)
	}
	return started
}

func (c *Controller) startKickLocked(reason string) bool {
	s := &c.sess
	if s.kicking || s.recovering || !s.eligible() {
		return false
	}
	s.kicking = true
	c.setLinkLocked(false, reason+"_kick_down")
	return true
}

func (c *Controller) finishKick(reason string) {
	c.pause(c.cfg.KickSettle)
	c.update(func() {
		c.sess.kicking = false
		if c.sess.eligible() {
			c.setLinkLocked(true, reason+"_kick_up")
		}
	})
}

// ---- USB driver signals ----

// OnMount starts a new mount cycle. A mount delivered while a recovery is
// in flight, or within the remount window after one ended with the device
// detached, is the re-enumeration that recovery provoked and keeps the
// attempt counter. Any later mount is a fresh cycle.
func (c *Controller) OnMount() {
	c.update(func() {
		s := &c.sess
		now := c.clock.Now()
		keep := s.recovering ||
			(s.remount && now.Sub(s.lastAttemptAt) <= c.remountWindow())

		s.mounted = true
		s.suspended = false
		s.mountedAt = now
		s.lastRxAt = time.Time{}
		s.firstRx = false
		s.firstTx = false
		s.dhcpSeen = 0
		s.remount = false
		if !keep {
			s.attempts = 0
			s.backoff = c.cfg.BackoffFloor
			s.lastAttemptAt = time.Time{}
			s.exhausted = false
		}

		c.setLinkLocked(false, "mount")
		c.events.Record(eventlog.USBMounted, "")
		c.log.Info("usb mounted", zap.Bool("recovery_remount", keep), zap.Int("attempts", s.attempts))
	})
}

// OnUnmount ends the mount cycle.
func (c *Controller) OnUnmount() {
	c.update(func() {
		s := &c.sess
		s.mounted = false
		s.suspended = false
		s.mountedAt = time.Time{}
		s.lastRxAt = time.Time{}
		s.firstRx = false
		s.firstTx = false
		if !s.recovering {
			s.remount = false
		}

		c.setLinkLocked(false, "unmount")
		c.events.Record(eventlog.USBUnmounted, "")
		c.log.Info("usb unmounted", zap.Bool("during_recovery", s.recovering))
	})
}

// OnSuspend holds the link down while the bus is suspended.
func (c *Controller) OnSuspend(remoteWakeup bool) {
	c.update(func() {
		c.sess.suspended = true
		c.setLinkLocked(false, "suspend")
		c.events.Record(eventlog.USBSuspended, fmt.Sprintf("remote_wakeup=%t", remoteWakeup))
		c.log.Info("usb suspended", zap.Bool("remote_wakeup", remoteWakeup))
	})
}

// OnResume kicks the link when the device is still mounted and the stack
// is ready; otherwise the session falls back to mounted-pending.
func (c *Controller) OnResume() {
	var kick bool
	c.update(func() {
		s := &c.sess
		s.suspended = false
		if !s.mounted || !s.stackReady {
			c.log.Info("usb resumed, link stays down", zap.Bool("mounted", s.mounted), zap.Bool("stack_ready", s.stackReady))
			return
		}
		c.events.Record(eventlog.USBResumed, "")
		c.log.Info("usb resumed")
		kick = c.startKickLocked("resume")
	})
	if kick {
		c.finishKick("resume")
	}
}

// OnReceive notes traffic from the host. Classification is diagnostic
// only; frames it cannot parse are ignored.
func (c *Controller) OnReceive(frame []byte) {
	n := len(frame)
	c.mu.Lock()
	s := &c.sess
	s.lastRxAt = c.clock.Now()
	s.counters.RxFrames++
	s.counters.RxBytes += uint64(n)
	if !s.firstRx {
		s.firstRx = true
		c.events.Record(eventlog.FirstRX, fmt.Sprintf("len=%d", n))
		c.log.Info("first frame from host", zap.Int("len", n))
	}
	if info := c.rx.classify(frame); info.dir == dhcpClient {
		typ := eventlog.DHCPDiscoverRX
		if info.msg == layers.DHCPMsgTypeRequest {
			typ = eventlog.DHCPRequestRX
		}
		c.recordDHCPLocked(typ)
	}
	c.mu.Unlock()

	if ce := c.log.Check(zap.DebugLevel, "rx"); ce != nil {
		ce.Write(zap.Int("len", n), zap.String("type", etherTypeName(frame)))
	}
	c.obs.FrameReceived(n)
}

// OnTransmit sends one frame to the host. It is a silent no-op unless the
// device is mounted and the link is up. Busy windows of the USB stack are
// absorbed by a bounded number of retries.
func (c *Controller) OnTransmit(frame []byte) error {
	c.mu.Lock()
	ready := c.sess.mounted && c.sess.linkUp
	c.mu.Unlock()
	if !ready {
		return nil
	}

	attempts := c.cfg.TxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			c.pause(c.cfg.TxRetryDelay)
		}
		if err = c.drv.SendFrame(frame, c.cfg.TxTimeout); err == nil {
			break
		}
	}

	n := len(frame)
	if err != nil {
		c.mu.Lock()
		c.sess.counters.TxFailures++
		c.mu.Unlock()
		c.log.Warn("transmit failed", zap.Int("len", n), zap.Int("attempts", attempts), zap.Error(err))
		c.obs.SendFailed()
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	c.mu.Lock()
	s := &c.sess
	s.counters.TxFrames++
	s.counters.TxBytes += uint64(n)
	if !s.firstTx {
		s.firstTx = true
		c.events.Record(eventlog.FirstTX, fmt.Sprintf("len=%d", n))
		c.log.Info("first frame to host", zap.Int("len", n))
	}
	if info := c.tx.classify(frame); info.dir == dhcpServer {
		typ := eventlog.DHCPOfferTX
		if info.msg == layers.DHCPMsgTypeAck {
			typ = eventlog.DHCPAckTX
		}
		c.recordDHCPLocked(typ)
	}
	c.mu.Unlock()

	c.obs.FrameSent(n)
	return nil
}

func (c *Controller) recordDHCPLocked(typ eventlog.Type) {
	bit := uint32(1) << uint(typ)
	if c.sess.dhcpSeen&bit != 0 {
		return
	}
	c.sess.dhcpSeen |= bit
	c.events.Record(typ, "")
	c.log.Info("dhcp", zap.Stringer("event", typ))
}

// ---- IP stack signals ----

// OnStackReady marks the network interface ready and kicks the link if
// the device is mounted and the link is not already up.
func (c *Controller) OnStackReady() {
	var kick bool
	c.update(func() {
		s := &c.sess
		if !s.stackReady {
			s.stackReady = true
			c.events.Record(eventlog.NetifReady, "")
			c.log.Info("network stack ready")
		}
		if s.mounted && !s.linkUp {
			kick = c.startKickLocked("stack_ready")
		}
	})
	if kick {
		c.finishKick("stack_ready")
	}
}

// OnAddressAssigned records the address the local DHCP server leased.
func (c *Controller) OnAddressAssigned(ip string) {
	c.events.Record(eventlog.DHCPAssigned, ip)
	c.log.Info("address assigned", zap.String("ip", ip))
}

// ---- recovery ----

// Recover runs one forced re-enumeration: link down, disconnect, detach
// pause, reconnect, settle pause, then a fresh grace window and a kick.
// It returns false without side effects unless the device is mounted,
// the stack is ready, nothing has been received, and attempts remain.
//
// An unmount that arrives during the sequence wins: the session stays
// unmounted and no kick follows. The attempt is still counted.
func (c *Controller) Recover() bool {
	var n int
	limit := c.cfg.MaxRecoveryAttempts
	c.update(func() {
		s := &c.sess
		if s.recovering || s.kicking || !s.eligible() || !s.lastRxAt.IsZero() || s.attempts >= limit {
			return
		}
		s.recovering = true
		n = s.attempts + 1
		c.setLinkLocked(false, "recovery")
		c.events.Record(eventlog.RecoveryAttempt, fmt.Sprintf("attempt=%d/%d", n, limit))
	})
	if n == 0 {
		return false
	}
	c.obs.RecoveryAttempted()
	c.log.Warn("no traffic since mount, forcing re-enumeration", zap.Int("attempt", n), zap.Int("max", limit))

	if err := c.drv.ForceDisconnect(); err != nil {
		c.log.Warn("force disconnect failed", zap.Error(err))
	}
	c.pause(c.cfg.Detach)
	if err := c.drv.ForceReconnect(); err != nil {
		c.log.Warn("force reconnect failed", zap.Error(err))
	}
	c.pause(c.cfg.Settle)

	var kick bool
	c.update(func() {
		s := &c.sess
		now := c.clock.Now()
		s.recovering = false
		s.attempts++
		s.lastAttemptAt = now
		s.backoff = nextBackoff(s.backoff, c.cfg.BackoffFloor, c.cfg.BackoffCeiling)

		if !s.mounted {
			s.remount = true
			c.log.Info("device detached during recovery", zap.Int("attempt", n))
			return
		}
		s.mountedAt = now
		s.lastRxAt = time.Time{}
		kick = c.startKickLocked("recovery")
	})
	if kick {
		c.finishKick("recovery")
	}
	return true
}

// GiveUp records that recovery is exhausted for this mount cycle. It
// reports whether this call was the one that recorded it.
func (c *Controller) GiveUp() bool {
	var done bool
	c.update(func() {
		s := &c.sess
		if s.exhausted || !s.mounted || s.attempts < c.cfg.MaxRecoveryAttempts {
			return
		}
		s.exhausted = true
		done = true
		c.events.Record(eventlog.RecoveryExhausted, fmt.Sprintf("attempts=%d", s.attempts))
		c.log.Warn("recovery exhausted, waiting for next mount cycle", zap.Int("attempts", s.attempts))
	})
	return done
}

func nextBackoff(cur, floor, ceiling time.Duration) time.Duration {
	next := cur * 2
	if next < floor {
		next = floor
	}
	if ceiling > 0 && next > ceiling {
		next = ceiling
	}
	return next
}
