package link

import "time"

// Driver is the USB device driver as seen by the link core. Vendors bind it
// to their NCM implementation; the core only uses these primitives.
type Driver interface {
	// SetLinkSignal reports the logical link state to the host. Raising it
	// is what makes the host (re)start address assignment. It is called
	// with the controller lock held and must not call back into it.
	SetLinkSignal(up bool)

	// ForceDisconnect detaches the device from the bus.
	// Drivers may deliver OnUnmount from inside this call.
	ForceDisconnect() error

	// ForceReconnect re-attaches the device so the host re-enumerates it.
	// Drivers may deliver OnMount from inside this call.
	ForceReconnect() error

	// SendFrame queues one Ethernet frame to the host, waiting at most
	// timeout for the USB stack to accept it.
	SendFrame(frame []byte, timeout time.Duration) error
}

// Signals are the callbacks the USB driver delivers. Controller
// implements them. They return quickly; the only waits are short bounded
// pacing sleeps.
type Signals interface {
	OnMount()
	OnUnmount()
	OnSuspend(remoteWakeup bool)
	OnResume()
	OnReceive(frame []byte)
	OnTransmit(frame []byte) error
}

// StackSignals are delivered by the IP stack side.
type StackSignals interface {
	OnStackReady()
	OnAddressAssigned(ip string)
}

// Observer receives traffic and transition notifications. Calls are made
// outside the session lock.
type Observer interface {
	LinkChanged(up bool)
	StateChanged(s State)
	FrameReceived(n int)
	FrameSent(n int)
	SendFailed()
	RecoveryAttempted()
}

type nopObserver struct{}

func (nopObserver) LinkChanged(bool)   {}
func (nopObserver) StateChanged(State) {}
func (nopObserver) FrameReceived(int)  {}
func (nopObserver) FrameSent(int)      {}
func (nopObserver) SendFailed()        {}
func (nopObserver) RecoveryAttempted() {}
