package eventlog

// Type identifies a critical lifecycle event.
// Declaration order is the rendering order of every diagnostic surface.
type Type int

const (
	USBMounted        Type = iota // device configured by host
	USBUnmounted                  // device disconnected
	USBSuspended                  // bus suspended
	USBResumed                    // bus resumed with the stack ready
	NCMLinkUp                     // link signal raised towards the host
	NetifReady                    // IP stack reported ready
	FirstRX                       // first frame from host this mount cycle
	FirstTX                       // first frame to host this mount cycle
	DHCPDiscoverRX                // DHCP client request seen from host
	DHCPOfferTX                   // DHCP server reply sent to host
	DHCPRequestRX                 // DHCP REQUEST seen from host
	DHCPAckTX                     // DHCP ACK sent to host
	DHCPAssigned                  // DHCP server leased an address
	RecoveryAttempt               // watchdog forced a re-enumeration
	RecoveryExhausted             // watchdog gave up for this mount cycle

	numTypes
)

// NumTypes is the number of known event types.
const NumTypes = int(numTypes)

var names = [numTypes]string{
	"USB_MOUNTED",
	"USB_UNMOUNTED",
	"USB_SUSPENDED",
	"USB_RESUMED",
	"NCM_LINK_UP",
	"NETIF_READY",
	"FIRST_RX",
	"FIRST_TX",
	"DHCP_DISCOVER_RX",
	"DHCP_OFFER_TX",
	"DHCP_REQUEST_RX",
	"DHCP_ACK_TX",
	"DHCP_ASSIGNED",
	"RECOVERY_ATTEMPT",
	"RECOVERY_EXHAUSTED",
}

// String returns the wire name of the event type.
func (t Type) String() string {
	if !t.Valid() {
		return "UNKNOWN"
	}
	return names[t]
}

// Valid reports whether t is a declared event type.
func (t Type) Valid() bool {
	return t >= 0 && t < numTypes
}

// Types returns every event type in declaration order.
func Types() []Type {
	out := make([]Type, 0, numTypes)
	for t := Type(0); t < numTypes; t++ {
		out = append(out, t)
	}
	return out
}
