// internal/status/constants.go
package status

// Link Status Block layout constants.
// These values define the register protocol and MUST NOT be configurable.

// ---- BLOCK GEOMETRY ----

// SlotsPerDevice is the fixed number of logical slots per device.
const SlotsPerDevice = 20

// ---- SLOT INDICES ----

// SlotLinkState holds the link state code.
const SlotLinkState = 0

// SlotRecoveryAttempts holds the recovery attempts of the current mount cycle.
const SlotRecoveryAttempts = 1

// SlotSecondsSinceMount holds the seconds since the current mount (saturating).
const SlotSecondsSinceMount = 2

// SlotLinkFlags holds the Flag* bitmask.
const SlotLinkFlags = 3

// SlotEventMask holds the sticky event occurrence bitmask, bit i for event type i.
const SlotEventMask = 4

// SlotLiveEnd is the last slot that changes at runtime (inclusive).
const SlotLiveEnd = SlotEventMask

// ---- RESERVED RANGE ----

// Slots 5-10 are reserved for future use.
const SlotReservedStart = 5
const SlotReservedEnd = 10

// ---- DEVICE NAME ----

// SlotDeviceNameStart is the first slot used for the device name.
// Device name is always placed at the END of the status block.
const SlotDeviceNameStart = 11

// SlotDeviceNameSlots is the number of slots reserved for the device name.
const SlotDeviceNameSlots = 8

// SlotDeviceNameEnd is the last slot used for the device name (inclusive).
const SlotDeviceNameEnd = SlotDeviceNameStart + SlotDeviceNameSlots - 1

// ---- LIMITS ----

// DeviceNameMaxChars is the maximum number of ASCII characters stored for device name.
const DeviceNameMaxChars = 16

// ---- LINK STATE CODES ----

// StateUnknown is the boot value before the first snapshot is delivered.
const StateUnknown uint16 = 0

const (
	StateUnmounted      uint16 = 1
	StateMountedPending uint16 = 2
	StateLinkUp         uint16 = 3
	StateSuspended      uint16 = 4
	StateRecovering     uint16 = 5
)

// ---- LINK FLAGS ----

const (
	FlagMounted uint16 = 1 << iota
	FlagLinkUp
	FlagSuspended
	FlagStackReady
	FlagRecovering
	FlagExhausted
	FlagFirstRx
	FlagFirstTx
)
