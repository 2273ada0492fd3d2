// internal/status/encode.go
package status

// Encode converts a Snapshot into a full link status block.
// Reserved and device name slots are left zero.
// Layout is protocol-locked.
// No IO. No side effects.
func Encode(s Snapshot) []uint16 {
	regs := make([]uint16, SlotsPerDevice)

	regs[SlotLinkState] = s.State
	regs[SlotRecoveryAttempts] = s.RecoveryAttempts
	regs[SlotSecondsSinceMount] = s.SecondsSinceMount
	regs[SlotLinkFlags] = s.Flags
	regs[SlotEventMask] = s.EventMask

	return regs
}

// EncodeDeviceName packs up to DeviceNameMaxChars ASCII characters into
// SlotDeviceNameSlots registers, two bytes per register, big-endian.
// Non-printable bytes become '?'.
func EncodeDeviceName(name string) []uint16 {
	out := make([]uint16, SlotDeviceNameSlots)

	b := []byte(name)
	if len(b) > DeviceNameMaxChars {
		b = b[:DeviceNameMaxChars]
	}

	for i := 0; i < len(b); i++ {
		if b[i] < 0x20 || b[i] > 0x7E {
			b[i] = '?'
		}
	}

	for i := 0; i < DeviceNameMaxChars; i += 2 {
		var hi, lo byte
		if i < len(b) {
			hi = b[i]
		}
		if i+1 < len(b) {
			lo = b[i+1]
		}
		out[i/2] = uint16(hi)<<8 | uint16(lo)
	}

	return out
}
