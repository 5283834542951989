package decode

// wordBits is the width of one holding register.
const wordBits = 16

// Scale converts a raw register word into a physical value.
func Scale(raw uint16, factor float64) float64 {
	return float64(raw) * factor
}

// PackFault combines two consecutive registers into a 32-bit fault bitmask.
// The first register carries the high 16 bits.
func PackFault(hi, lo uint16) uint32 {
	return uint32(hi)<<wordBits | uint32(lo)
}

// UnpackFault splits a 32-bit fault bitmask back into its register words.
func UnpackFault(mask uint32) (hi, lo uint16) {
	return uint16(mask >> wordBits), uint16(mask) //nolint:gosec // G115: truncation is the point
}
