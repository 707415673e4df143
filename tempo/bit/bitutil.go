package bit

// Unsigned is any register width the emulated buses expose.
type Unsigned interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// IsSet will check if the bit at the specified index is set to 1 or not.
func IsSet[T Unsigned](index uint8, value T) bool {
	return (value>>index)&1 == 1
}

// Set returns value with the bit at index set to 1.
func Set[T Unsigned](index uint8, value T) T {
	return value | (1 << index)
}

// Clear returns value with the bit at index set to 0.
func Clear[T Unsigned](index uint8, value T) T {
	return value &^ (1 << index)
}

// Assign returns value with the bit at index set to on.
func Assign[T Unsigned](index uint8, value T, on bool) T {
	if on {
		return Set(index, value)
	}
	return Clear(index, value)
}

// Extract extracts bits from highBit to lowBit (inclusive).
// Example: Extract(uint8(0b11010110), 6, 4) -> 0b101 (bits 6, 5, 4)
func Extract[T Unsigned](value T, highBit, lowBit uint8) T {
	width := highBit - lowBit + 1
	mask := T(1)<<width - 1
	return (value >> lowBit) & mask
}

// Low returns the low (LSB) byte of a 16 bit number.
func Low(value uint16) uint8 {
	return uint8(value)
}

// High returns the high (MSB) byte of a 16 bit number.
func High(value uint16) uint8 {
	return uint8(value >> 8)
}

// Combine combines two 8 bit values into a single 16 bit value.
// The high byte will be the most significant one.
func Combine(high, low uint8) uint16 {
	return uint16(high)<<8 | uint16(low)
}

// Bool converts a flag into its 0/1 bit value.
func Bool[T Unsigned](on bool) T {
	if on {
		return 1
	}
	return 0
}
