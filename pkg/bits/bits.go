// Package bits provides helpers for the 1-based bit numbering used
// throughout ISO/IEC 7816, where bit 1 is the least significant bit of a
// byte and bit 8 the most significant.
package bits

// Bit returns a byte with only the n-th bit set (1 to 8).
func Bit(n uint) byte {
	if n < 1 || n > 8 {
		return 0
	}
	return 1 << (n - 1)
}

// IsSet checks if the n-th bit is set (1 to 8).
func IsSet(b byte, n uint) bool {
	return b&Bit(n) != 0
}

// Set returns b with the n-th bit set.
func Set(b byte, n uint) byte {
	return b | Bit(n)
}

// GetRange extracts the value from a range of bits (high down to low).
// Example: GetRange(0b00001100, 4, 3) returns 3 (0b11).
func GetRange(b byte, high, low uint) byte {
	if high < low || high > 8 || low < 1 {
		return 0
	}

	width := high - low + 1
	mask := byte((1 << width) - 1)

	return (b >> (low - 1)) & mask
}

// PutRange places value into the bit range (high down to low) of b.
// Bits of value outside the range width are discarded.
func PutRange(b byte, high, low uint, value byte) byte {
	if high < low || high > 8 || low < 1 {
		return b
	}

	width := high - low + 1
	mask := byte((1 << width) - 1)

	b &^= mask << (low - 1)
	return b | (value&mask)<<(low-1)
}
