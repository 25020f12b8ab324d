package bits

import "testing"

func TestBit(t *testing.T) {
	tests := []struct {
		n    uint
		want byte
	}{
		{1, 0x01},
		{2, 0x02},
		{5, 0x10},
		{8, 0x80},
		{0, 0x00}, // out of range
		{9, 0x00}, // out of range
	}
	for _, tt := range tests {
		if got := Bit(tt.n); got != tt.want {
			t.Errorf("Bit(%d) = %02X, want %02X", tt.n, got, tt.want)
		}
	}
}

func TestIsSetAndSet(t *testing.T) {
	var b byte
	b = Set(b, 5)
	if b != 0x10 {
		t.Fatalf("Set(0, 5) = %02X, want 10", b)
	}
	if !IsSet(b, 5) {
		t.Error("IsSet(0x10, 5) = false")
	}
	if IsSet(b, 4) {
		t.Error("IsSet(0x10, 4) = true")
	}
}

func TestGetRange(t *testing.T) {
	tests := []struct {
		b         byte
		high, low uint
		want      byte
	}{
		{0b01101100, 4, 3, 0b11},
		{0b01101100, 7, 5, 0b110},
		{0xFF, 8, 1, 0xFF},
		{0x63, 8, 5, 0x06},
		{0xFF, 3, 4, 0x00}, // inverted range
	}
	for _, tt := range tests {
		if got := GetRange(tt.b, tt.high, tt.low); got != tt.want {
			t.Errorf("GetRange(%08b, %d, %d) = %02X, want %02X", tt.b, tt.high, tt.low, got, tt.want)
		}
	}
}

func TestPutRange(t *testing.T) {
	tests := []struct {
		b         byte
		high, low uint
		value     byte
		want      byte
	}{
		{0x00, 4, 3, 0b11, 0x0C},
		{0x00, 2, 1, 0b10, 0x02},
		{0x80, 4, 1, 0x0F, 0x8F},
		{0xFF, 4, 3, 0b00, 0xF3}, // clears the range first
	}
	for _, tt := range tests {
		if got := PutRange(tt.b, tt.high, tt.low, tt.value); got != tt.want {
			t.Errorf("PutRange(%02X, %d, %d, %02X) = %02X, want %02X",
				tt.b, tt.high, tt.low, tt.value, got, tt.want)
		}
	}

	// PutRange then GetRange must round-trip
	b := PutRange(0, 6, 4, 0b101)
	if got := GetRange(b, 6, 4); got != 0b101 {
		t.Errorf("round trip = %03b, want 101", got)
	}
}
