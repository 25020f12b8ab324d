package tlv

import (
	"bytes"
	"testing"
)

func TestHex(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
		want  []byte
	}{
		{"Single part", []string{"6F10"}, []byte{0x6F, 0x10}},
		{"Multiple parts", []string{"6F", "10"}, []byte{0x6F, 0x10}},
		{"Spaces allowed", []string{"6F 10 84 08"}, []byte{0x6F, 0x10, 0x84, 0x08}},
		{"Empty", nil, []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Hex(tt.parts...); !bytes.Equal(got, tt.want) {
				t.Errorf("Hex(%v) = %X, want %X", tt.parts, got, tt.want)
			}
		})
	}
}

func TestHex_PanicsOnInvalidInput(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for invalid hex")
		}
	}()
	Hex("GG")
}

func TestMakeSafeASCII(t *testing.T) {
	tests := []struct {
		in   []byte
		want string
	}{
		{[]byte("1PAY.SYS.DDF01"), "1PAY.SYS.DDF01"},
		{[]byte{0x01, 'A', 0x7F}, "?A?"},
		{nil, ""},
	}

	for _, tt := range tests {
		if got := MakeSafeASCII(tt.in); got != tt.want {
			t.Errorf("MakeSafeASCII(%X) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
