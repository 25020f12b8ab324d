package tlv

import (
	"bytes"
	"testing"

	"github.com/moov-io/bertlv"
)

func TestUnmarshalSequence_Positional(t *testing.T) {
	// SEQUENCE { name UTF8String, id OCTET STRING OPTIONAL, count INTEGER }
	data := Hex("0C 03 616263 02 01 05")
	packets, err := bertlv.Decode(data)
	if err != nil {
		t.Fatal(err)
	}

	var (
		name  string
		id    []byte
		count int
	)
	fields := []Field{
		{Name: "name", Tag: "0C", Kind: KindUTF8String, Value: &name},
		{Name: "id", Tag: "04", Kind: KindOctetString, Optional: true, Value: &id},
		{Name: "count", Tag: "02", Kind: KindInteger, Value: &count},
	}

	if err := UnmarshalSequence(packets, fields); err != nil {
		t.Fatalf("UnmarshalSequence: %v", err)
	}
	if name != "abc" {
		t.Errorf("name = %q", name)
	}
	if id != nil {
		t.Errorf("id = %X, want absent", id)
	}
	if count != 5 {
		t.Errorf("count = %d", count)
	}
}

func TestUnmarshalSequence_MissingRequired(t *testing.T) {
	packets, err := bertlv.Decode(Hex("0C 03 616263"))
	if err != nil {
		t.Fatal(err)
	}

	var count int
	fields := []Field{
		{Name: "name", Tag: "0C", Kind: KindUTF8String},
		{Name: "count", Tag: "02", Kind: KindInteger, Value: &count},
	}
	if err := UnmarshalSequence(packets, fields); err == nil {
		t.Error("expected error for a missing required component")
	}
}

func TestUnmarshalSequence_TrailingPacketsIgnored(t *testing.T) {
	packets, err := bertlv.Decode(Hex("02 01 07 0C 01 41"))
	if err != nil {
		t.Fatal(err)
	}

	var n int
	fields := []Field{{Name: "n", Tag: "02", Kind: KindInteger, Value: &n}}
	if err := UnmarshalSequence(packets, fields); err != nil {
		t.Fatalf("UnmarshalSequence: %v", err)
	}
	if n != 7 {
		t.Errorf("n = %d", n)
	}
}

func TestIntegerCodec(t *testing.T) {
	tests := []struct {
		value int
		enc   []byte
	}{
		{0, Hex("00")},
		{5, Hex("05")},
		{127, Hex("7F")},
		{128, Hex("0080")},
		{256, Hex("0100")},
		{-1, Hex("FF")},
		{-127, Hex("81")},
		{-128, Hex("80")},
		{-129, Hex("FF7F")},
	}

	for _, tt := range tests {
		if got := EncodeInteger(tt.value); !bytes.Equal(got, tt.enc) {
			t.Errorf("EncodeInteger(%d) = %X, want %X", tt.value, got, tt.enc)
		}
		got, err := DecodeInteger(tt.enc)
		if err != nil {
			t.Fatalf("DecodeInteger(%X): %v", tt.enc, err)
		}
		if got != tt.value {
			t.Errorf("DecodeInteger(%X) = %d, want %d", tt.enc, got, tt.value)
		}
	}

	if _, err := DecodeInteger(nil); err == nil {
		t.Error("expected error for empty payload")
	}
}

func TestBitStringCodec(t *testing.T) {
	tests := []struct {
		flags uint
		nbits int
		enc   []byte
	}{
		{0x0001, 1, Hex("07 80")},
		{0x0003, 2, Hex("06 C0")},
		{0x0800, 12, Hex("04 0010")},
		{0x0000, 1, Hex("07 00")},
	}

	for _, tt := range tests {
		if got := EncodeBitString(tt.flags, tt.nbits); !bytes.Equal(got, tt.enc) {
			t.Errorf("EncodeBitString(%X, %d) = %X, want %X", tt.flags, tt.nbits, got, tt.enc)
		}
		got, err := DecodeBitString(tt.enc)
		if err != nil {
			t.Fatalf("DecodeBitString(%X): %v", tt.enc, err)
		}
		if got != tt.flags {
			t.Errorf("DecodeBitString(%X) = %X, want %X", tt.enc, got, tt.flags)
		}
	}

	if _, err := DecodeBitString(Hex("08 00")); err == nil {
		t.Error("expected error for an invalid unused-bits count")
	}
}

func TestWrap(t *testing.T) {
	tests := []struct {
		name  string
		inner []byte
		want  []byte
	}{
		{"Short form", Hex("AABB"), Hex("30 02 AABB")},
		{"Long form one byte", make([]byte, 0x90), append(Hex("30 81 90"), make([]byte, 0x90)...)},
		{"Long form two bytes", make([]byte, 0x0123), append(Hex("30 82 0123"), make([]byte, 0x0123)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Wrap(0x30, tt.inner); !bytes.Equal(got, tt.want) {
				t.Errorf("Wrap length %d mismatch", len(tt.inner))
			}
		})
	}
}

func TestSplitFirst(t *testing.T) {
	t.Run("Two records", func(t *testing.T) {
		data := Hex("30 02 AABB 30 01 CC")
		first, rest, err := SplitFirst(data)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(first, Hex("3002AABB")) {
			t.Errorf("first = %X", first)
		}
		if !bytes.Equal(rest, Hex("3001CC")) {
			t.Errorf("rest = %X", rest)
		}
	})

	t.Run("Long-form length", func(t *testing.T) {
		inner := make([]byte, 0x90)
		data := Wrap(0x30, inner)
		first, rest, err := SplitFirst(data)
		if err != nil {
			t.Fatal(err)
		}
		if len(first) != len(data) || len(rest) != 0 {
			t.Errorf("first %d bytes, rest %d bytes", len(first), len(rest))
		}
	})

	t.Run("Truncated value", func(t *testing.T) {
		if _, _, err := SplitFirst(Hex("30 05 AABB")); err == nil {
			t.Error("expected error for a truncated record")
		}
	})

	t.Run("Multi-byte tag rejected", func(t *testing.T) {
		if _, _, err := SplitFirst(Hex("5F 20 00")); err == nil {
			t.Error("expected error for a multi-byte tag number")
		}
	})
}
