package tlv

import (
	"bytes"
	"testing"

	"github.com/moov-io/bertlv"
)

func TestUnmarshal_FlatStruct(t *testing.T) {
	type fci struct {
		FileID []byte `tlv:"83"`
		Name   []byte `tlv:"84"`
	}

	data := Hex("83 02 3F00 84 04 74657374")

	var got fci
	if err := Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !bytes.Equal(got.FileID, Hex("3F00")) {
		t.Errorf("FileID = %X", got.FileID)
	}
	if string(got.Name) != "test" {
		t.Errorf("Name = %q", got.Name)
	}
}

func TestUnmarshal_LastOccurrenceWins(t *testing.T) {
	type doc struct {
		Value []byte `tlv:"85"`
	}

	var got doc
	if err := Unmarshal(Hex("85 01 AA 85 01 BB"), &got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Value, []byte{0xBB}) {
		t.Errorf("Value = %X, want BB", got.Value)
	}
}

func TestUnmarshal_NestedTemplate(t *testing.T) {
	type inner struct {
		SFI []byte `tlv:"88"`
	}
	type outer struct {
		Proprietary inner `tlv:"A5"`
	}

	var got outer
	if err := Unmarshal(Hex("A5 03 88 01 01"), &got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Proprietary.SFI, []byte{0x01}) {
		t.Errorf("SFI = %X", got.Proprietary.SFI)
	}
}

func TestUnmarshal_UnknownFieldCollectsLeftovers(t *testing.T) {
	type doc struct {
		FileID  []byte       `tlv:"83"`
		Unknown []bertlv.TLV `tlv:",unknown"`
	}

	var got doc
	if err := Unmarshal(Hex("83 02 3F00 99 01 42"), &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Unknown) != 1 || got.Unknown[0].Tag != "99" {
		t.Errorf("Unknown = %+v", got.Unknown)
	}
}

func TestUnmarshal_TargetMustBePointer(t *testing.T) {
	type doc struct{}
	if err := Unmarshal(Hex("83023F00"), doc{}); err == nil {
		t.Error("expected error for non-pointer target")
	}
}

func TestGetValue(t *testing.T) {
	data := Hex("83 02 3F00 84 04 74657374")

	got, err := GetValue(data, 0x84)
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if string(got) != "test" {
		t.Errorf("value = %q", got)
	}

	if _, err := GetValue(data, 0x99); err == nil {
		t.Error("expected error for a missing tag")
	}
}
