package pkcs15

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gregLibert/card-access/pkg/iso7816"
	"github.com/gregLibert/card-access/pkg/tlv"
)

// aodfRecord is a hand-assembled directory record: a case-sensitive local
// BCD PIN named "User", protected by authentication object 02, with a
// negative reference encoding and no explicit maximum length or path.
var aodfRecord = tlv.Hex(
	"30 2B",
	"30 0D", // commonObjectAttributes
	"0C 04 55736572", // label "User"
	"03 02 06 C0", // flags: private, modifiable
	"04 01 02", // authId of the protecting object
	"30 03", // classAttributes
	"04 01 01", // own authId
	"A1 15", // typeAttributes
	"30 13",
	"03 02 06 C0", // pinFlags: case sensitive, local
	"0A 01 00", // pinType BCD
	"02 01 04", // minLength
	"02 01 04", // storedLength
	"80 01 81", // pinReference -127
	"04 01 FF", // padChar
)

func TestDecodeAODFEntry(t *testing.T) {
	token := NewToken(nil, Options{})
	token.AppDDOAID = tlv.Hex("A000000063504B43532D3135")

	obj, rest, err := token.DecodeAODFEntry(aodfRecord)
	if err != nil {
		t.Fatalf("DecodeAODFEntry: %v", err)
	}
	if len(rest) != 0 {
		t.Errorf("rest = %X, want empty", rest)
	}

	if obj.Label != "User" {
		t.Errorf("Label = %q", obj.Label)
	}
	if obj.Flags != ObjectPrivate|ObjectModifiable {
		t.Errorf("Flags = %03X", uint(obj.Flags))
	}
	if !obj.AuthID.Equal(ID{0x02}) {
		t.Errorf("protecting AuthID = %s", obj.AuthID)
	}
	if !obj.Auth.AuthID.Equal(ID{0x01}) {
		t.Errorf("own AuthID = %s", obj.Auth.AuthID)
	}

	want := PinAttributes{
		Flags:        PinCaseSensitive | PinLocal,
		Type:         PinTypeBCD,
		MinLength:    4,
		StoredLength: 4,
		// No explicit maximum: derived from the stored length, doubled for
		// BCD digits
		MaxLength: 8,
		// Negative reference wraps into the byte range
		Reference: 129,
		PadChar:   0xFF,
	}
	if diff := cmp.Diff(want, obj.Auth.PIN); diff != "" {
		t.Errorf("PinAttributes mismatch (-want +got):\n%s", diff)
	}

	// A local PIN without a path lives under the application AID
	if obj.Auth.Path.Type != iso7816.PathTypeDFName {
		t.Errorf("Path.Type = %v, want DF name", obj.Auth.Path.Type)
	}
	if string(obj.Auth.Path.Value) != string(token.AppDDOAID) {
		t.Errorf("Path = %s, want the application AID", obj.Auth.Path)
	}

	if obj.Auth.TriesLeft != -1 {
		t.Errorf("TriesLeft = %d, want -1", obj.Auth.TriesLeft)
	}
}

// globalAodfRecord is aodfRecord with the Local bit cleared: a global PIN
// with neither an explicit path nor an inherited one.
var globalAodfRecord = tlv.Hex(
	"30 2B",
	"30 0D", // commonObjectAttributes
	"0C 04 55736572",
	"03 02 06 C0",
	"04 01 02",
	"30 03", // classAttributes
	"04 01 01",
	"A1 15", // typeAttributes
	"30 13",
	"03 02 07 80", // pinFlags: case sensitive only
	"0A 01 00",
	"02 01 04",
	"02 01 04",
	"80 01 81",
	"04 01 FF",
)

func TestDecodeAODFEntry_PathFallbacks(t *testing.T) {
	t.Run("Local flag without AID falls back to the application DF", func(t *testing.T) {
		token := NewToken(nil, Options{})
		obj, _, err := token.DecodeAODFEntry(aodfRecord)
		if err != nil {
			t.Fatal(err)
		}
		if !obj.Auth.Path.Equal(token.AppPath) {
			t.Errorf("Path = %s, want %s", obj.Auth.Path, token.AppPath)
		}
	})

	t.Run("Global PIN keeps an empty path", func(t *testing.T) {
		token := NewToken(nil, Options{})
		token.AppDDOAID = tlv.Hex("A000000063504B43532D3135")
		obj, _, err := token.DecodeAODFEntry(globalAodfRecord)
		if err != nil {
			t.Fatal(err)
		}
		if obj.Auth.PIN.Flags&PinLocal != 0 {
			t.Fatal("fixture must describe a global PIN")
		}
		if len(obj.Auth.Path.Value) != 0 {
			t.Errorf("Path = %s, want none: a global PIN needs no selection", obj.Auth.Path)
		}
	})

	t.Run("Card PIN size caps the derived maximum", func(t *testing.T) {
		card, err := iso7816.NewCard(nopTransport{}, iso7816.Config{MaxPinLength: 12})
		if err != nil {
			t.Fatal(err)
		}
		token := NewToken(card, Options{})
		obj, _, err := token.DecodeAODFEntry(aodfRecord)
		if err != nil {
			t.Fatal(err)
		}
		if obj.Auth.PIN.MaxLength != 12 {
			t.Errorf("MaxLength = %d, want 12", obj.Auth.PIN.MaxLength)
		}
	})
}

func TestDecodeAODFEntry_EndOfContents(t *testing.T) {
	token := NewToken(nil, Options{})
	for _, buf := range [][]byte{nil, {0x00}, {0xFF, 0xFF}} {
		if _, _, err := token.DecodeAODFEntry(buf); !errors.Is(err, iso7816.ErrEndOfContents) {
			t.Errorf("buf %X: error = %v, want end of contents", buf, err)
		}
	}
}

func TestParseAODF_StopsAtFiller(t *testing.T) {
	image := append(append([]byte(nil), aodfRecord...), aodfRecord...)
	image = append(image, 0xFF, 0xFF, 0xFF)

	token := NewToken(nil, Options{})
	if err := token.ParseAODF(image); err != nil {
		t.Fatalf("ParseAODF: %v", err)
	}
	if len(token.Objects) != 2 {
		t.Fatalf("parsed %d objects, want 2", len(token.Objects))
	}
}

func TestEncodeAODFEntry_RoundTrip(t *testing.T) {
	src := &Object{
		Label:       "SO PIN",
		Flags:       ObjectPrivate,
		AuthID:      ID{0x02},
		UserConsent: 1,
		Auth: &AuthPolicy{
			AuthID:   ID{0x0A},
			AuthType: AuthTypePIN,
			PIN: PinAttributes{
				Flags:        PinCaseSensitive | PinInitialized | PinNeedsPadding | PinSOPin,
				Type:         PinTypeASCII,
				MinLength:    6,
				StoredLength: 8,
				MaxLength:    8,
				Reference:    0x81,
				PadChar:      0x00,
			},
			Path: iso7816.Path{Type: iso7816.PathTypeAbsolute, Value: tlv.Hex("3F00 5015")},
		},
	}

	record, err := EncodeAODFEntry(src)
	if err != nil {
		t.Fatalf("EncodeAODFEntry: %v", err)
	}

	token := NewToken(nil, Options{})
	got, rest, err := token.DecodeAODFEntry(record)
	if err != nil {
		t.Fatalf("DecodeAODFEntry: %v", err)
	}
	if len(rest) != 0 {
		t.Errorf("rest = %X, want empty", rest)
	}

	if got.Label != src.Label || got.Flags != src.Flags || got.UserConsent != src.UserConsent {
		t.Errorf("common attributes lost: %+v", got)
	}
	if !got.AuthID.Equal(src.AuthID) || !got.Auth.AuthID.Equal(src.Auth.AuthID) {
		t.Errorf("identifiers lost: protect=%s own=%s", got.AuthID, got.Auth.AuthID)
	}
	if diff := cmp.Diff(src.Auth.PIN, got.Auth.PIN); diff != "" {
		t.Errorf("PinAttributes mismatch (-want +got):\n%s", diff)
	}
	if !got.Auth.Path.Equal(src.Auth.Path) {
		t.Errorf("Path = %s, want %s", got.Auth.Path, src.Auth.Path)
	}
}

func TestEncodeAODFEntry_NonPinRejected(t *testing.T) {
	obj := &Object{Auth: &AuthPolicy{AuthType: AuthTypeBiometric}}
	if _, err := EncodeAODFEntry(obj); !errors.Is(err, iso7816.ErrNotSupported) {
		t.Errorf("error = %v, want not supported", err)
	}
}

func TestFindUnblockingPin(t *testing.T) {
	user := &Object{
		AuthID: ID{0x02},
		Auth:   &AuthPolicy{AuthID: ID{0x01}, AuthType: AuthTypePIN},
	}
	puk := &Object{
		Auth: &AuthPolicy{
			AuthID:   ID{0x02},
			AuthType: AuthTypePIN,
			PIN:      PinAttributes{Flags: PinUnblockingPin},
		},
	}
	other := &Object{
		Auth: &AuthPolicy{AuthID: ID{0x03}, AuthType: AuthTypePIN},
	}

	token := NewToken(nil, Options{})
	token.Objects = []*Object{user, other, puk}

	if got := token.FindUnblockingPin(user); got != puk {
		t.Errorf("FindUnblockingPin = %+v, want the PUK object", got)
	}
	if got := token.FindUnblockingPin(other); got != nil {
		t.Errorf("FindUnblockingPin for an unprotected object = %+v, want nil", got)
	}
}

// nopTransport satisfies the transport interface for tokens that never talk
// to a card.
type nopTransport struct{}

func (nopTransport) Transmit([]byte) ([]byte, error) { return []byte{0x90, 0x00}, nil }
