// Package pkcs15 reads and writes PKCS#15 authentication object directory
// records and drives PIN verification, change and unblock against a card,
// including an opt-in PIN cache with explicit zeroization.
package pkcs15

import (
	"encoding/hex"

	"github.com/gregLibert/card-access/pkg/iso7816"
	"github.com/gregLibert/card-access/pkg/secret"
)

// MaxPinSize bounds the stored length this implementation accepts for any
// reference data.
const MaxPinSize = 32

// ID is a PKCS#15 object identifier (an octet string, not an OID).
type ID []byte

func (id ID) String() string {
	return hex.EncodeToString(id)
}

// Equal reports byte equality. Two empty identifiers are equal.
func (id ID) Equal(o ID) bool {
	if len(id) != len(o) {
		return false
	}
	for i := range id {
		if id[i] != o[i] {
			return false
		}
	}
	return true
}

// AuthType discriminates authentication object classes.
type AuthType int

const (
	AuthTypePIN AuthType = iota
	AuthTypeBiometric
	AuthTypeAuthKey
)

// PinType is the PKCS#15 PIN character encoding, as enumerated in the
// pinType field of PinAttributes.
type PinType int

const (
	PinTypeBCD           PinType = 0
	PinTypeASCII         PinType = 1
	PinTypeUTF8          PinType = 2
	PinTypeHalfNibbleBCD PinType = 3
	PinTypeISO9564_1     PinType = 4
)

// PinFlags is the PKCS#15 pinFlags bit string.
type PinFlags uint

const (
	PinCaseSensitive            PinFlags = 0x0001
	PinLocal                    PinFlags = 0x0002
	PinChangeDisabled           PinFlags = 0x0004
	PinUnblockDisabled          PinFlags = 0x0008
	PinInitialized              PinFlags = 0x0010
	PinNeedsPadding             PinFlags = 0x0020
	PinUnblockingPin            PinFlags = 0x0040
	PinSOPin                    PinFlags = 0x0080
	PinDisableAllowed           PinFlags = 0x0100
	PinIntegrityProtected       PinFlags = 0x0200
	PinConfidentialityProtected PinFlags = 0x0400
	PinExchangeRefData          PinFlags = 0x0800
)

// ObjectFlags is the CommonObjectAttributes flags bit string.
type ObjectFlags uint

const (
	ObjectPrivate    ObjectFlags = 0x01
	ObjectModifiable ObjectFlags = 0x02
)

// PinAttributes carries the PKCS#15 PinAttributes of one PIN.
type PinAttributes struct {
	Flags PinFlags
	Type  PinType

	MinLength    int
	StoredLength int
	MaxLength    int

	// Reference is the card-side reference data number (P2 of VERIFY).
	Reference int

	PadChar byte
}

// AuthPolicy is the decoded class- and type-specific content of an
// authentication object.
type AuthPolicy struct {
	// AuthID is this authentication object's own identifier, from the
	// class attributes.
	AuthID ID

	AuthType AuthType
	PIN      PinAttributes

	// Path locates the DF to select before presenting the PIN; empty when
	// the PIN is global to the application.
	Path iso7816.Path

	// TriesLeft is the last counter reported by the card, -1 when no
	// attempt has been observed yet.
	TriesLeft int
	MaxTries  int
}

// Object is one entry of an authentication object directory file.
type Object struct {
	Label string
	Flags ObjectFlags

	// AuthID names the authentication object protecting (and, for PINs,
	// unblocking) this object, from the common attributes.
	AuthID ID

	// UserConsent, when positive, demands fresh user interaction for every
	// use. Such a PIN is never cached.
	UserConsent int

	Auth *AuthPolicy

	// cached holds the last successfully verified value when caching is
	// enabled; usage counts revalidations since it was stored.
	cached *secret.Buffer
	usage  int
}

// IsSOPin reports whether the object is a security officer PIN.
func (o *Object) IsSOPin() bool {
	return o.Auth != nil && o.Auth.PIN.Flags&PinSOPin != 0
}

// Prompt returns the message to show when collecting this PIN from the
// user.
func (o *Object) Prompt(newValue bool) string {
	kind := "PIN"
	if o.Auth != nil && o.Auth.PIN.Flags&PinUnblockingPin != 0 {
		kind = "PUK"
	}
	switch {
	case newValue:
		return "Please enter new " + kind
	case o.IsSOPin():
		return "Please enter SO " + kind
	default:
		return "Please enter " + kind
	}
}
