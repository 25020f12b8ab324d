package pkcs15

import (
	"errors"

	"github.com/gregLibert/card-access/pkg/iso7816"
)

// Options tunes a Token's behavior.
type Options struct {
	// UsePinCache keeps successfully verified PINs in memory so security
	// state can be re-established without prompting the user again.
	UsePinCache bool

	// PinCacheCounter caps how many times a cached PIN may be replayed
	// before it is wiped and fresh entry is required. Zero means no cap.
	PinCacheCounter int
}

// Token binds a card's authentication object directory to the command set
// used to exercise it.
type Token struct {
	Card    *iso7816.Card
	Opts    Options
	Objects []*Object

	// AppDDOAID is the application AID from the token's DDO, used to reach
	// local PINs that carry no explicit path.
	AppDDOAID []byte

	// AppPath is the application DF; PINs without a path of their own are
	// presented there.
	AppPath iso7816.Path
}

// NewToken builds a token over card with the conventional application DF
// (3F00/5015) as the default PIN location.
func NewToken(card *iso7816.Card, opts Options) *Token {
	return &Token{
		Card: card,
		Opts: opts,
		AppPath: iso7816.Path{
			Type:  iso7816.PathTypeAbsolute,
			Value: []byte{0x3F, 0x00, 0x50, 0x15},
		},
	}
}

// ParseAODF decodes every record of a directory file image and appends the
// objects to the token. Filler bytes at the tail of the EF end the scan.
func (t *Token) ParseAODF(data []byte) error {
	rest := data
	for {
		obj, next, err := t.DecodeAODFEntry(rest)
		if err != nil {
			if errors.Is(err, iso7816.ErrEndOfContents) {
				return nil
			}
			return err
		}
		t.Objects = append(t.Objects, obj)
		rest = next
	}
}

// FindAuthObject returns the authentication object whose own identifier is
// id, or nil.
func (t *Token) FindAuthObject(id ID) *Object {
	for _, o := range t.Objects {
		if o.Auth != nil && o.Auth.AuthID.Equal(id) {
			return o
		}
	}
	return nil
}

// FindPinByReference returns the PIN object with the given card-side
// reference, or nil.
func (t *Token) FindPinByReference(ref int) *Object {
	for _, o := range t.Objects {
		if o.Auth != nil && o.Auth.AuthType == AuthTypePIN && o.Auth.PIN.Reference == ref {
			return o
		}
	}
	return nil
}

// FindUnblockingPin returns the PUK object that unblocks obj: an unblocking
// PIN whose identifier matches obj's protecting identifier. Returns nil
// when the directory names none.
func (t *Token) FindUnblockingPin(obj *Object) *Object {
	if len(obj.AuthID) == 0 {
		return nil
	}
	for _, o := range t.Objects {
		if o == obj || o.Auth == nil || o.Auth.AuthType != AuthTypePIN {
			continue
		}
		if o.Auth.PIN.Flags&PinUnblockingPin != 0 && o.Auth.AuthID.Equal(obj.AuthID) {
			return o
		}
	}
	return nil
}
