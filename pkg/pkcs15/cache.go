package pkcs15

import (
	"github.com/gregLibert/card-access/pkg/iso7816"
	"github.com/gregLibert/card-access/pkg/secret"
)

// PIN cache. A verified PIN can be replayed to re-establish the card's
// security state after it is lost, e.g. when another application resets the
// card. Cached material lives in wipeable buffers and is zeroized on every
// invalidation path: replacement, replay failure, ceiling hit, and explicit
// clearing.

// pincacheAdd stores pin as obj's cached value. The value is never cached
// when any known object protected by this PIN demands user consent; each use
// of such an object must be a fresh decision by the user.
func (t *Token) pincacheAdd(obj *Object, pin []byte) {
	if !t.Opts.UsePinCache || obj.UserConsent > 0 || len(pin) == 0 {
		return
	}
	for _, o := range t.Objects {
		if o.UserConsent > 0 && o.AuthID.Equal(obj.Auth.AuthID) {
			return
		}
	}
	obj.cached.Wipe()
	obj.cached = secret.From(pin)
	obj.usage = 0
}

// PincacheRevalidate replays obj's cached PIN to restore the card's
// security state. The replay itself does not refresh the cache, so the
// usage ceiling cannot be evaded by revalidating. A failed replay or a hit
// ceiling wipes the entry.
func (t *Token) PincacheRevalidate(obj *Object) error {
	if obj.UserConsent > 0 {
		return iso7816.NewError(iso7816.ErrSecurityStatusNotSatisfied,
			"object requires fresh user consent")
	}
	// A pinpad reader collects PINs itself; cached bytes cannot be replayed
	if t.Card.HasCapability(iso7816.CapPinPad) {
		return iso7816.NewError(iso7816.ErrSecurityStatusNotSatisfied, "pinpad reader, cached PIN unusable")
	}
	if !t.Opts.UsePinCache || obj.cached.Len() == 0 {
		return iso7816.NewError(iso7816.ErrSecurityStatusNotSatisfied, "no cached PIN")
	}

	if t.Opts.PinCacheCounter > 0 && obj.usage >= t.Opts.PinCacheCounter {
		obj.cached.Wipe()
		obj.cached = nil
		return iso7816.NewError(iso7816.ErrSecurityStatusNotSatisfied,
			"cached PIN exhausted its %d uses", t.Opts.PinCacheCounter)
	}
	obj.usage++

	if _, err := t.verifyPIN(obj, obj.cached.Bytes(), false); err != nil {
		obj.cached.Wipe()
		obj.cached = nil
		return iso7816.NewError(iso7816.ErrSecurityStatusNotSatisfied,
			"cached PIN rejected by the card")
	}
	return nil
}

// PincacheClear wipes every cached PIN on the token.
func (t *Token) PincacheClear() {
	for _, obj := range t.Objects {
		obj.cached.Wipe()
		obj.cached = nil
		obj.usage = 0
	}
}
