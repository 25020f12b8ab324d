package pkcs15

import (
	"errors"

	"github.com/gregLibert/card-access/pkg/iso7816"
)

// PIN presentation flows: verify, change, unblock. Every flow holds the
// card lock for its whole command sequence, so a path selection and the PIN
// command that depends on it cannot be torn apart by another goroutine.

// commandEncoding maps the stored PIN character encoding to the wire
// encoding of the reference-data commands.
func commandEncoding(t PinType) iso7816.PinEncoding {
	switch t {
	case PinTypeBCD, PinTypeHalfNibbleBCD:
		return iso7816.PinEncodingBCD
	default:
		return iso7816.PinEncodingASCII
	}
}

// pinValue builds the transport value for pin under the given attributes.
func pinValue(attrs *PinAttributes, pin []byte, prompt string) iso7816.PinValue {
	v := iso7816.PinValue{
		Data:      pin,
		MinLength: attrs.MinLength,
		MaxLength: attrs.MaxLength,
		Encoding:  commandEncoding(attrs.Type),
		Prompt:    prompt,
	}
	if attrs.Flags&PinNeedsPadding != 0 {
		v.PadLength = attrs.StoredLength
		v.PadChar = attrs.PadChar
	}
	return v
}

// validatePIN rejects values the card would refuse, before anything is
// transmitted. A pinpad-capable reader enforces its own rules, so host-side
// length checks never apply there.
func (t *Token) validatePIN(attrs *PinAttributes, pin []byte) error {
	if attrs.StoredLength > MaxPinSize {
		return iso7816.NewError(iso7816.ErrBufferTooSmall,
			"stored length %d exceeds the supported maximum %d", attrs.StoredLength, MaxPinSize)
	}
	if t.Card.HasCapability(iso7816.CapPinPad) {
		return nil
	}
	if len(pin) < attrs.MinLength || len(pin) > attrs.MaxLength {
		return iso7816.NewError(iso7816.ErrInvalidPinLength,
			"value length %d outside [%d, %d]", len(pin), attrs.MinLength, attrs.MaxLength)
	}
	return nil
}

// pinPolicy extracts the PIN attributes of obj or reports why it cannot be
// used.
func pinPolicy(obj *Object) (*AuthPolicy, error) {
	if obj == nil || obj.Auth == nil {
		return nil, iso7816.NewError(iso7816.ErrInvalidArguments, "not an authentication object")
	}
	if obj.Auth.AuthType != AuthTypePIN {
		return nil, iso7816.NewError(iso7816.ErrNotSupported,
			"authentication type %d is not PIN-based", obj.Auth.AuthType)
	}
	return obj.Auth, nil
}

// usePinPad reports whether entry should be delegated to the reader: no
// value supplied and the reader offers a pinpad.
func (t *Token) usePinPad(pin []byte) bool {
	return len(pin) == 0 && t.Card.HasCapability(iso7816.CapPinPad)
}

// selectPinPath selects the DF the PIN lives in. Must run under the card
// lock.
func (t *Token) selectPinPath(policy *AuthPolicy) error {
	if len(policy.Path.Value) == 0 {
		return nil
	}
	_, err := t.Card.SelectFile(policy.Path, false)
	return err
}

// recordTries updates the object's observed retry counter from err.
func recordTries(policy *AuthPolicy, tries int, err error) {
	var ce *iso7816.CardError
	if errors.As(err, &ce) && ce.Kind == iso7816.ErrPinCodeIncorrect && tries >= 0 {
		policy.TriesLeft = tries
	}
}

// VerifyPIN presents pin for obj and, on success, stores it in the PIN
// cache when caching applies. An empty pin with a pinpad-capable reader
// delegates entry to the reader.
func (t *Token) VerifyPIN(obj *Object, pin []byte) (int, error) {
	return t.verifyPIN(obj, pin, true)
}

func (t *Token) verifyPIN(obj *Object, pin []byte, updateCache bool) (int, error) {
	policy, err := pinPolicy(obj)
	if err != nil {
		return -1, err
	}

	pad := t.usePinPad(pin)
	if err := t.validatePIN(&policy.PIN, pin); err != nil {
		return -1, err
	}

	t.Card.Lock()
	defer t.Card.Unlock()

	if err := t.selectPinPath(policy); err != nil {
		return -1, err
	}

	tries, err := t.Card.Verify(policy.PIN.Reference, pinValue(&policy.PIN, pin, obj.Prompt(false)), pad)
	if err != nil {
		recordTries(policy, tries, err)
		return tries, err
	}

	if policy.MaxTries > 0 {
		policy.TriesLeft = policy.MaxTries
	}
	if updateCache && !pad {
		t.pincacheAdd(obj, pin)
	}
	return -1, nil
}

// ChangePIN replaces obj's PIN, presenting the current value first. On
// success the cache is refreshed with the new value.
func (t *Token) ChangePIN(obj *Object, current, replacement []byte) (int, error) {
	policy, err := pinPolicy(obj)
	if err != nil {
		return -1, err
	}
	if policy.PIN.Flags&PinChangeDisabled != 0 {
		return -1, iso7816.NewError(iso7816.ErrNotSupported, "changing this PIN is disabled")
	}

	// The pinpad collects both values when either is left to the reader
	pad := t.usePinPad(current) || t.usePinPad(replacement)
	if err := t.validatePIN(&policy.PIN, current); err != nil {
		return -1, err
	}
	if err := t.validatePIN(&policy.PIN, replacement); err != nil {
		return -1, err
	}

	t.Card.Lock()
	defer t.Card.Unlock()

	if err := t.selectPinPath(policy); err != nil {
		return -1, err
	}

	tries, err := t.Card.ChangeReferenceData(policy.PIN.Reference,
		pinValue(&policy.PIN, current, obj.Prompt(false)),
		pinValue(&policy.PIN, replacement, obj.Prompt(true)),
		pad)
	if err != nil {
		recordTries(policy, tries, err)
		return tries, err
	}

	if !pad {
		t.pincacheAdd(obj, replacement)
	}
	return -1, nil
}

// UnblockPIN resets obj's retry counter with the PUK and sets replacement
// as the new value. The PUK's own directory entry, when present, supplies
// its character encoding; obj's policy governs lengths and padding for both
// values. On success the cache is refreshed with the new value.
func (t *Token) UnblockPIN(obj *Object, puk, replacement []byte) (int, error) {
	policy, err := pinPolicy(obj)
	if err != nil {
		return -1, err
	}
	if policy.PIN.Flags&PinUnblockDisabled != 0 {
		return -1, iso7816.NewError(iso7816.ErrNotSupported, "unblocking this PIN is disabled")
	}

	// Fall back to obj's own policy when the directory names no PUK; some
	// cards keep the unblocking object off the directory entirely. The wire
	// value still travels under the blocked PIN's reference and padding, with
	// only the character encoding taken from the resolved PUK.
	pukAttrs := policy.PIN
	pukPolicy := &policy.PIN
	pukPrompt := "Please enter PUK"
	if pukObj := t.FindUnblockingPin(obj); pukObj != nil {
		pukAttrs.Type = pukObj.Auth.PIN.Type
		pukPolicy = &pukObj.Auth.PIN
		pukPrompt = pukObj.Prompt(false)
	}

	// The pinpad collects both values when either is left to the reader
	pad := t.usePinPad(puk) || t.usePinPad(replacement)
	if err := t.validatePIN(pukPolicy, puk); err != nil {
		return -1, err
	}
	if err := t.validatePIN(&policy.PIN, replacement); err != nil {
		return -1, err
	}

	t.Card.Lock()
	defer t.Card.Unlock()

	if err := t.selectPinPath(policy); err != nil {
		return -1, err
	}

	tries, err := t.Card.ResetRetryCounter(policy.PIN.Reference,
		pinValue(&pukAttrs, puk, pukPrompt),
		pinValue(&policy.PIN, replacement, obj.Prompt(true)),
		pad)
	if err != nil {
		recordTries(policy, tries, err)
		return tries, err
	}

	if policy.MaxTries > 0 {
		policy.TriesLeft = policy.MaxTries
	}
	if !pad {
		t.pincacheAdd(obj, replacement)
	}
	return -1, nil
}
