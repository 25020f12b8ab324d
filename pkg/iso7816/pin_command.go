package iso7816

import (
	"github.com/gregLibert/card-access/pkg/secret"
)

// Reference-data commands (VERIFY, CHANGE REFERENCE DATA, RESET RETRY
// COUNTER), ISO 7816-4 clause 7.5.

// PinEncoding selects how PIN characters are laid out in the command data.
type PinEncoding int

const (
	// PinEncodingASCII sends the PIN characters as-is.
	PinEncodingASCII PinEncoding = iota
	// PinEncodingBCD packs decimal digits two per byte.
	PinEncodingBCD
)

// PinOperation selects the reference-data command to issue.
type PinOperation int

const (
	PinOpVerify PinOperation = iota
	PinOpChange
	PinOpUnblock
)

// PinValue is one PIN (or PUK) together with its presentation rules.
type PinValue struct {
	// Data holds the PIN characters. Empty when the value is collected on a
	// pinpad reader rather than supplied by the caller.
	Data []byte

	MinLength int
	MaxLength int

	// PadLength is the fixed command-data length when padding applies;
	// PadChar fills the remainder.
	PadLength int
	PadChar   byte

	Encoding PinEncoding

	// Prompt is the message shown when the value is collected interactively.
	Prompt string
}

// PinRequest describes one reference-data command.
type PinRequest struct {
	Op        PinOperation
	Reference int

	NeedsPadding bool
	UsePinPad    bool

	// Pin1 is the current PIN (or the PUK for unblock); Pin2 is the new PIN
	// for change and unblock.
	Pin1 PinValue
	Pin2 PinValue
}

// encodePinValue renders one PIN value into command-data bytes.
func encodePinValue(v PinValue, needsPadding bool) ([]byte, error) {
	var out []byte

	switch v.Encoding {
	case PinEncodingASCII:
		out = append([]byte(nil), v.Data...)

	case PinEncodingBCD:
		out = make([]byte, (len(v.Data)+1)/2)
		for i, c := range v.Data {
			if c < '0' || c > '9' {
				secret.Zero(out)
				return nil, argError(ErrInvalidArguments, "BCD PIN accepts decimal digits only")
			}
			nibble := c - '0'
			if i%2 == 0 {
				out[i/2] = nibble << 4
			} else {
				out[i/2] |= nibble
			}
		}
		if len(v.Data)%2 == 1 {
			out[len(out)-1] |= v.PadChar & 0x0F
		}

	default:
		return nil, argError(ErrInvalidArguments, "unknown PIN encoding %d", v.Encoding)
	}

	if needsPadding && v.PadLength > 0 {
		if len(out) > v.PadLength {
			secret.Zero(out)
			return nil, argError(ErrBufferTooSmall, "encoded PIN (%d bytes) exceeds pad length %d", len(out), v.PadLength)
		}
		for len(out) < v.PadLength {
			out = append(out, v.PadChar)
		}
	}

	return out, nil
}

// buildPinCommand assembles the APDU for req. The returned data buffer
// contains PIN material; the caller must wipe it.
func (c *Card) buildPinCommand(req *PinRequest) (*CommandAPDU, error) {
	var ins Instruction
	var p1 byte

	havePin1 := len(req.Pin1.Data) > 0 || req.UsePinPad
	havePin2 := len(req.Pin2.Data) > 0 || req.UsePinPad

	switch req.Op {
	case PinOpVerify:
		ins = mustInstruction(INS_VERIFY)
		p1 = 0x00

	case PinOpChange:
		ins = mustInstruction(INS_CHANGE_REFERENCE_DATA)
		if !havePin2 {
			return nil, argError(ErrInvalidArguments, "change needs a new reference value")
		}
		// P1=1 changes the reference data using only the new value, for
		// cards that check the old value through other means
		if havePin1 {
			p1 = 0x00
		} else {
			p1 = 0x01
		}

	case PinOpUnblock:
		ins = mustInstruction(INS_RESET_RETRY_COUNTER)
		switch {
		case havePin1 && havePin2:
			p1 = 0x00 // resetting code and new reference data
		case havePin1:
			p1 = 0x01 // resetting code only
		case havePin2:
			p1 = 0x02 // new reference data only
		default:
			p1 = 0x03 // neither; counter reset by prior authentication
		}

	default:
		return nil, argError(ErrInvalidArguments, "unknown PIN operation %d", req.Op)
	}

	var data []byte
	if !req.UsePinPad {
		if req.Op != PinOpUnblock || p1 == 0x00 || p1 == 0x01 {
			if len(req.Pin1.Data) > 0 || req.Op == PinOpVerify {
				enc, err := encodePinValue(req.Pin1, req.NeedsPadding)
				if err != nil {
					return nil, err
				}
				data = append(data, enc...)
				secret.Zero(enc)
			}
		}
		if req.Op != PinOpVerify && len(req.Pin2.Data) > 0 {
			enc, err := encodePinValue(req.Pin2, req.NeedsPadding)
			if err != nil {
				secret.Zero(data)
				return nil, err
			}
			data = append(data, enc...)
			secret.Zero(enc)
		}
	} else if !c.HasCapability(CapPinPad) {
		return nil, argError(ErrNotSupported, "reader offers no pinpad")
	}

	return &CommandAPDU{
		Class:       c.cla,
		Instruction: ins,
		P1:          p1,
		P2:          byte(req.Reference),
		Data:        data,
	}, nil
}

// PinCommand issues the reference-data command described by req.
//
// On success tries is -1. When the card reports a wrong value with a
// retry counter (63 CX), tries carries the remaining attempts and err wraps
// ErrPinCodeIncorrect. All PIN material assembled for transport is wiped
// before returning.
func (c *Card) PinCommand(req *PinRequest) (tries int, err error) {
	cmd, err := c.buildPinCommand(req)
	if err != nil {
		return -1, err
	}
	defer secret.Zero(cmd.Data)

	trace, err := c.transmit(cmd)
	if err != nil {
		return -1, err
	}

	sw := trace.Last().Response.Status
	outcome := Classify(sw)

	switch outcome.Kind {
	case OutcomeSuccess, OutcomeMoreData:
		return -1, nil
	case OutcomeRetriesRemaining:
		e := swError(ErrPinCodeIncorrect, sw, "reference data check failed")
		e.Retries = outcome.Count
		return outcome.Count, e
	}

	// Any 63XX warning answers a wrong reference value; only the C-range
	// carries a counter, handled above
	if sw.SW1() == 0x63 {
		return -1, swError(ErrPinCodeIncorrect, sw, "reference data check failed")
	}
	return -1, outcome.Err(sw)
}
