package iso7816

import (
	"sync"

	"github.com/moov-io/bertlv"

	"github.com/gregLibert/card-access/pkg/secret"
)

// Transmitter is the transport a Card talks through: one raw command APDU
// exchanged for one raw response. github.com/ebfe/scard's *scard.Card
// satisfies it directly.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// Capability flags advertise optional features of the card or reader.
type Capability uint

const (
	// CapPinPad indicates the reader collects PIN values itself.
	CapPinPad Capability = 1 << iota
)

// Config carries the per-card parameters fixed at construction time.
type Config struct {
	// Class is the CLA applied to every command. The zero value encodes
	// CLA 0x00 (first interindustry, channel 0).
	Class Class

	// Locker, when set, serializes command sequences that must not be
	// interleaved with other users of the same transport. A nil Locker
	// makes Lock and Unlock no-ops.
	Locker sync.Locker

	Capabilities Capability

	// MaxRecv caps the response bytes requested per exchange. Defaults to
	// 256, the short-APDU ceiling.
	MaxRecv int

	// ChopSize is the largest data field accepted by WriteBinary and
	// UpdateBinary in one command. Defaults to 248; callers chop larger
	// payloads themselves.
	ChopSize int

	// MaxPinLength is the longest PIN the card accepts, 0 when unknown.
	MaxPinLength int
}

// Card issues ISO 7816-4 interindustry commands over a Transmitter. Build
// one with NewCard; the zero value is not usable.
type Card struct {
	t   Transmitter
	cfg Config
	cla Class
}

const (
	defaultMaxRecv  = 256
	defaultChopSize = 248
)

// maxTransactions bounds a single logical command's exchange chain, so a
// card stuck answering 61 XX cannot wedge the caller.
const maxTransactions = 64

// NewCard wraps a transport in a command issuer.
func NewCard(t Transmitter, cfg Config) (*Card, error) {
	if t == nil {
		return nil, argError(ErrInvalidArguments, "nil transmitter")
	}
	if cfg.MaxRecv <= 0 {
		cfg.MaxRecv = defaultMaxRecv
	}
	if cfg.ChopSize <= 0 {
		cfg.ChopSize = defaultChopSize
	}
	return &Card{t: t, cfg: cfg, cla: cfg.Class}, nil
}

// Lock acquires the card's serialization lock, when one is configured.
func (c *Card) Lock() {
	if c.cfg.Locker != nil {
		c.cfg.Locker.Lock()
	}
}

// Unlock releases the card's serialization lock, when one is configured.
func (c *Card) Unlock() {
	if c.cfg.Locker != nil {
		c.cfg.Locker.Unlock()
	}
}

// HasCapability reports whether the given capability flag is set.
func (c *Card) HasCapability(cap Capability) bool {
	return c.cfg.Capabilities&cap != 0
}

// MaxPinLength returns the configured PIN length ceiling, 0 when unknown.
func (c *Card) MaxPinLength() int {
	return c.cfg.MaxPinLength
}

// roundTrip performs one physical exchange. The encoded request buffer is
// wiped after transmission since it may carry reference data.
func (c *Card) roundTrip(cmd *CommandAPDU) (*ResponseAPDU, error) {
	raw, err := cmd.Bytes()
	if err != nil {
		return nil, argError(ErrInvalidArguments, "cannot encode command: %v", err)
	}
	defer secret.Zero(raw)

	reply, err := c.t.Transmit(raw)
	if err != nil {
		return nil, transmitError(err)
	}

	resp, err := ParseResponseAPDU(reply)
	if err != nil {
		return nil, swError(ErrUnknownReply, 0, err.Error())
	}
	return resp, nil
}

// transmit drives one logical command to completion, following the ISO
// 7816-3 transport behaviors:
//   - "61 XX" answers are drained with GET RESPONSE until the card is done;
//   - a "6C XX" answer re-issues the command once with the corrected Le.
//
// The returned trace records every exchange. transmit fails only on
// transport or encoding problems; the final status word is the caller's to
// interpret.
func (c *Card) transmit(cmd *CommandAPDU) (Trace, error) {
	var trace Trace
	current := cmd

	for len(trace) < maxTransactions {
		resp, err := c.roundTrip(current)
		if err != nil {
			return trace, err
		}
		trace = append(trace, Transaction{Command: current.Clone(), Response: resp})

		switch outcome := Classify(resp.Status); outcome.Kind {
		case OutcomeMoreData:
			ne := outcome.Count
			if ne == 0 || ne > c.cfg.MaxRecv {
				ne = c.cfg.MaxRecv
			}
			current = NewCommandAPDU(c.cla, mustInstruction(INS_GET_RESPONSE), 0, 0, nil, ne)

		case OutcomeWrongLength:
			if current.Ne == outcome.Count {
				// The card keeps asking for the length we already sent
				return trace, nil
			}
			current = current.Clone()
			current.Ne = outcome.Count

		default:
			return trace, nil
		}
	}
	return trace, swError(ErrUnknownReply, trace.Last().Response.Status,
		"card did not complete the command within the transaction limit")
}

// run transmits cmd and converts the final status word into an error, for
// operations with no special status handling.
func (c *Card) run(cmd *CommandAPDU) (Trace, error) {
	trace, err := c.transmit(cmd)
	if err != nil {
		return trace, err
	}
	sw := trace.Last().Response.Status
	return trace, Classify(sw).Err(sw)
}

// SelectFile issues SELECT FILE for the given path. When withMeta is true
// the card is asked for File Control Information and the decoded descriptor
// is returned; otherwise the card is told to omit response data and the
// returned descriptor is nil.
func (c *Card) SelectFile(path Path, withMeta bool) (*FileDescriptor, error) {
	var p1 byte
	value := path.Value

	switch path.Type {
	case PathTypeFileID:
		if len(value) != 2 {
			return nil, argError(ErrInvalidArguments, "file-id path must be exactly 2 bytes, got %d", len(value))
		}
		p1 = 0x00
	case PathTypeDFName:
		p1 = 0x04
	case PathTypeAbsolute:
		p1 = 0x08
		// Addressing from the MF: the MF prefix is implicit, and the MF
		// itself is selected by identifier
		if len(value) >= 2 && value[0] == 0x3F && value[1] == 0x00 {
			if len(value) == 2 {
				p1 = 0x00
			} else {
				value = value[2:]
			}
		}
	case PathTypeFromCurrent:
		p1 = 0x09
	case PathTypeParent:
		p1 = 0x03
		value = nil
	default:
		return nil, argError(ErrInvalidArguments, "unknown path type %d", path.Type)
	}

	p2 := byte(0x0C) // no response data
	ne := 0
	if withMeta {
		p2 = 0x00 // return FCI
		ne = c.cfg.MaxRecv
	}

	cmd := NewCommandAPDU(c.cla, mustInstruction(INS_SELECT), p1, p2, value, ne)
	trace, err := c.run(cmd)
	if err != nil {
		return nil, err
	}
	if !withMeta {
		return nil, nil
	}

	// A leading 0x00 signals proprietary coding, which this layer cannot
	// interpret
	data := trace.Data()
	if len(data) == 0 || data[0] != 0x6F {
		return nil, swError(ErrUnknownReply, trace.Last().Response.Status,
			"SELECT response is not an FCI template")
	}

	fd, err := DecodeFCI(data)
	if err != nil {
		return nil, err
	}
	fd.Path = path.Clone()
	return fd, nil
}

// ReadBinary reads up to le bytes of a transparent EF starting at offset.
func (c *Card) ReadBinary(offset int, le int) ([]byte, error) {
	if offset < 0 || offset > 0x7FFF {
		return nil, argError(ErrInvalidArguments, "offset %d outside the 15-bit addressing range", offset)
	}
	if le <= 0 || le > c.cfg.MaxRecv {
		le = c.cfg.MaxRecv
	}

	cmd := NewCommandAPDU(c.cla, mustInstruction(INS_READ_BINARY),
		byte(offset>>8)&0x7F, byte(offset), nil, le)
	trace, err := c.run(cmd)
	if err != nil {
		return nil, err
	}
	return trace.Data(), nil
}

// WriteBinary writes data once to a transparent EF at offset. Payloads
// larger than the configured chop size are rejected before transmission.
func (c *Card) WriteBinary(offset int, data []byte) (int, error) {
	return c.binaryUpdate(INS_WRITE_BINARY, offset, data)
}

// UpdateBinary overwrites data in a transparent EF at offset. Payloads
// larger than the configured chop size are rejected before transmission.
func (c *Card) UpdateBinary(offset int, data []byte) (int, error) {
	return c.binaryUpdate(INS_UPDATE_BINARY, offset, data)
}

func (c *Card) binaryUpdate(ins InsCode, offset int, data []byte) (int, error) {
	if offset < 0 || offset > 0x7FFF {
		return 0, argError(ErrInvalidArguments, "offset %d outside the 15-bit addressing range", offset)
	}
	if len(data) == 0 {
		return 0, argError(ErrInvalidArguments, "empty data field")
	}
	if len(data) > c.cfg.ChopSize {
		return 0, argError(ErrCmdTooLong, "%d bytes exceed the per-command limit of %d", len(data), c.cfg.ChopSize)
	}

	cmd := NewCommandAPDU(c.cla, mustInstruction(ins), byte(offset>>8)&0x7F, byte(offset), data, 0)
	if _, err := c.run(cmd); err != nil {
		return 0, err
	}
	return len(data), nil
}

// ReadRecord reads one record by number. A non-zero sfi addresses a short
// file identifier instead of the current EF.
func (c *Card) ReadRecord(record byte, sfi byte, le int) ([]byte, error) {
	if sfi > 0x1F {
		return nil, argError(ErrInvalidArguments, "short file identifier %d out of range", sfi)
	}
	if le <= 0 || le > c.cfg.MaxRecv {
		le = c.cfg.MaxRecv
	}

	cmd := NewCommandAPDU(c.cla, mustInstruction(INS_READ_RECORD),
		record, sfi<<3|0x04, nil, le)
	trace, err := c.run(cmd)
	if err != nil {
		return nil, err
	}
	return trace.Data(), nil
}

// WriteRecord writes one record by number.
func (c *Card) WriteRecord(record byte, sfi byte, data []byte) (int, error) {
	return c.recordUpdate(INS_WRITE_RECORD, record, sfi, data)
}

// UpdateRecord overwrites one record by number.
func (c *Card) UpdateRecord(record byte, sfi byte, data []byte) (int, error) {
	return c.recordUpdate(INS_UPDATE_RECORD, record, sfi, data)
}

// AppendRecord appends a record at the end of the file.
func (c *Card) AppendRecord(sfi byte, data []byte) (int, error) {
	return c.recordUpdate(INS_APPEND_RECORD, 0, sfi, data)
}

func (c *Card) recordUpdate(ins InsCode, record byte, sfi byte, data []byte) (int, error) {
	if sfi > 0x1F {
		return 0, argError(ErrInvalidArguments, "short file identifier %d out of range", sfi)
	}
	if len(data) == 0 || len(data) > MaxShortLc {
		return 0, argError(ErrInvalidArguments, "record data must be 1..%d bytes, got %d", MaxShortLc, len(data))
	}

	p2 := sfi << 3
	if ins != INS_APPEND_RECORD {
		p2 |= 0x04
	}
	cmd := NewCommandAPDU(c.cla, mustInstruction(ins), record, p2, data, 0)
	if _, err := c.run(cmd); err != nil {
		return 0, err
	}
	return len(data), nil
}

// GetChallenge fills out with random bytes from the card, requesting eight
// bytes per exchange.
func (c *Card) GetChallenge(out []byte) error {
	const chunk = 8
	cmd := NewCommandAPDU(c.cla, mustInstruction(INS_GET_CHALLENGE), 0, 0, nil, chunk)

	filled := 0
	for filled < len(out) {
		trace, err := c.run(cmd)
		if err != nil {
			return err
		}
		data := trace.Data()
		if len(data) < chunk {
			return swError(ErrUnknownReply, trace.Last().Response.Status,
				"GET CHALLENGE returned a short block")
		}
		filled += copy(out[filled:], data[:chunk])
	}
	return nil
}

// CreateFile creates the file described by fd under the current DF.
func (c *Card) CreateFile(fd *FileDescriptor) error {
	fci, err := EncodeFCI(fd)
	if err != nil {
		return err
	}
	cmd := NewCommandAPDU(c.cla, mustInstruction(INS_CREATE_FILE), 0, 0, fci, 0)
	_, err = c.run(cmd)
	return err
}

// DeleteFile deletes a child of the current DF. The file must be addressed
// by its two-byte identifier.
func (c *Card) DeleteFile(path Path) error {
	if path.Type != PathTypeFileID || len(path.Value) != 2 {
		return argError(ErrInvalidArguments, "DELETE FILE needs a 2-byte file identifier")
	}
	cmd := NewCommandAPDU(c.cla, mustInstruction(INS_DELETE_FILE), 0, 0, path.Value, 0)
	_, err := c.run(cmd)
	return err
}

// Verify presents pin against the given reference.
func (c *Card) Verify(reference int, pin PinValue, usePinPad bool) (int, error) {
	return c.PinCommand(&PinRequest{
		Op:           PinOpVerify,
		Reference:    reference,
		NeedsPadding: pin.PadLength > 0,
		UsePinPad:    usePinPad,
		Pin1:         pin,
	})
}

// ChangeReferenceData replaces the reference data. An empty current value
// performs an implicit change (P1=1).
func (c *Card) ChangeReferenceData(reference int, current, replacement PinValue, usePinPad bool) (int, error) {
	return c.PinCommand(&PinRequest{
		Op:           PinOpChange,
		Reference:    reference,
		NeedsPadding: replacement.PadLength > 0,
		UsePinPad:    usePinPad,
		Pin1:         current,
		Pin2:         replacement,
	})
}

// ResetRetryCounter unblocks the reference data using puk and optionally
// sets a replacement value.
func (c *Card) ResetRetryCounter(reference int, puk, replacement PinValue, usePinPad bool) (int, error) {
	return c.PinCommand(&PinRequest{
		Op:           PinOpUnblock,
		Reference:    reference,
		NeedsPadding: puk.PadLength > 0 || replacement.PadLength > 0,
		UsePinPad:    usePinPad,
		Pin1:         puk,
		Pin2:         replacement,
	})
}

// SecurityOperation selects the cryptographic operation a security
// environment is prepared for.
type SecurityOperation int

const (
	SecOpDecipher SecurityOperation = iota
	SecOpSign
)

// SecurityEnvironment describes the control reference template sent with
// MANAGE SECURITY ENVIRONMENT.
type SecurityEnvironment struct {
	Operation SecurityOperation

	// AlgorithmRef selects the algorithm (tag 80); negative omits it.
	AlgorithmRef int

	// FileRef points at the key file (tag 81); empty omits it.
	FileRef []byte

	// KeyRef selects the key (tag 83 for symmetric keys, 84 otherwise);
	// empty omits it.
	KeyRef          []byte
	KeyRefSymmetric bool
}

// SetSecurityEnvironment prepares the card for the given operation. When
// storeAs is positive the prepared environment is also stored under that
// number, with the two commands issued under the card lock so no other
// command can slip between them. An environment with no reference at all
// skips the SET command; only the store is performed.
func (c *Card) SetSecurityEnvironment(env *SecurityEnvironment, storeAs int) error {
	var p1, p2 byte
	switch env.Operation {
	case SecOpDecipher:
		p1, p2 = 0x41, 0xB8 // compute: confidentiality template
	case SecOpSign:
		p1, p2 = 0x81, 0xB6 // compute: digital signature template
	default:
		return argError(ErrInvalidArguments, "unknown security operation %d", env.Operation)
	}

	var objects []bertlv.TLV
	if env.AlgorithmRef >= 0 {
		objects = append(objects, bertlv.TLV{Tag: "80", Value: []byte{byte(env.AlgorithmRef)}})
	}
	if len(env.FileRef) > 0 {
		objects = append(objects, bertlv.TLV{Tag: "81", Value: env.FileRef})
	}
	if len(env.KeyRef) > 0 {
		tag := "83"
		if env.KeyRefSymmetric {
			tag = "84"
		}
		objects = append(objects, bertlv.TLV{Tag: tag, Value: env.KeyRef})
	}

	if storeAs > 0 {
		c.Lock()
		defer c.Unlock()
	}

	if len(objects) > 0 {
		data, err := bertlv.Encode(objects)
		if err != nil {
			return argError(ErrInvalidArguments, "cannot encode control reference template: %v", err)
		}
		cmd := NewCommandAPDU(c.cla, mustInstruction(INS_MANAGE_SECURITY_ENVIRONMENT), p1, p2, data, 0)
		if _, err := c.run(cmd); err != nil {
			return err
		}
	}

	if storeAs > 0 {
		store := NewCommandAPDU(c.cla, mustInstruction(INS_MANAGE_SECURITY_ENVIRONMENT), 0xF2, byte(storeAs), nil, 0)
		if _, err := c.run(store); err != nil {
			return err
		}
	}
	return nil
}

// RestoreSecurityEnvironment re-activates a stored environment by number.
func (c *Card) RestoreSecurityEnvironment(seNum int) error {
	if seNum <= 0 || seNum > 0xFF {
		return argError(ErrInvalidArguments, "security environment number %d out of range", seNum)
	}
	cmd := NewCommandAPDU(c.cla, mustInstruction(INS_MANAGE_SECURITY_ENVIRONMENT), 0xF3, byte(seNum), nil, 0)
	_, err := c.run(cmd)
	return err
}

// ComputeSignature signs data with the key selected by the current security
// environment and copies the signature into out, truncating when out is
// shorter than the card's answer. It returns the number of bytes copied.
func (c *Card) ComputeSignature(data, out []byte) (int, error) {
	if len(data) > MaxShortLc {
		return 0, argError(ErrInvalidArguments, "digest input of %d bytes exceeds %d", len(data), MaxShortLc)
	}

	cmd := NewCommandAPDU(c.cla, mustInstruction(INS_PERFORM_SECURITY_OPERATION),
		0x9E, 0x9A, data, c.cfg.MaxRecv)
	trace, err := c.run(cmd)
	if err != nil {
		return 0, err
	}
	return copy(out, trace.Data()), nil
}

// Decipher decrypts the cryptogram with the key selected by the current
// security environment and copies the plaintext into out, truncating when
// out is shorter than the card's answer. It returns the number of bytes
// copied.
func (c *Card) Decipher(cryptogram, out []byte) (int, error) {
	// One leading byte marks the padding indicator ("no further indication")
	if len(cryptogram)+1 > MaxShortLc {
		return 0, argError(ErrInvalidArguments, "cryptogram of %d bytes exceeds %d", len(cryptogram), MaxShortLc-1)
	}

	data := make([]byte, 0, len(cryptogram)+1)
	data = append(data, 0x00)
	data = append(data, cryptogram...)

	cmd := NewCommandAPDU(c.cla, mustInstruction(INS_PERFORM_SECURITY_OPERATION),
		0x80, 0x86, data, c.cfg.MaxRecv)
	trace, err := c.run(cmd)
	if err != nil {
		return 0, err
	}

	plain := trace.Data()
	n := copy(out, plain)
	secret.Zero(plain)
	return n, nil
}
