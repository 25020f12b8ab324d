package pkcs15

import (
	"fmt"

	"github.com/moov-io/bertlv"

	"github.com/gregLibert/card-access/pkg/iso7816"
	"github.com/gregLibert/card-access/pkg/tlv"
)

// Authentication Object Directory File (AODF) codec, PKCS#15 clause on
// AuthenticationType. Each record is one ASN.1 SEQUENCE:
//
//	SEQUENCE {
//	    commonObjectAttributes  SEQUENCE { label, flags, authId, userConsent }
//	    classAttributes         SEQUENCE { authId }
//	    typeAttributes      [1] { pinAttributes SEQUENCE { ... } }
//	}
//
// Directory files are read front to back; cards pad the tail of the EF with
// 00 or FF bytes, which terminates the scan.

// defaultMaxPinLength applies when neither the record nor the card states a
// PIN length ceiling.
const defaultMaxPinLength = 8

// DecodeAODFEntry parses the first record of buf and returns it together
// with the unconsumed remainder. Hitting the end of the buffer or the EF's
// filler bytes yields ErrEndOfContents.
func (t *Token) DecodeAODFEntry(buf []byte) (*Object, []byte, error) {
	if len(buf) == 0 || buf[0] == 0x00 || buf[0] == 0xFF {
		return nil, nil, iso7816.ErrEndOfContents
	}

	record, rest, err := tlv.SplitFirst(buf)
	if err != nil {
		return nil, nil, fmt.Errorf("malformed directory record: %w", err)
	}

	packets, err := bertlv.Decode(record)
	if err != nil {
		return nil, nil, fmt.Errorf("malformed directory record: %w", err)
	}
	if len(packets) != 1 || packets[0].Tag != "30" {
		return nil, nil, fmt.Errorf("directory record is not a sequence")
	}

	var (
		label       string
		objFlags    uint
		protectID   []byte
		userConsent int

		ownID []byte

		pinFlags               uint
		pinType                int
		minLen, storedLen      int
		maxLen                 int
		reference              int
		padChar, pathValue     []byte
		pathIndex, pathLength  int
	)

	fields := []tlv.Field{
		{Name: "commonObjectAttributes", Tag: "30", Kind: tlv.KindSequence, Fields: []tlv.Field{
			{Name: "label", Tag: "0C", Kind: tlv.KindUTF8String, Optional: true, Value: &label},
			{Name: "flags", Tag: "03", Kind: tlv.KindBitString, Optional: true, Value: &objFlags},
			{Name: "authId", Tag: "04", Kind: tlv.KindOctetString, Optional: true, Value: &protectID},
			{Name: "userConsent", Tag: "02", Kind: tlv.KindInteger, Optional: true, Value: &userConsent},
		}},
		{Name: "classAttributes", Tag: "30", Kind: tlv.KindSequence, Fields: []tlv.Field{
			{Name: "authId", Tag: "04", Kind: tlv.KindOctetString, Value: &ownID},
		}},
		{Name: "typeAttributes", Tag: "A1", Kind: tlv.KindSequence, Fields: []tlv.Field{
			{Name: "pinAttributes", Tag: "30", Kind: tlv.KindSequence, Fields: []tlv.Field{
				{Name: "pinFlags", Tag: "03", Kind: tlv.KindBitString, Value: &pinFlags},
				{Name: "pinType", Tag: "0A", Kind: tlv.KindInteger, Value: &pinType},
				{Name: "minLength", Tag: "02", Kind: tlv.KindInteger, Value: &minLen},
				{Name: "storedLength", Tag: "02", Kind: tlv.KindInteger, Value: &storedLen},
				{Name: "maxLength", Tag: "02", Kind: tlv.KindInteger, Optional: true, Value: &maxLen},
				{Name: "pinReference", Tag: "80", Kind: tlv.KindInteger, Optional: true, Value: &reference},
				{Name: "padChar", Tag: "04", Kind: tlv.KindOctetString, Optional: true, Value: &padChar},
				{Name: "lastPinChange", Tag: "18", Kind: tlv.KindOctetString, Optional: true},
				{Name: "path", Tag: "30", Kind: tlv.KindSequence, Optional: true, Fields: []tlv.Field{
					{Name: "path", Tag: "04", Kind: tlv.KindOctetString, Value: &pathValue},
					{Name: "index", Tag: "02", Kind: tlv.KindInteger, Optional: true, Value: &pathIndex},
					{Name: "length", Tag: "80", Kind: tlv.KindInteger, Optional: true, Value: &pathLength},
				}},
			}},
		}},
	}

	if err := tlv.UnmarshalSequence(packets[0].TLVs, fields); err != nil {
		return nil, nil, fmt.Errorf("authentication object: %w", err)
	}

	attrs := PinAttributes{
		Flags:        PinFlags(pinFlags),
		Type:         PinType(pinType),
		MinLength:    minLen,
		StoredLength: storedLen,
		MaxLength:    maxLen,
		Reference:    reference,
	}

	// References are encoded as signed integers; cards using references
	// above 0x7F land in the negative range
	if attrs.Reference < 0 {
		attrs.Reference += 256
	}

	if len(padChar) > 0 {
		attrs.PadChar = padChar[0]
	}

	if attrs.MaxLength <= 0 {
		switch {
		case t.Card != nil && t.Card.MaxPinLength() > 0:
			attrs.MaxLength = t.Card.MaxPinLength()
		case attrs.StoredLength > 0:
			attrs.MaxLength = attrs.StoredLength
			if attrs.Type == PinTypeBCD {
				attrs.MaxLength *= 2
			}
		default:
			attrs.MaxLength = defaultMaxPinLength
		}
	}

	policy := &AuthPolicy{
		AuthID:    ID(ownID),
		AuthType:  AuthTypePIN,
		PIN:       attrs,
		TriesLeft: -1,
	}

	// Only a local PIN inherits a location; a global PIN with no path is
	// presented without a preceding selection
	switch {
	case len(pathValue) > 0:
		policy.Path = iso7816.Path{Type: iso7816.PathTypeAbsolute, Value: pathValue}
	case attrs.Flags&PinLocal != 0 && len(t.AppDDOAID) > 0:
		policy.Path = iso7816.Path{Type: iso7816.PathTypeDFName,
			Value: append([]byte(nil), t.AppDDOAID...)}
	case attrs.Flags&PinLocal != 0:
		policy.Path = t.AppPath.Clone()
	}

	obj := &Object{
		Label:       label,
		Flags:       ObjectFlags(objFlags),
		AuthID:      ID(protectID),
		UserConsent: userConsent,
		Auth:        policy,
	}
	return obj, rest, nil
}

// EncodeAODFEntry renders one object back into its directory record.
func EncodeAODFEntry(obj *Object) ([]byte, error) {
	if obj.Auth == nil || obj.Auth.AuthType != AuthTypePIN {
		return nil, iso7816.NewError(iso7816.ErrNotSupported,
			"only PIN authentication objects can be encoded")
	}
	attrs := &obj.Auth.PIN

	var common []bertlv.TLV
	if obj.Label != "" {
		common = append(common, bertlv.TLV{Tag: "0C", Value: []byte(obj.Label)})
	}
	if obj.Flags != 0 {
		common = append(common, bertlv.TLV{Tag: "03", Value: tlv.EncodeBitString(uint(obj.Flags), 2)})
	}
	if len(obj.AuthID) > 0 {
		common = append(common, bertlv.TLV{Tag: "04", Value: obj.AuthID})
	}
	if obj.UserConsent > 0 {
		common = append(common, bertlv.TLV{Tag: "02", Value: tlv.EncodeInteger(obj.UserConsent)})
	}

	class := []bertlv.TLV{{Tag: "04", Value: obj.Auth.AuthID}}

	pin := []bertlv.TLV{
		{Tag: "03", Value: tlv.EncodeBitString(uint(attrs.Flags), 12)},
		{Tag: "0A", Value: tlv.EncodeInteger(int(attrs.Type))},
		{Tag: "02", Value: tlv.EncodeInteger(attrs.MinLength)},
		{Tag: "02", Value: tlv.EncodeInteger(attrs.StoredLength)},
	}
	if attrs.MaxLength > 0 {
		pin = append(pin, bertlv.TLV{Tag: "02", Value: tlv.EncodeInteger(attrs.MaxLength)})
	}
	if attrs.Reference >= 0 {
		pin = append(pin, bertlv.TLV{Tag: "80", Value: tlv.EncodeInteger(attrs.Reference)})
	}
	if attrs.Flags&PinNeedsPadding != 0 {
		pin = append(pin, bertlv.TLV{Tag: "04", Value: []byte{attrs.PadChar}})
	}

	commonBytes, err := bertlv.Encode(common)
	if err != nil {
		return nil, err
	}
	classBytes, err := bertlv.Encode(class)
	if err != nil {
		return nil, err
	}
	pinBytes, err := bertlv.Encode(pin)
	if err != nil {
		return nil, err
	}
	if len(obj.Auth.Path.Value) > 0 {
		pathInner, err := bertlv.Encode([]bertlv.TLV{{Tag: "04", Value: obj.Auth.Path.Value}})
		if err != nil {
			return nil, err
		}
		pinBytes = append(pinBytes, tlv.Wrap(0x30, pathInner)...)
	}

	var record []byte
	record = append(record, tlv.Wrap(0x30, commonBytes)...)
	record = append(record, tlv.Wrap(0x30, classBytes)...)
	record = append(record, tlv.Wrap(0xA1, tlv.Wrap(0x30, pinBytes))...)
	return tlv.Wrap(0x30, record), nil
}
