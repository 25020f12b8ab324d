package tlv

import (
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"
)

// Kind selects the ASN.1 primitive decoding applied to a Field's payload.
type Kind int

const (
	// KindOctetString copies the raw payload into a *[]byte.
	KindOctetString Kind = iota
	// KindUTF8String decodes the payload as text into a *string.
	KindUTF8String
	// KindInteger decodes a signed big-endian two's-complement value into an
	// *int. Also used for ENUMERATED payloads.
	KindInteger
	// KindBitString decodes a DER BIT STRING into a *uint, mapping ASN.1 bit
	// number i (MSB of the first content byte is bit 0) to flag value 1<<i.
	KindBitString
	// KindBoolean decodes into a *bool; any non-zero payload byte is true.
	KindBoolean
	// KindSequence recurses into the constructed payload using Fields.
	KindSequence
)

// Field describes one component of an ASN.1 SEQUENCE in encounter order.
// Components are matched positionally against the decoded TLV packets: a
// packet either matches the next field's tag, or the field must be Optional.
type Field struct {
	Name     string
	Tag      string // hex tag as produced by bertlv, e.g. "30", "04", "A1"
	Kind     Kind
	Optional bool
	Value    any     // pointer receiving the decoded value; nil discards it
	Fields   []Field // sub-components when Kind is KindSequence
}

// UnmarshalSequence walks packets against fields positionally. Required
// fields with no matching packet produce an error; packets left over after
// the last field are ignored, which tolerates future extensions of a record.
func UnmarshalSequence(packets []bertlv.TLV, fields []Field) error {
	idx := 0
	for _, f := range fields {
		if idx >= len(packets) || !strings.EqualFold(packets[idx].Tag, f.Tag) {
			if f.Optional {
				continue
			}
			return fmt.Errorf("missing required component %s (tag %s)", f.Name, f.Tag)
		}
		if err := decodeField(packets[idx], f); err != nil {
			return fmt.Errorf("component %s: %w", f.Name, err)
		}
		idx++
	}
	return nil
}

func decodeField(p bertlv.TLV, f Field) error {
	if f.Kind == KindSequence {
		sub := p.TLVs
		if len(sub) == 0 && len(p.Value) > 0 {
			var err error
			sub, err = bertlv.Decode(p.Value)
			if err != nil {
				return err
			}
		}
		return UnmarshalSequence(sub, f.Fields)
	}

	if f.Value == nil {
		return nil
	}

	switch f.Kind {
	case KindOctetString:
		dst, ok := f.Value.(*[]byte)
		if !ok {
			return fmt.Errorf("want *[]byte, got %T", f.Value)
		}
		*dst = append([]byte(nil), p.Value...)

	case KindUTF8String:
		dst, ok := f.Value.(*string)
		if !ok {
			return fmt.Errorf("want *string, got %T", f.Value)
		}
		*dst = string(p.Value)

	case KindInteger:
		dst, ok := f.Value.(*int)
		if !ok {
			return fmt.Errorf("want *int, got %T", f.Value)
		}
		v, err := DecodeInteger(p.Value)
		if err != nil {
			return err
		}
		*dst = v

	case KindBitString:
		dst, ok := f.Value.(*uint)
		if !ok {
			return fmt.Errorf("want *uint, got %T", f.Value)
		}
		v, err := DecodeBitString(p.Value)
		if err != nil {
			return err
		}
		*dst = v

	case KindBoolean:
		dst, ok := f.Value.(*bool)
		if !ok {
			return fmt.Errorf("want *bool, got %T", f.Value)
		}
		if len(p.Value) != 1 {
			return fmt.Errorf("boolean payload must be 1 byte, got %d", len(p.Value))
		}
		*dst = p.Value[0] != 0

	default:
		return fmt.Errorf("unknown field kind %d", f.Kind)
	}
	return nil
}

// DecodeInteger interprets data as a signed big-endian two's-complement
// integer, the DER INTEGER content encoding.
func DecodeInteger(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("empty integer payload")
	}
	if len(data) > 8 {
		return 0, fmt.Errorf("integer payload too long (%d bytes)", len(data))
	}
	v := int64(0)
	if data[0]&0x80 != 0 {
		v = -1
	}
	for _, b := range data {
		v = v<<8 | int64(b)
	}
	return int(v), nil
}

// EncodeInteger produces the minimal two's-complement content bytes for v.
func EncodeInteger(v int) []byte {
	n := int64(v)
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(n)
		n >>= 8
	}
	// Trim redundant leading bytes while the sign bit stays intact
	i := 0
	for i < 7 {
		if buf[i] == 0x00 && buf[i+1]&0x80 == 0 {
			i++
			continue
		}
		if buf[i] == 0xFF && buf[i+1]&0x80 != 0 {
			i++
			continue
		}
		break
	}
	return buf[i:]
}

// DecodeBitString interprets a DER BIT STRING content (leading unused-bits
// byte followed by the bits, MSB first) as a flag set where ASN.1 bit i maps
// to 1<<i.
func DecodeBitString(data []byte) (uint, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("empty bit string payload")
	}
	unused := int(data[0])
	if unused > 7 {
		return 0, fmt.Errorf("invalid unused-bits count %d", unused)
	}
	content := data[1:]
	total := len(content)*8 - unused
	var flags uint
	for i := 0; i < total && i < 32; i++ {
		octet := content[i/8]
		if octet&(0x80>>(i%8)) != 0 {
			flags |= 1 << i
		}
	}
	return flags, nil
}

// EncodeBitString produces DER BIT STRING content covering the lowest nbits
// flags of v.
func EncodeBitString(v uint, nbits int) []byte {
	if nbits <= 0 {
		nbits = 1
	}
	nbytes := (nbits + 7) / 8
	out := make([]byte, 1+nbytes)
	out[0] = byte(nbytes*8 - nbits)
	for i := 0; i < nbits; i++ {
		if v&(1<<i) != 0 {
			out[1+i/8] |= 0x80 >> (i % 8)
		}
	}
	return out
}

// Wrap prefixes inner with a single-byte tag and a DER length.
func Wrap(tag byte, inner []byte) []byte {
	n := len(inner)
	var hdr []byte
	switch {
	case n < 0x80:
		hdr = []byte{tag, byte(n)}
	case n <= 0xFF:
		hdr = []byte{tag, 0x81, byte(n)}
	default:
		hdr = []byte{tag, 0x82, byte(n >> 8), byte(n)}
	}
	return append(hdr, inner...)
}

// SplitFirst cuts the first complete TLV object off data, returning its full
// encoding (tag, length and value bytes) and the remaining buffer. Multi-byte
// tag numbers and indefinite lengths are rejected; directory files on cards
// use neither.
func SplitFirst(data []byte) (first, rest []byte, err error) {
	if len(data) < 2 {
		return nil, nil, fmt.Errorf("short TLV header (%d bytes)", len(data))
	}
	if data[0]&0x1F == 0x1F {
		return nil, nil, fmt.Errorf("multi-byte tag numbers not supported")
	}

	lenStart := 1
	var valueLen, lenBytes int
	switch b := data[lenStart]; {
	case b < 0x80:
		valueLen = int(b)
		lenBytes = 1
	case b == 0x81:
		if len(data) < 3 {
			return nil, nil, fmt.Errorf("truncated long-form length")
		}
		valueLen = int(data[2])
		lenBytes = 2
	case b == 0x82:
		if len(data) < 4 {
			return nil, nil, fmt.Errorf("truncated long-form length")
		}
		valueLen = int(data[2])<<8 | int(data[3])
		lenBytes = 3
	default:
		return nil, nil, fmt.Errorf("unsupported length form 0x%02X", b)
	}

	end := 1 + lenBytes + valueLen
	if end > len(data) {
		return nil, nil, fmt.Errorf("TLV value exceeds buffer (need %d, have %d)", end, len(data))
	}
	return data[:end], data[end:], nil
}
