package iso7816

import (
	"fmt"

	"github.com/moov-io/bertlv"

	"github.com/gregLibert/card-access/pkg/tlv"
)

// File Control Information (FCI) codec, ISO 7816-4.
//
// The FCI template (tag 6F) returned by SELECT FILE carries the metadata of
// the selected file. Decoding tolerates unknown tags; encoding emits only
// the tags CREATE FILE needs and never re-emits the DF name (tag 84).

// fciTemplate maps the interindustry FCI data objects.
type fciTemplate struct {
	DataSize   []byte       `tlv:"80"`
	TotalSize  []byte       `tlv:"81"`
	Descriptor []byte       `tlv:"82"`
	FileID     []byte       `tlv:"83"`
	Name       []byte       `tlv:"84"`
	PropInfo   []byte       `tlv:"85"`
	SecAttr    []byte       `tlv:"86"`
	PropBER    []byte       `tlv:"A5"`
	Unknown    []bertlv.TLV `tlv:",unknown"`
}

// DecodeFCI parses FCI data into a fresh descriptor. The data may be the
// full 6F template or its bare contents; both forms occur in the wild.
func DecodeFCI(data []byte) (*FileDescriptor, error) {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("malformed FCI: %w", err)
	}
	if len(packets) == 1 && packets[0].Tag == "6F" {
		template := packets[0]
		packets = template.TLVs
		if len(packets) == 0 && len(template.Value) > 0 {
			packets, err = bertlv.Decode(template.Value)
			if err != nil {
				return nil, fmt.Errorf("malformed FCI template: %w", err)
			}
		}
	}

	var t fciTemplate
	if err := tlv.UnmarshalFromPackets(packets, &t); err != nil {
		return nil, err
	}

	f := NewFileDescriptor()

	// Prefer the total size (81); some cards report only the data size (80).
	sizeTag := t.TotalSize
	if sizeTag == nil {
		sizeTag = t.DataSize
	}
	if len(sizeTag) >= 2 {
		f.Size = int(sizeTag[0])<<8 | int(sizeTag[1])
	}
	if len(t.TotalSize) >= 2 {
		f.TotalSize = int(t.TotalSize[0])<<8 | int(t.TotalSize[1])
	}

	if len(t.Descriptor) > 0 {
		decodeDescriptorByte(t.Descriptor[0], f)
	}

	if len(t.FileID) == 2 {
		f.ID = uint16(t.FileID[0])<<8 | uint16(t.FileID[1])
	}

	if len(t.Name) > 0 {
		name := t.Name
		if len(name) > 16 {
			name = name[:16]
		}
		f.Name = append([]byte(nil), name...)
	}

	// A proprietary template (A5) supersedes a plain proprietary tag (85)
	switch {
	case t.PropBER != nil:
		f.PropAttr = append([]byte(nil), t.PropBER...)
	case t.PropInfo != nil:
		f.PropAttr = append([]byte(nil), t.PropInfo...)
	}

	if t.SecAttr != nil {
		f.SecAttr = append([]byte(nil), t.SecAttr...)
	}

	return f, nil
}

// decodeDescriptorByte unpacks the first byte of tag 82.
func decodeDescriptorByte(b byte, f *FileDescriptor) {
	f.Shareable = b&0x40 != 0

	if b&0x38 == 0x38 {
		f.Type = FileTypeDF
		return
	}

	switch (b >> 3) & 0x07 {
	case 0:
		f.Type = FileTypeWorkingEF
	case 1:
		f.Type = FileTypeInternalEF
	default:
		f.Type = FileTypeUnknown
	}
	f.Structure = EFStructure(b & 0x07)
}

// encodeDescriptorByte packs the first byte of tag 82.
func encodeDescriptorByte(f *FileDescriptor) (byte, error) {
	var b byte
	if f.Shareable {
		b |= 0x40
	}
	switch f.Type {
	case FileTypeWorkingEF:
		// no category bits
	case FileTypeInternalEF:
		b |= 0x08
	case FileTypeDF:
		b |= 0x38
	default:
		return 0, argError(ErrNotSupported, "cannot encode FCI for file type %d", f.Type)
	}
	b |= byte(f.Structure) & 0x07
	return b, nil
}

// EncodeFCI builds the 6F template sent with CREATE FILE. The DF name is
// assigned by the card and never emitted; security and proprietary
// attributes are included only when present.
func EncodeFCI(f *FileDescriptor) ([]byte, error) {
	if !f.Valid() {
		return nil, argError(ErrInvalidArguments, "file descriptor not initialized")
	}

	descriptor, err := encodeDescriptorByte(f)
	if err != nil {
		return nil, err
	}

	objects := []bertlv.TLV{
		{Tag: "81", Value: []byte{byte(f.Size >> 8), byte(f.Size)}},
		{Tag: "82", Value: []byte{descriptor}},
		{Tag: "83", Value: []byte{byte(f.ID >> 8), byte(f.ID)}},
	}
	if len(f.PropAttr) > 0 {
		objects = append(objects, bertlv.TLV{Tag: "85", Value: f.PropAttr})
	}
	if len(f.SecAttr) > 0 {
		objects = append(objects, bertlv.TLV{Tag: "86", Value: f.SecAttr})
	}

	inner, err := bertlv.Encode(objects)
	if err != nil {
		return nil, fmt.Errorf("FCI encode: %w", err)
	}
	return tlv.Wrap(0x6F, inner), nil
}
