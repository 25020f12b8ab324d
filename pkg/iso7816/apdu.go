package iso7816

import (
	"bytes"
	"fmt"
)

// APDU structures and encodings according to ISO/IEC 7816-3 and 7816-4.
//
// A command consists of a mandatory Header (CLA, INS, P1, P2) and an
// optional Body (Lc + Data, Le).
//
// ENCODING CASES (ISO 7816-3):
// - Case 1: No Data, No Response (Header only).
// - Case 2: No Data, Response Expected (Header + Le).
// - Case 3: Data Present, No Response (Header + Lc + Data).
// - Case 4: Data Present, Response Expected (Header + Lc + Data + Le).
//
// LENGTH MODES:
//   - Short Length: Lc/Le encoded on 1 byte (Max 255/256).
//   - Extended Length: Lc/Le encoded on multiple bytes (Max 65535/65536).
//     Extended mode is triggered if Lc > 255 or Le > 256.

// APDU limits according to ISO 7816-3.
const (
	// MaxShortLc is the maximum data length (Nc) encodable in Short Length mode.
	MaxShortLc = 255

	// MaxShortLe is the maximum expected response length (Ne) encodable in
	// Short Length mode. In Short mode, 0x00 encodes 256.
	MaxShortLe = 256

	// MaxExtendedLc is the limit for Lc in Extended mode (16-bit unsigned).
	MaxExtendedLc = 65535

	// MaxExtendedLe is the maximum Ne encodable in Extended Length mode.
	// In Extended mode, 0x0000 encodes 65536.
	MaxExtendedLe = 65536
)

// CommandAPDU represents a command sent to the card.
type CommandAPDU struct {
	Class       Class
	Instruction Instruction
	P1, P2      byte
	Data        []byte
	Ne          int // Expected response length (0 means none)
}

// NewCommandAPDU creates a basic command.
func NewCommandAPDU(cla Class, ins Instruction, p1, p2 byte, data []byte, ne int) *CommandAPDU {
	return &CommandAPDU{
		Class:       cla,
		Instruction: ins,
		P1:          p1,
		P2:          p2,
		Data:        data,
		Ne:          ne,
	}
}

// Bytes encodes the CommandAPDU into its byte representation (C-APDU).
// It automatically selects between Short and Extended encoding based on the
// length of Data (Nc) and the expected response length (Ne).
func (c *CommandAPDU) Bytes() ([]byte, error) {
	buf := new(bytes.Buffer)

	class, err := c.Class.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode Class: %w", err)
	}
	buf.WriteByte(class)
	buf.WriteByte(byte(c.Instruction.Raw))
	buf.WriteByte(c.P1)
	buf.WriteByte(c.P2)

	nc := len(c.Data)
	ne := c.Ne

	if nc > MaxExtendedLc || ne > MaxExtendedLe {
		return nil, fmt.Errorf("command body out of range (Nc=%d, Ne=%d)", nc, ne)
	}

	isExtended := nc > MaxShortLc || ne > MaxShortLe

	// Lc field and Data field
	if nc > 0 {
		if !isExtended {
			buf.WriteByte(byte(nc))
		} else {
			// 00 flag + Lc on 2 bytes
			buf.WriteByte(0x00)
			buf.WriteByte(byte(nc >> 8))
			buf.WriteByte(byte(nc))
		}
		buf.Write(c.Data)
	}

	// Le field
	if ne > 0 {
		if !isExtended {
			if ne == MaxShortLe {
				buf.WriteByte(0x00) // 0x00 represents 256
			} else {
				buf.WriteByte(byte(ne))
			}
		} else {
			// If Lc was absent (Case 2 Extended), a leading 00
			// distinguishes Le from Lc.
			if nc == 0 {
				buf.WriteByte(0x00)
			}
			if ne == MaxExtendedLe {
				buf.WriteByte(0x00)
				buf.WriteByte(0x00)
			} else {
				buf.WriteByte(byte(ne >> 8))
				buf.WriteByte(byte(ne))
			}
		}
	}

	return buf.Bytes(), nil
}

// Clone returns a shallow copy of the command, used when a command must be
// re-issued with a corrected Le without mutating the original.
func (c *CommandAPDU) Clone() *CommandAPDU {
	dup := *c
	return &dup
}

// String returns a readable representation of the command meta-data.
func (c *CommandAPDU) String() string {
	return fmt.Sprintf("%s | P1: %02X, P2: %02X | Lc: %d | Le: %d",
		c.Instruction.Verbose(), c.P1, c.P2, len(c.Data), c.Ne)
}

// ResponseAPDU represents the reply from the card (R-APDU).
type ResponseAPDU struct {
	Data   []byte
	Status StatusWord
}

// ParseResponseAPDU parses raw bytes received from the card into a
// ResponseAPDU. The input must contain at least 2 bytes (SW1, SW2).
func ParseResponseAPDU(raw []byte) (*ResponseAPDU, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("response too short: length %d", len(raw))
	}

	indexSW1 := len(raw) - 2
	return &ResponseAPDU{
		Data:   raw[:indexSW1],
		Status: NewStatusWord(raw[indexSW1], raw[indexSW1+1]),
	}, nil
}

// String returns a readable representation of the response.
func (r *ResponseAPDU) String() string {
	return fmt.Sprintf("Data (%d bytes) | Status: %s", len(r.Data), r.Status.Verbose())
}
