package iso7816

import (
	"fmt"

	"github.com/gregLibert/card-access/pkg/bits"
)

// Instruction Byte (INS) logic according to ISO/IEC 7816-4.
//
// The INS byte identifies the command to be performed by the card.
//
// 1. Data Encoding (Bit 1):
//    For interindustry classes, the least significant bit often indicates
//    the format of the data field (0: standard, 1: BER-TLV structure).
//    Example: READ BINARY (0xB0) vs READ BINARY (BER-TLV) (0xB1).
//
// 2. Reserved Ranges:
//    INS values with an upper nibble of '6' or '9' are invalid; those values
//    are reserved for Status Words (SW1) and transport control (ISO 7816-3).

// InsCode is a typed representation of the instruction byte.
type InsCode byte

// Instruction (INS) codes used by this package, as defined in ISO/IEC 7816-4.
const (
	INS_VERIFY                      InsCode = 0x20
	INS_MANAGE_SECURITY_ENVIRONMENT InsCode = 0x22
	INS_CHANGE_REFERENCE_DATA       InsCode = 0x24
	INS_PERFORM_SECURITY_OPERATION  InsCode = 0x2A
	INS_RESET_RETRY_COUNTER         InsCode = 0x2C
	INS_GET_CHALLENGE               InsCode = 0x84
	INS_SELECT                      InsCode = 0xA4
	INS_READ_BINARY                 InsCode = 0xB0
	INS_READ_RECORD                 InsCode = 0xB2
	INS_GET_RESPONSE                InsCode = 0xC0
	INS_WRITE_BINARY                InsCode = 0xD0
	INS_WRITE_RECORD                InsCode = 0xD2
	INS_UPDATE_BINARY               InsCode = 0xD6
	INS_UPDATE_RECORD               InsCode = 0xDC
	INS_CREATE_FILE                 InsCode = 0xE0
	INS_APPEND_RECORD               InsCode = 0xE2
	INS_DELETE_FILE                 InsCode = 0xE4
)

var insNames = map[InsCode]string{
	INS_VERIFY:                      "VERIFY",
	INS_MANAGE_SECURITY_ENVIRONMENT: "MANAGE SECURITY ENVIRONMENT",
	INS_CHANGE_REFERENCE_DATA:       "CHANGE REFERENCE DATA",
	INS_PERFORM_SECURITY_OPERATION:  "PERFORM SECURITY OPERATION",
	INS_RESET_RETRY_COUNTER:         "RESET RETRY COUNTER",
	INS_GET_CHALLENGE:               "GET CHALLENGE",
	INS_SELECT:                      "SELECT",
	INS_READ_BINARY:                 "READ BINARY",
	INS_READ_RECORD:                 "READ RECORD",
	INS_GET_RESPONSE:                "GET RESPONSE",
	INS_WRITE_BINARY:                "WRITE BINARY",
	INS_WRITE_RECORD:                "WRITE RECORD",
	INS_UPDATE_BINARY:               "UPDATE BINARY",
	INS_UPDATE_RECORD:               "UPDATE RECORD",
	INS_CREATE_FILE:                 "CREATE FILE",
	INS_APPEND_RECORD:               "APPEND RECORD",
	INS_DELETE_FILE:                 "DELETE FILE",
}

// String returns the ISO name of the instruction, or its hex value when the
// code is not one this package issues.
func (i InsCode) String() string {
	if name, ok := insNames[i]; ok {
		return name
	}
	return fmt.Sprintf("INS(0x%02X)", byte(i))
}

// Instruction represents the parsed ISO 7816-4 Instruction byte (INS).
type Instruction struct {
	Raw      InsCode
	IsBERTLV bool
}

// NewInstruction creates an Instruction object with validation.
// It rejects '6X' and '9X' values, reserved per ISO 7816-3.
func NewInstruction(ins InsCode) (Instruction, error) {
	highNibble := byte(ins) & 0xF0
	if highNibble == 0x60 || highNibble == 0x90 {
		return Instruction{}, fmt.Errorf("invalid INS 0x%02X: 6X and 9X are reserved", ins)
	}

	return Instruction{
		Raw:      ins,
		IsBERTLV: bits.IsSet(byte(ins), 1),
	}, nil
}

// mustInstruction builds an Instruction for a code known at compile time.
func mustInstruction(ins InsCode) Instruction {
	i, err := NewInstruction(ins)
	if err != nil {
		panic(err)
	}
	return i
}

// Verbose returns a human-readable description of the instruction.
func (i Instruction) Verbose() string {
	format := "Standard"
	if i.IsBERTLV {
		format = "BER-TLV"
	}
	return fmt.Sprintf("INS: 0x%02X | Command: %s | Format: %s", byte(i.Raw), i.Raw, format)
}
