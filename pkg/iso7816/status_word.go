package iso7816

import (
	"fmt"

	"github.com/gregLibert/card-access/pkg/bits"
)

// Status Word (SW1-SW2) handling according to ISO/IEC 7816-4.
//
// Most status words are static 2-byte values (e.g. 0x9000), but a few ranges
// are dynamic and carry contextual information:
//
// 1. '61XX': Process completed, XX response bytes still available (GET RESPONSE).
// 2. '6CXX': Wrong length expectation; XX is the correct Le for the command.
// 3. '63CX': Counter warning; the lower nibble of SW2 is a counter value,
//    in practice the number of PIN tries remaining.
//
// Everything else is classified through a static table keyed on the exact
// 16-bit value. Values absent from the table are reported as an unknown reply.

// StatusWord represents the two-byte status trailer (SW1-SW2) of a response.
type StatusWord uint16

// NewStatusWord creates a StatusWord instance from two separate bytes.
func NewStatusWord(sw1, sw2 byte) StatusWord {
	return StatusWord(uint16(sw1)<<8 | uint16(sw2))
}

// SW1 returns the first byte (high byte) of the status word.
func (sw StatusWord) SW1() byte {
	return byte(sw >> 8)
}

// SW2 returns the second byte (low byte) of the status word.
func (sw StatusWord) SW2() byte {
	return byte(sw)
}

// IsCounter checks if the status carries a counter value (SW1 63, SW2 CX).
func (sw StatusWord) IsCounter() bool {
	if sw.SW1() != 0x63 {
		return false
	}
	return bits.GetRange(sw.SW2(), 8, 5) == 0x0C
}

// IsSuccess returns true if the command was processed successfully (90XX) or
// if data is available (61XX).
func (sw StatusWord) IsSuccess() bool {
	sw1 := sw.SW1()
	return sw1 == 0x90 || sw1 == 0x61
}

// IsWarning returns true if the status indicates a warning (62XX or 63XX).
func (sw StatusWord) IsWarning() bool {
	sw1 := sw.SW1()
	return sw1 == 0x62 || sw1 == 0x63
}

// IsError returns true if the status indicates an execution or checking
// error (64XX to 6FXX, excluding the dynamic 6CXX case).
func (sw StatusWord) IsError() bool {
	sw1 := sw.SW1()
	return sw1 >= 0x64 && sw1 <= 0x6F && sw1 != 0x6C
}

// Verbose returns a human-readable description of the status word, giving
// priority to the dynamic ISO ranges over the static table.
func (sw StatusWord) Verbose() string {
	sw1 := sw.SW1()
	sw2 := sw.SW2()

	if sw1 == 0x90 {
		return fmt.Sprintf("[%04X] Normal processing", uint16(sw))
	}
	if sw1 == 0x61 {
		return fmt.Sprintf("Process completed, %d bytes available", sw2)
	}
	if sw1 == 0x6C {
		return fmt.Sprintf("Wrong length, correct Le is %d", sw2)
	}
	if sw.IsCounter() {
		return fmt.Sprintf("Warning: counter = %d", bits.GetRange(sw2, 4, 1))
	}
	if entry, ok := statusTable[sw]; ok {
		return fmt.Sprintf("[%04X] %s", uint16(sw), entry.desc)
	}
	return fmt.Sprintf("[%04X] %s", uint16(sw), sw.genericCategoryDescription())
}

// genericCategoryDescription provides a fallback description based on SW1.
func (sw StatusWord) genericCategoryDescription() string {
	switch sw.SW1() {
	case 0x62:
		return "Warning: NV memory unchanged"
	case 0x63:
		return "Warning: NV memory changed"
	case 0x64:
		return "Execution Error: NV memory unchanged"
	case 0x65:
		return "Execution Error: NV memory changed"
	case 0x66:
		return "Execution Error: Security issue"
	case 0x68:
		return "Checking Error: Function not supported"
	case 0x69:
		return "Checking Error: Command not allowed"
	case 0x6A:
		return "Checking Error: Wrong parameters"
	default:
		return "Unknown Status"
	}
}

// Standard Status Word codes defined in ISO/IEC 7816-4.
const (
	SW_NO_ERROR StatusWord = 0x9000

	SW_WARN_NO_INFO          StatusWord = 0x6200
	SW_WARN_DATA_CORRUPTED   StatusWord = 0x6281
	SW_WARN_EOF_REACHED      StatusWord = 0x6282
	SW_WARN_FILE_DEACTIVATED StatusWord = 0x6283
	SW_WARN_FCI_BAD_FORMAT   StatusWord = 0x6284

	SW_WARN_NV_CHANGED_NO_INFO StatusWord = 0x6300
	SW_WARN_FILE_FILLED        StatusWord = 0x6381
	SW_WARN_COUNTER_0          StatusWord = 0x63C0

	SW_ERR_MEMORY_FAILURE StatusWord = 0x6581

	SW_ERR_WRONG_LENGTH              StatusWord = 0x6700
	SW_ERR_CHECKING_NO_INFO          StatusWord = 0x6800
	SW_ERR_LOGICAL_CHANNEL_NOT_SUPP  StatusWord = 0x6881
	SW_ERR_SECURE_MESSAGING_NOT_SUPP StatusWord = 0x6882

	SW_ERR_CMD_NOT_ALLOWED_NO_INFO StatusWord = 0x6900
	SW_ERR_CMD_INCOMPATIBLE_FILE   StatusWord = 0x6981
	SW_ERR_SECURITY_STATUS_NOT_SAT StatusWord = 0x6982
	SW_ERR_AUTH_METHOD_BLOCKED     StatusWord = 0x6983
	SW_ERR_REF_DATA_INVALIDATED    StatusWord = 0x6984
	SW_ERR_COND_OF_USE_NOT_SAT     StatusWord = 0x6985
	SW_ERR_CMD_NOT_ALLOWED_NO_EF   StatusWord = 0x6986
	SW_ERR_SM_OBJ_MISSING          StatusWord = 0x6987
	SW_ERR_SM_OBJ_INCORRECT        StatusWord = 0x6988

	SW_ERR_WRONG_PARAMS_NO_INFO  StatusWord = 0x6A00
	SW_ERR_INCORRECT_PARAMS_DATA StatusWord = 0x6A80
	SW_ERR_FUNC_NOT_SUPPORTED    StatusWord = 0x6A81
	SW_ERR_FILE_NOT_FOUND        StatusWord = 0x6A82
	SW_ERR_RECORD_NOT_FOUND      StatusWord = 0x6A83
	SW_ERR_NOT_ENOUGH_MEMORY     StatusWord = 0x6A84
	SW_ERR_NC_INCONSISTENT_TLV   StatusWord = 0x6A85
	SW_ERR_INCORRECT_PARAMS_P1P2 StatusWord = 0x6A86
	SW_ERR_NC_INCONSISTENT_P1P2  StatusWord = 0x6A87
	SW_ERR_REF_DATA_NOT_FOUND    StatusWord = 0x6A88

	SW_ERR_WRONG_P1P2        StatusWord = 0x6B00
	SW_ERR_INS_INVALID       StatusWord = 0x6D00
	SW_ERR_CLA_NOT_SUPPORTED StatusWord = 0x6E00
	SW_ERR_UNKNOWN           StatusWord = 0x6F00
)

type statusEntry struct {
	kind ErrorKind
	desc string
}

// statusTable maps exact 16-bit status words to their error classification.
// Dynamic ranges (61XX, 6CXX, 63CX) are handled before this table is consulted.
var statusTable = map[StatusWord]statusEntry{
	SW_WARN_NO_INFO:          {ErrUnknownReply, "State of non-volatile memory unchanged"},
	SW_WARN_DATA_CORRUPTED:   {ErrUnknownReply, "Part of returned data may be corrupted"},
	SW_WARN_EOF_REACHED:      {ErrUnknownReply, "End of file/record reached before reading Le bytes"},
	SW_WARN_FILE_DEACTIVATED: {ErrUnknownReply, "Selected file invalidated"},
	SW_WARN_FCI_BAD_FORMAT:   {ErrUnknownReply, "FCI not formatted according to ISO 7816-4"},

	SW_WARN_NV_CHANGED_NO_INFO: {ErrUnknownReply, "State of non-volatile memory changed"},
	SW_WARN_FILE_FILLED:        {ErrUnknownReply, "File filled up by last write"},

	SW_ERR_MEMORY_FAILURE: {ErrUnknownReply, "Memory failure"},

	SW_ERR_WRONG_LENGTH: {ErrWrongLength, "Wrong length"},

	SW_ERR_CHECKING_NO_INFO:          {ErrUnknownReply, "Functions in CLA not supported"},
	SW_ERR_LOGICAL_CHANNEL_NOT_SUPP:  {ErrUnknownReply, "Logical channel not supported"},
	SW_ERR_SECURE_MESSAGING_NOT_SUPP: {ErrUnknownReply, "Secure messaging not supported"},

	SW_ERR_CMD_NOT_ALLOWED_NO_INFO: {ErrUnknownReply, "Command not allowed"},
	SW_ERR_CMD_INCOMPATIBLE_FILE:   {ErrUnknownReply, "Command incompatible with file structure"},
	SW_ERR_SECURITY_STATUS_NOT_SAT: {ErrSecurityStatusNotSatisfied, "Security status not satisfied"},
	SW_ERR_AUTH_METHOD_BLOCKED:     {ErrAuthMethodBlocked, "Authentication method blocked"},
	SW_ERR_REF_DATA_INVALIDATED:    {ErrUnknownReply, "Referenced data invalidated"},
	SW_ERR_COND_OF_USE_NOT_SAT:     {ErrUnknownReply, "Conditions of use not satisfied"},
	SW_ERR_CMD_NOT_ALLOWED_NO_EF:   {ErrUnknownReply, "Command not allowed (no current EF)"},
	SW_ERR_SM_OBJ_MISSING:          {ErrUnknownReply, "Expected SM data objects missing"},
	SW_ERR_SM_OBJ_INCORRECT:        {ErrUnknownReply, "SM data objects incorrect"},

	SW_ERR_WRONG_PARAMS_NO_INFO:  {ErrUnknownReply, "Wrong parameter(s) P1-P2"},
	SW_ERR_INCORRECT_PARAMS_DATA: {ErrUnknownReply, "Incorrect parameters in the data field"},
	SW_ERR_FUNC_NOT_SUPPORTED:    {ErrNotSupported, "Function not supported"},
	SW_ERR_FILE_NOT_FOUND:        {ErrFileNotFound, "File not found"},
	SW_ERR_RECORD_NOT_FOUND:      {ErrRecordNotFound, "Record not found"},
	SW_ERR_NOT_ENOUGH_MEMORY:     {ErrUnknownReply, "Not enough memory space in the file"},
	SW_ERR_NC_INCONSISTENT_TLV:   {ErrInvalidArguments, "Lc inconsistent with TLV structure"},
	SW_ERR_INCORRECT_PARAMS_P1P2: {ErrInvalidArguments, "Incorrect parameters P1-P2"},
	SW_ERR_NC_INCONSISTENT_P1P2:  {ErrInvalidArguments, "Lc inconsistent with P1-P2"},
	SW_ERR_REF_DATA_NOT_FOUND:    {ErrUnknownReply, "Referenced data not found"},

	SW_ERR_WRONG_P1P2:        {ErrUnknownReply, "Wrong parameter(s) P1-P2"},
	SW_ERR_INS_INVALID:       {ErrNotSupported, "Instruction code not supported or invalid"},
	SW_ERR_CLA_NOT_SUPPORTED: {ErrClassNotSupported, "Class not supported"},
	SW_ERR_UNKNOWN:           {ErrUnknownReply, "No precise diagnosis"},
}

// OutcomeKind tags the result of status word classification.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeMoreData
	OutcomeWrongLength
	OutcomeRetriesRemaining
	OutcomeFailure
)

// Outcome is the semantic interpretation of a status word.
type Outcome struct {
	Kind OutcomeKind

	// Count carries the dynamic payload: bytes still available for
	// OutcomeMoreData, the corrected Le for OutcomeWrongLength, the
	// remaining tries for OutcomeRetriesRemaining.
	Count int

	// Failure and Description are set for OutcomeFailure.
	Failure     ErrorKind
	Description string
}

// Classify interprets a status word into an Outcome.
//
// Precedence follows ISO 7816-4: SW1 90 is success whatever SW2 says, the
// dynamic ranges 61XX/6CXX/63CX come next, then the static table, and any
// value left over is an unknown reply. PIN operations must handle the
// retries-remaining case themselves before falling back to the generic
// failure mapping.
func Classify(sw StatusWord) Outcome {
	sw1 := sw.SW1()
	sw2 := sw.SW2()

	switch {
	case sw1 == 0x90:
		return Outcome{Kind: OutcomeSuccess}
	case sw1 == 0x61:
		return Outcome{Kind: OutcomeMoreData, Count: int(sw2)}
	case sw1 == 0x6C:
		return Outcome{Kind: OutcomeWrongLength, Count: int(sw2)}
	case sw1 == 0x63 && sw2&0xF0 == 0xC0:
		return Outcome{Kind: OutcomeRetriesRemaining, Count: int(sw2 & 0x0F)}
	}

	if entry, ok := statusTable[sw]; ok {
		return Outcome{Kind: OutcomeFailure, Failure: entry.kind, Description: entry.desc}
	}
	return Outcome{Kind: OutcomeFailure, Failure: ErrUnknownReply}
}

// Err converts an Outcome into an error. Success and more-data outcomes are
// nil; a retries-remaining outcome outside a PIN operation is an unknown
// reply, matching the static table which has no entry for 63CX.
func (o Outcome) Err(sw StatusWord) error {
	switch o.Kind {
	case OutcomeSuccess, OutcomeMoreData:
		return nil
	case OutcomeWrongLength:
		e := swError(ErrWrongLength, sw, "wrong length")
		e.Correct = o.Count
		return e
	case OutcomeRetriesRemaining:
		return swError(ErrUnknownReply, sw, "")
	default:
		return swError(o.Failure, sw, o.Description)
	}
}
