package iso7816

import (
	"errors"
	"testing"
)

func TestStatusWord_Counter(t *testing.T) {
	tests := []struct {
		sw        StatusWord
		isCounter bool
	}{
		{NewStatusWord(0x63, 0xC0), true},  // Counter 0
		{NewStatusWord(0x63, 0xCF), true},  // Counter 15
		{NewStatusWord(0x63, 0x00), false}, // Not a counter
		{NewStatusWord(0x63, 0x81), false}, // File filled
		{NewStatusWord(0x90, 0xC3), false}, // Wrong SW1
	}

	for _, tt := range tests {
		if got := tt.sw.IsCounter(); got != tt.isCounter {
			t.Errorf("SW %X IsCounter = %v, want %v", uint16(tt.sw), got, tt.isCounter)
		}
	}
}

func TestStatusWord_Classification(t *testing.T) {
	tests := []struct {
		sw        StatusWord
		isSuccess bool
		isWarning bool
		isError   bool
	}{
		{SW_NO_ERROR, true, false, false},
		{NewStatusWord(0x61, 0x10), true, false, false}, // Bytes available
		{SW_WARN_EOF_REACHED, false, true, false},
		{NewStatusWord(0x63, 0xC2), false, true, false}, // Counter
		{SW_ERR_WRONG_LENGTH, false, false, true},
		{SW_ERR_FILE_NOT_FOUND, false, false, true},
		{NewStatusWord(0x6C, 0x10), false, false, false}, // Wrong Le is transport, not error
	}

	for _, tt := range tests {
		if got := tt.sw.IsSuccess(); got != tt.isSuccess {
			t.Errorf("SW %X IsSuccess = %v, want %v", uint16(tt.sw), got, tt.isSuccess)
		}
		if got := tt.sw.IsWarning(); got != tt.isWarning {
			t.Errorf("SW %X IsWarning = %v, want %v", uint16(tt.sw), got, tt.isWarning)
		}
		if got := tt.sw.IsError(); got != tt.isError {
			t.Errorf("SW %X IsError = %v, want %v", uint16(tt.sw), got, tt.isError)
		}
	}
}

func TestClassify_Outcomes(t *testing.T) {
	tests := []struct {
		name  string
		sw    StatusWord
		kind  OutcomeKind
		count int
	}{
		{"Success", SW_NO_ERROR, OutcomeSuccess, 0},
		{"More data with count", NewStatusWord(0x61, 0x18), OutcomeMoreData, 0x18},
		{"More data unspecified", NewStatusWord(0x61, 0x00), OutcomeMoreData, 0},
		{"Wrong length", NewStatusWord(0x6C, 0x2F), OutcomeWrongLength, 0x2F},
		{"Counter zero", NewStatusWord(0x63, 0xC0), OutcomeRetriesRemaining, 0},
		{"Counter fifteen", NewStatusWord(0x63, 0xCF), OutcomeRetriesRemaining, 15},
		{"Mapped failure", SW_ERR_FILE_NOT_FOUND, OutcomeFailure, 0},
		{"Unknown status", NewStatusWord(0x91, 0x23), OutcomeFailure, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.sw)
			if got.Kind != tt.kind {
				t.Fatalf("Classify(%04X).Kind = %v, want %v", uint16(tt.sw), got.Kind, tt.kind)
			}
			if got.Count != tt.count {
				t.Errorf("Classify(%04X).Count = %d, want %d", uint16(tt.sw), got.Count, tt.count)
			}
		})
	}
}

func TestClassify_FailureMapping(t *testing.T) {
	tests := []struct {
		sw   StatusWord
		kind ErrorKind
	}{
		{SW_ERR_SECURITY_STATUS_NOT_SAT, ErrSecurityStatusNotSatisfied},
		{SW_ERR_AUTH_METHOD_BLOCKED, ErrAuthMethodBlocked},
		{SW_ERR_WRONG_LENGTH, ErrWrongLength},
		{SW_ERR_FUNC_NOT_SUPPORTED, ErrNotSupported},
		{SW_ERR_INS_INVALID, ErrNotSupported},
		{SW_ERR_FILE_NOT_FOUND, ErrFileNotFound},
		{SW_ERR_RECORD_NOT_FOUND, ErrRecordNotFound},
		{SW_ERR_NC_INCONSISTENT_TLV, ErrInvalidArguments},
		{SW_ERR_INCORRECT_PARAMS_P1P2, ErrInvalidArguments},
		{SW_ERR_NC_INCONSISTENT_P1P2, ErrInvalidArguments},
		{SW_ERR_CLA_NOT_SUPPORTED, ErrClassNotSupported},
		{SW_ERR_MEMORY_FAILURE, ErrUnknownReply},
		{NewStatusWord(0x91, 0x23), ErrUnknownReply},
	}

	for _, tt := range tests {
		err := Classify(tt.sw).Err(tt.sw)
		if !errors.Is(err, tt.kind) {
			t.Errorf("SW %04X: error %v does not match kind %v", uint16(tt.sw), err, tt.kind)
		}
	}
}

func TestOutcome_ErrSuccessIsNil(t *testing.T) {
	for _, sw := range []StatusWord{SW_NO_ERROR, NewStatusWord(0x61, 0x20)} {
		if err := Classify(sw).Err(sw); err != nil {
			t.Errorf("SW %04X: want nil error, got %v", uint16(sw), err)
		}
	}
}

func TestOutcome_WrongLengthCarriesCorrection(t *testing.T) {
	sw := NewStatusWord(0x6C, 0x19)
	err := Classify(sw).Err(sw)

	var ce *CardError
	if !errors.As(err, &ce) {
		t.Fatalf("want *CardError, got %T", err)
	}
	if ce.Kind != ErrWrongLength {
		t.Errorf("Kind = %v, want %v", ce.Kind, ErrWrongLength)
	}
	if ce.Correct != 0x19 {
		t.Errorf("Correct = %d, want %d", ce.Correct, 0x19)
	}
}
