package iso7816

import "fmt"

// Error taxonomy of the command layer.
//
// Failures fall in two families:
//  1. Caller-side failures (InvalidArguments, CmdTooLong, ...) detected before
//     any byte is transmitted.
//  2. Card-side failures derived from the Status Word of a response, via the
//     classification table in status_word.go.
//
// ErrorKind is a closed enumeration usable directly with errors.Is; CardError
// wraps a kind together with the status word and the dynamic payloads
// (remaining tries, corrected length) some status words carry.

// ErrorKind identifies a failure class. It implements error so callers can
// match with errors.Is(err, iso7816.ErrFileNotFound).
type ErrorKind int

const (
	ErrUnknownReply ErrorKind = iota
	ErrInvalidArguments
	ErrCmdTooLong
	ErrBufferTooSmall
	ErrOutOfMemory
	ErrTransmitFailed
	ErrWrongLength
	ErrPinCodeIncorrect
	ErrInvalidPinLength
	ErrSecurityStatusNotSatisfied
	ErrAuthMethodBlocked
	ErrFileNotFound
	ErrRecordNotFound
	ErrNotSupported
	ErrClassNotSupported
	ErrEndOfContents
)

var errorKindNames = map[ErrorKind]string{
	ErrUnknownReply:               "unknown reply from card",
	ErrInvalidArguments:           "invalid arguments",
	ErrCmdTooLong:                 "command data too long",
	ErrBufferTooSmall:             "buffer too small",
	ErrOutOfMemory:                "out of memory",
	ErrTransmitFailed:             "transmit failed",
	ErrWrongLength:                "wrong length",
	ErrPinCodeIncorrect:           "PIN code incorrect",
	ErrInvalidPinLength:           "invalid PIN length",
	ErrSecurityStatusNotSatisfied: "security status not satisfied",
	ErrAuthMethodBlocked:          "authentication method blocked",
	ErrFileNotFound:               "file not found",
	ErrRecordNotFound:             "record not found",
	ErrNotSupported:               "not supported",
	ErrClassNotSupported:          "class not supported",
	ErrEndOfContents:              "end of contents",
}

func (k ErrorKind) String() string {
	if s, ok := errorKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("error kind %d", int(k))
}

// Error makes ErrorKind usable as a sentinel error value.
func (k ErrorKind) Error() string { return k.String() }

// CardError is the concrete error returned by card operations.
type CardError struct {
	Kind ErrorKind

	// SW is the status word that produced this error, or 0 if the failure
	// happened before or during transmission.
	SW StatusWord

	// Retries carries the remaining-tries count for ErrPinCodeIncorrect.
	// -1 means the card did not report a count.
	Retries int

	// Correct carries the corrected expected length for ErrWrongLength
	// reported through a 6CXX status word.
	Correct int

	// Message is the human-readable diagnostic, typically the table entry
	// of the status word.
	Message string

	cause error
}

func (e *CardError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	switch {
	case e.Kind == ErrPinCodeIncorrect && e.Retries >= 0:
		return fmt.Sprintf("%s (%d tries left)", msg, e.Retries)
	case e.Kind == ErrWrongLength && e.Correct > 0:
		return fmt.Sprintf("%s (correct length %d)", msg, e.Correct)
	case e.cause != nil:
		return fmt.Sprintf("%s: %v", msg, e.cause)
	case e.SW != 0:
		return fmt.Sprintf("%s (SW %04X)", msg, uint16(e.SW))
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the underlying cause, so
// errors.Is works against either.
func (e *CardError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.Kind, e.cause}
	}
	return []error{e.Kind}
}

// NewError builds a CardError for a failure detected without talking to the
// card, for layers above the command set.
func NewError(kind ErrorKind, format string, args ...interface{}) *CardError {
	return argError(kind, format, args...)
}

// argError reports a caller-side failure. Nothing was transmitted.
func argError(kind ErrorKind, format string, args ...interface{}) *CardError {
	return &CardError{Kind: kind, Retries: -1, Message: fmt.Sprintf(format, args...)}
}

// swError reports a card-side failure for the given status word.
func swError(kind ErrorKind, sw StatusWord, msg string) *CardError {
	return &CardError{Kind: kind, SW: sw, Retries: -1, Message: msg}
}

// transmitError wraps a transport-layer failure. The core never interprets
// the transport's own error values.
func transmitError(cause error) *CardError {
	return &CardError{Kind: ErrTransmitFailed, Retries: -1, cause: cause}
}
