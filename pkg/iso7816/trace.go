package iso7816

// A Transaction is the atomic unit of communication defined in ISO 7816-3:
// one Command APDU sent by the terminal, followed by one Response APDU sent
// back by the card.
//
// A Trace is a chronological sequence of Transactions capturing the full
// history of one logical operation. A single logical intent (e.g. "select
// file") may require several physical transactions because of the transport
// behaviors of ISO 7816-4:
// 1. "61 XX": the card has XX extra bytes; the terminal sends GET RESPONSE.
// 2. "6C XX": the terminal must re-send the command with Le = XX.
// In these cases the Trace contains the whole conversation and IsSuccess()
// evaluates the final outcome.

// Transaction represents a completed Command-Response pair.
type Transaction struct {
	Command  *CommandAPDU
	Response *ResponseAPDU
}

// IsSuccess checks if the transaction ended with a successful status.
// It returns false if the response is missing.
func (t *Transaction) IsSuccess() bool {
	if t.Response == nil {
		return false
	}
	return t.Response.Status.IsSuccess()
}

// Trace is a sequence of transactions (Command-Response pairs).
type Trace []Transaction

// Last returns the final transaction of the trace, or nil if it is empty.
func (t Trace) Last() *Transaction {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// Data concatenates the response data of every transaction, in order. For a
// command completed through a chain of GET RESPONSE exchanges this yields
// the reassembled payload.
func (t Trace) Data() []byte {
	var out []byte
	for i := range t {
		if t[i].Response != nil {
			out = append(out, t[i].Response.Data...)
		}
	}
	return out
}

// IsSuccess checks if the FINAL transaction in the trace was successful,
// regardless of intermediate warnings (like 61XX) in previous transactions.
func (t Trace) IsSuccess() bool {
	last := t.Last()
	if last == nil {
		return false
	}
	return last.IsSuccess()
}
