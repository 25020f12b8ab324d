/*
Package iso7816 implements the command/response protocol core for contact
smart cards according to ISO/IEC 7816-4.

It provides the APDU (Application Protocol Data Unit) building blocks —
Command and Response structures in the four standard encoding cases, Status
Word classification, the FCI (File Control Information) codec — and a Card
command service that drives the card-level operations every higher layer
uses: file selection and management, binary and record access, PIN
verification and management, and security-environment configuration for
signature and decipherment.

# Fundamentals

The communication with a smart card is strictly synchronous:
 1. The host sends a Command APDU (Header + optional Body).
 2. The card processes it and returns a Response APDU (optional Body +
    Trailer SW1/SW2).

# Status Words

Every response ends with a 2-byte Status Word (SW).
  - 0x9000: Success (OK).
  - 0x61XX: Success, but XX response bytes are still available.
  - 0x6CXX: Error, wrong length expectation (XX is the correct length).
  - 0x63CX: Warning, X is a counter (PIN tries remaining).
  - Other: classified through a static table, see Classify.

# Usage Example

	card, err := iso7816.NewCard(transport, iso7816.Config{})
	if err != nil {
	    log.Fatal(err)
	}

	fd, err := card.SelectFile(iso7816.PathMF(), true)
	if err != nil {
	    log.Fatal(err)
	}
	fmt.Printf("selected %04X (%d bytes)\n", fd.ID, fd.Size)

	pin := iso7816.PinValue{Data: []byte("1234"), Encoding: iso7816.PinEncodingASCII}
	tries, err := card.Verify(0x01, pin, false)
	if errors.Is(err, iso7816.ErrPinCodeIncorrect) {
	    fmt.Printf("wrong PIN, %d tries left\n", tries)
	}
*/
package iso7816
