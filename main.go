package main

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/ebfe/scard"
	"golang.org/x/term"

	"github.com/gregLibert/card-access/pkg/iso7816"
	"github.com/gregLibert/card-access/pkg/pkcs15"
	"github.com/gregLibert/card-access/pkg/secret"
)

func main() {
	// --- 1. Hardware Setup ---
	ctx, rawCard := connectToCard()

	defer func() {
		if err := ctx.Release(); err != nil {
			log.Printf("Warning: Failed to release context: %v", err)
		}
	}()

	defer func() {
		if err := rawCard.Disconnect(scard.LeaveCard); err != nil {
			log.Printf("Warning: Failed to disconnect card: %v", err)
		}
	}()

	// --- 2. Logic Setup ---
	card, err := iso7816.NewCard(rawCard, iso7816.Config{Locker: &sync.Mutex{}})
	if err != nil {
		log.Fatalf("Error wrapping card: %s", err)
	}

	// --- 3. Execution Flow ---

	// Step 1: Walk down to the application DF and show what we find
	step1ExploreApplication(card)

	// Step 2: Load the authentication object directory
	token := step2LoadAuthObjects(card)

	// Step 3: Verify the first user PIN found, if any
	if token != nil {
		step3VerifyPin(token)
	}

	fmt.Println("\n>> Demo Finished")
}

// =========================================================================
// Helper Functions
// =========================================================================

// connectToCard handles the PC/SC context establishment and reader connection.
func connectToCard() (*scard.Context, *scard.Card) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		log.Fatalf("Error establishing context: %s", err)
	}

	readers, err := ctx.ListReaders()
	if err != nil || len(readers) == 0 {
		if relErr := ctx.Release(); relErr != nil {
			log.Printf("Warning: Failed to release context during error handling: %v", relErr)
		}
		log.Fatal("No smart card reader found.")
	}

	fmt.Printf(">> Using reader: %s\n", readers[0])

	// Force T=0 or T=1 to avoid "Parameter Incorrect" errors (Error 57)
	card, err := ctx.Connect(readers[0], scard.ShareShared, scard.ProtocolT0|scard.ProtocolT1)
	if err != nil {
		if relErr := ctx.Release(); relErr != nil {
			log.Printf("Warning: Failed to release context during error handling: %v", relErr)
		}
		log.Fatalf("Error connecting to card: %s", err)
	}

	return ctx, card
}

// step1ExploreApplication selects the MF and the PKCS#15 application DF,
// describing each file on the way.
func step1ExploreApplication(card *iso7816.Card) {
	fmt.Println("\n=============================================")
	fmt.Println(" Step 1: SELECT MF and application DF")
	fmt.Println("=============================================")

	mf, err := card.SelectFile(iso7816.PathMF(), true)
	if err != nil {
		log.Printf("Step 1 Warning: MF selection failed: %v", err)
		return
	}
	describeFile("MF", mf)

	appPath := iso7816.PathMF().Append(0x5015)
	app, err := card.SelectFile(appPath, true)
	if err != nil {
		log.Printf("Step 1 Warning: application DF selection failed: %v", err)
		return
	}
	describeFile("Application DF", app)
}

// step2LoadAuthObjects reads the AODF from the conventional location and
// parses every authentication object it holds.
func step2LoadAuthObjects(card *iso7816.Card) *pkcs15.Token {
	fmt.Println("\n=============================================")
	fmt.Println(" Step 2: READ AUTHENTICATION OBJECT DIRECTORY")
	fmt.Println("=============================================")

	token := pkcs15.NewToken(card, pkcs15.Options{UsePinCache: true, PinCacheCounter: 10})

	// AODF at the conventional file identifier under the application DF
	aodfPath := token.AppPath.Append(0x4401)
	fd, err := card.SelectFile(aodfPath, true)
	if err != nil {
		log.Printf("Step 2 Warning: no AODF at %s: %v", aodfPath, err)
		return nil
	}

	size := fd.Size
	if size <= 0 {
		size = 256
	}
	data, err := card.ReadBinary(0, size)
	if err != nil {
		log.Printf("Step 2 Warning: reading AODF failed: %v", err)
		return nil
	}

	if err := token.ParseAODF(data); err != nil {
		log.Printf("Step 2 Warning: parsing AODF failed: %v", err)
		return nil
	}

	fmt.Printf(">> Found %d authentication object(s)\n", len(token.Objects))
	for i, obj := range token.Objects {
		fmt.Printf("   [%d] label=%q reference=%d flags=%03X path=%s\n",
			i, obj.Label, obj.Auth.PIN.Reference, uint(obj.Auth.PIN.Flags), obj.Auth.Path)
	}
	return token
}

// step3VerifyPin prompts for the first non-unblocking PIN and presents it.
func step3VerifyPin(token *pkcs15.Token) {
	fmt.Println("\n=============================================")
	fmt.Println(" Step 3: VERIFY PIN")
	fmt.Println("=============================================")

	var target *pkcs15.Object
	for _, obj := range token.Objects {
		if obj.Auth.PIN.Flags&pkcs15.PinUnblockingPin == 0 {
			target = obj
			break
		}
	}
	if target == nil {
		fmt.Println(">> No user PIN on this token.")
		return
	}

	fmt.Printf("%s (%s): ", target.Prompt(false), target.Label)
	pin, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		log.Printf("Step 3 Warning: reading PIN failed: %v", err)
		return
	}
	defer secret.Zero(pin)

	tries, err := token.VerifyPIN(target, pin)
	if err != nil {
		if tries >= 0 {
			fmt.Printf("Verification failed, %d tries left.\n", tries)
		} else {
			fmt.Printf("Verification failed: %v\n", err)
		}
		return
	}
	fmt.Println(">> PIN verified.")
}

func describeFile(role string, fd *iso7816.FileDescriptor) {
	fmt.Printf(">> %s: id=%04X size=%d", role, fd.ID, fd.Size)
	if len(fd.Name) > 0 {
		fmt.Printf(" name=%s", fd.PrintableName())
	}
	fmt.Println()
}
