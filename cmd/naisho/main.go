// naisho pairs two terminals over WebRTC using copy-pasted tokens.
//
// Usage:
//
//	naisho share                 # initiator: prints an offer, reads the answer
//	naisho receive               # responder: reads an offer, prints the answer
//	naisho sas <fpA> <fpB>       # short authentication string for two fingerprints
//	naisho inspect <token>       # decode a token
//	naisho words <hex>           # display words for arbitrary bytes
//
// Both sides compare the SAS out-of-band before any text is exchanged.
package main

import (
	"os"

	"github.com/backkem/naisho/cmd/naisho/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
