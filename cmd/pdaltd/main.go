// Pdaltd negotiates power on a FUSB302 attached USB-C port and runs the
// DisplayPort alternate mode over it.
package main

import (
	"os"

	"github.com/epdlink/go-typec/cmd/pdaltd/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
