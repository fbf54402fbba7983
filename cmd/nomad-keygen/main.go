// Command nomad-keygen generates a NOMAD endpoint's long-term X25519
// static identity keypair.
package main

import (
	"fmt"
	"os"

	"github.com/nomadproto/nomad/cmd/nomad-keygen/internal/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
