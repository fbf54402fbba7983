package commands

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nomadproto/nomad/cryptosession"
	"github.com/nomadproto/nomad/primitives"
)

// testPrivateKey is a fixed, public keypair used only for conformance
// testing against another NOMAD implementation. Never use in production.
var testPrivateKey = primitives.Key{
	0x48, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07,
	0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f,
	0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17,
	0x18, 0x19, 0x1a, 0x1b, 0x1c, 0x1d, 0x1e, 0x7f,
}

func generateCmd() *cobra.Command {
	var outPath string
	var testMode bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a fresh X25519 static identity keypair",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var kp *cryptosession.StaticKeypair
			var err error

			if testMode {
				kp, err = cryptosession.StaticKeypairFromPrivate(testPrivateKey)
			} else {
				kp, err = cryptosession.GenerateStaticKeypair()
			}
			if err != nil {
				return fmt.Errorf("generate keypair: %w", err)
			}
			defer kp.Scrub()

			privB64 := base64.StdEncoding.EncodeToString(kp.Private[:])
			pubB64 := base64.StdEncoding.EncodeToString(kp.Public[:])

			if testMode {
				fmt.Fprintln(os.Stderr, "WARNING: test-mode keypair, public and deterministic, do not use in production")
			}

			if outPath != "" {
				if err := os.WriteFile(outPath, []byte(privB64+"\n"), 0o600); err != nil {
					return fmt.Errorf("write private key to %s: %w", outPath, err)
				}
				fmt.Printf("private key written to %s\n", outPath)
			} else {
				fmt.Printf("private key (base64, keep secret): %s\n", privB64)
			}
			fmt.Printf("public key (base64): %s\n", pubB64)
			return nil
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", "write the private key to this file (0600) instead of stdout")
	cmd.Flags().BoolVar(&testMode, "test", false, "emit the fixed conformance-test keypair instead of a random one")
	return cmd
}
