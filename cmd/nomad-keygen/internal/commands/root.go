package commands

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:   "nomad-keygen",
	Short: "Generate NOMAD X25519 static identity keypairs",
	Long: `nomad-keygen generates the long-term X25519 keypair a NOMAD
endpoint uses as its Noise_IK static identity. With --out the private
key is written to that file with 0600 permissions, otherwise it is
printed to stdout; the public key is printed for distribution to peers.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
