package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
   ___ ___  _   _ _ __(_) ___ _ __
  / __/ _ \| | | | '__| |/ _ \ '__|
 | (_| (_) | |_| | |  | |  __/ |
  \___\___/ \__,_|_|  |_|\___|_|  d
`

func main() {
	rootCmd := &cobra.Command{
		Use:   "courierd",
		Short: "Store-and-forward messaging server",
		Long: `Courierd is a store-and-forward messaging server.

Clients register under a unique name, discover peers, exchange public
keys, and deposit messages that are held until the recipient polls.
Message content is opaque to the server; end-to-end encryption is the
clients' business.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
