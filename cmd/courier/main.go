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

// Persistent flags shared by every subcommand.
var (
	serverAddr   string
	identityPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "courier",
		Short: "Command-line client for a courier server",
		Long: `Courier talks to a courierd server: register an account, discover
other clients, fetch their public keys, and exchange store-and-forward
messages.

The account identity (name, ID, registration key) lives in a local
identity file created by "courier register".`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&serverAddr, "server", "s", "127.0.0.1:1357", "Server address (host:port)")
	rootCmd.PersistentFlags().StringVarP(&identityPath, "identity", "i", "courier.id", "Path to the identity file")

	rootCmd.AddCommand(
		registerCmd(),
		usersCmd(),
		keyCmd(),
		sendCmd(),
		sendFileCmd(),
		requestKeyCmd(),
		inboxCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		errorMsg("%s", err)
		os.Exit(1)
	}
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// errorMsg prints an error message.
func errorMsg(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\033[31m✗\033[0m %s\n", fmt.Sprintf(format, args...))
}
