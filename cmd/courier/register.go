package main

import (
	"crypto/rand"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/courierhq/courier/pkg/client"
	"github.com/courierhq/courier/pkg/protocol"
)

func registerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <name>",
		Short: "Register a new account",
		Long: `Register a new account under the given name.

Names must be letters and digits only, at most 254 bytes. The server
mints a client ID, which is written to the identity file together with
the name and the registration key blob.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegister(args[0])
		},
	}
}

func runRegister(name string) error {
	if _, err := os.Stat(identityPath); err == nil {
		return fmt.Errorf("identity file %s already exists; one account per identity file", identityPath)
	}

	var key [protocol.PublicKeySize]byte
	if _, err := rand.Read(key[:]); err != nil {
		return fmt.Errorf("generate registration key: %w", err)
	}

	c := client.New(serverAddr)
	id, err := c.Register(name, key)
	if err != nil {
		return fmt.Errorf("register %q: %w", name, err)
	}

	ident := &identity{Name: name, ID: id, Key: key[:]}
	if err := saveIdentity(identityPath, ident); err != nil {
		return fmt.Errorf("registered as %s but failed to save identity: %w", id, err)
	}

	success("registered %q", name)
	info("client ID: %s", id)
	info("identity saved to %s", identityPath)
	return nil
}
