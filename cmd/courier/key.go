package main

import (
	"encoding/base64"

	"github.com/spf13/cobra"
)

func keyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "key <client-id>",
		Short: "Fetch another client's public key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKey(args[0])
		},
	}
}

func runKey(arg string) error {
	_, c, err := connect()
	if err != nil {
		return err
	}

	target, err := parseRecipient(arg)
	if err != nil {
		return err
	}

	key, err := c.GetPublicKey(target)
	if err != nil {
		return err
	}

	success("public key of %s", target)
	info("%s", base64.StdEncoding.EncodeToString(key[:]))
	return nil
}
