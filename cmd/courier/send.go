package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <client-id> <text>...",
		Short: "Send a text message",
		Long: `Send a text message to another client.

The message is held by the server until the recipient runs
"courier inbox". Content goes over the wire exactly as given; encrypt
it yourself if it matters.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(args[0], strings.Join(args[1:], " "))
		},
	}
}

func runSend(recipient, text string) error {
	_, c, err := connect()
	if err != nil {
		return err
	}

	to, err := parseRecipient(recipient)
	if err != nil {
		return err
	}

	msgID, err := c.SendText(to, []byte(text))
	if err != nil {
		return err
	}

	success("message %d queued for %s", msgID, to)
	return nil
}

func sendFileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sendfile <client-id> <path>",
		Short: "Send a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSendFile(args[0], args[1])
		},
	}
}

func runSendFile(recipient, path string) error {
	_, c, err := connect()
	if err != nil {
		return err
	}

	to, err := parseRecipient(recipient)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	msgID, err := c.SendFile(to, data)
	if err != nil {
		return err
	}

	success("file %s (%d bytes) queued as message %d for %s", path, len(data), msgID, to)
	return nil
}

func requestKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "request-key <client-id>",
		Short: "Ask another client for their symmetric key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequestKey(args[0])
		},
	}
}

func runRequestKey(recipient string) error {
	_, c, err := connect()
	if err != nil {
		return err
	}

	to, err := parseRecipient(recipient)
	if err != nil {
		return err
	}

	msgID, err := c.RequestKey(to)
	if err != nil {
		return err
	}

	success("key request %d queued for %s", msgID, to)
	return nil
}
