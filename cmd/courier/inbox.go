package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/courierhq/courier/pkg/protocol"
)

func inboxCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inbox",
		Short: "Fetch pending messages",
		Long: `Fetch and print every message waiting on the server.

Receiving the messages acknowledges them; the server deletes what it
delivered. Files are written to the temp directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInbox()
		},
	}
}

func runInbox() error {
	ident, c, err := connect()
	if err != nil {
		return err
	}

	messages, err := c.FetchMessages()
	if err != nil {
		return err
	}

	if len(messages) == 0 {
		info("no new messages for %s", ident.Name)
		return nil
	}

	success("%d message(s)", len(messages))
	for _, m := range messages {
		switch m.MessageType {
		case protocol.MessageTypeKeyRequest:
			info("[%d] from %s: key request", m.MessageID, m.Sender)
		case protocol.MessageTypeKeyShare:
			info("[%d] from %s: symmetric key (%d bytes)", m.MessageID, m.Sender, len(m.Content))
		case protocol.MessageTypeText:
			info("[%d] from %s: %s", m.MessageID, m.Sender, string(m.Content))
		case protocol.MessageTypeFile:
			path, err := saveInboxFile(m)
			if err != nil {
				info("[%d] from %s: file (%d bytes), not saved: %v", m.MessageID, m.Sender, len(m.Content), err)
				continue
			}
			info("[%d] from %s: file saved to %s", m.MessageID, m.Sender, path)
		default:
			info("[%d] from %s: unknown type %d (%d bytes)", m.MessageID, m.Sender, m.MessageType, len(m.Content))
		}
	}
	return nil
}

func saveInboxFile(m protocol.PendingMessage) (string, error) {
	path := filepath.Join(os.TempDir(), fmt.Sprintf("courier-%s-%d", m.Sender.Short(), m.MessageID))
	if err := os.WriteFile(path, m.Content, 0600); err != nil {
		return "", err
	}
	return path, nil
}
