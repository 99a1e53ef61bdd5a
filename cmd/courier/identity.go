package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/courierhq/courier/pkg/client"
	"github.com/courierhq/courier/pkg/protocol"
)

// identity is the locally stored account: the registered name, the
// server-minted ID, and the opaque key blob sent at registration.
// On disk it is three lines: name, hex ID, base64 key.
type identity struct {
	Name string
	ID   protocol.ClientID
	Key  []byte
}

func loadIdentity(path string) (*identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("no identity at %s (run \"courier register\" first): %w", path, err)
	}

	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if len(lines) < 2 {
		return nil, fmt.Errorf("identity file %s is malformed", path)
	}

	name := strings.TrimSpace(lines[0])
	if name == "" {
		return nil, fmt.Errorf("identity file %s has an empty name", path)
	}

	id, err := protocol.ParseClientID(strings.TrimSpace(lines[1]))
	if err != nil {
		return nil, fmt.Errorf("identity file %s has a bad client ID: %w", path, err)
	}

	// the key blob may wrap across the remaining lines
	var key []byte
	if len(lines) > 2 {
		joined := strings.Join(lines[2:], "")
		key, err = base64.StdEncoding.DecodeString(strings.TrimSpace(joined))
		if err != nil {
			return nil, fmt.Errorf("identity file %s has a bad key blob: %w", path, err)
		}
	}

	return &identity{Name: name, ID: id, Key: key}, nil
}

func saveIdentity(path string, ident *identity) error {
	content := fmt.Sprintf("%s\n%s\n%s\n",
		ident.Name,
		ident.ID.String(),
		base64.StdEncoding.EncodeToString(ident.Key),
	)
	return os.WriteFile(path, []byte(content), 0600)
}

// connect loads the identity and returns a client speaking as it
func connect() (*identity, *client.Client, error) {
	ident, err := loadIdentity(identityPath)
	if err != nil {
		return nil, nil, err
	}

	c := client.New(serverAddr)
	c.SetID(ident.ID)
	return ident, c, nil
}

// parseRecipient accepts a full hex client ID
func parseRecipient(arg string) (protocol.ClientID, error) {
	id, err := protocol.ParseClientID(arg)
	if err != nil {
		return protocol.ClientID{}, fmt.Errorf("bad recipient %q (expected the 32-char hex ID from \"courier users\"): %w", arg, err)
	}
	return id, nil
}
