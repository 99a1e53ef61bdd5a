package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/courierhq/courier/pkg/protocol"
)

// Client is one registered client record
type Client struct {
	ID        protocol.ClientID
	Name      string
	PublicKey []byte
	LastSeen  time.Time
}

// CreateClient inserts a new client record. A duplicate name or ID
// surfaces as ErrNameTaken through the table constraints, so concurrent
// registrations of the same name cannot both succeed.
func (s *Store) CreateClient(id protocol.ClientID, name string, publicKey []byte) error {
	if name == "" || len(name) > protocol.MaxNameLen {
		return ErrBadRecord
	}
	if len(publicKey) != protocol.PublicKeySize {
		return ErrBadRecord
	}

	query := `INSERT INTO clients (id, name, public_key, last_seen) VALUES (?, ?, ?, ?)`

	_, err := s.db.Exec(query, id[:], name, publicKey, time.Now().Unix())
	if err != nil {
		if isConstraintErr(err) {
			return ErrNameTaken
		}
		return fmt.Errorf("failed to create client: %v", err)
	}

	return nil
}

// ClientExists reports whether a client ID is registered
func (s *Store) ClientExists(id protocol.ClientID) (bool, error) {
	query := `SELECT COUNT(*) FROM clients WHERE id = ?`

	var count int
	if err := s.db.QueryRow(query, id[:]).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check client: %v", err)
	}

	return count > 0, nil
}

// UsernameExists reports whether a name is taken
func (s *Store) UsernameExists(name string) (bool, error) {
	query := `SELECT COUNT(*) FROM clients WHERE name = ?`

	var count int
	if err := s.db.QueryRow(query, name).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check name: %v", err)
	}

	return count > 0, nil
}

// GetPublicKey returns the stored key for a client, or ErrNotFound
func (s *Store) GetPublicKey(id protocol.ClientID) ([]byte, error) {
	query := `SELECT public_key FROM clients WHERE id = ?`

	var key []byte
	err := s.db.QueryRow(query, id[:]).Scan(&key)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get public key: %v", err)
	}

	return key, nil
}

// ListClients returns every registered client except the excluded ID, in
// registration order
func (s *Store) ListClients(exclude protocol.ClientID) ([]Client, error) {
	query := `
		SELECT id, name, public_key, last_seen
		FROM clients
		WHERE id != ?
		ORDER BY rowid ASC
	`

	rows, err := s.db.Query(query, exclude[:])
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %v", err)
	}
	defer rows.Close()

	var clients []Client
	for rows.Next() {
		var (
			c        Client
			rawID    []byte
			lastSeen int64
		)
		if err := rows.Scan(&rawID, &c.Name, &c.PublicKey, &lastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan client: %v", err)
		}
		copy(c.ID[:], rawID)
		c.LastSeen = time.Unix(lastSeen, 0)
		clients = append(clients, c)
	}

	return clients, rows.Err()
}

// TouchLastSeen updates a client's last-seen timestamp. Touching an
// unknown ID updates nothing and is not an error.
func (s *Store) TouchLastSeen(id protocol.ClientID) error {
	query := `UPDATE clients SET last_seen = ? WHERE id = ?`

	if _, err := s.db.Exec(query, time.Now().Unix(), id[:]); err != nil {
		return fmt.Errorf("failed to touch last seen: %v", err)
	}

	return nil
}

// CountClients returns the number of registered clients
func (s *Store) CountClients() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM clients`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count clients: %v", err)
	}
	return count, nil
}
