package storage

import (
	"fmt"

	"github.com/courierhq/courier/pkg/protocol"
)

// Message is one undelivered message row. The ID is assigned by the
// database and increases with insertion order.
type Message struct {
	ID      uint32
	To      protocol.ClientID
	From    protocol.ClientID
	Type    uint8
	Content []byte
}

// AppendMessage stores a message for later delivery and returns its
// assigned ID. The recipient is deliberately not checked against the
// directory; messages for unknown recipients simply accumulate.
func (s *Store) AppendMessage(to, from protocol.ClientID, msgType uint8, content []byte) (uint32, error) {
	if content == nil {
		content = []byte{}
	}

	query := `INSERT INTO messages (to_client, from_client, type, content) VALUES (?, ?, ?, ?)`

	result, err := s.db.Exec(query, to[:], from[:], msgType, content)
	if err != nil {
		return 0, fmt.Errorf("failed to append message: %v", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read message id: %v", err)
	}

	return uint32(id), nil
}

// ListPending returns every message waiting for a recipient in insertion
// order
func (s *Store) ListPending(to protocol.ClientID) ([]Message, error) {
	query := `
		SELECT id, to_client, from_client, type, content
		FROM messages
		WHERE to_client = ?
		ORDER BY id ASC
	`

	rows, err := s.db.Query(query, to[:])
	if err != nil {
		return nil, fmt.Errorf("failed to list pending messages: %v", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var (
			m       Message
			rawTo   []byte
			rawFrom []byte
		)
		if err := rows.Scan(&m.ID, &rawTo, &rawFrom, &m.Type, &m.Content); err != nil {
			return nil, fmt.Errorf("failed to scan message: %v", err)
		}
		copy(m.To[:], rawTo)
		copy(m.From[:], rawFrom)
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// DeleteMessage removes one delivered message. Deleting an ID that is
// already gone is not an error.
func (s *Store) DeleteMessage(id uint32) error {
	query := `DELETE FROM messages WHERE id = ?`

	if _, err := s.db.Exec(query, id); err != nil {
		return fmt.Errorf("failed to delete message: %v", err)
	}

	return nil
}

// CountPending returns the total number of undelivered messages
func (s *Store) CountPending() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count messages: %v", err)
	}
	return count, nil
}
