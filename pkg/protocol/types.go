package protocol

import (
	"encoding/hex"
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Protocol constants
const (
	// Server protocol version, stamped into every response
	ServerVersion uint8 = 2

	// Request header size: ClientID(16) + Version(1) + Code(2) + PayloadSize(4)
	RequestHeaderSize = 23

	// Response header size: Version(1) + Code(2) + PayloadSize(4)
	ResponseHeaderSize = 7

	// Block size for transport writes; every frame is padded to a
	// multiple of this and readers discard the trailing pad
	BlockSize = 1024

	// Upper bound on any declared payload or content size
	MaxPayloadSize = 16 << 20
)

// Field sizes
const (
	ClientIDSize  = 16
	PublicKeySize = 160

	// Name field is 255 bytes on the wire, null-terminated; the longest
	// storable name is therefore 254 bytes
	NameFieldSize = 255
	MaxNameLen    = NameFieldSize - 1

	// Wire size of one user-list entry: ClientID + Name field
	UserEntrySize = ClientIDSize + NameFieldSize

	// Wire size of one pending-message entry before its content:
	// SenderID(16) + MessageID(4) + Type(1) + ContentSize(4)
	PendingEntrySize = ClientIDSize + 4 + 1 + 4

	// Fixed prefix of a send-message payload before its content:
	// RecipientID(16) + Type(1) + ContentSize(4)
	SendPrefixSize = ClientIDSize + 1 + 4
)

// Request codes
const (
	CodeRegister      uint16 = 600
	CodeListUsers     uint16 = 601
	CodeGetPublicKey  uint16 = 602
	CodeSendMessage   uint16 = 603
	CodeFetchMessages uint16 = 604
)

// Response codes
const (
	CodeRegistered      uint16 = 2100
	CodeUserList        uint16 = 2101
	CodePublicKey       uint16 = 2102
	CodeMessageQueued   uint16 = 2103
	CodePendingMessages uint16 = 2104
	CodeError           uint16 = 9000
)

// Message types carried in SendMessage payloads. The server never
// interprets them; they are defined for clients.
const (
	MessageTypeKeyRequest uint8 = 1 // request the peer's symmetric key
	MessageTypeKeyShare   uint8 = 2 // deliver a symmetric key
	MessageTypeText       uint8 = 3 // encrypted text
	MessageTypeFile       uint8 = 4 // encrypted file
)

// ClientID is the opaque 16-byte identifier the server mints at
// registration. Clients never choose their own.
type ClientID [ClientIDSize]byte

// NewClientID mints a random client identifier
func NewClientID() ClientID {
	return ClientID(uuid.New())
}

// ParseClientID parses a 32-character hex string into a ClientID
func ParseClientID(s string) (ClientID, error) {
	var id ClientID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid client ID %q: %w", s, err)
	}
	if len(raw) != ClientIDSize {
		return id, fmt.Errorf("invalid client ID length %d, want %d", len(raw), ClientIDSize)
	}
	copy(id[:], raw)
	return id, nil
}

// String returns the ID as lowercase hex
func (id ClientID) String() string {
	return hex.EncodeToString(id[:])
}

// Short returns a short hex prefix for log fields
func (id ClientID) Short() string {
	return hex.EncodeToString(id[:4])
}

// IsZero checks if the ID is all zeroes
func (id ClientID) IsZero() bool {
	return id == ClientID{}
}

// ValidateName checks a registration name: non-empty, at most 254 bytes,
// valid UTF-8, letters and digits only.
func ValidateName(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	if len(name) > MaxNameLen {
		return ErrNameTooLong
	}
	if !utf8.ValidString(name) {
		return ErrInvalidName
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return ErrInvalidName
		}
	}
	return nil
}

// putName writes name into a 255-byte wire field, zero-padded. Names
// longer than the field are truncated.
func putName(dst []byte, name string) {
	n := copy(dst[:NameFieldSize-1], name)
	for i := n; i < NameFieldSize; i++ {
		dst[i] = 0
	}
}

// trimName reads a 255-byte wire field, cutting at the first NUL
func trimName(field []byte) string {
	for i, b := range field {
		if b == 0 {
			return string(field[:i])
		}
	}
	return string(field)
}
