package protocol

import (
	"encoding/binary"
)

// Response pairs a header with its raw payload
type Response struct {
	Header  ResponseHeader
	Payload []byte
}

// NewResponse builds a response frame for the given code
func NewResponse(code uint16, payload []byte) *Response {
	return &Response{
		Header: ResponseHeader{
			Version:     ServerVersion,
			Code:        code,
			PayloadSize: uint32(len(payload)),
		},
		Payload: payload,
	}
}

// NewErrorResponse builds the generic error response. Its payload is
// always empty; the wire never carries a failure reason.
func NewErrorResponse() *Response {
	return NewResponse(CodeError, nil)
}

// EncodeFrame encodes header and payload as one unpadded frame
func (r *Response) EncodeFrame() []byte {
	buf := make([]byte, ResponseHeaderSize+len(r.Payload))
	copy(buf, r.Header.Encode())
	copy(buf[ResponseHeaderSize:], r.Payload)
	return buf
}

// ===== REGISTERED (2100) =====

// RegisteredResponse carries the freshly minted client ID
type RegisteredResponse struct {
	ClientID ClientID
}

// Encode encodes the payload to bytes
func (r *RegisteredResponse) Encode() []byte {
	buf := make([]byte, ClientIDSize)
	copy(buf, r.ClientID[:])
	return buf
}

// Decode decodes the payload from bytes
func (r *RegisteredResponse) Decode(buf []byte) error {
	if len(buf) < ClientIDSize {
		return ErrShortBuffer
	}
	copy(r.ClientID[:], buf[0:ClientIDSize])
	return nil
}

// ===== USER LIST (2101) =====

// UserEntry is one client in a user list
type UserEntry struct {
	ID   ClientID
	Name string
}

// UserListResponse lists every registered client except the requester.
// An empty list encodes to an empty payload.
type UserListResponse struct {
	Users []UserEntry
}

// Encode encodes the payload to bytes
func (r *UserListResponse) Encode() []byte {
	buf := make([]byte, len(r.Users)*UserEntrySize)
	offset := 0

	for _, u := range r.Users {
		copy(buf[offset:], u.ID[:])
		offset += ClientIDSize

		putName(buf[offset:offset+NameFieldSize], u.Name)
		offset += NameFieldSize
	}

	return buf
}

// Decode decodes the payload from bytes
func (r *UserListResponse) Decode(buf []byte) error {
	if len(buf)%UserEntrySize != 0 {
		return ErrShortBuffer
	}

	count := len(buf) / UserEntrySize
	r.Users = make([]UserEntry, 0, count)
	offset := 0

	for i := 0; i < count; i++ {
		var u UserEntry
		copy(u.ID[:], buf[offset:offset+ClientIDSize])
		offset += ClientIDSize

		u.Name = trimName(buf[offset : offset+NameFieldSize])
		offset += NameFieldSize

		r.Users = append(r.Users, u)
	}

	return nil
}

// ===== PUBLIC KEY (2102) =====

// PublicKeyResponse carries a client's stored public key
type PublicKeyResponse struct {
	ClientID  ClientID
	PublicKey [PublicKeySize]byte
}

// Encode encodes the payload to bytes
func (r *PublicKeyResponse) Encode() []byte {
	buf := make([]byte, ClientIDSize+PublicKeySize)
	copy(buf[0:ClientIDSize], r.ClientID[:])
	copy(buf[ClientIDSize:], r.PublicKey[:])
	return buf
}

// Decode decodes the payload from bytes
func (r *PublicKeyResponse) Decode(buf []byte) error {
	if len(buf) < ClientIDSize+PublicKeySize {
		return ErrShortBuffer
	}
	copy(r.ClientID[:], buf[0:ClientIDSize])
	copy(r.PublicKey[:], buf[ClientIDSize:ClientIDSize+PublicKeySize])
	return nil
}

// ===== MESSAGE QUEUED (2103) =====

// MessageQueuedResponse acknowledges a stored message
type MessageQueuedResponse struct {
	Recipient ClientID
	MessageID uint32
}

// Encode encodes the payload to bytes
func (r *MessageQueuedResponse) Encode() []byte {
	buf := make([]byte, ClientIDSize+4)
	copy(buf[0:ClientIDSize], r.Recipient[:])
	binary.LittleEndian.PutUint32(buf[ClientIDSize:], r.MessageID)
	return buf
}

// Decode decodes the payload from bytes
func (r *MessageQueuedResponse) Decode(buf []byte) error {
	if len(buf) < ClientIDSize+4 {
		return ErrShortBuffer
	}
	copy(r.Recipient[:], buf[0:ClientIDSize])
	r.MessageID = binary.LittleEndian.Uint32(buf[ClientIDSize:])
	return nil
}

// ===== PENDING MESSAGES (2104) =====

// PendingMessage is one stored message on the wire. The sender ID leads
// the entry, then the server-assigned message ID.
type PendingMessage struct {
	Sender      ClientID
	MessageID   uint32
	MessageType uint8
	Content     []byte
}

// EncodedSize returns the wire size of this entry
func (m *PendingMessage) EncodedSize() int {
	return PendingEntrySize + len(m.Content)
}

// Encode encodes one entry to bytes
func (m *PendingMessage) Encode() []byte {
	buf := make([]byte, m.EncodedSize())
	offset := 0

	copy(buf[offset:], m.Sender[:])
	offset += ClientIDSize

	binary.LittleEndian.PutUint32(buf[offset:], m.MessageID)
	offset += 4

	buf[offset] = m.MessageType
	offset++

	binary.LittleEndian.PutUint32(buf[offset:], uint32(len(m.Content)))
	offset += 4

	copy(buf[offset:], m.Content)

	return buf
}

// PendingMessagesResponse bundles every pending message for the
// requester in insertion order. An empty mailbox encodes to an empty
// payload.
type PendingMessagesResponse struct {
	Messages []PendingMessage
}

// Encode encodes the payload to bytes
func (r *PendingMessagesResponse) Encode() []byte {
	size := 0
	for i := range r.Messages {
		size += r.Messages[i].EncodedSize()
	}

	buf := make([]byte, size)
	offset := 0

	for i := range r.Messages {
		entry := r.Messages[i].Encode()
		copy(buf[offset:], entry)
		offset += len(entry)
	}

	return buf
}

// Decode decodes the payload from bytes
func (r *PendingMessagesResponse) Decode(buf []byte) error {
	r.Messages = nil
	offset := 0

	for offset < len(buf) {
		if len(buf)-offset < PendingEntrySize {
			return ErrShortBuffer
		}

		var m PendingMessage

		copy(m.Sender[:], buf[offset:offset+ClientIDSize])
		offset += ClientIDSize

		m.MessageID = binary.LittleEndian.Uint32(buf[offset:])
		offset += 4

		m.MessageType = buf[offset]
		offset++

		contentSize := binary.LittleEndian.Uint32(buf[offset:])
		offset += 4

		if contentSize > MaxPayloadSize {
			return ErrPayloadTooLarge
		}
		if len(buf)-offset < int(contentSize) {
			return ErrShortBuffer
		}

		m.Content = make([]byte, contentSize)
		copy(m.Content, buf[offset:offset+int(contentSize)])
		offset += int(contentSize)

		r.Messages = append(r.Messages, m)
	}

	return nil
}
