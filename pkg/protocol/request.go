package protocol

import (
	"encoding/binary"
)

// Request pairs a header with its raw payload
type Request struct {
	Header  RequestHeader
	Payload []byte
}

// NewRequest builds a request frame for the given code
func NewRequest(clientID ClientID, code uint16, payload []byte) *Request {
	return &Request{
		Header: RequestHeader{
			ClientID:    clientID,
			Version:     ServerVersion,
			Code:        code,
			PayloadSize: uint32(len(payload)),
		},
		Payload: payload,
	}
}

// EncodeFrame encodes header and payload as one unpadded frame
func (r *Request) EncodeFrame() []byte {
	buf := make([]byte, RequestHeaderSize+len(r.Payload))
	copy(buf, r.Header.Encode())
	copy(buf[RequestHeaderSize:], r.Payload)
	return buf
}

// ===== REGISTER (600) =====

// RegisterRequest asks the server to create a new client record
type RegisterRequest struct {
	Name      string              // Alphanumeric, at most 254 bytes
	PublicKey [PublicKeySize]byte // Opaque key bytes, stored verbatim
}

// RegisterPayloadSize is the fixed register payload size
const RegisterPayloadSize = NameFieldSize + PublicKeySize

// Encode encodes the register payload to bytes
func (r *RegisterRequest) Encode() []byte {
	buf := make([]byte, RegisterPayloadSize)

	putName(buf[0:NameFieldSize], r.Name)
	copy(buf[NameFieldSize:], r.PublicKey[:])

	return buf
}

// Decode decodes the register payload from bytes
func (r *RegisterRequest) Decode(buf []byte) error {
	if len(buf) < RegisterPayloadSize {
		return ErrShortBuffer
	}

	r.Name = trimName(buf[0:NameFieldSize])
	copy(r.PublicKey[:], buf[NameFieldSize:RegisterPayloadSize])

	return nil
}

// ===== GET PUBLIC KEY (602) =====

// PublicKeyRequest asks for another client's stored public key
type PublicKeyRequest struct {
	ClientID ClientID // Whose key to fetch
}

// Encode encodes the public key request payload to bytes
func (r *PublicKeyRequest) Encode() []byte {
	buf := make([]byte, ClientIDSize)
	copy(buf, r.ClientID[:])
	return buf
}

// Decode decodes the public key request payload from bytes
func (r *PublicKeyRequest) Decode(buf []byte) error {
	if len(buf) < ClientIDSize {
		return ErrShortBuffer
	}
	copy(r.ClientID[:], buf[0:ClientIDSize])
	return nil
}

// ===== SEND MESSAGE (603) =====

// SendMessageRequest deposits a message for later delivery. Content is
// opaque to the server and may be empty.
type SendMessageRequest struct {
	Recipient   ClientID
	MessageType uint8
	Content     []byte
}

// Encode encodes the send payload to bytes
func (r *SendMessageRequest) Encode() []byte {
	buf := make([]byte, SendPrefixSize+len(r.Content))
	offset := 0

	copy(buf[offset:], r.Recipient[:])
	offset += ClientIDSize

	buf[offset] = r.MessageType
	offset++

	binary.LittleEndian.PutUint32(buf[offset:], uint32(len(r.Content)))
	offset += 4

	copy(buf[offset:], r.Content)

	return buf
}

// Decode decodes the send payload from bytes. Bytes past the declared
// content size are ignored.
func (r *SendMessageRequest) Decode(buf []byte) error {
	if len(buf) < SendPrefixSize {
		return ErrShortBuffer
	}

	offset := 0

	copy(r.Recipient[:], buf[offset:offset+ClientIDSize])
	offset += ClientIDSize

	r.MessageType = buf[offset]
	offset++

	contentSize := binary.LittleEndian.Uint32(buf[offset:])
	offset += 4

	if contentSize > MaxPayloadSize {
		return ErrPayloadTooLarge
	}
	if len(buf) < offset+int(contentSize) {
		return ErrShortBuffer
	}

	r.Content = make([]byte, contentSize)
	copy(r.Content, buf[offset:offset+int(contentSize)])

	return nil
}
