package protocol

import (
	"encoding/binary"
	"errors"
)

var (
	ErrShortBuffer     = errors.New("buffer too short")
	ErrPayloadTooLarge = errors.New("declared payload too large")
	ErrEmptyName       = errors.New("name is empty")
	ErrNameTooLong     = errors.New("name too long")
	ErrInvalidName     = errors.New("name must be alphanumeric")
)

// RequestHeader is the fixed 23-byte header every client request starts
// with. All integers are little-endian.
type RequestHeader struct {
	ClientID    ClientID // Requester identity claim, ignored for registration
	Version     uint8    // Client protocol version, never validated
	Code        uint16   // Request code
	PayloadSize uint32   // Payload bytes following the header
}

// Encode encodes the header to bytes
func (h *RequestHeader) Encode() []byte {
	buf := make([]byte, RequestHeaderSize)

	copy(buf[0:16], h.ClientID[:])
	buf[16] = h.Version
	binary.LittleEndian.PutUint16(buf[17:19], h.Code)
	binary.LittleEndian.PutUint32(buf[19:23], h.PayloadSize)

	return buf
}

// Decode decodes the header from bytes. Extra bytes past the header are
// ignored.
func (h *RequestHeader) Decode(buf []byte) error {
	if len(buf) < RequestHeaderSize {
		return ErrShortBuffer
	}

	copy(h.ClientID[:], buf[0:16])
	h.Version = buf[16]
	h.Code = binary.LittleEndian.Uint16(buf[17:19])
	h.PayloadSize = binary.LittleEndian.Uint32(buf[19:23])

	return nil
}

// Validate bounds the declared payload size. The version byte is
// deliberately not checked.
func (h *RequestHeader) Validate() error {
	if h.PayloadSize > MaxPayloadSize {
		return ErrPayloadTooLarge
	}
	return nil
}

// ResponseHeader is the fixed 7-byte header every server response starts
// with. All integers are little-endian.
type ResponseHeader struct {
	Version     uint8  // Always ServerVersion
	Code        uint16 // Response code
	PayloadSize uint32 // Payload bytes following the header
}

// Encode encodes the header to bytes
func (h *ResponseHeader) Encode() []byte {
	buf := make([]byte, ResponseHeaderSize)

	buf[0] = h.Version
	binary.LittleEndian.PutUint16(buf[1:3], h.Code)
	binary.LittleEndian.PutUint32(buf[3:7], h.PayloadSize)

	return buf
}

// Decode decodes the header from bytes. Extra bytes past the header are
// ignored.
func (h *ResponseHeader) Decode(buf []byte) error {
	if len(buf) < ResponseHeaderSize {
		return ErrShortBuffer
	}

	h.Version = buf[0]
	h.Code = binary.LittleEndian.Uint16(buf[1:3])
	h.PayloadSize = binary.LittleEndian.Uint32(buf[3:7])

	return nil
}

// Validate bounds the declared payload size
func (h *ResponseHeader) Validate() error {
	if h.PayloadSize > MaxPayloadSize {
		return ErrPayloadTooLarge
	}
	return nil
}
