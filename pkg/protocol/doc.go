// Package protocol implements the courier wire protocol.
//
// The protocol package defines the request and response structures, their
// binary encoding, and the transport block padding used between courier
// clients and the server. It performs no I/O beyond small stream helpers;
// connection handling lives in pkg/server and pkg/client.
//
// # Frame Layout
//
// Every client request starts with a 23-byte header:
//   - ClientID (16 bytes): requester identity claim, ignored for registration
//   - Version (1 byte): client protocol version, never validated by the server
//   - Code (2 bytes): request code
//   - PayloadSize (4 bytes): payload length in bytes
//
// Every server response starts with a 7-byte header:
//   - Version (1 byte): always 2
//   - Code (2 bytes): response code
//   - PayloadSize (4 bytes): payload length in bytes
//
// All multi-byte integers are little-endian.
//
// # Codes
//
// Requests:
//   - 600 Register: Name[255] + PublicKey[160]
//   - 601 ListUsers: empty payload
//   - 602 GetPublicKey: TargetID[16]
//   - 603 SendMessage: RecipientID[16] + Type[1] + ContentSize[4] + Content
//   - 604 FetchMessages: empty payload
//
// Responses:
//   - 2100 Registered: ClientID[16]
//   - 2101 UserList: repeated ClientID[16] + Name[255]
//   - 2102 PublicKey: ClientID[16] + PublicKey[160]
//   - 2103 MessageQueued: RecipientID[16] + MessageID[4]
//   - 2104 PendingMessages: repeated SenderID[16] + MessageID[4] + Type[1] + ContentSize[4] + Content
//   - 9000 Error: empty payload, no failure reason on the wire
//
// Name fields occupy 255 bytes, null-terminated and zero-padded; readers
// cut at the first NUL. The longest valid name is 254 bytes of UTF-8
// letters and digits.
//
// # Transport Padding
//
// Both endpoints write every frame as a sequence of 1024-byte blocks,
// zero-padding the final block. The pad is filler: it is not counted in
// PayloadSize and readers discard it. A connection carries exactly one
// request/response exchange, so trailing pad is never confused with a
// following frame.
//
// # Usage Example
//
//	req := &protocol.SendMessageRequest{
//	    Recipient:   peer,
//	    MessageType: protocol.MessageTypeText,
//	    Content:     ciphertext,
//	}
//	frame := protocol.NewRequest(self, protocol.CodeSendMessage, req.Encode())
//	protocol.WriteBlocks(conn, frame.EncodeFrame())
package protocol
