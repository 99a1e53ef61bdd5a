// Package client speaks the courier wire protocol from the peer side.
// Every call dials the server, performs exactly one request/response
// exchange over block-padded frames, and closes the connection. The
// client never touches message content; payload bytes pass through
// opaque.
package client

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/courierhq/courier/pkg/protocol"
)

// ===== ERRORS =====

var (
	// ErrServerError means the server answered with its generic error
	// response; the protocol carries no reason
	ErrServerError = errors.New("server replied with an error")

	// ErrUnexpectedResponse means the response code did not match the
	// request
	ErrUnexpectedResponse = errors.New("unexpected response code")
)

// ===== CONFIGURATION =====

// Config holds client connection settings
type Config struct {
	Addr        string
	DialTimeout time.Duration
	IOTimeout   time.Duration
}

// DefaultConfig returns client defaults for the given server address
func DefaultConfig(addr string) *Config {
	return &Config{
		Addr:        addr,
		DialTimeout: 10 * time.Second,
		IOTimeout:   30 * time.Second,
	}
}

// ===== CLIENT =====

// Client performs courier exchanges against one server. It is not
// safe for concurrent use.
type Client struct {
	cfg *Config
	id  protocol.ClientID
}

// New creates a client with default settings
func New(addr string) *Client {
	return NewWithConfig(DefaultConfig(addr))
}

// NewWithConfig creates a client with explicit settings
func NewWithConfig(cfg *Config) *Client {
	return &Client{cfg: cfg}
}

// SetID sets the identity carried in request headers, for accounts
// registered in an earlier session
func (c *Client) SetID(id protocol.ClientID) {
	c.id = id
}

// ID returns the identity carried in request headers
func (c *Client) ID() protocol.ClientID {
	return c.id
}

// ===== OPERATIONS =====

// Register creates an account under the given name. The minted ID is
// remembered on the client and returned.
func (c *Client) Register(name string, publicKey [protocol.PublicKeySize]byte) (protocol.ClientID, error) {
	if err := protocol.ValidateName(name); err != nil {
		return protocol.ClientID{}, err
	}

	payload := (&protocol.RegisterRequest{Name: name, PublicKey: publicKey}).Encode()
	resp, err := c.exchange(protocol.CodeRegister, payload)
	if err != nil {
		return protocol.ClientID{}, err
	}
	if resp.Header.Code != protocol.CodeRegistered {
		return protocol.ClientID{}, unexpectedCode(resp)
	}

	var reg protocol.RegisteredResponse
	if err := reg.Decode(resp.Payload); err != nil {
		return protocol.ClientID{}, err
	}

	c.id = reg.ClientID
	return reg.ClientID, nil
}

// ListUsers returns every registered client except this one
func (c *Client) ListUsers() ([]protocol.UserEntry, error) {
	resp, err := c.exchange(protocol.CodeListUsers, nil)
	if err != nil {
		return nil, err
	}
	if resp.Header.Code != protocol.CodeUserList {
		return nil, unexpectedCode(resp)
	}

	var list protocol.UserListResponse
	if err := list.Decode(resp.Payload); err != nil {
		return nil, err
	}
	return list.Users, nil
}

// GetPublicKey fetches the registered public key of another client
func (c *Client) GetPublicKey(target protocol.ClientID) ([protocol.PublicKeySize]byte, error) {
	var key [protocol.PublicKeySize]byte

	payload := (&protocol.PublicKeyRequest{ClientID: target}).Encode()
	resp, err := c.exchange(protocol.CodeGetPublicKey, payload)
	if err != nil {
		return key, err
	}
	if resp.Header.Code != protocol.CodePublicKey {
		return key, unexpectedCode(resp)
	}

	var pk protocol.PublicKeyResponse
	if err := pk.Decode(resp.Payload); err != nil {
		return key, err
	}
	return pk.PublicKey, nil
}

// SendMessage deposits a message for another client and returns the
// server-assigned message ID
func (c *Client) SendMessage(to protocol.ClientID, msgType uint8, content []byte) (uint32, error) {
	payload := (&protocol.SendMessageRequest{
		Recipient:   to,
		MessageType: msgType,
		Content:     content,
	}).Encode()

	resp, err := c.exchange(protocol.CodeSendMessage, payload)
	if err != nil {
		return 0, err
	}
	if resp.Header.Code != protocol.CodeMessageQueued {
		return 0, unexpectedCode(resp)
	}

	var ack protocol.MessageQueuedResponse
	if err := ack.Decode(resp.Payload); err != nil {
		return 0, err
	}
	return ack.MessageID, nil
}

// RequestKey asks another client for their symmetric key
func (c *Client) RequestKey(to protocol.ClientID) (uint32, error) {
	return c.SendMessage(to, protocol.MessageTypeKeyRequest, nil)
}

// ShareKey sends an encrypted symmetric key to another client
func (c *Client) ShareKey(to protocol.ClientID, key []byte) (uint32, error) {
	return c.SendMessage(to, protocol.MessageTypeKeyShare, key)
}

// SendText sends an encrypted text message to another client
func (c *Client) SendText(to protocol.ClientID, text []byte) (uint32, error) {
	return c.SendMessage(to, protocol.MessageTypeText, text)
}

// SendFile sends encrypted file contents to another client
func (c *Client) SendFile(to protocol.ClientID, data []byte) (uint32, error) {
	return c.SendMessage(to, protocol.MessageTypeFile, data)
}

// FetchMessages drains this client's mailbox. Receiving the full
// response is what acknowledges delivery to the server.
func (c *Client) FetchMessages() ([]protocol.PendingMessage, error) {
	resp, err := c.exchange(protocol.CodeFetchMessages, nil)
	if err != nil {
		return nil, err
	}
	if resp.Header.Code != protocol.CodePendingMessages {
		return nil, unexpectedCode(resp)
	}

	var bundle protocol.PendingMessagesResponse
	if err := bundle.Decode(resp.Payload); err != nil {
		return nil, err
	}
	return bundle.Messages, nil
}

// ===== TRANSPORT =====

// exchange dials, sends one padded request frame, and reads back the
// response frame
func (c *Client) exchange(code uint16, payload []byte) (*protocol.Response, error) {
	conn, err := net.DialTimeout("tcp", c.cfg.Addr, c.cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.cfg.Addr, err)
	}
	defer conn.Close()

	if c.cfg.IOTimeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(c.cfg.IOTimeout)); err != nil {
			return nil, err
		}
	}

	req := protocol.NewRequest(c.id, code, payload)
	if err := protocol.WriteBlocks(conn, req.EncodeFrame()); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	resp, err := readResponse(conn)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.Header.Code == protocol.CodeError {
		return nil, ErrServerError
	}
	return resp, nil
}

// readResponse assembles one response frame from the padded stream,
// reading block-sized chunks until header plus payload have arrived.
// Trailing pad bytes are discarded.
func readResponse(conn net.Conn) (*protocol.Response, error) {
	chunk := make([]byte, protocol.BlockSize)

	n, err := conn.Read(chunk)
	if err != nil {
		return nil, err
	}
	buf := append([]byte(nil), chunk[:n]...)

	var header protocol.ResponseHeader
	if err := header.Decode(buf); err != nil {
		return nil, err
	}
	if err := header.Validate(); err != nil {
		return nil, err
	}

	expected := protocol.ResponseHeaderSize + int(header.PayloadSize)
	for len(buf) < expected {
		n, err := conn.Read(chunk)
		if err != nil {
			return nil, err
		}
		buf = append(buf, chunk[:n]...)
	}

	return &protocol.Response{
		Header:  header,
		Payload: buf[protocol.ResponseHeaderSize:expected],
	}, nil
}

func unexpectedCode(resp *protocol.Response) error {
	return fmt.Errorf("%w: %d", ErrUnexpectedResponse, resp.Header.Code)
}
