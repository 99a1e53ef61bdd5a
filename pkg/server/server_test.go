package server

import (
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courierhq/courier/pkg/protocol"
	"github.com/courierhq/courier/pkg/storage"
)

func startTestServer(t *testing.T, store Store) *Server {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.IOTimeout = 5 * time.Second

	s := New(cfg, store)
	s.SetLogger(quietLogger())
	require.NoError(t, s.Start())
	t.Cleanup(func() { s.Stop() })

	return s
}

// exchange performs one full request/response round trip on a fresh
// connection and asserts the block padding contract on the raw bytes.
func exchange(t *testing.T, addr string, req *protocol.Request) *protocol.Response {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, protocol.WriteBlocks(conn, req.EncodeFrame()))

	return readResponse(t, conn)
}

// readResponse drains the connection until the server closes it and
// decodes the response frame out of the padded stream.
func readResponse(t *testing.T, conn net.Conn) *protocol.Response {
	t.Helper()

	raw, err := io.ReadAll(conn)
	require.NoError(t, err)
	require.NotEmpty(t, raw, "server closed without responding")
	require.Zero(t, len(raw)%protocol.BlockSize, "response not padded to block size")

	var header protocol.ResponseHeader
	require.NoError(t, header.Decode(raw))
	assert.Equal(t, protocol.ServerVersion, header.Version)

	end := protocol.ResponseHeaderSize + int(header.PayloadSize)
	require.LessOrEqual(t, end, len(raw))

	return &protocol.Response{Header: header, Payload: raw[protocol.ResponseHeaderSize:end]}
}

func registerOverWire(t *testing.T, addr, name string, seed byte) protocol.ClientID {
	t.Helper()

	resp := exchange(t, addr, registerRequest(name, seed))
	require.Equal(t, protocol.CodeRegistered, resp.Header.Code)

	var reg protocol.RegisteredResponse
	require.NoError(t, reg.Decode(resp.Payload))
	return reg.ClientID
}

func TestServerEndToEnd(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "courier.db"))
	require.NoError(t, err)
	defer store.Close()

	s := startTestServer(t, store)
	addr := s.Addr().String()

	alice := registerOverWire(t, addr, "alice", 1)
	bob := registerOverWire(t, addr, "bob", 2)
	require.NotEqual(t, alice, bob)

	// duplicate names are refused with the generic error response
	resp := exchange(t, addr, registerRequest("alice", 3))
	assert.Equal(t, protocol.CodeError, resp.Header.Code)
	assert.Empty(t, resp.Payload)

	// alice discovers bob
	resp = exchange(t, addr, protocol.NewRequest(alice, protocol.CodeListUsers, nil))
	require.Equal(t, protocol.CodeUserList, resp.Header.Code)

	var list protocol.UserListResponse
	require.NoError(t, list.Decode(resp.Payload))
	require.Len(t, list.Users, 1)
	assert.Equal(t, "bob", list.Users[0].Name)

	// alice fetches bob's key
	payload := (&protocol.PublicKeyRequest{ClientID: bob}).Encode()
	resp = exchange(t, addr, protocol.NewRequest(alice, protocol.CodeGetPublicKey, payload))
	require.Equal(t, protocol.CodePublicKey, resp.Header.Code)

	// alice sends bob a message spanning several blocks
	content := make([]byte, 3000)
	for i := range content {
		content[i] = byte(i % 251)
	}
	send := &protocol.SendMessageRequest{
		Recipient:   bob,
		MessageType: protocol.MessageTypeText,
		Content:     content,
	}
	resp = exchange(t, addr, protocol.NewRequest(alice, protocol.CodeSendMessage, send.Encode()))
	require.Equal(t, protocol.CodeMessageQueued, resp.Header.Code)

	var ack protocol.MessageQueuedResponse
	require.NoError(t, ack.Decode(resp.Payload))
	assert.Equal(t, bob, ack.Recipient)
	assert.Equal(t, uint32(1), ack.MessageID)

	// bob drains his mailbox
	resp = exchange(t, addr, protocol.NewRequest(bob, protocol.CodeFetchMessages, nil))
	require.Equal(t, protocol.CodePendingMessages, resp.Header.Code)

	var bundle protocol.PendingMessagesResponse
	require.NoError(t, bundle.Decode(resp.Payload))
	require.Len(t, bundle.Messages, 1)
	assert.Equal(t, alice, bundle.Messages[0].Sender)
	assert.Equal(t, uint32(1), bundle.Messages[0].MessageID)
	assert.Equal(t, protocol.MessageTypeText, bundle.Messages[0].MessageType)
	assert.Equal(t, content, bundle.Messages[0].Content)

	// the fetch was acknowledged by the closed write, so a second
	// fetch finds nothing
	resp = exchange(t, addr, protocol.NewRequest(bob, protocol.CodeFetchMessages, nil))
	require.Equal(t, protocol.CodePendingMessages, resp.Header.Code)
	assert.Empty(t, resp.Payload)
}

func TestServerFragmentedRequest(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "courier.db"))
	require.NoError(t, err)
	defer store.Close()

	s := startTestServer(t, store)
	addr := s.Addr().String()

	alice := registerOverWire(t, addr, "alice", 1)
	bob := registerOverWire(t, addr, "bob", 2)

	for _, chunks := range []int{1, 5, 100} {
		content := make([]byte, 3000)
		for i := range content {
			content[i] = byte(chunks)
		}
		send := &protocol.SendMessageRequest{
			Recipient:   bob,
			MessageType: protocol.MessageTypeFile,
			Content:     content,
		}
		frame := protocol.NewRequest(alice, protocol.CodeSendMessage, send.Encode()).EncodeFrame()

		conn, err := net.Dial("tcp", addr)
		require.NoError(t, err)

		// header and fixed fields first, then the content dribbled
		// out in small writes
		head := protocol.RequestHeaderSize + protocol.SendPrefixSize
		_, err = conn.Write(frame[:head])
		require.NoError(t, err)

		rest := frame[head:]
		step := len(rest) / chunks
		if step == 0 {
			step = 1
		}
		for off := 0; off < len(rest); off += step {
			end := off + step
			if end > len(rest) {
				end = len(rest)
			}
			_, err = conn.Write(rest[off:end])
			require.NoError(t, err)
		}

		resp := readResponse(t, conn)
		conn.Close()
		assert.Equal(t, protocol.CodeMessageQueued, resp.Header.Code, "chunks=%d", chunks)
	}

	count, err := store.CountPending()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestServerMalformedHeader(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "courier.db"))
	require.NoError(t, err)
	defer store.Close()

	s := startTestServer(t, store)

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(make([]byte, 10))
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())

	resp := readResponse(t, conn)
	assert.Equal(t, protocol.CodeError, resp.Header.Code)
	assert.Empty(t, resp.Payload)
}

func TestServerOversizedPayloadDeclared(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "courier.db"))
	require.NoError(t, err)
	defer store.Close()

	s := startTestServer(t, store)

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	header := protocol.RequestHeader{
		ClientID:    protocol.NewClientID(),
		Version:     protocol.ServerVersion,
		Code:        protocol.CodeSendMessage,
		PayloadSize: protocol.MaxPayloadSize + 1,
	}
	require.NoError(t, protocol.WriteBlocks(conn, header.Encode()))

	resp := readResponse(t, conn)
	assert.Equal(t, protocol.CodeError, resp.Header.Code)
}

func TestServerIgnoresExcessPayloadBytes(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "courier.db"))
	require.NoError(t, err)
	defer store.Close()

	s := startTestServer(t, store)
	addr := s.Addr().String()

	alice := registerOverWire(t, addr, "alice", 1)

	send := &protocol.SendMessageRequest{
		Recipient:   protocol.NewClientID(),
		MessageType: protocol.MessageTypeText,
		Content:     []byte("exact"),
	}
	frame := protocol.NewRequest(alice, protocol.CodeSendMessage, send.Encode()).EncodeFrame()

	// fill the padding with garbage instead of zeros; the reader must
	// stop at the declared payload size
	block := make([]byte, protocol.BlockSize)
	for i := range block {
		block[i] = 0xFF
	}
	copy(block, frame)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(block)
	require.NoError(t, err)

	resp := readResponse(t, conn)
	require.Equal(t, protocol.CodeMessageQueued, resp.Header.Code)

	msgs, err := store.ListPending(send.Recipient)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("exact"), msgs[0].Content)
}

func TestServerUnknownCode(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "courier.db"))
	require.NoError(t, err)
	defer store.Close()

	s := startTestServer(t, store)

	resp := exchange(t, s.Addr().String(), protocol.NewRequest(protocol.NewClientID(), 700, nil))
	assert.Equal(t, protocol.CodeError, resp.Header.Code)
}

func TestServerTouchesLastSeenOnFailure(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "courier.db"))
	require.NoError(t, err)
	defer store.Close()

	hooked := &hookStore{Store: store}
	s := startTestServer(t, hooked)

	ghost := protocol.NewClientID()
	resp := exchange(t, s.Addr().String(), protocol.NewRequest(ghost, protocol.CodeListUsers, nil))
	assert.Equal(t, protocol.CodeError, resp.Header.Code)

	// even a failed request refreshes the client's last-seen stamp
	touched := hooked.touches()
	require.Len(t, touched, 1)
	assert.Equal(t, ghost, touched[0])
}

func TestServerSurvivesImmediateDisconnect(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "courier.db"))
	require.NoError(t, err)
	defer store.Close()

	s := startTestServer(t, store)
	addr := s.Addr().String()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	conn.Close()

	// the listener keeps serving after the aborted connection
	id := registerOverWire(t, addr, "alice", 1)
	assert.False(t, id.IsZero())
}

func TestServerStop(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "courier.db"))
	require.NoError(t, err)
	defer store.Close()

	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.IOTimeout = 5 * time.Second

	s := New(cfg, store)
	s.SetLogger(quietLogger())
	require.NoError(t, s.Start())
	addr := s.Addr().String()

	// an idle connection must not block shutdown
	idle, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer idle.Close()

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not drain within 5s")
	}

	_, err = net.Dial("tcp", addr)
	assert.Error(t, err)
}

func TestServerMessagesSurviveFailedDelivery(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "courier.db"))
	require.NoError(t, err)
	defer store.Close()

	s := New(DefaultConfig(), store)
	s.SetLogger(quietLogger())

	alice := mustRegister(t, s, "alice", 1)
	bob := mustRegister(t, s, "bob", 2)

	send := &protocol.SendMessageRequest{
		Recipient:   bob,
		MessageType: protocol.MessageTypeText,
		Content:     []byte("fragile"),
	}
	_, _, err = s.dispatch(protocol.NewRequest(alice, protocol.CodeSendMessage, send.Encode()))
	require.NoError(t, err)

	// the peer sends a fetch and hangs up without reading the
	// response, so the delivery write fails mid flight
	clientEnd, serverEnd := net.Pipe()

	go func() {
		frame := protocol.NewRequest(bob, protocol.CodeFetchMessages, nil).EncodeFrame()
		_ = protocol.WriteBlocks(clientEnd, frame)
		clientEnd.Close()
	}()

	s.track(serverEnd)
	s.wg.Add(1)
	s.handleConnection(serverEnd)

	// undelivered mail stays queued for the next fetch
	count, err := store.CountPending()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
