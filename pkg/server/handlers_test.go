package server

import (
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courierhq/courier/pkg/protocol"
	"github.com/courierhq/courier/pkg/storage"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestServer(t *testing.T) (*Server, *storage.Store) {
	t.Helper()

	store, err := storage.Open(filepath.Join(t.TempDir(), "courier.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	s := New(DefaultConfig(), store)
	s.SetLogger(quietLogger())

	return s, store
}

// hookStore wraps a Store with overridable methods and a record of
// last-seen touches
type hookStore struct {
	Store

	onClientExists func(protocol.ClientID) (bool, error)

	mu      sync.Mutex
	touched []protocol.ClientID
}

func (h *hookStore) ClientExists(id protocol.ClientID) (bool, error) {
	if h.onClientExists != nil {
		return h.onClientExists(id)
	}
	return h.Store.ClientExists(id)
}

func (h *hookStore) TouchLastSeen(id protocol.ClientID) error {
	h.mu.Lock()
	h.touched = append(h.touched, id)
	h.mu.Unlock()
	return h.Store.TouchLastSeen(id)
}

func (h *hookStore) touches() []protocol.ClientID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]protocol.ClientID(nil), h.touched...)
}

func registerRequest(name string, seed byte) *protocol.Request {
	reg := &protocol.RegisterRequest{Name: name}
	for i := range reg.PublicKey {
		reg.PublicKey[i] = seed + byte(i)
	}
	return protocol.NewRequest(protocol.ClientID{}, protocol.CodeRegister, reg.Encode())
}

func mustRegister(t *testing.T, s *Server, name string, seed byte) protocol.ClientID {
	t.Helper()

	resp, onDelivered, err := s.dispatch(registerRequest(name, seed))
	require.NoError(t, err)
	require.Nil(t, onDelivered)
	require.Equal(t, protocol.CodeRegistered, resp.Header.Code)

	var reg protocol.RegisteredResponse
	require.NoError(t, reg.Decode(resp.Payload))
	return reg.ClientID
}

func TestDispatchRegister(t *testing.T) {
	s, _ := newTestServer(t)

	id := mustRegister(t, s, "alice", 1)
	assert.False(t, id.IsZero())
}

func TestDispatchRegisterDuplicateName(t *testing.T) {
	s, store := newTestServer(t)

	mustRegister(t, s, "alice", 1)

	_, _, err := s.dispatch(registerRequest("alice", 2))
	assert.ErrorIs(t, err, storage.ErrNameTaken)

	count, err := store.CountClients()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDispatchRegisterInvalidName(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name     string
		username string
	}{
		{name: "empty", username: ""},
		{name: "space", username: "alice smith"},
		{name: "punctuation", username: "alice.smith"},
		{name: "too long", username: strings.Repeat("a", protocol.MaxNameLen+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.dispatch(registerRequest(tt.username, 1))
			assert.Error(t, err)
		})
	}
}

func TestDispatchRegisterShortPayload(t *testing.T) {
	s, _ := newTestServer(t)

	req := protocol.NewRequest(protocol.ClientID{}, protocol.CodeRegister, make([]byte, 10))
	_, _, err := s.dispatch(req)
	assert.ErrorIs(t, err, protocol.ErrShortBuffer)
}

func TestDispatchListUsers(t *testing.T) {
	s, _ := newTestServer(t)

	alice := mustRegister(t, s, "alice", 1)
	bob := mustRegister(t, s, "bob", 2)

	resp, _, err := s.dispatch(protocol.NewRequest(alice, protocol.CodeListUsers, nil))
	require.NoError(t, err)
	require.Equal(t, protocol.CodeUserList, resp.Header.Code)

	var list protocol.UserListResponse
	require.NoError(t, list.Decode(resp.Payload))

	require.Len(t, list.Users, 1)
	assert.Equal(t, bob, list.Users[0].ID)
	assert.Equal(t, "bob", list.Users[0].Name)
}

func TestDispatchListUsersAlone(t *testing.T) {
	s, _ := newTestServer(t)

	alice := mustRegister(t, s, "alice", 1)

	resp, _, err := s.dispatch(protocol.NewRequest(alice, protocol.CodeListUsers, nil))
	require.NoError(t, err)
	assert.Empty(t, resp.Payload)
}

func TestDispatchListUsersUnknownRequester(t *testing.T) {
	s, _ := newTestServer(t)

	_, _, err := s.dispatch(protocol.NewRequest(protocol.NewClientID(), protocol.CodeListUsers, nil))
	assert.ErrorIs(t, err, ErrUnknownClient)
}

func TestDispatchGetPublicKey(t *testing.T) {
	s, _ := newTestServer(t)

	alice := mustRegister(t, s, "alice", 1)
	bob := mustRegister(t, s, "bob", 2)

	payload := (&protocol.PublicKeyRequest{ClientID: bob}).Encode()
	resp, _, err := s.dispatch(protocol.NewRequest(alice, protocol.CodeGetPublicKey, payload))
	require.NoError(t, err)
	require.Equal(t, protocol.CodePublicKey, resp.Header.Code)

	var pk protocol.PublicKeyResponse
	require.NoError(t, pk.Decode(resp.Payload))

	assert.Equal(t, bob, pk.ClientID)
	assert.Equal(t, byte(2), pk.PublicKey[0])
}

func TestDispatchGetPublicKeyUnknownTarget(t *testing.T) {
	s, _ := newTestServer(t)

	alice := mustRegister(t, s, "alice", 1)

	payload := (&protocol.PublicKeyRequest{ClientID: protocol.NewClientID()}).Encode()
	_, _, err := s.dispatch(protocol.NewRequest(alice, protocol.CodeGetPublicKey, payload))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDispatchSendMessageUnknownRecipient(t *testing.T) {
	s, store := newTestServer(t)

	alice := mustRegister(t, s, "alice", 1)

	// unknown recipients are accepted; the message queues unread
	send := &protocol.SendMessageRequest{
		Recipient:   protocol.NewClientID(),
		MessageType: protocol.MessageTypeText,
		Content:     []byte("into the void"),
	}
	resp, _, err := s.dispatch(protocol.NewRequest(alice, protocol.CodeSendMessage, send.Encode()))
	require.NoError(t, err)
	require.Equal(t, protocol.CodeMessageQueued, resp.Header.Code)

	var ack protocol.MessageQueuedResponse
	require.NoError(t, ack.Decode(resp.Payload))
	assert.Equal(t, uint32(1), ack.MessageID)
	assert.Equal(t, send.Recipient, ack.Recipient)

	count, err := store.CountPending()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDispatchFetchMessagesUnknownRequester(t *testing.T) {
	s, _ := newTestServer(t)

	_, _, err := s.dispatch(protocol.NewRequest(protocol.NewClientID(), protocol.CodeFetchMessages, nil))
	assert.ErrorIs(t, err, ErrUnknownClient)
}

func TestDispatchFetchMessagesEmptyMailbox(t *testing.T) {
	s, _ := newTestServer(t)

	alice := mustRegister(t, s, "alice", 1)

	resp, onDelivered, err := s.dispatch(protocol.NewRequest(alice, protocol.CodeFetchMessages, nil))
	require.NoError(t, err)
	assert.Equal(t, protocol.CodePendingMessages, resp.Header.Code)
	assert.Empty(t, resp.Payload)
	assert.Nil(t, onDelivered)
}

func TestDispatchFetchMessagesDeletesAfterDelivery(t *testing.T) {
	s, store := newTestServer(t)

	alice := mustRegister(t, s, "alice", 1)
	bob := mustRegister(t, s, "bob", 2)

	send := &protocol.SendMessageRequest{
		Recipient:   bob,
		MessageType: protocol.MessageTypeText,
		Content:     []byte("hello bob"),
	}
	_, _, err := s.dispatch(protocol.NewRequest(alice, protocol.CodeSendMessage, send.Encode()))
	require.NoError(t, err)

	resp, onDelivered, err := s.dispatch(protocol.NewRequest(bob, protocol.CodeFetchMessages, nil))
	require.NoError(t, err)
	require.NotNil(t, onDelivered)

	var bundle protocol.PendingMessagesResponse
	require.NoError(t, bundle.Decode(resp.Payload))
	require.Len(t, bundle.Messages, 1)
	assert.Equal(t, alice, bundle.Messages[0].Sender)
	assert.Equal(t, []byte("hello bob"), bundle.Messages[0].Content)

	// rows survive until the delivery callback runs
	count, err := store.CountPending()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	onDelivered()

	count, err = store.CountPending()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDispatchUnknownCode(t *testing.T) {
	s, _ := newTestServer(t)

	_, _, err := s.dispatch(protocol.NewRequest(protocol.NewClientID(), 700, nil))
	assert.ErrorIs(t, err, ErrUnknownCode)
}

func TestDispatchRecoversHandlerPanic(t *testing.T) {
	s, store := newTestServer(t)

	hooked := &hookStore{Store: store}
	hooked.onClientExists = func(protocol.ClientID) (bool, error) {
		panic("storage exploded")
	}
	s.store = hooked

	_, _, err := s.dispatch(protocol.NewRequest(protocol.NewClientID(), protocol.CodeListUsers, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler panic")
}
