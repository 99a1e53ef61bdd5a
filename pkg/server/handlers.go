package server

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/courierhq/courier/pkg/protocol"
	"github.com/courierhq/courier/pkg/storage"
)

// handleRegister creates a new client record and replies with the
// minted ID. Names must be unused and alphanumeric; a race on the same
// name resolves inside the store's uniqueness constraint.
func (s *Server) handleRegister(req *protocol.Request) (*protocol.Response, func(), error) {
	var reg protocol.RegisterRequest
	if err := reg.Decode(req.Payload); err != nil {
		return nil, nil, fmt.Errorf("decode register payload: %w", err)
	}

	if err := protocol.ValidateName(reg.Name); err != nil {
		return nil, nil, fmt.Errorf("register: %w", err)
	}

	taken, err := s.store.UsernameExists(reg.Name)
	if err != nil {
		return nil, nil, err
	}
	if taken {
		return nil, nil, fmt.Errorf("register %q: %w", reg.Name, storage.ErrNameTaken)
	}

	id := protocol.NewClientID()
	if err := s.store.CreateClient(id, reg.Name, reg.PublicKey[:]); err != nil {
		return nil, nil, fmt.Errorf("register %q: %w", reg.Name, err)
	}

	s.log.WithFields(logrus.Fields{
		"name":   reg.Name,
		"client": id.Short(),
	}).Info("client registered")

	payload := (&protocol.RegisteredResponse{ClientID: id}).Encode()
	return protocol.NewResponse(protocol.CodeRegistered, payload), nil, nil
}

// handleListUsers replies with every registered client except the
// requester. An empty directory yields an empty payload, not an error.
func (s *Server) handleListUsers(req *protocol.Request) (*protocol.Response, func(), error) {
	requester := req.Header.ClientID

	exists, err := s.store.ClientExists(requester)
	if err != nil {
		return nil, nil, err
	}
	if !exists {
		return nil, nil, fmt.Errorf("list users: %w", ErrUnknownClient)
	}

	clients, err := s.store.ListClients(requester)
	if err != nil {
		return nil, nil, err
	}

	list := protocol.UserListResponse{Users: make([]protocol.UserEntry, 0, len(clients))}
	for _, c := range clients {
		list.Users = append(list.Users, protocol.UserEntry{ID: c.ID, Name: c.Name})
	}

	return protocol.NewResponse(protocol.CodeUserList, list.Encode()), nil, nil
}

// handleGetPublicKey replies with the stored key of the requested
// client. Unknown targets fail the request.
func (s *Server) handleGetPublicKey(req *protocol.Request) (*protocol.Response, func(), error) {
	var pkReq protocol.PublicKeyRequest
	if err := pkReq.Decode(req.Payload); err != nil {
		return nil, nil, fmt.Errorf("decode public key payload: %w", err)
	}

	key, err := s.store.GetPublicKey(pkReq.ClientID)
	if err != nil {
		return nil, nil, fmt.Errorf("public key for %s: %w", pkReq.ClientID.Short(), err)
	}

	resp := protocol.PublicKeyResponse{ClientID: pkReq.ClientID}
	copy(resp.PublicKey[:], key)

	return protocol.NewResponse(protocol.CodePublicKey, resp.Encode()), nil, nil
}

// handleSendMessage deposits a message in the mailbox and acknowledges
// with its assigned ID. The recipient is deliberately not checked
// against the directory; messages for unknown IDs queue up unread.
func (s *Server) handleSendMessage(req *protocol.Request) (*protocol.Response, func(), error) {
	var send protocol.SendMessageRequest
	if err := send.Decode(req.Payload); err != nil {
		return nil, nil, fmt.Errorf("decode send payload: %w", err)
	}

	id, err := s.store.AppendMessage(send.Recipient, req.Header.ClientID, send.MessageType, send.Content)
	if err != nil {
		return nil, nil, err
	}

	s.metrics.MessageStored()
	s.log.WithFields(logrus.Fields{
		"from":    req.Header.ClientID.Short(),
		"to":      send.Recipient.Short(),
		"message": id,
		"bytes":   len(send.Content),
	}).Info("message queued")

	resp := protocol.MessageQueuedResponse{Recipient: send.Recipient, MessageID: id}
	return protocol.NewResponse(protocol.CodeMessageQueued, resp.Encode()), nil, nil
}

// handleFetchMessages bundles every pending message for the requester.
// The bundled rows are deleted only after the response write succeeds,
// so an interrupted delivery is retried on the next poll.
func (s *Server) handleFetchMessages(req *protocol.Request) (*protocol.Response, func(), error) {
	requester := req.Header.ClientID

	exists, err := s.store.ClientExists(requester)
	if err != nil {
		return nil, nil, err
	}
	if !exists {
		return nil, nil, fmt.Errorf("fetch messages: %w", ErrUnknownClient)
	}

	pending, err := s.store.ListPending(requester)
	if err != nil {
		return nil, nil, err
	}

	bundle := protocol.PendingMessagesResponse{Messages: make([]protocol.PendingMessage, 0, len(pending))}
	for _, m := range pending {
		bundle.Messages = append(bundle.Messages, protocol.PendingMessage{
			Sender:      m.From,
			MessageID:   m.ID,
			MessageType: m.Type,
			Content:     m.Content,
		})
	}

	var onDelivered func()
	if len(pending) > 0 {
		onDelivered = func() {
			delivered := 0
			for _, m := range pending {
				if err := s.store.DeleteMessage(m.ID); err != nil {
					s.log.WithError(err).WithField("message", m.ID).Warn("failed to delete delivered message")
					continue
				}
				delivered++
			}

			s.metrics.MessagesDelivered(delivered)
			s.log.WithFields(logrus.Fields{
				"client":    requester.Short(),
				"delivered": delivered,
			}).Info("pending messages delivered")
		}
	}

	return protocol.NewResponse(protocol.CodePendingMessages, bundle.Encode()), onDelivered, nil
}
