package server

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/courierhq/courier/pkg/metrics"
	"github.com/courierhq/courier/pkg/protocol"
	"github.com/courierhq/courier/pkg/storage"
)

// handlerFunc processes one decoded request. The returned callback, if
// any, runs only after the response has been fully written.
type handlerFunc func(req *protocol.Request) (*protocol.Response, func(), error)

// handleConnection serves exactly one request/response exchange, then
// closes the connection.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	defer s.untrack(conn)

	log := s.log.WithField("remote", conn.RemoteAddr().String())

	req, err := s.readFrame(conn)
	if err != nil {
		if isWireError(err) {
			// the stream is intact but the frame is not a request;
			// tell the peer the exchange failed
			s.metrics.RequestFailed(metrics.ErrorKindProtocol)
			s.writeError(conn, log)
			log.WithError(err).Warn("rejected malformed request")
		} else {
			s.metrics.RequestFailed(metrics.ErrorKindIO)
			log.WithError(err).Debug("connection ended before a full request arrived")
		}
		return
	}

	s.requests.Add(1)

	start := time.Now()
	resp, onDelivered, err := s.dispatch(req)
	s.metrics.ObserveRequestDuration(time.Since(start))

	log = log.WithFields(logrus.Fields{
		"code":   req.Header.Code,
		"client": req.Header.ClientID.Short(),
	})

	if err != nil {
		log.WithError(err).Warn("request failed")
		s.metrics.RequestFailed(errorKind(err))
		resp = protocol.NewErrorResponse()
		onDelivered = nil
	}

	if werr := s.writeResponse(conn, resp); werr != nil {
		// delivery unconfirmed, so onDelivered must not run
		log.WithError(werr).Warn("failed to write response")
		s.metrics.RequestFailed(metrics.ErrorKindIO)
	} else {
		s.metrics.ResponseSent(resp.Header.Code)
		if onDelivered != nil {
			onDelivered()
		}
		log.WithField("response", resp.Header.Code).Info("request served")
	}

	// LastSeen is touched for every parsed header, whether or not the
	// handler succeeded and whether or not the ID is registered
	if terr := s.store.TouchLastSeen(req.Header.ClientID); terr != nil {
		log.WithError(terr).Warn("failed to touch last seen")
	}
}

// dispatch routes a request to its handler. Handler panics surface as
// ordinary errors.
func (s *Server) dispatch(req *protocol.Request) (resp *protocol.Response, onDelivered func(), err error) {
	defer func() {
		if r := recover(); r != nil {
			resp, onDelivered = nil, nil
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	s.metrics.RequestReceived(req.Header.Code)

	handler, ok := s.handlers[req.Header.Code]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnknownCode, req.Header.Code)
	}

	return handler(req)
}

// readFrame assembles one complete request from the connection. Reads
// happen in block-sized chunks; the first chunk must already contain a
// decodable header. Bytes past the declared payload are discarded.
func (s *Server) readFrame(conn net.Conn) (*protocol.Request, error) {
	chunk := make([]byte, protocol.BlockSize)

	n, err := s.readChunk(conn, chunk)
	if err != nil {
		return nil, err
	}

	buf := append([]byte(nil), chunk[:n]...)

	var header protocol.RequestHeader
	if err := header.Decode(buf); err != nil {
		return nil, err
	}
	if err := header.Validate(); err != nil {
		return nil, err
	}

	expected := protocol.RequestHeaderSize + int(header.PayloadSize)
	for len(buf) < expected {
		n, err := s.readChunk(conn, chunk)
		if err != nil {
			return nil, err
		}
		buf = append(buf, chunk[:n]...)
	}

	return &protocol.Request{
		Header:  header,
		Payload: buf[protocol.RequestHeaderSize:expected],
	}, nil
}

// readChunk performs one bounded read under the configured deadline
func (s *Server) readChunk(conn net.Conn, chunk []byte) (int, error) {
	if s.cfg.IOTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.IOTimeout)); err != nil {
			return 0, err
		}
	}
	return conn.Read(chunk)
}

// writeResponse writes a response frame in zero-padded transport blocks
func (s *Server) writeResponse(conn net.Conn, resp *protocol.Response) error {
	if s.cfg.IOTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.IOTimeout)); err != nil {
			return err
		}
	}
	return protocol.WriteBlocks(conn, resp.EncodeFrame())
}

// writeError sends the generic error response, best effort
func (s *Server) writeError(conn net.Conn, log *logrus.Entry) {
	if err := s.writeResponse(conn, protocol.NewErrorResponse()); err != nil {
		log.WithError(err).Debug("failed to write error response")
		return
	}
	s.metrics.ResponseSent(protocol.CodeError)
}

// isWireError reports whether err means the peer sent bytes that do not
// form a request, as opposed to the stream itself failing
func isWireError(err error) bool {
	return errors.Is(err, protocol.ErrShortBuffer) || errors.Is(err, protocol.ErrPayloadTooLarge)
}

// errorKind labels a dispatch error with the layer that produced it
func errorKind(err error) string {
	switch {
	case errors.Is(err, storage.ErrNameTaken),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrBadRecord):
		return metrics.ErrorKindStorage
	default:
		return metrics.ErrorKindHandler
	}
}
