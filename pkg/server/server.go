// Package server implements the courier TCP server: it accepts
// connections, reassembles request frames, dispatches them against the
// directory and mailbox, and writes block-padded responses.
package server

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/courierhq/courier/pkg/metrics"
	"github.com/courierhq/courier/pkg/protocol"
	"github.com/courierhq/courier/pkg/storage"
)

var (
	ErrUnknownClient = errors.New("unknown client")
	ErrUnknownCode   = errors.New("unknown request code")
	ErrNotRunning    = errors.New("server not running")
)

// Directory is the client registry consulted by the dispatcher
type Directory interface {
	ClientExists(id protocol.ClientID) (bool, error)
	UsernameExists(name string) (bool, error)
	CreateClient(id protocol.ClientID, name string, publicKey []byte) error
	GetPublicKey(id protocol.ClientID) ([]byte, error)
	ListClients(exclude protocol.ClientID) ([]storage.Client, error)
	TouchLastSeen(id protocol.ClientID) error
}

// Mailbox is the pending-message store consulted by the dispatcher
type Mailbox interface {
	AppendMessage(to, from protocol.ClientID, msgType uint8, content []byte) (uint32, error)
	ListPending(to protocol.ClientID) ([]storage.Message, error)
	DeleteMessage(id uint32) error
}

// Store combines the directory and mailbox sides of storage
type Store interface {
	Directory
	Mailbox
}

// Config holds the server's network settings
type Config struct {
	// Host to bind, empty for all interfaces
	Host string

	// Port to listen on
	Port int

	// IOTimeout bounds each read and write on a connection; zero
	// disables deadlines
	IOTimeout time.Duration

	// MaxConns caps concurrently served connections; zero means no cap
	MaxConns int
}

// DefaultConfig returns the default server configuration
func DefaultConfig() *Config {
	return &Config{
		Host:      "",
		Port:      1357,
		IOTimeout: 30 * time.Second,
		MaxConns:  0,
	}
}

// Addr returns the listen address in host:port form
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Server serves the courier protocol on one TCP listener, one goroutine
// per connection, one request/response exchange per connection.
type Server struct {
	cfg     *Config
	store   Store
	log     *logrus.Logger
	metrics *metrics.Metrics

	handlers map[uint16]handlerFunc

	listener net.Listener
	sem      chan struct{}

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup

	startTime time.Time
	requests  atomic.Uint64
}

// Stats is a point-in-time snapshot of server activity
type Stats struct {
	StartTime       time.Time `json:"start_time"`
	UptimeSeconds   int64     `json:"uptime_seconds"`
	OpenConnections int       `json:"open_connections"`
	RequestsServed  uint64    `json:"requests_served"`
}

// New creates a server around the given store. The config may be nil
// for defaults.
func New(cfg *Config, store Store) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Server{
		cfg:       cfg,
		store:     store,
		log:       logrus.StandardLogger(),
		conns:     make(map[net.Conn]struct{}),
		startTime: time.Now(),
	}

	if cfg.MaxConns > 0 {
		s.sem = make(chan struct{}, cfg.MaxConns)
	}

	s.handlers = map[uint16]handlerFunc{
		protocol.CodeRegister:      s.handleRegister,
		protocol.CodeListUsers:     s.handleListUsers,
		protocol.CodeGetPublicKey:  s.handleGetPublicKey,
		protocol.CodeSendMessage:   s.handleSendMessage,
		protocol.CodeFetchMessages: s.handleFetchMessages,
	}

	return s
}

// SetLogger replaces the default logger
func (s *Server) SetLogger(log *logrus.Logger) {
	if log != nil {
		s.log = log
	}
}

// AttachMetrics attaches Prometheus collectors
func (s *Server) AttachMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Start begins listening and accepting connections
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr(), err)
	}

	s.listener = listener
	s.startTime = time.Now()

	s.log.WithField("addr", listener.Addr().String()).Info("server listening")

	go s.acceptLoop()

	return nil
}

// Addr returns the bound listener address, useful when Port was 0
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener, interrupts live connections, and waits for
// in-flight exchanges to finish
func (s *Server) Stop() error {
	if s.listener == nil {
		return ErrNotRunning
	}

	err := s.listener.Close()

	// unblock reads so draining cannot hang on a silent peer
	s.mu.Lock()
	for conn := range s.conns {
		conn.SetDeadline(time.Now())
	}
	s.mu.Unlock()

	s.wg.Wait()

	s.log.Info("server stopped")
	return err
}

// Stats returns a snapshot of server activity
func (s *Server) Stats() Stats {
	s.mu.Lock()
	open := len(s.conns)
	s.mu.Unlock()

	return Stats{
		StartTime:       s.startTime,
		UptimeSeconds:   int64(time.Since(s.startTime).Seconds()),
		OpenConnections: open,
		RequestsServed:  s.requests.Load(),
	}
}

// acceptLoop accepts incoming connections
func (s *Server) acceptLoop() {
	for {
		if s.sem != nil {
			s.sem <- struct{}{}
		}

		conn, err := s.listener.Accept()
		if err != nil {
			if s.sem != nil {
				<-s.sem
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.WithError(err).Warn("accept error")
			return
		}

		s.track(conn)
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	s.metrics.ConnectionOpened()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.metrics.ConnectionClosed()

	if s.sem != nil {
		<-s.sem
	}
}
