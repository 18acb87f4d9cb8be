package engine

import (
	"errors"
	"net"
	"sync"
)

// TCPConfig configures a TCP Server: buffer sizing and the callback set
// that drives every Session's state machine.
type TCPConfig struct {
	ReadBufferSize int

	// OnConnect is called once a new Session's socket is established. Its
	// return value is consumed as the Session's first command.
	OnConnect func(session *TCPSession, err error) TCPCommand
	// OnReceive is called when a read completes (ok or not), with the
	// number of bytes placed into session's read buffer.
	OnReceive func(session *TCPSession, err error, n int) TCPCommand
	// OnWrite is called when a write completes (ok or not), with the
	// number of bytes actually written.
	OnWrite func(session *TCPSession, err error, n int) TCPCommand
	// OnDisconnect is called exactly once per disconnect() invocation, even
	// the second of two redundant calls (then with ErrDisconnected).
	OnDisconnect func(session *TCPSession, err error)

	OnStart func(handler *TCPHandler)
	OnStop  func(handler *TCPHandler)
}

// UDPConfig configures a UDP Server: buffer sizing and the callback set
// that drives the Handler's read/write loop.
type UDPConfig struct {
	ReadBufferSize int

	OnReceive func(handler *UDPHandler, err error, n int, from *net.UDPAddr) UDPCommand
	OnWrite   func(handler *UDPHandler, err error, n int) UDPCommand

	OnStart func(handler *UDPHandler)
	OnStop  func(handler *UDPHandler)
}

// ServerConfig describes one Server: the port and IP family to bind, and
// exactly one of TCP or UDP.
type ServerConfig struct {
	Port int
	V6   bool

	TCP *TCPConfig
	UDP *UDPConfig
}

// NewTCPServerConfig builds a ServerConfig for a TCP listener on port.
func NewTCPServerConfig(port int, v6 bool, cfg *TCPConfig) *ServerConfig {
	return &ServerConfig{Port: port, V6: v6, TCP: cfg}
}

// NewUDPServerConfig builds a ServerConfig for a UDP socket on port.
func NewUDPServerConfig(port int, v6 bool, cfg *UDPConfig) *ServerConfig {
	return &ServerConfig{Port: port, V6: v6, UDP: cfg}
}

var errServerConfigEmpty = errors.New("engine: ServerConfig needs a TCP or UDP handler config")

// protocolHandler is the common surface TCPHandler and UDPHandler present
// to Server. Kept as a small interface (exactly two implementers, never
// extended by a host) rather than a tagged struct, since the two handlers
// have genuinely nothing else in common to switch on.
type protocolHandler interface {
	start()
	stop()
}

// Server is a running TCP or UDP listener bound to one port, registered in
// a Pool's server table for the lifetime of a StartServer workload.
type Server struct {
	cfg     *ServerConfig
	handler protocolHandler

	stopOnce sync.Once
	cleanup  func(*Server)
}

// newServer binds and starts the handler described by cfg. cleanup is
// invoked exactly once, with this Server, when Stop() runs.
func newServer(exec *Executor, cfg *ServerConfig, cleanup func(*Server)) (*Server, error) {
	s := &Server{cfg: cfg, cleanup: cleanup}

	switch {
	case cfg.TCP != nil:
		h, err := newTCPHandler(exec, cfg.TCP, cfg.Port, cfg.V6)
		if err != nil {
			return nil, err
		}
		s.handler = h
	case cfg.UDP != nil:
		h, err := newUDPHandler(exec, cfg.UDP, cfg.Port, cfg.V6)
		if err != nil {
			return nil, err
		}
		s.handler = h
	default:
		return nil, errServerConfigEmpty
	}

	s.handler.start()
	return s, nil
}

// Port returns the port from this Server's config, the key the Pool's
// server table is searched by. For a config port of 0 it returns 0, not
// the ephemeral port the listener was given.
func (s *Server) Port() int { return s.cfg.Port }

// Stop stops the underlying handler and runs the registered cleanup
// exactly once. Safe to call more than once; later calls are no-ops.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.handler.stop()
		if s.cleanup != nil {
			s.cleanup(s)
		}
	})
}
