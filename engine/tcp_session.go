package engine

import (
	"io"
	"net"

	"github.com/rbazhenov/lumengine/buffer"
)

// TCPSession is one accepted TCP connection, driven entirely by the
// TCPConfig callbacks' returned TCPCommand. Every callback invocation for a
// given Session happens on that Session's own Lane, so a host implementing
// OnConnect/OnReceive/OnWrite/OnDisconnect never needs its own lock around
// per-session state.
type TCPSession struct {
	config *TCPConfig
	conn   net.Conn
	exec   *Executor
	lane   *Lane

	readBuf *buffer.Buffer
	cleanup func()
	closed  bool
}

func newTCPSession(cfg *TCPConfig, exec *Executor, conn net.Conn) *TCPSession {
	size := cfg.ReadBufferSize
	if size <= 0 {
		size = 4096
	}
	return &TCPSession{
		config:  cfg,
		conn:    conn,
		exec:    exec,
		lane:    NewLane(exec),
		readBuf: buffer.New(size),
	}
}

// Conn returns the underlying net.Conn, for callbacks that need the remote
// address or want to tune socket options directly.
func (s *TCPSession) Conn() net.Conn { return s.conn }

// ReadBuffer returns the Session's owned read buffer. Valid to inspect
// from inside OnReceive; its contents are overwritten by the next read.
func (s *TCPSession) ReadBuffer() *buffer.Buffer { return s.readBuf }

// connect runs on the Session's Lane: it stores the cleanup hook (invoked
// once the Session fully disconnects with no pending error) and dispatches
// the command OnConnect returns.
func (s *TCPSession) connect(err error, cleanup func()) {
	s.cleanup = cleanup
	s.dispatch(s.config.OnConnect(s, err))
}

func (s *TCPSession) dispatch(cmd TCPCommand) {
	switch cmd.Kind {
	case TCPRead:
		s.beginRead()
	case TCPWrite:
		s.beginWrite(cmd.Buffer)
	case TCPClose:
		s.disconnect()
	}
}

// beginRead issues a blocking Read on a disposable goroutine and posts the
// completion back onto the Session's Lane, so no Executor worker ever
// blocks on socket I/O.
func (s *TCPSession) beginRead() {
	go func() {
		s.readBuf.Reset()
		n, err := s.conn.Read(s.readBuf.Bytes())
		s.lane.Post(func() {
			s.dispatch(s.config.OnReceive(s, err, n))
		})
	}()
}

// beginWrite writes buf's filled region in full (retrying short writes)
// before reporting completion, matching a host's expectation that OnWrite
// sees either a complete write or the error that stopped it.
func (s *TCPSession) beginWrite(buf *buffer.Buffer) {
	go func() {
		n, err := writeFull(s.conn, buf.Filled())
		s.lane.Post(func() {
			s.dispatch(s.config.OnWrite(s, err, n))
		})
	}()
}

func writeFull(w io.Writer, data []byte) (int, error) {
	total := 0
	for total < len(data) {
		n, err := w.Write(data[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// disconnect is idempotent: the first call shuts down and closes the
// socket, reports the first error encountered (shutdown error takes
// precedence over a close error) to OnDisconnect, and — only if both
// succeeded — runs the stored cleanup hook. Any later call reports
// ErrDisconnected and runs no cleanup.
func (s *TCPSession) disconnect() {
	if s.closed {
		s.config.OnDisconnect(s, ErrDisconnected)
		return
	}
	s.closed = true

	shutdownErr, closeErr := shutdownAndClose(s.conn)
	var reportErr error
	switch {
	case shutdownErr != nil:
		reportErr = shutdownErr
	case closeErr != nil:
		reportErr = closeErr
	}

	s.config.OnDisconnect(s, reportErr)
	if reportErr == nil && s.cleanup != nil {
		s.cleanup()
	}
}

// shutdownAndClose shuts down both halves of a TCP connection before
// closing it, falling back to a plain Close for connection types that
// don't expose half-close.
func shutdownAndClose(conn net.Conn) (shutdownErr, closeErr error) {
	if tc, ok := conn.(*net.TCPConn); ok {
		shutdownErr = tc.CloseRead()
		if err := tc.CloseWrite(); shutdownErr == nil {
			shutdownErr = err
		}
	}
	closeErr = conn.Close()
	return shutdownErr, closeErr
}
