package engine

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/rbazhenov/lumengine/internal/netopts"
	"github.com/rbazhenov/lumengine/slots"
)

// TCPHandler owns a listening socket and every Session accepted from it.
// Its own Lane serializes the sessions table against the accept loop and
// against Stop, so Sessions can be added and removed from two different
// goroutines (the accept loop, and a Session's own disconnect cleanup)
// without racing.
type TCPHandler struct {
	config   *TCPConfig
	exec     *Executor
	lane     *Lane
	listener *net.TCPListener

	sessions *slots.Table[*TCPSession]
	stopOnce sync.Once
}

func newTCPHandler(exec *Executor, cfg *TCPConfig, port int, v6 bool) (*TCPHandler, error) {
	network, addr := tcpBindAddr(port, v6)
	lc := net.ListenConfig{Control: netopts.Control}
	ln, err := lc.Listen(context.Background(), network, addr)
	if err != nil {
		return nil, err
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return nil, fmt.Errorf("engine: unexpected listener type %T", ln)
	}
	return &TCPHandler{
		config:   cfg,
		exec:     exec,
		lane:     NewLane(exec),
		listener: tcpLn,
		sessions: slots.New[*TCPSession](16),
	}, nil
}

func tcpBindAddr(port int, v6 bool) (network, addr string) {
	if v6 {
		return "tcp6", fmt.Sprintf("[::]:%d", port)
	}
	return "tcp4", fmt.Sprintf("0.0.0.0:%d", port)
}

func (h *TCPHandler) start() {
	h.config.OnStart(h)
	go h.acceptLoop()
}

// acceptLoop blocks on Accept one connection at a time — the Go analogue
// of keeping exactly one accept operation outstanding — handing each new
// connection to the handler's Lane before accepting the next.
func (h *TCPHandler) acceptLoop() {
	for {
		conn, err := h.listener.Accept()
		if err != nil {
			return
		}
		sess := newTCPSession(h.config, h.exec, conn)
		h.lane.Post(func() {
			idx := h.sessions.Add(sess)
			sess.lane.Post(func() {
				sess.connect(nil, func() {
					h.lane.Post(func() { h.sessions.Remove(idx) })
				})
			})
		})
	}
}

// stop closes the listener, disconnects every currently accepted Session,
// and only then calls OnStop — all inside the same handler-Lane round
// trip, so OnStop can never run before or concurrently with one of those
// disconnects, and gets the same panic protection every other callback
// invocation gets. Safe to call more than once.
func (h *TCPHandler) stop() {
	h.stopOnce.Do(func() {
		h.lane.PostAndWait(func() {
			h.listener.Close()

			var wg sync.WaitGroup
			h.sessions.Range(func(_ int, s *TCPSession) bool {
				wg.Add(1)
				s.lane.Post(func() {
					s.disconnect()
					wg.Done()
				})
				return true
			})
			wg.Wait()

			h.config.OnStop(h)
		})
	})
}
