package engine

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rbazhenov/lumengine/buffer"
	"github.com/rbazhenov/lumengine/internal/netopts"
)

// UDPHandler owns one bound UDP socket, driven entirely by the UDPConfig
// callbacks' returned UDPCommand, the same declarative-command shape as
// TCPSession uses for TCP.
type UDPHandler struct {
	config *UDPConfig
	lane   *Lane
	conn   *net.UDPConn
	port   int

	readBuf  *buffer.Buffer
	stopOnce sync.Once
	stopped  atomic.Bool
}

func newUDPHandler(exec *Executor, cfg *UDPConfig, port int, v6 bool) (*UDPHandler, error) {
	network, addr := udpBindAddr(port, v6)
	lc := net.ListenConfig{Control: netopts.Control}
	pc, err := lc.ListenPacket(context.Background(), network, addr)
	if err != nil {
		return nil, err
	}
	udpConn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("engine: unexpected packet conn type %T", pc)
	}

	size := cfg.ReadBufferSize
	if size <= 0 {
		size = 4096
	}
	return &UDPHandler{
		config:  cfg,
		lane:    NewLane(exec),
		conn:    udpConn,
		port:    port,
		readBuf: buffer.New(size),
	}, nil
}

func udpBindAddr(port int, v6 bool) (network, addr string) {
	if v6 {
		return "udp6", fmt.Sprintf("[::]:%d", port)
	}
	return "udp4", fmt.Sprintf("0.0.0.0:%d", port)
}

// Conn returns the underlying *net.UDPConn, for callbacks that need to
// tune socket options directly.
func (h *UDPHandler) Conn() *net.UDPConn { return h.conn }

func (h *UDPHandler) start() {
	h.config.OnStart(h)
	h.beginRead()
}

func (h *UDPHandler) dispatch(cmd UDPCommand) {
	if h.stopped.Load() {
		return
	}
	switch cmd.Kind {
	case UDPRead:
		h.beginRead()
	case UDPWrite:
		h.beginWrite(cmd.Buffer, cmd.Endpoint)
	}
}

func (h *UDPHandler) beginRead() {
	go func() {
		h.readBuf.Reset()
		n, from, err := h.conn.ReadFromUDP(h.readBuf.Bytes())
		h.lane.Post(func() {
			h.dispatch(h.config.OnReceive(h, err, n, from))
		})
	}()
}

func (h *UDPHandler) beginWrite(buf *buffer.Buffer, to *net.UDPAddr) {
	go func() {
		n, err := h.conn.WriteToUDP(buf.Filled(), to)
		h.lane.Post(func() {
			h.dispatch(h.config.OnWrite(h, err, n))
		})
	}()
}

// stop closes the socket (the outstanding receive completes with an error,
// which OnReceive observes) and calls OnStop through the handler's Lane, so
// it never runs concurrently with a still-draining OnReceive/OnWrite
// completion and gets the same panic protection every other callback
// invocation gets. Safe to call more than once.
func (h *UDPHandler) stop() {
	h.stopOnce.Do(func() {
		h.stopped.Store(true)
		h.conn.Close()
		h.lane.PostAndWait(func() { h.config.OnStop(h) })
	})
}
