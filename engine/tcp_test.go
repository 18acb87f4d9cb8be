package engine

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rbazhenov/lumengine/buffer"
)

func startEchoServer(t *testing.T, port int) (*Pool, chan struct{}) {
	t.Helper()
	pool := NewPool(2)

	disconnected := make(chan struct{}, 8)
	cfg := NewTCPServerConfig(port, false, &TCPConfig{
		ReadBufferSize: 256,
		OnConnect:      func(s *TCPSession, err error) TCPCommand { return TCPReadCmd() },
		OnReceive: func(s *TCPSession, err error, n int) TCPCommand {
			if err != nil || n == 0 {
				return TCPCloseCmd()
			}
			echo := buffer.New(n)
			echo.Write(s.ReadBuffer().Bytes()[:n])
			return TCPWriteCmd(echo)
		},
		OnWrite: func(s *TCPSession, err error, n int) TCPCommand {
			if err != nil {
				return TCPCloseCmd()
			}
			return TCPReadCmd()
		},
		OnDisconnect: func(s *TCPSession, err error) { disconnected <- struct{}{} },
		OnStart:      func(h *TCPHandler) {},
		OnStop:       func(h *TCPHandler) {},
	})

	done := make(chan error, 1)
	_, err := pool.RunImmediately(NewStartServerWorkload(cfg, func(err error) { done <- err }))
	if err != nil {
		t.Fatalf("RunImmediately: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("StartServer: %v", err)
	}
	return pool, disconnected
}

func TestTCPEchoRoundTrip(t *testing.T) {
	pool, _ := startEchoServer(t, 18081)
	defer pool.Shutdown()

	conn, err := net.DialTimeout("tcp", "127.0.0.1:18081", time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	msg := []byte("hello lumengine")
	if _, err := conn.Write(msg); err != nil {
		t.Fatalf("Write: %v", err)
	}

	reply := make([]byte, len(msg))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := readFull(conn, reply); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(reply) != string(msg) {
		t.Fatalf("got %q, want %q", reply, msg)
	}
}

func TestTCPDisconnectIsIdempotent(t *testing.T) {
	pool := NewPool(2)
	defer pool.Shutdown()

	var disconnectErrs []error
	var gotSession *TCPSession
	readyCh := make(chan struct{})

	cfg := NewTCPServerConfig(18082, false, &TCPConfig{
		ReadBufferSize: 64,
		OnConnect: func(s *TCPSession, err error) TCPCommand {
			gotSession = s
			close(readyCh)
			return TCPReadCmd()
		},
		OnReceive:    func(s *TCPSession, err error, n int) TCPCommand { return TCPCloseCmd() },
		OnWrite:      func(s *TCPSession, err error, n int) TCPCommand { return TCPCloseCmd() },
		OnDisconnect: func(s *TCPSession, err error) { disconnectErrs = append(disconnectErrs, err) },
		OnStart:      func(h *TCPHandler) {},
		OnStop:       func(h *TCPHandler) {},
	})

	done := make(chan error, 1)
	if _, err := pool.RunImmediately(NewStartServerWorkload(cfg, func(err error) { done <- err })); err != nil {
		t.Fatalf("RunImmediately: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("StartServer: %v", err)
	}

	conn, err := net.DialTimeout("tcp", "127.0.0.1:18082", time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	<-readyCh
	waitUntil(t, func() bool { return gotSession != nil })

	// First disconnect: the host returns Close from OnReceive. No read is
	// outstanding after that, so no later OnReceive adds a disconnect call.
	if _, err := conn.Write([]byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	waitUntil(t, func() bool {
		n := 0
		gotSession.lane.PostAndWait(func() { n = len(disconnectErrs) })
		return n == 1
	})

	done2 := make(chan struct{})
	gotSession.lane.PostAndWait(func() { gotSession.disconnect(); close(done2) })
	<-done2

	if len(disconnectErrs) != 2 {
		t.Fatalf("expected exactly 2 OnDisconnect calls, got %d", len(disconnectErrs))
	}
	if disconnectErrs[0] != nil {
		t.Fatalf("first disconnect should report nil error, got %v", disconnectErrs[0])
	}
	if disconnectErrs[1] != ErrDisconnected {
		t.Fatalf("second disconnect should report ErrDisconnected, got %v", disconnectErrs[1])
	}
}

func TestTCPStopDisconnectsOpenSessions(t *testing.T) {
	pool, disconnected := startEchoServer(t, 18083)
	defer pool.Shutdown()

	conn, err := net.DialTimeout("tcp", "127.0.0.1:18083", time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	// Give the accept loop a moment to register the session before
	// stopping the server.
	time.Sleep(50 * time.Millisecond)

	done := make(chan error, 1)
	if _, err := pool.RunImmediately(NewStopServerWorkload(18083, func(err error) { done <- err })); err != nil {
		t.Fatalf("RunImmediately: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("StopServer: %v", err)
	}

	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("expected OnDisconnect to fire after Stop")
	}
}

// TestTCPStopOrdersDisconnectBeforeOnStop asserts the stronger property
// TestTCPStopDisconnectsOpenSessions doesn't: every open session's
// OnDisconnect completes before OnStop runs, never after and never
// concurrently with it.
func TestTCPStopOrdersDisconnectBeforeOnStop(t *testing.T) {
	pool := NewPool(2)
	defer pool.Shutdown()

	var mu sync.Mutex
	var events []string

	const numSessions = 5
	cfg := NewTCPServerConfig(18086, false, &TCPConfig{
		ReadBufferSize: 64,
		OnConnect:      func(s *TCPSession, err error) TCPCommand { return TCPReadCmd() },
		OnReceive:      func(s *TCPSession, err error, n int) TCPCommand { return TCPCloseCmd() },
		OnWrite:        func(s *TCPSession, err error, n int) TCPCommand { return TCPCloseCmd() },
		OnDisconnect: func(s *TCPSession, err error) {
			mu.Lock()
			events = append(events, "disconnect")
			mu.Unlock()
		},
		OnStart: func(h *TCPHandler) {},
		OnStop: func(h *TCPHandler) {
			mu.Lock()
			events = append(events, "stop")
			mu.Unlock()
		},
	})

	started := make(chan error, 1)
	if _, err := pool.RunImmediately(NewStartServerWorkload(cfg, func(err error) { started <- err })); err != nil {
		t.Fatalf("RunImmediately: %v", err)
	}
	if err := <-started; err != nil {
		t.Fatalf("StartServer: %v", err)
	}

	conns := make([]net.Conn, numSessions)
	for i := range conns {
		c, err := net.DialTimeout("tcp", "127.0.0.1:18086", time.Second)
		if err != nil {
			t.Fatalf("Dial %d: %v", i, err)
		}
		defer c.Close()
		conns[i] = c
	}

	// Give the accept loop time to register all sessions before stopping.
	time.Sleep(100 * time.Millisecond)

	stopped := make(chan error, 1)
	if _, err := pool.RunImmediately(NewStopServerWorkload(18086, func(err error) { stopped <- err })); err != nil {
		t.Fatalf("RunImmediately: %v", err)
	}
	if err := <-stopped; err != nil {
		t.Fatalf("StopServer: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()

	if len(events) != numSessions+1 {
		t.Fatalf("expected %d disconnect events + 1 stop event, got %v", numSessions, events)
	}
	if events[len(events)-1] != "stop" {
		t.Fatalf("expected OnStop to be the last event, got %v", events)
	}
	for i := 0; i < numSessions; i++ {
		if events[i] != "disconnect" {
			t.Fatalf("expected every OnDisconnect to precede OnStop, got %v", events)
		}
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
