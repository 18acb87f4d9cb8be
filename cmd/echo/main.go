// Command echo runs a bare TCP echo server on the lumengine engine, to
// demonstrate wiring up a Pool, a ServerConfig, and the read/write command
// loop end to end.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rbazhenov/lumengine/buffer"
	"github.com/rbazhenov/lumengine/engine"
)

func main() {
	addr := flag.Int("port", 9001, "TCP listen port")
	workers := flag.Int("workers", 0, "worker pool size (0 = number of CPUs)")
	flag.Parse()

	pool := engine.NewPool(*workers)
	defer pool.Shutdown()

	var connCount int32

	cfg := engine.NewTCPServerConfig(*addr, false, &engine.TCPConfig{
		ReadBufferSize: 4096,
		OnConnect: func(s *engine.TCPSession, err error) engine.TCPCommand {
			atomic.AddInt32(&connCount, 1)
			return engine.TCPReadCmd()
		},
		OnReceive: func(s *engine.TCPSession, err error, n int) engine.TCPCommand {
			if err != nil || n == 0 {
				return engine.TCPCloseCmd()
			}
			echo := buffer.New(n)
			echo.Write(s.ReadBuffer().Bytes()[:n])
			return engine.TCPWriteCmd(echo)
		},
		OnWrite: func(s *engine.TCPSession, err error, n int) engine.TCPCommand {
			if err != nil {
				return engine.TCPCloseCmd()
			}
			return engine.TCPReadCmd()
		},
		OnDisconnect: func(s *engine.TCPSession, err error) {
			atomic.AddInt32(&connCount, -1)
		},
		OnStart: func(h *engine.TCPHandler) {
			log.Printf("echo server listening on :%d", *addr)
		},
		OnStop: func(h *engine.TCPHandler) {
			log.Printf("echo server stopped")
		},
	})

	started := make(chan error, 1)
	if _, err := pool.RunImmediately(engine.NewStartServerWorkload(cfg, func(err error) {
		started <- err
	})); err != nil {
		log.Fatalf("schedule start: %v", err)
	}
	if err := <-started; err != nil {
		log.Fatalf("start server: %v", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	stopped := make(chan error, 1)
	if _, err := pool.RunImmediately(engine.NewStopServerWorkload(*addr, func(err error) {
		stopped <- err
	})); err != nil {
		log.Fatalf("schedule stop: %v", err)
	}
	<-stopped
}
