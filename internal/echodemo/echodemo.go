// Package echodemo is the sample workload for the restart engine: a TCP
// line-echo service whose greeting names the serving generation, whose
// connections hold drain handles, and whose handoff payload carries the
// generation counter to the next process.
package echodemo

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync/atomic"

	"github.com/loykin/handover/internal/drain"
)

// Config mirrors the [echo] config section.
type Config struct {
	// Port is the base port; generation g listens on Port+g so each
	// generation binds its own address. Port 0 picks an ephemeral port.
	Port           int
	MaxGenerations int
	Greeting       string
}

// Server accepts echo clients until closed. Draining clients get a
// goodbye line instead of having their connection cut.
type Server struct {
	cfg        Config
	generation int
	ln         net.Listener
	drain      *drain.Coordinator
	lg         *slog.Logger
	closed     atomic.Bool
}

func New(cfg Config, generation int, d *drain.Coordinator, lg *slog.Logger) (*Server, error) {
	if lg == nil {
		lg = slog.Default()
	}
	if cfg.Greeting == "" {
		cfg.Greeting = "hello"
	}
	if cfg.MaxGenerations <= 0 {
		cfg.MaxGenerations = 4
	}
	addr := "127.0.0.1:0"
	if cfg.Port > 0 {
		addr = fmt.Sprintf("127.0.0.1:%d", cfg.Port+generation)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("echo: listen %s: %w", addr, err)
	}
	s := &Server{
		cfg:        cfg,
		generation: generation,
		ln:         ln,
		drain:      d,
		lg:         lg.With("component", "echo"),
	}
	s.lg.Info("echo service listening", "addr", ln.Addr().String(), "generation", generation)
	go s.acceptLoop()
	return s, nil
}

func (s *Server) Addr() net.Addr  { return s.ln.Addr() }
func (s *Server) Generation() int { return s.generation }

// Lifecycle returns the handoff behavior for this server's generation
// and policy limit.
func (s *Server) Lifecycle() Lifecycle {
	return Lifecycle{Generation: s.generation, MaxGenerations: s.cfg.MaxGenerations}
}

// Close stops accepting. Established connections keep running until
// they finish or are drained.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.ln.Close()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.lg.Error("echo accept failed", "error", err)
			return
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	h := s.drain.Acquire()
	defer h.Release()

	if _, err := fmt.Fprintf(conn, "%s from instance %d (pid %d)\n", s.cfg.Greeting, s.generation, os.Getpid()); err != nil {
		return
	}

	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				return
			}
		}
		close(lines)
	}()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
				return
			}
		case <-h.Signal():
			_, _ = io.WriteString(conn, "draining, goodbye\n")
			return
		}
	}
}
