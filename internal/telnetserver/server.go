// Package telnetserver serves appliance consoles over telnet for retro
// terminal programs that do not speak SSH.
package telnetserver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

// DefaultNegotiateWait is how long the server waits for option replies.
const DefaultNegotiateWait = 500 * time.Millisecond

// SessionHandler is called for each negotiated connection. ctx ends when
// the server closes.
type SessionHandler func(ctx context.Context, tc *Conn)

// Config holds telnet server configuration.
type Config struct {
	Port           int
	Host           string
	SessionHandler SessionHandler
	NegotiateWait  time.Duration // default DefaultNegotiateWait
}

// Server is a telnet server that listens for TCP connections
// and wraps them with telnet protocol handling.
type Server struct {
	config Config
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer creates a new telnet server instance.
func NewServer(cfg Config) (*Server, error) {
	if cfg.SessionHandler == nil {
		return nil, errors.New("session handler is required")
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.NegotiateWait <= 0 {
		cfg.NegotiateWait = DefaultNegotiateWait
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{config: cfg, ctx: ctx, cancel: cancel}, nil
}

// ListenAndServe starts listening for telnet connections and blocks.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	log.Printf("INFO: Telnet server listening on %s", addr)
	return s.Serve(listener)
}

// Serve accepts connections on l until Close is called.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		l.Close()
		return nil
	}
	s.listener = l
	s.mu.Unlock()

	for {
		conn, err := l.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil // Clean shutdown
			}
			log.Printf("ERROR: Telnet accept error: %v", err)
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			continue
		}
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection processes a new telnet connection.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	remoteAddr := conn.RemoteAddr().String()
	log.Printf("INFO: Telnet connection from %s", remoteAddr)

	// A session can block on input; closing the connection releases it.
	stop := context.AfterFunc(s.ctx, func() { conn.Close() })
	defer func() {
		stop()
		if r := recover(); r != nil {
			log.Printf("ERROR: Telnet panic handling %s: %v", remoteAddr, r)
		}
		conn.Close()
		log.Printf("INFO: Telnet connection closed from %s", remoteAddr)
	}()

	tc := NewConn(conn)
	if err := tc.Negotiate(s.config.NegotiateWait); err != nil {
		log.Printf("ERROR: Telnet negotiation failed for %s: %v", remoteAddr, err)
		return
	}
	w, h := tc.WindowSize()
	log.Printf("INFO: Telnet session from %s - terminal %q %dx%d", remoteAddr, tc.TermType(), w, h)

	s.config.SessionHandler(s.ctx, tc)
}

// Close stops accepting, ends every session and waits for them.
func (s *Server) Close() error {
	s.cancel()
	s.mu.Lock()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
		s.listener = nil
	}
	s.mu.Unlock()
	s.wg.Wait()
	return err
}
