// Package sshserver serves appliance consoles over SSH. It wraps
// gliderlabs/ssh (which itself wraps golang.org/x/crypto/ssh), creates a
// host key on first start and can enable the older algorithms retro
// terminal clients such as SyncTERM still need.
package sshserver

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"encoding/pem"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"

	"github.com/gliderlabs/ssh"
	gossh "golang.org/x/crypto/ssh"
)

// Config holds SSH server configuration.
type Config struct {
	HostKeyPath         string
	Host                string
	Port                int
	LegacySSHAlgorithms bool
	SessionHandler      func(ssh.Session)
	Password            string // empty accepts any client
	Version             string // SSH server banner version (default: "CardBASIC")
}

// Server wraps a gliderlabs/ssh server.
type Server struct {
	inner *ssh.Server
}

// NewServer creates and configures a new SSH server, generating the host
// key if HostKeyPath does not exist yet.
func NewServer(cfg Config) (*Server, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	signer, err := LoadOrCreateHostKey(cfg.HostKeyPath)
	if err != nil {
		return nil, err
	}

	version := cfg.Version
	if version == "" {
		version = "CardBASIC"
	}

	srv := &ssh.Server{
		Addr:        addr,
		Handler:     cfg.SessionHandler,
		HostSigners: []ssh.Signer{signer},
		Version:     version,
		ConnectionFailedCallback: func(conn net.Conn, err error) {
			log.Printf("WARN: SSH connection failed from %s: %v", conn.RemoteAddr(), err)
		},
	}
	if cfg.Password != "" {
		want := []byte(cfg.Password)
		srv.PasswordHandler = func(ctx ssh.Context, password string) bool {
			ok := subtle.ConstantTimeCompare([]byte(password), want) == 1
			if !ok {
				log.Printf("WARN: SSH password auth failed for %s from %s", ctx.User(), ctx.RemoteAddr())
			}
			return ok
		}
	}

	// When LegacySSHAlgorithms is enabled, include older algorithms
	// (diffie-hellman-group1-sha1, 3des-cbc, hmac-sha1) required by
	// retro terminal clients.
	legacy := cfg.LegacySSHAlgorithms
	srv.ServerConfigCallback = func(ctx ssh.Context) *gossh.ServerConfig {
		sc := &gossh.ServerConfig{}
		if legacy {
			sc.Config.KeyExchanges = []string{
				"curve25519-sha256",
				"curve25519-sha256@libssh.org",
				"ecdh-sha2-nistp256",
				"diffie-hellman-group14-sha256",
				"diffie-hellman-group14-sha1",
				"diffie-hellman-group1-sha1",
			}
			sc.Config.Ciphers = []string{
				"chacha20-poly1305@openssh.com",
				"aes128-gcm@openssh.com",
				"aes128-ctr",
				"aes256-ctr",
				"aes128-cbc",
				"3des-cbc",
			}
			sc.Config.MACs = []string{
				"hmac-sha2-256-etm@openssh.com",
				"hmac-sha2-256",
				"hmac-sha1",
			}
		}
		return sc
	}

	return &Server{inner: srv}, nil
}

// ListenAndServe binds to the configured address and serves SSH connections.
// It blocks until the server is closed.
func (s *Server) ListenAndServe() error {
	return s.inner.ListenAndServe()
}

// Serve starts serving on an existing listener. Blocks until closed.
func (s *Server) Serve(l net.Listener) error {
	return s.inner.Serve(l)
}

// Close shuts down the server and all active connections.
func (s *Server) Close() error {
	return s.inner.Close()
}

// LoadOrCreateHostKey reads the private key at path, or generates an
// ed25519 key and writes it there in OpenSSH format.
func LoadOrCreateHostKey(path string) (gossh.Signer, error) {
	keyBytes, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		keyBytes, err = generateHostKey(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read host key %s: %w", path, err)
	}
	signer, err := gossh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("parse host key: %w", err)
	}
	return signer, nil
}

func generateHostKey(path string) ([]byte, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate host key: %w", err)
	}
	block, err := gossh.MarshalPrivateKey(priv, "cardbasic host key")
	if err != nil {
		return nil, fmt.Errorf("encode host key: %w", err)
	}
	data := pem.EncodeToMemory(block)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create host key directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, fmt.Errorf("write host key: %w", err)
	}
	log.Printf("INFO: Generated new SSH host key at %s", path)
	return data, nil
}
