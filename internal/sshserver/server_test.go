package sshserver

import (
	"bytes"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/gliderlabs/ssh"
	gossh "golang.org/x/crypto/ssh"
)

func TestLoadOrCreateHostKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "host_ed25519")

	first, err := LoadOrCreateHostKey(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.PublicKey().Type() != gossh.KeyAlgoED25519 {
		t.Errorf("key type = %s", first.PublicKey().Type())
	}

	second, err := LoadOrCreateHostKey(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !bytes.Equal(first.PublicKey().Marshal(), second.PublicKey().Marshal()) {
		t.Error("reloading must return the stored key, not a new one")
	}
}

func startTestServer(t *testing.T, cfg Config) string {
	t.Helper()
	cfg.HostKeyPath = filepath.Join(t.TempDir(), "host_key")
	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.Serve(l)
	t.Cleanup(func() { srv.Close() })
	return l.Addr().String()
}

func dial(addr, password string) (*gossh.Client, error) {
	return gossh.Dial("tcp", addr, &gossh.ClientConfig{
		User:            "card",
		Auth:            []gossh.AuthMethod{gossh.Password(password)},
		HostKeyCallback: gossh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	})
}

func TestServeSession(t *testing.T) {
	addr := startTestServer(t, Config{
		SessionHandler: func(s ssh.Session) {
			io.WriteString(s, "READY "+s.User())
		},
	})

	client, err := dial(addr, "anything")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	sess, err := client.NewSession()
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	out, err := sess.Output("")
	if err != nil {
		t.Fatalf("output: %v", err)
	}
	if string(out) != "READY card" {
		t.Errorf("output = %q", out)
	}
}

func TestPasswordRequired(t *testing.T) {
	addr := startTestServer(t, Config{
		Password:       "s3cret",
		SessionHandler: func(s ssh.Session) {},
	})

	if _, err := dial(addr, "wrong"); err == nil {
		t.Error("wrong password accepted")
	}
	client, err := dial(addr, "s3cret")
	if err != nil {
		t.Fatalf("correct password rejected: %v", err)
	}
	client.Close()
}
