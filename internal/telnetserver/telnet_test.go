package telnetserver

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

func TestFeed(t *testing.T) {
	tc := NewConn(nil)
	in := []byte{'a', IAC, WILL, OptTermType, 'b', IAC, IAC,
		IAC, SB, OptNAWS, 0, 40, 0, 12, IAC, SE,
		IAC, SB, OptTermType, TermTypeIs, 'S', 'y', 'n', 'c', 'T', 'E', 'R', 'M', IAC, SE,
		IAC, 246, // AYT
		'c'}
	out := tc.feed(in, nil)
	if !bytes.Equal(out, []byte{'a', 'b', 0xFF, 'c'}) {
		t.Errorf("data = %q", out)
	}
	if w, h := tc.WindowSize(); w != 40 || h != 12 {
		t.Errorf("window = %dx%d", w, h)
	}
	if tc.TermType() != "syncterm" {
		t.Errorf("term type = %q", tc.TermType())
	}
	if !tc.willTermType {
		t.Error("WILL TERM_TYPE not recorded")
	}
}

func TestFeedSplitAcrossReads(t *testing.T) {
	tc := NewConn(nil)
	var out []byte
	for _, chunk := range [][]byte{{'x', IAC}, {DO}, {OptEcho, 'y', IAC}, {IAC}} {
		out = tc.feed(chunk, out)
	}
	if !bytes.Equal(out, []byte{'x', 'y', 0xFF}) {
		t.Errorf("data = %q", out)
	}
}

func TestTermTypeDefault(t *testing.T) {
	if got := NewConn(nil).TermType(); got != "ansi" {
		t.Errorf("TermType = %q, want ansi", got)
	}
}

func TestWriteEscapesIAC(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	tc := NewConn(server)

	got := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 4)
		io.ReadFull(client, buf)
		got <- buf
	}()
	n, err := tc.Write([]byte{'a', 0xFF, 'b'})
	if err != nil || n != 3 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if b := <-got; !bytes.Equal(b, []byte{'a', IAC, IAC, 'b'}) {
		t.Errorf("wire bytes = %v", b)
	}
	tc.Close()
}

func TestServerNegotiatesAndServes(t *testing.T) {
	type result struct {
		term string
		line string
		w, h int
	}
	results := make(chan result, 1)
	srv, err := NewServer(Config{
		Host:          "127.0.0.1",
		NegotiateWait: time.Second,
		SessionHandler: func(ctx context.Context, tc *Conn) {
			tc.Write([]byte("READY\r\n"))
			line, _ := bufio.NewReader(tc).ReadString('\r')
			w, h := tc.WindowSize()
			results <- result{tc.TermType(), line, w, h}
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go srv.Serve(l)
	defer srv.Close()

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	offer := make([]byte, 18)
	if _, err := io.ReadFull(conn, offer); err != nil {
		t.Fatalf("reading offer: %v", err)
	}
	conn.Write([]byte{IAC, WILL, OptTermType, IAC, WILL, OptNAWS, IAC, SB, OptNAWS, 0, 80, 0, 24, IAC, SE})

	request := make([]byte, 6)
	if _, err := io.ReadFull(conn, request); err != nil {
		t.Fatalf("reading TERM_TYPE request: %v", err)
	}
	if !bytes.Equal(request, []byte{IAC, SB, OptTermType, TermTypeSend, IAC, SE}) {
		t.Fatalf("request = %v", request)
	}
	conn.Write(append(append([]byte{IAC, SB, OptTermType, TermTypeIs}, "XTERM"...), IAC, SE))

	ready, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil || !strings.Contains(ready, "READY") {
		t.Fatalf("greeting = %q, %v", ready, err)
	}
	conn.Write([]byte{'h', 'i', IAC, IAC, '\r'})

	select {
	case r := <-results:
		if r.term != "xterm" || r.w != 80 || r.h != 24 {
			t.Errorf("negotiated %q %dx%d", r.term, r.w, r.h)
		}
		if r.line != "hi\xff\r" {
			t.Errorf("line = %q", r.line)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("session handler never finished")
	}
}

func TestCloseEndsSessions(t *testing.T) {
	started := make(chan struct{})
	srv, _ := NewServer(Config{
		NegotiateWait: 10 * time.Millisecond,
		SessionHandler: func(ctx context.Context, tc *Conn) {
			close(started)
			io.Copy(io.Discard, tc) // returns when the server closes the conn
		},
	})
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go srv.Serve(l)

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	go io.Copy(io.Discard, conn)

	select {
	case <-started:
	case <-time.After(10 * time.Second):
		t.Fatal("session never started")
	}
	done := make(chan struct{})
	go func() { srv.Close(); close(done) }()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Close did not end the session")
	}
}
