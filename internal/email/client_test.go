package email

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"

	"github.com/univo-tech-dev/univo-tech-dev-sub002/internal/mailtest"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testDialer(addr string, mutate func(*DialerConfig)) *Dialer {
	cfg := DialerConfig{
		Server:      addr,
		ServerName:  mailtest.ServerName,
		SkipVerify:  true,
		AuthTimeout: 5 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewDialer(cfg, discard)
}

func TestOpenAndClose(t *testing.T) {
	srv := mailtest.NewServer(t)
	srv.AddUser(testUser, testPassword)
	srv.Deliver(testUser, &mailtest.Message{UID: 7, Raw: mailtest.Header("hi", "a@example.edu", time.Now())})

	conn, err := testDialer(srv.Addr, nil).Open(context.Background(), NewCredentials(testUser, testPassword))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if conn.NumMessages() != 1 {
		t.Errorf("NumMessages = %d, want 1", conn.NumMessages())
	}
	if srv.OpenSessions() != 1 {
		t.Errorf("OpenSessions = %d, want 1", srv.OpenSessions())
	}

	if err := conn.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if !srv.WaitClosed(2 * time.Second) {
		t.Fatal("connection still open after Close")
	}
}

func TestOpenWrongPassword(t *testing.T) {
	srv := mailtest.NewServer(t)
	srv.AddUser(testUser, testPassword)

	_, err := testDialer(srv.Addr, nil).Open(context.Background(), NewCredentials(testUser, "nope"))
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", err)
	}

	var e *Error
	if !errors.As(err, &e) || e.Op != "login" {
		t.Fatalf("err = %#v, want login *Error", err)
	}
}

func TestOpenUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = testDialer(addr, nil).Open(context.Background(), NewCredentials(testUser, testPassword))
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
}

func TestOpenMissingHost(t *testing.T) {
	for _, addr := range []string{"", ":993", "no-port"} {
		_, err := testDialer(addr, nil).Open(context.Background(), NewCredentials(testUser, testPassword))
		if !errors.Is(err, ErrConfig) {
			t.Errorf("Open(%q) err = %v, want ErrConfig", addr, err)
		}
	}
}

func TestOpenVerifiesCertificateWhenAsked(t *testing.T) {
	srv := mailtest.NewServer(t)
	srv.AddUser(testUser, testPassword)

	d := testDialer(srv.Addr, func(c *DialerConfig) { c.SkipVerify = false })
	_, err := d.Open(context.Background(), NewCredentials(testUser, testPassword))
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork for an untrusted certificate", err)
	}
}

// serveRaw accepts TLS connections and hands each to handle
func serveRaw(t *testing.T, handle func(net.Conn)) string {
	t.Helper()

	cfg, _ := mailtest.TLSConfig(t)
	ln, err := tls.Listen("tcp", "127.0.0.1:0", cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				handle(c)
			}()
		}
	}()
	return ln.Addr().String()
}

func TestOpenGreetingTimeout(t *testing.T) {
	hold := make(chan struct{})
	t.Cleanup(func() { close(hold) })

	addr := serveRaw(t, func(c net.Conn) {
		// Complete the handshake, then never greet
		c.(*tls.Conn).Handshake()
		<-hold
	})

	d := testDialer(addr, func(c *DialerConfig) { c.AuthTimeout = 300 * time.Millisecond })
	start := time.Now()
	_, err := d.Open(context.Background(), NewCredentials(testUser, testPassword))
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Open took %s, auth timeout not enforced", elapsed)
	}
}

func TestOpenGreetingRejected(t *testing.T) {
	hold := make(chan struct{})
	t.Cleanup(func() { close(hold) })

	addr := serveRaw(t, func(c net.Conn) {
		c.Write([]byte("* BYE server is shutting down\r\n"))
		<-hold
	})

	_, err := testDialer(addr, nil).Open(context.Background(), NewCredentials(testUser, testPassword))
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("err = %v, want ErrProtocol", err)
	}
}

// greetAndReadLogin greets the client and consumes commands up to and
// including LOGIN
func greetAndReadLogin(c net.Conn) bool {
	if _, err := c.Write([]byte("* OK [CAPABILITY IMAP4rev1] ready\r\n")); err != nil {
		return false
	}
	r := bufio.NewReader(c)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return false
		}
		if strings.Contains(strings.ToUpper(line), " LOGIN ") {
			return true
		}
	}
}

func TestOpenLoginTimeout(t *testing.T) {
	hold := make(chan struct{})
	t.Cleanup(func() { close(hold) })

	addr := serveRaw(t, func(c net.Conn) {
		// Accept LOGIN, then never answer it
		if greetAndReadLogin(c) {
			<-hold
		}
	})

	d := testDialer(addr, func(c *DialerConfig) { c.AuthTimeout = 300 * time.Millisecond })
	start := time.Now()
	_, err := d.Open(context.Background(), NewCredentials(testUser, testPassword))
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
	if errors.Is(err, ErrAuth) {
		t.Errorf("err = %v, a stalled LOGIN is not a rejection", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Open took %s, auth timeout not enforced", elapsed)
	}
}

func TestOpenDroppedDuringLogin(t *testing.T) {
	addr := serveRaw(t, func(c net.Conn) {
		// Hang up before the tagged reply
		greetAndReadLogin(c)
	})

	_, err := testDialer(addr, nil).Open(context.Background(), NewCredentials(testUser, testPassword))
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
	if errors.Is(err, ErrAuth) {
		t.Errorf("err = %v, a dropped connection is not a rejection", err)
	}
}

func TestOpenCancelled(t *testing.T) {
	hold := make(chan struct{})
	t.Cleanup(func() { close(hold) })

	addr := serveRaw(t, func(c net.Conn) {
		c.(*tls.Conn).Handshake()
		<-hold
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	_, err := testDialer(addr, nil).Open(ctx, NewCredentials(testUser, testPassword))
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want it to wrap context.Canceled", err)
	}
}

func TestDebugTraceRedactsLogin(t *testing.T) {
	srv := mailtest.NewServer(t)
	srv.AddUser(testUser, testPassword)

	var logs syncBuffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	d := NewDialer(DialerConfig{
		Server:     srv.Addr,
		ServerName: mailtest.ServerName,
		SkipVerify: true,
		Debug:      true,
	}, logger)

	conn, err := d.Open(context.Background(), NewCredentials(testUser, testPassword))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	conn.Close()

	out := logs.String()
	if strings.Contains(out, "horse battery") {
		t.Fatalf("password leaked into debug trace:\n%s", out)
	}
	if !strings.Contains(out, "redacted during authentication") {
		t.Error("expected redacted traffic before login")
	}
	if !strings.Contains(out, "INBOX") {
		t.Error("expected traffic after login to be traced")
	}
}

func TestErrorFormatting(t *testing.T) {
	err := newError(ErrAuth, "login", errors.New("boom"))
	if !errors.Is(err, ErrAuth) || errors.Is(err, ErrNetwork) {
		t.Fatalf("kind matching broken for %v", err)
	}
	if got := err.Error(); got != "login: authentication rejected: boom" {
		t.Errorf("Error() = %q", got)
	}

	wrapped := classify("select", &net.OpError{Op: "read", Err: errors.New("reset")}, ErrProtocol)
	if !errors.Is(wrapped, ErrNetwork) {
		t.Errorf("transport failure classified as %v", wrapped.Kind)
	}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"rejected", &imap.Error{Type: imap.StatusResponseTypeNo, Text: "bad password"}, ErrAuth},
		{"eof", io.EOF, ErrNetwork},
		{"unexpected eof", io.ErrUnexpectedEOF, ErrNetwork},
		{"closed", net.ErrClosed, ErrNetwork},
		{"garbage", errors.New("in response: expected atom"), ErrProtocol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("login", tt.err, ErrAuth)
			if got.Kind != tt.want {
				t.Errorf("classify(%v) = %v, want %v", tt.err, got.Kind, tt.want)
			}
		})
	}

	rejected := classify("login", &imap.Error{Type: imap.StatusResponseTypeNo, Text: "bad password"}, ErrAuth)
	if Detail(rejected) != "bad password" {
		t.Errorf("Detail = %q", Detail(rejected))
	}
}
