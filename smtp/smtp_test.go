package smtp_test

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/kestrelmail/goimapcore/events"
	"github.com/kestrelmail/goimapcore/smtp"
	"github.com/kestrelmail/goimapcore/transport"
)

type scriptedServer struct {
	conn net.Conn
	r    *bufio.Reader
}

func (s *scriptedServer) send(lines ...string) {
	for _, l := range lines {
		s.conn.Write([]byte(l + "\r\n"))
	}
}

func (s *scriptedServer) expect(t *testing.T, want string) {
	t.Helper()
	line, err := s.r.ReadString('\n')
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line != want {
		t.Fatalf("got %q, want %q", line, want)
	}
}

func newClientPair(t *testing.T) (net.Conn, *scriptedServer) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() { serverConn.Close() })
	return clientConn, &scriptedServer{conn: serverConn, r: bufio.NewReader(serverConn)}
}

func TestConnect_EHLOWithoutSTARTTLS(t *testing.T) {
	clientConn, server := newClientPair(t)
	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		server.send("220 mail.example.com ESMTP ready")
		server.expect(t, "EHLO client.example.com")
		server.send("250-mail.example.com greets you", "250-8BITMIME", "250 AUTH LOGIN PLAIN")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := smtp.Connect(ctx, transport.NewTCP(clientConn), events.Discard{}, "mail.example.com", 25, "client.example.com")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !client.HasCapability("8BITMIME") || !client.HasCapability("AUTH") {
		t.Fatalf("capabilities not parsed")
	}
	<-serverDone
}

func TestConnect_STARTTLSOnSubmissionPort(t *testing.T) {
	clientConn, server := newClientPair(t)
	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		server.send("220 mail.example.com ESMTP ready")
		server.expect(t, "EHLO client.example.com")
		server.send("250-mail.example.com greets you", "250 STARTTLS")
		server.expect(t, "STARTTLS")
		server.send("220 ready to start TLS")
		// The test stream is not a real TLS-capable pipe, so the
		// handshake itself fails and is not exercised here; this test
		// only asserts the STARTTLS command was issued before the
		// upgrade attempt.
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := smtp.Connect(ctx, transport.NewTCP(clientConn), events.Discard{}, "mail.example.com", 587, "client.example.com")
	if err == nil {
		t.Fatalf("expected TLS handshake failure over a plain net.Pipe")
	}
	<-serverDone
}

func TestAuth_LoginFramesCredentialsAsBase64(t *testing.T) {
	clientConn, server := newClientPair(t)
	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		server.send("220 ready")
		server.expect(t, "EHLO client.example.com")
		server.send("250-hi", "250 AUTH LOGIN")
		server.expect(t, "AUTH LOGIN")
		server.send("334 VXNlcm5hbWU6")
		server.expect(t, "dXNlcg==") // base64("user")
		server.send("334 UGFzc3dvcmQ6")
		server.expect(t, "cGFzcw==") // base64("pass")
		server.send("235 Authentication succeeded")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := smtp.Connect(ctx, transport.NewTCP(clientConn), events.Discard{}, "mail.example.com", 25, "client.example.com")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := client.Auth(ctx, smtp.AuthLogin, "user", "pass"); err != nil {
		t.Fatalf("Auth: %v", err)
	}
	<-serverDone
}

func TestSend_DotStuffsLeadingDotAndAppliesTerminator(t *testing.T) {
	clientConn, server := newClientPair(t)
	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		server.send("220 ready")
		server.expect(t, "EHLO client.example.com")
		server.send("250-hi", "250-8BITMIME", "250 AUTH LOGIN")
		server.expect(t, "MAIL FROM:<sender@example.com> BODY=8BITMIME")
		server.send("250 OK")
		server.expect(t, "RCPT TO:<recipient@example.com>")
		server.send("250 OK")
		server.expect(t, "DATA")
		server.send("354 Start mail input")

		reader := bufio.NewReader(server.conn)
		var collected []string
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("reading DATA body: %v", err)
			}
			line = strings.TrimRight(line, "\r\n")
			if line == "." {
				break
			}
			collected = append(collected, line)
		}
		foundStuffed := false
		for _, l := range collected {
			if l == "..this line started with a dot" {
				foundStuffed = true
			}
		}
		if !foundStuffed {
			t.Errorf("dot-stuffing not observed in %v", collected)
		}
		server.send("250 Message accepted")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := smtp.Connect(ctx, transport.NewTCP(clientConn), events.Discard{}, "mail.example.com", 25, "client.example.com")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	msg := smtp.Message{
		From:     "sender@example.com",
		To:       []string{"recipient@example.com"},
		Subject:  "test",
		TextBody: ".this line started with a dot",
	}
	if err := client.Send(ctx, msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	<-serverDone
}
