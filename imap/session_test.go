package imap_test

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/kestrelmail/goimapcore/events"
	"github.com/kestrelmail/goimapcore/imap"
	"github.com/kestrelmail/goimapcore/model"
	"github.com/kestrelmail/goimapcore/transport"
)

// fakeServer is a minimal scripted IMAP peer: readLine/writeLine let a
// test drive the exact wire exchange of one spec §8 scenario without a
// real server.
type fakeServer struct {
	conn net.Conn
	r    *bufio.Reader
}

func (f *fakeServer) writeLine(s string) {
	f.conn.Write([]byte(s + "\r\n"))
}

func (f *fakeServer) readLine(t *testing.T) string {
	t.Helper()
	line, err := f.r.ReadString('\n')
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	return line
}

func newSession(t *testing.T, greeting string) (*imap.Session, *fakeServer) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() { serverConn.Close() })
	server := &fakeServer{conn: serverConn, r: bufio.NewReader(serverConn)}

	greetingSent := make(chan struct{})
	go func() {
		server.writeLine(greeting)
		close(greetingSent)
	}()

	stream := transport.NewTCP(clientConn)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sess, err := imap.Connect(ctx, stream, events.Discard{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	<-greetingSent
	return sess, server
}

// Scenario 1: greeting + capabilities without a CAPABILITY round trip.
func TestSession_GreetingCapabilities(t *testing.T) {
	sess, _ := newSession(t, "* OK [CAPABILITY IMAP4rev1 IDLE UIDPLUS MOVE SPECIAL-USE] hi")

	caps := sess.Capabilities()
	want := map[string]bool{"IMAP4REV1": true, "IDLE": true, "UIDPLUS": true, "MOVE": true, "SPECIAL-USE": true}
	if len(caps) != len(want) {
		t.Fatalf("caps = %v", caps)
	}
	for _, c := range caps {
		if !want[c] {
			t.Fatalf("unexpected capability %q", c)
		}
	}
}

// Scenario 2: login + select.
func TestSession_LoginAndSelect(t *testing.T) {
	sess, server := newSession(t, "* OK IMAP4rev1 Service Ready")

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		line := server.readLine(t)
		if line != "A001 LOGIN \"user\" \"pass\"\r\n" {
			t.Errorf("unexpected LOGIN line %q", line)
		}
		server.writeLine("A001 OK [CAPABILITY IMAP4rev1 IDLE] LOGIN completed")

		line = server.readLine(t)
		if line != "A002 SELECT \"INBOX\"\r\n" {
			t.Errorf("unexpected SELECT line %q", line)
		}
		server.writeLine("* 172 EXISTS")
		server.writeLine("* 1 RECENT")
		server.writeLine("* OK [UNSEEN 12]")
		server.writeLine("* OK [UIDVALIDITY 3857529045]")
		server.writeLine("* OK [UIDNEXT 4392]")
		server.writeLine(`* FLAGS (\Answered \Flagged \Deleted \Seen \Draft)`)
		server.writeLine(`* OK [PERMANENTFLAGS (\Deleted \Seen \*)] Limited`)
		server.writeLine("A002 OK [READ-WRITE] SELECT completed")
	}()

	ctx := context.Background()
	caps, err := sess.Login(ctx, "user", "pass")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if len(caps) != 2 {
		t.Fatalf("caps = %v", caps)
	}

	status, err := sess.Select(ctx, "INBOX")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if status.Exists != 172 || status.Recent != 1 || status.FirstUnseen != 12 ||
		status.UIDValidity != 3857529045 || status.UIDNext != 4392 || status.UnseenCount != 161 || status.ReadOnly {
		t.Fatalf("unexpected status %+v", status)
	}
	<-serverDone
}

// Scenario 3: FETCH part with a streaming literal.
func TestSession_FetchPartStreamingLiteral(t *testing.T) {
	sess, server := newSession(t, "* OK ready")

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		line := server.readLine(t)
		if line != "A001 UID FETCH 4391 (BODY.PEEK[1])\r\n" {
			t.Errorf("unexpected FETCH line %q", line)
		}
		server.writeLine("* 172 FETCH (UID 4391 BODY[1] {11}")
		server.conn.Write([]byte("Hello world)\r\n"))
		server.writeLine("A001 OK")
	}()

	data, err := imap.FetchPart(context.Background(), sess, model.UID(4391), []int{1})
	if err != nil {
		t.Fatalf("FetchPart: %v", err)
	}
	if string(data) != "Hello world" {
		t.Fatalf("data = %q", data)
	}
	<-serverDone
}

// Scenario 4: MOVE falls back to COPY+STORE+EXPUNGE when MOVE is absent.
func TestSession_MoveFallback(t *testing.T) {
	sess, server := newSession(t, "* OK [CAPABILITY IMAP4rev1] ready")

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		line := server.readLine(t)
		if line != "A001 UID COPY 10:11 \"Archive\"\r\n" {
			t.Errorf("unexpected COPY line %q", line)
		}
		server.writeLine("A001 OK")

		line = server.readLine(t)
		if line != `A002 UID STORE 10:11 +FLAGS.SILENT (\Deleted)`+"\r\n" {
			t.Errorf("unexpected STORE line %q", line)
		}
		server.writeLine("A002 OK")

		line = server.readLine(t)
		if line != "A003 EXPUNGE\r\n" {
			t.Errorf("unexpected EXPUNGE line %q", line)
		}
		server.writeLine("* 10 EXPUNGE")
		server.writeLine("* 10 EXPUNGE")
		server.writeLine("A003 OK")
	}()

	set := model.SetOf(model.UID(10), model.UID(11))
	if err := imap.Move(context.Background(), sess, set, "Archive"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	<-serverDone
}

// Scenario 5: IDLE session terminated by BYE.
func TestSession_IdleWithBYE(t *testing.T) {
	sess, server := newSession(t, "* OK [CAPABILITY IMAP4rev1 IDLE] ready")

	go func() {
		line := server.readLine(t)
		if line != "A001 IDLE\r\n" {
			t.Errorf("unexpected IDLE line %q", line)
		}
		server.writeLine("+ idling")
		server.writeLine("* 173 EXISTS")
		server.writeLine("* BYE server shutting down")
	}()

	stream, err := sess.Idle(context.Background())
	if err != nil {
		t.Fatalf("Idle: %v", err)
	}

	ev := <-stream.Events()
	if ev.Kind != model.EventExists || ev.Count != 173 {
		t.Fatalf("unexpected first event %+v", ev)
	}
	ev = <-stream.Events()
	if ev.Kind != model.EventBye {
		t.Fatalf("unexpected second event %+v", ev)
	}

	if err := stream.Done(); err != nil {
		t.Fatalf("Done after BYE should not error, got %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for !sess.HasCapability("__never__") && !closingEventually(sess) && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
}

func closingEventually(sess *imap.Session) bool {
	_, err := sess.FetchCapabilities(context.Background())
	return err != nil
}
