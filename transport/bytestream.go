// Package transport provides the full-duplex framed byte transport the
// wire codec and command pipeline run over (spec §4.1 ByteStream), with
// in-place TLS upgrade for STARTTLS-style insertion points.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/rotisserie/eris"
)

// ByteStream is the minimal transport contract the pipeline depends on.
// Exactly one reader goroutine and one writer goroutine may call Read
// and WriteAll respectively; neither side may be invoked concurrently
// with itself (spec §4.1 concurrency contract).
type ByteStream interface {
	// Read fills buf with at least one byte, or returns an error. Returns
	// io.EOF (wrapped) when the peer has half-closed the connection.
	Read(buf []byte) (n int, err error)

	// WriteAll writes every byte of b or returns an error. Writing after
	// the peer has closed returns ErrConnectionClosed.
	WriteAll(b []byte) error

	// UpgradeToTLS negotiates TLS in place over the existing connection,
	// used for STARTTLS and as the COMPRESS=DEFLATE insertion point.
	// Must only be called between command round-trips, never
	// concurrently with Read/WriteAll.
	UpgradeToTLS(ctx context.Context, serverName string, cfg *tls.Config) error

	// Close releases the underlying connection. Idempotent.
	Close() error
}

// ErrConnectionClosed is returned by WriteAll once the peer has closed
// its side of the stream.
var ErrConnectionClosed = eris.New("transport: connection closed")

// TCP is the default ByteStream implementation: a net.Conn that can be
// dialed in the clear and later upgraded to TLS (STARTTLS), or dialed
// directly over TLS (implicit-TLS ports).
type TCP struct {
	conn   net.Conn
	closed bool
}

// Dial opens a plain TCP connection to addr.
func Dial(ctx context.Context, addr string) (*TCP, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, eris.Wrapf(err, "transport: dial %s", addr)
	}
	return &TCP{conn: conn}, nil
}

// DialTLS opens a TCP connection and performs the TLS handshake before
// returning, for servers that only speak implicit TLS (e.g. IMAPS/993,
// SMTPS/465).
func DialTLS(ctx context.Context, addr, serverName string, cfg *tls.Config) (*TCP, error) {
	t, err := Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	if err := t.UpgradeToTLS(ctx, serverName, cfg); err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

// NewTCP wraps an already-established net.Conn, letting callers supply
// their own dialing/resolution strategy (spec: "DNS resolution and
// socket creation" are out of scope for the core — this is the seam).
func NewTCP(conn net.Conn) *TCP {
	return &TCP{conn: conn}
}

func (t *TCP) Read(buf []byte) (int, error) {
	n, err := t.conn.Read(buf)
	if err != nil {
		return n, eris.Wrap(err, "transport: read")
	}
	return n, nil
}

func (t *TCP) WriteAll(b []byte) error {
	if t.closed {
		return ErrConnectionClosed
	}
	for len(b) > 0 {
		n, err := t.conn.Write(b)
		if err != nil {
			if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) ||
				errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
				return ErrConnectionClosed
			}
			return eris.Wrap(err, "transport: write")
		}
		b = b[n:]
	}
	return nil
}

func (t *TCP) UpgradeToTLS(ctx context.Context, serverName string, cfg *tls.Config) error {
	base := cfg
	if base == nil {
		base = &tls.Config{}
	} else {
		clone := base.Clone()
		base = clone
	}
	if base.ServerName == "" {
		base.ServerName = serverName
	}

	tlsConn := tls.Client(t.conn, base)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return eris.Wrapf(err, "transport: TLS handshake with %s", serverName)
	}
	t.conn = tlsConn
	return nil
}

func (t *TCP) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}
