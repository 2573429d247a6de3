package smtp

import (
	"context"
	"strconv"

	"github.com/kestrelmail/goimapcore/events"
	"github.com/kestrelmail/goimapcore/transport"
)

// Dial opens a plain TCP connection to host:port and performs the
// Connect handshake, the SMTP-side counterpart of imap.Connect's
// "caller supplies an already-dialed stream" seam: callers needing
// implicit TLS (port 465) should dial via transport.DialTLS and call
// Connect directly instead.
func Dial(ctx context.Context, host string, port int, heloName string, sink events.Sink) (*Client, error) {
	addr := hostPort(host, port)
	stream, err := transport.Dial(ctx, addr)
	if err != nil {
		return nil, &Error{Kind: ErrConnectionFailed, Cause: err}
	}
	client, err := Connect(ctx, stream, sink, host, port, heloName)
	if err != nil {
		stream.Close()
		return nil, err
	}
	return client, nil
}

func hostPort(host string, port int) string {
	return host + ":" + strconv.Itoa(port)
}
