// Package smtp implements the companion SMTP submission client (spec
// §4.8): a single-connection actor offering EHLO/STARTTLS negotiation,
// AUTH LOGIN/PLAIN, and MIME message submission over an already-dialed
// transport.ByteStream, in the same connect-then-dispatch shape as the
// imap package's Session facade.
package smtp

import (
	"bufio"
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/kestrelmail/goimapcore/events"
	"github.com/kestrelmail/goimapcore/transport"
)

// CommandTimeout is the per-command response deadline (spec §4.8).
const CommandTimeout = 30 * time.Second

// Client is a single SMTP submission connection. Every method must be
// called from one goroutine at a time; the client has no internal
// dispatch queue because SMTP's command/reply grammar is strictly
// lockstep, unlike IMAP's pipelined literals.
type Client struct {
	stream  transport.ByteStream
	r       *bufio.Reader
	sink    events.Sink
	host    string
	port    int
	timeout time.Duration

	capabilities map[string]struct{}
}

// Connect performs the greeting handshake, issues EHLO, and attempts
// STARTTLS when port is 587 and the server advertised it (spec §4.8).
// heloName is the client identity sent with EHLO (a FQDN or literal
// address per RFC 5321 §4.1.1.1).
func Connect(ctx context.Context, stream transport.ByteStream, sink events.Sink, host string, port int, heloName string) (*Client, error) {
	if sink == nil {
		sink = events.Discard{}
	}
	c := &Client{
		stream:  stream,
		r:       bufio.NewReader(readerFunc(stream.Read)),
		sink:    sink,
		host:    host,
		port:    port,
		timeout: CommandTimeout,
	}

	greeting, err := c.readReplyTimed(ctx)
	if err != nil {
		return nil, err
	}
	if !greeting.positive() {
		return nil, replyError(ErrGreetingFailed, greeting)
	}

	if err := c.ehlo(ctx, heloName); err != nil {
		return nil, err
	}

	if port == 587 && c.HasCapability("STARTTLS") {
		if err := c.startTLS(ctx, host); err != nil {
			return nil, err
		}
		if err := c.ehlo(ctx, heloName); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// readerFunc adapts a transport.ByteStream's Read method to io.Reader
// so bufio.Reader can frame reply lines on top of it.
type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }

// HasCapability reports whether the last EHLO advertised name, matched
// case-insensitively.
func (c *Client) HasCapability(name string) bool {
	_, ok := c.capabilities[strings.ToUpper(name)]
	return ok
}

func (c *Client) ehlo(ctx context.Context, heloName string) error {
	rep, err := c.command(ctx, "EHLO "+heloName, false)
	if err != nil {
		return err
	}
	if !rep.positive() {
		return replyError(ErrEHLOFailed, rep)
	}
	caps := make(map[string]struct{}, len(rep.lines))
	for _, line := range rep.lines[1:] {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		caps[strings.ToUpper(fields[0])] = struct{}{}
	}
	c.capabilities = caps
	return nil
}

func (c *Client) startTLS(ctx context.Context, serverName string) error {
	rep, err := c.command(ctx, "STARTTLS", false)
	if err != nil {
		return err
	}
	if !rep.positive() {
		return replyError(ErrSTARTTLSFailed, rep)
	}
	if err := c.stream.UpgradeToTLS(ctx, serverName, nil); err != nil {
		return &Error{Kind: ErrSTARTTLSFailed, Cause: err}
	}
	c.r = bufio.NewReader(readerFunc(c.stream.Read))
	return nil
}

// Quit issues QUIT and closes the connection regardless of the reply.
func (c *Client) Quit(ctx context.Context) error {
	_, err := c.command(ctx, "QUIT", false)
	c.stream.Close()
	return err
}

// Close closes the underlying transport without issuing QUIT.
func (c *Client) Close() error {
	return c.stream.Close()
}

// command writes line with the CRLF terminator and returns the
// resulting reply, enforcing CommandTimeout. sensitive suppresses the
// outbound event payload (AUTH exchanges).
func (c *Client) command(ctx context.Context, line string, sensitive bool) (reply, error) {
	if sensitive {
		c.sink.Emit(events.Outbound, "command", events.RedactedPayload)
	} else {
		c.sink.Emit(events.Outbound, "command", line)
	}
	if err := c.stream.WriteAll([]byte(line + "\r\n")); err != nil {
		c.stream.Close()
		return reply{}, &Error{Kind: ErrConnectionLost, Cause: err}
	}
	return c.readReplyTimed(ctx)
}

func (c *Client) readReplyTimed(ctx context.Context) (reply, error) {
	type result struct {
		rep reply
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		rep, err := readReply(c.r)
		resultCh <- result{rep, err}
	}()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case res := <-resultCh:
		if res.err != nil {
			c.stream.Close()
			return reply{}, &Error{Kind: ErrConnectionLost, Cause: eris.Wrap(res.err, "smtp: reply")}
		}
		c.sink.Emit(events.Inbound, "reply", res.rep)
		return res.rep, nil
	case <-timer.C:
		c.stream.Close()
		return reply{}, newError(ErrTimeout, "command deadline exceeded")
	case <-ctx.Done():
		c.stream.Close()
		return reply{}, newError(ErrTimeout, "context cancelled")
	}
}
