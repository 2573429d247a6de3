package smtp

import (
	"context"
	"encoding/base64"
)

// AuthMechanism selects the SASL mechanism used by Auth (spec §4.8:
// "AUTH LOGIN/PLAIN" only, per RFC 4954).
type AuthMechanism int

const (
	AuthLogin AuthMechanism = iota
	AuthPlain
)

// Auth authenticates using mechanism. Credentials never reach the
// event sink: every outbound frame of the exchange is redacted.
func (c *Client) Auth(ctx context.Context, mechanism AuthMechanism, username, password string) error {
	if !c.HasCapability("AUTH") {
		return newError(ErrCommandNotSupported, "AUTH")
	}
	switch mechanism {
	case AuthPlain:
		return c.authPlain(ctx, username, password)
	default:
		return c.authLogin(ctx, username, password)
	}
}

func (c *Client) authLogin(ctx context.Context, username, password string) error {
	rep, err := c.command(ctx, "AUTH LOGIN", true)
	if err != nil {
		return err
	}
	if rep.code != 334 {
		return replyError(ErrAuthFailed, rep)
	}

	rep, err = c.command(ctx, base64.StdEncoding.EncodeToString([]byte(username)), true)
	if err != nil {
		return err
	}
	if rep.code != 334 {
		return replyError(ErrAuthFailed, rep)
	}

	rep, err = c.command(ctx, base64.StdEncoding.EncodeToString([]byte(password)), true)
	if err != nil {
		return err
	}
	if !rep.positive() {
		return replyError(ErrAuthFailed, rep)
	}
	return nil
}

func (c *Client) authPlain(ctx context.Context, username, password string) error {
	payload := "\x00" + username + "\x00" + password
	rep, err := c.command(ctx, "AUTH PLAIN "+base64.StdEncoding.EncodeToString([]byte(payload)), true)
	if err != nil {
		return err
	}
	if !rep.positive() {
		return replyError(ErrAuthFailed, rep)
	}
	return nil
}
