// Package events defines the structured event sink the pipeline and the
// SMTP client emit inbound/outbound wire activity to (spec §6 "Event
// sink"), grounded on the teacher's use of a single injected *slog.Logger
// rather than a bespoke logging abstraction.
package events

import (
	"log/slog"
)

// Direction discriminates which side of the connection produced an
// event.
type Direction int

const (
	Inbound Direction = iota
	Outbound
)

func (d Direction) String() string {
	if d == Outbound {
		return "outbound"
	}
	return "inbound"
}

// RedactedPayload replaces the payload of an outbound AUTH exchange
// (IMAP LOGIN, SMTP AUTH LOGIN/PLAIN) so credentials never reach a log
// sink.
const RedactedPayload = "[AUTH COMMAND]"

// Sink receives one structured record per wire-level event. Implementers
// must not block the pipeline's reader/writer goroutines for long;
// Default logs synchronously through its *slog.Logger at Debug level.
type Sink interface {
	Emit(dir Direction, kind string, payload any)
}

// Default wraps a *slog.Logger, matching the teacher's convention of a
// package-level structured logger threaded through constructors rather
// than a global.
type Default struct {
	Logger *slog.Logger
}

// NewDefault returns a Sink backed by logger. A nil logger falls back to
// slog.Default().
func NewDefault(logger *slog.Logger) *Default {
	if logger == nil {
		logger = slog.Default()
	}
	return &Default{Logger: logger}
}

func (d *Default) Emit(dir Direction, kind string, payload any) {
	d.Logger.Debug("wire event", slog.String("direction", dir.String()), slog.String("kind", kind), slog.Any("payload", payload))
}

// Discard drops every event; useful for tests that don't want log noise.
type Discard struct{}

func (Discard) Emit(Direction, string, any) {}
