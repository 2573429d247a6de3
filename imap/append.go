package imap

import (
	"context"

	"github.com/kestrelmail/goimapcore/handlers"
	"github.com/kestrelmail/goimapcore/model"
	"github.com/kestrelmail/goimapcore/wire"
)

// appendMessage issues APPEND mailbox (flags) {n}<literal>, used by
// SaveAsDraft. The message bytes are sent as an IMAP literal, choosing
// the non-synchronizing LITERAL+ form when the server advertised it.
func (s *Session) appendMessage(ctx context.Context, mailbox string, raw []byte, flags []model.Flag) error {
	flagArgs := make([]wire.Arg, len(flags))
	for i, f := range flags {
		flagArgs[i] = wire.Atom(string(f))
	}
	args := []wire.Arg{wire.Quoted(mailbox), wire.List(flagArgs...), wire.Literal(raw)}
	_, err := s.dispatch(ctx, "APPEND", args, handlers.NewVoid("CommandFailed"), false)
	return err
}
