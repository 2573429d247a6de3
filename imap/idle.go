package imap

import (
	"context"
	"sync"

	"github.com/kestrelmail/goimapcore/handlers"
	"github.com/kestrelmail/goimapcore/model"
	"github.com/kestrelmail/goimapcore/wire"
)

// EventStream is the asynchronous result of Idle (spec §4.4.c): Events
// delivers server notifications in arrival order until the session
// completes the IDLE command (via Done, or the server sending BYE).
type EventStream struct {
	events <-chan model.ServerEvent
	done   func() error

	mu   sync.Mutex
	errC chan error
}

// Events returns the channel of server notifications. It is closed when
// the IDLE session ends.
func (st *EventStream) Events() <-chan model.ServerEvent { return st.events }

// Done sends the DONE terminator, ending the IDLE session. Safe to call
// more than once, and a no-op after the server has already sent BYE
// (spec scenario 5).
func (st *EventStream) Done() error { return st.done() }

// Idle starts an IDLE session on the selected mailbox and returns
// immediately with an EventStream; the IDLE command itself keeps
// running on the pipeline until EventStream.Done is called or the
// server sends BYE. Dispatching any other command on s while an
// EventStream is open fails with CommandFailed("IDLE active") — callers
// must call Done first (spec §9 open question).
func (s *Session) Idle(ctx context.Context) (*EventStream, error) {
	if !s.HasCapability("IDLE") {
		return nil, newError(ErrCommandNotSupported, "IDLE")
	}
	s.mu.Lock()
	if s.idling != nil {
		s.mu.Unlock()
		return nil, newError(ErrCommandFailed, "IDLE active")
	}
	tag, err := s.nextTag()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	h := handlers.NewIdle(s.stream, s.sink, nil)
	s.idling = h
	s.mu.Unlock()

	errC := make(chan error, 1)
	go func() {
		cmd := wire.Command{Tag: tag, Verb: "IDLE"}
		_, err := s.pl.Dispatch(ctx, cmd, h, false)
		s.mu.Lock()
		s.idling = nil
		s.mu.Unlock()
		errC <- translate(err)
	}()

	select {
	case <-h.Idling():
	case err := <-errC:
		return nil, err
	case <-ctx.Done():
	}

	return &EventStream{
		events: h.Events(),
		done: func() error {
			if werr := h.Done(); werr != nil {
				return translate(werr)
			}
			return <-errC
		},
		errC: errC,
	}, nil
}
