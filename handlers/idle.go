package handlers

import (
	"sync"

	"github.com/kestrelmail/goimapcore/events"
	"github.com/kestrelmail/goimapcore/model"
	"github.com/kestrelmail/goimapcore/pipeline"
	"github.com/kestrelmail/goimapcore/transport"
	"github.com/kestrelmail/goimapcore/wire"
)

// Idle implements IDLE (spec §4.4.c). It is constructed and installed
// as the active handler for the one Dispatch call that spans the whole
// IDLE session; Events delivers asynchronous server notifications while
// that Dispatch call is still in flight, and Done triggers the DONE
// terminator that lets it complete.
type Idle struct {
	stream transport.ByteStream
	sink   events.Sink

	eventsCh chan model.ServerEvent
	idling   chan struct{}
	idleOnce sync.Once

	doneOnce sync.Once
	doneErr  error

	pending *model.MessageInfo
	warn    func(string)
}

// NewIdle builds an Idle handler. stream is used only to write the
// literal "DONE\r\n" terminator; warn receives soft-failure notices from
// envelope date parsing (may be nil).
func NewIdle(stream transport.ByteStream, sink events.Sink, warn func(string)) *Idle {
	return &Idle{
		stream:   stream,
		sink:     sink,
		eventsCh: make(chan model.ServerEvent, 32),
		idling:   make(chan struct{}),
		warn:     warn,
	}
}

// Events returns the channel of server notifications observed while
// idling. It is closed once the IDLE command completes (DONE
// acknowledged, or BYE).
func (h *Idle) Events() <-chan model.ServerEvent { return h.eventsCh }

// Idling is closed once the server has sent its continuation request,
// signalling the caller may now expect asynchronous events.
func (h *Idle) Idling() <-chan struct{} { return h.idling }

// Done sends the DONE terminator, ending the IDLE session. Safe to call
// more than once or after BYE; subsequent calls are no-ops.
func (h *Idle) Done() error {
	h.doneOnce.Do(func() {
		h.sink.Emit(events.Outbound, "command", []byte("DONE\r\n"))
		h.doneErr = h.stream.WriteAll([]byte("DONE\r\n"))
	})
	return h.doneErr
}

func (h *Idle) Process(resp *wire.Response) pipeline.Outcome {
	switch resp.Kind {
	case wire.KindContinuation:
		h.idleOnce.Do(func() { close(h.idling) })
		return pipeline.Consumed()
	case wire.KindFetchStart:
		h.flushPending()
		h.pending = &model.MessageInfo{Sequence: model.SequenceNumber(resp.FetchSeq)}
		return pipeline.Consumed()
	case wire.KindFetchAttribute:
		fillMessageInfo(h.pending, resp.Attribute, h.warn)
		return pipeline.Consumed()
	case wire.KindMailboxData:
		h.flushPending()
		h.applyMailboxData(resp.Mailbox)
		return pipeline.Consumed()
	case wire.KindMessageExpunge:
		h.flushPending()
		h.push(model.ServerEvent{Kind: model.EventExpunge, ExpungeSeq: resp.ExpungeSeq})
		return pipeline.Consumed()
	case wire.KindConditionalState:
		h.flushPending()
		if resp.State == wire.StateBYE {
			// The server has ended the IDLE command itself, so a later
			// Done must not write DONE.
			h.doneOnce.Do(func() {})
			h.push(model.ServerEvent{Kind: model.EventBye, Text: resp.Text})
			close(h.eventsCh)
			return pipeline.Completed(nil)
		}
		return pipeline.Consumed()
	case wire.KindTagged:
		h.flushPending()
		close(h.eventsCh)
		if resp.State != wire.StateOK {
			return pipeline.Failed(&CommandError{Kind: "CommandFailed", Text: resp.Text})
		}
		return pipeline.Completed(nil)
	default:
		return pipeline.Consumed()
	}
}

func (h *Idle) applyMailboxData(data *wire.MailboxData) {
	switch data.Kind {
	case wire.MailboxExists:
		h.push(model.ServerEvent{Kind: model.EventExists, Count: data.Count})
	case wire.MailboxRecent:
		h.push(model.ServerEvent{Kind: model.EventRecent, Count: data.Count})
	case wire.MailboxFlags:
		h.push(model.ServerEvent{Kind: model.EventFlags, Flags: data.Flags})
	}
}

func (h *Idle) flushPending() {
	if h.pending == nil {
		return
	}
	info := h.pending
	h.pending = nil
	h.push(model.ServerEvent{Kind: model.EventFetch, Info: info})
}

func (h *Idle) push(ev model.ServerEvent) {
	select {
	case h.eventsCh <- ev:
	default:
		// Slow consumer: drop rather than block the reader loop, which
		// would stall every other command on the connection.
	}
}
