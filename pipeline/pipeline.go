// Package pipeline implements the single-threaded, at-most-one-command-
// in-flight IMAP command pipeline (spec §4.3, §5): a mutex-guarded actor
// that serializes Dispatch callers, runs a reader loop over the wire
// codec, and routes each decoded Response to the active command's
// Handler or to an unsolicited-event sink.
package pipeline

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/kestrelmail/goimapcore/events"
	"github.com/kestrelmail/goimapcore/transport"
	"github.com/kestrelmail/goimapcore/wire"
)

// OutcomeKind discriminates the three results a Handler's Process call
// can produce (spec §4.4: "Consumed | Completed(Result) | Failed(Error)").
type OutcomeKind int

const (
	OutcomeConsumed OutcomeKind = iota
	OutcomeCompleted
	OutcomeFailed
)

// Outcome is a Handler's verdict after observing one Response.
type Outcome struct {
	Kind   OutcomeKind
	Result any
	Err    error
}

// Consumed reports that the handler processed the event but the command
// is not yet complete.
func Consumed() Outcome { return Outcome{Kind: OutcomeConsumed} }

// Completed reports successful completion with the command's result.
func Completed(result any) Outcome { return Outcome{Kind: OutcomeCompleted, Result: result} }

// Failed reports that the command has failed.
func Failed(err error) Outcome { return Outcome{Kind: OutcomeFailed, Err: err} }

// Handler is the per-command-family contract (spec §4.4). A new Handler
// value is constructed per dispatched command; handlers hold whatever
// accumulation state they need between calls to Process.
type Handler interface {
	Process(resp *wire.Response) Outcome
}

// Sentinel errors surfaced to Dispatch callers. The imap package's
// Session facade translates these into its public error taxonomy; the
// pipeline itself only needs to distinguish them internally.
var (
	ErrConnectionLost = eris.New("pipeline: connection lost")
	ErrCancelled      = eris.New("pipeline: dispatch cancelled")
	ErrTimeout        = eris.New("pipeline: command deadline exceeded")
)

type pendingCommand struct {
	tag          string
	handler      Handler
	continuation chan struct{}
	done         chan struct{}
	result       any
	err          error
}

// Pipeline owns one connection's ByteStream and wire.Decoder, and
// serializes every Dispatch call through a single active pendingCommand
// (spec §4.3's "at-most-one-command-in-flight" discipline).
type Pipeline struct {
	stream transport.ByteStream
	dec    *wire.Decoder
	sink   events.Sink

	mu          sync.Mutex
	cond        *sync.Cond
	active      *pendingCommand
	closing     bool
	terminalErr error

	// Unsolicited receives every Response observed while no command is
	// active (IDLE aside, which installs itself as the active handler
	// for the duration of the IDLE session).
	Unsolicited func(*wire.Response)
}

// New wraps stream/dec for dispatching commands and running the reader
// loop. sink receives every inbound/outbound event; pass events.Discard{}
// to suppress logging in tests.
func New(stream transport.ByteStream, dec *wire.Decoder, sink events.Sink) *Pipeline {
	p := &Pipeline{stream: stream, dec: dec, sink: sink}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Run executes the reader loop until the stream errors or a Fatal
// response is decoded. Intended to run in its own goroutine for the
// lifetime of the connection; returns the terminal error.
func (p *Pipeline) Run() error {
	for {
		resp, err := p.dec.Next()
		if err != nil {
			p.terminate(ErrConnectionLost)
			return ErrConnectionLost
		}
		p.sink.Emit(events.Inbound, resp.Kind.String(), resp)
		p.handle(resp)
		if resp.Kind == wire.KindFatal {
			p.terminate(ErrConnectionLost)
			return ErrConnectionLost
		}
		p.mu.Lock()
		done := p.terminalErr != nil
		p.mu.Unlock()
		if done {
			return p.terminalErr
		}
	}
}

func (p *Pipeline) handle(resp *wire.Response) {
	if resp.Kind == wire.KindConditionalState && resp.State == wire.StateBYE {
		p.mu.Lock()
		p.closing = true
		p.mu.Unlock()
	}

	p.mu.Lock()
	active := p.active
	p.mu.Unlock()

	if active == nil {
		if p.Unsolicited != nil {
			p.Unsolicited(resp)
		}
		return
	}

	if resp.Kind == wire.KindContinuation {
		select {
		case active.continuation <- struct{}{}:
		default:
		}
	}

	if resp.Kind == wire.KindTagged && active.tag != "" && resp.Tag != active.tag {
		p.terminate(eris.Wrapf(ErrConnectionLost, "tagged response %q does not match active command %q", resp.Tag, active.tag))
		return
	}

	outcome := active.handler.Process(resp)
	if outcome.Kind == OutcomeConsumed {
		return
	}
	p.finish(active, outcome)
}

func (p *Pipeline) finish(pc *pendingCommand, outcome Outcome) {
	p.mu.Lock()
	if p.active == pc {
		p.active = nil
	}
	p.mu.Unlock()

	pc.result = outcome.Result
	pc.err = outcome.Err
	close(pc.done)

	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()
}

// terminate transitions the connection to its terminal state: the
// active handler (if any) fails with ConnectionLost, the stream is
// closed, and all Dispatch waiters wake to observe the terminal error.
// Idempotent.
func (p *Pipeline) terminate(err error) {
	p.mu.Lock()
	if p.terminalErr != nil {
		p.mu.Unlock()
		return
	}
	p.terminalErr = err
	p.closing = true
	active := p.active
	p.active = nil
	p.cond.Broadcast()
	p.mu.Unlock()

	if active != nil {
		active.err = ErrConnectionLost
		close(active.done)
	}
	_ = p.stream.Close()
}

// Closing reports whether the connection has begun terminating (BYE
// observed or Fatal/I-O failure).
func (p *Pipeline) Closing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closing
}

// TerminalError returns the error that ended the connection, or nil if
// it is still live.
func (p *Pipeline) TerminalError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminalErr
}

// Dispatch encodes cmd, writes it to the stream, and awaits handler's
// completion, enforcing the single-active-command discipline. nonSync
// controls whether literal arguments use the non-synchronizing
// LITERAL+ form (the caller/session tracks whether the server
// advertised it).
func (p *Pipeline) Dispatch(ctx context.Context, cmd wire.Command, handler Handler, nonSync bool) (any, error) {
	p.mu.Lock()
	for p.active != nil && p.terminalErr == nil {
		p.cond.Wait()
	}
	if p.terminalErr != nil {
		p.mu.Unlock()
		return nil, ErrConnectionLost
	}
	select {
	case <-ctx.Done():
		p.mu.Unlock()
		return nil, classifyCtxErr(ctx)
	default:
	}

	pc := &pendingCommand{tag: cmd.Tag, handler: handler, continuation: make(chan struct{}, 1), done: make(chan struct{})}
	p.active = pc
	p.mu.Unlock()

	return p.writeAndAwait(ctx, cmd, pc, nonSync)
}

// DispatchHandlerOnly installs handler as the active command with no
// tag and no outbound write, for the server greeting (spec §4.3
// dispatch_handler_only).
func (p *Pipeline) DispatchHandlerOnly(ctx context.Context, handler Handler) (any, error) {
	p.mu.Lock()
	for p.active != nil && p.terminalErr == nil {
		p.cond.Wait()
	}
	if p.terminalErr != nil {
		p.mu.Unlock()
		return nil, ErrConnectionLost
	}
	pc := &pendingCommand{handler: handler, continuation: make(chan struct{}, 1), done: make(chan struct{})}
	p.active = pc
	p.mu.Unlock()

	select {
	case <-pc.done:
		return pc.result, pc.err
	case <-ctx.Done():
		return nil, classifyCtxErr(ctx)
	}
}

func (p *Pipeline) writeAndAwait(ctx context.Context, cmd wire.Command, pc *pendingCommand, nonSync bool) (any, error) {
	frames, waits := wire.Encode(cmd, wire.NonSyncLiteralsOK(nonSync))
	for i, frame := range frames {
		if cmd.Sensitive {
			p.sink.Emit(events.Outbound, "command", events.RedactedPayload)
		} else {
			p.sink.Emit(events.Outbound, "command", frame)
		}
		if err := p.stream.WriteAll(frame); err != nil {
			p.terminate(eris.Wrap(err, "pipeline: write"))
			<-pc.done
			return nil, ErrConnectionLost
		}
		if waits[i] {
			select {
			case <-pc.continuation:
			case <-pc.done:
				return pc.result, pc.err
			case <-ctx.Done():
				return nil, p.cancelInFlight(ctx, pc)
			}
		}
	}

	select {
	case <-pc.done:
		return pc.result, pc.err
	case <-ctx.Done():
		return nil, p.cancelInFlight(ctx, pc)
	}
}

// cancelInFlight implements spec §5's post-write cancellation rule:
// once bytes are on the wire we cannot unsend them, so the pipeline
// keeps draining the response in the background (the reader goroutine
// still owns pc) while this call returns immediately to its caller.
// A deadline (as opposed to a manual cancel) additionally tears down
// the connection, since its protocol state is now indeterminate.
func (p *Pipeline) cancelInFlight(ctx context.Context, pc *pendingCommand) error {
	err := classifyCtxErr(ctx)
	if err == ErrTimeout {
		p.terminate(ErrConnectionLost)
	}
	return err
}

func classifyCtxErr(ctx context.Context) error {
	if ctx.Err() == context.DeadlineExceeded {
		return ErrTimeout
	}
	return ErrCancelled
}
