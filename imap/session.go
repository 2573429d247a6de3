// Package imap implements the public Session facade (spec §4.7): the
// single entry point composing the wire codec, command pipeline and
// per-command handlers into connect/login/select/fetch/search/store/
// idle operations over an already-established transport.ByteStream.
package imap

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/kestrelmail/goimapcore/events"
	"github.com/kestrelmail/goimapcore/handlers"
	"github.com/kestrelmail/goimapcore/model"
	"github.com/kestrelmail/goimapcore/pipeline"
	"github.com/kestrelmail/goimapcore/transport"
	"github.com/kestrelmail/goimapcore/wire"
)

// Session owns one IMAP connection's capability set and selected-mailbox
// state, serialized by the underlying pipeline's single-active-command
// discipline (spec §5) plus a private mutex for the facade-level fields
// the pipeline doesn't know about.
type Session struct {
	pl     *pipeline.Pipeline
	stream transport.ByteStream
	sink   events.Sink
	tags   *pipeline.TagGenerator

	mu           sync.Mutex
	capabilities map[string]struct{}
	selectedName string
	idling       *handlers.Idle
}

// Connect performs the greeting handshake over an already-dialed
// ByteStream (DNS resolution and socket creation are out of scope; see
// transport.Dial/DialTLS) and starts the pipeline's reader loop.
func Connect(ctx context.Context, stream transport.ByteStream, sink events.Sink) (*Session, error) {
	if sink == nil {
		sink = events.Discard{}
	}
	dec := wire.NewDecoder(stream)
	pl := pipeline.New(stream, dec, sink)
	s := &Session{
		pl:     pl,
		stream: stream,
		sink:   sink,
		tags:   pipeline.NewTagGenerator("A", 3),
	}
	go pl.Run()

	res, err := pl.DispatchHandlerOnly(ctx, &handlers.Greeting{})
	if err != nil {
		return nil, translate(err)
	}
	if caps, ok := res.([]string); ok {
		s.setCapabilities(caps)
	}
	return s, nil
}

func (s *Session) nextTag() (string, error) {
	tag, err := s.tags.Next()
	if err != nil {
		return "", &Error{Kind: ErrConnectionLost, Text: "tag counter exhausted", Cause: err}
	}
	return tag, nil
}

func (s *Session) setCapabilities(caps []string) {
	m := make(map[string]struct{}, len(caps))
	for _, c := range caps {
		m[strings.ToUpper(c)] = struct{}{}
	}
	s.mu.Lock()
	s.capabilities = m
	s.mu.Unlock()
}

// HasCapability reports whether the server has advertised name, matched
// case-insensitively.
func (s *Session) HasCapability(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.capabilities[strings.ToUpper(name)]
	return ok
}

// Capabilities returns the last-known capability set, sorted.
func (s *Session) Capabilities() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.capabilities))
	for c := range s.capabilities {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func (s *Session) selectedMailbox() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedName
}

func (s *Session) setSelectedMailbox(name string) {
	s.mu.Lock()
	s.selectedName = name
	s.mu.Unlock()
}

// dispatch is the single path every command-issuing operation funnels
// through: it allocates the next tag, chooses the LITERAL+ encoding
// based on the current capability set, and translates pipeline/handler
// errors onto the public taxonomy.
func (s *Session) dispatch(ctx context.Context, verb string, args []wire.Arg, handler pipeline.Handler, sensitive bool) (any, error) {
	if s.pl.Closing() {
		return nil, translate(pipeline.ErrConnectionLost)
	}
	s.mu.Lock()
	idling := s.idling != nil
	s.mu.Unlock()
	if idling {
		return nil, newError(ErrCommandFailed, "IDLE active")
	}
	tag, err := s.nextTag()
	if err != nil {
		return nil, err
	}
	nonSync := s.HasCapability("LITERAL+")
	cmd := wire.Command{Tag: tag, Verb: verb, Args: args, Sensitive: sensitive}
	res, err := s.pl.Dispatch(ctx, cmd, handler, nonSync)
	if err != nil {
		return nil, translate(err)
	}
	return res, nil
}

// FetchCapabilities issues an explicit CAPABILITY command and refreshes
// the session's capability set. Scenario 1 notes that fetch_capabilities
// need not issue a command when the greeting already advertised them;
// callers that only want the cached set should call Capabilities
// instead.
func (s *Session) FetchCapabilities(ctx context.Context) ([]string, error) {
	res, err := s.dispatch(ctx, "CAPABILITY", nil, handlers.NewCapability(), false)
	if err != nil {
		return nil, err
	}
	if caps, _ := res.([]string); caps != nil {
		s.setCapabilities(caps)
	}
	return s.Capabilities(), nil
}

// Login authenticates and returns the resulting capability set (from the
// LOGIN response if the server included one, else the set from Connect).
func (s *Session) Login(ctx context.Context, username, password string) ([]string, error) {
	args := []wire.Arg{wire.Quoted(username), wire.Quoted(password)}
	res, err := s.dispatch(ctx, "LOGIN", args, handlers.NewLogin(), true)
	if err != nil {
		return nil, err
	}
	if caps, _ := res.([]string); caps != nil {
		s.setCapabilities(caps)
	}
	return s.Capabilities(), nil
}

// ID issues the RFC 2971 ID command. Pass a nil map to send "ID NIL".
func (s *Session) ID(ctx context.Context, params map[string]string) (map[string]string, error) {
	var args []wire.Arg
	if params == nil {
		args = []wire.Arg{wire.Atom("NIL")}
	} else {
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]wire.Arg, 0, len(keys)*2)
		for _, k := range keys {
			pairs = append(pairs, wire.Quoted(k), wire.Quoted(params[k]))
		}
		args = []wire.Arg{wire.List(pairs...)}
	}
	res, err := s.dispatch(ctx, "ID", args, handlers.NewID(), false)
	if err != nil {
		return nil, err
	}
	params, _ = res.(map[string]string)
	return params, nil
}

// Namespace issues NAMESPACE and returns the server's raw parenthesized
// response text unparsed (spec: only the personal-namespace
// prefix/delimiter is load-bearing; callers needing structured
// namespaces parse raw themselves, since wire's s-expression tokenizer
// is not exported).
func (s *Session) Namespace(ctx context.Context) (string, error) {
	res, err := s.dispatch(ctx, "NAMESPACE", nil, handlers.NewNamespace(), false)
	if err != nil {
		return "", err
	}
	raw, _ := res.(string)
	return raw, nil
}

// Quota issues GETQUOTAROOT against mailbox and returns the root plus
// its resource usage/limit pairs.
func (s *Session) Quota(ctx context.Context, mailbox string) (handlers.QuotaResult, error) {
	args := []wire.Arg{wire.Quoted(mailbox)}
	res, err := s.dispatch(ctx, "GETQUOTAROOT", args, handlers.NewQuota(), false)
	if err != nil {
		return handlers.QuotaResult{}, err
	}
	result, _ := res.(handlers.QuotaResult)
	return result, nil
}

// Noop issues NOOP, surfacing any mailbox-update events the server
// reports alongside it.
func (s *Session) Noop(ctx context.Context) ([]model.ServerEvent, error) {
	res, err := s.dispatch(ctx, "NOOP", nil, handlers.NewNoop(), false)
	if err != nil {
		return nil, err
	}
	events, _ := res.([]model.ServerEvent)
	return events, nil
}

// ListMailboxes issues LIST "" wildcard (default "*" for every mailbox).
func (s *Session) ListMailboxes(ctx context.Context, wildcard string) ([]model.MailboxInfo, error) {
	if wildcard == "" {
		wildcard = "*"
	}
	args := []wire.Arg{wire.Quoted(""), wire.Quoted(wildcard)}
	res, err := s.dispatch(ctx, "LIST", args, handlers.NewList(), false)
	if err != nil {
		return nil, err
	}
	infos, _ := res.([]model.MailboxInfo)
	return infos, nil
}

// ListSpecialUseMailboxes filters ListMailboxes("*") by the RFC 6154
// special-use attributes already present on the returned entries.
func (s *Session) ListSpecialUseMailboxes(ctx context.Context) ([]model.MailboxInfo, error) {
	all, err := s.ListMailboxes(ctx, "*")
	if err != nil {
		return nil, err
	}
	out := make([]model.MailboxInfo, 0, len(all))
	for _, m := range all {
		if _, ok := m.SpecialUse(); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// Select opens mailbox for read-write access.
func (s *Session) Select(ctx context.Context, mailbox string) (model.MailboxStatus, error) {
	return s.selectOrExamine(ctx, "SELECT", mailbox)
}

// Examine opens mailbox read-only.
func (s *Session) Examine(ctx context.Context, mailbox string) (model.MailboxStatus, error) {
	return s.selectOrExamine(ctx, "EXAMINE", mailbox)
}

func (s *Session) selectOrExamine(ctx context.Context, verb, mailbox string) (model.MailboxStatus, error) {
	args := []wire.Arg{wire.Quoted(mailbox)}
	res, err := s.dispatch(ctx, verb, args, handlers.NewSelect(), false)
	if err != nil {
		return model.MailboxStatus{}, err
	}
	status, _ := res.(model.MailboxStatus)
	s.setSelectedMailbox(mailbox)
	return status, nil
}

// CloseMailbox issues CLOSE, permanently removing \Deleted messages and
// returning to the authenticated state.
func (s *Session) CloseMailbox(ctx context.Context) error {
	_, err := s.dispatch(ctx, "CLOSE", nil, handlers.NewVoid("CommandFailed"), false)
	if err != nil {
		return err
	}
	s.setSelectedMailbox("")
	return nil
}

// UnselectMailbox issues RFC 3691 UNSELECT, returning to the
// authenticated state without expunging \Deleted messages. Fails with
// CommandNotSupported if the server never advertised UNSELECT.
func (s *Session) UnselectMailbox(ctx context.Context) error {
	if !s.HasCapability("UNSELECT") {
		return newError(ErrCommandNotSupported, "UNSELECT")
	}
	_, err := s.dispatch(ctx, "UNSELECT", nil, handlers.NewVoid("CommandFailed"), false)
	if err != nil {
		return err
	}
	s.setSelectedMailbox("")
	return nil
}

// Logout issues LOGOUT and waits for the tagged OK; the server will
// also send an untagged BYE, which the pipeline treats as the start of
// connection closing regardless.
func (s *Session) Logout(ctx context.Context) error {
	_, err := s.dispatch(ctx, "LOGOUT", nil, handlers.NewVoid("CommandFailed"), false)
	return err
}

// Disconnect closes the underlying transport without a protocol-level
// LOGOUT, for abrupt shutdown.
func (s *Session) Disconnect() error {
	return s.stream.Close()
}
