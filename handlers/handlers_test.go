package handlers_test

import (
	"context"
	"crypto/tls"
	"testing"

	"github.com/kestrelmail/goimapcore/events"
	"github.com/kestrelmail/goimapcore/handlers"
	"github.com/kestrelmail/goimapcore/model"
	"github.com/kestrelmail/goimapcore/pipeline"
	"github.com/kestrelmail/goimapcore/wire"
)

func tagged(tag string, state wire.ServerState, text string) *wire.Response {
	return &wire.Response{Kind: wire.KindTagged, Tag: tag, State: state, Text: text}
}

func TestGreeting_OKWithCapabilities(t *testing.T) {
	h := &handlers.Greeting{}
	out := h.Process(&wire.Response{
		Kind:  wire.KindConditionalState,
		State: wire.StateOK,
		Code:  &wire.ResponseCode{Name: "CAPABILITY", Capabilities: []string{"IMAP4rev1", "IDLE"}},
	})
	if out.Kind != pipeline.OutcomeCompleted {
		t.Fatalf("expected Completed, got %v", out.Kind)
	}
	caps, ok := out.Result.([]string)
	if !ok || len(caps) != 2 {
		t.Fatalf("unexpected result %#v", out.Result)
	}
}

func TestGreeting_BYEFails(t *testing.T) {
	h := &handlers.Greeting{}
	out := h.Process(&wire.Response{Kind: wire.KindConditionalState, State: wire.StateBYE, Text: "shutting down"})
	if out.Kind != pipeline.OutcomeFailed {
		t.Fatalf("expected Failed, got %v", out.Kind)
	}
}

func TestSelect_AssemblesStatus(t *testing.T) {
	h := handlers.NewSelect()
	h.Process(&wire.Response{Kind: wire.KindMailboxData, Mailbox: &wire.MailboxData{Kind: wire.MailboxExists, Count: 172}})
	h.Process(&wire.Response{Kind: wire.KindMailboxData, Mailbox: &wire.MailboxData{Kind: wire.MailboxRecent, Count: 3}})
	h.Process(&wire.Response{Kind: wire.KindConditionalState, State: wire.StateOK, Code: &wire.ResponseCode{Name: "UIDVALIDITY", Number: 3857529045}})
	h.Process(&wire.Response{Kind: wire.KindConditionalState, State: wire.StateOK, Code: &wire.ResponseCode{Name: "UNSEEN", Number: 100}})
	out := h.Process(tagged("A001", wire.StateOK, "SELECT completed"))
	if out.Kind != pipeline.OutcomeCompleted {
		t.Fatalf("expected Completed, got %v: %v", out.Kind, out.Err)
	}
	status := out.Result.(model.MailboxStatus)
	if status.Exists != 172 || status.Recent != 3 || status.UIDValidity != 3857529045 {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.UnseenCount != 73 {
		t.Fatalf("expected derived unseen count 73, got %d", status.UnseenCount)
	}
}

func TestSelect_NOFails(t *testing.T) {
	h := handlers.NewSelect()
	out := h.Process(tagged("A001", wire.StateNO, "Mailbox does not exist"))
	if out.Kind != pipeline.OutcomeFailed {
		t.Fatalf("expected Failed, got %v", out.Kind)
	}
	cerr, ok := out.Err.(*handlers.CommandError)
	if !ok || cerr.Kind != "SelectFailed" {
		t.Fatalf("unexpected error %#v", out.Err)
	}
}

func TestVoid_CompletesOnOK(t *testing.T) {
	h := handlers.NewVoid("CommandFailed")
	out := h.Process(tagged("A001", wire.StateOK, "done"))
	if out.Kind != pipeline.OutcomeCompleted {
		t.Fatalf("expected Completed, got %v", out.Kind)
	}
}

func TestQuota_AssemblesResources(t *testing.T) {
	h := handlers.NewQuota()
	h.Process(&wire.Response{Kind: wire.KindMailboxData, Mailbox: &wire.MailboxData{
		Kind:           wire.MailboxQuota,
		QuotaRoot:      "",
		QuotaResources: map[string][2]uint32{"STORAGE": {10, 512}},
	}})
	out := h.Process(tagged("A001", wire.StateOK, ""))
	res := out.Result.(handlers.QuotaResult)
	if res.Resources["STORAGE"][1] != 512 {
		t.Fatalf("unexpected quota result %+v", res)
	}
}

func TestFetchMessageInfo_GroupsAttributesPerMessage(t *testing.T) {
	var warnings []string
	h := handlers.NewFetchMessageInfo(func(s string) { warnings = append(warnings, s) })

	h.Process(&wire.Response{Kind: wire.KindFetchStart, FetchSeq: 172})
	h.Process(&wire.Response{Kind: wire.KindFetchAttribute, FetchSeq: 172, Attribute: &wire.FetchAttribute{Kind: wire.AttrUID, UID: 4391}})
	h.Process(&wire.Response{Kind: wire.KindFetchAttribute, FetchSeq: 172, Attribute: &wire.FetchAttribute{
		Kind: wire.AttrEnvelope,
		Envelope: &wire.Envelope{
			Subject: "=?utf-8?Q?Quarterly_Report?=",
			From:    []wire.Address{{Name: "Alice", Mailbox: "alice", Host: "example.com"}},
			Date:    "Mon, 2 Jan 2006 15:04:05 -0700",
		},
	}})
	header := "X-Priority: 1\r\nSubject: =?utf-8?Q?Quarterly_Report?=\r\n\r\n"
	h.Process(&wire.Response{Kind: wire.KindFetchStreamingBegin, FetchSeq: 172, StreamingSection: "BODY[HEADER]", StreamingLength: uint32(len(header))})
	h.Process(&wire.Response{Kind: wire.KindFetchStreamingBytes, FetchSeq: 172, Chunk: []byte(header)})
	h.Process(&wire.Response{Kind: wire.KindFetchFinish, FetchSeq: 172})
	h.Process(&wire.Response{Kind: wire.KindFetchStart, FetchSeq: 173})
	h.Process(&wire.Response{Kind: wire.KindFetchAttribute, FetchSeq: 173, Attribute: &wire.FetchAttribute{
		Kind:     wire.AttrEnvelope,
		Envelope: &wire.Envelope{Subject: "unparseable", Date: "not a date"},
	}})

	out := h.Process(tagged("A001", wire.StateOK, "FETCH completed"))
	if out.Kind != pipeline.OutcomeCompleted {
		t.Fatalf("expected Completed, got %v", out.Kind)
	}
	msgs := out.Result.([]model.MessageInfo)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].UID != 4391 || msgs[0].Subject != "Quarterly Report" {
		t.Fatalf("unexpected first message %+v", msgs[0])
	}
	if msgs[0].From != "Alice <alice@example.com>" {
		t.Fatalf("unexpected From %q", msgs[0].From)
	}
	if msgs[0].Date.IsZero() {
		t.Fatalf("expected parsed date")
	}
	if msgs[0].AdditionalHeader["X-Priority"] != "1" {
		t.Fatalf("expected decoded header block, got %+v", msgs[0].AdditionalHeader)
	}
	if len(msgs[1].AdditionalHeader) != 0 {
		t.Fatalf("message without a header literal should have no AdditionalHeader, got %+v", msgs[1].AdditionalHeader)
	}
	if !msgs[1].Date.IsZero() {
		t.Fatalf("expected zero date for unparseable input")
	}
	if len(warnings) != 1 {
		t.Fatalf("expected one warning, got %v", warnings)
	}
}

func TestFetchPart_SequenceAddressedCollectsImmediately(t *testing.T) {
	h := handlers.NewFetchPart(0)
	h.Process(&wire.Response{Kind: wire.KindFetchStart, FetchSeq: 172})
	h.Process(&wire.Response{Kind: wire.KindFetchStreamingBegin, StreamingSection: "1", StreamingLength: 11})
	h.Process(&wire.Response{Kind: wire.KindFetchStreamingBytes, Chunk: []byte("Hello world")})
	h.Process(&wire.Response{Kind: wire.KindFetchFinish})
	out := h.Process(tagged("A003", wire.StateOK, "done"))
	if out.Kind != pipeline.OutcomeCompleted {
		t.Fatalf("expected Completed, got %v", out.Kind)
	}
	if string(out.Result.([]byte)) != "Hello world" {
		t.Fatalf("unexpected body %q", out.Result)
	}
}

func TestFetchPart_UIDLatchIgnoresOtherMessages(t *testing.T) {
	h := handlers.NewFetchPart(4391)

	h.Process(&wire.Response{Kind: wire.KindFetchStart, FetchSeq: 171})
	h.Process(&wire.Response{Kind: wire.KindFetchAttribute, Attribute: &wire.FetchAttribute{Kind: wire.AttrUID, UID: 4000}})
	h.Process(&wire.Response{Kind: wire.KindFetchStreamingBegin, StreamingLength: 5})
	h.Process(&wire.Response{Kind: wire.KindFetchStreamingBytes, Chunk: []byte("wrong")})
	h.Process(&wire.Response{Kind: wire.KindFetchFinish})

	h.Process(&wire.Response{Kind: wire.KindFetchStart, FetchSeq: 172})
	h.Process(&wire.Response{Kind: wire.KindFetchAttribute, Attribute: &wire.FetchAttribute{Kind: wire.AttrUID, UID: 4391}})
	h.Process(&wire.Response{Kind: wire.KindFetchStreamingBegin, StreamingLength: 11})
	h.Process(&wire.Response{Kind: wire.KindFetchStreamingBytes, Chunk: []byte("Hello world")})
	h.Process(&wire.Response{Kind: wire.KindFetchFinish})

	out := h.Process(tagged("A003", wire.StateOK, "done"))
	if string(out.Result.([]byte)) != "Hello world" {
		t.Fatalf("unexpected body %q", out.Result)
	}
}

func TestSearch_AccumulatesIDs(t *testing.T) {
	h := handlers.NewSearch()
	h.Process(&wire.Response{Kind: wire.KindMailboxData, Mailbox: &wire.MailboxData{Kind: wire.MailboxSearch, SearchIDs: []uint32{2, 84, 882}}})
	out := h.Process(tagged("A001", wire.StateOK, ""))
	ids := out.Result.([]uint32)
	if len(ids) != 3 || ids[1] != 84 {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestStore_CollectsPerMessageFlags(t *testing.T) {
	h := handlers.NewStore(false)
	h.Process(&wire.Response{Kind: wire.KindFetchStart, FetchSeq: 172})
	h.Process(&wire.Response{Kind: wire.KindFetchAttribute, Attribute: &wire.FetchAttribute{Kind: wire.AttrFlags, Flags: []string{"\\Seen", "\\Flagged"}}})
	out := h.Process(tagged("A001", wire.StateOK, ""))
	results := out.Result.([]handlers.StoreResult)
	if len(results) != 1 || results[0].Seq != 172 || len(results[0].Flags) != 2 {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestExpunge_PreservesOrder(t *testing.T) {
	h := handlers.NewExpunge()
	h.Process(&wire.Response{Kind: wire.KindMessageExpunge, ExpungeSeq: 3})
	h.Process(&wire.Response{Kind: wire.KindMessageExpunge, ExpungeSeq: 3})
	h.Process(&wire.Response{Kind: wire.KindMessageExpunge, ExpungeSeq: 5})
	out := h.Process(tagged("A001", wire.StateOK, ""))
	seqs := out.Result.([]uint32)
	if len(seqs) != 3 || seqs[0] != 3 || seqs[2] != 5 {
		t.Fatalf("unexpected seqs %v", seqs)
	}
}

type noopStream struct{}

func (noopStream) Read(buf []byte) (int, error) { return 0, nil }
func (noopStream) WriteAll(b []byte) error       { return nil }
func (noopStream) UpgradeToTLS(ctx context.Context, serverName string, cfg *tls.Config) error {
	return nil
}
func (noopStream) Close() error { return nil }

func TestIdle_DeliversEventsUntilDone(t *testing.T) {
	h := handlers.NewIdle(noopStream{}, events.Discard{}, nil)

	out := h.Process(&wire.Response{Kind: wire.KindContinuation})
	if out.Kind != pipeline.OutcomeConsumed {
		t.Fatalf("expected Consumed on continuation, got %v", out.Kind)
	}
	select {
	case <-h.Idling():
	default:
		t.Fatalf("expected Idling() to be closed after continuation")
	}

	out = h.Process(&wire.Response{Kind: wire.KindMailboxData, Mailbox: &wire.MailboxData{Kind: wire.MailboxExists, Count: 173}})
	if out.Kind != pipeline.OutcomeConsumed {
		t.Fatalf("expected Consumed, got %v", out.Kind)
	}
	ev := <-h.Events()
	if ev.Kind != model.EventExists || ev.Count != 173 {
		t.Fatalf("unexpected event %+v", ev)
	}

	out = h.Process(tagged("A009", wire.StateOK, "IDLE terminated"))
	if out.Kind != pipeline.OutcomeCompleted {
		t.Fatalf("expected Completed, got %v", out.Kind)
	}
	if _, ok := <-h.Events(); ok {
		t.Fatalf("expected Events channel to be closed")
	}
}

func TestIdle_BYEClosesStream(t *testing.T) {
	h := handlers.NewIdle(noopStream{}, events.Discard{}, nil)
	h.Process(&wire.Response{Kind: wire.KindContinuation})
	out := h.Process(&wire.Response{Kind: wire.KindConditionalState, State: wire.StateBYE, Text: "server shutting down"})
	if out.Kind != pipeline.OutcomeCompleted {
		t.Fatalf("expected Completed on BYE, got %v", out.Kind)
	}
	ev := <-h.Events()
	if ev.Kind != model.EventBye {
		t.Fatalf("expected bye event, got %+v", ev)
	}
}
