package wire_test

import (
	"strings"
	"testing"

	"github.com/kestrelmail/goimapcore/wire"
)

func decodeAll(t *testing.T, raw string) []*wire.Response {
	t.Helper()
	d := wire.NewDecoder(strings.NewReader(raw))
	var out []*wire.Response
	for {
		resp, err := d.Next()
		if err != nil {
			break
		}
		out = append(out, resp)
	}
	return out
}

func TestDecoder_GreetingAndCapabilities(t *testing.T) {
	raw := "* OK [CAPABILITY IMAP4rev1 IDLE LITERAL+] Ready\r\n" +
		"A001 OK [CAPABILITY IMAP4rev1 IDLE LITERAL+] CAPABILITY completed\r\n"
	resps := decodeAll(t, raw)
	if len(resps) != 2 {
		t.Fatalf("got %d responses, want 2", len(resps))
	}
	if resps[0].Kind != wire.KindConditionalState || resps[0].State != wire.StateOK {
		t.Fatalf("greeting: got %+v", resps[0])
	}
	if resps[0].Code == nil || resps[0].Code.Name != "CAPABILITY" || len(resps[0].Code.Capabilities) != 3 {
		t.Fatalf("greeting capability code: %+v", resps[0].Code)
	}
	if resps[1].Kind != wire.KindTagged || resps[1].Tag != "A001" || resps[1].State != wire.StateOK {
		t.Fatalf("tagged: got %+v", resps[1])
	}
}

func TestDecoder_LoginAndSelect(t *testing.T) {
	raw := "A001 OK LOGIN completed\r\n" +
		"* 172 EXISTS\r\n" +
		"* 1 RECENT\r\n" +
		"* FLAGS (\\Answered \\Flagged \\Deleted \\Seen \\Draft)\r\n" +
		"* OK [UNSEEN 12] Message 12 is first unseen\r\n" +
		"* OK [UIDVALIDITY 3857529045] UIDs valid\r\n" +
		"* OK [UIDNEXT 4392] Predicted next UID\r\n" +
		"A002 OK [READ-WRITE] SELECT completed\r\n"
	resps := decodeAll(t, raw)
	if len(resps) != 8 {
		t.Fatalf("got %d responses, want 8", len(resps))
	}
	exists := resps[1]
	if exists.Kind != wire.KindMailboxData || exists.Mailbox.Kind != wire.MailboxExists || exists.Mailbox.Count != 172 {
		t.Fatalf("exists: got %+v", exists)
	}
	flags := resps[3]
	if len(flags.Mailbox.Flags) != 5 {
		t.Fatalf("flags: got %+v", flags.Mailbox)
	}
	uidValidity := resps[5]
	if uidValidity.Code == nil || uidValidity.Code.Number != 3857529045 {
		t.Fatalf("uidvalidity: got %+v", uidValidity.Code)
	}
	selectDone := resps[7]
	if selectDone.Kind != wire.KindTagged || selectDone.Code == nil || selectDone.Code.Name != "READ-WRITE" {
		t.Fatalf("select done: got %+v", selectDone)
	}
}

func TestDecoder_FetchBodyStreamingLiteral(t *testing.T) {
	raw := "* 172 FETCH (UID 4391 BODY[1] {11}\r\nHello world)\r\n" +
		"A005 OK FETCH completed\r\n"
	resps := decodeAll(t, raw)

	var kinds []wire.ResponseKind
	for _, r := range resps {
		kinds = append(kinds, r.Kind)
	}
	want := []wire.ResponseKind{
		wire.KindFetchStart,
		wire.KindFetchAttribute,
		wire.KindFetchStreamingBegin,
		wire.KindFetchStreamingBytes,
		wire.KindFetchFinish,
		wire.KindTagged,
	}
	if len(kinds) != len(want) {
		t.Fatalf("got kinds %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("kind[%d] = %v, want %v", i, kinds[i], want[i])
		}
	}

	uidAttr := resps[1]
	if uidAttr.Attribute.Kind != wire.AttrUID || uidAttr.Attribute.UID != 4391 {
		t.Fatalf("uid attribute: got %+v", uidAttr.Attribute)
	}
	begin := resps[2]
	if begin.StreamingSection != "BODY[1]" || begin.StreamingLength != 11 {
		t.Fatalf("streaming begin: got %+v", begin)
	}
	bytesResp := resps[3]
	if string(bytesResp.Chunk) != "Hello world" {
		t.Fatalf("streaming bytes: got %q", bytesResp.Chunk)
	}
}

func TestDecoder_FetchLiteralThenTrailingAttribute(t *testing.T) {
	// Some servers place the literal-bearing attribute before others in
	// the same FETCH response; the tail (" UID 99)") is parsed after the
	// literal is drained.
	raw := "* 5 FETCH (BODY[TEXT] {5}\r\nhello UID 99)\r\n" +
		"A9 OK done\r\n"
	resps := decodeAll(t, raw)
	var uidSeen bool
	for _, r := range resps {
		if r.Kind == wire.KindFetchAttribute && r.Attribute.Kind == wire.AttrUID {
			uidSeen = true
			if r.Attribute.UID != 99 {
				t.Fatalf("uid = %d, want 99", r.Attribute.UID)
			}
		}
	}
	if !uidSeen {
		t.Fatalf("expected a UID attribute after the literal, got %+v", resps)
	}
}

func TestDecoder_IdleAndBye(t *testing.T) {
	raw := "+ idling\r\n" +
		"* 2 EXISTS\r\n" +
		"* BYE Autologout\r\n"
	resps := decodeAll(t, raw)
	if len(resps) != 3 {
		t.Fatalf("got %d responses, want 3", len(resps))
	}
	if resps[0].Kind != wire.KindContinuation {
		t.Fatalf("want continuation, got %+v", resps[0])
	}
	if resps[2].Kind != wire.KindConditionalState || resps[2].State != wire.StateBYE {
		t.Fatalf("want BYE, got %+v", resps[2])
	}
}

func TestDecoder_MalformedUntaggedIsFatal(t *testing.T) {
	d := wire.NewDecoder(strings.NewReader("* GARBAGE !!! not a response\r\nA1 OK done\r\n"))
	resp, err := d.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if resp.Kind != wire.KindFatal {
		t.Fatalf("want Fatal, got %+v", resp)
	}
	if _, err := d.Next(); err == nil {
		t.Fatalf("expected decoder to stop producing responses after Fatal")
	}
}

func TestDecoder_SearchResponse(t *testing.T) {
	resps := decodeAll(t, "* SEARCH 2 84 882\r\nA282 OK SEARCH completed\r\n")
	if resps[0].Mailbox.Kind != wire.MailboxSearch {
		t.Fatalf("got %+v", resps[0].Mailbox)
	}
	if len(resps[0].Mailbox.SearchIDs) != 3 || resps[0].Mailbox.SearchIDs[1] != 84 {
		t.Fatalf("search ids: %+v", resps[0].Mailbox.SearchIDs)
	}
}

func TestDecoder_ListResponse(t *testing.T) {
	resps := decodeAll(t, "* LIST (\\HasNoChildren) \"/\" \"INBOX\"\r\nA1 OK done\r\n")
	info := resps[0].Mailbox.Info
	if info.Name != "INBOX" || info.Delimiter != "/" || !info.HasAttribute("\\HasNoChildren") {
		t.Fatalf("list info: %+v", info)
	}
}
