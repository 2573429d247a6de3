// Package wire implements the IMAP4rev1 wire codec: encoding a Command
// to bytes (spec §4.2) and incrementally decoding the server's byte
// stream into a sequence of typed Response events, including the
// streaming-literal contract for FETCH BODY[section].
package wire

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/kestrelmail/goimapcore/model"
)

// DefaultChunkSize bounds how many literal bytes the decoder buffers
// per Fetch.StreamingBytes event, giving the pipeline a backpressure
// knob (spec §5: "the codec must apply backpressure by pausing reads
// when the handler's buffer is above a high-water mark" — pausing reads
// is achieved by the handler not calling Next() again until it has
// drained the previous chunk).
const DefaultChunkSize = 8192

// Decoder is an incremental parser: repeated calls to Next() return one
// Response at a time, reading only as many bytes from the underlying
// reader as are needed to produce it. The parser is total: malformed
// input produces a Fatal response rather than a panic or silent drop,
// after which Next() returns io.EOF forever (spec §4.2: "subsequent
// bytes are discarded until the connection closes").
type Decoder struct {
	br        *bufio.Reader
	chunkSize int
	pending   []*Response
	fatal     bool
}

// NewDecoder wraps r. The reader is typically a transport.ByteStream,
// but any io.Reader works (tests use a plain bytes.Reader / net.Pipe).
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{br: bufio.NewReaderSize(r, 8192), chunkSize: DefaultChunkSize}
}

// Next returns the next Response, reading from the underlying stream as
// needed. A non-nil error indicates an I/O failure (the caller should
// treat the connection as lost); a Fatal-kind Response indicates a
// protocol-grammar failure the decoder recovered from by giving up on
// the stream.
func (d *Decoder) Next() (*Response, error) {
	for len(d.pending) == 0 {
		if d.fatal {
			return nil, io.EOF
		}
		if err := d.decodeOne(); err != nil {
			return nil, err
		}
	}
	r := d.pending[0]
	d.pending = d.pending[1:]
	return r, nil
}

func (d *Decoder) enqueue(r *Response) { d.pending = append(d.pending, r) }

func (d *Decoder) fatalf(format string, args ...any) {
	d.enqueue(&Response{Kind: KindFatal, Text: fmt.Sprintf(format, args...)})
	d.fatal = true
}

func (d *Decoder) readPhysicalLine() (string, error) {
	line, err := d.br.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (d *Decoder) decodeOne() error {
	line, err := d.readPhysicalLine()
	if err != nil {
		return err
	}
	if strings.TrimSpace(line) == "" {
		return nil // blank keep-alive line; produces no event, caller loops
	}

	switch {
	case strings.HasPrefix(line, "+"):
		d.enqueue(&Response{Kind: KindContinuation, Text: strings.TrimSpace(strings.TrimPrefix(line, "+"))})
		return nil
	case strings.HasPrefix(line, "* "):
		return d.decodeUntagged(strings.TrimPrefix(line, "* "))
	default:
		return d.decodeTagged(line)
	}
}

func splitFirst(s string) (first, rest string) {
	s = strings.TrimSpace(s)
	if sp := strings.IndexByte(s, ' '); sp >= 0 {
		return s[:sp], strings.TrimSpace(s[sp+1:])
	}
	return s, ""
}

func (d *Decoder) decodeTagged(line string) error {
	tag, rest := splitFirst(line)
	if tag == "" {
		d.fatalf("malformed tagged response: %q", line)
		return nil
	}
	state, text, code, err := parseConditional(rest)
	if err != nil {
		d.fatalf("malformed tagged response %q: %v", line, err)
		return nil
	}
	d.enqueue(&Response{Kind: KindTagged, Tag: tag, State: state, Text: text, Code: code})
	return nil
}

func (d *Decoder) decodeUntagged(rest string) error {
	rest = strings.TrimSpace(rest)
	first, tail := splitFirst(rest)

	if n, err := strconv.ParseUint(first, 10, 32); err == nil {
		keyword, kwRest := splitFirst(tail)
		switch strings.ToUpper(keyword) {
		case "EXISTS":
			d.enqueue(&Response{Kind: KindMailboxData, Mailbox: &MailboxData{Kind: MailboxExists, Count: uint32(n)}})
		case "RECENT":
			d.enqueue(&Response{Kind: KindMailboxData, Mailbox: &MailboxData{Kind: MailboxRecent, Count: uint32(n)}})
		case "EXPUNGE":
			d.enqueue(&Response{Kind: KindMessageExpunge, ExpungeSeq: uint32(n)})
		case "FETCH":
			return d.decodeFetch(uint32(n), kwRest)
		default:
			d.fatalf("unknown numeric untagged response: %q", rest)
		}
		return nil
	}

	switch strings.ToUpper(first) {
	case "OK", "NO", "BAD", "BYE", "PREAUTH":
		state, text, code, err := parseConditional(rest)
		if err != nil {
			d.fatalf("malformed untagged status %q: %v", rest, err)
			return nil
		}
		d.enqueue(&Response{Kind: KindConditionalState, State: state, Text: text, Code: code})
	case "CAPABILITY":
		d.enqueue(&Response{Kind: KindCapabilityData, Capabilities: strings.Fields(tail)})
	case "FLAGS":
		d.enqueue(&Response{Kind: KindMailboxData, Mailbox: &MailboxData{Kind: MailboxFlags, Flags: parseParenAtoms(tail)}})
	case "LIST", "LSUB":
		info, err := parseListLikeResponse(tail)
		if err != nil {
			d.fatalf("malformed %s response %q: %v", first, tail, err)
			return nil
		}
		kind := MailboxList
		if strings.ToUpper(first) == "LSUB" {
			kind = MailboxLsub
		}
		d.enqueue(&Response{Kind: KindMailboxData, Mailbox: &MailboxData{Kind: kind, Info: info}})
	case "STATUS":
		name, attrs, err := parseStatusResponse(tail)
		if err != nil {
			d.fatalf("malformed STATUS response %q: %v", tail, err)
			return nil
		}
		d.enqueue(&Response{Kind: KindMailboxData, Mailbox: &MailboxData{Kind: MailboxStatus, StatusName: name, StatusAttrs: attrs}})
	case "SEARCH":
		d.enqueue(&Response{Kind: KindMailboxData, Mailbox: &MailboxData{Kind: MailboxSearch, SearchIDs: parseSearchIDs(tail)}})
	case "NAMESPACE":
		d.enqueue(&Response{Kind: KindMailboxData, Mailbox: &MailboxData{Kind: MailboxNamespace, NamespaceRaw: tail}})
	case "QUOTA":
		root, resources, err := parseQuotaResponse(tail)
		if err != nil {
			d.fatalf("malformed QUOTA response %q: %v", tail, err)
			return nil
		}
		d.enqueue(&Response{Kind: KindMailboxData, Mailbox: &MailboxData{Kind: MailboxQuota, QuotaRoot: root, QuotaResources: resources}})
	case "ID":
		params, err := parseIDResponse(tail)
		if err != nil {
			d.fatalf("malformed ID response %q: %v", tail, err)
			return nil
		}
		d.enqueue(&Response{Kind: KindMailboxData, Mailbox: &MailboxData{Kind: MailboxID, IDParams: params}})
	default:
		d.fatalf("unknown untagged response: %q", rest)
	}
	return nil
}

// parseConditional parses "<STATE> [<code>] <text>" as found after a
// tag or after "* " for OK/NO/BAD/BYE/PREAUTH.
func parseConditional(rest string) (ServerState, string, *ResponseCode, error) {
	word, tail := splitFirst(rest)
	state, ok := parseState(word)
	if !ok {
		return 0, "", nil, fmt.Errorf("unknown state %q", word)
	}
	tail = strings.TrimSpace(tail)
	var code *ResponseCode
	if strings.HasPrefix(tail, "[") {
		end := strings.IndexByte(tail, ']')
		if end < 0 {
			return 0, "", nil, fmt.Errorf("unterminated response code in %q", rest)
		}
		code = parseResponseCode(tail[1:end])
		tail = strings.TrimSpace(tail[end+1:])
	}
	return state, tail, code, nil
}

func parseState(word string) (ServerState, bool) {
	switch strings.ToUpper(word) {
	case "OK":
		return StateOK, true
	case "NO":
		return StateNO, true
	case "BAD":
		return StateBAD, true
	case "BYE":
		return StateBYE, true
	case "PREAUTH":
		return StatePreAuth, true
	default:
		return 0, false
	}
}

func parseResponseCode(s string) *ResponseCode {
	name, rest := splitFirst(s)
	name = strings.ToUpper(name)
	code := &ResponseCode{Name: name}
	switch name {
	case "UIDVALIDITY", "UIDNEXT", "UNSEEN":
		if n, err := strconv.ParseUint(rest, 10, 32); err == nil {
			code.Number = uint32(n)
		}
	case "PERMANENTFLAGS":
		code.Flags = strings.Fields(strings.Trim(rest, "()"))
	case "CAPABILITY":
		code.Capabilities = strings.Fields(rest)
	}
	return code
}

func parseParenAtoms(tail string) []string {
	toks, err := parseAll(tail)
	if err != nil || len(toks) == 0 {
		return nil
	}
	list, ok := tokenListOf(toks[0])
	if !ok {
		return nil
	}
	return stringsOf(list)
}

func parseListLikeResponse(tail string) (model.MailboxInfo, error) {
	toks, err := parseAll(tail)
	if err != nil {
		return model.MailboxInfo{}, err
	}
	if len(toks) < 3 {
		return model.MailboxInfo{}, fmt.Errorf("expected 3 tokens, got %d", len(toks))
	}
	attrsList, _ := tokenListOf(toks[0])
	delim, _ := tokenString(toks[1])
	name, _ := tokenString(toks[2])

	attrs := make(map[model.MailboxAttribute]struct{}, len(attrsList))
	for _, a := range stringsOf(attrsList) {
		attrs[model.MailboxAttribute(a)] = struct{}{}
	}
	return model.MailboxInfo{Name: name, Delimiter: delim, Attributes: attrs}, nil
}

func parseStatusResponse(tail string) (string, map[string]uint32, error) {
	toks, err := parseAll(tail)
	if err != nil {
		return "", nil, err
	}
	if len(toks) < 2 {
		return "", nil, fmt.Errorf("expected name + attribute list, got %d tokens", len(toks))
	}
	name, _ := tokenString(toks[0])
	list, _ := tokenListOf(toks[1])
	attrs := make(map[string]uint32, len(list)/2)
	for i := 0; i+1 < len(list); i += 2 {
		k, _ := tokenString(list[i])
		v, _ := tokenString(list[i+1])
		n, _ := strconv.ParseUint(v, 10, 32)
		attrs[strings.ToUpper(k)] = uint32(n)
	}
	return name, attrs, nil
}

// parseQuotaResponse parses RFC 2087 "<root> (<name> <usage> <limit>)...".
func parseQuotaResponse(tail string) (string, map[string][2]uint32, error) {
	toks, err := parseAll(tail)
	if err != nil {
		return "", nil, err
	}
	if len(toks) < 2 {
		return "", nil, fmt.Errorf("expected root + resource list, got %d tokens", len(toks))
	}
	root, _ := tokenString(toks[0])
	list, _ := tokenListOf(toks[1])
	resources := make(map[string][2]uint32, len(list)/3)
	for i := 0; i+2 < len(list); i += 3 {
		name, _ := tokenString(list[i])
		usageStr, _ := tokenString(list[i+1])
		limitStr, _ := tokenString(list[i+2])
		usage, _ := strconv.ParseUint(usageStr, 10, 32)
		limit, _ := strconv.ParseUint(limitStr, 10, 32)
		resources[strings.ToUpper(name)] = [2]uint32{uint32(usage), uint32(limit)}
	}
	return root, resources, nil
}

// parseIDResponse parses RFC 2971 "(\"name\" \"value\" ...)" or "NIL".
func parseIDResponse(tail string) (map[string]string, error) {
	toks, err := parseAll(tail)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 || toks[0] == nil {
		return nil, nil
	}
	list, ok := tokenListOf(toks[0])
	if !ok {
		return nil, fmt.Errorf("expected a parenthesized list or NIL")
	}
	params := make(map[string]string, len(list)/2)
	for i := 0; i+1 < len(list); i += 2 {
		k, _ := tokenString(list[i])
		v, _ := tokenString(list[i+1])
		params[strings.ToLower(k)] = v
	}
	return params, nil
}

func parseSearchIDs(tail string) []uint32 {
	fields := strings.Fields(tail)
	out := make([]uint32, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.ParseUint(f, 10, 32)
		if err != nil {
			continue
		}
		out = append(out, uint32(n))
	}
	return out
}

// --- FETCH parsing, including the streaming-literal contract ---

var literalMarkerRe = regexp.MustCompile(`\{(\d+)\+?\}$`)

// findTrailingLiteralMarker reports whether text ends in a literal
// marker ("{n}", optionally "{n+}"), which per IMAP grammar always sits
// as the last token on a physical line. If found it returns the text
// before the attribute carrying the literal, the attribute's own label
// (e.g. "BODY[1]", "RFC822", "RFC822.TEXT"), and the literal length.
func findTrailingLiteralMarker(text string) (before, section string, length uint32, found bool) {
	trimmed := strings.TrimRight(text, " ")
	loc := literalMarkerRe.FindStringSubmatchIndex(trimmed)
	if loc == nil {
		return "", "", 0, false
	}
	n, err := strconv.ParseUint(trimmed[loc[2]:loc[3]], 10, 32)
	if err != nil {
		return "", "", 0, false
	}
	beforeMarker := strings.TrimRight(trimmed[:loc[0]], " ")
	idx := strings.LastIndexByte(beforeMarker, ' ')
	if idx < 0 {
		return "", beforeMarker, uint32(n), true
	}
	return beforeMarker[:idx], beforeMarker[idx+1:], uint32(n), true
}

// decodeFetch parses one untagged FETCH response, which may span
// multiple physical lines when it carries a BODY[section] (or RFC822*)
// literal: the attribute list is parsed incrementally, streaming literal
// bytes directly rather than buffering them, per spec §4.2's streaming
// contract.
func (d *Decoder) decodeFetch(seq uint32, attrsText string) error {
	d.enqueue(&Response{Kind: KindFetchStart, FetchSeq: seq})

	text := strings.TrimPrefix(strings.TrimSpace(attrsText), "(")
	for {
		before, section, length, found := findTrailingLiteralMarker(text)
		if !found {
			return d.parseFetchSegment(seq, text, true)
		}
		if err := d.parseFetchSegment(seq, before, false); err != nil {
			return err
		}

		d.enqueue(&Response{Kind: KindFetchStreamingBegin, FetchSeq: seq, StreamingSection: section, StreamingLength: length})
		if err := d.streamLiteral(seq, length); err != nil {
			return err
		}
		d.enqueue(&Response{Kind: KindFetchFinish, FetchSeq: seq})

		next, err := d.readPhysicalLine()
		if err != nil {
			return err
		}
		text = next
	}
}

// streamLiteral reads exactly n bytes from the underlying stream,
// emitting them in chunks no larger than d.chunkSize. Because remaining
// is decremented by exactly what was read, the sum of emitted chunk
// lengths can never exceed n — the "truncate an overflowing chunk"
// boundary case (spec §8) is structurally impossible here rather than
// reactively detected.
func (d *Decoder) streamLiteral(seq uint32, n uint32) error {
	remaining := n
	for remaining > 0 {
		want := d.chunkSize
		if uint32(want) > remaining {
			want = int(remaining)
		}
		buf := make([]byte, want)
		if _, err := io.ReadFull(d.br, buf); err != nil {
			return err
		}
		d.enqueue(&Response{Kind: KindFetchStreamingBytes, FetchSeq: seq, Chunk: buf})
		remaining -= uint32(want)
	}
	return nil
}

// parseFetchSegment parses a run of "NAME VALUE" attribute pairs.
// expectClose strips a single trailing ")" (the attribute list's
// closing paren, always the final non-whitespace byte of a FETCH
// response once any literal has been consumed).
func (d *Decoder) parseFetchSegment(seq uint32, text string, expectClose bool) error {
	text = strings.TrimSpace(text)
	if expectClose {
		text = strings.TrimSpace(strings.TrimSuffix(text, ")"))
	}
	if text == "" {
		return nil
	}

	ts := newTokenScanner(text)
	for !ts.atEnd() {
		nameTok, err := ts.next()
		if err != nil {
			d.fatalf("malformed FETCH attribute in %q: %v", text, err)
			return nil
		}
		name, ok := tokenString(nameTok)
		if !ok {
			d.fatalf("FETCH attribute name is not an atom: %v", nameTok)
			return nil
		}
		upper := strings.ToUpper(name)

		switch {
		case upper == "UID":
			v, err := ts.next()
			if err != nil {
				d.fatalf("FETCH UID missing value: %v", err)
				return nil
			}
			s, _ := tokenString(v)
			n, _ := strconv.ParseUint(s, 10, 32)
			d.enqueue(&Response{Kind: KindFetchAttribute, FetchSeq: seq, Attribute: &FetchAttribute{Kind: AttrUID, UID: uint32(n)}})
		case upper == "FLAGS":
			v, err := ts.next()
			if err != nil {
				d.fatalf("FETCH FLAGS missing value: %v", err)
				return nil
			}
			list, _ := tokenListOf(v)
			d.enqueue(&Response{Kind: KindFetchAttribute, FetchSeq: seq, Attribute: &FetchAttribute{Kind: AttrFlags, Flags: stringsOf(list)}})
		case upper == "ENVELOPE":
			v, err := ts.next()
			if err != nil {
				d.fatalf("FETCH ENVELOPE missing value: %v", err)
				return nil
			}
			list, _ := tokenListOf(v)
			d.enqueue(&Response{Kind: KindFetchAttribute, FetchSeq: seq, Attribute: &FetchAttribute{Kind: AttrEnvelope, Envelope: parseEnvelopeTokens(list)}})
		case upper == "BODYSTRUCTURE" || upper == "BODY":
			v, err := ts.next()
			if err != nil {
				d.fatalf("FETCH %s missing value: %v", upper, err)
				return nil
			}
			list, _ := tokenListOf(v)
			d.enqueue(&Response{Kind: KindFetchAttribute, FetchSeq: seq, Attribute: &FetchAttribute{Kind: AttrBodyStructure, BodyStructure: parseBodyStructureTokens(list)}})
		case upper == "INTERNALDATE":
			v, err := ts.next()
			if err != nil {
				d.fatalf("FETCH INTERNALDATE missing value: %v", err)
				return nil
			}
			s, _ := tokenString(v)
			d.enqueue(&Response{Kind: KindFetchAttribute, FetchSeq: seq, Attribute: &FetchAttribute{Kind: AttrInternalDate, InternalDate: s}})
		case upper == "RFC822.SIZE":
			v, err := ts.next()
			if err != nil {
				d.fatalf("FETCH RFC822.SIZE missing value: %v", err)
				return nil
			}
			s, _ := tokenString(v)
			n, _ := strconv.ParseUint(s, 10, 32)
			d.enqueue(&Response{Kind: KindFetchAttribute, FetchSeq: seq, Attribute: &FetchAttribute{Kind: AttrRFC822Size, Size: uint32(n)}})
		default:
			// Unrecognized attribute (e.g. a server extension like
			// X-GM-MSGID): best-effort skip a following value token so
			// parsing of the rest of the list can continue.
			if !ts.atEnd() {
				_, _ = ts.next()
			}
		}
	}
	return nil
}

func parseEnvelopeTokens(list tokenList) *Envelope {
	get := func(i int) token {
		if i < len(list) {
			return list[i]
		}
		return nil
	}
	str := func(i int) string {
		s, _ := tokenString(get(i))
		return s
	}
	addrs := func(i int) []Address {
		l, ok := tokenListOf(get(i))
		if !ok {
			return nil
		}
		out := make([]Address, 0, len(l))
		for _, t := range l {
			parts, ok := tokenListOf(t)
			if !ok || len(parts) < 4 {
				continue
			}
			name, _ := tokenString(parts[0])
			mailbox, _ := tokenString(parts[2])
			host, _ := tokenString(parts[3])
			out = append(out, Address{Name: name, Mailbox: mailbox, Host: host})
		}
		return out
	}
	return &Envelope{
		Date:      str(0),
		Subject:   str(1),
		From:      addrs(2),
		Sender:    addrs(3),
		ReplyTo:   addrs(4),
		To:        addrs(5),
		CC:        addrs(6),
		BCC:       addrs(7),
		InReplyTo: str(8),
		MessageID: str(9),
	}
}

// parseBodyStructureTokens maps the generic token tree of a
// BODYSTRUCTURE/BODY FETCH value onto model.BodyStructure (RFC 3501
// §7.4.2). Per spec §3, only id/description/encoding/size and
// disposition+filename+language are carried from the extension data;
// the text "number of lines" and message/rfc822 envelope/body-structure
// sub-fields are consumed positionally but not retained, since nothing
// in this spec's Message Model needs them.
func parseBodyStructureTokens(list tokenList) *model.BodyStructure {
	if len(list) == 0 {
		return &model.BodyStructure{}
	}
	if _, ok := tokenListOf(list[0]); ok {
		var children []*model.BodyStructure
		i := 0
		for i < len(list) {
			childList, ok := tokenListOf(list[i])
			if !ok {
				break
			}
			children = append(children, parseBodyStructureTokens(childList))
			i++
		}
		subtype := ""
		if i < len(list) {
			subtype, _ = tokenString(list[i])
		}
		return &model.BodyStructure{Multipart: true, Subtype: strings.ToLower(subtype), Children: children}
	}

	typ, _ := tokenString(list[0])
	subtype := ""
	if len(list) > 1 {
		subtype, _ = tokenString(list[1])
	}
	var params map[string]string
	if len(list) > 2 {
		if pl, ok := tokenListOf(list[2]); ok {
			params = make(map[string]string, len(pl)/2)
			for i := 0; i+1 < len(pl); i += 2 {
				k, _ := tokenString(pl[i])
				v, _ := tokenString(pl[i+1])
				params[strings.ToLower(k)] = v
			}
		}
	}
	id := strAt(list, 3)
	desc := strAt(list, 4)
	enc := strAt(list, 5)
	var size uint32
	if s := strAt(list, 6); s != "" {
		n, _ := strconv.ParseUint(s, 10, 32)
		size = uint32(n)
	}

	kind := model.PartBasic
	lowerType := strings.ToLower(typ)
	next := 7
	switch {
	case lowerType == "text":
		kind = model.PartText
		next = 8 // skip the trailing line-count field
	case lowerType == "message" && strings.ToLower(subtype) == "rfc822":
		kind = model.PartMessageRFC822
		next = len(list) // envelope/body/lines sub-fields not modeled; skip to extension probe
	}

	return &model.BodyStructure{
		Kind:      kind,
		Fields:    model.BasicFields{Type: typ, Subtype: subtype, Params: params, ID: id, Description: desc, Encoding: enc, Size: size},
		Extension: parseExtensionFields(list, next),
	}
}

func strAt(list tokenList, i int) string {
	if i >= len(list) {
		return ""
	}
	s, _ := tokenString(list[i])
	return s
}

// parseExtensionFields reads the optional BODYSTRUCTURE extension data
// starting at idx: MD5 (skipped), disposition, language.
func parseExtensionFields(list tokenList, idx int) *model.ExtensionFields {
	if idx >= len(list) {
		return nil
	}
	idx++ // MD5, not modeled
	var ext *model.ExtensionFields
	if idx < len(list) {
		if dispList, ok := tokenListOf(list[idx]); ok && len(dispList) > 0 {
			dispType, _ := tokenString(dispList[0])
			dispParams := map[string]string{}
			if len(dispList) > 1 {
				if pl, ok := tokenListOf(dispList[1]); ok {
					for i := 0; i+1 < len(pl); i += 2 {
						k, _ := tokenString(pl[i])
						v, _ := tokenString(pl[i+1])
						dispParams[strings.ToLower(k)] = v
					}
				}
			}
			ext = &model.ExtensionFields{Disposition: dispType, DispositionParams: dispParams}
		}
		idx++
	}
	if idx < len(list) {
		if langList, ok := tokenListOf(list[idx]); ok {
			if ext == nil {
				ext = &model.ExtensionFields{}
			}
			ext.Language = stringsOf(langList)
		} else if langStr, ok := tokenString(list[idx]); ok {
			if ext == nil {
				ext = &model.ExtensionFields{}
			}
			ext.Language = []string{langStr}
		}
	}
	return ext
}
