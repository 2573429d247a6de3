package model

import "time"

// Flag is one of the IMAP system flags, or a free-form custom keyword.
type Flag string

const (
	FlagSeen     Flag = "\\Seen"
	FlagAnswered Flag = "\\Answered"
	FlagFlagged  Flag = "\\Flagged"
	FlagDeleted  Flag = "\\Deleted"
	FlagDraft    Flag = "\\Draft"
	FlagRecent   Flag = "\\Recent"
)

// MessageInfo is the envelope-derived view of a message produced by
// FetchMessageInfo (spec §4.4.a). Subject/From/To are MIME-decoded
// (RFC 2047) before being stored here.
type MessageInfo struct {
	Sequence SequenceNumber
	UID      UID // zero when not requested/known

	Subject   string
	From      string
	To        string
	CC        string
	Date      time.Time // zero value when the Date header failed to parse
	MessageID string

	Flags            map[Flag]struct{}
	AdditionalHeader map[string]string

	Structure *BodyStructure // nil unless BODYSTRUCTURE was requested
}

// HasUID reports whether the UID field was populated by the server.
func (m MessageInfo) HasUID() bool { return m.UID != 0 }

// Identifier returns the UID when present, else the sequence number,
// implementing the spec's connection-wide "prefer UID when available"
// policy (§4.5).
func (m MessageInfo) Identifier() MessageIdentifier {
	if m.HasUID() {
		return m.UID
	}
	return m.Sequence
}

// HasFlag reports whether f is set on the message.
func (m MessageInfo) HasFlag(f Flag) bool {
	_, ok := m.Flags[f]
	return ok
}

// MessagePart is one addressable, fetched leaf of a message's MIME tree
// (spec §3 MessagePart). Section follows IMAP §6.4.5 numbering: the root
// single-part message is [1]; nested MULTIPART children are
// [parent..., index_1based].
type MessagePart struct {
	Section []int

	ContentType string // "type/subtype", lowercased
	Disposition string // "attachment", "inline", or empty
	Encoding    string // Content-Transfer-Encoding, lowercased
	Filename    string
	ContentID   string
	Charset     string

	Data []byte
}

// SectionString renders Section in IMAP dotted-path form, e.g. "1.2.3".
func (p MessagePart) SectionString() string {
	return sectionString(p.Section)
}

func sectionString(section []int) string {
	if len(section) == 0 {
		return "1"
	}
	out := make([]byte, 0, len(section)*2)
	for i, n := range section {
		if i > 0 {
			out = append(out, '.')
		}
		out = appendInt(out, n)
	}
	return string(out)
}

func appendInt(b []byte, n int) []byte {
	if n == 0 {
		return append(b, '0')
	}
	start := len(b)
	for n > 0 {
		b = append(b, byte('0'+n%10))
		n /= 10
	}
	// reverse the digits just appended
	for i, j := start, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return b
}

// Message pairs envelope metadata with the fetched body parts.
type Message struct {
	Info  MessageInfo
	Parts []MessagePart
}
