package wire

import "github.com/kestrelmail/goimapcore/model"

// ResponseKind discriminates the Response variants of spec §4.2. Go has
// no sum types, so this is the tagged-struct idiom the teacher uses
// throughout its own response/envelope code.
type ResponseKind int

const (
	KindCapabilityData ResponseKind = iota
	KindConditionalState
	KindMailboxData
	KindMessageExpunge
	KindFetchStart
	KindFetchAttribute
	KindFetchStreamingBegin
	KindFetchStreamingBytes
	KindFetchFinish
	KindTagged
	KindFatal
	KindContinuation
)

func (k ResponseKind) String() string {
	switch k {
	case KindCapabilityData:
		return "CapabilityData"
	case KindConditionalState:
		return "ConditionalState"
	case KindMailboxData:
		return "MailboxData"
	case KindMessageExpunge:
		return "MessageExpunge"
	case KindFetchStart:
		return "Fetch.Start"
	case KindFetchAttribute:
		return "Fetch.SimpleAttribute"
	case KindFetchStreamingBegin:
		return "Fetch.StreamingBegin"
	case KindFetchStreamingBytes:
		return "Fetch.StreamingBytes"
	case KindFetchFinish:
		return "Fetch.Finish"
	case KindTagged:
		return "Tagged"
	case KindFatal:
		return "Fatal"
	case KindContinuation:
		return "ContinuationRequest"
	default:
		return "Unknown"
	}
}

// ServerState is the OK/NO/BAD/BYE/PREAUTH status word carried by
// ConditionalState and Tagged responses.
type ServerState int

const (
	StateOK ServerState = iota
	StateNO
	StateBAD
	StateBYE
	StatePreAuth
)

func (s ServerState) String() string {
	switch s {
	case StateOK:
		return "OK"
	case StateNO:
		return "NO"
	case StateBAD:
		return "BAD"
	case StateBYE:
		return "BYE"
	case StatePreAuth:
		return "PREAUTH"
	default:
		return "UNKNOWN"
	}
}

// ResponseCode is the bracketed response code that may follow OK/NO/BAD,
// e.g. "[UIDVALIDITY 3857529045]" or "[READ-WRITE]".
type ResponseCode struct {
	Name         string // "UIDVALIDITY", "UIDNEXT", "UNSEEN", "PERMANENTFLAGS", "READ-ONLY", "READ-WRITE", "CAPABILITY", "TRYCREATE", "ALERT", ...
	Number       uint32
	Flags        []string
	Capabilities []string
}

// MailboxDataKind discriminates the Untagged.MailboxData variants.
type MailboxDataKind int

const (
	MailboxExists MailboxDataKind = iota
	MailboxRecent
	MailboxFlags
	MailboxList
	MailboxLsub
	MailboxStatus
	MailboxSearch
	MailboxNamespace
	MailboxQuota
	MailboxID
)

// MailboxData carries one Untagged.MailboxData variant.
type MailboxData struct {
	Kind MailboxDataKind

	Count uint32 // Exists / Recent

	Flags []string // Flags

	Info model.MailboxInfo // List / Lsub

	StatusName  string            // Status
	StatusAttrs map[string]uint32 // Status

	SearchIDs []uint32 // Search

	NamespaceRaw string // Namespace — raw parenthesized text; handlers.Namespace returns it unparsed

	QuotaRoot      string             // Quota
	QuotaResources map[string][2]uint32 // Quota: resource name -> [usage, limit]

	IDParams map[string]string // ID; nil when the server sent ID NIL
}

// FetchAttributeKind discriminates Fetch.SimpleAttribute variants that
// are not streamed (i.e. everything except BODY[section]).
type FetchAttributeKind int

const (
	AttrUID FetchAttributeKind = iota
	AttrFlags
	AttrEnvelope
	AttrBodyStructure
	AttrInternalDate
	AttrRFC822Size
)

// Envelope is the parsed ENVELOPE FETCH attribute (RFC 3501 §7.4.2).
type Envelope struct {
	Date      string
	Subject   string
	From      []Address
	Sender    []Address
	ReplyTo   []Address
	To        []Address
	CC        []Address
	BCC       []Address
	InReplyTo string
	MessageID string
}

// Address is one ENVELOPE address-list entry.
type Address struct {
	Name    string
	Mailbox string
	Host    string
}

// String renders the address as "mailbox@host", or "Name <mailbox@host>"
// when a display name is present.
func (a Address) String() string {
	addr := a.Mailbox
	if a.Host != "" {
		addr += "@" + a.Host
	}
	if a.Name == "" {
		return addr
	}
	return a.Name + " <" + addr + ">"
}

// FetchAttribute carries one non-streamed Fetch.SimpleAttribute.
type FetchAttribute struct {
	Kind          FetchAttributeKind
	UID           uint32
	Flags         []string
	Envelope      *Envelope
	BodyStructure *model.BodyStructure
	InternalDate  string
	Size          uint32
}

// Response is the single event type the decoder emits. Exactly the
// fields relevant to Kind are populated; the comment above each field
// group names the kinds that use it.
type Response struct {
	Kind ResponseKind

	// Tagged / ConditionalState / Fatal / ContinuationRequest
	Tag   string
	State ServerState
	Text  string
	Code  *ResponseCode

	// CapabilityData
	Capabilities []string

	// MailboxData
	Mailbox *MailboxData

	// MessageExpunge
	ExpungeSeq uint32

	// Fetch.Start / streaming
	FetchSeq uint32

	// Fetch.SimpleAttribute
	Attribute *FetchAttribute

	// Fetch.StreamingBegin
	StreamingSection string
	StreamingLength  uint32

	// Fetch.StreamingBytes
	Chunk []byte
}
