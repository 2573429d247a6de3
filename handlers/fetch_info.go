package handlers

import (
	"strings"

	"github.com/kestrelmail/goimapcore/mimedecode"
	"github.com/kestrelmail/goimapcore/model"
	"github.com/kestrelmail/goimapcore/pipeline"
	"github.com/kestrelmail/goimapcore/wire"
)

// FetchMessageInfo implements FETCH (UID FLAGS ENVELOPE BODYSTRUCTURE
// BODY.PEEK[HEADER]) (spec §4.4.a): Fetch.Start opens a new
// model.MessageInfo, the SimpleAttribute events that follow for the
// same sequence number fill it in, and the streamed HEADER literal is
// collected and decoded into AdditionalHeader. Subject/From/To/CC and
// header values are RFC 2047 decoded (MessageID is stored as sent);
// Date parse failures
// are soft — the field is left zero and warn is called, never a
// handler failure.
type FetchMessageInfo struct {
	messages   []model.MessageInfo
	current    *model.MessageInfo
	collecting bool
	headerBuf  []byte
	warn       func(string)
}

// NewFetchMessageInfo builds a FetchMessageInfo handler. warn may be nil,
// in which case date-parse warnings are dropped.
func NewFetchMessageInfo(warn func(string)) *FetchMessageInfo {
	if warn == nil {
		warn = func(string) {}
	}
	return &FetchMessageInfo{warn: warn}
}

func (h *FetchMessageInfo) Process(resp *wire.Response) pipeline.Outcome {
	switch resp.Kind {
	case wire.KindFetchStart:
		h.messages = append(h.messages, model.MessageInfo{
			Sequence: model.SequenceNumber(resp.FetchSeq),
			Flags:    map[model.Flag]struct{}{},
		})
		h.current = &h.messages[len(h.messages)-1]
		h.collecting = false
		h.headerBuf = nil
		return pipeline.Consumed()
	case wire.KindFetchAttribute:
		if h.current != nil {
			h.applyAttribute(resp.Attribute)
		}
		return pipeline.Consumed()
	case wire.KindFetchStreamingBegin:
		if isHeaderSection(resp.StreamingSection) {
			h.collecting = true
			h.headerBuf = make([]byte, 0, resp.StreamingLength)
		}
		return pipeline.Consumed()
	case wire.KindFetchStreamingBytes:
		if h.collecting {
			h.headerBuf = append(h.headerBuf, resp.Chunk...)
		}
		return pipeline.Consumed()
	case wire.KindFetchFinish:
		if h.collecting {
			h.collecting = false
			if h.current != nil {
				h.current.AdditionalHeader = mimedecode.DecodeHeaderBlock(h.headerBuf)
			}
			h.headerBuf = nil
		}
		return pipeline.Consumed()
	case wire.KindTagged:
		if resp.State != wire.StateOK {
			return pipeline.Failed(&CommandError{Kind: "FetchFailed", Text: resp.Text})
		}
		return pipeline.Completed(h.messages)
	default:
		return pipeline.Consumed()
	}
}

func (h *FetchMessageInfo) applyAttribute(attr *wire.FetchAttribute) {
	fillMessageInfo(h.current, attr, h.warn)
}

// isHeaderSection reports whether a streamed FETCH literal's wire
// section label is the BODY[HEADER] (or BODY.PEEK[HEADER], which the
// server echoes back as plain BODY[HEADER]) this handler asked for.
func isHeaderSection(section string) bool {
	return strings.Contains(section, "HEADER")
}

// fillMessageInfo applies one Fetch.SimpleAttribute to info, shared by
// FetchMessageInfo and Idle (which builds the same MessageInfo shape
// from unsolicited FETCH notifications).
func fillMessageInfo(info *model.MessageInfo, attr *wire.FetchAttribute, warn func(string)) {
	if attr == nil || info == nil {
		return
	}
	switch attr.Kind {
	case wire.AttrUID:
		info.UID = model.UID(attr.UID)
	case wire.AttrFlags:
		if info.Flags == nil {
			info.Flags = map[model.Flag]struct{}{}
		}
		for _, f := range attr.Flags {
			info.Flags[model.Flag(f)] = struct{}{}
		}
	case wire.AttrBodyStructure:
		info.Structure = attr.BodyStructure
	case wire.AttrEnvelope:
		applyEnvelope(info, attr.Envelope, warn)
	default:
	}
}

func applyEnvelope(info *model.MessageInfo, env *wire.Envelope, warn func(string)) {
	if env == nil {
		return
	}
	info.Subject = mimedecode.DecodeHeader(env.Subject)
	info.From = joinAddresses(env.From)
	info.To = joinAddresses(env.To)
	info.CC = joinAddresses(env.CC)
	info.MessageID = env.MessageID

	if env.Date == "" {
		return
	}
	t, err := mimedecode.ParseDate(env.Date)
	if err != nil {
		if warn != nil {
			warn("fetch: unparseable Date header " + quote(env.Date))
		}
		return
	}
	info.Date = t
}

func joinAddresses(addrs []wire.Address) string {
	if len(addrs) == 0 {
		return ""
	}
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = mimedecode.DecodeHeader(a.String())
	}
	return strings.Join(parts, ", ")
}

func quote(s string) string { return "\"" + s + "\"" }
