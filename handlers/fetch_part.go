package handlers

import (
	"github.com/kestrelmail/goimapcore/model"
	"github.com/kestrelmail/goimapcore/pipeline"
	"github.com/kestrelmail/goimapcore/wire"
)

// FetchPart implements FETCH BODY.PEEK[section] (spec §4.4.b). When
// wantUID is non-zero the handler latches onto the untagged FETCH whose
// UID attribute matches before it starts collecting streamed bytes —
// required because a server may interleave FETCH responses for other
// messages in the same tagged result. When wantUID is zero the request
// was sequence-number addressed and every streamed chunk belongs to it.
type FetchPart struct {
	wantUID    model.UID
	latched    bool
	collecting bool
	done       bool
	buf        []byte
}

// NewFetchPart builds a FetchPart handler. Pass 0 for wantUID when the
// FETCH command was addressed by sequence number rather than UID.
func NewFetchPart(wantUID model.UID) *FetchPart {
	return &FetchPart{wantUID: wantUID, latched: wantUID == 0}
}

func (h *FetchPart) Process(resp *wire.Response) pipeline.Outcome {
	switch resp.Kind {
	case wire.KindFetchStart:
		if h.wantUID != 0 {
			h.latched = false
		}
		h.collecting = false
		return pipeline.Consumed()
	case wire.KindFetchAttribute:
		if resp.Attribute != nil && resp.Attribute.Kind == wire.AttrUID &&
			h.wantUID != 0 && model.UID(resp.Attribute.UID) == h.wantUID {
			h.latched = true
		}
		return pipeline.Consumed()
	case wire.KindFetchStreamingBegin:
		if h.latched && !h.done {
			h.collecting = true
			h.buf = make([]byte, 0, resp.StreamingLength)
		}
		return pipeline.Consumed()
	case wire.KindFetchStreamingBytes:
		if h.collecting {
			h.buf = append(h.buf, resp.Chunk...)
		}
		return pipeline.Consumed()
	case wire.KindFetchFinish:
		if h.collecting {
			h.collecting = false
			h.done = true
		}
		return pipeline.Consumed()
	case wire.KindTagged:
		if resp.State != wire.StateOK {
			return pipeline.Failed(&CommandError{Kind: "FetchFailed", Text: resp.Text})
		}
		return pipeline.Completed(h.buf)
	default:
		return pipeline.Consumed()
	}
}
