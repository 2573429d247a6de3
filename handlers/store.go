package handlers

import (
	"github.com/kestrelmail/goimapcore/pipeline"
	"github.com/kestrelmail/goimapcore/wire"
)

// StoreResult is one server-confirmed flag update, reported for a
// non-.SILENT STORE via an untagged FETCH.
type StoreResult struct {
	Seq   uint32
	UID   uint32
	Flags []string
}

// Store implements STORE/UID STORE. With silent=true the server is not
// expected to echo per-message FETCH responses (FLAGS.SILENT); any that
// arrive anyway are still collected.
type Store struct {
	silent  bool
	results []StoreResult
	current *StoreResult
}

func NewStore(silent bool) *Store {
	return &Store{silent: silent}
}

func (h *Store) Process(resp *wire.Response) pipeline.Outcome {
	switch resp.Kind {
	case wire.KindFetchStart:
		h.results = append(h.results, StoreResult{Seq: resp.FetchSeq})
		h.current = &h.results[len(h.results)-1]
		return pipeline.Consumed()
	case wire.KindFetchAttribute:
		if h.current == nil || resp.Attribute == nil {
			return pipeline.Consumed()
		}
		switch resp.Attribute.Kind {
		case wire.AttrFlags:
			h.current.Flags = resp.Attribute.Flags
		case wire.AttrUID:
			h.current.UID = resp.Attribute.UID
		}
		return pipeline.Consumed()
	case wire.KindTagged:
		if resp.State != wire.StateOK {
			return pipeline.Failed(&CommandError{Kind: "StoreFailed", Text: resp.Text})
		}
		return pipeline.Completed(h.results)
	default:
		return pipeline.Consumed()
	}
}
