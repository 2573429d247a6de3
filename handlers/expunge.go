package handlers

import (
	"github.com/kestrelmail/goimapcore/pipeline"
	"github.com/kestrelmail/goimapcore/wire"
)

// Expunge implements EXPUNGE, collecting the sequence number of each
// untagged "* n EXPUNGE" in the order the server sends them — callers
// must apply them in that order since each renumbers subsequent
// messages.
type Expunge struct {
	seqs []uint32
}

func NewExpunge() *Expunge { return &Expunge{} }

func (h *Expunge) Process(resp *wire.Response) pipeline.Outcome {
	switch resp.Kind {
	case wire.KindMessageExpunge:
		h.seqs = append(h.seqs, resp.ExpungeSeq)
		return pipeline.Consumed()
	case wire.KindTagged:
		if resp.State != wire.StateOK {
			return pipeline.Failed(&CommandError{Kind: "ExpungeFailed", Text: resp.Text})
		}
		return pipeline.Completed(h.seqs)
	default:
		return pipeline.Consumed()
	}
}
