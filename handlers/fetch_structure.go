package handlers

import (
	"github.com/kestrelmail/goimapcore/model"
	"github.com/kestrelmail/goimapcore/pipeline"
	"github.com/kestrelmail/goimapcore/wire"
)

// FetchStructure implements a standalone FETCH BODYSTRUCTURE, used when a
// caller wants a message's MIME tree without the full envelope.
type FetchStructure struct {
	structure *model.BodyStructure
}

func NewFetchStructure() *FetchStructure { return &FetchStructure{} }

func (h *FetchStructure) Process(resp *wire.Response) pipeline.Outcome {
	switch resp.Kind {
	case wire.KindFetchAttribute:
		if resp.Attribute != nil && resp.Attribute.Kind == wire.AttrBodyStructure {
			h.structure = resp.Attribute.BodyStructure
		}
		return pipeline.Consumed()
	case wire.KindTagged:
		if resp.State != wire.StateOK {
			return pipeline.Failed(&CommandError{Kind: "FetchFailed", Text: resp.Text})
		}
		return pipeline.Completed(h.structure)
	default:
		return pipeline.Consumed()
	}
}
