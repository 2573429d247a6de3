package handlers

import (
	"github.com/kestrelmail/goimapcore/pipeline"
	"github.com/kestrelmail/goimapcore/wire"
)

// Void handles commands whose only meaningful outcome is success/failure
// of the tagged completion: CLOSE, UNSELECT, LOGOUT, COPY, UID COPY,
// native MOVE, APPEND, and the COPY leg of the MOVE fallback. failKind
// names the error returned on NO/BAD.
type Void struct {
	failKind string
}

func NewVoid(failKind string) *Void { return &Void{failKind: failKind} }

func (h *Void) Process(resp *wire.Response) pipeline.Outcome {
	if resp.Kind != wire.KindTagged {
		return pipeline.Consumed()
	}
	if resp.State == wire.StateOK {
		return pipeline.Completed(nil)
	}
	return pipeline.Failed(&CommandError{Kind: h.failKind, Text: resp.Text})
}
