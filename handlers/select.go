package handlers

import (
	"github.com/kestrelmail/goimapcore/model"
	"github.com/kestrelmail/goimapcore/pipeline"
	"github.com/kestrelmail/goimapcore/wire"
)

// Select handles both SELECT and EXAMINE, assembling a model.MailboxStatus
// from EXISTS/RECENT/FLAGS and the UIDVALIDITY/UIDNEXT/UNSEEN/
// PERMANENTFLAGS/READ-ONLY/READ-WRITE response codes (spec §4.4 table).
type Select struct {
	status model.MailboxStatus
}

func NewSelect() *Select { return &Select{} }

func (h *Select) Process(resp *wire.Response) pipeline.Outcome {
	switch resp.Kind {
	case wire.KindMailboxData:
		switch resp.Mailbox.Kind {
		case wire.MailboxExists:
			h.status.Exists = resp.Mailbox.Count
		case wire.MailboxRecent:
			h.status.Recent = resp.Mailbox.Count
		case wire.MailboxFlags:
			h.status.AvailableFlags = toFlags(resp.Mailbox.Flags)
		}
		return pipeline.Consumed()
	case wire.KindConditionalState:
		h.applyCode(resp.Code)
		return pipeline.Consumed()
	case wire.KindTagged:
		if resp.State != wire.StateOK {
			return pipeline.Failed(&CommandError{Kind: "SelectFailed", Text: resp.Text})
		}
		h.applyCode(resp.Code)
		h.status.DeriveUnseenCount()
		return pipeline.Completed(h.status)
	default:
		return pipeline.Consumed()
	}
}

func (h *Select) applyCode(code *wire.ResponseCode) {
	if code == nil {
		return
	}
	switch code.Name {
	case "UIDVALIDITY":
		h.status.UIDValidity = code.Number
	case "UIDNEXT":
		h.status.UIDNext = code.Number
	case "UNSEEN":
		h.status.FirstUnseen = code.Number
	case "PERMANENTFLAGS":
		h.status.PermanentFlags = toFlags(code.Flags)
	case "READ-ONLY":
		h.status.ReadOnly = true
	case "READ-WRITE":
		h.status.ReadOnly = false
	}
}

func toFlags(ss []string) []model.Flag {
	out := make([]model.Flag, len(ss))
	for i, s := range ss {
		out[i] = model.Flag(s)
	}
	return out
}
