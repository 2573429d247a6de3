package handlers

import (
	"github.com/kestrelmail/goimapcore/pipeline"
	"github.com/kestrelmail/goimapcore/wire"
)

// Search implements SEARCH and UID SEARCH; both produce the same
// MailboxData.Search wire shape, so the caller — the imap facade —
// decides whether the returned ids are sequence numbers or UIDs based
// on which command was dispatched.
type Search struct {
	ids []uint32
}

func NewSearch() *Search { return &Search{} }

func (h *Search) Process(resp *wire.Response) pipeline.Outcome {
	switch resp.Kind {
	case wire.KindMailboxData:
		if resp.Mailbox.Kind == wire.MailboxSearch {
			h.ids = append(h.ids, resp.Mailbox.SearchIDs...)
		}
		return pipeline.Consumed()
	case wire.KindTagged:
		if resp.State != wire.StateOK {
			return pipeline.Failed(&CommandError{Kind: "CommandFailed", Text: resp.Text})
		}
		return pipeline.Completed(h.ids)
	default:
		return pipeline.Consumed()
	}
}
