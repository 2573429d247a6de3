package handlers

import (
	"github.com/kestrelmail/goimapcore/model"
	"github.com/kestrelmail/goimapcore/pipeline"
	"github.com/kestrelmail/goimapcore/wire"
)

// List handles both LIST and LSUB, accumulating one model.MailboxInfo
// per untagged mailbox-data entry.
type List struct {
	infos []model.MailboxInfo
}

func NewList() *List { return &List{} }

func (h *List) Process(resp *wire.Response) pipeline.Outcome {
	switch resp.Kind {
	case wire.KindMailboxData:
		if resp.Mailbox.Kind == wire.MailboxList || resp.Mailbox.Kind == wire.MailboxLsub {
			h.infos = append(h.infos, resp.Mailbox.Info)
		}
		return pipeline.Consumed()
	case wire.KindTagged:
		if resp.State == wire.StateOK {
			return pipeline.Completed(h.infos)
		}
		return pipeline.Failed(&CommandError{Kind: "CommandFailed", Text: resp.Text})
	default:
		return pipeline.Consumed()
	}
}

// Namespace handles the NAMESPACE command, returning the raw
// parenthesized namespace text for the caller to interpret (only the
// personal-namespace prefix/delimiter is load-bearing for this spec).
type Namespace struct {
	raw string
}

func NewNamespace() *Namespace { return &Namespace{} }

func (h *Namespace) Process(resp *wire.Response) pipeline.Outcome {
	switch resp.Kind {
	case wire.KindMailboxData:
		if resp.Mailbox.Kind == wire.MailboxNamespace {
			h.raw = resp.Mailbox.NamespaceRaw
		}
		return pipeline.Consumed()
	case wire.KindTagged:
		if resp.State == wire.StateOK {
			return pipeline.Completed(h.raw)
		}
		return pipeline.Failed(&CommandError{Kind: "CommandFailed", Text: resp.Text})
	default:
		return pipeline.Consumed()
	}
}

// Quota handles the GETQUOTA/GETQUOTAROOT command (RFC 2087).
type Quota struct {
	root      string
	resources map[string][2]uint32
}

func NewQuota() *Quota { return &Quota{} }

func (h *Quota) Process(resp *wire.Response) pipeline.Outcome {
	switch resp.Kind {
	case wire.KindMailboxData:
		if resp.Mailbox.Kind == wire.MailboxQuota {
			h.root = resp.Mailbox.QuotaRoot
			h.resources = resp.Mailbox.QuotaResources
		}
		return pipeline.Consumed()
	case wire.KindTagged:
		if resp.State == wire.StateOK {
			return pipeline.Completed(QuotaResult{Root: h.root, Resources: h.resources})
		}
		return pipeline.Failed(&CommandError{Kind: "CommandFailed", Text: resp.Text})
	default:
		return pipeline.Consumed()
	}
}

// QuotaResult is the handler's completion value for Quota.
type QuotaResult struct {
	Root      string
	Resources map[string][2]uint32 // name -> [usage, limit]
}

// ID handles the RFC 2971 ID command.
type ID struct {
	params map[string]string
}

func NewID() *ID { return &ID{} }

func (h *ID) Process(resp *wire.Response) pipeline.Outcome {
	switch resp.Kind {
	case wire.KindMailboxData:
		if resp.Mailbox.Kind == wire.MailboxID {
			h.params = resp.Mailbox.IDParams
		}
		return pipeline.Consumed()
	case wire.KindTagged:
		if resp.State == wire.StateOK {
			return pipeline.Completed(h.params)
		}
		return pipeline.Failed(&CommandError{Kind: "CommandFailed", Text: resp.Text})
	default:
		return pipeline.Consumed()
	}
}

// Noop handles NOOP, surfacing whatever mailbox-update events arrived
// alongside the tagged completion (spec §4.4 table: "Returns typed
// response").
type Noop struct {
	events []model.ServerEvent
}

func NewNoop() *Noop { return &Noop{} }

func (h *Noop) Process(resp *wire.Response) pipeline.Outcome {
	switch resp.Kind {
	case wire.KindMailboxData:
		switch resp.Mailbox.Kind {
		case wire.MailboxExists:
			h.events = append(h.events, model.ServerEvent{Kind: model.EventExists, Count: resp.Mailbox.Count})
		case wire.MailboxRecent:
			h.events = append(h.events, model.ServerEvent{Kind: model.EventRecent, Count: resp.Mailbox.Count})
		case wire.MailboxFlags:
			h.events = append(h.events, model.ServerEvent{Kind: model.EventFlags, Flags: resp.Mailbox.Flags})
		}
		return pipeline.Consumed()
	case wire.KindMessageExpunge:
		h.events = append(h.events, model.ServerEvent{Kind: model.EventExpunge, ExpungeSeq: resp.ExpungeSeq})
		return pipeline.Consumed()
	case wire.KindTagged:
		if resp.State == wire.StateOK {
			return pipeline.Completed(h.events)
		}
		return pipeline.Failed(&CommandError{Kind: "CommandFailed", Text: resp.Text})
	default:
		return pipeline.Consumed()
	}
}
