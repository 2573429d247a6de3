package handlers

import (
	"github.com/kestrelmail/goimapcore/pipeline"
	"github.com/kestrelmail/goimapcore/wire"
)

// Capability handles the CAPABILITY command.
type Capability struct {
	caps []string
}

func NewCapability() *Capability { return &Capability{} }

func (h *Capability) Process(resp *wire.Response) pipeline.Outcome {
	switch resp.Kind {
	case wire.KindCapabilityData:
		h.caps = resp.Capabilities
		return pipeline.Consumed()
	case wire.KindTagged:
		if resp.State == wire.StateOK {
			return pipeline.Completed(h.caps)
		}
		return pipeline.Failed(&CommandError{Kind: "CommandFailed", Text: resp.Text})
	default:
		return pipeline.Consumed()
	}
}

// Login handles LOGIN. The server may include a CAPABILITY response
// code or a full CapabilityData line in its post-auth greeting,
// sparing the client a separate CAPABILITY round trip (spec scenario 2).
type Login struct {
	caps []string
}

func NewLogin() *Login { return &Login{} }

func (h *Login) Process(resp *wire.Response) pipeline.Outcome {
	switch resp.Kind {
	case wire.KindCapabilityData:
		h.caps = resp.Capabilities
		return pipeline.Consumed()
	case wire.KindTagged:
		if resp.State != wire.StateOK {
			return pipeline.Failed(&CommandError{Kind: "LoginFailed", Text: resp.Text})
		}
		caps := h.caps
		if caps == nil && resp.Code != nil && resp.Code.Name == "CAPABILITY" {
			caps = resp.Code.Capabilities
		}
		return pipeline.Completed(caps)
	default:
		return pipeline.Consumed()
	}
}
