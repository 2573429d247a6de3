package handlers

import (
	"github.com/kestrelmail/goimapcore/pipeline"
	"github.com/kestrelmail/goimapcore/wire"
)

// Greeting consumes the server's initial ConditionalState (or PREAUTH)
// line with no command sent (spec §4.3 dispatch_handler_only), returning
// whatever capabilities were advertised inline via a CAPABILITY response
// code.
type Greeting struct{}

func (Greeting) Process(resp *wire.Response) pipeline.Outcome {
	if resp.Kind != wire.KindConditionalState {
		return pipeline.Consumed()
	}
	switch resp.State {
	case wire.StateOK, wire.StatePreAuth:
		var caps []string
		if resp.Code != nil && resp.Code.Name == "CAPABILITY" {
			caps = resp.Code.Capabilities
		}
		return pipeline.Completed(caps)
	default:
		return pipeline.Failed(&CommandError{Kind: "GreetingFailed", Text: resp.Text})
	}
}
