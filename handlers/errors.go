// Package handlers implements one Handler per IMAP command family (spec
// §4.4), each a tagged-struct variant satisfying pipeline.Handler rather
// than a BaseCommandHandler subclass (spec §9 design note).
package handlers

import "fmt"

// CommandError is the kind-specific failure a handler returns when the
// server replies NO/BAD. The imap package's Session facade maps Kind
// onto its public error taxonomy (spec §7); handlers stay decoupled
// from that package to avoid an import cycle back through pipeline.
type CommandError struct {
	Kind string
	Text string
}

func (e *CommandError) Error() string {
	if e.Text == "" {
		return e.Kind
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Text)
}
