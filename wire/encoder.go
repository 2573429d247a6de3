package wire

import (
	"bytes"
	"fmt"
	"strconv"
)

// Arg is one Command argument. Most commands build these with the
// Atom/Quoted/Literal/List helpers below rather than constructing the
// struct directly.
type Arg struct {
	atom    string
	literal []byte
	list    []Arg
	isList  bool
}

// Atom renders s unquoted, for keywords and already-validated tokens
// (mailbox flags, sequence sets, section labels).
func Atom(s string) Arg { return Arg{atom: s} }

// Quoted renders s as an IMAP quoted string if it contains no CR/LF/NUL
// and no literal-forcing byte above 0x7f, otherwise falls back to a
// literal — the teacher's eSlider client makes the same choice when
// sending search strings and mailbox names with arbitrary characters.
func Quoted(s string) Arg {
	if needsLiteral(s) {
		return Literal([]byte(s))
	}
	return Arg{atom: quoteString(s)}
}

// Literal renders b as an IMAP literal: "{n}\r\n" followed by the raw
// bytes, requiring a continuation round-trip unless LITERAL+ is in use
// (spec §4.2 Command encoding).
func Literal(b []byte) Arg { return Arg{literal: b} }

// List renders args as a parenthesized group, e.g. for STORE flag lists.
func List(args ...Arg) Arg { return Arg{list: args, isList: true} }

func needsLiteral(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\r' || c == '\n' || c == 0 || c > 0x7f {
			return true
		}
	}
	return false
}

func quoteString(s string) string {
	var b bytes.Buffer
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	b.WriteByte('"')
	return b.String()
}

// Command is one client-issued tagged command: a tag, a verb (e.g.
// "LOGIN", "UID FETCH"), and zero or more arguments.
type Command struct {
	Tag  string
	Verb string
	Args []Arg

	// Sensitive marks a command (LOGIN, AUTHENTICATE) whose argument
	// bytes must never reach the event sink verbatim (spec §6).
	Sensitive bool
}

// NonSyncLiteralsOK reports whether the encoder may use LITERAL+'s
// non-synchronizing literal form ("{n+}\r\n<bytes>" with no
// continuation wait). Callers pass the session's current capability
// set.
type NonSyncLiteralsOK bool

// Encode renders cmd as the sequence of physical lines to write to the
// wire. Each returned []byte already ends in CRLF. When a literal
// argument is present and non-synchronizing literals are not available,
// Encode ends a frame right after the literal marker; the caller (the
// pipeline) must wait for a ContinuationRequest before writing the
// remaining frames.
//
// frames[i] is one line to send; needsContinuation[i] is true when the
// pipeline must wait for "+" from the server before sending frames[i+1].
func Encode(cmd Command, nonSync NonSyncLiteralsOK) (frames [][]byte, needsContinuation []bool) {
	var cur bytes.Buffer
	cur.WriteString(cmd.Tag)
	cur.WriteByte(' ')
	cur.WriteString(cmd.Verb)

	flush := func(waitForContinuation bool) {
		cur.WriteString("\r\n")
		frames = append(frames, append([]byte(nil), cur.Bytes()...))
		needsContinuation = append(needsContinuation, waitForContinuation)
		cur.Reset()
	}

	var writeArg func(a Arg)
	writeArg = func(a Arg) {
		cur.WriteByte(' ')
		switch {
		case a.isList:
			cur.WriteByte('(')
			for i, child := range a.list {
				if i > 0 {
					cur.WriteByte(' ')
				}
				writeArgInline(&cur, child)
			}
			cur.WriteByte(')')
		case a.literal != nil:
			if bool(nonSync) {
				fmt.Fprintf(&cur, "{%d+}", len(a.literal))
				cur.WriteString("\r\n")
				cur.Write(a.literal)
			} else {
				fmt.Fprintf(&cur, "{%d}", len(a.literal))
				flush(true)
				cur.Write(a.literal)
			}
		default:
			cur.WriteString(a.atom)
		}
	}

	for _, a := range cmd.Args {
		writeArg(a)
	}
	flush(false)
	return frames, needsContinuation
}

// writeArgInline renders a inside an already-open list. Nested literals
// inside a list are rare (no command in this spec needs one) so they are
// rendered inline without a continuation pause, matching what real IMAP
// servers accept for short flag/keyword lists.
func writeArgInline(buf *bytes.Buffer, a Arg) {
	switch {
	case a.isList:
		buf.WriteByte('(')
		for i, child := range a.list {
			if i > 0 {
				buf.WriteByte(' ')
			}
			writeArgInline(buf, child)
		}
		buf.WriteByte(')')
	case a.literal != nil:
		buf.WriteString(strconv.Quote(string(a.literal)))
	default:
		buf.WriteString(a.atom)
	}
}
