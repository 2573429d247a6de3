package smtp

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// reply is one fully-accumulated SMTP reply: a 3-digit code plus the
// concatenated text of every continuation line (spec §4.8 "multi-line
// reply accumulation"), grounded on the continuation-byte convention
// the teacher's wire decoder applies to IMAP literals.
type reply struct {
	code  int
	lines []string
}

func (r reply) text() string { return strings.Join(r.lines, " ") }

// positive reports whether code is a 2xx or 3xx success/continue reply.
func (r reply) positive() bool { return r.code >= 200 && r.code < 400 }

// readReply reads lines from r until a terminator line ("NNN " rather
// than "NNN-") is seen, per RFC 5321 §4.2.1.
func readReply(r *bufio.Reader) (reply, error) {
	var rep reply
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return reply{}, eris.Wrap(err, "smtp: read reply")
		}
		line = strings.TrimRight(line, "\r\n")
		if len(line) < 4 {
			return reply{}, eris.Errorf("smtp: malformed reply line %q", line)
		}
		code, err := strconv.Atoi(line[:3])
		if err != nil {
			return reply{}, eris.Wrapf(err, "smtp: malformed reply code %q", line[:3])
		}
		rep.code = code
		rep.lines = append(rep.lines, strings.TrimSpace(line[4:]))
		switch line[3] {
		case '-':
			continue
		case ' ':
			return rep, nil
		default:
			return reply{}, eris.Errorf("smtp: malformed reply separator in %q", line)
		}
	}
}
