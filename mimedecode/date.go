package mimedecode

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// parenComment strips a trailing parenthesized timezone comment, e.g.
// "Mon, 2 Jan 2006 15:04:05 -0700 (PST)" -> "... -0700".
var parenComment = regexp.MustCompile(`\s*\([^()]*\)\s*$`)

// dateLayouts covers the RFC 5322 variants real mail servers send: with
// and without the leading weekday, two- and four-digit years, numeric
// and named timezones.
var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 2 Jan 2006 15:04:05",
	"2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05",
	time.RFC822Z,
	time.RFC822,
	"Mon, 2 Jan 06 15:04:05 -0700",
	"2 Jan 06 15:04:05 -0700",
}

// ParseDate parses an RFC 5322 Date header across the format variants
// listed in spec §4.4.a, stripping a trailing parenthesized timezone
// comment first. Returns an error (never panics) on unparseable input;
// callers treat that as a soft failure per spec §9's design note
// ("emit a warning event, leave the field empty").
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(parenComment.ReplaceAllString(strings.TrimSpace(raw), ""))
	if s == "" {
		return time.Time{}, fmt.Errorf("mimedecode: empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("mimedecode: unrecognized date format %q", raw)
}
