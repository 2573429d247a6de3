// Package mimedecode implements the header/date/body decoding rules of
// spec §4.6, grounded on the teacher's eml header-and-body decoder:
// RFC 2047 encoded words via mime.WordDecoder with an
// htmlindex/transform CharsetReader, raw header blocks via
// net/mail.ReadMessage (as the teacher's eml parser does), and
// quoted-printable/base64 body decoding with a best-effort UTF-8
// fallback for undeclared charsets.
package mimedecode

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/mail"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

func newWordDecoder() *mime.WordDecoder {
	return &mime.WordDecoder{CharsetReader: charsetReader}
}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	cs := strings.ToLower(strings.TrimSpace(charset))
	if cs == "" || cs == "utf-8" || cs == "us-ascii" || cs == "ascii" {
		return input, nil
	}
	enc, err := htmlindex.Get(cs)
	if err != nil {
		return nil, fmt.Errorf("mimedecode: unsupported charset %q: %w", charset, err)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

// DecodeHeader decodes RFC 2047 encoded words in raw (adjacent encoded
// words are concatenated by Go's mime.WordDecoder per RFC 2047 §2).
// On any decode failure the original string is returned unchanged —
// headers must never fail a fetch.
func DecodeHeader(raw string) string {
	if raw == "" {
		return raw
	}
	d := newWordDecoder()
	decoded, err := d.DecodeHeader(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// DecodeHeaderBlock parses a raw RFC 5322 header block — as returned
// by an IMAP BODY.PEEK[HEADER] literal — into a field-name to decoded-
// value map, following the same mail.ReadMessage/textproto.MIMEHeader
// approach the teacher's eml parser uses for on-disk messages. Field
// names are canonicalized by net/mail (e.g. "message-id" ->
// "Message-Id"); when a field repeats, only the first value is kept.
// A malformed block yields an empty map rather than a fetch failure.
func DecodeHeaderBlock(raw []byte) map[string]string {
	out := map[string]string{}
	msg, err := mail.ReadMessage(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return out
	}
	for name, values := range msg.Header {
		if len(values) == 0 {
			continue
		}
		out[name] = DecodeHeader(values[0])
	}
	return out
}
