package mimedecode

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime/quotedprintable"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// DecodeBody applies the Content-Transfer-Encoding and charset rules of
// spec §4.6 to a fetched MessagePart's raw bytes. On any decoding
// failure the original bytes are returned unchanged — body decoding is
// always a soft failure.
func DecodeBody(data []byte, encoding, charset string) []byte {
	decoded, ok := decodeTransferEncoding(data, encoding)
	if !ok {
		decoded = data
	}
	return transcode(decoded, charset)
}

func decodeTransferEncoding(data []byte, encoding string) ([]byte, bool) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return decodeBase64(data)
	case "quoted-printable":
		return decodeQuotedPrintable(data)
	case "7bit", "8bit", "binary", "":
		if looksQuotedPrintable(data) {
			if out, ok := decodeQuotedPrintable(data); ok {
				return out, true
			}
		}
		return data, true
	default:
		return data, true
	}
}

// decodeBase64 strips embedded CR/LF before decoding, since servers and
// MUAs commonly wrap base64 bodies at 76 columns.
func decodeBase64(data []byte) ([]byte, bool) {
	stripped := bytes.NewBuffer(make([]byte, 0, len(data)))
	for _, b := range data {
		if b == '\r' || b == '\n' {
			continue
		}
		stripped.WriteByte(b)
	}
	out, err := base64.StdEncoding.DecodeString(stripped.String())
	if err != nil {
		return nil, false
	}
	return out, true
}

func decodeQuotedPrintable(data []byte) ([]byte, bool) {
	out, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, false
	}
	return out, true
}

// looksQuotedPrintable heuristically detects quoted-printable content
// in a part with no declared Content-Transfer-Encoding: the "=HH" escape
// or a soft line break ("=" at end of line).
func looksQuotedPrintable(data []byte) bool {
	for i := 0; i < len(data); i++ {
		if data[i] != '=' {
			continue
		}
		if i+1 >= len(data) {
			return false
		}
		if data[i+1] == '\n' || (i+2 < len(data) && data[i+1] == '\r' && data[i+2] == '\n') {
			return true
		}
		if i+2 < len(data) && isHexDigit(data[i+1]) && isHexDigit(data[i+2]) {
			return true
		}
	}
	return false
}

func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func transcode(data []byte, charset string) []byte {
	cs := strings.ToLower(strings.TrimSpace(charset))
	if cs == "" || cs == "utf-8" || cs == "us-ascii" || cs == "ascii" {
		if utf8.Valid(data) {
			return data
		}
		cs = "windows-1252"
	}
	enc, err := htmlindex.Get(cs)
	if err != nil || enc == nil {
		return data
	}
	out, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return data
	}
	return out
}
