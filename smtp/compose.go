package smtp

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime/quotedprintable"
	"strings"
	"time"

	"github.com/google/uuid"
)

// newBoundary generates a MIME multipart boundary, following the
// teacher's convention of a UUIDv7 for time-ordered identifiers,
// falling back to v4 if the clock-sequence generator errors.
func newBoundary() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "b-" + uuid.New().String()
	}
	return "b-" + id.String()
}

// NewMessageID synthesizes an RFC 5322 Message-ID value (without the
// surrounding angle brackets) for an outgoing message.
func NewMessageID(domain string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return fmt.Sprintf("%s@%s", id.String(), domain)
}

// Attachment is one file attached to a Message (spec §4.8 MIME
// composition).
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
	ContentID   string // non-empty marks this as an inline part referenced by cid:
}

// Message is an outgoing message before MIME composition. From/To/Cc
// carry already-formatted RFC 5322 address strings.
type Message struct {
	From        string
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	TextBody    string
	HTMLBody    string
	Attachments []Attachment
	MessageID   string
	Headers     map[string]string
}

// recipients returns every To/Cc/Bcc address, the RCPT TO envelope
// list (Bcc addresses are not written into any header).
func (m Message) recipients() []string {
	out := make([]string, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	out = append(out, m.To...)
	out = append(out, m.Cc...)
	out = append(out, m.Bcc...)
	return out
}

// build renders m into a complete RFC 5322 message ready for DATA
// submission (spec §4.8 "MIME composition"):
//   - attachments present: multipart/mixed, UTF-8 text part(s) first,
//     then base64-encoded attachment parts with Content-Disposition.
//   - both text and HTML bodies present: multipart/alternative wraps
//     them, nested inside multipart/mixed when attachments are also
//     present.
//   - otherwise: a single text/plain (or text/html) part.
func (m Message) build() []byte {
	var buf bytes.Buffer
	m.writeHeaders(&buf)

	hasAttachments := len(m.Attachments) > 0
	hasAlternative := m.TextBody != "" && m.HTMLBody != ""

	switch {
	case hasAttachments:
		boundary := newBoundary()
		fmt.Fprintf(&buf, "MIME-Version: 1.0\r\nContent-Type: multipart/mixed; boundary=\"%s\"\r\n\r\n", boundary)
		fmt.Fprintf(&buf, "--%s\r\n", boundary)
		if hasAlternative {
			writeAlternativePart(&buf, m)
		} else {
			writeTextPart(&buf, textPartType(m), textPartBody(m))
		}
		for _, att := range m.Attachments {
			fmt.Fprintf(&buf, "\r\n--%s\r\n", boundary)
			writeAttachmentPart(&buf, att)
		}
		fmt.Fprintf(&buf, "\r\n--%s--\r\n", boundary)
	case hasAlternative:
		buf.WriteString("MIME-Version: 1.0\r\n")
		writeAlternativePart(&buf, m)
	default:
		buf.WriteString("MIME-Version: 1.0\r\n")
		writeTextPart(&buf, textPartType(m), textPartBody(m))
	}

	return buf.Bytes()
}

func textPartType(m Message) string {
	if m.TextBody == "" && m.HTMLBody != "" {
		return "text/html"
	}
	return "text/plain"
}

func textPartBody(m Message) string {
	if m.TextBody == "" {
		return m.HTMLBody
	}
	return m.TextBody
}

func writeAlternativePart(buf *bytes.Buffer, m Message) {
	boundary := newBoundary()
	fmt.Fprintf(buf, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n\r\n", boundary)
	fmt.Fprintf(buf, "--%s\r\n", boundary)
	writeTextPart(buf, "text/plain", m.TextBody)
	fmt.Fprintf(buf, "\r\n--%s\r\n", boundary)
	writeTextPart(buf, "text/html", m.HTMLBody)
	fmt.Fprintf(buf, "\r\n--%s--\r\n", boundary)
}

func writeTextPart(buf *bytes.Buffer, contentType, body string) {
	fmt.Fprintf(buf, "Content-Type: %s; charset=\"UTF-8\"\r\nContent-Transfer-Encoding: quoted-printable\r\n\r\n", contentType)
	qp := quotedprintable.NewWriter(buf)
	qp.Write([]byte(body))
	qp.Close()
}

func writeAttachmentPart(buf *bytes.Buffer, att Attachment) {
	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	fmt.Fprintf(buf, "Content-Type: %s; name=\"%s\"\r\n", contentType, att.Filename)
	fmt.Fprintf(buf, "Content-Transfer-Encoding: base64\r\n")
	if att.ContentID != "" {
		fmt.Fprintf(buf, "Content-ID: <%s>\r\nContent-Disposition: inline; filename=\"%s\"\r\n", att.ContentID, att.Filename)
	} else {
		fmt.Fprintf(buf, "Content-Disposition: attachment; filename=\"%s\"\r\n", att.Filename)
	}
	buf.WriteString("\r\n")
	encoded := base64.StdEncoding.EncodeToString(att.Data)
	for i := 0; i < len(encoded); i += 76 {
		end := i + 76
		if end > len(encoded) {
			end = len(encoded)
		}
		buf.WriteString(encoded[i:end])
		buf.WriteString("\r\n")
	}
}

func (m Message) writeHeaders(buf *bytes.Buffer) {
	fmt.Fprintf(buf, "From: %s\r\n", m.From)
	if len(m.To) > 0 {
		fmt.Fprintf(buf, "To: %s\r\n", strings.Join(m.To, ", "))
	}
	if len(m.Cc) > 0 {
		fmt.Fprintf(buf, "Cc: %s\r\n", strings.Join(m.Cc, ", "))
	}
	fmt.Fprintf(buf, "Subject: %s\r\n", m.Subject)
	fmt.Fprintf(buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	if m.MessageID != "" {
		fmt.Fprintf(buf, "Message-ID: <%s>\r\n", m.MessageID)
	}
	for k, v := range m.Headers {
		fmt.Fprintf(buf, "%s: %s\r\n", k, v)
	}
}
