package dispatch

import (
	"fmt"
	"mime/quotedprintable"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arkmail/dispatch/internal/domain"
	"github.com/arkmail/dispatch/internal/service/dkim"
)

// headerWriteOrder fixes the byte layout of outgoing headers. The DKIM
// signer hashes header values by name, so the order only has to be
// stable, but stable order also keeps message bytes reproducible.
var headerWriteOrder = []string{
	"From", "To", "Subject", "Date", "Message-ID", "MIME-Version",
	"Reply-To", "List-Unsubscribe", "List-Unsubscribe-Post", "Content-Type",
}

// buildMessage assembles the final signed message for one recipient.
// content.HTML must already carry the tracking instrumentation; the
// signature covers the exact bytes handed to the transport.
func (e *Engine) buildMessage(c *domain.Campaign, sub domain.Subscriber, content domain.Content, send *domain.Send) (*domain.EmailMessage, error) {
	boundary := "=_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	body := buildBody(boundary, content.Text, content.HTML)

	unsubURL := fmt.Sprintf("%s/track/unsubscribe/%s", e.opts.TrackingBaseURL, send.TrackingToken)
	listUnsub, listUnsubPost := dkim.ListUnsubscribe(unsubURL)

	headers := map[string]string{
		"From":                  fmt.Sprintf("%s <%s>", c.FromName, c.FromEmail),
		"To":                    sub.Email,
		"Subject":               content.Subject,
		"Date":                  e.now().UTC().Format(time.RFC1123Z),
		"Message-ID":            dkim.MessageID(e.signer.Domain()),
		"MIME-Version":          "1.0",
		"List-Unsubscribe":      listUnsub,
		"List-Unsubscribe-Post": listUnsubPost,
		"Content-Type":          fmt.Sprintf(`multipart/alternative; boundary="%s"`, boundary),
	}
	if c.ReplyTo != "" {
		headers["Reply-To"] = c.ReplyTo
	}

	signature, err := e.signer.Sign(headers, body)
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}
	headers["DKIM-Signature"] = signature

	var data strings.Builder
	data.Grow(len(body) + 1024)
	data.WriteString("DKIM-Signature: " + signature + "\r\n")
	for _, name := range headerWriteOrder {
		if v, ok := headers[name]; ok {
			data.WriteString(name + ": " + v + "\r\n")
		}
	}
	data.WriteString("\r\n")
	data.WriteString(body)

	return &domain.EmailMessage{
		SendID:        send.ID,
		TrackingToken: send.TrackingToken,
		Email:         sub.Email,
		ReturnPath:    dkim.ReturnPath(send.TrackingToken, e.signer.Domain()),
		Headers:       headers,
		Data:          []byte(data.String()),
	}, nil
}

// buildBody lays out the multipart/alternative body, plain text first so
// clients that walk parts in order prefer the HTML.
func buildBody(boundary, text, html string) string {
	var b strings.Builder
	if text != "" {
		b.WriteString("--" + boundary + "\r\n")
		b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
		b.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
		b.WriteString(qpEncode(text))
		b.WriteString("\r\n")
	}
	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
	b.WriteString(qpEncode(html))
	b.WriteString("\r\n")
	b.WriteString("--" + boundary + "--\r\n")
	return b.String()
}

// qpEncode normalizes line endings to CRLF and applies quoted-printable.
// SMTP DATA requires CRLF throughout, and the DKIM body hash covers the
// encoded form, so this must happen before signing.
func qpEncode(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\n", "\r\n")
	var buf strings.Builder
	w := quotedprintable.NewWriter(&buf)
	w.Write([]byte(s))
	w.Close()
	return buf.String()
}
