package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"io"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

type outgoing struct {
	to      string
	replyTo string
	subject string
	view    any
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

// compose renders o as a multipart/alternative message with a plain text
// part followed by the HTML part.
func compose(from string, o outgoing) ([]byte, error) {
	fromAddr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	toAddr, err := mail.ParseAddress(o.to)
	if err != nil {
		return nil, fmt.Errorf("to address: %w", err)
	}

	var h mail.Header
	h.SetDate(time.Now())
	h.SetSubject(o.subject)
	h.SetAddressList("From", []*mail.Address{fromAddr})
	h.SetAddressList("To", []*mail.Address{toAddr})
	if o.replyTo != "" {
		replyAddr, err := mail.ParseAddress(o.replyTo)
		if err != nil {
			return nil, fmt.Errorf("reply-to address: %w", err)
		}
		h.SetAddressList("Reply-To", []*mail.Address{replyAddr})
	}
	h.SetMessageID(uuid.NewString() + "@" + domainOf(fromAddr.Address))

	var textBody, htmlBody bytes.Buffer
	if err := o.text.Execute(&textBody, o.view); err != nil {
		return nil, fmt.Errorf("render text: %w", err)
	}
	if err := o.html.Execute(&htmlBody, o.view); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	alt, err := mw.CreateInline()
	if err != nil {
		return nil, err
	}
	for _, part := range []struct {
		contentType string
		body        []byte
	}{
		{"text/plain", textBody.Bytes()},
		{"text/html", htmlBody.Bytes()},
	} {
		var ph mail.InlineHeader
		ph.SetContentType(part.contentType, map[string]string{"charset": "utf-8"})
		ph.Set("Content-Transfer-Encoding", "quoted-printable")
		w, err := alt.CreatePart(ph)
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(w, bytes.NewReader(part.body)); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	}
	if err := alt.Close(); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func domainOf(addr string) string {
	if i := strings.LastIndexByte(addr, '@'); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}

// humanDate renders a YYYY-MM-DD deadline as "March 4, 2025".
func humanDate(day string) string {
	t, err := time.Parse("2006-01-02", day)
	if err != nil {
		return day
	}
	return t.Format("January 2, 2006")
}
