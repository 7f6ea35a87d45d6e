package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"testing"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sponsortracker/internal/models"
)

type recordingTransport struct {
	sent []Envelope
	err  error
}

func (r *recordingTransport) Deliver(ctx context.Context, env Envelope) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, env)
	return nil
}

type parsedMessage struct {
	header mail.Header
	parts  map[string]string
}

func parse(t *testing.T, raw []byte) parsedMessage {
	t.Helper()
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)
	out := parsedMessage{header: mr.Header, parts: map[string]string{}}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if h, ok := part.Header.(*mail.InlineHeader); ok {
			ct, _, _ := h.ContentType()
			body, err := io.ReadAll(part.Body)
			require.NoError(t, err)
			out.parts[ct] = string(body)
		}
	}
	return out
}

func TestDeadlineReminderSubjectsAndLinks(t *testing.T) {
	tr := &recordingTransport{}
	m := NewMailer("Sponsor Tracker <noreply@example.com>", "hello@example.com", tr)

	err := m.SendDeadlineReminder(context.Background(), DeadlineReminder{
		To: "creator@example.com", UserName: "Mina", DealTitle: "Spring haul",
		Deadline: "2025-03-04", DaysLeft: 3,
		DealURL: "https://app.example.com/deals/d1", UnsubscribeURL: "https://app.example.com/api/v1/notifications/unsubscribe?token=abc",
	})
	require.NoError(t, err)
	err = m.SendDeadlineReminder(context.Background(), DeadlineReminder{
		To: "creator@example.com", UserName: "Mina", DealTitle: "Reel", Deadline: "2025-03-02", DaysLeft: 1,
		DealURL: "https://app.example.com/deals/d2",
	})
	require.NoError(t, err)
	require.Len(t, tr.sent, 2)

	first := parse(t, tr.sent[0].Raw)
	subject, err := first.header.Subject()
	require.NoError(t, err)
	assert.Equal(t, `[Sponsor Tracker] 3 days left: "Spring haul"`, subject)
	assert.Contains(t, first.parts["text/plain"], "https://app.example.com/deals/d1")
	assert.Contains(t, first.parts["text/plain"], "March 4, 2025")
	assert.Contains(t, first.parts["text/plain"], "No brand")
	assert.Contains(t, first.parts["text/html"], "unsubscribe?token=abc")

	second := parse(t, tr.sent[1].Raw)
	subject, err = second.header.Subject()
	require.NoError(t, err)
	assert.Equal(t, `[Sponsor Tracker] Due tomorrow: "Reel"`, subject)
	assert.NotContains(t, second.parts["text/plain"], "Unsubscribe")
}

func TestStatusUpdateUsesLabels(t *testing.T) {
	tr := &recordingTransport{}
	m := NewMailer("noreply@example.com", "hello@example.com", tr)

	require.NoError(t, m.SendStatusUpdate(context.Background(), StatusUpdate{
		To: "creator@example.com", UserName: "Mina", DealTitle: "Shorts", BrandName: "Olive Young",
		OldStatus: models.StatusContracted, NewStatus: models.StatusProducing, DealURL: "https://app.example.com/deals/d3",
	}))
	require.Len(t, tr.sent, 1)
	msg := parse(t, tr.sent[0].Raw)
	assert.Contains(t, msg.parts["text/plain"], "Contracted -> Producing")
	assert.Contains(t, msg.parts["text/plain"], "Olive Young")
	assert.Equal(t, []string{"creator@example.com"}, tr.sent[0].To)
}

func TestContactSetsReplyToAndEscapesHTML(t *testing.T) {
	tr := &recordingTransport{}
	m := NewMailer("Sponsor Tracker <noreply@example.com>", "inbox@example.com", tr)

	require.NoError(t, m.SendContact(context.Background(), ContactMessage{
		Name: "Kim", Email: "kim@example.org", Message: "<script>alert(1)</script>\nHello",
	}))
	require.Len(t, tr.sent, 1)
	assert.Equal(t, []string{"inbox@example.com"}, tr.sent[0].To)

	msg := parse(t, tr.sent[0].Raw)
	replyTo, err := msg.header.AddressList("Reply-To")
	require.NoError(t, err)
	require.Len(t, replyTo, 1)
	assert.Equal(t, "kim@example.org", replyTo[0].Address)
	assert.NotContains(t, msg.parts["text/html"], "<script>")
	assert.Contains(t, msg.parts["text/html"], "&lt;script&gt;")
	assert.Contains(t, msg.parts["text/plain"], "Hello")
}

func TestTransportErrorIsWrapped(t *testing.T) {
	boom := errors.New("boom")
	m := NewMailer("noreply@example.com", "inbox@example.com", &recordingTransport{err: boom})
	err := m.SendContact(context.Background(), ContactMessage{Name: "Kim", Email: "kim@example.org", Message: "hi"})
	assert.ErrorIs(t, err, boom)
}

func TestComposeRejectsBadAddress(t *testing.T) {
	m := NewMailer("noreply@example.com", "inbox@example.com", &recordingTransport{})
	err := m.SendContact(context.Background(), ContactMessage{Name: "Kim", Email: "not an address", Message: "hi"})
	assert.Error(t, err)
}

func TestSMTPTransportDelivers(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	got := make(chan string, 1)
	go serveFakeSMTP(ln, got)

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)

	tr := &SMTPTransport{host: host, port: p}
	m := NewMailer("Sponsor Tracker <noreply@example.com>", "inbox@example.com", tr)
	require.NoError(t, m.SendContact(context.Background(), ContactMessage{Name: "Kim", Email: "kim@example.org", Message: "hi there"}))

	transcript := <-got
	assert.Contains(t, transcript, "MAIL FROM:<noreply@example.com>")
	assert.Contains(t, transcript, "RCPT TO:<inbox@example.com>")
	assert.Contains(t, transcript, "Subject: [Contact] Message from Kim")
}

func serveFakeSMTP(ln net.Listener, got chan<- string) {
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	tp := textproto.NewConn(conn)
	var transcript strings.Builder
	_ = tp.PrintfLine("220 fake ESMTP")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			got <- transcript.String()
			return
		}
		transcript.WriteString(line + "\n")
		switch {
		case strings.HasPrefix(line, "EHLO"), strings.HasPrefix(line, "HELO"):
			_ = tp.PrintfLine("250 fake")
		case strings.HasPrefix(line, "MAIL"), strings.HasPrefix(line, "RCPT"):
			_ = tp.PrintfLine("250 ok")
		case line == "DATA":
			_ = tp.PrintfLine("354 go ahead")
			data, _ := tp.ReadDotBytes()
			transcript.Write(data)
			_ = tp.PrintfLine("250 queued")
		case line == "QUIT":
			_ = tp.PrintfLine("221 bye")
			got <- transcript.String()
			return
		default:
			_ = tp.PrintfLine("500 unknown")
		}
	}
}

func TestEnvelopeAddress(t *testing.T) {
	assert.Equal(t, "noreply@example.com", envelopeAddress("Sponsor Tracker <noreply@example.com>"))
	assert.Equal(t, "a@b.c", envelopeAddress(" a@b.c "))
}

func TestMailerProbe(t *testing.T) {
	assert.NoError(t, NewMailer("a@example.com", "b@example.com", LogTransport{}).Probe(context.Background()))

	unreachable := &SMTPTransport{host: "127.0.0.1", port: 1}
	assert.Error(t, NewMailer("a@example.com", "b@example.com", unreachable).Probe(context.Background()))
}
