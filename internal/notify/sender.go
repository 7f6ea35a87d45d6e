// Package notify composes and delivers the service's outbound email.
package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"sponsortracker/internal/config"
	"sponsortracker/internal/models"
)

type Sender interface {
	SendDeadlineReminder(ctx context.Context, m DeadlineReminder) error
	SendStatusUpdate(ctx context.Context, m StatusUpdate) error
	SendContact(ctx context.Context, m ContactMessage) error
}

type DeadlineReminder struct {
	To             string
	UserName       string
	DealTitle      string
	BrandName      string
	Deadline       string
	DaysLeft       int
	DealURL        string
	UnsubscribeURL string
}

type StatusUpdate struct {
	To             string
	UserName       string
	DealTitle      string
	BrandName      string
	OldStatus      models.DealStatus
	NewStatus      models.DealStatus
	DealURL        string
	UnsubscribeURL string
}

type ContactMessage struct {
	Name    string
	Email   string
	Message string
}

// Envelope is one composed message handed to a Transport.
type Envelope struct {
	From    string
	To      []string
	Subject string
	Raw     []byte
}

type Transport interface {
	Deliver(ctx context.Context, env Envelope) error
}

// Mailer renders messages and hands them to its transport.
type Mailer struct {
	from         string
	contactInbox string
	transport    Transport
}

func NewMailer(from, contactInbox string, t Transport) *Mailer {
	return &Mailer{from: from, contactInbox: contactInbox, transport: t}
}

// NewSender picks the transport configured by MAIL_SENDER.
func NewSender(cfg config.Config, log *zap.Logger) *Mailer {
	var t Transport
	switch cfg.MailSender {
	case "smtp":
		t = NewSMTPTransport(cfg)
	default:
		t = LogTransport{log: log}
	}
	return NewMailer(cfg.MailFrom, cfg.ContactInbox, t)
}

func (m *Mailer) SendDeadlineReminder(ctx context.Context, r DeadlineReminder) error {
	subject := fmt.Sprintf("[Sponsor Tracker] %d days left: %q", r.DaysLeft, r.DealTitle)
	if r.DaysLeft <= 1 {
		subject = fmt.Sprintf("[Sponsor Tracker] Due tomorrow: %q", r.DealTitle)
	}
	data := deadlineView{
		DeadlineReminder: r,
		Urgent:           r.DaysLeft <= 1,
		DeadlineLabel:    humanDate(r.Deadline),
		BrandName:        orDefault(r.BrandName, "No brand"),
	}
	return m.send(ctx, outgoing{
		to:      r.To,
		subject: subject,
		view:    data,
		html:    deadlineHTML,
		text:    deadlineText,
	})
}

func (m *Mailer) SendStatusUpdate(ctx context.Context, u StatusUpdate) error {
	data := statusView{
		StatusUpdate: u,
		OldLabel:     u.OldStatus.Label(),
		NewLabel:     u.NewStatus.Label(),
		BrandName:    orDefault(u.BrandName, "No brand"),
	}
	return m.send(ctx, outgoing{
		to:      u.To,
		subject: fmt.Sprintf("[Sponsor Tracker] %q moved to %s", u.DealTitle, data.NewLabel),
		view:    data,
		html:    statusHTML,
		text:    statusText,
	})
}

func (m *Mailer) SendContact(ctx context.Context, c ContactMessage) error {
	return m.send(ctx, outgoing{
		to:      m.contactInbox,
		replyTo: c.Email,
		subject: fmt.Sprintf("[Contact] Message from %s", strings.TrimSpace(c.Name)),
		view:    c,
		html:    contactHTML,
		text:    contactText,
	})
}

func (m *Mailer) send(ctx context.Context, o outgoing) error {
	raw, err := compose(m.from, o)
	if err != nil {
		return fmt.Errorf("compose %q: %w", o.subject, err)
	}
	env := Envelope{From: m.from, To: []string{o.to}, Subject: o.subject, Raw: raw}
	if err := m.transport.Deliver(ctx, env); err != nil {
		return fmt.Errorf("deliver %q: %w", o.subject, err)
	}
	return nil
}

func orDefault(v, d string) string {
	if strings.TrimSpace(v) == "" {
		return d
	}
	return v
}

var _ Sender = (*Mailer)(nil)

// Probe checks the transport when it can be checked (SMTP); the log
// transport always reports healthy.
func (m *Mailer) Probe(ctx context.Context) error {
	if p, ok := m.transport.(interface{ Probe(context.Context) error }); ok {
		return p.Probe(ctx)
	}
	return nil
}
