package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"sponsortracker/internal/config"
)

const smtpDialTimeout = 10 * time.Second

// LogTransport writes messages to the log instead of sending them.
type LogTransport struct {
	log *zap.Logger
}

func (t LogTransport) Deliver(ctx context.Context, env Envelope) error {
	log := t.log
	if log == nil {
		log = zap.NewNop()
	}
	log.Info("email not sent (log transport)",
		zap.String("from", env.From),
		zap.Strings("to", env.To),
		zap.String("subject", env.Subject),
		zap.Int("bytes", len(env.Raw)),
	)
	log.Debug("email body", zap.ByteString("raw", env.Raw))
	return nil
}

type SMTPTransport struct {
	host               string
	port               int
	username           string
	password           string
	implicitTLS        bool
	startTLS           bool
	insecureSkipVerify bool
}

func NewSMTPTransport(cfg config.Config) *SMTPTransport {
	return &SMTPTransport{
		host:               cfg.SMTPHost,
		port:               cfg.SMTPPort,
		username:           cfg.SMTPUsername,
		password:           cfg.SMTPPassword,
		implicitTLS:        cfg.SMTPTLS,
		startTLS:           cfg.SMTPStartTLS,
		insecureSkipVerify: cfg.SMTPInsecureSkipVerify,
	}
}

func (t *SMTPTransport) Deliver(ctx context.Context, env Envelope) error {
	client, err := t.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if t.username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(smtp.PlainAuth("", t.username, t.password, t.host)); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}
	if err := client.Mail(envelopeAddress(env.From)); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, r := range env.To {
		if err := client.Rcpt(envelopeAddress(r)); err != nil {
			return fmt.Errorf("smtp RCPT TO: %w", err)
		}
	}
	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := wc.Write(env.Raw); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("smtp end data: %w", err)
	}
	return client.Quit()
}

// Probe connects and negotiates TLS without sending anything.
func (t *SMTPTransport) Probe(ctx context.Context) error {
	client, err := t.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Quit()
}

func (t *SMTPTransport) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(t.host, strconv.Itoa(t.port))
	tlsConfig := &tls.Config{ServerName: t.host, InsecureSkipVerify: t.insecureSkipVerify}

	dialer := &net.Dialer{Timeout: smtpDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("smtp dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if t.implicitTLS {
		conn = tls.Client(conn, tlsConfig)
	}
	client, err := smtp.NewClient(conn, t.host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("smtp handshake: %w", err)
	}
	if t.startTLS && !t.implicitTLS {
		ok, _ := client.Extension("STARTTLS")
		if !ok {
			_ = client.Close()
			return nil, fmt.Errorf("SMTP STARTTLS extension not available")
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("smtp starttls: %w", err)
		}
	}
	return client, nil
}

// envelopeAddress strips a display name: "Name <a@b>" becomes "a@b".
func envelopeAddress(v string) string {
	v = strings.TrimSpace(v)
	if i := strings.LastIndexByte(v, '<'); i >= 0 {
		if j := strings.IndexByte(v[i:], '>'); j > 0 {
			return v[i+1 : i+j]
		}
	}
	return v
}
