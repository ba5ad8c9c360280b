package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimasrn/finance-ledger/pkg/logger"
	"github.com/wneessen/go-mail"
)

var ErrMailNotConfigured = errors.New("email transport is not configured")

type MailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	Timeout  time.Duration
}

type MailMessage struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer sends multipart reminder emails over SMTP.
type Mailer struct {
	config MailConfig
}

func NewMailer(config MailConfig) *Mailer {
	if config.From == "" {
		config.From = config.User
	}
	if config.Port == 0 {
		config.Port = 587
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Host == "" || config.User == "" || config.Password == "" {
		logger.Warn("email not configured; set EMAIL_HOST, EMAIL_USER and EMAIL_PASSWORD", "host", config.Host)
	}
	return &Mailer{config: config}
}

func (m *Mailer) configured() bool {
	return m.config.Host != "" && m.config.User != "" && m.config.Password != ""
}

// Build renders msg into a go-mail message without sending it.
func (m *Mailer) Build(msg MailMessage) (*mail.Msg, error) {
	out := mail.NewMsg()
	if err := out.From(m.config.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", m.config.From, err)
	}
	if err := out.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	out.Subject(msg.Subject)
	out.SetBodyString(mail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		out.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}
	return out, nil
}

func (m *Mailer) Send(ctx context.Context, msg MailMessage) error {
	if !m.configured() {
		return ErrMailNotConfigured
	}
	out, err := m.Build(msg)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(m.config.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.config.User),
		mail.WithPassword(m.config.Password),
		mail.WithTimeout(m.config.Timeout),
	}
	if m.config.Port == 465 {
		opts = append(opts, mail.WithSSLPort(false))
	} else {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSOpportunistic))
	}

	client, err := mail.NewClient(m.config.Host, opts...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, out); err != nil {
		return fmt.Errorf("send email to %s: %w", msg.To, err)
	}
	logger.Info("email sent", "to", msg.To, "subject", msg.Subject)
	return nil
}
