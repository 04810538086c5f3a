package notify

import (
	"context"
	"errors"
	"fmt"

	"busticket/internal/external"

	"gopkg.in/gomail.v2"
)

// ErrNoRecipient means the channel has no address for this passenger.
var ErrNoRecipient = errors.New("no recipient for channel")

type Channel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

type SMTPConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// mailSender is satisfied by *gomail.Dialer.
type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

type EmailChannel struct {
	from   string
	sender mailSender
}

func NewEmailChannel(cfg SMTPConfig) *EmailChannel {
	return &EmailChannel{
		from:   cfg.From,
		sender: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) buildMessage(n Notification) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", c.from)
	m.SetHeader("To", n.Ticket.Email)
	m.SetHeader("Subject", n.Subject)
	m.SetBody("text/html", n.HTML)
	m.AddAlternative("text/plain", n.Text)
	return m
}

// Send ignores ctx; gomail has no cancellable dial.
func (c *EmailChannel) Send(_ context.Context, n Notification) error {
	if n.Ticket.Email == "" {
		return ErrNoRecipient
	}
	if err := c.sender.DialAndSend(c.buildMessage(n)); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", n.Ticket.Email, err)
	}
	return nil
}

type smsSender interface {
	Send(ctx context.Context, phone, message string) (string, error)
}

type SMSChannel struct {
	client smsSender
}

func NewSMSChannel(client *external.SMSClient) *SMSChannel {
	return &SMSChannel{client: client}
}

func (c *SMSChannel) Name() string { return "sms" }

func (c *SMSChannel) Send(ctx context.Context, n Notification) error {
	if n.Ticket.Phone == "" {
		return ErrNoRecipient
	}
	if _, err := c.client.Send(ctx, n.Ticket.Phone, n.Text); err != nil {
		return fmt.Errorf("failed to send sms: %w", err)
	}
	return nil
}
