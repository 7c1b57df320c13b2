package mailer

import (
	"context"
	"errors"
	"strings"
	"time"

	mg "github.com/mailgun/mailgun-go/v4"
)

const defaultSendTimeout = 10 * time.Second

var errIncompleteMailgunConfig = errors.New("mailer: mailgun domain, api key and sender are required")

// MailgunConfig configures Mailgun delivery. APIBase overrides the Mailgun endpoint.
type MailgunConfig struct {
	Domain  string
	APIKey  string
	Sender  string
	APIBase string
	Timeout time.Duration
}

// Mailgun sends messages through the Mailgun API.
type Mailgun struct {
	client  *mg.MailgunImpl
	sender  string
	timeout time.Duration
}

// NewMailgun validates cfg and constructs a Mailgun sender.
func NewMailgun(cfg MailgunConfig) (*Mailgun, error) {
	domain := strings.TrimSpace(cfg.Domain)
	apiKey := strings.TrimSpace(cfg.APIKey)
	sender := strings.TrimSpace(cfg.Sender)
	if domain == "" || apiKey == "" || sender == "" {
		return nil, errIncompleteMailgunConfig
	}
	client := mg.NewMailgun(domain, apiKey)
	if base := strings.TrimSpace(cfg.APIBase); base != "" {
		client.SetAPIBase(base)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &Mailgun{client: client, sender: sender, timeout: timeout}, nil
}

// Send delivers message. The HTML body is attached when present.
func (m *Mailgun) Send(ctx context.Context, message Message) error {
	if strings.TrimSpace(message.To) == "" {
		return errMissingRecipient
	}
	msg := m.client.NewMessage(m.sender, message.Subject, message.Text, message.To)
	if message.HTML != "" {
		msg.SetHtml(message.HTML)
	}
	sendCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	_, _, err := m.client.Send(sendCtx, msg)
	return err
}
