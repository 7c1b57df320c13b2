// Package mailer delivers transactional email.
package mailer

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

var errMissingRecipient = errors.New("mailer: recipient required")

// Message is one outgoing email. HTML is optional.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, message Message) error
}

// LogSender is the Sender used when no mail provider is configured. It records the delivery
// in the log instead of sending it.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send logs the message at debug level.
func (s *LogSender) Send(_ context.Context, message Message) error {
	if strings.TrimSpace(message.To) == "" {
		return errMissingRecipient
	}
	s.logger.Debug("email delivery skipped, no provider configured",
		zap.String("to", message.To),
		zap.String("subject", message.Subject),
		zap.String("text", message.Text))
	return nil
}
