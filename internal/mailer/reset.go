package mailer

import (
	"bytes"
	"context"
	"embed"
	"errors"
	htmltemplate "html/template"
	texttemplate "text/template"
)

const passwordResetSubject = "Password Reset Request"

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	passwordResetHTML = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/password_reset.html.tmpl"))
	passwordResetText = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/password_reset.txt.tmpl"))
	errMissingSender  = errors.New("mailer: sender required")
)

type passwordResetData struct {
	Name     string
	ResetURL string
}

// PasswordResetMessage renders the reset email for one recipient.
func PasswordResetMessage(to, name, resetURL string) (Message, error) {
	data := passwordResetData{Name: name, ResetURL: resetURL}
	if data.Name == "" {
		data.Name = "there"
	}
	var html, text bytes.Buffer
	if err := passwordResetHTML.Execute(&html, data); err != nil {
		return Message{}, err
	}
	if err := passwordResetText.Execute(&text, data); err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: passwordResetSubject,
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

// PasswordResetNotifier renders and sends password-reset links.
type PasswordResetNotifier struct {
	sender Sender
}

// NewPasswordResetNotifier wraps sender.
func NewPasswordResetNotifier(sender Sender) (*PasswordResetNotifier, error) {
	if sender == nil {
		return nil, errMissingSender
	}
	return &PasswordResetNotifier{sender: sender}, nil
}

// SendPasswordReset renders the reset email and hands it to the sender.
func (n *PasswordResetNotifier) SendPasswordReset(ctx context.Context, email, name, resetURL string) error {
	message, err := PasswordResetMessage(email, name, resetURL)
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, message)
}
