// Package mail sends outbound account email (verification codes).
package mail

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, m Message) error
}

// LogMailer writes messages to the logger instead of delivering them.
// It is the default adapter when no transport is configured.
type LogMailer struct {
	Logger *zerolog.Logger
}

// Send logs m at info level.
func (l LogMailer) Send(ctx context.Context, m Message) error {
	lg := l.Logger
	if lg == nil {
		lg = &log.Logger
	}
	lg.Info().
		Str("to", m.To).
		Str("subject", m.Subject).
		Str("body", m.Body).
		Msg("outbound email")
	return ctx.Err()
}

// VerificationEmail builds the email carrying a verification code.
func VerificationEmail(to, code string) Message {
	return Message{
		To:      to,
		Subject: "Confirm Your Email",
		Body:    "Your verification code is " + code + ". It expires in 10 minutes.",
	}
}
