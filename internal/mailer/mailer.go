// Copyright (c) 2026 Northlink Communications. All rights reserved.

/*
Package mailer delivers transactional account emails over SMTP.

The auth engine only depends on its own Mailer interface; this package
supplies the production SMTP implementation and a log-only fallback for
deployments without a configured relay.
*/
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"time"
)

// SMTPConfig holds the relay settings resolved at startup.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Configured reports whether a relay host and sender are present.
func (config SMTPConfig) Configured() bool {
	return config.Host != "" && config.From != ""
}

// SMTPMailer sends mail through a single SMTP relay using PLAIN auth.
type SMTPMailer struct {
	config SMTPConfig
}

// NewSMTPMailer creates a mailer for the given relay.
func NewSMTPMailer(config SMTPConfig) *SMTPMailer {
	return &SMTPMailer{config: config}
}

/*
SendPasswordReset delivers the reset link email.

Description: The message body carries the opaque reset token; the portal
frontend turns it into a link. Delivery blocks until the relay accepts
or rejects the message.

Parameters:
  - context: context.Context (deadline only; net/smtp has no context plumb-through)
  - toEmail: string
  - displayName: string
  - resetToken: string
  - expiresAt: time.Time

Returns:
  - error: Relay connection or protocol failures
*/
func (mailer *SMTPMailer) SendPasswordReset(context context.Context, toEmail, displayName, resetToken string, expiresAt time.Time) error {
	if err := context.Err(); err != nil {
		return err
	}

	greeting := displayName
	if greeting == "" {
		greeting = "there"
	}

	subject := "Reset your Northlink password"
	body := fmt.Sprintf(
		"Hi %s,\r\n\r\n"+
			"A password reset was requested for your Northlink account.\r\n"+
			"Use the token below before %s to choose a new password:\r\n\r\n"+
			"%s\r\n\r\n"+
			"If you did not request this, you can ignore this message.\r\n",
		greeting,
		expiresAt.UTC().Format(time.RFC1123),
		resetToken,
	)

	return mailer.send(toEmail, subject, body)
}

func (mailer *SMTPMailer) send(toEmail, subject, body string) error {
	message := strings.Join([]string{
		"From: " + mailer.config.From,
		"To: " + toEmail,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")

	address := fmt.Sprintf("%s:%d", mailer.config.Host, mailer.config.Port)

	var authentication smtp.Auth
	if mailer.config.Username != "" {
		authentication = smtp.PlainAuth("", mailer.config.Username, mailer.config.Password, mailer.config.Host)
	}

	if err := smtp.SendMail(address, authentication, mailer.config.From, []string{toEmail}, []byte(message)); err != nil {
		return fmt.Errorf("smtp_send_failed: %w", err)
	}

	return nil
}

// LogMailer writes would-be emails to the structured log instead of
// sending them. Used when no SMTP relay is configured.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a log-only mailer.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

// SendPasswordReset logs the reset event without the token value.
func (mailer *LogMailer) SendPasswordReset(_ context.Context, toEmail, _ string, _ string, expiresAt time.Time) error {
	mailer.logger.Info("password reset email suppressed, no SMTP relay configured",
		"to", toEmail,
		"expires_at", expiresAt.UTC(),
	)
	return nil
}
