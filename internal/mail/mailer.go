// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftboard Contributors

// Package mail delivers auth mail over SMTP. The SMTP mailer is used in
// production; the log mailer stands in for it in development, where the codes
// and links land in the log instead of an inbox.
package mail

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/oops"
	"gopkg.in/gomail.v2"

	"github.com/driftboard/driftboard/internal/auth"
	"github.com/driftboard/driftboard/internal/config"
)

// SMTPMailer implements auth.Mailer over SMTP.
type SMTPMailer struct {
	cfg     config.SMTPConfig
	baseURL string
	logger  *slog.Logger
}

// NewSMTPMailer creates an SMTPMailer. baseURL is the public origin used to
// build reset links.
func NewSMTPMailer(cfg config.SMTPConfig, baseURL string, logger *slog.Logger) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, baseURL: baseURL, logger: logger}
}

// SendVerificationCode mails a verification code.
func (m *SMTPMailer) SendVerificationCode(_ context.Context, email, code string) error {
	subject := "Verify your email address"
	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>Verify your email</h2>
    <p>Your verification code is:</p>
    <div style="font-size: 28px; font-weight: bold; letter-spacing: 3px;">%s</div>
    <p>The code expires in 10 minutes.</p>
  </div>
</body>
</html>`, code)

	if err := m.send(email, subject, body); err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("operation", "send verification code").
			Wrap(err)
	}
	m.logger.Info("verification mail sent")
	return nil
}

// SendPasswordReset mails a password reset link.
func (m *SMTPMailer) SendPasswordReset(_ context.Context, email, token string) error {
	link := fmt.Sprintf("%s/reset-password/%s", m.baseURL, token)
	subject := "Reset your password"
	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>Reset your password</h2>
    <p>Click the link below to choose a new password:</p>
    <p><a href="%s">%s</a></p>
    <p>The link expires in 2 hours. If you did not request a reset, ignore this mail.</p>
  </div>
</body>
</html>`, link, link)

	if err := m.send(email, subject, body); err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("operation", "send password reset").
			Wrap(err)
	}
	m.logger.Info("password reset mail sent")
	return nil
}

func (m *SMTPMailer) send(to, subject, htmlBody string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	d := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	return d.DialAndSend(msg)
}

// LogMailer implements auth.Mailer by logging instead of sending. Selected
// when no SMTP host is configured. The secrets are logged on purpose; this
// mailer must never be wired up in production.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// SendVerificationCode logs the code.
func (m *LogMailer) SendVerificationCode(_ context.Context, email, code string) error {
	m.logger.Info("verification code (dev mailer)", "email", email, "code", code)
	return nil
}

// SendPasswordReset logs the token.
func (m *LogMailer) SendPasswordReset(_ context.Context, email, token string) error {
	m.logger.Info("password reset token (dev mailer)", "email", email, "token", token)
	return nil
}

// Compile-time interface checks.
var (
	_ auth.Mailer = (*SMTPMailer)(nil)
	_ auth.Mailer = (*LogMailer)(nil)
)
