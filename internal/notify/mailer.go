// Package notify implements the per-recipient notifier task: debounced
// buffering of device status changes, the process-wide email-token
// mutual exclusion, retry on transport failure, and the STARTTLS SMTP
// transport used to actually deliver the message.
package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"time"

	"github.com/desertwitch/netwatch/internal/config"
)

// errParseFailure occurs when a From/To mailbox fails to parse. Per the
// error-handling design this aborts the send rather than retrying.
var errParseFailure = errors.New("mailbox parse failure")

// smtpPort is the fixed outbound port: STARTTLS is required on it, per the
// external-interfaces contract.
const smtpPort = "587"

// Mailer sends one email. *SMTPMailer is the production implementation;
// tests substitute a fake.
type Mailer interface {
	Send(ctx context.Context, smtpCfg config.Smtp, to, subject, body string) error
}

// SMTPMailer delivers mail via STARTTLS on port 587 with TLS 1.2 as the
// minimum accepted version, exactly as the external-interfaces contract
// requires. There is no third-party SMTP client anywhere in the example
// pool (verified by a repo-wide dependency search), so this is built
// directly on net/smtp, net/mail, and crypto/tls.
type SMTPMailer struct{}

// Send parses from/to as RFC 5322 mailboxes, dials smtpCfg.Server on
// smtpPort, negotiates STARTTLS, authenticates, and sends subject/body as
// the message. A mailbox parse failure is returned without attempting any
// network I/O, matching the ParseError policy (log Error, refuse the
// send, no retry).
func (SMTPMailer) Send(ctx context.Context, smtpCfg config.Smtp, to, subject, body string) error {
	from, err := mail.ParseAddress(smtpCfg.From)
	if err != nil {
		return fmt.Errorf("%w: from address %q: %w", errParseFailure, smtpCfg.From, err)
	}

	toAddr, err := mail.ParseAddress(to)
	if err != nil {
		return fmt.Errorf("%w: to address %q: %w", errParseFailure, to, err)
	}

	msg := buildMessage(from.Address, toAddr.Address, subject, body)

	addr := smtpCfg.Server + ":" + smtpPort

	dialer := &net.Dialer{}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failure dialing SMTP server %q: %w", addr, err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, smtpCfg.Server)
	if err != nil {
		return fmt.Errorf("failure establishing SMTP client: %w", err)
	}
	defer client.Close()

	tlsCfg := &tls.Config{
		ServerName: smtpCfg.Server,
		MinVersion: tls.VersionTLS12,
	}

	if err := client.StartTLS(tlsCfg); err != nil {
		return fmt.Errorf("failure negotiating STARTTLS: %w", err)
	}

	auth := smtp.PlainAuth("", smtpCfg.User, smtpCfg.Password, smtpCfg.Server)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("failure authenticating with SMTP server: %w", err)
	}

	if err := client.Mail(from.Address); err != nil {
		return fmt.Errorf("failure issuing MAIL FROM: %w", err)
	}
	if err := client.Rcpt(toAddr.Address); err != nil {
		return fmt.Errorf("failure issuing RCPT TO: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failure opening DATA stream: %w", err)
	}

	if _, err := w.Write(msg); err != nil {
		_ = w.Close()

		return fmt.Errorf("failure writing message body: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failure closing DATA stream: %w", err)
	}

	return client.Quit() //nolint:wrapcheck
}

// buildMessage renders a minimal RFC 5322 message with From/To/Subject
// headers and the given body.
func buildMessage(from, to, subject, body string) []byte {
	return fmt.Appendf(nil, "From: %s\r\nTo: %s\r\nSubject: %s\r\nDate: %s\r\n\r\n%s",
		from, to, subject, time.Now().Format(time.RFC1123Z), body)
}
