// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

const (
	implicitTLSPort = 465
	sendTimeout     = 15 * time.Second
)

// SMTPConfig holds the relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender sends messages through an SMTP relay.
type SMTPSender struct {
	config SMTPConfig
	now    func() time.Time
}

// NewSMTPSender creates a sender for the given relay.
func NewSMTPSender(config SMTPConfig) *SMTPSender {
	return &SMTPSender{config: config, now: time.Now}
}

/*
Send delivers one message.

The connection honours ctx for dialing and is bounded by a fixed deadline for
the whole SMTP exchange.
*/
func (sender *SMTPSender) Send(ctx context.Context, message Message) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	address := net.JoinHostPort(sender.config.Host, strconv.Itoa(sender.config.Port))
	tlsConfig := &tls.Config{ServerName: sender.config.Host, MinVersion: tls.VersionTLS12}

	dialer := &net.Dialer{}
	var connection net.Conn
	var err error
	if sender.config.Port == implicitTLSPort {
		connection, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", address)
	} else {
		connection, err = dialer.DialContext(ctx, "tcp", address)
	}
	if err != nil {
		return fmt.Errorf("mail: dial %s: %w", address, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = connection.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(connection, sender.config.Host)
	if err != nil {
		_ = connection.Close()
		return fmt.Errorf("mail: handshake: %w", err)
	}
	defer client.Close()

	if sender.config.Port != implicitTLSPort {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("mail: starttls: %w", err)
			}
		}
	}

	if sender.config.Username != "" {
		auth := smtp.PlainAuth("", sender.config.Username, sender.config.Password, sender.config.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("mail: auth: %w", err)
		}
	}

	if err := client.Mail(sender.config.From); err != nil {
		return fmt.Errorf("mail: MAIL FROM: %w", err)
	}
	if err := client.Rcpt(strings.TrimSpace(message.To)); err != nil {
		return fmt.Errorf("mail: RCPT TO: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("mail: DATA: %w", err)
	}
	if _, err := writer.Write(sender.compose(message)); err != nil {
		_ = writer.Close()
		return fmt.Errorf("mail: write body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("mail: end body: %w", err)
	}

	return client.Quit()
}

// compose renders the RFC 5322 message.
func (sender *SMTPSender) compose(message Message) []byte {
	var buffer bytes.Buffer
	header := func(name, value string) {
		buffer.WriteString(name + ": " + value + "\r\n")
	}

	header("From", sender.config.From)
	header("To", strings.TrimSpace(message.To))
	header("Subject", mime.QEncoding.Encode("utf-8", message.Subject))
	header("Date", sender.now().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/html; charset="utf-8"`)
	header("Content-Transfer-Encoding", "8bit")
	buffer.WriteString("\r\n")
	buffer.WriteString(strings.ReplaceAll(message.HTMLBody, "\n", "\r\n"))

	return buffer.Bytes()
}
