// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package mail delivers transactional email (confirmation links, reset codes).

Implementations:

  - SMTPSender: Authenticated SMTP with implicit TLS on 465 or STARTTLS otherwise.
  - LogSender: Records recipient and subject in the structured log. Used when
    no mail host is configured outside production.
*/
package mail

import (
	"context"
	"log/slog"
)

// Message is a single HTML email.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, message Message) error
}

// LogSender logs messages instead of sending them.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a sender that writes to logger.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the message metadata at info level. The body carries confirmation
// and reset codes, so only its size is recorded.
func (sender *LogSender) Send(ctx context.Context, message Message) error {
	sender.logger.InfoContext(ctx, "mail_logged",
		slog.String("to", message.To),
		slog.String("subject", message.Subject),
		slog.Int("body_bytes", len(message.HTMLBody)),
	)
	return nil
}
