// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"strings"

	"github.com/taibuivan/authapi/internal/platform/mail"
)

// confirmEmailPath is the route the confirmation link points at.
const confirmEmailPath = "/api/v1/auth/confirmEmail"

// errMissingBaseURL surfaces as a 500 when a link has to be built.
var errMissingBaseURL = errors.New("notify_public_base_url_not_configured")

// Notifier composes identity emails and hands them to a [mail.Sender].
//
// Delivery failures are logged and swallowed: the caller's response must not
// depend on the relay.
type Notifier struct {
	sender  mail.Sender
	baseURL string
	logger  *slog.Logger
}

// NewNotifier creates a notifier building links under baseURL.
func NewNotifier(sender mail.Sender, baseURL string, logger *slog.Logger) *Notifier {
	return &Notifier{sender: sender, baseURL: strings.TrimRight(baseURL, "/"), logger: logger}
}

// ConfirmationLink returns the absolute confirm-email URL for an encoded code.
func (notifier *Notifier) ConfirmationLink(userID, encodedCode, changedEmail string) (string, error) {
	if notifier.baseURL == "" {
		return "", errMissingBaseURL
	}

	query := url.Values{}
	query.Set("userId", userID)
	query.Set("code", encodedCode)
	if changedEmail != "" {
		query.Set("changedEmail", changedEmail)
	}
	return notifier.baseURL + confirmEmailPath + "?" + query.Encode(), nil
}

// SendConfirmationLink mails the confirmation link to email.
func (notifier *Notifier) SendConfirmationLink(context context.Context, email, link string) {
	notifier.send(context, "confirmation_link", mail.Message{
		To:       email,
		Subject:  "Confirm your email",
		HTMLBody: fmt.Sprintf("Please confirm your account by <a href='%s'>clicking here</a>.", html.EscapeString(link)),
	})
}

// SendPasswordResetCode mails an encoded reset code to email.
func (notifier *Notifier) SendPasswordResetCode(context context.Context, email, encodedCode string) {
	notifier.send(context, "password_reset_code", mail.Message{
		To:       email,
		Subject:  "Reset your password",
		HTMLBody: fmt.Sprintf("Please reset your password using the following code: %s", html.EscapeString(encodedCode)),
	})
}

func (notifier *Notifier) send(context context.Context, kind string, message mail.Message) {
	if err := notifier.sender.Send(context, message); err != nil {
		notifier.logger.ErrorContext(context, "mail_send_failed",
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
		return
	}
	notifier.logger.InfoContext(context, "mail_sent", slog.String("kind", kind))
}
