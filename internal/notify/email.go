package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/templui/storyline/internal/markdown"
)

type EmailNotifier struct {
	client    *resend.Client
	md        *markdown.Parser
	fromEmail string
	appName   string
	codeTTL   time.Duration
	isDev     bool
}

func NewEmailNotifier(apiKey, fromEmail, appName string, codeTTL time.Duration, isDev bool) *EmailNotifier {
	var client *resend.Client
	if apiKey != "" && !isDev {
		client = resend.NewClient(apiKey)
	}

	return &EmailNotifier{
		client:    client,
		md:        markdown.NewParser(),
		fromEmail: fromEmail,
		appName:   appName,
		codeTTL:   codeTTL,
		isDev:     isDev,
	}
}

func (n *EmailNotifier) Send(ctx context.Context, email, code string) error {
	msg, err := verificationCodeEmail(n.md, code, n.codeTTL, n.appName)
	if err != nil {
		return err
	}

	if n.isDev {
		slog.InfoContext(ctx, "email sent (dev mode)", "type", "verification_code", "to", email, "subject", msg.Subject, "code", code)
		return nil
	}

	if n.client == nil {
		return fmt.Errorf("email service not configured (missing RESEND_API_KEY): %w", ErrChannelUnavailable)
	}

	params := &resend.SendEmailRequest{
		From:    n.fromEmail,
		To:      []string{email},
		Subject: msg.Subject,
		Text:    msg.Text,
		Html:    msg.HTML,
	}

	_, err = n.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	slog.InfoContext(ctx, "email sent", "type", "verification_code", "to", email)
	return nil
}
