package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/templui/storyline/internal/validation"
)

// ErrChannelUnavailable is returned when no delivery channel is configured
// for a contact type.
var ErrChannelUnavailable = errors.New("delivery channel unavailable")

// Notifier delivers a one-time code to a contact.
type Notifier interface {
	Send(ctx context.Context, destination, code string) error
}

// LogNotifier writes codes to the log instead of delivering them.
type LogNotifier struct {
	Channel string
}

func (n LogNotifier) Send(ctx context.Context, destination, code string) error {
	slog.InfoContext(ctx, "code sent (dev mode)", "channel", n.Channel, "to", destination, "code", code)
	return nil
}

type unavailable struct {
	channel validation.ContactType
}

// Unavailable returns a Notifier that always fails with ErrChannelUnavailable.
func Unavailable(channel validation.ContactType) Notifier {
	return unavailable{channel: channel}
}

func (u unavailable) Send(ctx context.Context, destination, code string) error {
	return fmt.Errorf("%s: %w", u.channel, ErrChannelUnavailable)
}

// Router picks a Notifier by the contact's type.
type Router struct {
	Email Notifier
	Phone Notifier
}

func (r *Router) Send(ctx context.Context, destination, code string) error {
	kind, err := validation.ClassifyContact(destination)
	if err != nil {
		return err
	}

	var target Notifier
	switch kind {
	case validation.ContactEmail:
		target = r.Email
	case validation.ContactPhone:
		target = r.Phone
	}
	if target == nil {
		return fmt.Errorf("%s: %w", kind, ErrChannelUnavailable)
	}
	return target.Send(ctx, destination, code)
}
