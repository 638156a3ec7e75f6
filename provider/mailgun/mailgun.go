package mailgun

import (
	"context"
	"fmt"

	"github.com/mailgun/mailgun-go/v3"
	"github.com/pkg/errors"

	"github.com/interactive-solutions/go-newsletter"
)

// Client is the part of mailgun.Mailgun the transport uses.
type Client interface {
	NewMessage(from, subject, text string, to ...string) *mailgun.Message
	Send(ctx context.Context, m *mailgun.Message) (string, string, error)
}

type MailgunOption func(t *mailgunTransport) error

func SetReplyTo(replyTo string) MailgunOption {
	return func(t *mailgunTransport) error {
		t.replyTo = replyTo
		return nil
	}
}

// SetTracking toggles mailgun open and click tracking on every message.
func SetTracking(enabled bool) MailgunOption {
	return func(t *mailgunTransport) error {
		t.tracking = &enabled
		return nil
	}
}

type mailgunTransport struct {
	mg Client

	replyTo  string
	tracking *bool
}

func NewMailgunTransport(mailgunClient Client, options ...MailgunOption) newsletter.EmailTransport {
	t := &mailgunTransport{
		mg: mailgunClient,
	}

	for _, option := range options {
		option(t)
	}

	return t
}

func (t *mailgunTransport) SendBatch(ctx context.Context, messages []newsletter.Message) ([]newsletter.DeliveryResult, error) {
	results := make([]newsletter.DeliveryResult, 0, len(messages))
	failed := 0

	var first error

	for _, message := range messages {
		id, err := t.send(ctx, message)
		results = append(results, newsletter.DeliveryResult{Email: message.To, MessageID: id, Err: err})

		if err != nil {
			failed++

			if first == nil {
				first = err
			}
		}
	}

	if first != nil {
		return results, errors.Wrapf(first, "%d of %d messages failed", failed, len(messages))
	}

	return results, nil
}

func (t *mailgunTransport) send(ctx context.Context, message newsletter.Message) (string, error) {
	from := message.FromEmail
	if message.FromName != "" {
		from = fmt.Sprintf("%s <%s>", message.FromName, message.FromEmail)
	}

	msg := t.mg.NewMessage(from, message.Subject, message.TextBody, message.To)
	msg.SetHtml(message.HtmlBody)

	if len(message.Tags) > 0 {
		if err := msg.AddTag(message.Tags...); err != nil {
			return "", errors.Wrap(err, "Failed to add tags")
		}
	}

	if t.replyTo != "" {
		msg.SetReplyTo(t.replyTo)
	}

	if t.tracking != nil {
		msg.SetTracking(*t.tracking)
	}

	_, id, err := t.mg.Send(ctx, msg)
	if err != nil {
		return "", errors.Wrapf(err, "Failed to send message to %s", message.To)
	}

	return id, nil
}
