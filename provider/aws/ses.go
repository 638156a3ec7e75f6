package provider

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/aws/aws-sdk-go/service/ses/sesiface"
	"github.com/pkg/errors"

	"github.com/interactive-solutions/go-newsletter"
)

type sesTransport struct {
	ses sesiface.SESAPI

	configurationSet string
	charset          string
}

func NewSesTransport(sess *session.Session, configurationSet string) newsletter.EmailTransport {
	return newSesTransport(ses.New(sess), configurationSet)
}

func newSesTransport(api sesiface.SESAPI, configurationSet string) *sesTransport {
	return &sesTransport{
		ses:              api,
		configurationSet: configurationSet,
		charset:          "UTF-8",
	}
}

func (transport *sesTransport) SendBatch(ctx context.Context, messages []newsletter.Message) ([]newsletter.DeliveryResult, error) {
	results := make([]newsletter.DeliveryResult, 0, len(messages))
	failed := 0

	var first error

	for _, message := range messages {
		id, err := transport.send(ctx, message)
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

func (transport *sesTransport) send(ctx context.Context, message newsletter.Message) (string, error) {
	source := message.FromEmail
	if message.FromName != "" {
		source = fmt.Sprintf("%s <%s>", message.FromName, message.FromEmail)
	}

	input := &ses.SendEmailInput{
		Destination: &ses.Destination{
			ToAddresses: []*string{
				aws.String(message.To),
			},
		},
		Message: &ses.Message{
			Body: &ses.Body{
				Html: &ses.Content{
					Charset: aws.String(transport.charset),
					Data:    aws.String(message.HtmlBody),
				},
				Text: &ses.Content{
					Charset: aws.String(transport.charset),
					Data:    aws.String(message.TextBody),
				},
			},
			Subject: &ses.Content{
				Charset: aws.String(transport.charset),
				Data:    aws.String(message.Subject),
			},
		},

		Source: aws.String(source),
	}

	if transport.configurationSet != "" {
		input.ConfigurationSetName = aws.String(transport.configurationSet)
	}

	for i, tag := range message.Tags {
		input.Tags = append(input.Tags, &ses.MessageTag{
			Name:  aws.String(fmt.Sprintf("tag%d", i)),
			Value: aws.String(tag),
		})
	}

	output, err := transport.ses.SendEmailWithContext(ctx, input)
	if err != nil {
		return "", errors.Wrapf(err, "Failed to send message to %s", message.To)
	}

	return aws.StringValue(output.MessageId), nil
}
