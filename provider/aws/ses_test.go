package provider

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/aws/aws-sdk-go/service/ses/sesiface"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/interactive-solutions/go-newsletter"
)

func TestSesTransport(t *testing.T) {
	suite.Run(t, new(sesTestSuite))
}

type fakeSes struct {
	sesiface.SESAPI

	inputs []*ses.SendEmailInput
}

func (f *fakeSes) SendEmailWithContext(ctx aws.Context, input *ses.SendEmailInput, opts ...request.Option) (*ses.SendEmailOutput, error) {
	if aws.StringValue(input.Destination.ToAddresses[0]) == "bounce@x.com" {
		return nil, errors.New("MessageRejected: Email address is not verified")
	}

	f.inputs = append(f.inputs, input)

	return &ses.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

type sesTestSuite struct {
	suite.Suite

	api       *fakeSes
	transport newsletter.EmailTransport
}

func (suite *sesTestSuite) SetupTest() {
	suite.api = &fakeSes{}
	suite.transport = newSesTransport(suite.api, "newsletters")
}

func message(to string) newsletter.Message {
	return newsletter.Message{
		To:        to,
		FromEmail: "news@example.com",
		FromName:  "Newsroom",
		Subject:   "Weekly issue",
		HtmlBody:  "<p>html</p>",
		TextBody:  "text",
		Tags:      []string{"newsletter", "weekly"},
	}
}

func (suite *sesTestSuite) TestSendBatch() {
	results, err := suite.transport.SendBatch(context.Background(), []newsletter.Message{message("a@x.com")})
	require.NoError(suite.T(), err)

	if assert.Len(suite.T(), results, 1) {
		assert.Equal(suite.T(), "ses-1", results[0].MessageID)
	}

	require.Len(suite.T(), suite.api.inputs, 1)

	input := suite.api.inputs[0]
	assert.Equal(suite.T(), "Newsroom <news@example.com>", aws.StringValue(input.Source))
	assert.Equal(suite.T(), "newsletters", aws.StringValue(input.ConfigurationSetName))
	assert.Equal(suite.T(), "Weekly issue", aws.StringValue(input.Message.Subject.Data))
	assert.Equal(suite.T(), "<p>html</p>", aws.StringValue(input.Message.Body.Html.Data))
	assert.Equal(suite.T(), "text", aws.StringValue(input.Message.Body.Text.Data))

	if assert.Len(suite.T(), input.Tags, 2) {
		assert.Equal(suite.T(), "tag0", aws.StringValue(input.Tags[0].Name))
		assert.Equal(suite.T(), "weekly", aws.StringValue(input.Tags[1].Value))
	}
}

func (suite *sesTestSuite) TestPartialFailure() {
	results, err := suite.transport.SendBatch(context.Background(), []newsletter.Message{
		message("bounce@x.com"),
		message("a@x.com"),
	})
	require.Error(suite.T(), err)
	assert.Contains(suite.T(), err.Error(), "1 of 2 messages failed")

	if assert.Len(suite.T(), results, 2) {
		assert.Error(suite.T(), results[0].Err)
		assert.NoError(suite.T(), results[1].Err)
	}
}

func (suite *sesTestSuite) TestWithoutConfigurationSet() {
	transport := newSesTransport(suite.api, "")

	_, err := transport.SendBatch(context.Background(), []newsletter.Message{message("a@x.com")})
	require.NoError(suite.T(), err)

	assert.Nil(suite.T(), suite.api.inputs[0].ConfigurationSetName)
}
