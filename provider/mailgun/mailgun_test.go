package mailgun_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	mg "github.com/mailgun/mailgun-go/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/interactive-solutions/go-newsletter"
	"github.com/interactive-solutions/go-newsletter/provider/mailgun"
)

func TestMailgunTransport(t *testing.T) {
	suite.Run(t, new(mailgunTestSuite))
}

type sentForm struct {
	from    string
	to      string
	subject string
	html    string
	tags    []string
	replyTo string
}

type mailgunTestSuite struct {
	suite.Suite

	server *httptest.Server
	client *mg.MailgunImpl

	mu   sync.Mutex
	sent []sentForm
}

func (suite *mailgunTestSuite) SetupTest() {
	suite.sent = nil

	suite.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			http.NotFound(w, r)
			return
		}

		to := r.FormValue("to")
		if strings.HasPrefix(to, "bounce") {
			http.Error(w, `{"message": "to parameter is not a valid address"}`, http.StatusBadRequest)
			return
		}

		suite.mu.Lock()
		suite.sent = append(suite.sent, sentForm{
			from:    r.FormValue("from"),
			to:      to,
			subject: r.FormValue("subject"),
			html:    r.FormValue("html"),
			tags:    r.Form["o:tag"],
			replyTo: r.FormValue("h:Reply-To"),
		})
		id := len(suite.sent)
		suite.mu.Unlock()

		fmt.Fprintf(w, `{"message": "Queued. Thank you.", "id": "<%d@example.com>"}`, id)
	}))

	suite.client = mg.NewMailgun("example.com", "key")
	suite.client.SetAPIBase(suite.server.URL)
}

func (suite *mailgunTestSuite) TearDownTest() {
	suite.server.Close()
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

func (suite *mailgunTestSuite) TestSendBatch() {
	transport := mailgun.NewMailgunTransport(suite.client, mailgun.SetReplyTo("reply@example.com"))

	results, err := transport.SendBatch(context.Background(), []newsletter.Message{message("a@x.com"), message("b@x.com")})
	require.NoError(suite.T(), err)

	if assert.Len(suite.T(), results, 2) {
		assert.Equal(suite.T(), "a@x.com", results[0].Email)
		assert.Equal(suite.T(), "<1@example.com>", results[0].MessageID)
		assert.NoError(suite.T(), results[1].Err)
	}

	require.Len(suite.T(), suite.sent, 2)

	sent := suite.sent[0]
	assert.Equal(suite.T(), "Newsroom <news@example.com>", sent.from)
	assert.Equal(suite.T(), "a@x.com", sent.to)
	assert.Equal(suite.T(), "Weekly issue", sent.subject)
	assert.Equal(suite.T(), "<p>html</p>", sent.html)
	assert.Equal(suite.T(), []string{"newsletter", "weekly"}, sent.tags)
	assert.Equal(suite.T(), "reply@example.com", sent.replyTo)
}

func (suite *mailgunTestSuite) TestPartialFailure() {
	transport := mailgun.NewMailgunTransport(suite.client)

	results, err := transport.SendBatch(context.Background(), []newsletter.Message{message("a@x.com"), message("bounce@x.com")})
	require.Error(suite.T(), err)
	assert.Contains(suite.T(), err.Error(), "1 of 2 messages failed")

	if assert.Len(suite.T(), results, 2) {
		assert.NoError(suite.T(), results[0].Err)
		assert.Error(suite.T(), results[1].Err)
		assert.Empty(suite.T(), results[1].MessageID)
	}

	assert.Len(suite.T(), suite.sent, 1)
}
