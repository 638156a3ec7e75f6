package newsletter_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/interactive-solutions/go-newsletter"
	"github.com/interactive-solutions/go-newsletter/storage/memory"
)

func TestSimpleBackend(t *testing.T) {
	suite.Run(t, new(simpleBackendTestSuite))
}

type simpleBackendTestSuite struct {
	suite.Suite

	ctx       context.Context
	stores    newsletter.Stores
	transport *fakeTransport
	backend   *newsletter.SimpleBackend
}

func (suite *simpleBackendTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.stores = memory.NewStores()
	suite.transport = &fakeTransport{}

	backend, err := newsletter.NewSimpleBackend(
		suite.stores,
		suite.transport,
		newRenderer(suite.T()),
		newsletter.SetFromEmail("news@example.com"),
		newsletter.SetFromName("News"),
	)
	require.NoError(suite.T(), err, "Failed to create the backend")

	suite.backend = backend
}

func (suite *simpleBackendTestSuite) subscribers(criteria newsletter.SubscriberCriteria) []newsletter.Subscriber {
	subscribers, err := suite.stores.Subscribers.Matching(suite.ctx, criteria)
	require.NoError(suite.T(), err)

	return subscribers
}

func (suite *simpleBackendTestSuite) TestRequiresTransport() {
	_, err := newsletter.NewSimpleBackend(suite.stores, nil, newRenderer(suite.T()))

	assert.True(suite.T(), errors.Is(err, newsletter.ImproperlyConfiguredErr))
}

func (suite *simpleBackendTestSuite) TestRegisterIsIdempotent() {
	list := createList(suite.T(), suite.stores, "Weekly")

	now := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	backend, err := newsletter.NewSimpleBackend(suite.stores, suite.transport, newRenderer(suite.T()),
		newsletter.SetClock(func() time.Time { return now }),
	)
	require.NoError(suite.T(), err)

	require.NoError(suite.T(), backend.Register(suite.ctx, "a@x.com", list, "fr", nil))
	first := suite.subscribers(newsletter.SubscriberCriteria{Email: "a@x.com"})

	now = now.Add(48 * time.Hour)
	require.NoError(suite.T(), backend.Register(suite.ctx, "a@x.com", list, "FR", nil))
	second := suite.subscribers(newsletter.SubscriberCriteria{Email: "a@x.com"})

	if assert.Len(suite.T(), second, 1) {
		assert.Equal(suite.T(), first, second, "registering twice leaves the row untouched")
		assert.True(suite.T(), second[0].Subscribed())
	}
}

func (suite *simpleBackendTestSuite) TestRegisterAfterUnregisterRefreshesDates() {
	list := createList(suite.T(), suite.stores, "Weekly")

	now := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	backend, err := newsletter.NewSimpleBackend(suite.stores, suite.transport, newRenderer(suite.T()),
		newsletter.SetClock(func() time.Time { return now }),
	)
	require.NoError(suite.T(), err)

	require.NoError(suite.T(), backend.Register(suite.ctx, "a@x.com", list, "", nil))

	now = now.Add(time.Hour)
	require.NoError(suite.T(), backend.Unregister(suite.ctx, "a@x.com", &list, nil, ""))

	now = now.Add(time.Hour)
	require.NoError(suite.T(), backend.Register(suite.ctx, "a@x.com", list, "", nil))

	subscribers := suite.subscribers(newsletter.SubscriberCriteria{Email: "a@x.com"})
	if assert.Len(suite.T(), subscribers, 1) {
		assert.True(suite.T(), subscribers[0].Subscribed())
		assert.Nil(suite.T(), subscribers[0].UnsubscribedAt)
		assert.True(suite.T(), now.Equal(subscribers[0].SubscribedAt))
	}
}

func (suite *simpleBackendTestSuite) TestRegisterNormalizesEmail() {
	list := createList(suite.T(), suite.stores, "Weekly")

	require.NoError(suite.T(), suite.backend.Register(suite.ctx, "  A@X.com ", list, "", nil))
	require.NoError(suite.T(), suite.backend.Register(suite.ctx, "a@x.COM", list, "", nil))

	subscribed, err := suite.backend.Subscribed(suite.ctx, "a@x.com", &list, nil, "")
	require.NoError(suite.T(), err)

	assert.True(suite.T(), subscribed)
	assert.Len(suite.T(), suite.subscribers(newsletter.SubscriberCriteria{}), 1)
}

func (suite *simpleBackendTestSuite) TestRegisterRejectsInvalidInput() {
	list := createList(suite.T(), suite.stores, "Weekly", "en", "fr")

	err := suite.backend.Register(suite.ctx, " ", list, "en", nil)
	assert.True(suite.T(), errors.Is(err, newsletter.InvalidSubscriberErr))

	err = suite.backend.Register(suite.ctx, "a@x.com", list, "de", nil)
	assert.True(suite.T(), errors.Is(err, newsletter.InvalidSubscriberErr))
	assert.NoError(suite.T(), suite.backend.Register(suite.ctx, "a@x.com", list, "FR", nil))
}

func (suite *simpleBackendTestSuite) TestRegisterHonoursAllowedLanguages() {
	backend, err := newsletter.NewSimpleBackend(suite.stores, suite.transport, newRenderer(suite.T()),
		newsletter.SetAllowedLanguages("en"),
	)
	require.NoError(suite.T(), err)

	list := createList(suite.T(), suite.stores, "Weekly")

	assert.Error(suite.T(), backend.Register(suite.ctx, "a@x.com", list, "fr", nil))
	assert.NoError(suite.T(), backend.Register(suite.ctx, "a@x.com", list, "en", nil))
}

func (suite *simpleBackendTestSuite) TestRegisterUnregisterRoundTrip() {
	list := createList(suite.T(), suite.stores, "Weekly")

	require.NoError(suite.T(), suite.backend.Register(suite.ctx, "a@x.com", list, "", nil))
	require.NoError(suite.T(), suite.backend.Unregister(suite.ctx, "a@x.com", &list, nil, ""))

	exists, err := suite.backend.Exists(suite.ctx, "a@x.com", &list, nil, "")
	require.NoError(suite.T(), err)
	assert.True(suite.T(), exists)

	subscribed, err := suite.backend.Subscribed(suite.ctx, "a@x.com", &list, nil, "")
	require.NoError(suite.T(), err)
	assert.False(suite.T(), subscribed)

	subscribers := suite.subscribers(newsletter.SubscriberCriteria{Email: "a@x.com"})
	require.Len(suite.T(), subscribers, 1)
	assert.NotNil(suite.T(), subscribers[0].UnsubscribedAt)

	require.NoError(suite.T(), suite.backend.Register(suite.ctx, "a@x.com", list, "", nil))

	subscribers = suite.subscribers(newsletter.SubscriberCriteria{Email: "a@x.com"})
	if assert.Len(suite.T(), subscribers, 1) {
		assert.True(suite.T(), subscribers[0].Subscribed())
		assert.Nil(suite.T(), subscribers[0].UnsubscribedAt)
	}
}

func (suite *simpleBackendTestSuite) TestUnregisterIsScopedToList() {
	a := createList(suite.T(), suite.stores, "List A")
	b := createList(suite.T(), suite.stores, "List B")

	require.NoError(suite.T(), suite.backend.Register(suite.ctx, "a@x.com", a, "", nil))
	require.NoError(suite.T(), suite.backend.Register(suite.ctx, "a@x.com", b, "", nil))

	require.NoError(suite.T(), suite.backend.Unregister(suite.ctx, "a@x.com", &a, nil, ""))

	subscribedA, err := suite.backend.Subscribed(suite.ctx, "a@x.com", &a, nil, "")
	require.NoError(suite.T(), err)
	subscribedB, err := suite.backend.Subscribed(suite.ctx, "a@x.com", &b, nil, "")
	require.NoError(suite.T(), err)

	assert.False(suite.T(), subscribedA)
	assert.True(suite.T(), subscribedB)

	require.NoError(suite.T(), suite.backend.Unregister(suite.ctx, "a@x.com", nil, nil, ""))

	assert.Empty(suite.T(), suite.subscribers(newsletter.SubscriberCriteria{OnlySubscribed: true}))
}

func (suite *simpleBackendTestSuite) TestUnregisterByUser() {
	list := createList(suite.T(), suite.stores, "Weekly")
	user := int64(42)

	require.NoError(suite.T(), suite.backend.Register(suite.ctx, "a@x.com", list, "", &user))
	require.NoError(suite.T(), suite.backend.Register(suite.ctx, "b@x.com", list, "", nil))

	require.NoError(suite.T(), suite.backend.Unregister(suite.ctx, "", nil, &user, ""))

	remaining := suite.subscribers(newsletter.SubscriberCriteria{OnlySubscribed: true})
	if assert.Len(suite.T(), remaining, 1) {
		assert.Equal(suite.T(), "b@x.com", remaining[0].Email)
	}
}

func (suite *simpleBackendTestSuite) TestUnregisterUnknownEmailIsNoop() {
	list := createList(suite.T(), suite.stores, "Weekly")

	assert.NoError(suite.T(), suite.backend.Unregister(suite.ctx, "nobody@x.com", &list, nil, ""))
	assert.NoError(suite.T(), suite.backend.Unregister(suite.ctx, "", nil, nil, ""))
}

func (suite *simpleBackendTestSuite) TestSendMailsFiltersLanguages() {
	list := createList(suite.T(), suite.stores, "Weekly")

	require.NoError(suite.T(), suite.backend.Register(suite.ctx, "none@x.com", list, "", nil))
	require.NoError(suite.T(), suite.backend.Register(suite.ctx, "fr@x.com", list, "fr", nil))
	require.NoError(suite.T(), suite.backend.Register(suite.ctx, "us@x.com", list, "en-us", nil))

	n := createNewsletter(suite.T(), suite.stores, list, newsletter.StatusOnline, time.Now(), "fr")

	_, err := suite.backend.SendMails(suite.ctx, &n)
	require.NoError(suite.T(), err)

	sent := suite.transport.sent()
	if assert.Len(suite.T(), sent, 1) {
		assert.Equal(suite.T(), "fr@x.com", sent[0].To)
		assert.Contains(suite.T(), sent[0].HtmlBody, "Lire la suite")
		assert.Contains(suite.T(), sent[0].TextBody, "Envoyé à fr@x.com")
	}
}

func (suite *simpleBackendTestSuite) TestSendMailsMonthlyFrench() {
	list := createList(suite.T(), suite.stores, "monthly", "fr")

	require.NoError(suite.T(), suite.backend.Register(suite.ctx, "a@x.com", list, "fr", nil))

	n := createNewsletter(suite.T(), suite.stores, list, newsletter.StatusOnline, time.Now(), "fr")

	results, err := suite.backend.SendMails(suite.ctx, &n)
	require.NoError(suite.T(), err)

	if assert.Len(suite.T(), results, 1) {
		assert.Equal(suite.T(), "a@x.com", results[0].Email)
	}

	assert.True(suite.T(), n.Sent)

	stored, err := suite.stores.Newsletters.Get(suite.ctx, n.ID)
	require.NoError(suite.T(), err)
	assert.True(suite.T(), stored.Sent)
}

func (suite *simpleBackendTestSuite) TestSendMailsRejectsDraft() {
	list := createList(suite.T(), suite.stores, "Weekly")
	require.NoError(suite.T(), suite.backend.Register(suite.ctx, "a@x.com", list, "", nil))

	n := createNewsletter(suite.T(), suite.stores, list, newsletter.StatusDraft, time.Time{})

	_, err := suite.backend.SendMails(suite.ctx, &n)

	assert.True(suite.T(), errors.Is(err, newsletter.NotOnlineErr))
	assert.False(suite.T(), n.Sent)
	assert.Empty(suite.T(), suite.transport.sent())

	stored, err := suite.stores.Newsletters.Get(suite.ctx, n.ID)
	require.NoError(suite.T(), err)
	assert.False(suite.T(), stored.Sent)
}

func (suite *simpleBackendTestSuite) TestSendMailsKeepsSentFlag() {
	list := createList(suite.T(), suite.stores, "Weekly")
	require.NoError(suite.T(), suite.backend.Register(suite.ctx, "a@x.com", list, "", nil))

	n := createNewsletter(suite.T(), suite.stores, list, newsletter.StatusOnline, time.Now())

	_, err := suite.backend.SendMails(suite.ctx, &n)
	require.NoError(suite.T(), err)
	_, err = suite.backend.SendMails(suite.ctx, &n)
	require.NoError(suite.T(), err)

	assert.True(suite.T(), n.Sent)

	stored, err := suite.stores.Newsletters.Get(suite.ctx, n.ID)
	require.NoError(suite.T(), err)
	assert.True(suite.T(), stored.Sent)
}

func (suite *simpleBackendTestSuite) TestSendMailsFailureLeavesSentUnset() {
	list := createList(suite.T(), suite.stores, "Weekly")
	require.NoError(suite.T(), suite.backend.Register(suite.ctx, "a@x.com", list, "", nil))

	n := createNewsletter(suite.T(), suite.stores, list, newsletter.StatusOnline, time.Now())

	suite.transport.err = errors.New("connection refused")

	_, err := suite.backend.SendMails(suite.ctx, &n)

	assert.True(suite.T(), newsletter.IsRemote(err))
	assert.False(suite.T(), n.Sent)
}

func (suite *simpleBackendTestSuite) TestSendMailsFailSilently() {
	backend, err := newsletter.NewSimpleBackend(suite.stores, suite.transport, newRenderer(suite.T()),
		newsletter.SetFromEmail("news@example.com"),
		newsletter.SetFailSilently(true),
	)
	require.NoError(suite.T(), err)

	list := createList(suite.T(), suite.stores, "Weekly")
	require.NoError(suite.T(), backend.Register(suite.ctx, "a@x.com", list, "", nil))

	n := createNewsletter(suite.T(), suite.stores, list, newsletter.StatusOnline, time.Now())

	suite.transport.err = errors.New("connection refused")

	_, err = backend.SendMails(suite.ctx, &n)

	assert.NoError(suite.T(), err)
	assert.False(suite.T(), n.Sent)
}

func (suite *simpleBackendTestSuite) TestSendMailsRequiresSender() {
	backend, err := newsletter.NewSimpleBackend(suite.stores, suite.transport, newRenderer(suite.T()))
	require.NoError(suite.T(), err)

	list := createList(suite.T(), suite.stores, "Weekly")
	n := createNewsletter(suite.T(), suite.stores, list, newsletter.StatusOnline, time.Now())

	_, err = backend.SendMails(suite.ctx, &n)

	assert.True(suite.T(), errors.Is(err, newsletter.ImproperlyConfiguredErr))
}

func (suite *simpleBackendTestSuite) TestSendMailsAppliesPostProcessors() {
	backend, err := newsletter.NewSimpleBackend(suite.stores, suite.transport, newRenderer(suite.T()),
		newsletter.SetFromEmail("news@example.com"),
		newsletter.SetPostProcessors(newsletter.AddLinkParams(map[string]string{"utm_source": "newsletter"})),
	)
	require.NoError(suite.T(), err)

	list := createList(suite.T(), suite.stores, "Weekly")
	require.NoError(suite.T(), backend.Register(suite.ctx, "a@x.com", list, "", nil))

	n := createNewsletter(suite.T(), suite.stores, list, newsletter.StatusOnline, time.Now())

	_, err = backend.SendMails(suite.ctx, &n)
	require.NoError(suite.T(), err)

	sent := suite.transport.sent()
	if assert.Len(suite.T(), sent, 1) {
		assert.Contains(suite.T(), sent[0].HtmlBody, `href="https://example.com/first?utm_source=newsletter"`)
		assert.Equal(suite.T(), []string{list.Slug, "en"}, sent[0].Tags)
	}
}
