package newsletter_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/interactive-solutions/go-newsletter"
)

type fakeTransport struct {
	mu      sync.Mutex
	batches [][]newsletter.Message
	err     error
}

func (t *fakeTransport) SendBatch(ctx context.Context, messages []newsletter.Message) ([]newsletter.DeliveryResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.batches = append(t.batches, messages)

	results := make([]newsletter.DeliveryResult, 0, len(messages))
	for i, message := range messages {
		results = append(results, newsletter.DeliveryResult{
			Email:     message.To,
			MessageID: fmt.Sprintf("message-%d", i),
			Err:       t.err,
		})
	}

	return results, t.err
}

func (t *fakeTransport) sent() []newsletter.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	var messages []newsletter.Message
	for _, batch := range t.batches {
		messages = append(messages, batch...)
	}

	return messages
}

type remoteCall struct {
	op     string
	listID string
	email  string
}

type fakeAdapter struct {
	mu sync.Mutex

	lists      map[string]string
	listsCalls int
	listsErr   error

	subscribeErr   error
	unsubscribeErr error
	campaignErr    error

	calls        []remoteCall
	campaigns    []newsletter.Campaign
	unsubscribed []string
}

func newFakeAdapter(lists map[string]string) *fakeAdapter {
	return &fakeAdapter{lists: lists}
}

func (a *fakeAdapter) Lists(ctx context.Context) (map[string]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.listsCalls++

	if a.listsErr != nil {
		return nil, a.listsErr
	}

	ids := make(map[string]string, len(a.lists))
	for name, id := range a.lists {
		ids[name] = id
	}

	return ids, nil
}

func (a *fakeAdapter) Subscribe(ctx context.Context, listID, email string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.calls = append(a.calls, remoteCall{op: "subscribe", listID: listID, email: email})

	return a.subscribeErr
}

func (a *fakeAdapter) Unsubscribe(ctx context.Context, listID, email string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.calls = append(a.calls, remoteCall{op: "unsubscribe", listID: listID, email: email})

	return a.unsubscribeErr
}

func (a *fakeAdapter) SendCampaign(ctx context.Context, campaign newsletter.Campaign) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.campaigns = append(a.campaigns, campaign)

	if a.campaignErr != nil {
		return "", a.campaignErr
	}

	return fmt.Sprintf("campaign-%d", len(a.campaigns)), nil
}

func (a *fakeAdapter) FormatSlug(parts ...string) string {
	return parts[0] + strings.ToUpper(strings.Join(parts[1:], ""))
}

func (a *fakeAdapter) UnsubscribedContacts(ctx context.Context) ([]string, error) {
	return a.unsubscribed, nil
}

func (a *fakeAdapter) recorded() []remoteCall {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]remoteCall{}, a.calls...)
}

func newRenderer(t *testing.T) newsletter.Renderer {
	renderer, err := newsletter.NewTemplateRenderer(nil, newsletter.SetTranslations(map[string]map[string]string{
		"en": {"read_more": "Read more", "sent_to": "Sent to"},
		"fr": {"read_more": "Lire la suite", "sent_to": "Envoyé à"},
	}))
	require.NoError(t, err, "Failed to create the renderer")

	return renderer
}

func createList(t *testing.T, stores newsletter.Stores, name string, languages ...string) newsletter.NewsletterList {
	list := newsletter.NewNewsletterList(name, languages...)
	require.NoError(t, stores.Lists.Create(context.Background(), &list))

	return list
}

func createNewsletter(t *testing.T, stores newsletter.Stores, list newsletter.NewsletterList, status newsletter.Status, publishedAt time.Time, languages ...string) newsletter.Newsletter {
	n := newsletter.Newsletter{
		Name:             fmt.Sprintf("%s issue", list.Name),
		Headline:         "Headline",
		Status:           status,
		NewsletterListID: list.ID,
		Languages:        languages,
	}

	if !publishedAt.IsZero() {
		n.PublishedAt = &publishedAt
	}

	require.NoError(t, stores.Newsletters.Create(context.Background(), &n))

	require.NoError(t, stores.Newsletters.AddItem(context.Background(), &newsletter.NewsletterItem{
		NewsletterID: n.ID,
		Name:         "First item",
		URL:          "https://example.com/first",
		Position:     1,
	}))

	return n
}
