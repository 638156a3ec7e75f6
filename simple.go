package newsletter

import (
	"context"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// SimpleBackend keeps subscriptions in the local stores and delivers
// newsletters itself through an EmailTransport.
type SimpleBackend struct {
	backendOptions

	stores    Stores
	transport EmailTransport
	renderer  Renderer
}

func NewSimpleBackend(stores Stores, transport EmailTransport, renderer Renderer, options ...BackendOption) (*SimpleBackend, error) {
	if transport == nil {
		return nil, errors.Wrap(ImproperlyConfiguredErr, "missing email transport")
	}

	return newSimpleBackend(stores, transport, renderer, options)
}

func newSimpleBackend(stores Stores, transport EmailTransport, renderer Renderer, options []BackendOption) (*SimpleBackend, error) {
	if err := stores.validate(); err != nil {
		return nil, err
	}

	if renderer == nil {
		return nil, errors.Wrap(ImproperlyConfiguredErr, "missing renderer")
	}

	return &SimpleBackend{
		backendOptions: newBackendOptions(options),
		stores:         stores,
		transport:      transport,
		renderer:       renderer,
	}, nil
}

func (b *SimpleBackend) Register(ctx context.Context, email string, list NewsletterList, lang string, user *int64) error {
	_, err := b.register(ctx, email, list, lang, user)
	return err
}

func (b *SimpleBackend) register(ctx context.Context, email string, list NewsletterList, lang string, user *int64) (Subscriber, error) {
	subscriber := Subscriber{
		Email:            NormalizeEmail(email),
		NewsletterListID: list.ID,
		Lang:             lang,
		UserID:           user,
		SubscribedAt:     b.now(),
	}

	if subscriber.Email == "" {
		return subscriber, errors.Wrap(InvalidSubscriberErr, "an email is required to register")
	}

	if !list.HasLang(lang) || !b.langAllowed(lang) {
		return subscriber, errors.Wrapf(InvalidSubscriberErr, "language %q is not allowed on list %s", lang, list.Slug)
	}

	created, err := b.stores.Subscribers.Upsert(ctx, &subscriber)
	if err != nil {
		return subscriber, errors.Wrapf(err, "failed to register %s to %s", subscriber.Email, list.Slug)
	}

	b.logger.
		WithField("email", subscriber.Email).
		WithField("list", list.Slug).
		WithField("lang", lang).
		WithField("created", created).
		Debug("registered subscriber")

	return subscriber, nil
}

func (b *SimpleBackend) Unregister(ctx context.Context, email string, list *NewsletterList, user *int64, lang string) error {
	criteria := subscriberCriteria(email, list, user, lang)
	if criteria.Email == "" && criteria.UserID == nil {
		return nil
	}

	criteria.OnlySubscribed = true

	count, err := b.stores.Subscribers.Unsubscribe(ctx, criteria, b.now())
	if err != nil {
		return errors.Wrapf(err, "failed to unregister %s", criteria.Email)
	}

	b.logger.
		WithField("email", criteria.Email).
		WithField("list", criteria.NewsletterListID).
		WithField("count", count).
		Debug("unregistered subscriber")

	return nil
}

func (b *SimpleBackend) Exists(ctx context.Context, email string, list *NewsletterList, user *int64, lang string) (bool, error) {
	return b.exists(ctx, subscriberCriteria(email, list, user, lang))
}

func (b *SimpleBackend) Subscribed(ctx context.Context, email string, list *NewsletterList, user *int64, lang string) (bool, error) {
	criteria := subscriberCriteria(email, list, user, lang)
	criteria.OnlySubscribed = true

	return b.exists(ctx, criteria)
}

func (b *SimpleBackend) exists(ctx context.Context, criteria SubscriberCriteria) (bool, error) {
	if criteria.Email == "" && criteria.UserID == nil {
		return false, nil
	}

	subscribers, err := b.stores.Subscribers.Matching(ctx, criteria)
	if err != nil {
		return false, err
	}

	return len(subscribers) > 0, nil
}

// memberships returns the lists holding a row matching criteria, whatever
// its subscription state.
func (b *SimpleBackend) memberships(ctx context.Context, criteria SubscriberCriteria) ([]NewsletterList, error) {
	subscribers, err := b.stores.Subscribers.Matching(ctx, criteria)
	if err != nil {
		return nil, err
	}

	ids := lo.Uniq(lo.Map(subscribers, func(s Subscriber, _ int) int64 {
		return s.NewsletterListID
	}))

	lists := make([]NewsletterList, 0, len(ids))
	for _, id := range ids {
		list, err := b.stores.Lists.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		lists = append(lists, list)
	}

	return lists, nil
}

func (b *SimpleBackend) SendMails(ctx context.Context, n *Newsletter) ([]DeliveryResult, error) {
	if !n.IsOnline() {
		return nil, NotOnlineErr
	}

	if b.fromEmail == "" {
		return nil, errors.Wrap(ImproperlyConfiguredErr, "a default from email is required")
	}

	list, items, err := b.content(ctx, n)
	if err != nil {
		return nil, err
	}

	subscribers, err := b.stores.Subscribers.Matching(ctx, SubscriberCriteria{
		NewsletterListID: list.ID,
		OnlySubscribed:   true,
	})
	if err != nil {
		return nil, err
	}

	subscribers = lo.Filter(subscribers, func(s Subscriber, _ int) bool {
		return n.Targets(s.Lang)
	})

	messages := make([]Message, 0, len(subscribers))
	for i := range subscribers {
		subscriber := subscribers[i]
		locale := b.localeFor(subscriber.Lang)

		data := TemplateData{
			Locale:     locale,
			List:       list,
			Newsletter: *n,
			Items:      items,
			Subscriber: &subscriber,
		}

		html, text, err := render(b.renderer, b.postProcessors, data)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to render newsletter %d for %s", n.ID, subscriber.Email)
		}

		messages = append(messages, Message{
			FromEmail: b.fromEmail,
			FromName:  b.fromName,
			To:        subscriber.Email,
			Subject:   n.Name,
			TextBody:  text,
			HtmlBody:  html,
			Tags:      []string{list.Slug, locale},
		})
	}

	results, err := b.transport.SendBatch(ctx, messages)
	if err != nil {
		b.logger.
			WithField("newsletter", n.ID).
			WithError(err).
			Error("failed to send newsletter")

		return results, b.policy.Handle(&RemoteError{Op: "send batch", Err: err})
	}

	if err := b.markSent(ctx, n); err != nil {
		return results, err
	}

	b.logger.
		WithField("newsletter", n.ID).
		WithField("recipients", len(messages)).
		Info("newsletter sent")

	return results, nil
}

func (b *SimpleBackend) markSent(ctx context.Context, n *Newsletter) error {
	if err := b.stores.Newsletters.MarkSent(ctx, n); err != nil {
		return errors.Wrapf(err, "failed to mark newsletter %d as sent", n.ID)
	}

	n.Sent = true

	return nil
}

// content loads the list and the ordered items of n.
func (b *SimpleBackend) content(ctx context.Context, n *Newsletter) (NewsletterList, []NewsletterItem, error) {
	list, err := b.stores.Lists.Get(ctx, n.NewsletterListID)
	if err != nil {
		return list, nil, errors.Wrapf(err, "failed to load list of newsletter %d", n.ID)
	}

	if n.Items != nil {
		return list, n.Items, nil
	}

	stored, err := b.stores.Newsletters.Get(ctx, n.ID)
	if err != nil {
		return list, nil, errors.Wrapf(err, "failed to load items of newsletter %d", n.ID)
	}

	return list, stored.Items, nil
}

func render(renderer Renderer, processors PostProcessors, data TemplateData) (string, string, error) {
	html, err := renderer.Render(HtmlTemplate, data)
	if err != nil {
		return "", "", err
	}

	text, err := renderer.Render(TextTemplate, data)
	if err != nil {
		return "", "", err
	}

	return processors.Apply(html), text, nil
}
