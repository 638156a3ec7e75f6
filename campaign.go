package newsletter

import (
	"context"
	stderrors "errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// CampaignBackend keeps the local stores in sync with the lists of an email
// marketing vendor and sends newsletters as vendor campaigns.
type CampaignBackend struct {
	local   *SimpleBackend
	adapter VendorAdapter

	mu      sync.Mutex
	listIDs map[string]string
}

func NewCampaignBackend(adapter VendorAdapter, stores Stores, renderer Renderer, options ...BackendOption) (*CampaignBackend, error) {
	if adapter == nil {
		return nil, errors.Wrap(ImproperlyConfiguredErr, "missing vendor adapter")
	}

	local, err := newSimpleBackend(stores, nil, renderer, options)
	if err != nil {
		return nil, err
	}

	return &CampaignBackend{
		local:   local,
		adapter: adapter,
	}, nil
}

// remoteLists fetches the remote list ids once per backend.
func (b *CampaignBackend) remoteLists(ctx context.Context) (map[string]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.listIDs != nil {
		return b.listIDs, nil
	}

	ids, err := b.adapter.Lists(ctx)
	if err != nil {
		return nil, &RemoteError{Op: "lists", Err: err}
	}

	b.listIDs = ids

	return ids, nil
}

// resolve returns the remote id of list, or of its lang variant.
func (b *CampaignBackend) resolve(ctx context.Context, list NewsletterList, lang string) (string, error) {
	if lang == "" && list.RemoteListID != "" {
		return list.RemoteListID, nil
	}

	ids, err := b.remoteLists(ctx)
	if err != nil {
		return "", err
	}

	key := b.adapter.FormatSlug(list.Slug)
	if lang != "" {
		key = b.adapter.FormatSlug(list.Slug, lang)
	}

	id, ok := ids[key]
	if !ok {
		return "", errors.Wrapf(RemoteListNotFoundErr, "list %s", key)
	}

	return id, nil
}

func (b *CampaignBackend) Register(ctx context.Context, email string, list NewsletterList, lang string, user *int64) error {
	subscriber, err := b.local.register(ctx, email, list, lang, user)
	if err != nil {
		return err
	}

	langs := []string{""}
	if lang != "" {
		langs = append(langs, lang)
	}

	return b.sync(ctx, "subscribe", subscriber.Email, list, langs, b.adapter.Subscribe)
}

func (b *CampaignBackend) Unregister(ctx context.Context, email string, list *NewsletterList, user *int64, lang string) error {
	criteria := subscriberCriteria(email, list, user, lang)
	if criteria.Email == "" && criteria.UserID == nil {
		return nil
	}

	if list == nil {
		lists, err := b.local.memberships(ctx, criteria)
		if err != nil {
			return err
		}

		var errs []error
		for i := range lists {
			if err := b.Unregister(ctx, email, &lists[i], user, lang); err != nil {
				errs = append(errs, err)
			}
		}

		return stderrors.Join(errs...)
	}

	rows, err := b.local.stores.Subscribers.Matching(ctx, criteria)
	if err != nil {
		return err
	}

	if err := b.local.Unregister(ctx, email, list, user, lang); err != nil {
		return err
	}

	emails, langs := unsubscribeTargets(criteria.Email, lang, rows)

	var errs []error
	for _, email := range emails {
		if err := b.sync(ctx, "unsubscribe", email, *list, langs[email], b.adapter.Unsubscribe); err != nil {
			errs = append(errs, err)
		}
	}

	return stderrors.Join(errs...)
}

// unsubscribeTargets returns the emails to remove from the remote lists and,
// per email, the languages its rows were registered with. The empty language
// stands for the list itself.
func unsubscribeTargets(email, lang string, rows []Subscriber) ([]string, map[string][]string) {
	var emails []string
	langs := map[string][]string{}

	add := func(email, lang string) {
		if _, ok := langs[email]; !ok {
			emails = append(emails, email)
			langs[email] = []string{""}
		}

		lang = strings.ToLower(lang)
		if lang != "" && !lo.Contains(langs[email], lang) {
			langs[email] = append(langs[email], lang)
		}
	}

	if email != "" {
		add(email, lang)
	}

	for _, row := range rows {
		add(row.Email, row.Lang)
	}

	return emails, langs
}

// sync applies call to the remote list of every language in langs, the empty
// language standing for the list itself. A failure does not stop the
// remaining languages; the errors kept by the policy are joined.
func (b *CampaignBackend) sync(ctx context.Context, op, email string, list NewsletterList, langs []string, call func(ctx context.Context, listID, email string) error) error {
	var errs []error

	for _, lang := range langs {
		listID, err := b.resolve(ctx, list, lang)
		if err != nil {
			if err := b.local.policy.Handle(err); err != nil {
				errs = append(errs, err)
			}

			continue
		}

		if err := call(ctx, listID, email); err != nil {
			b.local.logger.
				WithField("email", email).
				WithField("listId", listID).
				WithError(err).
				Errorf("failed to %s contact", op)

			if err := b.local.policy.Handle(&RemoteError{Op: op, ListID: listID, Err: err}); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return stderrors.Join(errs...)
}

func (b *CampaignBackend) Exists(ctx context.Context, email string, list *NewsletterList, user *int64, lang string) (bool, error) {
	return b.local.Exists(ctx, email, list, user, lang)
}

func (b *CampaignBackend) Subscribed(ctx context.Context, email string, list *NewsletterList, user *int64, lang string) (bool, error) {
	return b.local.Subscribed(ctx, email, list, user, lang)
}

type campaignTarget struct {
	listID string
	lang   string
}

func (b *CampaignBackend) SendMails(ctx context.Context, n *Newsletter) ([]DeliveryResult, error) {
	if !n.IsOnline() {
		return nil, NotOnlineErr
	}

	if b.local.fromEmail == "" {
		return nil, errors.Wrap(ImproperlyConfiguredErr, "a default from email is required")
	}

	if b.local.fromName == "" {
		return nil, errors.Wrap(ImproperlyConfiguredErr, "a default from name is required")
	}

	list, items, err := b.local.content(ctx, n)
	if err != nil {
		return nil, err
	}

	langs := n.Languages
	if len(langs) == 0 {
		langs = []string{""}
	}

	failed := false
	targets := make([]campaignTarget, 0, len(langs))

	for _, lang := range langs {
		listID, err := b.resolve(ctx, list, lang)
		if err != nil {
			if err := b.local.policy.Handle(err); err != nil {
				return nil, err
			}

			failed = true
			continue
		}

		targets = append(targets, campaignTarget{listID: listID, lang: lang})
	}

	results := make([]DeliveryResult, 0, len(targets))

	for _, target := range targets {
		campaignID, err := b.sendCampaign(ctx, n, list, items, target)
		results = append(results, DeliveryResult{ListID: target.listID, MessageID: campaignID, Err: err})

		if err == nil {
			continue
		}

		if !IsRemote(err) {
			return results, err
		}

		b.local.logger.
			WithField("newsletter", n.ID).
			WithField("listId", target.listID).
			WithError(err).
			Error("failed to send campaign")

		failed = true

		if err := b.local.policy.Handle(err); err != nil {
			return results, err
		}
	}

	if failed {
		return results, nil
	}

	if err := b.local.markSent(ctx, n); err != nil {
		return results, err
	}

	b.local.logger.
		WithField("newsletter", n.ID).
		WithField("campaigns", len(results)).
		Info("newsletter campaigns sent")

	return results, nil
}

func (b *CampaignBackend) sendCampaign(ctx context.Context, n *Newsletter, list NewsletterList, items []NewsletterItem, target campaignTarget) (string, error) {
	locale := b.local.localeFor(target.lang)

	html, text, err := render(b.local.renderer, b.local.postProcessors, TemplateData{
		Locale:     locale,
		List:       list,
		Newsletter: *n,
		Items:      items,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to render newsletter %d", n.ID)
	}

	campaignID, err := b.adapter.SendCampaign(ctx, Campaign{
		NewsletterID: n.ID,
		ListID:       target.listID,
		Subject:      n.Name,
		Title:        n.Name,
		FromEmail:    b.local.fromEmail,
		FromName:     b.local.fromName,
		Locale:       locale,
		HtmlBody:     html,
		TextBody:     text,
	})
	if err != nil {
		return campaignID, &RemoteError{Op: "send campaign", ListID: target.listID, Err: err}
	}

	return campaignID, nil
}

// SyncUnsubscribed pushes to the vendor every local unsubscription it does
// not know about yet and returns the number of emails synchronised.
func (b *CampaignBackend) SyncUnsubscribed(ctx context.Context) (int, error) {
	lister, ok := b.adapter.(UnsubscribedLister)
	if !ok {
		return 0, errors.Wrap(ImproperlyConfiguredErr, "the vendor adapter cannot list unsubscribed contacts")
	}

	subscribers, err := b.local.stores.Subscribers.Matching(ctx, SubscriberCriteria{OnlyUnsubscribed: true})
	if err != nil {
		return 0, err
	}

	contacts, err := lister.UnsubscribedContacts(ctx)
	if err != nil {
		return 0, &RemoteError{Op: "list unsubscribed contacts", Err: err}
	}

	remote := make(map[string]struct{}, len(contacts))
	for _, email := range contacts {
		remote[NormalizeEmail(email)] = struct{}{}
	}

	sort.SliceStable(subscribers, func(i, j int) bool {
		return unsubscribedAt(subscribers[i]).After(unsubscribedAt(subscribers[j]))
	})

	synced := map[string]struct{}{}

	for _, subscriber := range subscribers {
		if _, ok := remote[subscriber.Email]; ok {
			continue
		}

		list, err := b.local.stores.Lists.Get(ctx, subscriber.NewsletterListID)
		if err != nil {
			return len(synced), err
		}

		langs := []string{""}
		if subscriber.Lang != "" {
			langs = append(langs, subscriber.Lang)
		}

		if err := b.sync(ctx, "unsubscribe", subscriber.Email, list, langs, b.adapter.Unsubscribe); err != nil {
			return len(synced), err
		}

		b.local.logger.WithField("email", subscriber.Email).Info("synchronised unsubscribed contact")

		synced[subscriber.Email] = struct{}{}
	}

	return len(synced), nil
}

func unsubscribedAt(s Subscriber) time.Time {
	if s.UnsubscribedAt == nil {
		return time.Time{}
	}

	return *s.UnsubscribedAt
}
