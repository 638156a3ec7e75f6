package newsletter

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	ListNotFoundErr       = errors.New("The newsletter list was not found")
	NewsletterNotFoundErr = errors.New("The newsletter was not found")
	SubscriberNotFoundErr = errors.New("The subscriber was not found")
)

type ListRepository interface {
	Get(ctx context.Context, id int64) (NewsletterList, error)
	GetBySlug(ctx context.Context, slug string) (NewsletterList, error)
	All(ctx context.Context) ([]NewsletterList, error)

	Create(ctx context.Context, list *NewsletterList) error
	Update(ctx context.Context, list *NewsletterList) error
}

type NewsletterCriteria struct {
	NewsletterListID int64
	Lang             string

	// Published restricts the result to online newsletters published before
	// PublishedBefore.
	Published       bool
	PublishedBefore time.Time

	Offset int
	Limit  int
}

type NewsletterRepository interface {
	// Get returns the newsletter with its items ordered by position.
	Get(ctx context.Context, id int64) (Newsletter, error)
	Matching(ctx context.Context, criteria NewsletterCriteria) ([]Newsletter, int, error)

	// Previous and Next navigate the published issues of the newsletter's list.
	Previous(ctx context.Context, n Newsletter, now time.Time) (Newsletter, error)
	Next(ctx context.Context, n Newsletter, now time.Time) (Newsletter, error)

	Create(ctx context.Context, n *Newsletter) error

	// Update stores every field except Sent.
	Update(ctx context.Context, n *Newsletter) error
	AddItem(ctx context.Context, item *NewsletterItem) error

	// MarkSent flags the newsletter as sent. The flag is never cleared.
	MarkSent(ctx context.Context, n *Newsletter) error
}

type SubscriberCriteria struct {
	Email  string
	UserID *int64

	// NewsletterListID zero matches every list.
	NewsletterListID int64

	// Lang restricts to one language, compared case-insensitively.
	Lang string

	OnlySubscribed   bool
	OnlyUnsubscribed bool
}

type SubscriberRepository interface {
	Matching(ctx context.Context, criteria SubscriberCriteria) ([]Subscriber, error)

	// Upsert stores the subscriber in the subscribed state. An existing row
	// for the same (email, list, lang) is resubscribed instead of duplicated;
	// a row already subscribed keeps its subscription date.
	Upsert(ctx context.Context, subscriber *Subscriber) (created bool, err error)

	// Unsubscribe flags every matching row as unsubscribed at the given time.
	Unsubscribe(ctx context.Context, criteria SubscriberCriteria, at time.Time) (int, error)
}

// Stores groups the repositories a backend works with.
type Stores struct {
	Lists       ListRepository
	Newsletters NewsletterRepository
	Subscribers SubscriberRepository
}

func (s Stores) validate() error {
	if s.Lists == nil {
		return errors.Wrap(ImproperlyConfiguredErr, "missing list repository")
	}

	if s.Newsletters == nil {
		return errors.Wrap(ImproperlyConfiguredErr, "missing newsletter repository")
	}

	if s.Subscribers == nil {
		return errors.Wrap(ImproperlyConfiguredErr, "missing subscriber repository")
	}

	return nil
}
