package gopg

import (
	"context"
	"time"

	"github.com/go-pg/pg"
	"github.com/go-pg/pg/orm"
	"github.com/interactive-solutions/go-newsletter"
)

func NewSubscriberRepository(db *pg.DB) newsletter.SubscriberRepository {
	return &subscriberRepository{
		db: db,
	}
}

type subscriberWrapper struct {
	TableName struct{} `sql:"newsletter_subscribers,alias:ns" json:"-"`

	*newsletter.Subscriber
}

type subscriberRepository struct {
	db *pg.DB
}

func filterSubscribers(q *orm.Query, criteria newsletter.SubscriberCriteria) *orm.Query {
	if criteria.Email != "" {
		q.Where("ns.email = ?", newsletter.NormalizeEmail(criteria.Email))
	}

	if criteria.UserID != nil {
		q.Where("ns.user_id = ?", *criteria.UserID)
	}

	if criteria.NewsletterListID != 0 {
		q.Where("ns.newsletter_list_id = ?", criteria.NewsletterListID)
	}

	if criteria.Lang != "" {
		q.Where("LOWER(ns.lang) = LOWER(?)", criteria.Lang)
	}

	if criteria.OnlySubscribed {
		q.Where("ns.is_unsubscribed = FALSE")
	}

	if criteria.OnlyUnsubscribed {
		q.Where("ns.is_unsubscribed = TRUE")
	}

	return q
}

// lockSubscriber selects the row sharing the (email, list, lang) key of
// subscriber and locks it until the transaction ends.
func lockSubscriber(q *orm.Query, subscriber *newsletter.Subscriber) *orm.Query {
	return q.
		Where("ns.email = ?", subscriber.Email).
		Where("ns.newsletter_list_id = ?", subscriber.NewsletterListID).
		Where("LOWER(ns.lang) = LOWER(?)", subscriber.Lang).
		For("UPDATE")
}

func unsubscribeQuery(q *orm.Query, criteria newsletter.SubscriberCriteria, at time.Time) *orm.Query {
	q.Set("is_unsubscribed = TRUE").
		Set("unsubscribed_at = ?", at)

	return filterSubscribers(q, criteria)
}

func (repo *subscriberRepository) Matching(ctx context.Context, criteria newsletter.SubscriberCriteria) ([]newsletter.Subscriber, error) {
	var wrapped []subscriberWrapper
	subscribers := make([]newsletter.Subscriber, 0)

	q := repo.db.WithContext(ctx).Model(&wrapped).Order("ns.id ASC")

	if err := filterSubscribers(q, criteria).Select(); err != nil && err != pg.ErrNoRows {
		return subscribers, err
	}

	for _, s := range wrapped {
		subscribers = append(subscribers, *s.Subscriber)
	}

	return subscribers, nil
}

func (repo *subscriberRepository) Upsert(ctx context.Context, subscriber *newsletter.Subscriber) (bool, error) {
	subscriber.Email = newsletter.NormalizeEmail(subscriber.Email)
	subscriber.IsUnsubscribed = false
	subscriber.UnsubscribedAt = nil

	created := false

	err := runInTransaction(ctx, repo.db, func(tx *pg.Tx) error {
		existing := &subscriberWrapper{Subscriber: &newsletter.Subscriber{}}

		err := lockSubscriber(tx.Model(existing), subscriber).Select()

		if err == pg.ErrNoRows {
			created = true
			return tx.Insert(&subscriberWrapper{Subscriber: subscriber})
		}

		if err != nil {
			return err
		}

		subscriber.ID = existing.ID
		subscriber.Lang = existing.Lang

		if subscriber.UserID == nil {
			subscriber.UserID = existing.UserID
		}

		if existing.Subscribed() {
			subscriber.SubscribedAt = existing.SubscribedAt
		}

		return tx.Update(&subscriberWrapper{Subscriber: subscriber})
	})

	return created, err
}

func (repo *subscriberRepository) Unsubscribe(ctx context.Context, criteria newsletter.SubscriberCriteria, at time.Time) (int, error) {
	q := repo.db.WithContext(ctx).Model((*subscriberWrapper)(nil))

	res, err := unsubscribeQuery(q, criteria, at).Update()
	if err != nil {
		return 0, err
	}

	return res.RowsAffected(), nil
}
