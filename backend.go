package newsletter

import "context"

// Backend registers subscribers and delivers newsletters. Exactly one
// implementation is active per deployment, see Selector.
type Backend interface {
	// Register subscribes email to list, creating the subscriber or
	// resubscribing an existing one. Calling it twice is a no-op.
	Register(ctx context.Context, email string, list NewsletterList, lang string, user *int64) error

	// Unregister unsubscribes email from list, or from every list when list
	// is nil. Unknown emails are ignored.
	Unregister(ctx context.Context, email string, list *NewsletterList, user *int64, lang string) error

	Exists(ctx context.Context, email string, list *NewsletterList, user *int64, lang string) (bool, error)
	Subscribed(ctx context.Context, email string, list *NewsletterList, user *int64, lang string) (bool, error)

	// SendMails delivers an online newsletter to its audience and marks it
	// as sent once delivery succeeded.
	SendMails(ctx context.Context, n *Newsletter) ([]DeliveryResult, error)
}

func subscriberCriteria(email string, list *NewsletterList, user *int64, lang string) SubscriberCriteria {
	criteria := SubscriberCriteria{
		Email: NormalizeEmail(email),
		Lang:  lang,
	}

	if criteria.Email == "" {
		criteria.UserID = user
	}

	if list != nil {
		criteria.NewsletterListID = list.ID
	}

	return criteria
}
