package newsletter

import (
	"context"

	"github.com/pkg/errors"
)

type UserEventKind uint

const (
	UserSubscribed UserEventKind = iota
	UserUnsubscribed
)

// UserEvent is emitted by the host application when one of its users
// subscribes to or leaves a newsletter list.
type UserEvent struct {
	Kind UserEventKind

	// UserID zero means the event is not tied to a host user.
	UserID int64
	Email  string
	Lang   string

	// NewsletterListID zero means every list, unsubscribe only.
	NewsletterListID int64
}

// UserEventHandler turns user lifecycle events into backend calls.
type UserEventHandler struct {
	backend Backend
	lists   ListRepository
}

func NewUserEventHandler(backend Backend, lists ListRepository) *UserEventHandler {
	return &UserEventHandler{
		backend: backend,
		lists:   lists,
	}
}

func (h *UserEventHandler) Handle(ctx context.Context, event UserEvent) error {
	var user *int64
	if event.UserID != 0 {
		user = &event.UserID
	}

	switch event.Kind {
	case UserSubscribed:
		if event.NewsletterListID == 0 {
			return errors.New("a newsletter list is required to subscribe")
		}

		list, err := h.lists.Get(ctx, event.NewsletterListID)
		if err != nil {
			return err
		}

		return h.backend.Register(ctx, event.Email, list, event.Lang, user)

	case UserUnsubscribed:
		if event.NewsletterListID == 0 {
			return h.backend.Unregister(ctx, event.Email, nil, user, event.Lang)
		}

		list, err := h.lists.Get(ctx, event.NewsletterListID)
		if err != nil {
			return err
		}

		return h.backend.Unregister(ctx, event.Email, &list, user, event.Lang)

	default:
		return errors.Errorf("unknown user event kind %d", event.Kind)
	}
}

func (j *Job) event() UserEvent {
	event := UserEvent{
		Email:            j.Email,
		Lang:             j.Lang,
		NewsletterListID: j.NewsletterListID,
	}

	if j.UserID != nil {
		event.UserID = *j.UserID
	}

	if j.Type == JobUnsubscribe {
		event.Kind = UserUnsubscribed
	}

	return event
}
