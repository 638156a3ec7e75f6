// Package memory keeps every repository in process memory. It backs tests
// and single instance deployments without a database.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/interactive-solutions/go-newsletter"
)

// NewStores returns empty repositories sharing nothing but their lifetime.
func NewStores() newsletter.Stores {
	return newsletter.Stores{
		Lists:       NewListRepository(),
		Newsletters: NewNewsletterRepository(),
		Subscribers: NewSubscriberRepository(),
	}
}

type listRepository struct {
	mu     sync.RWMutex
	nextID int64
	lists  map[int64]newsletter.NewsletterList
}

func NewListRepository() newsletter.ListRepository {
	return &listRepository{lists: map[int64]newsletter.NewsletterList{}}
}

func (repo *listRepository) Get(ctx context.Context, id int64) (newsletter.NewsletterList, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	list, ok := repo.lists[id]
	if !ok {
		return list, newsletter.ListNotFoundErr
	}

	return list, nil
}

func (repo *listRepository) GetBySlug(ctx context.Context, slug string) (newsletter.NewsletterList, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	for _, list := range repo.lists {
		if list.Slug == slug {
			return list, nil
		}
	}

	return newsletter.NewsletterList{}, newsletter.ListNotFoundErr
}

func (repo *listRepository) All(ctx context.Context) ([]newsletter.NewsletterList, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	lists := lo.Values(repo.lists)
	sort.Slice(lists, func(i, j int) bool { return lists[i].Name < lists[j].Name })

	return lists, nil
}

func (repo *listRepository) Create(ctx context.Context, list *newsletter.NewsletterList) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	repo.nextID++
	list.ID = repo.nextID
	repo.lists[list.ID] = *list

	return nil
}

func (repo *listRepository) Update(ctx context.Context, list *newsletter.NewsletterList) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if _, ok := repo.lists[list.ID]; !ok {
		return newsletter.ListNotFoundErr
	}

	repo.lists[list.ID] = *list

	return nil
}

type newsletterRepository struct {
	mu          sync.RWMutex
	nextID      int64
	nextItemID  int64
	newsletters map[int64]newsletter.Newsletter
	items       map[int64][]newsletter.NewsletterItem
}

func NewNewsletterRepository() newsletter.NewsletterRepository {
	return &newsletterRepository{
		newsletters: map[int64]newsletter.Newsletter{},
		items:       map[int64][]newsletter.NewsletterItem{},
	}
}

func (repo *newsletterRepository) Get(ctx context.Context, id int64) (newsletter.Newsletter, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	n, ok := repo.newsletters[id]
	if !ok {
		return n, newsletter.NewsletterNotFoundErr
	}

	items := append([]newsletter.NewsletterItem{}, repo.items[id]...)
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Position == items[j].Position {
			return items[i].ID < items[j].ID
		}

		return items[i].Position < items[j].Position
	})

	n.Items = items

	return n, nil
}

func published(n newsletter.Newsletter, listID int64, now time.Time) bool {
	return n.NewsletterListID == listID && n.IsPublished(now)
}

// newestFirst orders by publication date then id, both descending.
func newestFirst(a, b newsletter.Newsletter) bool {
	switch {
	case a.PublishedAt == nil && b.PublishedAt == nil:
		return a.ID > b.ID
	case a.PublishedAt == nil:
		return false
	case b.PublishedAt == nil:
		return true
	case a.PublishedAt.Equal(*b.PublishedAt):
		return a.ID > b.ID
	default:
		return a.PublishedAt.After(*b.PublishedAt)
	}
}

func (repo *newsletterRepository) Matching(ctx context.Context, criteria newsletter.NewsletterCriteria) ([]newsletter.Newsletter, int, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	matches := lo.Filter(lo.Values(repo.newsletters), func(n newsletter.Newsletter, _ int) bool {
		if criteria.Published && !n.IsPublished(criteria.PublishedBefore) {
			return false
		}

		if criteria.NewsletterListID != 0 && n.NewsletterListID != criteria.NewsletterListID {
			return false
		}

		return criteria.Lang == "" || n.Targets(criteria.Lang)
	})

	sort.Slice(matches, func(i, j int) bool { return newestFirst(matches[i], matches[j]) })

	total := len(matches)

	if criteria.Offset >= len(matches) {
		return []newsletter.Newsletter{}, total, nil
	}

	matches = matches[criteria.Offset:]
	if criteria.Limit > 0 && criteria.Limit < len(matches) {
		matches = matches[:criteria.Limit]
	}

	return matches, total, nil
}

func (repo *newsletterRepository) Previous(ctx context.Context, n newsletter.Newsletter, now time.Time) (newsletter.Newsletter, error) {
	return repo.neighbour(n, now, func(candidate newsletter.Newsletter) bool {
		return newestFirst(n, candidate)
	}, func(a, b newsletter.Newsletter) bool {
		return newestFirst(a, b)
	})
}

func (repo *newsletterRepository) Next(ctx context.Context, n newsletter.Newsletter, now time.Time) (newsletter.Newsletter, error) {
	return repo.neighbour(n, now, func(candidate newsletter.Newsletter) bool {
		return newestFirst(candidate, n)
	}, func(a, b newsletter.Newsletter) bool {
		return newestFirst(b, a)
	})
}

// neighbour returns the first published sibling of n accepted by side, in
// the order given by less.
func (repo *newsletterRepository) neighbour(n newsletter.Newsletter, now time.Time, side func(newsletter.Newsletter) bool, less func(a, b newsletter.Newsletter) bool) (newsletter.Newsletter, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	if n.PublishedAt == nil {
		return newsletter.Newsletter{}, newsletter.NewsletterNotFoundErr
	}

	candidates := lo.Filter(lo.Values(repo.newsletters), func(c newsletter.Newsletter, _ int) bool {
		return c.ID != n.ID && published(c, n.NewsletterListID, now) && side(c)
	})

	if len(candidates) == 0 {
		return newsletter.Newsletter{}, newsletter.NewsletterNotFoundErr
	}

	sort.Slice(candidates, func(i, j int) bool { return less(candidates[i], candidates[j]) })

	return candidates[0], nil
}

func (repo *newsletterRepository) Create(ctx context.Context, n *newsletter.Newsletter) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	repo.nextID++
	n.ID = repo.nextID

	stored := *n
	stored.Items = nil
	repo.newsletters[n.ID] = stored

	return nil
}

func (repo *newsletterRepository) Update(ctx context.Context, n *newsletter.Newsletter) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	existing, ok := repo.newsletters[n.ID]
	if !ok {
		return newsletter.NewsletterNotFoundErr
	}

	stored := *n
	stored.Items = nil
	stored.Sent = existing.Sent
	repo.newsletters[n.ID] = stored

	return nil
}

func (repo *newsletterRepository) AddItem(ctx context.Context, item *newsletter.NewsletterItem) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if _, ok := repo.newsletters[item.NewsletterID]; !ok {
		return newsletter.NewsletterNotFoundErr
	}

	repo.nextItemID++
	item.ID = repo.nextItemID
	repo.items[item.NewsletterID] = append(repo.items[item.NewsletterID], *item)

	return nil
}

func (repo *newsletterRepository) MarkSent(ctx context.Context, n *newsletter.Newsletter) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	stored, ok := repo.newsletters[n.ID]
	if !ok {
		return newsletter.NewsletterNotFoundErr
	}

	stored.Sent = true
	repo.newsletters[n.ID] = stored

	return nil
}

type subscriberRepository struct {
	mu          sync.RWMutex
	nextID      int64
	subscribers []newsletter.Subscriber
}

func NewSubscriberRepository() newsletter.SubscriberRepository {
	return &subscriberRepository{}
}

func matches(s newsletter.Subscriber, criteria newsletter.SubscriberCriteria) bool {
	switch {
	case criteria.Email != "" && s.Email != newsletter.NormalizeEmail(criteria.Email):
		return false
	case criteria.UserID != nil && (s.UserID == nil || *s.UserID != *criteria.UserID):
		return false
	case criteria.NewsletterListID != 0 && s.NewsletterListID != criteria.NewsletterListID:
		return false
	case criteria.Lang != "" && !strings.EqualFold(s.Lang, criteria.Lang):
		return false
	case criteria.OnlySubscribed && s.IsUnsubscribed:
		return false
	case criteria.OnlyUnsubscribed && !s.IsUnsubscribed:
		return false
	}

	return true
}

func (repo *subscriberRepository) Matching(ctx context.Context, criteria newsletter.SubscriberCriteria) ([]newsletter.Subscriber, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	return lo.Filter(repo.subscribers, func(s newsletter.Subscriber, _ int) bool {
		return matches(s, criteria)
	}), nil
}

func (repo *subscriberRepository) Upsert(ctx context.Context, subscriber *newsletter.Subscriber) (bool, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	subscriber.Email = newsletter.NormalizeEmail(subscriber.Email)
	subscriber.IsUnsubscribed = false
	subscriber.UnsubscribedAt = nil

	for i, existing := range repo.subscribers {
		if existing.Email != subscriber.Email ||
			existing.NewsletterListID != subscriber.NewsletterListID ||
			!strings.EqualFold(existing.Lang, subscriber.Lang) {
			continue
		}

		subscriber.ID = existing.ID
		subscriber.Lang = existing.Lang

		if subscriber.UserID == nil {
			subscriber.UserID = existing.UserID
		}

		if existing.Subscribed() {
			subscriber.SubscribedAt = existing.SubscribedAt
		}

		repo.subscribers[i] = *subscriber

		return false, nil
	}

	repo.nextID++
	subscriber.ID = repo.nextID
	repo.subscribers = append(repo.subscribers, *subscriber)

	return true, nil
}

func (repo *subscriberRepository) Unsubscribe(ctx context.Context, criteria newsletter.SubscriberCriteria, at time.Time) (int, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	count := 0

	for i := range repo.subscribers {
		if !matches(repo.subscribers[i], criteria) {
			continue
		}

		unsubscribedAt := at
		repo.subscribers[i].IsUnsubscribed = true
		repo.subscribers[i].UnsubscribedAt = &unsubscribedAt
		count++
	}

	return count, nil
}

type jobRepository struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]newsletter.Job
}

func NewJobRepository() newsletter.JobRepository {
	return &jobRepository{jobs: map[uuid.UUID]newsletter.Job{}}
}

func (repo *jobRepository) GetPending(ctx context.Context) ([]newsletter.Job, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	pending := lo.Filter(lo.Values(repo.jobs), func(j newsletter.Job, _ int) bool {
		return j.Pending()
	})

	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })

	return pending, nil
}

func (repo *jobRepository) Create(ctx context.Context, job *newsletter.Job) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	repo.jobs[job.Uuid] = *job

	return nil
}

func (repo *jobRepository) Update(ctx context.Context, job *newsletter.Job) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if _, ok := repo.jobs[job.Uuid]; !ok {
		return newsletter.JobNotFoundErr
	}

	repo.jobs[job.Uuid] = *job

	return nil
}
