package newsletter

import (
	"strings"
	"time"

	"github.com/gosimple/slug"
)

type Status uint

const (
	StatusOnline Status = 1
	StatusDraft  Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusDraft:
		return "draft"
	default:
		return "unknown"
	}
}

// NewsletterList is a named collection of subscribers, identified by its slug.
type NewsletterList struct {
	ID          int64  `sql:",pk" json:"id"`
	Name        string `sql:",notnull" json:"name"`
	Slug        string `sql:",notnull,unique" json:"slug"`
	Description string `json:"description"`

	// Languages restricts the languages a subscriber may register with.
	// Empty means any language.
	Languages []string `sql:",array" json:"languages"`

	// RemoteListID mirrors the vendor list this newsletter list maps to.
	// When set it takes precedence over the slug based lookup.
	RemoteListID string `json:"remoteListId"`

	CreatedAt time.Time `json:"createdAt"`
}

// NewNewsletterList builds a list with a slug derived from its name.
func NewNewsletterList(name string, languages ...string) NewsletterList {
	return NewsletterList{
		Name:      name,
		Slug:      slug.Make(name),
		Languages: languages,
		CreatedAt: time.Now(),
	}
}

// HasLang reports whether subscribers may use lang on this list.
func (l NewsletterList) HasLang(lang string) bool {
	if lang == "" || len(l.Languages) == 0 {
		return true
	}

	return containsLang(l.Languages, lang)
}

type Newsletter struct {
	ID         int64  `sql:",pk" json:"id"`
	Name       string `sql:",notnull" json:"name"`
	Headline   string `json:"headline"`
	Conclusion string `json:"conclusion"`
	Cover      string `json:"cover"`

	PublishedAt *time.Time `json:"publishedAt"`
	Status      Status     `sql:",notnull" json:"status"`

	NewsletterListID int64    `sql:",notnull" json:"newsletterListId"`
	Languages        []string `sql:",array" json:"languages"`

	Sent bool `sql:",notnull" json:"sent"`

	Items []NewsletterItem `sql:"-" json:"items,omitempty"`
}

func (n Newsletter) IsOnline() bool {
	return n.Status == StatusOnline
}

// IsPublished reports whether the newsletter is online and its publication
// date has passed.
func (n Newsletter) IsPublished(now time.Time) bool {
	return n.IsOnline() && n.PublishedAt != nil && n.PublishedAt.Before(now)
}

// Targets reports whether a subscriber using lang receives this newsletter.
func (n Newsletter) Targets(lang string) bool {
	if len(n.Languages) == 0 {
		return true
	}

	return containsLang(n.Languages, lang)
}

type NewsletterItem struct {
	ID           int64  `sql:",pk" json:"id"`
	NewsletterID int64  `sql:",notnull" json:"newsletterId"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Image        string `json:"image"`
	URL          string `json:"url"`

	// ContentType and ObjectID optionally reference the content this item
	// was built from.
	ContentType string `json:"contentType,omitempty"`
	ObjectID    *int64 `json:"objectId,omitempty"`

	Position int `sql:",notnull" json:"position"`
}

type Subscriber struct {
	ID               int64  `sql:",pk" json:"id"`
	Email            string `sql:",notnull" json:"email"`
	NewsletterListID int64  `sql:",notnull" json:"newsletterListId"`
	Lang             string `sql:",notnull" json:"lang"`
	UserID           *int64 `json:"userId,omitempty"`

	IsUnsubscribed bool       `sql:",notnull" json:"isUnsubscribed"`
	SubscribedAt   time.Time  `json:"subscribedAt"`
	UnsubscribedAt *time.Time `json:"unsubscribedAt"`
}

func (s Subscriber) Subscribed() bool {
	return !s.IsUnsubscribed
}

// NormalizeEmail is applied to every email before it reaches a store so
// lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func containsLang(langs []string, lang string) bool {
	for _, l := range langs {
		if strings.EqualFold(l, lang) {
			return true
		}
	}

	return false
}
