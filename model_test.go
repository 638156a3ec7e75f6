package newsletter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@x.com", NormalizeEmail("  A@X.com\n"))
}

func TestNewNewsletterList(t *testing.T) {
	list := NewNewsletterList("Monthly Digest", "en", "FR")

	assert.Equal(t, "monthly-digest", list.Slug)
	assert.True(t, list.HasLang("fr"))
	assert.True(t, list.HasLang(""))
	assert.False(t, list.HasLang("de"))
	assert.True(t, NewNewsletterList("Open").HasLang("de"))
}

func TestNewsletterVisibility(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)

	n := Newsletter{Status: StatusOnline, PublishedAt: &past, Languages: []string{"fr"}}

	assert.True(t, n.IsPublished(now))
	assert.True(t, n.Targets("FR"))
	assert.False(t, n.Targets("en"))

	n.Status = StatusDraft
	assert.False(t, n.IsPublished(now))
	assert.Equal(t, "draft", n.Status.String())

	n.Status = StatusOnline
	n.PublishedAt = nil
	assert.False(t, n.IsPublished(now))

	n.Languages = nil
	assert.True(t, n.Targets("en"))
}
