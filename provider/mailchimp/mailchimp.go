package mailchimp

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/interactive-solutions/go-newsletter"
	"github.com/interactive-solutions/go-newsletter/internal/rest"
)

const pageSize = 1000

type MailchimpOption func(m *mailchimp)

func SetBaseUrl(url string) MailchimpOption {
	return func(m *mailchimp) {
		m.baseUrl = url
	}
}

func SetRestOptions(options ...rest.Option) MailchimpOption {
	return func(m *mailchimp) {
		m.restOptions = options
	}
}

// mailchimp talks to the Mailchimp marketing api 3.0.
type mailchimp struct {
	client *rest.Client

	baseUrl     string
	restOptions []rest.Option
}

// New builds an adapter for key, whose "-us6" like suffix names the
// datacenter serving the account.
func New(key string, options ...MailchimpOption) (newsletter.VendorAdapter, error) {
	if key == "" {
		return nil, errors.Wrap(newsletter.ImproperlyConfiguredErr, "Please specify your mailchimp api key")
	}

	m := &mailchimp{}

	if i := strings.LastIndex(key, "-"); i != -1 && i < len(key)-1 {
		m.baseUrl = fmt.Sprintf("https://%s.api.mailchimp.com/3.0", key[i+1:])
	}

	for _, option := range options {
		option(m)
	}

	if m.baseUrl == "" {
		return nil, errors.Wrap(newsletter.ImproperlyConfiguredErr, "The mailchimp api key has no datacenter suffix")
	}

	m.client = rest.New(m.baseUrl, "newsletter", key, newsletter.UserAgent, m.restOptions...)

	return m, nil
}

// subscriberHash is how mailchimp identifies a list member.
func subscriberHash(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(email)))
	return hex.EncodeToString(sum[:])
}

func (m *mailchimp) Lists(ctx context.Context) (map[string]string, error) {
	ids := map[string]string{}

	for offset := 0; ; offset += pageSize {
		var resp struct {
			Lists []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"lists"`
			TotalItems int `json:"total_items"`
		}

		path := fmt.Sprintf("/lists?count=%d&offset=%d", pageSize, offset)
		if err := m.client.Do(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return nil, errors.Wrap(err, "Failed to fetch mailchimp lists")
		}

		for _, list := range resp.Lists {
			ids[list.Name] = list.ID
		}

		if len(resp.Lists) < pageSize || offset+pageSize >= resp.TotalItems {
			return ids, nil
		}
	}
}

type member struct {
	EmailAddress string `json:"email_address,omitempty"`
	Status       string `json:"status"`
	StatusIfNew  string `json:"status_if_new,omitempty"`
}

func (m *mailchimp) Subscribe(ctx context.Context, listID, email string) error {
	body := member{
		EmailAddress: email,
		Status:       "subscribed",
		StatusIfNew:  "subscribed",
	}

	path := fmt.Sprintf("/lists/%s/members/%s", listID, subscriberHash(email))
	if err := m.client.Do(ctx, http.MethodPut, path, body, nil); err != nil {
		return errors.Wrapf(err, "Failed to subscribe %s to mailchimp list %s", email, listID)
	}

	return nil
}

// Unsubscribe ignores emails unknown to the list.
func (m *mailchimp) Unsubscribe(ctx context.Context, listID, email string) error {
	path := fmt.Sprintf("/lists/%s/members/%s", listID, subscriberHash(email))

	err := m.client.Do(ctx, http.MethodPatch, path, member{Status: "unsubscribed"}, nil)
	if err != nil && !rest.IsStatus(err, http.StatusNotFound) {
		return errors.Wrapf(err, "Failed to unsubscribe %s from mailchimp list %s", email, listID)
	}

	return nil
}

type campaign struct {
	Type       string `json:"type"`
	Recipients struct {
		ListID string `json:"list_id"`
	} `json:"recipients"`
	Settings struct {
		SubjectLine string `json:"subject_line"`
		Title       string `json:"title"`
		FromName    string `json:"from_name"`
		ReplyTo     string `json:"reply_to"`
	} `json:"settings"`
}

type campaignContent struct {
	Html      string `json:"html"`
	PlainText string `json:"plain_text"`
}

func (m *mailchimp) SendCampaign(ctx context.Context, c newsletter.Campaign) (string, error) {
	body := campaign{Type: "regular"}
	body.Recipients.ListID = c.ListID
	body.Settings.SubjectLine = c.Subject
	body.Settings.Title = c.Title
	body.Settings.FromName = c.FromName
	body.Settings.ReplyTo = c.FromEmail

	var created struct {
		ID string `json:"id"`
	}

	if err := m.client.Do(ctx, http.MethodPost, "/campaigns", body, &created); err != nil {
		return "", errors.Wrap(err, "Failed to create mailchimp campaign")
	}

	if created.ID == "" {
		return "", errors.New("Mailchimp returned no campaign id")
	}

	content := campaignContent{Html: c.HtmlBody, PlainText: c.TextBody}
	if err := m.client.Do(ctx, http.MethodPut, "/campaigns/"+created.ID+"/content", content, nil); err != nil {
		return created.ID, errors.Wrapf(err, "Failed to upload content of mailchimp campaign %s", created.ID)
	}

	if err := m.client.Do(ctx, http.MethodPost, "/campaigns/"+created.ID+"/actions/send", nil, nil); err != nil {
		return created.ID, errors.Wrapf(err, "Failed to send mailchimp campaign %s", created.ID)
	}

	return created.ID, nil
}

// FormatSlug joins the list slug and language with an underscore, "weekly"
// and "FR" giving "weekly_fr".
func (m *mailchimp) FormatSlug(parts ...string) string {
	return strings.ToLower(strings.Join(parts, "_"))
}

// UnsubscribedContacts collects the unsubscribed members of every list.
func (m *mailchimp) UnsubscribedContacts(ctx context.Context) ([]string, error) {
	lists, err := m.Lists(ctx)
	if err != nil {
		return nil, err
	}

	var emails []string

	for _, listID := range lists {
		for offset := 0; ; offset += pageSize {
			var resp struct {
				Members []member `json:"members"`
			}

			path := fmt.Sprintf("/lists/%s/members?status=unsubscribed&count=%d&offset=%d", listID, pageSize, offset)
			if err := m.client.Do(ctx, http.MethodGet, path, nil, &resp); err != nil {
				return nil, errors.Wrapf(err, "Failed to fetch unsubscribed members of mailchimp list %s", listID)
			}

			for _, member := range resp.Members {
				emails = append(emails, member.EmailAddress)
			}

			if len(resp.Members) < pageSize {
				break
			}
		}
	}

	return emails, nil
}
