package mailjet

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/interactive-solutions/go-newsletter"
	"github.com/interactive-solutions/go-newsletter/internal/rest"
)

const mailjetApi = "https://api.mailjet.com/v3/REST"

// pageSize is the largest page the mailjet api serves.
const pageSize = 1000

type MailjetOption func(m *mailjet)

func SetBaseUrl(url string) MailjetOption {
	return func(m *mailjet) {
		m.baseUrl = url
	}
}

func SetRestOptions(options ...rest.Option) MailjetOption {
	return func(m *mailjet) {
		m.restOptions = options
	}
}

// mailjet talks to the Mailjet REST api v3.
type mailjet struct {
	client *rest.Client

	baseUrl     string
	restOptions []rest.Option
}

func New(key, secret string, options ...MailjetOption) (newsletter.VendorAdapter, error) {
	if key == "" {
		return nil, errors.Wrap(newsletter.ImproperlyConfiguredErr, "Please specify your mailjet api key")
	}

	if secret == "" {
		return nil, errors.Wrap(newsletter.ImproperlyConfiguredErr, "Please specify your mailjet api secret key")
	}

	m := &mailjet{baseUrl: mailjetApi}

	for _, option := range options {
		option(m)
	}

	m.client = rest.New(m.baseUrl, key, secret, newsletter.UserAgent, m.restOptions...)

	return m, nil
}

type contactsList struct {
	ID   int64  `json:"ID"`
	Name string `json:"Name"`
}

type contact struct {
	Email string `json:"Email"`
}

type listResponse struct {
	Count int `json:"Count"`
	Total int `json:"Total"`
}

func (m *mailjet) Lists(ctx context.Context) (map[string]string, error) {
	ids := map[string]string{}

	for offset := 0; ; offset += pageSize {
		var resp struct {
			listResponse
			Data []contactsList `json:"Data"`
		}

		path := fmt.Sprintf("/contactslist?Limit=%d&Offset=%d", pageSize, offset)
		if err := m.client.Do(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return nil, errors.Wrap(err, "Failed to fetch mailjet contact lists")
		}

		for _, list := range resp.Data {
			ids[list.Name] = strconv.FormatInt(list.ID, 10)
		}

		if len(resp.Data) < pageSize {
			return ids, nil
		}
	}
}

func (m *mailjet) Subscribe(ctx context.Context, listID, email string) error {
	return m.manageContact(ctx, listID, email, "addforce")
}

func (m *mailjet) Unsubscribe(ctx context.Context, listID, email string) error {
	return m.manageContact(ctx, listID, email, "unsub")
}

func (m *mailjet) manageContact(ctx context.Context, listID, email, action string) error {
	body := struct {
		Action   string    `json:"Action"`
		Contacts []contact `json:"Contacts"`
	}{
		Action:   action,
		Contacts: []contact{{Email: email}},
	}

	path := fmt.Sprintf("/contactslist/%s/managemanycontacts", listID)
	if err := m.client.Do(ctx, http.MethodPost, path, body, nil); err != nil {
		return errors.Wrapf(err, "Failed to %s %s on mailjet list %s", action, email, listID)
	}

	return nil
}

type campaignDraft struct {
	Subject        string `json:"Subject"`
	Title          string `json:"Title"`
	ContactsListID string `json:"ContactsListID"`
	Locale         string `json:"Locale"`
	SenderEmail    string `json:"SenderEmail"`
	Sender         string `json:"Sender"`
	SenderName     string `json:"SenderName"`
}

type draftContent struct {
	HtmlPart string `json:"Html-part"`
	TextPart string `json:"Text-part"`
}

func (m *mailjet) SendCampaign(ctx context.Context, campaign newsletter.Campaign) (string, error) {
	var created struct {
		Data []struct {
			ID int64 `json:"ID"`
		} `json:"Data"`
	}

	draft := campaignDraft{
		Subject:        campaign.Subject,
		Title:          campaign.Title,
		ContactsListID: campaign.ListID,
		Locale:         campaign.Locale,
		SenderEmail:    campaign.FromEmail,
		Sender:         campaign.FromName,
		SenderName:     campaign.FromName,
	}

	if err := m.client.Do(ctx, http.MethodPost, "/campaigndraft", draft, &created); err != nil {
		return "", errors.Wrap(err, "Failed to create mailjet campaign draft")
	}

	if len(created.Data) == 0 {
		return "", errors.New("Mailjet returned no campaign draft")
	}

	id := strconv.FormatInt(created.Data[0].ID, 10)

	content := draftContent{HtmlPart: campaign.HtmlBody, TextPart: campaign.TextBody}
	if err := m.client.Do(ctx, http.MethodPost, "/campaigndraft/"+id+"/detailcontent", content, nil); err != nil {
		return id, errors.Wrapf(err, "Failed to upload content of mailjet campaign %s", id)
	}

	if err := m.client.Do(ctx, http.MethodPost, "/campaigndraft/"+id+"/send", nil, nil); err != nil {
		return id, errors.Wrapf(err, "Failed to send mailjet campaign %s", id)
	}

	return id, nil
}

// FormatSlug appends the upper cased language to the list slug, "weekly"
// and "fr" giving "weeklyFR".
func (m *mailjet) FormatSlug(parts ...string) string {
	if len(parts) == 0 {
		return ""
	}

	return parts[0] + strings.ToUpper(strings.Join(parts[1:], ""))
}

func (m *mailjet) UnsubscribedContacts(ctx context.Context) ([]string, error) {
	var emails []string

	for offset := 0; ; offset += pageSize {
		var resp struct {
			listResponse
			Data []contact `json:"Data"`
		}

		path := fmt.Sprintf("/contact?IsExcludedFromCampaigns=true&Limit=%d&Offset=%d", pageSize, offset)
		if err := m.client.Do(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return nil, errors.Wrap(err, "Failed to fetch unsubscribed mailjet contacts")
		}

		for _, c := range resp.Data {
			emails = append(emails, c.Email)
		}

		if len(resp.Data) < pageSize {
			return emails, nil
		}
	}
}
