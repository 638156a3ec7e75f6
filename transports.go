package newsletter

import "context"

// Campaign is the vendor side representation of one newsletter send to one
// remote list.
type Campaign struct {
	NewsletterID int64
	ListID       string

	Subject   string
	Title     string
	FromEmail string
	FromName  string
	Locale    string

	HtmlBody string
	TextBody string
}

// VendorAdapter translates the campaign backend operations into the REST
// calls of one email marketing provider.
type VendorAdapter interface {
	// Lists returns every remote list id keyed by its remote name.
	Lists(ctx context.Context) (map[string]string, error)

	Subscribe(ctx context.Context, listID, email string) error
	Unsubscribe(ctx context.Context, listID, email string) error

	// SendCampaign creates the campaign, uploads its content and triggers
	// the send. It returns the remote campaign id.
	SendCampaign(ctx context.Context, campaign Campaign) (string, error)

	// FormatSlug maps a list slug and optional language to the name of the
	// matching remote list.
	FormatSlug(parts ...string) string
}

// UnsubscribedLister is implemented by adapters able to list the contacts
// unsubscribed on the vendor side.
type UnsubscribedLister interface {
	UnsubscribedContacts(ctx context.Context) ([]string, error)
}
