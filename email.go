package newsletter

import "context"

// Message is one personalised newsletter email.
type Message struct {
	FromEmail string
	FromName  string
	To        string
	Subject   string
	TextBody  string
	HtmlBody  string

	// Tags are forwarded to transports supporting message tagging.
	Tags []string
}

// DeliveryResult reports the outcome of one delivery attempt. For campaign
// backends Email is empty and ListID holds the remote list targeted.
type DeliveryResult struct {
	Email     string `json:"email,omitempty"`
	ListID    string `json:"listId,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Err       error  `json:"-"`
}

// EmailTransport submits a batch of messages over one connection and returns
// one result per message, in order.
type EmailTransport interface {
	SendBatch(ctx context.Context, messages []Message) ([]DeliveryResult, error)
}
