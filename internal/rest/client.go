package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
)

// StatusError is returned for any response outside the 2xx range.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Unexpected response code %d received: %s", e.Code, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var status *StatusError

	return errors.As(err, &status) && status.Code == code
}

type Option func(c *Client)

func SetRetries(max int, waitMin, waitMax time.Duration) Option {
	return func(c *Client) {
		c.client.RetryMax = max
		c.client.RetryWaitMin = waitMin
		c.client.RetryWaitMax = waitMax
	}
}

// Client sends json requests with basic auth to one REST api.
type Client struct {
	client *retryablehttp.Client

	baseUrl   string
	username  string
	password  string
	userAgent string
}

func New(baseUrl, username, password, userAgent string, options ...Option) *Client {
	c := &Client{
		client: retryablehttp.NewClient(),

		baseUrl:   strings.TrimRight(baseUrl, "/"),
		username:  username,
		password:  password,
		userAgent: userAgent,
	}

	for _, option := range options {
		option(c)
	}

	return c
}

// Do sends in as the json body of the request and decodes the response into
// out. Either may be nil.
func (c *Client) Do(ctx context.Context, method, path string, in, out interface{}) error {
	var body []byte

	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "Failed to encode request body")
		}

		body = encoded
	}

	req, err := retryablehttp.NewRequest(method, c.baseUrl+path, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req = req.WithContext(ctx)
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s failed", method, path)
	}
	defer resp.Body.Close()

	data, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "Failed to read response body")
	}

	if resp.StatusCode >= 300 || resp.StatusCode <= 199 {
		return &StatusError{Code: resp.StatusCode, Body: string(data)}
	}

	if out == nil || len(data) == 0 || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "Failed to decode response of %s %s", method, path)
	}

	return nil
}
