package kit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// The upstream platform owns subscriber identity; this client is a
// read-only view of it plus the code-email delegation endpoint.

const defaultBaseURL = "https://api.kit.com/v4"

var (
	// ErrNotFound means the requested entity does not exist upstream.
	ErrNotFound = errors.New("kit: not found")
	// ErrInvalidEmail means the upstream rejected the address format.
	ErrInvalidEmail = errors.New("kit: email address is invalid")
)

// Subscriber is the upstream view of a subscriber account.
type Subscriber struct {
	ID    int64  `json:"id"`
	Email string `json:"email_address"`
	State string `json:"state"`
}

// Broadcast is a sent email campaign, importable as local content.
type Broadcast struct {
	ID          string `json:"id"`
	Subject     string `json:"subject"`
	Content     string `json:"content"`
	PublishedAt string `json:"published_at"`
	Public      bool   `json:"public"`
}

// Client talks to the upstream platform API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Client. baseURL may be empty to use the production API;
// tests point it at an httptest server.
func New(baseURL, apiKey string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// SubscriberByEmail looks up a subscriber account by address.
// Returns ErrInvalidEmail when the upstream rejects the address format and
// ErrNotFound when no account matches.
func (c *Client) SubscriberByEmail(ctx context.Context, email string) (*Subscriber, error) {
	var out struct {
		Subscribers []Subscriber `json:"subscribers"`
	}
	q := url.Values{"email_address": {email}}
	if err := c.get(ctx, "/subscribers?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	if len(out.Subscribers) == 0 {
		return nil, ErrNotFound
	}
	return &out.Subscribers[0], nil
}

// TagExists reports whether the tag still exists upstream.
func (c *Client) TagExists(ctx context.Context, id int64) (bool, error) {
	return c.exists(ctx, fmt.Sprintf("/tags/%d", id))
}

// FormExists reports whether the form still exists upstream.
func (c *Client) FormExists(ctx context.Context, id int64) (bool, error) {
	return c.exists(ctx, fmt.Sprintf("/forms/%d", id))
}

// ProductExists reports whether the product still exists upstream.
func (c *Client) ProductExists(ctx context.Context, id int64) (bool, error) {
	return c.exists(ctx, fmt.Sprintf("/products/%d", id))
}

// HasTag reports whether the subscriber carries the tag.
func (c *Client) HasTag(ctx context.Context, subscriberID, tagID int64) (bool, error) {
	return c.member(ctx, fmt.Sprintf("/subscribers/%d/tags/%d", subscriberID, tagID))
}

// HasPurchased reports whether the subscriber bought the product.
func (c *Client) HasPurchased(ctx context.Context, subscriberID, productID int64) (bool, error) {
	return c.member(ctx, fmt.Sprintf("/subscribers/%d/products/%d", subscriberID, productID))
}

// SubscribedToForm reports whether the subscriber opted in via the form.
func (c *Client) SubscribedToForm(ctx context.Context, subscriberID, formID int64) (bool, error) {
	return c.member(ctx, fmt.Sprintf("/subscribers/%d/forms/%d", subscriberID, formID))
}

// SendCodeEmail delegates login-code delivery to the upstream platform.
func (c *Client) SendCodeEmail(ctx context.Context, email, code string) error {
	body := map[string]string{"email_address": email, "code": code}
	return c.post(ctx, "/subscriber_authentication/send_code", body, nil)
}

// Broadcasts lists public broadcasts, newest first.
func (c *Client) Broadcasts(ctx context.Context) ([]Broadcast, error) {
	var out struct {
		Broadcasts []Broadcast `json:"broadcasts"`
	}
	if err := c.get(ctx, "/broadcasts", &out); err != nil {
		return nil, err
	}
	return out.Broadcasts, nil
}

// CreateBroadcast creates an upstream broadcast draft from local content.
func (c *Client) CreateBroadcast(ctx context.Context, subject, content string) (*Broadcast, error) {
	body := map[string]interface{}{"subject": subject, "content": content, "public": false}
	var out struct {
		Broadcast Broadcast `json:"broadcast"`
	}
	if err := c.post(ctx, "/broadcasts", body, &out); err != nil {
		return nil, err
	}
	return &out.Broadcast, nil
}

func (c *Client) exists(ctx context.Context, path string) (bool, error) {
	err := c.get(ctx, path, nil)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) member(ctx context.Context, path string) (bool, error) {
	return c.exists(ctx, path)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, payload, out)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Kit-Api-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("kit: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnprocessableEntity:
		// The upstream reports malformed addresses as a validation error.
		return ErrInvalidEmail
	case resp.StatusCode >= 400:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("kit: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
