// Package notify delivers status transitions to an HTTP webhook.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	fastshot "github.com/opus-domini/fast-shot"

	"github.com/opus-domini/launchmon/internal/store"
)

const defaultTimeout = 5 * time.Second

var ErrInvalidURL = errors.New("invalid webhook url")

// Payload is the JSON body posted for each batch of transitions.
type Payload struct {
	Host        string             `json:"host"`
	SentAt      time.Time          `json:"sentAt"`
	Transitions []store.Transition `json:"transitions"`
}

type postFunc func(ctx context.Context, body any) (int, error)

// Webhook posts transitions as JSON. A nil *Webhook is a valid no-op.
type Webhook struct {
	post    postFunc
	host    string
	timeout time.Duration
}

// NewWebhook validates rawURL, which may not carry a query string. An
// empty URL returns (nil, nil).
func NewWebhook(rawURL string) (*Webhook, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || u.RawQuery != "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	host, _ := os.Hostname()
	return &Webhook{
		post:    newPoster(u.Scheme+"://"+u.Host, path),
		host:    host,
		timeout: defaultTimeout,
	}, nil
}

func newPoster(baseURL, path string) postFunc {
	client := fastshot.NewClient(baseURL).Build()
	return func(ctx context.Context, body any) (int, error) {
		resp, err := client.POST(path).
			Context().Set(ctx).
			Body().AsJSON(body).
			Send()
		if err != nil {
			return 0, err
		}
		defer resp.Body().Close()
		if resp.Status().IsError() {
			return resp.Status().Code(), fmt.Errorf("webhook returned status %d", resp.Status().Code())
		}
		return resp.Status().Code(), nil
	}
}

// Notify posts transitions. Delivery is best effort: callers log the error
// and carry on.
func (w *Webhook) Notify(ctx context.Context, transitions []store.Transition) error {
	if w == nil || len(transitions) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	payload := Payload{
		Host:        w.host,
		SentAt:      time.Now().UTC(),
		Transitions: transitions,
	}
	if _, err := w.post(ctx, payload); err != nil {
		return fmt.Errorf("notify %d transitions: %w", len(transitions), err)
	}
	return nil
}
