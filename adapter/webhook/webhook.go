// Package webhook POSTs stream completion events to an HTTP endpoint.
//
// Bodies are JSON. When a secret is configured each request carries an
// HMAC-SHA256 of the body in X-Downlink-Signature so receivers can verify the
// sender. Network errors and 5xx responses are retried; other non-2xx
// responses fail the publish at once.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pithecene-io/downlink/adapter"
	"github.com/pithecene-io/downlink/iox"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 10 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

const (
	// HeaderEvent names the event type of the delivery.
	HeaderEvent = "X-Downlink-Event"
	// HeaderSignature carries "sha256=<hex>" when a secret is configured.
	HeaderSignature = "X-Downlink-Signature"
)

// Config configures the webhook adapter.
type Config struct {
	URL     string            // required
	Headers map[string]string // added to every request
	Secret  string            // signs bodies when set
	Timeout time.Duration     // per request, default DefaultTimeout
	Retries int               // attempts after the first
	Backoff time.Duration     // first retry delay, default adapter.DefaultBackoff

	// OnRetry, if set, is called before each retry.
	OnRetry func(err error, wait time.Duration)
}

// Adapter publishes stream completion events via HTTP POST.
type Adapter struct {
	url     string
	headers http.Header
	secret  []byte
	policy  adapter.Policy
	client  *http.Client
}

// New validates cfg and returns an adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook adapter requires a URL")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	headers := make(http.Header, len(cfg.Headers)+1)
	headers.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		headers.Set(k, v)
	}

	a := &Adapter{
		url:     cfg.URL,
		headers: headers,
		policy:  adapter.Policy{Retries: cfg.Retries, Backoff: cfg.Backoff, Notify: cfg.OnRetry},
		client:  &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.Secret != "" {
		a.secret = []byte(cfg.Secret)
	}
	return a, nil
}

// Publish POSTs event, retrying transient failures.
func (a *Adapter) Publish(ctx context.Context, event *adapter.StreamCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}
	err = a.policy.Do(ctx, func(ctx context.Context) error {
		return a.post(ctx, event.EventType, body)
	})
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

func (a *Adapter) post(ctx context.Context, eventType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return adapter.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header = a.headers.Clone()
	req.Header.Set(HeaderEvent, eventType)
	if a.secret != nil {
		req.Header.Set(HeaderSignature, sign(a.secret, body))
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	serr := &StatusError{Code: resp.StatusCode}
	if !serr.Retriable() {
		return adapter.Permanent(serr)
	}
	return serr
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Retriable is false for 4xx.
func (e *StatusError) Retriable() bool {
	return e.Code < 400 || e.Code >= 500
}

// Sign returns the X-Downlink-Signature value for body.
func Sign(secret string, body []byte) string {
	return sign([]byte(secret), body)
}

func sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Close drops idle connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
