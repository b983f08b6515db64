// Package redis delivers stream completion events to Redis.
//
// In publish mode each JSON event is PUBLISHed on a channel and only
// connected subscribers see it. In stream mode events are appended with XADD
// so consumers that were offline can catch up; the run_id and outcome are
// copied into their own fields for consumers that filter without decoding.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/downlink/adapter"
)

// DefaultChannel is the default pub/sub channel or stream key.
const DefaultChannel = "downlink:stream_completed"

// DefaultTimeout is the default per-attempt timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Mode selects the Redis primitive used for delivery.
type Mode string

const (
	ModePublish Mode = "publish"
	ModeStream  Mode = "stream"
)

// StreamField is the XADD field holding the JSON event.
const StreamField = "event"

// Config configures the Redis adapter.
type Config struct {
	// URL is redis://[:password@]host:port[/db] (required).
	URL string
	// Channel is the pub/sub channel or stream key.
	Channel string
	Mode    Mode
	// MaxLen approximately caps the stream in stream mode. Zero is uncapped.
	MaxLen  int64
	Timeout time.Duration
	Retries int
	Backoff time.Duration
	// OnRetry, if set, is called before each retry.
	OnRetry func(err error, wait time.Duration)
}

// Adapter delivers stream completion events to Redis.
type Adapter struct {
	client *goredis.Client
	key    string
	mode   Mode
	maxLen int64
	policy adapter.Policy
}

// New validates cfg and connects lazily; no command is sent until Publish.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}

	mode := cfg.Mode
	switch mode {
	case "":
		mode = ModePublish
	case ModePublish, ModeStream:
	default:
		return nil, fmt.Errorf("redis adapter: unknown mode %q (want publish or stream)", cfg.Mode)
	}
	if cfg.MaxLen < 0 {
		return nil, fmt.Errorf("max_len must be >= 0, got %d", cfg.MaxLen)
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	a := &Adapter{
		client: goredis.NewClient(opts),
		key:    cfg.Channel,
		mode:   mode,
		maxLen: cfg.MaxLen,
		policy: adapter.Policy{Retries: cfg.Retries, Timeout: cfg.Timeout, Backoff: cfg.Backoff, Notify: cfg.OnRetry},
	}
	if a.key == "" {
		a.key = DefaultChannel
	}
	if a.policy.Timeout <= 0 {
		a.policy.Timeout = DefaultTimeout
	}
	return a, nil
}

// Publish delivers event, retrying on any Redis error.
func (a *Adapter) Publish(ctx context.Context, event *adapter.StreamCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	var send func(context.Context) error
	if a.mode == ModeStream {
		args := &goredis.XAddArgs{
			Stream: a.key,
			Values: []any{StreamField, body, "run_id", event.RunID, "outcome", event.Outcome},
		}
		if a.maxLen > 0 {
			args.MaxLen = a.maxLen
			args.Approx = true
		}
		send = func(ctx context.Context) error { return a.client.XAdd(ctx, args).Err() }
	} else {
		send = func(ctx context.Context) error { return a.client.Publish(ctx, a.key, body).Err() }
	}

	if err := a.policy.Do(ctx, send); err != nil {
		return fmt.Errorf("redis: %s to %s: %w", a.mode, a.key, err)
	}
	return nil
}

// Close closes the client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
