package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/downlink/wire"
)

// Config represents a downlink.yaml configuration file.
// All values are optional and act as defaults for downlink stream flags.
// CLI flags always override config values.
type Config struct {
	Endpoint        string `yaml:"endpoint"`
	Key             string `yaml:"key"`
	UserAgent       string `yaml:"user_agent"`
	Insecure        bool   `yaml:"insecure"`
	MaxMessageBytes int    `yaml:"max_message_bytes"`

	SatelliteID string `yaml:"satellite_id"`
	PlanID      string `yaml:"plan_id"`
	Reconnect   bool   `yaml:"reconnect"`
	Count       int    `yaml:"count"`
	MaxAttempts int    `yaml:"max_attempts"`
	// AcceptedFraming lists framing names such as AX25 or BITSTREAM.
	AcceptedFraming []string `yaml:"accepted_framing"`

	CheckpointDir string        `yaml:"checkpoint_dir"`
	Storage       StorageConfig `yaml:"storage"`
	Adapter       AdapterConfig `yaml:"adapter"`
}

// StorageConfig holds archive defaults from the config file.
type StorageConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig holds adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Mode    string            `yaml:"mode,omitempty"`
	MaxLen  int64             `yaml:"max_len,omitempty"`
	Secret  string            `yaml:"secret,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Validate checks value ranges and enumerations. Required values are checked
// after flags are merged, since any of them may come from the command line.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxMessageBytes < 0 {
		errs = append(errs, fmt.Errorf("max_message_bytes must be >= 0, got %d", c.MaxMessageBytes))
	}
	if c.Count < 0 {
		errs = append(errs, fmt.Errorf("count must be >= 0, got %d", c.Count))
	}
	if c.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("max_attempts must be >= 0, got %d", c.MaxAttempts))
	}

	for _, name := range c.AcceptedFraming {
		if _, err := wire.ParseFraming(name); err != nil {
			errs = append(errs, fmt.Errorf("accepted_framing: %w", err))
		}
	}

	switch c.Storage.Backend {
	case "", "fs", "s3":
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be fs or s3, got %q", c.Storage.Backend))
	}

	switch c.Adapter.Type {
	case "":
	case "webhook", "redis":
		if c.Adapter.URL == "" {
			errs = append(errs, fmt.Errorf("adapter.url is required for %s adapter", c.Adapter.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("adapter.type must be webhook or redis, got %q", c.Adapter.Type))
	}
	switch c.Adapter.Mode {
	case "", "publish", "stream":
	default:
		errs = append(errs, fmt.Errorf("adapter.mode must be publish or stream, got %q", c.Adapter.Mode))
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		errs = append(errs, errors.New("adapter.retries must be >= 0"))
	}

	return errors.Join(errs...)
}
