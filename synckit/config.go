package synckit

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c0deZ3R0/go-cart-sync/errors"
	"github.com/c0deZ3R0/go-cart-sync/logging"
)

// Config is the client-side configuration of a cart sync session.
type Config struct {
	// BaseURL of the remote cart store, e.g. https://shop.example.com/api
	BaseURL   string    `json:"base_url" yaml:"base_url"`
	Endpoints Endpoints `json:"endpoints,omitempty" yaml:"endpoints,omitempty"`

	// GuestHeader carries the guest token on unauthenticated requests.
	GuestHeader string `json:"guest_header,omitempty" yaml:"guest_header,omitempty"`

	// RequestTimeout bounds every remote call. Zero means no timeout.
	RequestTimeout time.Duration `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"`

	// MaxResponseSize limits the decoded size of a cart response body.
	MaxResponseSize int64 `json:"max_response_size,omitempty" yaml:"max_response_size,omitempty"`

	// StoragePath is the SQLite file holding the guest token and
	// credential, or a postgres:// URL for a shared store.
	StoragePath string `json:"storage_path,omitempty" yaml:"storage_path,omitempty"`

	// ResetStreamURL, when set, is an SSE stream whose cart-reset events
	// clear the local cart.
	ResetStreamURL string `json:"reset_stream_url,omitempty" yaml:"reset_stream_url,omitempty"`

	Logging logging.Config `json:"logging,omitempty" yaml:"logging,omitempty"`
}

// DefaultConfig returns a Config with every optional field filled.
func DefaultConfig() Config {
	return Config{
		BaseURL:         "http://localhost:8080",
		Endpoints:       DefaultEndpoints(),
		GuestHeader:     "X-Guest-Token",
		RequestTimeout:  15 * time.Second,
		MaxResponseSize: 10 * 1024 * 1024,
		StoragePath:     "cart.db",
		Logging:         logging.DefaultConfig,
	}
}

// LoadConfig reads a YAML or JSON file on top of DefaultConfig, then
// applies environment overrides. An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.E(errors.OpConfig, errors.Component("synckit"), errors.KindInvalid,
				fmt.Errorf("failed to read config file %s: %w", path, err))
		}
		if err := ParseConfig(data, detectFormat(path), &cfg); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	cfg.Endpoints = cfg.Endpoints.WithDefaults()
	return cfg, cfg.Validate()
}

// ParseConfig decodes data into cfg. Fields absent from data keep their
// current value. JSON is decoded by the YAML parser, which accepts it and
// understands duration strings such as "15s".
func ParseConfig(data []byte, format string, cfg *Config) error {
	switch strings.ToLower(format) {
	case "yaml", "yml", "json":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return errors.E(errors.OpConfig, errors.Component("synckit"), errors.KindInvalid,
				fmt.Errorf("failed to parse %s config: %w", format, err))
		}
		return nil
	default:
		return errors.E(errors.OpConfig, errors.Component("synckit"), errors.KindInvalid,
			fmt.Errorf("unsupported config format: %s", format))
	}
}

// ApplyEnv overlays CART_* environment variables and the logging
// variables understood by logging.GetConfigFromEnv.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("CART_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("CART_STORAGE_PATH"); v != "" {
		c.StoragePath = v
	}
	if v := os.Getenv("CART_GUEST_HEADER"); v != "" {
		c.GuestHeader = v
	}
	if v := os.Getenv("CART_RESET_STREAM_URL"); v != "" {
		c.ResetStreamURL = v
	}
	if v := os.Getenv("CART_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.E(errors.OpConfig, errors.Component("synckit"), errors.KindInvalid,
				fmt.Errorf("invalid CART_REQUEST_TIMEOUT %q: %w", v, err))
		}
		c.RequestTimeout = d
	}
	c.Logging = logging.GetConfigFromEnv(c.Logging)
	return nil
}

// Validate checks the fields a session cannot run without.
func (c Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return errors.E(errors.OpConfig, errors.Component("synckit"), errors.KindInvalid, fmt.Errorf(format, args...))
	}

	if c.BaseURL == "" {
		return invalid("base_url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return invalid("base_url %q is not an absolute URL", c.BaseURL)
	}
	if c.GuestHeader == "" {
		return invalid("guest_header must not be empty")
	}
	if strings.EqualFold(c.GuestHeader, "Authorization") {
		return invalid("guest_header must differ from Authorization")
	}
	if c.RequestTimeout < 0 {
		return invalid("request_timeout must not be negative")
	}
	if c.MaxResponseSize < 0 {
		return invalid("max_response_size must not be negative")
	}
	if !strings.Contains(c.Endpoints.WithDefaults().ItemPath, "{id}") {
		return invalid("endpoints.item must contain {id}")
	}
	if c.ResetStreamURL != "" {
		if u, err := url.Parse(c.ResetStreamURL); err != nil || u.Scheme == "" {
			return invalid("reset_stream_url %q is not an absolute URL", c.ResetStreamURL)
		}
	}
	return nil
}

func detectFormat(path string) string {
	ext := strings.ToLower(path[strings.LastIndex(path, ".")+1:])
	switch ext {
	case "yml", "yaml":
		return "yaml"
	case "json":
		return "json"
	default:
		return "yaml"
	}
}
