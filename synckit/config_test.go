package synckit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/go-cart-sync/errors"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/cart/items/{id}/", cfg.Endpoints.ItemPath)
	assert.Equal(t, "X-Guest-Token", cfg.GuestHeader)
}

func TestLoadConfig_YAMLAndJSON(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "cart.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
base_url: https://shop.example.com/api
guest_header: X-Cart-Guest
request_timeout: 3s
endpoints:
  merge: /v2/cart/merge/
logging:
  level: debug
  format: text
`), 0o600))

	cfg, err := LoadConfig(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example.com/api", cfg.BaseURL)
	assert.Equal(t, "X-Cart-Guest", cfg.GuestHeader)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "/v2/cart/merge/", cfg.Endpoints.Merge)
	assert.Equal(t, "/cart/", cfg.Endpoints.Cart, "missing endpoints keep their defaults")
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "cart.db", cfg.StoragePath)

	jsonPath := filepath.Join(dir, "cart.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"base_url": "http://127.0.0.1:9000", "request_timeout": "250ms"}`), 0o600))

	cfg, err = LoadConfig(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9000", cfg.BaseURL)
	assert.Equal(t, 250*time.Millisecond, cfg.RequestTimeout)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("CART_BASE_URL", "http://env.example.com")
	t.Setenv("CART_STORAGE_PATH", "/tmp/env-cart.db")
	t.Setenv("CART_GUEST_HEADER", "X-Env-Guest")
	t.Setenv("CART_RESET_STREAM_URL", "http://env.example.com/events")
	t.Setenv("CART_REQUEST_TIMEOUT", "7s")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "http://env.example.com", cfg.BaseURL)
	assert.Equal(t, "/tmp/env-cart.db", cfg.StoragePath)
	assert.Equal(t, "X-Env-Guest", cfg.GuestHeader)
	assert.Equal(t, "http://env.example.com/events", cfg.ResetStreamURL)
	assert.Equal(t, 7*time.Second, cfg.RequestTimeout)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, errors.KindInvalid, errors.KindOf(err))

	t.Setenv("CART_REQUEST_TIMEOUT", "soon")
	_, err = LoadConfig("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CART_REQUEST_TIMEOUT")
}

func TestParseConfig_UnsupportedFormat(t *testing.T) {
	cfg := DefaultConfig()
	err := ParseConfig([]byte("base_url = 'x'"), "toml", &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config format")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing base url", func(c *Config) { c.BaseURL = "" }, "base_url is required"},
		{"relative base url", func(c *Config) { c.BaseURL = "/api" }, "not an absolute URL"},
		{"empty guest header", func(c *Config) { c.GuestHeader = "" }, "guest_header must not be empty"},
		{"guest header collides", func(c *Config) { c.GuestHeader = "authorization" }, "must differ from Authorization"},
		{"negative timeout", func(c *Config) { c.RequestTimeout = -time.Second }, "request_timeout"},
		{"item path without id", func(c *Config) { c.Endpoints.ItemPath = "/cart/items/" }, "must contain {id}"},
		{"bad reset stream", func(c *Config) { c.ResetStreamURL = "events" }, "reset_stream_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
