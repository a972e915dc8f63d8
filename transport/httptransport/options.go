package httptransport

import (
	"time"

	"github.com/c0deZ3R0/go-cart-sync/synckit"
)

// ClientOption is a function that configures a ClientOptions struct
type ClientOption func(*ClientOptions)

// WithClientCompression enables or disables gzip responses
func WithClientCompression(enabled bool) ClientOption {
	return func(opts *ClientOptions) {
		opts.CompressionEnabled = enabled
	}
}

// WithManualDecompression turns off Go's transparent decompression so the
// decompressed size limit is enforced by the client itself
func WithManualDecompression() ClientOption {
	return func(opts *ClientOptions) {
		opts.DisableAutoDecompression = true
	}
}

// WithMaxResponseSize sets the maximum allowed size of response bodies
func WithMaxResponseSize(size int64) ClientOption {
	return func(opts *ClientOptions) {
		opts.MaxResponseSize = size
	}
}

// WithMaxDecompressedResponseSize sets the maximum size of a response body
// after decompression
func WithMaxDecompressedResponseSize(size int64) ClientOption {
	return func(opts *ClientOptions) {
		opts.MaxDecompressedResponseSize = size
	}
}

// WithClientTimeout sets the timeout for all requests
func WithClientTimeout(timeout time.Duration) ClientOption {
	return func(opts *ClientOptions) {
		opts.RequestTimeout = timeout
	}
}

// WithGuestHeader sets the header carrying the guest token
func WithGuestHeader(header string) ClientOption {
	return func(opts *ClientOptions) {
		opts.GuestHeader = header
	}
}

// WithEndpoints overrides the cart API paths
func WithEndpoints(e synckit.Endpoints) ClientOption {
	return func(opts *ClientOptions) {
		opts.Endpoints = e
	}
}

// ApplyClientOptions creates a new ClientOptions with the given options applied
func ApplyClientOptions(opts ...ClientOption) *ClientOptions {
	options := DefaultClientOptions()
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// OptionsFromConfig maps a session Config onto ClientOptions.
func OptionsFromConfig(cfg synckit.Config) *ClientOptions {
	opts := []ClientOption{
		WithEndpoints(cfg.Endpoints),
		WithClientTimeout(cfg.RequestTimeout),
	}
	if cfg.GuestHeader != "" {
		opts = append(opts, WithGuestHeader(cfg.GuestHeader))
	}
	if cfg.MaxResponseSize > 0 {
		opts = append(opts, WithMaxResponseSize(cfg.MaxResponseSize))
	}
	return ApplyClientOptions(opts...)
}
