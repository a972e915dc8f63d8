// Package httptransport talks to the remote cart store over HTTP/JSON and
// owns the authenticated credential used to do so.
package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/c0deZ3R0/go-cart-sync/cart"
	"github.com/c0deZ3R0/go-cart-sync/errors"
	"github.com/c0deZ3R0/go-cart-sync/identity"
	"github.com/c0deZ3R0/go-cart-sync/logging"
	"github.com/c0deZ3R0/go-cart-sync/synckit"
)

const component = "transport/http"

// maxErrorBody caps how much of a non-2xx response is kept for the error.
const maxErrorBody = 4 << 10

// IdentitySource decides which identity a request carries.
// identity.Resolver implements it.
type IdentitySource interface {
	RequestIdentity(ctx context.Context) (identity.Identity, error)
}

// Client implements synckit.RemoteCart against the cart REST API. Every
// request carries exactly one identity: the bearer credential when one is
// present, the guest token otherwise.
type Client struct {
	client    *http.Client
	baseURL   string // e.g., "https://shop.example.com/api"
	identity  IdentitySource
	options   *ClientOptions
	endpoints synckit.Endpoints
	logger    *logging.Logger
}

var _ synckit.RemoteCart = (*Client)(nil)

// NewClient creates a Client. If client is nil one is built from options;
// nil options mean DefaultClientOptions.
func NewClient(baseURL string, ids IdentitySource, client *http.Client, options *ClientOptions) (*Client, error) {
	return NewClientWithLogger(baseURL, ids, client, options, nil)
}

// NewClientWithLogger creates a Client with a custom logger.
func NewClientWithLogger(baseURL string, ids IdentitySource, client *http.Client, options *ClientOptions, logger *logging.Logger) (*Client, error) {
	if options == nil {
		options = DefaultClientOptions()
	}
	if options.GuestHeader == "" {
		options.GuestHeader = identity.DefaultGuestHeader
	}
	if err := ValidateClientOptions(options); err != nil {
		return nil, errors.E(errors.OpConfig, errors.Component(component), errors.KindInvalid, err)
	}
	if baseURL == "" {
		return nil, errors.E(errors.OpConfig, errors.Component(component), errors.KindInvalid, "base URL is required")
	}
	if ids == nil {
		return nil, errors.E(errors.OpConfig, errors.Component(component), errors.KindInvalid, "identity source is required")
	}
	if client == nil {
		client = newHTTPClient(options)
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &Client{
		client:    client,
		baseURL:   strings.TrimRight(baseURL, "/"),
		identity:  ids,
		options:   options,
		endpoints: options.Endpoints.WithDefaults(),
		logger:    logger.WithComponent(logging.Component(component)),
	}, nil
}

// BaseURL returns the base URL for the client
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Fetch returns every line of the caller's remote cart.
func (c *Client) Fetch(ctx context.Context) ([]cart.Item, error) {
	var body JSONCart
	if err := c.do(ctx, errors.OpFetch, http.MethodGet, c.endpoints.Cart, nil, &body); err != nil {
		return nil, err
	}

	items := make([]cart.Item, 0, len(body.Items))
	for _, line := range body.Items {
		items = append(items, line.ToItem())
	}
	c.logger.Debug("Fetched remote cart", slog.Int("line_count", len(items)))
	return items, nil
}

// CreateLine adds a bundle to the remote cart.
func (c *Client) CreateLine(ctx context.Context, req synckit.LineRequest) error {
	if req.Quantity <= 0 {
		return errors.NewValidationError(errors.OpCreateLine, fmt.Errorf("quantity must be positive, got %d", req.Quantity))
	}
	body := JSONLineRequest{
		BundleID:       req.BundleID,
		Quantity:       req.Quantity,
		AvoidedWasteKg: req.AvoidedWasteKg,
		AvoidedCO2Kg:   req.AvoidedCO2Kg,
		ProducerName:   req.ProducerName,
	}
	return c.do(ctx, errors.OpCreateLine, http.MethodPost, c.endpoints.Items, body, nil)
}

// UpdateLine sets the quantity of an existing remote line.
func (c *Client) UpdateLine(ctx context.Context, line cart.ServerItemID, req synckit.LineRequest) error {
	if !line.Known() {
		return errors.NewValidationError(errors.OpUpdateLine, fmt.Errorf("remote line id is required"))
	}
	body := JSONLineRequest{
		Quantity:       req.Quantity,
		AvoidedWasteKg: req.AvoidedWasteKg,
		AvoidedCO2Kg:   req.AvoidedCO2Kg,
	}
	return c.do(ctx, errors.OpUpdateLine, http.MethodPatch, c.itemPath(line), body, nil)
}

// DeleteLine removes a remote line.
func (c *Client) DeleteLine(ctx context.Context, line cart.ServerItemID) error {
	if !line.Known() {
		return errors.NewValidationError(errors.OpDeleteLine, fmt.Errorf("remote line id is required"))
	}
	return c.do(ctx, errors.OpDeleteLine, http.MethodDelete, c.itemPath(line), nil, nil)
}

// ClearLines empties the caller's remote cart.
func (c *Client) ClearLines(ctx context.Context) error {
	return c.do(ctx, errors.OpClearLines, http.MethodDelete, c.endpoints.Clear, nil, nil)
}

// Merge asks the server to fold the guest cart of guestToken into the
// authenticated caller's cart.
func (c *Client) Merge(ctx context.Context, guestToken string) error {
	if guestToken == "" {
		return errors.NewValidationError(errors.OpMerge, fmt.Errorf("guest token is required"))
	}
	return c.do(ctx, errors.OpMerge, http.MethodPost, c.endpoints.Merge, JSONMergeRequest{GuestToken: guestToken}, nil)
}

func (c *Client) itemPath(line cart.ServerItemID) string {
	return strings.ReplaceAll(c.endpoints.ItemPath, "{id}", strconv.FormatInt(int64(line), 10))
}

// do sends one request with the caller's identity attached and decodes a
// JSON response into out when out is non-nil. Any non-2xx status fails.
func (c *Client) do(ctx context.Context, op errors.Operation, method, path string, in, out interface{}) error {
	url := c.baseURL + path

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return errors.NewWithComponent(op, component, fmt.Errorf("failed to marshal request: %w", err))
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return errors.NewWithComponent(op, component, fmt.Errorf("failed to create request: %w", err))
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.options.CompressionEnabled && c.options.DisableAutoDecompression {
		// Go only adds Accept-Encoding itself while it decompresses
		req.Header.Set("Accept-Encoding", "gzip")
	}

	id, err := c.identity.RequestIdentity(ctx)
	if err != nil {
		c.logger.LogError(ctx, err, "Failed to resolve request identity", slog.String("url", url))
		return errors.E(op, errors.Component(component), err)
	}
	id.Apply(req, c.options.GuestHeader)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("Cart request failed",
			slog.String("method", method),
			slog.String("url", url),
			slog.String("error", err.Error()))
		netErr := errors.NewNetworkError(op, fmt.Errorf("network error: %w", err))
		netErr.Component = component
		return netErr
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("Cart request returned error status",
			slog.String("method", method),
			slog.String("url", url),
			slog.Int("status_code", resp.StatusCode),
			slog.String("identity", id.Kind.String()),
			slog.String("response_body", string(raw)))
		remoteErr := errors.NewRemoteError(op, &errors.RemoteStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		})
		remoteErr.Component = component
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			remoteErr.Kind = errors.KindAuth
		}
		return remoteErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Debug("Cart request completed",
			slog.String("method", method),
			slog.String("url", url),
			slog.Int("status_code", resp.StatusCode))
		return nil
	}

	reader, cleanup, err := createSafeResponseReader(resp, c.options)
	if err != nil {
		return errors.E(op, errors.Component(component), errors.KindDecode, err)
	}
	defer cleanup()

	if err := json.NewDecoder(reader).Decode(out); err != nil {
		if errors.Is(err, errResponseDecompressedTooLarge) || errors.Is(err, errResponseTooLarge) {
			return errors.E(op, errors.Component(component), errors.KindDecode, fmt.Errorf("response size exceeds limit: %w", err))
		}
		return errors.E(op, errors.Component(component), errors.KindDecode, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}
