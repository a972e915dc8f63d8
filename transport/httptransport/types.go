package httptransport

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/c0deZ3R0/go-cart-sync/cart"
	"github.com/c0deZ3R0/go-cart-sync/identity"
	"github.com/c0deZ3R0/go-cart-sync/synckit"
)

// ClientOptions configures a Client
type ClientOptions struct {
	// CompressionEnabled asks the server for gzip responses
	CompressionEnabled bool

	// DisableAutoDecompression disables Go's transparent response
	// decompression so both compressed and decompressed limits apply
	DisableAutoDecompression bool

	// MaxResponseSize is the maximum allowed size of response bodies in bytes (compressed)
	// If 0, defaults to 10MB
	MaxResponseSize int64

	// MaxDecompressedResponseSize is the maximum allowed size of decompressed response bodies in bytes
	// If 0, defaults to 20MB
	MaxDecompressedResponseSize int64

	// RequestTimeout bounds a single request. Zero means no timeout.
	RequestTimeout time.Duration

	// GuestHeader carries the guest token. Defaults to X-Guest-Token.
	GuestHeader string

	// Endpoints are the cart API paths. Empty paths take their defaults.
	Endpoints synckit.Endpoints
}

// DefaultClientOptions returns the default client configuration
func DefaultClientOptions() *ClientOptions {
	return &ClientOptions{
		CompressionEnabled:          true,
		MaxResponseSize:             10 * 1024 * 1024, // 10MB
		MaxDecompressedResponseSize: 20 * 1024 * 1024, // 20MB
		RequestTimeout:              30 * time.Second,
		GuestHeader:                 identity.DefaultGuestHeader,
		Endpoints:                   synckit.DefaultEndpoints(),
	}
}

// ValidateClientOptions rejects option sets a Client cannot work with
func ValidateClientOptions(opts *ClientOptions) error {
	if opts == nil {
		return fmt.Errorf("client options must not be nil")
	}
	if opts.MaxResponseSize < 0 {
		return fmt.Errorf("MaxResponseSize must be non-negative, got %d", opts.MaxResponseSize)
	}
	if opts.MaxDecompressedResponseSize < 0 {
		return fmt.Errorf("MaxDecompressedResponseSize must be non-negative, got %d", opts.MaxDecompressedResponseSize)
	}
	if opts.RequestTimeout < 0 {
		return fmt.Errorf("RequestTimeout must be non-negative, got %v", opts.RequestTimeout)
	}
	if strings.EqualFold(opts.GuestHeader, "Authorization") {
		return fmt.Errorf("GuestHeader must differ from Authorization")
	}
	if p := opts.Endpoints.WithDefaults().ItemPath; !strings.Contains(p, "{id}") {
		return fmt.Errorf("item endpoint %q must contain {id}", p)
	}
	return nil
}

// newHTTPClient creates an HTTP client based on ClientOptions.
func newHTTPClient(opts *ClientOptions) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DisableCompression = opts.DisableAutoDecompression
	return &http.Client{Transport: tr, Timeout: opts.RequestTimeout}
}

// JSONCartItem is one line of the cart as the server sends it. ID is the
// remote line id; BundleID identifies the purchasable bundle.
type JSONCartItem struct {
	ID                  cart.ServerItemID      `json:"id"`
	BundleID            cart.BundleID          `json:"bundle_id"`
	Title               string                 `json:"title"`
	Image               string                 `json:"image,omitempty"`
	Price               cart.Decimal           `json:"price"`
	Quantity            int                    `json:"quantity"`
	DLUO                *cart.Date             `json:"dluo,omitempty"`
	ProducerName        string                 `json:"producer_name,omitempty"`
	Items               []cart.BundleComponent `json:"items,omitempty"`
	TotalAvoidedWasteKg cart.Decimal           `json:"total_avoided_waste_kg"`
	TotalAvoidedCO2Kg   cart.Decimal           `json:"total_avoided_co2_kg"`
}

// JSONCart is the body of GET on the cart endpoint. Total is informative
// only; the local cart recomputes it.
type JSONCart struct {
	Items []JSONCartItem `json:"items"`
	Total *cart.Decimal  `json:"total,omitempty"`
}

// JSONLineRequest is the body of the create-line and update-line calls.
// BundleID and ProducerName are only sent on create.
type JSONLineRequest struct {
	BundleID       cart.BundleID `json:"bundle_id,omitempty"`
	Quantity       int           `json:"quantity"`
	AvoidedWasteKg *cart.Decimal `json:"avoided_waste_kg,omitempty"`
	AvoidedCO2Kg   *cart.Decimal `json:"avoided_co2_kg,omitempty"`
	ProducerName   string        `json:"producer_name,omitempty"`
}

// JSONMergeRequest is the body of the merge call.
type JSONMergeRequest struct {
	GuestToken string `json:"guest_token"`
}

// ToItem converts a wire line to the local cart model.
func (j JSONCartItem) ToItem() cart.Item {
	return cart.Item{
		ID:                  j.BundleID,
		ServerItemID:        j.ID,
		Title:               j.Title,
		Image:               j.Image,
		Price:               j.Price,
		Quantity:            j.Quantity,
		DLUO:                j.DLUO,
		ProducerName:        j.ProducerName,
		Items:               j.Items,
		TotalAvoidedWasteKg: j.TotalAvoidedWasteKg,
		TotalAvoidedCO2Kg:   j.TotalAvoidedCO2Kg,
	}
}

// FromItem converts a local item to its wire form.
func FromItem(it cart.Item) JSONCartItem {
	return JSONCartItem{
		ID:                  it.ServerItemID,
		BundleID:            it.ID,
		Title:               it.Title,
		Image:               it.Image,
		Price:               it.Price,
		Quantity:            it.Quantity,
		DLUO:                it.DLUO,
		ProducerName:        it.ProducerName,
		Items:               it.Items,
		TotalAvoidedWasteKg: it.TotalAvoidedWasteKg,
		TotalAvoidedCO2Kg:   it.TotalAvoidedCO2Kg,
	}
}
