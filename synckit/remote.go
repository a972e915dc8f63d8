package synckit

import (
	"context"

	"github.com/c0deZ3R0/go-cart-sync/cart"
)

// LineRequest is the body of a create-line or update-line call.
type LineRequest struct {
	BundleID       cart.BundleID
	Quantity       int
	AvoidedWasteKg *cart.Decimal
	AvoidedCO2Kg   *cart.Decimal
	// ProducerName is a display hint, only sent on create.
	ProducerName string
}

// RemoteCart is the authoritative cart store. Implementations attach the
// caller's identity to every request; see transport/httptransport.
type RemoteCart interface {
	// Fetch returns every line of the current identity's cart, each with
	// its ServerItemID set.
	Fetch(ctx context.Context) ([]cart.Item, error)
	CreateLine(ctx context.Context, req LineRequest) error
	UpdateLine(ctx context.Context, line cart.ServerItemID, req LineRequest) error
	DeleteLine(ctx context.Context, line cart.ServerItemID) error
	ClearLines(ctx context.Context) error
	// Merge folds the cart of guestToken into the authenticated cart.
	Merge(ctx context.Context, guestToken string) error
}

// IdentityResolver is the part of identity.Resolver the engine relies on.
type IdentityResolver interface {
	GuestToken(ctx context.Context) (string, error)
	// Authenticated returns an error when the credential could not be
	// looked up; that is not the same as being logged out.
	Authenticated(ctx context.Context) (bool, error)
}

// Impact carries the optional impact figures a caller knows for a bundle.
// Nil fields are left out of the request.
type Impact struct {
	AvoidedWasteKg *cart.Decimal
	AvoidedCO2Kg   *cart.Decimal
}

// Endpoints are the remote cart store paths, relative to the base URL.
// {id} in ItemPath is replaced by the remote line id.
type Endpoints struct {
	Cart     string `yaml:"cart" json:"cart"`
	Items    string `yaml:"items" json:"items"`
	ItemPath string `yaml:"item" json:"item"`
	Clear    string `yaml:"clear" json:"clear"`
	Merge    string `yaml:"merge" json:"merge"`
}

// DefaultEndpoints returns the stock cart API layout.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Cart:     "/cart/",
		Items:    "/cart/items/",
		ItemPath: "/cart/items/{id}/",
		Clear:    "/cart/clear/",
		Merge:    "/cart/merge/",
	}
}

// WithDefaults fills empty paths from DefaultEndpoints.
func (e Endpoints) WithDefaults() Endpoints {
	d := DefaultEndpoints()
	if e.Cart == "" {
		e.Cart = d.Cart
	}
	if e.Items == "" {
		e.Items = d.Items
	}
	if e.ItemPath == "" {
		e.ItemPath = d.ItemPath
	}
	if e.Clear == "" {
		e.Clear = d.Clear
	}
	if e.Merge == "" {
		e.Merge = d.Merge
	}
	return e
}
