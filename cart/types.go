// Package cart holds the local, optimistic copy of a shopping cart: its
// data model, the closed set of commands that change it and the pure
// transition function applying them.
package cart

import (
	"bytes"
	"fmt"
	"time"
)

// BundleID identifies a purchasable bundle.
type BundleID int64

// ServerItemID identifies a line in the remote cart. Zero means the line
// is not known yet.
type ServerItemID int64

// Known reports whether the remote line id has been revealed by the server.
func (id ServerItemID) Known() bool { return id != 0 }

// BundleComponent is one product inside a bundle. It is display data only.
type BundleComponent struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
}

// Item is one cart line as the UI sees it.
type Item struct {
	ID                  BundleID          `json:"id"`
	ServerItemID        ServerItemID      `json:"server_item_id,omitempty"`
	Title               string            `json:"title"`
	Image               string            `json:"image,omitempty"`
	Price               Decimal           `json:"price"`
	Quantity            int               `json:"quantity"`
	DLUO                *Date             `json:"dluo,omitempty"`
	ProducerName        string            `json:"producer_name,omitempty"`
	Items               []BundleComponent `json:"items,omitempty"`
	TotalAvoidedWasteKg Decimal           `json:"total_avoided_waste_kg"`
	TotalAvoidedCO2Kg   Decimal           `json:"total_avoided_co2_kg"`
}

// Subtotal returns price * quantity.
func (i Item) Subtotal() Decimal {
	return i.Price.MulInt(i.Quantity)
}

func (i Item) clone() Item {
	if i.Items != nil {
		i.Items = append([]BundleComponent(nil), i.Items...)
	}
	if i.DLUO != nil {
		d := *i.DLUO
		i.DLUO = &d
	}
	return i
}

// State is an immutable snapshot of the cart. Total is always the sum of
// every item's subtotal; only NewState and Reduce produce States.
type State struct {
	Items []Item  `json:"items"`
	Total Decimal `json:"total"`
}

// Empty is the state of a cart with no items.
func Empty() State {
	return State{Items: []Item{}}
}

// NewState builds a State from items, normalizing them the same way
// ReplaceAll does.
func NewState(items []Item) State {
	return Reduce(Empty(), ReplaceAll{Items: items})
}

// Find returns the item with the given bundle id.
func (s State) Find(id BundleID) (Item, bool) {
	for _, it := range s.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// Count returns the number of units across all items.
func (s State) Count() int {
	n := 0
	for _, it := range s.Items {
		n += it.Quantity
	}
	return n
}

// Len returns the number of distinct items.
func (s State) Len() int { return len(s.Items) }

// Clone returns a deep copy of s.
func (s State) Clone() State {
	items := make([]Item, len(s.Items))
	for i, it := range s.Items {
		items[i] = it.clone()
	}
	return State{Items: items, Total: s.Total}
}

const dateLayout = "2006-01-02"

// Date is a calendar date such as a best-before (DLUO) label.
type Date struct {
	time.Time
}

// NewDate returns the date y-m-d in UTC.
func NewDate(y int, m time.Month, d int) Date {
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON accepts "2006-01-02" and full RFC 3339 timestamps.
func (d *Date) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(bytes.TrimSpace(data), `"`))
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", s, err)
	}
	y, m, day := t.Date()
	*d = NewDate(y, m, day)
	return nil
}
