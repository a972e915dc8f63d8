// Package cartserver is an in-memory reference implementation of the
// remote cart API, used by cartctl serve and by end-to-end tests.
package cartserver

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/c0deZ3R0/go-cart-sync/cart"
)

var (
	// ErrUnknownBundle is returned when a line refers to a bundle that is
	// not in the catalog.
	ErrUnknownBundle = errors.New("unknown bundle")

	// ErrLineNotFound is returned when a line id is not in the owner's cart.
	ErrLineNotFound = errors.New("cart line not found")

	// ErrInvalidQuantity is returned for quantities below one.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

// Owner identifies whose cart a request addresses.
type Owner struct {
	User  string
	Guest string
}

// Authenticated reports whether the owner is a logged-in user.
func (o Owner) Authenticated() bool { return o.User != "" }

func (o Owner) key() string {
	if o.User != "" {
		return "user:" + o.User
	}
	return "guest:" + o.Guest
}

// Product is a catalog entry: the display data of a bundle plus its
// per-unit impact figures.
type Product struct {
	Bundle         cart.Item
	WastePerUnitKg cart.Decimal
	CO2PerUnitKg   cart.Decimal
}

// LineInput is a create or update request after decoding.
type LineInput struct {
	BundleID       cart.BundleID
	Quantity       int
	AvoidedWasteKg *cart.Decimal
	AvoidedCO2Kg   *cart.Decimal
	ProducerName   string
}

type line struct {
	id       cart.ServerItemID
	bundle   cart.BundleID
	quantity int
	waste    *cart.Decimal
	co2      *cart.Decimal
	producer string
}

// Store holds every cart in memory. It is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	catalog  map[cart.BundleID]Product
	carts    map[string][]*line
	nextLine cart.ServerItemID
}

// NewStore creates a Store selling the given products.
func NewStore(products ...Product) *Store {
	s := &Store{
		catalog: make(map[cart.BundleID]Product, len(products)),
		carts:   make(map[string][]*line),
	}
	for _, p := range products {
		s.catalog[p.Bundle.ID] = p
	}
	return s
}

// DefaultCatalog returns a few bundles for local runs.
func DefaultCatalog() []Product {
	dluo := cart.NewDate(2026, time.December, 15)
	return []Product{
		{
			Bundle: cart.Item{
				ID:           1,
				Title:        "Panier légumes de saison",
				Image:        "/static/bundles/1.jpg",
				Price:        cart.MustDecimal("12.90"),
				DLUO:         &dluo,
				ProducerName: "Ferme du Lac",
				Items: []cart.BundleComponent{
					{ProductID: 11, Name: "Carottes", Quantity: 1},
					{ProductID: 12, Name: "Poireaux", Quantity: 2},
				},
			},
			WastePerUnitKg: cart.MustDecimal("1.8"),
			CO2PerUnitKg:   cart.MustDecimal("0.9"),
		},
		{
			Bundle: cart.Item{
				ID:           2,
				Title:        "Fromages affinés",
				Image:        "/static/bundles/2.jpg",
				Price:        cart.MustDecimal("18.50"),
				ProducerName: "Laiterie des Monts",
				Items: []cart.BundleComponent{
					{ProductID: 21, Name: "Comté 18 mois", Quantity: 1},
				},
			},
			WastePerUnitKg: cart.MustDecimal("0.6"),
			CO2PerUnitKg:   cart.MustDecimal("1.4"),
		},
		{
			Bundle: cart.Item{
				ID:           3,
				Title:        "Pain et viennoiseries",
				Price:        cart.MustDecimal("6.20"),
				ProducerName: "Boulangerie Martin",
			},
			WastePerUnitKg: cart.MustDecimal("0.4"),
			CO2PerUnitKg:   cart.MustDecimal("0.2"),
		},
	}
}

// Cart returns the owner's lines in creation order.
func (s *Store) Cart(o Owner) []cart.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.itemsLocked(o.key())
}

// AddLine adds quantity of a bundle, growing the existing line if there is
// one.
func (s *Store) AddLine(o Owner, in LineInput) error {
	if in.Quantity < 1 {
		return ErrInvalidQuantity
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.catalog[in.BundleID]; !ok {
		return ErrUnknownBundle
	}
	key := o.key()
	for _, l := range s.carts[key] {
		if l.bundle == in.BundleID {
			l.quantity += in.Quantity
			applyImpact(l, in)
			return nil
		}
	}
	s.nextLine++
	l := &line{id: s.nextLine, bundle: in.BundleID, quantity: in.Quantity, producer: in.ProducerName}
	applyImpact(l, in)
	s.carts[key] = append(s.carts[key], l)
	return nil
}

// UpdateLine sets the quantity of one of the owner's lines.
func (s *Store) UpdateLine(o Owner, id cart.ServerItemID, in LineInput) error {
	if in.Quantity < 1 {
		return ErrInvalidQuantity
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.carts[o.key()] {
		if l.id == id {
			l.quantity = in.Quantity
			applyImpact(l, in)
			return nil
		}
	}
	return ErrLineNotFound
}

// DeleteLine removes one of the owner's lines.
func (s *Store) DeleteLine(o Owner, id cart.ServerItemID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := o.key()
	lines := s.carts[key]
	for i, l := range lines {
		if l.id == id {
			s.carts[key] = append(lines[:i:i], lines[i+1:]...)
			return nil
		}
	}
	return ErrLineNotFound
}

// Clear empties the owner's cart.
func (s *Store) Clear(o Owner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, o.key())
}

// Merge folds the guest cart into the user's, summing quantities per
// bundle, and empties the guest cart. It returns how many guest lines were
// merged.
func (s *Store) Merge(user Owner, guestToken string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	guestKey := Owner{Guest: guestToken}.key()
	userKey := user.key()
	guest := s.carts[guestKey]
	for _, g := range guest {
		merged := false
		for _, u := range s.carts[userKey] {
			if u.bundle == g.bundle {
				u.quantity += g.quantity
				merged = true
				break
			}
		}
		if !merged {
			s.carts[userKey] = append(s.carts[userKey], g)
		}
	}
	delete(s.carts, guestKey)
	return len(guest)
}

func applyImpact(l *line, in LineInput) {
	if in.AvoidedWasteKg != nil {
		v := *in.AvoidedWasteKg
		l.waste = &v
	}
	if in.AvoidedCO2Kg != nil {
		v := *in.AvoidedCO2Kg
		l.co2 = &v
	}
}

func (s *Store) itemsLocked(key string) []cart.Item {
	lines := s.carts[key]
	items := make([]cart.Item, 0, len(lines))
	for _, l := range lines {
		p := s.catalog[l.bundle]
		it := p.Bundle
		if it.Items != nil {
			it.Items = append([]cart.BundleComponent(nil), it.Items...)
		}
		it.ServerItemID = l.id
		it.Quantity = l.quantity
		if l.producer != "" {
			it.ProducerName = l.producer
		}
		it.TotalAvoidedWasteKg = p.WastePerUnitKg.MulInt(l.quantity)
		if l.waste != nil {
			it.TotalAvoidedWasteKg = *l.waste
		}
		it.TotalAvoidedCO2Kg = p.CO2PerUnitKg.MulInt(l.quantity)
		if l.co2 != nil {
			it.TotalAvoidedCO2Kg = *l.co2
		}
		items = append(items, it)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].ServerItemID < items[j].ServerItemID })
	return items
}
