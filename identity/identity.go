// Package identity decides which identity a cart request is made under:
// the authenticated user's bearer credential when there is one, otherwise
// a guest token persisted on this device.
package identity

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"

	cartErrors "github.com/c0deZ3R0/go-cart-sync/errors"
)

const (
	// GuestTokenKey is the storage key of the persisted guest token.
	GuestTokenKey = "guest_token"

	// DefaultGuestHeader carries the guest token on guest requests.
	DefaultGuestHeader = "X-Guest-Token"
)

// ErrNotFound is returned by KVStore.Get for a missing key.
var ErrNotFound = errors.New("identity: key not found")

// KVStore is the device-local key-value storage the resolver persists the
// guest token in.
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// GetOrCreate stores value under key unless the key already exists, and
	// returns whatever value the key holds afterwards.
	GetOrCreate(ctx context.Context, key, value string) (string, error)
}

// CredentialSource supplies the authenticated user's bearer credential.
// ok is false when nobody is logged in.
type CredentialSource interface {
	Credential(ctx context.Context) (credential string, ok bool, err error)
}

// Kind tells guest and authenticated identities apart.
type Kind int

const (
	Guest Kind = iota
	Authenticated
)

func (k Kind) String() string {
	if k == Authenticated {
		return "authenticated"
	}
	return "guest"
}

// Identity is the directive for one request. Exactly one of Credential and
// GuestToken is set.
type Identity struct {
	Kind       Kind
	Credential string
	GuestToken string
}

// Apply sets the identity headers on req. The other identity's header is
// removed so both are never sent together.
func (id Identity) Apply(req *http.Request, guestHeader string) {
	if guestHeader == "" {
		guestHeader = DefaultGuestHeader
	}
	switch id.Kind {
	case Authenticated:
		req.Header.Del(guestHeader)
		req.Header.Set("Authorization", "Bearer "+id.Credential)
	default:
		req.Header.Del("Authorization")
		req.Header.Set(guestHeader, id.GuestToken)
	}
}

// Resolver produces guest tokens and per-request identities.
type Resolver struct {
	kv          KVStore
	credentials CredentialSource
	newToken    func() string

	mu     sync.Mutex
	cached string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTokenGenerator replaces the UUIDv4 guest token generator.
func WithTokenGenerator(gen func() string) Option {
	return func(r *Resolver) {
		r.newToken = gen
	}
}

// NewResolver creates a Resolver. credentials may be nil, in which case
// every request is a guest request.
func NewResolver(kv KVStore, credentials CredentialSource, opts ...Option) *Resolver {
	r := &Resolver{
		kv:          kv,
		credentials: credentials,
		newToken:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GuestToken returns the persisted guest token, creating and persisting a
// new one on first use. Creation is serialized inside the process and is
// atomic in stores whose GetOrCreate is.
func (r *Resolver) GuestToken(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != "" {
		// the key may have been cleared behind our back
		if v, err := r.kv.Get(ctx, GuestTokenKey); err == nil && v == r.cached {
			return v, nil
		}
		r.cached = ""
	}

	token, err := r.kv.Get(ctx, GuestTokenKey)
	switch {
	case err == nil && token != "":
		r.cached = token
		return token, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return "", cartErrors.E(cartErrors.OpGuestToken, cartErrors.Component("identity"), cartErrors.KindStorage, err)
	}

	if err == nil {
		// present but empty: GetOrCreate would keep returning ""
		token = r.newToken()
		err = r.kv.Set(ctx, GuestTokenKey, token)
	} else {
		token, err = r.kv.GetOrCreate(ctx, GuestTokenKey, r.newToken())
	}
	if err != nil {
		return "", cartErrors.E(cartErrors.OpGuestToken, cartErrors.Component("identity"), cartErrors.KindStorage, err)
	}
	r.cached = token
	return token, nil
}

// Authenticated reports whether a credential is currently available. A
// failed credential lookup is returned as an error, not as "logged out".
func (r *Resolver) Authenticated(ctx context.Context) (bool, error) {
	if r.credentials == nil {
		return false, nil
	}
	cred, ok, err := r.credentials.Credential(ctx)
	if err != nil {
		return false, cartErrors.E(cartErrors.OpCredential, cartErrors.Component("identity"), cartErrors.KindAuth, err)
	}
	return ok && cred != "", nil
}

// RequestIdentity returns the identity the next request must carry: the
// credential alone when authenticated, the guest token otherwise.
func (r *Resolver) RequestIdentity(ctx context.Context) (Identity, error) {
	if r.credentials != nil {
		cred, ok, err := r.credentials.Credential(ctx)
		if err != nil {
			return Identity{}, cartErrors.E(cartErrors.OpCredential, cartErrors.Component("identity"), cartErrors.KindAuth, err)
		}
		if ok && cred != "" {
			return Identity{Kind: Authenticated, Credential: cred}, nil
		}
	}

	token, err := r.GuestToken(ctx)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Kind: Guest, GuestToken: token}, nil
}
