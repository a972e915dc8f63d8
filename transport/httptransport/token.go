package httptransport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/c0deZ3R0/go-cart-sync/errors"
	"github.com/c0deZ3R0/go-cart-sync/identity"
	"github.com/c0deZ3R0/go-cart-sync/logging"
)

// CredentialKey is the storage key of the access credential.
const CredentialKey = "access_token"

// ErrNoCredential is returned by AcquireCredential when nobody is logged in.
var ErrNoCredential error = errors.New(errors.OpCredential, fmt.Errorf("no credential stored"))

// Refresher exchanges the current credential for a fresh one.
type Refresher func(ctx context.Context, current string) (string, error)

// TokenManager owns the access credential and its refresh state. The
// credential lives in a KVStore; a JWT whose exp is within the skew window
// is refreshed before use, and concurrent refreshes share one call.
type TokenManager struct {
	kv      identity.KVStore
	refresh Refresher
	skew    time.Duration
	now     func() time.Time
	logger  *logging.Logger
	parser  *jwt.Parser

	group singleflight.Group

	mu        sync.Mutex
	listeners map[int]func(credential string)
	nextID    int
}

var _ identity.CredentialSource = (*TokenManager)(nil)

// TokenOption configures a TokenManager.
type TokenOption func(*TokenManager)

// WithRefresher sets the function used to renew an expiring credential.
// Without one, expiring credentials are used as they are.
func WithRefresher(r Refresher) TokenOption {
	return func(m *TokenManager) { m.refresh = r }
}

// WithRefreshSkew sets how long before exp a credential is refreshed.
func WithRefreshSkew(d time.Duration) TokenOption {
	return func(m *TokenManager) { m.skew = d }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) TokenOption {
	return func(m *TokenManager) { m.now = now }
}

// WithTokenLogger sets the logger.
func WithTokenLogger(l *logging.Logger) TokenOption {
	return func(m *TokenManager) { m.logger = l }
}

// NewTokenManager creates a TokenManager storing its credential in kv.
func NewTokenManager(kv identity.KVStore, opts ...TokenOption) *TokenManager {
	m := &TokenManager{
		kv:        kv,
		skew:      30 * time.Second,
		now:       time.Now,
		logger:    logging.Default(),
		parser:    jwt.NewParser(),
		listeners: make(map[int]func(string)),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithComponent(logging.Component("token"))
	return m
}

// SetCredential stores credential, e.g. after login.
func (m *TokenManager) SetCredential(ctx context.Context, credential string) error {
	if credential == "" {
		return errors.NewValidationError(errors.OpCredential, fmt.Errorf("credential must not be empty"))
	}
	if err := m.kv.Set(ctx, CredentialKey, credential); err != nil {
		return errors.WrapOpComponent(err, errors.OpCredential, "token")
	}
	return nil
}

// Logout deletes the stored credential. Logging out twice is not an error.
func (m *TokenManager) Logout(ctx context.Context) error {
	err := m.kv.Delete(ctx, CredentialKey)
	if err != nil && !errors.Is(err, identity.ErrNotFound) {
		return errors.WrapOpComponent(err, errors.OpCredential, "token")
	}
	return nil
}

// OnRefreshed registers fn to run after every successful refresh with the
// new credential. The returned function unregisters it.
func (m *TokenManager) OnRefreshed(fn func(credential string)) (cancel func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// Credential implements identity.CredentialSource.
func (m *TokenManager) Credential(ctx context.Context) (string, bool, error) {
	cred, err := m.AcquireCredential(ctx)
	if errors.Is(err, ErrNoCredential) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return cred, true, nil
}

// AcquireCredential returns a credential ready to use, refreshing it first
// when it expires within the skew window. Callers arriving during a
// refresh wait for it and receive its result.
func (m *TokenManager) AcquireCredential(ctx context.Context) (string, error) {
	cred, err := m.kv.Get(ctx, CredentialKey)
	if errors.Is(err, identity.ErrNotFound) || (err == nil && cred == "") {
		return "", ErrNoCredential
	}
	if err != nil {
		return "", errors.WrapOpComponent(err, errors.OpCredential, "token")
	}

	if !m.expiring(cred) || m.refresh == nil {
		return cred, nil
	}

	v, err, shared := m.group.Do("refresh", func() (interface{}, error) {
		return m.doRefresh(ctx, cred)
	})
	if err != nil {
		return "", err
	}
	if shared {
		m.logger.Debug("Joined in-flight credential refresh")
	}
	return v.(string), nil
}

func (m *TokenManager) doRefresh(ctx context.Context, current string) (string, error) {
	m.logger.Debug("Refreshing credential")

	fresh, err := m.refresh(ctx, current)
	if err != nil {
		m.logger.LogWarn(ctx, err, "Credential refresh failed")
		return "", errors.E(errors.OpCredential, errors.Component("token"), errors.KindAuth, err)
	}
	if fresh == "" {
		return "", errors.E(errors.OpCredential, errors.Component("token"), errors.KindAuth, "refresher returned an empty credential")
	}
	if err := m.kv.Set(ctx, CredentialKey, fresh); err != nil {
		return "", errors.WrapOpComponent(err, errors.OpCredential, "token")
	}

	m.mu.Lock()
	listeners := make([]func(string), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(fresh)
	}

	m.logger.Info("Credential refreshed", slog.Int("listeners", len(listeners)))
	return fresh, nil
}

// expiring reports whether cred is a JWT whose exp falls within the skew
// window. Opaque credentials and JWTs without exp never expire here; the
// signature is not checked, the server does that.
func (m *TokenManager) expiring(cred string) bool {
	token, _, err := m.parser.ParseUnverified(cred, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !m.now().Add(m.skew).Before(exp.Time)
}
