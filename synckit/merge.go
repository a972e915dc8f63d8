package synckit

import (
	"context"
	"log/slog"
	"sync"

	"github.com/c0deZ3R0/go-cart-sync/errors"
	"github.com/c0deZ3R0/go-cart-sync/logging"
)

// Merger is the merge endpoint of the remote cart store.
type Merger interface {
	Merge(ctx context.Context, guestToken string) error
}

// MergeCoordinator merges the guest cart into the user's cart once per
// authenticated session: on the first observation of an authenticated
// identity after none, and never again until the identity disappears.
type MergeCoordinator struct {
	resolver IdentityResolver
	merger   Merger
	reload   func(ctx context.Context) error
	logger   *logging.Logger
	metrics  MetricsCollector

	mu     sync.Mutex
	merged bool
}

// NewMergeCoordinator creates a coordinator. reload runs after every merge
// attempt; it may be nil.
func NewMergeCoordinator(resolver IdentityResolver, merger Merger, reload func(ctx context.Context) error, logger *logging.Logger, metrics MetricsCollector) *MergeCoordinator {
	if logger == nil {
		logger = logging.WithComponent(logging.Component("merge"))
	}
	if metrics == nil {
		metrics = NoOpMetricsCollector{}
	}
	return &MergeCoordinator{
		resolver: resolver,
		merger:   merger,
		reload:   reload,
		logger:   logger,
		metrics:  metrics,
	}
}

// Observe checks the current identity. On a none-to-authenticated
// transition it sends the guest token to the merge endpoint, then reloads,
// and reports merged=true if the merge call succeeded. A failed merge is
// not retried within the same session. When the identity cannot be
// determined the session state is left untouched.
func (m *MergeCoordinator) Observe(ctx context.Context) (merged bool, err error) {
	m.mu.Lock()
	authed, err := m.resolver.Authenticated(ctx)
	if err != nil {
		m.mu.Unlock()
		m.logger.LogWarn(ctx, err, "Cannot tell whether the session is authenticated, merge state kept")
		return false, errors.E(errors.OpMerge, errors.Component("synckit"), err)
	}
	if !authed {
		if m.merged {
			m.logger.DebugContext(ctx, "Authenticated session ended, merge re-armed")
		}
		m.merged = false
		m.mu.Unlock()
		return false, nil
	}
	if m.merged {
		m.mu.Unlock()
		return false, nil
	}
	m.merged = true
	m.mu.Unlock()

	token, err := m.resolver.GuestToken(ctx)
	if err != nil {
		m.logger.LogWarn(ctx, err, "Cannot merge guest cart without a guest token")
		return false, errors.E(errors.OpMerge, errors.Component("synckit"), err)
	}

	mergeErr := m.merger.Merge(ctx, token)
	m.metrics.RecordMerge(mergeErr == nil)
	if mergeErr != nil {
		m.logger.LogWarn(ctx, mergeErr, "Guest cart merge failed")
		mergeErr = errors.E(errors.OpMerge, errors.Component("synckit"), mergeErr)
	} else {
		m.logger.InfoContext(ctx, "Guest cart merged into user cart")
	}

	if m.reload != nil {
		if err := m.reload(ctx); err != nil {
			m.logger.LogWarn(ctx, err, "Reload after merge failed", slog.Bool("merge_ok", mergeErr == nil))
			if mergeErr == nil {
				return true, err
			}
		}
	}
	return mergeErr == nil, mergeErr
}

// Reset re-arms the coordinator as if no authenticated session had been
// observed.
func (m *MergeCoordinator) Reset() {
	m.mu.Lock()
	m.merged = false
	m.mu.Unlock()
}
