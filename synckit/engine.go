package synckit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c0deZ3R0/go-cart-sync/cart"
	"github.com/c0deZ3R0/go-cart-sync/errors"
	"github.com/c0deZ3R0/go-cart-sync/logging"
	"github.com/c0deZ3R0/go-cart-sync/signal"
)

const component = "synckit"

// Engine keeps the local cart in step with the remote cart store. Every
// mutation is applied locally first, then sent to the server; on success
// the local cart is replaced by the server's, on failure it is recovered
// as described on each operation.
//
// An Engine is safe for concurrent use. Nothing orders overlapping
// operations: a slow reload may overwrite a newer optimistic change.
type Engine struct {
	store    *cart.Store
	remote   RemoteCart
	resolver IdentityResolver
	merge    *MergeCoordinator
	reset    *ResetListener
	bus      *signal.Bus
	metrics  MetricsCollector
	logger   *logging.Logger

	mu     sync.RWMutex
	closed bool
}

// NewEngine creates an engine around remote and resolver. The local cart
// starts empty; call Start to hydrate it.
func NewEngine(remote RemoteCart, resolver IdentityResolver, opts ...Option) (*Engine, error) {
	if remote == nil {
		return nil, errors.E(errors.Op("NewEngine"), errors.Component(component), errors.KindInvalid,
			fmt.Errorf("remote cart is required"))
	}
	if resolver == nil {
		return nil, errors.E(errors.Op("NewEngine"), errors.Component(component), errors.KindInvalid,
			fmt.Errorf("identity resolver is required"))
	}

	e := &Engine{
		remote:   remote,
		resolver: resolver,
		metrics:  NoOpMetricsCollector{},
		logger:   logging.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		e.store = cart.NewStore()
	}
	if e.bus == nil {
		e.bus = signal.NewBus()
	}
	base := e.logger
	e.logger = base.WithComponent(logging.Component(component))

	e.merge = NewMergeCoordinator(resolver, remote, func(ctx context.Context) error {
		_, err := e.reload(ctx)
		return err
	}, base.WithComponent(logging.Component("merge")), e.metrics)
	e.reset = NewResetListener(e.bus, e.store, base.WithComponent(logging.Component("reset")))

	return e, nil
}

// Start subscribes the reset listener and hydrates the local cart from the
// server.
func (e *Engine) Start(ctx context.Context) Result {
	e.reset.Start()
	return e.Reload(ctx)
}

// Close unsubscribes the reset listener. Operations after Close fail with
// errors.KindClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.reset.Stop()
	e.logger.Debug("Engine closed")
	return nil
}

// State returns a copy of the current local cart.
func (e *Engine) State() cart.State {
	return e.store.Snapshot()
}

// Subscribe registers fn to be called with the new cart after every local
// change, including rollbacks and reloads.
func (e *Engine) Subscribe(fn func(cart.State)) (cancel func()) {
	return e.store.Subscribe(fn)
}

// Bus returns the signal bus the reset listener is subscribed to.
func (e *Engine) Bus() *signal.Bus {
	return e.bus
}

// Merge returns the engine's merge coordinator.
func (e *Engine) Merge() *MergeCoordinator {
	return e.merge
}

// Reload replaces the local cart with the server's. On failure the local
// cart is left as it was.
func (e *Engine) Reload(ctx context.Context) Result {
	return e.run(ctx, errors.OpReload, func(ctx context.Context) Result {
		state, err := e.reload(ctx)
		return Result{State: state, Err: err}
	})
}

// Add puts item in the cart, or increases its quantity when the bundle is
// already there, then creates the line remotely. Known impact figures
// override the item's.
//
// The cart is reloaded whether or not the create call succeeded, so after a
// failure it converges to whatever the server holds.
func (e *Engine) Add(ctx context.Context, item cart.Item, impact Impact) Result {
	return e.run(ctx, errors.OpAdd, func(ctx context.Context) Result {
		if item.Quantity <= 0 {
			return Result{
				State: e.store.Snapshot(),
				Err: errors.NewValidationError(errors.OpAdd,
					fmt.Errorf("quantity must be positive, got %d", item.Quantity)),
			}
		}

		item.ServerItemID = 0
		if impact.AvoidedWasteKg != nil {
			item.TotalAvoidedWasteKg = *impact.AvoidedWasteKg
		}
		if impact.AvoidedCO2Kg != nil {
			item.TotalAvoidedCO2Kg = *impact.AvoidedCO2Kg
		}
		e.store.Dispatch(cart.Add{Item: item})

		createErr := e.remote.CreateLine(ctx, LineRequest{
			BundleID:       item.ID,
			Quantity:       item.Quantity,
			AvoidedWasteKg: impact.AvoidedWasteKg,
			AvoidedCO2Kg:   impact.AvoidedCO2Kg,
			ProducerName:   item.ProducerName,
		})

		state, reloadErr := e.reload(ctx)
		if createErr != nil {
			e.logger.LogWarn(ctx, createErr, "Add rejected, converging to server cart",
				slog.Int64("bundle_id", int64(item.ID)))
			if reloadErr != nil {
				e.logger.LogWarn(ctx, reloadErr, "Convergence reload failed, keeping optimistic cart")
			}
			return Result{
				State:    state,
				Err:      errors.WrapOpComponent(createErr, errors.OpAdd, component),
				Recovery: RecoveryConverged,
			}
		}
		return Result{State: state, Err: reloadErr}
	})
}

// UpdateQuantity sets the quantity of a bundle, never below 1. The remote
// line is found locally or by fetching the server cart; when the server
// has no line for the bundle one is created instead.
//
// On failure the previous quantity is put back, then the cart is reloaded
// on a best-effort basis; a failing reload there is logged and ignored.
func (e *Engine) UpdateQuantity(ctx context.Context, id cart.BundleID, quantity int, impact Impact) Result {
	return e.run(ctx, errors.OpUpdateQuantity, func(ctx context.Context) Result {
		if quantity < 1 {
			quantity = 1
		}

		before := e.store.Snapshot()
		prev, existed := before.Find(id)
		e.store.Dispatch(cart.SetQuantity{ID: id, Quantity: quantity})

		req := LineRequest{
			BundleID:       id,
			Quantity:       quantity,
			AvoidedWasteKg: impact.AvoidedWasteKg,
			AvoidedCO2Kg:   impact.AvoidedCO2Kg,
		}
		line, err := e.resolveLine(ctx, before, id)
		if err == nil {
			if line.Known() {
				err = e.remote.UpdateLine(ctx, line, req)
			} else {
				req.ProducerName = prev.ProducerName
				err = e.remote.CreateLine(ctx, req)
			}
		}

		if err != nil {
			e.logger.LogWarn(ctx, err, "Quantity update rejected, rolling back",
				slog.Int64("bundle_id", int64(id)),
				slog.Int("quantity", quantity))
			if existed {
				e.store.Dispatch(cart.SetQuantity{ID: id, Quantity: prev.Quantity})
			}
			if _, reloadErr := e.reload(ctx); reloadErr != nil {
				e.logger.DebugContext(ctx, "Best-effort reload after rollback failed",
					slog.String("error", reloadErr.Error()))
			}
			return Result{
				State:    e.store.Snapshot(),
				Err:      errors.WrapOpComponent(err, errors.OpUpdateQuantity, component),
				Recovery: RecoveryRolledBack,
			}
		}

		state, reloadErr := e.reload(ctx)
		return Result{State: state, Err: reloadErr}
	})
}

// RemoveFromCart removes a bundle locally and deletes its remote line when
// the local cart knows it. No remote call is made for a line the local cart
// has no server id for. On failure the whole cart is restored to its state
// before the call.
func (e *Engine) RemoveFromCart(ctx context.Context, id cart.BundleID) Result {
	return e.run(ctx, errors.OpRemove, func(ctx context.Context) Result {
		snapshot := e.store.Snapshot()
		e.store.Dispatch(cart.Remove{ID: id})

		var err error
		if it, ok := snapshot.Find(id); ok && it.ServerItemID.Known() {
			err = e.remote.DeleteLine(ctx, it.ServerItemID)
		}
		if err != nil {
			e.logger.LogWarn(ctx, err, "Remove rejected, restoring cart",
				slog.Int64("bundle_id", int64(id)))
			return Result{
				State:    e.store.Restore(snapshot),
				Err:      errors.WrapOpComponent(err, errors.OpRemove, component),
				Recovery: RecoveryRolledBack,
			}
		}

		state, reloadErr := e.reload(ctx)
		return Result{State: state, Err: reloadErr}
	})
}

// ClearCart empties the cart locally and remotely. On failure the whole
// cart is restored to its state before the call.
func (e *Engine) ClearCart(ctx context.Context) Result {
	return e.run(ctx, errors.OpClear, func(ctx context.Context) Result {
		snapshot := e.store.Snapshot()
		e.store.Dispatch(cart.Clear{})

		if err := e.remote.ClearLines(ctx); err != nil {
			e.logger.LogWarn(ctx, err, "Clear rejected, restoring cart",
				slog.Int("items", snapshot.Len()))
			return Result{
				State:    e.store.Restore(snapshot),
				Err:      errors.WrapOpComponent(err, errors.OpClear, component),
				Recovery: RecoveryRolledBack,
			}
		}

		state, reloadErr := e.reload(ctx)
		return Result{State: state, Err: reloadErr}
	})
}

// run wraps every public operation: closed check, merge observation,
// logging and metrics.
func (e *Engine) run(ctx context.Context, op errors.Operation, fn func(ctx context.Context) Result) Result {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return Result{
			Op:    op,
			State: e.store.Snapshot(),
			Err:   errors.E(op, errors.Component(component), errors.KindClosed, fmt.Errorf("engine is closed")),
		}
	}

	// A failed merge is logged by the coordinator and never fails the
	// operation that observed it.
	_, _ = e.merge.Observe(ctx)

	logger := e.logger.WithOperation(logging.Operation(op))
	logger.DebugContext(ctx, "Operation started")

	start := time.Now()
	res := fn(ctx)
	res.Op = op
	duration := time.Since(start)

	e.metrics.RecordOperation(string(op), duration, res.OK())
	if res.Recovery != RecoveryNone {
		e.metrics.RecordRecovery(string(op), res.Recovery)
	}

	switch {
	case res.OK():
		logger.DebugContext(ctx, "Operation completed",
			slog.Duration("duration", duration),
			slog.Int("items", res.State.Len()))
	case res.Recovery != RecoveryNone:
		// the operation already logged the failure it recovered from
		logger.DebugContext(ctx, "Operation recovered",
			slog.Duration("duration", duration),
			slog.String("recovery", string(res.Recovery)))
	default:
		logger.LogError(ctx, res.Err, "Operation failed",
			slog.Duration("duration", duration))
	}
	return res
}

// reload fetches the server cart and replaces the local one with it. On
// failure it returns the unchanged local cart.
func (e *Engine) reload(ctx context.Context) (cart.State, error) {
	items, err := e.remote.Fetch(ctx)
	if err != nil {
		return e.store.Snapshot(), errors.WrapOpComponent(err, errors.OpReload, component)
	}
	return e.store.Dispatch(cart.ReplaceAll{Items: items}), nil
}

// resolveLine returns the remote line id of a bundle: from the local cart
// when known, otherwise by matching the server cart. Zero means the server
// has no line for it.
func (e *Engine) resolveLine(ctx context.Context, local cart.State, id cart.BundleID) (cart.ServerItemID, error) {
	if it, ok := local.Find(id); ok && it.ServerItemID.Known() {
		return it.ServerItemID, nil
	}
	items, err := e.remote.Fetch(ctx)
	if err != nil {
		return 0, err
	}
	for _, it := range items {
		if it.ID == id {
			return it.ServerItemID, nil
		}
	}
	return 0, nil
}
