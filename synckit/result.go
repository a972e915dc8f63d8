package synckit

import (
	"github.com/c0deZ3R0/go-cart-sync/cart"
	"github.com/c0deZ3R0/go-cart-sync/errors"
)

// Recovery names what the engine did after a failed remote call.
type Recovery string

const (
	// RecoveryNone: the operation succeeded, or failed before touching
	// local state.
	RecoveryNone Recovery = ""
	// RecoveryConverged: local state was replaced by the server's cart.
	RecoveryConverged Recovery = "converged"
	// RecoveryRolledBack: local state was restored from the snapshot
	// taken before the optimistic mutation.
	RecoveryRolledBack Recovery = "rolled_back"
)

// Result is what every engine operation returns: Ok(State) when Err is
// nil, Failed(State, Err) otherwise. State is the cart after the operation
// and any recovery, so callers can render it either way.
type Result struct {
	Op       errors.Operation
	State    cart.State
	Err      error
	Recovery Recovery
}

// OK reports whether the remote side accepted the operation and the cart
// was reconciled.
func (r Result) OK() bool { return r.Err == nil }

// Failed reports whether the operation failed. State is still valid.
func (r Result) Failed() bool { return r.Err != nil }
