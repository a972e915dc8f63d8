package synckit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/c0deZ3R0/go-cart-sync/cart"
	"github.com/c0deZ3R0/go-cart-sync/errors"
)

// fakeRemote is an in-memory RemoteCart with programmable failures.
type fakeRemote struct {
	mu       sync.Mutex
	lines    map[cart.ServerItemID]cart.Item
	nextLine cart.ServerItemID
	catalog  map[cart.BundleID]cart.Item

	fetchErr  error
	createErr error
	updateErr error
	deleteErr error
	clearErr  error
	mergeErr  error

	// fetchErrAfter makes Fetch fail once it has been called this many
	// times; zero disables it.
	fetchErrAfter int

	calls      map[string]int
	lastCreate LineRequest
	lastUpdate LineRequest
	merged     []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		lines:    make(map[cart.ServerItemID]cart.Item),
		nextLine: 100,
		catalog:  make(map[cart.BundleID]cart.Item),
		calls:    make(map[string]int),
	}
}

// seed puts a line in the server cart and returns its id.
func (f *fakeRemote) seed(it cart.Item) cart.ServerItemID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextLine++
	it.ServerItemID = f.nextLine
	f.lines[it.ServerItemID] = it
	f.catalog[it.ID] = it
	return it.ServerItemID
}

func (f *fakeRemote) called(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeRemote) setErr(target *error, err error) {
	f.mu.Lock()
	*target = err
	f.mu.Unlock()
}

func (f *fakeRemote) Fetch(context.Context) ([]cart.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["fetch"]++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.fetchErrAfter > 0 && f.calls["fetch"] > f.fetchErrAfter {
		return nil, errors.NewNetworkError(errors.OpFetch, fmt.Errorf("connection reset"))
	}
	items := make([]cart.Item, 0, len(f.lines))
	for _, it := range f.lines {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ServerItemID < items[j].ServerItemID })
	return items, nil
}

func (f *fakeRemote) CreateLine(_ context.Context, req LineRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["create"]++
	f.lastCreate = req
	if f.createErr != nil {
		return f.createErr
	}
	for id, it := range f.lines {
		if it.ID == req.BundleID {
			it.Quantity += req.Quantity
			f.lines[id] = it
			return nil
		}
	}
	it, ok := f.catalog[req.BundleID]
	if !ok {
		it = cart.Item{ID: req.BundleID, Title: fmt.Sprintf("Bundle %d", req.BundleID), Price: cart.MustDecimal("1.00")}
	}
	f.nextLine++
	it.ServerItemID = f.nextLine
	it.Quantity = req.Quantity
	f.lines[it.ServerItemID] = it
	return nil
}

func (f *fakeRemote) UpdateLine(_ context.Context, line cart.ServerItemID, req LineRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["update"]++
	f.lastUpdate = req
	if f.updateErr != nil {
		return f.updateErr
	}
	it, ok := f.lines[line]
	if !ok {
		return errors.NewRemoteError(errors.OpUpdateLine, &errors.RemoteStatusError{StatusCode: 404})
	}
	it.Quantity = req.Quantity
	f.lines[line] = it
	return nil
}

func (f *fakeRemote) DeleteLine(_ context.Context, line cart.ServerItemID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["delete"]++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.lines, line)
	return nil
}

func (f *fakeRemote) ClearLines(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["clear"]++
	if f.clearErr != nil {
		return f.clearErr
	}
	f.lines = make(map[cart.ServerItemID]cart.Item)
	return nil
}

func (f *fakeRemote) Merge(_ context.Context, guestToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["merge"]++
	f.merged = append(f.merged, guestToken)
	return f.mergeErr
}

// fakeIdentity is an IdentityResolver whose authentication can be toggled.
type fakeIdentity struct {
	mu            sync.Mutex
	token         string
	authenticated bool
	tokenErr      error
	authErr       error
}

func (f *fakeIdentity) GuestToken(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, f.tokenErr
}

func (f *fakeIdentity) Authenticated(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.authErr != nil {
		return false, f.authErr
	}
	return f.authenticated, nil
}

func (f *fakeIdentity) setAuthErr(err error) {
	f.mu.Lock()
	f.authErr = err
	f.mu.Unlock()
}

func (f *fakeIdentity) setAuthenticated(v bool) {
	f.mu.Lock()
	f.authenticated = v
	f.mu.Unlock()
}

type recordingMetrics struct {
	mu         sync.Mutex
	operations map[string][]bool
	recoveries map[string][]Recovery
	merges     []bool
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		operations: make(map[string][]bool),
		recoveries: make(map[string][]Recovery),
	}
}

func (m *recordingMetrics) RecordOperation(op string, _ time.Duration, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations[op] = append(m.operations[op], ok)
}

func (m *recordingMetrics) RecordRecovery(op string, r Recovery) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recoveries[op] = append(m.recoveries[op], r)
}

func (m *recordingMetrics) RecordMerge(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merges = append(m.merges, ok)
}
