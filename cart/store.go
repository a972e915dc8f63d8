package cart

import "sync"

// Store holds the current State. Writes are serialized; reads return
// copies, so callers can never alter the stored state.
type Store struct {
	mu          sync.RWMutex
	state       State
	subscribers map[int]func(State)
	nextSub     int
}

// NewStore returns a Store holding the empty cart.
func NewStore() *Store {
	return &Store{
		state:       Empty(),
		subscribers: make(map[int]func(State)),
	}
}

// Dispatch applies cmd and returns the new state.
func (s *Store) Dispatch(cmd Command) State {
	s.mu.Lock()
	s.state = Reduce(s.state, cmd)
	next := s.state.Clone()
	s.mu.Unlock()

	s.notify(next)
	return next
}

// Restore puts back a snapshot previously taken with Snapshot.
func (s *Store) Restore(snapshot State) State {
	return s.Dispatch(ReplaceAll{Items: snapshot.Items})
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Subscribe registers fn to be called after every change. The returned
// function unregisters it.
func (s *Store) Subscribe(fn func(State)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) notify(state State) {
	s.mu.RLock()
	subscribers := make([]func(State), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subscribers = append(subscribers, fn)
	}
	s.mu.RUnlock()

	for _, fn := range subscribers {
		func() {
			// observer panics are dropped
			defer func() { _ = recover() }()
			fn(state.Clone())
		}()
	}
}
