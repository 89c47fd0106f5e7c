// Package store is the application state container. It owns the root state
// and is the only place where reducers run.
package store

import (
	"sync"

	appLog "usercal/internal/log"
	"usercal/internal/recorder"
	"usercal/internal/userevents"
)

// Root is the whole application state.
type Root struct {
	Events   userevents.State
	Status   userevents.Status
	Recorder recorder.State
}

// InitialRoot returns the empty application state.
func InitialRoot() Root {
	return Root{Events: userevents.InitialState()}
}

// Reduce folds action through every slice reducer.
func Reduce(r Root, action any) Root {
	next := Root{
		Events:   userevents.ReduceAction(r.Events, action),
		Status:   r.Status,
		Recorder: recorder.Reduce(r.Recorder, action),
	}
	if n, ok := action.(userevents.Notification); ok {
		next.Status = userevents.ReduceStatus(r.Status, n)
	}
	return next
}

// SelectDateStart is the draft start collaborator for the events dispatcher.
func SelectDateStart(r Root) string {
	return recorder.SelectDateStart(r.Recorder)
}

// Store serializes reducer applications: each Dispatch runs to completion,
// subscriber calls included, before the next one starts, whatever goroutine
// it comes from. Subscribers therefore see states in reduce order.
type Store struct {
	// dispatchMu orders whole Dispatch calls; mu only guards state so that
	// subscribers may call Snapshot.
	dispatchMu sync.Mutex

	mu    sync.Mutex
	state Root

	subMu   sync.Mutex
	nextSub int
	subs    map[int]func(Root)
}

// New returns a Store holding initial.
func New(initial Root) *Store {
	return &Store{
		state: initial,
		subs:  make(map[int]func(Root)),
	}
}

// Snapshot returns the current root state. The returned value must be
// treated as read-only.
func (s *Store) Snapshot() Root {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch applies action and notifies subscribers with the resulting state.
// Subscribers must not call Dispatch.
func (s *Store) Dispatch(action any) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	next := Reduce(s.state, action)
	s.state = next
	s.mu.Unlock()

	if n, ok := action.(userevents.Notification); ok {
		appLog.Debug("notification", "kind", n.Kind(), "events", userevents.Len(next.Events))
		if err := userevents.CheckInvariants(next.Events); err != nil {
			appLog.Error("event store invariant violated", err, "kind", n.Kind())
		}
	}

	s.subMu.Lock()
	subs := make([]func(Root), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
}

// Emit adapts the store to the dispatcher's callback type.
func (s *Store) Emit() userevents.Emit {
	return func(n userevents.Notification) {
		s.Dispatch(n)
	}
}

// Subscribe registers fn to be called after every Dispatch. The returned
// function removes the subscription.
func (s *Store) Subscribe(fn func(Root)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}
