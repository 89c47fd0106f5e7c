package userevents

import (
	"maps"
	"slices"

	"usercal/internal/model"
)

// State is the normalized event store.
//
// Order lists event IDs in display order and ByID holds the events. Every ID
// in Order appears exactly once and has an entry in ByID, and ByID has no
// keys missing from Order. States are values: the reducer never writes into
// the maps or slices of a state it was given, so consumers may compare
// States by reference to detect changes.
type State struct {
	ByID  map[int]model.Event
	Order []int
}

// InitialState returns the empty store.
func InitialState() State {
	return State{
		ByID:  map[int]model.Event{},
		Order: []int{},
	}
}

// Reduce folds n into s. Only the *Succeeded kinds change the store;
// requested and failed notifications return s untouched.
func Reduce(s State, n Notification) State {
	if n == nil {
		return s
	}
	return n.reduce(s)
}

// ReduceAction lets a larger state container fold arbitrary actions. Values
// that are not a Notification leave the state unchanged.
func ReduceAction(s State, action any) State {
	n, ok := action.(Notification)
	if !ok {
		return s
	}
	return Reduce(s, n)
}

func (LoadRequested) reduce(s State) State   { return s }
func (LoadFailed) reduce(s State) State      { return s }
func (CreateRequested) reduce(s State) State { return s }
func (CreateFailed) reduce(s State) State    { return s }
func (DeleteRequested) reduce(s State) State { return s }
func (DeleteFailed) reduce(s State) State    { return s }

// Replaces the store wholesale. Duplicate IDs keep their first position in
// Order and the last event in ByID.
func (n LoadSucceeded) reduce(State) State {
	byID := make(map[int]model.Event, len(n.Events))
	order := make([]int, 0, len(n.Events))
	for _, ev := range n.Events {
		if _, seen := byID[ev.ID]; !seen {
			order = append(order, ev.ID)
		}
		byID[ev.ID] = ev
	}
	return State{ByID: byID, Order: order}
}

// Appends the new ID. An ID that is already present is moved to the end
// instead of being listed twice.
func (n CreateSucceeded) reduce(s State) State {
	id := n.Event.ID

	order := make([]int, 0, len(s.Order)+1)
	for _, existing := range s.Order {
		if existing != id {
			order = append(order, existing)
		}
	}
	order = append(order, id)

	byID := cloneByID(s.ByID, 1)
	byID[id] = n.Event

	return State{ByID: byID, Order: order}
}

func (n DeleteSucceeded) reduce(s State) State {
	order := slices.DeleteFunc(slices.Clone(s.Order), func(id int) bool {
		return id == n.ID
	})
	if order == nil {
		order = []int{}
	}

	byID := cloneByID(s.ByID, 0)
	delete(byID, n.ID)

	return State{ByID: byID, Order: order}
}

func cloneByID(in map[int]model.Event, extra int) map[int]model.Event {
	out := make(map[int]model.Event, len(in)+extra)
	maps.Copy(out, in)
	return out
}
