package userevents

import (
	"fmt"

	"usercal/internal/model"
)

// ProjectEvents returns the events in display order. It follows Order
// exactly: an ID without a ByID entry shows up as a zero Event at its
// position rather than being skipped, so a broken store is visible.
func ProjectEvents(s State) []model.Event {
	out := make([]model.Event, len(s.Order))
	for i, id := range s.Order {
		out[i] = s.ByID[id]
	}
	return out
}

// SelectEvent looks up a single event by ID.
func SelectEvent(s State, id int) (model.Event, bool) {
	ev, ok := s.ByID[id]
	return ev, ok
}

// Len returns the number of events in display order.
func Len(s State) int {
	return len(s.Order)
}

// CheckInvariants reports the first mismatch between Order and ByID.
func CheckInvariants(s State) error {
	seen := make(map[int]struct{}, len(s.Order))
	for i, id := range s.Order {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("order[%d]: duplicate id %d", i, id)
		}
		seen[id] = struct{}{}
		if _, ok := s.ByID[id]; !ok {
			return fmt.Errorf("order[%d]: id %d missing from byId", i, id)
		}
	}
	for id := range s.ByID {
		if _, ok := seen[id]; !ok {
			return fmt.Errorf("byId: id %d missing from order", id)
		}
	}
	return nil
}
