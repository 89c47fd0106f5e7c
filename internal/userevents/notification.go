// Package userevents holds the client-side state of user-created calendar
// events: the notifications emitted around each remote operation, the pure
// reducer that folds them into a normalized store, the dispatcher that talks
// to the remote service, and the selectors that project the store for
// consumers.
package userevents

import "usercal/internal/model"

// Kind identifies a notification for logging and metrics.
type Kind string

const (
	KindLoadRequested   Kind = "userEvents/load_request"
	KindLoadSucceeded   Kind = "userEvents/load_success"
	KindLoadFailed      Kind = "userEvents/load_failure"
	KindCreateRequested Kind = "userEvents/create_request"
	KindCreateSucceeded Kind = "userEvents/create_success"
	KindCreateFailed    Kind = "userEvents/create_failure"
	KindDeleteRequested Kind = "userEvents/delete_request"
	KindDeleteSucceeded Kind = "userEvents/delete_success"
	KindDeleteFailed    Kind = "userEvents/delete_failure"
)

// LoadFailedMessage is the only detail attached to a failed load.
const LoadFailedMessage = "Failed to load events."

// Notification is the closed set of things the dispatcher can report.
//
// The interface is sealed: every kind has to provide its own store and
// status transitions (see reducer.go and status.go), so a new kind does not
// compile until both reducers handle it.
type Notification interface {
	Kind() Kind

	reduce(State) State
	track(Status) Status
}

// Emit receives notifications in the order the dispatcher produces them.
type Emit func(Notification)

type LoadRequested struct{}

type LoadSucceeded struct {
	Events []model.Event
}

type LoadFailed struct {
	Error string
}

type CreateRequested struct{}

type CreateSucceeded struct {
	Event model.Event
}

// CreateFailed carries no detail.
type CreateFailed struct{}

type DeleteRequested struct {
	ID int
}

type DeleteSucceeded struct {
	ID int
}

// DeleteFailed is emitted for transport errors (Status == 0) and for
// responses with a non-2xx status.
type DeleteFailed struct {
	ID     int
	Status int
}

func (LoadRequested) Kind() Kind   { return KindLoadRequested }
func (LoadSucceeded) Kind() Kind   { return KindLoadSucceeded }
func (LoadFailed) Kind() Kind      { return KindLoadFailed }
func (CreateRequested) Kind() Kind { return KindCreateRequested }
func (CreateSucceeded) Kind() Kind { return KindCreateSucceeded }
func (CreateFailed) Kind() Kind    { return KindCreateFailed }
func (DeleteRequested) Kind() Kind { return KindDeleteRequested }
func (DeleteSucceeded) Kind() Kind { return KindDeleteSucceeded }
func (DeleteFailed) Kind() Kind    { return KindDeleteFailed }
