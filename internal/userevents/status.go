package userevents

// Op names one of the dispatcher operations.
type Op string

const (
	OpLoad   Op = "load"
	OpCreate Op = "create"
	OpDelete Op = "delete"
)

const (
	createFailedMessage = "Failed to create event."
	deleteFailedMessage = "Failed to delete event."
)

// OpStatus tracks in-flight calls and the most recent failure of one
// operation. LastError is cleared by the next success.
type OpStatus struct {
	Pending   int    `json:"pending"`
	LastError string `json:"last_error,omitempty"`
}

// Status is kept next to State, never inside it, so the store stays a pure
// mirror of the remote collection.
type Status struct {
	Load   OpStatus `json:"load"`
	Create OpStatus `json:"create"`
	Delete OpStatus `json:"delete"`
}

// Loading reports whether any load is in flight.
func (s Status) Loading() bool { return s.Load.Pending > 0 }

// ReduceStatus folds n into the operation status.
func ReduceStatus(s Status, n Notification) Status {
	if n == nil {
		return s
	}
	return n.track(s)
}

func (LoadRequested) track(s Status) Status   { s.Load = s.Load.started(); return s }
func (CreateRequested) track(s Status) Status { s.Create = s.Create.started(); return s }
func (DeleteRequested) track(s Status) Status { s.Delete = s.Delete.started(); return s }

func (LoadSucceeded) track(s Status) Status   { s.Load = s.Load.finished(""); return s }
func (CreateSucceeded) track(s Status) Status { s.Create = s.Create.finished(""); return s }
func (DeleteSucceeded) track(s Status) Status { s.Delete = s.Delete.finished(""); return s }

func (n LoadFailed) track(s Status) Status {
	msg := n.Error
	if msg == "" {
		msg = LoadFailedMessage
	}
	s.Load = s.Load.finished(msg)
	return s
}

func (CreateFailed) track(s Status) Status {
	s.Create = s.Create.finished(createFailedMessage)
	return s
}

func (DeleteFailed) track(s Status) Status {
	s.Delete = s.Delete.finished(deleteFailedMessage)
	return s
}

func (o OpStatus) started() OpStatus {
	o.Pending++
	return o
}

func (o OpStatus) finished(errMsg string) OpStatus {
	if o.Pending > 0 {
		o.Pending--
	}
	o.LastError = errMsg
	return o
}
