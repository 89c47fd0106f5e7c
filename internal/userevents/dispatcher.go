package userevents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	appLog "usercal/internal/log"
	"usercal/internal/model"
)

// DefaultDraftTitle is the title given to events created without one.
const DefaultDraftTitle = "No name"

// Doer performs a single HTTP round trip. *http.Client and remote.Client
// both satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return "remote: unexpected status " + e.Status
}

// Config configures a Dispatcher. S is the caller's root state type, only
// ever read through SelectDateStart.
type Config[S any] struct {
	// BaseURL is the remote service root, e.g. "http://localhost:3001".
	BaseURL string
	Client  Doer

	// SelectDateStart supplies the start time of a new draft. A nil func or
	// an empty result makes the draft start at Now, like its end.
	SelectDateStart func(S) string

	// DraftTitle defaults to DefaultDraftTitle.
	DraftTitle string

	// Now defaults to time.Now.
	Now func() time.Time
}

// Dispatcher runs the load/create/delete operations against the remote
// service. It never touches a store: every outcome is reported through the
// Emit callback as a requested notification followed by exactly one
// succeeded or failed notification.
//
// Operations may run concurrently from separate goroutines; nothing orders
// their completions.
type Dispatcher[S any] struct {
	base            *url.URL
	client          Doer
	selectDateStart func(S) string
	draftTitle      string
	now             func() time.Time
}

// NewDispatcher validates cfg and returns a Dispatcher.
func NewDispatcher[S any](cfg Config[S]) (*Dispatcher[S], error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("dispatcher: base URL is empty")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: parse base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("dispatcher: base URL %q must be absolute", cfg.BaseURL)
	}
	if base.RawQuery != "" || base.Fragment != "" {
		return nil, fmt.Errorf("dispatcher: base URL %q must not carry a query or fragment", cfg.BaseURL)
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.DraftTitle == "" {
		cfg.DraftTitle = DefaultDraftTitle
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Dispatcher[S]{
		base:            base,
		client:          cfg.Client,
		selectDateStart: cfg.SelectDateStart,
		draftTitle:      cfg.DraftTitle,
		now:             cfg.Now,
	}, nil
}

// Load fetches the full collection. It emits LoadSucceeded with the events
// in the order the remote returned them, or LoadFailed with
// LoadFailedMessage.
func (d *Dispatcher[S]) Load(ctx context.Context, _ S, emit Emit) {
	emit(LoadRequested{})

	var events []model.Event
	if err := d.do(ctx, http.MethodGet, "/events", nil, &events); err != nil {
		appLog.Error("load events failed", err, "base_url", d.base.String())
		emit(LoadFailed{Error: LoadFailedMessage})
		return
	}
	if events == nil {
		events = []model.Event{}
	}

	appLog.Debug("load events succeeded", "count", len(events))
	emit(LoadSucceeded{Events: events})
}

// Create posts a draft built from snapshot and the current time. The remote
// assigns the ID and returns the stored event.
func (d *Dispatcher[S]) Create(ctx context.Context, snapshot S, emit Emit) {
	emit(CreateRequested{})

	ev, err := d.create(ctx, d.draft(snapshot))
	if err != nil {
		appLog.Error("create event failed", err, "base_url", d.base.String())
		emit(CreateFailed{})
		return
	}

	appLog.Debug("create event succeeded", "id", ev.ID)
	emit(CreateSucceeded{Event: ev})
}

// Import creates one event per draft, in order, with the same notification
// sequence as Create. A failed draft does not stop the remaining ones.
func (d *Dispatcher[S]) Import(ctx context.Context, drafts []model.Draft, emit Emit) {
	for i, draft := range drafts {
		emit(CreateRequested{})

		ev, err := d.create(ctx, draft)
		if err != nil {
			appLog.Error("import event failed", err, "index", i, "title", draft.Title)
			emit(CreateFailed{})
			continue
		}
		emit(CreateSucceeded{Event: ev})
	}
}

// Delete removes id on the remote. A 2xx response yields DeleteSucceeded;
// transport errors and any other status yield DeleteFailed.
func (d *Dispatcher[S]) Delete(ctx context.Context, _ S, id int, emit Emit) {
	emit(DeleteRequested{ID: id})

	err := d.do(ctx, http.MethodDelete, "/events/"+strconv.Itoa(id), nil, nil)
	if err != nil {
		failed := DeleteFailed{ID: id}
		var se *StatusError
		if errors.As(err, &se) {
			failed.Status = se.Code
		}
		appLog.Error("delete event failed", err, "id", id, "status", failed.Status)
		emit(failed)
		return
	}

	appLog.Debug("delete event succeeded", "id", id)
	emit(DeleteSucceeded{ID: id})
}

func (d *Dispatcher[S]) draft(snapshot S) model.Draft {
	now := d.now()
	start := ""
	if d.selectDateStart != nil {
		start = d.selectDateStart(snapshot)
	}
	if start == "" {
		start = model.FormatTime(now)
	}
	return model.Draft{
		Title:     d.draftTitle,
		DateStart: start,
		DateEnd:   model.FormatTime(now),
	}
}

func (d *Dispatcher[S]) create(ctx context.Context, draft model.Draft) (model.Event, error) {
	var ev model.Event
	if err := d.do(ctx, http.MethodPost, "/events", draft, &ev); err != nil {
		return model.Event{}, err
	}
	return ev, nil
}

// do sends one request. in is JSON-encoded when non-nil; out is decoded from
// the response body when non-nil.
func (d *Dispatcher[S]) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.endpoint(path), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func (d *Dispatcher[S]) endpoint(path string) string {
	return d.base.JoinPath(path).String()
}
