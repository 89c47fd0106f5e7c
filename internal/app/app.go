// Package app wires the store, the events dispatcher and the remote
// transport into one object shared by the CLI and the web server.
package app

import (
	"context"
	"sync"

	"usercal/internal/config"
	"usercal/internal/metrics"
	"usercal/internal/model"
	"usercal/internal/remote"
	"usercal/internal/store"
	"usercal/internal/userevents"
)

// App owns the application state for one process.
type App struct {
	Config  *config.Config
	Store   *store.Store
	Metrics *metrics.Metrics
	Remote  *remote.Client

	events *userevents.Dispatcher[store.Root]
	emit   userevents.Emit
}

// Options overrides pieces of the default wiring (tests).
type Options struct {
	// Client replaces the remote.Client built from cfg.Remote.
	Client userevents.Doer
}

// New builds an App from cfg.
func New(cfg *config.Config, opts Options) (*App, error) {
	rc := remote.NewClient(remote.Options{
		Timeout:       cfg.Remote.Timeout,
		RatePerSecond: cfg.Remote.RatePerSecond,
		Burst:         cfg.Remote.Burst,
	})

	var client userevents.Doer = rc
	if opts.Client != nil {
		client = opts.Client
	}

	d, err := userevents.NewDispatcher(userevents.Config[store.Root]{
		BaseURL:         cfg.Remote.BaseURL,
		Client:          client,
		SelectDateStart: store.SelectDateStart,
		DraftTitle:      cfg.DraftTitle,
	})
	if err != nil {
		return nil, err
	}

	st := store.New(store.InitialRoot())
	m := metrics.New()
	st.Subscribe(m.Observe)

	return &App{
		Config:  cfg,
		Store:   st,
		Metrics: m,
		Remote:  rc,
		events:  d,
		emit:    m.Wrap(st.Emit()),
	}, nil
}

// Snapshot returns the current root state.
func (a *App) Snapshot() store.Root {
	return a.Store.Snapshot()
}

// Load runs the load operation and returns its terminal notification.
func (a *App) Load(ctx context.Context) userevents.Notification {
	emit, last := a.tracked()
	a.events.Load(ctx, a.Store.Snapshot(), emit)
	return last()
}

// Create runs the create operation and returns its terminal notification.
func (a *App) Create(ctx context.Context) userevents.Notification {
	emit, last := a.tracked()
	a.events.Create(ctx, a.Store.Snapshot(), emit)
	return last()
}

// Delete runs the delete operation and returns its terminal notification.
func (a *App) Delete(ctx context.Context, id int) userevents.Notification {
	emit, last := a.tracked()
	a.events.Delete(ctx, a.Store.Snapshot(), id, emit)
	return last()
}

// Import creates one event per draft and reports how many succeeded.
func (a *App) Import(ctx context.Context, drafts []model.Draft) (created, failed int) {
	a.events.Import(ctx, drafts, func(n userevents.Notification) {
		switch n.(type) {
		case userevents.CreateSucceeded:
			created++
		case userevents.CreateFailed:
			failed++
		}
		a.emit(n)
	})
	return created, failed
}

// Dispatch forwards a non-remote action (e.g. recorder.Start) to the store.
func (a *App) Dispatch(action any) {
	a.Store.Dispatch(action)
}

// tracked returns an emit func that forwards to the store and remembers the
// last notification of this call.
func (a *App) tracked() (userevents.Emit, func() userevents.Notification) {
	var (
		mu   sync.Mutex
		last userevents.Notification
	)
	emit := func(n userevents.Notification) {
		mu.Lock()
		last = n
		mu.Unlock()
		a.emit(n)
	}
	return emit, func() userevents.Notification {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}
