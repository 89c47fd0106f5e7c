package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"usercal/internal/app"
	"usercal/internal/ics"
	appLog "usercal/internal/log"
	"usercal/internal/model"
	"usercal/internal/recorder"
	"usercal/internal/userevents"
)

//go:embed templates/index.html
var templatesFS embed.FS

var indexTmpl = template.Must(template.ParseFS(templatesFS, "templates/index.html"))

// Server exposes the application state over HTTP: a small JSON API that
// drives the dispatcher, an iCalendar feed, metrics, and an HTML view.
type Server struct {
	app *app.App
	mux *http.ServeMux
	loc *time.Location
}

// NewServer constructs a new Server.
func NewServer(a *app.App) *Server {
	s := &Server{
		app: a,
		mux: http.NewServeMux(),
		loc: resolveLocationOrUTC(a.Config.Timezone),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.app.Config.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.app.Config.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) basicAuthEnabled() bool {
	ba := s.app.Config.BasicAuth
	if ba == nil {
		return false
	}
	// Empty credentials count as disabled.
	return ba.Username != "" && ba.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.app.Config.BasicAuth.Username
	password := s.app.Config.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="usercal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/events", s.handleListEvents)
	s.mux.HandleFunc("POST /api/events", s.handleCreateEvent)
	s.mux.HandleFunc("DELETE /api/events/{id}", s.handleDeleteEvent)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("POST /api/recorder/start", s.handleRecorderStart)
	s.mux.HandleFunc("POST /api/recorder/stop", s.handleRecorderStop)
	s.mux.HandleFunc("GET /calendar.ics", s.handleCalendar)
	s.mux.Handle("GET /metrics", s.app.Metrics.Handler())
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Events    []model.Event     `json:"events"`
	Status    userevents.Status `json:"status"`
	Recording bool              `json:"recording"`
	DateStart string            `json:"date_start,omitempty"`
}

func (s *Server) eventsResponse() eventsResponse {
	root := s.app.Snapshot()
	return eventsResponse{
		Events:    userevents.ProjectEvents(root.Events),
		Status:    root.Status,
		Recording: recorder.Recording(root.Recorder),
		DateStart: recorder.SelectDateStart(root.Recorder),
	}
}

func (s *Server) handleListEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.eventsResponse())
}

// handleRefresh reloads the collection from the remote service.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	switch n := s.app.Load(r.Context()).(type) {
	case userevents.LoadSucceeded:
		writeJSON(w, http.StatusOK, s.eventsResponse())
	case userevents.LoadFailed:
		writeError(w, http.StatusBadGateway, n.Error)
	default:
		writeError(w, http.StatusInternalServerError, "load did not complete")
	}
}

// handleCreateEvent creates a draft event starting at the recorder's start.
func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	switch n := s.app.Create(r.Context()).(type) {
	case userevents.CreateSucceeded:
		writeJSON(w, http.StatusCreated, n.Event)
	case userevents.CreateFailed:
		writeError(w, http.StatusBadGateway, "failed to create event")
	default:
		writeError(w, http.StatusInternalServerError, "create did not complete")
	}
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	switch n := s.app.Delete(r.Context(), id).(type) {
	case userevents.DeleteSucceeded:
		w.WriteHeader(http.StatusNoContent)
	case userevents.DeleteFailed:
		status := http.StatusBadGateway
		if n.Status == http.StatusNotFound {
			status = http.StatusNotFound
		}
		writeError(w, status, "failed to delete event")
	default:
		writeError(w, http.StatusInternalServerError, "delete did not complete")
	}
}

func (s *Server) handleRecorderStart(w http.ResponseWriter, _ *http.Request) {
	s.app.Dispatch(recorder.Start{At: time.Now()})
	writeJSON(w, http.StatusOK, s.eventsResponse())
}

func (s *Server) handleRecorderStop(w http.ResponseWriter, _ *http.Request) {
	s.app.Dispatch(recorder.Stop{})
	writeJSON(w, http.StatusOK, s.eventsResponse())
}

// handleCalendar serves the projected events as an iCalendar feed.
func (s *Server) handleCalendar(w http.ResponseWriter, _ *http.Request) {
	events := userevents.ProjectEvents(s.app.Snapshot().Events)

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="usercal.ics"`)
	if err := ics.WriteTo(w, events, ics.ExportOptions{ProdID: s.app.Config.ICS.ProdID}); err != nil {
		appLog.Error("failed to write calendar", err)
	}
}

type indexRow struct {
	ID    int
	Title string
	Start string
	End   string
}

type indexData struct {
	Rows      []indexRow
	Loading   bool
	LoadError string
	Timezone  string
}

// handleIndex renders a read-only HTML list. The root element carries
// data-ready="true" once no load is in flight, which the capture package
// waits for.
func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	root := s.app.Snapshot()
	data := indexData{
		Loading:   root.Status.Loading(),
		LoadError: root.Status.Load.LastError,
		Timezone:  s.loc.String(),
	}
	for _, ev := range userevents.ProjectEvents(root.Events) {
		data.Rows = append(data.Rows, indexRow{
			ID:    ev.ID,
			Title: ev.Title,
			Start: s.formatTime(ev.DateStart),
			End:   s.formatTime(ev.DateEnd),
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, data); err != nil {
		appLog.Error("failed to render index", err)
	}
}

func (s *Server) formatTime(v string) string {
	t, err := model.ParseTime(v)
	if err != nil {
		return v
	}
	return t.In(s.loc).Format("2006-01-02 15:04")
}

func resolveLocationOrUTC(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to UTC", err, "name", name)
		return time.UTC
	}
	return loc
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
