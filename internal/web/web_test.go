package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"usercal/internal/app"
	"usercal/internal/config"
	"usercal/internal/model"
)

type fakeEvents struct {
	mu     sync.Mutex
	events []model.Event
	nextID int
	fail   bool
}

func (f *fakeEvents) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		http.Error(w, "down", http.StatusServiceUnavailable)
		return
	}
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/events":
		_ = json.NewEncoder(w).Encode(f.events)
	case r.Method == http.MethodPost && r.URL.Path == "/events":
		var d model.Draft
		_ = json.NewDecoder(r.Body).Decode(&d)
		f.nextID++
		ev := model.Event{ID: f.nextID, Title: d.Title, DateStart: d.DateStart, DateEnd: d.DateEnd}
		f.events = append(f.events, ev)
		_ = json.NewEncoder(w).Encode(ev)
	case r.Method == http.MethodDelete && r.URL.Path == "/events/1":
		w.WriteHeader(http.StatusOK)
	default:
		http.NotFound(w, r)
	}
}

func newTestServer(t *testing.T, remote *fakeEvents, mutate func(*config.Config)) *httptest.Server {
	t.Helper()
	rs := httptest.NewServer(remote)
	t.Cleanup(rs.Close)

	cfg := config.DefaultConfig()
	cfg.Remote.BaseURL = rs.URL
	if mutate != nil {
		mutate(cfg)
	}
	a, err := app.New(cfg, app.Options{})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	srv := httptest.NewServer(NewServer(a).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url string) (*http.Response, string) {
	t.Helper()
	req, _ := http.NewRequest(method, url, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func TestRefreshCreateDeleteFlow(t *testing.T) {
	remote := &fakeEvents{
		events: []model.Event{{ID: 1, Title: "A", DateStart: "2020-01-01T00:00:00Z", DateEnd: "2020-01-01T01:00:00Z"}},
		nextID: 1,
	}
	srv := newTestServer(t, remote, nil)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/refresh")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d body=%s", resp.StatusCode, body)
	}
	var list eventsResponse
	if err := json.Unmarshal([]byte(body), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Events) != 1 || list.Events[0].Title != "A" {
		t.Fatalf("events = %+v", list.Events)
	}

	resp, body = do(t, http.MethodPost, srv.URL+"/api/events")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", resp.StatusCode, body)
	}
	if !strings.Contains(body, `"id":2`) || !strings.Contains(body, `"title":"No name"`) {
		t.Fatalf("create body = %s", body)
	}

	resp, _ = do(t, http.MethodDelete, srv.URL+"/api/events/1")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodDelete, srv.URL+"/api/events/5")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("delete missing status = %d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodDelete, srv.URL+"/api/events/abc")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("delete bad id status = %d", resp.StatusCode)
	}

	_, body = do(t, http.MethodGet, srv.URL+"/api/events")
	list = eventsResponse{}
	_ = json.Unmarshal([]byte(body), &list)
	if len(list.Events) != 1 || list.Events[0].ID != 2 {
		t.Fatalf("events after delete = %+v", list.Events)
	}

	_, body = do(t, http.MethodGet, srv.URL+"/calendar.ics")
	if !strings.Contains(body, "UID:2@usercal") {
		t.Fatalf("calendar missing event:\n%s", body)
	}

	_, body = do(t, http.MethodGet, srv.URL+"/")
	if !strings.Contains(body, `data-ready="true"`) || !strings.Contains(body, "No name") {
		t.Fatalf("index missing content:\n%s", body)
	}

	_, body = do(t, http.MethodGet, srv.URL+"/metrics")
	if !strings.Contains(body, `usercal_notifications_total{op="create",outcome="succeeded"} 1`) {
		t.Fatalf("metrics missing create counter:\n%s", body)
	}
}

func TestRefreshFailure(t *testing.T) {
	srv := newTestServer(t, &fakeEvents{fail: true}, nil)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/refresh")
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Failed to load events.") {
		t.Fatalf("body = %s", body)
	}

	_, body = do(t, http.MethodGet, srv.URL+"/api/events")
	if !strings.Contains(body, `"last_error":"Failed to load events."`) {
		t.Fatalf("status not reported: %s", body)
	}
}

func TestRecorderDrivesDraftStart(t *testing.T) {
	srv := newTestServer(t, &fakeEvents{}, nil)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/recorder/start")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"recording":true`) {
		t.Fatalf("start: %d %s", resp.StatusCode, body)
	}
	var started eventsResponse
	_ = json.Unmarshal([]byte(body), &started)

	_, body = do(t, http.MethodPost, srv.URL+"/api/events")
	var ev model.Event
	_ = json.Unmarshal([]byte(body), &ev)
	if ev.DateStart != started.DateStart {
		t.Fatalf("dateStart = %q, want recorder start %q", ev.DateStart, started.DateStart)
	}

	_, body = do(t, http.MethodPost, srv.URL+"/api/recorder/stop")
	if !strings.Contains(body, `"recording":false`) {
		t.Fatalf("stop: %s", body)
	}
}

func TestBasicAuth(t *testing.T) {
	srv := newTestServer(t, &fakeEvents{}, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "u", Password: "p"}
	})

	resp, _ := do(t, http.MethodGet, srv.URL+"/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health should bypass auth, got %d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodGet, srv.URL+"/api/events")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/events", nil)
	req.SetBasicAuth("u", "p")
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	authed.Body.Close()
	if authed.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with credentials, got %d", authed.StatusCode)
	}
}
