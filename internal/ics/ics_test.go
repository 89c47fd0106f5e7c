package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"usercal/internal/model"
)

var window = ExpandConfig{
	RangeStart: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	RangeEnd:   time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC),
}

func crlf(lines ...string) []byte {
	return []byte(strings.Join(lines, "\r\n") + "\r\n")
}

func TestExport(t *testing.T) {
	events := []model.Event{
		{ID: 2, Title: "Second", DateStart: "2020-01-02T10:00:00.000Z", DateEnd: "2020-01-02T11:00:00.000Z"},
		{ID: 1, Title: "Broken", DateStart: "yesterday", DateEnd: "today"},
		{ID: 3, Title: "Third", DateStart: "2020-01-03T10:00:00Z", DateEnd: "2020-01-03T10:30:00Z"},
	}

	var b strings.Builder
	err := WriteTo(&b, events, ExportOptions{
		ProdID: "-//test//EN",
		Now:    func() time.Time { return time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	out := b.String()

	for _, want := range []string{"PRODID:-//test//EN", "UID:2@usercal", "SUMMARY:Second", "DTSTART:20200102T100000Z", "UID:3@usercal"} {
		if !strings.Contains(out, want) {
			t.Errorf("export missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Broken") {
		t.Errorf("event with bad dates should be skipped")
	}
	if strings.Index(out, "UID:2@usercal") > strings.Index(out, "UID:3@usercal") {
		t.Errorf("export should keep display order")
	}
}

func TestExportParseRoundTrip(t *testing.T) {
	events := []model.Event{
		{ID: 7, Title: "Review", DateStart: "2020-01-05T08:00:00.000Z", DateEnd: "2020-01-05T09:30:00.000Z"},
	}
	var b strings.Builder
	if err := WriteTo(&b, events, ExportOptions{}); err != nil {
		t.Fatal(err)
	}

	parsed, err := Parse([]byte(b.String()))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	res, err := Expand(parsed, window)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	want := []model.Draft{{Title: "Review", DateStart: "2020-01-05T08:00:00.000Z", DateEnd: "2020-01-05T09:30:00.000Z"}}
	if len(res.Drafts) != 1 || res.Drafts[0] != want[0] {
		t.Fatalf("drafts = %+v, want %+v", res.Drafts, want)
	}
}

func TestParseAndExpandRecurring(t *testing.T) {
	body := crlf(
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:standup@test",
		"DTSTAMP:20200101T000000Z",
		"DTSTART:20200106T090000Z",
		"DTEND:20200106T091500Z",
		"SUMMARY:Standup",
		"RRULE:FREQ=DAILY;COUNT=4",
		"EXDATE:20200107T090000Z",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:standup@test",
		"DTSTAMP:20200101T000000Z",
		"RECURRENCE-ID:20200108T090000Z",
		"DTSTART:20200108T100000Z",
		"DTEND:20200108T101500Z",
		"SUMMARY:Standup (moved)",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"DTSTAMP:20200101T000000Z",
		"DTSTART:20200111T090000Z",
		"SUMMARY:No UID",
		"END:VEVENT",
		"END:VCALENDAR",
	)

	parsed, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("parsed %d events, want 2 (UID-less VEVENT skipped)", len(parsed))
	}

	res, err := Expand(parsed, window)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	want := []model.Draft{
		{Title: "Standup", DateStart: "2020-01-06T09:00:00.000Z", DateEnd: "2020-01-06T09:15:00.000Z"},
		{Title: "Standup (moved)", DateStart: "2020-01-08T10:00:00.000Z", DateEnd: "2020-01-08T10:15:00.000Z"},
		{Title: "Standup", DateStart: "2020-01-09T09:00:00.000Z", DateEnd: "2020-01-09T09:15:00.000Z"},
	}
	if len(res.Drafts) != len(want) {
		t.Fatalf("drafts = %+v, want %+v", res.Drafts, want)
	}
	for i := range want {
		if res.Drafts[i] != want[i] {
			t.Errorf("draft[%d] = %+v, want %+v", i, res.Drafts[i], want[i])
		}
	}
}

func TestExpandTruncatesSeries(t *testing.T) {
	events := []ParsedEvent{{
		UID:      "daily@test",
		Summary:  "Daily",
		Start:    time.Date(2020, 1, 1, 9, 0, 0, 0, time.UTC),
		End:      time.Date(2020, 1, 1, 10, 0, 0, 0, time.UTC),
		RawRRule: "FREQ=DAILY",
	}}
	cfg := window
	cfg.MaxPerSeries = 5

	res, err := Expand(events, cfg)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(res.Drafts) != 5 {
		t.Fatalf("drafts = %d, want 5", len(res.Drafts))
	}
	if len(res.Truncated) != 1 || res.Truncated[0] != "daily@test" {
		t.Fatalf("truncated = %v", res.Truncated)
	}
}

func TestExpandRejectsInvertedRange(t *testing.T) {
	_, err := Expand(nil, ExpandConfig{RangeStart: window.RangeEnd, RangeEnd: window.RangeStart})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := Parse([]byte("  \n")); err == nil {
		t.Fatalf("expected error for empty body")
	}
}

func TestReadSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cal.ics")
	if err := os.WriteFile(path, []byte("BEGIN:VCALENDAR"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := ReadSource(context.Background(), nil, path)
	if err != nil || string(got) != "BEGIN:VCALENDAR" {
		t.Fatalf("file source = %q, %v", got, err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.ics" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("BEGIN:VCALENDAR"))
	}))
	defer srv.Close()

	got, err = ReadSource(context.Background(), srv.Client(), srv.URL+"/cal.ics")
	if err != nil || string(got) != "BEGIN:VCALENDAR" {
		t.Fatalf("url source = %q, %v", got, err)
	}
	if _, err := ReadSource(context.Background(), srv.Client(), srv.URL+"/missing.ics"); err == nil {
		t.Fatalf("expected error for 404")
	}
}
