package model

import "time"

// TimeLayout is the ISO-8601 layout used for DateStart/DateEnd on the wire
// (millisecond precision, UTC "Z" suffix).
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Event is a user-created calendar event as stored by the remote service.
// ID is assigned by the remote; an Event is replaced wholesale, never
// patched field by field.
type Event struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	DateStart string `json:"dateStart"`
	DateEnd   string `json:"dateEnd"`
}

// Draft is an Event that has not been stored yet and therefore has no ID.
type Draft struct {
	Title     string `json:"title"`
	DateStart string `json:"dateStart"`
	DateEnd   string `json:"dateEnd"`
}

// FormatTime renders t in the wire layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime accepts the wire layout as well as plain RFC3339.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// Start parses DateStart. The zero time is returned for malformed values.
func (e Event) Start() time.Time {
	t, _ := ParseTime(e.DateStart)
	return t
}

// End parses DateEnd. The zero time is returned for malformed values.
func (e Event) End() time.Time {
	t, _ := ParseTime(e.DateEnd)
	return t
}
