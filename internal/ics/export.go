// Package ics converts user events to and from iCalendar.
package ics

import (
	"io"
	"strconv"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "usercal/internal/log"
	"usercal/internal/model"
)

// ExportOptions controls the generated VCALENDAR.
type ExportOptions struct {
	ProdID string
	// Now stamps DTSTAMP; defaults to time.Now.
	Now func() time.Time
}

// UID returns the iCalendar UID used for an event ID.
func UID(id int) string {
	return strconv.Itoa(id) + "@usercal"
}

// Export builds a calendar with one VEVENT per event, in the given order.
// Events whose dates do not parse are skipped and logged.
func Export(events []model.Event, opts ExportOptions) *ical.Calendar {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	stamp := opts.Now().UTC()

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	if opts.ProdID != "" {
		cal.SetProductId(opts.ProdID)
	}

	for _, e := range events {
		start, err := model.ParseTime(e.DateStart)
		if err != nil {
			appLog.Error("ics export: bad dateStart, skipping", err, "id", e.ID)
			continue
		}
		end, err := model.ParseTime(e.DateEnd)
		if err != nil {
			appLog.Error("ics export: bad dateEnd, skipping", err, "id", e.ID)
			continue
		}

		ve := cal.AddEvent(UID(e.ID))
		ve.SetDtStampTime(stamp)
		ve.SetStartAt(start.UTC())
		ve.SetEndAt(end.UTC())
		ve.SetSummary(e.Title)
	}

	return cal
}

// WriteTo serializes Export(events, opts) to w.
func WriteTo(w io.Writer, events []model.Event, opts ExportOptions) error {
	_, err := io.WriteString(w, Export(events, opts).Serialize())
	return err
}
