package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "usercal/internal/log"
	"usercal/internal/model"
)

const defaultMaxPerSeries = 500

// ExpandConfig bounds recurrence expansion.
type ExpandConfig struct {
	// RangeStart / RangeEnd define the inclusive window of instances kept.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxPerSeries caps instances per recurring UID. Zero means
	// defaultMaxPerSeries.
	MaxPerSeries int
}

// ExpandResult lists the drafts to create, ordered by start time.
type ExpandResult struct {
	Drafts []model.Draft
	// Truncated holds UIDs whose series hit MaxPerSeries.
	Truncated []string
}

type instance struct {
	start, end time.Time
	title      string
}

// Expand turns parsed VEVENTs into drafts, one per concrete instance in the
// window. RRULE series honour EXDATE and RECURRENCE-ID overrides.
func Expand(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.MaxPerSeries <= 0 {
		cfg.MaxPerSeries = defaultMaxPerSeries
	}

	overrides := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride() {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
		}
	}

	var all []instance
	for _, ev := range events {
		if ev.IsOverride() {
			continue
		}
		if ev.RawRRule == "" {
			if overlaps(ev.Start, ev.End, cfg.RangeStart, cfg.RangeEnd) {
				all = append(all, instance{start: ev.Start, end: ev.End, title: ev.Summary})
			}
			continue
		}

		series, truncated := expandSeries(ev, overrides[ev.UID], cfg)
		all = append(all, series...)
		if truncated {
			result.Truncated = append(result.Truncated, ev.UID)
			appLog.Info("ics expand: series truncated", "uid", ev.UID, "cap", cfg.MaxPerSeries)
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].start.Before(all[j].start)
	})

	result.Drafts = make([]model.Draft, 0, len(all))
	for _, in := range all {
		result.Drafts = append(result.Drafts, model.Draft{
			Title:     in.title,
			DateStart: model.FormatTime(in.start),
			DateEnd:   model.FormatTime(in.end),
		})
	}
	return result, nil
}

func expandSeries(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]instance, bool) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("ics expand: bad RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	loc := ev.Start.Location()
	starts := set.Between(cfg.RangeStart.In(loc), cfg.RangeEnd.In(loc), true)

	truncated := false
	if len(starts) > cfg.MaxPerSeries {
		starts = starts[:cfg.MaxPerSeries]
		truncated = true
	}

	dur := ev.End.Sub(ev.Start)
	out := make([]instance, 0, len(starts))
	for _, s := range starts {
		in := instance{start: s, end: s.Add(dur), title: ev.Summary}
		if ov, ok := overrideFor(overrides, s); ok {
			in = instance{start: ov.Start, end: ov.End, title: ov.Summary}
		}
		out = append(out, in)
	}
	return out, truncated
}

func overrideFor(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}
