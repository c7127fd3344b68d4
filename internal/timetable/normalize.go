package timetable

import (
	"time"

	"github.com/samber/mo"

	appLog "ttcal/internal/log"
	"ttcal/internal/model"
)

// Normalize validates every raw record and converts it to the canonical
// event shape, anchoring day/month pairs in the given reference year.
//
// The output has the same length and order as the input. The first
// malformed record aborts the conversion; no partial result is returned.
func Normalize(raws []RawEvent, year int) ([]model.Event, error) {
	// Validate everything up front so no date arithmetic runs on a
	// malformed input.
	for i, raw := range raws {
		if err := raw.validate(i, year); err != nil {
			return nil, err
		}
	}

	events := make([]model.Event, 0, len(raws))
	allDay := 0
	for _, raw := range raws {
		ev := normalizeOne(raw, year)
		if ev.AllDay {
			allDay++
		}
		events = append(events, ev)
	}

	appLog.Debug("normalized raw events", "count", len(events), "all_day", allDay, "year", year)
	return events, nil
}

// normalizeOne expects a record that already passed validation.
func normalizeOne(raw RawEvent, year int) model.Event {
	ev := model.Event{
		Source: mo.Some(*raw.Source),
	}

	month := time.Month(*raw.Day.Month)
	date := *raw.Day.Date

	if p := raw.Period; p != nil {
		ev.AllDay = false
		ev.From = time.Date(year, month, date, *p.FromTime.Hours, *p.FromTime.Minutes, 0, 0, time.Local)
		ev.To = time.Date(year, month, date, *p.ToTime.Hours, *p.ToTime.Minutes, 0, 0, time.Local)
	} else {
		ev.AllDay = true
		ev.Day = time.Date(year, month, date, 0, 0, 0, 0, time.UTC)
	}

	if c := raw.Course; c != nil {
		ev.CourseNumber = mo.Some(*c.Number)
		ev.CourseName = mo.Some(*c.Name)
	}
	ev.Room = optional(raw.Room)
	ev.Teachers = optional(raw.Teachers)
	ev.Comments = optional(raw.Comments)

	return ev
}

func optional(s *string) mo.Option[string] {
	if s == nil {
		return mo.None[string]()
	}
	return mo.Some(*s)
}
