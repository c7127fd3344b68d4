package pipeline

import (
	"fmt"
	"io"

	"ttcal/internal/ics"
	appLog "ttcal/internal/log"
	"ttcal/internal/model"
	"ttcal/internal/timetable"
)

// Pipeline turns raw extracted events into a calendar document for one
// selection. It holds no mutable state and can be shared between requests.
type Pipeline struct {
	// Year is the reference year for every day/month pair.
	Year int
	// Courses is the course metadata, read-only.
	Courses model.Courses
	Render  ics.RenderOptions
}

// Run reads the whole raw event list from r, then normalizes it, appends
// the synthetic series, filters by sel and renders the result. Any error
// aborts the run; no partial document is returned.
func (p *Pipeline) Run(r io.Reader, sel model.Selection) (string, error) {
	raws, err := timetable.DecodeRawEvents(r)
	if err != nil {
		return "", err
	}

	events, err := p.Events(raws, sel)
	if err != nil {
		return "", err
	}

	out, err := ics.Render(events, p.Courses, p.Render)
	if err != nil {
		return "", fmt.Errorf("render calendar: %w", err)
	}

	appLog.Info("calendar generated", "raw", len(raws), "entries", len(events), "year", p.Year)
	return out, nil
}

// Events runs every stage but rendering: the retained canonical events in
// output order.
func (p *Pipeline) Events(raws []timetable.RawEvent, sel model.Selection) ([]model.Event, error) {
	events, err := timetable.Normalize(raws, p.Year)
	if err != nil {
		return nil, fmt.Errorf("normalize events: %w", err)
	}
	events = append(events, timetable.Series(p.Year)...)
	return timetable.Filter(events, sel), nil
}
