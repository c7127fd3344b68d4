package timetable

import (
	appLog "ttcal/internal/log"
	"ttcal/internal/model"
)

// Filter keeps the events that either have no course or whose course was
// chosen. Order is preserved. Courses missing from the selection are
// dropped silently.
func Filter(events []model.Event, sel model.Selection) []model.Event {
	kept := make([]model.Event, 0, len(events))
	for _, ev := range events {
		id, ok := ev.CourseID()
		if ok && !sel.Chosen(id) {
			continue
		}
		kept = append(kept, ev)
	}

	appLog.Debug("filtered events by selection", "in", len(events), "kept", len(kept))
	return kept
}
