package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	appLog "ttcal/internal/log"
	"ttcal/internal/model"
)

// floatingLayout renders a DATE-TIME without TZID or "Z": the wall-clock
// time of the timetable, whatever zone the reader is in.
const floatingLayout = "20060102T150405"

const propContact = ical.ComponentProperty("CONTACT")

// uidNamespace scopes the name-based UUIDs of generated entries.
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("ttcal"))

// RenderOptions controls the calendar header and per-entry stamps.
type RenderOptions struct {
	// ProductID is written as PRODID.
	ProductID string
	// CalendarName, if set, is written as X-WR-CALNAME.
	CalendarName string
	// Now is used for DTSTAMP. Zero means time.Now().
	Now time.Time
}

// UnknownCourseError is returned when an event references a course
// number that has no metadata entry.
type UnknownCourseError struct {
	ID string
}

func (e *UnknownCourseError) Error() string {
	return fmt.Sprintf("unknown course %s: no metadata entry", e.ID)
}

// entry holds the text fields derived for one event before it is written.
type entry struct {
	summary     string
	location    string
	hasLocation bool
	contact     string
	hasContact  bool
	description string
}

// Render serializes the events, in order, as an iCalendar document. Any
// event whose course is missing from courses fails the whole render.
func Render(events []model.Event, courses model.Courses, opts RenderOptions) (string, error) {
	stamp := opts.Now
	if stamp.IsZero() {
		stamp = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetProductId(opts.ProductID)
	cal.SetMethod(ical.MethodPublish)
	if opts.CalendarName != "" {
		cal.SetXWRCalName(opts.CalendarName)
	}

	for i, ev := range events {
		en, err := buildEntry(ev, courses)
		if err != nil {
			return "", err
		}

		ve := cal.AddEvent(entryUID(i, ev, en))
		ve.SetDtStampTime(stamp)

		if ev.AllDay {
			ve.SetAllDayStartAt(ev.Day)
			ve.SetAllDayEndAt(ev.Day.AddDate(0, 0, 1))
		} else {
			ve.SetProperty(ical.ComponentPropertyDtStart, ev.From.Format(floatingLayout))
			ve.SetProperty(ical.ComponentPropertyDtEnd, ev.To.Format(floatingLayout))
		}

		if src, ok := ev.Source.Get(); ok {
			ve.SetURL(stripLineBreaks(src))
		}
		ve.SetSummary(en.summary)
		if en.hasLocation {
			ve.SetLocation(en.location)
		}
		if en.hasContact {
			ve.SetProperty(propContact, en.contact)
		}
		ve.SetDescription(en.description)
	}

	appLog.Debug("rendered calendar", "entries", len(events))
	return cal.Serialize(), nil
}

var lineBreaks = strings.NewReplacer("\r", "", "\n", "")

// stripLineBreaks guards URI values, which are written without escaping.
func stripLineBreaks(s string) string {
	return lineBreaks.Replace(s)
}

// buildEntry derives summary, location, contact and description.
//
// When an event has both its own course name and a course number, the
// summary carries both names ("Algebra: <metadata name>"); this mirrors
// the historical output and is kept on purpose.
func buildEntry(ev model.Event, courses model.Courses) (entry, error) {
	var en entry

	var course model.Course
	courseID, hasCourse := ev.CourseID()
	if hasCourse {
		c, ok := courses.Lookup(courseID)
		if !ok {
			return en, &UnknownCourseError{ID: courseID}
		}
		course = c
	}

	if name, ok := ev.CourseName.Get(); ok {
		en.summary = name
	} else if comments, ok := ev.Comments.Get(); ok {
		en.summary = comments
	}
	if hasCourse {
		en.summary += ": " + course.Name
	}

	en.location, en.hasLocation = ev.Room.Get()

	if teachers, ok := ev.Teachers.Get(); ok {
		en.contact, en.hasContact = teachers, true
	} else if hasCourse {
		en.contact, en.hasContact = course.Teachers, true
	}

	var desc strings.Builder
	if comments, ok := ev.Comments.Get(); ok {
		desc.WriteString("Unrecognized data:\n")
		desc.WriteString(comments + "\n\n")
	}
	if teachers, ok := ev.Teachers.Get(); ok {
		desc.WriteString("Teachers: " + teachers + "\n\n")
	}
	if src, ok := ev.Source.Get(); ok {
		desc.WriteString("Source: " + src + "\n\n")
	}
	if hasCourse {
		desc.WriteString("Inferred from course number:\n")
		desc.WriteString(courseID + ": " + course.Name + "\n")
		desc.WriteString(course.Teachers + "\n\n")
	}
	en.description = desc.String()

	return en, nil
}

// entryUID is stable across runs for the same input, so calendar clients
// update entries in place instead of duplicating them.
func entryUID(index int, ev model.Event, en entry) string {
	start := ev.From.Format(floatingLayout)
	if ev.AllDay {
		start = ev.Day.Format("20060102")
	}
	name := fmt.Sprintf("%d|%s|%s|%s", index, start, en.summary, ev.Source.OrEmpty())
	return uuid.NewSHA1(uidNamespace, []byte(name)).String()
}
