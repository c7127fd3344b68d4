package model

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/samber/mo"
)

// DefaultReferenceYear anchors every day/month pair of the timetable,
// since the source documents never carry a year.
const DefaultReferenceYear = 2016

// CoursePrefix is prepended to the two-digit course number to form a
// course identifier.
const CoursePrefix = "CR"

// CourseID derives the metadata and selection key for a course number,
// e.g. 3 -> "CR03", 12 -> "CR12".
func CourseID(number int) string {
	return fmt.Sprintf("%s%02d", CoursePrefix, number)
}

// Event is the canonical, validated shape every stage after the
// normalizer operates on.
//
// Exactly one of (From, To) or Day is meaningful, governed by AllDay.
// Absent optional fields are mo.None, never an empty string, because the
// renderer branches on presence.
type Event struct {
	// Source is the origin reference of the record. Synthetic events have none.
	Source mo.Option[string]

	AllDay bool

	// From / To are local wall-clock instants for timed events.
	From time.Time
	To   time.Time

	// Day is UTC midnight of the calendar date for all-day events.
	Day time.Time

	CourseNumber mo.Option[int]
	CourseName   mo.Option[string]

	Room     mo.Option[string]
	Teachers mo.Option[string]
	Comments mo.Option[string]
}

// CourseID returns the identifier of the event's course, if it has one.
func (e Event) CourseID() (string, bool) {
	n, ok := e.CourseNumber.Get()
	if !ok {
		return "", false
	}
	return CourseID(n), true
}

// String is a one-line human summary, unknown fields shown as "?":
//
//	2016-09-12 08:00 -> 10:00: Algebra in Amphi A with ? [page 1]
func (e Event) String() string {
	var when string
	if e.AllDay {
		when = e.Day.Format("2006-01-02")
	} else {
		when = e.From.Format("2006-01-02 15:04") + " -> " + e.To.Format("15:04")
	}

	s := when + ": " + e.CourseName.OrElse("?") +
		" in " + e.Room.OrElse("?") +
		" with " + e.Teachers.OrElse("?")
	if c, ok := e.Comments.Get(); ok {
		s += " (" + strings.ReplaceAll(c, "\n", " ") + ")"
	}
	return s + " [" + e.Source.OrElse("?") + "]"
}

// Course is one entry of the course metadata file.
type Course struct {
	Name     string `json:"name"`
	Teachers string `json:"teachers"`
}

// Courses maps course identifiers ("CR00".."CR17") to their metadata.
// It is loaded once per run and never mutated afterwards.
type Courses map[string]Course

// Lookup returns the metadata for a course identifier.
func (c Courses) Lookup(id string) (Course, bool) {
	course, ok := c[id]
	return course, ok
}

// IDs returns the course identifiers in ascending order.
func (c Courses) IDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Selection maps course identifiers to whether the caller chose them.
// Missing keys read as false.
type Selection map[string]bool

// Chosen reports whether the course identifier was selected.
func (s Selection) Chosen(id string) bool {
	return s[id]
}

// ParseSelection decodes the JSON selection argument, e.g.
// {"CR03": true, "CR04": false}.
func ParseSelection(s string) (Selection, error) {
	sel := Selection{}
	if err := json.Unmarshal([]byte(s), &sel); err != nil {
		return nil, fmt.Errorf("parse selection: %w", err)
	}
	return sel, nil
}

// SelectionFromQuery builds a selection from form values: a course is
// chosen iff its identifier is submitted as "on". Every known course gets
// an explicit entry.
func SelectionFromQuery(courses Courses, values url.Values) Selection {
	sel := make(Selection, len(courses))
	for id := range courses {
		sel[id] = values.Get(id) == "on"
	}
	return sel
}
