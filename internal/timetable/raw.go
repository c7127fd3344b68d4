package timetable

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Discriminant tags carried by every extracted sub-record.
const (
	TypeDay    = "day"
	TypeTime   = "time"
	TypePeriod = "period"
	TypeCourse = "course"
)

// RawEvent is one record as emitted by the PDF extraction tool. Pointer
// fields distinguish "absent" from a zero value; nothing here is trusted
// until Validate has passed.
type RawEvent struct {
	Source   *string    `json:"source"`
	Day      *RawDay    `json:"day"`
	Period   *RawPeriod `json:"period,omitempty"`
	Course   *RawCourse `json:"course,omitempty"`
	Room     *string    `json:"room,omitempty"`
	Teachers *string    `json:"teachers,omitempty"`
	Comments *string    `json:"comments,omitempty"`
}

type RawDay struct {
	Type  string `json:"type"`
	Date  *int   `json:"date"`
	Month *int   `json:"month"`
}

type RawTime struct {
	Type    string `json:"type"`
	Hours   *int   `json:"hours"`
	Minutes *int   `json:"minutes"`
}

type RawPeriod struct {
	Type     string   `json:"type"`
	FromTime *RawTime `json:"from_time"`
	ToTime   *RawTime `json:"to_time"`
}

type RawCourse struct {
	Type   string  `json:"type"`
	Number *int    `json:"number"`
	Name   *string `json:"name"`
}

// DecodeRawEvents reads the whole JSON array of raw events from r.
func DecodeRawEvents(r io.Reader) ([]RawEvent, error) {
	var raws []RawEvent
	if err := json.NewDecoder(r).Decode(&raws); err != nil {
		return nil, fmt.Errorf("decode raw events: %w", err)
	}
	return raws, nil
}

// Validate checks the structure of the record: required fields, the
// discriminant tag of each sub-record and the range of every date/time
// component. It runs before any date arithmetic. Without a reference year
// the date is checked against the longest length of its month, so 29/02
// passes here and is rejected by Normalize in a non-leap year.
func (ev RawEvent) Validate() error {
	return ev.validate(-1, 0)
}

// validate checks the record at index; year 0 means no reference year.
func (ev RawEvent) validate(index, year int) error {
	fail := func(field, reason string) error {
		return &ValidationError{Index: index, Field: field, Reason: reason}
	}

	if ev.Source == nil {
		return fail("source", "missing")
	}
	// The source ends up in a URI property that is written unescaped.
	if strings.ContainsAny(*ev.Source, "\r\n") {
		return fail("source", "contains a line break")
	}
	if ev.Day == nil {
		return fail("day", "missing")
	}
	if f, reason := ev.Day.check(year); f != "" {
		return fail("day"+f, reason)
	}
	if ev.Period != nil {
		if f, reason := ev.Period.check(); f != "" {
			return fail("period"+f, reason)
		}
	}
	if ev.Course != nil {
		if f, reason := ev.Course.check(); f != "" {
			return fail("course"+f, reason)
		}
	}
	return nil
}

// The check methods return the offending field suffix ("" when valid) and
// a reason.

func (d *RawDay) check(year int) (string, string) {
	if d.Type != TypeDay {
		return ".type", fmt.Sprintf("want %q, got %q", TypeDay, d.Type)
	}
	if d.Date == nil {
		return ".date", "missing"
	}
	if d.Month == nil {
		return ".month", "missing"
	}
	if *d.Month < 1 || *d.Month > 12 {
		return ".month", fmt.Sprintf("out of range: %d", *d.Month)
	}
	if n := daysIn(time.Month(*d.Month), year); *d.Date < 1 || *d.Date > n {
		return ".date", fmt.Sprintf("out of range: %d (month %d has %d days)", *d.Date, *d.Month, n)
	}
	return "", ""
}

// daysIn returns the length of month in year. Year 0 stands for a leap
// year so February allows its 29th.
func daysIn(month time.Month, year int) int {
	if year == 0 {
		year = 2000
	}
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (t *RawTime) check() (string, string) {
	if t.Type != TypeTime {
		return ".type", fmt.Sprintf("want %q, got %q", TypeTime, t.Type)
	}
	if t.Hours == nil {
		return ".hours", "missing"
	}
	if t.Minutes == nil {
		return ".minutes", "missing"
	}
	if *t.Hours < 0 || *t.Hours > 23 {
		return ".hours", fmt.Sprintf("out of range: %d", *t.Hours)
	}
	if *t.Minutes < 0 || *t.Minutes > 59 {
		return ".minutes", fmt.Sprintf("out of range: %d", *t.Minutes)
	}
	return "", ""
}

func (p *RawPeriod) check() (string, string) {
	if p.Type != TypePeriod {
		return ".type", fmt.Sprintf("want %q, got %q", TypePeriod, p.Type)
	}
	if p.FromTime == nil {
		return ".from_time", "missing"
	}
	if p.ToTime == nil {
		return ".to_time", "missing"
	}
	if f, reason := p.FromTime.check(); f != "" {
		return ".from_time" + f, reason
	}
	if f, reason := p.ToTime.check(); f != "" {
		return ".to_time" + f, reason
	}
	return "", ""
}

func (c *RawCourse) check() (string, string) {
	if c.Type != TypeCourse {
		return ".type", fmt.Sprintf("want %q, got %q", TypeCourse, c.Type)
	}
	if c.Number == nil {
		return ".number", "missing"
	}
	if c.Name == nil {
		return ".name", "missing"
	}
	if *c.Number < 0 {
		return ".number", fmt.Sprintf("negative: %d", *c.Number)
	}
	return "", ""
}
