package timetable

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samber/mo"
	"github.com/teambition/rrule-go"

	"ttcal/internal/model"
)

// The weekly default-course session is not present in the timetable PDFs,
// so it is injected as a fixed list of occurrences.
const (
	SeriesCourseNumber = 0
	SeriesRoom         = "Salle 125, bâtiment Braconnier, la Doua (par défaut)"
	SeriesStartHour    = 9
	SeriesDuration     = 3 * time.Hour
)

type weeklySeries struct {
	name    string
	weekday rrule.Weekday
	// dates are "DD/MM" literals; the year comes from the caller.
	dates []string
}

var fixedSeries = []weeklySeries{
	{
		name:    "monday",
		weekday: rrule.MO,
		dates:   []string{"24/10", "07/11", "14/11", "21/11", "28/11"},
	},
	{
		name:    "thursday",
		weekday: rrule.TH,
		dates: []string{
			"22/09", "29/09", "06/10", "13/10", "20/10", "03/11", "10/11",
			"17/11", "24/11", "01/12", "08/12", "15/12", "22/12",
		},
	},
}

// Series returns the default-course sessions for the reference year: every
// Monday date first, then every Thursday date, each a timed event starting
// at SeriesStartHour and lasting SeriesDuration. The result is identical on
// every call.
func Series(year int) []model.Event {
	var events []model.Event
	for _, s := range fixedSeries {
		for _, lit := range s.dates {
			date, month := mustParseDayMonth(lit)
			from := time.Date(year, month, date, SeriesStartHour, 0, 0, 0, time.Local)
			events = append(events, model.Event{
				AllDay:       false,
				From:         from,
				To:           from.Add(SeriesDuration),
				CourseNumber: mo.Some(SeriesCourseNumber),
				Room:         mo.Some(SeriesRoom),
			})
		}
	}
	return events
}

// VerifySeries checks that every literal of a series lands on the series'
// weekday in the given year, by expanding a weekly rule over the span of
// the series.
func VerifySeries(year int) error {
	for _, s := range fixedSeries {
		if len(s.dates) == 0 {
			continue
		}

		days := make([]time.Time, 0, len(s.dates))
		for _, lit := range s.dates {
			date, month, err := parseDayMonth(lit)
			if err != nil {
				return fmt.Errorf("series %s: %w", s.name, err)
			}
			days = append(days, time.Date(year, month, date, 0, 0, 0, 0, time.UTC))
		}

		first, last := days[0], days[0]
		for _, d := range days[1:] {
			if d.Before(first) {
				first = d
			}
			if d.After(last) {
				last = d
			}
		}

		rule, err := rrule.NewRRule(rrule.ROption{
			Freq:      rrule.WEEKLY,
			Byweekday: []rrule.Weekday{s.weekday},
			Dtstart:   first,
			Until:     last,
		})
		if err != nil {
			return fmt.Errorf("series %s: %w", s.name, err)
		}

		onWeekday := make(map[string]bool)
		for _, occ := range rule.Between(first, last, true) {
			onWeekday[occ.Format("2006-01-02")] = true
		}
		for i, d := range days {
			if !onWeekday[d.Format("2006-01-02")] {
				return fmt.Errorf("series %s: %s is a %s in %d", s.name, s.dates[i], d.Weekday(), year)
			}
		}
	}
	return nil
}

// parseDayMonth parses a "DD/MM" literal.
func parseDayMonth(lit string) (int, time.Month, error) {
	parts := strings.Split(lit, "/")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed date literal %q", lit)
	}
	date, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed day in %q: %w", lit, err)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed month in %q: %w", lit, err)
	}
	if month < 1 || month > 12 || date < 1 || date > 31 {
		return 0, 0, fmt.Errorf("date literal %q out of range", lit)
	}
	return date, time.Month(month), nil
}

func mustParseDayMonth(lit string) (int, time.Month) {
	date, month, err := parseDayMonth(lit)
	if err != nil {
		panic(err)
	}
	return date, month
}
