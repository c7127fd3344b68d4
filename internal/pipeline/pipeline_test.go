package pipeline

import (
	"errors"
	"strings"
	"testing"
	"time"

	goical "github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ttcal/internal/ics"
	"ttcal/internal/model"
	"ttcal/internal/timetable"
)

const algebraJSON = `[{
  "source": "x",
  "day": {"type": "day", "date": 12, "month": 9},
  "period": {
    "type": "period",
    "from_time": {"type": "time", "hours": 8, "minutes": 0},
    "to_time": {"type": "time", "hours": 10, "minutes": 0}
  },
  "course": {"type": "course", "number": 3, "name": "Algebra"}
}]`

func newPipeline() *Pipeline {
	return &Pipeline{
		Year: model.DefaultReferenceYear,
		Courses: model.Courses{
			"CR00": {Name: "Séminaire", Teachers: "Équipe"},
			"CR03": {Name: "Advanced algebra", Teachers: "E. Noether"},
		},
		Render: ics.RenderOptions{
			ProductID: "M2 IF",
			Now:       time.Date(2016, time.September, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func decodeEvents(t *testing.T, out string) []goical.Event {
	t.Helper()
	cal, err := goical.NewDecoder(strings.NewReader(out)).Decode()
	require.NoError(t, err)
	return cal.Events()
}

func TestRun_SelectedCourse(t *testing.T) {
	out, err := newPipeline().Run(strings.NewReader(algebraJSON), model.Selection{"CR03": true})
	require.NoError(t, err)

	events := decodeEvents(t, out)
	require.Len(t, events, 1)

	summary, err := events[0].Props.Text(goical.PropSummary)
	require.NoError(t, err)
	assert.Equal(t, "Algebra: Advanced algebra", summary)

	start, err := events[0].DateTimeStart(time.Local)
	require.NoError(t, err)
	end, err := events[0].DateTimeEnd(time.Local)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2016, time.September, 12, 8, 0, 0, 0, time.Local), start)
	assert.Equal(t, time.Date(2016, time.September, 12, 10, 0, 0, 0, time.Local), end)
}

func TestRun_DeselectedCourse(t *testing.T) {
	out, err := newPipeline().Run(strings.NewReader(algebraJSON), model.Selection{"CR03": false})
	require.NoError(t, err)
	assert.Empty(t, decodeEvents(t, out))
}

func TestRun_CourseLessEventAlwaysKept(t *testing.T) {
	input := `[{"source": "y", "day": {"type": "day", "date": 25, "month": 12}, "comments": "Noël"}]`

	for _, sel := range []model.Selection{{}, {"CR03": true}, {"CR00": false}} {
		out, err := newPipeline().Run(strings.NewReader(input), sel)
		require.NoError(t, err)

		events := decodeEvents(t, out)
		require.Len(t, events, 1)

		start, err := events[0].DateTimeStart(time.UTC)
		require.NoError(t, err)
		end, err := events[0].DateTimeEnd(time.UTC)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2016, time.December, 25, 0, 0, 0, 0, time.UTC), start)
		assert.Equal(t, time.Date(2016, time.December, 26, 0, 0, 0, 0, time.UTC), end)
	}
}

func TestRun_SeriesAppendedAfterExtractedEvents(t *testing.T) {
	p := newPipeline()
	raws, err := timetable.DecodeRawEvents(strings.NewReader(algebraJSON))
	require.NoError(t, err)

	events, err := p.Events(raws, model.Selection{"CR00": true, "CR03": true})
	require.NoError(t, err)
	require.Len(t, events, 1+18)

	assert.Equal(t, "x", events[0].Source.MustGet())
	for _, ev := range events[1:] {
		assert.Equal(t, 0, ev.CourseNumber.MustGet())
	}

	out, err := p.Run(strings.NewReader(algebraJSON), model.Selection{"CR00": true, "CR03": true})
	require.NoError(t, err)
	assert.Len(t, decodeEvents(t, out), 19)
}

func TestRun_MalformedInputAborts(t *testing.T) {
	out, err := newPipeline().Run(strings.NewReader(`[{"source": "x"}]`), model.Selection{})
	assert.Empty(t, out)

	var verr *timetable.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "day", verr.Field)

	_, err = newPipeline().Run(strings.NewReader(`not json`), model.Selection{})
	assert.Error(t, err)
}

func TestRun_UnknownCourseAborts(t *testing.T) {
	p := newPipeline()
	delete(p.Courses, "CR03")

	_, err := p.Run(strings.NewReader(algebraJSON), model.Selection{"CR03": true})

	var uerr *ics.UnknownCourseError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, "CR03", uerr.ID)
}
