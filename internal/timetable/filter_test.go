package timetable

import (
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"

	"ttcal/internal/model"
)

func sampleEvents() []model.Event {
	return []model.Event{
		{Source: mo.Some("a"), CourseNumber: mo.Some(3), CourseName: mo.Some("Algebra")},
		{Source: mo.Some("b"), Comments: mo.Some("no course")},
		{Source: mo.Some("c"), CourseNumber: mo.Some(4), CourseName: mo.Some("Logic")},
		{Source: mo.Some("d"), CourseNumber: mo.Some(12), CourseName: mo.Some("Networks")},
	}
}

func sources(events []model.Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Source.OrElse("-"))
	}
	return out
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name string
		sel  model.Selection
		want []string
	}{
		{"empty selection keeps course-less events", model.Selection{}, []string{"b"}},
		{"nil selection", nil, []string{"b"}},
		{"explicit false excludes", model.Selection{"CR03": false}, []string{"b"}},
		{"chosen courses kept in order", model.Selection{"CR12": true, "CR03": true}, []string{"a", "b", "d"}},
		{"everything", model.Selection{"CR03": true, "CR04": true, "CR12": true}, []string{"a", "b", "c", "d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sources(Filter(sampleEvents(), tt.sel)))
		})
	}
}

func TestFilter_Idempotent(t *testing.T) {
	sel := model.Selection{"CR03": true, "CR12": true}

	once := Filter(sampleEvents(), sel)
	twice := Filter(once, sel)

	assert.Equal(t, once, twice)
}

func TestFilter_SeriesFollowsCR00(t *testing.T) {
	events := append(sampleEvents(), Series(2016)...)

	assert.Len(t, Filter(events, model.Selection{"CR00": true}), 1+18)
	assert.Len(t, Filter(events, model.Selection{"CR00": false}), 1)
}
