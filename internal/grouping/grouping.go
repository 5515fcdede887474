package grouping

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"taskboard/internal/models"
)

type Period string

const (
	Week  Period = "week"
	Month Period = "month"
	Year  Period = "year"
)

func ParsePeriod(raw string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(raw))); p {
	case Week, Month, Year:
		return p, nil
	}
	return "", fmt.Errorf("unknown period %q: want week, month or year", raw)
}

// Group is one bucket of tasks created in the same period.
type Group struct {
	Label  string
	Start  time.Time
	Latest time.Time
	Tasks  []models.Task
}

// GroupByPeriod buckets tasks by the period their createdAt falls in,
// computed in loc (UTC when nil). Buckets are ordered by their most recent
// createdAt, newest first; tasks inside a bucket keep their input order.
func GroupByPeriod(tasks []models.Task, period Period, loc *time.Location) []Group {
	if loc == nil {
		loc = time.UTC
	}

	var groups []*Group
	index := make(map[time.Time]*Group)

	for _, task := range tasks {
		created := task.CreatedAt.In(loc)
		start := periodStart(created, period)

		g, ok := index[start]
		if !ok {
			g = &Group{Label: label(start, period), Start: start, Latest: created}
			index[start] = g
			groups = append(groups, g)
		}
		if created.After(g.Latest) {
			g.Latest = created
		}
		g.Tasks = append(g.Tasks, task)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if !groups[i].Latest.Equal(groups[j].Latest) {
			return groups[i].Latest.After(groups[j].Latest)
		}
		return groups[i].Start.After(groups[j].Start)
	})

	out := make([]Group, len(groups))
	for i, g := range groups {
		out[i] = *g
	}
	return out
}

func periodStart(t time.Time, period Period) time.Time {
	y, m, d := t.Date()
	switch period {
	case Year:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, t.Location())
	case Month:
		return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
	default:
		// Monday starts the week
		offset := (int(t.Weekday()) + 6) % 7
		return time.Date(y, m, d-offset, 0, 0, 0, 0, t.Location())
	}
}

func label(start time.Time, period Period) string {
	switch period {
	case Year:
		return start.Format("2006")
	case Month:
		return start.Format("January 2006")
	default:
		return "Week of " + start.Format("2006-01-02")
	}
}
