package models

import (
	"net/url"
	"sort"
	"strings"
)

// TaskFilter lists every filter the list operation understands. Zero
// values and nil pointers mean the filter is not applied.
//
//   - Status: exact status match.
//   - Tags: task carries at least one of the labels.
//   - StartDate/EndDate: due date within the range, both ends inclusive.
//   - Search: case-insensitive substring of title or description.
type TaskFilter struct {
	Status    *TaskStatus
	Tags      []string
	StartDate *Date
	EndDate   *Date
	Search    string
}

// ParseTaskFilter reads a filter from query parameters. Tags may be given
// as repeated parameters, comma-separated, or both.
func ParseTaskFilter(values url.Values) (TaskFilter, error) {
	var filter TaskFilter

	if raw := strings.TrimSpace(values.Get("status")); raw != "" {
		status, err := ParseTaskStatus(raw)
		if err != nil {
			return TaskFilter{}, &ValidationError{Field: "status", Message: "status must be one of " + statusList()}
		}
		filter.Status = &status
	}

	for _, raw := range values["tags"] {
		filter.Tags = append(filter.Tags, strings.Split(raw, ",")...)
	}

	if raw := strings.TrimSpace(values.Get("startDate")); raw != "" {
		start, err := ParseDate(raw)
		if err != nil {
			return TaskFilter{}, &ValidationError{Field: "startDate", Message: err.Error()}
		}
		filter.StartDate = &start
	}

	if raw := strings.TrimSpace(values.Get("endDate")); raw != "" {
		end, err := ParseDate(raw)
		if err != nil {
			return TaskFilter{}, &ValidationError{Field: "endDate", Message: err.Error()}
		}
		filter.EndDate = &end
	}

	filter.Search = values.Get("search")

	filter = filter.Normalize()
	if filter.StartDate != nil && filter.EndDate != nil && filter.StartDate.After(*filter.EndDate) {
		return TaskFilter{}, &ValidationError{Field: "startDate", Message: "startDate must not be after endDate"}
	}
	return filter, nil
}

// Normalize returns an equivalent filter in canonical form: search trimmed,
// tags trimmed, deduplicated and sorted. Two filters that select the same
// rows normalize to the same value.
func (f TaskFilter) Normalize() TaskFilter {
	out := f
	out.Search = strings.TrimSpace(f.Search)
	out.Tags = nil

	seen := make(map[string]struct{}, len(f.Tags))
	for _, tag := range f.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out.Tags = append(out.Tags, tag)
	}
	sort.Strings(out.Tags)
	return out
}

func (f TaskFilter) IsEmpty() bool {
	return f.Status == nil && len(f.Tags) == 0 && f.StartDate == nil && f.EndDate == nil && f.Search == ""
}

// Values encodes the filter back into query parameters.
func (f TaskFilter) Values() url.Values {
	values := url.Values{}
	if f.Status != nil {
		values.Set("status", string(*f.Status))
	}
	if len(f.Tags) > 0 {
		values.Set("tags", strings.Join(f.Tags, ","))
	}
	if f.StartDate != nil {
		values.Set("startDate", f.StartDate.String())
	}
	if f.EndDate != nil {
		values.Set("endDate", f.EndDate.String())
	}
	if f.Search != "" {
		values.Set("search", f.Search)
	}
	return values
}

// Key is a stable string form of the normalized filter, suitable for
// keying caches.
func (f TaskFilter) Key() string {
	return f.Normalize().Values().Encode()
}
