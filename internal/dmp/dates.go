package dmp

import (
	"sort"
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	TimestampLayout,
	"2006-01-02 15:04:05",
}

// ParseDate accepts the date shapes found in plans and answers
func ParseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatDisplayDate renders a date as "January 2, 2006". Unparseable input
// is returned trimmed but otherwise unchanged.
func FormatDisplayDate(value string) string {
	t, ok := ParseDate(value)
	if !ok {
		return strings.TrimSpace(value)
	}
	return t.Format("January 2, 2006")
}

// ProjectDates reduces every project's start to the earliest and every end
// to the latest. Each side is sorted independently; either may be empty.
func (p *Plan) ProjectDates() (start, end string) {
	if p == nil {
		return "", ""
	}
	var starts, ends []time.Time
	for _, project := range p.Projects {
		if t, ok := ParseDate(project.Start); ok {
			starts = append(starts, t)
		}
		if t, ok := ParseDate(project.End); ok {
			ends = append(ends, t)
		}
	}
	if len(starts) > 0 {
		sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
		start = starts[0].Format("January 2, 2006")
	}
	if len(ends) > 0 {
		sort.Slice(ends, func(i, j int) bool { return ends[i].After(ends[j]) })
		end = ends[0].Format("January 2, 2006")
	}
	return start, end
}
