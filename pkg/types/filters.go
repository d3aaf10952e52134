package types

import (
	"time"

	"github.com/Tsahi-Elkayam/orbyte/pkg/models"
)

// ResourceFilters defines filters for live resource queries
type ResourceFilters struct {
	Regions       []string          `json:"regions,omitempty"`
	ResourceTypes []string          `json:"resource_types,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
	Status        []string          `json:"status,omitempty"`
}

// TimeRange is an inclusive [Start, End] window
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window, bounds included
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// IsZero reports whether no window was supplied
func (r TimeRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// LastDays returns the window of the given number of days ending at now
func LastDays(now time.Time, days int) TimeRange {
	return TimeRange{Start: now.AddDate(0, 0, -days), End: now}
}

// EvidenceQuery selects evidence records. Empty fields do not filter.
type EvidenceQuery struct {
	Framework  models.Framework `json:"framework,omitempty"`
	ResourceID string           `json:"resource_id,omitempty"`
	Window     TimeRange        `json:"window,omitempty"`
}

// MetricQuery selects metric records. Empty fields do not filter.
type MetricQuery struct {
	ResourceID string    `json:"resource_id,omitempty"`
	Region     string    `json:"region,omitempty"`
	Window     TimeRange `json:"window,omitempty"`
}
