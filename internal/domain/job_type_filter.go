package domain

import (
	"fmt"
	"strings"
)

// JobTypeFilter classifies an entry along location, kind and state axes.
type JobTypeFilter uint32

const (
	JobSystem JobTypeFilter = 1 << iota
	JobGlobal
	JobUser
	JobAgent
	JobDaemon
	JobLoaded
	JobDisabled
)

var jobTypeNames = []struct {
	flag JobTypeFilter
	name string
}{
	{JobSystem, "system"},
	{JobGlobal, "global"},
	{JobUser, "user"},
	{JobAgent, "agent"},
	{JobDaemon, "daemon"},
	{JobLoaded, "loaded"},
	{JobDisabled, "disabled"},
}

// JobTypeFlags returns every flag with its name, in display order.
func JobTypeFlags() []JobTypeFilter {
	out := make([]JobTypeFilter, len(jobTypeNames))
	for i, n := range jobTypeNames {
		out[i] = n.flag
	}
	return out
}

// IsEmpty reports whether no bits are set. An empty filter matches everything.
func (f JobTypeFilter) IsEmpty() bool {
	return f == 0
}

// Contains reports whether every bit of other is set in f.
func (f JobTypeFilter) Contains(other JobTypeFilter) bool {
	return f&other == other
}

// Intersects reports whether f and other share any bit.
func (f JobTypeFilter) Intersects(other JobTypeFilter) bool {
	return f&other != 0
}

// Toggle flips the given bits.
func (f JobTypeFilter) Toggle(other JobTypeFilter) JobTypeFilter {
	return f ^ other
}

// Matches reports whether an entry with bitmask entry passes this filter.
func (f JobTypeFilter) Matches(entry JobTypeFilter) bool {
	return f.IsEmpty() || entry.Contains(f)
}

func (f JobTypeFilter) String() string {
	if f.IsEmpty() {
		return "any"
	}
	var parts []string
	for _, n := range jobTypeNames {
		if f.Intersects(n.flag) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, ",")
}

// ParseJobTypeFilter builds a filter from flag names such as "global", "agent".
func ParseJobTypeFilter(names []string) (JobTypeFilter, error) {
	var f JobTypeFilter
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		found := false
		for _, n := range jobTypeNames {
			if n.name == name {
				f |= n.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown job type %q", raw)
		}
	}
	return f, nil
}
