// Package report filters registration lists and groups them for the dashboard.
// Everything here is a pure function of its inputs and recomputes from scratch.
package report

import (
	"strings"

	"github.com/dtroode/membership-server/internal/model"
)

// Criteria holds the dashboard filters. An empty field matches every record.
type Criteria struct {
	SearchTerm string
	Region     string
	City       string
}

// IsEmpty reports whether no filter is set.
func (c Criteria) IsEmpty() bool {
	return c == Criteria{}
}

// Match reports whether r satisfies every non-empty criterion.
// The search term matches the full name case-insensitively or the phone number as typed.
func (c Criteria) Match(r model.Registration) bool {
	if c.Region != "" && r.Region != c.Region {
		return false
	}
	if c.City != "" && r.City != c.City {
		return false
	}
	if c.SearchTerm != "" {
		inName := strings.Contains(strings.ToLower(r.FullName), strings.ToLower(c.SearchTerm))
		if !inName && !strings.Contains(r.Phone, c.SearchTerm) {
			return false
		}
	}
	return true
}

// Filter returns the records matching c, preserving their order.
// The input slice is never modified.
func Filter(records []model.Registration, c Criteria) []model.Registration {
	out := make([]model.Registration, 0, len(records))
	for _, r := range records {
		if c.Match(r) {
			out = append(out, r)
		}
	}
	return out
}
