package report

import (
	"cmp"
	"slices"

	"github.com/dtroode/membership-server/internal/model"
)

// Field selects the registration attribute records are grouped by.
type Field string

const (
	FieldRegion     Field = "region"
	FieldProfession Field = "profession"
	FieldCity       Field = "city"
)

// Value returns the attribute of r selected by f.
func (f Field) Value(r model.Registration) string {
	switch f {
	case FieldRegion:
		return r.Region
	case FieldProfession:
		return r.Profession
	case FieldCity:
		return r.City
	default:
		return ""
	}
}

// Bucket is one group of an aggregation.
type Bucket struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// Aggregate counts records per distinct value of field.
// Buckets are ordered by count descending, equal counts by name ascending.
func Aggregate(records []model.Registration, field Field) []Bucket {
	counts := make(map[string]int)
	for _, r := range records {
		counts[field.Value(r)]++
	}

	buckets := make([]Bucket, 0, len(counts))
	for name, value := range counts {
		buckets = append(buckets, Bucket{Name: name, Value: value})
	}
	slices.SortFunc(buckets, func(a, b Bucket) int {
		if c := cmp.Compare(b.Value, a.Value); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return buckets
}

// Top returns at most the first n buckets.
func Top(buckets []Bucket, n int) []Bucket {
	if n < 0 || len(buckets) <= n {
		return buckets
	}
	return buckets[:n]
}

// Distinct returns the distinct values of field in order of first appearance.
func Distinct(records []model.Registration, field Field) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range records {
		v := field.Value(r)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
