package report

import "github.com/dtroode/membership-server/internal/model"

// ChartSize is the number of bars shown for profession and city charts.
const ChartSize = 5

// Report is everything the dashboard renders for one record set and criteria.
type Report struct {
	Criteria      Criteria
	Total         int
	Filtered      []model.Registration
	Regions       []Bucket
	Professions   []Bucket
	Cities        []Bucket
	RegionOptions []string
	CityOptions   []string
}

// Build filters records by c and aggregates the result.
// Filter options come from the unfiltered set so a narrowed view can be widened again.
func Build(records []model.Registration, c Criteria) Report {
	filtered := Filter(records, c)
	return Report{
		Criteria:      c,
		Total:         len(records),
		Filtered:      filtered,
		Regions:       Aggregate(filtered, FieldRegion),
		Professions:   Aggregate(filtered, FieldProfession),
		Cities:        Aggregate(filtered, FieldCity),
		RegionOptions: Distinct(records, FieldRegion),
		CityOptions:   Distinct(records, FieldCity),
	}
}

// RegionsCovered is the number of distinct regions in the filtered set.
func (r Report) RegionsCovered() int { return len(r.Regions) }

// CitiesCovered is the number of distinct cities in the filtered set.
func (r Report) CitiesCovered() int { return len(r.Cities) }

// TopProfessions returns the professions shown in the chart.
func (r Report) TopProfessions() []Bucket { return Top(r.Professions, ChartSize) }

// TopCities returns the cities shown in the chart.
func (r Report) TopCities() []Bucket { return Top(r.Cities, ChartSize) }
