package aggregate

import "github.com/angelcm/ghl-stats-go/internal/classify"

// MetricBucket holds the six funnel counters. Appears once as the combined
// location-wide total and once per pipeline/calendar breakdown.
type MetricBucket struct {
	Leads        int `json:"leads"`
	Appointments int `json:"appointments"`
	Shows        int `json:"shows"`
	NoShows      int `json:"noShows"`
	Wins         int `json:"wins"`
	Cold         int `json:"cold"`
}

func (b *MetricBucket) Inc(m classify.Metric) {
	switch m {
	case classify.Leads:
		b.Leads++
	case classify.Appointments:
		b.Appointments++
	case classify.Shows:
		b.Shows++
	case classify.NoShows:
		b.NoShows++
	case classify.Wins:
		b.Wins++
	case classify.Cold:
		b.Cold++
	}
}

func (b *MetricBucket) Add(o MetricBucket) {
	b.Leads += o.Leads
	b.Appointments += o.Appointments
	b.Shows += o.Shows
	b.NoShows += o.NoShows
	b.Wins += o.Wins
	b.Cold += o.Cold
}

// BucketResult is a breakdown bucket that may have degraded to an error
// marker. A failed sub-fetch keeps Error=true so its zeros are never mistaken
// for a true zero count.
type BucketResult struct {
	MetricBucket
	Error   bool   `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}
