package crm

import "time"

// Raw entities as returned by the CRM. The service only reads these; they are
// never written back or persisted past the request cache.

type Contact struct {
	ID        string   `json:"id"`
	CreatedAt string   `json:"dateAdded"`
	UpdatedAt string   `json:"dateUpdated"`
	Tags      []string `json:"tags"`
}

type Opportunity struct {
	ID         string   `json:"id"`
	PipelineID string   `json:"pipelineId"`
	StageID    string   `json:"pipelineStageId"`
	Status     string   `json:"status"`
	Tags       []string `json:"tags"`
	CreatedAt  string   `json:"createdAt"`
}

type Appointment struct {
	ID         string `json:"id"`
	CalendarID string `json:"calendarId"`
	StartTime  string `json:"startTime"`
	Status     string `json:"appointmentStatus"`
}

type Stage struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Pipeline struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Stages []Stage `json:"stages"`
}

type SubAccount struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EpochMs parses an RFC3339 timestamp into unix milliseconds. Zero on any
// malformed input, which keeps bad upstream rows out of every date-scoped
// bucket instead of crashing the fold.
func EpochMs(s string) int64 {
	if s == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}
