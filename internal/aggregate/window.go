package aggregate

import (
	"time"

	"github.com/angelcm/ghl-stats-go/internal/classify"
)

const dayFormat = "2006-01-02"

// DateRange is the YYYY-MM-DD echo of a window, as served to the dashboard.
type DateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// WindowBetween builds an inclusive window from two calendar days, extending
// the end to the last millisecond of that day.
func WindowBetween(start, end time.Time) classify.Window {
	endOfDay := time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, int(999*time.Millisecond), time.UTC)
	return classify.Window{StartMs: start.UnixMilli(), EndMs: endOfDay.UnixMilli()}
}

// DefaultWindow is the trailing 30-day window ending now.
func DefaultWindow(now time.Time) classify.Window {
	return classify.Window{
		StartMs: now.AddDate(0, 0, -30).UnixMilli(),
		EndMs:   now.UnixMilli(),
	}
}

// ParseDay parses a YYYY-MM-DD calendar date in UTC.
func ParseDay(s string) (time.Time, error) {
	return time.Parse(dayFormat, s)
}

// RangeOf formats a window back into calendar days (UTC).
func RangeOf(w classify.Window) DateRange {
	return DateRange{
		StartDate: time.UnixMilli(w.StartMs).UTC().Format(dayFormat),
		EndDate:   time.UnixMilli(w.EndMs).UTC().Format(dayFormat),
	}
}
