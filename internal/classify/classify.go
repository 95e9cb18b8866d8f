// Package classify maps raw CRM records onto metric contributions. Everything
// here is pure: records and a date window in, contribution pairs out.
package classify

import (
	"strings"

	"github.com/angelcm/ghl-stats-go/internal/config"
	"github.com/angelcm/ghl-stats-go/internal/crm"
	"github.com/angelcm/ghl-stats-go/internal/directory"
)

type Metric string

const (
	Leads        Metric = "leads"
	Appointments Metric = "appointments"
	Shows        Metric = "shows"
	NoShows      Metric = "noShows"
	Wins         Metric = "wins"
	Cold         Metric = "cold"
)

// Window is an inclusive date range in unix milliseconds.
type Window struct {
	StartMs int64
	EndMs   int64
}

func (w Window) Contains(ms int64) bool {
	return ms >= w.StartMs && ms <= w.EndMs
}

// Contrib is one metric increment. Combined always takes it once; each named
// breakdown bucket in Buckets takes it too. Buckets may be empty (a record
// tagged "won" but no pipeline counts toward combined only).
type Contrib struct {
	Metric  Metric
	Buckets []string
}

// metricTags are the literal outcome tags of the tag-based strategy, keyed by
// the metric they increment.
var metricTags = map[Metric]string{
	Appointments: "appointment",
	Shows:        "show",
	NoShows:      "no-show",
	Wins:         "won",
	Cold:         "cold",
}

// stageMetrics maps the captured stage names onto metrics for the stage-based
// strategy. Wins are tag-based in both strategies.
var stageMetrics = map[string]Metric{
	"appointment": Appointments,
	"show":        Shows,
	"no-show":     NoShows,
	"cold":        Cold,
}

// normTag folds tag spelling variants: "No Show", "no_show" and "No-Show" all
// become "no-show".
func normTag(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	})
	return strings.Join(fields, "-")
}

func tagSet(tags []string) map[string]bool {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		if n := normTag(t); n != "" {
			set[n] = true
		}
	}
	return set
}

// pipelineBuckets returns the logical pipelines a tag set belongs to. Zero,
// one or several; a record tagged both "adult" and "leagues" lands in both
// breakdowns and once in combined. That double membership is intended.
func pipelineBuckets(set map[string]bool) []string {
	var out []string
	for _, name := range directory.PipelineNames {
		if set[name] {
			out = append(out, name)
		}
	}
	return out
}

// ContactContribs classifies one contact. Only the tag strategy reads
// contacts: creation inside the window is a lead; outcome tags count when the
// contact was last touched inside the window.
func ContactContribs(c crm.Contact, w Window, strat config.Strategy) []Contrib {
	if strat != config.StrategyTags {
		return nil
	}
	set := tagSet(c.Tags)
	buckets := pipelineBuckets(set)
	var out []Contrib
	if w.Contains(crm.EpochMs(c.CreatedAt)) {
		out = append(out, Contrib{Metric: Leads, Buckets: buckets})
	}
	if w.Contains(crm.EpochMs(c.UpdatedAt)) {
		for m, tag := range metricTags {
			if set[tag] {
				out = append(out, Contrib{Metric: m, Buckets: buckets})
			}
		}
	}
	return out
}

// OpportunityContribs classifies one opportunity fetched from the pipeline
// described by ref.
//
// Stage strategy: the opportunity counts toward a metric when it sits in the
// stage registered under that metric's name; everything except leads is
// filtered on createdAt. Leads are a headcount, a live snapshot of the "lead"
// stage, deliberately not date-filtered. Wins stay tag-based.
//
// Tag strategy: same literal-tag rules as contacts, windowed on createdAt,
// with pipeline membership taken from the tag set.
func OpportunityContribs(o crm.Opportunity, ref directory.PipelineRef, w Window, strat config.Strategy) []Contrib {
	set := tagSet(o.Tags)
	if strat == config.StrategyStages {
		var out []Contrib
		bucket := []string{ref.Name}
		if id, ok := ref.StageIDs["lead"]; ok && o.StageID == id {
			// headcount: sin filtro de fechas
			out = append(out, Contrib{Metric: Leads, Buckets: bucket})
		}
		if !w.Contains(crm.EpochMs(o.CreatedAt)) {
			return out
		}
		for stage, m := range stageMetrics {
			if id, ok := ref.StageIDs[stage]; ok && o.StageID == id {
				out = append(out, Contrib{Metric: m, Buckets: bucket})
			}
		}
		if set["won"] {
			out = append(out, Contrib{Metric: Wins, Buckets: bucket})
		}
		return out
	}

	if !w.Contains(crm.EpochMs(o.CreatedAt)) {
		return nil
	}
	buckets := pipelineBuckets(set)
	out := []Contrib{{Metric: Leads, Buckets: buckets}}
	for m, tag := range metricTags {
		if set[tag] {
			out = append(out, Contrib{Metric: m, Buckets: buckets})
		}
	}
	return out
}

// AppointmentContribs classifies one booked appointment against its calendar
// bucket. Start time decides window membership; the booking status decides
// the outcome.
func AppointmentContribs(a crm.Appointment, calendarName string, w Window) []Contrib {
	if !w.Contains(crm.EpochMs(a.StartTime)) {
		return nil
	}
	bucket := []string{calendarName}
	out := []Contrib{{Metric: Appointments, Buckets: bucket}}
	switch normTag(a.Status) {
	case "showed", "show", "confirmed":
		out = append(out, Contrib{Metric: Shows, Buckets: bucket})
	case "noshow", "no-show":
		out = append(out, Contrib{Metric: NoShows, Buckets: bucket})
	}
	return out
}
