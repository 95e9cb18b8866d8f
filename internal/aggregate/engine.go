// Package aggregate orchestrates per-location metric aggregation: fetch the
// CRM collections, classify every record, fold contributions into a combined
// total plus per-pipeline/per-calendar breakdowns.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/angelcm/ghl-stats-go/internal/classify"
	"github.com/angelcm/ghl-stats-go/internal/config"
	"github.com/angelcm/ghl-stats-go/internal/crm"
	"github.com/angelcm/ghl-stats-go/internal/directory"
	"github.com/angelcm/ghl-stats-go/internal/metrics"
)

var (
	// ErrNotConfigured means the slug is not in the directory.
	ErrNotConfigured = errors.New("location not configured")
	// ErrEmptySelection means a multi-location request named no known slug.
	ErrEmptySelection = errors.New("no known locations in selection")
	// ErrUpstream wraps failures that poison the minimum viable computation
	// (contacts fetch, in the tag strategy).
	ErrUpstream = errors.New("upstream fetch failed")
)

// Fetcher is the slice of the CRM client the engine needs per request.
type Fetcher interface {
	Contacts(ctx context.Context, apiKey string) ([]crm.Contact, error)
	PipelineOpportunities(ctx context.Context, apiKey, pipelineID string) ([]crm.Opportunity, error)
	CalendarAppointments(ctx context.Context, apiKey, calendarID string, startMs, endMs int64) ([]crm.Appointment, error)
}

// Result is one location's aggregation over one window.
type Result struct {
	Location  string                   `json:"location"`
	DateRange DateRange                `json:"dateRange"`
	Combined  MetricBucket             `json:"combined"`
	Pipelines map[string]*BucketResult `json:"pipelines"`
	Calendars map[string]*BucketResult `json:"calendars,omitempty"`
}

// MultiResult sums several locations; ByPipeline folds the same logical
// pipeline name across all of them.
type MultiResult struct {
	Selection  []string                 `json:"selection"`
	DateRange  DateRange                `json:"dateRange"`
	Combined   MetricBucket             `json:"combined"`
	ByLocation map[string]*BucketResult `json:"byLocation"`
	ByPipeline map[string]*MetricBucket `json:"byPipeline"`
}

type Engine struct {
	dir        *directory.Directory
	crm        Fetcher
	cache      Cache
	strategy   config.Strategy
	fetchLimit int
	locLimit   int64
	log        *slog.Logger
}

func New(dir *directory.Directory, fetcher Fetcher, cache Cache, cfg config.Config, log *slog.Logger) *Engine {
	return &Engine{
		dir:        dir,
		crm:        fetcher,
		cache:      cache,
		strategy:   cfg.Strategy,
		fetchLimit: cfg.FetchLimit,
		locLimit:   cfg.LocationLimit,
		log:        log,
	}
}

// collected holds the raw fetch results for one location before the fold.
// Each goroutine writes its own key under mu; classification runs after the
// fan-in so an errored bucket can never also carry counts.
type collected struct {
	mu       sync.Mutex
	contacts []crm.Contact
	opps     map[string][]crm.Opportunity
	appts    map[string][]crm.Appointment
	pipeErr  map[string]error
	calErr   map[string]error
}

// ComputeOne aggregates one location over one window. A failed pipeline or
// calendar fetch degrades that breakdown bucket to an error marker; a failed
// contacts fetch fails the whole computation.
func (e *Engine) ComputeOne(ctx context.Context, slug string, w classify.Window) (*Result, error) {
	loc, ok := e.dir.Resolve(slug)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, slug)
	}
	key := cacheKey(loc.Slug, w)
	if r, hit := e.cache.Get(key); hit {
		metrics.CacheHitsTotal.Inc()
		return r, nil
	}
	metrics.CacheMissesTotal.Inc()
	timer := prometheus.NewTimer(metrics.AggregateDuration)
	defer timer.ObserveDuration()

	col := &collected{
		opps:    make(map[string][]crm.Opportunity),
		appts:   make(map[string][]crm.Appointment),
		pipeErr: make(map[string]error),
		calErr:  make(map[string]error),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.fetchLimit)

	if e.strategy == config.StrategyTags {
		g.Go(func() error {
			contacts, err := e.crm.Contacts(gctx, loc.APIKey)
			if err != nil {
				// fatal para toda la ubicación
				return err
			}
			col.mu.Lock()
			col.contacts = contacts
			col.mu.Unlock()
			return nil
		})
	}
	for _, ref := range loc.Pipelines {
		ref := ref
		g.Go(func() error {
			opps, err := e.crm.PipelineOpportunities(gctx, loc.APIKey, ref.ID)
			col.mu.Lock()
			defer col.mu.Unlock()
			if err != nil {
				col.pipeErr[ref.Name] = err
				return nil // degrades to an error marker, siblings keep going
			}
			col.opps[ref.Name] = opps
			return nil
		})
	}
	for _, cal := range loc.Calendars {
		cal := cal
		g.Go(func() error {
			appts, err := e.crm.CalendarAppointments(gctx, loc.APIKey, cal.ID, w.StartMs, w.EndMs)
			col.mu.Lock()
			defer col.mu.Unlock()
			if err != nil {
				col.calErr[cal.Name] = err
				return nil
			}
			col.appts[cal.Name] = appts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.log.Error("location aggregation failed",
			slog.String("location", loc.Slug), slog.String("err", err.Error()))
		return nil, fmt.Errorf("%w: %s: %v", ErrUpstream, loc.Slug, err)
	}

	res := e.fold(loc, w, col)
	e.cache.Set(key, res)
	return res, nil
}

// fold classifies every collected record and folds the contributions. All
// configured buckets are initialized first so configured-but-empty ones are
// present in the response, never omitted.
func (e *Engine) fold(loc directory.LocationConfig, w classify.Window, col *collected) *Result {
	res := &Result{
		Location:  loc.Slug,
		DateRange: RangeOf(w),
		Pipelines: make(map[string]*BucketResult, len(loc.Pipelines)),
	}
	for _, ref := range loc.Pipelines {
		res.Pipelines[ref.Name] = &BucketResult{}
	}
	if len(loc.Calendars) > 0 {
		res.Calendars = make(map[string]*BucketResult, len(loc.Calendars))
		for _, cal := range loc.Calendars {
			res.Calendars[cal.Name] = &BucketResult{}
		}
	}
	for name, err := range col.pipeErr {
		res.Pipelines[name] = &BucketResult{Error: true, Message: err.Error()}
		e.log.Warn("pipeline fetch failed", slog.String("location", loc.Slug),
			slog.String("pipeline", name), slog.String("err", err.Error()))
	}
	for name, err := range col.calErr {
		res.Calendars[name] = &BucketResult{Error: true, Message: err.Error()}
		e.log.Warn("calendar fetch failed", slog.String("location", loc.Slug),
			slog.String("calendar", name), slog.String("err", err.Error()))
	}

	for _, c := range col.contacts {
		res.apply(classify.ContactContribs(c, w, e.strategy), res.Pipelines)
	}
	for _, ref := range loc.Pipelines {
		for _, o := range col.opps[ref.Name] {
			res.apply(classify.OpportunityContribs(o, ref, w, e.strategy), res.Pipelines)
		}
	}
	for _, cal := range loc.Calendars {
		for _, a := range col.appts[cal.Name] {
			res.apply(classify.AppointmentContribs(a, cal.Name, w), res.Calendars)
		}
	}
	return res
}

// apply folds one record's contributions: combined takes each once, every
// matching non-errored breakdown bucket takes it too.
func (r *Result) apply(contribs []classify.Contrib, buckets map[string]*BucketResult) {
	for _, c := range contribs {
		r.Combined.Inc(c.Metric)
		for _, name := range c.Buckets {
			if b, ok := buckets[name]; ok && !b.Error {
				b.Inc(c.Metric)
			}
		}
	}
}

// ComputeMany fans ComputeOne out across the selection under a weighted
// semaphore so a dashboard-wide refresh cannot stampede the CRM. Unknown
// slugs are dropped silently; a failed location becomes an error entry in
// ByLocation and is excluded from the sums.
func (e *Engine) ComputeMany(ctx context.Context, slugs []string, w classify.Window) (*MultiResult, error) {
	selection := e.selectSlugs(slugs)
	if len(selection) == 0 {
		return nil, ErrEmptySelection
	}

	multi := &MultiResult{
		Selection:  selection,
		DateRange:  RangeOf(w),
		ByLocation: make(map[string]*BucketResult, len(selection)),
		ByPipeline: make(map[string]*MetricBucket),
	}

	sem := semaphore.NewWeighted(e.locLimit)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, slug := range selection {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		wg.Add(1)
		go func(slug string) {
			defer wg.Done()
			defer sem.Release(1)
			r, err := e.ComputeOne(ctx, slug, w)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				multi.ByLocation[slug] = &BucketResult{Error: true, Message: err.Error()}
				return
			}
			multi.ByLocation[slug] = &BucketResult{MetricBucket: r.Combined}
			multi.Combined.Add(r.Combined)
			for name, b := range r.Pipelines {
				if b.Error {
					continue
				}
				agg, ok := multi.ByPipeline[name]
				if !ok {
					agg = &MetricBucket{}
					multi.ByPipeline[name] = agg
				}
				agg.Add(b.MetricBucket)
			}
		}(slug)
	}
	wg.Wait()
	return multi, nil
}

// selectSlugs resolves the requested selection against the directory. "all"
// (or an empty request) expands to every configured location; unknown slugs
// are dropped.
func (e *Engine) selectSlugs(slugs []string) []string {
	if len(slugs) == 1 && slugs[0] == "all" {
		return e.dir.Slugs()
	}
	var out []string
	seen := make(map[string]bool)
	for _, s := range slugs {
		if _, ok := e.dir.Resolve(s); ok && !seen[s] {
			out = append(out, s)
			seen[s] = true
		}
	}
	return out
}
