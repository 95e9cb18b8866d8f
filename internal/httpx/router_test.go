package httpx_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelcm/ghl-stats-go/internal/aggregate"
	"github.com/angelcm/ghl-stats-go/internal/config"
	"github.com/angelcm/ghl-stats-go/internal/crm"
	"github.com/angelcm/ghl-stats-go/internal/directory"
	"github.com/angelcm/ghl-stats-go/internal/httpx"
)

type staticFetcher struct {
	opps       map[string][]crm.Opportunity
	fetchCalls atomic.Int32
}

func (f *staticFetcher) Contacts(ctx context.Context, apiKey string) ([]crm.Contact, error) {
	f.fetchCalls.Add(1)
	return nil, nil
}

func (f *staticFetcher) PipelineOpportunities(ctx context.Context, apiKey, pipelineID string) ([]crm.Opportunity, error) {
	f.fetchCalls.Add(1)
	return f.opps[pipelineID], nil
}

func (f *staticFetcher) CalendarAppointments(ctx context.Context, apiKey, calendarID string, startMs, endMs int64) ([]crm.Appointment, error) {
	f.fetchCalls.Add(1)
	return nil, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *staticFetcher) {
	t.Helper()
	dir := directory.FromConfigs(
		directory.LocationConfig{
			Slug: "portland", DisplayName: "Portland", SubAccountID: "sa-1", APIKey: "key-1",
			Pipelines: []directory.PipelineRef{{Name: "adult", ID: "p-adult"}},
		},
		directory.LocationConfig{
			Slug: "salem", DisplayName: "Salem", SubAccountID: "sa-2", APIKey: "key-2",
		},
	)
	fetcher := &staticFetcher{
		opps: map[string][]crm.Opportunity{
			"p-adult": {{ID: "o1", CreatedAt: "2025-01-10T00:00:00Z", Tags: []string{"adult", "won"}}},
		},
	}
	cfg := config.Config{Strategy: config.StrategyTags, FetchLimit: 4, LocationLimit: 2}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := aggregate.New(dir, fetcher, aggregate.NewMemoryCache(0), cfg, log)

	srv := httptest.NewServer(httpx.NewRouter(log, dir, eng))
	t.Cleanup(srv.Close)
	return srv, fetcher
}

func getJSON(t *testing.T, url string, dst any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if dst != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
	}
	return resp.StatusCode
}

func TestLocationsStatsRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)

	var locs []directory.LocationInfo
	code := getJSON(t, srv.URL+"/locations", &locs)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, locs, 2)

	// every listed slug must serve stats, never 404
	for _, loc := range locs {
		code := getJSON(t, srv.URL+"/stats/"+loc.Slug+"?startDate=2025-01-01&endDate=2025-01-31", nil)
		assert.Equal(t, http.StatusOK, code, "slug %s", loc.Slug)
	}
}

func TestStatsPayloadShape(t *testing.T) {
	srv, _ := newTestServer(t)

	var body struct {
		Location  string              `json:"location"`
		DateRange aggregate.DateRange `json:"dateRange"`
		Combined  aggregate.MetricBucket
		Pipelines map[string]aggregate.BucketResult `json:"pipelines"`
	}
	code := getJSON(t, srv.URL+"/stats/portland?startDate=2025-01-01&endDate=2025-01-31", &body)
	require.Equal(t, http.StatusOK, code)

	assert.Equal(t, "portland", body.Location)
	assert.Equal(t, aggregate.DateRange{StartDate: "2025-01-01", EndDate: "2025-01-31"}, body.DateRange)
	assert.Equal(t, 1, body.Combined.Wins)
	assert.Equal(t, 1, body.Pipelines["adult"].Wins)
}

func TestStatsUnknownSlug(t *testing.T) {
	srv, fetcher := newTestServer(t)

	var body struct {
		Error string `json:"error"`
	}
	code := getJSON(t, srv.URL+"/stats/nowhere", &body)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Location not found", body.Error)
	assert.Equal(t, int32(0), fetcher.fetchCalls.Load(), "404 must not touch the CRM")
}

func TestStatsInvalidDates(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := map[string]struct {
		query string
		field string
		rule  string
	}{
		"unparseable startDate": {query: "?startDate=nope&endDate=2025-01-31", field: "startDate", rule: "date"},
		"missing endDate":       {query: "?startDate=2025-01-01", field: "endDate", rule: "required"},
		"missing startDate":     {query: "?endDate=2025-01-31", field: "startDate", rule: "required"},
		"inverted range":        {query: "?startDate=2025-02-01&endDate=2025-01-01", field: "startDate", rule: "range"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var body struct {
				Error   string `json:"error"`
				Details map[string]struct {
					Message string `json:"message"`
					Rule    string `json:"rule"`
				} `json:"details"`
			}
			code := getJSON(t, srv.URL+"/stats/portland"+tc.query, &body)
			assert.Equal(t, http.StatusBadRequest, code)
			require.Contains(t, body.Details, tc.field)
			assert.Equal(t, tc.rule, body.Details[tc.field].Rule)
			assert.NotEmpty(t, body.Details[tc.field].Message)
		})
	}
}

func TestStatsDefaultsToTrailingWindow(t *testing.T) {
	srv, _ := newTestServer(t)
	code := getJSON(t, srv.URL+"/stats/portland", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestMultiStats(t *testing.T) {
	srv, _ := newTestServer(t)

	var body struct {
		Selection  []string                          `json:"selection"`
		Combined   aggregate.MetricBucket            `json:"combined"`
		ByLocation map[string]aggregate.BucketResult `json:"byLocation"`
		ByPipeline map[string]aggregate.MetricBucket `json:"byPipeline"`
	}
	code := getJSON(t, srv.URL+"/stats?locations=all&startDate=2025-01-01&endDate=2025-01-31", &body)
	require.Equal(t, http.StatusOK, code)
	assert.ElementsMatch(t, []string{"portland", "salem"}, body.Selection)
	assert.Equal(t, 1, body.Combined.Wins)
	assert.Equal(t, 1, body.ByPipeline["adult"].Wins)
	assert.Contains(t, body.ByLocation, "salem")
}

func TestMultiStatsSelectionErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	code := getJSON(t, srv.URL+"/stats", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	var body struct {
		Details map[string]struct {
			Rule string `json:"rule"`
		} `json:"details"`
	}
	code = getJSON(t, srv.URL+"/stats?locations=nowhere,elsewhere", &body)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body.Details, "locations")
}
