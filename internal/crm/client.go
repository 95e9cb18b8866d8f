package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/angelcm/ghl-stats-go/internal/metrics"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client issues authenticated reads against the CRM REST API. Every call is
// scoped to one bearer key: the agency key for the sub-account listing, a
// location key for everything else.
type Client struct {
	httpc HTTPClient
	base  string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{httpc: &http.Client{Timeout: timeout}, base: baseURL}
}

// NewClientWith injects a transport, used by tests.
func NewClientWith(baseURL string, httpc HTTPClient) *Client {
	return &Client{httpc: httpc, base: baseURL}
}

const maxAttempts = 3

func (c *Client) getJSON(ctx context.Context, apiKey, path string, q url.Values, dst any) error {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+apiKey)
		resp, err := c.httpc.Do(req)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			defer resp.Body.Close()
			return json.NewDecoder(resp.Body).Decode(dst)
		}
		if err != nil {
			lastErr = err
		} else {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			resp.Body.Close()
			lastErr = fmt.Errorf("crm %s: %s body=%s", path, resp.Status, string(b))
			// 4xx no se recupera reintentando
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != 429 {
				return lastErr
			}
		}
		// backoff exponencial + jitter
		sleep := time.Duration((1<<i)*100) * time.Millisecond
		sleep += time.Duration(rand.Intn(150)) * time.Millisecond
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func observe(resource string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.UpstreamFetchesTotal.WithLabelValues(resource, outcome).Inc()
}

// SubAccounts lists the agency's sub-accounts. Agency-key scoped.
func (c *Client) SubAccounts(ctx context.Context, agencyKey string) ([]SubAccount, error) {
	var body struct {
		Locations []SubAccount `json:"locations"`
	}
	err := c.getJSON(ctx, agencyKey, "/locations/", nil, &body)
	observe("locations", err)
	if err != nil {
		return nil, fmt.Errorf("fetch sub-accounts: %w", err)
	}
	return body.Locations, nil
}

// Pipelines lists the pipelines (with stages) visible to one location key.
func (c *Client) Pipelines(ctx context.Context, apiKey string) ([]Pipeline, error) {
	var body struct {
		Pipelines []Pipeline `json:"pipelines"`
	}
	err := c.getJSON(ctx, apiKey, "/pipelines/", nil, &body)
	observe("pipelines", err)
	if err != nil {
		return nil, fmt.Errorf("fetch pipelines: %w", err)
	}
	return body.Pipelines, nil
}

// Contacts retrieves the location's full contact list, page by page.
func (c *Client) Contacts(ctx context.Context, apiKey string) ([]Contact, error) {
	out, err := fetchPages(func(page int) ([]Contact, error) {
		var body struct {
			Contacts []Contact `json:"contacts"`
		}
		err := c.getJSON(ctx, apiKey, "/contacts/", pageQuery(page, nil), &body)
		return body.Contacts, err
	})
	observe("contacts", err)
	if err != nil {
		return nil, fmt.Errorf("fetch contacts: %w", err)
	}
	return out, nil
}

// PipelineOpportunities retrieves every opportunity in one pipeline.
func (c *Client) PipelineOpportunities(ctx context.Context, apiKey, pipelineID string) ([]Opportunity, error) {
	path := "/pipelines/" + url.PathEscape(pipelineID) + "/opportunities"
	out, err := fetchPages(func(page int) ([]Opportunity, error) {
		var body struct {
			Opportunities []Opportunity `json:"opportunities"`
		}
		err := c.getJSON(ctx, apiKey, path, pageQuery(page, nil), &body)
		return body.Opportunities, err
	})
	observe("opportunities", err)
	if err != nil {
		return nil, fmt.Errorf("fetch opportunities for pipeline %s: %w", pipelineID, err)
	}
	return out, nil
}

// CalendarAppointments retrieves one calendar's appointments inside the window.
// The CRM filters server-side on the epoch-ms bounds; the classifier re-checks
// startTime anyway so a sloppy upstream filter cannot inflate counts.
func (c *Client) CalendarAppointments(ctx context.Context, apiKey, calendarID string, startMs, endMs int64) ([]Appointment, error) {
	q := url.Values{
		"calendarId": {calendarID},
		"startDate":  {strconv.FormatInt(startMs, 10)},
		"endDate":    {strconv.FormatInt(endMs, 10)},
	}
	out, err := fetchPages(func(page int) ([]Appointment, error) {
		var body struct {
			Appointments []Appointment `json:"appointments"`
		}
		err := c.getJSON(ctx, apiKey, "/appointments/", pageQuery(page, q), &body)
		return body.Appointments, err
	})
	observe("appointments", err)
	if err != nil {
		return nil, fmt.Errorf("fetch appointments for calendar %s: %w", calendarID, err)
	}
	return out, nil
}
