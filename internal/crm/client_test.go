package crm_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelcm/ghl-stats-go/internal/crm"
)

func contactsPage(n, page int) []crm.Contact {
	out := make([]crm.Contact, n)
	for i := range out {
		out[i] = crm.Contact{ID: fmt.Sprintf("c-%d-%d", page, i)}
	}
	return out
}

func TestContactsDrainsAllPages(t *testing.T) {
	var pages []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer loc-key", r.Header.Get("Authorization"))
		require.Equal(t, "/contacts/", r.URL.Path)
		require.Equal(t, "100", r.URL.Query().Get("limit"))

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		pages = append(pages, page)
		n := 100
		if page == 3 {
			n = 30 // short page terminates the loop
		}
		json.NewEncoder(w).Encode(map[string]any{"contacts": contactsPage(n, page)})
	}))
	defer srv.Close()

	c := crm.NewClient(srv.URL, 2*time.Second)
	got, err := c.Contacts(context.Background(), "loc-key")
	require.NoError(t, err)
	assert.Len(t, got, 230)
	assert.Equal(t, []int{1, 2, 3}, pages)
}

func TestContactsEmptyFirstPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"contacts": []crm.Contact{}})
	}))
	defer srv.Close()

	c := crm.NewClient(srv.URL, 2*time.Second)
	got, err := c.Contacts(context.Background(), "loc-key")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"pipelines": []crm.Pipeline{{ID: "p1", Name: "Adult"}}})
	}))
	defer srv.Close()

	c := crm.NewClient(srv.URL, 2*time.Second)
	got, err := c.Pipelines(context.Background(), "loc-key")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := crm.NewClient(srv.URL, 2*time.Second)
	_, err := c.Pipelines(context.Background(), "bad-key")
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCalendarAppointmentsPassesWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "cal-9", q.Get("calendarId"))
		assert.Equal(t, "1000", q.Get("startDate"))
		assert.Equal(t, "2000", q.Get("endDate"))
		json.NewEncoder(w).Encode(map[string]any{"appointments": []crm.Appointment{{ID: "a1"}}})
	}))
	defer srv.Close()

	c := crm.NewClient(srv.URL, 2*time.Second)
	got, err := c.CalendarAppointments(context.Background(), "loc-key", "cal-9", 1000, 2000)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestEpochMs(t *testing.T) {
	assert.Equal(t, int64(0), crm.EpochMs(""))
	assert.Equal(t, int64(0), crm.EpochMs("yesterday"))
	assert.Equal(t, int64(1735689600000), crm.EpochMs("2025-01-01T00:00:00Z"))
}
