package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelcm/ghl-stats-go/internal/aggregate"
	"github.com/angelcm/ghl-stats-go/internal/classify"
	"github.com/angelcm/ghl-stats-go/internal/directory"
	"github.com/angelcm/ghl-stats-go/internal/metrics"
	"github.com/angelcm/ghl-stats-go/internal/utils"
)

type fieldDetail struct {
	Message string `json:"message"`
	Rule    string `json:"rule"`
}

type errBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func NewRouter(log *slog.Logger, dir *directory.Directory, eng *aggregate.Engine) http.Handler {
	mux := chi.NewRouter()
	mux.Use(utils.RequestID)
	mux.Use(utils.Logger(log))
	mux.Use(utils.Metrics)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	mux.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ready")) })
	mux.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	mux.Get("/locations", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, dir.List())
	})

	mux.Get("/stats/{location}", func(w http.ResponseWriter, r *http.Request) {
		window, details := parseWindow(r.URL.Query(), time.Now().UTC())
		if len(details) > 0 {
			writeJSON(w, http.StatusBadRequest, errBody{Error: "Invalid date range", Details: details})
			return
		}
		res, err := eng.ComputeOne(r.Context(), chi.URLParam(r, "location"), window)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	mux.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		sel := strings.TrimSpace(q.Get("locations"))
		if sel == "" {
			writeJSON(w, http.StatusBadRequest, errBody{
				Error:   "Invalid selection",
				Details: map[string]fieldDetail{"locations": {Message: "locations is required (slugs or \"all\")", Rule: "required"}},
			})
			return
		}
		window, details := parseWindow(q, time.Now().UTC())
		if len(details) > 0 {
			writeJSON(w, http.StatusBadRequest, errBody{Error: "Invalid date range", Details: details})
			return
		}
		var slugs []string
		for _, s := range strings.Split(sel, ",") {
			if s = strings.TrimSpace(s); s != "" {
				slugs = append(slugs, s)
			}
		}
		res, err := eng.ComputeMany(r.Context(), slugs, window)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	return mux
}

// parseWindow resolves the caller's date range server-side: both dates absent
// means the default trailing-30-day window; a half pair or an unparseable
// date is a field-level validation error.
func parseWindow(q url.Values, now time.Time) (classify.Window, map[string]fieldDetail) {
	start, end := q.Get("startDate"), q.Get("endDate")
	if start == "" && end == "" {
		return aggregate.DefaultWindow(now), nil
	}
	details := make(map[string]fieldDetail)
	if start == "" {
		details["startDate"] = fieldDetail{Message: "startDate is required when endDate is set", Rule: "required"}
	}
	if end == "" {
		details["endDate"] = fieldDetail{Message: "endDate is required when startDate is set", Rule: "required"}
	}
	if len(details) > 0 {
		return classify.Window{}, details
	}
	st, err := aggregate.ParseDay(start)
	if err != nil {
		details["startDate"] = fieldDetail{Message: "must be a YYYY-MM-DD date", Rule: "date"}
	}
	et, err := aggregate.ParseDay(end)
	if err != nil {
		details["endDate"] = fieldDetail{Message: "must be a YYYY-MM-DD date", Rule: "date"}
	}
	if len(details) > 0 {
		return classify.Window{}, details
	}
	if st.After(et) {
		details["startDate"] = fieldDetail{Message: "must not be after endDate", Rule: "range"}
		return classify.Window{}, details
	}
	return aggregate.WindowBetween(st, et), nil
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, aggregate.ErrNotConfigured):
		writeJSON(w, http.StatusNotFound, errBody{Error: "Location not found"})
	case errors.Is(err, aggregate.ErrEmptySelection):
		writeJSON(w, http.StatusBadRequest, errBody{
			Error:   "Invalid selection",
			Details: map[string]fieldDetail{"locations": {Message: "no known locations in selection", Rule: "known"}},
		})
	default:
		writeJSON(w, http.StatusInternalServerError, errBody{
			Error:   "Upstream CRM failure",
			Details: map[string]string{"reason": err.Error()},
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	enc.Encode(v)
}
