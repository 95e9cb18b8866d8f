// Package directory resolves location slugs to CRM credentials and
// identifiers. It is built once at startup and immutable afterwards; a
// restart is required to pick up credential changes.
package directory

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/angelcm/ghl-stats-go/internal/config"
	"github.com/angelcm/ghl-stats-go/internal/crm"
)

// PipelineNames is the fixed whitelist of logical pipelines served per
// location. A CRM pipeline joins a location's config when its display name
// contains one of these.
var PipelineNames = []string{"youth", "adult", "leagues"}

// StageNames are the pipeline stages whose ids are captured for the
// stage-based classification strategy.
var StageNames = []string{"lead", "appointment", "show", "no-show", "cold"}

type SubAccountRef struct {
	ID   string
	Name string
}

type PipelineRef struct {
	Name     string            // logical name: youth, adult or leagues
	ID       string            // CRM pipeline id
	StageIDs map[string]string // normalized stage name -> CRM stage id
}

type CalendarRef struct {
	Name string
	ID   string
}

// LocationConfig is one fully resolved location. A location missing its
// sub-account id or API key never enters the directory.
type LocationConfig struct {
	Slug         string
	DisplayName  string
	SubAccountID string
	APIKey       string
	Pipelines    []PipelineRef
	Calendars    []CalendarRef
}

// LocationInfo is the public, secret-free projection served by /locations.
type LocationInfo struct {
	Slug        string `json:"slug"`
	DisplayName string `json:"displayName"`
}

// MetadataClient is the slice of the CRM client the directory needs at build
// time.
type MetadataClient interface {
	SubAccounts(ctx context.Context, agencyKey string) ([]crm.SubAccount, error)
	Pipelines(ctx context.Context, apiKey string) ([]crm.Pipeline, error)
}

type Directory struct {
	bySlug map[string]LocationConfig
	order  []string
}

// Build merges the remote sub-account list with the local credential rows,
// then discovers each matched location's pipelines with its own scoped key.
// A missing agency credential or unreadable credential file is fatal; an
// unmatched or undiscoverable row is dropped with a warning.
func Build(ctx context.Context, cfg config.Config, client MetadataClient, log *slog.Logger) (*Directory, error) {
	subs, err := client.SubAccounts(ctx, cfg.AgencyAPIKey)
	if err != nil {
		return nil, fmt.Errorf("sub-account listing: %w", err)
	}
	remotes := make([]SubAccountRef, 0, len(subs))
	for _, s := range subs {
		remotes = append(remotes, SubAccountRef{ID: s.ID, Name: s.Name})
	}

	rows, err := readCredentials(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("credentials file: %w", err)
	}

	d := &Directory{bySlug: make(map[string]LocationConfig)}
	for _, row := range rows {
		remote, ok := MatchSubAccount(row.Name, remotes)
		if !ok {
			log.Warn("credential row has no matching sub-account", slog.String("name", row.Name))
			continue
		}
		slug := Slugify(row.Name)
		if _, dup := d.bySlug[slug]; dup {
			log.Warn("duplicate location slug, row dropped", slog.String("slug", slug))
			continue
		}
		pipelines, err := discoverPipelines(ctx, client, row.APIKey)
		if err != nil {
			log.Warn("pipeline discovery failed, location dropped",
				slog.String("slug", slug), slog.String("err", err.Error()))
			continue
		}
		d.bySlug[slug] = LocationConfig{
			Slug:         slug,
			DisplayName:  row.Name,
			SubAccountID: remote.ID,
			APIKey:       row.APIKey,
			Pipelines:    pipelines,
			Calendars:    row.Calendars,
		}
		d.order = append(d.order, slug)
	}
	log.Info("directory built",
		slog.Int("locations", len(d.order)),
		slog.Int("credential_rows", len(rows)),
		slog.Int("sub_accounts", len(remotes)))
	return d, nil
}

// FromConfigs builds a directory from pre-resolved configs. Tests use this to
// fabricate directories without any network calls.
func FromConfigs(configs ...LocationConfig) *Directory {
	d := &Directory{bySlug: make(map[string]LocationConfig)}
	for _, c := range configs {
		if _, dup := d.bySlug[c.Slug]; dup {
			continue
		}
		d.bySlug[c.Slug] = c
		d.order = append(d.order, c.Slug)
	}
	return d
}

func (d *Directory) Resolve(slug string) (LocationConfig, bool) {
	c, ok := d.bySlug[strings.ToLower(strings.TrimSpace(slug))]
	return c, ok
}

func (d *Directory) List() []LocationInfo {
	out := make([]LocationInfo, 0, len(d.order))
	for _, slug := range d.order {
		c := d.bySlug[slug]
		out = append(out, LocationInfo{Slug: c.Slug, DisplayName: c.DisplayName})
	}
	return out
}

func (d *Directory) Slugs() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

func discoverPipelines(ctx context.Context, client MetadataClient, apiKey string) ([]PipelineRef, error) {
	pipelines, err := client.Pipelines(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	var refs []PipelineRef
	for _, logical := range PipelineNames {
		for _, p := range pipelines {
			if !strings.Contains(strings.ToLower(p.Name), logical) {
				continue
			}
			ref := PipelineRef{Name: logical, ID: p.ID, StageIDs: make(map[string]string)}
			for _, st := range p.Stages {
				n := normStageName(st.Name)
				for _, want := range StageNames {
					if n == want {
						ref.StageIDs[want] = st.ID
					}
				}
			}
			refs = append(refs, ref)
			break
		}
	}
	return refs, nil
}

// normStageName folds "No Show" / "no_show" / "No-Show" to "no-show".
func normStageName(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	})
	return strings.Join(fields, "-")
}

type credentialRow struct {
	Name      string
	APIKey    string
	Calendars []CalendarRef
}

// readCredentials parses the local tabular credential source. Columns:
// display name, api key, optional calendars ("logical:calendarId;..."). A
// header row starting with "name" is skipped; rows missing a name or key are
// dropped (a location is fully keyed or not served at all).
func readCredentials(path string) ([]credentialRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	var rows []credentialRow
	for i, rec := range records {
		if len(rec) < 2 {
			continue
		}
		name := strings.TrimSpace(rec[0])
		key := strings.TrimSpace(rec[1])
		if i == 0 && strings.EqualFold(name, "name") {
			continue
		}
		if name == "" || key == "" {
			continue
		}
		row := credentialRow{Name: name, APIKey: key}
		if len(rec) > 2 {
			row.Calendars = parseCalendars(rec[2])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseCalendars(s string) []CalendarRef {
	var out []CalendarRef
	for _, part := range strings.Split(s, ";") {
		name, id, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok || name == "" || id == "" {
			continue
		}
		out = append(out, CalendarRef{Name: strings.ToLower(strings.TrimSpace(name)), ID: strings.TrimSpace(id)})
	}
	return out
}
