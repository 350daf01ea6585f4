/*
provider.go - Time-tracking provider API client

PURPOSE:
  Fetches timesheet entries from the provider's timeTracking.list endpoint
  over an OAuth2-authenticated HTTP client. Everything loosely typed stops
  here: provider items are validated into engine.TimesheetEntry (nested
  user reference flattened, duration checked) before crossing into the
  engine.

AUTHORIZATION FLOW:
  1. Operator authorizes the integration in the provider's UI and obtains
     a short-lived authorization code.
  2. Credentials.TokenSource exchanges the code for an access token via
     golang.org/x/oauth2. A pre-issued token can be supplied instead.
  3. The token source backs the HTTP client for all API calls.

  Credentials are an explicit struct passed at construction - never
  package-level state.

WINDOW FILTERING:
  The request asks the provider for entries started after window start and
  ended before window end, sorted ascending by start time. Provider-side
  filters do not reliably intersect, so entries are re-filtered locally
  against the requested window before being returned.
*/
package timesheet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/warp/payout-engine/engine"
)

// Credentials configures provider access. AccessToken short-circuits the
// code exchange when a valid token is already held.
type Credentials struct {
	ClientID     string
	ClientSecret string
	AuthCode     string
	AccessToken  string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
}

// TokenSource builds the oauth2 token source for these credentials,
// performing the authorization-code exchange when no token is supplied.
func (c Credentials) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	if c.AccessToken != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.AccessToken}), nil
	}

	conf := &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.AuthURL,
			TokenURL: c.TokenURL,
		},
	}
	tok, err := conf.Exchange(ctx, c.AuthCode)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return conf.TokenSource(ctx, tok), nil
}

// ProviderClient implements Client against the provider's HTTP API.
type ProviderClient struct {
	baseURL string
	client  *http.Client
}

// NewProviderClient builds a client for the API at baseURL, authenticated
// by the given token source.
func NewProviderClient(ctx context.Context, baseURL string, ts oauth2.TokenSource) *ProviderClient {
	return &ProviderClient{
		baseURL: baseURL,
		client:  oauth2.NewClient(ctx, ts),
	}
}

// Wire types. The provider nests the worker reference under "user"; the
// boundary flattens it.
type listRequest struct {
	Filter listFilter `json:"filter"`
	Sort   []sortSpec `json:"sort"`
}

type listFilter struct {
	StartedAfter string `json:"started_after"`
	EndedBefore  string `json:"ended_before"`
}

type sortSpec struct {
	Field string `json:"field"`
	Order string `json:"order"`
}

type listResponse struct {
	Data []providerEntry `json:"data"`
}

type providerEntry struct {
	User struct {
		ID string `json:"id"`
	} `json:"user"`
	Duration  int64     `json:"duration"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// ListTimesheets fetches entries for [start, end). Entries the provider
// returns outside the window are dropped here; malformed items (missing
// worker, negative duration) fail the fetch rather than leak into the
// engine.
func (p *ProviderClient) ListTimesheets(ctx context.Context, start, end time.Time) ([]engine.TimesheetEntry, error) {
	body, err := json.Marshal(listRequest{
		Filter: listFilter{
			StartedAfter: start.Format(time.RFC3339),
			EndedBefore:  end.Format(time.RFC3339),
		},
		Sort: []sortSpec{{Field: "started_on", Order: "asc"}},
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/timeTracking.list", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("timeTracking.list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("timeTracking.list: status %d", resp.StatusCode)
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, fmt.Errorf("decode timeTracking.list: %w", err)
	}

	entries := make([]engine.TimesheetEntry, 0, len(lr.Data))
	dropped := 0
	for i, item := range lr.Data {
		entry, err := validate(item)
		if err != nil {
			return nil, fmt.Errorf("timesheet item %d: %w", i, err)
		}
		// Provider-side window filters do not reliably intersect;
		// enforce the window here.
		if entry.StartedAt.Before(start) || entry.EndedAt.After(end) {
			dropped++
			continue
		}
		entries = append(entries, entry)
	}
	if dropped > 0 {
		log.Printf("[timesheet] dropped %d entries outside window %s - %s",
			dropped, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return entries, nil
}

func validate(item providerEntry) (engine.TimesheetEntry, error) {
	if item.User.ID == "" {
		return engine.TimesheetEntry{}, fmt.Errorf("missing user id")
	}
	if item.Duration < 0 {
		return engine.TimesheetEntry{}, fmt.Errorf("negative duration %d", item.Duration)
	}
	return engine.TimesheetEntry{
		WorkerID:  engine.WorkerID(item.User.ID),
		Duration:  item.Duration,
		StartedAt: item.StartedAt,
		EndedAt:   item.EndedAt,
	}, nil
}
