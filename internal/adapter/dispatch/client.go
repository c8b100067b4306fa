// Package dispatch fetches the encrypted vendor CAD feed over HTTP and
// opens it into raw incident records. Every fetch tries the primary
// endpoint first and falls back to the secondary when the primary fails
// in any way, including serving an envelope that will not decrypt.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/the-data-sherpa/vanguard-sub000/internal/feed"
	"github.com/the-data-sherpa/vanguard-sub000/internal/observability"
)

// legendTTL bounds how long a cached unit legend is served without a
// refetch. Legends change rarely.
const legendTTL = time.Hour

// Client fetches per-agency incident feeds and unit legends.
type Client struct {
	primaryURL  string
	fallbackURL string // empty disables the fallback
	password    string
	httpClient  *http.Client
	logger      *slog.Logger
	metrics     *observability.Metrics
	clock       clockwork.Clock

	mu      sync.Mutex
	legends map[string]legendEntry
}

type legendEntry struct {
	legend    map[string]string
	fetchedAt time.Time
}

// NewClient creates a dispatch feed client. fallbackURL may be empty.
func NewClient(primaryURL, fallbackURL, password string, timeout time.Duration,
	logger *slog.Logger, metrics *observability.Metrics, clk clockwork.Clock) *Client {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Client{
		primaryURL:  primaryURL,
		fallbackURL: fallbackURL,
		password:    password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:  logger,
		metrics: metrics,
		clock:   clk,
		legends: make(map[string]legendEntry),
	}
}

// FetchIncidents downloads, decrypts, and decodes one agency's feed.
func (c *Client) FetchIncidents(ctx context.Context, agencyID string) ([]feed.Record, error) {
	payload, err := c.fetchOpened(ctx, "incidents", agencyID)
	if err != nil {
		return nil, err
	}
	records, err := feed.Records(payload)
	if err != nil {
		return nil, fmt.Errorf("agency %s: %w", agencyID, err)
	}
	return records, nil
}

// FetchUnitLegend returns the agency's unit-code legend, or (nil, nil) for
// agencies that do not publish one. Results are cached for legendTTL.
func (c *Client) FetchUnitLegend(ctx context.Context, agencyID string) (map[string]string, error) {
	c.mu.Lock()
	cached, ok := c.legends[agencyID]
	c.mu.Unlock()
	if ok && c.clock.Now().Sub(cached.fetchedAt) < legendTTL {
		return cached.legend, nil
	}

	payload, err := c.fetchOpened(ctx, "legend", agencyID)
	if err != nil {
		if errNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	legend, err := legendFrom(payload)
	if err != nil {
		return nil, fmt.Errorf("agency %s: %w", agencyID, err)
	}

	c.mu.Lock()
	c.legends[agencyID] = legendEntry{legend: legend, fetchedAt: c.clock.Now()}
	c.mu.Unlock()
	return legend, nil
}

// fetchOpened downloads an envelope from the primary endpoint, falling back
// to the secondary, and opens it.
func (c *Client) fetchOpened(ctx context.Context, resource, agencyID string) (any, error) {
	payload, primaryErr := c.fetchFrom(ctx, c.primaryURL, resource, agencyID)
	if primaryErr == nil {
		c.metrics.FetchRequests.WithLabelValues(sourceLabel(resource), "primary").Inc()
		return payload, nil
	}
	// A 404 is authoritative only for legends, which some agencies never
	// publish. For incidents it is a failure like any other.
	if (resource == "legend" && errNotFound(primaryErr)) || c.fallbackURL == "" {
		c.metrics.FetchRequests.WithLabelValues(sourceLabel(resource), "error").Inc()
		return nil, primaryErr
	}

	c.logger.Warn("primary feed endpoint failed, trying fallback",
		"agency", agencyID, "resource", resource, "error", primaryErr)

	payload, fallbackErr := c.fetchFrom(ctx, c.fallbackURL, resource, agencyID)
	if fallbackErr != nil {
		c.metrics.FetchRequests.WithLabelValues(sourceLabel(resource), "error").Inc()
		return nil, fmt.Errorf("primary: %v; fallback: %w", primaryErr, fallbackErr)
	}
	c.metrics.FetchRequests.WithLabelValues(sourceLabel(resource), "fallback").Inc()
	return payload, nil
}

func (c *Client) fetchFrom(ctx context.Context, baseURL, resource, agencyID string) (any, error) {
	u := fmt.Sprintf("%s/%s?%s", baseURL, resource, url.Values{"agency": {agencyID}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &notFoundError{resource: resource, agencyID: agencyID}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("feed API error: status %d: %s", resp.StatusCode, body)
	}

	var env feed.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	payload, err := feed.Open(env, c.password)
	if err != nil {
		return nil, fmt.Errorf("open envelope: %w", err)
	}
	return payload, nil
}

// legendFrom coerces the opened legend payload into a code-to-description
// map.
func legendFrom(payload any) (map[string]string, error) {
	m, ok := payload.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("legend payload is %T, want object", payload)
	}
	if inner, ok := m["legend"].(map[string]any); ok {
		m = inner
	}
	out := make(map[string]string, len(m))
	for code, v := range m {
		if s, ok := v.(string); ok {
			out[code] = s
		}
	}
	return out, nil
}

func sourceLabel(resource string) string {
	if resource == "legend" {
		return "legend"
	}
	return "dispatch"
}

type notFoundError struct {
	resource string
	agencyID string
}

func (e *notFoundError) Error() string {
	return fmt.Sprintf("%s for agency %s not found", e.resource, e.agencyID)
}

func errNotFound(err error) bool {
	var nf *notFoundError
	return errors.As(err, &nf)
}
