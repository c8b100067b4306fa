// Package nws fetches active alerts from the National Weather Service
// public API.
package nws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/the-data-sherpa/vanguard-sub000/internal/domain"
	"github.com/the-data-sherpa/vanguard-sub000/internal/observability"
)

// DefaultBaseURL is the production NWS API endpoint.
const DefaultBaseURL = "https://api.weather.gov"

// Client implements the weather alert feed against api.weather.gov.
type Client struct {
	baseURL    string
	userAgent  string // the NWS API requires an identifying User-Agent
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

func NewClient(baseURL, userAgent string, timeout time.Duration,
	logger *slog.Logger, metrics *observability.Metrics) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:   baseURL,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:  logger,
		metrics: metrics,
	}
}

// FetchAlerts returns the active alerts covering the given zone codes.
func (c *Client) FetchAlerts(ctx context.Context, zones []string) ([]*domain.WeatherAlert, error) {
	if len(zones) == 0 {
		return nil, nil
	}

	params := url.Values{"zone": {strings.Join(zones, ",")}}
	u := fmt.Sprintf("%s/alerts/active?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.FetchRequests.WithLabelValues("weather", "error").Inc()
		return nil, fmt.Errorf("alerts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.FetchRequests.WithLabelValues("weather", "error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("NWS API error: status %d: %s", resp.StatusCode, body)
	}

	var payload alertsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.metrics.FetchRequests.WithLabelValues("weather", "error").Inc()
		return nil, fmt.Errorf("decode alerts: %w", err)
	}
	c.metrics.FetchRequests.WithLabelValues("weather", "primary").Inc()

	alerts := make([]*domain.WeatherAlert, 0, len(payload.Features))
	for _, f := range payload.Features {
		a := f.Properties.toAlert()
		if a.NWSID == "" {
			c.logger.Warn("alert feature without id skipped", "event", f.Properties.Event)
			continue
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// NWS GeoJSON response types. Only the fields the sync consumes.

type alertsResponse struct {
	Features []alertFeature `json:"features"`
}

type alertFeature struct {
	Properties alertProperties `json:"properties"`
}

type alertProperties struct {
	ID          string     `json:"id"`
	Event       string     `json:"event"`
	Headline    string     `json:"headline"`
	Description string     `json:"description"`
	Instruction string     `json:"instruction"`
	Severity    string     `json:"severity"`
	Urgency     string     `json:"urgency"`
	Certainty   string     `json:"certainty"`
	Onset       *time.Time `json:"onset"`
	Expires     *time.Time `json:"expires"`
	Ends        *time.Time `json:"ends"`
	Geocode     struct {
		UGC []string `json:"UGC"`
	} `json:"geocode"`
}

func (p alertProperties) toAlert() *domain.WeatherAlert {
	return &domain.WeatherAlert{
		NWSID:         p.ID,
		Event:         p.Event,
		Headline:      p.Headline,
		Description:   p.Description,
		Instruction:   p.Instruction,
		Severity:      domain.ParseSeverity(p.Severity),
		Urgency:       domain.ParseUrgency(p.Urgency),
		Certainty:     domain.ParseCertainty(p.Certainty),
		Onset:         p.Onset,
		Expires:       p.Expires,
		Ends:          p.Ends,
		AffectedZones: p.Geocode.UGC,
		Status:        domain.AlertActive,
	}
}
