// Package syncer orchestrates per-tenant polling of the dispatch and
// weather feeds: fan-out across a tenant's agencies, normalization, change
// detection, dedup/merge, bounded-concurrency batching across tenants, and
// the weather auto-posting flow. Failures are caught at the smallest
// independently-failing unit (per agency, per record, per tenant) and
// converted into result values; no failure in one unit blocks an unrelated
// tenant or source.
package syncer

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/the-data-sherpa/vanguard-sub000/internal/domain"
	"github.com/the-data-sherpa/vanguard-sub000/internal/feed"
	"github.com/the-data-sherpa/vanguard-sub000/internal/observability"
)

// IncidentStore is the incident side of the persistence gateway.
type IncidentStore interface {
	// IncidentByExternalID returns (nil, nil) when no record exists.
	IncidentByExternalID(ctx context.Context, tenantID, externalID string) (*domain.Incident, error)
	UpsertIncident(ctx context.Context, inc *domain.Incident) error

	// GroupByMergeKey returns (nil, nil) when no group exists.
	GroupByMergeKey(ctx context.Context, tenantID, mergeKey string) (*domain.IncidentGroup, error)
	CreateGroup(ctx context.Context, g *domain.IncidentGroup) error
	AssignGroup(ctx context.Context, tenantID string, incidentIDs []uuid.UUID, groupID uuid.UUID) error
	// UngroupedMatches returns ungrouped incidents at the same normalized
	// address with the same (lowercased) call type received in [from, to].
	UngroupedMatches(ctx context.Context, tenantID, normalizedAddress, callType string, from, to time.Time) ([]*domain.Incident, error)
}

// AlertStore is the weather-alert side of the persistence gateway.
type AlertStore interface {
	// AlertByNWSID returns (nil, nil) when no record exists.
	AlertByNWSID(ctx context.Context, tenantID, nwsID string) (*domain.WeatherAlert, error)
	UpsertAlert(ctx context.Context, a *domain.WeatherAlert) error
	ActiveAlerts(ctx context.Context, tenantID string) ([]*domain.WeatherAlert, error)
	MarkAlertPosted(ctx context.Context, tenantID, nwsID, postID string, at time.Time) error
	// ExpireAlertsPast moves active alerts whose expiry is behind now to
	// expired, returning how many changed.
	ExpireAlertsPast(ctx context.Context, tenantID string, now time.Time) (int64, error)
}

// Store is the full persistence gateway the syncer consumes.
type Store interface {
	IncidentStore
	AlertStore
}

// TenantSource supplies per-tenant configuration from the tenant-management
// collaborator.
type TenantSource interface {
	EligibleTenants(ctx context.Context) ([]domain.TenantConfig, error)
}

// DispatchFeed fetches and decrypts the vendor incident feed for one
// agency, trying the primary endpoint then the fallback.
type DispatchFeed interface {
	FetchIncidents(ctx context.Context, agencyID string) ([]feed.Record, error)
	// FetchUnitLegend returns (nil, nil) for agencies without a legend.
	FetchUnitLegend(ctx context.Context, agencyID string) (map[string]string, error)
}

// AlertFeed fetches active weather alerts for a set of zone codes.
type AlertFeed interface {
	FetchAlerts(ctx context.Context, zones []string) ([]*domain.WeatherAlert, error)
}

// SocialPublisher posts a formatted alert message and returns the
// collaborator's opaque post id.
type SocialPublisher interface {
	PublishAlert(ctx context.Context, a *domain.WeatherAlert) (string, error)
}

// SyncEvent is the summary published after each completed tenant sync.
type SyncEvent struct {
	Kind     string    `json:"kind"` // "incidents" or "weather"
	TenantID string    `json:"tenant_id"`
	At       time.Time `json:"at"`
	Created  int       `json:"created"`
	Updated  int       `json:"updated"`
	Skipped  int       `json:"skipped"`
	Expired  int       `json:"expired,omitempty"`
	Posted   int       `json:"posted,omitempty"`
	Errors   []string  `json:"errors,omitempty"`
}

// EventPublisher receives sync-result summaries. Publishing is best-effort;
// a failure is logged, never surfaced into the sync result.
type EventPublisher interface {
	PublishSyncEvent(ctx context.Context, ev SyncEvent) error
}

// Options bound the per-tick work.
type Options struct {
	RecencyHorizon    time.Duration // discard incidents older than this
	MaxRecordsPerTick int           // cap on records processed per tenant tick
	TenantBatchSize   int           // bounded concurrency across tenants
	PostThreshold     int           // default weather posting threshold
}

func (o Options) withDefaults() Options {
	if o.RecencyHorizon <= 0 {
		o.RecencyHorizon = 6 * time.Hour
	}
	if o.MaxRecordsPerTick <= 0 {
		o.MaxRecordsPerTick = 200
	}
	if o.TenantBatchSize <= 0 {
		o.TenantBatchSize = 5
	}
	if o.PostThreshold <= 0 {
		o.PostThreshold = domain.DefaultPostThreshold
	}
	return o
}

// Syncer drives the incident and weather sync paths.
type Syncer struct {
	store     Store
	tenants   TenantSource
	dispatch  DispatchFeed
	alerts    AlertFeed
	publisher SocialPublisher // nil disables posting
	events    EventPublisher  // nil disables result events
	locks     FetchLocker
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock
	opts      Options
}

// New creates a Syncer. publisher and events may be nil to disable the
// corresponding outbound paths.
func New(store Store, tenants TenantSource, dispatch DispatchFeed, alerts AlertFeed,
	publisher SocialPublisher, events EventPublisher, locks FetchLocker,
	logger *slog.Logger, metrics *observability.Metrics, clk clockwork.Clock, opts Options) *Syncer {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Syncer{
		store:     store,
		tenants:   tenants,
		dispatch:  dispatch,
		alerts:    alerts,
		publisher: publisher,
		events:    events,
		locks:     locks,
		logger:    logger,
		metrics:   metrics,
		clock:     clk,
		opts:      opts.withDefaults(),
	}
}

func (s *Syncer) publishEvent(ctx context.Context, ev SyncEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishSyncEvent(ctx, ev); err != nil {
		s.logger.Warn("publish sync event failed", "kind", ev.Kind, "tenant", ev.TenantID, "error", err)
		s.metrics.SyncErrors.WithLabelValues("publish").Inc()
	}
}
