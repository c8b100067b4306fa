package syncer_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-data-sherpa/vanguard-sub000/internal/domain"
	"github.com/the-data-sherpa/vanguard-sub000/internal/feed"
	"github.com/the-data-sherpa/vanguard-sub000/internal/observability"
	"github.com/the-data-sherpa/vanguard-sub000/internal/syncer"
)

var syncNow = time.Date(2026, 3, 14, 10, 7, 0, 0, time.UTC)

type fixture struct {
	store     *mockStore
	tenants   *mockTenants
	dispatch  *mockDispatch
	alerts    *mockAlertFeed
	publisher *mockPublisher
	events    *mockEvents
	clock     *clockwork.FakeClock
	syncer    *syncer.Syncer
}

func newFixture(locker syncer.FetchLocker, opts syncer.Options) *fixture {
	f := &fixture{
		store:     newMockStore(),
		tenants:   &mockTenants{},
		dispatch:  &mockDispatch{records: make(map[string][]feed.Record), failing: make(map[string]error)},
		alerts:    &mockAlertFeed{},
		publisher: &mockPublisher{},
		events:    &mockEvents{},
		clock:     clockwork.NewFakeClockAt(syncNow),
	}
	if locker == nil {
		locker = openLocker{}
	}
	f.syncer = syncer.New(f.store, f.tenants, f.dispatch, f.alerts, f.publisher, f.events,
		locker, slog.Default(), observability.NewMetricsForTesting(), f.clock, opts)
	return f
}

func testTenant(id string, agencies ...string) domain.TenantConfig {
	return domain.TenantConfig{
		ID:                    id,
		Name:                  id,
		AgencyIDs:             agencies,
		ZoneCodes:             []string{"NCZ041"},
		IncidentSyncEnabled:   true,
		WeatherSyncEnabled:    true,
		WeatherPostingEnabled: true,
	}
}

func feedRecord(id, callType, address string, received time.Time) feed.Record {
	return feed.Record{
		"incident_id":        id,
		"call_type":          callType,
		"address":            address,
		"call_received_time": received.Format(time.RFC3339),
		"units":              []any{"E1"},
	}
}

func TestSyncTenantIncidents_CreatesFromMultipleAgencies(t *testing.T) {
	f := newFixture(nil, syncer.Options{})
	f.dispatch.records["agency-1"] = []feed.Record{
		feedRecord("CAD-1", "STRUF", "123 Main Street", syncNow.Add(-10*time.Minute)),
	}
	f.dispatch.records["agency-2"] = []feed.Record{
		feedRecord("CAD-2", "EMS", "9 Oak Avenue", syncNow.Add(-5*time.Minute)),
	}

	res := f.syncer.SyncTenantIncidents(context.Background(), testTenant("tenant-a", "agency-1", "agency-2"))

	require.True(t, res.Success())
	assert.Equal(t, 2, res.Created)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 2, f.store.incidentCount())

	stored := f.store.storedIncident("tenant-a", "CAD-1")
	require.NotNil(t, stored)
	assert.Equal(t, "123 main st", stored.NormalizedAddress)
	assert.Equal(t, domain.CategoryFire, stored.Category)
	assert.Equal(t, domain.IncidentActive, stored.Status)

	events := f.events.byKind("incidents")
	require.Len(t, events, 1)
	assert.Equal(t, 2, events[0].Created)
}

func TestSyncTenantIncidents_AgencyFailureDoesNotBlockOthers(t *testing.T) {
	f := newFixture(nil, syncer.Options{})
	f.dispatch.failing["agency-1"] = errors.New("connection refused")
	f.dispatch.records["agency-2"] = []feed.Record{
		feedRecord("CAD-2", "MVA", "Interstate 40", syncNow.Add(-time.Minute)),
	}

	res := f.syncer.SyncTenantIncidents(context.Background(), testTenant("tenant-a", "agency-1", "agency-2"))

	assert.True(t, res.Success())
	assert.Equal(t, 1, res.Created)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "agency-1", res.Errors[0].AgencyID)
	assert.NotNil(t, f.store.storedIncident("tenant-a", "CAD-2"))
}

func TestSyncTenantIncidents_UnchangedRecordSkipped(t *testing.T) {
	f := newFixture(nil, syncer.Options{})
	rec := feedRecord("CAD-1", "STRUF", "123 Main Street", syncNow.Add(-10*time.Minute))
	f.dispatch.records["agency-1"] = []feed.Record{rec}
	tenant := testTenant("tenant-a", "agency-1")

	first := f.syncer.SyncTenantIncidents(context.Background(), tenant)
	require.Equal(t, 1, first.Created)

	second := f.syncer.SyncTenantIncidents(context.Background(), tenant)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 1, second.Skipped)
}

func TestSyncTenantIncidents_UnitProgressUpdates(t *testing.T) {
	f := newFixture(nil, syncer.Options{})
	tenant := testTenant("tenant-a", "agency-1")
	received := syncNow.Add(-10 * time.Minute)

	rec := feedRecord("CAD-1", "STRUF", "123 Main Street", received)
	rec["unit_statuses"] = []any{
		map[string]any{"unit": "E1", "dispatched": received.Format(time.RFC3339)},
	}
	f.dispatch.records["agency-1"] = []feed.Record{rec}
	require.Equal(t, 1, f.syncer.SyncTenantIncidents(context.Background(), tenant).Created)

	rec["unit_statuses"] = []any{
		map[string]any{
			"unit":       "E1",
			"dispatched": received.Format(time.RFC3339),
			"on_scene":   received.Add(6 * time.Minute).Format(time.RFC3339),
		},
	}
	res := f.syncer.SyncTenantIncidents(context.Background(), tenant)
	assert.Equal(t, 1, res.Updated)

	stored := f.store.storedIncident("tenant-a", "CAD-1")
	require.NotNil(t, stored)
	stage, _ := stored.UnitStatuses[0].LatestStage()
	assert.Equal(t, domain.StageOnScene, stage)
}

func TestSyncTenantIncidents_CloseTransition(t *testing.T) {
	f := newFixture(nil, syncer.Options{})
	tenant := testTenant("tenant-a", "agency-1")
	received := syncNow.Add(-30 * time.Minute)

	f.dispatch.records["agency-1"] = []feed.Record{feedRecord("CAD-1", "EMS", "9 Oak Avenue", received)}
	require.Equal(t, 1, f.syncer.SyncTenantIncidents(context.Background(), tenant).Created)

	closedAt := syncNow.Add(-2 * time.Minute)
	rec := feedRecord("CAD-1", "EMS", "9 Oak Avenue", received)
	rec["call_closed_time"] = closedAt.Format(time.RFC3339)
	f.dispatch.records["agency-1"] = []feed.Record{rec}

	res := f.syncer.SyncTenantIncidents(context.Background(), tenant)
	assert.Equal(t, 1, res.Updated)

	stored := f.store.storedIncident("tenant-a", "CAD-1")
	require.NotNil(t, stored)
	assert.Equal(t, domain.IncidentClosed, stored.Status)
	require.NotNil(t, stored.CallClosedTime)
	assert.True(t, stored.CallClosedTime.Equal(closedAt))
}

func TestSyncTenantIncidents_ReopenAttemptKeepsIncidentClosed(t *testing.T) {
	f := newFixture(nil, syncer.Options{})
	tenant := testTenant("tenant-a", "agency-1")
	received := syncNow.Add(-30 * time.Minute)

	closedAt := syncNow.Add(-5 * time.Minute)
	rec := feedRecord("CAD-1", "EMS", "9 Oak Avenue", received)
	rec["call_closed_time"] = closedAt.Format(time.RFC3339)
	f.dispatch.records["agency-1"] = []feed.Record{rec}
	require.Equal(t, 1, f.syncer.SyncTenantIncidents(context.Background(), tenant).Created)

	// The feed resends the call without a close time and with a new unit.
	reopened := feedRecord("CAD-1", "EMS", "9 Oak Avenue", received)
	reopened["units"] = []any{"E1", "M3"}
	f.dispatch.records["agency-1"] = []feed.Record{reopened}

	res := f.syncer.SyncTenantIncidents(context.Background(), tenant)
	assert.Equal(t, 1, res.Updated)

	stored := f.store.storedIncident("tenant-a", "CAD-1")
	require.NotNil(t, stored)
	assert.Equal(t, domain.IncidentClosed, stored.Status)
	require.NotNil(t, stored.CallClosedTime)
	assert.ElementsMatch(t, []string{"E1", "M3"}, stored.Units)
}

func TestSyncTenantIncidents_RecencyHorizonAndCap(t *testing.T) {
	f := newFixture(nil, syncer.Options{MaxRecordsPerTick: 1})
	f.dispatch.records["agency-1"] = []feed.Record{
		feedRecord("CAD-old", "EMS", "1 First Street", syncNow.Add(-7*time.Hour)),
		feedRecord("CAD-older", "EMS", "2 Second Street", syncNow.Add(-3*time.Hour)),
		feedRecord("CAD-new", "EMS", "3 Third Street", syncNow.Add(-time.Minute)),
	}

	res := f.syncer.SyncTenantIncidents(context.Background(), testTenant("tenant-a", "agency-1"))

	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 2, res.Dropped)
	assert.NotNil(t, f.store.storedIncident("tenant-a", "CAD-new"))
	assert.Nil(t, f.store.storedIncident("tenant-a", "CAD-old"))
	assert.Nil(t, f.store.storedIncident("tenant-a", "CAD-older"))
}

func TestSyncTenantIncidents_InvalidRecordDropped(t *testing.T) {
	f := newFixture(nil, syncer.Options{})
	f.dispatch.records["agency-1"] = []feed.Record{
		{"call_type": "EMS", "address": "9 Oak Avenue"}, // no id
		feedRecord("CAD-1", "EMS", "9 Oak Avenue", syncNow.Add(-time.Minute)),
	}

	res := f.syncer.SyncTenantIncidents(context.Background(), testTenant("tenant-a", "agency-1"))

	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Dropped)
	assert.True(t, res.Success())
}

func TestSyncTenantIncidents_LockSkip(t *testing.T) {
	f := newFixture(deniedLocker{reason: syncer.SkipRateLimited}, syncer.Options{})
	f.dispatch.records["agency-1"] = []feed.Record{
		feedRecord("CAD-1", "EMS", "9 Oak Avenue", syncNow.Add(-time.Minute)),
	}

	res := f.syncer.SyncTenantIncidents(context.Background(), testTenant("tenant-a", "agency-1"))

	assert.Equal(t, syncer.SkipRateLimited, res.SkipReason)
	assert.Empty(t, f.dispatch.fetches, "a skipped tick must not fetch")
	assert.Equal(t, 0, f.store.incidentCount())
}

func TestSyncTenantIncidents_DuplicateCallsGrouped(t *testing.T) {
	f := newFixture(nil, syncer.Options{})
	received := syncNow.Add(-10 * time.Minute)
	f.dispatch.records["agency-1"] = []feed.Record{
		feedRecord("CAD-1", "STRUF", "123 Main Street", received),
	}
	f.dispatch.records["agency-2"] = []feed.Record{
		feedRecord("CAD-9", "STRUF", "123 Main St.", received.Add(4*time.Minute)),
	}

	res := f.syncer.SyncTenantIncidents(context.Background(), testTenant("tenant-a", "agency-1", "agency-2"))
	require.Equal(t, 2, res.Created)

	a := f.store.storedIncident("tenant-a", "CAD-1")
	b := f.store.storedIncident("tenant-a", "CAD-9")
	require.NotNil(t, a)
	require.NotNil(t, b)
	require.NotNil(t, a.GroupID)
	require.NotNil(t, b.GroupID)
	assert.Equal(t, *a.GroupID, *b.GroupID)
}

func TestSyncTenantIncidents_DistinctAddressesNotGrouped(t *testing.T) {
	f := newFixture(nil, syncer.Options{})
	received := syncNow.Add(-10 * time.Minute)
	f.dispatch.records["agency-1"] = []feed.Record{
		feedRecord("CAD-1", "STRUF", "123 Main Street", received),
		feedRecord("CAD-2", "STRUF", "500 Elm Street", received.Add(time.Minute)),
	}

	res := f.syncer.SyncTenantIncidents(context.Background(), testTenant("tenant-a", "agency-1"))
	require.Equal(t, 2, res.Created)

	assert.Nil(t, f.store.storedIncident("tenant-a", "CAD-1").GroupID)
	assert.Nil(t, f.store.storedIncident("tenant-a", "CAD-2").GroupID)
}

func TestSyncTenantIncidents_CallsOutsideMergeWindowNotGrouped(t *testing.T) {
	f := newFixture(nil, syncer.Options{})
	received := syncNow.Add(-30 * time.Minute)
	// Same address and call type, but 15 minutes apart: past the
	// duplicate-call window, so each keeps its own identity.
	f.dispatch.records["agency-1"] = []feed.Record{
		feedRecord("CAD-1", "STRUF", "123 Main Street", received),
		feedRecord("CAD-2", "STRUF", "123 Main Street", received.Add(15*time.Minute)),
	}

	res := f.syncer.SyncTenantIncidents(context.Background(), testTenant("tenant-a", "agency-1"))
	require.Equal(t, 2, res.Created)

	assert.Nil(t, f.store.storedIncident("tenant-a", "CAD-1").GroupID)
	assert.Nil(t, f.store.storedIncident("tenant-a", "CAD-2").GroupID)
}

func TestSyncTenantIncidents_PersistenceErrorFailsTenant(t *testing.T) {
	f := newFixture(nil, syncer.Options{})
	f.store.failUpsertIncident = errors.New("connection reset")
	f.dispatch.records["agency-1"] = []feed.Record{
		feedRecord("CAD-1", "EMS", "9 Oak Avenue", syncNow.Add(-time.Minute)),
	}

	res := f.syncer.SyncTenantIncidents(context.Background(), testTenant("tenant-a", "agency-1"))

	assert.False(t, res.Success())
	assert.Contains(t, res.Err, "connection reset")
}

func TestSyncTenantIncidents_DisabledTenantDoesNothing(t *testing.T) {
	f := newFixture(nil, syncer.Options{})
	f.dispatch.records["agency-1"] = []feed.Record{
		feedRecord("CAD-1", "EMS", "9 Oak Avenue", syncNow.Add(-time.Minute)),
	}
	tenant := testTenant("tenant-a", "agency-1")
	tenant.IncidentSyncEnabled = false

	res := f.syncer.SyncTenantIncidents(context.Background(), tenant)

	assert.Empty(t, cmp.Diff(syncer.IncidentSyncResult{TenantID: "tenant-a"}, res))
	assert.Empty(t, f.dispatch.fetches)
}
