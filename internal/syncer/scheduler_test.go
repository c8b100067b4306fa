package syncer_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-data-sherpa/vanguard-sub000/internal/domain"
	"github.com/the-data-sherpa/vanguard-sub000/internal/observability"
	"github.com/the-data-sherpa/vanguard-sub000/internal/syncer"
)

type mockMaintenance struct {
	mu sync.Mutex

	closeCalls  int
	closeCutoff time.Time

	archiveCalls int
	deleteIncidentCalls,
	deleteAlertCalls,
	deleteGroupCalls,
	expireCalls int
}

func (m *mockMaintenance) CloseStaleIncidents(_ context.Context, cutoff, _ time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	m.closeCutoff = cutoff
	return 3, nil
}

func (m *mockMaintenance) ArchiveClosedIncidents(context.Context, time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.archiveCalls++
	return 0, nil
}

func (m *mockMaintenance) DeleteArchivedIncidents(context.Context, time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteIncidentCalls++
	return 0, nil
}

func (m *mockMaintenance) DeleteExpiredAlerts(context.Context, time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteAlertCalls++
	return 0, nil
}

func (m *mockMaintenance) DeleteEmptyGroups(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteGroupCalls++
	return 0, nil
}

func (m *mockMaintenance) ExpireAllAlertsPast(context.Context, time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireCalls++
	return 0, nil
}

func (m *mockMaintenance) snapshot() mockMaintenance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return mockMaintenance{
		closeCalls:          m.closeCalls,
		closeCutoff:         m.closeCutoff,
		archiveCalls:        m.archiveCalls,
		deleteIncidentCalls: m.deleteIncidentCalls,
		deleteAlertCalls:    m.deleteAlertCalls,
		deleteGroupCalls:    m.deleteGroupCalls,
		expireCalls:         m.expireCalls,
	}
}

func TestRunTick_AllTenantsSynced(t *testing.T) {
	f := newFixture(nil, syncer.Options{TenantBatchSize: 2})
	f.tenants.tenants = []domain.TenantConfig{
		testTenant("tenant-a", "agency-1"),
		testTenant("tenant-b", "agency-2"),
		testTenant("tenant-c", "agency-3"),
	}

	res := f.syncer.RunTick(context.Background())

	assert.Len(t, res.Incident, 3)
	assert.Len(t, res.Weather, 3)
	assert.Empty(t, res.Errors)
}

func TestRunTick_TenantListingFailure(t *testing.T) {
	f := newFixture(nil, syncer.Options{})
	f.tenants.err = assert.AnError

	res := f.syncer.RunTick(context.Background())

	require.Len(t, res.Errors, 1)
	assert.Empty(t, res.Incident)
}

func TestScheduler_RunsAllCadencesOnStart(t *testing.T) {
	f := newFixture(nil, syncer.Options{})
	maint := &mockMaintenance{}
	sched := syncer.NewScheduler(f.syncer, maint, slog.Default(),
		observability.NewMetricsForTesting(), f.clock, syncer.SchedulerOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { sched.Run(ctx); close(done) }()

	// All three loops tick once immediately, then wait on their tickers.
	f.clock.BlockUntil(3)

	snap := maint.snapshot()
	assert.Equal(t, 1, snap.closeCalls)
	assert.Equal(t, 1, snap.expireCalls)
	assert.Equal(t, 1, snap.archiveCalls)
	assert.Equal(t, 1, snap.deleteGroupCalls)
	assert.EqualValues(t, 1, f.tenants.calls.Load())

	// The staleness cutoff is the default two hours behind the tick time.
	assert.True(t, snap.closeCutoff.Equal(syncNow.Add(-2*time.Hour)))

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

func TestScheduler_FastCadenceRepeats(t *testing.T) {
	f := newFixture(nil, syncer.Options{})
	maint := &mockMaintenance{}
	sched := syncer.NewScheduler(f.syncer, maint, slog.Default(),
		observability.NewMetricsForTesting(), f.clock, syncer.SchedulerOptions{
			FastInterval:   2 * time.Minute,
			MediumInterval: time.Hour,
			DailyInterval:  24 * time.Hour,
		})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { sched.Run(ctx); close(done) }()

	f.clock.BlockUntil(3)
	require.EqualValues(t, 1, f.tenants.calls.Load())

	f.clock.Advance(2 * time.Minute)
	require.Eventually(t, func() bool { return f.tenants.calls.Load() >= 2 },
		2*time.Second, 10*time.Millisecond)

	// The medium and daily cadences did not fire from a fast advance.
	snap := maint.snapshot()
	assert.Equal(t, 1, snap.closeCalls)
	assert.Equal(t, 1, snap.archiveCalls)

	cancel()
	<-done
}
