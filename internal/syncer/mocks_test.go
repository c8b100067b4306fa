package syncer_test

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/the-data-sherpa/vanguard-sub000/internal/domain"
	"github.com/the-data-sherpa/vanguard-sub000/internal/feed"
	"github.com/the-data-sherpa/vanguard-sub000/internal/syncer"
)

// --- mocks ---

// mockStore is an in-memory persistence gateway with optional failure
// injection per operation.
type mockStore struct {
	mu        sync.Mutex
	incidents map[string]*domain.Incident     // tenant|external id
	alerts    map[string]*domain.WeatherAlert // tenant|nws id
	groups    map[string]*domain.IncidentGroup

	failUpsertIncident error
	failUpsertAlert    error

	markedPosted []string // nws ids
}

func newMockStore() *mockStore {
	return &mockStore{
		incidents: make(map[string]*domain.Incident),
		alerts:    make(map[string]*domain.WeatherAlert),
		groups:    make(map[string]*domain.IncidentGroup),
	}
}

func key2(a, b string) string { return a + "|" + b }

func (m *mockStore) IncidentByExternalID(_ context.Context, tenantID, externalID string) (*domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[key2(tenantID, externalID)]
	if !ok {
		return nil, nil
	}
	cp := *inc
	return &cp, nil
}

func (m *mockStore) UpsertIncident(_ context.Context, inc *domain.Incident) error {
	if m.failUpsertIncident != nil {
		return m.failUpsertIncident
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *inc
	m.incidents[key2(inc.TenantID, inc.ExternalID)] = &cp
	return nil
}

func (m *mockStore) GroupByMergeKey(_ context.Context, tenantID, mergeKey string) (*domain.IncidentGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[key2(tenantID, mergeKey)]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (m *mockStore) CreateGroup(_ context.Context, g *domain.IncidentGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *g
	m.groups[key2(g.TenantID, g.MergeKey)] = &cp
	return nil
}

func (m *mockStore) AssignGroup(_ context.Context, tenantID string, incidentIDs []uuid.UUID, groupID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[uuid.UUID]bool, len(incidentIDs))
	for _, id := range incidentIDs {
		want[id] = true
	}
	for _, inc := range m.incidents {
		if inc.TenantID == tenantID && want[inc.ID] {
			gid := groupID
			inc.GroupID = &gid
		}
	}
	return nil
}

func (m *mockStore) UngroupedMatches(_ context.Context, tenantID, normalizedAddress, callType string, from, to time.Time) ([]*domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Incident
	for _, inc := range m.incidents {
		if inc.TenantID != tenantID || inc.GroupID != nil {
			continue
		}
		if inc.NormalizedAddress != normalizedAddress || !strings.EqualFold(inc.CallType, callType) {
			continue
		}
		if inc.CallReceivedTime.Before(from) || inc.CallReceivedTime.After(to) {
			continue
		}
		cp := *inc
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out, nil
}

func (m *mockStore) AlertByNWSID(_ context.Context, tenantID, nwsID string) (*domain.WeatherAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[key2(tenantID, nwsID)]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *mockStore) UpsertAlert(_ context.Context, a *domain.WeatherAlert) error {
	if m.failUpsertAlert != nil {
		return m.failUpsertAlert
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.alerts[key2(a.TenantID, a.NWSID)] = &cp
	return nil
}

func (m *mockStore) ActiveAlerts(_ context.Context, tenantID string) ([]*domain.WeatherAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.WeatherAlert
	for _, a := range m.alerts {
		if a.TenantID == tenantID && a.Status == domain.AlertActive {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NWSID < out[j].NWSID })
	return out, nil
}

func (m *mockStore) MarkAlertPosted(_ context.Context, tenantID, nwsID, postID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[key2(tenantID, nwsID)]
	if ok {
		ts := at
		a.LastFacebookPostTime = &ts
		a.FacebookPostID = postID
	}
	m.markedPosted = append(m.markedPosted, nwsID)
	return nil
}

func (m *mockStore) ExpireAlertsPast(_ context.Context, tenantID string, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, a := range m.alerts {
		if a.TenantID == tenantID && a.Status == domain.AlertActive && a.PastExpiry(now) {
			a.Status = domain.AlertExpired
			n++
		}
	}
	return n, nil
}

func (m *mockStore) incidentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.incidents)
}

func (m *mockStore) storedIncident(tenantID, externalID string) *domain.Incident {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[key2(tenantID, externalID)]
	if !ok {
		return nil
	}
	cp := *inc
	return &cp
}

func (m *mockStore) storedAlert(tenantID, nwsID string) *domain.WeatherAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[key2(tenantID, nwsID)]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

type mockTenants struct {
	tenants []domain.TenantConfig
	err     error
	calls   atomic.Int64
}

func (m *mockTenants) EligibleTenants(context.Context) ([]domain.TenantConfig, error) {
	m.calls.Add(1)
	return m.tenants, m.err
}

// mockDispatch serves canned records per agency and errors for agencies in
// failing.
type mockDispatch struct {
	mu      sync.Mutex
	records map[string][]feed.Record
	failing map[string]error
	legends map[string]map[string]string
	fetches []string
}

func (m *mockDispatch) FetchIncidents(_ context.Context, agencyID string) ([]feed.Record, error) {
	m.mu.Lock()
	m.fetches = append(m.fetches, agencyID)
	m.mu.Unlock()
	if err, ok := m.failing[agencyID]; ok {
		return nil, err
	}
	return m.records[agencyID], nil
}

func (m *mockDispatch) FetchUnitLegend(_ context.Context, agencyID string) (map[string]string, error) {
	return m.legends[agencyID], nil
}

type mockAlertFeed struct {
	alerts []*domain.WeatherAlert
	err    error
}

func (m *mockAlertFeed) FetchAlerts(context.Context, []string) ([]*domain.WeatherAlert, error) {
	return m.alerts, m.err
}

type mockPublisher struct {
	mu     sync.Mutex
	posted []string // nws ids
	err    error
}

func (m *mockPublisher) PublishAlert(_ context.Context, a *domain.WeatherAlert) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posted = append(m.posted, a.NWSID)
	return "post-" + a.NWSID, nil
}

type mockEvents struct {
	mu     sync.Mutex
	events []syncer.SyncEvent
}

func (m *mockEvents) PublishSyncEvent(_ context.Context, ev syncer.SyncEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *mockEvents) byKind(kind string) []syncer.SyncEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []syncer.SyncEvent
	for _, ev := range m.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// openLocker always grants the lock.
type openLocker struct{}

func (openLocker) Acquire(context.Context, string, string) (func(), syncer.SkipReason, bool) {
	return func() {}, syncer.SkipNone, true
}

// deniedLocker always refuses with a fixed reason.
type deniedLocker struct{ reason syncer.SkipReason }

func (l deniedLocker) Acquire(context.Context, string, string) (func(), syncer.SkipReason, bool) {
	return nil, l.reason, false
}
