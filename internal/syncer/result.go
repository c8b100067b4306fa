package syncer

import "time"

// AgencyError records a per-agency fetch failure inside an otherwise
// successful tenant sync.
type AgencyError struct {
	AgencyID string
	Reason   string
}

// IncidentSyncResult summarizes one tenant's incident sync. SkipReason is
// set when the tick never fetched (lock held or rate limited); Err is set
// only on a tenant-level failure such as a persistence error.
type IncidentSyncResult struct {
	TenantID   string
	SkipReason SkipReason
	Created    int
	Updated    int
	Skipped    int // unchanged records
	Dropped    int // outside recency horizon or over the per-tick cap
	Errors     []AgencyError
	Err        string
}

// Success reports whether the tenant sync itself completed. Per-agency
// errors do not fail the sync.
func (r IncidentSyncResult) Success() bool { return r.Err == "" }

// WeatherSyncResult summarizes one tenant's weather sync.
type WeatherSyncResult struct {
	TenantID   string
	SkipReason SkipReason
	Created    int
	Updated    int
	Expired    int
	Posted     int
	Errors     []string
	Err        string
}

func (r WeatherSyncResult) Success() bool { return r.Err == "" }

// TickResult aggregates one fast-cadence pass over all eligible tenants.
type TickResult struct {
	Start    time.Time
	Duration time.Duration
	Incident []IncidentSyncResult
	Weather  []WeatherSyncResult
	Errors   []string // tick-level failures, e.g. listing tenants
}

// MaintenanceResult summarizes a staleness sweep or retention pass.
type MaintenanceResult struct {
	Start            time.Time
	Duration         time.Duration
	ClosedStale      int64
	ArchivedClosed   int64
	DeletedIncidents int64
	DeletedAlerts    int64
	DeletedGroups    int64
	ExpiredAlerts    int64
	Errors           []string
}
