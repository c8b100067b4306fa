package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MergeWindow is the span of one deduplication bucket. Incidents at the
// same normalized address with the same call type whose received times fall
// within this window are judged to be one real-world event.
const MergeWindow = 10 * time.Minute

// IncidentGroup clusters incidents that represent one real-world event.
// A group is created lazily the first time two ungrouped incidents match;
// later matches attach by reference. Retention maintenance deletes a group
// once no incident references it.
type IncidentGroup struct {
	ID          uuid.UUID
	TenantID    string
	MergeKey    string
	WindowStart time.Time
	WindowEnd   time.Time
	MergeReason string
	CreatedAt   time.Time
}

// MergeKeyFor derives the deduplication key for an incident. The 10-minute
// floor is always computed from the incident's own received time. This is
// the only implementation of the derivation; the persisted-group path and
// the read-time collapse both call it.
func MergeKeyFor(normalizedAddress, callType string, received time.Time) string {
	floor := received.UTC().Truncate(MergeWindow)
	return fmt.Sprintf("%s|%s|%s", normalizedAddress, strings.ToLower(callType), floor.Format(time.RFC3339))
}

// MergeWindowFor returns the [start, end) bucket containing the received time.
func MergeWindowFor(received time.Time) (time.Time, time.Time) {
	start := received.UTC().Truncate(MergeWindow)
	return start, start.Add(MergeWindow)
}

// WithinMergeWindow reports whether two received times are close enough to
// merge, i.e. at most MergeWindow apart in either direction.
func WithinMergeWindow(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= MergeWindow
}

// NewGroupFor builds a persisted group from the first incident judged to
// have duplicates. The window is anchored at the incident's own bucket.
func NewGroupFor(inc *Incident, reason string) *IncidentGroup {
	start, end := MergeWindowFor(inc.CallReceivedTime)
	return &IncidentGroup{
		ID:          uuid.New(),
		TenantID:    inc.TenantID,
		MergeKey:    MergeKeyFor(inc.NormalizedAddress, inc.CallType, inc.CallReceivedTime),
		WindowStart: start,
		WindowEnd:   end,
		MergeReason: reason,
		CreatedAt:   clock.Now().UTC(),
	}
}

// CollapseIncidents folds a listing down to one representative per group
// for presentation. Records sharing a persisted GroupID always collapse
// together; ungrouped records are re-bucketed ad hoc with the same merge
// key derivation so the listing stays coherent before a group is persisted.
// Ad-hoc bucketing never overrides a persisted GroupID.
//
// The representative is the member with the earliest received time,
// carrying the union of all members' units and, per unit, the most recently
// timestamped status entry across the whole group.
func CollapseIncidents(incidents []*Incident) []*Incident {
	buckets := make(map[string][]*Incident)
	order := make([]string, 0, len(incidents))

	for _, inc := range incidents {
		var key string
		if inc.GroupID != nil {
			key = "group:" + inc.GroupID.String()
		} else {
			key = "adhoc:" + MergeKeyFor(inc.NormalizedAddress, inc.CallType, inc.CallReceivedTime)
		}
		if _, seen := buckets[key]; !seen {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], inc)
	}

	out := make([]*Incident, 0, len(order))
	for _, key := range order {
		out = append(out, mergeMembers(buckets[key]))
	}
	return out
}

// mergeMembers builds the representative incident for one bucket.
func mergeMembers(members []*Incident) *Incident {
	primary := members[0]
	for _, m := range members[1:] {
		if m.CallReceivedTime.Before(primary.CallReceivedTime) {
			primary = m
		}
	}
	if len(members) == 1 {
		return primary
	}

	rep := *primary

	unitSet := make(map[string]struct{})
	statusByUnit := make(map[string]UnitStatus)
	for _, m := range members {
		for _, u := range m.Units {
			unitSet[u] = struct{}{}
		}
		for _, us := range m.UnitStatuses {
			prev, ok := statusByUnit[us.Unit]
			if !ok {
				statusByUnit[us.Unit] = us
				continue
			}
			_, prevAt := prev.LatestStage()
			_, curAt := us.LatestStage()
			if curAt.After(prevAt) {
				statusByUnit[us.Unit] = us
			}
		}
	}

	rep.Units = make([]string, 0, len(unitSet))
	for u := range unitSet {
		rep.Units = append(rep.Units, u)
	}
	sort.Strings(rep.Units)

	rep.UnitStatuses = make([]UnitStatus, 0, len(statusByUnit))
	for _, u := range rep.Units {
		if us, ok := statusByUnit[u]; ok {
			rep.UnitStatuses = append(rep.UnitStatuses, us)
		}
	}
	return &rep
}
