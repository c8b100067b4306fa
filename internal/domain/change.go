package domain

import (
	"sort"
	"time"
)

// IncidentChanged reports whether a freshly normalized incoming record
// differs meaningfully from the stored incident, i.e. whether a write is
// warranted. Sync ticks run every couple of minutes across all tenants and
// most active incidents are unchanged between ticks, so skipping no-op
// writes is the dominant efficiency lever.
//
// A change is any of: unit-set membership, a unit's latest stage or the
// timestamp of that stage, the normalized address, or the open/closed state
// including the close time. A single unit advancing (e.g. dispatched ->
// on-scene) while everything else is identical is the most common real
// update and is always detected.
func IncidentChanged(stored, incoming *Incident) bool {
	if stored == nil || incoming == nil {
		return stored != incoming
	}

	if stored.NormalizedAddress != incoming.NormalizedAddress {
		return true
	}
	if stored.CallType != incoming.CallType {
		return true
	}
	if stored.Status != incoming.Status {
		return true
	}
	if !timePtrEqual(stored.CallClosedTime, incoming.CallClosedTime) {
		return true
	}
	if !unitSetEqual(stored.Units, incoming.Units) {
		return true
	}
	return unitStatusesChanged(stored.UnitStatuses, incoming.UnitStatuses)
}

func unitSetEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func unitStatusesChanged(stored, incoming []UnitStatus) bool {
	if len(stored) != len(incoming) {
		return true
	}
	byUnit := make(map[string]UnitStatus, len(stored))
	for _, u := range stored {
		byUnit[u.Unit] = u
	}
	for _, in := range incoming {
		prev, ok := byUnit[in.Unit]
		if !ok {
			return true
		}
		prevStage, prevAt := prev.LatestStage()
		inStage, inAt := in.LatestStage()
		if prevStage != inStage || !prevAt.Equal(inAt) {
			return true
		}
	}
	return false
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
