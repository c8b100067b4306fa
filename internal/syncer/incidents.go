package syncer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/the-data-sherpa/vanguard-sub000/internal/domain"
	"github.com/the-data-sherpa/vanguard-sub000/internal/feed"
)

type agencyFetch struct {
	agencyID string
	records  []feed.Record
	err      error
}

// SyncTenantIncidents runs one incident sync for a tenant: fetch every
// agency feed in parallel, normalize, filter by recency, cap the batch,
// detect changes, attach merge groups, and persist.
func (s *Syncer) SyncTenantIncidents(ctx context.Context, tenant domain.TenantConfig) IncidentSyncResult {
	res := IncidentSyncResult{TenantID: tenant.ID}
	if !tenant.IncidentSyncEnabled || len(tenant.AgencyIDs) == 0 {
		return res
	}

	release, reason, ok := s.locks.Acquire(ctx, tenant.ID, "incidents")
	if !ok {
		res.SkipReason = reason
		s.metrics.LockSkips.WithLabelValues(string(reason)).Inc()
		s.logger.Debug("incident sync skipped", "tenant", tenant.ID, "reason", reason)
		return res
	}
	defer release()

	fetches := s.fetchAgencies(ctx, tenant.AgencyIDs)

	var records []tenantRecord
	for _, f := range fetches {
		if f.err != nil {
			res.Errors = append(res.Errors, AgencyError{AgencyID: f.agencyID, Reason: f.err.Error()})
			s.metrics.SyncErrors.WithLabelValues("agency").Inc()
			s.logger.Warn("agency fetch failed", "tenant", tenant.ID, "agency", f.agencyID, "error", f.err)
			continue
		}
		for _, rec := range f.records {
			records = append(records, tenantRecord{agencyID: f.agencyID, rec: rec})
		}
	}

	incidents := s.normalizeRecords(tenant.ID, records, &res)
	incidents = s.applyRecencyAndCap(incidents, &res)

	for _, inc := range incidents {
		if err := s.persistIncident(ctx, tenant.ID, inc, &res); err != nil {
			res.Err = err.Error()
			s.metrics.SyncErrors.WithLabelValues("persistence").Inc()
			s.logger.Error("incident sync aborted", "tenant", tenant.ID, "error", err)
			break
		}
	}

	s.logger.Info("incident sync finished",
		"tenant", tenant.ID,
		"created", res.Created, "updated", res.Updated,
		"skipped", res.Skipped, "dropped", res.Dropped,
		"agency_errors", len(res.Errors))

	ev := SyncEvent{Kind: "incidents", TenantID: tenant.ID, At: s.clock.Now(),
		Created: res.Created, Updated: res.Updated, Skipped: res.Skipped}
	for _, ae := range res.Errors {
		ev.Errors = append(ev.Errors, fmt.Sprintf("%s: %s", ae.AgencyID, ae.Reason))
	}
	s.publishEvent(ctx, ev)
	return res
}

type tenantRecord struct {
	agencyID string
	rec      feed.Record
}

// fetchAgencies fans out one fetch per agency and waits for all of them.
// The unit legend is refreshed alongside each feed so the client cache
// stays warm for display consumers.
func (s *Syncer) fetchAgencies(ctx context.Context, agencyIDs []string) []agencyFetch {
	fetches := make([]agencyFetch, len(agencyIDs))
	var wg sync.WaitGroup
	for i, agencyID := range agencyIDs {
		wg.Add(1)
		go func(i int, agencyID string) {
			defer wg.Done()
			recs, err := s.dispatch.FetchIncidents(ctx, agencyID)
			fetches[i] = agencyFetch{agencyID: agencyID, records: recs, err: err}
			if err != nil {
				return
			}
			legend, lerr := s.dispatch.FetchUnitLegend(ctx, agencyID)
			if lerr != nil {
				s.logger.Debug("unit legend fetch failed", "agency", agencyID, "error", lerr)
				return
			}
			s.logger.Debug("unit legend refreshed", "agency", agencyID, "entries", len(legend))
		}(i, agencyID)
	}
	wg.Wait()
	return fetches
}

func (s *Syncer) normalizeRecords(tenantID string, records []tenantRecord, res *IncidentSyncResult) []*domain.Incident {
	out := make([]*domain.Incident, 0, len(records))
	for _, tr := range records {
		inc, err := feed.NormalizeIncident(tenantID, tr.rec)
		if err != nil {
			res.Dropped++
			s.logger.Warn("record rejected", "tenant", tenantID, "agency", tr.agencyID, "error", err)
			continue
		}
		out = append(out, inc)
	}
	return out
}

// applyRecencyAndCap drops incidents received before the recency horizon,
// then keeps the newest MaxRecordsPerTick of what remains.
func (s *Syncer) applyRecencyAndCap(incidents []*domain.Incident, res *IncidentSyncResult) []*domain.Incident {
	cutoff := s.clock.Now().Add(-s.opts.RecencyHorizon)
	recent := incidents[:0]
	for _, inc := range incidents {
		if inc.CallReceivedTime.Before(cutoff) {
			res.Dropped++
			continue
		}
		recent = append(recent, inc)
	}
	if len(recent) <= s.opts.MaxRecordsPerTick {
		return recent
	}
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].CallReceivedTime.After(recent[j].CallReceivedTime)
	})
	res.Dropped += len(recent) - s.opts.MaxRecordsPerTick
	return recent[:s.opts.MaxRecordsPerTick]
}

func (s *Syncer) persistIncident(ctx context.Context, tenantID string, inc *domain.Incident, res *IncidentSyncResult) error {
	stored, err := s.store.IncidentByExternalID(ctx, tenantID, inc.ExternalID)
	if err != nil {
		return fmt.Errorf("lookup incident %s: %w", inc.ExternalID, err)
	}

	if stored == nil {
		if err := s.attachGroup(ctx, tenantID, inc); err != nil {
			return fmt.Errorf("group incident %s: %w", inc.ExternalID, err)
		}
		now := s.clock.Now()
		inc.CreatedAt = now
		inc.UpdatedAt = now
		if err := s.store.UpsertIncident(ctx, inc); err != nil {
			return fmt.Errorf("create incident %s: %w", inc.ExternalID, err)
		}
		res.Created++
		s.metrics.RecordsProcessed.WithLabelValues("incident", "created").Inc()
		return nil
	}

	if !domain.IncidentChanged(stored, inc) {
		res.Skipped++
		s.metrics.RecordsProcessed.WithLabelValues("incident", "skipped").Inc()
		return nil
	}

	now := s.clock.Now()
	merged := s.mergeIntoStored(stored, inc, now)
	merged.UpdatedAt = now
	if err := s.store.UpsertIncident(ctx, merged); err != nil {
		return fmt.Errorf("update incident %s: %w", inc.ExternalID, err)
	}
	res.Updated++
	s.metrics.RecordsProcessed.WithLabelValues("incident", "updated").Inc()
	return nil
}

// mergeIntoStored applies the incoming feed state onto the stored incident,
// preserving identity, grouping, and creation metadata. A status change is
// applied only when the transition table allows it.
func (s *Syncer) mergeIntoStored(stored, incoming *domain.Incident, now time.Time) *domain.Incident {
	out := *stored
	out.CallType = incoming.CallType
	out.Category = incoming.Category
	out.FullAddress = incoming.FullAddress
	out.NormalizedAddress = incoming.NormalizedAddress
	out.Geo = incoming.Geo
	out.Units = incoming.Units
	out.UnitStatuses = incoming.UnitStatuses
	if incoming.CallClosedTime != nil {
		out.CallClosedTime = incoming.CallClosedTime
	}
	if incoming.Status != stored.Status {
		at := now
		if incoming.CallClosedTime != nil {
			at = *incoming.CallClosedTime
		}
		// Transitions are one-way; the feed cannot re-open a closed call.
		if err := out.TransitionTo(incoming.Status, at); err != nil {
			s.logger.Warn("status transition rejected",
				"tenant", stored.TenantID, "external_id", stored.ExternalID,
				"from", stored.Status, "to", incoming.Status, "error", err)
		}
	}
	return &out
}

// attachGroup links a new incident to an existing merge group when one
// covers its window, or forms a new group when another ungrouped incident
// shares the merge key window.
func (s *Syncer) attachGroup(ctx context.Context, tenantID string, inc *domain.Incident) error {
	key := domain.MergeKeyFor(inc.NormalizedAddress, inc.CallType, inc.CallReceivedTime)

	g, err := s.store.GroupByMergeKey(ctx, tenantID, key)
	if err != nil {
		return err
	}
	if g != nil {
		inc.GroupID = &g.ID
		return nil
	}

	from := inc.CallReceivedTime.Add(-domain.MergeWindow)
	to := inc.CallReceivedTime.Add(domain.MergeWindow)
	matches, err := s.store.UngroupedMatches(ctx, tenantID, inc.NormalizedAddress, inc.CallType, from, to)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return nil
	}

	g = domain.NewGroupFor(inc, "duplicate call window")
	if err := s.store.CreateGroup(ctx, g); err != nil {
		return err
	}
	s.metrics.GroupsCreated.Inc()

	ids := make([]uuid.UUID, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}
	if err := s.store.AssignGroup(ctx, tenantID, ids, g.ID); err != nil {
		return err
	}
	inc.GroupID = &g.ID
	s.logger.Info("merge group created", "tenant", tenantID, "merge_key", g.MergeKey, "members", len(matches)+1)
	return nil
}
