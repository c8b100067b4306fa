package syncer

import (
	"context"
	"fmt"

	"github.com/the-data-sherpa/vanguard-sub000/internal/domain"
)

// SyncTenantWeather runs one weather sync for a tenant: fetch active alerts
// for its zones, upsert them, expire whatever fell past its end time, and
// run the posting decision for the tenant when posting is enabled.
func (s *Syncer) SyncTenantWeather(ctx context.Context, tenant domain.TenantConfig) WeatherSyncResult {
	res := WeatherSyncResult{TenantID: tenant.ID}
	if !tenant.WeatherSyncEnabled || len(tenant.ZoneCodes) == 0 {
		return res
	}

	release, reason, ok := s.locks.Acquire(ctx, tenant.ID, "weather")
	if !ok {
		res.SkipReason = reason
		s.metrics.LockSkips.WithLabelValues(string(reason)).Inc()
		s.logger.Debug("weather sync skipped", "tenant", tenant.ID, "reason", reason)
		return res
	}
	defer release()

	alerts, err := s.alerts.FetchAlerts(ctx, tenant.ZoneCodes)
	if err != nil {
		res.Err = fmt.Sprintf("fetch alerts: %v", err)
		s.metrics.SyncErrors.WithLabelValues("tenant").Inc()
		s.logger.Error("weather fetch failed", "tenant", tenant.ID, "error", err)
		return res
	}

	for _, a := range alerts {
		if err := a.Validate(); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("alert %s: %v", a.NWSID, err))
			s.logger.Warn("alert rejected", "tenant", tenant.ID, "nws_id", a.NWSID, "error", err)
			continue
		}
		if err := s.persistAlert(ctx, tenant.ID, a, &res); err != nil {
			res.Err = err.Error()
			s.metrics.SyncErrors.WithLabelValues("persistence").Inc()
			s.logger.Error("weather sync aborted", "tenant", tenant.ID, "error", err)
			return res
		}
	}

	expired, err := s.store.ExpireAlertsPast(ctx, tenant.ID, s.clock.Now())
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("expire alerts: %v", err))
		s.logger.Warn("alert expiry sweep failed", "tenant", tenant.ID, "error", err)
	}
	res.Expired = int(expired)

	if s.publisher != nil && tenant.WeatherPostingEnabled {
		s.postEligibleAlerts(ctx, tenant, &res)
	}

	s.logger.Info("weather sync finished",
		"tenant", tenant.ID,
		"created", res.Created, "updated", res.Updated,
		"expired", res.Expired, "posted", res.Posted)

	s.publishEvent(ctx, SyncEvent{Kind: "weather", TenantID: tenant.ID, At: s.clock.Now(),
		Created: res.Created, Updated: res.Updated,
		Expired: res.Expired, Posted: res.Posted, Errors: res.Errors})
	return res
}

func (s *Syncer) persistAlert(ctx context.Context, tenantID string, a *domain.WeatherAlert, res *WeatherSyncResult) error {
	now := s.clock.Now()
	a.TenantID = tenantID

	stored, err := s.store.AlertByNWSID(ctx, tenantID, a.NWSID)
	if err != nil {
		return fmt.Errorf("lookup alert %s: %w", a.NWSID, err)
	}

	if stored == nil {
		a.Status = domain.AlertActive
		a.CreatedAt = now
		a.UpdatedAt = now
		if err := s.store.UpsertAlert(ctx, a); err != nil {
			return fmt.Errorf("create alert %s: %w", a.NWSID, err)
		}
		res.Created++
		s.metrics.RecordsProcessed.WithLabelValues("alert", "created").Inc()
		return nil
	}

	if stored.Status != domain.AlertActive {
		// active→expired/cancelled is one-way; a late resend of a closed
		// alert must not resurrect it.
		s.logger.Warn("resend of non-active alert ignored",
			"tenant", tenantID, "nws_id", a.NWSID, "status", stored.Status)
		return nil
	}

	// A feed-side reissue refreshes content and timing; posting history
	// stays with the stored row.
	stored.Event = a.Event
	stored.Headline = a.Headline
	stored.Description = a.Description
	stored.Instruction = a.Instruction
	stored.Severity = a.Severity
	stored.Urgency = a.Urgency
	stored.Certainty = a.Certainty
	stored.Onset = a.Onset
	stored.Expires = a.Expires
	stored.Ends = a.Ends
	stored.AffectedZones = a.AffectedZones
	stored.UpdatedAt = now
	if err := s.store.UpsertAlert(ctx, stored); err != nil {
		return fmt.Errorf("update alert %s: %w", a.NWSID, err)
	}
	res.Updated++
	s.metrics.RecordsProcessed.WithLabelValues("alert", "updated").Inc()
	return nil
}

// postEligibleAlerts evaluates every active alert for the tenant and posts
// the ones that clear the threat threshold. A publish failure is recorded
// but does not stop the remaining alerts.
func (s *Syncer) postEligibleAlerts(ctx context.Context, tenant domain.TenantConfig, res *WeatherSyncResult) {
	active, err := s.store.ActiveAlerts(ctx, tenant.ID)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("list active alerts: %v", err))
		s.logger.Warn("active alert listing failed", "tenant", tenant.ID, "error", err)
		return
	}

	now := s.clock.Now()
	for _, a := range active {
		decision := domain.EvaluateForPosting(a, tenant.PostThreshold, now)
		if !decision.ShouldPost {
			s.logger.Debug("alert not posted", "tenant", tenant.ID, "nws_id", a.NWSID,
				"score", decision.Score, "reason", decision.Reason)
			continue
		}

		postID, err := s.publisher.PublishAlert(ctx, a)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("post alert %s: %v", a.NWSID, err))
			s.metrics.SyncErrors.WithLabelValues("publish").Inc()
			s.logger.Error("alert post failed", "tenant", tenant.ID, "nws_id", a.NWSID, "error", err)
			continue
		}
		if err := s.store.MarkAlertPosted(ctx, tenant.ID, a.NWSID, postID, now); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("mark alert %s posted: %v", a.NWSID, err))
			s.logger.Error("alert post bookkeeping failed", "tenant", tenant.ID, "nws_id", a.NWSID, "error", err)
			continue
		}
		res.Posted++
		s.metrics.AlertsPosted.Inc()
		s.logger.Info("alert posted", "tenant", tenant.ID, "nws_id", a.NWSID,
			"event", a.Event, "score", decision.Score, "reason", decision.Reason, "post_id", postID)
	}
}
