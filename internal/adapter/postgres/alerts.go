package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/the-data-sherpa/vanguard-sub000/internal/domain"
)

const alertColumns = `
	id, tenant_id, nws_id, event, headline, description, instruction,
	severity, urgency, certainty, onset, expires, ends, affected_zones,
	status, last_facebook_post_time, facebook_post_id, created_at, updated_at`

func (s *Store) AlertByNWSID(ctx context.Context, tenantID, nwsID string) (*domain.WeatherAlert, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+alertColumns+`
		FROM weather_alerts WHERE tenant_id = $1 AND nws_id = $2`,
		tenantID, nwsID)
	a, err := scanAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (s *Store) UpsertAlert(ctx context.Context, a *domain.WeatherAlert) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO weather_alerts (`+alertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (tenant_id, nws_id) DO UPDATE SET
			event = EXCLUDED.event,
			headline = EXCLUDED.headline,
			description = EXCLUDED.description,
			instruction = EXCLUDED.instruction,
			severity = EXCLUDED.severity,
			urgency = EXCLUDED.urgency,
			certainty = EXCLUDED.certainty,
			onset = EXCLUDED.onset,
			expires = EXCLUDED.expires,
			ends = EXCLUDED.ends,
			affected_zones = EXCLUDED.affected_zones,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`,
		a.ID, a.TenantID, a.NWSID, a.Event, a.Headline, a.Description, a.Instruction,
		string(a.Severity), string(a.Urgency), string(a.Certainty),
		a.Onset, a.Expires, a.Ends, a.AffectedZones,
		string(a.Status), a.LastFacebookPostTime, a.FacebookPostID, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert alert %s: %w", a.NWSID, err)
	}
	return nil
}

func (s *Store) ActiveAlerts(ctx context.Context, tenantID string) ([]*domain.WeatherAlert, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+alertColumns+`
		FROM weather_alerts WHERE tenant_id = $1 AND status = $2
		ORDER BY created_at`,
		tenantID, string(domain.AlertActive))
	if err != nil {
		return nil, fmt.Errorf("query active alerts: %w", err)
	}
	defer rows.Close()

	var out []*domain.WeatherAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) MarkAlertPosted(ctx context.Context, tenantID, nwsID, postID string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE weather_alerts
		SET last_facebook_post_time = $1, facebook_post_id = $2, updated_at = $1
		WHERE tenant_id = $3 AND nws_id = $4`,
		at, postID, tenantID, nwsID)
	if err != nil {
		return fmt.Errorf("mark alert posted: %w", err)
	}
	return nil
}

// ExpireAlertsPast expires one tenant's active alerts whose end has passed.
// Expires wins over ends when both are set, matching the in-memory rule.
func (s *Store) ExpireAlertsPast(ctx context.Context, tenantID string, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE weather_alerts SET status = $1, updated_at = $2
		WHERE tenant_id = $3 AND status = $4 AND COALESCE(expires, ends) < $2`,
		string(domain.AlertExpired), now, tenantID, string(domain.AlertActive))
	if err != nil {
		return 0, fmt.Errorf("expire alerts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ExpireAllAlertsPast is the cross-tenant sweep the medium cadence runs.
func (s *Store) ExpireAllAlertsPast(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE weather_alerts SET status = $1, updated_at = $2
		WHERE status = $3 AND COALESCE(expires, ends) < $2`,
		string(domain.AlertExpired), now, string(domain.AlertActive))
	if err != nil {
		return 0, fmt.Errorf("expire alerts: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) DeleteExpiredAlerts(ctx context.Context, updatedBefore time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM weather_alerts
		WHERE status = ANY($1) AND updated_at < $2`,
		[]string{string(domain.AlertExpired), string(domain.AlertCancelled)}, updatedBefore)
	if err != nil {
		return 0, fmt.Errorf("delete expired alerts: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanAlert(row pgx.Row) (*domain.WeatherAlert, error) {
	var (
		a                            domain.WeatherAlert
		severity, urgency, certainty string
		status                       string
	)
	err := row.Scan(
		&a.ID, &a.TenantID, &a.NWSID, &a.Event, &a.Headline, &a.Description, &a.Instruction,
		&severity, &urgency, &certainty, &a.Onset, &a.Expires, &a.Ends, &a.AffectedZones,
		&status, &a.LastFacebookPostTime, &a.FacebookPostID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Severity = domain.AlertSeverity(severity)
	a.Urgency = domain.AlertUrgency(urgency)
	a.Certainty = domain.AlertCertainty(certainty)
	a.Status = domain.AlertStatus(status)
	return &a, nil
}
