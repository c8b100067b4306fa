package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/the-data-sherpa/vanguard-sub000/internal/domain"
)

const incidentColumns = `
	id, tenant_id, external_id, source, call_type, category,
	full_address, normalized_address, latitude, longitude,
	units, unit_statuses, status, call_received_time, call_closed_time,
	group_id, created_at, updated_at`

func (s *Store) IncidentByExternalID(ctx context.Context, tenantID, externalID string) (*domain.Incident, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+incidentColumns+`
		FROM incidents WHERE tenant_id = $1 AND external_id = $2`,
		tenantID, externalID)
	inc, err := scanIncident(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return inc, err
}

func (s *Store) UpsertIncident(ctx context.Context, inc *domain.Incident) error {
	statuses, err := json.Marshal(inc.UnitStatuses)
	if err != nil {
		return fmt.Errorf("encode unit statuses: %w", err)
	}

	var lat, lon *float64
	if inc.Geo != nil {
		lat, lon = &inc.Geo.Lat, &inc.Geo.Lon
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO incidents (`+incidentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (tenant_id, external_id) DO UPDATE SET
			call_type = EXCLUDED.call_type,
			category = EXCLUDED.category,
			full_address = EXCLUDED.full_address,
			normalized_address = EXCLUDED.normalized_address,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			units = EXCLUDED.units,
			unit_statuses = EXCLUDED.unit_statuses,
			status = EXCLUDED.status,
			call_closed_time = EXCLUDED.call_closed_time,
			group_id = COALESCE(incidents.group_id, EXCLUDED.group_id),
			updated_at = EXCLUDED.updated_at`,
		inc.ID, inc.TenantID, inc.ExternalID, string(inc.Source), inc.CallType, string(inc.Category),
		inc.FullAddress, inc.NormalizedAddress, lat, lon,
		inc.Units, statuses, string(inc.Status), inc.CallReceivedTime, inc.CallClosedTime,
		inc.GroupID, inc.CreatedAt, inc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert incident %s: %w", inc.ExternalID, err)
	}
	return nil
}

func (s *Store) UngroupedMatches(ctx context.Context, tenantID, normalizedAddress, callType string, from, to time.Time) ([]*domain.Incident, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+incidentColumns+`
		FROM incidents
		WHERE tenant_id = $1
		  AND group_id IS NULL
		  AND normalized_address = $2
		  AND lower(call_type) = lower($3)
		  AND call_received_time BETWEEN $4 AND $5
		ORDER BY call_received_time`,
		tenantID, normalizedAddress, callType, from, to)
	if err != nil {
		return nil, fmt.Errorf("query ungrouped matches: %w", err)
	}
	defer rows.Close()

	var out []*domain.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

// RecentIncidents returns a tenant's incidents received since the cutoff,
// newest first. Feeds the collapsed listing endpoint.
func (s *Store) RecentIncidents(ctx context.Context, tenantID string, since time.Time) ([]*domain.Incident, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+incidentColumns+`
		FROM incidents
		WHERE tenant_id = $1 AND call_received_time >= $2 AND status <> $3
		ORDER BY call_received_time DESC`,
		tenantID, since, string(domain.IncidentArchived))
	if err != nil {
		return nil, fmt.Errorf("query recent incidents: %w", err)
	}
	defer rows.Close()

	var out []*domain.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

func (s *Store) GroupByMergeKey(ctx context.Context, tenantID, mergeKey string) (*domain.IncidentGroup, error) {
	var g domain.IncidentGroup
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, merge_key, window_start, window_end, merge_reason, created_at
		FROM incident_groups WHERE tenant_id = $1 AND merge_key = $2`,
		tenantID, mergeKey).Scan(
		&g.ID, &g.TenantID, &g.MergeKey, &g.WindowStart, &g.WindowEnd, &g.MergeReason, &g.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query group: %w", err)
	}
	return &g, nil
}

func (s *Store) CreateGroup(ctx context.Context, g *domain.IncidentGroup) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO incident_groups (id, tenant_id, merge_key, window_start, window_end, merge_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, merge_key) DO NOTHING`,
		g.ID, g.TenantID, g.MergeKey, g.WindowStart, g.WindowEnd, g.MergeReason, g.CreatedAt)
	if err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

func (s *Store) AssignGroup(ctx context.Context, tenantID string, incidentIDs []uuid.UUID, groupID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE incidents SET group_id = $1
		WHERE tenant_id = $2 AND id = ANY($3) AND group_id IS NULL`,
		groupID, tenantID, incidentIDs)
	if err != nil {
		return fmt.Errorf("assign group: %w", err)
	}
	return nil
}

// CloseStaleIncidents closes active incidents received before cutoff. The
// dispatch feed simply stops mentioning finished calls, so this is how
// long-quiet actives get resolved.
func (s *Store) CloseStaleIncidents(ctx context.Context, cutoff, closedAt time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE incidents
		SET status = $1, call_closed_time = COALESCE(call_closed_time, $2), updated_at = $2
		WHERE status = $3 AND call_received_time < $4`,
		string(domain.IncidentClosed), closedAt, string(domain.IncidentActive), cutoff)
	if err != nil {
		return 0, fmt.Errorf("close stale incidents: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) ArchiveClosedIncidents(ctx context.Context, closedBefore time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE incidents SET status = $1, updated_at = now()
		WHERE status = $2 AND call_closed_time < $3`,
		string(domain.IncidentArchived), string(domain.IncidentClosed), closedBefore)
	if err != nil {
		return 0, fmt.Errorf("archive closed incidents: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) DeleteArchivedIncidents(ctx context.Context, receivedBefore time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM incidents WHERE status = $1 AND call_received_time < $2`,
		string(domain.IncidentArchived), receivedBefore)
	if err != nil {
		return 0, fmt.Errorf("delete archived incidents: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) DeleteEmptyGroups(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM incident_groups g
		WHERE NOT EXISTS (SELECT 1 FROM incidents i WHERE i.group_id = g.id)`)
	if err != nil {
		return 0, fmt.Errorf("delete empty groups: %w", err)
	}
	return tag.RowsAffected(), nil
}

// scanIncident reads one incident row in incidentColumns order.
func scanIncident(row pgx.Row) (*domain.Incident, error) {
	var (
		inc      domain.Incident
		source   string
		category string
		status   string
		lat, lon *float64
		statuses []byte
	)
	err := row.Scan(
		&inc.ID, &inc.TenantID, &inc.ExternalID, &source, &inc.CallType, &category,
		&inc.FullAddress, &inc.NormalizedAddress, &lat, &lon,
		&inc.Units, &statuses, &status, &inc.CallReceivedTime, &inc.CallClosedTime,
		&inc.GroupID, &inc.CreatedAt, &inc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	inc.Source = domain.Source(source)
	inc.Category = domain.CallCategory(category)
	inc.Status = domain.IncidentStatus(status)
	if lat != nil && lon != nil {
		inc.Geo = &domain.Geo{Lat: *lat, Lon: *lon}
	}
	if len(statuses) > 0 {
		if err := json.Unmarshal(statuses, &inc.UnitStatuses); err != nil {
			return nil, fmt.Errorf("decode unit statuses: %w", err)
		}
	}
	return &inc, nil
}
