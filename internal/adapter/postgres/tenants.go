package postgres

import (
	"context"
	"fmt"

	"github.com/the-data-sherpa/vanguard-sub000/internal/domain"
)

// EligibleTenants returns every tenant with at least one sync path enabled.
func (s *Store) EligibleTenants(ctx context.Context) ([]domain.TenantConfig, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, agency_ids, zone_codes,
		       incident_sync_enabled, weather_sync_enabled, weather_posting_enabled,
		       post_threshold
		FROM tenants
		WHERE incident_sync_enabled OR weather_sync_enabled
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query tenants: %w", err)
	}
	defer rows.Close()

	var out []domain.TenantConfig
	for rows.Next() {
		var t domain.TenantConfig
		if err := rows.Scan(&t.ID, &t.Name, &t.AgencyIDs, &t.ZoneCodes,
			&t.IncidentSyncEnabled, &t.WeatherSyncEnabled, &t.WeatherPostingEnabled,
			&t.PostThreshold); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpsertTenant creates or replaces a tenant row. Used by operational
// tooling; the sync paths only read tenants.
func (s *Store) UpsertTenant(ctx context.Context, t domain.TenantConfig) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tenants (id, name, agency_ids, zone_codes,
			incident_sync_enabled, weather_sync_enabled, weather_posting_enabled, post_threshold)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			agency_ids = EXCLUDED.agency_ids,
			zone_codes = EXCLUDED.zone_codes,
			incident_sync_enabled = EXCLUDED.incident_sync_enabled,
			weather_sync_enabled = EXCLUDED.weather_sync_enabled,
			weather_posting_enabled = EXCLUDED.weather_posting_enabled,
			post_threshold = EXCLUDED.post_threshold`,
		t.ID, t.Name, t.AgencyIDs, t.ZoneCodes,
		t.IncidentSyncEnabled, t.WeatherSyncEnabled, t.WeatherPostingEnabled, t.PostThreshold)
	if err != nil {
		return fmt.Errorf("upsert tenant %s: %w", t.ID, err)
	}
	return nil
}
