package feed

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/the-data-sherpa/vanguard-sub000/internal/domain"
)

// Record is one raw incident record as decoded from an opened envelope.
// Field names vary across upstream providers; NormalizeIncident resolves
// them through ordered fallback lists.
type Record map[string]any

// ValidationError marks a single record that cannot be ingested, e.g. a
// missing vendor id. The record is dropped and logged; the sync continues.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("record missing required field %q", e.Field)
}

// Field-name fallbacks, in resolution order, per attribute.
var (
	idFields       = []string{"incident_id", "IncidentID", "id", "ID", "call_number", "CallNumber"}
	callTypeFields = []string{"call_type", "CallType", "nature", "Nature", "type", "Type"}
	descFields     = []string{"call_type_description", "description", "Description", "nature_description"}
	addressFields  = []string{"full_address", "address", "Address", "location", "Location"}
	receivedFields = []string{"call_received_time", "received", "ReceivedTime", "call_time", "CallDateTime"}
	closedFields   = []string{"call_closed_time", "closed", "ClosedTime", "CloseDateTime"}
	latFields      = []string{"latitude", "lat", "Latitude"}
	lonFields      = []string{"longitude", "lon", "lng", "Longitude"}
	unitsFields    = []string{"units", "Units", "assigned_units"}
	statusFields   = []string{"unit_statuses", "UnitStatuses", "unit_times", "UnitTimes"}
)

// timeLayouts are tried in order for string timestamps.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"01/02/2006 15:04:05",
	"01/02/2006 3:04:05 PM",
}

// Records coerces an opened envelope payload into a record list. The feed
// delivers either a bare array or an object wrapping one under "incidents"
// or "data".
func Records(payload any) ([]Record, error) {
	switch v := payload.(type) {
	case []any:
		return coerceRecords(v)
	case map[string]any:
		for _, key := range []string{"incidents", "data"} {
			if inner, ok := v[key].([]any); ok {
				return coerceRecords(inner)
			}
		}
		return nil, fmt.Errorf("feed payload object has no incident list")
	default:
		return nil, fmt.Errorf("feed payload is %T, want array or object", payload)
	}
}

func coerceRecords(items []any) ([]Record, error) {
	out := make([]Record, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("feed record %d is %T, want object", i, item)
		}
		out = append(out, Record(m))
	}
	return out, nil
}

// NormalizeIncident maps a raw record into the canonical incident shape.
// Returns *ValidationError when the vendor id is missing. Reported (0,0)
// coordinates are treated as unknown. The vendor reporting a close time
// marks the record closed.
func NormalizeIncident(tenantID string, rec Record) (*domain.Incident, error) {
	externalID := firstString(rec, idFields)
	if externalID == "" {
		return nil, &ValidationError{Field: "id"}
	}

	callType := firstString(rec, callTypeFields)
	description := firstString(rec, descFields)
	address := firstString(rec, addressFields)
	received, _ := firstTime(rec, receivedFields)
	closed, hasClosed := firstTime(rec, closedFields)

	inc := &domain.Incident{
		ID:                uuid.New(),
		TenantID:          tenantID,
		ExternalID:        externalID,
		Source:            domain.SourceDispatchFeed,
		CallType:          callType,
		Category:          domain.MapCallTypeCategory(callType, description),
		FullAddress:       address,
		NormalizedAddress: domain.NormalizeAddress(address),
		Geo:               geoFrom(rec),
		Units:             unitsFrom(rec),
		UnitStatuses:      unitStatusesFrom(rec),
		Status:            domain.IncidentActive,
		CallReceivedTime:  received,
	}
	if hasClosed {
		inc.Status = domain.IncidentClosed
		inc.CallClosedTime = &closed
	}
	return inc, nil
}

func firstString(rec Record, fields []string) string {
	for _, f := range fields {
		if v, ok := rec[f]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
			if n, ok := v.(float64); ok {
				return strconv.FormatFloat(n, 'f', -1, 64)
			}
		}
	}
	return ""
}

func firstTime(rec Record, fields []string) (time.Time, bool) {
	for _, f := range fields {
		v, ok := rec[f]
		if !ok || v == nil {
			continue
		}
		if t, ok := parseTime(v); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseTime(v any) (time.Time, bool) {
	switch tv := v.(type) {
	case string:
		s := strings.TrimSpace(tv)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
	case float64:
		// Unix seconds.
		if tv > 0 {
			return time.Unix(int64(tv), 0).UTC(), true
		}
	}
	return time.Time{}, false
}

func geoFrom(rec Record) *domain.Geo {
	lat, okLat := firstFloat(rec, latFields)
	lon, okLon := firstFloat(rec, lonFields)
	if !okLat || !okLon {
		return nil
	}
	// A reported (0,0) pair means "unknown", not the Gulf of Guinea.
	if lat == 0 && lon == 0 {
		return nil
	}
	return &domain.Geo{Lat: lat, Lon: lon}
}

func firstFloat(rec Record, fields []string) (float64, bool) {
	for _, f := range fields {
		switch v := rec[f].(type) {
		case float64:
			return v, true
		case string:
			if n, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// unitsFrom accepts a JSON array of codes or a comma-separated string.
func unitsFrom(rec Record) []string {
	for _, f := range unitsFields {
		switch v := rec[f].(type) {
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					out = append(out, s)
				}
			}
			return out
		case string:
			if strings.TrimSpace(v) == "" {
				return nil
			}
			parts := strings.Split(v, ",")
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			return out
		}
	}
	return nil
}

// unitStatusesFrom decodes the per-unit timeline. Two wire shapes exist:
// the current array of records, each carrying a "unit" code, and the
// legacy object keyed by unit code. Both decode into the one canonical
// in-memory shape here so nothing downstream branches on representation.
func unitStatusesFrom(rec Record) []domain.UnitStatus {
	for _, f := range statusFields {
		switch v := rec[f].(type) {
		case []any:
			out := make([]domain.UnitStatus, 0, len(v))
			for _, item := range v {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				unit, _ := m["unit"].(string)
				if unit == "" {
					continue
				}
				out = append(out, unitStatusFrom(unit, m))
			}
			return out
		case map[string]any:
			out := make([]domain.UnitStatus, 0, len(v))
			for unit, item := range v {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				out = append(out, unitStatusFrom(unit, m))
			}
			sort.Slice(out, func(i, j int) bool { return out[i].Unit < out[j].Unit })
			return out
		}
	}
	return nil
}

func unitStatusFrom(unit string, m map[string]any) domain.UnitStatus {
	us := domain.UnitStatus{Unit: unit}
	us.Dispatched = stageTime(m, "dispatched", "dispatch_time")
	us.Acknowledged = stageTime(m, "acknowledged", "ack_time")
	us.Enroute = stageTime(m, "enroute", "enroute_time")
	us.OnScene = stageTime(m, "on_scene", "onscene_time", "arrived")
	us.Cleared = stageTime(m, "cleared", "clear_time")
	return us
}

func stageTime(m map[string]any, fields ...string) *time.Time {
	for _, f := range fields {
		if v, ok := m[f]; ok && v != nil {
			if t, ok := parseTime(v); ok {
				return &t
			}
		}
	}
	return nil
}
