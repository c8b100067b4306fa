package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Source identifies where an incident record came from.
type Source string

const (
	SourceDispatchFeed Source = "dispatch_feed"
	SourceManual       Source = "manual"
)

// IncidentStatus is the lifecycle state of an incident. Transitions are
// monotonic: active -> closed -> archived, never reversed.
type IncidentStatus string

const (
	IncidentActive   IncidentStatus = "active"
	IncidentClosed   IncidentStatus = "closed"
	IncidentArchived IncidentStatus = "archived"
)

var incidentTransitions = map[IncidentStatus][]IncidentStatus{
	IncidentActive:   {IncidentClosed},
	IncidentClosed:   {IncidentArchived},
	IncidentArchived: {},
}

// CanTransitionTo reports whether moving from s to next is a valid
// lifecycle step.
func (s IncidentStatus) CanTransitionTo(next IncidentStatus) bool {
	for _, allowed := range incidentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// UnitStage is a single step in a responding unit's lifecycle.
type UnitStage string

const (
	StageDispatched   UnitStage = "dispatched"
	StageAcknowledged UnitStage = "acknowledged"
	StageEnroute      UnitStage = "enroute"
	StageOnScene      UnitStage = "on_scene"
	StageCleared      UnitStage = "cleared"
)

// stageOrder lists unit stages in lifecycle order, used to pick the latest
// populated timestamp when two stages share the same time.
var stageOrder = []UnitStage{StageDispatched, StageAcknowledged, StageEnroute, StageOnScene, StageCleared}

// UnitStatus is the canonical in-memory shape for one responding unit's
// timeline. The vendor feed ships two wire representations (legacy map
// keyed by unit code and a newer array of records); both decode into this.
type UnitStatus struct {
	Unit         string     `json:"unit"`
	Dispatched   *time.Time `json:"dispatched,omitempty"`
	Acknowledged *time.Time `json:"acknowledged,omitempty"`
	Enroute      *time.Time `json:"enroute,omitempty"`
	OnScene      *time.Time `json:"on_scene,omitempty"`
	Cleared      *time.Time `json:"cleared,omitempty"`
}

// stageTime returns the timestamp for a given stage, or nil if unset.
func (u UnitStatus) stageTime(stage UnitStage) *time.Time {
	switch stage {
	case StageDispatched:
		return u.Dispatched
	case StageAcknowledged:
		return u.Acknowledged
	case StageEnroute:
		return u.Enroute
	case StageOnScene:
		return u.OnScene
	case StageCleared:
		return u.Cleared
	}
	return nil
}

// LatestStage returns the most recently timestamped stage for the unit and
// its time. Ties go to the later lifecycle stage. Returns ("", zero) when
// no timestamp is populated.
func (u UnitStatus) LatestStage() (UnitStage, time.Time) {
	var (
		stage UnitStage
		at    time.Time
	)
	for _, s := range stageOrder {
		if t := u.stageTime(s); t != nil && !t.Before(at) {
			stage, at = s, *t
		}
	}
	return stage, at
}

// Geo is a WGS-84 latitude/longitude pair. A nil *Geo means the feed did
// not report a usable position; a reported (0,0) is treated as unknown.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Incident is one emergency-dispatch event, partitioned by tenant.
// ExternalID is the vendor's identifier, unique per tenant for
// vendor-sourced records.
type Incident struct {
	ID                uuid.UUID
	TenantID          string
	ExternalID        string
	Source            Source
	CallType          string
	Category          CallCategory
	FullAddress       string
	NormalizedAddress string
	Geo               *Geo
	Units             []string
	UnitStatuses      []UnitStatus
	Status            IncidentStatus
	CallReceivedTime  time.Time
	CallClosedTime    *time.Time
	GroupID           *uuid.UUID
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TransitionTo applies a status change, enforcing the monotonic lifecycle.
// Leaving active stamps CallClosedTime with the given time if the feed did
// not supply one.
func (i *Incident) TransitionTo(next IncidentStatus, at time.Time) error {
	if i.Status == next {
		return nil
	}
	if !i.Status.CanTransitionTo(next) {
		return fmt.Errorf("invalid incident status transition %s -> %s", i.Status, next)
	}
	if i.Status == IncidentActive && i.CallClosedTime == nil {
		t := at
		i.CallClosedTime = &t
	}
	i.Status = next
	return nil
}

// UnitStatusFor returns the status entry for a unit code, or nil.
func (i *Incident) UnitStatusFor(unit string) *UnitStatus {
	for idx := range i.UnitStatuses {
		if i.UnitStatuses[idx].Unit == unit {
			return &i.UnitStatuses[idx]
		}
	}
	return nil
}

// TenantConfig is the per-tenant configuration this core consumes from the
// tenant-management collaborator: which agencies to poll, which NWS zones
// to watch, and feature flags gating the weather auto-posting path.
type TenantConfig struct {
	ID                    string
	Name                  string
	AgencyIDs             []string
	ZoneCodes             []string
	IncidentSyncEnabled   bool
	WeatherSyncEnabled    bool
	WeatherPostingEnabled bool
	PostThreshold         int // 0 means use the service default
}
