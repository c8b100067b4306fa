package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CAP enums as delivered by the NWS alert API. Parsing is case-insensitive
// and anything unrecognized maps to the Unknown member, never an error.

type AlertSeverity string

const (
	SeverityExtreme  AlertSeverity = "Extreme"
	SeveritySevere   AlertSeverity = "Severe"
	SeverityModerate AlertSeverity = "Moderate"
	SeverityMinor    AlertSeverity = "Minor"
	SeverityUnknown  AlertSeverity = "Unknown"
)

func ParseSeverity(s string) AlertSeverity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "extreme":
		return SeverityExtreme
	case "severe":
		return SeveritySevere
	case "moderate":
		return SeverityModerate
	case "minor":
		return SeverityMinor
	default:
		return SeverityUnknown
	}
}

type AlertUrgency string

const (
	UrgencyImmediate AlertUrgency = "Immediate"
	UrgencyExpected  AlertUrgency = "Expected"
	UrgencyFuture    AlertUrgency = "Future"
	UrgencyUnknown   AlertUrgency = "Unknown"
)

func ParseUrgency(s string) AlertUrgency {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "immediate":
		return UrgencyImmediate
	case "expected":
		return UrgencyExpected
	case "future":
		return UrgencyFuture
	default:
		return UrgencyUnknown
	}
}

type AlertCertainty string

const (
	CertaintyObserved AlertCertainty = "Observed"
	CertaintyLikely   AlertCertainty = "Likely"
	CertaintyPossible AlertCertainty = "Possible"
	CertaintyUnlikely AlertCertainty = "Unlikely"
	CertaintyUnknown  AlertCertainty = "Unknown"
)

func ParseCertainty(s string) AlertCertainty {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "observed":
		return CertaintyObserved
	case "likely":
		return CertaintyLikely
	case "possible":
		return CertaintyPossible
	case "unlikely":
		return CertaintyUnlikely
	default:
		return CertaintyUnknown
	}
}

// AlertStatus is the lifecycle state of a stored weather alert. Active
// moves one-way to expired or cancelled; a resend of the same nwsId while
// still active updates the existing record in place instead of creating a
// duplicate.
type AlertStatus string

const (
	AlertActive    AlertStatus = "active"
	AlertExpired   AlertStatus = "expired"
	AlertCancelled AlertStatus = "cancelled"
)

var alertTransitions = map[AlertStatus][]AlertStatus{
	AlertActive:    {AlertExpired, AlertCancelled},
	AlertExpired:   {},
	AlertCancelled: {},
}

func (s AlertStatus) CanTransitionTo(next AlertStatus) bool {
	for _, allowed := range alertTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// WeatherAlert is one NWS alert tracked per tenant. NWSID is unique per
// tenant. FacebookPostID and LastFacebookPostTime record the collaborator's
// opaque post handle for cooldown and update decisions.
type WeatherAlert struct {
	ID                   uuid.UUID
	TenantID             string
	NWSID                string
	Event                string
	Headline             string
	Description          string
	Instruction          string
	Severity             AlertSeverity
	Urgency              AlertUrgency
	Certainty            AlertCertainty
	Onset                *time.Time
	Expires              *time.Time
	Ends                 *time.Time
	AffectedZones        []string
	Status               AlertStatus
	LastFacebookPostTime *time.Time
	FacebookPostID       string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Validate enforces the envelope invariants the feed must satisfy before a
// record is stored.
func (a *WeatherAlert) Validate() error {
	if a.NWSID == "" {
		return fmt.Errorf("weather alert missing nws id")
	}
	if a.Onset != nil && a.Expires != nil && !a.Expires.After(*a.Onset) {
		return fmt.Errorf("weather alert %s: expires %s not after onset %s", a.NWSID, a.Expires, a.Onset)
	}
	return nil
}

// TransitionTo applies a status change, enforcing the one-way lifecycle.
func (a *WeatherAlert) TransitionTo(next AlertStatus) error {
	if a.Status == next {
		return nil
	}
	if !a.Status.CanTransitionTo(next) {
		return fmt.Errorf("invalid alert status transition %s -> %s", a.Status, next)
	}
	a.Status = next
	return nil
}

// PastExpiry reports whether the alert's expiry (or ends, when expires is
// absent) is behind the given time. Alerts with neither bound never expire
// on their own.
func (a *WeatherAlert) PastExpiry(now time.Time) bool {
	switch {
	case a.Expires != nil:
		return now.After(*a.Expires)
	case a.Ends != nil:
		return now.After(*a.Ends)
	default:
		return false
	}
}
