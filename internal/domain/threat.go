package domain

import (
	"fmt"
	"time"
)

// DefaultPostThreshold is the threat score at or above which an alert is
// auto-published when no tenant override is configured.
const DefaultPostThreshold = 55

// PostCooldown is the minimum gap between automatic posts for one alert.
const PostCooldown = 6 * time.Hour

var severityScores = map[AlertSeverity]int{
	SeverityExtreme:  40,
	SeveritySevere:   30,
	SeverityModerate: 20,
	SeverityMinor:    10,
	SeverityUnknown:  5,
}

var urgencyScores = map[AlertUrgency]int{
	UrgencyImmediate: 30,
	UrgencyExpected:  20,
	UrgencyFuture:    10,
	UrgencyUnknown:   5,
}

var certaintyScores = map[AlertCertainty]int{
	CertaintyObserved: 30,
	CertaintyLikely:   25,
	CertaintyPossible: 15,
	CertaintyUnlikely: 5,
	CertaintyUnknown:  5,
}

// alwaysPostEvents are published regardless of score. These are the warning
// products where minutes matter.
var alwaysPostEvents = map[string]struct{}{
	"Tornado Warning":             {},
	"Flash Flood Warning":         {},
	"Hurricane Warning":           {},
	"Extreme Wind Warning":        {},
	"Tsunami Warning":             {},
	"Storm Surge Warning":         {},
	"Blizzard Warning":            {},
	"Ice Storm Warning":           {},
	"Severe Thunderstorm Warning": {},
}

// ThreatScore sums the fixed severity, urgency, and certainty tables into a
// 0-100 heuristic.
func ThreatScore(a *WeatherAlert) int {
	return severityScores[a.Severity] + urgencyScores[a.Urgency] + certaintyScores[a.Certainty]
}

// PostDecision is the outcome of evaluating an alert for auto-publishing.
// Reason is a human-readable explanation carried for observability.
type PostDecision struct {
	ShouldPost bool
	Score      int
	Reason     string
}

// EvaluateForPosting decides whether an alert is important enough to
// auto-publish. Pure function of alert state: actual publishing is
// delegated to the social collaborator.
//
// Suppression runs first: non-active status, past expiry, or a post within
// the cooldown window. Then the always-post list and Extreme severity
// publish unconditionally; everything else needs score >= threshold.
// A threshold <= 0 means DefaultPostThreshold.
func EvaluateForPosting(a *WeatherAlert, threshold int, now time.Time) PostDecision {
	if threshold <= 0 {
		threshold = DefaultPostThreshold
	}
	score := ThreatScore(a)

	if a.Status != AlertActive {
		return PostDecision{Score: score, Reason: fmt.Sprintf("alert status is %s", a.Status)}
	}
	if a.PastExpiry(now) {
		return PostDecision{Score: score, Reason: "alert is past expiry"}
	}
	if a.LastFacebookPostTime != nil {
		since := now.Sub(*a.LastFacebookPostTime)
		if since < PostCooldown {
			return PostDecision{Score: score, Reason: fmt.Sprintf("posted %s ago, within %s cooldown", since.Round(time.Minute), PostCooldown)}
		}
	}

	if _, ok := alwaysPostEvents[a.Event]; ok {
		return PostDecision{ShouldPost: true, Score: score, Reason: fmt.Sprintf("event %q is on the always-post list", a.Event)}
	}
	if a.Severity == SeverityExtreme {
		return PostDecision{ShouldPost: true, Score: score, Reason: "severity is extreme"}
	}
	if score >= threshold {
		return PostDecision{ShouldPost: true, Score: score, Reason: fmt.Sprintf("threat score %d meets threshold %d", score, threshold)}
	}
	return PostDecision{Score: score, Reason: fmt.Sprintf("threat score %d below threshold %d", score, threshold)}
}
