// Package domain models multi-tenant emergency-dispatch incidents and
// National Weather Service (NWS) alerts.
//
// # Data Sources
//
// Incidents originate from a proprietary computer-aided-dispatch (CAD)
// vendor feed, polled per tenant and per agency. The feed delivers an
// encrypted envelope (see the feed package) whose plaintext is a list of
// loosely-shaped JSON records: field names vary across upstream providers
// and the per-unit status timeline ships in two historical wire shapes.
// Both are decoded at the ingestion boundary into the canonical types here.
//
// Weather alerts originate from the public NWS alert API, keyed by zone
// codes configured per tenant.
//
// # Deduplication
//
// Upstream occasionally reports one real event as several records, e.g.
// multiple dispatch entries for the same address and call type within
// minutes. Incidents are clustered by a merge key:
//
//	normalizedAddress | lowercased callType | 10-minute floor of callReceivedTime
//
// [MergeKeyFor] is the single implementation of that derivation; both the
// persisted-group path and the read-time collapse in [CollapseIncidents]
// call it, and the floor is always computed from the incident's own
// received time, never from the wall clock.
//
// # Threat Scoring
//
// Weather alerts carry CAP severity, urgency, and certainty enums. A 0-100
// threat score is the sum of three fixed tables:
//
//	severity:  Extreme 40 | Severe 30 | Moderate 20 | Minor 10 | Unknown 5
//	urgency:   Immediate 30 | Expected 20 | Future 10 | Unknown 5
//	certainty: Observed 30 | Likely 25 | Possible 15 | Unlikely 5 | Unknown 5
//
// [EvaluateForPosting] gates automatic social publishing on the score, a
// fixed always-post event list, and a per-alert posting cooldown.
package domain
