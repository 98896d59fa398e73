package models

// ConflictType names the detection pass that produced a conflict.
type ConflictType string

const (
	ConflictScheduling ConflictType = "scheduling"
	ConflictTravelTime ConflictType = "travel_time"
	ConflictPriority   ConflictType = "priority"
)

// Severity orders conflicts by how badly they need attention.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns 0..3 for low..critical, -1 for unknown values.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	}
	return -1
}

// Conflict is one detected problem between events, or between an email and an event.
//
// Scheduling and travel-time conflicts reference exactly two events; priority
// conflicts reference one email and one event. ConflictID is derived from the
// involved ids and the type, so re-running detection yields the same id.
type Conflict struct {
	ConflictID      string         `json:"conflict_id"`
	Type            ConflictType   `json:"type"`
	EventsInvolved  []string       `json:"events_involved"`
	EmailsInvolved  []string       `json:"emails_involved"`
	Severity        Severity       `json:"severity"`
	SuggestedAction string         `json:"suggested_action"`
	Details         map[string]any `json:"details,omitempty"`
}
