package models

import "time"

// Urgency is the coarse urgency level attached to emails and events by analysis.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Pressing reports whether the urgency is high or critical.
func (u Urgency) Pressing() bool {
	return u == UrgencyHigh || u == UrgencyCritical
}

// ParseUrgency maps free text to an Urgency, defaulting to medium.
func ParseUrgency(s string) Urgency {
	switch Urgency(s) {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return Urgency(s)
	}
	return UrgencyMedium
}

// CalendarEvent represents a calendar event.
// This is an internal representation, independent of any specific calendar provider.
// Zero StartTime or EndTime means the provider did not supply one.
type CalendarEvent struct {
	ID          string    `json:"id"`          // Unique identifier for the event (e.g., from the source calendar)
	Title       string    `json:"title"`       // Summary or title of the event
	Description string    `json:"description"` // Detailed description of the event
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Location    string    `json:"location,omitempty"`
	Organizer   string    `json:"organizer,omitempty"` // Organizer's email
	Attendees   []string  `json:"attendees,omitempty"` // List of attendee emails
	Source      string    `json:"source,omitempty"`    // The source of the event (e.g., "google-primary")
	UID         string    `json:"uid,omitempty"`       // The iCalendar UID

	ImportanceScore float64 `json:"importance_score"`
	RequiresAction  bool    `json:"requires_action"`
	Urgency         Urgency `json:"urgency,omitempty"`

	// Set by conflict detection, never read from a provider.
	ConflictDetected bool         `json:"conflict_detected"`
	ConflictType     ConflictType `json:"conflict_type,omitempty"`
}
