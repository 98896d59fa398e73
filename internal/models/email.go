package models

import (
	"strings"
	"time"
)

// ActionType is what an email asks of the user.
type ActionType string

const (
	ActionReply    ActionType = "reply"
	ActionSchedule ActionType = "schedule"
	ActionUrgent   ActionType = "urgent"
	ActionReview   ActionType = "review"
	ActionNone     ActionType = "none"
)

// EmailData is a normalized inbox message plus its analysis.
type EmailData struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id,omitempty"`
	MessageID string    `json:"message_id,omitempty"` // RFC 822 Message-ID, for In-Reply-To
	Subject   string    `json:"subject"`
	Sender    string    `json:"sender"` // "Display Name <addr>" or a bare address
	Body      string    `json:"body"`   // truncated preview
	Timestamp time.Time `json:"timestamp"`

	ImportanceScore float64    `json:"importance_score"`
	RequiresAction  bool       `json:"requires_action"`
	ActionType      ActionType `json:"action_type,omitempty"`
	Urgency         Urgency    `json:"urgency,omitempty"`
	SuggestedAction string     `json:"suggested_action,omitempty"`
	Summary         string     `json:"summary,omitempty"`
}

// SenderName returns the display part of Sender, or the address when there is none.
func (e EmailData) SenderName() string {
	if idx := strings.Index(e.Sender, "<"); idx > 0 {
		return strings.Trim(strings.TrimSpace(e.Sender[:idx]), `"`)
	}
	return strings.Trim(e.Sender, "<> ")
}

// SenderAddress returns the bare address inside Sender.
func (e EmailData) SenderAddress() string {
	start := strings.Index(e.Sender, "<")
	end := strings.LastIndex(e.Sender, ">")
	if start >= 0 && end > start {
		return strings.TrimSpace(e.Sender[start+1 : end])
	}
	return strings.TrimSpace(e.Sender)
}
