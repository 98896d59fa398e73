package models

import "time"

// Action is a follow-up the user asked for, e.g. "reschedule_meeting" with
// {"event_id": "...", "new_start_time": "..."}.
type Action struct {
	Type       string         `json:"type"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Priority   string         `json:"priority,omitempty"`
}

// ActionResult is the outcome of executing one Action.
type ActionResult struct {
	Action      Action    `json:"action"`
	Success     bool      `json:"success"`
	Message     string    `json:"message,omitempty"`
	Error       string    `json:"error,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// Intent is what a parsed user reply asks for.
type Intent struct {
	Intent     string   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Actions    []Action `json:"actions"`
}

// Delivery reports how a message reached the user.
type Delivery struct {
	Success bool      `json:"success"`
	Channel string    `json:"channel"`           // "voice", "sms", "console"
	CallID  string    `json:"call_id,omitempty"` // provider reference, e.g. a Twilio call SID
	SentAt  time.Time `json:"sent_at"`
	Error   string    `json:"error,omitempty"`
}

// StringParam returns a string parameter or "".
func (a Action) StringParam(key string) string {
	if v, ok := a.Parameters[key].(string); ok {
		return v
	}
	return ""
}

// EventUpdate carries the fields to change on an existing event. Nil fields
// are left alone.
type EventUpdate struct {
	Title       *string
	Description *string
	Location    *string
	Start       *time.Time
	End         *time.Time
}

// Empty reports whether the update changes nothing.
func (u EventUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Location == nil &&
		u.Start == nil && u.End == nil
}

// OutgoingEmail is a message to send or to save as a draft.
type OutgoingEmail struct {
	To        string
	Subject   string
	Body      string
	ThreadID  string // reply within an existing thread when set
	InReplyTo string // RFC 5322 Message-ID of the message being answered
}

// IntentContext is what the user is replying about: the conflicts, events and
// emails of the cycle that produced the message.
type IntentContext struct {
	Conflicts []Conflict
	Events    []CalendarEvent
	Emails    []EmailData
}

// TopConflict returns the most severe conflict, the first one on ties.
func (c IntentContext) TopConflict() (Conflict, bool) {
	best := -1
	for i, cf := range c.Conflicts {
		if best < 0 || cf.Severity.Rank() > c.Conflicts[best].Severity.Rank() {
			best = i
		}
	}
	if best < 0 {
		return Conflict{}, false
	}
	return c.Conflicts[best], true
}

// TargetEventID is the event the top conflict suggests changing: the later of
// two clashing events, or the single event of a priority conflict.
func (c IntentContext) TargetEventID() string {
	top, ok := c.TopConflict()
	if !ok || len(top.EventsInvolved) == 0 {
		return ""
	}
	return top.EventsInvolved[len(top.EventsInvolved)-1]
}

// Event looks up an event by id.
func (c IntentContext) Event(id string) (CalendarEvent, bool) {
	for _, ev := range c.Events {
		if ev.ID == id {
			return ev, true
		}
	}
	return CalendarEvent{}, false
}
