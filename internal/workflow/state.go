// Package workflow sequences one monitoring cycle (fetch, analyze, detect,
// notify, act) as an explicit state machine, and drives it with a Runner.
package workflow

import (
	"time"

	"donna/internal/models"
)

// Step names a node of the workflow graph.
type Step string

const (
	StepFetchEmails        Step = "fetch_emails"
	StepFetchCalendar      Step = "fetch_calendar"
	StepAnalyzeEmails      Step = "analyze_emails"
	StepAnalyzeCalendar    Step = "analyze_calendar"
	StepDetectConflicts    Step = "detect_conflicts"
	StepPrepareInteraction Step = "prepare_user_interaction"
	StepCallUser           Step = "call_user"
	StepProcessResponse    Step = "process_user_response"
	StepExecuteActions     Step = "execute_actions"
	StepMonitor            Step = "monitor"

	// StepEnd terminates a graph run.
	StepEnd Step = "end"
	// StepWait is where ForceCheck leaves the state.
	StepWait Step = "wait"
)

// ImportantItem is a short summary of an email or event worth telling the user about.
type ImportantItem struct {
	Kind            string         `json:"kind"` // "email" or "event"
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	Summary         string         `json:"summary,omitempty"`
	Urgency         models.Urgency `json:"urgency,omitempty"`
	ImportanceScore float64        `json:"importance_score"`
	SuggestedAction string         `json:"suggested_action,omitempty"`
}

// InteractionStatus tracks a message sent to the user.
type InteractionStatus string

const (
	InteractionPending   InteractionStatus = "pending"
	InteractionDelivered InteractionStatus = "delivered"
	InteractionResponded InteractionStatus = "responded"
	InteractionFailed    InteractionStatus = "failed"
)

// UserInteraction is one attempt to reach the user.
type UserInteraction struct {
	ID        string            `json:"id"`
	Message   string            `json:"message"`
	CreatedAt time.Time         `json:"created_at"`
	Status    InteractionStatus `json:"status"`
	CallID    string            `json:"call_id,omitempty"`
	Response  string            `json:"response,omitempty"`
}

// State is the mutable bag threaded through every node of one agent run.
// It is owned by a single Runner and must not be shared between goroutines.
type State struct {
	Emails         []models.EmailData     `json:"emails"`
	CalendarEvents []models.CalendarEvent `json:"calendar_events"`
	Conflicts      []models.Conflict      `json:"conflicts"`
	ImportantItems []ImportantItem        `json:"important_items"`
	// FreshConflicts are the conflicts the user has not been told about
	// recently. Only these are reported.
	FreshConflicts []models.Conflict `json:"fresh_conflicts,omitempty"`
	// NotifiedConflicts maps a conflict id to when a call about it was last delivered.
	NotifiedConflicts map[string]time.Time `json:"notified_conflicts,omitempty"`

	CurrentStep      Step      `json:"current_step"`
	ErrorCount       int       `json:"error_count"`
	MonitoringActive bool      `json:"monitoring_active"`
	LastCheck        time.Time `json:"last_check"`
	// LastStep is the last node other than monitor that ran. monitor always
	// rewinds CurrentStep, so the runner's sleep choice reads this instead.
	LastStep Step `json:"last_step,omitempty"`

	UserInteractions []UserInteraction     `json:"user_interactions"`
	PendingMessage   string                `json:"pending_message,omitempty"`
	NeedsUserInput   bool                  `json:"needs_user_input"`
	LastDelivery     *models.Delivery      `json:"last_delivery,omitempty"`
	PendingActions   []models.Action       `json:"pending_actions"`
	ActionResults    []models.ActionResult `json:"action_results"`
}

// NewState returns a state ready to start at fetch_emails.
func NewState() *State {
	return &State{
		CurrentStep:      StepFetchEmails,
		MonitoringActive: true,
	}
}

// addImportant appends an item unless one with the same kind and id is present.
func (s *State) addImportant(item ImportantItem) {
	for _, existing := range s.ImportantItems {
		if existing.Kind == item.Kind && existing.ID == item.ID {
			return
		}
	}
	s.ImportantItems = append(s.ImportantItems, item)
}

// latestInteraction returns the most recent interaction, or nil.
func (s *State) latestInteraction() *UserInteraction {
	if len(s.UserInteractions) == 0 {
		return nil
	}
	return &s.UserInteractions[len(s.UserInteractions)-1]
}
