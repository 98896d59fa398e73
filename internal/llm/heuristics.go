package llm

import (
	"strings"
	"time"

	"donna/internal/models"
)

var (
	urgentKeywords = []string{"urgent", "important", "asap", "critical", "deadline", "ceo", "president"}
	actionKeywords = []string{"please", "review", "approve", "respond", "confirm", "rsvp"}
	eventKeywords  = []string{"urgent", "critical", "important", "deadline", "executive"}
	meetingWords   = []string{"meeting", "review", "standup", "sync"}
)

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// HeuristicEmail scores an email by keyword when no model answer is available.
func HeuristicEmail(e models.EmailData) models.EmailData {
	text := strings.ToLower(e.Subject + "\n" + e.Body)

	e.ImportanceScore = 0.5
	e.Urgency = models.UrgencyMedium
	e.RequiresAction = false

	if containsAny(text, urgentKeywords) {
		e.ImportanceScore = 0.8
		e.Urgency = models.UrgencyHigh
		e.RequiresAction = true
	}
	if containsAny(text, actionKeywords) {
		e.RequiresAction = true
		e.ImportanceScore = max(e.ImportanceScore, 0.6)
	}

	e.ActionType = models.ActionNone
	e.SuggestedAction = ""
	if e.RequiresAction {
		e.ActionType = models.ActionReview
		e.SuggestedAction = "Review and respond"
	}
	if e.Summary == "" {
		e.Summary = e.Subject
	}
	return e
}

// HeuristicEvent scores a calendar event by size and keyword.
func HeuristicEvent(ev models.CalendarEvent) models.CalendarEvent {
	title := strings.ToLower(ev.Title)
	text := title + "\n" + strings.ToLower(ev.Description)

	score := 0.4
	if len(ev.Attendees) > 5 {
		score += 0.3
	}
	if containsAny(text, eventKeywords) {
		score += 0.4
		ev.RequiresAction = true
	}
	if containsAny(title, meetingWords) {
		score += 0.2
		ev.RequiresAction = true
	}
	if strings.Contains(title, "present") {
		score += 0.3
		ev.RequiresAction = true
	}

	ev.ImportanceScore = min(score, 1.0)
	ev.Urgency = urgencyFor(ev.ImportanceScore)
	return ev
}

func urgencyFor(score float64) models.Urgency {
	switch {
	case score > 0.8:
		return models.UrgencyHigh
	case score > 0.5:
		return models.UrgencyMedium
	default:
		return models.UrgencyLow
	}
}

// HeuristicIntent reads a reply by keyword. The action targets the event the
// top conflict suggests changing. A reschedule moves it to the next day when
// the reply says "tomorrow", otherwise to just after the event it clashes with.
func HeuristicIntent(reply string, about models.IntentContext) models.Intent {
	r := strings.ToLower(reply)
	target := about.TargetEventID()
	switch {
	case containsAny(r, []string{"reschedule", "move", "change time"}):
		params := map[string]any{}
		if target != "" {
			params["event_id"] = target
			for k, v := range rescheduleSlot(about, target, strings.Contains(r, "tomorrow")) {
				params[k] = v
			}
		}
		return models.Intent{
			Intent:     "reschedule",
			Confidence: 0.7,
			Actions:    []models.Action{{Type: "reschedule_meeting", Parameters: params, Priority: "medium"}},
		}
	case containsAny(r, []string{"cancel", "delete", "remove"}):
		params := map[string]any{}
		if target != "" {
			params["event_id"] = target
		}
		return models.Intent{
			Intent:     "cancel",
			Confidence: 0.7,
			Actions:    []models.Action{{Type: "cancel_meeting", Parameters: params, Priority: "medium"}},
		}
	default:
		return models.Intent{Intent: "unclear", Confidence: 0.3}
	}
}

func rescheduleSlot(about models.IntentContext, target string, tomorrow bool) map[string]any {
	ev, ok := about.Event(target)
	if !ok {
		return nil
	}
	length := ev.EndTime.Sub(ev.StartTime)
	start := ev.StartTime.AddDate(0, 0, 1)
	if !tomorrow {
		top, _ := about.TopConflict()
		other, found := models.CalendarEvent{}, false
		for _, id := range top.EventsInvolved {
			if id != target {
				other, found = about.Event(id)
				break
			}
		}
		if !found {
			return nil
		}
		start = other.EndTime
	}
	return map[string]any{
		"new_start_time": start.Format(time.RFC3339),
		"new_end_time":   start.Add(length).Format(time.RFC3339),
	}
}
