package llm

import (
	"fmt"
	"strings"
	"time"

	"donna/internal/models"
)

const systemPrompt = "You are Donna, a personal assistant that triages email and calendars. Respond only with a JSON object."

const bodyLimit = 500

func emailPrompt(emails []models.EmailData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following %d emails for importance and urgency.\n\n", len(emails))
	for i, e := range emails {
		fmt.Fprintf(&b, "EMAIL %d:\nFrom: %s\nSubject: %s\nDate: %s\nBody Preview: %s\n---\n",
			i+1, e.Sender, e.Subject, e.Timestamp.Format("2006-01-02 15:04"), clip(e.Body, bodyLimit))
	}
	b.WriteString(`
For each email determine:
- importance_score: number from 0.0 to 1.0
- urgency: one of low, medium, high, critical
- requires_action: true or false
- action_type: one of reply, schedule, review, urgent, none
- summary: one or two sentences
- suggested_action: what the user should do

Scoring: 0.9-1.0 critical decisions, legal matters, urgent deadlines, executives.
0.7-0.8 important meetings, client requests, time-sensitive matters.
0.5-0.6 regular work communication. 0.3-0.4 newsletters and notifications. Below that, promotions.

Respond with {"emails":[{"email_index":1,"importance_score":0.8,"urgency":"high","requires_action":true,"action_type":"reply","summary":"...","suggested_action":"..."}]}`)
	return b.String()
}

func eventPrompt(events []models.CalendarEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following %d calendar events for importance.\n\n", len(events))
	for i, ev := range events {
		fmt.Fprintf(&b, "EVENT %d:\nTitle: %s\nStart: %s\nDuration: %s\nAttendees: %d people\nLocation: %s\nDescription: %s\n---\n",
			i+1, ev.Title, ev.StartTime.Format(time.RFC3339), ev.EndTime.Sub(ev.StartTime), len(ev.Attendees),
			orDefault(ev.Location, "Not specified"), clip(ev.Description, 200))
	}
	b.WriteString(`
For each event determine importance_score (0.0 to 1.0), urgency (low, medium, high, critical) and requires_action.
Consider executives, clients, large groups, external attendees, travel and keywords like URGENT, CRITICAL or Review.

Respond with {"events":[{"event_index":1,"importance_score":0.6,"urgency":"medium","requires_action":false}]}`)
	return b.String()
}

// contextLimit caps how many conflicts, events and emails an intent prompt lists.
const contextLimit = 20

func intentPrompt(reply string, about models.IntentContext) string {
	var b strings.Builder
	b.WriteString("Parse this reply from the user and extract the actions they want.\n\n")
	fmt.Fprintf(&b, "User reply: %q\n\n", reply)

	b.WriteString("The user was told about these conflicts (most relevant first):\n")
	if len(about.Conflicts) == 0 {
		b.WriteString("none\n")
	}
	for i, c := range about.Conflicts {
		if i == contextLimit {
			break
		}
		fmt.Fprintf(&b, "- %s [%s, %s] events=%s: %s\n",
			c.ConflictID, c.Type, c.Severity, strings.Join(c.EventsInvolved, ","), c.SuggestedAction)
	}
	if target := about.TargetEventID(); target != "" {
		fmt.Fprintf(&b, "When the user says \"it\" or names no meeting, they mean event_id %s.\n", target)
	}

	b.WriteString("\nUpcoming events:\n")
	for i, ev := range about.Events {
		if i == contextLimit {
			break
		}
		fmt.Fprintf(&b, "- event_id=%s %q %s to %s at %s\n", ev.ID, ev.Title,
			ev.StartTime.Format(time.RFC3339), ev.EndTime.Format(time.RFC3339), orDefault(ev.Location, "no location"))
	}

	b.WriteString("\nRecent emails:\n")
	for i, e := range about.Emails {
		if i == contextLimit {
			break
		}
		fmt.Fprintf(&b, "- email_id=%s from %s: %q\n", e.ID, e.Sender, e.Subject)
	}

	b.WriteString(`
Use only the ids listed above.

Respond with {"intent":"reschedule|cancel|confirm|delegate|more_info","confidence":0.0,"actions":[{"type":"...","parameters":{},"priority":"low|medium|high"}]}

Action types and parameters:
- reschedule_meeting: {"event_id":"...","new_start_time":"RFC3339","new_end_time":"RFC3339"}
- cancel_meeting: {"event_id":"...","reason":"..."}
- create_meeting: {"title":"...","start_time":"RFC3339","end_time":"RFC3339","attendees":["..."]}
- update_meeting: {"event_id":"...","title":"...","location":"...","description":"..."}
- block_time: {"start_time":"RFC3339","duration_minutes":60,"title":"..."}
- send_email: {"to":"...","subject":"...","body":"..."}
- draft_reply: {"email_id":"...","body":"..."} or {"sender":"name or address","body":"..."}`)
	return b.String()
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
