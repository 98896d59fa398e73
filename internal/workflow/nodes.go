package workflow

import (
	"context"
	"errors"
	"time"

	"donna/internal/conflict"
	"donna/internal/models"

	"github.com/google/uuid"
)

const (
	bodyPreviewLen   = 500
	importantScore   = 0.7
	interactionTTL   = 24 * time.Hour
	maxActionResults = 50
)

// fail records a non-fatal step failure. Missing credentials and a cancelled
// context are passed through so the caller sees them.
func (g *Graph) fail(ctx context.Context, st *State, step Step, err error) error {
	if errors.Is(err, models.ErrUnauthorized) {
		g.logger.Error("Collaborator rejected credentials", "step", step, "error", err)
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	st.ErrorCount++
	st.CurrentStep = StepFetchEmails
	g.logger.Error("Workflow step failed", "step", step, "error", err, "error_count", st.ErrorCount)
	return nil
}

func (g *Graph) fetchEmails(ctx context.Context, st *State) error {
	since := g.now().Add(-g.lookback)
	g.logger.Info("Fetching emails", "since", since)

	emails, err := g.deps.Emails.FetchRecent(ctx, since)
	if err != nil {
		st.Emails = nil
		return g.fail(ctx, st, StepFetchEmails, err)
	}

	for i := range emails {
		e := &emails[i]
		if e.Subject == "" {
			e.Subject = "No Subject"
		}
		if e.Sender == "" {
			e.Sender = "Unknown"
		}
		e.Body = preview(e.Body, bodyPreviewLen)
	}

	st.Emails = emails
	st.CurrentStep = StepFetchCalendar
	g.logger.Info("Fetched emails", "count", len(emails))
	return nil
}

func (g *Graph) fetchCalendar(ctx context.Context, st *State) error {
	until := g.now().Add(g.horizon)
	g.logger.Info("Fetching calendar events", "until", until)

	events, err := g.deps.Calendar.FetchUpcoming(ctx, until)
	if err != nil {
		st.CalendarEvents = nil
		return g.fail(ctx, st, StepFetchCalendar, err)
	}

	for i := range events {
		if events[i].Title == "" {
			events[i].Title = "Untitled Event"
		}
		// Conflict flags are derived, never trusted from a provider.
		events[i].ConflictDetected = false
		events[i].ConflictType = ""
	}

	st.CalendarEvents = events
	st.CurrentStep = StepAnalyzeEmails
	g.logger.Info("Fetched calendar events", "count", len(events))
	return nil
}

func (g *Graph) analyzeEmails(ctx context.Context, st *State) error {
	st.CurrentStep = StepAnalyzeCalendar
	if g.skipAnalysis || g.deps.Analyzer == nil || len(st.Emails) == 0 {
		return nil
	}

	analyzed, err := g.deps.Analyzer.AnalyzeEmails(ctx, st.Emails)
	if err != nil {
		return g.fail(ctx, st, StepAnalyzeEmails, err)
	}
	st.Emails = analyzed

	for _, e := range analyzed {
		if e.ImportanceScore > importantScore || e.Urgency.Pressing() {
			st.addImportant(ImportantItem{
				Kind:            "email",
				ID:              e.ID,
				Title:           e.Subject,
				Summary:         firstNonEmpty(e.Summary, e.Subject),
				Urgency:         e.Urgency,
				ImportanceScore: e.ImportanceScore,
				SuggestedAction: e.SuggestedAction,
			})
		}
	}
	g.logger.Info("Analyzed emails", "count", len(analyzed), "important", len(st.ImportantItems))
	return nil
}

func (g *Graph) analyzeCalendar(ctx context.Context, st *State) error {
	st.CurrentStep = StepDetectConflicts
	if g.skipAnalysis || g.deps.Analyzer == nil || len(st.CalendarEvents) == 0 {
		return nil
	}

	analyzed, err := g.deps.Analyzer.AnalyzeEvents(ctx, st.CalendarEvents)
	if err != nil {
		return g.fail(ctx, st, StepAnalyzeCalendar, err)
	}
	st.CalendarEvents = analyzed

	for _, ev := range analyzed {
		if ev.ImportanceScore > importantScore || ev.Urgency.Pressing() {
			st.addImportant(ImportantItem{
				Kind:            "event",
				ID:              ev.ID,
				Title:           ev.Title,
				Summary:         ev.Title,
				Urgency:         ev.Urgency,
				ImportanceScore: ev.ImportanceScore,
			})
		}
	}
	g.logger.Info("Analyzed calendar events", "count", len(analyzed))
	return nil
}

func (g *Graph) detectConflicts(_ context.Context, st *State) error {
	st.Conflicts = g.detector.DetectAll(st.Emails, st.CalendarEvents, g.now())
	conflict.Annotate(st.CalendarEvents, st.Conflicts)
	st.FreshConflicts = g.unannounced(st)
	if quiet := len(st.Conflicts) - len(st.FreshConflicts); quiet > 0 {
		g.logger.Info("Skipping conflicts the user already heard about", "count", quiet)
	}
	st.CurrentStep = nextAfterDetect(st)
	if st.CurrentStep == StepMonitor {
		// Nothing left to ask about.
		st.NeedsUserInput = false
	}
	return nil
}

// unannounced returns the conflicts not delivered to the user within the
// renotify window.
func (g *Graph) unannounced(st *State) []models.Conflict {
	now := g.now()
	var fresh []models.Conflict
	for _, c := range st.Conflicts {
		if at, ok := g.notifiedAt(st, c.ConflictID); ok && now.Sub(at) < g.renotifyAfter {
			continue
		}
		fresh = append(fresh, c)
	}
	return fresh
}

func (g *Graph) notifiedAt(st *State, conflictID string) (time.Time, bool) {
	at, ok := st.NotifiedConflicts[conflictID]
	if g.deps.History != nil {
		if seen, found := g.deps.History.Seen(conflictID); found && (!ok || seen.After(at)) {
			at, ok = seen, true
		}
	}
	return at, ok
}

func (g *Graph) markNotified(st *State) {
	if len(st.FreshConflicts) == 0 {
		return
	}
	if st.NotifiedConflicts == nil {
		st.NotifiedConflicts = make(map[string]time.Time)
	}
	now := g.now()
	for _, c := range st.FreshConflicts {
		st.NotifiedConflicts[c.ConflictID] = now
	}
}

func (g *Graph) prepareInteraction(_ context.Context, st *State) error {
	summary := PrepareSummary(st.ImportantItems, st.FreshConflicts)
	st.PendingMessage = summary.Message
	st.NeedsUserInput = summary.NeedsInput
	st.UserInteractions = append(st.UserInteractions, UserInteraction{
		ID:        uuid.NewString(),
		Message:   summary.Message,
		CreatedAt: g.now(),
		Status:    InteractionPending,
	})
	st.CurrentStep = StepCallUser
	g.logger.Info("Prepared user interaction", "conflicts", summary.TotalConflicts, "critical", summary.CriticalConflicts, "needs_input", summary.NeedsInput)
	return nil
}

func (g *Graph) callUser(ctx context.Context, st *State) error {
	st.CurrentStep = StepProcessResponse
	st.LastDelivery = nil
	interaction := st.latestInteraction()

	if g.deps.Notifier == nil {
		g.logger.Warn("No notifier configured, not calling user")
		if interaction != nil {
			interaction.Status = InteractionFailed
		}
		return nil
	}

	delivery, err := g.deps.Notifier.Deliver(ctx, st.PendingMessage)
	if err != nil {
		if interaction != nil {
			interaction.Status = InteractionFailed
		}
		return g.fail(ctx, st, StepCallUser, err)
	}

	st.LastDelivery = &delivery
	if delivery.Success {
		g.markNotified(st)
	}
	if interaction != nil {
		interaction.CallID = delivery.CallID
		if delivery.Success {
			interaction.Status = InteractionDelivered
		} else {
			interaction.Status = InteractionFailed
		}
	}
	g.logger.Info("Notified user", "channel", delivery.Channel, "success", delivery.Success, "call_id", delivery.CallID)
	return nil
}

func (g *Graph) processResponse(ctx context.Context, st *State) error {
	st.PendingActions = nil
	defer func() { st.CurrentStep = nextAfterResponse(st) }()

	if g.deps.Notifier == nil || st.LastDelivery == nil || !st.LastDelivery.Success {
		return nil
	}

	reply, err := g.deps.Notifier.Response(ctx, *st.LastDelivery)
	if err != nil {
		return g.fail(ctx, st, StepProcessResponse, err)
	}
	if reply == "" {
		g.logger.Info("No reply from user yet")
		return nil
	}

	interaction := st.latestInteraction()
	if interaction != nil {
		interaction.Status = InteractionResponded
		interaction.Response = reply
	}
	st.NeedsUserInput = false

	if g.deps.Analyzer == nil {
		g.logger.Warn("No analyzer configured, ignoring user reply")
		return nil
	}
	told := st.FreshConflicts
	if len(told) == 0 {
		told = st.Conflicts
	}
	about := models.IntentContext{Conflicts: told, Events: st.CalendarEvents, Emails: st.Emails}
	intent, err := g.deps.Analyzer.ParseIntent(ctx, reply, about)
	if err != nil {
		return g.fail(ctx, st, StepProcessResponse, err)
	}
	st.PendingActions = withEventDefaults(intent.Actions, about)
	g.logger.Info("Parsed user reply", "intent", intent.Intent, "confidence", intent.Confidence, "actions", len(intent.Actions))
	return nil
}

func (g *Graph) executeActions(ctx context.Context, st *State) error {
	for _, action := range st.PendingActions {
		var result models.ActionResult
		if g.deps.Executor == nil {
			result = models.ActionResult{Action: action, Error: "no action executor configured", CompletedAt: g.now()}
		} else {
			result = g.deps.Executor.Execute(ctx, action)
		}
		if result.CompletedAt.IsZero() {
			result.CompletedAt = g.now()
		}
		if result.Success {
			g.logger.Info("Executed action", "type", action.Type, "message", result.Message)
		} else {
			g.logger.Warn("Action failed", "type", action.Type, "error", result.Error)
		}
		st.ActionResults = append(st.ActionResults, result)
	}
	if n := len(st.ActionResults); n > maxActionResults {
		st.ActionResults = st.ActionResults[n-maxActionResults:]
	}
	st.PendingActions = nil
	st.CurrentStep = StepMonitor
	return nil
}

func (g *Graph) monitor(_ context.Context, st *State) error {
	now := g.now()
	st.ImportantItems = nil

	kept := st.UserInteractions[:0]
	for _, ui := range st.UserInteractions {
		if ui.Status == InteractionPending || now.Sub(ui.CreatedAt) < interactionTTL {
			kept = append(kept, ui)
		}
	}
	st.UserInteractions = kept

	for id, at := range st.NotifiedConflicts {
		if now.Sub(at) >= g.renotifyAfter {
			delete(st.NotifiedConflicts, id)
		}
	}

	st.LastCheck = now
	st.CurrentStep = StepFetchEmails
	g.logger.Info("Monitoring cycle complete", "conflicts", len(st.Conflicts), "interactions", len(st.UserInteractions))
	return nil
}

// eventActions name an existing event through event_id.
var eventActions = map[string]bool{
	"reschedule_meeting": true,
	"cancel_meeting":     true,
	"update_meeting":     true,
}

// withEventDefaults points event actions that name no event at the event the
// top conflict suggests changing.
func withEventDefaults(actions []models.Action, about models.IntentContext) []models.Action {
	target := about.TargetEventID()
	if target == "" {
		return actions
	}
	for i := range actions {
		a := &actions[i]
		if !eventActions[a.Type] || a.StringParam("event_id") != "" {
			continue
		}
		if a.Parameters == nil {
			a.Parameters = map[string]any{}
		}
		a.Parameters["event_id"] = target
	}
	return actions
}

// preview cuts s to at most n runes.
func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
