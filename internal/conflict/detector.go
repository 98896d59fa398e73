// Package conflict finds scheduling overlaps, travel-time shortfalls and
// priority clashes in one cycle's emails and calendar events.
package conflict

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"donna/internal/models"
	"donna/internal/timewindow"
)

const (
	importantScore  = 0.7
	upcomingHorizon = 2 * time.Hour
	priorityWindow  = 30 * time.Minute
	criticalWindow  = 15 * time.Minute
)

// Detector runs the three detection passes. It holds no state besides its logger,
// so one Detector may be shared freely.
type Detector struct {
	logger *slog.Logger
}

// NewDetector creates a Detector. A nil logger discards output.
func NewDetector(logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Detector{logger: logger}
}

// DetectAll returns scheduling conflicts, then travel-time conflicts, then priority
// conflicts. now is only used by the priority pass.
func (d *Detector) DetectAll(emails []models.EmailData, events []models.CalendarEvent, now time.Time) []models.Conflict {
	var conflicts []models.Conflict
	conflicts = append(conflicts, d.DetectScheduling(events)...)
	conflicts = append(conflicts, d.DetectTravelTime(events)...)
	conflicts = append(conflicts, d.DetectPriority(emails, events, now)...)

	d.logger.Info("Detected conflicts", "total", len(conflicts), "events", len(events), "emails", len(emails))
	return conflicts
}

// timedEvent pairs an event with its normalized window.
type timedEvent struct {
	event  models.CalendarEvent
	window timewindow.Window
}

// comparable drops events whose times cannot be compared and repeated ids (an
// event never conflicts with itself), then sorts the rest by start time, then
// id, so input order never changes which pairs are compared.
func (d *Detector) comparable(events []models.CalendarEvent) []timedEvent {
	out := make([]timedEvent, 0, len(events))
	seen := make(map[string]bool, len(events))
	for _, ev := range events {
		if ev.ID != "" {
			if seen[ev.ID] {
				d.logger.Debug("Ignoring repeated event", "id", ev.ID, "title", ev.Title)
				continue
			}
			seen[ev.ID] = true
		}
		w := timewindow.New(ev.StartTime, ev.EndTime)
		if err := w.Validate(); err != nil {
			d.logger.Warn("Excluding event from pairwise checks", "id", ev.ID, "title", ev.Title, "error", err)
			continue
		}
		out = append(out, timedEvent{event: ev, window: w})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].window.Start.Equal(out[j].window.Start) {
			return out[i].window.Start.Before(out[j].window.Start)
		}
		return out[i].event.ID < out[j].event.ID
	})
	return out
}

// DetectScheduling compares every pair of events and reports the overlapping ones.
func (d *Detector) DetectScheduling(events []models.CalendarEvent) []models.Conflict {
	sorted := d.comparable(events)
	var conflicts []models.Conflict
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			c, ok, err := scheduleConflict(sorted[i], sorted[j])
			if err != nil {
				d.logger.Error("Skipping conflict check for events", "event1", sorted[i].event.ID, "event2", sorted[j].event.ID, "error", err)
				continue
			}
			if ok {
				conflicts = append(conflicts, c)
			}
		}
	}
	return conflicts
}

func scheduleConflict(a, b timedEvent) (models.Conflict, bool, error) {
	overlap, ok := a.window.Overlap(b.window)
	if !ok {
		return models.Conflict{}, false, nil
	}
	severity, err := ScoreOverlap(a.window, b.window)
	if err != nil {
		return models.Conflict{}, false, err
	}
	return models.Conflict{
		ConflictID:      fmt.Sprintf("schedule_%s_%s", a.event.ID, b.event.ID),
		Type:            models.ConflictScheduling,
		EventsInvolved:  []string{a.event.ID, b.event.ID},
		EmailsInvolved:  []string{},
		Severity:        severity,
		SuggestedAction: fmt.Sprintf("Reschedule '%s' to avoid overlap with '%s'", b.event.Title, a.event.Title),
		Details: map[string]any{
			"event1":          a.event.Title,
			"event2":          b.event.Title,
			"overlap_start":   overlap.Start,
			"overlap_end":     overlap.End,
			"overlap_minutes": overlap.Duration().Minutes(),
		},
	}, true, nil
}

// ScoreOverlap grades an overlap by the largest share of either event it covers:
// above 0.8 critical, above 0.5 high, above 0.2 medium, otherwise low.
// A zero-length event contributes no share.
func ScoreOverlap(a, b timewindow.Window) (models.Severity, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}
	if err := b.Validate(); err != nil {
		return "", err
	}
	overlap, ok := a.Overlap(b)
	if !ok {
		return models.SeverityLow, nil
	}

	var share float64
	for _, d := range []time.Duration{a.Duration(), b.Duration()} {
		if d <= 0 {
			continue
		}
		if f := float64(overlap.Duration()) / float64(d); f > share {
			share = f
		}
	}

	switch {
	case share > 0.8:
		return models.SeverityCritical, nil
	case share > 0.5:
		return models.SeverityHigh, nil
	case share > 0.2:
		return models.SeverityMedium, nil
	default:
		return models.SeverityLow, nil
	}
}

// DetectTravelTime checks consecutive events (in start order) held at different
// places for a gap shorter than the estimated travel time.
func (d *Detector) DetectTravelTime(events []models.CalendarEvent) []models.Conflict {
	sorted := d.comparable(events)
	var conflicts []models.Conflict
	for i := 0; i+1 < len(sorted); i++ {
		if c, ok := travelConflict(sorted[i], sorted[i+1]); ok {
			conflicts = append(conflicts, c)
		}
	}
	return conflicts
}

func travelConflict(from, to timedEvent) (models.Conflict, bool) {
	loc1 := strings.TrimSpace(from.event.Location)
	loc2 := strings.TrimSpace(to.event.Location)
	if loc1 == "" || loc2 == "" || loc1 == loc2 {
		return models.Conflict{}, false
	}

	gap := from.window.Gap(to.window).Minutes()
	required := EstimateTravelTime(loc1, loc2)
	if gap >= float64(required) {
		return models.Conflict{}, false
	}

	severity := models.SeverityMedium
	if gap < float64(required)*0.5 {
		severity = models.SeverityHigh
	}

	return models.Conflict{
		ConflictID:      fmt.Sprintf("travel_%s_%s", from.event.ID, to.event.ID),
		Type:            models.ConflictTravelTime,
		EventsInvolved:  []string{from.event.ID, to.event.ID},
		EmailsInvolved:  []string{},
		Severity:        severity,
		SuggestedAction: fmt.Sprintf("Allow %d minutes for travel between '%s' and '%s'", required, from.event.Title, to.event.Title),
		Details: map[string]any{
			"from_event":        from.event.Title,
			"to_event":          to.event.Title,
			"from_location":     loc1,
			"to_location":       loc2,
			"available_minutes": gap,
			"required_minutes":  required,
		},
	}, true
}

// DetectPriority pairs emails that need urgent action with important events
// starting in the next two hours, and reports the events starting within 30 minutes.
func (d *Detector) DetectPriority(emails []models.EmailData, events []models.CalendarEvent, now time.Time) []models.Conflict {
	now = timewindow.Normalize(now)
	horizon := timewindow.Window{Start: now, End: now.Add(upcomingHorizon)}

	var urgent []models.EmailData
	for _, e := range emails {
		if (e.ImportanceScore > importantScore || e.Urgency.Pressing()) && e.RequiresAction {
			urgent = append(urgent, e)
		}
	}
	if len(urgent) == 0 {
		return nil
	}

	var upcoming []models.CalendarEvent
	for _, ev := range events {
		if ev.StartTime.IsZero() {
			continue
		}
		if !horizon.Contains(ev.StartTime) {
			continue
		}
		if ev.ImportanceScore > importantScore || ev.Urgency.Pressing() || ev.RequiresAction {
			upcoming = append(upcoming, ev)
		}
	}

	var conflicts []models.Conflict
	for _, email := range urgent {
		for _, ev := range upcoming {
			until := timewindow.Normalize(ev.StartTime).Sub(now)
			if until >= priorityWindow {
				continue
			}
			severity := models.SeverityHigh
			if until < criticalWindow {
				severity = models.SeverityCritical
			}
			conflicts = append(conflicts, models.Conflict{
				ConflictID:      fmt.Sprintf("priority_%s_%s", email.ID, ev.ID),
				Type:            models.ConflictPriority,
				EventsInvolved:  []string{ev.ID},
				EmailsInvolved:  []string{email.ID},
				Severity:        severity,
				SuggestedAction: fmt.Sprintf("Handle urgent email from %s before attending '%s'", email.SenderName(), ev.Title),
				Details: map[string]any{
					"email_subject":       email.Subject,
					"email_sender":        email.Sender,
					"email_importance":    email.ImportanceScore,
					"email_urgency":       string(email.Urgency),
					"email_action_type":   string(email.ActionType),
					"event_title":         ev.Title,
					"event_importance":    ev.ImportanceScore,
					"event_urgency":       string(ev.Urgency),
					"minutes_until_event": until.Minutes(),
				},
			})
		}
	}
	return conflicts
}

// Annotate marks the events referenced by conflicts. When an event is part of
// several conflicts the first one wins.
func Annotate(events []models.CalendarEvent, conflicts []models.Conflict) {
	byID := make(map[string]models.ConflictType)
	for _, c := range conflicts {
		for _, id := range c.EventsInvolved {
			if _, seen := byID[id]; !seen {
				byID[id] = c.Type
			}
		}
	}
	for i := range events {
		if t, ok := byID[events[i].ID]; ok {
			events[i].ConflictDetected = true
			events[i].ConflictType = t
		}
	}
}
