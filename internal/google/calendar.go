package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"donna/internal/models"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const maxEvents = 250

// CalendarClient reads and writes Google Calendar events.
type CalendarClient struct {
	service     *calendar.Service
	logger      *slog.Logger
	calendarIDs []string
	now         func() time.Time
}

// NewCalendarClient creates a client reading the given calendars. Writes go to
// the first one. Pass option.WithHTTPClient with an authorized client.
func NewCalendarClient(ctx context.Context, logger *slog.Logger, calendarIDs []string, opts ...option.ClientOption) (*CalendarClient, error) {
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	if len(calendarIDs) == 0 {
		calendarIDs = []string{"primary"}
	}
	return &CalendarClient{service: service, logger: logger, calendarIDs: calendarIDs, now: time.Now}, nil
}

// FetchUpcoming returns timed events from now until the given instant across
// all configured calendars. A calendar that fails is logged and skipped
// unless every calendar fails or credentials are rejected.
func (c *CalendarClient) FetchUpcoming(ctx context.Context, until time.Time) ([]models.CalendarEvent, error) {
	var (
		out     []models.CalendarEvent
		lastErr error
		failed  int
	)
	for _, id := range c.calendarIDs {
		events, err := c.upcoming(ctx, id, until)
		if err != nil {
			if errors.Is(err, models.ErrUnauthorized) {
				return nil, err
			}
			c.logger.Error("Failed to fetch Google Calendar events", "calendarID", id, "error", err)
			lastErr = err
			failed++
			continue
		}
		out = append(out, events...)
	}
	if failed > 0 && failed == len(c.calendarIDs) {
		return nil, lastErr
	}
	return out, nil
}

func (c *CalendarClient) upcoming(ctx context.Context, calendarID string, until time.Time) ([]models.CalendarEvent, error) {
	now := c.now().UTC()
	c.logger.Debug("Fetching upcoming events", "calendarID", calendarID, "until", until)

	events, err := c.service.Events.List(calendarID).
		Context(ctx).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(now.Format(time.RFC3339)).
		TimeMax(until.UTC().Format(time.RFC3339)).
		MaxResults(maxEvents).
		OrderBy("startTime").
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve events: %w", classify(err))
	}

	c.logger.Info("Successfully fetched events from Google Calendar", "count", len(events.Items), "calendarID", calendarID)
	return c.toInternalEvents(events.Items, calendarID), nil
}

// toInternalEvents converts Google Calendar events to the internal model.
// All-day events carry no clock time and are left out.
func (c *CalendarClient) toInternalEvents(items []*calendar.Event, source string) []models.CalendarEvent {
	var out []models.CalendarEvent
	for _, item := range items {
		if item.Start == nil || item.Start.DateTime == "" || item.End == nil {
			c.logger.Debug("Skipping all-day event", "id", item.Id, "title", item.Summary)
			continue
		}

		startTime, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			c.logger.Warn("Skipping event with unparsable start", "id", item.Id, "error", err)
			continue
		}
		endTime, err := time.Parse(time.RFC3339, item.End.DateTime)
		if err != nil {
			c.logger.Warn("Skipping event with unparsable end", "id", item.Id, "error", err)
			continue
		}

		var attendees []string
		for _, a := range item.Attendees {
			if a.Email != "" {
				attendees = append(attendees, a.Email)
			}
		}
		var organizer string
		if item.Organizer != nil {
			organizer = item.Organizer.Email
		}

		out = append(out, models.CalendarEvent{
			ID:          item.Id,
			Title:       item.Summary,
			Description: item.Description,
			StartTime:   startTime,
			EndTime:     endTime,
			Location:    item.Location,
			Organizer:   organizer,
			Attendees:   attendees,
			UID:         item.ICalUID,
			Source:      "google-" + source,
		})
	}
	return out
}

// Create inserts an event and returns its ID. Attendees are notified.
func (c *CalendarClient) Create(ctx context.Context, ev models.CalendarEvent) (string, error) {
	body := &calendar.Event{
		Summary:     ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       &calendar.EventDateTime{DateTime: ev.StartTime.UTC().Format(time.RFC3339), TimeZone: "UTC"},
		End:         &calendar.EventDateTime{DateTime: ev.EndTime.UTC().Format(time.RFC3339), TimeZone: "UTC"},
	}
	for _, a := range ev.Attendees {
		body.Attendees = append(body.Attendees, &calendar.EventAttendee{Email: a})
	}
	sendUpdates := "none"
	if len(ev.Attendees) > 0 {
		sendUpdates = "all"
	}

	created, err := c.service.Events.Insert(c.calendarIDs[0], body).Context(ctx).SendUpdates(sendUpdates).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create event: %w", classify(err))
	}
	c.logger.Info("Created Google Calendar event", "id", created.Id, "title", ev.Title)
	return created.Id, nil
}

// Update applies the non-nil fields of upd to an existing event.
func (c *CalendarClient) Update(ctx context.Context, eventID string, upd models.EventUpdate) error {
	calendarID := c.calendarIDs[0]
	ev, err := c.service.Events.Get(calendarID, eventID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get event %s: %w", eventID, classify(err))
	}

	if upd.Title != nil {
		ev.Summary = *upd.Title
	}
	if upd.Description != nil {
		ev.Description = *upd.Description
	}
	if upd.Location != nil {
		ev.Location = *upd.Location
	}
	if upd.Start != nil {
		ev.Start = &calendar.EventDateTime{DateTime: upd.Start.UTC().Format(time.RFC3339), TimeZone: "UTC"}
	}
	if upd.End != nil {
		ev.End = &calendar.EventDateTime{DateTime: upd.End.UTC().Format(time.RFC3339), TimeZone: "UTC"}
	}

	if _, err := c.service.Events.Update(calendarID, eventID, ev).Context(ctx).SendUpdates("all").Do(); err != nil {
		return fmt.Errorf("failed to update event %s: %w", eventID, classify(err))
	}
	c.logger.Info("Updated Google Calendar event", "id", eventID)
	return nil
}

// Delete removes an event and notifies attendees.
func (c *CalendarClient) Delete(ctx context.Context, eventID string) error {
	if err := c.service.Events.Delete(c.calendarIDs[0], eventID).Context(ctx).SendUpdates("all").Do(); err != nil {
		return fmt.Errorf("failed to delete event %s: %w", eventID, classify(err))
	}
	c.logger.Info("Deleted Google Calendar event", "id", eventID)
	return nil
}

// DiscoverCalendars finds all calendars associated with the authenticated account.
func (c *CalendarClient) DiscoverCalendars(ctx context.Context) ([]string, error) {
	list, err := c.service.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", classify(err))
	}

	var calendarIDs []string
	for _, item := range list.Items {
		calendarIDs = append(calendarIDs, item.Id)
	}
	return calendarIDs, nil
}
