// Package caldav reads and writes events on a CalDAV calendar such as iCloud.
package caldav

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"donna/internal/ics"
	"donna/internal/models"
	"donna/internal/timewindow"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
)

// ICloudEndpoint is the default CalDAV server.
const ICloudEndpoint = "https://caldav.icloud.com/"

// authTransport adds Basic Auth and a User-Agent to each request and reports
// rejected credentials as models.ErrUnauthorized.
type authTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to each request.
func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.Username, t.Password)
	req.Header.Set("User-Agent", "donna/1.0")
	resp, err := t.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: CalDAV server rejected the credentials for %s", models.ErrUnauthorized, t.Username)
	}
	return resp, nil
}

// Client is a calendar source and writer for one named CalDAV calendar.
type Client struct {
	caldavClient *caldav.Client
	logger       *slog.Logger
	calendarPath string
	loc          *time.Location
	now          func() time.Time
}

// Config selects the server, account and calendar.
type Config struct {
	Endpoint     string // defaults to ICloudEndpoint
	Username     string
	Password     string
	CalendarName string
	Location     *time.Location // for floating times
	Transport    http.RoundTripper
}

// NewClient connects and finds the calendar named cfg.CalendarName.
func NewClient(ctx context.Context, logger *slog.Logger, cfg Config) (*Client, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("%w: CalDAV username and app-specific password are required", models.ErrUnauthorized)
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = ICloudEndpoint
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	httpClient := &http.Client{Transport: &authTransport{
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: cfg.Transport,
	}}

	caldavClient, err := caldav.NewClient(httpClient, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}

	c := &Client{
		caldavClient: caldavClient,
		logger:       logger,
		loc:          cfg.Location,
		now:          time.Now,
	}

	logger.Info("Finding CalDAV calendar", "calendarName", cfg.CalendarName)
	calendarPath, err := c.findCalendar(ctx, cfg.CalendarName)
	if err != nil {
		return nil, fmt.Errorf("could not find calendar '%s': %w", cfg.CalendarName, err)
	}
	c.calendarPath = calendarPath
	logger.Info("Successfully found CalDAV calendar", "path", calendarPath)

	return c, nil
}

// FetchUpcoming returns events overlapping [now, until].
func (c *Client) FetchUpcoming(ctx context.Context, until time.Time) ([]models.CalendarEvent, error) {
	now := c.now()
	objects, err := c.caldavClient.QueryCalendar(ctx, c.calendarPath, upcomingQuery(now, until))
	if err != nil {
		return nil, fmt.Errorf("failed to query CalDAV calendar: %w", err)
	}
	events := c.fromObjects(objects, timewindow.New(now, until))
	c.logger.Info("Fetched events from CalDAV", "count", len(events), "path", c.calendarPath)
	return events, nil
}

func upcomingQuery(from, until time.Time) *caldav.CalendarQuery {
	return &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:  ical.CompCalendar,
			Props: []string{ical.PropVersion},
			Comps: []caldav.CalendarCompRequest{{
				Name: ical.CompEvent,
				Props: []string{
					ical.PropUID, ical.PropSummary, ical.PropDescription, ical.PropLocation,
					ical.PropDateTimeStart, ical.PropDateTimeEnd, ical.PropDuration,
					ical.PropOrganizer, ical.PropAttendee,
					ical.PropRecurrenceRule, ical.PropRecurrenceDates, ical.PropExceptionDates, ical.PropRecurrenceID,
				},
			}},
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: from.UTC(),
				End:   until.UTC(),
			}},
		},
	}
}

// fromObjects converts calendar objects, expanding recurring series over span.
func (c *Client) fromObjects(objects []caldav.CalendarObject, span timewindow.Window) []models.CalendarEvent {
	var events []models.CalendarEvent
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		converted, skipped := ics.ExpandAll(obj.Data.Events(), c.loc, "caldav", span)
		for _, err := range skipped {
			c.logger.Warn("Skipping unreadable CalDAV event", "path", obj.Path, "error", err)
		}
		events = append(events, converted...)
	}
	return events
}

// Create writes ev as a new calendar object and returns its UID.
func (c *Client) Create(ctx context.Context, ev models.CalendarEvent) (string, error) {
	if ev.UID == "" {
		ev.UID = uuid.New().String()
	}
	c.logger.Debug("Writing event to CalDAV", "eventTitle", ev.Title, "uid", ev.UID)

	if _, err := c.caldavClient.PutCalendarObject(ctx, c.objectPath(ev.UID), ics.NewCalendar(ev, c.now())); err != nil {
		return "", fmt.Errorf("failed to create event on CalDAV server: %w", err)
	}
	c.logger.Info("Created CalDAV event", "eventTitle", ev.Title, "uid", ev.UID)
	return ev.UID, nil
}

// Update rewrites the object for uid with the non-nil fields of upd applied.
func (c *Client) Update(ctx context.Context, uid string, upd models.EventUpdate) error {
	obj, err := c.caldavClient.GetCalendarObject(ctx, c.objectPath(uid))
	if err != nil {
		return fmt.Errorf("failed to get CalDAV event %s: %w", uid, err)
	}
	events := obj.Data.Events()
	if len(events) == 0 {
		return fmt.Errorf("CalDAV object %s holds no event", uid)
	}
	ve := events[0]

	if upd.Title != nil {
		ve.Props.SetText(ical.PropSummary, *upd.Title)
	}
	if upd.Description != nil {
		ve.Props.SetText(ical.PropDescription, *upd.Description)
	}
	if upd.Location != nil {
		ve.Props.SetText(ical.PropLocation, *upd.Location)
	}
	if upd.Start != nil {
		ve.Props.SetDateTime(ical.PropDateTimeStart, upd.Start.UTC())
	}
	if upd.End != nil {
		ve.Props.Del(ical.PropDuration)
		ve.Props.SetDateTime(ical.PropDateTimeEnd, upd.End.UTC())
	}
	ve.Props.SetDateTime(ical.PropDateTimeStamp, c.now().UTC())

	if _, err := c.caldavClient.PutCalendarObject(ctx, obj.Path, obj.Data); err != nil {
		return fmt.Errorf("failed to update CalDAV event %s: %w", uid, err)
	}
	c.logger.Info("Updated CalDAV event", "uid", uid)
	return nil
}

// Delete removes the object for uid.
func (c *Client) Delete(ctx context.Context, uid string) error {
	if err := c.caldavClient.RemoveAll(ctx, c.objectPath(uid)); err != nil {
		return fmt.Errorf("failed to delete CalDAV event %s: %w", uid, err)
	}
	c.logger.Info("Deleted CalDAV event", "uid", uid)
	return nil
}

func (c *Client) objectPath(uid string) string {
	return path.Join(c.calendarPath, uid+".ics")
}

// findCalendar discovers the user's calendars and returns the path of the one
// with the matching name.
func (c *Client) findCalendar(ctx context.Context, name string) (string, error) {
	principalPath, err := c.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}

	homeSetPath, err := c.caldavClient.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}

	calendars, err := c.caldavClient.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}

	return pickCalendar(calendars, name)
}

var errNoCalendar = errors.New("no calendar found")

// pickCalendar matches by display name, ignoring case. An empty name takes
// the first calendar that stores events.
func pickCalendar(calendars []caldav.Calendar, name string) (string, error) {
	for _, cal := range calendars {
		if !supportsEvents(cal) {
			continue
		}
		if name == "" || strings.EqualFold(cal.Name, name) {
			return cal.Path, nil
		}
	}
	return "", fmt.Errorf("%w with name '%s'", errNoCalendar, name)
}

func supportsEvents(cal caldav.Calendar) bool {
	if len(cal.SupportedComponentSet) == 0 {
		return true
	}
	for _, comp := range cal.SupportedComponentSet {
		if comp == ical.CompEvent {
			return true
		}
	}
	return false
}
