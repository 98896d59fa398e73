// Package ics converts between iCalendar VEVENTs and calendar events and reads
// ICS feeds such as course schedules published as a secret URL.
package ics

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"donna/internal/models"
	"donna/internal/timewindow"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
)

const productID = "-//donna//EN"

// Decode reads every VEVENT in r, expanding recurring events over span (see
// ExpandAll). Floating times are read in loc. Events that cannot be converted
// are returned in skipped rather than failing the decode.
func Decode(r io.Reader, loc *time.Location, source string, span timewindow.Window) (events []models.CalendarEvent, skipped []error, err error) {
	dec := ical.NewDecoder(r)
	for {
		cal, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return events, skipped, nil
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to decode iCalendar data: %w", err)
		}
		evs, bad := ExpandAll(cal.Events(), loc, source, span)
		events = append(events, evs...)
		skipped = append(skipped, bad...)
	}
}

// EventFromICal converts a VEVENT. A date-only DTSTART is a deadline at local
// midnight; a missing DTEND makes the event a point in time.
func EventFromICal(ev ical.Event, loc *time.Location, source string) (models.CalendarEvent, error) {
	uid := text(ev.Component, ical.PropUID)
	summary := text(ev.Component, ical.PropSummary)

	startProp := ev.Props.Get(ical.PropDateTimeStart)
	if startProp == nil {
		return models.CalendarEvent{}, fmt.Errorf("event %q has no DTSTART", firstNonEmpty(uid, summary))
	}
	start, err := startProp.DateTime(loc)
	if err != nil {
		return models.CalendarEvent{}, fmt.Errorf("event %q has an invalid DTSTART: %w", firstNonEmpty(uid, summary), err)
	}

	end := start
	if startProp.ValueType() != ical.ValueDate {
		if ev.Props.Get(ical.PropDateTimeEnd) != nil || ev.Props.Get(ical.PropDuration) != nil {
			end, err = ev.DateTimeEnd(loc)
			if err != nil {
				return models.CalendarEvent{}, fmt.Errorf("event %q has an invalid end: %w", firstNonEmpty(uid, summary), err)
			}
		}
	}

	description := text(ev.Component, ical.PropDescription)
	out := models.CalendarEvent{
		ID:             uid,
		UID:            uid,
		Title:          summary,
		Description:    description,
		StartTime:      start,
		EndTime:        end,
		Location:       text(ev.Component, ical.PropLocation),
		Source:         source,
		RequiresAction: LooksLikeAssignment(summary, description),
	}
	if out.ID == "" {
		out.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(source+"|"+summary+"|"+start.UTC().Format(time.RFC3339))).String()
	}
	if p := ev.Props.Get(ical.PropOrganizer); p != nil {
		out.Organizer = mailAddress(p.Value)
	}
	for _, p := range ev.Props.Values(ical.PropAttendee) {
		out.Attendees = append(out.Attendees, mailAddress(p.Value))
	}
	return out, nil
}

// LooksLikeAssignment flags coursework and deadlines by keyword.
func LooksLikeAssignment(summary, description string) bool {
	s := strings.ToLower(summary)
	d := strings.ToLower(description)
	return strings.Contains(d, "assign") || strings.Contains(s, "due") || strings.Contains(d, "due")
}

// Component builds a VEVENT for ev. stamp becomes DTSTAMP.
func Component(ev models.CalendarEvent, stamp time.Time) *ical.Component {
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, ev.UID)
	ve.Props.SetText(ical.PropSummary, ev.Title)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	ve.Props.SetDateTime(ical.PropDateTimeStart, ev.StartTime.UTC())
	ve.Props.SetDateTime(ical.PropDateTimeEnd, ev.EndTime.UTC())

	if ev.Description != "" {
		ve.Props.SetText(ical.PropDescription, ev.Description)
	}
	if ev.Location != "" {
		ve.Props.SetText(ical.PropLocation, ev.Location)
	}
	if ev.Organizer != "" {
		p := ical.NewProp(ical.PropOrganizer)
		p.Value = "mailto:" + ev.Organizer
		ve.Props.Add(p)
	}
	for _, attendee := range ev.Attendees {
		p := ical.NewProp(ical.PropAttendee)
		p.Value = "mailto:" + attendee
		ve.Props.Add(p)
	}
	return ve
}

// NewCalendar wraps a single event in a VCALENDAR ready to encode.
func NewCalendar(ev models.CalendarEvent, stamp time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Children = append(cal.Children, Component(ev, stamp))
	return cal
}

func text(c *ical.Component, name string) string {
	v, err := c.Props.Text(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(v)
}

func mailAddress(v string) string {
	if len(v) >= 7 && strings.EqualFold(v[:7], "mailto:") {
		return v[7:]
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
