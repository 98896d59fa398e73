package ics

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"donna/internal/models"
	"donna/internal/timewindow"

	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"
)

// occurrenceID names one instance of a recurring event.
func occurrenceID(eventID string, start time.Time) string {
	return eventID + "_" + start.UTC().Format("20060102T150405Z")
}

// ExpandAll converts the VEVENTs of one calendar in order. Recurring events
// become one event per occurrence overlapping span, and a VEVENT carrying
// RECURRENCE-ID replaces the occurrence it names. With a zero span nothing is
// expanded. Events that cannot be converted are returned in skipped.
func ExpandAll(events []ical.Event, loc *time.Location, source string, span timewindow.Window) (out []models.CalendarEvent, skipped []error) {
	// uid -> unix start of each overridden occurrence
	overridden := make(map[string]map[int64]bool)
	for _, ev := range events {
		rid := ev.Props.Get(ical.PropRecurrenceID)
		if rid == nil {
			continue
		}
		at, err := rid.DateTime(loc)
		if err != nil {
			continue
		}
		uid := text(ev.Component, ical.PropUID)
		if overridden[uid] == nil {
			overridden[uid] = make(map[int64]bool)
		}
		overridden[uid][at.Unix()] = true
	}

	for _, ev := range events {
		base, err := EventFromICal(ev, loc, source)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}

		if rid := ev.Props.Get(ical.PropRecurrenceID); rid != nil {
			at, err := rid.DateTime(loc)
			if err != nil {
				skipped = append(skipped, fmt.Errorf("event %q has an invalid RECURRENCE-ID: %w", base.ID, err))
				continue
			}
			base.ID = occurrenceID(base.UID, at)
			if inSpan(base, span) {
				out = append(out, base)
			}
			continue
		}

		set, err := ev.RecurrenceSet(loc)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("event %q has an invalid recurrence: %w", base.ID, err))
			continue
		}
		if set == nil || !span.Valid() {
			out = append(out, base)
			continue
		}
		skip := exceptionDates(ev, loc)
		for at := range overridden[base.UID] {
			skip[at] = true
		}
		out = append(out, occurrences(base, set, span, skip)...)
	}
	return out, skipped
}

func occurrences(base models.CalendarEvent, set *rrule.Set, span timewindow.Window, skip map[int64]bool) []models.CalendarEvent {
	length := base.EndTime.Sub(base.StartTime)
	var out []models.CalendarEvent
	for _, start := range set.Between(span.Start.Add(-length), span.End, true) {
		if skip[start.Unix()] {
			continue
		}
		occ := base
		occ.ID = occurrenceID(base.ID, start)
		occ.StartTime = start.In(base.StartTime.Location())
		occ.EndTime = occ.StartTime.Add(length)
		if !inSpan(occ, span) {
			continue
		}
		occ.Attendees = slices.Clone(base.Attendees)
		out = append(out, occ)
	}
	return out
}

// exceptionDates collects EXDATE values. One property may list several.
func exceptionDates(ev ical.Event, loc *time.Location) map[int64]bool {
	skip := make(map[int64]bool)
	for _, p := range ev.Props.Values(ical.PropExceptionDates) {
		for _, v := range strings.Split(p.Value, ",") {
			one := p
			one.Value = strings.TrimSpace(v)
			if t, err := one.DateTime(loc); err == nil {
				skip[t.Unix()] = true
			}
		}
	}
	return skip
}

// inSpan is the half-open overlap test; a point event must start inside span.
func inSpan(ev models.CalendarEvent, span timewindow.Window) bool {
	if !span.Valid() {
		return true
	}
	w := timewindow.New(ev.StartTime, ev.EndTime)
	if w.Duration() == 0 {
		return !w.Start.Before(span.Start) && w.Start.Before(span.End)
	}
	return span.Overlaps(w)
}
