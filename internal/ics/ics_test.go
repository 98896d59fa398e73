package ics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"donna/internal/models"
	"donna/internal/timewindow"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func calendarData(events ...string) string {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\n")
	for _, e := range events {
		b.WriteString(e)
	}
	b.WriteString("END:VCALENDAR\r\n")
	return b.String()
}

const lecture = "BEGIN:VEVENT\r\nUID:lecture-1\r\nDTSTAMP:20250301T000000Z\r\n" +
	"SUMMARY:CSE 340 Lecture\r\nLOCATION:Building 12 Room 101\r\n" +
	"ORGANIZER:mailto:prof@example.edu\r\nATTENDEE:mailto:me@example.edu\r\n" +
	"DTSTART:20250310T160000Z\r\nDTEND:20250310T171500Z\r\nEND:VEVENT\r\n"

const homework = "BEGIN:VEVENT\r\nUID:hw-3\r\nDTSTAMP:20250301T000000Z\r\n" +
	"SUMMARY:Homework 3\r\nDESCRIPTION:Assignment submission\r\n" +
	"DTSTART;VALUE=DATE:20250312\r\nEND:VEVENT\r\n"

const floating = "BEGIN:VEVENT\r\nDTSTAMP:20250301T000000Z\r\n" +
	"SUMMARY:Lab\r\nDTSTART:20250310T090000\r\nDURATION:PT2H\r\nEND:VEVENT\r\n"

const broken = "BEGIN:VEVENT\r\nUID:broken\r\nDTSTAMP:20250301T000000Z\r\nSUMMARY:No start\r\nEND:VEVENT\r\n"

func TestDecode(t *testing.T) {
	phoenix, err := time.LoadLocation("America/Phoenix")
	require.NoError(t, err)

	events, skipped, err := Decode(strings.NewReader(calendarData(lecture, homework, floating, broken)), phoenix, "canvas", timewindow.Window{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Len(t, skipped, 1)
	assert.Contains(t, skipped[0].Error(), "broken")

	lec := events[0]
	assert.Equal(t, "lecture-1", lec.ID)
	assert.Equal(t, "CSE 340 Lecture", lec.Title)
	assert.Equal(t, "Building 12 Room 101", lec.Location)
	assert.Equal(t, "prof@example.edu", lec.Organizer)
	assert.Equal(t, []string{"me@example.edu"}, lec.Attendees)
	assert.Equal(t, 75*time.Minute, lec.EndTime.Sub(lec.StartTime))
	assert.False(t, lec.RequiresAction)
	assert.Equal(t, "canvas", lec.Source)

	hw := events[1]
	assert.True(t, hw.RequiresAction)
	assert.True(t, hw.StartTime.Equal(time.Date(2025, 3, 12, 0, 0, 0, 0, phoenix)))
	assert.True(t, hw.EndTime.Equal(hw.StartTime), "a date-only event is a point-in-time deadline")

	lab := events[2]
	assert.True(t, lab.StartTime.Equal(time.Date(2025, 3, 10, 9, 0, 0, 0, phoenix)), "floating time uses the given location")
	assert.Equal(t, 2*time.Hour, lab.EndTime.Sub(lab.StartTime))
	assert.NotEmpty(t, lab.ID, "missing UID gets a stable derived ID")

	again, _, err := Decode(strings.NewReader(calendarData(floating)), phoenix, "canvas", timewindow.Window{})
	require.NoError(t, err)
	assert.Equal(t, lab.ID, again[0].ID)
}

func TestDecode_Garbage(t *testing.T) {
	_, _, err := Decode(strings.NewReader("not a calendar"), time.UTC, "x", timewindow.Window{})
	assert.Error(t, err)
}

func TestLooksLikeAssignment(t *testing.T) {
	assert.True(t, LooksLikeAssignment("Essay due", ""))
	assert.True(t, LooksLikeAssignment("Quiz", "This assignment covers chapter 2"))
	assert.True(t, LooksLikeAssignment("Quiz", "Due Friday"))
	assert.False(t, LooksLikeAssignment("Lecture", "Chapter 2"))
}

func TestNewCalendarEncodes(t *testing.T) {
	ev := models.CalendarEvent{
		UID:       "abc",
		Title:     "Focus time",
		StartTime: testNow,
		EndTime:   testNow.Add(time.Hour),
		Location:  "Office",
		Organizer: "me@example.com",
		Attendees: []string{"bob@example.com"},
	}

	var buf bytes.Buffer
	require.NoError(t, ical.NewEncoder(&buf).Encode(NewCalendar(ev, testNow)))

	events, skipped, err := Decode(&buf, time.UTC, "caldav", timewindow.Window{})
	require.NoError(t, err)
	assert.Empty(t, skipped)
	require.Len(t, events, 1)
	assert.Equal(t, "abc", events[0].UID)
	assert.Equal(t, "Focus time", events[0].Title)
	assert.True(t, events[0].StartTime.Equal(testNow))
	assert.Equal(t, "me@example.com", events[0].Organizer)
	assert.Equal(t, []string{"bob@example.com"}, events[0].Attendees)
}

func TestFeed_FetchUpcoming(t *testing.T) {
	past := "BEGIN:VEVENT\r\nUID:old\r\nDTSTAMP:20250301T000000Z\r\nSUMMARY:Old\r\n" +
		"DTSTART:20250301T100000Z\r\nDTEND:20250301T110000Z\r\nEND:VEVENT\r\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		fmt.Fprint(w, calendarData(past, lecture, homework))
	}))
	defer srv.Close()

	f := NewFeed(testLogger(), srv.URL+"/feeds/user.ics", time.UTC, srv.Client())
	f.now = func() time.Time { return testNow }

	events, err := f.FetchUpcoming(context.Background(), testNow.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "lecture-1", events[0].ID)
	assert.True(t, strings.HasPrefix(events[0].Source, "ics-127.0.0.1"))

	events, err = f.FetchUpcoming(context.Background(), testNow.Add(7*24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestFeed_Errors(t *testing.T) {
	status := http.StatusForbidden
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	f := NewFeed(testLogger(), srv.URL, nil, srv.Client())

	_, err := f.FetchUpcoming(context.Background(), testNow)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	status = http.StatusBadGateway
	_, err = f.FetchUpcoming(context.Background(), testNow)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrUnauthorized)
}
