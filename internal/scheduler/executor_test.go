package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"donna/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

type fakeCalendar struct {
	created []models.CalendarEvent
	updated map[string]models.EventUpdate
	deleted []string
	err     error
}

func (f *fakeCalendar) Create(_ context.Context, ev models.CalendarEvent) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.created = append(f.created, ev)
	return "new-1", nil
}

func (f *fakeCalendar) Update(_ context.Context, id string, upd models.EventUpdate) error {
	if f.err != nil {
		return f.err
	}
	if f.updated == nil {
		f.updated = map[string]models.EventUpdate{}
	}
	f.updated[id] = upd
	return nil
}

func (f *fakeCalendar) Delete(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeMailer struct {
	sent, drafts []models.OutgoingEmail
	inbox        []models.EmailData
	since        time.Time
}

func (f *fakeMailer) Message(_ context.Context, id string) (models.EmailData, error) {
	for _, e := range f.inbox {
		if e.ID == id {
			return e, nil
		}
	}
	return models.EmailData{}, errors.New("404 not found")
}

func (f *fakeMailer) FetchRecent(_ context.Context, since time.Time) ([]models.EmailData, error) {
	f.since = since
	return f.inbox, nil
}

func (f *fakeMailer) Send(_ context.Context, msg models.OutgoingEmail) (string, error) {
	f.sent = append(f.sent, msg)
	return "m1", nil
}

func (f *fakeMailer) Draft(_ context.Context, msg models.OutgoingEmail) (string, error) {
	f.drafts = append(f.drafts, msg)
	return "d1", nil
}

func newTestExecutor(cal CalendarWriter, mail Mailer) *Executor {
	x := NewExecutor(slog.New(slog.NewTextHandler(io.Discard, nil)), cal, mail, time.UTC)
	x.now = func() time.Time { return testNow }
	return x
}

func action(typ string, params map[string]any) models.Action {
	return models.Action{Type: typ, Parameters: params}
}

func TestExecute_Reschedule(t *testing.T) {
	cal := &fakeCalendar{}
	x := newTestExecutor(cal, nil)

	res := x.Execute(context.Background(), action(RescheduleMeeting, map[string]any{
		"event_id": "e1", "new_start_time": "2025-03-10T15:00:00Z",
	}))

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "Meeting rescheduled to 2025-03-10 15:00", res.Message)
	assert.Equal(t, testNow, res.CompletedAt)
	upd := cal.updated["e1"]
	require.NotNil(t, upd.Start)
	require.NotNil(t, upd.End)
	assert.Equal(t, time.Hour, upd.End.Sub(*upd.Start))
}

func TestExecute_RescheduleValidation(t *testing.T) {
	x := newTestExecutor(&fakeCalendar{}, nil)

	res := x.Execute(context.Background(), action(RescheduleMeeting, map[string]any{}))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "missing required parameters")

	res = x.Execute(context.Background(), action(RescheduleMeeting, map[string]any{"event_id": "e1", "new_start_time": "tomorrow"}))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "invalid new_start_time")

	res = x.Execute(context.Background(), action(RescheduleMeeting, map[string]any{
		"event_id": "e1", "new_start_time": "2025-03-10T15:00:00Z", "new_end_time": "2025-03-10T14:00:00Z",
	}))
	assert.False(t, res.Success)
}

func TestExecute_Cancel(t *testing.T) {
	cal := &fakeCalendar{}
	x := newTestExecutor(cal, nil)

	res := x.Execute(context.Background(), action(CancelMeeting, map[string]any{"event_id": "e1", "reason": "double booked"}))
	require.True(t, res.Success)
	assert.Equal(t, "Meeting cancelled: double booked", res.Message)
	assert.Equal(t, []string{"e1"}, cal.deleted)
}

func TestExecute_Create(t *testing.T) {
	cal := &fakeCalendar{}
	x := newTestExecutor(cal, nil)

	res := x.Execute(context.Background(), action(CreateMeeting, map[string]any{
		"title":      "1:1",
		"start_time": "2025-03-11T09:00",
		"end_time":   "2025-03-11T09:30",
		"attendees":  []any{"bob@example.com", 7, ""},
	}))
	require.True(t, res.Success, res.Error)
	require.Len(t, cal.created, 1)
	assert.Equal(t, []string{"bob@example.com"}, cal.created[0].Attendees)
	assert.Equal(t, 30*time.Minute, cal.created[0].EndTime.Sub(cal.created[0].StartTime))

	res = x.Execute(context.Background(), action(CreateMeeting, map[string]any{"title": "x", "start_time": "2025-03-11T09:00"}))
	assert.False(t, res.Success)
	assert.Equal(t, "missing required field: end_time", res.Error)
}

func TestExecute_Update(t *testing.T) {
	cal := &fakeCalendar{}
	x := newTestExecutor(cal, nil)

	res := x.Execute(context.Background(), action(UpdateMeeting, map[string]any{"event_id": "e1", "location": "Room B"}))
	require.True(t, res.Success)
	require.NotNil(t, cal.updated["e1"].Location)
	assert.Equal(t, "Room B", *cal.updated["e1"].Location)
	assert.Nil(t, cal.updated["e1"].Title)

	res = x.Execute(context.Background(), action(UpdateMeeting, map[string]any{"event_id": "e2"}))
	assert.False(t, res.Success)
	assert.Equal(t, "no updates specified", res.Error)
}

func TestExecute_BlockTime(t *testing.T) {
	cal := &fakeCalendar{}
	x := newTestExecutor(cal, nil)

	res := x.Execute(context.Background(), action(BlockTime, map[string]any{"start_time": "2025-03-10T13:00:00Z", "duration_minutes": float64(90)}))
	require.True(t, res.Success, res.Error)
	require.Len(t, cal.created, 1)
	assert.Equal(t, "Blocked Time", cal.created[0].Title)
	assert.Equal(t, 90*time.Minute, cal.created[0].EndTime.Sub(cal.created[0].StartTime))

	res = x.Execute(context.Background(), action(BlockTime, map[string]any{}))
	assert.False(t, res.Success)
}

func TestExecute_Mail(t *testing.T) {
	mail := &fakeMailer{}
	x := newTestExecutor(nil, mail)

	res := x.Execute(context.Background(), action(SendEmail, map[string]any{"to": "bob@example.com", "subject": "Late", "body": "10 min"}))
	require.True(t, res.Success)
	assert.Equal(t, "Email sent to bob@example.com", res.Message)

	res = x.Execute(context.Background(), action(DraftReply, map[string]any{"to": "ana@example.com", "body": "Approved", "thread_id": "t1"}))
	require.True(t, res.Success)
	require.Len(t, mail.drafts, 1)
	assert.Equal(t, "t1", mail.drafts[0].ThreadID)

	res = x.Execute(context.Background(), action(SendEmail, map[string]any{"subject": "no recipient"}))
	assert.False(t, res.Success)
}

func TestExecute_MissingCollaborators(t *testing.T) {
	x := newTestExecutor(nil, nil)

	res := x.Execute(context.Background(), action(CancelMeeting, map[string]any{"event_id": "e1"}))
	assert.Equal(t, "calendar not available", res.Error)

	res = x.Execute(context.Background(), action(SendEmail, map[string]any{"to": "a@b.c", "body": "x"}))
	assert.Equal(t, "email not available", res.Error)
}

func TestExecute_UnknownAndFailing(t *testing.T) {
	x := newTestExecutor(&fakeCalendar{err: errors.New("403 forbidden")}, nil)

	res := x.Execute(context.Background(), action("create_reminder", nil))
	assert.False(t, res.Success)
	assert.Equal(t, "unknown action type: create_reminder", res.Error)
	assert.Equal(t, testNow, res.CompletedAt)

	res = x.Execute(context.Background(), action(CancelMeeting, map[string]any{"event_id": "e1"}))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "403 forbidden")
}

func legalInbox() []models.EmailData {
	return []models.EmailData{
		{ID: "m1", ThreadID: "t1", Subject: "Lunch?", Sender: "Bob <bob@example.com>"},
		{ID: "m2", ThreadID: "t2", MessageID: "<m2@example.com>", Subject: "Contract review", Sender: "Legal Team <legal@example.com>"},
	}
}

func TestExecute_DraftReplyBySender(t *testing.T) {
	mail := &fakeMailer{inbox: legalInbox()}
	x := newTestExecutor(nil, mail)

	res := x.Execute(context.Background(), action(DraftReply, map[string]any{"sender": "legal", "body": "Signed, see attached."}))

	require.True(t, res.Success, res.Error)
	assert.Equal(t, testNow.Add(-24*time.Hour), mail.since)
	require.Len(t, mail.drafts, 1)
	assert.Equal(t, models.OutgoingEmail{
		To:        "legal@example.com",
		Subject:   "Re: Contract review",
		Body:      "Signed, see attached.",
		ThreadID:  "t2",
		InReplyTo: "<m2@example.com>",
	}, mail.drafts[0])
	assert.Contains(t, res.Message, "Legal Team <legal@example.com>")
}

func TestExecute_DraftReplyByEmailID(t *testing.T) {
	inbox := legalInbox()
	inbox[0].Subject = "Re: Lunch?"
	mail := &fakeMailer{inbox: inbox}
	x := newTestExecutor(nil, mail)

	res := x.Execute(context.Background(), action(DraftReply, map[string]any{"email_id": "m1", "body": "Sure"}))

	require.True(t, res.Success, res.Error)
	require.Len(t, mail.drafts, 1)
	assert.Equal(t, "bob@example.com", mail.drafts[0].To)
	assert.Equal(t, "Re: Lunch?", mail.drafts[0].Subject)
	assert.Equal(t, "t1", mail.drafts[0].ThreadID)
	assert.True(t, mail.since.IsZero(), "lookup by id does not search the inbox")
}

func TestExecute_DraftReplyNotFound(t *testing.T) {
	x := newTestExecutor(nil, &fakeMailer{inbox: legalInbox()})

	res := x.Execute(context.Background(), action(DraftReply, map[string]any{"sender": "finance", "body": "ok"}))
	assert.False(t, res.Success)
	assert.Equal(t, "no recent email from 'finance'", res.Error)

	res = x.Execute(context.Background(), action(DraftReply, map[string]any{"email_id": "nope", "body": "ok"}))
	assert.False(t, res.Success)

	res = x.Execute(context.Background(), action(DraftReply, map[string]any{"sender": "legal"}))
	assert.Equal(t, "reply body required", res.Error)
}
