// Package scheduler carries out the actions a user asks for in a reply.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"donna/internal/models"
)

// Action types understood by Executor.
const (
	RescheduleMeeting = "reschedule_meeting"
	CancelMeeting     = "cancel_meeting"
	CreateMeeting     = "create_meeting"
	UpdateMeeting     = "update_meeting"
	BlockTime         = "block_time"
	SendEmail         = "send_email"
	DraftReply        = "draft_reply"
)

const (
	defaultMeetingLength = time.Hour
	defaultBlockMinutes  = 60
	// how far back draft_reply looks for a sender's email
	replyLookback = 24 * time.Hour
)

// CalendarWriter changes events on the user's calendar.
type CalendarWriter interface {
	Create(ctx context.Context, ev models.CalendarEvent) (string, error)
	Update(ctx context.Context, eventID string, upd models.EventUpdate) error
	Delete(ctx context.Context, eventID string) error
}

// Mailer sends mail or saves drafts, and finds the email a reply answers.
type Mailer interface {
	Send(ctx context.Context, msg models.OutgoingEmail) (string, error)
	Draft(ctx context.Context, msg models.OutgoingEmail) (string, error)
	Message(ctx context.Context, id string) (models.EmailData, error)
	FetchRecent(ctx context.Context, since time.Time) ([]models.EmailData, error)
}

// Executor dispatches actions to the calendar and mail collaborators. Either
// may be nil, in which case actions needing it fail.
type Executor struct {
	logger   *slog.Logger
	calendar CalendarWriter
	mail     Mailer
	loc      *time.Location
	now      func() time.Time
}

// NewExecutor creates an Executor. Times without an offset are read in loc.
func NewExecutor(logger *slog.Logger, calendar CalendarWriter, mail Mailer, loc *time.Location) *Executor {
	if loc == nil {
		loc = time.UTC
	}
	return &Executor{logger: logger, calendar: calendar, mail: mail, loc: loc, now: time.Now}
}

var (
	errNoCalendar = errors.New("calendar not available")
	errNoMail     = errors.New("email not available")
)

// Execute runs one action. Failures come back in the result.
func (x *Executor) Execute(ctx context.Context, action models.Action) models.ActionResult {
	x.logger.Info("Executing action", "type", action.Type)

	var (
		msg string
		err error
	)
	switch action.Type {
	case RescheduleMeeting:
		msg, err = x.reschedule(ctx, action)
	case CancelMeeting:
		msg, err = x.cancel(ctx, action)
	case CreateMeeting:
		msg, err = x.create(ctx, action)
	case UpdateMeeting:
		msg, err = x.update(ctx, action)
	case BlockTime:
		msg, err = x.block(ctx, action)
	case SendEmail:
		msg, err = x.send(ctx, action)
	case DraftReply:
		msg, err = x.draft(ctx, action)
	default:
		err = fmt.Errorf("unknown action type: %s", action.Type)
	}

	result := models.ActionResult{Action: action, CompletedAt: x.now()}
	if err != nil {
		x.logger.Error("Action failed", "type", action.Type, "error", err)
		result.Error = err.Error()
		return result
	}
	result.Success = true
	result.Message = msg
	return result
}

func (x *Executor) reschedule(ctx context.Context, a models.Action) (string, error) {
	if x.calendar == nil {
		return "", errNoCalendar
	}
	eventID := a.StringParam("event_id")
	start, err := x.timeParam(a, "new_start_time", "new_time")
	if err != nil {
		return "", err
	}
	if eventID == "" || start.IsZero() {
		return "", errors.New("missing required parameters: event_id and new_start_time")
	}
	end, err := x.timeParam(a, "new_end_time")
	if err != nil {
		return "", err
	}
	if end.IsZero() {
		end = start.Add(defaultMeetingLength)
	}
	if end.Before(start) {
		return "", errors.New("new_end_time is before new_start_time")
	}

	if err := x.calendar.Update(ctx, eventID, models.EventUpdate{Start: &start, End: &end}); err != nil {
		return "", fmt.Errorf("failed to reschedule meeting: %w", err)
	}
	return "Meeting rescheduled to " + start.In(x.loc).Format("2006-01-02 15:04"), nil
}

func (x *Executor) cancel(ctx context.Context, a models.Action) (string, error) {
	if x.calendar == nil {
		return "", errNoCalendar
	}
	eventID := a.StringParam("event_id")
	if eventID == "" {
		return "", errors.New("event ID required")
	}
	reason := a.StringParam("reason")
	if reason == "" {
		reason = "Meeting cancelled by Donna"
	}
	if err := x.calendar.Delete(ctx, eventID); err != nil {
		return "", fmt.Errorf("failed to cancel meeting: %w", err)
	}
	return "Meeting cancelled: " + reason, nil
}

func (x *Executor) create(ctx context.Context, a models.Action) (string, error) {
	if x.calendar == nil {
		return "", errNoCalendar
	}
	for _, field := range []string{"title", "start_time", "end_time"} {
		if _, ok := a.Parameters[field]; !ok {
			return "", fmt.Errorf("missing required field: %s", field)
		}
	}
	start, err := x.timeParam(a, "start_time")
	if err != nil {
		return "", err
	}
	end, err := x.timeParam(a, "end_time")
	if err != nil {
		return "", err
	}
	return x.insert(ctx, models.CalendarEvent{
		Title:       a.StringParam("title"),
		Description: a.StringParam("description"),
		Location:    a.StringParam("location"),
		Attendees:   stringsParam(a, "attendees"),
		StartTime:   start,
		EndTime:     end,
	})
}

func (x *Executor) insert(ctx context.Context, ev models.CalendarEvent) (string, error) {
	if !ev.EndTime.After(ev.StartTime) {
		return "", errors.New("end_time must be after start_time")
	}
	id, err := x.calendar.Create(ctx, ev)
	if err != nil {
		return "", fmt.Errorf("failed to create meeting: %w", err)
	}
	return fmt.Sprintf("Meeting created: %s (%s)", ev.Title, id), nil
}

func (x *Executor) update(ctx context.Context, a models.Action) (string, error) {
	if x.calendar == nil {
		return "", errNoCalendar
	}
	eventID := a.StringParam("event_id")
	if eventID == "" {
		return "", errors.New("event ID required")
	}

	var upd models.EventUpdate
	if v, ok := a.Parameters["title"].(string); ok {
		upd.Title = &v
	}
	if v, ok := a.Parameters["location"].(string); ok {
		upd.Location = &v
	}
	if v, ok := a.Parameters["description"].(string); ok {
		upd.Description = &v
	}
	start, err := x.timeParam(a, "start_time")
	if err != nil {
		return "", err
	}
	if !start.IsZero() {
		upd.Start = &start
	}
	end, err := x.timeParam(a, "end_time")
	if err != nil {
		return "", err
	}
	if !end.IsZero() {
		upd.End = &end
	}
	if upd.Empty() {
		return "", errors.New("no updates specified")
	}

	if err := x.calendar.Update(ctx, eventID, upd); err != nil {
		return "", fmt.Errorf("failed to update meeting: %w", err)
	}
	return "Meeting updated successfully", nil
}

func (x *Executor) block(ctx context.Context, a models.Action) (string, error) {
	if x.calendar == nil {
		return "", errNoCalendar
	}
	start, err := x.timeParam(a, "start_time")
	if err != nil {
		return "", err
	}
	if start.IsZero() {
		return "", errors.New("start time required")
	}
	minutes := intParam(a, "duration_minutes", defaultBlockMinutes)
	title := a.StringParam("title")
	if title == "" {
		title = "Blocked Time"
	}
	return x.insert(ctx, models.CalendarEvent{
		Title:       title,
		Description: "Time blocked by Donna",
		StartTime:   start,
		EndTime:     start.Add(time.Duration(minutes) * time.Minute),
	})
}

func (x *Executor) send(ctx context.Context, a models.Action) (string, error) {
	if x.mail == nil {
		return "", errNoMail
	}
	msg, err := outgoing(a)
	if err != nil {
		return "", err
	}
	if _, err := x.mail.Send(ctx, msg); err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}
	return "Email sent to " + msg.To, nil
}

func (x *Executor) draft(ctx context.Context, a models.Action) (string, error) {
	if x.mail == nil {
		return "", errNoMail
	}
	if a.StringParam("to") == "" && (a.StringParam("email_id") != "" || a.StringParam("sender") != "") {
		return x.draftReply(ctx, a)
	}
	msg, err := outgoing(a)
	if err != nil {
		return "", err
	}
	id, err := x.mail.Draft(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("failed to draft reply: %w", err)
	}
	return fmt.Sprintf("Draft saved for %s (%s)", msg.To, id), nil
}

// draftReply answers an existing email found by id or by a sender substring,
// keeping the reply in the same thread.
func (x *Executor) draftReply(ctx context.Context, a models.Action) (string, error) {
	body := a.StringParam("body")
	if body == "" {
		return "", errors.New("reply body required")
	}
	original, err := x.findEmail(ctx, a.StringParam("email_id"), a.StringParam("sender"))
	if err != nil {
		return "", err
	}

	subject := original.Subject
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}
	id, err := x.mail.Draft(ctx, models.OutgoingEmail{
		To:        original.SenderAddress(),
		Subject:   subject,
		Body:      body,
		ThreadID:  original.ThreadID,
		InReplyTo: original.MessageID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to draft reply: %w", err)
	}
	return fmt.Sprintf("Draft reply saved for %s (Subject: %s, %s)", original.Sender, original.Subject, id), nil
}

func (x *Executor) findEmail(ctx context.Context, emailID, sender string) (models.EmailData, error) {
	if emailID != "" {
		email, err := x.mail.Message(ctx, emailID)
		if err != nil {
			return models.EmailData{}, fmt.Errorf("failed to find email %s: %w", emailID, err)
		}
		return email, nil
	}

	recent, err := x.mail.FetchRecent(ctx, x.now().Add(-replyLookback))
	if err != nil {
		return models.EmailData{}, fmt.Errorf("failed to search recent emails: %w", err)
	}
	needle := strings.ToLower(sender)
	for _, e := range recent {
		if strings.Contains(strings.ToLower(e.Sender), needle) {
			return e, nil
		}
	}
	return models.EmailData{}, fmt.Errorf("no recent email from '%s'", sender)
}

func outgoing(a models.Action) (models.OutgoingEmail, error) {
	msg := models.OutgoingEmail{
		To:        a.StringParam("to"),
		Subject:   a.StringParam("subject"),
		Body:      a.StringParam("body"),
		ThreadID:  a.StringParam("thread_id"),
		InReplyTo: a.StringParam("in_reply_to"),
	}
	if msg.To == "" {
		return msg, errors.New("recipient required")
	}
	if msg.Subject == "" && msg.Body == "" {
		return msg, errors.New("subject or body required")
	}
	return msg, nil
}

// timeParam reads the first present key as RFC 3339, or as a local time in
// x.loc when it has no offset. Absent keys give the zero time.
func (x *Executor) timeParam(a models.Action, keys ...string) (time.Time, error) {
	for _, key := range keys {
		v := strings.TrimSpace(a.StringParam(key))
		if v == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, nil
		}
		for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"} {
			if t, err := time.ParseInLocation(layout, v, x.loc); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Time{}, nil
}

// intParam accepts JSON numbers and numeric strings.
func intParam(a models.Action, key string, def int) int {
	switch v := a.Parameters[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func stringsParam(a models.Action, key string) []string {
	switch v := a.Parameters[key].(type) {
	case []string:
		return v
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return nil
}
