package workflow

import (
	"context"
	"io"
	"log/slog"
	"time"

	"donna/internal/models"
)

var testNow = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock() time.Time { return testNow }

type fakeEmails struct {
	emails []models.EmailData
	err    error
	calls  int
	since  time.Time
}

func (f *fakeEmails) FetchRecent(_ context.Context, since time.Time) ([]models.EmailData, error) {
	f.calls++
	f.since = since
	if f.err != nil {
		return nil, f.err
	}
	return append([]models.EmailData(nil), f.emails...), nil
}

type fakeCalendar struct {
	events []models.CalendarEvent
	err    error
	calls  int
	until  time.Time
}

func (f *fakeCalendar) FetchUpcoming(_ context.Context, until time.Time) ([]models.CalendarEvent, error) {
	f.calls++
	f.until = until
	if f.err != nil {
		return nil, f.err
	}
	return append([]models.CalendarEvent(nil), f.events...), nil
}

// fakeAnalyzer scores items by id.
type fakeAnalyzer struct {
	scores      map[string]float64
	urgency     map[string]models.Urgency
	intent      models.Intent
	err         error
	emailCalls  int
	eventCalls  int
	parsedReply string
	about       models.IntentContext
}

func (f *fakeAnalyzer) AnalyzeEmails(_ context.Context, emails []models.EmailData) ([]models.EmailData, error) {
	f.emailCalls++
	if f.err != nil {
		return nil, f.err
	}
	out := append([]models.EmailData(nil), emails...)
	for i := range out {
		out[i].ImportanceScore = f.scores[out[i].ID]
		out[i].Urgency = f.urgency[out[i].ID]
		out[i].RequiresAction = out[i].ImportanceScore > 0.5
	}
	return out, nil
}

func (f *fakeAnalyzer) AnalyzeEvents(_ context.Context, events []models.CalendarEvent) ([]models.CalendarEvent, error) {
	f.eventCalls++
	if f.err != nil {
		return nil, f.err
	}
	out := append([]models.CalendarEvent(nil), events...)
	for i := range out {
		out[i].ImportanceScore = f.scores[out[i].ID]
		out[i].Urgency = f.urgency[out[i].ID]
	}
	return out, nil
}

func (f *fakeAnalyzer) ParseIntent(_ context.Context, reply string, about models.IntentContext) (models.Intent, error) {
	f.parsedReply = reply
	f.about = about
	return f.intent, nil
}

type fakeNotifier struct {
	delivery   models.Delivery
	deliverErr error
	reply      string
	messages   []string
}

func (f *fakeNotifier) Deliver(_ context.Context, message string) (models.Delivery, error) {
	f.messages = append(f.messages, message)
	if f.deliverErr != nil {
		return models.Delivery{}, f.deliverErr
	}
	return f.delivery, nil
}

func (f *fakeNotifier) Response(_ context.Context, _ models.Delivery) (string, error) {
	return f.reply, nil
}

type fakeExecutor struct {
	executed []models.Action
}

func (f *fakeExecutor) Execute(_ context.Context, action models.Action) models.ActionResult {
	f.executed = append(f.executed, action)
	return models.ActionResult{Action: action, Success: true, Message: "done"}
}

type countingObserver struct {
	cycles  int
	errs    []error
	onCycle func(st *State)
}

func (o *countingObserver) ObserveCycle(st *State, err error) {
	o.cycles++
	o.errs = append(o.errs, err)
	if o.onCycle != nil {
		o.onCycle(st)
	}
}

func overlappingEvents() []models.CalendarEvent {
	return []models.CalendarEvent{
		{ID: "sync", Title: "Team Sync", StartTime: testNow.Add(2 * time.Hour), EndTime: testNow.Add(150 * time.Minute), Location: "Room A"},
		{ID: "client", Title: "Client Call", StartTime: testNow.Add(135 * time.Minute), EndTime: testNow.Add(3 * time.Hour), Location: "Room A"},
	}
}

func quietEvents() []models.CalendarEvent {
	return []models.CalendarEvent{
		{ID: "standup", Title: "Standup", StartTime: testNow.Add(time.Hour), EndTime: testNow.Add(75 * time.Minute)},
	}
}
