package workflow

import (
	"context"
	"time"

	"donna/internal/models"
)

// EmailSource returns inbox messages received since a point in time.
type EmailSource interface {
	FetchRecent(ctx context.Context, since time.Time) ([]models.EmailData, error)
}

// CalendarSource returns events starting before until.
type CalendarSource interface {
	FetchUpcoming(ctx context.Context, until time.Time) ([]models.CalendarEvent, error)
}

// Analyzer scores emails and events and interprets user replies in the
// context of what the user was told about.
type Analyzer interface {
	AnalyzeEmails(ctx context.Context, emails []models.EmailData) ([]models.EmailData, error)
	AnalyzeEvents(ctx context.Context, events []models.CalendarEvent) ([]models.CalendarEvent, error)
	ParseIntent(ctx context.Context, reply string, about models.IntentContext) (models.Intent, error)
}

// Notifier reaches the user and collects a reply. Response returns "" when the
// user has not answered (yet).
type Notifier interface {
	Deliver(ctx context.Context, message string) (models.Delivery, error)
	Response(ctx context.Context, delivery models.Delivery) (string, error)
}

// ActionExecutor carries out one requested action. Failures are reported in the
// result, never as a panic or error.
type ActionExecutor interface {
	Execute(ctx context.Context, action models.Action) models.ActionResult
}

// History remembers conflicts the user was told about by earlier processes.
type History interface {
	Seen(conflictID string) (time.Time, bool)
}

// Deps are the collaborators a Graph talks to. Emails and Calendar are required;
// a nil Analyzer turns analysis into a no-op, a nil Notifier skips calling the
// user and a nil Executor fails every action. History is optional.
type Deps struct {
	Emails   EmailSource
	Calendar CalendarSource
	Analyzer Analyzer
	Notifier Notifier
	Executor ActionExecutor
	History  History
}
