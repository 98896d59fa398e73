package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"donna/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

type stubSource struct {
	events []models.CalendarEvent
	err    error
}

func (s stubSource) FetchUpcoming(context.Context, time.Time) ([]models.CalendarEvent, error) {
	return s.events, s.err
}

func event(id, uid string, startOffset time.Duration) models.CalendarEvent {
	return models.CalendarEvent{ID: id, UID: uid, StartTime: testNow.Add(startOffset), EndTime: testNow.Add(startOffset + time.Hour)}
}

func newCalendars(sources ...Named) *Calendars {
	return NewCalendars(slog.New(slog.NewTextHandler(io.Discard, nil)), sources...)
}

func TestCalendars_MergesAndDeduplicates(t *testing.T) {
	c := newCalendars(
		Named{"google", stubSource{events: []models.CalendarEvent{event("g1", "shared", 3*time.Hour), event("g2", "", time.Hour)}}},
		Named{"icloud", stubSource{events: []models.CalendarEvent{event("i1", "shared", 3*time.Hour), event("i2", "only-icloud", 2*time.Hour)}}},
	)

	events, err := c.FetchUpcoming(context.Background(), testNow.Add(24*time.Hour))
	require.NoError(t, err)

	var ids []string
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"g2", "i2", "g1"}, ids)
}

func TestCalendars_PartialFailure(t *testing.T) {
	c := newCalendars(
		Named{"broken", stubSource{err: errors.New("timeout")}},
		Named{"google", stubSource{events: []models.CalendarEvent{event("g1", "", time.Hour)}}},
	)

	events, err := c.FetchUpcoming(context.Background(), testNow)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestCalendars_AllFail(t *testing.T) {
	c := newCalendars(
		Named{"a", stubSource{err: errors.New("timeout")}},
		Named{"b", stubSource{err: errors.New("refused")}},
	)

	_, err := c.FetchUpcoming(context.Background(), testNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a: timeout")
	assert.Contains(t, err.Error(), "b: refused")
}

func TestCalendars_UnauthorizedIsFatal(t *testing.T) {
	c := newCalendars(
		Named{"google", stubSource{events: []models.CalendarEvent{event("g1", "", time.Hour)}}},
		Named{"icloud", stubSource{err: fmt.Errorf("login: %w", models.ErrUnauthorized)}},
	)

	_, err := c.FetchUpcoming(context.Background(), testNow)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestCalendars_Empty(t *testing.T) {
	events, err := newCalendars().FetchUpcoming(context.Background(), testNow)
	assert.NoError(t, err)
	assert.Empty(t, events)
}
