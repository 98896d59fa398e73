// Package sources merges several calendars into one calendar source.
package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"donna/internal/models"

	"golang.org/x/sync/errgroup"
)

// Source is anything that lists upcoming events.
type Source interface {
	FetchUpcoming(ctx context.Context, until time.Time) ([]models.CalendarEvent, error)
}

// Named pairs a Source with a label for logs.
type Named struct {
	Name   string
	Source Source
}

// Calendars queries every source concurrently and merges the results. The
// same event seen through several sources (matching UID) is kept once.
type Calendars struct {
	logger  *slog.Logger
	sources []Named
}

// NewCalendars creates a merged source.
func NewCalendars(logger *slog.Logger, sources ...Named) *Calendars {
	return &Calendars{logger: logger, sources: sources}
}

// Len reports how many sources are configured.
func (c *Calendars) Len() int { return len(c.sources) }

// FetchUpcoming returns the union of all sources ordered by start time. A
// failing source is logged and left out. It is an error only when every
// source fails or one reports models.ErrUnauthorized.
func (c *Calendars) FetchUpcoming(ctx context.Context, until time.Time) ([]models.CalendarEvent, error) {
	if len(c.sources) == 0 {
		return nil, nil
	}

	results := make([][]models.CalendarEvent, len(c.sources))
	errs := make([]error, len(c.sources))

	var g errgroup.Group
	for i, s := range c.sources {
		i, s := i, s
		g.Go(func() error {
			events, err := s.Source.FetchUpcoming(ctx, until)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", s.Name, err)
				if errors.Is(err, models.ErrUnauthorized) {
					return errs[i]
				}
				return nil
			}
			results[i] = events
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
			c.logger.Error("Calendar source failed", "error", err)
		}
	}
	if failed == len(c.sources) {
		return nil, errors.Join(errs...)
	}

	merged := merge(results)
	c.logger.Debug("Merged calendar sources", "sources", len(c.sources), "failed", failed, "events", len(merged))
	return merged, nil
}

func merge(results [][]models.CalendarEvent) []models.CalendarEvent {
	seen := make(map[string]bool)
	var out []models.CalendarEvent
	for _, events := range results {
		for _, ev := range events {
			if ev.UID != "" {
				if seen[ev.UID] {
					continue
				}
				seen[ev.UID] = true
			}
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}
