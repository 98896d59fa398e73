package ics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"donna/internal/models"
	"donna/internal/timewindow"
)

const fetchTimeout = 15 * time.Second

// Feed is a calendar source backed by an ICS URL.
type Feed struct {
	logger *slog.Logger
	url    string
	source string
	loc    *time.Location
	client *http.Client
	now    func() time.Time
}

// NewFeed creates a Feed. A nil client gets a 15 second timeout.
func NewFeed(logger *slog.Logger, feedURL string, loc *time.Location, client *http.Client) *Feed {
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	if loc == nil {
		loc = time.UTC
	}
	source := "ics"
	if u, err := url.Parse(feedURL); err == nil && u.Host != "" {
		source = "ics-" + u.Host
	}
	return &Feed{logger: logger, url: feedURL, source: source, loc: loc, client: client, now: time.Now}
}

// Source is the label stamped on the feed's events.
func (f *Feed) Source() string { return f.source }

// FetchUpcoming downloads the feed and returns events starting between now and until.
func (f *Feed) FetchUpcoming(ctx context.Context, until time.Time) ([]models.CalendarEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build feed request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ICS feed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: ICS feed %s returned %s", models.ErrUnauthorized, f.source, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("ICS feed %s returned %s", f.source, resp.Status)
	}

	now := f.now()
	events, skipped, err := Decode(resp.Body, f.loc, f.source, timewindow.New(now, until))
	if err != nil {
		return nil, err
	}
	for _, e := range skipped {
		f.logger.Warn("Skipping unreadable feed event", "source", f.source, "error", e)
	}

	var upcoming []models.CalendarEvent
	for _, ev := range events {
		if ev.StartTime.Before(now) || ev.StartTime.After(until) {
			continue
		}
		upcoming = append(upcoming, ev)
	}
	f.logger.Info("Fetched events from ICS feed", "source", f.source, "total", len(events), "upcoming", len(upcoming))
	return upcoming, nil
}
