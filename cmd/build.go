package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"donna/internal/caldav"
	"donna/internal/config"
	"donna/internal/google"
	"donna/internal/ics"
	"donna/internal/journal"
	"donna/internal/llm"
	"donna/internal/metrics"
	"donna/internal/notify"
	"donna/internal/scheduler"
	"donna/internal/sources"
	"donna/internal/workflow"

	"google.golang.org/api/option"
)

type buildOptions struct {
	skipAnalysis bool
	console      bool
}

type application struct {
	runner  *workflow.Runner
	metrics *metrics.Metrics
}

// build wires every collaborator configured in cfg into a Runner.
func build(ctx context.Context, logger *slog.Logger, cfg *config.Config, opts buildOptions) (*application, error) {
	oauthCfg, err := google.OAuthConfig(cfg.GoogleClientID, cfg.GoogleClientSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to get google oauth config: %w", err)
	}

	accounts, err := google.TokenAccounts(cfg.TokenDir)
	if err != nil {
		return nil, fmt.Errorf("could not find any google accounts, did you run auth command? %w", err)
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("no google accounts found. Run the 'auth' command first")
	}
	primary := cfg.GoogleAccount
	if primary == "" {
		primary = accounts[0]
	}

	// Every authenticated account contributes its calendars; the primary
	// account also provides the inbox and receives writes.
	var (
		named       []sources.Named
		gmail       *google.GmailClient
		primaryCals *google.CalendarClient
	)
	for _, acc := range accounts {
		httpClient, err := google.HTTPClient(ctx, oauthCfg, cfg.TokenDir, acc)
		if err != nil {
			return nil, err
		}
		cal, err := google.NewCalendarClient(ctx, logger, cfg.GoogleCalendarIDs, option.WithHTTPClient(httpClient))
		if err != nil {
			return nil, fmt.Errorf("failed to create google calendar client for account %s: %w", acc, err)
		}
		named = append(named, sources.Named{Name: "google-" + acc, Source: cal})

		if acc == primary {
			primaryCals = cal
			gmail, err = google.NewGmailClient(ctx, logger, option.WithHTTPClient(httpClient))
			if err != nil {
				return nil, fmt.Errorf("failed to create gmail client: %w", err)
			}
		}
	}
	if gmail == nil {
		return nil, fmt.Errorf("no token for GOOGLE_ACCOUNT '%s'. Run the 'auth' command first", primary)
	}
	logger.Info("Initialized Google clients for all accounts.", "count", len(accounts), "primary", primary)

	if cfg.HasICloud() {
		icloud, err := caldav.NewClient(ctx, logger, caldav.Config{
			Endpoint:     cfg.CalDAVURL,
			Username:     cfg.ICloudUsername,
			Password:     cfg.ICloudPassword,
			CalendarName: cfg.ICloudCalendarName,
			Location:     cfg.Location,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create icloud client: %w", err)
		}
		named = append(named, sources.Named{Name: "caldav", Source: icloud})
	}

	for _, u := range cfg.ICSFeedURLs {
		feed := ics.NewFeed(logger, u, cfg.Location, nil)
		named = append(named, sources.Named{Name: feed.Source(), Source: feed})
	}

	var analyzer workflow.Analyzer
	if !opts.skipAnalysis {
		a, err := llm.NewAnalyzer(logger, llm.Config{
			Provider:    cfg.LLMProvider,
			Model:       cfg.LLMModel,
			APIKey:      cfg.LLMAPIKey,
			BaseURL:     cfg.LLMAPIURL,
			MinInterval: cfg.LLMMinInterval,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create analyzer: %w", err)
		}
		analyzer = a
	}

	notifier, err := buildNotifier(logger, cfg, opts.console)
	if err != nil {
		return nil, err
	}

	jrnl, err := journal.New(logger, cfg.JournalDir)
	if err != nil {
		return nil, err
	}

	calendars := sources.NewCalendars(logger, named...)
	logger.Info("Calendar sources configured.", "count", calendars.Len())

	var graphOpts []workflow.Option
	if opts.skipAnalysis {
		graphOpts = append(graphOpts, workflow.WithSkipAnalysis())
	}
	graph, err := workflow.NewGraph(logger, workflow.Deps{
		Emails:   gmail,
		Calendar: calendars,
		Analyzer: analyzer,
		Notifier: notifier,
		Executor: scheduler.NewExecutor(logger, primaryCals, gmail, cfg.Location),
		History:  jrnl,
	}, graphOpts...)
	if err != nil {
		return nil, err
	}
	m := metrics.New()

	return &application{
		runner:  workflow.NewRunner(logger, graph, workflow.DefaultRunnerConfig(), jrnl, m),
		metrics: m,
	}, nil
}

func buildNotifier(logger *slog.Logger, cfg *config.Config, console bool) (workflow.Notifier, error) {
	if console {
		return notify.NewConsole(os.Stdout, os.Stdin), nil
	}
	printer := notify.NewConsole(os.Stdout, nil)
	if !cfg.HasTwilio() {
		logger.Warn("Twilio is not configured, messages will only be printed.")
		return printer, nil
	}
	tw, err := notify.NewTwilio(logger, notify.TwilioConfig{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		From:       cfg.TwilioPhoneNumber,
		To:         cfg.UserPhoneNumber,
		// Give the user a couple of minutes to text back.
		ReplyWait:    2 * time.Minute,
		PollInterval: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create twilio notifier: %w", err)
	}
	return notify.WithFallback(logger, tw, printer), nil
}
