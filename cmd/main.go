package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"donna/internal/config"
	"donna/internal/conflict"
	"donna/internal/google"
	"donna/internal/ics"
	"donna/internal/models"
	"donna/internal/timewindow"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "donna",
		Usage: "Watch your inbox and calendars for conflicts and call you about them.",
		Commands: []*cli.Command{
			authCommand(),
			runCommand(),
			checkCommand(),
			conflictsCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with a Google account to get an API token.",
		Action: func(c *cli.Context) error {
			logger := setupLogger("info")
			logger.Info("Starting Google authentication flow.")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			oauthCfg, err := google.OAuthConfig(cfg.GoogleClientID, cfg.GoogleClientSecret)
			if err != nil {
				return fmt.Errorf("failed to get google oauth config: %w", err)
			}

			authURL := oauthCfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
			fmt.Printf("Go to the following link in your browser then type the "+
				"authorization code: \n%v\n", authURL)

			fmt.Print("Enter Authorization Code: ")
			reader := bufio.NewReader(os.Stdin)
			authCode, _ := reader.ReadString('\n')
			authCode = strings.TrimSpace(authCode)

			token, err := google.TokenFromWeb(c.Context, oauthCfg, authCode)
			if err != nil {
				return fmt.Errorf("unable to retrieve token from web: %w", err)
			}

			fmt.Print("Enter a name for this account (e.g., 'personal', 'work'): ")
			accountName, _ := reader.ReadString('\n')
			accountName = strings.TrimSpace(accountName)
			tokenFile := google.TokenPath(cfg.TokenDir, accountName)

			if err := google.SaveToken(tokenFile, token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			logger.Info("Successfully authenticated and saved token.", "file", tokenFile)
			return nil
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the monitoring workflow once, or keep watching.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "watch", Usage: "Keep monitoring until interrupted."},
			&cli.BoolFlag{Name: "skip-analysis", Usage: "Skip LLM analysis of emails and events."},
			&cli.StringFlag{Name: "metrics-addr", Usage: "Serve Prometheus metrics on this address, e.g. :9090."},
			&cli.BoolFlag{Name: "console", Usage: "Talk to the user on this terminal instead of the phone."},
			&cli.BoolFlag{Name: "debug", Usage: "Enable debug logging."},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			level := cfg.LogLevel
			if c.Bool("debug") {
				level = "debug"
			}
			logger := setupLogger(level)

			app, err := build(c.Context, logger, cfg, buildOptions{
				skipAnalysis: c.Bool("skip-analysis"),
				console:      c.Bool("console"),
			})
			if err != nil {
				return err
			}

			if addr := c.String("metrics-addr"); addr != "" {
				srv := &http.Server{Addr: addr, Handler: metricsMux(app.metrics.Handler()), ReadHeaderTimeout: 10 * time.Second}
				go func() {
					logger.Info("Serving metrics.", "addr", addr)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("Metrics server failed", "error", err)
					}
				}()
				defer srv.Close()
			}

			if c.Bool("watch") {
				release := app.runner.HandleSignals()
				defer release()
				logger.Info("Starting monitor.")
				return app.runner.Monitor(c.Context)
			}

			logger.Info("Running a single workflow cycle.")
			st, err := app.runner.RunOnce(c.Context)
			if err != nil {
				return fmt.Errorf("workflow run failed: %w", err)
			}
			printConflicts(os.Stdout, st.Conflicts)
			return nil
		},
	}
}

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Fetch, analyze and detect conflicts now, without calling the user.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "skip-analysis", Usage: "Skip LLM analysis of emails and events."},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.LogLevel)

			app, err := build(c.Context, logger, cfg, buildOptions{skipAnalysis: c.Bool("skip-analysis")})
			if err != nil {
				return err
			}
			st, err := app.runner.ForceCheck(c.Context)
			if err != nil {
				return fmt.Errorf("check failed: %w", err)
			}

			fmt.Printf("%d emails, %d events, %d important items\n", len(st.Emails), len(st.CalendarEvents), len(st.ImportantItems))
			printConflicts(os.Stdout, st.Conflicts)
			return nil
		},
	}
}

func conflictsCommand() *cli.Command {
	return &cli.Command{
		Name:  "conflicts",
		Usage: "Detect conflicts between the events of local .ics files.",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "ics", Usage: "An iCalendar file to read. Repeatable.", Required: true},
			&cli.StringFlag{Name: "now", Usage: "Reference time (RFC3339) for priority checks. Defaults to the current time."},
			&cli.IntFlag{Name: "days", Value: 7, Usage: "Expand recurring events this many days past the reference time."},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.LogLevel)

			now := time.Now()
			if s := c.String("now"); s != "" {
				if now, err = time.Parse(time.RFC3339, s); err != nil {
					return fmt.Errorf("invalid --now '%s': %w", s, err)
				}
			}

			span := timewindow.New(now, now.Add(time.Duration(c.Int("days"))*24*time.Hour))
			events, err := readICSFiles(logger, c.StringSlice("ics"), cfg.Location, span)
			if err != nil {
				return err
			}
			logger.Info("Loaded events.", "count", len(events))

			conflicts := conflict.NewDetector(logger).DetectAll(nil, events, now)
			printConflicts(os.Stdout, conflicts)
			return nil
		},
	}
}

// readICSFiles loads every event of the given files, expanding recurring
// series over span.
func readICSFiles(logger *slog.Logger, paths []string, loc *time.Location, span timewindow.Window) ([]models.CalendarEvent, error) {
	var events []models.CalendarEvent
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		evs, skipped, err := ics.Decode(f, loc, "file", span)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		for _, e := range skipped {
			logger.Warn("Skipping event", "file", path, "error", e)
		}
		events = append(events, evs...)
	}
	return events, nil
}

func printConflicts(w io.Writer, conflicts []models.Conflict) {
	if len(conflicts) == 0 {
		fmt.Fprintln(w, "No conflicts found.")
		return
	}
	fmt.Fprintf(w, "%d conflicts:\n", len(conflicts))
	for _, c := range conflicts {
		fmt.Fprintf(w, "- [%s] %s: %s\n", c.Severity, c.ConflictID, c.SuggestedAction)
		for _, rec := range conflict.Recommendations(c) {
			fmt.Fprintf(w, "    * %s\n", rec)
		}
	}
}

func metricsMux(h http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	return mux
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
