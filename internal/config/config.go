// Package config reads donna's settings from the environment. Callers load a
// .env file with godotenv before calling Load.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config is the typed view of the environment.
type Config struct {
	GoogleClientID     string
	GoogleClientSecret string
	// GoogleAccount selects token-<account>.json; empty means the first token found.
	GoogleAccount     string
	GoogleCalendarIDs []string
	TokenDir          string

	ICloudUsername     string
	ICloudPassword     string
	ICloudCalendarName string
	CalDAVURL          string

	ICSFeedURLs []string

	LLMProvider    string
	LLMModel       string
	LLMAPIKey      string
	LLMAPIURL      string
	LLMMinInterval time.Duration

	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string
	UserPhoneNumber   string

	Location   *time.Location
	JournalDir string
	LogLevel   string
}

// Load reads the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleAccount:      os.Getenv("GOOGLE_ACCOUNT"),
		GoogleCalendarIDs:  list(os.Getenv("GOOGLE_CALENDAR_IDS")),
		TokenDir:           getenv("GOOGLE_TOKEN_DIR", "."),

		ICloudUsername:     os.Getenv("ICLOUD_USERNAME"),
		ICloudPassword:     os.Getenv("ICLOUD_APP_SPECIFIC_PASSWORD"),
		ICloudCalendarName: os.Getenv("ICLOUD_CALENDAR_NAME"),
		CalDAVURL:          getenv("CALDAV_URL", "https://caldav.icloud.com"),

		ICSFeedURLs: list(os.Getenv("ICS_FEED_URLS")),

		LLMProvider: getenv("LLM_PROVIDER", "groq"),
		LLMModel:    getenv("LLM_MODEL", "llama-3.1-8b-instant"),
		LLMAPIKey:   os.Getenv("LLM_API_KEY"),
		LLMAPIURL:   os.Getenv("LLM_API_URL"),

		TwilioAccountSID:  os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioPhoneNumber: os.Getenv("TWILIO_PHONE_NUMBER"),
		UserPhoneNumber:   os.Getenv("USER_PHONE_NUMBER"),

		JournalDir: getenv("JOURNAL_DIR", "logs"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
	}

	if len(cfg.GoogleCalendarIDs) == 0 {
		cfg.GoogleCalendarIDs = []string{"primary"}
	}
	if canvas := strings.TrimSpace(os.Getenv("CANVAS_ICS_URL")); canvas != "" {
		cfg.ICSFeedURLs = append(cfg.ICSFeedURLs, canvas)
	}

	interval := getenv("LLM_MIN_INTERVAL", "1s")
	d, err := time.ParseDuration(interval)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_MIN_INTERVAL '%s': %w", interval, err)
	}
	cfg.LLMMinInterval = d

	tz := getenv("PRIMARY_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone '%s': %w", tz, err)
	}
	cfg.Location = loc

	return cfg, nil
}

// HasICloud reports whether CalDAV credentials are present.
func (c *Config) HasICloud() bool {
	return c.ICloudUsername != "" && c.ICloudPassword != ""
}

// HasTwilio reports whether voice and SMS delivery can be configured.
func (c *Config) HasTwilio() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" &&
		c.TwilioPhoneNumber != "" && c.UserPhoneNumber != ""
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// list splits a comma separated value, dropping blanks.
func list(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
