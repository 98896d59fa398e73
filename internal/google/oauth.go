package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"donna/internal/models"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
)

const credentialsFile = "credentials.json"

// Scopes cover reading and writing events and reading, sending and drafting mail.
var Scopes = []string{
	calendar.CalendarEventsScope,
	calendar.CalendarReadonlyScope,
	gmail.GmailModifyScope,
}

// OAuthConfig reads credentials and returns an OAuth2 config.
// It prioritizes environment values over a local credentials.json file.
func OAuthConfig(clientID, clientSecret string) (*oauth2.Config, error) {
	if clientID != "" && clientSecret != "" {
		return &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
			Scopes:       Scopes,
			Endpoint:     google.Endpoint,
		}, nil
	}

	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: credentials.json not found, set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET or place credentials.json in the working directory", models.ErrUnauthorized)
		}
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	config.RedirectURL = "urn:ietf:wg:oauth:2.0:oob" // desktop app flow
	return config, nil
}

// TokenFromWeb exchanges an authorization code pasted by the user.
func TokenFromWeb(ctx context.Context, config *oauth2.Config, authCode string) (*oauth2.Token, error) {
	return config.Exchange(ctx, authCode)
}

// TokenPath is where the token for an account lives.
func TokenPath(dir, account string) string {
	return filepath.Join(dir, "token-"+account+".json")
}

// SaveToken saves a token to a file path, readable by the owner only.
func SaveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("unable to create token file: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// HTTPClient returns an authorized client for the account's saved token.
// A missing token is reported as models.ErrUnauthorized.
func HTTPClient(ctx context.Context, config *oauth2.Config, tokenDir, account string) (*http.Client, error) {
	path := TokenPath(tokenDir, account)
	token, err := tokenFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: could not load token for account %s from %s, run the 'auth' command first: %w", models.ErrUnauthorized, account, path, err)
	}
	return config.Client(ctx, token), nil
}

// TokenAccounts lists the accounts that have a token file in dir.
func TokenAccounts(dir string) ([]string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var accounts []string
	for _, file := range files {
		if strings.HasPrefix(file.Name(), "token-") && strings.HasSuffix(file.Name(), ".json") {
			accounts = append(accounts, strings.TrimSuffix(strings.TrimPrefix(file.Name(), "token-"), ".json"))
		}
	}
	return accounts, nil
}

// classify marks credential failures with models.ErrUnauthorized so the
// workflow stops instead of retrying. Quota errors stay retryable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%w: %w", models.ErrUnauthorized, err)
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Code {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", models.ErrUnauthorized, err)
	case http.StatusForbidden:
		for _, item := range apiErr.Errors {
			if strings.Contains(strings.ToLower(item.Reason), "ratelimit") || item.Reason == "quotaExceeded" {
				return err
			}
		}
		return fmt.Errorf("%w: %w", models.ErrUnauthorized, err)
	}
	return err
}
