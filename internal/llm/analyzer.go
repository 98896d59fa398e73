// Package llm scores emails and events and reads user replies with an
// OpenAI-compatible chat model, falling back to keyword heuristics.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"donna/internal/models"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	defaultModel     = "llama-3.1-8b-instant"
	defaultMaxTokens = 800
	defaultRetries   = 3
	batchSize        = 20
)

// Config selects the provider and model.
type Config struct {
	Provider    string // groq, openai, openrouter, ollama, or any OpenAI-compatible name with BaseURL
	Model       string
	APIKey      string
	BaseURL     string
	MinInterval time.Duration // minimum spacing between requests
	MaxTokens   int
	Temperature float32
	MaxRetries  int
	HTTPClient  *http.Client
}

// Analyzer implements the workflow's analysis step.
type Analyzer struct {
	logger      *slog.Logger
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	maxRetries  int
	limiter     *rate.Limiter
	backoff     func(attempt int) time.Duration
}

// NewAnalyzer creates an Analyzer for cfg.
func NewAnalyzer(logger *slog.Logger, cfg Config) (*Analyzer, error) {
	clientConfig := openai.DefaultConfig(cfg.APIKey)

	switch cfg.Provider {
	case "", "groq":
		clientConfig.BaseURL = "https://api.groq.com/openai/v1"
	case "openai":
	case "openrouter":
		clientConfig.BaseURL = "https://openrouter.ai/api/v1"
	case "ollama":
		clientConfig.BaseURL = "http://localhost:11434/v1"
	default:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("LLM provider %q needs LLM_API_URL", cfg.Provider)
		}
		logger.Info("Using generic OpenAI-compatible provider", "provider", cfg.Provider)
	}
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	} else {
		clientConfig.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}

	a := &Analyzer{
		logger:      logger,
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		maxRetries:  cfg.MaxRetries,
		limiter:     rate.NewLimiter(rate.Inf, 1),
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<attempt)*time.Second + time.Duration(attempt)*100*time.Millisecond
		},
	}
	if a.model == "" {
		a.model = defaultModel
	}
	if a.maxTokens == 0 {
		a.maxTokens = defaultMaxTokens
	}
	if a.temperature == 0 {
		a.temperature = 0.1
	}
	if a.maxRetries == 0 {
		a.maxRetries = defaultRetries
	}
	if cfg.MinInterval > 0 {
		a.limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}

	logger.Info("LLM analyzer initialized", "provider", cfg.Provider, "model", a.model, "baseURL", clientConfig.BaseURL)
	return a, nil
}

type emailAnalysis struct {
	Index           int     `json:"email_index"`
	ImportanceScore float64 `json:"importance_score"`
	Urgency         string  `json:"urgency"`
	RequiresAction  bool    `json:"requires_action"`
	ActionType      string  `json:"action_type"`
	Summary         string  `json:"summary"`
	SuggestedAction string  `json:"suggested_action"`
}

type eventAnalysis struct {
	Index           int     `json:"event_index"`
	ImportanceScore float64 `json:"importance_score"`
	Urgency         string  `json:"urgency"`
	RequiresAction  bool    `json:"requires_action"`
}

// AnalyzeEmails scores each email. Emails the model did not answer for, or
// every email when the model fails, are scored by HeuristicEmail. Only a
// cancelled context is returned as an error.
func (a *Analyzer) AnalyzeEmails(ctx context.Context, emails []models.EmailData) ([]models.EmailData, error) {
	out := make([]models.EmailData, len(emails))
	copy(out, emails)

	for start := 0; start < len(out); start += batchSize {
		batch := out[start:min(start+batchSize, len(out))]

		var resp struct {
			Emails []emailAnalysis `json:"emails"`
		}
		answered := make([]bool, len(batch))
		if err := a.complete(ctx, emailPrompt(batch), &resp); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logger.Warn("Email analysis failed, using heuristics", "count", len(batch), "error", err)
		}
		for _, r := range resp.Emails {
			i := r.Index - 1
			if i < 0 || i >= len(batch) || answered[i] {
				continue
			}
			answered[i] = true
			e := &batch[i]
			e.ImportanceScore = normalizeScore(r.ImportanceScore)
			e.Urgency = models.ParseUrgency(r.Urgency)
			e.RequiresAction = r.RequiresAction
			e.ActionType = parseActionType(r.ActionType)
			e.Summary = r.Summary
			e.SuggestedAction = r.SuggestedAction
		}
		for i := range batch {
			if !answered[i] {
				batch[i] = HeuristicEmail(batch[i])
			}
		}
	}
	return out, nil
}

// AnalyzeEvents scores each event, with HeuristicEvent as the fallback.
func (a *Analyzer) AnalyzeEvents(ctx context.Context, events []models.CalendarEvent) ([]models.CalendarEvent, error) {
	out := make([]models.CalendarEvent, len(events))
	copy(out, events)

	for start := 0; start < len(out); start += batchSize {
		batch := out[start:min(start+batchSize, len(out))]

		var resp struct {
			Events []eventAnalysis `json:"events"`
		}
		answered := make([]bool, len(batch))
		if err := a.complete(ctx, eventPrompt(batch), &resp); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logger.Warn("Event analysis failed, using heuristics", "count", len(batch), "error", err)
		}
		for _, r := range resp.Events {
			i := r.Index - 1
			if i < 0 || i >= len(batch) || answered[i] {
				continue
			}
			answered[i] = true
			ev := &batch[i]
			ev.ImportanceScore = normalizeScore(r.ImportanceScore)
			ev.Urgency = models.ParseUrgency(r.Urgency)
			// Keeps a flag set by the source, e.g. an assignment deadline.
			ev.RequiresAction = ev.RequiresAction || r.RequiresAction
		}
		for i := range batch {
			if !answered[i] {
				batch[i] = HeuristicEvent(batch[i])
			}
		}
	}
	return out, nil
}

// ParseIntent reads the user's reply into actions, with HeuristicIntent as
// the fallback.
func (a *Analyzer) ParseIntent(ctx context.Context, reply string, about models.IntentContext) (models.Intent, error) {
	var intent models.Intent
	if err := a.complete(ctx, intentPrompt(reply, about), &intent); err != nil {
		if ctx.Err() != nil {
			return models.Intent{}, ctx.Err()
		}
		a.logger.Warn("Intent parsing failed, using keywords", "error", err)
		return HeuristicIntent(reply, about), nil
	}
	if intent.Intent == "" {
		return HeuristicIntent(reply, about), nil
	}
	for i := range intent.Actions {
		if intent.Actions[i].Parameters == nil {
			intent.Actions[i].Parameters = map[string]any{}
		}
	}
	return intent, nil
}

// complete sends one JSON-mode request and decodes the answer into v.
func (a *Analyzer) complete(ctx context.Context, prompt string, v any) error {
	req := openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature:    a.temperature,
		MaxTokens:      a.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	var (
		resp openai.ChatCompletionResponse
		err  error
	)
	for attempt := 0; ; attempt++ {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
		resp, err = a.client.CreateChatCompletion(ctx, req)
		if err == nil || !rateLimited(err) || attempt >= a.maxRetries {
			break
		}
		wait := a.backoff(attempt)
		a.logger.Warn("LLM rate limit hit, backing off", "attempt", attempt+1, "wait", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	if err != nil {
		return fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return errors.New("chat completion returned no choices")
	}

	content := stripFences(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), v); err != nil {
		return fmt.Errorf("failed to parse model response: %w", err)
	}
	return nil
}

func rateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}

// stripFences removes a markdown code fence some models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// normalizeScore maps a score to [0, 1], reading values above 1 as a 0-10 scale.
func normalizeScore(s float64) float64 {
	if s > 1 {
		s /= 10
	}
	return min(max(s, 0), 1)
}

func parseActionType(s string) models.ActionType {
	switch t := models.ActionType(strings.ToLower(strings.TrimSpace(s))); t {
	case models.ActionReply, models.ActionSchedule, models.ActionUrgent, models.ActionReview:
		return t
	case "urgent_response":
		return models.ActionUrgent
	default:
		return models.ActionNone
	}
}
