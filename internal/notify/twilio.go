// Package notify delivers the assistant's message to the user and collects
// the reply.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"donna/internal/models"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// twilioAPI is the part of the Twilio REST client the notifier uses.
type twilioAPI interface {
	CreateCall(params *twilioApi.CreateCallParams) (*twilioApi.ApiV2010Call, error)
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
	ListMessage(params *twilioApi.ListMessageParams) ([]twilioApi.ApiV2010Message, error)
}

// TwilioConfig holds the account and the two phone numbers.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string // the Twilio number
	To         string // the user's phone
	// ReplyWait is how long Response polls for an SMS reply. Zero checks once.
	ReplyWait    time.Duration
	PollInterval time.Duration
}

// Twilio calls the user and reads the message aloud, falling back to SMS
// when the call cannot be placed. Replies are read from inbound SMS.
type Twilio struct {
	logger *slog.Logger
	api    twilioAPI
	cfg    TwilioConfig
	now    func() time.Time
}

// NewTwilio creates a Twilio notifier.
func NewTwilio(logger *slog.Logger, cfg TwilioConfig) (*Twilio, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("%w: Twilio account SID and auth token are required", models.ErrUnauthorized)
	}
	if cfg.From == "" || cfg.To == "" {
		return nil, errors.New("TWILIO_PHONE_NUMBER and USER_PHONE_NUMBER are required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return newTwilio(logger, client.Api, cfg), nil
}

func newTwilio(logger *slog.Logger, api twilioAPI, cfg TwilioConfig) *Twilio {
	return &Twilio{logger: logger, api: api, cfg: cfg, now: time.Now}
}

// Deliver places a voice call, or sends an SMS if the call fails.
func (t *Twilio) Deliver(ctx context.Context, message string) (models.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return models.Delivery{}, err
	}
	sentAt := t.now()

	call := &twilioApi.CreateCallParams{}
	call.SetTo(t.cfg.To)
	call.SetFrom(t.cfg.From)
	call.SetTwiml(twiml(message))

	resp, callErr := t.api.CreateCall(call)
	if callErr == nil {
		sid := deref(resp.Sid)
		t.logger.Info("Voice call initiated", "call_sid", sid)
		return models.Delivery{Success: true, Channel: "voice", CallID: sid, SentAt: sentAt}, nil
	}
	callErr = classify(callErr)
	if errors.Is(callErr, models.ErrUnauthorized) {
		return models.Delivery{}, callErr
	}
	t.logger.Warn("Failed to initiate voice call, sending SMS", "error", callErr)

	sms := &twilioApi.CreateMessageParams{}
	sms.SetTo(t.cfg.To)
	sms.SetFrom(t.cfg.From)
	sms.SetBody(message)

	msg, smsErr := t.api.CreateMessage(sms)
	if smsErr != nil {
		return models.Delivery{Channel: "sms", Error: smsErr.Error(), SentAt: sentAt},
			fmt.Errorf("voice call failed (%v) and SMS failed: %w", callErr, classify(smsErr))
	}
	sid := deref(msg.Sid)
	t.logger.Info("SMS sent", "message_sid", sid)
	return models.Delivery{Success: true, Channel: "sms", CallID: sid, SentAt: sentAt}, nil
}

// Response returns the newest SMS the user sent after the delivery, or "" if
// none arrives within ReplyWait.
func (t *Twilio) Response(ctx context.Context, d models.Delivery) (string, error) {
	deadline := t.now().Add(t.cfg.ReplyWait)
	for {
		reply, err := t.latestReply(d.SentAt)
		if err != nil {
			return "", err
		}
		if reply != "" || !t.now().Before(deadline) {
			return reply, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(t.cfg.PollInterval):
		}
	}
}

func (t *Twilio) latestReply(since time.Time) (string, error) {
	params := &twilioApi.ListMessageParams{}
	params.SetFrom(t.cfg.To)
	params.SetTo(t.cfg.From)
	params.SetDateSentAfter(since)
	params.SetLimit(5)

	messages, err := t.api.ListMessage(params)
	if err != nil {
		return "", fmt.Errorf("failed to list SMS replies: %w", classify(err))
	}
	for _, m := range messages {
		if body := strings.TrimSpace(deref(m.Body)); body != "" {
			return body, nil
		}
	}
	return "", nil
}

func twiml(message string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><Response><Say voice="alice">`)
	b.WriteString(escapeXML(message))
	b.WriteString(`</Say><Say voice="alice">You can reply by text message to this number.</Say></Response>`)
	return b.String()
}

var xmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;")

func escapeXML(s string) string {
	return xmlEscaper.Replace(s)
}

func classify(err error) error {
	var restErr *twclient.TwilioRestError
	if errors.As(err, &restErr) && restErr.Status == http.StatusUnauthorized {
		return fmt.Errorf("%w: %w", models.ErrUnauthorized, err)
	}
	return err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
