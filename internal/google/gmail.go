package google

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"donna/internal/models"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const (
	user              = "me"
	defaultMaxResults = 50
	// inbox only, drafts excluded
	inboxQuery = "in:inbox -in:draft"
)

// GmailClient reads the inbox and sends or drafts replies.
type GmailClient struct {
	srv        *gmail.Service
	logger     *slog.Logger
	maxResults int64
}

// NewGmailClient creates a Gmail client. Pass option.WithHTTPClient with an
// authorized client.
func NewGmailClient(ctx context.Context, logger *slog.Logger, opts ...option.ClientOption) (*GmailClient, error) {
	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return &GmailClient{srv: srv, logger: logger, maxResults: defaultMaxResults}, nil
}

// FetchRecent returns inbox messages received after since, newest first.
// Messages that cannot be read are logged and skipped.
func (c *GmailClient) FetchRecent(ctx context.Context, since time.Time) ([]models.EmailData, error) {
	query := fmt.Sprintf("after:%d %s", since.Unix(), inboxQuery)
	c.logger.Debug("Listing Gmail messages", "query", query)

	list, err := c.srv.Users.Messages.List(user).Context(ctx).Q(query).MaxResults(c.maxResults).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to list messages: %w", classify(err))
	}

	emails := make([]models.EmailData, 0, len(list.Messages))
	for _, m := range list.Messages {
		full, err := c.srv.Users.Messages.Get(user, m.Id).Context(ctx).Format("full").Do()
		if err != nil {
			err = classify(err)
			if errors.Is(err, models.ErrUnauthorized) {
				return nil, err
			}
			c.logger.Error("Unable to retrieve message", "id", m.Id, "error", err)
			continue
		}
		emails = append(emails, parseMessage(full))
	}

	c.logger.Info("Fetched emails from Gmail", "count", len(emails), "since", since)
	return emails, nil
}

// Message returns one message by ID.
func (c *GmailClient) Message(ctx context.Context, id string) (models.EmailData, error) {
	full, err := c.srv.Users.Messages.Get(user, id).Context(ctx).Format("full").Do()
	if err != nil {
		return models.EmailData{}, fmt.Errorf("unable to retrieve message %s: %w", id, classify(err))
	}
	return parseMessage(full), nil
}

func parseMessage(msg *gmail.Message) models.EmailData {
	email := models.EmailData{
		ID:        msg.Id,
		ThreadID:  msg.ThreadId,
		Subject:   "No Subject",
		Sender:    "Unknown",
		Timestamp: time.UnixMilli(msg.InternalDate).UTC(),
	}
	if msg.Payload == nil {
		email.Body = msg.Snippet
		return email
	}
	for _, header := range msg.Payload.Headers {
		switch http.CanonicalHeaderKey(header.Name) {
		case "Subject":
			if header.Value != "" {
				email.Subject = header.Value
			}
		case "From":
			if header.Value != "" {
				email.Sender = header.Value
			}
		case "Message-Id":
			email.MessageID = header.Value
		case "Date":
			if t, err := mail.ParseDate(header.Value); err == nil {
				email.Timestamp = t
			}
		}
	}
	email.Body = strings.TrimSpace(plainTextBody(msg.Payload))
	if email.Body == "" {
		email.Body = msg.Snippet
	}
	return email
}

// plainTextBody returns the first text/plain part, searching nested multiparts.
func plainTextBody(part *gmail.MessagePart) string {
	if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
		if data, err := decodeBody(part.Body.Data); err == nil {
			return string(data)
		}
	}
	for _, p := range part.Parts {
		mt := strings.ToLower(p.MimeType)
		if strings.HasPrefix(mt, "text/plain") || strings.HasPrefix(mt, "multipart/") {
			if body := plainTextBody(p); body != "" {
				return body
			}
		}
	}
	return ""
}

// decodeBody accepts both padded and unpadded URL-safe base64.
func decodeBody(s string) ([]byte, error) {
	if data, err := base64.URLEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawURLEncoding.DecodeString(s)
}

// Send delivers msg and returns the new message ID.
func (c *GmailClient) Send(ctx context.Context, msg models.OutgoingEmail) (string, error) {
	sent, err := c.srv.Users.Messages.Send(user, rawMessage(msg)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to send message to %s: %w", msg.To, classify(err))
	}
	c.logger.Info("Sent email", "id", sent.Id, "to", msg.To)
	return sent.Id, nil
}

// Draft saves msg as a draft and returns the draft ID.
func (c *GmailClient) Draft(ctx context.Context, msg models.OutgoingEmail) (string, error) {
	draft, err := c.srv.Users.Drafts.Create(user, &gmail.Draft{Message: rawMessage(msg)}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to create draft to %s: %w", msg.To, classify(err))
	}
	c.logger.Info("Created email draft", "id", draft.Id, "to", msg.To)
	return draft.Id, nil
}

func rawMessage(msg models.OutgoingEmail) *gmail.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	if msg.InReplyTo != "" {
		fmt.Fprintf(&b, "In-Reply-To: %s\r\nReferences: %s\r\n", msg.InReplyTo, msg.InReplyTo)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(msg.Body)

	return &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString([]byte(b.String())),
		ThreadId: msg.ThreadID,
	}
}
