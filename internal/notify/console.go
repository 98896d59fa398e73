package notify

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"donna/internal/models"
)

// Console prints the message and reads one line of reply. It stands in for a
// phone during local runs.
type Console struct {
	out   io.Writer
	in    io.Reader
	once  sync.Once
	lines chan string
	now   func() time.Time
}

// NewConsole creates a Console. A nil in means replies are never read.
func NewConsole(out io.Writer, in io.Reader) *Console {
	return &Console{out: out, in: in, now: time.Now}
}

// Deliver prints a banner with the message.
func (c *Console) Deliver(_ context.Context, message string) (models.Delivery, error) {
	sentAt := c.now()
	line := strings.Repeat("=", 60)
	_, err := fmt.Fprintf(c.out, "\n%s\nDONNA\n%s\nTime: %s\nMessage: %s\n%s\n",
		line, line, sentAt.Format("2006-01-02 15:04:05"), message, line)
	if err != nil {
		return models.Delivery{Channel: "console", Error: err.Error()}, fmt.Errorf("failed to write notification: %w", err)
	}
	return models.Delivery{Success: true, Channel: "console", SentAt: sentAt}, nil
}

// Response prompts for and returns one trimmed line. End of input is an
// empty reply.
func (c *Console) Response(ctx context.Context, _ models.Delivery) (string, error) {
	if c.in == nil {
		return "", nil
	}
	c.once.Do(c.startReading)

	fmt.Fprint(c.out, "Enter your response (or press Enter to skip): ")
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-c.lines:
		if !ok {
			return "", nil
		}
		return strings.TrimSpace(line), nil
	}
}

// startReading feeds lines from in until it is exhausted.
func (c *Console) startReading() {
	c.lines = make(chan string)
	go func() {
		defer close(c.lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			c.lines <- scanner.Text()
		}
	}()
}
