package notify

import (
	"context"
	"errors"
	"log/slog"

	"donna/internal/models"
)

// Notifier is what the workflow calls the user with.
type Notifier interface {
	Deliver(ctx context.Context, message string) (models.Delivery, error)
	Response(ctx context.Context, d models.Delivery) (string, error)
}

// Fallback tries Primary and uses Secondary when Primary cannot deliver.
type Fallback struct {
	logger    *slog.Logger
	primary   Notifier
	secondary Notifier
	used      map[string]Notifier // channel → notifier that delivered on it
}

// WithFallback chains two notifiers.
func WithFallback(logger *slog.Logger, primary, secondary Notifier) *Fallback {
	return &Fallback{logger: logger, primary: primary, secondary: secondary, used: map[string]Notifier{}}
}

// Deliver uses the primary notifier, then the secondary on error or an
// unsuccessful delivery. Missing credentials are not masked.
func (f *Fallback) Deliver(ctx context.Context, message string) (models.Delivery, error) {
	d, err := f.primary.Deliver(ctx, message)
	if err == nil && d.Success {
		f.used[d.Channel] = f.primary
		return d, nil
	}
	if errors.Is(err, models.ErrUnauthorized) || ctx.Err() != nil {
		return d, err
	}
	f.logger.Warn("Primary notifier failed, using fallback", "channel", d.Channel, "error", err)

	d, err = f.secondary.Deliver(ctx, message)
	if err == nil && d.Success {
		f.used[d.Channel] = f.secondary
	}
	return d, err
}

// Response asks whichever notifier made the delivery.
func (f *Fallback) Response(ctx context.Context, d models.Delivery) (string, error) {
	n, ok := f.used[d.Channel]
	if !ok {
		n = f.primary
	}
	return n.Response(ctx, d)
}
