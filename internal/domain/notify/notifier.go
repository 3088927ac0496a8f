// Package notify delivers post-commit event notifications.
//
// Notifications are best-effort: delivery failures are logged and never
// propagated to the caller, so a broken channel cannot roll back a
// committed settlement or invoice.
package notify

import (
	"context"

	"liquimed/pkg/logger"
)

// Event describes a domain occurrence worth telling somebody about.
type Event struct {
	// Kind identifies the event, e.g. "settlement.created", "invoice.voided".
	Kind string

	// EntityID is the identifier of the affected document.
	EntityID string

	// Summary is a short human-readable description.
	Summary string

	// Fields carries extra structured data.
	Fields map[string]any
}

// Notifier delivers events after the underlying transaction has committed.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// LogNotifier writes events to the application log. It is the default
// implementation; real channels (mail, webhooks) can replace it later.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Notify(ctx context.Context, event Event) {
	logger.Info(ctx, "notification",
		"kind", event.Kind,
		"entity_id", event.EntityID,
		"summary", event.Summary,
	)
}

// NopNotifier discards all events. Useful in tests.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) {}
