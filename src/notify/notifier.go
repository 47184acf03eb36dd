// Package notify delivers fire-and-forget user-facing events. Delivery
// failures are logged and swallowed; they must never abort the workflow that
// produced the event.
package notify

import (
	"context"

	logger "github.com/sirupsen/logrus"
)

// Event kinds emitted by the core workflows.
const (
	KindSignalCreated  = "signal_created"
	KindSignalExecuted = "signal_executed"
	KindOrderFilled    = "order_filled"
	KindPositionOpened = "position_opened"
	KindPositionClosed = "position_closed"
)

// Notifier accepts fire-and-forget delivery of user-facing events.
type Notifier interface {
	Notify(ctx context.Context, userID uint, kind, title, body string)
}

// LogNotifier writes events to the application log only. It is the default
// sink when no delivery channel is configured.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Notify(ctx context.Context, userID uint, kind, title, body string) {
	logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"kind":    kind,
		"title":   title,
	}).Info(body)
}
