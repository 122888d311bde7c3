package handlers

import (
	"context"

	"github.com/streadway/amqp"

	"github.com/cyverse-de/helpdesk-notifier/logging"
	"github.com/cyverse-de/helpdesk-notifier/model"
)

var log = logging.Log.WithField("package", "handlers")

// MessageHandler describes the interface used to handle AMQP messages.
type MessageHandler interface {
	HandleMessage(ctx context.Context, updateType string, delivery amqp.Delivery) error
}

// Notifier dispatches notification events.
type Notifier interface {
	Notify(ctx context.Context, event model.Event) error
	NotifyStaff(ctx context.Context, event model.Event) (int, error)
}

// InitMessageHandlers returns a map from category name to message handler.
func InitMessageHandlers(notifier Notifier) map[string]MessageHandler {
	return map[string]MessageHandler{
		"notification": NewNotification(notifier),
	}
}
