package handlers

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/cyverse-de/helpdesk-notifier/model"
)

// NotificationRequest represents a deserialized request to notify an actor, or every active staff user, of a
// business event.
type NotificationRequest struct {
	Kind       model.EventKind   `json:"kind"`
	Recipient  *model.Actor      `json:"recipient"`
	AllStaff   bool              `json:"all_staff"`
	Payload    model.Payload     `json:"payload"`
	Attachment *model.Attachment `json:"attachment"`
}

// Notification is a message handler for business events published by the helpdesk backend.
type Notification struct {
	notifier Notifier
}

// NewNotification returns a new notification event handler.
func NewNotification(notifier Notifier) *Notification {
	return &Notification{notifier: notifier}
}

// HandleMessage handles a single AMQP delivery. The event kind defaults to the last segment of the routing key.
func (nh *Notification) HandleMessage(ctx context.Context, updateType string, delivery amqp.Delivery) error {

	// Parse the message body.
	var request NotificationRequest
	err := json.Unmarshal(delivery.Body, &request)
	if err != nil {
		return NewUnrecoverableError("unable to parse message body: %s", err.Error())
	}
	if request.Kind == "" {
		request.Kind = model.EventKind(updateType)
	}
	if !request.Kind.Valid() {
		return NewUnrecoverableError("unsupported notification kind: %s", request.Kind)
	}
	if request.Payload == nil {
		request.Payload = model.Payload{}
	}

	event := model.Event{
		Kind:       request.Kind,
		Payload:    request.Payload,
		Attachment: request.Attachment,
	}

	// Notify every active staff user.
	if request.AllStaff {
		count, err := nh.notifier.NotifyStaff(ctx, event)
		if err != nil {
			return NewRecoverableError("unable to notify staff users: %s", err.Error())
		}
		log.WithFields(logrus.Fields{"kind": string(event.Kind), "recipients": count}).Debug("notified staff users")
		return nil
	}

	// Notify a single recipient.
	if request.Recipient == nil {
		return NewUnrecoverableError("no recipient specified")
	}
	if err = request.Recipient.Validate(); err != nil {
		return NewUnrecoverableError("invalid recipient: %s", err.Error())
	}
	event.Recipient = *request.Recipient

	// A recipient that doesn't exist won't appear on redelivery; anything else may be transient.
	if err = nh.notifier.Notify(ctx, event); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return NewUnrecoverableError("unknown recipient %s", event.Recipient)
		}
		return NewRecoverableError("unable to notify %s: %s", event.Recipient, err.Error())
	}

	return nil
}
