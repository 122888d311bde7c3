package handlerset

import (
	"context"
	"strings"

	"github.com/cyverse-de/messaging/v9"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/cyverse-de/helpdesk-notifier/common"
	"github.com/cyverse-de/helpdesk-notifier/handlers"
	"github.com/cyverse-de/helpdesk-notifier/logging"
)

var log = logging.Log.WithField("package", "handlerset")

// RoutingKey is the binding key for the business events this service consumes.
const RoutingKey = "events.notification.#"

// Acknowledger is the subset of an AMQP delivery used to settle it.
type Acknowledger interface {
	Ack(multiple bool) error
	Reject(requeue bool) error
}

// HandlerSet represents a set of AMQP message handlers.
type HandlerSet struct {
	amqpSettings *common.AMQPSettings
	amqpClient   *messaging.Client
	handlerFor   map[string]handlers.MessageHandler
}

// New creates a new handler set.
func New(amqpSettings *common.AMQPSettings, handlerFor map[string]handlers.MessageHandler) (*HandlerSet, error) {
	wrapMsg := "unable to create the message handler set"

	// Create the AMQP client.
	amqpClient, err := messaging.NewClient(amqpSettings.URI, true)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	// Build and return the handler set.
	handlerSet := HandlerSet{
		amqpSettings: amqpSettings,
		amqpClient:   amqpClient,
		handlerFor:   handlerFor,
	}
	return &handlerSet, nil
}

// parseRoutingKey splits a routing key of the form events.<category>.<update-type> into its category and
// update type.
func parseRoutingKey(routingKey string) (string, string, error) {
	parts := strings.Split(routingKey, ".")
	if len(parts) < 3 || parts[0] != "events" {
		return "", "", errors.Errorf("unexpected routing key: %s", routingKey)
	}
	return parts[1], parts[len(parts)-1], nil
}

// dispatch passes a delivery to the handler for its category and reports how it should be settled.
func (hs *HandlerSet) dispatch(ctx context.Context, delivery amqp.Delivery) error {
	category, updateType, err := parseRoutingKey(delivery.RoutingKey)
	if err != nil {
		return handlers.NewUnrecoverableError(err.Error())
	}

	handler, ok := hs.handlerFor[category]
	if !ok {
		return handlers.NewUnrecoverableError("no handler for category: %s", category)
	}

	return handler.HandleMessage(ctx, updateType, delivery)
}

// settle acknowledges or rejects a delivery depending on the error returned by its handler. Recoverable
// failures are requeued once; a redelivered message that fails again is dropped.
func settle(ack Acknowledger, redelivered bool, err error) error {
	if err == nil {
		return ack.Ack(false)
	}
	if handlers.IsRecoverable(err) && !redelivered {
		return ack.Reject(true)
	}
	return ack.Reject(false)
}

// handleMessage is the AMQP consumer callback.
func (hs *HandlerSet) handleMessage(ctx context.Context, delivery amqp.Delivery) {
	err := hs.dispatch(ctx, delivery)
	if err != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"routing_key": delivery.RoutingKey,
			"redelivered": delivery.Redelivered,
		}).Error("unable to handle message")
	}

	if settleErr := settle(&delivery, delivery.Redelivered, err); settleErr != nil {
		log.WithError(settleErr).Error("unable to settle AMQP delivery")
	}
}

// Listen registers the consumer and starts processing messages in the background.
func (hs *HandlerSet) Listen() {
	hs.amqpClient.AddConsumer(
		hs.amqpSettings.ExchangeName,
		hs.amqpSettings.ExchangeType,
		hs.amqpSettings.QueueName,
		RoutingKey,
		hs.handleMessage,
		0,
	)
	go hs.amqpClient.Listen()
}

// Close closes a message handler set.
func (hs *HandlerSet) Close() {
	hs.amqpClient.Close()
}
