// Package dispatch fans notification events out to the in-app feed, Telegram and email.
//
// Every dispatch writes exactly one in-app notification before returning. Telegram and email are then attempted
// concurrently, each with its own timeout and detached from the caller's cancellation, so a slow or failing
// channel never affects the feed or the other channel. There are no retries.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cyverse-de/helpdesk-notifier/logging"
	"github.com/cyverse-de/helpdesk-notifier/model"
	"github.com/cyverse-de/helpdesk-notifier/templates"
)

var log = logging.Log.WithField("package", "dispatch")

// DefaultChannelTimeout bounds a single external channel attempt when no timeout is configured.
const DefaultChannelTimeout = 15 * time.Second

// Store looks up recipients and their channel bindings.
type Store interface {
	ActorExists(ctx context.Context, actor model.Actor) (bool, error)
	GetTelegramBinding(ctx context.Context, actor model.Actor) (*model.TelegramBinding, error)
	GetEmailBinding(ctx context.Context, clientID int64) (*model.EmailBinding, error)
	ListActiveStaffIDs(ctx context.Context) ([]int64, error)
}

// FeedWriter appends entries to the in-app feed.
type FeedWriter interface {
	Write(ctx context.Context, event model.Event, content templates.InAppContent) (*model.Notification, error)
}

// TelegramSender delivers rendered markup to a Telegram user.
type TelegramSender interface {
	Send(ctx context.Context, externalUserID int64, markup string, attachment *model.Attachment) error
}

// EmailSender delivers a rendered email to an address.
type EmailSender interface {
	Send(ctx context.Context, to string, content templates.EmailContent, attachment *model.Attachment) error
}

// Dispatcher resolves channel eligibility and delivers events.
type Dispatcher struct {
	store    Store
	feed     FeedWriter
	renderer *templates.Renderer
	telegram TelegramSender
	email    EmailSender
	timeout  time.Duration

	mu       sync.Mutex
	draining bool
	inflight sync.WaitGroup
}

// New returns a new dispatcher. A nil Telegram or email sender means that channel isn't configured, and every
// attempt on it is skipped.
func New(
	store Store,
	feed FeedWriter,
	renderer *templates.Renderer,
	telegram TelegramSender,
	email EmailSender,
	timeout time.Duration,
) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultChannelTimeout
	}
	return &Dispatcher{
		store:    store,
		feed:     feed,
		renderer: renderer,
		telegram: telegram,
		email:    email,
		timeout:  timeout,
	}
}

func eventFields(event model.Event) logrus.Fields {
	return logrus.Fields{
		"kind":      string(event.Kind),
		"recipient": event.Recipient.String(),
	}
}

// Dispatch writes the in-app notification for the event and starts the external channel attempts. It
// returns as soon as the in-app write has finished.
func (d *Dispatcher) Dispatch(ctx context.Context, event model.Event) *Outcome {
	outcome := newOutcome(event)
	fields := eventFields(event)

	if err := event.Validate(); err != nil {
		log.WithFields(fields).WithError(err).Warn("rejected notification event")
		outcome.Err = err
		return outcome
	}

	exists, err := d.store.ActorExists(ctx, event.Recipient)
	if err != nil {
		log.WithFields(fields).WithError(err).Error("unable to look up the notification recipient")
		outcome.Err = fmt.Errorf("unable to look up %s: %w", event.Recipient, err)
		return outcome
	}
	if !exists {
		log.WithFields(fields).Warn("rejected notification event for an unknown recipient")
		outcome.Err = fmt.Errorf("%w: %s", model.ErrNotFound, event.Recipient)
		return outcome
	}

	content, err := d.renderer.InApp(event.Kind, event.Payload)
	if err != nil {
		log.WithFields(fields).WithError(err).Error("unable to render the in-app notification")
		outcome.Err = err
		return outcome
	}

	start := time.Now()
	notification, err := d.feed.Write(ctx, event, content)
	inApp := ChannelResult{Channel: model.ChannelInApp, Status: StatusDelivered, Elapsed: time.Since(start)}
	if err != nil {
		inApp.Status = StatusFailed
		inApp.Err = err
		log.WithFields(fields).WithError(err).Error("unable to write the in-app notification")
	}
	outcome.Notification = notification
	outcome.record(inApp)

	d.start(ctx, outcome, model.ChannelTelegram, d.deliverTelegram)
	d.start(ctx, outcome, model.ChannelEmail, d.deliverEmail)

	return outcome
}

type deliverFunc func(ctx context.Context, event model.Event) (Status, string, error)

// track registers n goroutines with the drain group. It returns false once Drain has been called.
func (d *Dispatcher) track(n int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.draining {
		return false
	}
	d.inflight.Add(n)
	return true
}

// start runs one channel attempt in its own goroutine. The attempt is reported as failed once the channel timeout
// passes, even if the transport hasn't returned yet.
func (d *Dispatcher) start(parent context.Context, outcome *Outcome, channel model.Channel, deliver deliverFunc) {
	if !d.track(2) {
		outcome.record(ChannelResult{Channel: channel, Status: StatusSkipped, Reason: "dispatcher is shutting down"})
		return
	}
	outcome.wg.Add(1)

	go func() {
		defer d.inflight.Done()
		defer outcome.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), d.timeout)
		defer cancel()

		start := time.Now()
		attempt := make(chan ChannelResult, 1)
		go func() {
			defer d.inflight.Done()
			attempt <- d.attempt(ctx, channel, outcome.Event, deliver)
		}()

		var result ChannelResult
		select {
		case result = <-attempt:
		case <-ctx.Done():
			result = ChannelResult{
				Channel: channel,
				Status:  StatusFailed,
				Err:     fmt.Errorf("%s delivery did not finish: %w", channel, ctx.Err()),
			}
		}
		result.Elapsed = time.Since(start)

		entry := log.WithFields(eventFields(outcome.Event)).WithFields(logrus.Fields{
			"channel": string(channel),
			"elapsed": result.Elapsed.String(),
		})
		switch result.Status {
		case StatusFailed:
			entry.WithError(result.Err).Warn("channel delivery failed")
		case StatusSkipped:
			entry.WithField("reason", result.Reason).Debug("channel skipped")
		default:
			entry.Debug("channel delivered")
		}

		outcome.record(result)
	}()
}

// attempt calls deliver, turning a panic into a failed result.
func (d *Dispatcher) attempt(ctx context.Context, channel model.Channel, event model.Event, deliver deliverFunc) (result ChannelResult) {
	result.Channel = channel
	defer func() {
		if r := recover(); r != nil {
			result.Status = StatusFailed
			result.Reason = ""
			result.Err = fmt.Errorf("panic during %s delivery: %v", channel, r)
		}
	}()
	result.Status, result.Reason, result.Err = deliver(ctx, event)
	return result
}

// preferences returns the recipient's channel preferences. Only clients have stored preferences.
func (d *Dispatcher) preferences(ctx context.Context, recipient model.Actor) (model.Preferences, error) {
	if !recipient.IsClient() {
		return nil, nil
	}
	binding, err := d.store.GetEmailBinding(ctx, recipient.ID)
	if err != nil || binding == nil {
		return nil, err
	}
	return binding.Preferences, nil
}

func (d *Dispatcher) deliverTelegram(ctx context.Context, event model.Event) (Status, string, error) {
	if d.telegram == nil {
		return StatusSkipped, "telegram is not configured", nil
	}

	binding, err := d.store.GetTelegramBinding(ctx, event.Recipient)
	if err != nil {
		return StatusFailed, "", err
	}
	if binding == nil || binding.ExternalUserID == nil {
		return StatusSkipped, "telegram is not linked", nil
	}
	if !binding.Deliverable() {
		return StatusSkipped, "telegram is disabled", nil
	}

	prefs, err := d.preferences(ctx, event.Recipient)
	if err != nil {
		return StatusFailed, "", err
	}
	if !prefs.Allows(event.Kind, model.ChannelTelegram) {
		return StatusSkipped, "disabled by preference", nil
	}

	markup, err := d.renderer.Telegram(event.Kind, event.Payload)
	if err != nil {
		return StatusFailed, "", err
	}
	if err = d.telegram.Send(ctx, *binding.ExternalUserID, markup, event.Attachment); err != nil {
		return StatusFailed, "", err
	}
	return StatusDelivered, "", nil
}

func (d *Dispatcher) deliverEmail(ctx context.Context, event model.Event) (Status, string, error) {
	if !event.Recipient.IsClient() {
		return StatusSkipped, "staff users have no notification email", nil
	}
	if d.email == nil {
		return StatusSkipped, "email is not configured", nil
	}

	binding, err := d.store.GetEmailBinding(ctx, event.Recipient.ID)
	if err != nil {
		return StatusFailed, "", err
	}
	if !binding.Deliverable() {
		return StatusSkipped, "email is not verified or is disabled", nil
	}
	if !binding.Preferences.Allows(event.Kind, model.ChannelEmail) {
		return StatusSkipped, "disabled by preference", nil
	}

	content, err := d.renderer.Email(event.Kind, event.Payload)
	if err != nil {
		return StatusFailed, "", err
	}
	if err = d.email.Send(ctx, *binding.Email, content, event.Attachment); err != nil {
		return StatusFailed, "", err
	}
	return StatusDelivered, "", nil
}

// Notify dispatches the event without waiting for the external channels. A summary of every channel is
// logged once they finish. The only error returned is for an event that can't be dispatched at all.
func (d *Dispatcher) Notify(ctx context.Context, event model.Event) error {
	outcome := d.Dispatch(ctx, event)
	if outcome.Err != nil {
		return outcome.Err
	}

	if !d.track(1) {
		go summarize(outcome)
		return nil
	}
	go func() {
		defer d.inflight.Done()
		summarize(outcome)
	}()

	return nil
}

// NotifyStaff sends the event to every active staff user and returns the number of recipients. The event's
// recipient is ignored.
func (d *Dispatcher) NotifyStaff(ctx context.Context, event model.Event) (int, error) {
	if !event.Kind.Valid() {
		return 0, fmt.Errorf("%w: %q", model.ErrUnknownKind, event.Kind)
	}

	ids, err := d.store.ListActiveStaffIDs(ctx)
	if err != nil {
		return 0, err
	}

	for _, id := range ids {
		staffEvent := event
		staffEvent.Recipient = model.StaffUser(id)
		if err = d.Notify(ctx, staffEvent); err != nil {
			return 0, err
		}
	}

	return len(ids), nil
}

// Drain waits for in-flight channel attempts to finish or for the context to be done. Channel attempts for events
// dispatched after Drain has been called are skipped; the in-app notification is still written.
func (d *Dispatcher) Drain(ctx context.Context) error {
	d.mu.Lock()
	d.draining = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func summarize(outcome *Outcome) {
	results := outcome.Wait()

	fields := eventFields(outcome.Event)
	for channel, result := range results {
		fields[string(channel)] = string(result.Status)
	}
	log.WithFields(fields).Info("dispatched notification")
}
