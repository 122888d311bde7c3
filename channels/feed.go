package channels

import (
	"context"
	"time"

	"github.com/cyverse-de/helpdesk-notifier/model"
	"github.com/cyverse-de/helpdesk-notifier/templates"
)

// FeedStore persists in-app notifications.
type FeedStore interface {
	SaveNotification(ctx context.Context, notification *model.Notification) error
	ListNotifications(ctx context.Context, recipient model.Actor, opts model.ListOptions) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id int64, recipient model.Actor) error
	MarkAllNotificationsRead(ctx context.Context, recipient model.Actor) (int64, error)
	CountUnreadNotifications(ctx context.Context, recipient model.Actor) (int64, error)
}

// Feed writes and reads the in-app notification feed.
type Feed struct {
	store FeedStore
	now   func() time.Time
}

// NewFeed returns a new in-app feed.
func NewFeed(store FeedStore) *Feed {
	return &Feed{store: store, now: time.Now}
}

// Write appends an unread notification for the event's recipient.
func (f *Feed) Write(ctx context.Context, event model.Event, content templates.InAppContent) (*model.Notification, error) {
	notification := &model.Notification{
		Recipient: event.Recipient,
		Kind:      event.Kind,
		Title:     content.Title,
		Message:   content.Message,
		CreatedAt: f.now().UTC(),
	}
	if refType, refID, ok := event.Reference(); ok {
		notification.ReferenceType = &refType
		notification.ReferenceID = &refID
	}

	if err := f.store.SaveNotification(ctx, notification); err != nil {
		return nil, err
	}
	return notification, nil
}

// List returns the recipient's notifications, newest first.
func (f *Feed) List(ctx context.Context, recipient model.Actor, opts model.ListOptions) ([]model.Notification, error) {
	return f.store.ListNotifications(ctx, recipient, opts)
}

// MarkRead marks one of the recipient's notifications as read. Marking a read notification again is a no-op.
func (f *Feed) MarkRead(ctx context.Context, id int64, recipient model.Actor) error {
	return f.store.MarkNotificationRead(ctx, id, recipient)
}

// MarkAllRead marks every unread notification of the recipient as read and returns how many changed.
func (f *Feed) MarkAllRead(ctx context.Context, recipient model.Actor) (int64, error) {
	return f.store.MarkAllNotificationsRead(ctx, recipient)
}

// UnreadCount returns the number of unread notifications for the recipient.
func (f *Feed) UnreadCount(ctx context.Context, recipient model.Actor) (int64, error) {
	return f.store.CountUnreadNotifications(ctx, recipient)
}
