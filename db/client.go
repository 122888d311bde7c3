package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/cyverse-de/helpdesk-notifier/model"
	"github.com/pkg/errors"
)

// Client binds the functions in this package to a database handle. The component packages depend on small
// interfaces that Client satisfies.
type Client struct {
	db *sql.DB
}

// NewClient returns a new database client.
func NewClient(db *sql.DB) *Client {
	return &Client{db: db}
}

// DB returns the underlying database handle.
func (c *Client) DB() *sql.DB {
	return c.db
}

// SaveNotification stores an in-app notification inside a transaction so that the type lookup and the insert
// see the same snapshot.
func (c *Client) SaveNotification(ctx context.Context, notification *model.Notification) error {
	// Begin a database transaction.
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "unable to begin a database transaction")
	}
	defer tx.Rollback() // nolint:errcheck

	// Store the notification.
	if err = SaveNotification(ctx, tx, notification); err != nil {
		return err
	}

	// Commit the transaction.
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "unable to commit the database transaction")
	}

	return nil
}

func (c *Client) ListNotifications(ctx context.Context, recipient model.Actor, opts model.ListOptions) ([]model.Notification, error) {
	return ListNotifications(ctx, c.db, recipient, opts)
}

func (c *Client) MarkNotificationRead(ctx context.Context, id int64, recipient model.Actor) error {
	return MarkNotificationRead(ctx, c.db, id, recipient)
}

func (c *Client) MarkAllNotificationsRead(ctx context.Context, recipient model.Actor) (int64, error) {
	return MarkAllNotificationsRead(ctx, c.db, recipient)
}

func (c *Client) CountUnreadNotifications(ctx context.Context, recipient model.Actor) (int64, error) {
	return CountUnreadNotifications(ctx, c.db, recipient)
}

func (c *Client) ActorExists(ctx context.Context, actor model.Actor) (bool, error) {
	return ActorExists(ctx, c.db, actor)
}

func (c *Client) ListActiveStaffIDs(ctx context.Context) ([]int64, error) {
	return ListActiveStaffIDs(ctx, c.db)
}

func (c *Client) GetTelegramBinding(ctx context.Context, actor model.Actor) (*model.TelegramBinding, error) {
	return GetTelegramBinding(ctx, c.db, actor)
}

func (c *Client) StoreConnectionToken(ctx context.Context, actor model.Actor, token string, issuedAt time.Time) error {
	return StoreConnectionToken(ctx, c.db, actor, token, issuedAt)
}

func (c *Client) RedeemConnectionToken(
	ctx context.Context,
	kind model.ActorKind,
	token string,
	externalUserID int64,
	externalHandle string,
	now time.Time,
) (int64, bool, error) {
	return RedeemConnectionToken(ctx, c.db, kind, token, externalUserID, externalHandle, now)
}

func (c *Client) DisableTelegramBinding(ctx context.Context, actor model.Actor, now time.Time) error {
	return DisableTelegramBinding(ctx, c.db, actor, now)
}

func (c *Client) GetEmailBinding(ctx context.Context, clientID int64) (*model.EmailBinding, error) {
	return GetEmailBinding(ctx, c.db, clientID)
}

func (c *Client) StorePendingEmail(ctx context.Context, clientID int64, email, code string, sentAt time.Time) error {
	return StorePendingEmail(ctx, c.db, clientID, email, code, sentAt)
}

func (c *Client) ConfirmEmailCode(ctx context.Context, clientID int64, code string) (bool, error) {
	return ConfirmEmailCode(ctx, c.db, clientID, code)
}

func (c *Client) ClearEmailBinding(ctx context.Context, clientID int64) error {
	return ClearEmailBinding(ctx, c.db, clientID)
}

func (c *Client) SaveEmailPreferences(ctx context.Context, clientID int64, prefs model.Preferences, enabled bool) error {
	return SaveEmailPreferences(ctx, c.db, clientID, prefs, enabled)
}

func (c *Client) TicketExists(ctx context.Context, ticketID int64) (bool, error) {
	return TicketExists(ctx, c.db, ticketID)
}

func (c *Client) GetTicketActivity(ctx context.Context, ticketID int64) (model.TicketActivity, error) {
	return GetTicketActivity(ctx, c.db, ticketID)
}

func (c *Client) ListTicketActivity(ctx context.Context, ticketIDs []int64) (map[int64]model.TicketActivity, error) {
	return ListTicketActivity(ctx, c.db, ticketIDs)
}

func (c *Client) GetReadMarker(ctx context.Context, ticketID int64, viewer model.Actor) (*time.Time, error) {
	return GetReadMarker(ctx, c.db, ticketID, viewer)
}

func (c *Client) ListReadMarkers(ctx context.Context, ticketIDs []int64, viewer model.Actor) (map[int64]time.Time, error) {
	return ListReadMarkers(ctx, c.db, ticketIDs, viewer)
}

func (c *Client) UpsertReadMarker(ctx context.Context, ticketID int64, viewer model.Actor, at time.Time) error {
	return UpsertReadMarker(ctx, c.db, ticketID, viewer, at)
}
