package db

import (
	"context"
	"database/sql"

	"github.com/cyverse-de/helpdesk-notifier/model"
	"github.com/pkg/errors"

	sq "github.com/Masterminds/squirrel"
)

// recipientClause restricts a query to the notifications belonging to one recipient.
func recipientClause(recipient model.Actor) sq.Eq {
	return sq.Eq{
		"n.recipient_type": string(recipient.Kind),
		"n.recipient_id":   recipient.ID,
	}
}

// SaveNotification saves a single notification into the database.
func SaveNotification(ctx context.Context, q Querier, notification *model.Notification) error {
	wrapMsg := "unable to save notification"

	// Get the notification type ID.
	notificationTypeID, err := GetNotificationTypeID(ctx, q, string(notification.Kind))
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	// Build the statement to insert the notification.
	statement, args, err := psql.
		Insert("notifications").
		Columns(
			"notification_type_id",
			"recipient_type",
			"recipient_id",
			"title",
			"message",
			"reference_type",
			"reference_id",
			"read",
			"created_at").
		Values(
			notificationTypeID,
			string(notification.Recipient.Kind),
			notification.Recipient.ID,
			notification.Title,
			notification.Message,
			notification.ReferenceType,
			notification.ReferenceID,
			notification.Read,
			notification.CreatedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	// Execute the insert statement, scanning the ID into the notification structure.
	err = q.QueryRowContext(ctx, statement, args...).Scan(&notification.ID)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	return nil
}

// ListNotifications lists the notifications for a recipient, newest first.
func ListNotifications(ctx context.Context, q Querier, recipient model.Actor, opts model.ListOptions) ([]model.Notification, error) {
	wrapMsg := "unable to list notifications"

	builder := psql.
		Select(
			"n.id",
			"t.name",
			"n.title",
			"n.message",
			"n.reference_type",
			"n.reference_id",
			"n.read",
			"n.created_at").
		From("notifications n").
		Join("notification_types t ON n.notification_type_id = t.id").
		Where(recipientClause(recipient)).
		OrderBy("n.created_at DESC", "n.id DESC")
	if opts.UnreadOnly {
		builder = builder.Where(sq.Eq{"n.read": false})
	}
	if opts.Limit > 0 {
		builder = builder.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		builder = builder.Offset(opts.Offset)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}
	defer rows.Close()

	notifications := make([]model.Notification, 0)
	for rows.Next() {
		var (
			n       model.Notification
			kind    string
			refType sql.NullString
			refID   sql.NullInt64
		)
		err = rows.Scan(&n.ID, &kind, &n.Title, &n.Message, &refType, &refID, &n.Read, &n.CreatedAt)
		if err != nil {
			return nil, errors.Wrap(err, wrapMsg)
		}
		n.Recipient = recipient
		n.Kind = model.EventKind(kind)
		if refType.Valid {
			n.ReferenceType = &refType.String
		}
		if refID.Valid {
			n.ReferenceID = &refID.Int64
		}
		notifications = append(notifications, n)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return notifications, nil
}

// MarkNotificationRead marks one of the recipient's notifications as read. ErrNotFound is returned if the
// recipient has no notification with the given ID. Marking an already read notification is not an error.
func MarkNotificationRead(ctx context.Context, q Querier, id int64, recipient model.Actor) error {
	wrapMsg := "unable to mark the notification as read"

	statement, args, err := psql.
		Update("notifications").
		Set("read", true).
		Where(sq.Eq{
			"id":             id,
			"recipient_type": string(recipient.Kind),
			"recipient_id":   recipient.ID,
		}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	result, err := q.ExecContext(ctx, statement, args...)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	n, err := rowsAffected(result, wrapMsg)
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}

	return nil
}

// MarkAllNotificationsRead marks every unread notification for the recipient as read, returning the number
// of notifications that changed.
func MarkAllNotificationsRead(ctx context.Context, q Querier, recipient model.Actor) (int64, error) {
	wrapMsg := "unable to mark all notifications as read"

	statement, args, err := psql.
		Update("notifications").
		Set("read", true).
		Where(sq.Eq{
			"recipient_type": string(recipient.Kind),
			"recipient_id":   recipient.ID,
			"read":           false,
		}).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	result, err := q.ExecContext(ctx, statement, args...)
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	return rowsAffected(result, wrapMsg)
}

// CountUnreadNotifications counts the number of notifications for the recipient that haven't been marked as read.
func CountUnreadNotifications(ctx context.Context, q Querier, recipient model.Actor) (int64, error) {
	wrapMsg := "unable to count unread notifications"
	var total int64

	// Build the statement to count the unread notifications.
	statement, args, err := psql.
		Select("count(*)").
		From("notifications n").
		Where(recipientClause(recipient)).
		Where(sq.Eq{"n.read": false}).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	// Execute the statement.
	err = q.QueryRowContext(ctx, statement, args...).Scan(&total)
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	return total, nil
}
