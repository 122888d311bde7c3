package db

import (
	"context"
	"fmt"

	"github.com/cyverse-de/helpdesk-notifier/model"
	"github.com/pkg/errors"

	sq "github.com/Masterminds/squirrel"
)

// GetNotificationTypeID obtains the ID of the notification type with the given name. An error
// is returned if the database can't be queried or the notification type doesn't exist.
func GetNotificationTypeID(ctx context.Context, q Querier, notificationType string) (int64, error) {
	wrapMsg := fmt.Sprintf("unable to get the notification type ID for `%s`", notificationType)

	// Build the SQL query and arguments.
	query, args, err := psql.
		Select("id").
		From("notification_types").
		Where(sq.Eq{"name": notificationType}).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	// Query the database.
	var id int64
	err = q.QueryRowContext(ctx, query, args...).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	return id, nil
}

// RegisterNotificationType adds a notification type to the database if it isn't there already.
func RegisterNotificationType(ctx context.Context, q Querier, notificationType string) error {
	wrapMsg := fmt.Sprintf("unable to register the notification type `%s`", notificationType)

	statement, args, err := psql.
		Insert("notification_types").
		Columns("name").
		Values(notificationType).
		Suffix("ON CONFLICT (name) DO NOTHING").
		ToSql()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	_, err = q.ExecContext(ctx, statement, args...)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	return nil
}

// RegisterNotificationTypes registers every supported event kind.
func RegisterNotificationTypes(ctx context.Context, q Querier) error {
	for _, kind := range model.AllKinds {
		if err := RegisterNotificationType(ctx, q, string(kind)); err != nil {
			return err
		}
	}
	return nil
}
