package db

import (
	"context"
	"fmt"

	"github.com/cyverse-de/helpdesk-notifier/model"
	"github.com/pkg/errors"

	sq "github.com/Masterminds/squirrel"
)

// actorTable returns the name of the table owned by the CRUD backend that stores actors of the given kind.
func actorTable(kind model.ActorKind) (string, error) {
	switch kind {
	case model.ActorClient:
		return "clients", nil
	case model.ActorStaff:
		return "users", nil
	default:
		return "", fmt.Errorf("unknown actor type: %q", kind)
	}
}

// ActorExists determines whether a client or staff user exists.
func ActorExists(ctx context.Context, q Querier, actor model.Actor) (bool, error) {
	wrapMsg := fmt.Sprintf("unable to look up %s", actor)

	table, err := actorTable(actor.Kind)
	if err != nil {
		return false, errors.Wrap(err, wrapMsg)
	}

	// Build the query.
	query, args, err := psql.
		Select("1").
		Prefix("SELECT EXISTS (").
		From(table).
		Where(sq.Eq{"id": actor.ID}).
		Suffix(")").
		ToSql()
	if err != nil {
		return false, errors.Wrap(err, wrapMsg)
	}

	// Query the database.
	var exists bool
	err = q.QueryRowContext(ctx, query, args...).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, wrapMsg)
	}

	return exists, nil
}

// ListActiveStaffIDs returns the IDs of every active staff user.
func ListActiveStaffIDs(ctx context.Context, q Querier) ([]int64, error) {
	wrapMsg := "unable to list active staff users"

	query, args, err := psql.
		Select("id").
		From("users").
		Where(sq.Eq{"is_active": true}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err = rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, wrapMsg)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return ids, nil
}
