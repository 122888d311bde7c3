package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cyverse-de/helpdesk-notifier/model"
	"github.com/pkg/errors"

	sq "github.com/Masterminds/squirrel"
)

func viewerClause(viewer model.Actor) sq.Eq {
	return sq.Eq{
		"viewer_type": string(viewer.Kind),
		"viewer_id":   viewer.ID,
	}
}

// GetReadMarker returns the instant at which the viewer last opened the ticket, or nil if they never have.
func GetReadMarker(ctx context.Context, q Querier, ticketID int64, viewer model.Actor) (*time.Time, error) {
	wrapMsg := fmt.Sprintf("unable to get the read marker for ticket %d", ticketID)

	query, args, err := psql.
		Select("last_read_at").
		From("ticket_read_markers").
		Where(sq.Eq{"ticket_id": ticketID}).
		Where(viewerClause(viewer)).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	var lastReadAt time.Time
	err = q.QueryRowContext(ctx, query, args...).Scan(&lastReadAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return &lastReadAt, nil
}

// ListReadMarkers returns the viewer's read markers for each of the given tickets that has one.
func ListReadMarkers(ctx context.Context, q Querier, ticketIDs []int64, viewer model.Actor) (map[int64]time.Time, error) {
	wrapMsg := "unable to list read markers"

	markers := make(map[int64]time.Time, len(ticketIDs))
	if len(ticketIDs) == 0 {
		return markers, nil
	}

	query, args, err := psql.
		Select("ticket_id", "last_read_at").
		From("ticket_read_markers").
		Where(sq.Eq{"ticket_id": ticketIDs}).
		Where(viewerClause(viewer)).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ticketID   int64
			lastReadAt time.Time
		)
		if err = rows.Scan(&ticketID, &lastReadAt); err != nil {
			return nil, errors.Wrap(err, wrapMsg)
		}
		markers[ticketID] = lastReadAt
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return markers, nil
}

// UpsertReadMarker records that the viewer opened the ticket at the given instant. Exactly one row exists per
// ticket and viewer.
func UpsertReadMarker(ctx context.Context, q Querier, ticketID int64, viewer model.Actor, at time.Time) error {
	wrapMsg := fmt.Sprintf("unable to record a view of ticket %d", ticketID)

	statement, args, err := psql.
		Insert("ticket_read_markers").
		Columns("ticket_id", "viewer_type", "viewer_id", "last_read_at").
		Values(ticketID, string(viewer.Kind), viewer.ID, at).
		Suffix("ON CONFLICT (ticket_id, viewer_type, viewer_id) DO UPDATE SET last_read_at = EXCLUDED.last_read_at").
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
