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

func authorKind(staffAuthored bool) model.AuthorKind {
	if staffAuthored {
		return model.AuthorStaff
	}
	return model.AuthorClient
}

// TicketExists determines whether a ticket exists.
func TicketExists(ctx context.Context, q Querier, ticketID int64) (bool, error) {
	wrapMsg := fmt.Sprintf("unable to look up ticket %d", ticketID)

	query, args, err := psql.
		Select("1").
		Prefix("SELECT EXISTS (").
		From("tickets").
		Where(sq.Eq{"id": ticketID}).
		Suffix(")").
		ToSql()
	if err != nil {
		return false, errors.Wrap(err, wrapMsg)
	}

	var exists bool
	err = q.QueryRowContext(ctx, query, args...).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, wrapMsg)
	}

	return exists, nil
}

// GetTicketActivity summarizes the most recent comment on a ticket. Comments with a staff user ID are
// staff-authored; all others were written by the client.
func GetTicketActivity(ctx context.Context, q Querier, ticketID int64) (model.TicketActivity, error) {
	wrapMsg := fmt.Sprintf("unable to summarize the activity on ticket %d", ticketID)
	activity := model.TicketActivity{TicketID: ticketID, LastCommentAuthor: model.AuthorNone}

	query, args, err := psql.
		Select("created_at", "user_id IS NOT NULL").
		From("ticket_comments").
		Where(sq.Eq{"ticket_id": ticketID}).
		OrderBy("created_at DESC", "id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return activity, errors.Wrap(err, wrapMsg)
	}

	var (
		createdAt     time.Time
		staffAuthored bool
	)
	err = q.QueryRowContext(ctx, query, args...).Scan(&createdAt, &staffAuthored)
	if err == sql.ErrNoRows {
		return activity, nil
	}
	if err != nil {
		return activity, errors.Wrap(err, wrapMsg)
	}

	activity.LastCommentAt = &createdAt
	activity.LastCommentAuthor = authorKind(staffAuthored)
	return activity, nil
}

// ListTicketActivity summarizes the most recent comment on each of the given tickets. Tickets without comments
// are absent from the result.
func ListTicketActivity(ctx context.Context, q Querier, ticketIDs []int64) (map[int64]model.TicketActivity, error) {
	wrapMsg := "unable to summarize ticket activity"

	activity := make(map[int64]model.TicketActivity, len(ticketIDs))
	if len(ticketIDs) == 0 {
		return activity, nil
	}

	query, args, err := psql.
		Select("DISTINCT ON (ticket_id) ticket_id", "created_at", "user_id IS NOT NULL").
		From("ticket_comments").
		Where(sq.Eq{"ticket_id": ticketIDs}).
		OrderBy("ticket_id", "created_at DESC", "id DESC").
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
			ticketID      int64
			createdAt     time.Time
			staffAuthored bool
		)
		if err = rows.Scan(&ticketID, &createdAt, &staffAuthored); err != nil {
			return nil, errors.Wrap(err, wrapMsg)
		}
		activity[ticketID] = model.TicketActivity{
			TicketID:          ticketID,
			LastCommentAt:     &createdAt,
			LastCommentAuthor: authorKind(staffAuthored),
		}
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return activity, nil
}
