package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cyverse-de/helpdesk-notifier/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicketExists(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT EXISTS \\( SELECT 1 FROM tickets WHERE id = \\$1 \\)").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := TicketExists(context.Background(), db, 42)
	assert.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTicketActivity(t *testing.T) {
	assert := assert.New(t)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT created_at, user_id IS NOT NULL FROM ticket_comments WHERE ticket_id = \\$1 ORDER BY created_at DESC, id DESC LIMIT 1").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "staff"}).AddRow(at, true))
	mock.ExpectQuery("FROM ticket_comments").
		WithArgs(int64(43)).
		WillReturnError(sql.ErrNoRows)

	activity, err := GetTicketActivity(context.Background(), db, 42)
	assert.NoError(err)
	assert.Equal(model.AuthorStaff, activity.LastCommentAuthor)
	require.NotNil(t, activity.LastCommentAt)
	assert.True(at.Equal(*activity.LastCommentAt))

	activity, err = GetTicketActivity(context.Background(), db, 43)
	assert.NoError(err)
	assert.Equal(model.AuthorNone, activity.LastCommentAuthor)
	assert.Nil(activity.LastCommentAt)

	assert.NoError(mock.ExpectationsWereMet())
}

func TestListTicketActivity(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT DISTINCT ON \\(ticket_id\\) ticket_id, created_at, user_id IS NOT NULL FROM ticket_comments WHERE ticket_id IN").
		WithArgs(int64(1), int64(2), int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"ticket_id", "created_at", "staff"}).
			AddRow(int64(1), at, false).
			AddRow(int64(3), at, true))

	activity, err := ListTicketActivity(context.Background(), db, []int64{1, 2, 3})
	assert.NoError(t, err)
	assert.Len(t, activity, 2)
	assert.Equal(t, model.AuthorClient, activity[1].LastCommentAuthor)
	assert.Equal(t, model.AuthorStaff, activity[3].LastCommentAuthor)
	assert.NoError(t, mock.ExpectationsWereMet())
}
