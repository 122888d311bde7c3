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

func TestGetReadMarker(t *testing.T) {
	assert := assert.New(t)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT last_read_at FROM ticket_read_markers WHERE ticket_id = \\$1").
		WithArgs(int64(42), int64(3), "staff").
		WillReturnRows(sqlmock.NewRows([]string{"last_read_at"}).AddRow(at))
	mock.ExpectQuery("SELECT last_read_at FROM ticket_read_markers").
		WithArgs(int64(42), int64(4), "client").
		WillReturnError(sql.ErrNoRows)

	marker, err := GetReadMarker(context.Background(), db, 42, model.StaffUser(3))
	assert.NoError(err)
	require.NotNil(t, marker)
	assert.True(at.Equal(*marker))

	marker, err = GetReadMarker(context.Background(), db, 42, model.Client(4))
	assert.NoError(err)
	assert.Nil(marker)

	assert.NoError(mock.ExpectationsWereMet())
}

func TestListReadMarkers(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT ticket_id, last_read_at FROM ticket_read_markers WHERE ticket_id IN \\(\\$1,\\$2\\)").
		WithArgs(int64(1), int64(2), int64(4), "client").
		WillReturnRows(sqlmock.NewRows([]string{"ticket_id", "last_read_at"}).AddRow(int64(2), at))

	markers, err := ListReadMarkers(context.Background(), db, []int64{1, 2}, model.Client(4))
	assert.NoError(t, err)
	assert.Len(t, markers, 1)
	assert.True(t, at.Equal(markers[2]))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListReadMarkersEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	markers, err := ListReadMarkers(context.Background(), db, nil, model.Client(4))
	assert.NoError(t, err)
	assert.Empty(t, markers)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertReadMarker(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO ticket_read_markers .* ON CONFLICT \\(ticket_id, viewer_type, viewer_id\\) DO UPDATE SET last_read_at = EXCLUDED.last_read_at").
		WithArgs(int64(42), "client", int64(4), at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, UpsertReadMarker(context.Background(), db, 42, model.Client(4), at))
	assert.NoError(t, mock.ExpectationsWereMet())
}
