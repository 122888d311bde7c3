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

// GetEmailBinding returns the email binding for a client, or nil if the client has never configured email.
func GetEmailBinding(ctx context.Context, q Querier, clientID int64) (*model.EmailBinding, error) {
	wrapMsg := fmt.Sprintf("unable to get the email binding for client %d", clientID)

	query, args, err := psql.
		Select(
			"email",
			"verification_code",
			"code_sent_at",
			"verified",
			"enabled",
			"preferences").
		From("email_bindings").
		Where(sq.Eq{"client_id": clientID}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	var (
		email       sql.NullString
		code        sql.NullString
		codeSentAt  sql.NullTime
		preferences []byte
	)
	binding := &model.EmailBinding{ClientID: clientID}
	err = q.QueryRowContext(ctx, query, args...).
		Scan(&email, &code, &codeSentAt, &binding.Verified, &binding.Enabled, &preferences)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	if email.Valid {
		binding.Email = &email.String
	}
	if code.Valid {
		binding.VerificationCode = &code.String
	}
	if codeSentAt.Valid {
		binding.CodeSentAt = &codeSentAt.Time
	}
	binding.Preferences, err = model.UnmarshalPreferences(preferences)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return binding, nil
}

// StorePendingEmail records a candidate email address and a fresh verification code for a client. Any earlier
// code is overwritten, and the binding goes back to unverified. Preferences are preserved.
func StorePendingEmail(ctx context.Context, q Querier, clientID int64, email, code string, sentAt time.Time) error {
	wrapMsg := fmt.Sprintf("unable to store a pending email address for client %d", clientID)

	statement, args, err := psql.
		Insert("email_bindings").
		Columns("client_id", "email", "verification_code", "code_sent_at", "verified", "enabled").
		Values(clientID, email, code, sentAt, false, true).
		Suffix("ON CONFLICT (client_id) DO UPDATE SET " +
			"email = EXCLUDED.email, " +
			"verification_code = EXCLUDED.verification_code, " +
			"code_sent_at = EXCLUDED.code_sent_at, " +
			"verified = EXCLUDED.verified, " +
			"enabled = EXCLUDED.enabled").
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

// ConfirmEmailCode marks the client's email address as verified if the pending code matches. The code is
// cleared in the same statement. False is returned if the code doesn't match the pending code.
func ConfirmEmailCode(ctx context.Context, q Querier, clientID int64, code string) (bool, error) {
	wrapMsg := fmt.Sprintf("unable to confirm the email address for client %d", clientID)

	statement, args, err := psql.
		Update("email_bindings").
		Set("verified", true).
		Set("verification_code", nil).
		Set("code_sent_at", nil).
		Where(sq.Eq{
			"client_id":         clientID,
			"verification_code": code,
		}).
		ToSql()
	if err != nil {
		return false, errors.Wrap(err, wrapMsg)
	}

	result, err := q.ExecContext(ctx, statement, args...)
	if err != nil {
		return false, errors.Wrap(err, wrapMsg)
	}
	n, err := rowsAffected(result, wrapMsg)
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

// ClearEmailBinding removes the client's email address, pending code and verification state in one statement.
func ClearEmailBinding(ctx context.Context, q Querier, clientID int64) error {
	wrapMsg := fmt.Sprintf("unable to clear the email binding for client %d", clientID)

	statement, args, err := psql.
		Update("email_bindings").
		Set("email", nil).
		Set("verification_code", nil).
		Set("code_sent_at", nil).
		Set("verified", false).
		Set("enabled", false).
		Where(sq.Eq{"client_id": clientID}).
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

// SaveEmailPreferences stores the client's per-kind channel preferences and the email enabled flag.
func SaveEmailPreferences(ctx context.Context, q Querier, clientID int64, prefs model.Preferences, enabled bool) error {
	wrapMsg := fmt.Sprintf("unable to save notification preferences for client %d", clientID)

	encoded, err := model.MarshalPreferences(prefs)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	statement, args, err := psql.
		Insert("email_bindings").
		Columns("client_id", "preferences", "enabled").
		Values(clientID, string(encoded), enabled).
		Suffix("ON CONFLICT (client_id) DO UPDATE SET " +
			"preferences = EXCLUDED.preferences, " +
			"enabled = EXCLUDED.enabled").
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
