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

func actorClause(actor model.Actor) sq.Eq {
	return sq.Eq{
		"actor_type": string(actor.Kind),
		"actor_id":   actor.ID,
	}
}

// GetTelegramBinding returns the Telegram binding for an actor, or nil if the actor has never started linking.
func GetTelegramBinding(ctx context.Context, q Querier, actor model.Actor) (*model.TelegramBinding, error) {
	wrapMsg := fmt.Sprintf("unable to get the Telegram binding for %s", actor)

	query, args, err := psql.
		Select(
			"external_user_id",
			"external_handle",
			"enabled",
			"connection_token",
			"token_issued_at").
		From("telegram_bindings").
		Where(actorClause(actor)).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	var (
		externalUserID sql.NullInt64
		externalHandle sql.NullString
		token          sql.NullString
		issuedAt       sql.NullTime
	)
	binding := &model.TelegramBinding{Actor: actor}
	err = q.QueryRowContext(ctx, query, args...).
		Scan(&externalUserID, &externalHandle, &binding.Enabled, &token, &issuedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	if externalUserID.Valid {
		binding.ExternalUserID = &externalUserID.Int64
	}
	if externalHandle.Valid {
		binding.ExternalHandle = &externalHandle.String
	}
	if token.Valid {
		binding.ConnectionToken = &token.String
	}
	if issuedAt.Valid {
		binding.TokenIssuedAt = &issuedAt.Time
	}

	return binding, nil
}

// StoreConnectionToken stores a fresh connection token for an actor, replacing any token that was issued
// earlier. The rest of the binding is left untouched.
func StoreConnectionToken(ctx context.Context, q Querier, actor model.Actor, token string, issuedAt time.Time) error {
	wrapMsg := fmt.Sprintf("unable to store a connection token for %s", actor)

	statement, args, err := psql.
		Insert("telegram_bindings").
		Columns("actor_type", "actor_id", "enabled", "connection_token", "token_issued_at", "updated_at").
		Values(string(actor.Kind), actor.ID, false, token, issuedAt, issuedAt).
		Suffix("ON CONFLICT (actor_type, actor_id) DO UPDATE SET " +
			"connection_token = EXCLUDED.connection_token, " +
			"token_issued_at = EXCLUDED.token_issued_at, " +
			"updated_at = EXCLUDED.updated_at").
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

// RedeemConnectionToken links the Telegram account to the binding of the given actor kind that currently holds
// the token. The token is cleared in the same statement, so it can only ever be redeemed once and a token that
// has since been replaced never matches. The ID of the linked actor is returned, or false if no binding matched.
func RedeemConnectionToken(
	ctx context.Context,
	q Querier,
	kind model.ActorKind,
	token string,
	externalUserID int64,
	externalHandle string,
	now time.Time,
) (int64, bool, error) {
	wrapMsg := "unable to redeem the connection token"

	statement, args, err := psql.
		Update("telegram_bindings").
		Set("external_user_id", externalUserID).
		Set("external_handle", nullString(externalHandle)).
		Set("enabled", true).
		Set("connection_token", nil).
		Set("updated_at", now).
		Where(sq.Eq{
			"actor_type":       string(kind),
			"connection_token": token,
		}).
		Suffix("RETURNING actor_id").
		ToSql()
	if err != nil {
		return 0, false, errors.Wrap(err, wrapMsg)
	}

	var actorID int64
	err = q.QueryRowContext(ctx, statement, args...).Scan(&actorID)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, wrapMsg)
	}

	return actorID, true, nil
}

// DisableTelegramBinding stops Telegram delivery for an actor. The linked account is remembered so that the
// binding can be re-enabled by linking again. Disabling an actor with no binding is not an error.
func DisableTelegramBinding(ctx context.Context, q Querier, actor model.Actor, now time.Time) error {
	wrapMsg := fmt.Sprintf("unable to disable the Telegram binding for %s", actor)

	statement, args, err := psql.
		Update("telegram_bindings").
		Set("enabled", false).
		Set("updated_at", now).
		Where(actorClause(actor)).
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
