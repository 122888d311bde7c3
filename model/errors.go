package model

import "errors"

var (
	// ErrNotFound indicates that a recipient, ticket or notification does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidToken indicates that a connection token is unknown, superseded or already redeemed.
	ErrInvalidToken = errors.New("invalid token")

	// ErrVerificationMismatch indicates that a verification code does not match the pending code.
	ErrVerificationMismatch = errors.New("verification code mismatch")

	// ErrCodeExpired indicates that the pending verification code is older than the configured TTL.
	ErrCodeExpired = errors.New("verification code expired")

	// ErrInvalidEmail indicates that an email address could not be parsed.
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrInvalidPreferences indicates that a preferences document names an unknown event kind.
	ErrInvalidPreferences = errors.New("invalid notification preferences")

	// ErrUnknownKind indicates an event kind with no template.
	ErrUnknownKind = errors.New("unknown notification kind")

	// ErrChannelDisabled indicates that a channel transport is not configured.
	ErrChannelDisabled = errors.New("channel not configured")
)
