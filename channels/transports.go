// Package channels contains the delivery adapters for the in-app feed, Telegram and email, along with the
// concrete transports they send through.
package channels

import (
	"context"

	"github.com/cyverse-de/helpdesk-notifier/logging"
	"github.com/cyverse-de/helpdesk-notifier/model"
)

var log = logging.Log.WithField("package", "channels")

// BotTransport sends messages through a chat bot API. Implementations must be safe for concurrent use.
type BotTransport interface {
	SendText(ctx context.Context, externalUserID int64, markup string) error
	SendDocument(ctx context.Context, externalUserID int64, doc model.Attachment, caption string) error
}

// Mail is a single outgoing email.
type Mail struct {
	To          string
	Subject     string
	Text        string
	HTML        string
	Attachments []model.Attachment
}

// MailTransport delivers outgoing email. Implementations must be safe for concurrent use.
type MailTransport interface {
	Send(ctx context.Context, mail Mail) error
}

// InboundHandler handles a text message sent to the bot and returns the reply, if any.
type InboundHandler func(ctx context.Context, externalUserID int64, handle, text string) string
