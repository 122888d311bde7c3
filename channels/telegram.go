package channels

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/cyverse-de/helpdesk-notifier/model"
)

// DefaultTelegramRate is the default number of Telegram messages sent per second across all dispatches.
const DefaultTelegramRate = 25

// TelegramSender delivers rendered messages to a linked Telegram account.
type TelegramSender struct {
	transport BotTransport
	limiter   *rate.Limiter
}

// NewTelegramSender returns a sender that shares one token bucket of ratePerSec messages per second.
func NewTelegramSender(transport BotTransport, ratePerSec int) *TelegramSender {
	if ratePerSec <= 0 {
		ratePerSec = DefaultTelegramRate
	}
	return &TelegramSender{
		transport: transport,
		limiter:   rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
	}
}

// Send delivers the markup to the Telegram user, followed by the attachment if there is one.
func (s *TelegramSender) Send(ctx context.Context, externalUserID int64, markup string, attachment *model.Attachment) error {
	wrapMsg := "unable to deliver the telegram notification"

	if err := s.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	if err := s.transport.SendText(ctx, externalUserID, markup); err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	if attachment == nil {
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	if err := s.transport.SendDocument(ctx, externalUserID, *attachment, ""); err != nil {
		return errors.Wrap(err, "unable to deliver the telegram attachment")
	}

	return nil
}
