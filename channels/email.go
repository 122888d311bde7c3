package channels

import (
	"context"

	"github.com/pkg/errors"

	"github.com/cyverse-de/helpdesk-notifier/common"
	"github.com/cyverse-de/helpdesk-notifier/model"
	"github.com/cyverse-de/helpdesk-notifier/templates"
)

// EmailSender delivers rendered emails to a single address.
type EmailSender struct {
	transport MailTransport
}

// NewEmailSender returns a new email sender.
func NewEmailSender(transport MailTransport) *EmailSender {
	return &EmailSender{transport: transport}
}

// Send delivers the content to the address. A malformed address is reported without contacting the relay.
func (s *EmailSender) Send(ctx context.Context, to string, content templates.EmailContent, attachment *model.Attachment) error {
	if err := common.ValidateEmailAddress(to); err != nil {
		return errors.Wrapf(model.ErrInvalidEmail, "%s", to)
	}

	m := Mail{
		To:      to,
		Subject: content.Subject,
		Text:    content.Text,
		HTML:    content.HTML,
	}
	if attachment != nil {
		m.Attachments = []model.Attachment{*attachment}
	}

	return s.transport.Send(ctx, m)
}
